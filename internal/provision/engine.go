package provision

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/godle-io/godle/internal/archive"
	"github.com/godle-io/godle/internal/executor"
	"github.com/godle-io/godle/internal/logging"
	"github.com/godle-io/godle/internal/platform"
	"github.com/godle-io/godle/internal/release"
)

// engineDir is where an engine archive is unpacked, inside its cache entry.
const engineDir = "engine"

// Engine is a fetched engine release ready to run.
type Engine struct {
	Ref     release.Ref
	Archive string // cached download
	Binary  string // executable inside the unpacked release
}

// ResolveEngine loads the release index and resolves the configured version
// for the target platform.
func (p *Provisioner) ResolveEngine(ctx context.Context) (release.Ref, error) {
	idx, err := release.LoadIndex(ctx, p.cfg.Source(p.cfg.ReleaseIndex), p.downloader)
	if err != nil {
		return release.Ref{}, err
	}
	ref, err := release.Resolve(p.cfg.Spec(), p.platform, idx)
	if err != nil {
		return release.Ref{}, err
	}
	logging.Info("resolved engine", "spec", p.cfg.Version, "version", ref.Version.String(), "platform", ref.Platform.String())
	return ref, nil
}

// FetchEngine resolves the engine, downloads it into the cache and unpacks
// it once. Later calls for the same release reuse the unpacked copy.
func (p *Provisioner) FetchEngine(ctx context.Context) (*Engine, error) {
	ref, err := p.ResolveEngine(ctx)
	if err != nil {
		return nil, err
	}
	return p.FetchRelease(ctx, ref)
}

// FetchRelease downloads and unpacks a resolved release.
func (p *Provisioner) FetchRelease(ctx context.Context, ref release.Ref) (*Engine, error) {
	key := ref.Key()
	archivePath, err := p.cache.Fetch(ctx, key, ref.Source())
	if err != nil {
		return nil, err
	}

	if _, err := archive.DetectFormat(archivePath); err != nil {
		// A bare executable rather than an archive.
		if err := makeExecutable(archivePath, ref.Platform); err != nil {
			return nil, err
		}
		return &Engine{Ref: ref, Archive: archivePath, Binary: archivePath}, nil
	}

	dir := filepath.Join(p.cache.Dir(key), engineDir)
	if err := unpackOnce(archivePath, dir); err != nil {
		return nil, fmt.Errorf("failed to unpack engine %s: %w", ref.Version, err)
	}
	bin, err := locateBinary(dir, ref.Platform)
	if err != nil {
		return nil, err
	}
	if err := makeExecutable(bin, ref.Platform); err != nil {
		return nil, err
	}
	logging.Debug("engine ready", "binary", bin)
	return &Engine{Ref: ref, Archive: archivePath, Binary: bin}, nil
}

// RunEngine fetches the engine and runs it with the configured extra
// arguments followed by extraArgs.
func (p *Provisioner) RunEngine(ctx context.Context, mode executor.Mode, extraArgs []string, opts executor.Options) (executor.ExitStatus, error) {
	eng, err := p.FetchEngine(ctx)
	if err != nil {
		return executor.ExitStatus{}, err
	}
	if opts.DebugFlag == "" {
		opts.DebugFlag = p.cfg.DebugFlag
	}
	args := append(append([]string{}, p.cfg.ExtraArgs...), extraArgs...)
	return executor.Run(ctx, eng.Binary, mode, args, opts)
}

// unpackOnce extracts src into dir unless dir already exists. Extraction
// goes to a sibling directory that is renamed into place, so a concurrent
// process either wins the rename or finds the finished directory.
func unpackOnce(src, dir string) error {
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return nil
	}
	staging := dir + ".tmp-" + uuid.NewString()
	defer os.RemoveAll(staging)

	if err := archive.Extract(src, staging); err != nil {
		return err
	}
	if err := os.Rename(staging, dir); err != nil {
		if info, serr := os.Stat(dir); serr == nil && info.IsDir() {
			return nil
		}
		return err
	}
	return nil
}

// locateBinary finds the engine executable in an unpacked release.
func locateBinary(dir string, p platform.ID) (string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(files)

	var candidates []string
	for _, f := range files {
		rel := filepath.ToSlash(strings.TrimPrefix(f, dir))
		name := strings.ToLower(filepath.Base(f))
		switch p.OS {
		case platform.MacOS:
			if strings.Contains(rel, ".app/Contents/MacOS/") {
				candidates = append(candidates, f)
			}
		case platform.Windows:
			if strings.HasSuffix(name, ".exe") {
				candidates = append(candidates, f)
			}
		default:
			if strings.Contains(name, "godot") && !strings.HasSuffix(name, ".so") && !strings.HasSuffix(name, ".txt") {
				candidates = append(candidates, f)
			}
		}
	}
	if len(candidates) == 0 && len(files) == 1 {
		candidates = files
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no engine executable found in %s for %s", dir, p)
	}

	// Prefer the GUI build over the console wrapper when both ship.
	for _, c := range candidates {
		if !strings.Contains(strings.ToLower(filepath.Base(c)), "console") {
			return c, nil
		}
	}
	return candidates[0], nil
}

func makeExecutable(path string, p platform.ID) error {
	if p.OS == platform.Windows {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0111 == 0111 {
		return nil
	}
	if err := os.Chmod(path, 0755); err != nil {
		return fmt.Errorf("failed to make %s executable: %w", path, err)
	}
	return nil
}
