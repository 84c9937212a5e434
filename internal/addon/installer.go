package addon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/godle-io/godle/internal/archive"
	"github.com/godle-io/godle/internal/cache"
	"github.com/godle-io/godle/internal/download"
	"github.com/godle-io/godle/internal/logging"
	"github.com/godle-io/godle/internal/state"
	"github.com/godle-io/godle/internal/version"
)

// UpgradePolicy decides what happens when the manifest records a different
// version of an add-on than the plan resolved.
type UpgradePolicy string

const (
	// Upgrade replaces the installed version.
	Upgrade UpgradePolicy = "upgrade"
	// Fail refuses to change an installed version.
	Fail UpgradePolicy = "fail"
)

// ParseUpgradePolicy validates a policy name. Empty means Upgrade.
func ParseUpgradePolicy(s string) (UpgradePolicy, error) {
	switch UpgradePolicy(s) {
	case "", Upgrade:
		return Upgrade, nil
	case Fail:
		return Fail, nil
	}
	return "", fmt.Errorf("invalid upgrade policy %q: expected %q or %q", s, Upgrade, Fail)
}

// Fetcher returns a local path for an artifact, downloading it if needed.
type Fetcher interface {
	Fetch(ctx context.Context, key cache.Key, src download.Source) (string, error)
}

// Event reports progress for one plan node.
type Event struct {
	Name     string
	Version  string
	Status   string // "skipped", "started", "installed", "failed"
	Duration time.Duration
	Error    error
}

// EventCallback is called for each install event if set. It may be called
// from several goroutines at once.
type EventCallback func(Event)

// Result summarises an install run.
type Result struct {
	Installed []string
	Skipped   []string
	// Orphaned are recorded in the manifest but absent from the plan. They
	// are reported, never removed.
	Orphaned []string
}

// Installer extracts planned add-ons into <root>/<name>/ and records them in
// the manifest.
type Installer struct {
	fetcher    Fetcher
	root       string
	projectDir string
	workers    int
	policy     UpgradePolicy
	callback   EventCallback
}

// InstallerOption configures an Installer.
type InstallerOption func(*Installer)

// WithWorkers bounds how many add-ons are fetched and extracted at once.
func WithWorkers(n int) InstallerOption {
	return func(in *Installer) {
		if n > 0 {
			in.workers = n
		}
	}
}

// WithUpgradePolicy sets the policy for version changes.
func WithUpgradePolicy(p UpgradePolicy) InstallerOption {
	return func(in *Installer) { in.policy = p }
}

// WithCallback registers a progress callback.
func WithCallback(cb EventCallback) InstallerOption {
	return func(in *Installer) { in.callback = cb }
}

// WithProjectDir makes manifest install paths relative to dir.
func WithProjectDir(dir string) InstallerOption {
	return func(in *Installer) { in.projectDir = dir }
}

// NewInstaller creates an installer writing into root.
func NewInstaller(f Fetcher, root string, opts ...InstallerOption) *Installer {
	in := &Installer{
		fetcher: f,
		root:    root,
		workers: DefaultWorkers,
		policy:  Upgrade,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

func (in *Installer) emit(e Event) {
	if in.callback != nil {
		in.callback(e)
	}
}

// Apply installs every node of plan, updating manifest as each one
// completes. A node starts only after all of its dependencies installed
// successfully. Independent nodes run concurrently up to the worker bound.
// After the first failure no further node is started; nodes already running
// finish and stay recorded.
func (in *Installer) Apply(ctx context.Context, plan *Plan, manifest *state.Manifest) (*Result, error) {
	res := &Result{}
	for _, name := range manifest.Names() {
		if _, ok := plan.Get(name); !ok {
			res.Orphaned = append(res.Orphaned, name)
		}
	}
	if plan.Len() == 0 {
		return res, nil
	}
	if err := os.MkdirAll(in.root, 0755); err != nil {
		return res, fmt.Errorf("failed to create addons directory %s: %w", in.root, err)
	}

	var (
		mu        sync.Mutex
		cond      = sync.NewCond(&mu)
		completed = make(map[string]bool)
		failed    = make(map[string]bool)
		firstErr  error
		allErrs   []error
		sem       = make(chan struct{}, in.workers)
		wg        sync.WaitGroup
	)

	// Nodes are recorded in plan order regardless of completion order.
	outcome := make([]string, plan.Len())

	for i, node := range plan.Nodes {
		wg.Add(1)
		go func(i int, n *Node) {
			defer wg.Done()

			// Wait for dependencies to complete
			mu.Lock()
			for {
				if firstErr != nil {
					mu.Unlock()
					return
				}
				ready, depFailed := true, false
				for _, dep := range n.Dependencies {
					if failed[dep] {
						depFailed = true
						break
					}
					if !completed[dep] {
						ready = false
						break
					}
				}
				if depFailed {
					failed[n.Name] = true
					mu.Unlock()
					cond.Broadcast()
					return
				}
				if ready {
					break
				}
				cond.Wait()
			}
			mu.Unlock()

			// Acquire a worker slot
			sem <- struct{}{}
			defer func() { <-sem }()

			mu.Lock()
			stop := firstErr != nil
			if !stop {
				if err := ctx.Err(); err != nil {
					firstErr = fmt.Errorf("install cancelled: %w", err)
					allErrs = append(allErrs, firstErr)
					stop = true
				}
			}
			if stop {
				failed[n.Name] = true
			}
			mu.Unlock()
			if stop {
				cond.Broadcast()
				return
			}

			start := time.Now()
			skipped, err := in.installNode(ctx, n, manifest)
			if err != nil {
				in.emit(Event{Name: n.Name, Version: n.Version, Status: "failed", Duration: time.Since(start), Error: err})
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				allErrs = append(allErrs, err)
				failed[n.Name] = true
				mu.Unlock()
				cond.Broadcast()
				return
			}

			status := "installed"
			if skipped {
				status = "skipped"
			}
			in.emit(Event{Name: n.Name, Version: n.Version, Status: status, Duration: time.Since(start)})

			mu.Lock()
			completed[n.Name] = true
			outcome[i] = status
			mu.Unlock()
			cond.Broadcast()
		}(i, node)
	}

	wg.Wait()

	for i, n := range plan.Nodes {
		switch outcome[i] {
		case "installed":
			res.Installed = append(res.Installed, n.Name)
		case "skipped":
			res.Skipped = append(res.Skipped, n.Name)
		}
	}

	if len(allErrs) > 1 {
		return res, fmt.Errorf("%d addon(s) failed: %w", len(allErrs), errors.Join(allErrs...))
	}
	return res, firstErr
}

// installNode installs one add-on, or reports skipped=true when the manifest
// already records the same version with a matching content hash.
func (in *Installer) installNode(ctx context.Context, n *Node, manifest *state.Manifest) (skipped bool, err error) {
	target := filepath.Join(in.root, n.Name)

	if rec, ok := manifest.Get(n.Name); ok {
		if version.SameVersion(rec.Version, n.Version) {
			if h, err := HashDir(target); err == nil && h.String() == rec.ContentHash {
				logging.Debug("addon up to date", "name", n.Name, "version", n.Version)
				return true, nil
			}
			logging.Debug("addon content changed, reinstalling", "name", n.Name)
		} else if in.policy == Fail {
			return false, &InstallError{Name: n.Name, Version: n.Version,
				Err: fmt.Errorf("version %s is installed and upgrade policy is %q", rec.Version, Fail)}
		}
	}

	in.emit(Event{Name: n.Name, Version: n.Version, Status: "started"})
	logging.Debug("installing addon", "name", n.Name, "version", n.Version, "url", n.Artifact.URL)

	archivePath, err := in.fetcher.Fetch(ctx, n.Key(), n.Source())
	if err != nil {
		return false, &InstallError{Name: n.Name, Version: n.Version, Err: err}
	}

	if err := in.extract(archivePath, n.Name, target); err != nil {
		return false, &InstallError{Name: n.Name, Version: n.Version, Err: err}
	}

	h, err := HashDir(target)
	if err != nil {
		return false, &InstallError{Name: n.Name, Version: n.Version, Err: err}
	}

	manifest.Set(n.Name, state.AddonRecord{
		Version:     n.Version,
		InstallPath: in.installPath(target),
		ContentHash: h.String(),
	})
	return false, nil
}

// extract unpacks the archive into a staging directory beside target and
// then swaps it in, so target never holds a mix of old and new files.
func (in *Installer) extract(archivePath, name, target string) error {
	staging, err := os.MkdirTemp(in.root, ".staging-"+name+"-*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := archive.Extract(archivePath, staging); err != nil {
		return err
	}

	content, err := addonContent(staging, name)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("failed to remove previous install %s: %w", target, err)
	}
	if err := os.Rename(content, target); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return nil
}

// addonContent picks the add-on tree inside an extracted archive. A single
// top-level directory is stripped, and an addons/<name>/ subtree is preferred
// when present.
func addonContent(staging, name string) (string, error) {
	root, err := archive.SingleRoot(staging)
	if err != nil {
		return "", err
	}
	for _, base := range []string{root, staging} {
		sub := filepath.Join(base, "addons", name)
		if info, err := os.Stat(sub); err == nil && info.IsDir() {
			return sub, nil
		}
	}
	if root == staging {
		// The staging dir itself is removed on return, so gather its
		// entries under a child directory that can be renamed.
		moved := filepath.Join(staging, ".content")
		if err := os.Mkdir(moved, 0755); err != nil {
			return "", err
		}
		entries, err := os.ReadDir(staging)
		if err != nil {
			return "", err
		}
		for _, e := range entries {
			if e.Name() == ".content" {
				continue
			}
			if err := os.Rename(filepath.Join(staging, e.Name()), filepath.Join(moved, e.Name())); err != nil {
				return "", err
			}
		}
		return moved, nil
	}
	return root, nil
}

func (in *Installer) installPath(target string) string {
	if in.projectDir != "" {
		if rel, err := filepath.Rel(in.projectDir, target); err == nil {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(target)
}
