// Package ignore keeps version-control and importer ignore files in step with
// the directories godle owns.
package ignore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/godle-io/godle/internal/logging"
)

// MarkerName is the file that makes the Godot importer skip a directory.
const MarkerName = ".gdignore"

// Header is written at the top of an ignore file created by Apply.
const Header = "# Managed by godle. Edits are kept: godle never rewrites an existing file."

// Entry is one path godle owns.
type Entry struct {
	Path string
	Dir  bool
}

// Set is the collection of owned paths, in the order they were added.
type Set []Entry

// Add appends path unless it is already present.
func (s Set) Add(path string, dir bool) Set {
	clean := filepath.Clean(path)
	for _, e := range s {
		if filepath.Clean(e.Path) == clean {
			return s
		}
	}
	return append(s, Entry{Path: path, Dir: dir})
}

// Patterns renders the set as ignore patterns anchored at base. Directories
// get a trailing slash.
func (s Set) Patterns(base string) ([]string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(s))
	for _, e := range s {
		p := e.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(absBase, p)
		}
		rel, err := filepath.Rel(absBase, p)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("owned path %s is not below %s", e.Path, base)
		}
		pattern := "/" + filepath.ToSlash(rel)
		if e.Dir {
			pattern += "/"
		}
		out = append(out, pattern)
	}
	return out, nil
}

// Render returns the content Apply writes for owned.
func Render(owned Set, ignoreFile string) ([]byte, error) {
	patterns, err := owned.Patterns(filepath.Dir(ignoreFile))
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	b.WriteString(Header)
	b.WriteByte('\n')
	for _, p := range patterns {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

// Apply creates ignoreFile listing every owned path. An existing file is left
// exactly as it is and Apply reports created=false; that is not an error.
func Apply(owned Set, ignoreFile string) (created bool, err error) {
	if len(owned) == 0 {
		return false, nil
	}
	content, err := Render(owned, ignoreFile)
	if err != nil {
		return false, err
	}

	// O_EXCL keeps a concurrent run or a file created since the check from
	// being overwritten.
	f, err := os.OpenFile(ignoreFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		logging.Debug("ignore file exists, leaving it untouched", "path", ignoreFile)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create %s: %w", ignoreFile, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(ignoreFile)
		return false, fmt.Errorf("failed to write %s: %w", ignoreFile, err)
	}
	if err := f.Close(); err != nil {
		return false, err
	}
	logging.Info("created ignore file", "path", ignoreFile, "entries", len(owned))
	return true, nil
}

// MarkDirectory ensures dir exists and holds the importer marker. It is safe
// to call after anything that may have deleted dir.
func MarkDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	marker := filepath.Join(dir, MarkerName)
	f, err := os.OpenFile(marker, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", marker, err)
	}
	return f.Close()
}
