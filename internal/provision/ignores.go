package provision

import (
	"fmt"
	"os"

	"github.com/godle-io/godle/internal/ignore"
	"github.com/godle-io/godle/internal/logging"
)

// OwnedPaths is the set of project paths godle manages, given the ignore
// toggles.
func (p *Provisioner) OwnedPaths() ignore.Set {
	var owned ignore.Set
	if p.cfg.Ignore.BuildDir {
		owned = owned.Add(p.cfg.BuildPath(), true)
	}
	if p.cfg.Ignore.AddonsGitignore {
		owned = owned.Add(p.cfg.AddonsPath(), true)
	}
	return owned
}

// ApplyIgnores creates the project ignore file if it does not exist and
// marks the build directory for the Godot importer. It reports whether the
// ignore file was created.
func (p *Provisioner) ApplyIgnores() (bool, error) {
	created, err := ignore.Apply(p.OwnedPaths(), p.cfg.IgnoreFilePath())
	if err != nil {
		return false, err
	}
	if p.cfg.Ignore.BuildDir {
		if err := ignore.MarkDirectory(p.cfg.BuildPath()); err != nil {
			return created, err
		}
	}
	return created, nil
}

// Clean removes the build directory and, when the build directory is
// ignored, recreates it with its marker.
func (p *Provisioner) Clean() error {
	dir := p.cfg.BuildPath()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dir, err)
	}
	logging.Info("removed build directory", "path", dir)
	if p.cfg.Ignore.BuildDir {
		return ignore.MarkDirectory(dir)
	}
	return nil
}
