package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// DefaultManifestPath is the manifest location relative to the project root.
const DefaultManifestPath = ".godle/addons.lock.json"

// Manager handles reading and writing of the manifest on the local disk.
type Manager struct {
	path   string
	lockID string
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the manifest file path.
func (m *Manager) Path() string {
	return m.path
}

// Read loads the manifest from the configured path.
// A missing file yields an empty manifest.
func (m *Manager) Read(ctx context.Context) (*Manifest, error) {
	raw, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewManifest(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", m.path, err)
	}

	manifest, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest from %s: %w", m.path, err)
	}
	return manifest, nil
}

// Write saves the manifest to the configured path. The file is replaced
// atomically so a concurrent reader never sees a partial document.
func (m *Manager) Write(ctx context.Context, manifest *Manifest) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	content, err := encode(manifest)
	if err != nil {
		return err
	}

	tmp := m.path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return fmt.Errorf("failed to write manifest file %s: %w", m.path, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write manifest file %s: %w", m.path, err)
	}

	return nil
}
