package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StaleLockAge is how old a lock file must be before it is considered abandoned.
const StaleLockAge = 10 * time.Minute

// Lock acquires a file lock on the manifest to prevent concurrent modifications.
func (m *Manager) Lock(ctx context.Context) error {
	lockPath := m.lockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	// If lock is older than StaleLockAge, consider it stale
	if info, err := os.Stat(lockPath); err == nil && time.Since(info.ModTime()) > StaleLockAge {
		os.Remove(lockPath)
	}

	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("manifest is locked by another process (lock file: %s). "+
				"If this is an error, remove the lock file manually", lockPath)
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	m.lockID = uuid.NewString()
	content := fmt.Sprintf("id=%s\npid=%d\ntime=%s\n", m.lockID, os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteString(content); err != nil {
		os.Remove(lockPath)
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	return nil
}

// Unlock releases the manifest lock. A lock file held by someone else, for
// example after a stale takeover, is left in place.
func (m *Manager) Unlock(ctx context.Context) error {
	lockPath := m.lockPath()
	if m.lockID != "" {
		if data, err := os.ReadFile(lockPath); err == nil && !strings.Contains(string(data), "id="+m.lockID+"\n") {
			m.lockID = ""
			return nil
		}
	}
	m.lockID = ""
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (m *Manager) lockPath() string {
	return m.path + ".lock"
}
