// Package state persists the installed add-on manifest.
package state

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ManifestVersion is the current on-disk format version.
const ManifestVersion = 1

// AddonRecord describes one installed add-on.
type AddonRecord struct {
	Version     string `json:"version"`
	InstallPath string `json:"install_path"`
	ContentHash string `json:"content_hash"`
}

// Manifest maps add-on names to what is installed. It is safe for concurrent
// use by installer workers.
type Manifest struct {
	mu sync.RWMutex

	version int
	lineage string
	serial  int
	addons  map[string]AddonRecord
}

type manifestJSON struct {
	Version int                    `json:"version"`
	Lineage string                 `json:"lineage"`
	Serial  int                    `json:"serial"`
	Addons  map[string]AddonRecord `json:"addons"`
}

// NewManifest returns an empty manifest with a fresh lineage.
func NewManifest() *Manifest {
	return &Manifest{
		version: ManifestVersion,
		lineage: uuid.NewString(),
		addons:  make(map[string]AddonRecord),
	}
}

// Lineage identifies the manifest across serial increments.
func (m *Manifest) Lineage() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lineage
}

// Serial is incremented on every write.
func (m *Manifest) Serial() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.serial
}

// Get returns the record for name.
func (m *Manifest) Get(name string) (AddonRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.addons[name]
	return r, ok
}

// Set records name as installed.
func (m *Manifest) Set(name string, r AddonRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addons[name] = r
}

// Delete forgets name.
func (m *Manifest) Delete(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.addons, name)
}

// Names returns the recorded add-on names in sorted order.
func (m *Manifest) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.addons))
	for n := range m.addons {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of recorded add-ons.
func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.addons)
}

func (m *Manifest) MarshalJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(manifestJSON{
		Version: m.version,
		Lineage: m.lineage,
		Serial:  m.serial,
		Addons:  m.addons,
	})
}

func (m *Manifest) UnmarshalJSON(data []byte) error {
	var raw manifestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Version > ManifestVersion {
		return fmt.Errorf("manifest version %d is newer than supported version %d", raw.Version, ManifestVersion)
	}
	if raw.Addons == nil {
		raw.Addons = make(map[string]AddonRecord)
	}
	if raw.Lineage == "" {
		raw.Lineage = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version = ManifestVersion
	m.lineage = raw.Lineage
	m.serial = raw.Serial
	m.addons = raw.Addons
	return nil
}

// encode bumps the serial and renders the manifest for storage.
func encode(m *Manifest) ([]byte, error) {
	m.mu.Lock()
	m.serial++
	m.mu.Unlock()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}

func decode(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return m, nil
}
