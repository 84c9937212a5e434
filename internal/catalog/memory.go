package catalog

import (
	"context"
	"sync"

	ver "github.com/godle-io/godle/internal/version"
)

// MemoryClient is a catalog held in memory.
type MemoryClient struct {
	mu     sync.RWMutex
	addons map[string][]VersionEntry
}

// NewMemoryClient builds a client from doc. A nil doc yields an empty catalog.
func NewMemoryClient(doc *Document) *MemoryClient {
	c := &MemoryClient{addons: make(map[string][]VersionEntry)}
	if doc != nil {
		for _, a := range doc.Addons {
			c.addons[a.Name] = append([]VersionEntry(nil), a.Versions...)
		}
	}
	return c
}

// Publish adds or replaces one version of an add-on.
func (c *MemoryClient) Publish(name string, v VersionEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	versions := c.addons[name]
	for i := range versions {
		if ver.SameVersion(versions[i].Version, v.Version) {
			versions[i] = v
			return
		}
	}
	c.addons[name] = append(versions, v)
}

func (c *MemoryClient) ListVersions(ctx context.Context, name string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	versions, ok := c.addons[name]
	if !ok {
		return nil, notFound(name, "")
	}
	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.Version
	}
	return out, nil
}

func (c *MemoryClient) GetDependencies(ctx context.Context, name, version string) ([]Declaration, error) {
	v, err := c.lookup(name, version)
	if err != nil {
		return nil, err
	}
	return append([]Declaration(nil), v.Dependencies...), nil
}

func (c *MemoryClient) GetDownload(ctx context.Context, name, version string) (Download, error) {
	v, err := c.lookup(name, version)
	if err != nil {
		return Download{}, err
	}
	return Download{URL: v.URL, Checksum: v.Checksum}, nil
}

func (c *MemoryClient) lookup(name, version string) (VersionEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	versions, ok := c.addons[name]
	if !ok {
		return VersionEntry{}, notFound(name, "")
	}
	for _, v := range versions {
		if ver.SameVersion(v.Version, version) {
			return v, nil
		}
	}
	return VersionEntry{}, notFound(name, version)
}
