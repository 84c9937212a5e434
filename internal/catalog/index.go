package catalog

import (
	"context"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/godle-io/godle/internal/logging"
	ver "github.com/godle-io/godle/internal/version"
)

// Document is the catalog index format.
//
//	addons:
//	  - name: dialogic
//	    versions:
//	      - version: 2.0.0
//	        url: https://example.com/dialogic-2.0.0.zip
//	        checksum: sha256:...
//	        dependencies:
//	          - {name: other, version: ">=1.0"}
type Document struct {
	Addons []AddonEntry `yaml:"addons"`
}

type AddonEntry struct {
	Name     string         `yaml:"name"`
	Versions []VersionEntry `yaml:"versions"`
}

type VersionEntry struct {
	Version      string        `yaml:"version"`
	URL          string        `yaml:"url"`
	Checksum     string        `yaml:"checksum,omitempty"`
	Dependencies []Declaration `yaml:"dependencies,omitempty"`
}

// Fetcher reads a document by URL or local path.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// IndexClient serves catalog queries from an index document that is fetched
// once, on first use.
type IndexClient struct {
	source  string
	fetcher Fetcher

	once sync.Once
	mem  *MemoryClient
	err  error
}

// NewIndexClient returns a client over the index at source.
func NewIndexClient(source string, f Fetcher) *IndexClient {
	return &IndexClient{source: source, fetcher: f}
}

func (c *IndexClient) load(ctx context.Context) (*MemoryClient, error) {
	c.once.Do(func() {
		logging.Debug("loading catalog index", "source", c.source)
		data, err := c.fetcher.Fetch(ctx, c.source)
		if err != nil {
			c.err = &CatalogError{Op: "load", Err: err}
			return
		}
		doc, err := ParseDocument(data)
		if err != nil {
			c.err = &CatalogError{Op: "load", Err: fmt.Errorf("invalid catalog index %s: %w", c.source, err)}
			return
		}
		c.mem = NewMemoryClient(doc)
	})
	return c.mem, c.err
}

func (c *IndexClient) ListVersions(ctx context.Context, name string) ([]string, error) {
	mem, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	return mem.ListVersions(ctx, name)
}

func (c *IndexClient) GetDependencies(ctx context.Context, name, version string) ([]Declaration, error) {
	mem, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	return mem.GetDependencies(ctx, name, version)
}

func (c *IndexClient) GetDownload(ctx context.Context, name, version string) (Download, error) {
	mem, err := c.load(ctx)
	if err != nil {
		return Download{}, err
	}
	return mem.GetDownload(ctx, name, version)
}

// ParseDocument decodes and validates a YAML or JSON catalog index.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, a := range doc.Addons {
		if a.Name == "" {
			return nil, fmt.Errorf("addon entry without a name")
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("addon %q listed twice", a.Name)
		}
		seen[a.Name] = true
		for _, v := range a.Versions {
			if v.URL == "" {
				return nil, fmt.Errorf("addon %q version %q: missing url", a.Name, v.Version)
			}
			for _, d := range v.Dependencies {
				if d.Name == "" {
					return nil, fmt.Errorf("addon %q version %q: dependency without a name", a.Name, v.Version)
				}
				if _, err := ver.ParseConstraint(d.Version); err != nil {
					return nil, fmt.Errorf("addon %q version %q: %w", a.Name, v.Version, err)
				}
			}
		}
	}
	return &doc, nil
}
