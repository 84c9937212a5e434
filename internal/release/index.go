// Package release loads engine release indices and resolves a version spec
// to one downloadable asset.
package release

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/godle-io/godle/internal/platform"
	"github.com/godle-io/godle/internal/version"
)

// Entry is one downloadable asset in a release index document.
type Entry struct {
	Version  string `yaml:"version"`
	Channel  string `yaml:"channel,omitempty"`
	Platform string `yaml:"platform"`
	URL      string `yaml:"url"`
	Filename string `yaml:"filename,omitempty"`
	Checksum string `yaml:"checksum,omitempty"`
}

// Index is a parsed release index.
type Index struct {
	Releases []Entry `yaml:"releases"`

	parsed []asset
}

type asset struct {
	version  version.Version
	platform platform.ID
	entry    *Entry
}

// Fetcher reads a document by URL or local path.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// LoadIndex reads the index at source. A nil fetcher restricts source to a
// local file path.
func LoadIndex(ctx context.Context, source string, f Fetcher) (*Index, error) {
	var (
		data []byte
		err  error
	)
	if f == nil {
		data, err = os.ReadFile(source)
	} else {
		data, err = f.Fetch(ctx, source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read release index %s: %w", source, err)
	}
	idx, err := ParseIndex(data)
	if err != nil {
		return nil, fmt.Errorf("invalid release index %s: %w", source, err)
	}
	return idx, nil
}

// ParseIndex decodes a YAML or JSON release index and validates every entry.
func ParseIndex(data []byte) (*Index, error) {
	var idx Index
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, err
	}
	if err := idx.index(); err != nil {
		return nil, err
	}
	return &idx, nil
}

// NewIndex builds an index from entries.
func NewIndex(entries ...Entry) (*Index, error) {
	idx := &Index{Releases: entries}
	if err := idx.index(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) index() error {
	idx.parsed = make([]asset, 0, len(idx.Releases))
	for i := range idx.Releases {
		e := &idx.Releases[i]
		if e.URL == "" {
			return fmt.Errorf("release %d (%s): missing url", i, e.Version)
		}
		v, err := version.ParseVersion(e.Version)
		if err != nil {
			return fmt.Errorf("release %d: %w", i, err)
		}
		if e.Channel != "" {
			v.Channel = version.ParseChannel(e.Channel)
		}
		p, err := platform.Parse(e.Platform)
		if err != nil {
			return fmt.Errorf("release %d (%s): %w", i, e.Version, err)
		}
		idx.parsed = append(idx.parsed, asset{version: v, platform: p, entry: e})
	}
	return nil
}
