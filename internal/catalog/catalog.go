// Package catalog provides access to the add-on catalog: published versions,
// their dependencies and their download locations.
package catalog

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by errors for unknown add-ons or versions.
var ErrNotFound = errors.New("not found")

// Declaration requests an add-on by name within a version constraint.
type Declaration struct {
	Name    string `yaml:"name" json:"name" pkl:"name"`
	Version string `yaml:"version,omitempty" json:"version,omitempty" pkl:"version"`
}

func (d Declaration) String() string {
	if d.Version == "" {
		return d.Name
	}
	return d.Name + "@" + d.Version
}

// Download locates an add-on archive.
type Download struct {
	URL      string
	Checksum string
}

// Client is the catalog capability the resolver and installer consume.
// Unknown names and versions fail with an error wrapping ErrNotFound; any
// other failure is a *CatalogError.
type Client interface {
	ListVersions(ctx context.Context, name string) ([]string, error)
	GetDependencies(ctx context.Context, name, version string) ([]Declaration, error)
	GetDownload(ctx context.Context, name, version string) (Download, error)
}

// CatalogError reports an upstream catalog failure.
type CatalogError struct {
	Op   string
	Name string
	Err  error
}

func (e *CatalogError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("catalog %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the add-on or version does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func notFound(name, version string) error {
	if version == "" {
		return fmt.Errorf("addon %q: %w", name, ErrNotFound)
	}
	return fmt.Errorf("addon %q version %q: %w", name, version, ErrNotFound)
}
