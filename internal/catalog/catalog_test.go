package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `
addons:
  - name: dialogic
    versions:
      - version: 1.2.0
        url: https://example.com/dialogic-1.2.0.zip
        dependencies:
          - {name: godot-utils, version: "^2.0"}
      - version: 2.0.0
        url: https://example.com/dialogic-2.0.0.zip
        checksum: sha256:abc
  - name: godot-utils
    versions:
      - version: 2.0.0
        url: https://example.com/utils-2.0.0.zip
`

type stubFetcher struct {
	calls atomic.Int32
	data  []byte
	err   error
}

func (f *stubFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	f.calls.Add(1)
	return f.data, f.err
}

func TestIndexClient(t *testing.T) {
	f := &stubFetcher{data: []byte(sampleCatalog)}
	c := NewIndexClient("https://example.com/catalog.yaml", f)
	ctx := context.Background()

	versions, err := c.ListVersions(ctx, "dialogic")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.2.0", "2.0.0"}, versions)

	deps, err := c.GetDependencies(ctx, "dialogic", "1.2")
	require.NoError(t, err)
	assert.Equal(t, []Declaration{{Name: "godot-utils", Version: "^2.0"}}, deps)

	dl, err := c.GetDownload(ctx, "dialogic", "2.0.0")
	require.NoError(t, err)
	assert.Equal(t, Download{URL: "https://example.com/dialogic-2.0.0.zip", Checksum: "sha256:abc"}, dl)

	assert.Equal(t, int32(1), f.calls.Load(), "index is fetched once")
}

func TestIndexClient_NotFound(t *testing.T) {
	c := NewIndexClient("catalog.yaml", &stubFetcher{data: []byte(sampleCatalog)})
	ctx := context.Background()

	_, err := c.ListVersions(ctx, "missing")
	assert.True(t, IsNotFound(err))

	_, err = c.GetDownload(ctx, "dialogic", "9.9.9")
	assert.True(t, IsNotFound(err))

	var catErr *CatalogError
	assert.False(t, errors.As(err, &catErr))
}

func TestIndexClient_UpstreamFailure(t *testing.T) {
	c := NewIndexClient("catalog.yaml", &stubFetcher{err: errors.New("connection refused")})

	_, err := c.ListVersions(context.Background(), "dialogic")
	var catErr *CatalogError
	require.True(t, errors.As(err, &catErr))
	assert.Equal(t, "load", catErr.Op)
	assert.False(t, IsNotFound(err))
}

func TestParseDocument_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing name":       `addons: [{versions: []}]`,
		"duplicate":          `addons: [{name: a}, {name: a}]`,
		"missing url":        `addons: [{name: a, versions: [{version: 1.0.0}]}]`,
		"bad dep constraint": `addons: [{name: a, versions: [{version: 1.0.0, url: u, dependencies: [{name: b, version: ">>1"}]}]}]`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDocument([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestMemoryClient_Publish(t *testing.T) {
	c := NewMemoryClient(nil)
	c.Publish("a", VersionEntry{Version: "1.0.0", URL: "u1"})
	c.Publish("a", VersionEntry{Version: "1.0", URL: "u2"})

	versions, err := c.ListVersions(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0"}, versions)

	dl, err := c.GetDownload(context.Background(), "a", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "u2", dl.URL)
}
