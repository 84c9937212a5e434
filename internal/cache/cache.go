// Package cache is a content-addressed on-disk artifact store with at most
// one in-flight download per key.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/godle-io/godle/internal/download"
	"github.com/godle-io/godle/internal/logging"
)

// Key deterministically identifies a downloadable artifact.
type Key string

// KeyFor derives a key from the identifying parts of an artifact. The same
// parts always yield the same key.
func KeyFor(parts ...string) Key {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// State is the lifecycle state of a cache entry.
type State int

const (
	Absent State = iota
	Pending
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "absent"
	}
}

// Entry is the cache's view of one key.
type Entry struct {
	Key       Key
	LocalPath string
	State     State
}

// Downloader fetches a source into a temporary file in dir.
type Downloader interface {
	Download(ctx context.Context, src download.Source, dir string) (*download.Result, error)
}

// readyMarker is written next to a published artifact once it is complete.
const readyMarker = ".ready"

type marker struct {
	Filename string `json:"filename"`
	Digest   string `json:"digest"`
}

// Cache maps keys to verified local files under root.
//
// Layout:
//
//	{root}/
//	  tmp/                      in-progress downloads
//	  {key[0:2]}/{key}/
//	    {filename}
//	    .ready                  {"filename": ..., "digest": ...}
type Cache struct {
	root       string
	downloader Downloader

	group singleflight.Group

	mu      sync.Mutex
	entries map[Key]*Entry
}

// New creates a cache rooted at root.
func New(root string, d Downloader) *Cache {
	return &Cache{
		root:       root,
		downloader: d,
		entries:    make(map[Key]*Entry),
	}
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// Dir returns the directory holding the entry for key.
func (c *Cache) Dir(key Key) string {
	k := string(key)
	shard := k
	if len(k) > 2 {
		shard = k[:2]
	}
	return filepath.Join(c.root, shard, k)
}

// Fetch returns the local path of the artifact for key, downloading src if no
// verified copy exists. Concurrent callers for the same key share one
// download and all receive its outcome. Failures are not remembered: the next
// call starts over.
func (c *Cache) Fetch(ctx context.Context, key Key, src download.Source) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty cache key")
	}
	filename := src.Filename
	if filename == "" {
		filename = download.FilenameFromURL(src.URL)
	}
	if filename == "" {
		filename = "artifact"
	}
	if strings.ContainsAny(filename, `/\`) || filename == ".." || filename == readyMarker {
		return "", fmt.Errorf("invalid artifact filename %q", filename)
	}

	if p, ok := c.lookup(key, filename, src.Checksum); ok {
		logging.Debug("cache hit", "key", string(key), "path", p)
		c.setEntry(key, p, Ready)
		return p, nil
	}

	// The flight outlives any single caller; each caller only stops waiting
	// when its own context ends.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(string(key), func() (any, error) {
		// A concurrent flight may have published while we were checking.
		if p, ok := c.lookup(key, filename, src.Checksum); ok {
			c.setEntry(key, p, Ready)
			return p, nil
		}
		c.setEntry(key, "", Pending)
		p, err := c.populate(flightCtx, key, filename, src)
		if err != nil {
			c.setEntry(key, "", Failed)
			return "", err
		}
		c.setEntry(key, p, Ready)
		return p, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Cache) populate(ctx context.Context, key Key, filename string, src download.Source) (string, error) {
	logging.Debug("cache miss, downloading", "key", string(key), "url", src.URL)

	res, err := c.downloader.Download(ctx, src, filepath.Join(c.root, "tmp"))
	if err != nil {
		return "", err
	}
	defer os.Remove(res.Path)

	dir := c.Dir(key)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to clear cache entry %s: %w", key, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache entry %s: %w", key, err)
	}

	final := filepath.Join(dir, filename)
	if err := os.Rename(res.Path, final); err != nil {
		return "", fmt.Errorf("failed to publish %s: %w", final, err)
	}

	data, err := json.Marshal(marker{Filename: filename, Digest: res.Digest.String()})
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(filepath.Join(dir, readyMarker), data); err != nil {
		return "", fmt.Errorf("failed to mark cache entry %s ready: %w", key, err)
	}
	return final, nil
}

// lookup returns the published path for key if its ready marker exists,
// names filename, and agrees with checksum when one is given.
func (c *Cache) lookup(key Key, filename, checksum string) (string, bool) {
	dir := c.Dir(key)
	data, err := os.ReadFile(filepath.Join(dir, readyMarker))
	if err != nil {
		return "", false
	}
	var m marker
	if err := json.Unmarshal(data, &m); err != nil || m.Filename != filename {
		return "", false
	}
	if checksum != "" {
		want, err := download.ParseChecksum(checksum)
		if err != nil || want.String() != m.Digest {
			return "", false
		}
	}
	p := filepath.Join(dir, filename)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

func (c *Cache) setEntry(key Key, path string, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &Entry{Key: key, LocalPath: path, State: state}
}

// Entry reports the in-process state of key. Keys never requested in this
// process report Absent even if a copy exists on disk.
func (c *Cache) Entry(key Key) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return *e
	}
	return Entry{Key: key, State: Absent}
}

// Evict removes the entry for key from disk and memory.
func (c *Cache) Evict(key Key) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	if err := os.RemoveAll(c.Dir(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to evict %s: %w", key, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
