package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godle-io/godle/internal/download"
)

// countingDownloader writes fixed content and counts calls. An optional gate
// holds every download until it is closed.
type countingDownloader struct {
	calls   atomic.Int32
	content []byte
	gate    chan struct{}
	failN   int32
}

func (d *countingDownloader) Download(ctx context.Context, src download.Source, dir string) (*download.Result, error) {
	n := d.calls.Add(1)
	if d.gate != nil {
		<-d.gate
	}
	if n <= d.failN {
		return nil, &download.DownloadError{URL: src.URL, Err: errors.New("connection reset")}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, "download-*.part")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Write(d.content); err != nil {
		return nil, err
	}
	return &download.Result{Path: f.Name(), Digest: digest.FromBytes(d.content), Size: int64(len(d.content))}, nil
}

func TestKeyFor_Deterministic(t *testing.T) {
	a := KeyFor("engine", "4.1.2-stable", "linux/x86_64")
	b := KeyFor("engine", "4.1.2-stable", "linux/x86_64")
	c := KeyFor("engine", "4.1.2-stable", "windows/x86_64")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, KeyFor("ab", "c"), KeyFor("a", "bc"))
}

func TestFetch_CacheHitSkipsDownload(t *testing.T) {
	d := &countingDownloader{content: []byte("payload")}
	c := New(t.TempDir(), d)
	key := KeyFor("addon", "dialogic", "2.0")
	src := download.Source{URL: "https://example.com/dialogic.zip"}

	p1, err := c.Fetch(context.Background(), key, src)
	require.NoError(t, err)
	p2, err := c.Fetch(context.Background(), key, src)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, "dialogic.zip", filepath.Base(p1))
	assert.Equal(t, int32(1), d.calls.Load())
	assert.Equal(t, Ready, c.Entry(key).State)

	// A fresh cache over the same root sees the published entry.
	c2 := New(c.Root(), d)
	p3, err := c2.Fetch(context.Background(), key, src)
	require.NoError(t, err)
	assert.Equal(t, p1, p3)
	assert.Equal(t, int32(1), d.calls.Load())
}

func TestFetch_ConcurrentSingleFlight(t *testing.T) {
	d := &countingDownloader{content: []byte("payload"), gate: make(chan struct{})}
	c := New(t.TempDir(), d)
	key := KeyFor("engine", "4.1.2")
	src := download.Source{URL: "https://example.com/godot.zip"}

	const n = 16
	var wg sync.WaitGroup
	paths := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = c.Fetch(context.Background(), key, src)
		}(i)
	}

	require.Eventually(t, func() bool { return c.Entry(key).State == Pending }, time.Second, time.Millisecond)
	// Let stragglers join the in-flight call before releasing it.
	time.Sleep(20 * time.Millisecond)
	close(d.gate)
	wg.Wait()

	assert.Equal(t, int32(1), d.calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, paths[0], paths[i])
	}
}

func TestFetch_FailureIsNotCached(t *testing.T) {
	d := &countingDownloader{content: []byte("payload"), failN: 1}
	c := New(t.TempDir(), d)
	key := KeyFor("engine", "4.0")
	src := download.Source{URL: "https://example.com/godot.zip"}

	_, err := c.Fetch(context.Background(), key, src)
	require.Error(t, err)
	assert.Equal(t, Failed, c.Entry(key).State)

	p, err := c.Fetch(context.Background(), key, src)
	require.NoError(t, err)
	assert.FileExists(t, p)
	assert.Equal(t, int32(2), d.calls.Load())
}

func TestFetch_StaleChecksumRefetches(t *testing.T) {
	d := &countingDownloader{content: []byte("v1")}
	c := New(t.TempDir(), d)
	key := KeyFor("engine", "4.1")

	_, err := c.Fetch(context.Background(), key, download.Source{URL: "https://x/godot.zip"})
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("v1"))
	_, err = c.Fetch(context.Background(), key, download.Source{URL: "https://x/godot.zip", Checksum: hex.EncodeToString(sum[:])})
	require.NoError(t, err)
	assert.Equal(t, int32(1), d.calls.Load(), "matching checksum is a hit")

	other := sha256.Sum256([]byte("v2"))
	_, err = c.Fetch(context.Background(), key, download.Source{URL: "https://x/godot.zip", Checksum: hex.EncodeToString(other[:])})
	require.NoError(t, err)
	assert.Equal(t, int32(2), d.calls.Load(), "different checksum forces a download")
}

func TestFetch_ExplicitFilenameAndValidation(t *testing.T) {
	d := &countingDownloader{content: []byte("x")}
	c := New(t.TempDir(), d)

	p, err := c.Fetch(context.Background(), KeyFor("a"), download.Source{URL: "https://x/dl?id=3", Filename: "godot.zip"})
	require.NoError(t, err)
	assert.Equal(t, "godot.zip", filepath.Base(p))

	_, err = c.Fetch(context.Background(), KeyFor("b"), download.Source{URL: "https://x/a", Filename: "../escape"})
	assert.Error(t, err)

	_, err = c.Fetch(context.Background(), "", download.Source{URL: "https://x/a"})
	assert.Error(t, err)
}

func TestEvict(t *testing.T) {
	d := &countingDownloader{content: []byte("x")}
	c := New(t.TempDir(), d)
	key := KeyFor("a")
	src := download.Source{URL: "https://x/a.zip"}

	_, err := c.Fetch(context.Background(), key, src)
	require.NoError(t, err)
	require.NoError(t, c.Evict(key))
	assert.Equal(t, Absent, c.Entry(key).State)
	assert.NoDirExists(t, c.Dir(key))

	_, err = c.Fetch(context.Background(), key, src)
	require.NoError(t, err)
	assert.Equal(t, int32(2), d.calls.Load())
}

func TestFetch_WaiterHonorsOwnContext(t *testing.T) {
	d := &countingDownloader{content: []byte("x"), gate: make(chan struct{})}
	c := New(t.TempDir(), d)
	key := KeyFor("slow")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Fetch(ctx, key, download.Source{URL: "https://x/slow.zip"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Drain the background flight before the temp dir is removed.
	close(d.gate)
	require.Eventually(t, func() bool { return c.Entry(key).State == Ready }, time.Second, time.Millisecond)
}

// ctxDownloader blocks until released or until its context ends.
type ctxDownloader struct {
	started chan struct{}
	release chan struct{}
	content []byte
}

func (d *ctxDownloader) Download(ctx context.Context, src download.Source, dir string) (*download.Result, error) {
	close(d.started)
	select {
	case <-ctx.Done():
		return nil, &download.DownloadError{URL: src.URL, Err: ctx.Err()}
	case <-d.release:
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, "download-*.part")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Write(d.content); err != nil {
		return nil, err
	}
	return &download.Result{Path: f.Name(), Digest: digest.FromBytes(d.content), Size: int64(len(d.content))}, nil
}

func TestFetch_CancelledCallerDoesNotFailOthers(t *testing.T) {
	d := &ctxDownloader{started: make(chan struct{}), release: make(chan struct{}), content: []byte("x")}
	c := New(t.TempDir(), d)
	key := KeyFor("shared")
	src := download.Source{URL: "https://x/a.zip"}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Fetch(firstCtx, key, src)
		firstErr <- err
	}()
	<-d.started

	type result struct {
		path string
		err  error
	}
	second := make(chan result, 1)
	go func() {
		p, err := c.Fetch(context.Background(), key, src)
		second <- result{p, err}
	}()
	// Give the second caller time to join the flight.
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(d.release)
	res := <-second
	require.NoError(t, res.err)
	assert.FileExists(t, res.path)
	assert.Equal(t, Ready, c.Entry(key).State)
}

func TestFetch_ChecksumMismatchIsNotCached(t *testing.T) {
	root := t.TempDir()
	srcPath := filepath.Join(t.TempDir(), "godot.zip")
	require.NoError(t, os.WriteFile(srcPath, []byte("tampered"), 0644))

	d := download.New(download.NewMux(nil), download.WithRetryPolicy(download.NoRetry()))
	c := New(root, d)
	key := KeyFor("engine", "4.2")
	sum := sha256.Sum256([]byte("original"))
	src := download.Source{URL: srcPath, Filename: "godot.zip", Checksum: hex.EncodeToString(sum[:])}

	_, err := c.Fetch(context.Background(), key, src)
	var integrityErr *download.IntegrityError
	require.ErrorAs(t, err, &integrityErr)
	assert.Equal(t, Failed, c.Entry(key).State)
	assert.NoDirExists(t, c.Dir(key))
	leftovers, err := os.ReadDir(filepath.Join(root, "tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	require.NoError(t, os.WriteFile(srcPath, []byte("original"), 0644))
	p, err := c.Fetch(context.Background(), key, src)
	require.NoError(t, err)
	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)
	assert.Equal(t, Ready, c.Entry(key).State)
}
