package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func fastRetry() *RetryPolicy {
	return &RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDownload_VerifiesChecksum(t *testing.T) {
	payload := []byte("engine-binary")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	d := New(NewMux(srv.Client()), WithRetryPolicy(fastRetry()))
	dir := t.TempDir()

	res, err := d.Download(context.Background(), Source{URL: srv.URL + "/godot.zip", Checksum: sha256Hex(payload)}, dir)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), res.Size)
	assert.Equal(t, "sha256:"+sha256Hex(payload), res.Digest.String())

	got, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDownload_ChecksumMismatchRemovesTemp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tampered"))
	}))
	defer srv.Close()

	d := New(NewMux(srv.Client()), WithRetryPolicy(fastRetry()))
	dir := t.TempDir()

	_, err := d.Download(context.Background(), Source{URL: srv.URL, Checksum: "sha256:" + sha256Hex([]byte("original"))}, dir)
	require.Error(t, err)

	var integrityErr *IntegrityError
	require.True(t, errors.As(err, &integrityErr))
	assert.Equal(t, "sha256:"+sha256Hex([]byte("original")), integrityErr.Expected)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary file must be discarded")
}

func TestDownload_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := New(NewMux(srv.Client()), WithRetryPolicy(fastRetry()))
	res, err := d.Download(context.Background(), Source{URL: srv.URL}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Size)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownload_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := New(NewMux(srv.Client()), WithRetryPolicy(fastRetry()))
	_, err := d.Download(context.Background(), Source{URL: srv.URL}, t.TempDir())
	require.Error(t, err)

	var dlErr *DownloadError
	require.True(t, errors.As(err, &dlErr))
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestDownload_InvalidChecksum(t *testing.T) {
	d := New(NewMux(nil))
	_, err := d.Download(context.Background(), Source{URL: "http://unused", Checksum: "nothex"}, t.TempDir())
	var dlErr *DownloadError
	require.True(t, errors.As(err, &dlErr))
}

func TestFetch_LocalPath(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "index.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"releases":[]}`), 0644))

	d := New(NewMux(nil))
	data, err := d.Fetch(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, `{"releases":[]}`, string(data))

	data, err = d.Fetch(context.Background(), "file://"+filepath.ToSlash(p))
	require.NoError(t, err)
	assert.Equal(t, `{"releases":[]}`, string(data))
}

func TestMux_UnknownScheme(t *testing.T) {
	_, err := NewMux(nil).Open(context.Background(), "gopher://example.com/x")
	assert.Error(t, err)
}

func TestParseChecksum(t *testing.T) {
	hex256 := sha256Hex([]byte("x"))

	d, err := ParseChecksum(hex256)
	require.NoError(t, err)
	assert.Equal(t, "sha256:"+hex256, d.String())

	d, err = ParseChecksum("SHA256:" + hex256)
	require.NoError(t, err)
	assert.Equal(t, "sha256:"+hex256, d.String())

	for _, bad := range []string{"", "abc", "zz" + hex256[2:], "md5:abcd"} {
		_, err := ParseChecksum(bad)
		assert.Error(t, err, bad)
	}
}

func TestFilenameFromURL(t *testing.T) {
	tests := map[string]string{
		"https://example.com/4.1.2/Godot_v4.1.2-stable_linux.x86_64.zip": "Godot_v4.1.2-stable_linux.x86_64.zip",
		"https://example.com/a.zip?token=1":                               "a.zip",
		"s3://bucket/engines/godot.zip":                                   "godot.zip",
		"https://example.com/dir/":                                        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, FilenameFromURL(in), in)
	}
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := ParseS3URL("s3://mirror/godot/4.1.2/linux.zip")
	require.NoError(t, err)
	assert.Equal(t, "mirror", bucket)
	assert.Equal(t, "godot/4.1.2/linux.zip", key)

	_, _, err = ParseS3URL("s3://mirror")
	assert.Error(t, err)
	_, _, err = ParseS3URL("https://mirror/key")
	assert.Error(t, err)
}

func TestIsTransientError(t *testing.T) {
	assert.True(t, IsTransientError(&StatusError{Code: 502}))
	assert.True(t, IsTransientError(&StatusError{Code: 429}))
	assert.False(t, IsTransientError(&StatusError{Code: 404}))
	assert.True(t, IsTransientError(errors.New("read: connection reset by peer")))
	assert.False(t, IsTransientError(context.Canceled))
	assert.False(t, IsTransientError(nil))
}
