// Package download fetches remote artifacts to local temporary files and
// verifies their integrity.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/godle-io/godle/internal/logging"
)

// Source identifies downloadable content and its optional checksum.
// Filename, when set, names the artifact once stored; otherwise the last
// URL path segment is used.
type Source struct {
	URL      string
	Checksum string
	Filename string
}

// Result describes a verified temporary file.
type Result struct {
	Path   string
	Digest digest.Digest
	Size   int64
}

// Downloader fetches a Source into a temporary file.
type Downloader struct {
	transport Transport
	retry     *RetryPolicy
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithRetryPolicy overrides the transient-error retry policy.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(d *Downloader) { d.retry = p }
}

// New creates a Downloader using transport t.
func New(t Transport, opts ...Option) *Downloader {
	d := &Downloader{transport: t, retry: DefaultRetryPolicy()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Transport returns the underlying transport.
func (d *Downloader) Transport() Transport {
	return d.transport
}

// Download writes src into a new temporary file inside dir and verifies its
// checksum. On any error the temporary file is removed. The caller owns the
// returned file and is responsible for publishing or removing it.
func (d *Downloader) Download(ctx context.Context, src Source, dir string) (*Result, error) {
	var expected digest.Digest
	if src.Checksum != "" {
		var err error
		expected, err = ParseChecksum(src.Checksum)
		if err != nil {
			return nil, &DownloadError{URL: src.URL, Err: err}
		}
	}
	algorithm := digest.Canonical
	if expected != "" {
		algorithm = expected.Algorithm()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &DownloadError{URL: src.URL, Err: fmt.Errorf("failed to create download directory: %w", err)}
	}

	var res *Result
	err := RetryWithBackoff(ctx, d.retry, func() error {
		r, err := d.attempt(ctx, src.URL, dir, algorithm)
		if err != nil {
			return err
		}
		res = r
		return nil
	}, IsTransientError)
	if err != nil {
		return nil, &DownloadError{URL: src.URL, Err: err}
	}

	if expected != "" && res.Digest != expected {
		os.Remove(res.Path)
		return nil, &IntegrityError{URL: src.URL, Expected: expected.String(), Actual: res.Digest.String()}
	}

	logging.Debug("downloaded", "url", src.URL, "bytes", res.Size, "digest", res.Digest.String())
	return res, nil
}

func (d *Downloader) attempt(ctx context.Context, rawURL, dir string, algorithm digest.Algorithm) (_ *Result, err error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()

	body, err := d.transport.Open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(dir, "download-*.part")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	digester := algorithm.Digester()
	n, err := io.Copy(io.MultiWriter(tmp, digester.Hash()), body)
	if err != nil {
		return nil, err
	}
	if err = tmp.Sync(); err != nil {
		return nil, fmt.Errorf("failed to flush %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}

	return &Result{Path: tmp.Name(), Digest: digester.Digest(), Size: n}, nil
}

// Fetch reads the full body of rawURL into memory. It is used for small
// documents (release and catalog indices) that are never cached.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var data []byte
	err := RetryWithBackoff(ctx, d.retry, func() error {
		body, err := d.transport.Open(ctx, rawURL)
		if err != nil {
			return err
		}
		defer body.Close()
		data, err = io.ReadAll(body)
		return err
	}, IsTransientError)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: err}
	}
	return data, nil
}

// FilenameFromURL returns the last path segment of rawURL, or "" if none.
func FilenameFromURL(rawURL string) string {
	trimmed := rawURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	trimmed = strings.ReplaceAll(trimmed, "\\", "/")
	base := path.Base(trimmed)
	if base == "." || base == "/" || strings.HasSuffix(trimmed, "/") || strings.HasSuffix(base, ":") {
		return ""
	}
	return base
}

// IsNotFound reports whether err means the remote resource does not exist.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.NotFound()
	}
	return errors.Is(err, os.ErrNotExist)
}
