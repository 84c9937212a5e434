package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Transport opens a readable stream for a source URL.
type Transport interface {
	Open(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Mux dispatches to a transport by URL scheme. URLs without a scheme, and
// file:// URLs, are read from the local filesystem.
type Mux struct {
	mu      sync.RWMutex
	schemes map[string]Transport
}

// NewMux returns a Mux with http, https and file transports registered.
func NewMux(client *http.Client) *Mux {
	m := &Mux{schemes: make(map[string]Transport)}
	h := NewHTTPTransport(client)
	m.Register("http", h)
	m.Register("https", h)
	m.Register("file", FileTransport{})
	return m
}

// Register installs t for scheme, replacing any previous registration.
func (m *Mux) Register(scheme string, t Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemes[strings.ToLower(scheme)] = t
}

func (m *Mux) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	scheme := schemeOf(rawURL)
	if scheme == "" {
		return FileTransport{}.Open(ctx, rawURL)
	}

	m.mu.RLock()
	t, ok := m.schemes[scheme]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported URL scheme %q", scheme)
	}
	return t.Open(ctx, rawURL)
}

// schemeOf returns the lower-cased scheme, or "" for plain paths. Windows
// drive letters ("C:\...") are treated as paths.
func schemeOf(rawURL string) string {
	i := strings.Index(rawURL, "://")
	if i <= 1 {
		return ""
	}
	return strings.ToLower(rawURL[:i])
}

// HTTPTransport fetches http and https URLs.
type HTTPTransport struct {
	client *http.Client
}

func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
			},
		}
	}
	return &HTTPTransport{client: client}
}

func (t *HTTPTransport) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "godle")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return resp.Body, nil
}

// FileTransport reads local paths and file:// URLs.
type FileTransport struct{}

func (FileTransport) Open(_ context.Context, rawURL string) (io.ReadCloser, error) {
	path := rawURL
	if schemeOf(rawURL) == "file" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("invalid file URL %q: %w", rawURL, err)
		}
		path = filepath.FromSlash(u.Path)
	}
	return os.Open(path)
}
