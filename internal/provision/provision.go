// Package provision wires configuration, cache, catalog and manifest storage
// into the explicit stages a build runs: resolve and fetch the engine, run it,
// plan and install add-ons, and maintain ignore files.
package provision

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/godle-io/godle/internal/addon"
	"github.com/godle-io/godle/internal/cache"
	"github.com/godle-io/godle/internal/catalog"
	"github.com/godle-io/godle/internal/config"
	"github.com/godle-io/godle/internal/download"
	"github.com/godle-io/godle/internal/platform"
	"github.com/godle-io/godle/internal/state"
)

// Provisioner runs provisioning stages for one project configuration. A
// Provisioner is safe for concurrent use; its cache deduplicates downloads
// shared between stages.
type Provisioner struct {
	cfg        *config.Config
	platform   platform.ID
	downloader *download.Downloader
	cache      *cache.Cache
	catalog    catalog.Client
	events     addon.EventCallback

	backendOnce sync.Once
	backend     state.Backend
	backendErr  error
}

// Option configures a Provisioner.
type Option func(*options)

type options struct {
	platform  *platform.ID
	transport download.Transport
	retry     *download.RetryPolicy
	catalog   catalog.Client
	backend   state.Backend
	events    addon.EventCallback
}

// WithPlatform overrides host platform detection.
func WithPlatform(p platform.ID) Option {
	return func(o *options) { o.platform = &p }
}

// WithTransport replaces the default http/https/file/s3 transport.
func WithTransport(t download.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithRetryPolicy overrides the download retry policy.
func WithRetryPolicy(p *download.RetryPolicy) Option {
	return func(o *options) { o.retry = p }
}

// WithCatalog replaces the index-backed catalog client.
func WithCatalog(c catalog.Client) Option {
	return func(o *options) { o.catalog = c }
}

// WithBackend replaces the configured manifest backend.
func WithBackend(b state.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithEvents registers an add-on install progress callback.
func WithEvents(cb addon.EventCallback) Option {
	return func(o *options) { o.events = cb }
}

// New builds a Provisioner for cfg, which must already be validated.
func New(cfg *config.Config, opts ...Option) (*Provisioner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	p := &Provisioner{cfg: cfg, events: o.events, backend: o.backend}

	if o.platform != nil {
		p.platform = *o.platform
	} else {
		host, err := platform.Detect()
		if err != nil {
			return nil, err
		}
		p.platform = host
	}

	transport := o.transport
	if transport == nil {
		mux := download.NewMux(http.DefaultClient)
		mux.Register("s3", download.NewS3Transport(cfg.S3.Region, cfg.S3.Profile))
		transport = mux
	}
	var dopts []download.Option
	if o.retry != nil {
		dopts = append(dopts, download.WithRetryPolicy(o.retry))
	}
	p.downloader = download.New(transport, dopts...)
	p.cache = cache.New(cfg.CachePath(), p.downloader)

	p.catalog = o.catalog
	if p.catalog == nil && cfg.Catalog != "" {
		p.catalog = catalog.NewIndexClient(cfg.Source(cfg.Catalog), p.downloader)
	}
	return p, nil
}

// Config returns the configuration the Provisioner was built with.
func (p *Provisioner) Config() *config.Config {
	return p.cfg
}

// Platform returns the platform engine assets are selected for.
func (p *Provisioner) Platform() platform.ID {
	return p.platform
}

// Cache returns the artifact cache.
func (p *Provisioner) Cache() *cache.Cache {
	return p.cache
}

func (p *Provisioner) manifestBackend(ctx context.Context) (state.Backend, error) {
	p.backendOnce.Do(func() {
		if p.backend != nil {
			return
		}
		p.backend, p.backendErr = state.NewBackend(ctx, p.cfg.Backend())
	})
	return p.backend, p.backendErr
}
