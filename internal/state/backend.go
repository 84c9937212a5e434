package state

import (
	"context"
	"fmt"
)

// Backend defines the interface for manifest storage backends.
type Backend interface {
	// Read loads the manifest from the backend.
	Read(ctx context.Context) (*Manifest, error)

	// Write saves the manifest to the backend.
	Write(ctx context.Context, manifest *Manifest) error

	// Lock acquires an exclusive lock on the manifest.
	Lock(ctx context.Context) error

	// Unlock releases the lock on the manifest.
	Unlock(ctx context.Context) error
}

// BackendConfig holds configuration for a manifest backend.
type BackendConfig struct {
	Type string // "local" or "s3"
	Path string // local manifest path
	S3   S3BackendConfig
}

// S3BackendConfig holds configuration for the S3 manifest backend.
type S3BackendConfig struct {
	Bucket        string `yaml:"bucket" pkl:"bucket"`
	Key           string `yaml:"key" pkl:"key"`
	Region        string `yaml:"region" pkl:"region"`
	DynamoDBTable string `yaml:"dynamodb_table" pkl:"dynamodbTable"` // for locking
	Encrypt       bool   `yaml:"encrypt" pkl:"encrypt"`
	Profile       string `yaml:"profile" pkl:"profile"`
}

// NewBackend creates a manifest backend from configuration.
func NewBackend(ctx context.Context, cfg *BackendConfig) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backend configuration is nil")
	}

	switch cfg.Type {
	case "local", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("local backend requires a manifest path")
		}
		return NewManager(cfg.Path), nil
	case "s3":
		return newS3Backend(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}

// WithLock runs fn while holding the backend lock.
func WithLock(ctx context.Context, b Backend, fn func() error) (err error) {
	if err := b.Lock(ctx); err != nil {
		return err
	}
	defer func() {
		if uerr := b.Unlock(ctx); uerr != nil && err == nil {
			err = uerr
		}
	}()
	return fn()
}
