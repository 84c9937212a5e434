// Package config loads the godle project configuration.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/godle-io/godle/internal/addon"
	"github.com/godle-io/godle/internal/catalog"
	"github.com/godle-io/godle/internal/executor"
	"github.com/godle-io/godle/internal/state"
	"github.com/godle-io/godle/internal/version"
)

// CacheDirEnv overrides cache_dir when set.
const CacheDirEnv = "GODLE_CACHE_DIR"

// DefaultFiles are searched, in order, when no config path is given.
var DefaultFiles = []string{"godle.yml", "godle.yaml", "godle.pkl"}

// Config is the desired engine and add-on setup of one project.
type Config struct {
	// Version is the engine version expression, e.g. "4", "4.2-rc" or "latest".
	Version      string `yaml:"version" pkl:"version"`
	ReleaseIndex string `yaml:"release_index" pkl:"releaseIndex"`
	Catalog      string `yaml:"catalog,omitempty" pkl:"catalog"`

	CacheDir   string `yaml:"cache_dir,omitempty" pkl:"cacheDir"`
	ProjectDir string `yaml:"project_dir,omitempty" pkl:"projectDir"`
	AddonsDir  string `yaml:"addons_dir,omitempty" pkl:"addonsDir"`
	BuildDir   string `yaml:"build_dir,omitempty" pkl:"buildDir"`

	Addons        []catalog.Declaration `yaml:"addons,omitempty" pkl:"addons"`
	UpgradePolicy string                `yaml:"upgrade_policy,omitempty" pkl:"upgradePolicy"`
	Workers       int                   `yaml:"workers,omitempty" pkl:"workers"`

	DebugFlag string   `yaml:"debug_flag,omitempty" pkl:"debugFlag"`
	ExtraArgs []string `yaml:"extra_args,omitempty" pkl:"extraArgs"`

	Manifest ManifestConfig `yaml:"manifest,omitempty" pkl:"manifest"`
	S3       S3SourceConfig `yaml:"s3,omitempty" pkl:"s3"`
	Ignore   IgnoreConfig   `yaml:"ignore,omitempty" pkl:"ignore"`

	// dir is the directory relative paths are resolved against.
	dir string
}

// ManifestConfig selects where the installed add-on manifest lives.
type ManifestConfig struct {
	Backend string                `yaml:"backend,omitempty" pkl:"backend"` // "local" or "s3"
	Path    string                `yaml:"path,omitempty" pkl:"path"`
	S3      state.S3BackendConfig `yaml:"s3,omitempty" pkl:"s3"`
}

// S3SourceConfig configures downloads from s3:// URLs.
type S3SourceConfig struct {
	Region  string `yaml:"region,omitempty" pkl:"region"`
	Profile string `yaml:"profile,omitempty" pkl:"profile"`
}

// IgnoreConfig toggles ignore file management.
type IgnoreConfig struct {
	BuildDir        bool   `yaml:"build_dir" pkl:"buildDir"`
	AddonsGitignore bool   `yaml:"addons_gitignore" pkl:"addonsGitignore"`
	File            string `yaml:"file,omitempty" pkl:"file"`
}

// Default returns a configuration with every optional field set.
func Default() *Config {
	return &Config{
		Version:       "latest",
		ProjectDir:    ".",
		AddonsDir:     "addons",
		BuildDir:      "build",
		UpgradePolicy: string(addon.Upgrade),
		Workers:       addon.DefaultWorkers,
		DebugFlag:     executor.DefaultDebugFlag,
		Manifest: ManifestConfig{
			Backend: "local",
			Path:    state.DefaultManifestPath,
		},
		Ignore: IgnoreConfig{
			BuildDir:        true,
			AddonsGitignore: true,
			File:            ".gitignore",
		},
		dir: ".",
	}
}

// Find returns the first default config file present in dir.
func Find(dir string) (string, error) {
	for _, name := range DefaultFiles {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no config file found in %s (looked for %s)", dir, strings.Join(DefaultFiles, ", "))
}

// Load reads, defaults and validates the config at path. The decoder is
// chosen by extension: .pkl is evaluated with pkl, anything else is YAML.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pkl":
		if err := loadPkl(ctx, path, cfg); err != nil {
			return nil, err
		}
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	cfg.dir = abs
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if dir := os.Getenv(CacheDirEnv); dir != "" {
		c.CacheDir = dir
	}
}

// Validate fills empty fields with defaults and rejects invalid values.
func (c *Config) Validate() error {
	def := Default()
	if c.Version == "" {
		c.Version = def.Version
	}
	if c.ProjectDir == "" {
		c.ProjectDir = def.ProjectDir
	}
	if c.AddonsDir == "" {
		c.AddonsDir = def.AddonsDir
	}
	if c.BuildDir == "" {
		c.BuildDir = def.BuildDir
	}
	if c.UpgradePolicy == "" {
		c.UpgradePolicy = def.UpgradePolicy
	}
	if c.Workers == 0 {
		c.Workers = def.Workers
	}
	if c.DebugFlag == "" {
		c.DebugFlag = def.DebugFlag
	}
	if c.Manifest.Backend == "" {
		c.Manifest.Backend = def.Manifest.Backend
	}
	if c.Manifest.Path == "" {
		c.Manifest.Path = def.Manifest.Path
	}
	if c.Ignore.File == "" {
		c.Ignore.File = def.Ignore.File
	}
	if c.dir == "" {
		c.dir = def.dir
	}

	if _, err := version.Parse(c.Version); err != nil {
		return fmt.Errorf("version: %w", err)
	}
	if c.ReleaseIndex == "" {
		return fmt.Errorf("release_index is required")
	}
	if len(c.Addons) > 0 && c.Catalog == "" {
		return fmt.Errorf("catalog is required when addons are declared")
	}
	if _, err := addon.ParseUpgradePolicy(c.UpgradePolicy); err != nil {
		return fmt.Errorf("upgrade_policy: %w", err)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}

	seen := make(map[string]bool, len(c.Addons))
	for i, d := range c.Addons {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("addons[%d]: name is required", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("addon '%s' is declared more than once", d.Name)
		}
		seen[d.Name] = true
		if _, err := version.ParseConstraint(d.Version); err != nil {
			return fmt.Errorf("addon '%s': %w", d.Name, err)
		}
	}

	switch c.Manifest.Backend {
	case "local":
	case "s3":
		if c.Manifest.S3.Bucket == "" {
			return fmt.Errorf("manifest.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid manifest backend: %s (must be 'local' or 's3')", c.Manifest.Backend)
	}

	if filepath.IsAbs(c.AddonsDir) || filepath.IsAbs(c.BuildDir) {
		return fmt.Errorf("addons_dir and build_dir must be relative to project_dir")
	}
	return nil
}

// Spec returns the parsed engine version expression.
func (c *Config) Spec() version.Spec {
	s, err := version.Parse(c.Version)
	if err != nil {
		return version.MustParse("latest")
	}
	return s
}

// Policy returns the parsed upgrade policy.
func (c *Config) Policy() addon.UpgradePolicy {
	p, err := addon.ParseUpgradePolicy(c.UpgradePolicy)
	if err != nil {
		return addon.Upgrade
	}
	return p
}

// ProjectPath is the absolute project directory.
func (c *Config) ProjectPath() string {
	return c.resolve(c.dir, c.ProjectDir)
}

// AddonsPath is the absolute managed add-ons root.
func (c *Config) AddonsPath() string {
	return filepath.Join(c.ProjectPath(), c.AddonsDir)
}

// BuildPath is the absolute build output directory.
func (c *Config) BuildPath() string {
	return filepath.Join(c.ProjectPath(), c.BuildDir)
}

// IgnoreFilePath is the absolute path of the version-control ignore file.
func (c *Config) IgnoreFilePath() string {
	return c.resolve(c.ProjectPath(), c.Ignore.File)
}

// CachePath is the absolute artifact cache root.
func (c *Config) CachePath() string {
	if c.CacheDir != "" {
		return c.resolve(c.dir, c.CacheDir)
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "godle")
	}
	return filepath.Join(c.ProjectPath(), ".godle", "cache")
}

// Source resolves a release index or catalog location. URLs are returned as
// they are; local paths are made absolute against the config directory.
func (c *Config) Source(s string) string {
	if strings.Contains(s, "://") {
		return s
	}
	return c.resolve(c.dir, s)
}

// Backend returns the manifest backend configuration.
func (c *Config) Backend() *state.BackendConfig {
	return &state.BackendConfig{
		Type: c.Manifest.Backend,
		Path: c.resolve(c.ProjectPath(), c.Manifest.Path),
		S3:   c.Manifest.S3,
	}
}

func (c *Config) resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	abs, err := filepath.Abs(filepath.Join(base, p))
	if err != nil {
		return filepath.Join(base, p)
	}
	return abs
}
