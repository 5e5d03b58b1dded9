// Package config loads uirun.yaml and applies UIRUN_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/uirun/pkg/artifacts"
	"github.com/ormasoftchile/uirun/pkg/resolve"
	"github.com/ormasoftchile/uirun/pkg/schema"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "uirun.yaml"

// Config is the process-level configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Browser   BrowserConfig   `yaml:"browser"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Events    EventsConfig    `yaml:"events"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	RunStore  RunStoreConfig  `yaml:"runstore"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BrowserConfig supplies defaults for run options a request leaves unset.
type BrowserConfig struct {
	Engine         schema.BrowserKind `yaml:"engine"`
	Headless       *bool              `yaml:"headless"`
	TimeoutMS      int                `yaml:"timeout_ms"`
	ViewportWidth  int                `yaml:"viewport_width"`
	ViewportHeight int                `yaml:"viewport_height"`
	// Install downloads browser binaries on first launch.
	Install bool `yaml:"install"`
}

type ResolverConfig struct {
	StrategyTimeout time.Duration `yaml:"strategy_timeout"`
}

type EventsConfig struct {
	// JSONL appends every event to this file when set.
	JSONL string     `yaml:"jsonl"`
	NATS  NATSConfig `yaml:"nats"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type ArtifactsConfig struct {
	Dir   string                 `yaml:"dir"`
	MinIO *artifacts.MinIOConfig `yaml:"minio"`
}

type RunStoreConfig struct {
	Path string `yaml:"path"`
}

type MetricsConfig struct {
	// Addr serves /metrics when set, e.g. ":9090".
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	headless := true
	return &Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Browser: BrowserConfig{
			Engine:         schema.BrowserChromium,
			Headless:       &headless,
			TimeoutMS:      schema.DefaultTimeoutMS,
			ViewportWidth:  schema.DefaultViewportWidth,
			ViewportHeight: schema.DefaultViewportHeight,
		},
		Resolver: ResolverConfig{StrategyTimeout: resolve.DefaultStrategyTimeout},
	}
}

// Load reads path (a missing file yields defaults when path is the default
// path or empty) and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != "" && path != DefaultPath
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(bytes.NewReader(data), cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config: %w", err)
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without reading the environment.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("structural decode: %w", err)
	}
	return nil
}

// ApplyEnv overlays UIRUN_* variables read through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("UIRUN_LOG_LEVEL", &cfg.Log.Level)
	str("UIRUN_LOG_FORMAT", &cfg.Log.Format)
	if v, ok := lookup("UIRUN_BROWSER"); ok && v != "" {
		cfg.Browser.Engine = schema.BrowserKind(strings.ToLower(v))
	}
	if v, ok := lookup("UIRUN_HEADLESS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("UIRUN_HEADLESS: %w", err)
		}
		cfg.Browser.Headless = &b
	}
	if v, ok := lookup("UIRUN_TIMEOUT_MS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("UIRUN_TIMEOUT_MS: %w", err)
		}
		cfg.Browser.TimeoutMS = n
	}
	if v, ok := lookup("UIRUN_STRATEGY_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("UIRUN_STRATEGY_TIMEOUT: %w", err)
		}
		cfg.Resolver.StrategyTimeout = d
	}
	str("UIRUN_EVENTS_JSONL", &cfg.Events.JSONL)
	str("UIRUN_NATS_URL", &cfg.Events.NATS.URL)
	str("UIRUN_NATS_SUBJECT_PREFIX", &cfg.Events.NATS.SubjectPrefix)
	str("UIRUN_ARTIFACT_DIR", &cfg.Artifacts.Dir)
	str("UIRUN_RUNSTORE", &cfg.RunStore.Path)
	str("UIRUN_METRICS_ADDR", &cfg.Metrics.Addr)

	if v, ok := lookup("UIRUN_MINIO_ENDPOINT"); ok && v != "" {
		if cfg.Artifacts.MinIO == nil {
			cfg.Artifacts.MinIO = &artifacts.MinIOConfig{}
		}
		cfg.Artifacts.MinIO.Endpoint = v
	}
	if m := cfg.Artifacts.MinIO; m != nil {
		str("UIRUN_MINIO_ACCESS_KEY", &m.AccessKey)
		str("UIRUN_MINIO_SECRET_KEY", &m.SecretKey)
		str("UIRUN_MINIO_BUCKET", &m.Bucket)
		str("UIRUN_MINIO_REGION", &m.Region)
	}
	return nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	switch c.Browser.Engine {
	case schema.BrowserChromium, schema.BrowserFirefox, schema.BrowserWebKit:
	default:
		return fmt.Errorf("browser.engine: unsupported browser %q", c.Browser.Engine)
	}
	if c.Browser.TimeoutMS < 0 {
		return fmt.Errorf("browser.timeout_ms must not be negative")
	}
	if c.Resolver.StrategyTimeout < 0 {
		return fmt.Errorf("resolver.strategy_timeout must not be negative")
	}
	if c.Artifacts.MinIO != nil {
		if err := c.Artifacts.MinIO.Validate(); err != nil {
			return fmt.Errorf("artifacts.minio: %w", err)
		}
	}
	return nil
}

// RunOptions fills fields the request left unset from the browser config.
func (c *Config) RunOptions(req *schema.RunOptions) schema.RunOptions {
	var o schema.RunOptions
	if req != nil {
		o = *req
	}
	if o.Browser == "" {
		o.Browser = c.Browser.Engine
	}
	if o.Headless == nil && c.Browser.Headless != nil {
		h := *c.Browser.Headless
		o.Headless = &h
	}
	if o.Timeout <= 0 {
		o.Timeout = c.Browser.TimeoutMS
	}
	if o.Viewport == nil && c.Browser.ViewportWidth > 0 && c.Browser.ViewportHeight > 0 {
		o.Viewport = &schema.Viewport{Width: c.Browser.ViewportWidth, Height: c.Browser.ViewportHeight}
	}
	return o.WithDefaults()
}
