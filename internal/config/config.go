// Package config loads the runtime configuration from an optional YAML file
// with DISCIPLINARY_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/wolfeidau/disciplinary/internal/bulk"
	"github.com/wolfeidau/disciplinary/internal/lifecycle"
	"github.com/wolfeidau/disciplinary/internal/store/mongo"
	"github.com/wolfeidau/disciplinary/internal/store/postgres"
	"github.com/wolfeidau/disciplinary/internal/summary"
	"github.com/wolfeidau/disciplinary/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config is the root configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	Summary   SummaryConfig   `yaml:"summary"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Bulk      BulkConfig      `yaml:"bulk"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StoreConfig selects and configures the backing document store.
type StoreConfig struct {
	// Backend is one of memory, postgres or mongo.
	// Default: memory
	Backend  string               `yaml:"backend"`
	Postgres postgres.StoreConfig `yaml:"postgres"`
	Mongo    mongo.Config         `yaml:"mongo"`
}

type CacheConfig struct {
	// TTL is how long a cached read stays valid.
	// Default: 5m
	TTL time.Duration `yaml:"ttl"`
}

type SummaryConfig struct {
	// StaleAfter is the age after which a summary is recomputed on read.
	// Default: 1h
	StaleAfter time.Duration `yaml:"stale_after"`

	// RefreshDelay defers background recomputation after a source write.
	// Default: 2s
	RefreshDelay time.Duration `yaml:"refresh_delay"`
}

type LifecycleConfig struct {
	// RetentionDays is the time an archived record is kept before it
	// becomes eligible for permanent deletion.
	// Default: 1825 (5 years)
	RetentionDays int `yaml:"retention_days"`

	// AllowRestoreWhenEligible permits restoring records past retention.
	AllowRestoreWhenEligible bool `yaml:"allow_restore_when_eligible"`
}

type BulkConfig struct {
	// ItemDelay is waited between items.
	// Default: 100ms
	ItemDelay time.Duration `yaml:"item_delay"`

	// MaxAttempts bounds attempts per item including the first.
	// Default: 3
	MaxAttempts int `yaml:"max_attempts"`

	// InitialBackoff is the first retry delay, doubled on every attempt.
	// Default: 500ms
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the retry delay.
	// Default: 10s
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

type TelemetryConfig struct {
	// Enabled starts the OTLP exporters. The endpoint is read from
	// OTEL_EXPORTER_OTLP_ENDPOINT.
	Enabled bool `yaml:"enabled"`

	// SampleRatio is the fraction of root traces sampled.
	// Default: 1
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Load reads the YAML file at path, when path is non-empty, then applies
// environment overrides and defaults and validates the result.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
	switch c.Store.Backend {
	case BackendPostgres:
		c.Store.Postgres.ApplyDefaults()
	case BackendMongo:
		c.Store.Mongo.ApplyDefaults()
	}

	if c.Cache.TTL == 0 {
		c.Cache.TTL = 5 * time.Minute
	}
	if c.Summary.StaleAfter == 0 {
		c.Summary.StaleAfter = summary.DefaultStaleAfter
	}
	if c.Summary.RefreshDelay == 0 {
		c.Summary.RefreshDelay = summary.DefaultRefreshDelay
	}
	if c.Lifecycle.RetentionDays == 0 {
		c.Lifecycle.RetentionDays = int(lifecycle.DefaultRetention / (24 * time.Hour))
	}

	defaults := bulk.DefaultOptions()
	if c.Bulk.ItemDelay == 0 {
		c.Bulk.ItemDelay = defaults.Delay
	}
	if c.Bulk.MaxAttempts == 0 {
		c.Bulk.MaxAttempts = defaults.MaxAttempts
	}
	if c.Bulk.InitialBackoff == 0 {
		c.Bulk.InitialBackoff = defaults.RetryBackoff.InitialInterval
	}
	if c.Bulk.MaxBackoff == 0 {
		c.Bulk.MaxBackoff = defaults.RetryBackoff.MaxInterval
	}

	if c.Telemetry.SampleRatio == 0 {
		c.Telemetry.SampleRatio = 1
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if err := c.Store.Postgres.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("store.postgres: %w", err))
		}
	case BackendMongo:
		if err := c.Store.Mongo.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("store.mongo: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}

	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl must not be negative"))
	}
	if c.Summary.StaleAfter < 0 || c.Summary.RefreshDelay < 0 {
		errs = append(errs, errors.New("summary durations must not be negative"))
	}
	if c.Lifecycle.RetentionDays < 0 {
		errs = append(errs, errors.New("lifecycle.retention_days must not be negative"))
	}
	if c.Bulk.MaxAttempts < 1 {
		errs = append(errs, errors.New("bulk.max_attempts must be at least 1"))
	}
	if c.Bulk.ItemDelay < 0 || c.Bulk.InitialBackoff < 0 || c.Bulk.MaxBackoff < 0 {
		errs = append(errs, errors.New("bulk durations must not be negative"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, errors.New("telemetry.sample_ratio must be between 0 and 1"))
	}

	return errors.Join(errs...)
}

// Retention returns the lifecycle retention period.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Lifecycle.RetentionDays) * 24 * time.Hour
}

func (c *Config) SummaryOptions() summary.Options {
	return summary.Options{
		StaleAfter:   c.Summary.StaleAfter,
		RefreshDelay: c.Summary.RefreshDelay,
	}
}

func (c *Config) LifecycleOptions() lifecycle.Options {
	return lifecycle.Options{
		Retention:                c.Retention(),
		AllowRestoreWhenEligible: c.Lifecycle.AllowRestoreWhenEligible,
	}
}

func (c *Config) BulkOptions() bulk.Options {
	opts := bulk.DefaultOptions()
	opts.Delay = c.Bulk.ItemDelay
	opts.MaxAttempts = c.Bulk.MaxAttempts
	opts.RetryBackoff.InitialInterval = c.Bulk.InitialBackoff
	opts.RetryBackoff.MaxInterval = c.Bulk.MaxBackoff
	return opts
}

func (c *Config) TelemetryConfig(version string) telemetry.Config {
	return telemetry.Config{
		ServiceName: "recordsctl",
		Version:     version,
		SampleRatio: c.Telemetry.SampleRatio,
	}
}

// applyEnv overrides file values with DISCIPLINARY_* environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	overrides := []struct {
		name string
		set  func(string) error
	}{
		{"DISCIPLINARY_STORE_BACKEND", setString(&c.Store.Backend)},
		{"DISCIPLINARY_POSTGRES_CONN_STRING", setString(&c.Store.Postgres.ConnString)},
		{"DISCIPLINARY_POSTGRES_AUTO_MIGRATE", setBool(&c.Store.Postgres.AutoMigrate)},
		{"DISCIPLINARY_MONGO_URI", setString(&c.Store.Mongo.URI)},
		{"DISCIPLINARY_MONGO_DATABASE", setString(&c.Store.Mongo.Database)},
		{"DISCIPLINARY_CACHE_TTL", setDuration(&c.Cache.TTL)},
		{"DISCIPLINARY_SUMMARY_STALE_AFTER", setDuration(&c.Summary.StaleAfter)},
		{"DISCIPLINARY_SUMMARY_REFRESH_DELAY", setDuration(&c.Summary.RefreshDelay)},
		{"DISCIPLINARY_RETENTION_DAYS", setInt(&c.Lifecycle.RetentionDays)},
		{"DISCIPLINARY_ALLOW_RESTORE_WHEN_ELIGIBLE", setBool(&c.Lifecycle.AllowRestoreWhenEligible)},
		{"DISCIPLINARY_BULK_ITEM_DELAY", setDuration(&c.Bulk.ItemDelay)},
		{"DISCIPLINARY_BULK_MAX_ATTEMPTS", setInt(&c.Bulk.MaxAttempts)},
		{"DISCIPLINARY_BULK_INITIAL_BACKOFF", setDuration(&c.Bulk.InitialBackoff)},
		{"DISCIPLINARY_TELEMETRY_ENABLED", setBool(&c.Telemetry.Enabled)},
	}

	for _, o := range overrides {
		v, ok := lookup(o.name)
		if !ok {
			continue
		}
		if err := o.set(v); err != nil {
			return fmt.Errorf("%s: %w", o.name, err)
		}
	}
	return nil
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}
