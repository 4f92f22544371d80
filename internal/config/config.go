// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Pagination strategies.
const (
	StrategySequential = "sequential"
	StrategyParallel   = "parallel"
)

// Batch run modes.
const (
	ModeNew      = "new"
	ModeContinue = "continue"
)

// Storage backends.
const (
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendMinIO    = "minio"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Storage    StorageConfig    `mapstructure:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlerConfig describes the remote site and how requests identify themselves.
type CrawlerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RespectRobots  bool          `mapstructure:"respect_robots"`
}

// FetchConfig controls retries and request pressure.
type FetchConfig struct {
	MaxRetries        int           `mapstructure:"max_retries"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	MaxInflight       int           `mapstructure:"max_inflight"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// PaginationConfig controls how one entity's pages are walked.
type PaginationConfig struct {
	Strategy  string        `mapstructure:"strategy"`
	BatchSize int           `mapstructure:"batch_size"`
	Workers   int           `mapstructure:"workers"`
	MinDelay  time.Duration `mapstructure:"min_delay"`
	MaxDelay  time.Duration `mapstructure:"max_delay"`
	MaxPages  int           `mapstructure:"max_pages"`
}

// BatchConfig controls the entity-level worker pool and the run loop.
type BatchConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	Count       int    `mapstructure:"count"`
	Size        int    `mapstructure:"size"`
	Mode        string `mapstructure:"mode"`
}

// DiscoveryConfig paces the popular-members walk.
type DiscoveryConfig struct {
	MinDelay time.Duration `mapstructure:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend             string         `mapstructure:"backend"`
	Prefix              string         `mapstructure:"prefix"`
	TestMode            bool           `mapstructure:"test_mode"`
	Versioning          bool           `mapstructure:"versioning"`
	SnapshotCompression string         `mapstructure:"snapshot_compression"`
	Local               LocalConfig    `mapstructure:"local"`
	GCS                 GCSConfig      `mapstructure:"gcs"`
	MinIO               MinIOConfig    `mapstructure:"minio"`
	Postgres            PostgresConfig `mapstructure:"postgres"`
}

// LocalConfig is the filesystem backend root.
type LocalConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSConfig names the bucket used by the GCS backend.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// MinIOConfig configures an S3-compatible backend.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// PostgresConfig controls access to the relational backend.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for batch notifications. Empty topic disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// MetricsConfig sets the ops listener address. Empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RATINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("crawler.base_url", "https://letterboxd.com")
	v.SetDefault("crawler.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36")
	v.SetDefault("crawler.request_timeout", 10*time.Second)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("fetch.max_retries", 5)
	v.SetDefault("fetch.base_delay", 2*time.Second)
	v.SetDefault("fetch.max_inflight", 25)
	v.SetDefault("fetch.requests_per_second", 0.0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("pagination.strategy", StrategyParallel)
	v.SetDefault("pagination.batch_size", 5)
	v.SetDefault("pagination.workers", 5)
	v.SetDefault("pagination.min_delay", 500*time.Millisecond)
	v.SetDefault("pagination.max_delay", 1500*time.Millisecond)
	v.SetDefault("pagination.max_pages", 0)
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("batch.count", 2)
	v.SetDefault("batch.size", 10)
	v.SetDefault("batch.mode", ModeContinue)
	v.SetDefault("discovery.min_delay", 500*time.Millisecond)
	v.SetDefault("discovery.max_delay", 1500*time.Millisecond)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.test_mode", false)
	v.SetDefault("storage.versioning", true)
	v.SetDefault("storage.snapshot_compression", "none")
	v.SetDefault("storage.local.base_dir", "data_output")
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.BaseURL == "" {
		return fmt.Errorf("crawler.base_url is required")
	}
	if c.Crawler.RequestTimeout <= 0 {
		return fmt.Errorf("crawler.request_timeout must be > 0")
	}
	if c.Fetch.MaxRetries <= 0 {
		return fmt.Errorf("fetch.max_retries must be > 0")
	}
	if c.Fetch.BaseDelay < 0 {
		return fmt.Errorf("fetch.base_delay must be >= 0")
	}
	if c.Fetch.MaxInflight <= 0 {
		return fmt.Errorf("fetch.max_inflight must be > 0")
	}
	if c.Fetch.RequestsPerSecond < 0 {
		return fmt.Errorf("fetch.requests_per_second must be >= 0")
	}
	switch c.Pagination.Strategy {
	case StrategySequential, StrategyParallel:
	default:
		return fmt.Errorf("pagination.strategy must be %q or %q", StrategySequential, StrategyParallel)
	}
	if c.Pagination.BatchSize <= 0 {
		return fmt.Errorf("pagination.batch_size must be > 0")
	}
	if c.Pagination.Workers <= 0 {
		return fmt.Errorf("pagination.workers must be > 0")
	}
	if c.Pagination.MinDelay > c.Pagination.MaxDelay {
		return fmt.Errorf("pagination.min_delay must be <= pagination.max_delay")
	}
	if c.Pagination.MaxPages < 0 {
		return fmt.Errorf("pagination.max_pages must be >= 0")
	}
	if c.Batch.Concurrency <= 0 {
		return fmt.Errorf("batch.concurrency must be > 0")
	}
	if c.Batch.Count <= 0 || c.Batch.Size <= 0 {
		return fmt.Errorf("batch.count and batch.size must be > 0")
	}
	switch c.Batch.Mode {
	case ModeNew, ModeContinue:
	default:
		return fmt.Errorf("batch.mode must be %q or %q", ModeNew, ModeContinue)
	}
	if c.Discovery.MinDelay > c.Discovery.MaxDelay {
		return fmt.Errorf("discovery.min_delay must be <= discovery.max_delay")
	}
	return c.Storage.validate()
}

func (s StorageConfig) validate() error {
	switch s.SnapshotCompression {
	case "", "none", "zstd":
	default:
		return fmt.Errorf("storage.snapshot_compression must be none or zstd")
	}
	switch s.Backend {
	case BackendLocal:
		if s.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	case BackendGCS:
		if s.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required for the gcs backend")
		}
	case BackendMinIO:
		if s.MinIO.Endpoint == "" || s.MinIO.Bucket == "" {
			return fmt.Errorf("storage.minio.endpoint and storage.minio.bucket are required for the minio backend")
		}
	case BackendPostgres:
		if s.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend %q is not supported", s.Backend)
	}
	return nil
}

// InflightDemand is the worst-case number of concurrent requests implied by
// the entity and page pool widths.
func (c Config) InflightDemand() int {
	inner := 1
	if c.Pagination.Strategy == StrategyParallel {
		inner = c.Pagination.Workers
	}
	return c.Batch.Concurrency * inner
}

// EffectivePrefix returns the storage prefix, sandboxed under test/ in test mode.
func (s StorageConfig) EffectivePrefix() string {
	prefix := strings.Trim(s.Prefix, "/")
	if !s.TestMode {
		return prefix
	}
	if prefix == "" {
		return "test"
	}
	return prefix + "/test"
}
