// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. FREELANCE_CRAWLER_STORE_BACKEND.
const EnvPrefix = "FREELANCE_CRAWLER"

// Store backends.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// Output modes for crawl runs.
const (
	OutputStore = "store"
	OutputJSONL = "jsonl"
)

// Export providers for JSONL files.
const (
	ExportNone  = ""
	ExportGCS   = "gcs"
	ExportLocal = "local"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Taxonomy TaxonomyConfig `mapstructure:"taxonomy"`
	Store    StoreConfig    `mapstructure:"store"`
	Output   OutputConfig   `mapstructure:"output"`
	Export   ExportConfig   `mapstructure:"export"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the reporting API.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs crawl runs.
type CrawlerConfig struct {
	// Sites restricts default runs; empty means every registered site.
	Sites       []string `mapstructure:"sites"`
	Concurrency int      `mapstructure:"concurrency"`
	// Limit caps freelancers per run across all sites; 0 is unlimited.
	Limit     int     `mapstructure:"limit"`
	Shuffle   bool    `mapstructure:"shuffle"`
	UserAgent string  `mapstructure:"user_agent"`
	RPS       float64 `mapstructure:"rps"`
	Burst     int     `mapstructure:"burst"`
	// Hosts overrides RPS for specific hosts. A list rather than a map since
	// viper splits map keys on dots.
	Hosts []HostRate `mapstructure:"hosts"`
}

// HostRate is a per-host request rate.
type HostRate struct {
	Host string  `mapstructure:"host"`
	RPS  float64 `mapstructure:"rps"`
}

// HostRPS indexes the per-host overrides.
func (c CrawlerConfig) HostRPS() map[string]float64 {
	out := make(map[string]float64, len(c.Hosts))
	for _, h := range c.Hosts {
		if h.Host != "" {
			out[strings.ToLower(h.Host)] = h.RPS
		}
	}
	return out
}

// HTTPConfig configures HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	WaitMs        int    `mapstructure:"wait_ms"`
	ExecPath      string `mapstructure:"exec_path"`

	// Promote re-fetches static pages that look like unrendered shells.
	Promote bool `mapstructure:"promote"`

	// PromoteTextThreshold is the visible text length under which a page
	// with shell markers is promoted.
	PromoteTextThreshold int      `mapstructure:"promote_text_threshold"`
	PromoteMarkers       []string `mapstructure:"promote_markers"`
}

// TaxonomyConfig locates the reference data files.
type TaxonomyConfig struct {
	Dir           string `mapstructure:"dir"`
	Countries     string `mapstructure:"countries"`
	Sources       string `mapstructure:"sources"`
	FilterMapping string `mapstructure:"filter_mapping"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend  string         `mapstructure:"backend"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// MongoConfig holds the document store connection.
type MongoConfig struct {
	URI                   string `mapstructure:"uri"`
	Database              string `mapstructure:"database"`
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds"`
}

// PostgresConfig holds the relational store connection.
type PostgresConfig struct {
	DSN         string `mapstructure:"dsn"`
	TablePrefix string `mapstructure:"table_prefix"`
	MaxConns    int32  `mapstructure:"max_conns"`
	MinConns    int32  `mapstructure:"min_conns"`
}

// OutputConfig decides where crawl records go.
type OutputConfig struct {
	Mode string `mapstructure:"mode"`
	Dir  string `mapstructure:"dir"`
}

// ExportConfig uploads JSONL files after a run.
type ExportConfig struct {
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	LocalDir string `mapstructure:"local_dir"`
}

// PubSubConfig holds metadata for run summaries.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ScheduleConfig enables periodic crawls while serving.
type ScheduleConfig struct {
	CrawlCron string `mapstructure:"crawl_cron"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// LoadDotEnv reads .env.local then .env from the working directory. Missing
// files are ignored and existing variables are never overwritten.
func LoadDotEnv() error {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	cfg.Output.Mode = strings.ToLower(strings.TrimSpace(cfg.Output.Mode))
	cfg.Export.Provider = strings.ToLower(strings.TrimSpace(cfg.Export.Provider))
	if cfg.Export.Provider == ExportNone && cfg.Export.Bucket != "" {
		cfg.Export.Provider = ExportGCS
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults keys every field so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("crawler.sites", []string{})
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.limit", 0)
	v.SetDefault("crawler.shuffle", true)
	v.SetDefault("crawler.user_agent",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("crawler.rps", 1.0)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("crawler.hosts", []map[string]any{})
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.wait_ms", 0)
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("headless.promote", true)
	v.SetDefault("headless.promote_text_threshold", 512)
	v.SetDefault("headless.promote_markers", []string{})
	v.SetDefault("taxonomy.dir", "fixtures")
	v.SetDefault("taxonomy.countries", "")
	v.SetDefault("taxonomy.sources", "")
	v.SetDefault("taxonomy.filter_mapping", "")
	v.SetDefault("store.backend", BackendMongo)
	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo.database", "freelance")
	v.SetDefault("store.mongo.connect_timeout_seconds", 10)
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.table_prefix", "")
	v.SetDefault("store.postgres.max_conns", 0)
	v.SetDefault("store.postgres.min_conns", 0)
	v.SetDefault("output.mode", OutputStore)
	v.SetDefault("output.dir", "output")
	v.SetDefault("export.provider", ExportNone)
	v.SetDefault("export.bucket", "")
	v.SetDefault("export.prefix", "crawls")
	v.SetDefault("export.local_dir", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "crawl-runs")
	v.SetDefault("schedule.crawl_cron", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.Limit < 0 {
		return fmt.Errorf("crawler.limit must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendMongo:
		if c.Store.Mongo.URI == "" || c.Store.Mongo.Database == "" {
			return fmt.Errorf("store.mongo.uri and store.mongo.database are required for the mongo backend")
		}
	case BackendPostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not one of memory, mongo, postgres", c.Store.Backend)
	}
	if err := ValidateOutput(c.Output.Mode); err != nil {
		return err
	}
	if c.Output.Mode == OutputJSONL && c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required for jsonl output")
	}
	switch c.Export.Provider {
	case ExportNone:
	case ExportGCS:
		if c.Export.Bucket == "" {
			return fmt.Errorf("export.bucket is required for the gcs export provider")
		}
	case ExportLocal:
		if c.Export.LocalDir == "" {
			return fmt.Errorf("export.local_dir is required for the local export provider")
		}
	default:
		return fmt.Errorf("export.provider %q is not one of gcs, local", c.Export.Provider)
	}
	return nil
}

// ValidateOutput checks an output mode, as given in config or on the command line.
func ValidateOutput(mode string) error {
	switch mode {
	case OutputStore, OutputJSONL:
		return nil
	default:
		return fmt.Errorf("output mode %q is not one of store, jsonl", mode)
	}
}

// RequestTimeout is the per-request deadline of the API.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// FetchTimeout bounds a single static fetch.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
