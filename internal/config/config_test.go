package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  request_timeout_seconds: 5
auth:
  enabled: true
  api_key: secret
crawler:
  sites: [freelancer, truelancer]
  concurrency: 6
  limit: 50
  shuffle: false
  rps: 0.5
  hosts:
    - host: www.freelancer.com
      rps: 0.2
http:
  timeout_seconds: 45
  max_retries: 4
headless:
  enabled: true
  max_parallel: 2
  wait_ms: 1500
store:
  backend: Postgres
  postgres:
    dsn: postgres://localhost/freelance
output:
  mode: jsonl
  dir: out
export:
  bucket: crawl-exports
logging:
  development: false
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout())
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, []string{"freelancer", "truelancer"}, cfg.Crawler.Sites)
	assert.Equal(t, 50, cfg.Crawler.Limit)
	assert.False(t, cfg.Crawler.Shuffle)
	assert.InDelta(t, 0.2, cfg.Crawler.HostRPS()["www.freelancer.com"], 1e-9)
	assert.Equal(t, 45*time.Second, cfg.FetchTimeout())
	assert.Equal(t, 1500, cfg.Headless.WaitMs)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, OutputJSONL, cfg.Output.Mode)
	// A bucket without a provider selects GCS.
	assert.Equal(t, ExportGCS, cfg.Export.Provider)
	assert.Equal(t, "crawls", cfg.Export.Prefix)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendMongo, cfg.Store.Backend)
	assert.Equal(t, "freelance", cfg.Store.Mongo.Database)
	assert.Equal(t, OutputStore, cfg.Output.Mode)
	assert.Equal(t, "fixtures", cfg.Taxonomy.Dir)
	assert.True(t, cfg.Crawler.Shuffle)
	assert.Equal(t, ExportNone, cfg.Export.Provider)
	assert.Empty(t, cfg.Schedule.CrawlCron)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

// Not parallel: mutates the process environment.
func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FREELANCE_CRAWLER_STORE_BACKEND", "memory")
	t.Setenv("FREELANCE_CRAWLER_SERVER_PORT", "7070")
	t.Setenv("FREELANCE_CRAWLER_SCHEDULE_CRAWL_CRON", "@daily")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "@daily", cfg.Schedule.CrawlCron)
}

// Not parallel: changes the working directory and environment.
func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("FREELANCE_CRAWLER_PUBSUB_TOPIC=from-dotenv\nFREELANCE_CRAWLER_OUTPUT_DIR=base\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"),
		[]byte("FREELANCE_CRAWLER_OUTPUT_DIR=local\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("FREELANCE_CRAWLER_PUBSUB_TOPIC", "")
	t.Setenv("FREELANCE_CRAWLER_OUTPUT_DIR", "")
	require.NoError(t, os.Unsetenv("FREELANCE_CRAWLER_PUBSUB_TOPIC"))
	require.NoError(t, os.Unsetenv("FREELANCE_CRAWLER_OUTPUT_DIR"))

	require.NoError(t, LoadDotEnv())
	assert.Equal(t, "from-dotenv", os.Getenv("FREELANCE_CRAWLER_PUBSUB_TOPIC"))
	// .env.local is read first and wins.
	assert.Equal(t, "local", os.Getenv("FREELANCE_CRAWLER_OUTPUT_DIR"))
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Crawler: CrawlerConfig{Concurrency: 1},
		HTTP:    HTTPConfig{TimeoutSeconds: 10},
		Store:   StoreConfig{Backend: BackendMemory},
		Output:  OutputConfig{Mode: OutputStore},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid concurrency", func(c *Config) { c.Crawler.Concurrency = 0 }, "crawler.concurrency"},
		{"negative limit", func(c *Config) { c.Crawler.Limit = -1 }, "crawler.limit"},
		{"invalid timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"negative retries", func(c *Config) { c.HTTP.MaxRetries = -1 }, "http.max_retries"},
		{"headless missing max parallel", func(c *Config) {
			c.Headless.Enabled = true
			c.Headless.MaxParallel = 0
		}, "headless.max_parallel"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }, "store.backend"},
		{"mongo without uri", func(c *Config) { c.Store.Backend = BackendMongo }, "store.mongo.uri"},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = BackendPostgres }, "store.postgres.dsn"},
		{"unknown output", func(c *Config) { c.Output.Mode = "csv" }, "output mode"},
		{"jsonl without dir", func(c *Config) { c.Output.Mode = OutputJSONL }, "output.dir"},
		{"gcs without bucket", func(c *Config) { c.Export.Provider = ExportGCS }, "export.bucket"},
		{"local without dir", func(c *Config) { c.Export.Provider = ExportLocal }, "export.local_dir"},
		{"unknown export", func(c *Config) { c.Export.Provider = "s3" }, "export.provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
