package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := DefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, int64(50*1024*1024), cfg.File.MaxSize)
	assert.Equal(t, []string{"log", "txt"}, cfg.File.AllowedTypes)
	assert.Equal(t, 1000, cfg.Processing.BatchSize)
	assert.Equal(t, 30, cfg.Processing.RetentionDays)
	assert.Equal(t, 4, cfg.Processing.ThreadPool.CoreSize)
	assert.Equal(t, 10, cfg.Processing.ThreadPool.MaxSize)
	assert.Equal(t, []string{"localhost:9000"}, cfg.ClickHouse.Addresses)
	assert.Equal(t, "data/jobs.db", cfg.SQLite.Path)
	assert.Equal(t, 24*time.Hour, cfg.SQLite.JobTTL)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  address: ":9090"
file:
  max-size: 1048576
  allowed-types: [log, txt, out]
processing:
  batch-size: 500
  retention-days: 7
  thread-pool:
    core-size: 2
    max-size: 6
clickhouse:
  addresses: ["ch1:9000", "ch2:9000"]
  database: logs
  username: ingest
  compression: true
sqlite:
  path: /var/lib/logscanner/jobs.db
  job-ttl: 48h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, int64(1048576), cfg.File.MaxSize)
	assert.Equal(t, []string{"log", "txt", "out"}, cfg.File.AllowedTypes)
	assert.Equal(t, 500, cfg.Processing.BatchSize)
	assert.Equal(t, 7, cfg.Processing.RetentionDays)
	assert.Equal(t, 2, cfg.Processing.ThreadPool.CoreSize)
	assert.Equal(t, 6, cfg.Processing.ThreadPool.MaxSize)
	assert.Equal(t, []string{"ch1:9000", "ch2:9000"}, cfg.ClickHouse.Addresses)
	assert.Equal(t, "logs", cfg.ClickHouse.Database)
	assert.True(t, cfg.ClickHouse.Compression)
	assert.Equal(t, "/var/lib/logscanner/jobs.db", cfg.SQLite.Path)
	assert.Equal(t, 48*time.Hour, cfg.SQLite.JobTTL)

	assert.Equal(t, "ingest", cfg.ClickHouse.Username)

	// Unset fields still get defaults.
	assert.Equal(t, 8192, cfg.Processing.BufferSize)
}

func TestLoadConfigDefaultsUnsetFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: \":7070\"\n"), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, 1000, cfg.Processing.BatchSize)
	assert.Equal(t, []string{"localhost:9000"}, cfg.ClickHouse.Addresses)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "tls without cert",
			mutate:  func(c *Config) { c.Server.TLS.Enabled = true },
			wantErr: "cert_file",
		},
		{
			name: "tls without key",
			mutate: func(c *Config) {
				c.Server.TLS.Enabled = true
				c.Server.TLS.CertFile = "server.crt"
			},
			wantErr: "key_file",
		},
		{
			name:    "negative max size",
			mutate:  func(c *Config) { c.File.MaxSize = -1 },
			wantErr: "max-size",
		},
		{
			name:    "pool max below core",
			mutate:  func(c *Config) { c.Processing.ThreadPool.CoreSize = 20 },
			wantErr: "max-size must be >= core-size",
		},
		{
			name:    "no clickhouse addresses",
			mutate:  func(c *Config) { c.ClickHouse.Addresses = nil },
			wantErr: "clickhouse.addresses",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.setDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("LOGSCANNER_SERVER_ADDRESS", ":6060")
	t.Setenv("LOGSCANNER_MAX_FILE_SIZE", "2048")
	t.Setenv("LOGSCANNER_ALLOWED_TYPES", "log, txt, trace")
	t.Setenv("LOGSCANNER_CLICKHOUSE_ADDR", "ch:9000")
	t.Setenv("LOGSCANNER_CLICKHOUSE_PASSWORD", "secret")
	t.Setenv("LOGSCANNER_SQLITE_PATH", "/tmp/jobs.db")

	cfg, err := DefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, ":6060", cfg.Server.Address)
	assert.Equal(t, int64(2048), cfg.File.MaxSize)
	assert.Equal(t, []string{"log", "txt", "trace"}, cfg.File.AllowedTypes)
	assert.Equal(t, []string{"ch:9000"}, cfg.ClickHouse.Addresses)
	assert.Equal(t, "secret", cfg.ClickHouse.Password)
	assert.Equal(t, "/tmp/jobs.db", cfg.SQLite.Path)
}

func TestConfigEnvInvalidMaxFileSize(t *testing.T) {
	t.Setenv("LOGSCANNER_MAX_FILE_SIZE", "lots")

	_, err := DefaultConfig()
	assert.Error(t, err)
}
