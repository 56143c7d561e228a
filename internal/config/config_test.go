package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every override Load consults for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "DATABASE_URL", "SQLITE_PATH", "REDIS_URL",
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "ALPACA_DATA_URL", "ALPACA_FEED",
		"APCA_API_KEY_ID", "APCA_API_SECRET_KEY", "ORACLE_SOURCE", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "papertrade.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9090
  request_timeout: 15s
storage:
  database_url: "postgres://localhost/papertrade"
  redis_url: "redis://localhost:6379/0"
  cache_ttl: 1m
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  feed: "sip"
  timeout: 2s
  max_attempts: 4
  retry_delay: 100ms
logging:
  level: "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout, "unset fields keep defaults")
	assert.Equal(t, "postgres://localhost/papertrade", cfg.Storage.DatabaseURL)
	assert.Equal(t, time.Minute, cfg.Storage.CacheTTL)
	assert.Equal(t, "sip", cfg.Alpaca.Feed)
	assert.Equal(t, 2*time.Second, cfg.Alpaca.Timeout)
	assert.Equal(t, 4, cfg.Alpaca.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Alpaca.RetryDelay)
	assert.Equal(t, OracleAlpaca, cfg.OracleSource())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, OracleStatic, cfg.OracleSource())
	assert.Equal(t, 5, cfg.Engine.CASAttempts)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "file-key"
  api_secret: "file-secret"
`)
	t.Setenv("PORT", "7000")
	t.Setenv("SQLITE_PATH", "/tmp/papertrade.db")
	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("APCA_API_KEY_ID", "apca-key")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "/tmp/papertrade.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "apca-key", cfg.Alpaca.APIKey, "APCA_* has the highest priority")
	assert.Equal(t, "file-secret", cfg.Alpaca.APISecret)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not, a, map]"))
	assert.Error(t, err)

	t.Setenv("PORT", "eighty")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"alpaca without secret", func(c *Config) { c.Oracle.Source = OracleAlpaca; c.Alpaca.APIKey = "k" }},
		{"unknown feed", func(c *Config) {
			c.Alpaca.APIKey, c.Alpaca.APISecret, c.Alpaca.Feed = "k", "s", "bloomberg"
		}},
		{"unknown source", func(c *Config) { c.Oracle.Source = "yahoo" }},
		{"bad static price", func(c *Config) { c.Oracle.Prices = map[string]string{"AAPL": "abc"} }},
		{"non-positive static price", func(c *Config) { c.Oracle.Prices = map[string]string{"AAPL": "0"} }},
		{"redis without ttl", func(c *Config) { c.Storage.RedisURL = "redis://x"; c.Storage.CacheTTL = 0 }},
		{"log level", func(c *Config) { c.Logging.Level = "chatty" }},
		{"cas attempts", func(c *Config) { c.Engine.CASAttempts = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestStaticPrices(t *testing.T) {
	cfg := Default()
	cfg.Oracle.Prices = map[string]string{"aapl": "150.25", "MSFT": " 410 "}

	prices, err := cfg.StaticPrices()
	require.NoError(t, err)
	assert.True(t, prices["AAPL"].Equal(decimal.RequireFromString("150.25")))
	assert.True(t, prices["MSFT"].Equal(decimal.NewFromInt(410)))
}
