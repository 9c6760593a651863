package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PAPER_CONFIG", "PORT", "PRICE_SOURCE", "HYPERLIQUID_API_URL", "HYPERLIQUID_WS_URL",
	"PRICE_STREAM", "POLL_INTERVAL", "PRICE_MAX_AGE", "STORAGE_DRIVER", "STORAGE_DIR",
	"SQLITE_PATH", "POSTGRES_DSN", "TELEGRAM_BOT_TOKEN", "AUTHORIZED_USER_ID",
	"SHORT_POLICY", "LOG_LEVEL", "DEFAULT_SYMBOL", "WATCHLIST",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, SourceHyperliquid, cfg.PriceSource)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.PriceMaxAge)
	assert.Equal(t, "file", cfg.StorageDriver)
	assert.Equal(t, "stop", cfg.ShortPolicy)
	assert.Equal(t, "BTC", cfg.DefaultSymbol)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "paper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
price_source: binance
poll_interval: 5s
price_max_age: 1m
storage_driver: sqlite
sqlite_path: /tmp/ledger.db
short_policy: remainder
watchlist: [BTC, kPEPE]
`), 0o644))

	t.Setenv("PAPER_CONFIG", path)
	t.Setenv("PORT", "7070")
	t.Setenv("PRICE_STREAM", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, SourceBinance, cfg.PriceSource)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Minute, cfg.PriceMaxAge)
	assert.Equal(t, "sqlite", cfg.StorageDriver)
	assert.Equal(t, "/tmp/ledger.db", cfg.SQLitePath)
	assert.Equal(t, "remainder", cfg.ShortPolicy)
	assert.Equal(t, []string{"BTC", "kPEPE"}, cfg.Watchlist)
	assert.False(t, cfg.StreamEnabled)
}

func TestLoadEnvErrors(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"POLL_INTERVAL", "often"},
		{"PRICE_MAX_AGE", "-"},
		{"AUTHORIZED_USER_ID", "me"},
		{"PRICE_STREAM", "maybe"},
		{"STORAGE_DRIVER", "redis"},
		{"PRICE_SOURCE", "kraken"},
		{"SHORT_POLICY", "always"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PAPER_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"Defaults", func(*Config) {}, false},
		{"Memory", func(c *Config) { c.StorageDriver = "memory" }, false},
		{"PostgresNoDSN", func(c *Config) { c.StorageDriver = "postgres" }, true},
		{"FileNoDir", func(c *Config) { c.StorageDir = "" }, true},
		{"ZeroPoll", func(c *Config) { c.PollInterval = 0 }, true},
		{"MaxAgeBelowPoll", func(c *Config) { c.PriceMaxAge = time.Second }, true},
		{"TokenWithoutUser", func(c *Config) { c.TelegramToken = "t" }, true},
		{"TokenWithUser", func(c *Config) { c.TelegramToken = "t"; c.AuthorizedUserID = 42 }, false},
		{"BadStreamURL", func(c *Config) { c.StreamURL = "http://x" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"BTC", "ETH"}, splitList(" BTC, ,ETH "))
	assert.Nil(t, splitList(" , "))
}
