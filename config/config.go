package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	SourceHyperliquid = "hyperliquid"
	SourceBinance     = "binance"
)

type Config struct {
	Port string `yaml:"port"`

	// Market data
	PriceSource   string        `yaml:"price_source"`
	APIURL        string        `yaml:"api_url"`
	StreamURL     string        `yaml:"stream_url"`
	StreamEnabled bool          `yaml:"stream_enabled"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	PriceMaxAge   time.Duration `yaml:"price_max_age"`

	// Persistence
	StorageDriver string `yaml:"storage_driver"`
	StorageDir    string `yaml:"storage_dir"`
	SQLitePath    string `yaml:"sqlite_path"`
	PostgresDSN   string `yaml:"postgres_dsn"`

	TelegramToken    string `yaml:"-"`
	AuthorizedUserID int64  `yaml:"authorized_user_id"`

	ShortPolicy   string   `yaml:"short_policy"`
	LogLevel      string   `yaml:"log_level"`
	DefaultSymbol string   `yaml:"default_symbol"`
	Watchlist     []string `yaml:"watchlist"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Port:          "8080",
		PriceSource:   SourceHyperliquid,
		StreamEnabled: true,
		PollInterval:  3 * time.Second,
		PriceMaxAge:   30 * time.Second,
		StorageDriver: "file",
		StorageDir:    "data",
		SQLitePath:    "data/paper.db",
		ShortPolicy:   "stop",
		LogLevel:      "info",
		DefaultSymbol: "BTC",
		Watchlist:     []string{"BTC", "ETH", "SOL"},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by PAPER_CONFIG and the environment, in that order.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn(".env file not found, using environment variables")
	}

	cfg := Default()
	if path := os.Getenv("PAPER_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("PORT", &c.Port)
	setString("PRICE_SOURCE", &c.PriceSource)
	setString("HYPERLIQUID_API_URL", &c.APIURL)
	setString("HYPERLIQUID_WS_URL", &c.StreamURL)
	setString("STORAGE_DRIVER", &c.StorageDriver)
	setString("STORAGE_DIR", &c.StorageDir)
	setString("SQLITE_PATH", &c.SQLitePath)
	setString("POSTGRES_DSN", &c.PostgresDSN)
	setString("TELEGRAM_BOT_TOKEN", &c.TelegramToken)
	setString("SHORT_POLICY", &c.ShortPolicy)
	setString("LOG_LEVEL", &c.LogLevel)
	setString("DEFAULT_SYMBOL", &c.DefaultSymbol)

	if v := os.Getenv("PRICE_STREAM"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid PRICE_STREAM: %w", err)
		}
		c.StreamEnabled = b
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid POLL_INTERVAL: %w", err)
		}
		c.PollInterval = d
	}
	if v := os.Getenv("PRICE_MAX_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PRICE_MAX_AGE: %w", err)
		}
		c.PriceMaxAge = d
	}
	if v := os.Getenv("AUTHORIZED_USER_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid AUTHORIZED_USER_ID: %w", err)
		}
		c.AuthorizedUserID = id
	}
	if v := os.Getenv("WATCHLIST"); v != "" {
		c.Watchlist = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects values the rest of the program cannot act on.
func (c *Config) Validate() error {
	switch strings.ToLower(c.PriceSource) {
	case SourceHyperliquid, SourceBinance:
	default:
		return fmt.Errorf("unknown price source: %s", c.PriceSource)
	}

	switch c.StorageDriver {
	case "memory":
	case "file":
		if c.StorageDir == "" {
			return fmt.Errorf("storage_dir is required for the file driver")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver: %s", c.StorageDriver)
	}

	switch strings.ToLower(c.ShortPolicy) {
	case "stop", "remainder":
	default:
		return fmt.Errorf("unknown short policy: %s", c.ShortPolicy)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.PriceMaxAge < c.PollInterval {
		return fmt.Errorf("price max age (%s) must not be shorter than the poll interval (%s)", c.PriceMaxAge, c.PollInterval)
	}
	if c.TelegramToken != "" && c.AuthorizedUserID == 0 {
		return fmt.Errorf("AUTHORIZED_USER_ID is required when the Telegram bot is enabled")
	}
	if c.StreamURL != "" && !strings.HasPrefix(c.StreamURL, "ws://") && !strings.HasPrefix(c.StreamURL, "wss://") {
		return fmt.Errorf("invalid stream URL: %s", c.StreamURL)
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
