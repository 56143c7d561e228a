// Package config loads service configuration from YAML with environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Oracle sources.
const (
	OracleAlpaca = "alpaca"
	OracleStatic = "static"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the game engine service.
type Config struct {
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
	Alpaca  Alpaca  `yaml:"alpaca"`
	Oracle  Oracle  `yaml:"oracle"`
	Engine  Engine  `yaml:"engine"`
	Logging Logging `yaml:"logging"`
}

// Server holds network listener configuration.
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr is the listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Storage selects the persistence backend. DatabaseURL wins over
// SQLitePath; with neither set the in-memory store is used.
type Storage struct {
	DatabaseURL string        `yaml:"database_url"`
	SQLitePath  string        `yaml:"sqlite_path"`
	RedisURL    string        `yaml:"redis_url"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// Alpaca holds credentials and call settings for the market-data API.
type Alpaca struct {
	APIKey      string        `yaml:"api_key"`
	APISecret   string        `yaml:"api_secret"`
	DataURL     string        `yaml:"data_url"`
	Feed        string        `yaml:"feed"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// Oracle chooses the price source. An empty Source means alpaca when
// credentials are present and static otherwise.
type Oracle struct {
	Source string            `yaml:"source"`
	Prices map[string]string `yaml:"prices"` // static source only
}

// Engine tunes order processing.
type Engine struct {
	CASAttempts int `yaml:"cas_attempts"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: Server{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Storage: Storage{
			CacheTTL: 30 * time.Second,
		},
		Alpaca: Alpaca{
			Feed:        "iex",
			Timeout:     5 * time.Second,
			MaxAttempts: 3,
			RetryDelay:  200 * time.Millisecond,
		},
		Engine:  Engine{CASAttempts: 5},
		Logging: Logging{Level: "info"},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at path over Default(), applies
// environment variable overrides, and validates the result. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Server.Port = port
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("ALPACA_FEED"); v != "" {
		cfg.Alpaca.Feed = v
	}

	if v := os.Getenv("ORACLE_SOURCE"); v != "" {
		cfg.Oracle.Source = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority, the names the SDK uses).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	return nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// OracleSource resolves an empty Oracle.Source.
func (c *Config) OracleSource() string {
	if c.Oracle.Source != "" {
		return strings.ToLower(c.Oracle.Source)
	}
	if c.Alpaca.APIKey != "" && c.Alpaca.APISecret != "" {
		return OracleAlpaca
	}
	return OracleStatic
}

// StaticPrices parses Oracle.Prices. Symbols are upper-cased.
func (c *Config) StaticPrices() (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(c.Oracle.Prices))
	for sym, raw := range c.Oracle.Prices {
		p, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("oracle.prices[%s]: %w", sym, err)
		}
		if !p.IsPositive() {
			return nil, fmt.Errorf("oracle.prices[%s]: must be positive, got %s", sym, p)
		}
		out[strings.ToUpper(sym)] = p
	}
	return out, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Storage.RedisURL != "" && c.Storage.CacheTTL <= 0 {
		errs = append(errs, errors.New("storage.cache_ttl must be positive when redis_url is set"))
	}
	if c.Engine.CASAttempts < 1 {
		errs = append(errs, errors.New("engine.cas_attempts must be at least 1"))
	}

	switch c.OracleSource() {
	case OracleAlpaca:
		if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
			errs = append(errs, errors.New("alpaca.api_key and alpaca.api_secret are required for the alpaca oracle"))
		}
		switch c.Alpaca.Feed {
		case "", "iex", "sip", "delayed_sip", "otc":
		default:
			errs = append(errs, fmt.Errorf("alpaca.feed %q is not a known feed", c.Alpaca.Feed))
		}
		if c.Alpaca.MaxAttempts < 1 {
			errs = append(errs, errors.New("alpaca.max_attempts must be at least 1"))
		}
	case OracleStatic:
		if _, err := c.StaticPrices(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("oracle.source %q must be %s or %s", c.Oracle.Source, OracleAlpaca, OracleStatic))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not a known level", c.Logging.Level))
	}

	return errors.Join(errs...)
}
