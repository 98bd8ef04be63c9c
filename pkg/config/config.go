package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mtgmarket/cardgate/pkg/ratelimit"
)

// Config holds all cardgate configuration.
type Config struct {
	Listen    string          `yaml:"listen"`
	Log       LogConfig       `yaml:"log"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Ledger    LedgerConfig    `yaml:"ledger"`
}

// LogConfig controls the process logger. Format is "text" (default) or "json".
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CatalogConfig points at the upstream card catalog.
type CatalogConfig struct {
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RateLimitConfig defines the bucket guarding the catalog.
// Backend is "memory" (default) or "redis".
type RateLimitConfig struct {
	Key          string          `yaml:"key"`
	Limit        ratelimit.Limit `yaml:",inline"`
	PollInterval time.Duration   `yaml:"poll_interval"`
	Backend      string          `yaml:"backend"`
	Redis        RedisConfig     `yaml:"redis"`
}

// RedisConfig is used when the rate limit backend is redis.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	IdleTTL   time.Duration `yaml:"idle_ttl"`
}

// CacheConfig controls the in-memory cache.
type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
	TTL        TTLConfig     `yaml:"ttl"`
}

// TTLConfig sets how long each catalog operation stays cached.
type TTLConfig struct {
	Search time.Duration `yaml:"search"`
	Card   time.Duration `yaml:"card"`
	Prints time.Duration `yaml:"prints"`
	Named  time.Duration `yaml:"named"`
}

// LedgerConfig controls the upstream call ledger.
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Catalog: CatalogConfig{
			BaseURL:   "https://api.scryfall.com",
			UserAgent: "mtg-app/1.0 (+local)",
			Timeout:   10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Key:          "scryfall",
			Limit:        ratelimit.Limit{Capacity: 8, RefillRate: 8},
			PollInterval: ratelimit.DefaultPollInterval,
			Backend:      "memory",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "cardgate:bucket:",
				IdleTTL:   10 * time.Minute,
			},
		},
		Cache: CacheConfig{
			MaxEntries: 5000,
			DefaultTTL: time.Hour,
			TTL: TTLConfig{
				Search: 10 * time.Minute,
				Card:   time.Hour,
				Prints: time.Hour,
				Named:  time.Hour,
			},
		},
		Ledger: LedgerConfig{
			Enabled: false,
			DBPath:  "cardgate.db",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when path does not
// exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks the values Load cannot default.
func (c *Config) Validate() error {
	if c.Catalog.BaseURL == "" {
		return errors.New("catalog.base_url is required")
	}
	if c.RateLimit.Key == "" {
		return errors.New("rate_limit.key is required")
	}
	if err := c.RateLimit.Limit.Validate(); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("rate_limit.backend: unknown backend %q", c.RateLimit.Backend)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	if c.Ledger.Enabled && c.Ledger.DBPath == "" {
		return errors.New("ledger.db_path is required when the ledger is enabled")
	}
	return nil
}
