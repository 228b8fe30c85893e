// Package config loads process configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// DefaultJWTSecret is the signing secret used when none is configured.
const DefaultJWTSecret = "secretKey"

// Config holds the settings of every exchange process. Each binary reads
// the sections it needs.
type Config struct {
	Redis struct {
		URL   string `yaml:"url"`
		Queue string `yaml:"queue"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret  string        `yaml:"jwt_secret"`
		TokenTTL   time.Duration `yaml:"token_ttl"`
		BcryptCost int           `yaml:"bcrypt_cost"`
	} `yaml:"auth"`

	Engine struct {
		Addr string `yaml:"addr"`
	} `yaml:"engine"`

	Gateway struct {
		Addr       string        `yaml:"addr"`
		RPCTimeout time.Duration `yaml:"rpc_timeout"`
	} `yaml:"gateway"`

	WS struct {
		Addr string `yaml:"addr"`
	} `yaml:"ws"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Archiver struct {
		Addr string `yaml:"addr"`
	} `yaml:"archiver"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	var c Config
	c.Redis.URL = "redis://localhost:6379/0"
	c.Redis.Queue = "requests"
	c.Auth.JWTSecret = DefaultJWTSecret
	c.Auth.TokenTTL = 24 * time.Hour
	c.Auth.BcryptCost = 10
	c.Engine.Addr = ":9100"
	c.Gateway.Addr = ":3000"
	c.Gateway.RPCTimeout = 120 * time.Second
	c.WS.Addr = ":8080"
	c.Archiver.Addr = ":9101"
	c.Log.Level = "info"
	return &c
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromFlags loads the file named by the -config flag or CONFIG_FILE.
func FromFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	path := fs.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return Load(*path)
}

func overrideWithEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("REDIS_URL", &cfg.Redis.URL)
	str("REQUEST_QUEUE", &cfg.Redis.Queue)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("ENGINE_ADDR", &cfg.Engine.Addr)
	str("GATEWAY_ADDR", &cfg.Gateway.Addr)
	str("WS_ADDR", &cfg.WS.Addr)
	str("DATABASE_URL", &cfg.Database.URL)
	str("ARCHIVER_ADDR", &cfg.Archiver.Addr)
	str("LOG_LEVEL", &cfg.Log.Level)

	if v := os.Getenv("TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid TOKEN_TTL %q: %w", v, err)
		}
		cfg.Auth.TokenTTL = d
	}
	if v := os.Getenv("RPC_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid RPC_TIMEOUT %q: %w", v, err)
		}
		cfg.Gateway.RPCTimeout = d
	}
	if v := os.Getenv("BCRYPT_COST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BCRYPT_COST %q: %w", v, err)
		}
		cfg.Auth.BcryptCost = n
	}
	return nil
}

// Validate checks the settings shared by every process.
func (c *Config) Validate() error {
	if _, err := redis.ParseURL(c.Redis.URL); err != nil {
		return fmt.Errorf("invalid redis url %q: %w", c.Redis.URL, err)
	}
	if c.Redis.Queue == "" {
		return errors.New("request queue name is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("jwt secret must not be empty")
	}
	if c.Auth.TokenTTL < 0 {
		return errors.New("token ttl must not be negative")
	}
	if c.Gateway.RPCTimeout <= 0 {
		return errors.New("rpc timeout must be positive")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// UsingDefaultSecret reports whether tokens are signed with the built-in
// secret.
func (c *Config) UsingDefaultSecret() bool {
	return c.Auth.JWTSecret == DefaultJWTSecret
}

// RedisOptions parses the configured Redis URL.
func (c *Config) RedisOptions() (*redis.Options, error) {
	return redis.ParseURL(c.Redis.URL)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// NewLogger returns a JSON logger at the configured level, tagged with the
// service name, and installs it as the default.
func (c *Config) NewLogger(service string) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).With("service", service)
	slog.SetDefault(logger)
	return logger
}
