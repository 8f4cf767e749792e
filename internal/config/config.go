// Package config loads server configuration from an optional YAML file and
// the environment. Precedence: defaults, then the file, then environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TrustProxy      bool          `yaml:"trust_proxy"`
}

type DatabaseConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

type AuthConfig struct {
	JWTSecret    string        `yaml:"jwt_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
	CookieSecure bool          `yaml:"cookie_secure"`
	BcryptCost   int           `yaml:"bcrypt_cost"`
	AllowSetup   bool          `yaml:"allow_setup"`
}

type RateLimitConfig struct {
	Burst        int `yaml:"burst"`
	RefillPerMin int `yaml:"refill_per_min"`
}

// RedisConfig is optional; an empty Addr keeps login limiting in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "text" or "json"
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxAge     int    `yaml:"max_age"`  // days
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "data/knowledge.db",
			BusyTimeout: 5 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL:   24 * time.Hour,
			BcryptCost: 12,
			AllowSetup: true,
		},
		RateLimit: RateLimitConfig{
			Burst:        5,
			RefillPerMin: 5,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 5,
		},
	}
}

// Load builds and validates the configuration. path may be empty; a
// non-empty path that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read applies the file and the environment over the defaults without
// validating, for tools such as cmd/setup that only need the database.
func Read(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret (KL_JWT_SECRET) is required"))
	} else if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 16 characters"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Auth.BcryptCost < 12 {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost must be at least 12, got %d", c.Auth.BcryptCost))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	if strings.Contains(c.Server.Port, ":") {
		return c.Server.Port
	}
	return ":" + c.Server.Port
}

func (c *Config) overrideFromEnv() error {
	setString(&c.Server.Port, "KL_PORT", "PORT")
	setString(&c.Database.Path, "KL_DB_PATH", "DB_PATH")
	setString(&c.Auth.JWTSecret, "KL_JWT_SECRET", "JWT_SECRET")
	setString(&c.Redis.Addr, "KL_REDIS_ADDR")
	setString(&c.Redis.Password, "KL_REDIS_PASSWORD")
	setString(&c.Log.Level, "KL_LOG_LEVEL")
	setString(&c.Log.Format, "KL_LOG_FORMAT")
	setString(&c.Log.File, "KL_LOG_FILE")

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	collect(setDuration(&c.Server.RequestTimeout, "KL_REQUEST_TIMEOUT"))
	collect(setDuration(&c.Server.ShutdownTimeout, "KL_SHUTDOWN_TIMEOUT"))
	collect(setBool(&c.Server.TrustProxy, "KL_TRUST_PROXY"))
	collect(setDuration(&c.Database.BusyTimeout, "KL_DB_BUSY_TIMEOUT"))
	collect(setDuration(&c.Auth.TokenTTL, "KL_TOKEN_TTL"))
	collect(setBool(&c.Auth.CookieSecure, "KL_COOKIE_SECURE"))
	collect(setInt(&c.Auth.BcryptCost, "KL_BCRYPT_COST"))
	collect(setBool(&c.Auth.AllowSetup, "KL_ALLOW_SETUP"))
	collect(setInt(&c.RateLimit.Burst, "KL_LOGIN_BURST"))
	collect(setInt(&c.RateLimit.RefillPerMin, "KL_LOGIN_REFILL_PER_MIN"))
	collect(setInt(&c.Redis.DB, "KL_REDIS_DB"))

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ===== ENV HELPERS =====

// lookup returns the first non-empty variable among keys.
func lookup(keys ...string) (string, bool) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v, true
		}
	}
	return "", false
}

func setString(dst *string, keys ...string) {
	if v, ok := lookup(keys...); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", key, v)
	}
	*dst = d
	return nil
}
