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

// Lock modes.
const (
	LockModeAuto     = "auto"
	LockModeMemory   = "memory"
	LockModePostgres = "postgres"
)

// Config holds service settings. Env vars give the base values and the
// optional SUBWAY_CONFIG yaml file overrides whatever it sets.
type Config struct {
	HTTPAddr         string        `yaml:"http_addr"`
	DatabaseURL      string        `yaml:"database_url"`
	JWTSecret        string        `yaml:"jwt_secret"`
	JWTIssuer        string        `yaml:"jwt_issuer"`
	AuthDisabled     bool          `yaml:"auth_disabled"`
	SeedFile         string        `yaml:"seed_file"`
	LockMode         string        `yaml:"lock_mode"`
	DispatchInterval time.Duration `yaml:"dispatch_interval"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

// Load reads the configuration from the environment and the yaml overlay.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:         getenvDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:      getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		JWTSecret:        getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		JWTIssuer:        getenvDefault("AUTH_JWT_ISSUER", ""),
		AuthDisabled:     getenvBool("AUTH_DISABLED", false),
		SeedFile:         getenvDefault("SUBWAY_SEED_FILE", ""),
		LockMode:         strings.ToLower(getenvDefault("LOCK_MODE", LockModeAuto)),
		DispatchInterval: getenvDuration("OUTBOX_DISPATCH_INTERVAL", 5*time.Second),
		ShutdownTimeout:  getenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if path := os.Getenv("SUBWAY_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.LockMode = strings.ToLower(cfg.LockMode)
	}
	return cfg, cfg.Validate()
}

// Validate checks settings that would otherwise fail at first use.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: http addr required")
	}
	if !c.AuthDisabled && c.JWTSecret == "" {
		return errors.New("config: AUTH_JWT_SECRET is required unless AUTH_DISABLED=true")
	}
	switch c.LockMode {
	case LockModeAuto, LockModeMemory:
	case LockModePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: LOCK_MODE=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown lock mode %q", c.LockMode)
	}
	return nil
}

// UsePostgres reports whether a database is configured.
func (c Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// UseAdvisoryLocks reports whether line writers lock through Postgres.
func (c Config) UseAdvisoryLocks() bool {
	switch c.LockMode {
	case LockModePostgres:
		return true
	case LockModeMemory:
		return false
	default:
		return c.UsePostgres()
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
