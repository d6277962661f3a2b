// internal/config/config.go
//
// Process configuration read from the environment (.env is loaded by main).
//
// Variables (defaults in parentheses):
//   PORT (5175), LOG_LEVEL (info), LOG_FORMAT (json|console),
//   CLIENT_ORIGIN (http://localhost:5173),
//   STORE_DRIVER (sqlite), SQLITE_PATH (./data/app.db),
//   REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, REDIS_PREFIX (mejikuhibiniu:),
//   DATABASE_URL, CATALOG_FILE, SOUND_OUTPUT (none|speaker),
//   JWT_SECRET, JWT_EXPIRES_DAYS (14), COOKIE_NAME, NODE_ENV,
//   SESSION_IDLE (30m), CLEANUP_INTERVAL (5m).

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robalobadob/mejikuhibiniu/internal/kv"
)

const devSecret = "dev_secret_change_me"

// Sound output modes.
const (
	SoundNone    = "none"
	SoundSpeaker = "speaker"
)

// Config holds all configuration for the game host.
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Store   kv.Options
	Auth    AuthConfig
	Catalog string // optional YAML file replacing the embedded catalog
	Sound   string // SoundNone or SoundSpeaker
	Cleanup CleanupConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int
	ClientOrigin string
	Production   bool
}

// LogConfig selects zerolog's level and writer.
type LogConfig struct {
	Level   string
	Console bool
}

// AuthConfig holds JWT and cookie settings.
type AuthConfig struct {
	Secret     string
	TTL        time.Duration
	CookieName string
	AnonCookie string
}

// CleanupConfig holds the idle-session janitor settings.
type CleanupConfig struct {
	Idle     time.Duration
	Interval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("PORT", 5175),
			ClientOrigin: getEnv("CLIENT_ORIGIN", "http://localhost:5173"),
			Production:   getEnv("NODE_ENV", "") == "production",
		},
		Log: LogConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Console: strings.EqualFold(getEnv("LOG_FORMAT", "json"), "console"),
		},
		Store: kv.Options{
			Driver:        strings.ToLower(getEnv("STORE_DRIVER", kv.DriverSQLite)),
			SQLitePath:    getEnv("SQLITE_PATH", "./data/app.db"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			RedisPrefix:   getEnv("REDIS_PREFIX", "mejikuhibiniu:"),
			PostgresURL:   getEnv("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			Secret:     getEnv("JWT_SECRET", devSecret),
			TTL:        time.Duration(getEnvAsInt("JWT_EXPIRES_DAYS", 14)) * 24 * time.Hour,
			CookieName: getEnv("COOKIE_NAME", "mejikuhibiniu_token"),
			AnonCookie: getEnv("ANON_COOKIE_NAME", "mejikuhibiniu_anon"),
		},
		Catalog: getEnv("CATALOG_FILE", ""),
		Sound:   strings.ToLower(getEnv("SOUND_OUTPUT", SoundNone)),
		Cleanup: CleanupConfig{
			Idle:     getEnvAsDuration("SESSION_IDLE", 30*time.Minute),
			Interval: getEnvAsDuration("CLEANUP_INTERVAL", 5*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch c.Store.Driver {
	case kv.DriverMemory, kv.DriverSQLite, kv.DriverRedis:
	case kv.DriverPostgres:
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Sound != SoundNone && c.Sound != SoundSpeaker {
		return fmt.Errorf("unknown SOUND_OUTPUT %q", c.Sound)
	}
	if c.Auth.TTL <= 0 {
		return fmt.Errorf("JWT_EXPIRES_DAYS must be positive")
	}
	if c.Server.Production && c.Auth.Secret == devSecret {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string { return ":" + strconv.Itoa(c.Server.Port) }

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
