// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds the configuration for the metadata store and its HTTP API.
type Config struct {
	Backend     string // memory, sqlite, postgres or redis (default sqlite)
	Path        string // SQLite file, or snapshot location for the memory backend
	DSN         string // PostgreSQL connection string
	RedisAddr   string // host:port of the Redis server
	RedisPass   string
	RedisPrefix string // key prefix (default "mds:")

	// Identifier bit widths for a fresh store. A resumed store keeps the
	// widths it was created with. 0 means the built-in default.
	TableBits  int
	ColumnBits int

	ListenAddr    string // HTTP listen address (default ":8080")
	FlushSchedule string // cron spec for periodic flushes; empty disables them

	// S3 fields are optional — nil when not configured. Used for s3://
	// snapshot locations.
	S3KeyID    *string
	S3Secret   *string
	S3Endpoint *string
	S3Region   *string

	LogLevel string // log level: debug, info, warn, error (default "info")
	Env      string // environment: "development" (default) or "production"

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// HasS3Config returns true if all required S3 fields are set.
func (c *Config) HasS3Config() bool {
	return c.S3KeyID != nil && c.S3Secret != nil &&
		c.S3Endpoint != nil && c.S3Region != nil
}

// Durable reports whether the backend persists every mutation.
func (c *Config) Durable() bool {
	return c.Backend != BackendMemory
}

// LoadFromEnv loads configuration from environment variables.
// S3 variables are optional — the store can run without them.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv)
}

// Load builds the configuration from getenv, which is consulted with the
// environment variable names. Callers layer flags or profiles over the
// environment this way.
func Load(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Backend:       strings.ToLower(strings.TrimSpace(getenv("MDSTORE_BACKEND"))),
		Path:          getenv("MDSTORE_PATH"),
		DSN:           getenv("MDSTORE_DSN"),
		RedisAddr:     getenv("MDSTORE_REDIS_ADDR"),
		RedisPass:     getenv("MDSTORE_REDIS_PASSWORD"),
		RedisPrefix:   getenv("MDSTORE_REDIS_PREFIX"),
		ListenAddr:    getenv("MDSTORE_LISTEN_ADDR"),
		FlushSchedule: strings.TrimSpace(getenv("MDSTORE_FLUSH_SCHEDULE")),
		LogLevel:      getenv("LOG_LEVEL"),
		Env:           getenv("ENV"),
	}

	var err error
	if cfg.TableBits, err = parseIntEnv(getenv, "MDSTORE_TABLE_BITS"); err != nil {
		return nil, err
	}
	if cfg.ColumnBits, err = parseIntEnv(getenv, "MDSTORE_COLUMN_BITS"); err != nil {
		return nil, err
	}

	// Rate limiting
	if v := getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid RATE_LIMIT_RPS %q", v))
		}
	}
	if v := getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid RATE_LIMIT_BURST %q", v))
		}
	}

	// S3 fields are optional — only set if present
	if v := getenv("MDSTORE_S3_KEY_ID"); v != "" {
		cfg.S3KeyID = &v
	}
	if v := getenv("MDSTORE_S3_SECRET"); v != "" {
		cfg.S3Secret = &v
	}
	if v := getenv("MDSTORE_S3_ENDPOINT"); v != "" {
		cfg.S3Endpoint = &v
	}
	if v := getenv("MDSTORE_S3_REGION"); v != "" {
		cfg.S3Region = &v
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills unset fields and validates the combination.
func (c *Config) applyDefaults() error {
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	switch c.Backend {
	case BackendMemory:
		if c.Path == "" {
			c.Path = "mdstore.json"
		}
	case BackendSQLite:
		if c.Path == "" {
			c.Path = "mdstore.sqlite"
		}
	case BackendPostgres:
		if c.DSN == "" {
			return fmt.Errorf("MDSTORE_DSN is required for the postgres backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			c.RedisAddr = "localhost:6379"
			c.Warnings = append(c.Warnings, "MDSTORE_REDIS_ADDR not set — using localhost:6379")
		}
	default:
		return fmt.Errorf("unknown backend %q: must be memory, sqlite, postgres or redis", c.Backend)
	}

	if c.TableBits < 0 || c.ColumnBits < 0 {
		return fmt.Errorf("identifier bit widths must not be negative")
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RateLimitRPS == 0 {
		c.RateLimitRPS = 100
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = 200
	}
	if strings.HasPrefix(c.Path, "s3://") && c.Backend == BackendMemory && (c.S3KeyID == nil || c.S3Secret == nil) {
		return fmt.Errorf("s3:// snapshot locations need MDSTORE_S3_KEY_ID and MDSTORE_S3_SECRET")
	}

	// Production mode: losing data on exit is fatal.
	if c.IsProduction() && c.Backend == BackendMemory && c.FlushSchedule == "" {
		return fmt.Errorf("the memory backend needs MDSTORE_FLUSH_SCHEDULE in production (ENV=production)")
	}
	return nil
}

func parseIntEnv(getenv func(string) string, key string) (int, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
