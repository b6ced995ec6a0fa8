// Package config loads the sensei configuration from ~/.sensei and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv overlays environment variables onto cfg. Values already in cfg
// act as defaults.
func ApplyEnv(cfg *LocalConfig) {
	cfg.Daemon.Port = getEnvInt("SENSEI_PORT", cfg.Daemon.Port)
	cfg.Daemon.Bind = getEnv("SENSEI_BIND", cfg.Daemon.Bind)
	cfg.Daemon.LogLevel = getEnv("SENSEI_LOG_LEVEL", cfg.Daemon.LogLevel)
	cfg.Daemon.DefaultUser = getEnv("SENSEI_USER", cfg.Daemon.DefaultUser)

	cfg.LLM.DefaultProvider = getEnv("SENSEI_LLM_PROVIDER", cfg.LLM.DefaultProvider)
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		provider(cfg, "ollama").URL = url
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		p := provider(cfg, "claude")
		p.APIKey = key
		p.Enabled = true
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		p := provider(cfg, "openai")
		p.APIKey = key
		p.Enabled = true
	}

	cfg.Gateway.Model = getEnv("SENSEI_MODEL", cfg.Gateway.Model)
	cfg.Gateway.MaxAttempts = getEnvInt("SENSEI_MAX_ATTEMPTS", cfg.Gateway.MaxAttempts)
	cfg.Gateway.Temperature = getEnvFloat("SENSEI_TEMPERATURE", cfg.Gateway.Temperature)
	if secs := getEnvInt("SENSEI_LLM_TIMEOUT", 0); secs > 0 {
		cfg.Gateway.Timeout = time.Duration(secs) * time.Second
	}

	cfg.Storage.Driver = getEnv("SENSEI_STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.SQLitePath = getEnv("SENSEI_SQLITE_PATH", cfg.Storage.SQLitePath)
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Storage.PostgresURL = url
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)

	if url := os.Getenv("RABBITMQ_URL"); url != "" {
		cfg.Queue.URL = url
		cfg.Queue.Enabled = true
	}
	cfg.Queue.Workers = getEnvInt("SENSEI_WORKERS", cfg.Queue.Workers)

	cfg.Metrics.Enabled = getEnvBool("SENSEI_METRICS", cfg.Metrics.Enabled)
	cfg.Progression.Timezone = getEnv("SENSEI_TIMEZONE", cfg.Progression.Timezone)
}

// provider returns the named provider config, creating it when absent.
func provider(cfg *LocalConfig, name string) *ProviderConfig {
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = make(map[string]*ProviderConfig)
	}
	p, ok := cfg.LLM.Providers[name]
	if !ok {
		p = &ProviderConfig{}
		cfg.LLM.Providers[name] = p
	}
	return p
}

// Validate reports every invalid setting at once.
func (c *LocalConfig) Validate() error {
	var errs []error

	if c.Daemon.Port < 1 || c.Daemon.Port > 65535 {
		errs = append(errs, fmt.Errorf("daemon.port %d out of range", c.Daemon.Port))
	}

	switch c.Storage.Driver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.Storage.PostgresURL == "" {
			errs = append(errs, errors.New("storage.postgres_url is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	if c.Gateway.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("gateway.max_attempts must be at least 1, got %d", c.Gateway.MaxAttempts))
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.Queue.Enabled && c.Queue.URL == "" {
		errs = append(errs, errors.New("queue.url is required when the queue is enabled"))
	}

	enabled := 0
	for _, p := range c.LLM.Providers {
		if p != nil && p.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		errs = append(errs, errors.New("no LLM provider is enabled"))
	}

	return errors.Join(errs...)
}

// Location resolves progression.timezone.
func (c *LocalConfig) Location() (*time.Location, error) {
	name := c.Progression.Timezone
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// SQLitePath returns the configured database path, defaulting under dir.
func (c *LocalConfig) SQLitePath(dir string) string {
	if c.Storage.SQLitePath != "" {
		return c.Storage.SQLitePath
	}
	return filepath.Join(dir, "sensei.db")
}

// Addr returns the daemon listen address.
func (c *LocalConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Daemon.Bind, c.Daemon.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
