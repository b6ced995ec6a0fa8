package config

import (
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{"returns default when not set", "TEST_KEY_UNSET", "default", "", "default"},
		{"returns env value when set", "TEST_KEY_SET", "default", "custom", "custom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.envValue)

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv(%q, %q) = %q, want %q", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		want         int
	}{
		{"returns default when not set", "", 100, 100},
		{"parses valid int", "42", 100, 42},
		{"returns default on invalid int", "not-a-number", 100, 100},
		{"parses negative int", "-5", 100, -5},
		{"parses zero", "0", 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.envValue)

			if got := getEnvInt("TEST_INT", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue float64
		want         float64
	}{
		{"returns default when not set", "", 1.5, 1.5},
		{"parses valid float", "2.5", 1.5, 2.5},
		{"returns default on invalid float", "not-a-float", 1.5, 1.5},
		{"parses int as float", "3", 1.5, 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_FLOAT", tt.envValue)

			if got := getEnvFloat("TEST_FLOAT", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvFloat() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{"returns default when not set", "", true, true},
		{"parses true", "true", false, true},
		{"parses false", "false", true, false},
		{"parses 1 as true", "1", false, true},
		{"returns default on invalid bool", "yes", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.envValue)

			if got := getEnvBool("TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

var envKeys = []string{
	"SENSEI_PORT", "SENSEI_BIND", "SENSEI_LOG_LEVEL", "SENSEI_USER", "SENSEI_LLM_PROVIDER",
	"OLLAMA_URL", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "SENSEI_MODEL", "SENSEI_MAX_ATTEMPTS",
	"SENSEI_TEMPERATURE", "SENSEI_LLM_TIMEOUT", "SENSEI_STORAGE_DRIVER", "SENSEI_SQLITE_PATH",
	"DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD", "RABBITMQ_URL", "SENSEI_WORKERS",
	"SENSEI_METRICS", "SENSEI_TIMEZONE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestApplyEnv_NoEnvKeepsConfig(t *testing.T) {
	clearEnv(t)

	cfg := DefaultLocalConfig()
	ApplyEnv(cfg)

	def := DefaultLocalConfig()
	if cfg.Daemon != def.Daemon || cfg.Gateway != def.Gateway || cfg.Storage != def.Storage {
		t.Errorf("ApplyEnv changed config without env: %+v", cfg)
	}
	if cfg.Redis.Enabled || cfg.Queue.Enabled {
		t.Error("redis and queue should stay disabled")
	}
}

func TestApplyEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SENSEI_PORT", "9000")
	t.Setenv("SENSEI_LOG_LEVEL", "debug")
	t.Setenv("SENSEI_LLM_PROVIDER", "claude")
	t.Setenv("OLLAMA_URL", "http://gpu-box:11434")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	t.Setenv("SENSEI_MODEL", "qwen2.5-coder:32b")
	t.Setenv("SENSEI_MAX_ATTEMPTS", "5")
	t.Setenv("SENSEI_LLM_TIMEOUT", "30")
	t.Setenv("SENSEI_STORAGE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://sensei@db/sensei")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("RABBITMQ_URL", "amqp://mq:5672/")
	t.Setenv("SENSEI_METRICS", "false")
	t.Setenv("SENSEI_TIMEZONE", "Europe/Berlin")

	cfg := DefaultLocalConfig()
	ApplyEnv(cfg)

	if cfg.Daemon.Port != 9000 || cfg.Daemon.LogLevel != "debug" {
		t.Errorf("daemon = %+v", cfg.Daemon)
	}
	if cfg.LLM.DefaultProvider != "claude" {
		t.Errorf("DefaultProvider = %q", cfg.LLM.DefaultProvider)
	}
	if got := cfg.LLM.Providers["ollama"].URL; got != "http://gpu-box:11434" {
		t.Errorf("ollama URL = %q", got)
	}
	if c := cfg.LLM.Providers["claude"]; c.APIKey != "sk-ant-env" || !c.Enabled {
		t.Errorf("claude = %+v; want enabled with env key", c)
	}
	if cfg.Gateway.Model != "qwen2.5-coder:32b" || cfg.Gateway.MaxAttempts != 5 || cfg.Gateway.Timeout != 30*time.Second {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Storage.Driver != DriverPostgres || cfg.Storage.PostgresURL != "postgres://sensei@db/sensei" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if !cfg.Queue.Enabled || cfg.Queue.URL != "amqp://mq:5672/" {
		t.Errorf("queue = %+v", cfg.Queue)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics should be disabled")
	}
	if cfg.Progression.Timezone != "Europe/Berlin" {
		t.Errorf("timezone = %q", cfg.Progression.Timezone)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestApplyEnv_CreatesMissingProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg := &LocalConfig{}
	ApplyEnv(cfg)

	if p := cfg.LLM.Providers["openai"]; p == nil || p.APIKey != "sk-openai" {
		t.Errorf("openai provider = %+v", p)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*LocalConfig)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*LocalConfig) {},
		},
		{
			name:    "unknown driver",
			mutate:  func(c *LocalConfig) { c.Storage.Driver = "mongo" },
			wantErr: `unknown storage driver "mongo"`,
		},
		{
			name:    "postgres without url",
			mutate:  func(c *LocalConfig) { c.Storage.Driver = DriverPostgres },
			wantErr: "postgres_url is required",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *LocalConfig) { c.Gateway.MaxAttempts = 0 },
			wantErr: "max_attempts must be at least 1",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *LocalConfig) { c.Progression.Timezone = "Mars/Olympus" },
			wantErr: `unknown timezone "Mars/Olympus"`,
		},
		{
			name:    "port out of range",
			mutate:  func(c *LocalConfig) { c.Daemon.Port = 70000 },
			wantErr: "out of range",
		},
		{
			name:    "redis without addr",
			mutate:  func(c *LocalConfig) { c.Redis.Enabled = true; c.Redis.Addr = "" },
			wantErr: "redis.addr is required",
		},
		{
			name:    "queue without url",
			mutate:  func(c *LocalConfig) { c.Queue.Enabled = true; c.Queue.URL = "" },
			wantErr: "queue.url is required",
		},
		{
			name: "no provider enabled",
			mutate: func(c *LocalConfig) {
				for _, p := range c.LLM.Providers {
					p.Enabled = false
				}
			},
			wantErr: "no LLM provider is enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLocalConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := DefaultLocalConfig()
	cfg.Storage.Driver = "mongo"
	cfg.Gateway.MaxAttempts = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	msg := err.Error()
	if !strings.Contains(msg, "mongo") || !strings.Contains(msg, "max_attempts") {
		t.Errorf("Validate() = %q, want both problems", msg)
	}
}

func TestLocation(t *testing.T) {
	cfg := DefaultLocalConfig()

	loc, err := cfg.Location()
	if err != nil || loc != time.Local {
		t.Errorf("Location() = %v, %v; want Local", loc, err)
	}

	cfg.Progression.Timezone = "UTC"
	loc, err = cfg.Location()
	if err != nil || loc.String() != "UTC" {
		t.Errorf("Location() = %v, %v; want UTC", loc, err)
	}
}

func TestSQLitePathAndAddr(t *testing.T) {
	cfg := DefaultLocalConfig()

	if got := cfg.SQLitePath("/home/u/.sensei"); got != "/home/u/.sensei/sensei.db" {
		t.Errorf("SQLitePath() = %q", got)
	}
	cfg.Storage.SQLitePath = "/data/s.db"
	if got := cfg.SQLitePath("/home/u/.sensei"); got != "/data/s.db" {
		t.Errorf("SQLitePath() = %q", got)
	}
	if got := cfg.Addr(); got != "127.0.0.1:7433" {
		t.Errorf("Addr() = %q", got)
	}
}
