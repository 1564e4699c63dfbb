// Package config loads runtime configuration from an optional TOML file
// with OMNI_* environment overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Session backend selectors.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config is the full runtime configuration.
type Config struct {
	Model         string  `toml:"model"`
	APIKey        string  `toml:"api_key"`
	BaseURL       string  `toml:"base_url"`
	Temperature   float64 `toml:"temperature"`
	MaxTokens     int     `toml:"max_tokens"`
	MaxSteps      int     `toml:"max_steps"`
	ParallelTools bool    `toml:"parallel_tools"`
	Trace         bool    `toml:"trace"`

	Ralph   RalphConfig   `toml:"ralph"`
	Session SessionConfig `toml:"session"`
}

// RalphConfig tunes the iterative meta-loop.
type RalphConfig struct {
	MaxIterations     int    `toml:"max_iterations"`
	CompletionPromise string `toml:"completion_promise"`
	IdleThreshold     int    `toml:"idle_threshold"`
	ContextStrategy   string `toml:"context_strategy"`
	MemoryDir         string `toml:"memory_dir"`
}

// SessionConfig selects and parameterizes the session backend.
type SessionConfig struct {
	Backend string   `toml:"backend"`
	Dir     string   `toml:"dir"`
	Path    string   `toml:"path"`
	Addr    string   `toml:"addr"`
	TTL     duration `toml:"ttl"`
}

// duration lets TOML carry values like "24h".
type duration struct{ time.Duration }

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model:       "gpt-4.1-mini",
		Temperature: 0.7,
		MaxSteps:    10,
		Ralph: RalphConfig{
			MaxIterations:     20,
			CompletionPromise: "TASK COMPLETE",
			IdleThreshold:     3,
			ContextStrategy:   "all",
		},
		Session: SessionConfig{
			Backend: BackendMemory,
			Dir:     ".omni/sessions",
			Path:    ".omni/sessions.db",
			Addr:    "localhost:6379",
		},
	}
}

// Load builds the configuration: defaults, then the TOML file at path if it
// exists, then OMNI_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("decode config %q: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config %q: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Model, "OMNI_MODEL")
	setString(&c.APIKey, "OMNI_API_KEY")
	setString(&c.BaseURL, "OMNI_BASE_URL")
	setFloat(&c.Temperature, "OMNI_TEMPERATURE")
	setInt(&c.MaxTokens, "OMNI_MAX_TOKENS")
	setInt(&c.MaxSteps, "OMNI_MAX_STEPS")
	setBool(&c.ParallelTools, "OMNI_PARALLEL_TOOLS")
	setBool(&c.Trace, "OMNI_TRACE")

	setInt(&c.Ralph.MaxIterations, "OMNI_RALPH_MAX_ITERATIONS")
	setString(&c.Ralph.CompletionPromise, "OMNI_RALPH_COMPLETION_PROMISE")
	setInt(&c.Ralph.IdleThreshold, "OMNI_RALPH_IDLE_THRESHOLD")
	setString(&c.Ralph.ContextStrategy, "OMNI_RALPH_CONTEXT_STRATEGY")
	setString(&c.Ralph.MemoryDir, "OMNI_RALPH_MEMORY_DIR")

	setString(&c.Session.Backend, "OMNI_SESSION_BACKEND")
	setString(&c.Session.Dir, "OMNI_SESSION_DIR")
	setString(&c.Session.Path, "OMNI_SESSION_PATH")
	setString(&c.Session.Addr, "OMNI_SESSION_ADDR")
	if v := os.Getenv("OMNI_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Session.TTL = duration{d}
		}
	}
}

// Validate rejects configurations that cannot produce a working runtime.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("config: model must not be empty")
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("config: max_steps must be positive, got %d", c.MaxSteps)
	}
	if c.Ralph.MaxIterations <= 0 {
		return fmt.Errorf("config: ralph.max_iterations must be positive, got %d", c.Ralph.MaxIterations)
	}
	switch c.Ralph.ContextStrategy {
	case "all", "recent", "summarize":
	default:
		return fmt.Errorf("config: unknown ralph.context_strategy %q", c.Ralph.ContextStrategy)
	}
	switch c.Session.Backend {
	case BackendMemory, BackendFile, BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("config: unknown session.backend %q", c.Session.Backend)
	}
	return nil
}

// SessionTTL returns the configured session TTL.
func (c *Config) SessionTTL() time.Duration { return c.Session.TTL.Duration }

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
