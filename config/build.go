package config

import (
	"fmt"

	"github.com/openomni/omni/agent"
	"github.com/openomni/omni/llm"
	"github.com/openomni/omni/observe"
	"github.com/openomni/omni/session"
)

// NewClient builds the model client described by the configuration, with
// retry on transient provider failures.
func (c *Config) NewClient() (llm.Client, error) {
	var opts []llm.ClientOption
	if c.APIKey != "" {
		opts = append(opts, llm.WithAPIKey(c.APIKey))
	}
	if c.BaseURL != "" {
		opts = append(opts, llm.WithBaseURL(c.BaseURL))
	}
	if c.Temperature != 0 {
		opts = append(opts, llm.WithTemperature(c.Temperature))
	}
	if c.MaxTokens != 0 {
		opts = append(opts, llm.WithMaxTokens(c.MaxTokens))
	}
	client, err := llm.NewLiteClient(c.Model, opts...)
	if err != nil {
		return nil, err
	}
	return llm.NewRetryClient(client, llm.DefaultRetryConfig()), nil
}

// AgentOptions translates the configuration into agent options.
func (c *Config) AgentOptions() []agent.Option {
	opts := []agent.Option{agent.WithMaxSteps(c.MaxSteps)}
	if c.Temperature != 0 {
		opts = append(opts, agent.WithTemperature(c.Temperature))
	}
	if c.MaxTokens != 0 {
		opts = append(opts, agent.WithMaxTokens(c.MaxTokens))
	}
	if c.ParallelTools {
		opts = append(opts, agent.WithParallelTools())
	}
	if c.Trace {
		opts = append(opts, agent.WithTracer(observe.NewOTelTracer("omni")))
	}
	return opts
}

// OpenSessionStore opens the configured session backend.
func (c *Config) OpenSessionStore() (session.Store, error) {
	switch c.Session.Backend {
	case BackendMemory:
		return session.NewMemoryStore(), nil
	case BackendFile:
		return session.NewFileStore(c.Session.Dir)
	case BackendSQLite:
		return session.NewSQLStore(c.Session.Path)
	case BackendRedis:
		var opts []session.RedisOption
		if ttl := c.SessionTTL(); ttl > 0 {
			opts = append(opts, session.WithTTL(ttl))
		}
		return session.NewRedisStore(c.Session.Addr, opts...)
	default:
		return nil, fmt.Errorf("config: unknown session.backend %q", c.Session.Backend)
	}
}
