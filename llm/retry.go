package llm

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/openomni/omni/schema"
)

// RetryConfig controls exponential backoff for transient model failures.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Base         float64
	Jitter       bool
}

// DefaultRetryConfig matches the runtime defaults: 3 attempts, 1s initial
// delay doubling up to 30s, with jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Base:         2.0,
		Jitter:       true,
	}
}

// RetryClient wraps a Client and retries transient failures. Permanent
// failures and context cancellation pass through immediately.
type RetryClient struct {
	inner Client
	cfg   RetryConfig
	rng   func() float64
}

// NewRetryClient decorates inner with retry behavior.
func NewRetryClient(inner Client, cfg RetryConfig) *RetryClient {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Base <= 1 {
		cfg.Base = 2.0
	}
	return &RetryClient{inner: inner, cfg: cfg, rng: rand.Float64}
}

// Generate implements Client.
func (c *RetryClient) Generate(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.delayFor(attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !schema.IsTransient(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("llm retry exhausted after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

// Model returns the wrapped client's model name.
func (c *RetryClient) Model() string { return c.inner.Model() }

// delayFor computes the backoff before retry attempt i, capped at MaxDelay.
// Jitter scales the delay by a uniform factor in [0.5, 1.0).
func (c *RetryClient) delayFor(i int) time.Duration {
	delay := float64(c.cfg.InitialDelay)
	for k := 0; k < i; k++ {
		delay *= c.cfg.Base
	}
	if max := float64(c.cfg.MaxDelay); c.cfg.MaxDelay > 0 && delay > max {
		delay = max
	}
	if c.cfg.Jitter {
		delay *= 0.5 + c.rng()*0.5
	}
	return time.Duration(delay)
}
