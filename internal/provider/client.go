package provider

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/verdantly/proposal-cli/internal/fault"
	"github.com/verdantly/proposal-cli/internal/resilience"
)

// Config controls the retry policy for one logical completion call.
type Config struct {
	// MaxAttempts is the total number of physical calls per logical call
	// (including the first). Default: 3.
	MaxAttempts int

	// BaseBackoff is the delay after the first transient failure; attempt n
	// waits n × BaseBackoff. Default: 2s.
	BaseBackoff time.Duration

	// MinCooldown is applied after a 429 that carries no usable wait hint.
	// Default: 15s.
	MinCooldown time.Duration

	// RequestsPerMinute throttles outgoing calls client-side. Zero disables
	// the limiter.
	RequestsPerMinute float64
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 2 * time.Second
	}
	if c.MinCooldown <= 0 {
		c.MinCooldown = 15 * time.Second
	}
	return c
}

// Client turns a Driver's single physical call into one logical call with
// classification-driven retries. All Clients in the process share one
// rate-limit cooldown watermark unless a private one is injected.
type Client struct {
	driver   Driver
	cfg      Config
	limiter  *rate.Limiter
	cooldown *Cooldown
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// New creates a Client using the process-wide cooldown watermark.
func New(driver Driver, cfg Config) *Client {
	return newClient(driver, cfg, sharedCooldown)
}

// NewWithCooldown creates a Client with its own watermark. Used by tests and
// by callers that deliberately isolate providers from each other.
func NewWithCooldown(driver Driver, cfg Config, cooldown *Cooldown) *Client {
	return newClient(driver, cfg, cooldown)
}

func newClient(driver Driver, cfg Config, cooldown *Cooldown) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		driver:   driver,
		cfg:      cfg,
		cooldown: cooldown,
		now:      time.Now,
		sleep:    sleepContext,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1)
	}
	return c
}

// Complete performs one logical completion call: it waits out any shared
// cooldown window, issues the request, and retries transient failures with
// linearly increasing backoff. Rate-limit responses extend the shared
// watermark before the next attempt.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	var lastErr error
	var rateLimited bool

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if wait := c.cooldown.Remaining(c.now()); wait > 0 {
			zap.L().Debug("provider: waiting out rate-limit cooldown",
				zap.String("driver", c.driver.Name()),
				zap.Duration("wait", wait),
			)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, fault.Wrap(fault.KindProvider, err, "provider call aborted during cooldown")
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fault.Wrap(fault.KindProvider, err, "provider call aborted by pacing limiter")
			}
		}

		comp, err := c.driver.Complete(ctx, systemPrompt, userPrompt)
		if err == nil {
			return comp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fault.Wrap(fault.KindProvider, err, "provider call cancelled")
		}

		retryable, isRateLimit, wait := c.classify(err)
		if !retryable {
			return nil, fault.Wrap(fault.KindProvider, err, "provider call failed")
		}

		if isRateLimit {
			rateLimited = true
			c.cooldown.Extend(c.now().Add(wait))
			zap.L().Warn("provider: rate limited, extending cooldown",
				zap.String("driver", c.driver.Name()),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
			)
			continue // the cooldown wait happens at the top of the loop
		}

		rateLimited = false
		if attempt < c.cfg.MaxAttempts {
			delay := time.Duration(attempt) * c.cfg.BaseBackoff
			zap.L().Warn("provider: transient failure, backing off",
				zap.String("driver", c.driver.Name()),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, fault.Wrap(fault.KindProvider, err, "provider call aborted during backoff")
			}
		}
	}

	if rateLimited {
		wait := c.cooldown.Remaining(c.now())
		if wait <= 0 {
			wait = c.cfg.MinCooldown
		}
		return nil, fault.RateLimited(wait, "provider rate limit persisted through all attempts")
	}
	return nil, fault.Wrap(fault.KindProvider, lastErr, "provider failed after exhausting attempts")
}

// classify decides how the retry loop treats an error: not at all, as a
// generic transient, or as a rate limit with a concrete wait.
func (c *Client) classify(err error) (retryable, isRateLimit bool, wait time.Duration) {
	var callErr *CallError
	if errors.As(err, &callErr) {
		if callErr.StatusCode == 429 {
			wait = callErr.RetryAfter
			if wait <= 0 {
				wait = resilience.ParseRetryHint(callErr.Message)
			}
			if wait <= 0 {
				wait = c.cfg.MinCooldown
			}
			return true, true, wait
		}
		return resilience.IsTransientHTTPStatus(callErr.StatusCode), false, 0
	}
	return resilience.IsTransient(err), false, 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
