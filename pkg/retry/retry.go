// Package retry re-runs flaky lookups a bounded number of times.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultInterval = 30 * time.Second

type config struct {
	interval    time.Duration
	backoff     bool
	maxAttempts int
}

// Option configures Do.
type Option func(*config)

// WithInterval sets the wait between attempts (the initial wait when backoff
// is enabled).
func WithInterval(i time.Duration) Option {
	return func(c *config) {
		c.interval = i
	}
}

// WithBackoff doubles the interval after each failed attempt, capped at five
// times the initial interval.
func WithBackoff(b bool) Option {
	return func(c *config) {
		c.backoff = b
	}
}

// WithMaxAttempts bounds the number of times fn runs. Zero means unlimited.
func WithMaxAttempts(a int) Option {
	return func(c *config) {
		c.maxAttempts = a
	}
}

// Do runs fn until it returns nil, the attempts are exhausted, or ctx is
// done. It returns the last error from fn, or ctx.Err(). Wrap an error with
// backoff.Permanent to stop early.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	cfg := &config{interval: defaultInterval}
	for _, opt := range opts {
		opt(cfg)
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(cfg.interval)
	if cfg.backoff {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = cfg.interval
		eb.MaxInterval = 5 * cfg.interval
		eb.Multiplier = 2
		eb.RandomizationFactor = 0
		eb.MaxElapsedTime = 0
		eb.Reset()
		b = eb
	}
	if cfg.maxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(cfg.maxAttempts-1))
	}

	return backoff.Retry(fn, backoff.WithContext(b, ctx))
}
