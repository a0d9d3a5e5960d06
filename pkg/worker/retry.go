package worker

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jdziat/simple-tube-jobs/pkg/core"
)

// RetryConfig shapes the waits between reserve attempts after a transient
// broker failure. The n-th wait is Base*Factor^(n-1), capped at Cap, and
// spread by up to ±Jitter of itself.
type RetryConfig struct {
	// Attempts bounds the reserve calls per reservation, the first included.
	Attempts int
	Base     time.Duration
	Cap      time.Duration
	Factor   float64
	Jitter   float64
}

// DefaultRetryConfig returns the backoff used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts: 5,
		Base:     250 * time.Millisecond,
		Cap:      10 * time.Second,
		Factor:   2,
		Jitter:   0.2,
	}
}

// WithRetry sets the backoff applied to transient reserve failures.
func WithRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.ReserveRetry = &cfg
	})
}

// WithRetryAttempts keeps the default backoff with a different attempt limit.
func WithRetryAttempts(attempts int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		cfg := DefaultRetryConfig()
		cfg.Attempts = attempts
		c.ReserveRetry = &cfg
	})
}

// DisableRetry makes every reserve failure surface immediately.
func DisableRetry() WorkerOption {
	return WithRetryAttempts(1)
}

// wait returns the pause before attempt n+1. spread is a sample in [-1, 1).
func (c RetryConfig) wait(n int, spread float64) time.Duration {
	d := float64(c.Base)
	for i := 1; i < n; i++ {
		d *= c.Factor
		if c.Cap > 0 && d >= float64(c.Cap) {
			d = float64(c.Cap)
			break
		}
	}
	if d += d * c.Jitter * spread; d < 0 {
		return 0
	}
	return time.Duration(d)
}

// reserveWithRetry reserves a unit, backing off between attempts while the
// broker reports transient failures.
func (w *Worker) reserveWithRetry(ctx context.Context) (core.Unit, error) {
	cfg := *w.config.ReserveRetry

	for n := 1; ; n++ {
		unit, err := w.broker.Reserve(ctx, w.config.ReserveTimeout)
		if err == nil || !IsRetryableError(err) || n >= cfg.Attempts {
			return unit, err
		}

		w.logger.Debug("reserve failed, retrying", "attempt", n, "error", err)

		timer := time.NewTimer(cfg.wait(n, rand.Float64()*2-1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// IsRetryableError reports whether a reserve error is transient. Empty
// reserve windows, lost connections and context errors are not.
func IsRetryableError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, core.ErrReserveTimeout), core.IsDisconnected(err):
		return false
	}
	// A server-side hiccup or a locked sqlite table clears up on its own.
	return true
}
