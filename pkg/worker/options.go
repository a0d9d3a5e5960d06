package worker

import (
	"log/slog"
	"time"

	"github.com/jdziat/simple-tube-jobs/pkg/dispatch"
)

// DefaultReserveTimeout bounds each reserve call so the loop notices shutdown.
const DefaultReserveTimeout = time.Second

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	ReserveTimeout time.Duration
	WorkerID       string
	Logger         *slog.Logger
	ReserveRetry   *RetryConfig
	Engine         *dispatch.Engine
}

// WithReserveTimeout sets how long a single reserve call waits for work.
// Non-positive values fall back to DefaultReserveTimeout.
func WithReserveTimeout(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d <= 0 {
			d = DefaultReserveTimeout
		}
		c.ReserveTimeout = d
	})
}

// WithLogger sets the worker's logger. It is shared with the engine the
// worker creates.
func WithLogger(l *slog.Logger) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Logger = l
	})
}

// WithWorkerID sets the worker id reported in logs and the dispatch context.
func WithWorkerID(id string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.WorkerID = id
	})
}

// WithEngine makes the worker dispatch through e instead of building its own
// engine. Use it to share an engine whose event stream is already observed.
func WithEngine(e *dispatch.Engine) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Engine = e
	})
}
