package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/jdziat/simple-tube-jobs/pkg/core"
	"github.com/jdziat/simple-tube-jobs/pkg/dispatch"
	"github.com/jdziat/simple-tube-jobs/pkg/registry"
)

// Worker reserves units from a broker and dispatches them one at a time.
type Worker struct {
	broker   core.Broker
	registry *registry.Registry
	engine   *dispatch.Engine
	config   WorkerConfig
	logger   *slog.Logger
	jobs     []string
}

// NewWorker creates a new worker reserving from b and dispatching against reg.
func NewWorker(b core.Broker, reg *registry.Registry, opts ...WorkerOption) *Worker {
	config := WorkerConfig{
		ReserveTimeout: DefaultReserveTimeout,
	}

	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}

	if config.ReserveRetry == nil {
		defaultCfg := DefaultRetryConfig()
		config.ReserveRetry = &defaultCfg
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := config.Engine
	if engine == nil {
		if config.WorkerID == "" {
			config.WorkerID = uuid.New().String()
		}
		engine = dispatch.New(reg,
			dispatch.WithLogger(logger),
			dispatch.WithWorkerID(config.WorkerID),
		)
	} else {
		reg = engine.Registry()
		config.WorkerID = engine.WorkerID()
	}

	return &Worker{
		broker:   b,
		registry: reg,
		engine:   engine,
		config:   config,
		logger:   logger,
	}
}

// Engine returns the engine the worker dispatches through.
func (w *Worker) Engine() *dispatch.Engine {
	return w.engine
}

// Jobs returns the job names the worker subscribed to in Prepare.
func (w *Worker) Jobs() []string {
	return append([]string(nil), w.jobs...)
}

// Prepare subscribes the worker to the tubes of the given jobs, or of every
// registered job when names is empty, and unsubscribes it from every other
// tube. It fails with ErrNoHandlersRegistered when the registry is empty
// and with an UnknownJobError for an explicit name without a handler.
func (w *Worker) Prepare(ctx context.Context, names ...string) ([]string, error) {
	if w.registry.Len() == 0 {
		return nil, core.ErrNoHandlersRegistered
	}

	jobs := w.registry.JobNames()
	if len(names) > 0 {
		jobs = make([]string, 0, len(names))
		seen := make(map[string]bool, len(names))
		for _, name := range names {
			if !w.registry.HasHandler(name) {
				return nil, core.UnknownJob(name)
			}
			if !seen[name] {
				seen[name] = true
				jobs = append(jobs, name)
			}
		}
	}

	w.logger.Info(fmt.Sprintf("Working %d jobs: [ %s ]", len(jobs), strings.Join(jobs, " ")),
		"worker_id", w.config.WorkerID,
	)

	wanted := make(map[string]bool, len(jobs))
	for _, name := range jobs {
		wanted[name] = true
		if err := w.broker.Watch(ctx, name); err != nil {
			return nil, fmt.Errorf("jobs: watch %q: %w", name, err)
		}
	}

	watched, err := w.broker.ListWatched(ctx)
	if err != nil {
		return nil, fmt.Errorf("jobs: list watched tubes: %w", err)
	}
	for _, tube := range watched {
		if wanted[tube] {
			continue
		}
		if err := w.broker.Ignore(ctx, tube); err != nil {
			return nil, fmt.Errorf("jobs: ignore %q: %w", tube, err)
		}
	}

	w.jobs = jobs
	return jobs, nil
}

// Run prepares the worker and then reserves and dispatches units until ctx
// is cancelled or the broker connection is lost. It returns ctx.Err() on
// shutdown and the BrokerDisconnectedError when the connection drops.
func (w *Worker) Run(ctx context.Context, names ...string) error {
	if _, err := w.Prepare(ctx, names...); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		unit, err := w.reserveWithRetry(ctx)
		if err != nil {
			switch {
			case errors.Is(err, core.ErrReserveTimeout):
				continue
			case ctx.Err() != nil:
				return ctx.Err()
			case core.IsDisconnected(err):
				w.logger.Error("lost broker connection", "worker_id", w.config.WorkerID, "error", err)
				return err
			default:
				w.logger.Error("failed to reserve after retries", "worker_id", w.config.WorkerID, "error", err)
				continue
			}
		}

		if err := w.engine.DispatchOne(ctx, unit); err != nil {
			if core.IsDisconnected(err) {
				w.logger.Error("lost broker connection", "worker_id", w.config.WorkerID, "error", err)
			}
			return err
		}
	}
}

// RunOnce reserves a single unit, waiting until one arrives or ctx ends,
// and dispatches it. The worker is prepared for every registered job if
// Prepare has not been called.
func (w *Worker) RunOnce(ctx context.Context) error {
	if w.jobs == nil {
		if _, err := w.Prepare(ctx); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		unit, err := w.reserveWithRetry(ctx)
		if errors.Is(err, core.ErrReserveTimeout) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		return w.engine.DispatchOne(ctx, unit)
	}
}
