package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jdziat/simple-tube-jobs/pkg/config"
	"github.com/jdziat/simple-tube-jobs/pkg/dispatch"
	"github.com/jdziat/simple-tube-jobs/pkg/metrics"
	"github.com/jdziat/simple-tube-jobs/pkg/producer"
	"github.com/jdziat/simple-tube-jobs/pkg/registry"
	"github.com/jdziat/simple-tube-jobs/pkg/worker"
)

const shutdownTimeout = 5 * time.Second

// Option configures Run.
type Option func(*options)

type options struct {
	output   io.Writer
	schedule func(*producer.Producer)
	ready    func(*Runtime)
}

// WithOutput sends log output to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.output = w
	}
}

// WithSchedules runs a scheduler next to the worker. fn registers the
// schedules on the producer before the scheduler starts.
func WithSchedules(fn func(*producer.Producer)) Option {
	return func(o *options) {
		o.schedule = fn
	}
}

// WithReady calls fn once the runtime is wired, before the worker starts.
func WithReady(fn func(*Runtime)) Option {
	return func(o *options) {
		o.ready = fn
	}
}

// Runtime holds the components Run wired together.
type Runtime struct {
	Logger   *slog.Logger
	Broker   Broker
	Engine   *dispatch.Engine
	Producer *producer.Producer
	Worker   *worker.Worker
	Server   *Server
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Run wires a worker from cfg and reg and runs it until ctx is cancelled or
// the broker connection is lost.
func Run(ctx context.Context, cfg *config.Config, reg *registry.Registry, opts ...Option) error {
	o := options{output: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	logger := NewLogger(cfg, o.output)
	workerID := uuid.New().String()

	b, err := OpenBroker(ctx, cfg, workerID)
	if err != nil {
		logger.Error("failed to connect to broker", "driver", cfg.Broker.Driver, "error", err)
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("failed to close broker", "error", err)
		}
	}()

	rt := &Runtime{
		Logger:   logger,
		Broker:   b,
		Engine:   dispatch.New(reg, dispatch.WithLogger(logger), dispatch.WithWorkerID(workerID)),
		Producer: producer.New(b, producer.WithLogger(logger)),
	}
	rt.Worker = worker.NewWorker(b, reg,
		worker.WithEngine(rt.Engine),
		worker.WithLogger(logger),
		worker.WithReserveTimeout(cfg.Worker.ReserveTimeout),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		recorder := metrics.New(promReg)
		events := rt.Engine.Events()
		defer rt.Engine.Unsubscribe(events)
		go recorder.Consume(runCtx, events)

		rt.Server = NewServer(promReg, cfg.Metrics.Path, logger)
		if err := rt.Server.Start(cfg.Metrics.Addr); err != nil {
			return err
		}
		defer func() {
			stopCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stop()
			if err := rt.Server.Stop(stopCtx); err != nil {
				logger.Warn("failed to stop metrics server", "error", err)
			}
		}()
	}

	if o.schedule != nil {
		o.schedule(rt.Producer)
		go func() {
			if err := rt.Producer.RunScheduler(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scheduler stopped", "error", err)
			}
		}()
	}

	if o.ready != nil {
		o.ready(rt)
	}

	return rt.Worker.Run(runCtx, cfg.Worker.Jobs...)
}

// ExitCode maps Run's result to a process exit code: 0 for a clean
// shutdown, 1 for anything else, which is logged.
func ExitCode(err error, logger *slog.Logger) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	if logger != nil {
		logger.Error("worker stopped", "error", err)
	}
	return 1
}
