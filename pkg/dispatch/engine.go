package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/simple-tube-jobs/pkg/core"
	"github.com/jdziat/simple-tube-jobs/pkg/envelope"
	intctx "github.com/jdziat/simple-tube-jobs/pkg/internal/context"
	"github.com/jdziat/simple-tube-jobs/pkg/internal/handler"
	"github.com/jdziat/simple-tube-jobs/pkg/registry"
	"github.com/jdziat/simple-tube-jobs/pkg/security"
)

// deadlineSlack is subtracted from a unit's time-to-run so the engine gives
// up before the broker redelivers the unit.
const deadlineSlack = time.Second

// Engine dispatches reserved units against a Registry.
type Engine struct {
	registry *registry.Registry
	logger   *slog.Logger
	workerID string

	mu        sync.RWMutex
	eventSubs []chan core.Event
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger receiving the begin, end and error lines.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithWorkerID sets the worker id attached to log lines and the dispatch context.
func WithWorkerID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.workerID = id
		}
	}
}

// New creates an Engine dispatching against reg.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		logger:   slog.Default(),
		workerID: uuid.New().String(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry the engine dispatches against.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// WorkerID returns the engine's worker id.
func (e *Engine) WorkerID() string {
	return e.workerID
}

// DispatchOne runs one reserved unit to resolution. Handler failures,
// timeouts, unknown jobs and malformed envelopes are handled here and
// reported through the logger, the event stream and the error handler.
//
// A non-nil error is returned only when the broker connection is lost or
// ctx was cancelled mid-dispatch. In both cases the unit is left to the
// broker, which redelivers it once its reservation expires.
//
// Handlers must return once ctx is done. A handler still running at its
// deadline is abandoned rather than stopped: its goroutine keeps running
// while the caller moves on to the next unit, so one-unit-at-a-time
// holds only for handlers that honour ctx.Done().
func (e *Engine) DispatchOne(ctx context.Context, unit core.Unit) error {
	start := time.Now()

	env, err := envelope.Decode(unit.Body())
	if err != nil {
		return e.fail(ctx, unit, env, start, err)
	}

	h, ok := e.registry.Handler(env.Name)
	if !ok {
		return e.fail(ctx, unit, env, start, core.UnknownJob(env.Name))
	}

	e.logBegin(env, unit)
	e.Emit(&core.JobStarted{
		Name:      env.Name,
		UnitID:    unit.ID(),
		Args:      env.Args,
		Style:     env.Style,
		Timestamp: start,
	})

	runCtx := intctx.WithDispatchContext(ctx, &intctx.DispatchContext{
		Name:     env.Name,
		Unit:     unit,
		Style:    env.Style,
		Options:  env.Options,
		WorkerID: e.workerID,
	})

	if err := e.run(runCtx, env, h, unit); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if core.IsDisconnected(err) {
			return err
		}
		return e.fail(ctx, unit, env, start, err)
	}

	if env.Style != core.StyleExtended || !env.Options.ExplicitDelete {
		// The handler already finished; resolve even if shutdown began meanwhile.
		if err := unit.Delete(context.WithoutCancel(ctx)); err != nil {
			if core.IsDisconnected(err) {
				return err
			}
			return e.fail(ctx, unit, env, start, fmt.Errorf("jobs: delete unit %s: %w", unit.ID(), err))
		}
		e.logEnd(env.Name, unit, time.Since(start), false)
	}

	e.Emit(&core.JobCompleted{
		Name:      env.Name,
		UnitID:    unit.ID(),
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	})
	return nil
}

// run executes before-filters and the handler for env, honouring the
// style's deadline rules.
func (e *Engine) run(ctx context.Context, env core.Envelope, h *handler.Handler, unit core.Unit) error {
	if env.Style == core.StyleExtended && env.Options.RunOutsideTimeout {
		return invoke(ctx, func(ctx context.Context) error {
			return h.Execute(ctx, env.Args, unit, env.Options)
		})
	}

	ttr, err := unit.TimeToRun(ctx)
	if err != nil {
		return err
	}

	filters := e.registry.Filters()
	var phase atomic.Value
	phase.Store(core.PhaseBeforeFilters)

	return runWithDeadline(ctx, env.Name, ttr-deadlineSlack, &phase, func(ctx context.Context) error {
		for _, filter := range filters {
			if err := filter(ctx, env.Name); err != nil {
				return err
			}
		}
		phase.Store(core.PhaseHandler)
		return h.Execute(ctx, env.Args, unit, env.Options)
	})
}

// runWithDeadline runs fn and gives up on it once deadline elapses. fn's
// context is cancelled at that point; if fn does not return, it is
// abandoned and its eventual result discarded. A non-positive deadline
// runs fn without one.
func runWithDeadline(ctx context.Context, name string, deadline time.Duration, phase *atomic.Value, fn func(context.Context) error) error {
	if deadline <= 0 {
		return invoke(ctx, fn)
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- invoke(deadlineCtx, fn)
	}()

	timeout := func() error {
		return &core.JobTimeoutError{Job: name, Deadline: deadline, Phase: phase.Load().(string)}
	}

	select {
	case err := <-done:
		// A handler that bailed out because its context expired still timed out.
		if err != nil && ctx.Err() == nil && errors.Is(deadlineCtx.Err(), context.DeadlineExceeded) {
			return timeout()
		}
		return err
	case <-deadlineCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return timeout()
	}
}

// invoke calls fn, converting a panic into a HandlerPanicError.
func invoke(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &core.HandlerPanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

// fail runs the failure path for unit and always resolves it: the unit is
// buried unless the unit opted out and an error handler is registered.
func (e *Engine) fail(ctx context.Context, unit core.Unit, env core.Envelope, start time.Time, cause error) error {
	e.logError(env.Name, unit, cause)

	onError := e.registry.ErrorHandler()

	buried := false
	if !env.Options.NoBuryForErrorHandler || onError == nil {
		if err := unit.Bury(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn("failed to bury unit", "unit_id", unit.ID(), "job", env.Name, "error", err)
		} else {
			buried = true
		}
	}

	elapsed := time.Since(start)
	e.logEnd(env.Name, unit, elapsed, true)
	e.Emit(&core.JobFailed{
		Name:      env.Name,
		UnitID:    unit.ID(),
		Error:     cause,
		Buried:    buried,
		Duration:  elapsed,
		Timestamp: time.Now(),
	})

	if onError != nil {
		e.callErrorHandler(ctx, onError, registry.Failure{
			Err:     cause,
			Name:    env.Name,
			Args:    env.Args,
			Unit:    unit,
			Options: env.Options,
		})
	}
	return nil
}

func (e *Engine) callErrorHandler(ctx context.Context, h *registry.ErrorHandler, f registry.Failure) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("error handler panicked",
				"job", f.Name,
				"panic", r,
				"stack", security.TrimStack(debug.Stack()),
			)
		}
	}()
	h.Call(ctx, f)
}

func (e *Engine) logBegin(env core.Envelope, unit core.Unit) {
	e.logger.Info(beginLine(env.Name, env.Args),
		"job", env.Name,
		"unit_id", unit.ID(),
		"style", env.Style.String(),
		"worker_id", e.workerID,
	)
}

func (e *Engine) logEnd(name string, unit core.Unit, elapsed time.Duration, failed bool) {
	e.logger.Info(endLine(name, elapsed, failed),
		"job", name,
		"unit_id", unit.ID(),
		"duration_ms", elapsed.Milliseconds(),
		"worker_id", e.workerID,
	)
}

func (e *Engine) logError(name string, unit core.Unit, err error) {
	attrs := []any{"job", name, "unit_id", unit.ID(), "worker_id", e.workerID}

	var panicErr *core.HandlerPanicError
	if errors.As(err, &panicErr) {
		attrs = append(attrs, "stack", security.TrimStack(panicErr.Stack))
	}

	e.logger.Error(errorLine(err), attrs...)
}

// beginLine renders "Working <name> (<k>=<v> ...)" with keys in sorted order.
func beginLine(name string, args map[string]any) string {
	if len(args) == 0 {
		return "Working " + name
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return fmt.Sprintf("Working %s (%s)", name, strings.Join(pairs, " "))
}

// endLine renders "Finished <name> in <ms>ms", suffixed " (failed)" on failure.
func endLine(name string, elapsed time.Duration, failed bool) string {
	line := fmt.Sprintf("Finished %s in %dms", name, elapsed.Milliseconds())
	if failed {
		line += " (failed)"
	}
	return line
}

// errorLine renders "Exception <type> -> <message>".
func errorLine(err error) string {
	return fmt.Sprintf("Exception %s -> %s", errorClass(err), security.SanitizeErrorMessage(err.Error()))
}

// errorClass names the error's type, looking through fmt.Errorf wrapping.
func errorClass(err error) string {
	for {
		name := fmt.Sprintf("%T", err)
		if !strings.HasPrefix(name, "*fmt.wrapError") {
			return name
		}
		next := errors.Unwrap(err)
		if next == nil {
			return name
		}
		err = next
	}
}
