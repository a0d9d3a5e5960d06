// Package jobs runs handlers for units of work reserved from a
// beanstalkd-style work queue.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	// Connect and register handlers
//	broker, _ := jobs.DialBeanstalk("beanstalk://localhost:11300/")
//	reg := jobs.NewRegistry()
//	reg.Register("send.email", func(ctx context.Context, args map[string]any) error {
//	    return sendEmail(args["to"].(string))
//	})
//
//	// Enqueue a unit of work
//	jobs.NewProducer(broker).Enqueue(ctx, "send.email", map[string]any{"to": "a@b.c"})
//
//	// Work all registered jobs
//	worker := jobs.NewWorker(broker, reg)
//	worker.Run(ctx)
package jobs

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/simple-tube-jobs/pkg/broker/beanstalk"
	"github.com/jdziat/simple-tube-jobs/pkg/core"
	"github.com/jdziat/simple-tube-jobs/pkg/dispatch"
	"github.com/jdziat/simple-tube-jobs/pkg/envelope"
	"github.com/jdziat/simple-tube-jobs/pkg/jobctx"
	"github.com/jdziat/simple-tube-jobs/pkg/producer"
	"github.com/jdziat/simple-tube-jobs/pkg/registry"
	"github.com/jdziat/simple-tube-jobs/pkg/schedule"
	"github.com/jdziat/simple-tube-jobs/pkg/security"
	"github.com/jdziat/simple-tube-jobs/pkg/storage"
	"github.com/jdziat/simple-tube-jobs/pkg/worker"
)

// Type aliases
type (
	// Unit is a reserved unit of work.
	Unit = core.Unit

	// Broker reserves units from watched tubes.
	Broker = core.Broker

	// Putter places new units on a tube.
	Putter = core.Putter

	// Style selects how a handler is invoked.
	Style = core.Style

	// StyleOptions tunes extended-style execution.
	StyleOptions = core.StyleOptions

	// Envelope is the decoded content of a unit.
	Envelope = core.Envelope

	// Event is the interface for all dispatch events.
	Event = core.Event

	// JobStarted is emitted when a handler begins.
	JobStarted = core.JobStarted

	// JobCompleted is emitted when a handler succeeds.
	JobCompleted = core.JobCompleted

	// JobFailed is emitted when a unit takes the failure path.
	JobFailed = core.JobFailed

	// Registry maps job names to handlers.
	Registry = registry.Registry

	// FilterFunc runs before every classic-style handler.
	FilterFunc = registry.FilterFunc

	// Failure describes a failed unit to an error handler.
	Failure = registry.Failure

	// Engine dispatches one reserved unit at a time.
	Engine = dispatch.Engine

	// Worker reserves units and hands them to the engine.
	Worker = worker.Worker

	// WorkerOption configures a Worker.
	WorkerOption = worker.WorkerOption

	// WorkerConfig holds worker configuration.
	WorkerConfig = worker.WorkerConfig

	// Producer encodes and enqueues units.
	Producer = producer.Producer

	// Option modifies enqueue Options.
	Option = producer.Option

	// Options holds enqueue parameters.
	Options = producer.Options

	// ScheduledJob holds configuration for a recurring enqueue.
	ScheduledJob = producer.ScheduledJob

	// Schedule defines when a job should run next.
	Schedule = schedule.Schedule

	// BeanstalkBroker is a Broker backed by a beanstalkd connection.
	BeanstalkBroker = beanstalk.Broker

	// SQLBroker is a Broker backed by a GORM database.
	SQLBroker = storage.Broker
)

// Styles
const (
	StyleClassic  = core.StyleClassic
	StyleExtended = core.StyleExtended
)

// Security limits
const (
	MaxJobNameLength      = security.MaxJobNameLength
	MaxEnvelopeSize       = security.MaxEnvelopeSize
	MaxErrorMessageLength = security.MaxErrorMessageLength
)

// Default values
const (
	DefaultPriority       = producer.DefaultPriority
	DefaultTTR            = producer.DefaultTTR
	DefaultReserveTimeout = worker.DefaultReserveTimeout
)

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return registry.New()
}

// NewWorker creates a worker reserving from b with handlers from reg.
func NewWorker(b Broker, reg *Registry, opts ...WorkerOption) *Worker {
	return worker.NewWorker(b, reg, opts...)
}

// NewProducer creates a producer putting units through p.
func NewProducer(p Putter, opts ...producer.ProducerOption) *Producer {
	return producer.New(p, opts...)
}

// DialBeanstalk connects to the beanstalkd server at a beanstalk:// URL.
func DialBeanstalk(url string) (*BeanstalkBroker, error) {
	return beanstalk.DialURL(url)
}

// NewSQLBroker creates a database-backed broker. Call Migrate before use.
func NewSQLBroker(db *gorm.DB, opts ...storage.BrokerOption) *SQLBroker {
	return storage.NewBroker(db, opts...)
}

// Encode builds the payload for a unit of work.
func Encode(name string, args any, style Style, opts StyleOptions) ([]byte, error) {
	return envelope.Encode(name, args, style, opts)
}

// Decode parses a unit payload.
func Decode(payload []byte) (Envelope, error) {
	return envelope.Decode(payload)
}

// ValidateJobName validates a job name.
func ValidateJobName(name string) error {
	return security.ValidateJobName(name)
}

// SanitizeErrorMessage truncates and sanitizes error messages for logging.
func SanitizeErrorMessage(msg string) string {
	return security.SanitizeErrorMessage(msg)
}

// Enqueue option functions

// Priority sets the unit priority (lower = reserved first).
func Priority(p uint32) Option {
	return producer.Priority(p)
}

// Delay holds the unit back for a duration.
func Delay(d time.Duration) Option {
	return producer.Delay(d)
}

// At holds the unit back until t.
func At(t time.Time) Option {
	return producer.At(t)
}

// TTR sets the unit's time-to-run.
func TTR(d time.Duration) Option {
	return producer.TTR(d)
}

// Extended encodes the unit in the extended style with opts.
func Extended(opts StyleOptions) Option {
	return producer.Extended(opts)
}

// Worker option functions

// WithReserveTimeout sets how long each reserve waits.
func WithReserveTimeout(d time.Duration) WorkerOption {
	return worker.WithReserveTimeout(d)
}

// WithLogger sets the worker and engine logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return worker.WithLogger(l)
}

// WithWorkerID sets the worker identity.
func WithWorkerID(id string) WorkerOption {
	return worker.WithWorkerID(id)
}

// Schedule functions

// Every creates a schedule that runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return schedule.Every(d)
}

// Daily creates a schedule that runs at a specific time each day.
func Daily(hour, minute int) Schedule {
	return schedule.Daily(hour, minute)
}

// Weekly creates a schedule that runs at a specific day and time each week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return schedule.Weekly(day, hour, minute)
}

// Cron creates a schedule from a cron expression.
func Cron(expr string) Schedule {
	return schedule.Cron(expr)
}

// UnitFromContext returns the reserved unit from context, or nil outside a handler.
func UnitFromContext(ctx context.Context) Unit {
	return jobctx.UnitFromContext(ctx)
}

// JobNameFromContext returns the running job name, or "" outside a handler.
func JobNameFromContext(ctx context.Context) string {
	return jobctx.JobNameFromContext(ctx)
}

// Touch extends the reservation of the unit running in ctx.
func Touch(ctx context.Context) error {
	return jobctx.Touch(ctx)
}
