// Package metrics records dispatch events as Prometheus metrics.
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jdziat/simple-tube-jobs/pkg/core"
)

// Failure reasons used as the "reason" label.
const (
	ReasonTimeout   = "timeout"
	ReasonUnknown   = "unknown"
	ReasonMalformed = "malformed"
	ReasonError     = "error"
)

// UnregisteredJob is the "job" label of failures for units whose name has
// no handler or could not be decoded. Those names come from the broker
// unchecked and would otherwise grow the label set without bound.
const UnregisteredJob = "unknown"

// Recorder turns dispatch events into Prometheus metrics.
type Recorder struct {
	started   *prometheus.CounterVec
	completed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// New creates a recorder registering its collectors with reg.
// A nil reg uses the default Prometheus registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		started: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tubejobs_jobs_started_total",
				Help: "Total number of jobs whose handler was started",
			},
			[]string{"job"},
		),
		completed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tubejobs_jobs_completed_total",
				Help: "Total number of jobs that completed successfully",
			},
			[]string{"job"},
		),
		failed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tubejobs_jobs_failed_total",
				Help: "Total number of jobs that failed, by reason",
			},
			[]string{"job", "reason"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tubejobs_job_duration_seconds",
				Help:    "Time from reservation to resolution in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job", "outcome"},
		),
	}
}

// Record records a single event.
func (r *Recorder) Record(ev core.Event) {
	switch e := ev.(type) {
	case *core.JobStarted:
		r.started.WithLabelValues(e.Name).Inc()
	case *core.JobCompleted:
		r.completed.WithLabelValues(e.Name).Inc()
		r.duration.WithLabelValues(e.Name, "completed").Observe(e.Duration.Seconds())
	case *core.JobFailed:
		name, reason := e.Name, Reason(e.Error)
		if reason == ReasonUnknown || reason == ReasonMalformed {
			name = UnregisteredJob
		}
		r.failed.WithLabelValues(name, reason).Inc()
		r.duration.WithLabelValues(name, "failed").Observe(e.Duration.Seconds())
	}
}

// Consume records events from ch until ctx is cancelled or ch is closed.
func (r *Recorder) Consume(ctx context.Context, ch <-chan core.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.Record(ev)
		}
	}
}

// Reason classifies a dispatch failure for the "reason" label.
func Reason(err error) string {
	var timeout *core.JobTimeoutError
	var unknown *core.UnknownJobError
	switch {
	case errors.As(err, &timeout):
		return ReasonTimeout
	case errors.As(err, &unknown):
		return ReasonUnknown
	case errors.Is(err, core.ErrMalformedEnvelope):
		return ReasonMalformed
	default:
		return ReasonError
	}
}
