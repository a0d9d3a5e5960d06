package producer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jdziat/simple-tube-jobs/pkg/core"
	"github.com/jdziat/simple-tube-jobs/pkg/envelope"
	"github.com/jdziat/simple-tube-jobs/pkg/schedule"
	"github.com/jdziat/simple-tube-jobs/pkg/security"
)

// DefaultTickInterval is how often RunScheduler checks for due schedules.
const DefaultTickInterval = time.Second

// ScheduledJob is a recurring enqueue.
type ScheduledJob struct {
	Name     string
	Args     any
	Schedule schedule.Schedule
	Options  []Option
}

// Producer enqueues jobs through a core.Putter.
type Producer struct {
	putter       core.Putter
	logger       *slog.Logger
	tickInterval time.Duration

	mu            sync.RWMutex
	scheduledJobs map[string]*ScheduledJob
}

// ProducerOption configures a Producer.
type ProducerOption func(*Producer)

// WithLogger sets the producer's logger.
func WithLogger(l *slog.Logger) ProducerOption {
	return func(p *Producer) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTickInterval sets how often RunScheduler checks for due schedules.
func WithTickInterval(d time.Duration) ProducerOption {
	return func(p *Producer) {
		if d > 0 {
			p.tickInterval = d
		}
	}
}

// New creates a producer putting into putter.
func New(putter core.Putter, opts ...ProducerOption) *Producer {
	p := &Producer{
		putter:       putter,
		logger:       slog.Default(),
		tickInterval: DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue puts a job into the tube named after it and returns the broker's
// unit id. args must encode to a JSON object (nil means no arguments).
func (p *Producer) Enqueue(ctx context.Context, name string, args any, opts ...Option) (string, error) {
	if err := security.ValidateJobName(name); err != nil {
		return "", err
	}

	options := NewOptions()
	for _, opt := range opts {
		opt.Apply(options)
	}

	body, err := envelope.Encode(name, args, options.Style, options.StyleOptions)
	if err != nil {
		return "", err
	}

	id, err := p.putter.Put(ctx, name, body, options.PutParams(time.Now()))
	if err != nil {
		return "", fmt.Errorf("jobs: enqueue %q: %w", name, err)
	}
	return id, nil
}

// Schedule registers a recurring enqueue of name with args. A later call
// with the same name replaces the earlier one.
func (p *Producer) Schedule(name string, sched schedule.Schedule, args any, opts ...Option) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scheduledJobs == nil {
		p.scheduledJobs = make(map[string]*ScheduledJob)
	}
	p.scheduledJobs[name] = &ScheduledJob{
		Name:     name,
		Args:     args,
		Schedule: sched,
		Options:  opts,
	}
}

// ScheduledJobs returns the registered schedules in name order.
func (p *Producer) ScheduledJobs() []*ScheduledJob {
	p.mu.RLock()
	defer p.mu.RUnlock()

	jobs := make([]*ScheduledJob, 0, len(p.scheduledJobs))
	for _, sj := range p.scheduledJobs {
		jobs = append(jobs, sj)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

// RunScheduler enqueues scheduled jobs as they come due until ctx is
// cancelled. Each schedule first fires at its first run time after the
// scheduler starts. Failed enqueues are logged and retried on the next tick.
func (p *Producer) RunScheduler(ctx context.Context) error {
	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()

	started := time.Now()
	lastRun := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now()
			for _, sj := range p.ScheduledJobs() {
				last, ok := lastRun[sj.Name]
				if !ok {
					last = started
				}
				if sj.Schedule.Next(last).After(now) {
					continue
				}

				if _, err := p.Enqueue(ctx, sj.Name, sj.Args, sj.Options...); err != nil {
					p.logger.Error("failed to enqueue scheduled job", "name", sj.Name, "error", err)
					continue
				}
				lastRun[sj.Name] = now
			}
		}
	}
}
