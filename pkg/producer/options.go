package producer

import (
	"time"

	"github.com/jdziat/simple-tube-jobs/pkg/core"
)

const (
	// DefaultPriority is beanstalkd's conventional middle priority.
	DefaultPriority uint32 = 65536

	// DefaultTTR is the time-to-run granted when none is given.
	DefaultTTR = 120 * time.Second
)

// Options holds configuration for one enqueue.
type Options struct {
	Priority     uint32
	Delay        time.Duration
	RunAt        *time.Time
	TTR          time.Duration
	Style        core.Style
	StyleOptions core.StyleOptions
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		Priority: DefaultPriority,
		TTR:      DefaultTTR,
		Style:    core.StyleClassic,
	}
}

// PutParams resolves the options into broker parameters. RunAt wins over
// Delay; a RunAt in the past means no delay.
func (o *Options) PutParams(now time.Time) core.PutParams {
	delay := o.Delay
	if o.RunAt != nil {
		delay = o.RunAt.Sub(now)
	}
	if delay < 0 {
		delay = 0
	}
	return core.PutParams{Priority: o.Priority, Delay: delay, TTR: o.TTR}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// Priority sets the job priority (lower = runs first).
func Priority(p uint32) Option {
	return optionFunc(func(o *Options) {
		o.Priority = p
	})
}

// Delay makes the job ready only after d.
func Delay(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		o.Delay = d
	})
}

// At makes the job ready at t.
func At(t time.Time) Option {
	return optionFunc(func(o *Options) {
		o.RunAt = &t
	})
}

// TTR sets the job's time-to-run. Workers give up one second before it elapses.
func TTR(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		o.TTR = d
	})
}

// Extended sends the job in the extended envelope style with the given options.
func Extended(opts core.StyleOptions) Option {
	return optionFunc(func(o *Options) {
		o.Style = core.StyleExtended
		o.StyleOptions = opts
	})
}
