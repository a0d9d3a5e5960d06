package core

import (
	"context"
	"time"
)

// Unit is a reserved unit of work, borrowed from the broker for the
// duration of one dispatch.
type Unit interface {
	// ID returns the broker's identifier for the unit.
	ID() string

	// Body returns the raw payload.
	Body() []byte

	// TimeToRun returns the reservation deadline the broker granted.
	TimeToRun(ctx context.Context) (time.Duration, error)

	// Resolution
	Delete(ctx context.Context) error
	Bury(ctx context.Context) error

	// Touch extends the reservation by another time-to-run.
	Touch(ctx context.Context) error
}

// Broker is the consumer side of a work-queue broker.
type Broker interface {
	// Reserve waits up to timeout for a unit from one of the watched tubes.
	// It returns ErrReserveTimeout when nothing arrived in time.
	Reserve(ctx context.Context, timeout time.Duration) (Unit, error)

	// Subscriptions
	Watch(ctx context.Context, tube string) error
	Ignore(ctx context.Context, tube string) error
	ListWatched(ctx context.Context) ([]string, error)

	Close() error
}

// Putter is the producer side of a work-queue broker.
type Putter interface {
	Put(ctx context.Context, tube string, body []byte, params PutParams) (string, error)
}
