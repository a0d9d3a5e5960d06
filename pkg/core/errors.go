package core

import (
	"errors"
	"fmt"
	"time"
)

// Validation and dispatch errors
var (
	ErrInvalidJobName       = errors.New("jobs: invalid job name")
	ErrJobNameTooLong       = errors.New("jobs: job name too long")
	ErrEnvelopeTooLarge     = errors.New("jobs: envelope exceeds size limit")
	ErrNoHandlersRegistered = errors.New("jobs: no handlers registered")
	ErrMalformedEnvelope    = errors.New("jobs: malformed envelope")
	ErrUnitNotOwned         = errors.New("jobs: unit not reserved by this worker")
	ErrUnitNotFound         = errors.New("jobs: unit not found")

	// ErrReserveTimeout is returned by Broker.Reserve when no unit became
	// available within the reserve window. It is not a failure.
	ErrReserveTimeout = errors.New("jobs: reserve timed out")
)

// UnknownJobError reports a job name with no registered handler.
type UnknownJobError struct {
	Name string
}

func (e *UnknownJobError) Error() string {
	return fmt.Sprintf("jobs: no such job %q", e.Name)
}

// UnknownJob returns an UnknownJobError for name.
func UnknownJob(name string) error {
	return &UnknownJobError{Name: name}
}

// Deadline phases reported by JobTimeoutError.
const (
	PhaseBeforeFilters = "before filters"
	PhaseHandler       = "handler"
)

// JobTimeoutError indicates a job exceeded its engine deadline.
type JobTimeoutError struct {
	Job      string
	Deadline time.Duration
	Phase    string
}

func (e *JobTimeoutError) Error() string {
	return fmt.Sprintf("%s hit %gs timeout in %s", e.Job, e.Deadline.Seconds(), e.Phase)
}

// BrokerDisconnectedError indicates the broker connection is gone.
// It is fatal for the worker process.
type BrokerDisconnectedError struct {
	Op  string
	Err error
}

func (e *BrokerDisconnectedError) Error() string {
	return fmt.Sprintf("jobs: broker disconnected during %s: %v", e.Op, e.Err)
}

func (e *BrokerDisconnectedError) Unwrap() error {
	return e.Err
}

// Disconnected wraps err as a BrokerDisconnectedError for op.
func Disconnected(op string, err error) error {
	return &BrokerDisconnectedError{Op: op, Err: err}
}

// IsDisconnected reports whether err is, or wraps, a BrokerDisconnectedError.
func IsDisconnected(err error) bool {
	var de *BrokerDisconnectedError
	return errors.As(err, &de)
}

// HandlerPanicError is a panic raised by a handler or before-filter,
// converted to an error.
type HandlerPanicError struct {
	Value any
	Stack []byte
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *HandlerPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
