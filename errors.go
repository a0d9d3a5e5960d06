package jobs

import "github.com/jdziat/simple-tube-jobs/pkg/core"

// Error types
type (
	// UnknownJobError reports a job name with no registered handler.
	UnknownJobError = core.UnknownJobError

	// JobTimeoutError reports a job that exceeded its deadline.
	JobTimeoutError = core.JobTimeoutError

	// BrokerDisconnectedError reports a lost broker connection.
	BrokerDisconnectedError = core.BrokerDisconnectedError

	// HandlerPanicError wraps a recovered handler panic.
	HandlerPanicError = core.HandlerPanicError
)

// Error variables
var (
	ErrInvalidJobName       = core.ErrInvalidJobName
	ErrJobNameTooLong       = core.ErrJobNameTooLong
	ErrEnvelopeTooLarge     = core.ErrEnvelopeTooLarge
	ErrNoHandlersRegistered = core.ErrNoHandlersRegistered
	ErrMalformedEnvelope    = core.ErrMalformedEnvelope
	ErrUnitNotOwned         = core.ErrUnitNotOwned
	ErrUnitNotFound         = core.ErrUnitNotFound
	ErrReserveTimeout       = core.ErrReserveTimeout
)

// IsDisconnected reports whether err means the broker connection is gone.
func IsDisconnected(err error) bool {
	return core.IsDisconnected(err)
}
