// Package context provides internal context helpers for job execution.
//
// This package is internal and should not be imported directly.
// It provides the dispatch context value: the job name, reserved unit and
// style of the unit being dispatched, made available to handlers and
// before-filters through the public jobctx package.
package context
