// Package jobctx provides public access to the dispatch context for handlers
// and before-filters.
package jobctx

import (
	"context"
	"errors"

	"github.com/jdziat/simple-tube-jobs/pkg/core"
	intctx "github.com/jdziat/simple-tube-jobs/pkg/internal/context"
)

// ErrNoUnit is returned by Touch outside of a dispatch.
var ErrNoUnit = errors.New("jobs: no reserved unit in context")

// UnitFromContext returns the reserved unit being dispatched, or nil if not
// in a handler. Classic handlers use it to touch long-running units.
func UnitFromContext(ctx context.Context) core.Unit {
	dc := intctx.GetDispatchContext(ctx)
	if dc == nil {
		return nil
	}
	return dc.Unit
}

// UnitIDFromContext returns the broker's id of the unit being dispatched, or
// empty string if not in a handler.
func UnitIDFromContext(ctx context.Context) string {
	unit := UnitFromContext(ctx)
	if unit == nil {
		return ""
	}
	return unit.ID()
}

// JobNameFromContext returns the job name being dispatched, or empty string
// if not in a handler.
func JobNameFromContext(ctx context.Context) string {
	dc := intctx.GetDispatchContext(ctx)
	if dc == nil {
		return ""
	}
	return dc.Name
}

// StyleFromContext returns the style and options of the unit being dispatched.
func StyleFromContext(ctx context.Context) (core.Style, core.StyleOptions) {
	dc := intctx.GetDispatchContext(ctx)
	if dc == nil {
		return core.StyleClassic, core.StyleOptions{}
	}
	return dc.Style, dc.Options
}

// WorkerIDFromContext returns the id of the worker dispatching the unit.
func WorkerIDFromContext(ctx context.Context) string {
	dc := intctx.GetDispatchContext(ctx)
	if dc == nil {
		return ""
	}
	return dc.WorkerID
}

// Touch extends the reservation of the unit being dispatched.
func Touch(ctx context.Context) error {
	unit := UnitFromContext(ctx)
	if unit == nil {
		return ErrNoUnit
	}
	return unit.Touch(ctx)
}
