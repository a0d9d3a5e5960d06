// Package context provides context helpers for the jobs package.
package context

import (
	"context"

	"github.com/jdziat/simple-tube-jobs/pkg/core"
)

// DispatchContextKey is the key for storing dispatch context in context.Context.
type DispatchContextKey struct{}

// DispatchContext holds the unit currently being dispatched.
type DispatchContext struct {
	Name     string
	Unit     core.Unit
	Style    core.Style
	Options  core.StyleOptions
	WorkerID string
}

// GetDispatchContext retrieves the dispatch context from a context.Context.
func GetDispatchContext(ctx context.Context) *DispatchContext {
	if dc, ok := ctx.Value(DispatchContextKey{}).(*DispatchContext); ok {
		return dc
	}
	return nil
}

// WithDispatchContext adds dispatch context to a context.Context.
func WithDispatchContext(ctx context.Context, dc *DispatchContext) context.Context {
	return context.WithValue(ctx, DispatchContextKey{}, dc)
}
