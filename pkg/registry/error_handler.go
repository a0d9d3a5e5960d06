package registry

import (
	"context"

	"github.com/jdziat/simple-tube-jobs/pkg/core"
)

// ErrorHandlerKind identifies which of the error handler shapes is registered.
type ErrorHandlerKind int

const (
	// ErrorHandlerMinimal receives only the failure.
	ErrorHandlerMinimal ErrorHandlerKind = iota + 1
	// ErrorHandlerStandard receives the failure, job name and args.
	ErrorHandlerStandard
	// ErrorHandlerFull also receives the reserved unit and style options.
	ErrorHandlerFull
)

func (k ErrorHandlerKind) String() string {
	switch k {
	case ErrorHandlerMinimal:
		return "minimal"
	case ErrorHandlerStandard:
		return "standard"
	case ErrorHandlerFull:
		return "full"
	default:
		return "unknown"
	}
}

// Failure describes a unit that went through the failure path.
type Failure struct {
	Err     error
	Name    string
	Args    map[string]any
	Unit    core.Unit
	Options core.StyleOptions
}

// ErrorHandler is the registered error handler. Exactly one of its
// function fields is set, as chosen by the registration call.
type ErrorHandler struct {
	kind     ErrorHandlerKind
	minimal  func(ctx context.Context, err error)
	standard func(ctx context.Context, err error, name string, args map[string]any)
	full     func(ctx context.Context, err error, name string, args map[string]any, unit core.Unit, opts core.StyleOptions)
}

// Kind returns the registered shape.
func (h *ErrorHandler) Kind() ErrorHandlerKind {
	return h.kind
}

// Call invokes the handler with the arguments its shape declares.
func (h *ErrorHandler) Call(ctx context.Context, f Failure) {
	switch h.kind {
	case ErrorHandlerMinimal:
		h.minimal(ctx, f.Err)
	case ErrorHandlerFull:
		h.full(ctx, f.Err, f.Name, f.Args, f.Unit, f.Options)
	default:
		h.standard(ctx, f.Err, f.Name, f.Args)
	}
}

// OnErrorMinimal registers an error handler that receives only the failure.
// It replaces any previously registered error handler; nil clears it.
func (r *Registry) OnErrorMinimal(fn func(ctx context.Context, err error)) {
	if fn == nil {
		r.setErrorHandler(nil)
		return
	}
	r.setErrorHandler(&ErrorHandler{kind: ErrorHandlerMinimal, minimal: fn})
}

// OnError registers an error handler that receives the failure, the job
// name and the decoded args. It replaces any previously registered error
// handler; nil clears it.
func (r *Registry) OnError(fn func(ctx context.Context, err error, name string, args map[string]any)) {
	if fn == nil {
		r.setErrorHandler(nil)
		return
	}
	r.setErrorHandler(&ErrorHandler{kind: ErrorHandlerStandard, standard: fn})
}

// OnErrorFull registers an error handler that additionally receives the
// reserved unit and the style options, so it can resolve the unit itself.
// It replaces any previously registered error handler; nil clears it.
func (r *Registry) OnErrorFull(fn func(ctx context.Context, err error, name string, args map[string]any, unit core.Unit, opts core.StyleOptions)) {
	if fn == nil {
		r.setErrorHandler(nil)
		return
	}
	r.setErrorHandler(&ErrorHandler{kind: ErrorHandlerFull, full: fn})
}
