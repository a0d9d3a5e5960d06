package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jdziat/simple-tube-jobs/pkg/internal/handler"
	"github.com/jdziat/simple-tube-jobs/pkg/security"
)

// FilterFunc runs before every handler invocation and receives the job
// name about to run. A returned error fails the unit like a handler error.
type FilterFunc func(ctx context.Context, name string) error

// Registry manages job handlers, before-filters and the error handler.
type Registry struct {
	handlers map[string]*handler.Handler
	filters  []FilterFunc
	onError  *ErrorHandler
	mu       sync.RWMutex
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		handlers: make(map[string]*handler.Handler),
	}
}

// Register registers a job handler function, replacing any previous
// handler for name. The function must have one of the signatures:
//
//	func(ctx context.Context, args T) error
//	func(ctx context.Context, args T, unit core.Unit, opts core.StyleOptions) error
//
// Register panics on an empty name or an unsupported signature.
func (r *Registry) Register(name string, fn any) {
	if err := security.ValidateJobName(name); err != nil {
		panic(fmt.Sprintf("jobs: invalid handler name %q: %v", name, err))
	}

	h, err := handler.NewHandler(fn)
	if err != nil {
		panic(fmt.Sprintf("jobs: handler for %q: %v", name, err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// BeforeFilter appends a filter. Filters run in registration order.
func (r *Registry) BeforeFilter(fn FilterFunc) {
	if fn == nil {
		panic("jobs: before filter cannot be nil")
	}

	r.mu.Lock()
	r.filters = append(r.filters, fn)
	r.mu.Unlock()
}

// HasHandler checks if a handler is registered.
func (r *Registry) HasHandler(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Handler returns a handler by name.
func (r *Registry) Handler(name string) (*handler.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Filters returns a snapshot of the registered before-filters.
func (r *Registry) Filters() []FilterFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	filters := make([]FilterFunc, len(r.filters))
	copy(filters, r.filters)
	return filters
}

// ErrorHandler returns the registered error handler, or nil.
func (r *Registry) ErrorHandler() *ErrorHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onError
}

// JobNames returns the registered job names in sorted order.
func (r *Registry) JobNames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Reset clears handlers, filters and the error handler.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string]*handler.Handler)
	r.filters = nil
	r.onError = nil
}

func (r *Registry) setErrorHandler(h *ErrorHandler) {
	r.mu.Lock()
	r.onError = h
	r.mu.Unlock()
}
