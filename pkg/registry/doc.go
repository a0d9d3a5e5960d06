// Package registry holds the handler registry a worker dispatches against.
//
// This package includes:
//   - Registry: job name to handler mapping, before-filters and the error handler
//   - FilterFunc: callables run ahead of every handler invocation
//   - ErrorHandler: the three supported error handler shapes
//
// A Registry is populated during startup and then handed to a worker.
// Most users should import the root package github.com/jdziat/simple-tube-jobs
// which re-exports these types.
package registry
