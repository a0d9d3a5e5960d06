// Package app wires a worker process together from configuration: logger,
// broker, dispatch engine, optional metrics server and scheduler, and the
// worker loop.
package app
