// Package dispatch runs one reserved unit of work through its handler.
//
// Engine.DispatchOne decodes the unit, looks up the handler, runs the
// before-filters and the handler under a deadline derived from the unit's
// time-to-run, and resolves the unit: deleted on success, buried on
// failure, or left to the handler when the unit asked for explicit
// deletion. Failures are logged and routed to the registered error
// handler; they never escape DispatchOne. Only a lost broker connection or
// a cancelled context is returned to the caller.
//
// Go cannot stop a goroutine from outside. A handler that ignores its
// context past the deadline is abandoned and may overlap with the next
// unit, so handlers doing long work should select on ctx.Done().
package dispatch
