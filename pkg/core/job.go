package core

import (
	"time"
)

// Style selects how a handler is invoked for a unit of work.
type Style int

const (
	// StyleClassic runs before-filters and the handler with the decoded
	// args only, bounded by the unit's deadline.
	StyleClassic Style = iota
	// StyleExtended also hands the reserved unit and its StyleOptions to
	// the handler.
	StyleExtended
)

func (s Style) String() string {
	if s == StyleExtended {
		return "extended"
	}
	return "classic"
}

// StyleOptions tunes how an extended-style unit is executed and resolved.
// The zero value is the default behaviour.
type StyleOptions struct {
	// ExplicitDelete leaves resolving the unit to the handler; the engine
	// does not delete it on success.
	ExplicitDelete bool `json:"explicit_delete,omitempty"`

	// RunOutsideTimeout runs the handler without an engine deadline and
	// skips before-filters. The broker's own reservation deadline still applies.
	RunOutsideTimeout bool `json:"run_job_outside_of_stalker_timeout,omitempty"`

	// NoBuryForErrorHandler leaves a failed unit un-buried when an error
	// handler is registered.
	NoBuryForErrorHandler bool `json:"no_bury_for_error_handler,omitempty"`
}

// Envelope is the decoded content of a unit of work.
type Envelope struct {
	Name    string
	Args    map[string]any
	Style   Style
	Options StyleOptions
}

// PutParams holds the broker-level parameters for a new unit of work.
type PutParams struct {
	Priority uint32
	Delay    time.Duration
	TTR      time.Duration
}
