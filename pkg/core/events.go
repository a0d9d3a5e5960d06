package core

import "time"

// Event is the interface for all dispatch events.
type Event interface {
	eventMarker()
}

// JobStarted is emitted when a handler is about to run.
type JobStarted struct {
	Name      string
	UnitID    string
	Args      map[string]any
	Style     Style
	Timestamp time.Time
}

func (*JobStarted) eventMarker() {}

// JobCompleted is emitted when a handler succeeded.
type JobCompleted struct {
	Name      string
	UnitID    string
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobCompleted) eventMarker() {}

// JobFailed is emitted when a unit went through the failure path.
type JobFailed struct {
	Name      string
	UnitID    string
	Error     error
	Buried    bool
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobFailed) eventMarker() {}
