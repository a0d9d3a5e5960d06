package dispatch

import "github.com/jdziat/simple-tube-jobs/pkg/core"

// eventBuffer is the capacity of each subscriber channel.
const eventBuffer = 100

// Events subscribes to JobStarted, JobCompleted and JobFailed events. Call
// Unsubscribe when done.
func (e *Engine) Events() <-chan core.Event {
	ch := make(chan core.Event, eventBuffer)
	e.mu.Lock()
	e.eventSubs = append(e.eventSubs, ch)
	e.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed; stop reading from it before calling Unsubscribe.
// After Unsubscribe returns, no further events will be sent to the channel.
func (e *Engine) Unsubscribe(ch <-chan core.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, sub := range e.eventSubs {
		if sub == ch {
			e.eventSubs = append(e.eventSubs[:i], e.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit sends ev to every subscriber. A subscriber whose buffer is full
// misses the event; dispatch never waits on an observer.
func (e *Engine) Emit(ev core.Event) {
	e.mu.RLock()
	subs := append([]chan core.Event(nil), e.eventSubs...)
	e.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
