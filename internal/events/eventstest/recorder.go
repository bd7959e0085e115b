// Package eventstest provides an event emitter for tests.
package eventstest

import (
	"sync"

	"github.com/samcm/lavafries/internal/events"
)

// Recorder is an events.Emitter that keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *Recorder) Emit(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]events.Event, len(r.events))
	copy(out, r.events)

	return out
}

// Named returns the recorded events whose Name matches.
func (r *Recorder) Named(name string) []events.Event {
	var out []events.Event

	for _, e := range r.Events() {
		if e.Name() == name {
			out = append(out, e)
		}
	}

	return out
}
