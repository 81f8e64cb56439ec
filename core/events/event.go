package events

import "gmboard/core/types"

// Event represents a structured state change emitted by the leaderboard.
type Event interface {
	EventType() string
}

// Recordable events can render themselves into the canonical attribute form
// consumed by journals and stream subscribers.
type Recordable interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Fanout delivers every event to each configured emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter == nil {
			continue
		}
		emitter.Emit(evt)
	}
}

// Canonical converts evt to its attribute form, returning nil for events that
// do not implement Recordable.
func Canonical(evt Event) *types.Event {
	if rec, ok := evt.(Recordable); ok {
		return rec.Event()
	}
	return nil
}
