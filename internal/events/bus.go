package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(OutputStateChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event is generic over the concrete type
	switch e := ev.(type) {
	case OutputStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case OutputStoppedEvent:
		event.Publish(b.dispatcher, e)
	case ReconnectEvent:
		event.Publish(b.dispatcher, e)
	case ReconnectedEvent:
		event.Publish(b.dispatcher, e)
	case RecordingFileChangedEvent:
		event.Publish(b.dispatcher, e)
	case ReplaySavedEvent:
		event.Publish(b.dispatcher, e)
	case StreamDelayEvent:
		event.Publish(b.dispatcher, e)
	case MultitrackNegotiatedEvent:
		event.Publish(b.dispatcher, e)
	case ProfileAppliedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	case EncodeMetricsEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function
// The handler type determines which events it receives
// Returns an unsubscribe function
// Usage: unsub := bus.Subscribe(func(e OutputStateChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(OutputStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(OutputStoppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ReconnectEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ReconnectedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingFileChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ReplaySavedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamDelayEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(MultitrackNegotiatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProfileAppliedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(EncodeMetricsEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}
