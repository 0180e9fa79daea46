package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan OutputStateChangedEvent, 1)

	unsub := bus.Subscribe(func(e OutputStateChangedEvent) {
		received <- e
	})
	defer unsub()

	event := OutputStateChangedEvent{
		Kind:      "stream",
		From:      "starting",
		To:        "active",
		Timestamp: "2026-01-27T10:30:00Z",
	}
	bus.Publish(event)

	got := <-received
	if got.Kind != event.Kind || got.To != event.To {
		t.Errorf("Expected %+v, got %+v", event, got)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan ReplaySavedEvent, 1)
	received2 := make(chan ReplaySavedEvent, 1)

	unsub1 := bus.Subscribe(func(e ReplaySavedEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e ReplaySavedEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(ReplaySavedEvent{Path: "/tmp/replay.mkv"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan ReconnectEvent, 1)

	unsub := bus.Subscribe(func(e ReconnectEvent) {
		received <- e
	})

	bus.Publish(ReconnectEvent{Kind: "stream", TimeoutSec: 2})
	<-received

	unsub()

	bus.Publish(ReconnectEvent{Kind: "stream", TimeoutSec: 2})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	stateReceived := make(chan bool, 1)
	stoppedReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ OutputStateChangedEvent) {
		stateReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ OutputStoppedEvent) {
		stoppedReceived <- true
	})
	defer unsub2()

	bus.Publish(OutputStateChangedEvent{Kind: "record"})
	<-stateReceived

	select {
	case <-stoppedReceived:
		t.Fatal("Stopped subscriber should NOT have received OutputStateChangedEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(OutputStoppedEvent{Kind: "record"})
	<-stoppedReceived

	select {
	case <-stateReceived:
		t.Fatal("State subscriber should NOT have received OutputStoppedEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ StreamDelayEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range eventsPerGoroutine {
				bus.Publish(StreamDelayEvent{
					Phase:        "stopping",
					RemainingSec: i,
					Timestamp:    time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"OutputStateChanged", OutputStateChangedEvent{Kind: "stream"}},
		{"OutputStopped", OutputStoppedEvent{Kind: "stream", Code: -5}},
		{"Reconnect", ReconnectEvent{Kind: "stream"}},
		{"Reconnected", ReconnectedEvent{Kind: "stream"}},
		{"RecordingFileChanged", RecordingFileChangedEvent{Path: "/a.mkv"}},
		{"ReplaySaved", ReplaySavedEvent{Path: "/b.mkv"}},
		{"StreamDelay", StreamDelayEvent{Phase: "starting"}},
		{"MultitrackNegotiated", MultitrackNegotiatedEvent{Decision: "engage"}},
		{"ProfileApplied", ProfileAppliedEvent{Mode: "simple"}},
		{"LogEntry", LogEntryEvent{Message: "hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case OutputStateChangedEvent:
				unsub = bus.Subscribe(func(e OutputStateChangedEvent) { received <- e })
			case OutputStoppedEvent:
				unsub = bus.Subscribe(func(e OutputStoppedEvent) { received <- e })
			case ReconnectEvent:
				unsub = bus.Subscribe(func(e ReconnectEvent) { received <- e })
			case ReconnectedEvent:
				unsub = bus.Subscribe(func(e ReconnectedEvent) { received <- e })
			case RecordingFileChangedEvent:
				unsub = bus.Subscribe(func(e RecordingFileChangedEvent) { received <- e })
			case ReplaySavedEvent:
				unsub = bus.Subscribe(func(e ReplaySavedEvent) { received <- e })
			case StreamDelayEvent:
				unsub = bus.Subscribe(func(e StreamDelayEvent) { received <- e })
			case MultitrackNegotiatedEvent:
				unsub = bus.Subscribe(func(e MultitrackNegotiatedEvent) { received <- e })
			case ProfileAppliedEvent:
				unsub = bus.Subscribe(func(e ProfileAppliedEvent) { received <- e })
			case LogEntryEvent:
				unsub = bus.Subscribe(func(e LogEntryEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	if unsub == nil {
		t.Fatal("Expected a no-op unsubscribe for unknown handler types")
	}
	unsub()
}

func TestEventJSONSerialization(t *testing.T) {
	tests := []struct {
		name  string
		event any
		key   string
	}{
		{"OutputStateChangedEvent", OutputStateChangedEvent{Kind: "stream", From: "idle", To: "starting"}, "kind"},
		{"MultitrackNegotiatedEvent", MultitrackNegotiatedEvent{SessionID: "abc", Decision: "fall_back"}, "session_id"},
		{"StreamDelayEvent", StreamDelayEvent{Phase: "stopping", RemainingSec: 12}, "remaining_sec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("Failed to marshal: %v", err)
			}

			var result map[string]any
			if unmarshalErr := json.Unmarshal(data, &result); unmarshalErr != nil {
				t.Fatalf("Failed to unmarshal: %v", unmarshalErr)
			}

			if _, ok := result[tt.key]; !ok {
				t.Fatalf("Expected key %q in %s", tt.key, data)
			}
		})
	}
}

func TestOutputStateChangedEvent_Interface(t *testing.T) {
	event := OutputStateChangedEvent{Kind: "replay", From: "idle", To: "starting"}

	if event.GetKind() != "replay" {
		t.Errorf("Expected kind replay, got %s", event.GetKind())
	}
	if !event.IsActive() {
		t.Error("Expected starting to count as active")
	}
	if (OutputStateChangedEvent{To: "idle"}).IsActive() {
		t.Error("Expected idle to be inactive")
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[ReplaySavedEvent](bus, ch)
	defer unsub()

	event := ReplaySavedEvent{Path: "/tmp/replay.mkv"}
	bus.Publish(event)

	received := <-ch
	saved, ok := received.(ReplaySavedEvent)
	if !ok {
		t.Fatalf("Expected ReplaySavedEvent, got %T", received)
	}
	if saved.Path != event.Path {
		t.Errorf("Expected path %s, got %s", event.Path, saved.Path)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[OutputStoppedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(OutputStoppedEvent{Kind: "stream"})
		done <- true
	}()

	<-done
}
