package exporters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/outputnode/internal/events"
	"github.com/smazurov/outputnode/internal/metrics"
)

type mockEventBus struct {
	mu        sync.Mutex
	events    []events.Event
	published chan struct{}
}

func newMockEventBus() *mockEventBus {
	return &mockEventBus{published: make(chan struct{}, 100)}
}

func (m *mockEventBus) Publish(ev events.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	select {
	case m.published <- struct{}{}:
	default:
	}
}

func (m *mockEventBus) find(output string) (events.EncodeMetricsEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if e, ok := ev.(events.EncodeMetricsEvent); ok && e.Output == output {
			return e, true
		}
	}
	return events.EncodeMetricsEvent{}, false
}

func (m *mockEventBus) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestSSEExporterPublishesMetrics(t *testing.T) {
	output := "sse-test-output"
	metrics.SetEncodeMetrics(output, metrics.EncodeMetrics{FPS: 30, DroppedFrames: 5, DuplicateFrames: 2, Speed: 1, BitrateKbps: 2500})
	defer metrics.DeleteEncodeMetrics(output)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 20 * time.Millisecond
	exporter.Start(context.Background())

	select {
	case <-mock.published:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for metrics publish")
	}
	exporter.Stop()

	e, ok := mock.find(output)
	if !ok {
		t.Fatal("expected an EncodeMetricsEvent for the output")
	}
	want := events.EncodeMetricsEvent{
		Output:          output,
		FPS:             "30.00",
		DroppedFrames:   "5",
		DuplicateFrames: "2",
		Speed:           "1.00",
		BitrateKbps:     "2500.0",
	}
	if e != want {
		t.Errorf("event = %+v, want %+v", e, want)
	}
}

func TestSSEExporterStop(t *testing.T) {
	output := "sse-stop-output"
	metrics.SetEncodeMetrics(output, metrics.EncodeMetrics{FPS: 45})
	defer metrics.DeleteEncodeMetrics(output)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	exporter.Stop()
	exporter.Start(t.Context())
	time.Sleep(30 * time.Millisecond)
	exporter.Stop()
	exporter.Stop()

	after := mock.count()
	if after == 0 {
		t.Error("expected events after Start")
	}
	time.Sleep(30 * time.Millisecond)
	if got := mock.count(); got != after {
		t.Errorf("events published after stop: %d -> %d", after, got)
	}
}

func TestGetEventTypes(t *testing.T) {
	if _, ok := GetEventTypes()["encode-metrics"]; !ok {
		t.Error("expected encode-metrics event type")
	}
}
