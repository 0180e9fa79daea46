package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/smazurov/outputnode/internal/events"
)

func eventually(t *testing.T, what string, c prometheus.Collector, want float64) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		got := testutil.ToFloat64(c)
		if got == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s = %v, want %v", what, got, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCollector(t *testing.T) {
	bus := events.New()
	c := NewCollector(bus)
	c.Start()
	c.Start()
	defer c.Stop()

	stops := testutil.ToFloat64(outputStops.WithLabelValues("streaming", "-5"))
	reconnects := testutil.ToFloat64(outputReconnects.WithLabelValues("streaming"))
	saves := testutil.ToFloat64(replaySaves)
	engaged := testutil.ToFloat64(multitrackNegotiations.WithLabelValues("engage"))
	deferred := testutil.ToFloat64(profileApplies.WithLabelValues("advanced", "true"))

	bus.Publish(events.OutputStateChangedEvent{Kind: "streaming", From: "idle", To: "starting"})
	eventually(t, "active", outputActive.WithLabelValues("streaming"), 1)

	bus.Publish(events.ReconnectEvent{Kind: "streaming", TimeoutSec: 2})
	bus.Publish(events.OutputStoppedEvent{Kind: "streaming", Code: -5})
	bus.Publish(events.OutputStateChangedEvent{Kind: "streaming", From: "active", To: "idle"})
	bus.Publish(events.ReplaySavedEvent{Path: "/tmp/replay.mkv"})
	bus.Publish(events.MultitrackNegotiatedEvent{Decision: "engage", Renditions: 3})
	bus.Publish(events.ProfileAppliedEvent{Mode: "advanced", Deferred: true})

	eventually(t, "active", outputActive.WithLabelValues("streaming"), 0)
	eventually(t, "stops", outputStops.WithLabelValues("streaming", "-5"), stops+1)
	eventually(t, "reconnects", outputReconnects.WithLabelValues("streaming"), reconnects+1)
	eventually(t, "replay saves", replaySaves, saves+1)
	eventually(t, "engaged", multitrackNegotiations.WithLabelValues("engage"), engaged+1)
	eventually(t, "renditions", multitrackRenditions, 3)
	eventually(t, "deferred profiles", profileApplies.WithLabelValues("advanced", "true"), deferred+1)
}

func TestCollectorStop(t *testing.T) {
	bus := events.New()
	c := NewCollector(bus)
	c.Start()
	c.Stop()

	before := testutil.ToFloat64(recordingSplits)
	bus.Publish(events.RecordingFileChangedEvent{Path: "/tmp/a.mkv"})
	time.Sleep(50 * time.Millisecond)
	if got := testutil.ToFloat64(recordingSplits); got != before {
		t.Errorf("stopped collector counted a split: %v -> %v", before, got)
	}
}
