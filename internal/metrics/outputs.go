package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/outputnode/internal/events"
	"github.com/smazurov/outputnode/internal/logging"
)

var (
	outputActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "output",
		Name:      "active",
		Help:      "1 while the output kind is in any state but idle",
	}, []string{"kind"})

	outputTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "output",
		Name:      "transitions_total",
		Help:      "State machine transitions by target state",
	}, []string{"kind", "state"})

	outputStops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "output",
		Name:      "stops_total",
		Help:      "Outputs returning to idle by stop code",
	}, []string{"kind", "code"})

	outputReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "output",
		Name:      "reconnects_total",
		Help:      "Reconnect attempts reported by the transport",
	}, []string{"kind"})

	recordingSplits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recording",
		Name:      "file_changes_total",
		Help:      "Recording file splits",
	})

	replaySaves = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "replay",
		Name:      "saves_total",
		Help:      "Replay buffer saves",
	})

	multitrackNegotiations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "multitrack",
		Name:      "negotiations_total",
		Help:      "Multitrack negotiations by decision",
	}, []string{"decision"})

	multitrackRenditions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "multitrack",
		Name:      "renditions",
		Help:      "Video renditions of the last engaged negotiation",
	})

	profileApplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "profile",
		Name:      "applied_total",
		Help:      "Profiles applied, by mode and whether they were deferred",
	}, []string{"mode", "deferred"})
)

// Collector turns bus events into Prometheus metrics.
type Collector struct {
	bus    *events.Bus
	mu     sync.Mutex
	unsubs []func()
}

// NewCollector creates a collector for bus.
func NewCollector(bus *events.Bus) *Collector {
	return &Collector{bus: bus}
}

// Start subscribes to the bus.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.unsubs) > 0 {
		return
	}
	c.unsubs = []func(){
		c.bus.Subscribe(func(e events.OutputStateChangedEvent) {
			outputTransitions.WithLabelValues(e.Kind, e.To).Inc()
			active := 0.0
			if e.IsActive() {
				active = 1
			}
			outputActive.WithLabelValues(e.Kind).Set(active)
		}),
		c.bus.Subscribe(func(e events.OutputStoppedEvent) {
			outputStops.WithLabelValues(e.Kind, strconv.Itoa(e.Code)).Inc()
		}),
		c.bus.Subscribe(func(e events.ReconnectEvent) {
			outputReconnects.WithLabelValues(e.Kind).Inc()
		}),
		c.bus.Subscribe(func(events.RecordingFileChangedEvent) {
			recordingSplits.Inc()
		}),
		c.bus.Subscribe(func(events.ReplaySavedEvent) {
			replaySaves.Inc()
		}),
		c.bus.Subscribe(func(e events.MultitrackNegotiatedEvent) {
			multitrackNegotiations.WithLabelValues(e.Decision).Inc()
			if e.Decision == "engage" {
				multitrackRenditions.Set(float64(e.Renditions))
			}
		}),
		c.bus.Subscribe(func(e events.ProfileAppliedEvent) {
			profileApplies.WithLabelValues(e.Mode, strconv.FormatBool(e.Deferred)).Inc()
		}),
	}
	logging.GetLogger("metrics").Debug("Metrics collector subscribed")
}

// Stop unsubscribes from the bus.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}
