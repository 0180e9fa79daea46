// Package metrics provides Prometheus metrics for outputs and the ffmpeg
// processes behind them.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "outputnode"

var (
	encodeFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encode",
		Name:      "fps",
		Help:      "Current encoding FPS",
	}, []string{"output"})

	encodeDroppedFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encode",
		Name:      "dropped_frames_total",
		Help:      "Frames dropped since the output started",
	}, []string{"output"})

	encodeDuplicateFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encode",
		Name:      "duplicate_frames_total",
		Help:      "Frames duplicated since the output started",
	}, []string{"output"})

	encodeSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encode",
		Name:      "speed",
		Help:      "Encoding speed relative to realtime",
	}, []string{"output"})

	encodeBitrate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "encode",
		Name:      "bitrate_kbps",
		Help:      "Output bitrate in kbit/s",
	}, []string{"output"})

	encodeCache   = make(map[string]*EncodeMetrics)
	encodeCacheMu sync.RWMutex
)

// EncodeMetrics holds the current progress values of one output.
type EncodeMetrics struct {
	FPS             float64
	DroppedFrames   float64
	DuplicateFrames float64
	Speed           float64
	BitrateKbps     float64
}

// SetEncodeMetrics replaces the progress values of an output.
func SetEncodeMetrics(output string, m EncodeMetrics) {
	encodeFPS.WithLabelValues(output).Set(m.FPS)
	encodeDroppedFrames.WithLabelValues(output).Set(m.DroppedFrames)
	encodeDuplicateFrames.WithLabelValues(output).Set(m.DuplicateFrames)
	encodeSpeed.WithLabelValues(output).Set(m.Speed)
	encodeBitrate.WithLabelValues(output).Set(m.BitrateKbps)

	encodeCacheMu.Lock()
	encodeCache[output] = &m
	encodeCacheMu.Unlock()
}

// DeleteEncodeMetrics removes all metrics for an output.
func DeleteEncodeMetrics(output string) {
	encodeFPS.DeleteLabelValues(output)
	encodeDroppedFrames.DeleteLabelValues(output)
	encodeDuplicateFrames.DeleteLabelValues(output)
	encodeSpeed.DeleteLabelValues(output)
	encodeBitrate.DeleteLabelValues(output)

	encodeCacheMu.Lock()
	delete(encodeCache, output)
	encodeCacheMu.Unlock()
}

// GetEncodeMetrics returns the current values for an output, or nil.
func GetEncodeMetrics(output string) *EncodeMetrics {
	encodeCacheMu.RLock()
	defer encodeCacheMu.RUnlock()
	if m, ok := encodeCache[output]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllEncodeMetrics returns the values of every output with progress.
func GetAllEncodeMetrics() map[string]*EncodeMetrics {
	encodeCacheMu.RLock()
	defer encodeCacheMu.RUnlock()
	result := make(map[string]*EncodeMetrics, len(encodeCache))
	for name, m := range encodeCache {
		dup := *m
		result[name] = &dup
	}
	return result
}
