// Package metrics provides Prometheus metrics for conversion runs and chord
// sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Conversion metrics
	FilesConverted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "braille_files_converted_total",
			Help: "Total number of source files processed",
		},
		[]string{"mode", "status"},
	)

	EntriesConverted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "braille_entries_converted_total",
			Help: "Total number of table entries written",
		},
		[]string{"mode"},
	)

	ConversionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "braille_conversion_duration_seconds",
			Help:    "Time taken to convert one source file",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// Chord metrics
	KeyEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "braille_chord_key_events_total",
			Help: "Total number of key events received",
		},
		[]string{"layout", "direction", "tracked"},
	)

	ChordsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "braille_chords_emitted_total",
			Help: "Total number of braille cells emitted by chord sessions",
		},
		[]string{"layout"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "braille_chord_sessions_active",
			Help: "Number of connected chord sessions",
		},
	)

	FrameErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "braille_chord_frame_errors_total",
			Help: "Total number of rejected client frames",
		},
		[]string{"reason"},
	)
)

// RecordFile records one converted or failed source file.
func RecordFile(mode string, entries int, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	FilesConverted.WithLabelValues(mode, status).Inc()
	if err == nil {
		EntriesConverted.WithLabelValues(mode).Add(float64(entries))
		ConversionDuration.Observe(duration.Seconds())
	}
}

// ChordMetrics records key events for one layout.
type ChordMetrics struct {
	layout string
}

// NewChordMetrics creates a recorder for sessions using layout.
func NewChordMetrics(layout string) *ChordMetrics {
	return &ChordMetrics{layout: layout}
}

// RecordEvent records one key event.
func (m *ChordMetrics) RecordEvent(direction string, tracked bool) {
	t := "false"
	if tracked {
		t = "true"
	}
	KeyEvents.WithLabelValues(m.layout, direction, t).Inc()
}

// RecordEmit records one emitted cell.
func (m *ChordMetrics) RecordEmit() {
	ChordsEmitted.WithLabelValues(m.layout).Inc()
}

// RecordSessionStart records a connected session.
func (m *ChordMetrics) RecordSessionStart() {
	SessionsActive.Inc()
}

// RecordSessionEnd records a closed session.
func (m *ChordMetrics) RecordSessionEnd() {
	SessionsActive.Dec()
}
