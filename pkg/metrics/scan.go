package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ScanMetrics records capture session outcomes and decode calls.
type ScanMetrics struct {
	sessions      *prometheus.CounterVec
	decodes       *prometheus.CounterVec
	decodeLatency *prometheus.HistogramVec
}

// NewScanMetrics registers the scan metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewScanMetrics(reg prometheus.Registerer) *ScanMetrics {
	if reg == nil {
		return &ScanMetrics{}
	}
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scan_sessions_total",
		Help: "Capture sessions by target and terminal state.",
	}, []string{"target", "state"})
	decodes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scan_decode_attempts_total",
		Help: "Decode attempts by result (found, none, error).",
	}, []string{"result"})
	decodeLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scan_decode_duration_seconds",
		Help:    "Duration of single decode calls in seconds.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"result"})
	reg.MustRegister(sessions, decodes, decodeLatency)
	return &ScanMetrics{sessions: sessions, decodes: decodes, decodeLatency: decodeLatency}
}

// ObserveSession counts one finished session.
func (m *ScanMetrics) ObserveSession(target, state string) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.WithLabelValues(normalizeLabel(target), normalizeLabel(state)).Inc()
}

// ObserveDecode counts one decode call and its duration.
func (m *ScanMetrics) ObserveDecode(result string, duration time.Duration) {
	if m == nil || m.decodes == nil {
		return
	}
	result = normalizeLabel(result)
	m.decodes.WithLabelValues(result).Inc()
	m.decodeLatency.WithLabelValues(result).Observe(duration.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
