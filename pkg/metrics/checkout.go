package metrics

import "github.com/prometheus/client_golang/prometheus"

// CheckoutMetrics counts bill commits by result.
type CheckoutMetrics struct {
	checkouts *prometheus.CounterVec
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_total",
		Help: "Recorded transactions by result (ok, empty, missing_customer, insufficient_stock, error).",
	}, []string{"result"})
	reg.MustRegister(checkouts)
	return &CheckoutMetrics{checkouts: checkouts}
}

func (m *CheckoutMetrics) Observe(result string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(result)).Inc()
}
