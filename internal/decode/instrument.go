package decode

import (
	"context"
	"time"

	"library_pos_backend/pkg/metrics"
)

type instrumented struct {
	next    Gateway
	metrics *metrics.ScanMetrics
}

// Instrument records every decode call on m.
func Instrument(next Gateway, m *metrics.ScanMetrics) Gateway {
	return &instrumented{next: next, metrics: m}
}

func (i *instrumented) Decode(ctx context.Context, frame Frame) (Result, bool, error) {
	start := time.Now()
	result, found, err := i.next.Decode(ctx, frame)
	outcome := "none"
	switch {
	case err != nil:
		outcome = "error"
	case found:
		outcome = "found"
	}
	i.metrics.ObserveDecode(outcome, time.Since(start))
	return result, found, err
}
