package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the timeline engine collectors
type Metrics struct {
	Events          *prometheus.CounterVec
	FetchFailures   *prometheus.CounterVec
	OptimisticVotes prometheus.Counter
	ReceiptIDsAcked prometheus.Counter
	MergeDuration   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
// A nil registerer leaves them unregistered (tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timeline_events_total",
				Help: "Events processed by the timeline loop, by type.",
			},
			[]string{"type"},
		),
		FetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timeline_fetch_failures_total",
				Help: "Failed backend fetches, by operation.",
			},
			[]string{"op"},
		),
		OptimisticVotes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "timeline_optimistic_votes_total",
				Help: "Votes applied locally before server confirmation.",
			},
		),
		ReceiptIDsAcked: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "timeline_receipt_ids_acknowledged_total",
				Help: "Message ids submitted in read-receipt batches.",
			},
		),
		MergeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "timeline_merge_duration_seconds",
				Help:    "Time spent merging and grouping the timeline.",
				Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Events, m.FetchFailures, m.OptimisticVotes, m.ReceiptIDsAcked, m.MergeDuration)
	}
	return m
}
