package purchase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	outcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_outcomes_total",
		Help: "Purchase attempts by outcome (accepted, duplicate or error kind).",
	}, []string{"outcome", "currency"})

	duration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "purchase_duration_seconds",
		Help:    "End to end latency of purchase requests.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 15, 20, 30, 60},
	}, []string{"outcome"})
)
