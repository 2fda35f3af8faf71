package pricing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sourceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_source_fetches_total",
		Help: "Price source lookups by outcome.",
	}, []string{"source", "outcome"})

	degradedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pricing_degraded",
		Help: "1 while the oracle serves last-known-good or fallback rates.",
	})
)
