package index

import "github.com/prometheus/client_golang/prometheus"

var HydrationCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pubindex",
	Subsystem: "hydration",
	Name:      "runs",
}, []string{"kind", "result"})

var HydrationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "pubindex",
	Subsystem: "hydration",
	Name:      "duration_seconds",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
}, []string{"kind"})

var HydrationTagFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "pubindex",
	Subsystem: "hydration",
	Name:      "tag_failures",
})

var IdentityResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pubindex",
	Subsystem: "identity",
	Name:      "resolutions",
}, []string{"outcome"})

var AggregateOverflows = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "pubindex",
	Subsystem: "aggregate",
	Name:      "overflows",
})

var SelfHeals = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pubindex",
	Subsystem: "index",
	Name:      "self_heals",
}, []string{"index"})

// Collectors returns every engine metric for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		HydrationCount,
		HydrationDuration,
		HydrationTagFailures,
		IdentityResolutions,
		AggregateOverflows,
		SelfHeals,
	}
}
