// Package metrics exposes Prometheus instrumentation for the FCP engine,
// grounded on the teacher's internal/metrics/collector.go. Carried as
// ambient stack even though spec.md's non-goals exclude the CLI/display
// layer — the metrics themselves are not a display concern, they're part
// of the ambient observability every production Go service in this
// codebase's lineage carries.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dsm_cache_hits_total",
		Help: "Number of cache hits in the FCP orchestrator's cache probe step.",
	})
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dsm_cache_misses_total",
		Help: "Number of cache misses in the FCP orchestrator's cache probe step.",
	})
	FetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dsm_fetch_errors_total",
		Help: "Number of fetch errors by source.",
	}, []string{"source"})
	GapRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dsm_gap_records_total",
		Help: "Total number of missing bars reported in gap lists.",
	})
	FetchTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dsm_fetch_timeouts_total",
		Help: "Number of per-day fetch attempts that failed with a timeout.",
	})
	FetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dsm_fetch_duration_seconds",
		Help:    "Duration of a single sub-range fetch by source.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})
	CircuitState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dsm_circuit_state",
		Help: "Circuit breaker state by provider (0=closed, 1=half-open, 2=open).",
	}, []string{"provider"})
)

// Register registers all collectors with the given registerer. Call once
// at process startup.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(CacheHits, CacheMisses, FetchErrors, GapRecords, FetchTimeouts, FetchDuration, CircuitState)
}

// CircuitStateValue maps a breaker state string to the gauge's numeric
// encoding.
func CircuitStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
