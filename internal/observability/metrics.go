package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics registry and standard meters.
type Metrics struct {
	Registry          *prometheus.Registry
	OperationDuration *prometheus.HistogramVec
	OperationTotal    *prometheus.CounterVec
	RecordsAppended   *prometheus.CounterVec
	StaleReferences   prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetrics creates a custom Prometheus registry with standard cork metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	opDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cork_operation_duration_seconds",
		Help:    "Duration of operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	opTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cork_operation_total",
		Help: "Total number of operations.",
	}, []string{"operation", "status"})

	recordsAppended := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cork_records_appended_total",
		Help: "Total chain records appended, by record kind.",
	}, []string{"kind"})

	staleRefs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cork_stale_references_total",
		Help: "Total appends rejected for a stale previous reference.",
	})

	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cork_errors_total",
		Help: "Total number of errors.",
	}, []string{"operation", "type"})

	reg.MustRegister(opDuration, opTotal, recordsAppended, staleRefs, errorsTotal)

	return &Metrics{
		Registry:          reg,
		OperationDuration: opDuration,
		OperationTotal:    opTotal,
		RecordsAppended:   recordsAppended,
		StaleReferences:   staleRefs,
		ErrorsTotal:       errorsTotal,
	}
}
