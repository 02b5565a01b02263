// metrics/metrics.go

// Package metrics exposes Prometheus metrics for catalogue reconciliation cycles.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// ReconcileCyclesTotal counts finished reconciliation cycles by terminal state.
	ReconcileCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogue_operator_reconcile_cycles_total",
			Help: "Total number of catalogue reconciliation cycles by terminal state",
		},
		[]string{"state"},
	)

	// ArtifactWritesTotal counts rewrites of on-disk artifacts.
	ArtifactWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogue_operator_artifact_writes_total",
			Help: "Total number of workload artifact rewrites by artifact",
		},
		[]string{"artifact"},
	)

	// WorkloadRestartsTotal counts restarts issued to the nginx service.
	WorkloadRestartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalogue_operator_workload_restarts_total",
			Help: "Total number of workload service restarts",
		},
	)

	// ReconcileDuration measures the duration (in seconds) of a reconciliation cycle.
	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalogue_operator_reconcile_duration_seconds",
			Help:    "Duration (in seconds) of catalogue reconciliation cycles",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	for _, c := range []prometheus.Collector{
		ReconcileCyclesTotal,
		ArtifactWritesTotal,
		WorkloadRestartsTotal,
		ReconcileDuration,
	} {
		if err := ctrlmetrics.Registry.Register(c); err != nil {
			klog.Errorf("Error registering catalogue metric: %v", err)
		}
	}
}

// RecordCycle increments the cycle counter for the given terminal state.
func RecordCycle(state string) {
	ReconcileCyclesTotal.WithLabelValues(state).Inc()
}

// RecordArtifactWrite increments the write counter for artifact.
func RecordArtifactWrite(artifact string) {
	ArtifactWritesTotal.WithLabelValues(artifact).Inc()
}

// IncrementRestarts increments the workload restart counter.
func IncrementRestarts() {
	WorkloadRestartsTotal.Inc()
}

// RecordReconcileDuration records the duration of one cycle.
func RecordReconcileDuration(seconds float64) {
	ReconcileDuration.Observe(seconds)
}
