package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncOperations counts core operations by component, operation and outcome.
	SyncOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aniforum_sync_operations_total",
		Help: "Total synchronization operations by component, operation and status",
	}, []string{"component", "operation", "status"})

	// DualWriteFailures counts replicated writes that only reached one copy.
	DualWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aniforum_dual_write_failures_total",
		Help: "Total dual writes that partially succeeded",
	})

	// SnapshotApplies counts push snapshots applied to the mirror by kind.
	SnapshotApplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aniforum_snapshot_applies_total",
		Help: "Total push snapshots applied to the in-memory mirror",
	}, []string{"kind"})

	// ActiveSubscriptions is the gauge of live push subscriptions.
	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aniforum_active_subscriptions",
		Help: "Number of live push subscriptions",
	})
)

// RecordOperation increments the operation counter with a success/error status.
func RecordOperation(component, operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SyncOperations.WithLabelValues(component, operation, status).Inc()
}
