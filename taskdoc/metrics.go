package taskdoc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskdoc_operations_total",
		Help: "Document load, save, merge and close operations by outcome",
	}, []string{"operation", "outcome"})

	reconciledObjects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskdoc_reconciled_objects_total",
		Help: "Objects touched by reconciliation by resolution",
	}, []string{"resolution"})

	mergeConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskdoc_merge_conflicts_total",
		Help: "Conflicts found while reconciling by type and chosen side",
	}, []string{"type", "chosen"})

	lockWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "taskdoc_lock_wait_seconds",
		Help:    "Time spent acquiring the file lock",
		Buckets: []float64{0.001, 0.01, 0.05, 0.25, 1, 5},
	})
)

func observeOperation(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	documentOperations.WithLabelValues(operation, outcome).Inc()
}

func observeReport(r *MergeReport) {
	for _, result := range r.Results {
		reconciledObjects.WithLabelValues(string(result.Resolution)).Inc()
	}
	for _, c := range r.Conflicts {
		mergeConflicts.WithLabelValues(string(c.Type), string(c.Chosen)).Inc()
	}
}
