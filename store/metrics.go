// server/store/metrics.go
package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tasks_store_operation_duration_seconds",
		Help:    "Time spent in a store operation, including waiting for the gate",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"op"})

	saveAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasks_store_save_attempts_total",
		Help: "Save attempts by result",
	}, []string{"result"})

	loadRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasks_store_load_recoveries_total",
		Help: "Corrupt tasks file recoveries by outcome (backup, reset)",
	}, []string{"outcome"})

	taskCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tasks_store_tasks",
		Help: "Number of tasks in the last loaded or saved collection",
	})
)
