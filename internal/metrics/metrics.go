// Package metrics exposes Prometheus collectors for the replenishment service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "replenish"

var (
	// ForecastRunsTotal counts forecast runs by chosen algorithm and status.
	ForecastRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "runs_total",
			Help:      "Total number of forecast runs by algorithm and status",
		},
		[]string{"algorithm", "status"},
	)

	// ForecastDuration tracks single-product forecast latency.
	ForecastDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "duration_seconds",
			Help:      "Duration of single-product forecast runs in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"algorithm"},
	)

	// OptimizationsTotal counts inventory optimizations by status.
	OptimizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "optimizations_total",
			Help:      "Total number of inventory optimizations by status",
		},
		[]string{"status"},
	)

	// AlertsTotal counts alert lifecycle decisions.
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "decisions_total",
			Help:      "Total number of alert decisions by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// BatchItemsTotal counts batch items per phase and status.
	BatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "items_total",
			Help:      "Total number of batch items processed by phase and status",
		},
		[]string{"phase", "status"},
	)

	// BatchPhaseDuration tracks phase latency.
	BatchPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "phase_duration_seconds",
			Help:      "Duration of batch phases in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"phase"},
	)

	// PoolTasksInFlight tracks tasks currently executing in worker pools.
	PoolTasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_in_flight",
			Help:      "Number of tasks currently executing in worker pools",
		},
	)

	// PurchaseOrdersTotal counts generated purchase orders.
	PurchaseOrdersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purchase_order",
			Name:      "created_total",
			Help:      "Total number of purchase orders created",
		},
	)

	// ScanRunsTotal counts scheduled scans by status.
	ScanRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Total number of scheduled scans by status",
		},
		[]string{"status"},
	)

	// HTTPRequestsTotal counts inbound API requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status_code"},
	)
)
