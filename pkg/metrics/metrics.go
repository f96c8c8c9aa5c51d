package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Deployment metrics
	DeploymentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "caravel_deployments_total",
			Help: "Total number of deployments by status",
		},
		[]string{"status"},
	)

	PlanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "caravel_plan_duration_seconds",
			Help:    "Time taken to generate an execution plan in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PlansGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caravel_plans_generated_total",
			Help: "Total number of execution plans generated by risk level",
		},
		[]string{"risk"},
	)

	// Task metrics
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "caravel_tasks_total",
			Help: "Total number of tasks by state",
		},
		[]string{"state"},
	)

	TasksDispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "caravel_tasks_dispatched_total",
			Help: "Total number of tasks materialized and enqueued",
		},
	)

	TasksCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caravel_tasks_completed_total",
			Help: "Total number of finished task attempts by outcome",
		},
		[]string{"status"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "caravel_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"provider", "action"},
	)

	// Lock metrics
	LockAcquisitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caravel_lock_acquisitions_total",
			Help: "Total number of distributed lock acquisition attempts by result",
		},
		[]string{"result"},
	)

	// Drift metrics
	DriftScansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "caravel_drift_scans_total",
			Help: "Total number of drift scans performed",
		},
	)

	DriftItemsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caravel_drift_items_detected_total",
			Help: "Total number of drift findings by severity",
		},
		[]string{"severity"},
	)

	// Event metrics
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caravel_events_published_total",
			Help: "Total number of domain events published by type",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(DeploymentsTotal)
	prometheus.MustRegister(PlanDuration)
	prometheus.MustRegister(PlansGenerated)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TasksDispatched)
	prometheus.MustRegister(TasksCompleted)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(LockAcquisitions)
	prometheus.MustRegister(DriftScansTotal)
	prometheus.MustRegister(DriftItemsDetected)
	prometheus.MustRegister(EventsPublished)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
