/*
Package metrics provides Prometheus instrumentation for Caravel.

All metrics are registered at init time and exposed through Handler(),
which the server command mounts at /metrics.

# Metrics

Deployment:
  - caravel_deployments_total{status}: gauge of deployments per status
  - caravel_plan_duration_seconds: histogram of planner latency
  - caravel_plans_generated_total{risk}: plans generated per risk level

Task:
  - caravel_tasks_total{state}: gauge of tasks per state
  - caravel_tasks_dispatched_total: tasks materialized and enqueued
  - caravel_tasks_completed_total{status}: finished attempts by outcome
  - caravel_task_duration_seconds{provider,action}: execution latency

Lock:
  - caravel_lock_acquisitions_total{result}: acquired vs contended

Drift:
  - caravel_drift_scans_total: scans performed
  - caravel_drift_items_detected_total{severity}: findings by severity

Events:
  - caravel_events_published_total{type}: domain events by type

# Usage

Timing an operation:

	timer := metrics.NewTimer()
	plan, err := planner.GeneratePlan(intent)
	timer.ObserveDuration(metrics.PlanDuration)

Polling gauges from the manager:

	collector := metrics.NewCollector(mgr, 15*time.Second)
	collector.Start()
	defer collector.Stop()

# See Also

  - pkg/manager and pkg/worker for the counter call sites
  - cmd/caravel for the /metrics endpoint
*/
package metrics
