/*
Package types defines Caravel's domain model: the Deployment and Task
aggregates with their state machines, the immutable DeploymentIntent and
ExecutionPlan values, and the DriftReport aggregate.

# Architecture

	┌──────────────────── DOMAIN MODEL ────────────────────┐
	│                                                        │
	│  DeploymentIntent (immutable request)                  │
	│        │ planner                                       │
	│        ▼                                               │
	│  Deployment ──owns──▶ ExecutionPlan ──▶ ExecutionStep  │
	│        │                                    │          │
	│        │ materialize                        ▼          │
	│        └──────────▶ Task (one per step attempt)        │
	│                                                        │
	│  DriftReport ──▶ DriftItem (expected vs actual diff)   │
	└────────────────────────────────────────────────────────┘

Every aggregate embeds Entity: uuid identity, created/updated
timestamps, and a version counter incremented on each mutation
("touch"). Version is the optimistic-concurrency predicate for storage
backends. Aggregates also buffer domain events; services collect and
publish the buffer only after the storage write commits.

# Deployment State Machine

	PENDING → PLANNING → PLANNED → {AWAITING_APPROVAL | APPROVED}
	       → EXECUTING → VERIFYING → COMPLETED

	EXECUTING/VERIFYING → FAILED → {ROLLING_BACK | PENDING}
	ROLLING_BACK → {ROLLED_BACK | FAILED}
	ROLLED_BACK → PENDING

Terminal states (no outgoing transitions): COMPLETED, CANCELLED,
ROLLED_BACK. Any other transition attempt returns ErrInvalidTransition
and leaves the aggregate unchanged.

SetPlan carries policy: it records the plan, emits
deployment.plan_generated, and then either auto-approves (when the
intent says so, with approved_by "auto") or parks the deployment in
AWAITING_APPROVAL.

# Task State Machine

	PENDING → QUEUED → ACQUIRED → RUNNING → {SUCCEEDED | FAILED | TIMED_OUT}
	FAILED / TIMED_OUT → RETRYING → QUEUED

Terminal: SUCCEEDED, CANCELLED. Retry clears the worker assignment,
bumps attempt_number, and keeps the idempotency key; it fails with
ErrMaxRetriesExceeded once attempt_number reaches max_attempts.

# Invariants

  - Deployment.Plan is set at most once, during PLANNING to PLANNED.
  - StepResults is append-only and bounded by the plan's step count.
  - Task.WorkerID is set iff the task is claimed or has completed.
  - Task.IdempotencyKey is immutable and unique across tasks.
  - DriftReport.MaxSeverity is the max over items, or low when empty.

# See Also

  - pkg/planner for intent to plan translation
  - pkg/manager for the lifecycle orchestration that drives these
    state machines
  - pkg/storage for persistence of the aggregates
*/
package types
