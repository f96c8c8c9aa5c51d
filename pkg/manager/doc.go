/*
Package manager hosts the deployment lifecycle transactions. It is the
only code that spans aggregates: it drives the deployment and task
state machines through the store, guards racy sections with the
distributed lock, invokes the planner, and forwards domain events to
the sink.

Lifecycle flow:

	CreateDeployment -> PlanDeployment -> ApproveDeployment ->
	ExecuteDeployment -> HandleTaskCompletion* ->
	CompleteDeployment | RollbackDeployment

# Locking

Two advisory locks serialize the racy sections, both keyed per
deployment:

  - deployment:{id}:planning (ttl 120s) around PlanDeployment, so at
    most one instance plans a deployment at a time
  - deployment:{id}:completion (ttl 30s) around HandleTaskCompletion,
    so concurrent task completions cannot interleave their
    terminal-state decisions

Contention surfaces as ErrDeploymentLocked; callers may retry. Locks
are acquired before the invariants they protect are computed and
released on every exit path.

# Event publication

Aggregates buffer events on mutation. The manager collects and
publishes a deployment's buffer only after the corresponding store
write commits, which keeps ghost events from reaching subscribers when
a write fails.

# Task completion

HandleTaskCompletion is the single path by which a deployment leaves
EXECUTING. After finalizing the task and appending the step result, it
inspects every task of the deployment: all settled without failure
moves the deployment to VERIFYING; any failure with
rollback_on_failure requested starts the rollback. Deployments whose
intent did not ask for rollback stay put on failure and wait for the
operator.
*/
package manager
