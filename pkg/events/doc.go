/*
Package events provides the domain event envelope and an in-memory broker
for Caravel's pub/sub messaging.

Every state change in the deployment lifecycle is announced as an Event:
a uuid-identified envelope carrying the event type, an RFC3339 UTC
timestamp, the correlation id (the deployment id the event belongs to),
and a free-form payload map. Aggregates buffer events while a service
method runs; the service publishes them only after the storage commit
succeeds, so subscribers never observe a state that was rolled back.

# Architecture

	Publisher → Event Channel (buffer: 100)
	     ↓
	Broadcast Loop
	     ↓
	Subscriber Channels (buffer: 50 each)

The Broker is topic-agnostic: all events are broadcast to every
subscriber, and filtering happens at the subscriber side by event type.
Publish is non-blocking; a subscriber whose buffer is full skips the
event rather than stalling the broadcast loop.

# Event Types

Deployment events:
  - deployment.created
  - deployment.plan_generated
  - deployment.approved
  - deployment.started
  - deployment.completed
  - deployment.failed
  - deployment.rollback_started
  - deployment.rollback_completed

Task events (emitted by workers, type derived from terminal status):
  - task.succeeded, task.failed, task.timed_out

Drift events:
  - drift.detected

# Usage

Creating and starting a broker:

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

Subscribing:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			switch event.Type {
			case events.EventDeploymentFailed:
				handleFailure(event)
			}
		}
	}()

Publishing:

	broker.Publish(events.New(events.EventDeploymentCreated, deploymentID,
		map[string]any{
			"deployment_id": deploymentID,
			"tenant_id":     tenantID,
			"environment":   "production",
		}))

# Limitations

The broker is in-memory and best-effort: no persistence, no replay, no
delivery acknowledgment. Services that need durable history subscribe
and write events to their own store.

# See Also

  - pkg/manager for lifecycle event emission
  - pkg/worker for task completion events
  - pkg/drift for drift.detected emission
*/
package events
