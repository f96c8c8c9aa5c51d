package types

import (
	"fmt"
	"time"
)

// TaskStatus is a task execution state
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskQueued    TaskStatus = "queued"
	TaskAcquired  TaskStatus = "acquired"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskRetrying  TaskStatus = "retrying"
	TaskCancelled TaskStatus = "cancelled"
	TaskTimedOut  TaskStatus = "timed_out"
)

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:   {TaskQueued, TaskCancelled},
	TaskQueued:    {TaskAcquired, TaskCancelled, TaskTimedOut},
	TaskAcquired:  {TaskRunning, TaskCancelled},
	TaskRunning:   {TaskSucceeded, TaskFailed, TaskTimedOut},
	TaskSucceeded: {},
	TaskFailed:    {TaskRetrying, TaskCancelled},
	TaskRetrying:  {TaskQueued},
	TaskCancelled: {},
	TaskTimedOut:  {TaskRetrying, TaskCancelled, TaskFailed},
}

// Task is the worker-visible unit of execution for a single plan step
// attempt. The idempotency key is copied from the step and reused
// across retries, so executors can deduplicate side effects.
type Task struct {
	Entity
	DeploymentID    string         `json:"deployment_id"`
	StepID          string         `json:"step_id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Status          TaskStatus     `json:"status"`
	Provider        ProviderType   `json:"provider"`
	TerraformAction string         `json:"terraform_action"`
	WorkerID        string         `json:"worker_id,omitempty"`
	IdempotencyKey  string         `json:"idempotency_key"`
	AttemptNumber   int            `json:"attempt_number"`
	MaxAttempts     int            `json:"max_attempts"`
	TimeoutSeconds  int            `json:"timeout_seconds"`
	InputData       map[string]any `json:"input_data,omitempty"`
	OutputData      map[string]any `json:"output_data,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

func (t *Task) transitionTo(next TaskStatus) error {
	for _, allowed := range taskTransitions[t.Status] {
		if allowed == next {
			t.Status = next
			t.Touch()
			return nil
		}
	}
	return invalidTransition("task", string(t.Status), string(next))
}

// Enqueue makes the task claimable by workers.
func (t *Task) Enqueue() error {
	return t.transitionTo(TaskQueued)
}

// Acquire assigns the task to a worker. Storage backends call this
// inside their atomic claim so exactly one worker observes the
// QUEUED to ACQUIRED edge.
func (t *Task) Acquire(workerID string) error {
	if err := t.transitionTo(TaskAcquired); err != nil {
		return err
	}
	t.WorkerID = workerID
	return nil
}

// Start marks execution begun and stamps started_at.
func (t *Task) Start() error {
	if err := t.transitionTo(TaskRunning); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.StartedAt = &now
	return nil
}

// Succeed records the output and completes the task.
func (t *Task) Succeed(output map[string]any) error {
	if err := t.transitionTo(TaskSucceeded); err != nil {
		return err
	}
	if len(output) > 0 {
		t.OutputData = output
	}
	now := time.Now().UTC()
	t.CompletedAt = &now
	return nil
}

// Fail records the error and marks the task failed.
func (t *Task) Fail(errorMessage string) error {
	if err := t.transitionTo(TaskFailed); err != nil {
		return err
	}
	t.ErrorMessage = errorMessage
	now := time.Now().UTC()
	t.CompletedAt = &now
	return nil
}

// Retry re-queues a failed or timed-out task for another attempt. The
// worker assignment and error are cleared, the attempt counter is
// incremented, and the idempotency key is kept so the executor can
// recognize the repeated operation.
func (t *Task) Retry() error {
	if t.AttemptNumber >= t.MaxAttempts {
		return fmt.Errorf("%w: task %s spent all %d attempts", ErrMaxRetriesExceeded, t.ID, t.MaxAttempts)
	}
	if err := t.transitionTo(TaskRetrying); err != nil {
		return err
	}
	t.AttemptNumber++
	t.WorkerID = ""
	t.ErrorMessage = ""
	return t.transitionTo(TaskQueued)
}

// Timeout marks the task as having exceeded its deadline.
func (t *Task) Timeout() error {
	if err := t.transitionTo(TaskTimedOut); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.CompletedAt = &now
	return nil
}

// Cancel cancels the task.
func (t *Task) Cancel() error {
	if err := t.transitionTo(TaskCancelled); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.CompletedAt = &now
	return nil
}

// IsTerminal reports whether the task can make no further transitions.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskSucceeded || t.Status == TaskCancelled
}

// CanRetry reports whether the task is eligible for another attempt.
func (t *Task) CanRetry() bool {
	if t.Status != TaskFailed && t.Status != TaskTimedOut {
		return false
	}
	return t.AttemptNumber < t.MaxAttempts
}
