package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/caravel-io/caravel/pkg/events"
	"github.com/caravel-io/caravel/pkg/lock"
	"github.com/caravel-io/caravel/pkg/log"
	"github.com/caravel-io/caravel/pkg/metrics"
	"github.com/caravel-io/caravel/pkg/planner"
	"github.com/caravel-io/caravel/pkg/storage"
	"github.com/caravel-io/caravel/pkg/types"
)

const (
	planningLockTTL   = 120 * time.Second
	completionLockTTL = 30 * time.Second
)

// ErrDeploymentLocked means another instance holds the lifecycle lock
// for the deployment. Callers may retry. The sentinel lives in
// pkg/types so workers can match it without depending on this package.
var ErrDeploymentLocked = types.ErrDeploymentLocked

// Manager hosts the cross-aggregate deployment transactions: it owns
// the interaction between the store, the distributed lock, the planner,
// and the event sink. Aggregates buffer their own events; the manager
// collects and publishes them only after the corresponding store write
// commits, so subscribers never see events for state that was rolled
// back.
type Manager struct {
	store   storage.Store
	locker  lock.Locker
	planner *planner.Planner
	sink    events.Sink
}

// New creates a deployment manager.
func New(store storage.Store, locker lock.Locker, p *planner.Planner, sink events.Sink) *Manager {
	return &Manager{
		store:   store,
		locker:  locker,
		planner: p,
		sink:    sink,
	}
}

// CreateDeployment persists a new PENDING deployment and publishes
// deployment.created.
func (m *Manager) CreateDeployment(ctx context.Context, name string, intent types.DeploymentIntent, initiatedBy, tenantID string) (*types.Deployment, error) {
	d := types.NewDeployment(name, intent, initiatedBy, tenantID)
	if err := m.store.CreateDeployment(d); err != nil {
		return nil, fmt.Errorf("failed to create deployment: %w", err)
	}
	m.publish(d.CollectEvents())

	log.WithDeploymentID(d.ID).Info().
		Str("tenant_id", tenantID).
		Str("environment", intent.Environment).
		Msg("deployment created")
	return d, nil
}

// PlanDeployment generates and attaches the execution plan under the
// planning lock. Concurrent planning of the same deployment is
// forbidden; contenders get ErrDeploymentLocked and may retry.
func (m *Manager) PlanDeployment(ctx context.Context, deploymentID string) (*types.Deployment, error) {
	lockKey := fmt.Sprintf("deployment:%s:planning", deploymentID)
	acquired, err := m.locker.Acquire(ctx, lockKey, planningLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire planning lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: deployment %s is being planned", ErrDeploymentLocked, deploymentID)
	}
	defer m.locker.Release(context.WithoutCancel(ctx), lockKey)

	d, err := m.store.GetDeployment(deploymentID)
	if err != nil {
		return nil, err
	}

	if err := d.StartPlanning(); err != nil {
		return nil, err
	}

	plan, err := m.planner.GeneratePlan(d.Intent)
	if err != nil {
		if failErr := d.Fail(fmt.Sprintf("planning failed: %v", err)); failErr == nil {
			if updateErr := m.store.UpdateDeployment(d); updateErr == nil {
				m.publish(d.CollectEvents())
			}
		}
		return nil, fmt.Errorf("failed to generate plan: %w", err)
	}

	if err := d.SetPlan(plan); err != nil {
		return nil, err
	}
	if err := m.store.UpdateDeployment(d); err != nil {
		return nil, fmt.Errorf("failed to persist plan: %w", err)
	}
	m.publish(d.CollectEvents())

	log.WithDeploymentID(d.ID).Info().
		Str("plan_id", plan.PlanID).
		Int("step_count", plan.StepCount()).
		Str("risk", string(plan.RiskAssessment)).
		Msg("deployment planned")
	return d, nil
}

// ApproveDeployment approves a plan awaiting approval.
func (m *Manager) ApproveDeployment(ctx context.Context, deploymentID, approvedBy string) (*types.Deployment, error) {
	d, err := m.store.GetDeployment(deploymentID)
	if err != nil {
		return nil, err
	}
	if err := d.Approve(approvedBy); err != nil {
		return nil, err
	}
	if err := m.store.UpdateDeployment(d); err != nil {
		return nil, err
	}
	m.publish(d.CollectEvents())
	return d, nil
}

// ExecuteDeployment transitions the deployment to EXECUTING and
// materializes one QUEUED task per plan step. Task timeouts are twice
// the step's estimated duration; the step's idempotency key travels on
// the task so retried attempts stay deduplicable.
func (m *Manager) ExecuteDeployment(ctx context.Context, deploymentID string) ([]*types.Task, error) {
	d, err := m.store.GetDeployment(deploymentID)
	if err != nil {
		return nil, err
	}
	if d.Plan == nil {
		return nil, fmt.Errorf("%w: deployment %s", types.ErrPlanMissing, deploymentID)
	}

	if err := d.StartExecution(); err != nil {
		return nil, err
	}
	if err := m.store.UpdateDeployment(d); err != nil {
		return nil, err
	}

	tasks := make([]*types.Task, 0, len(d.Plan.Steps))
	for _, step := range d.Plan.Steps {
		task := taskFromStep(d, step)
		if err := task.Enqueue(); err != nil {
			return nil, err
		}
		if err := m.store.CreateTask(task); err != nil {
			return nil, fmt.Errorf("failed to create task for step %s: %w", step.StepID, err)
		}
		metrics.TasksDispatched.Inc()
		tasks = append(tasks, task)
	}

	m.publish(d.CollectEvents())

	log.WithDeploymentID(d.ID).Info().
		Int("task_count", len(tasks)).
		Msg("deployment execution started")
	return tasks, nil
}

func taskFromStep(d *types.Deployment, step types.ExecutionStep) *types.Task {
	return &types.Task{
		Entity:          types.NewEntity(),
		DeploymentID:    d.ID,
		StepID:          step.StepID,
		Name:            step.Name,
		Description:     step.Description,
		Status:          types.TaskPending,
		Provider:        step.Provider,
		TerraformAction: step.TerraformAction,
		IdempotencyKey:  step.IdempotencyKey,
		AttemptNumber:   1,
		MaxAttempts:     step.MaxRetries,
		TimeoutSeconds:  2 * step.EstimatedDurationSeconds,
		InputData: map[string]any{
			"resource_spec": step.ResourceSpec.AsMap(),
			"dependencies":  step.Dependencies,
		},
	}
}

// HandleTaskCompletion is the single path by which a deployment
// advances out of EXECUTING. It runs under the per-deployment
// completion lock so concurrent task completions cannot interleave
// their terminal-state decisions. The task transition is applied here
// unless the worker already finalized the task (a timed-out task
// arrives as failed).
func (m *Manager) HandleTaskCompletion(ctx context.Context, taskID string, success bool, output map[string]any, errorMessage string) (*types.Deployment, error) {
	task, err := m.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	lockKey := fmt.Sprintf("deployment:%s:completion", task.DeploymentID)
	acquired, err := m.locker.Acquire(ctx, lockKey, completionLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire completion lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: deployment %s completion in progress", ErrDeploymentLocked, task.DeploymentID)
	}
	defer m.locker.Release(context.WithoutCancel(ctx), lockKey)

	if err := m.finalizeTask(task, success, output, errorMessage); err != nil {
		return nil, err
	}

	d, err := m.store.GetDeployment(task.DeploymentID)
	if err != nil {
		return nil, err
	}

	result := stepResultFromTask(task, success, output, errorMessage)
	if err := d.RecordStepResult(result); err != nil && !errors.Is(err, types.ErrInvalidTransition) {
		return nil, err
	}

	if err := m.settleDeployment(d); err != nil {
		return nil, err
	}

	if err := m.store.UpdateDeployment(d); err != nil {
		return nil, err
	}
	m.publish(d.CollectEvents())

	log.WithDeploymentID(d.ID).Info().
		Str("task_id", task.ID).
		Bool("success", success).
		Str("status", string(d.Status)).
		Msg("task completion handled")
	return d, nil
}

// finalizeTask applies the succeed/fail transition unless the worker
// already moved the task to a completed state.
func (m *Manager) finalizeTask(task *types.Task, success bool, output map[string]any, errorMessage string) error {
	switch {
	case success && task.Status != types.TaskSucceeded:
		if err := task.Succeed(output); err != nil {
			return err
		}
	case !success && task.Status != types.TaskFailed && task.Status != types.TaskTimedOut:
		if err := task.Fail(errorMessage); err != nil {
			return err
		}
	default:
		return nil
	}
	return m.store.UpdateTask(task)
}

func stepResultFromTask(task *types.Task, success bool, output map[string]any, errorMessage string) types.StepResult {
	result := types.StepResult{
		StepID:         task.StepID,
		Success:        success,
		ErrorMessage:   errorMessage,
		IdempotencyKey: task.IdempotencyKey,
		AttemptNumber:  task.AttemptNumber,
	}
	if len(output) > 0 {
		if encoded, err := json.Marshal(output); err == nil {
			result.Output = string(encoded)
		}
	}
	if task.StartedAt != nil && task.CompletedAt != nil {
		result.DurationSeconds = task.CompletedAt.Sub(*task.StartedAt).Seconds()
	}
	return result
}

// settleDeployment inspects all tasks of the deployment and drives the
// aggregate forward: all settled with no failures means verification;
// any failure with rollback_on_failure requested means rollback.
func (m *Manager) settleDeployment(d *types.Deployment) error {
	tasks, err := m.store.ListTasksByDeployment(d.ID)
	if err != nil {
		return err
	}

	anyFailed := false
	allSettled := true
	for _, t := range tasks {
		switch t.Status {
		case types.TaskSucceeded, types.TaskCancelled:
		case types.TaskFailed, types.TaskTimedOut:
			anyFailed = true
		default:
			allSettled = false
		}
	}

	switch {
	case anyFailed && d.Intent.RollbackOnFailure:
		if d.Status == types.DeploymentExecuting || d.Status == types.DeploymentFailed {
			return d.StartRollback()
		}
	case allSettled && !anyFailed && d.Status == types.DeploymentExecuting:
		return d.StartVerification()
	}
	return nil
}

// RetryTask is the operator-initiated recovery path for a failed or
// timed-out task: it re-queues the task for another attempt under the
// same idempotency key. Exhausted tasks fail with
// ErrMaxRetriesExceeded.
func (m *Manager) RetryTask(ctx context.Context, taskID string) (*types.Task, error) {
	task, err := m.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if err := task.Retry(); err != nil {
		return nil, err
	}
	if err := m.store.UpdateTask(task); err != nil {
		return nil, fmt.Errorf("failed to persist task retry: %w", err)
	}
	metrics.TasksDispatched.Inc()
	m.publish([]events.Event{events.New("task.retrying", task.DeploymentID, map[string]any{
		"task_id":        task.ID,
		"deployment_id":  task.DeploymentID,
		"attempt_number": task.AttemptNumber,
	})})

	log.WithDeploymentID(task.DeploymentID).Info().
		Str("task_id", task.ID).
		Int("attempt_number", task.AttemptNumber).
		Msg("task requeued for retry")
	return task, nil
}

// RollbackDeployment is the operator-initiated rollback path.
func (m *Manager) RollbackDeployment(ctx context.Context, deploymentID string) (*types.Deployment, error) {
	d, err := m.store.GetDeployment(deploymentID)
	if err != nil {
		return nil, err
	}
	if err := d.StartRollback(); err != nil {
		return nil, err
	}
	if err := m.store.UpdateDeployment(d); err != nil {
		return nil, err
	}
	m.publish(d.CollectEvents())
	return d, nil
}

// CompleteRollback marks a rollback finished.
func (m *Manager) CompleteRollback(ctx context.Context, deploymentID string) (*types.Deployment, error) {
	d, err := m.store.GetDeployment(deploymentID)
	if err != nil {
		return nil, err
	}
	if err := d.CompleteRollback(); err != nil {
		return nil, err
	}
	if err := m.store.UpdateDeployment(d); err != nil {
		return nil, err
	}
	m.publish(d.CollectEvents())
	return d, nil
}

// CompleteDeployment moves a verifying deployment to COMPLETED.
func (m *Manager) CompleteDeployment(ctx context.Context, deploymentID string) (*types.Deployment, error) {
	d, err := m.store.GetDeployment(deploymentID)
	if err != nil {
		return nil, err
	}
	if err := d.Complete(); err != nil {
		return nil, err
	}
	if err := m.store.UpdateDeployment(d); err != nil {
		return nil, err
	}
	m.publish(d.CollectEvents())
	return d, nil
}

// CancelDeployment cancels the deployment and every task of it that is
// still cancellable.
func (m *Manager) CancelDeployment(ctx context.Context, deploymentID string) (*types.Deployment, error) {
	d, err := m.store.GetDeployment(deploymentID)
	if err != nil {
		return nil, err
	}
	if err := d.Cancel(); err != nil {
		return nil, err
	}

	tasks, err := m.store.ListTasksByDeployment(deploymentID)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if err := t.Cancel(); err != nil {
			continue
		}
		if err := m.store.UpdateTask(t); err != nil {
			return nil, err
		}
	}

	if err := m.store.UpdateDeployment(d); err != nil {
		return nil, err
	}
	m.publish(d.CollectEvents())
	return d, nil
}

// GetDeployment fetches one deployment.
func (m *Manager) GetDeployment(ctx context.Context, deploymentID string) (*types.Deployment, error) {
	return m.store.GetDeployment(deploymentID)
}

// ListDeployments pages through all deployments.
func (m *Manager) ListDeployments(ctx context.Context, limit, offset int) ([]*types.Deployment, error) {
	return m.store.ListDeployments(limit, offset)
}

// CountDeploymentsByStatus feeds the metrics collector.
func (m *Manager) CountDeploymentsByStatus() (map[types.DeploymentStatus]int, error) {
	return m.store.CountDeploymentsByStatus()
}

// CountTasksByStatus feeds the metrics collector.
func (m *Manager) CountTasksByStatus() (map[types.TaskStatus]int, error) {
	return m.store.CountTasksByStatus()
}

func (m *Manager) publish(batch []events.Event) {
	if m.sink == nil || len(batch) == 0 {
		return
	}
	m.sink.PublishBatch(batch)
	for _, e := range batch {
		metrics.EventsPublished.WithLabelValues(e.Type).Inc()
	}
}
