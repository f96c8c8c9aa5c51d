package types

import (
	"fmt"

	"github.com/caravel-io/caravel/pkg/events"
)

// DeploymentStatus is a deployment lifecycle state
type DeploymentStatus string

const (
	DeploymentPending          DeploymentStatus = "pending"
	DeploymentPlanning         DeploymentStatus = "planning"
	DeploymentPlanned          DeploymentStatus = "planned"
	DeploymentAwaitingApproval DeploymentStatus = "awaiting_approval"
	DeploymentApproved         DeploymentStatus = "approved"
	DeploymentExecuting        DeploymentStatus = "executing"
	DeploymentVerifying        DeploymentStatus = "verifying"
	DeploymentCompleted        DeploymentStatus = "completed"
	DeploymentFailed           DeploymentStatus = "failed"
	DeploymentRollingBack      DeploymentStatus = "rolling_back"
	DeploymentRolledBack       DeploymentStatus = "rolled_back"
	DeploymentCancelled        DeploymentStatus = "cancelled"
)

// deploymentTransitions is the full state machine. Any transition not
// listed here fails with ErrInvalidTransition; the terminal states
// (completed, cancelled, rolled_back) have no outgoing edges.
var deploymentTransitions = map[DeploymentStatus][]DeploymentStatus{
	DeploymentPending:          {DeploymentPlanning, DeploymentCancelled},
	DeploymentPlanning:         {DeploymentPlanned, DeploymentFailed},
	DeploymentPlanned:          {DeploymentAwaitingApproval, DeploymentApproved, DeploymentExecuting, DeploymentCancelled},
	DeploymentAwaitingApproval: {DeploymentApproved, DeploymentCancelled},
	DeploymentApproved:         {DeploymentExecuting, DeploymentCancelled},
	DeploymentExecuting:        {DeploymentVerifying, DeploymentFailed, DeploymentRollingBack},
	DeploymentVerifying:        {DeploymentCompleted, DeploymentFailed, DeploymentRollingBack},
	DeploymentCompleted:        {},
	DeploymentFailed:           {DeploymentRollingBack, DeploymentPending},
	DeploymentRollingBack:      {DeploymentRolledBack, DeploymentFailed},
	DeploymentRolledBack:       {DeploymentPending},
	DeploymentCancelled:        {},
}

// Deployment is the aggregate root for one deployment request. All
// mutations flow through its methods; the status field only changes via
// the state machine above.
type Deployment struct {
	Entity
	Name                 string           `json:"name"`
	Intent               DeploymentIntent `json:"intent"`
	Status               DeploymentStatus `json:"status"`
	Plan                 *ExecutionPlan   `json:"plan,omitempty"`
	StepResults          []StepResult     `json:"step_results,omitempty"`
	InitiatedBy          string           `json:"initiated_by"`
	TenantID             string           `json:"tenant_id"`
	ErrorMessage         string           `json:"error_message,omitempty"`
	RollbackDeploymentID string           `json:"rollback_deployment_id,omitempty"`
}

// NewDeployment constructs a PENDING deployment and buffers the
// deployment.created event for publication after the first persist.
func NewDeployment(name string, intent DeploymentIntent, initiatedBy, tenantID string) *Deployment {
	d := &Deployment{
		Entity:      NewEntity(),
		Name:        name,
		Intent:      intent,
		Status:      DeploymentPending,
		InitiatedBy: initiatedBy,
		TenantID:    tenantID,
	}
	d.Record(events.New(events.EventDeploymentCreated, d.ID, map[string]any{
		"deployment_id": d.ID,
		"tenant_id":     d.TenantID,
	}))
	return d
}

func (d *Deployment) transitionTo(next DeploymentStatus) error {
	for _, allowed := range deploymentTransitions[d.Status] {
		if allowed == next {
			d.Status = next
			d.Touch()
			return nil
		}
	}
	return invalidTransition("deployment", string(d.Status), string(next))
}

// StartPlanning moves the deployment into the planning phase.
func (d *Deployment) StartPlanning() error {
	return d.transitionTo(DeploymentPlanning)
}

// SetPlan attaches the generated plan, emits deployment.plan_generated,
// and then either auto-approves (approved_by "auto") or parks the
// deployment in AWAITING_APPROVAL, depending on the intent.
func (d *Deployment) SetPlan(plan *ExecutionPlan) error {
	if err := d.transitionTo(DeploymentPlanned); err != nil {
		return err
	}
	d.Plan = plan
	d.Record(events.New(events.EventDeploymentPlanGenerated, d.ID, map[string]any{
		"deployment_id": d.ID,
		"plan_id":       plan.PlanID,
		"step_count":    plan.StepCount(),
	}))
	if d.Intent.AutoApprove {
		return d.Approve("auto")
	}
	return d.transitionTo(DeploymentAwaitingApproval)
}

// Approve marks the plan approved for execution.
func (d *Deployment) Approve(approvedBy string) error {
	if err := d.transitionTo(DeploymentApproved); err != nil {
		return err
	}
	d.Record(events.New(events.EventDeploymentApproved, d.ID, map[string]any{
		"deployment_id": d.ID,
		"approved_by":   approvedBy,
	}))
	return nil
}

// StartExecution begins executing the plan.
func (d *Deployment) StartExecution() error {
	if err := d.transitionTo(DeploymentExecuting); err != nil {
		return err
	}
	d.Record(events.New(events.EventDeploymentStarted, d.ID, map[string]any{
		"deployment_id": d.ID,
	}))
	return nil
}

// RecordStepResult records a step outcome. A later attempt of the same
// step replaces the earlier result, so step_results never outgrows the
// plan; terminal deployments accept no results at all. A failed result
// fails the whole deployment when the intent asked for rollback on
// failure; the rollback itself is a separate transition driven by the
// service.
func (d *Deployment) RecordStepResult(result StepResult) error {
	if d.IsTerminal() {
		return fmt.Errorf("%w: deployment %s is %s and accepts no step results",
			ErrInvalidTransition, d.ID, d.Status)
	}

	replaced := false
	for i := range d.StepResults {
		if d.StepResults[i].StepID == result.StepID {
			d.StepResults[i] = result
			replaced = true
			break
		}
	}
	if !replaced {
		d.StepResults = append(d.StepResults, result)
	}
	d.Touch()

	if !result.Success && d.Intent.RollbackOnFailure {
		return d.Fail(fmt.Sprintf("step %s failed: %s", result.StepID, result.ErrorMessage))
	}
	return nil
}

// StartVerification begins post-execution verification.
func (d *Deployment) StartVerification() error {
	return d.transitionTo(DeploymentVerifying)
}

// Complete marks the deployment successfully finished.
func (d *Deployment) Complete() error {
	if err := d.transitionTo(DeploymentCompleted); err != nil {
		return err
	}
	d.Record(events.New(events.EventDeploymentCompleted, d.ID, map[string]any{
		"deployment_id": d.ID,
	}))
	return nil
}

// Fail records the error and moves the deployment to FAILED.
func (d *Deployment) Fail(errorMessage string) error {
	if err := d.transitionTo(DeploymentFailed); err != nil {
		return err
	}
	d.ErrorMessage = errorMessage
	d.Record(events.New(events.EventDeploymentFailed, d.ID, map[string]any{
		"deployment_id": d.ID,
		"error_message": errorMessage,
	}))
	return nil
}

// StartRollback initiates rollback of a failed or stuck execution.
func (d *Deployment) StartRollback() error {
	if err := d.transitionTo(DeploymentRollingBack); err != nil {
		return err
	}
	d.Record(events.New(events.EventDeploymentRollbackStarted, d.ID, map[string]any{
		"deployment_id": d.ID,
	}))
	return nil
}

// CompleteRollback marks the rollback finished.
func (d *Deployment) CompleteRollback() error {
	if err := d.transitionTo(DeploymentRolledBack); err != nil {
		return err
	}
	d.Record(events.New(events.EventDeploymentRollbackCompleted, d.ID, map[string]any{
		"deployment_id": d.ID,
	}))
	return nil
}

// Cancel cancels the deployment.
func (d *Deployment) Cancel() error {
	return d.transitionTo(DeploymentCancelled)
}

// IsTerminal reports whether the deployment can make no further
// transitions.
func (d *Deployment) IsTerminal() bool {
	switch d.Status {
	case DeploymentCompleted, DeploymentCancelled, DeploymentRolledBack:
		return true
	}
	return false
}

// ProgressPercentage is recorded step results over plan size.
func (d *Deployment) ProgressPercentage() float64 {
	if d.Plan == nil || len(d.Plan.Steps) == 0 {
		return 0
	}
	return float64(len(d.StepResults)) / float64(len(d.Plan.Steps)) * 100
}
