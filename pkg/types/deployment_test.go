package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caravel-io/caravel/pkg/events"
)

func testIntent() DeploymentIntent {
	return DeploymentIntent{
		Description:     "deploy web tier",
		TargetProviders: []ProviderType{ProviderAWS},
		TargetRegions:   []string{"us-east-1"},
		Resources: []ResourceSpec{
			{ResourceType: ResourceCompute, Provider: ProviderAWS, Region: "us-east-1", Name: "web"},
		},
		Strategy:          StrategyRolling,
		RollbackOnFailure: true,
		Environment:       "staging",
	}
}

func testPlan(steps int) *ExecutionPlan {
	plan := &ExecutionPlan{PlanID: "plan-1", RiskAssessment: RiskLow}
	for i := 0; i < steps; i++ {
		plan.Steps = append(plan.Steps, ExecutionStep{
			StepID:          "step-" + string(rune('a'+i)),
			Name:            "deploy",
			TerraformAction: ActionCreate,
		})
	}
	return plan
}

func TestNewDeployment(t *testing.T) {
	d := NewDeployment("web", testIntent(), "alice", "tenant-1")

	assert.NotEmpty(t, d.ID)
	assert.Equal(t, DeploymentPending, d.Status)
	assert.Equal(t, "alice", d.InitiatedBy)
	assert.Equal(t, "tenant-1", d.TenantID)
	assert.Equal(t, 1, d.Version)

	pending := d.CollectEvents()
	require.Len(t, pending, 1)
	assert.Equal(t, events.EventDeploymentCreated, pending[0].Type)
	assert.Equal(t, d.ID, pending[0].CorrelationID)
	assert.Equal(t, d.ID, pending[0].Payload["deployment_id"])
	assert.Equal(t, "tenant-1", pending[0].Payload["tenant_id"])
	assert.Empty(t, d.CollectEvents(), "collect clears the buffer")
}

func TestDeploymentTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    DeploymentStatus
		to      DeploymentStatus
		allowed bool
	}{
		{"pending to planning", DeploymentPending, DeploymentPlanning, true},
		{"pending to cancelled", DeploymentPending, DeploymentCancelled, true},
		{"pending to executing", DeploymentPending, DeploymentExecuting, false},
		{"planning to planned", DeploymentPlanning, DeploymentPlanned, true},
		{"planning to failed", DeploymentPlanning, DeploymentFailed, true},
		{"planned to executing", DeploymentPlanned, DeploymentExecuting, true},
		{"awaiting to approved", DeploymentAwaitingApproval, DeploymentApproved, true},
		{"executing to verifying", DeploymentExecuting, DeploymentVerifying, true},
		{"executing to rolling back", DeploymentExecuting, DeploymentRollingBack, true},
		{"verifying to completed", DeploymentVerifying, DeploymentCompleted, true},
		{"failed to rolling back", DeploymentFailed, DeploymentRollingBack, true},
		{"failed to pending (re-plan)", DeploymentFailed, DeploymentPending, true},
		{"rolling back to rolled back", DeploymentRollingBack, DeploymentRolledBack, true},
		{"rolled back to pending", DeploymentRolledBack, DeploymentPending, true},
		{"completed is terminal", DeploymentCompleted, DeploymentPending, false},
		{"cancelled is terminal", DeploymentCancelled, DeploymentPlanning, false},
		{"rolled back cannot execute", DeploymentRolledBack, DeploymentExecuting, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDeployment("web", testIntent(), "alice", "tenant-1")
			d.Status = tt.from
			before := d.Version

			err := d.transitionTo(tt.to)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, d.Status)
				assert.Equal(t, before+1, d.Version)
			} else {
				require.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, d.Status, "failed transition leaves status unchanged")
				assert.Equal(t, before, d.Version)
			}
		})
	}
}

func TestSetPlanAwaitsApproval(t *testing.T) {
	d := NewDeployment("web", testIntent(), "alice", "tenant-1")
	d.CollectEvents()
	require.NoError(t, d.StartPlanning())

	require.NoError(t, d.SetPlan(testPlan(2)))

	assert.Equal(t, DeploymentAwaitingApproval, d.Status)
	require.NotNil(t, d.Plan)

	pending := d.CollectEvents()
	require.Len(t, pending, 1)
	assert.Equal(t, events.EventDeploymentPlanGenerated, pending[0].Type)
	assert.Equal(t, "plan-1", pending[0].Payload["plan_id"])
	assert.Equal(t, 2, pending[0].Payload["step_count"])
}

func TestSetPlanAutoApproves(t *testing.T) {
	intent := testIntent()
	intent.AutoApprove = true
	d := NewDeployment("web", intent, "alice", "tenant-1")
	d.CollectEvents()
	require.NoError(t, d.StartPlanning())

	require.NoError(t, d.SetPlan(testPlan(1)))

	assert.Equal(t, DeploymentApproved, d.Status)

	pending := d.CollectEvents()
	require.Len(t, pending, 2)
	assert.Equal(t, events.EventDeploymentPlanGenerated, pending[0].Type)
	assert.Equal(t, events.EventDeploymentApproved, pending[1].Type)
	assert.Equal(t, "auto", pending[1].Payload["approved_by"])
}

func TestRecordStepResultFailureTriggersFail(t *testing.T) {
	d := NewDeployment("web", testIntent(), "alice", "tenant-1")
	d.Status = DeploymentExecuting
	d.Plan = testPlan(2)

	require.NoError(t, d.RecordStepResult(StepResult{StepID: "step-a", Success: true}))
	assert.Equal(t, DeploymentExecuting, d.Status)

	require.NoError(t, d.RecordStepResult(StepResult{
		StepID:       "step-b",
		Success:      false,
		ErrorMessage: "quota exceeded",
	}))
	assert.Equal(t, DeploymentFailed, d.Status)
	assert.Contains(t, d.ErrorMessage, "step-b")
	assert.Contains(t, d.ErrorMessage, "quota exceeded")
}

func TestRecordStepResultFailureWithoutRollback(t *testing.T) {
	intent := testIntent()
	intent.RollbackOnFailure = false
	d := NewDeployment("web", intent, "alice", "tenant-1")
	d.Status = DeploymentExecuting
	d.Plan = testPlan(1)

	require.NoError(t, d.RecordStepResult(StepResult{StepID: "step-a", Success: false}))
	assert.Equal(t, DeploymentExecuting, d.Status)
}

// A retried step reports twice; only the latest attempt may count, or
// progress overshoots the plan.
func TestRecordStepResultReplacesRetriedStep(t *testing.T) {
	intent := testIntent()
	intent.RollbackOnFailure = false
	d := NewDeployment("web", intent, "alice", "tenant-1")
	d.Status = DeploymentExecuting
	d.Plan = testPlan(1)

	require.NoError(t, d.RecordStepResult(StepResult{
		StepID:        "step-a",
		Success:       false,
		ErrorMessage:  "transient provider error",
		AttemptNumber: 1,
	}))
	require.NoError(t, d.RecordStepResult(StepResult{
		StepID:        "step-a",
		Success:       true,
		AttemptNumber: 2,
	}))

	require.Len(t, d.StepResults, 1)
	assert.True(t, d.StepResults[0].Success)
	assert.Equal(t, 2, d.StepResults[0].AttemptNumber)
	assert.Empty(t, d.StepResults[0].ErrorMessage)
	assert.InDelta(t, 100.0, d.ProgressPercentage(), 0.001)
}

func TestRecordStepResultRejectedWhenTerminal(t *testing.T) {
	d := NewDeployment("web", testIntent(), "alice", "tenant-1")
	d.Status = DeploymentCompleted
	d.Plan = testPlan(1)

	err := d.RecordStepResult(StepResult{StepID: "step-a", Success: true})
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, d.StepResults)
}

func TestDeploymentFailureAndRollbackPath(t *testing.T) {
	d := NewDeployment("web", testIntent(), "alice", "tenant-1")
	d.Status = DeploymentExecuting

	require.NoError(t, d.Fail("apply exploded"))
	assert.Equal(t, DeploymentFailed, d.Status)
	assert.Equal(t, "apply exploded", d.ErrorMessage)

	require.NoError(t, d.StartRollback())
	require.NoError(t, d.CompleteRollback())
	assert.Equal(t, DeploymentRolledBack, d.Status)
	assert.True(t, d.IsTerminal())

	types := []string{}
	for _, ev := range d.CollectEvents() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{
		events.EventDeploymentCreated,
		events.EventDeploymentFailed,
		events.EventDeploymentRollbackStarted,
		events.EventDeploymentRollbackCompleted,
	}, types)
}

func TestProgressPercentage(t *testing.T) {
	d := NewDeployment("web", testIntent(), "alice", "tenant-1")
	assert.Zero(t, d.ProgressPercentage(), "no plan means no progress")

	d.Plan = testPlan(4)
	d.StepResults = []StepResult{{StepID: "step-a", Success: true}}
	assert.InDelta(t, 25.0, d.ProgressPercentage(), 0.001)

	d.StepResults = append(d.StepResults,
		StepResult{StepID: "step-b", Success: true},
		StepResult{StepID: "step-c", Success: true},
		StepResult{StepID: "step-d", Success: true},
	)
	assert.InDelta(t, 100.0, d.ProgressPercentage(), 0.001)
}
