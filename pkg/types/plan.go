package types

// ExecutionStep is a single unit of work in an execution plan. Step ids
// are plan-scoped; Dependencies holds the ids of other steps in the
// same plan that must finish first. The idempotency key is stable
// across retries of the step so executors can deduplicate side effects.
type ExecutionStep struct {
	StepID                   string       `json:"step_id"`
	Name                     string       `json:"name"`
	Description              string       `json:"description"`
	Provider                 ProviderType `json:"provider"`
	ResourceSpec             ResourceSpec `json:"resource_spec"`
	TerraformAction          string       `json:"terraform_action"`
	Dependencies             []string     `json:"dependencies,omitempty"`
	EstimatedDurationSeconds int          `json:"estimated_duration_seconds"`
	IdempotencyKey           string       `json:"idempotency_key"`
	RetryCount               int          `json:"retry_count"`
	MaxRetries               int          `json:"max_retries"`
}

// Terraform actions a step can carry
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDestroy = "destroy"
)

// RiskLevel is the planner's coarse risk assessment
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ExecutionPlan is the planner's output. It is immutable once attached
// to a deployment.
type ExecutionPlan struct {
	PlanID                        string          `json:"plan_id"`
	Steps                         []ExecutionStep `json:"steps"`
	EstimatedTotalDurationSeconds int             `json:"estimated_total_duration_seconds"`
	RiskAssessment                RiskLevel       `json:"risk_assessment"`
	Reasoning                     string          `json:"reasoning"`
}

// StepCount returns the number of steps in the plan.
func (p *ExecutionPlan) StepCount() int {
	return len(p.Steps)
}

// Step returns the step with the given id, or nil.
func (p *ExecutionPlan) Step(stepID string) *ExecutionStep {
	for i := range p.Steps {
		if p.Steps[i].StepID == stepID {
			return &p.Steps[i]
		}
	}
	return nil
}

// ExecutionOrder partitions the steps into waves. Every step in wave i
// has all its dependencies satisfied by waves before i, so each wave
// can execute in parallel. When no remaining step is eligible (a cycle
// or broken reference) the first remaining step is forced into the next
// wave, which guarantees termination and surfaces the dependency bug as
// an ordering violation instead of a hang.
func (p *ExecutionPlan) ExecutionOrder() [][]ExecutionStep {
	completed := make(map[string]bool)
	remaining := make([]ExecutionStep, len(p.Steps))
	copy(remaining, p.Steps)

	var waves [][]ExecutionStep
	for len(remaining) > 0 {
		var wave []ExecutionStep
		for _, step := range remaining {
			ready := true
			for _, dep := range step.Dependencies {
				if !completed[dep] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, step)
			}
		}
		if len(wave) == 0 {
			wave = []ExecutionStep{remaining[0]}
		}

		waves = append(waves, wave)
		inWave := make(map[string]bool, len(wave))
		for _, step := range wave {
			completed[step.StepID] = true
			inWave[step.StepID] = true
		}
		next := remaining[:0]
		for _, step := range remaining {
			if !inWave[step.StepID] {
				next = append(next, step)
			}
		}
		remaining = next
	}
	return waves
}

// StepResult records the outcome of one step attempt
type StepResult struct {
	StepID          string            `json:"step_id"`
	Success         bool              `json:"success"`
	Output          string            `json:"output,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	ResourceIDs     map[string]string `json:"resource_ids,omitempty"`
	DurationSeconds float64           `json:"duration_seconds"`
	IdempotencyKey  string            `json:"idempotency_key"`
	AttemptNumber   int               `json:"attempt_number"`
}
