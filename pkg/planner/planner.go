package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/caravel-io/caravel/pkg/log"
	"github.com/caravel-io/caravel/pkg/metrics"
	"github.com/caravel-io/caravel/pkg/types"
)

// resourcePriority orders resource creation so foundations come before
// the resources built on them. Unknown types sort last.
var resourcePriority = map[types.ResourceType]int{
	types.ResourceNetwork:      1,
	types.ResourceDNS:          2,
	types.ResourceStorage:      3,
	types.ResourceDatabase:     4,
	types.ResourceCache:        5,
	types.ResourceQueue:        6,
	types.ResourceCompute:      7,
	types.ResourceContainer:    8,
	types.ResourceServerless:   9,
	types.ResourceLoadBalancer: 10,
	types.ResourceCDN:          11,
}

const unknownPriority = 99

// stepDurations is the per-resource-type duration estimate in seconds.
var stepDurations = map[types.ResourceType]int{
	types.ResourceNetwork:      30,
	types.ResourceCompute:      60,
	types.ResourceDatabase:     120,
	types.ResourceContainer:    90,
	types.ResourceStorage:      15,
	types.ResourceServerless:   30,
	types.ResourceLoadBalancer: 45,
	types.ResourceCache:        60,
}

const defaultStepDuration = 60

// monthlyCosts is a coarse simulated monthly cost per resource type.
var monthlyCosts = map[types.ResourceType]float64{
	types.ResourceCompute:      50.0,
	types.ResourceStorage:      10.0,
	types.ResourceDatabase:     75.0,
	types.ResourceNetwork:      5.0,
	types.ResourceContainer:    100.0,
	types.ResourceServerless:   20.0,
	types.ResourceLoadBalancer: 25.0,
	types.ResourceCache:        40.0,
	types.ResourceQueue:        15.0,
	types.ResourceCDN:          30.0,
	types.ResourceDNS:          2.0,
}

const defaultMonthlyCost = 25.0

// Planner turns a deployment intent into an ordered execution plan.
// The rules are deterministic: the same intent always yields the same
// step names, ordering, and dependency sets.
type Planner struct{}

// New creates a rule-based planner
func New() *Planner {
	return &Planner{}
}

// GeneratePlan builds an execution plan from the intent. Explicit
// resources become one create step each, ordered by resource priority;
// an empty resource list synthesizes a default network plus compute
// pair per target provider.
func (p *Planner) GeneratePlan(intent types.DeploymentIntent) (*types.ExecutionPlan, error) {
	logger := log.WithComponent("planner")
	logger.Info().
		Int("resource_count", len(intent.Resources)).
		Str("strategy", string(intent.Strategy)).
		Str("environment", intent.Environment).
		Msg("generating plan")

	timer := metrics.NewTimer()
	defer func() { timer.ObserveDuration(metrics.PlanDuration) }()

	steps := p.stepsFromResources(intent)
	if len(steps) == 0 {
		steps = p.defaultSteps(intent)
	}
	resolveDependencies(steps)

	total := 0
	for _, step := range steps {
		total += step.EstimatedDurationSeconds
	}
	risk := assessRisk(intent, steps)

	plan := &types.ExecutionPlan{
		PlanID:                        uuid.New().String(),
		Steps:                         steps,
		EstimatedTotalDurationSeconds: total,
		RiskAssessment:                risk,
		Reasoning:                     reasoning(intent, steps, risk),
	}

	metrics.PlansGenerated.WithLabelValues(string(risk)).Inc()
	logger.Info().
		Int("step_count", plan.StepCount()).
		Int("estimated_duration", total).
		Str("risk", string(risk)).
		Msg("plan generated")
	return plan, nil
}

// ValidatePlan reports an error per dangling step dependency and one
// error for an empty plan.
func (p *Planner) ValidatePlan(plan *types.ExecutionPlan) (bool, []string) {
	var errors []string

	if len(plan.Steps) == 0 {
		errors = append(errors, "plan has no execution steps")
	}

	stepIDs := make(map[string]bool, len(plan.Steps))
	for _, step := range plan.Steps {
		stepIDs[step.StepID] = true
	}
	for _, step := range plan.Steps {
		for _, dep := range step.Dependencies {
			if !stepIDs[dep] {
				errors = append(errors, fmt.Sprintf("step %s depends on non-existent step %s", step.Name, dep))
			}
		}
	}

	return len(errors) == 0, errors
}

// EstimateCost returns a simulated monthly cost per step plus a
// total_monthly entry.
func (p *Planner) EstimateCost(plan *types.ExecutionPlan) map[string]float64 {
	costs := make(map[string]float64, len(plan.Steps)+1)
	total := 0.0
	for _, step := range plan.Steps {
		cost, ok := monthlyCosts[step.ResourceSpec.ResourceType]
		if !ok {
			cost = defaultMonthlyCost
		}
		costs[step.Name] = cost
		total += cost
	}
	costs["total_monthly"] = total
	return costs
}

func (p *Planner) stepsFromResources(intent types.DeploymentIntent) []types.ExecutionStep {
	resources := make([]types.ResourceSpec, len(intent.Resources))
	copy(resources, intent.Resources)
	sort.SliceStable(resources, func(i, j int) bool {
		return priorityOf(resources[i].ResourceType) < priorityOf(resources[j].ResourceType)
	})

	steps := make([]types.ExecutionStep, 0, len(resources))
	for _, resource := range resources {
		steps = append(steps, types.ExecutionStep{
			StepID: uuid.New().String(),
			Name:   fmt.Sprintf("deploy-%s", resource.Name),
			Description: fmt.Sprintf("Deploy %s resource '%s' on %s",
				resource.ResourceType, resource.Name, resource.Provider),
			Provider:                 resource.Provider,
			ResourceSpec:             resource,
			TerraformAction:          types.ActionCreate,
			EstimatedDurationSeconds: stepDuration(resource),
			IdempotencyKey:           uuid.New().String(),
			MaxRetries:               3,
		})
	}
	return steps
}

func (p *Planner) defaultSteps(intent types.DeploymentIntent) []types.ExecutionStep {
	var steps []types.ExecutionStep
	for _, provider := range intent.TargetProviders {
		region := "us-east-1"
		if len(intent.TargetRegions) > 0 {
			region = intent.TargetRegions[0]
		}

		networkSpec := types.ResourceSpec{
			ResourceType: types.ResourceNetwork,
			Provider:     provider,
			Region:       region,
			Name:         fmt.Sprintf("%s-vpc", intent.Environment),
			Properties:   map[string]any{"cidr_block": "10.0.0.0/16"},
			Tags:         map[string]string{"environment": intent.Environment},
		}
		networkStep := types.ExecutionStep{
			StepID:                   uuid.New().String(),
			Name:                     fmt.Sprintf("create-network-%s", provider),
			Description:              fmt.Sprintf("Create VPC/VNet on %s", provider),
			Provider:                 provider,
			ResourceSpec:             networkSpec,
			TerraformAction:          types.ActionCreate,
			EstimatedDurationSeconds: 30,
			IdempotencyKey:           uuid.New().String(),
			MaxRetries:               3,
		}
		steps = append(steps, networkStep)

		computeSpec := types.ResourceSpec{
			ResourceType: types.ResourceCompute,
			Provider:     provider,
			Region:       region,
			Name:         fmt.Sprintf("%s-app", intent.Environment),
			Properties:   map[string]any{"instance_type": "t3.medium"},
			Tags:         map[string]string{"environment": intent.Environment},
			Dependencies: []string{networkSpec.ResourceIdentifier()},
		}
		steps = append(steps, types.ExecutionStep{
			StepID:                   uuid.New().String(),
			Name:                     fmt.Sprintf("create-compute-%s", provider),
			Description:              fmt.Sprintf("Create compute instance on %s", provider),
			Provider:                 provider,
			ResourceSpec:             computeSpec,
			TerraformAction:          types.ActionCreate,
			EstimatedDurationSeconds: 60,
			IdempotencyKey:           uuid.New().String(),
			MaxRetries:               3,
			Dependencies:             []string{networkStep.StepID},
		})
	}
	return steps
}

// resolveDependencies rewrites resource-identifier dependencies into
// step-id dependencies. A reference to a resource no step owns is
// skipped here; ValidatePlan is where dangling references surface.
func resolveDependencies(steps []types.ExecutionStep) {
	resourceToStep := make(map[string]string, len(steps))
	for _, step := range steps {
		resourceToStep[step.ResourceSpec.ResourceIdentifier()] = step.StepID
	}

	for i := range steps {
		for _, depResource := range steps[i].ResourceSpec.Dependencies {
			depStepID, ok := resourceToStep[depResource]
			if !ok {
				continue
			}
			already := false
			for _, existing := range steps[i].Dependencies {
				if existing == depStepID {
					already = true
					break
				}
			}
			if !already {
				steps[i].Dependencies = append(steps[i].Dependencies, depStepID)
			}
		}
	}
}

func priorityOf(rt types.ResourceType) int {
	if p, ok := resourcePriority[rt]; ok {
		return p
	}
	return unknownPriority
}

func stepDuration(resource types.ResourceSpec) int {
	if d, ok := stepDurations[resource.ResourceType]; ok {
		return d
	}
	return defaultStepDuration
}

func assessRisk(intent types.DeploymentIntent, steps []types.ExecutionStep) types.RiskLevel {
	if intent.Environment == "production" {
		return types.RiskHigh
	}
	if len(intent.TargetProviders) > 1 {
		return types.RiskMedium
	}
	const maxSimpleSteps = 10
	if len(steps) > maxSimpleSteps {
		return types.RiskMedium
	}
	return types.RiskLow
}

func reasoning(intent types.DeploymentIntent, steps []types.ExecutionStep, risk types.RiskLevel) string {
	providers := make([]string, len(intent.TargetProviders))
	for i, p := range intent.TargetProviders {
		providers[i] = string(p)
	}
	return fmt.Sprintf(
		"Generated %d execution steps for deployment to %s using %s strategy in %s environment. Risk assessment: %s.",
		len(steps), strings.Join(providers, ", "), intent.Strategy, intent.Environment, risk)
}
