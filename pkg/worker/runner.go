package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/caravel-io/caravel/pkg/terraform"
	"github.com/caravel-io/caravel/pkg/types"
)

// Runner executes the substance of one claimed task. The agent owns
// claiming, deadlines, state transitions, and reporting; runners only
// turn a task into output. Runners must honor the task's idempotency
// key: executing the same attempt twice must be safe.
type Runner interface {
	Execute(ctx context.Context, task *types.Task) (map[string]any, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, task *types.Task) (map[string]any, error)

func (f RunnerFunc) Execute(ctx context.Context, task *types.Task) (map[string]any, error) {
	return f(ctx, task)
}

// TerraformRunner realizes a task through the executor port:
// generate config, init, plan, then apply or destroy. The working
// directory is derived from the task's idempotency key, so a retried
// attempt re-runs against the same directory and state.
type TerraformRunner struct {
	executor terraform.Executor
	baseDir  string
}

// NewTerraformRunner creates a runner over the given executor.
func NewTerraformRunner(executor terraform.Executor, baseDir string) *TerraformRunner {
	return &TerraformRunner{executor: executor, baseDir: baseDir}
}

func (r *TerraformRunner) Execute(ctx context.Context, task *types.Task) (map[string]any, error) {
	spec, err := specFromInput(task.InputData)
	if err != nil {
		return nil, err
	}

	workDir := filepath.Join(r.baseDir, task.IdempotencyKey)

	if _, err := r.executor.GenerateConfig(spec, workDir); err != nil {
		return nil, fmt.Errorf("failed to generate config: %w", err)
	}
	if _, err := r.executor.Init(ctx, workDir, task.Provider); err != nil {
		return nil, fmt.Errorf("failed to init: %w", err)
	}
	if _, err := r.executor.Plan(ctx, workDir); err != nil {
		return nil, fmt.Errorf("failed to plan: %w", err)
	}

	var msg string
	switch task.TerraformAction {
	case types.ActionDestroy:
		msg, err = r.executor.Destroy(ctx, workDir, true)
	default:
		msg, err = r.executor.Apply(ctx, workDir, true)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", task.TerraformAction, err)
	}

	return map[string]any{
		"action":   task.TerraformAction,
		"resource": spec.ResourceIdentifier(),
		"provider": string(task.Provider),
		"message":  msg,
		"work_dir": workDir,
	}, nil
}

// specFromInput recovers the resource spec the manager attached to the
// task. Input data has been through JSON storage, so it arrives as a
// generic map and round-trips back through the spec's tags.
func specFromInput(input map[string]any) (types.ResourceSpec, error) {
	var spec types.ResourceSpec

	raw, ok := input["resource_spec"]
	if !ok {
		return spec, fmt.Errorf("task input carries no resource_spec")
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return spec, fmt.Errorf("failed to encode resource_spec: %w", err)
	}
	if err := json.Unmarshal(encoded, &spec); err != nil {
		return spec, fmt.Errorf("failed to decode resource_spec: %w", err)
	}
	return spec, nil
}
