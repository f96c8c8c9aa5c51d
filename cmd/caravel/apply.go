package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/caravel-io/caravel/pkg/events"
	"github.com/caravel-io/caravel/pkg/lock"
	"github.com/caravel-io/caravel/pkg/log"
	"github.com/caravel-io/caravel/pkg/manager"
	"github.com/caravel-io/caravel/pkg/planner"
	"github.com/caravel-io/caravel/pkg/storage"
	"github.com/caravel-io/caravel/pkg/terraform"
	"github.com/caravel-io/caravel/pkg/types"
	"github.com/caravel-io/caravel/pkg/worker"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Run one deployment from an intent file",
	Long: `Run a full deployment lifecycle from a YAML intent file: plan,
approve, execute against the simulated executor, and report the result.

Examples:
  # Deploy a web stack
  caravel apply -f intent.yaml

  # Plan only, without executing
  caravel apply -f intent.yaml --plan-only`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML intent file (required)")
	applyCmd.Flags().Bool("plan-only", false, "Generate and print the plan without executing")
	applyCmd.Flags().Duration("timeout", 5*time.Minute, "How long to wait for execution")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// IntentFile is the on-disk shape caravel apply consumes.
type IntentFile struct {
	Name        string                 `yaml:"name"`
	TenantID    string                 `yaml:"tenant_id"`
	InitiatedBy string                 `yaml:"initiated_by,omitempty"`
	Intent      types.DeploymentIntent `yaml:"intent"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	planOnly, _ := cmd.Flags().GetBool("plan-only")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}
	var file IntentFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse YAML: %v", err)
	}
	if file.Name == "" {
		return fmt.Errorf("intent file needs a name")
	}
	if file.InitiatedBy == "" {
		file.InitiatedBy = "cli"
	}

	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true})

	store := storage.NewMemoryStore()
	defer store.Close()
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	mgr := manager.New(store, lock.NewLocalLocker(), planner.New(), broker)
	ctx := cmd.Context()

	d, err := mgr.CreateDeployment(ctx, file.Name, file.Intent, file.InitiatedBy, file.TenantID)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Deployment created: %s (ID: %s)\n", d.Name, d.ID)

	d, err = mgr.PlanDeployment(ctx, d.ID)
	if err != nil {
		return err
	}
	printPlan(d.Plan)

	if planOnly {
		return nil
	}

	if d.Status == types.DeploymentAwaitingApproval {
		if d, err = mgr.ApproveDeployment(ctx, d.ID, file.InitiatedBy); err != nil {
			return err
		}
		fmt.Printf("✓ Plan approved by %s\n", file.InitiatedBy)
	}

	tasks, err := mgr.ExecuteDeployment(ctx, d.ID)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Execution started: %d task(s) queued\n", len(tasks))

	executor, err := terraform.NewSimulator("")
	if err != nil {
		return err
	}
	agent := worker.NewAgent(worker.Config{
		PollInterval: 100 * time.Millisecond,
	}, store, worker.NewTerraformRunner(executor, executor.BaseDir()), mgr, broker)
	agent.Start(ctx)
	defer agent.Stop()

	deadline := time.Now().Add(timeout)
	for {
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for deployment %s", d.ID)
		}
		time.Sleep(200 * time.Millisecond)

		if d, err = mgr.GetDeployment(ctx, d.ID); err != nil {
			return err
		}
		if d.Status == types.DeploymentVerifying || d.IsTerminal() ||
			d.Status == types.DeploymentFailed || d.Status == types.DeploymentRollingBack {
			break
		}
	}

	if d.Status == types.DeploymentVerifying {
		if d, err = mgr.CompleteDeployment(ctx, d.ID); err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Printf("Deployment %s finished: %s (progress %.0f%%)\n", d.ID, d.Status, d.ProgressPercentage())
	for _, result := range d.StepResults {
		mark := "✓"
		if !result.Success {
			mark = "✗"
		}
		fmt.Printf("  %s %s (%.1fs)\n", mark, result.StepID, result.DurationSeconds)
		if result.ErrorMessage != "" {
			fmt.Printf("    error: %s\n", result.ErrorMessage)
		}
	}

	if d.Status != types.DeploymentCompleted {
		return fmt.Errorf("deployment ended in %s", d.Status)
	}
	return nil
}

func printPlan(plan *types.ExecutionPlan) {
	fmt.Printf("✓ Plan generated: %d step(s), risk=%s, estimated %ds\n",
		plan.StepCount(), plan.RiskAssessment, plan.EstimatedTotalDurationSeconds)

	costs := planner.New().EstimateCost(plan)
	if total, ok := costs["total_monthly"]; ok {
		fmt.Printf("  Estimated monthly cost: $%.2f\n", total)
	}

	for i, wave := range plan.ExecutionOrder() {
		fmt.Printf("  Wave %d:\n", i+1)
		for _, step := range wave {
			fmt.Printf("    - %s (%s, %s)\n", step.Name, step.TerraformAction, step.Provider)
		}
	}
	fmt.Printf("  %s\n", plan.Reasoning)
}
