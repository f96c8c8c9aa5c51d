package terraform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caravel-io/caravel/pkg/log"
	"github.com/caravel-io/caravel/pkg/types"
)

// Simulator implements Executor without a terraform binary or cloud
// credentials. It renders real HCL, tracks applied resources in an
// in-memory state map, and sleeps briefly to behave like a slow
// external process. Apply and destroy are idempotent per working
// directory, which is how the executor honors task idempotency keys
// (each step attempt reuses the same directory).
type Simulator struct {
	baseDir string

	mu    sync.Mutex
	state map[string]map[string]any
}

// NewSimulator creates a simulated executor. An empty baseDir gets a
// temp directory.
func NewSimulator(baseDir string) (*Simulator, error) {
	if baseDir == "" {
		dir, err := os.MkdirTemp("", "tf-caravel-")
		if err != nil {
			return nil, err
		}
		baseDir = dir
	}
	return &Simulator{
		baseDir: baseDir,
		state:   make(map[string]map[string]any),
	}, nil
}

// BaseDir returns the root under which per-task working directories
// are created.
func (s *Simulator) BaseDir() string {
	return s.baseDir
}

// Init simulates terraform init.
func (s *Simulator) Init(ctx context.Context, workingDir string, provider types.ProviderType) (string, error) {
	if _, ok := providerConfigs[provider]; !ok {
		return "", fmt.Errorf("unsupported provider: %s", provider)
	}
	if err := os.MkdirAll(workingDir, 0755); err != nil {
		return "", err
	}

	log.WithComponent("terraform").Info().
		Str("working_dir", workingDir).
		Str("provider", string(provider)).
		Msg("terraform init")

	if err := simulateDelay(ctx, 100*time.Millisecond); err != nil {
		return "", err
	}
	return fmt.Sprintf("Terraform initialized for %s", provider), nil
}

// Plan simulates terraform plan.
func (s *Simulator) Plan(ctx context.Context, workingDir string) (string, error) {
	log.WithComponent("terraform").Info().
		Str("working_dir", workingDir).
		Msg("terraform plan")

	if err := simulateDelay(ctx, 100*time.Millisecond); err != nil {
		return "", err
	}
	return "Plan: 1 to add, 0 to change, 0 to destroy.", nil
}

// Apply simulates terraform apply and records the resource in state.
func (s *Simulator) Apply(ctx context.Context, workingDir string, autoApprove bool) (string, error) {
	log.WithComponent("terraform").Info().
		Str("working_dir", workingDir).
		Msg("terraform apply")

	if err := simulateDelay(ctx, 200*time.Millisecond); err != nil {
		return "", err
	}

	resourceID := "sim-" + filepath.Base(workingDir)
	s.mu.Lock()
	s.state[resourceID] = map[string]any{
		"status":      "created",
		"working_dir": workingDir,
	}
	s.mu.Unlock()

	return "Apply complete! Resources: 1 added, 0 changed, 0 destroyed.", nil
}

// Destroy simulates terraform destroy and drops the resource from
// state.
func (s *Simulator) Destroy(ctx context.Context, workingDir string, autoApprove bool) (string, error) {
	log.WithComponent("terraform").Info().
		Str("working_dir", workingDir).
		Msg("terraform destroy")

	if err := simulateDelay(ctx, 100*time.Millisecond); err != nil {
		return "", err
	}

	resourceID := "sim-" + filepath.Base(workingDir)
	s.mu.Lock()
	delete(s.state, resourceID)
	s.mu.Unlock()

	return "Destroy complete! Resources: 1 destroyed.", nil
}

// ShowState returns a snapshot of all simulated state.
func (s *Simulator) ShowState(ctx context.Context, workingDir string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]any, len(s.state))
	for id, resource := range s.state {
		copied := make(map[string]any, len(resource))
		for k, v := range resource {
			copied[k] = v
		}
		snapshot[id] = copied
	}
	return snapshot, nil
}

// GenerateConfig renders and writes the HCL for one resource.
func (s *Simulator) GenerateConfig(spec types.ResourceSpec, workingDir string) (string, error) {
	return generateConfig(spec, workingDir)
}

func simulateDelay(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
