package terraform

import (
	"context"

	"github.com/caravel-io/caravel/pkg/types"
)

// Executor is the port a worker drives to realize one plan step. The
// action ordering is GenerateConfig, Init, Plan, then Apply or Destroy.
// Implementations must be idempotent under the task idempotency key:
// re-running the same step attempt must be safe. Every method takes a
// context so the worker's deadline and cancellation propagate.
type Executor interface {
	Init(ctx context.Context, workingDir string, provider types.ProviderType) (string, error)
	Plan(ctx context.Context, workingDir string) (string, error)
	Apply(ctx context.Context, workingDir string, autoApprove bool) (string, error)
	Destroy(ctx context.Context, workingDir string, autoApprove bool) (string, error)
	ShowState(ctx context.Context, workingDir string) (map[string]any, error)
	GenerateConfig(spec types.ResourceSpec, workingDir string) (string, error)
}
