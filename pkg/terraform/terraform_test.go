package terraform

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caravel-io/caravel/pkg/types"
)

func testSpec() types.ResourceSpec {
	return types.ResourceSpec{
		ResourceType: types.ResourceCompute,
		Provider:     types.ProviderAWS,
		Region:       "us-east-1",
		Name:         "web",
		Properties: map[string]any{
			"instance_type": "t3.micro",
			"count":         2,
		},
		Tags: map[string]string{"environment": "staging"},
	}
}

func TestTerraformResourceMapping(t *testing.T) {
	tests := []struct {
		provider     types.ProviderType
		resourceType types.ResourceType
		expected     string
	}{
		{types.ProviderAWS, types.ResourceCompute, "aws_instance"},
		{types.ProviderAWS, types.ResourceStorage, "aws_s3_bucket"},
		{types.ProviderAWS, types.ResourceNetwork, "aws_vpc"},
		{types.ProviderAzure, types.ResourceCompute, "azurerm_virtual_machine"},
		{types.ProviderAzure, types.ResourceContainer, "azurerm_kubernetes_cluster"},
		{types.ProviderGCP, types.ResourceDatabase, "google_sql_database_instance"},
		{types.ProviderAWS, types.ResourceDNS, "aws_dns"},
		{types.ProviderGCP, types.ResourceQueue, "gcp_queue"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, TerraformResource(tt.provider, tt.resourceType))
		})
	}
}

func TestGenerateConfig(t *testing.T) {
	sim, err := NewSimulator(t.TempDir())
	require.NoError(t, err)

	workDir := filepath.Join(sim.BaseDir(), "task-1")
	hcl, err := sim.GenerateConfig(testSpec(), workDir)
	require.NoError(t, err)

	assert.Contains(t, hcl, `source`)
	assert.Contains(t, hcl, `hashicorp/aws`)
	assert.Contains(t, hcl, `~> 5.0`)
	assert.Contains(t, hcl, `resource "aws_instance" "web"`)
	assert.Contains(t, hcl, `instance_type = "t3.micro"`)
	assert.Contains(t, hcl, `region`)
	assert.Contains(t, hcl, `us-east-1`)
	assert.Contains(t, hcl, `environment`)

	written, err := os.ReadFile(filepath.Join(workDir, "main.tf"))
	require.NoError(t, err)
	assert.Equal(t, hcl, string(written))
}

func TestGenerateConfigUnknownProviderFallback(t *testing.T) {
	sim, err := NewSimulator(t.TempDir())
	require.NoError(t, err)

	spec := testSpec()
	spec.Provider = types.ProviderType("digitalocean")

	hcl, err := sim.GenerateConfig(spec, filepath.Join(sim.BaseDir(), "task-x"))
	require.NoError(t, err)
	assert.Contains(t, hcl, "hashicorp/digitalocean")
	assert.Contains(t, hcl, `resource "digitalocean_compute" "web"`)
}

func TestSimulatorLifecycle(t *testing.T) {
	sim, err := NewSimulator(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	workDir := filepath.Join(sim.BaseDir(), "task-1")

	msg, err := sim.Init(ctx, workDir, types.ProviderAWS)
	require.NoError(t, err)
	assert.Contains(t, msg, "aws")

	msg, err = sim.Plan(ctx, workDir)
	require.NoError(t, err)
	assert.Contains(t, msg, "1 to add")

	msg, err = sim.Apply(ctx, workDir, true)
	require.NoError(t, err)
	assert.Contains(t, msg, "Apply complete")

	state, err := sim.ShowState(ctx, workDir)
	require.NoError(t, err)
	require.Contains(t, state, "sim-task-1")

	// Re-apply is an upsert, not an error
	_, err = sim.Apply(ctx, workDir, true)
	require.NoError(t, err)
	state, err = sim.ShowState(ctx, workDir)
	require.NoError(t, err)
	assert.Len(t, state, 1)

	msg, err = sim.Destroy(ctx, workDir, true)
	require.NoError(t, err)
	assert.Contains(t, msg, "Destroy complete")

	state, err = sim.ShowState(ctx, workDir)
	require.NoError(t, err)
	assert.NotContains(t, state, "sim-task-1")
}

func TestSimulatorRejectsUnknownProvider(t *testing.T) {
	sim, err := NewSimulator(t.TempDir())
	require.NoError(t, err)

	_, err = sim.Init(context.Background(), filepath.Join(sim.BaseDir(), "t"), types.ProviderType("ibm"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestSimulatorHonorsCancellation(t *testing.T) {
	sim, err := NewSimulator(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = sim.Apply(ctx, filepath.Join(sim.BaseDir(), "task-slow"), true)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
