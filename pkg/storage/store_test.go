package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caravel-io/caravel/pkg/types"
)

// Both implementations must honor the same contract, so every test
// runs against each.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	bolt, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	return map[string]Store{
		"bolt":   bolt,
		"memory": NewMemoryStore(),
	}
}

func storedDeployment(name string) *types.Deployment {
	return types.NewDeployment(name, types.DeploymentIntent{
		Description:     "test",
		TargetProviders: []types.ProviderType{types.ProviderAWS},
		TargetRegions:   []string{"us-east-1"},
		Resources: []types.ResourceSpec{
			{
				ResourceType: types.ResourceCompute,
				Provider:     types.ProviderAWS,
				Region:       "us-east-1",
				Name:         "web",
				Properties:   map[string]any{"instance_type": "t3.micro"},
				Tags:         map[string]string{"env": "test"},
			},
		},
		Strategy:          types.StrategyRolling,
		RollbackOnFailure: true,
		Environment:       "staging",
	}, "alice", "tenant-1")
}

func storedTask(deploymentID, idempotencyKey string, created time.Time) *types.Task {
	task := &types.Task{
		Entity:          types.NewEntity(),
		DeploymentID:    deploymentID,
		StepID:          "step-" + idempotencyKey,
		Name:            "deploy-web",
		Status:          types.TaskPending,
		Provider:        types.ProviderAWS,
		TerraformAction: types.ActionCreate,
		IdempotencyKey:  idempotencyKey,
		AttemptNumber:   1,
		MaxAttempts:     3,
		TimeoutSeconds:  120,
	}
	task.CreatedAt = created
	return task
}

func TestDeploymentRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			deployment := storedDeployment("web")
			deployment.Plan = &types.ExecutionPlan{
				PlanID: "plan-1",
				Steps: []types.ExecutionStep{
					{
						StepID:                   "s1",
						Name:                     "deploy-web",
						Provider:                 types.ProviderAWS,
						TerraformAction:          types.ActionCreate,
						EstimatedDurationSeconds: 60,
						IdempotencyKey:           "idem-s1",
						MaxRetries:               3,
						ResourceSpec: types.ResourceSpec{
							ResourceType: types.ResourceCompute,
							Provider:     types.ProviderAWS,
							Region:       "us-east-1",
							Name:         "web",
						},
					},
				},
				EstimatedTotalDurationSeconds: 60,
				RiskAssessment:                types.RiskLow,
				Reasoning:                     "single resource",
			}
			deployment.StepResults = []types.StepResult{
				{StepID: "s1", Success: true, IdempotencyKey: "idem-s1", AttemptNumber: 1, DurationSeconds: 4.2},
			}

			require.NoError(t, store.CreateDeployment(deployment))

			loaded, err := store.GetDeployment(deployment.ID)
			require.NoError(t, err)

			assert.Equal(t, deployment.ID, loaded.ID)
			assert.Equal(t, deployment.Name, loaded.Name)
			assert.Equal(t, deployment.Status, loaded.Status)
			assert.Equal(t, deployment.Intent, loaded.Intent)
			assert.Equal(t, deployment.Plan, loaded.Plan)
			assert.Equal(t, deployment.StepResults, loaded.StepResults)
			assert.Equal(t, deployment.Version, loaded.Version)
			assert.Empty(t, loaded.PendingEvents(), "event buffer is transient")
		})
	}
}

func TestGetDeploymentNotFound(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.GetDeployment("missing")
			require.ErrorIs(t, err, types.ErrNotFound)
		})
	}
}

func TestListDeploymentsByStatusAndTenant(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			a := storedDeployment("a")
			b := storedDeployment("b")
			b.TenantID = "tenant-2"
			b.Status = types.DeploymentExecuting
			require.NoError(t, store.CreateDeployment(a))
			require.NoError(t, store.CreateDeployment(b))

			pending, err := store.ListDeploymentsByStatus(types.DeploymentPending, 0, 0)
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, a.ID, pending[0].ID)

			tenant2, err := store.ListDeploymentsByTenant("tenant-2", 0, 0)
			require.NoError(t, err)
			require.Len(t, tenant2, 1)
			assert.Equal(t, b.ID, tenant2[0].ID)

			counts, err := store.CountDeploymentsByStatus()
			require.NoError(t, err)
			assert.Equal(t, 1, counts[types.DeploymentPending])
			assert.Equal(t, 1, counts[types.DeploymentExecuting])
		})
	}
}

func TestListDeploymentsPagination(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Now().UTC()
			for i := 0; i < 5; i++ {
				d := storedDeployment("web")
				d.CreatedAt = base.Add(time.Duration(i) * time.Second)
				require.NoError(t, store.CreateDeployment(d))
			}

			page, err := store.ListDeployments(2, 1)
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.True(t, page[0].CreatedAt.Before(page[1].CreatedAt))

			tail, err := store.ListDeployments(10, 4)
			require.NoError(t, err)
			assert.Len(t, tail, 1)
		})
	}
}

func TestTaskIdempotencyKeyUnique(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			first := storedTask("dep-1", "idem-dup", time.Now().UTC())
			require.NoError(t, store.CreateTask(first))

			second := storedTask("dep-1", "idem-dup", time.Now().UTC())
			err := store.CreateTask(second)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "idempotency key")
		})
	}
}

func TestAcquireNextTaskFIFO(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Now().UTC()
			older := storedTask("dep-1", "idem-old", base)
			newer := storedTask("dep-1", "idem-new", base.Add(time.Second))
			require.NoError(t, older.Enqueue())
			require.NoError(t, newer.Enqueue())
			// Insert out of order
			require.NoError(t, store.CreateTask(newer))
			require.NoError(t, store.CreateTask(older))

			first, err := store.AcquireNextTask("worker-1")
			require.NoError(t, err)
			require.NotNil(t, first)
			assert.Equal(t, older.ID, first.ID)
			assert.Equal(t, types.TaskAcquired, first.Status)
			assert.Equal(t, "worker-1", first.WorkerID)

			// The claim must be persisted before the call returns
			persisted, err := store.GetTask(older.ID)
			require.NoError(t, err)
			assert.Equal(t, types.TaskAcquired, persisted.Status)
			assert.Equal(t, "worker-1", persisted.WorkerID)

			second, err := store.AcquireNextTask("worker-2")
			require.NoError(t, err)
			require.NotNil(t, second)
			assert.Equal(t, newer.ID, second.ID)

			none, err := store.AcquireNextTask("worker-3")
			require.NoError(t, err)
			assert.Nil(t, none, "non-blocking when nothing is queued")
		})
	}
}

// With one QUEUED task and many concurrent claimants, exactly one
// caller wins.
func TestAcquireNextTaskSingleClaimant(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			task := storedTask("dep-1", "idem-race", time.Now().UTC())
			require.NoError(t, task.Enqueue())
			require.NoError(t, store.CreateTask(task))

			const claimants = 16
			var wg sync.WaitGroup
			results := make(chan *types.Task, claimants)

			for i := 0; i < claimants; i++ {
				wg.Add(1)
				go func(worker int) {
					defer wg.Done()
					claimed, err := store.AcquireNextTask("worker-" + string(rune('a'+worker)))
					assert.NoError(t, err)
					results <- claimed
				}(i)
			}
			wg.Wait()
			close(results)

			winners := 0
			for claimed := range results {
				if claimed != nil {
					winners++
					assert.Equal(t, task.ID, claimed.ID)
				}
			}
			assert.Equal(t, 1, winners)
		})
	}
}

func TestTaskCountsAndLists(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			queued := storedTask("dep-1", "idem-q", time.Now().UTC())
			require.NoError(t, queued.Enqueue())
			require.NoError(t, store.CreateTask(queued))
			require.NoError(t, store.CreateTask(storedTask("dep-2", "idem-p", time.Now().UTC())))

			byDep, err := store.ListTasksByDeployment("dep-1")
			require.NoError(t, err)
			require.Len(t, byDep, 1)
			assert.Equal(t, queued.ID, byDep[0].ID)

			byStatus, err := store.ListTasksByStatus(types.TaskQueued)
			require.NoError(t, err)
			assert.Len(t, byStatus, 1)

			counts, err := store.CountTasksByStatus()
			require.NoError(t, err)
			assert.Equal(t, 1, counts[types.TaskQueued])
			assert.Equal(t, 1, counts[types.TaskPending])
		})
	}
}

func TestDriftReportHistory(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Now().UTC()
			for i := 0; i < 3; i++ {
				report := &types.DriftReport{
					Entity:       types.NewEntity(),
					DeploymentID: "dep-1",
					ScanType:     "on_demand",
					Items: []types.DriftItem{
						{DriftType: types.DriftPropertyChanged, ResourceIdentifier: "aws/us-east-1/compute/web", Severity: types.SeverityMedium},
					},
				}
				report.CreatedAt = base.Add(time.Duration(i) * time.Minute)
				require.NoError(t, store.CreateDriftReport(report))
			}

			history, err := store.ListDriftReportsByDeployment("dep-1", 2)
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.True(t, history[0].CreatedAt.After(history[1].CreatedAt), "newest first")

			latest, err := store.LatestDriftReport("dep-1")
			require.NoError(t, err)
			assert.Equal(t, base.Add(2*time.Minute).Unix(), latest.CreatedAt.Unix())

			_, err = store.LatestDriftReport("dep-unknown")
			require.ErrorIs(t, err, types.ErrNotFound)
		})
	}
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)

	deployment := storedDeployment("web")
	require.NoError(t, store.CreateDeployment(deployment))
	require.NoError(t, store.Close())

	reopened, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.GetDeployment(deployment.ID)
	require.NoError(t, err)
	assert.Equal(t, deployment.Name, loaded.Name)
}
