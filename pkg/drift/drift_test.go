package drift

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caravel-io/caravel/pkg/events"
	"github.com/caravel-io/caravel/pkg/storage"
	"github.com/caravel-io/caravel/pkg/types"
)

type capturingSink struct {
	published []events.Event
}

func (s *capturingSink) Publish(event events.Event) {
	s.published = append(s.published, event)
}

func (s *capturingSink) PublishBatch(batch []events.Event) {
	s.published = append(s.published, batch...)
}

func computeSpec(name string) types.ResourceSpec {
	return types.ResourceSpec{
		ResourceType: types.ResourceCompute,
		Provider:     types.ProviderAWS,
		Region:       "us-east-1",
		Name:         name,
		Properties:   map[string]any{"instance_type": "t3.medium"},
	}
}

func deploymentWithPlan(t *testing.T, store storage.Store, specs ...types.ResourceSpec) *types.Deployment {
	t.Helper()

	intent := types.DeploymentIntent{
		Environment:     "staging",
		TargetProviders: []types.ProviderType{types.ProviderAWS},
		Resources:       specs,
	}
	d := types.NewDeployment("drifting", intent, "tester", "tenant-1")

	plan := &types.ExecutionPlan{PlanID: "plan-1"}
	for _, spec := range specs {
		plan.Steps = append(plan.Steps, types.ExecutionStep{
			StepID:          "step-" + spec.Name,
			Name:            spec.Name,
			Provider:        spec.Provider,
			ResourceSpec:    spec,
			TerraformAction: types.ActionCreate,
		})
	}
	d.Plan = plan
	d.CollectEvents()

	require.NoError(t, store.CreateDeployment(d))
	return d
}

func TestDetectDriftNoDifferences(t *testing.T) {
	spec := computeSpec("web")
	detector := NewStaticDetector(map[string]map[string]any{
		spec.ResourceIdentifier(): spec.AsMap(),
	})

	report, err := detector.DetectDrift(context.Background(), "dep-1", map[string]map[string]any{
		spec.ResourceIdentifier(): spec.AsMap(),
	})
	require.NoError(t, err)

	assert.False(t, report.HasDrift())
	assert.Equal(t, types.SeverityLow, report.MaxSeverity())
	assert.Equal(t, "no drift detected", report.Summary)
}

func TestDetectDriftClassification(t *testing.T) {
	removed := computeSpec("gone")
	changed := computeSpec("web")

	changedActual := changed.AsMap()
	changedActual["properties"] = map[string]any{"instance_type": "t3.large"}

	detector := NewStaticDetector(map[string]map[string]any{
		changed.ResourceIdentifier():      changedActual,
		"aws/us-east-1/compute/stowaway": {"name": "stowaway"},
	})

	report, err := detector.DetectDrift(context.Background(), "dep-1", map[string]map[string]any{
		removed.ResourceIdentifier(): removed.AsMap(),
		changed.ResourceIdentifier(): changed.AsMap(),
	})
	require.NoError(t, err)
	require.Len(t, report.Items, 3)

	byType := make(map[types.DriftType]types.DriftItem)
	for _, item := range report.Items {
		byType[item.DriftType] = item
	}

	removedItem := byType[types.DriftResourceRemoved]
	assert.Equal(t, removed.ResourceIdentifier(), removedItem.ResourceIdentifier)
	assert.Equal(t, types.SeverityCritical, removedItem.Severity)

	changedItem := byType[types.DriftPropertyChanged]
	assert.Equal(t, "properties.instance_type", changedItem.PropertyPath)
	assert.Equal(t, "t3.medium", changedItem.ExpectedValue)
	assert.Equal(t, "t3.large", changedItem.ActualValue)

	addedItem := byType[types.DriftResourceAdded]
	assert.Equal(t, "aws/us-east-1/compute/stowaway", addedItem.ResourceIdentifier)

	assert.Equal(t, types.SeverityCritical, report.MaxSeverity())
	assert.Equal(t, 1, report.CriticalCount())
}

func TestDetectDriftMissingProperty(t *testing.T) {
	spec := computeSpec("web")
	actual := spec.AsMap()
	delete(actual, "properties")

	detector := NewStaticDetector(map[string]map[string]any{
		spec.ResourceIdentifier(): actual,
	})

	report, err := detector.DetectDrift(context.Background(), "dep-1", map[string]map[string]any{
		spec.ResourceIdentifier(): spec.AsMap(),
	})
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, types.SeverityHigh, report.Items[0].Severity)
	assert.Equal(t, "properties", report.Items[0].PropertyPath)
}

func TestScanDeploymentPersistsAndPublishes(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()
	sink := &capturingSink{}

	spec := computeSpec("web")
	d := deploymentWithPlan(t, store, spec)

	detector := NewStaticDetector(nil)
	detector.SetResource(spec.ResourceIdentifier(), func() map[string]any {
		m := spec.AsMap()
		m["properties"] = map[string]any{"instance_type": "t3.large"}
		return m
	}())

	scanner := NewScanner(store, detector, sink)
	report, err := scanner.ScanDeployment(context.Background(), d.ID)
	require.NoError(t, err)
	require.True(t, report.HasDrift())

	persisted, err := store.LatestDriftReport(d.ID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, persisted.ID)

	require.Len(t, sink.published, 1)
	event := sink.published[0]
	assert.Equal(t, events.EventDriftDetected, event.Type)
	assert.Equal(t, d.ID, event.Payload["deployment_id"])
	assert.Equal(t, 1, event.Payload["drift_count"])
	assert.Equal(t, "medium", event.Payload["max_severity"])
}

func TestScanDeploymentWithoutSink(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()

	spec := computeSpec("web")
	d := deploymentWithPlan(t, store, spec)

	detector := NewStaticDetector(nil)

	scanner := NewScanner(store, detector, nil)
	report, err := scanner.ScanDeployment(context.Background(), d.ID)
	require.NoError(t, err)
	assert.True(t, report.HasDrift(), "plan resource missing from actual state")

	persisted, err := store.LatestDriftReport(d.ID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, persisted.ID)
}

func TestScanDeploymentNoDriftNoEvent(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()
	sink := &capturingSink{}

	spec := computeSpec("web")
	d := deploymentWithPlan(t, store, spec)

	detector := NewStaticDetector(map[string]map[string]any{
		spec.ResourceIdentifier(): spec.AsMap(),
	})

	scanner := NewScanner(store, detector, sink)
	report, err := scanner.ScanDeployment(context.Background(), d.ID)
	require.NoError(t, err)

	assert.False(t, report.HasDrift())
	assert.Empty(t, sink.published)

	persisted, err := store.LatestDriftReport(d.ID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, persisted.ID)
}

func TestScanDeploymentUnknownDeployment(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()

	scanner := NewScanner(store, NewStaticDetector(nil), &capturingSink{})
	_, err := scanner.ScanDeployment(context.Background(), "missing")
	require.Error(t, err)

	var scanErr *ScanError
	require.ErrorAs(t, err, &scanErr)
	assert.Equal(t, "missing", scanErr.DeploymentID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestScanDeploymentWithoutPlanReportsAddedOnly(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()
	sink := &capturingSink{}

	intent := types.DeploymentIntent{Environment: "staging"}
	d := types.NewDeployment("planless", intent, "tester", "tenant-1")
	d.CollectEvents()
	require.NoError(t, store.CreateDeployment(d))

	detector := NewStaticDetector(map[string]map[string]any{
		"aws/us-east-1/compute/orphan": {"name": "orphan"},
	})

	scanner := NewScanner(store, detector, sink)
	report, err := scanner.ScanDeployment(context.Background(), d.ID)
	require.NoError(t, err)

	require.Len(t, report.Items, 1)
	assert.Equal(t, types.DriftResourceAdded, report.Items[0].DriftType)
}

func TestHistoryNewestFirst(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()

	spec := computeSpec("web")
	d := deploymentWithPlan(t, store, spec)

	detector := NewStaticDetector(nil)
	scanner := NewScanner(store, detector, &capturingSink{})

	for i := 0; i < 3; i++ {
		_, err := scanner.ScanDeployment(context.Background(), d.ID)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	history, err := scanner.History(d.ID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, !history[0].CreatedAt.Before(history[1].CreatedAt))

	latest, err := scanner.Latest(d.ID)
	require.NoError(t, err)
	assert.Equal(t, history[0].ID, latest.ID)
}

func TestDetectDriftHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStaticDetector(nil).DetectDrift(ctx, "dep-1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
