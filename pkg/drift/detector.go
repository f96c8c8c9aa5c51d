package drift

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/caravel-io/caravel/pkg/types"
)

// Detector is the port that reads deployed state and diffs it against
// the expected state built from a stored plan. Implementations fetch
// actual state keyed by the same resource identifiers the expected
// map uses.
type Detector interface {
	DetectDrift(ctx context.Context, deploymentID string, expectedState map[string]map[string]any) (*types.DriftReport, error)
	GetCurrentState(ctx context.Context, provider types.ProviderType, resourceIDs []string) (map[string]map[string]any, error)
}

// StaticDetector serves a fixed actual-state map. It backs tests and
// single-node demos where no cloud API is reachable; SetResource and
// RemoveResource let a caller stage the drift they want observed.
type StaticDetector struct {
	mu     sync.RWMutex
	actual map[string]map[string]any
}

// NewStaticDetector creates a detector over the given actual state.
// A nil map means no resources exist.
func NewStaticDetector(actual map[string]map[string]any) *StaticDetector {
	if actual == nil {
		actual = make(map[string]map[string]any)
	}
	return &StaticDetector{actual: actual}
}

// SetResource stages the actual state of one resource.
func (d *StaticDetector) SetResource(resourceID string, state map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actual[resourceID] = state
}

// RemoveResource drops a resource from the actual state.
func (d *StaticDetector) RemoveResource(resourceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.actual, resourceID)
}

// DetectDrift compares expected state against the staged actual state.
// Resources missing from actual become RESOURCE_REMOVED items at
// critical severity, property differences become PROPERTY_CHANGED, and
// resources present only in actual become RESOURCE_ADDED.
func (d *StaticDetector) DetectDrift(ctx context.Context, deploymentID string, expectedState map[string]map[string]any) (*types.DriftReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	report := &types.DriftReport{
		Entity:       types.NewEntity(),
		DeploymentID: deploymentID,
		ScanType:     "full",
	}

	for _, resourceID := range sortedResourceIDs(expectedState) {
		expected := expectedState[resourceID]
		actual, ok := d.actual[resourceID]
		if !ok {
			report.Items = append(report.Items, types.DriftItem{
				DriftType:          types.DriftResourceRemoved,
				ResourceIdentifier: resourceID,
				Severity:           types.SeverityCritical,
			})
			continue
		}
		report.Items = append(report.Items, compareProperties(resourceID, "", expected, actual)...)
	}

	for _, resourceID := range sortedResourceIDs(d.actual) {
		if _, ok := expectedState[resourceID]; !ok {
			report.Items = append(report.Items, types.DriftItem{
				DriftType:          types.DriftResourceAdded,
				ResourceIdentifier: resourceID,
				Severity:           types.SeverityMedium,
			})
		}
	}

	report.Summary = summarize(report)
	return report, nil
}

// GetCurrentState returns the staged state for the requested resources.
func (d *StaticDetector) GetCurrentState(ctx context.Context, provider types.ProviderType, resourceIDs []string) (map[string]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	state := make(map[string]map[string]any, len(resourceIDs))
	for _, id := range resourceIDs {
		if resource, ok := d.actual[id]; ok {
			copied := make(map[string]any, len(resource))
			for k, v := range resource {
				copied[k] = v
			}
			state[id] = copied
		}
	}
	return state, nil
}

// compareProperties walks expected and actual recursively. Nested maps
// extend the property path with dots; any other type mismatch or value
// difference is one PROPERTY_CHANGED item.
func compareProperties(resourceID, path string, expected, actual map[string]any) []types.DriftItem {
	var items []types.DriftItem

	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		expectedVal := expected[key]
		propertyPath := key
		if path != "" {
			propertyPath = path + "." + key
		}

		actualVal, ok := actual[key]
		if !ok {
			items = append(items, types.DriftItem{
				DriftType:          types.DriftPropertyChanged,
				ResourceIdentifier: resourceID,
				PropertyPath:       propertyPath,
				ExpectedValue:      fmt.Sprintf("%v", expectedVal),
				ActualValue:        "",
				Severity:           types.SeverityHigh,
			})
			continue
		}

		expectedMap, expIsMap := expectedVal.(map[string]any)
		actualMap, actIsMap := actualVal.(map[string]any)
		if expIsMap && actIsMap {
			items = append(items, compareProperties(resourceID, propertyPath, expectedMap, actualMap)...)
			continue
		}

		if fmt.Sprintf("%v", expectedVal) != fmt.Sprintf("%v", actualVal) {
			items = append(items, types.DriftItem{
				DriftType:          types.DriftPropertyChanged,
				ResourceIdentifier: resourceID,
				PropertyPath:       propertyPath,
				ExpectedValue:      fmt.Sprintf("%v", expectedVal),
				ActualValue:        fmt.Sprintf("%v", actualVal),
				Severity:           types.SeverityMedium,
			})
		}
	}

	return items
}

func sortedResourceIDs(state map[string]map[string]any) []string {
	ids := make([]string, 0, len(state))
	for id := range state {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func summarize(report *types.DriftReport) string {
	if !report.HasDrift() {
		return "no drift detected"
	}
	return fmt.Sprintf("%d drift item(s) detected, max severity %s", len(report.Items), report.MaxSeverity())
}
