package drift

import (
	"context"
	"fmt"

	"github.com/caravel-io/caravel/pkg/events"
	"github.com/caravel-io/caravel/pkg/log"
	"github.com/caravel-io/caravel/pkg/metrics"
	"github.com/caravel-io/caravel/pkg/storage"
	"github.com/caravel-io/caravel/pkg/types"
)

// ScanError reports a scan that could not run at all, as opposed to a
// scan that ran and found drift.
type ScanError struct {
	DeploymentID string
	Err          error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("drift scan failed for deployment %s: %v", e.DeploymentID, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Scanner runs drift scans against deployed state. It rebuilds the
// expected state from a deployment's stored plan, hands it to the
// detector, persists the resulting report, and publishes
// drift.detected when the report is non-empty.
type Scanner struct {
	store    storage.Store
	detector Detector
	sink     events.Sink
}

// NewScanner creates a drift scanner. sink may be nil; reports are
// then persisted without event publication.
func NewScanner(store storage.Store, detector Detector, sink events.Sink) *Scanner {
	return &Scanner{
		store:    store,
		detector: detector,
		sink:     sink,
	}
}

// ScanDeployment scans one deployment for drift. The expected state is
// the resource spec of every plan step keyed by resource identifier;
// deployments without a plan scan against an empty expectation.
func (s *Scanner) ScanDeployment(ctx context.Context, deploymentID string) (*types.DriftReport, error) {
	deployment, err := s.store.GetDeployment(deploymentID)
	if err != nil {
		return nil, &ScanError{DeploymentID: deploymentID, Err: err}
	}

	expected := make(map[string]map[string]any)
	if deployment.Plan != nil {
		for _, step := range deployment.Plan.Steps {
			expected[step.ResourceSpec.ResourceIdentifier()] = step.ResourceSpec.AsMap()
		}
	}

	report, err := s.detector.DetectDrift(ctx, deploymentID, expected)
	if err != nil {
		return nil, &ScanError{DeploymentID: deploymentID, Err: err}
	}

	if err := s.store.CreateDriftReport(report); err != nil {
		return nil, &ScanError{DeploymentID: deploymentID, Err: err}
	}

	metrics.DriftScansTotal.Inc()
	for _, item := range report.Items {
		metrics.DriftItemsDetected.WithLabelValues(string(item.Severity)).Inc()
	}

	log.WithDeploymentID(deploymentID).Info().
		Int("drift_count", len(report.Items)).
		Str("max_severity", string(report.MaxSeverity())).
		Msg("drift scan completed")

	if report.HasDrift() && s.sink != nil {
		s.sink.Publish(events.New(events.EventDriftDetected, deploymentID, map[string]any{
			"deployment_id": deploymentID,
			"drift_count":   len(report.Items),
			"max_severity":  string(report.MaxSeverity()),
		}))
	}

	return report, nil
}

// History returns the most recent reports for a deployment, newest
// first.
func (s *Scanner) History(deploymentID string, limit int) ([]*types.DriftReport, error) {
	return s.store.ListDriftReportsByDeployment(deploymentID, limit)
}

// Latest returns the most recent report for a deployment.
func (s *Scanner) Latest(deploymentID string) (*types.DriftReport, error) {
	return s.store.LatestDriftReport(deploymentID)
}
