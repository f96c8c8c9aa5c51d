package types

// DriftSeverity ranks a drift finding
type DriftSeverity string

const (
	SeverityLow      DriftSeverity = "low"
	SeverityMedium   DriftSeverity = "medium"
	SeverityHigh     DriftSeverity = "high"
	SeverityCritical DriftSeverity = "critical"
)

var severityRank = map[DriftSeverity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// SeverityRank returns the numeric ordering of a severity,
// low < medium < high < critical.
func SeverityRank(s DriftSeverity) int {
	return severityRank[s]
}

// DriftType classifies a drift finding
type DriftType string

const (
	DriftPropertyChanged DriftType = "property_changed"
	DriftResourceAdded   DriftType = "resource_added"
	DriftResourceRemoved DriftType = "resource_removed"
	DriftStateMismatch   DriftType = "state_mismatch"
	DriftTagMismatch     DriftType = "tag_mismatch"
)

// DriftItem is a single expected-vs-actual difference
type DriftItem struct {
	DriftType          DriftType     `json:"drift_type"`
	ResourceIdentifier string        `json:"resource_identifier"`
	PropertyPath       string        `json:"property_path,omitempty"`
	ExpectedValue      string        `json:"expected_value,omitempty"`
	ActualValue        string        `json:"actual_value,omitempty"`
	Severity           DriftSeverity `json:"severity"`
}

// DriftReport aggregates the findings of one drift scan. Reports are
// append-only per scan; RemediationDeploymentID is a back-reference to
// a remediation deployment, never an ownership edge.
type DriftReport struct {
	Entity
	DeploymentID            string      `json:"deployment_id"`
	ScanType                string      `json:"scan_type"`
	Items                   []DriftItem `json:"items,omitempty"`
	Summary                 string      `json:"summary,omitempty"`
	AutoRemediate           bool        `json:"auto_remediate"`
	RemediationDeploymentID string      `json:"remediation_deployment_id,omitempty"`
}

// HasDrift reports whether the scan found any differences.
func (r *DriftReport) HasDrift() bool {
	return len(r.Items) > 0
}

// CriticalCount counts critical findings.
func (r *DriftReport) CriticalCount() int {
	return r.countSeverity(SeverityCritical)
}

// HighCount counts high findings.
func (r *DriftReport) HighCount() int {
	return r.countSeverity(SeverityHigh)
}

func (r *DriftReport) countSeverity(s DriftSeverity) int {
	n := 0
	for _, item := range r.Items {
		if item.Severity == s {
			n++
		}
	}
	return n
}

// MaxSeverity is the highest severity over all items, or low when the
// report is empty.
func (r *DriftReport) MaxSeverity() DriftSeverity {
	max := SeverityLow
	for _, item := range r.Items {
		if severityRank[item.Severity] > severityRank[max] {
			max = item.Severity
		}
	}
	return max
}
