/*
Package drift compares deployed state against the state a deployment's
plan promised and reports the differences.

The pipeline is independent of deployment execution: given a deployment
id, the Scanner rebuilds expected state from the stored plan (one entry
per step, keyed by resource identifier), asks the Detector for the
corresponding actual state, and persists a DriftReport. Non-empty
reports publish a drift.detected event carrying the deployment id, the
item count, and the maximum severity.

Classification rules:

  - expected but missing from actual: RESOURCE_REMOVED at critical
  - present in both with differing values: PROPERTY_CHANGED, dotted
    property path, medium (high when the property is absent entirely)
  - actual but never expected: RESOURCE_ADDED at medium

Property comparison recurses through nested maps; scalars compare by
their formatted value so numeric types coming back from JSON storage
do not false-positive against their in-memory counterparts.

StaticDetector is the in-process implementation: it serves a staged
actual-state map, which is how tests and demos script the exact drift
they want a scan to observe. Cloud-backed detectors satisfy the same
Detector interface.
*/
package drift
