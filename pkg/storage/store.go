package storage

import (
	"github.com/caravel-io/caravel/pkg/types"
)

// DeploymentStore is the persistence contract for deployments
type DeploymentStore interface {
	CreateDeployment(deployment *types.Deployment) error
	GetDeployment(id string) (*types.Deployment, error)
	ListDeployments(limit, offset int) ([]*types.Deployment, error)
	ListDeploymentsByStatus(status types.DeploymentStatus, limit, offset int) ([]*types.Deployment, error)
	ListDeploymentsByTenant(tenantID string, limit, offset int) ([]*types.Deployment, error)
	CountDeploymentsByStatus() (map[types.DeploymentStatus]int, error)
	UpdateDeployment(deployment *types.Deployment) error
	DeleteDeployment(id string) error
}

// TaskStore is the persistence contract for tasks. Beyond CRUD it
// provides the atomic claim workers depend on:
//
//   - Atomicity: exactly one caller observes a given task moving from
//     QUEUED to ACQUIRED, even under concurrent callers.
//   - Fairness: QUEUED tasks are claimed in FIFO order of created_at.
//   - Progress: when no QUEUED task exists, AcquireNextTask returns
//     (nil, nil) immediately.
//   - Side effect: status and worker_id are persisted before the call
//     returns.
type TaskStore interface {
	CreateTask(task *types.Task) error
	GetTask(id string) (*types.Task, error)
	ListTasks() ([]*types.Task, error)
	ListTasksByDeployment(deploymentID string) ([]*types.Task, error)
	ListTasksByStatus(status types.TaskStatus) ([]*types.Task, error)
	CountTasksByStatus() (map[types.TaskStatus]int, error)
	UpdateTask(task *types.Task) error
	AcquireNextTask(workerID string) (*types.Task, error)
	DeleteTask(id string) error
}

// DriftStore is the persistence contract for drift reports
type DriftStore interface {
	CreateDriftReport(report *types.DriftReport) error
	GetDriftReport(id string) (*types.DriftReport, error)
	ListDriftReportsByDeployment(deploymentID string, limit int) ([]*types.DriftReport, error)
	LatestDriftReport(deploymentID string) (*types.DriftReport, error)
}

// Store is the full orchestrator state store
type Store interface {
	DeploymentStore
	TaskStore
	DriftStore

	Close() error
}
