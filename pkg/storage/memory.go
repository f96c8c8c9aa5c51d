package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/caravel-io/caravel/pkg/types"
)

// MemoryStore implements Store with mutex-guarded maps. It backs tests
// and single-node demo runs. One process-wide mutex covers the QUEUED
// scan plus the acquire mutation, which is what makes AcquireNextTask
// atomic here.
type MemoryStore struct {
	mu              sync.Mutex
	deployments     map[string]*types.Deployment
	tasks           map[string]*types.Task
	reports         map[string]*types.DriftReport
	idempotencyKeys map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		deployments:     make(map[string]*types.Deployment),
		tasks:           make(map[string]*types.Task),
		reports:         make(map[string]*types.DriftReport),
		idempotencyKeys: make(map[string]string),
	}
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

// Deployment operations

func (s *MemoryStore) CreateDeployment(deployment *types.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *deployment
	copied.ClearEvents()
	s.deployments[deployment.ID] = &copied
	return nil
}

func (s *MemoryStore) GetDeployment(id string) (*types.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deployment, ok := s.deployments[id]
	if !ok {
		return nil, fmt.Errorf("deployment %s: %w", id, types.ErrNotFound)
	}
	copied := *deployment
	return &copied, nil
}

func (s *MemoryStore) ListDeployments(limit, offset int) ([]*types.Deployment, error) {
	return s.listDeployments(limit, offset, func(*types.Deployment) bool { return true })
}

func (s *MemoryStore) ListDeploymentsByStatus(status types.DeploymentStatus, limit, offset int) ([]*types.Deployment, error) {
	return s.listDeployments(limit, offset, func(d *types.Deployment) bool {
		return d.Status == status
	})
}

func (s *MemoryStore) ListDeploymentsByTenant(tenantID string, limit, offset int) ([]*types.Deployment, error) {
	return s.listDeployments(limit, offset, func(d *types.Deployment) bool {
		return d.TenantID == tenantID
	})
}

func (s *MemoryStore) listDeployments(limit, offset int, keep func(*types.Deployment) bool) ([]*types.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deployments []*types.Deployment
	for _, deployment := range s.deployments {
		if keep(deployment) {
			copied := *deployment
			deployments = append(deployments, &copied)
		}
	}
	sortDeployments(deployments)
	return paginate(deployments, limit, offset), nil
}

func (s *MemoryStore) CountDeploymentsByStatus() (map[types.DeploymentStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[types.DeploymentStatus]int)
	for _, deployment := range s.deployments {
		counts[deployment.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) UpdateDeployment(deployment *types.Deployment) error {
	return s.CreateDeployment(deployment)
}

func (s *MemoryStore) DeleteDeployment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deployments, id)
	return nil
}

// Task operations

func (s *MemoryStore) CreateTask(task *types.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, exists := s.idempotencyKeys[task.IdempotencyKey]; exists && owner != task.ID {
		return fmt.Errorf("idempotency key %s already used by task %s", task.IdempotencyKey, owner)
	}
	s.idempotencyKeys[task.IdempotencyKey] = task.ID
	copied := *task
	copied.ClearEvents()
	s.tasks[task.ID] = &copied
	return nil
}

func (s *MemoryStore) GetTask(id string) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, types.ErrNotFound)
	}
	copied := *task
	return &copied, nil
}

func (s *MemoryStore) ListTasks() ([]*types.Task, error) {
	return s.listTasks(func(*types.Task) bool { return true })
}

func (s *MemoryStore) ListTasksByDeployment(deploymentID string) ([]*types.Task, error) {
	return s.listTasks(func(t *types.Task) bool {
		return t.DeploymentID == deploymentID
	})
}

func (s *MemoryStore) ListTasksByStatus(status types.TaskStatus) ([]*types.Task, error) {
	return s.listTasks(func(t *types.Task) bool {
		return t.Status == status
	})
}

func (s *MemoryStore) listTasks(keep func(*types.Task) bool) ([]*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tasks []*types.Task
	for _, task := range s.tasks {
		if keep(task) {
			copied := *task
			tasks = append(tasks, &copied)
		}
	}
	sortTasks(tasks)
	return tasks, nil
}

func (s *MemoryStore) CountTasksByStatus() (map[types.TaskStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[types.TaskStatus]int)
	for _, task := range s.tasks {
		counts[task.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) UpdateTask(task *types.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *task
	copied.ClearEvents()
	s.tasks[task.ID] = &copied
	return nil
}

// AcquireNextTask claims the oldest QUEUED task under the store mutex.
func (s *MemoryStore) AcquireNextTask(workerID string) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var queued []*types.Task
	for _, task := range s.tasks {
		if task.Status == types.TaskQueued {
			queued = append(queued, task)
		}
	}
	if len(queued) == 0 {
		return nil, nil
	}
	sortTasks(queued)

	task := queued[0]
	if err := task.Acquire(workerID); err != nil {
		return nil, err
	}
	copied := *task
	return &copied, nil
}

func (s *MemoryStore) DeleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[id]; ok {
		delete(s.idempotencyKeys, task.IdempotencyKey)
	}
	delete(s.tasks, id)
	return nil
}

// Drift report operations

func (s *MemoryStore) CreateDriftReport(report *types.DriftReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *report
	copied.ClearEvents()
	s.reports[report.ID] = &copied
	return nil
}

func (s *MemoryStore) GetDriftReport(id string) (*types.DriftReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report, ok := s.reports[id]
	if !ok {
		return nil, fmt.Errorf("drift report %s: %w", id, types.ErrNotFound)
	}
	copied := *report
	return &copied, nil
}

func (s *MemoryStore) ListDriftReportsByDeployment(deploymentID string, limit int) ([]*types.DriftReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reports []*types.DriftReport
	for _, report := range s.reports {
		if report.DeploymentID == deploymentID {
			copied := *report
			reports = append(reports, &copied)
		}
	}
	// Newest first
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
	if limit > 0 && len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

func (s *MemoryStore) LatestDriftReport(deploymentID string) (*types.DriftReport, error) {
	reports, err := s.ListDriftReportsByDeployment(deploymentID, 1)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("drift report for deployment %s: %w", deploymentID, types.ErrNotFound)
	}
	return reports[0], nil
}
