package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/caravel-io/caravel/pkg/types"
)

var (
	// Bucket names
	bucketDeployments    = []byte("deployments")
	bucketTasks          = []byte("tasks")
	bucketDriftReports   = []byte("drift_reports")
	bucketIdempotencyIdx = []byte("task_idempotency_keys")
)

// BoltStore implements Store using BoltDB. Each aggregate kind lives in
// its own bucket keyed by id with JSON values. Task idempotency keys
// are kept in a side index bucket so uniqueness survives restarts.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "caravel.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketDeployments,
			bucketTasks,
			bucketDriftReports,
			bucketIdempotencyIdx,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Deployment operations

func (s *BoltStore) CreateDeployment(deployment *types.Deployment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		data, err := json.Marshal(deployment)
		if err != nil {
			return err
		}
		return b.Put([]byte(deployment.ID), data)
	})
}

func (s *BoltStore) GetDeployment(id string) (*types.Deployment, error) {
	var deployment types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("deployment %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &deployment)
	})
	if err != nil {
		return nil, err
	}
	return &deployment, nil
}

func (s *BoltStore) ListDeployments(limit, offset int) ([]*types.Deployment, error) {
	return s.listDeployments(limit, offset, func(*types.Deployment) bool { return true })
}

func (s *BoltStore) ListDeploymentsByStatus(status types.DeploymentStatus, limit, offset int) ([]*types.Deployment, error) {
	return s.listDeployments(limit, offset, func(d *types.Deployment) bool {
		return d.Status == status
	})
}

func (s *BoltStore) ListDeploymentsByTenant(tenantID string, limit, offset int) ([]*types.Deployment, error) {
	return s.listDeployments(limit, offset, func(d *types.Deployment) bool {
		return d.TenantID == tenantID
	})
}

func (s *BoltStore) listDeployments(limit, offset int, keep func(*types.Deployment) bool) ([]*types.Deployment, error) {
	var deployments []*types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		return b.ForEach(func(k, v []byte) error {
			var deployment types.Deployment
			if err := json.Unmarshal(v, &deployment); err != nil {
				return err
			}
			if keep(&deployment) {
				deployments = append(deployments, &deployment)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortDeployments(deployments)
	return paginate(deployments, limit, offset), nil
}

func (s *BoltStore) CountDeploymentsByStatus() (map[types.DeploymentStatus]int, error) {
	counts := make(map[types.DeploymentStatus]int)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		return b.ForEach(func(k, v []byte) error {
			var deployment types.Deployment
			if err := json.Unmarshal(v, &deployment); err != nil {
				return err
			}
			counts[deployment.Status]++
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *BoltStore) UpdateDeployment(deployment *types.Deployment) error {
	return s.CreateDeployment(deployment) // Same as create (upsert)
}

func (s *BoltStore) DeleteDeployment(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		return b.Delete([]byte(id))
	})
}

// Task operations

func (s *BoltStore) CreateTask(task *types.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketIdempotencyIdx)
		if existing := idx.Get([]byte(task.IdempotencyKey)); existing != nil && string(existing) != task.ID {
			return fmt.Errorf("idempotency key %s already used by task %s", task.IdempotencyKey, existing)
		}
		if err := idx.Put([]byte(task.IdempotencyKey), []byte(task.ID)); err != nil {
			return err
		}

		b := tx.Bucket(bucketTasks)
		data, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return b.Put([]byte(task.ID), data)
	})
}

func (s *BoltStore) GetTask(id string) (*types.Task, error) {
	var task types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("task %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *BoltStore) ListTasks() ([]*types.Task, error) {
	return s.listTasks(func(*types.Task) bool { return true })
}

func (s *BoltStore) ListTasksByDeployment(deploymentID string) ([]*types.Task, error) {
	return s.listTasks(func(t *types.Task) bool {
		return t.DeploymentID == deploymentID
	})
}

func (s *BoltStore) ListTasksByStatus(status types.TaskStatus) ([]*types.Task, error) {
	return s.listTasks(func(t *types.Task) bool {
		return t.Status == status
	})
}

func (s *BoltStore) listTasks(keep func(*types.Task) bool) ([]*types.Task, error) {
	var tasks []*types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		return b.ForEach(func(k, v []byte) error {
			var task types.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			if keep(&task) {
				tasks = append(tasks, &task)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortTasks(tasks)
	return tasks, nil
}

func (s *BoltStore) CountTasksByStatus() (map[types.TaskStatus]int, error) {
	counts := make(map[types.TaskStatus]int)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		return b.ForEach(func(k, v []byte) error {
			var task types.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			counts[task.Status]++
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *BoltStore) UpdateTask(task *types.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return b.Put([]byte(task.ID), data)
	})
}

// AcquireNextTask claims the oldest QUEUED task for the worker. The
// scan, transition, and write all happen inside one bolt update
// transaction, which serializes concurrent claimants.
func (s *BoltStore) AcquireNextTask(workerID string) (*types.Task, error) {
	var acquired *types.Task
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)

		var queued []*types.Task
		err := b.ForEach(func(k, v []byte) error {
			var task types.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			if task.Status == types.TaskQueued {
				queued = append(queued, &task)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(queued) == 0 {
			return nil
		}
		sortTasks(queued)

		task := queued[0]
		if err := task.Acquire(workerID); err != nil {
			return err
		}
		data, err := json.Marshal(task)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(task.ID), data); err != nil {
			return err
		}
		acquired = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acquired, nil
}

func (s *BoltStore) DeleteTask(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data := b.Get([]byte(id))
		if data != nil {
			var task types.Task
			if err := json.Unmarshal(data, &task); err == nil && task.IdempotencyKey != "" {
				if err := tx.Bucket(bucketIdempotencyIdx).Delete([]byte(task.IdempotencyKey)); err != nil {
					return err
				}
			}
		}
		return b.Delete([]byte(id))
	})
}

// Drift report operations

func (s *BoltStore) CreateDriftReport(report *types.DriftReport) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDriftReports)
		data, err := json.Marshal(report)
		if err != nil {
			return err
		}
		return b.Put([]byte(report.ID), data)
	})
}

func (s *BoltStore) GetDriftReport(id string) (*types.DriftReport, error) {
	var report types.DriftReport
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDriftReports)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("drift report %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &report)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *BoltStore) ListDriftReportsByDeployment(deploymentID string, limit int) ([]*types.DriftReport, error) {
	var reports []*types.DriftReport
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDriftReports)
		return b.ForEach(func(k, v []byte) error {
			var report types.DriftReport
			if err := json.Unmarshal(v, &report); err != nil {
				return err
			}
			if report.DeploymentID == deploymentID {
				reports = append(reports, &report)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
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

func (s *BoltStore) LatestDriftReport(deploymentID string) (*types.DriftReport, error) {
	reports, err := s.ListDriftReportsByDeployment(deploymentID, 1)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("drift report for deployment %s: %w", deploymentID, types.ErrNotFound)
	}
	return reports[0], nil
}

// Oldest first, ids break ties so ordering is stable.
func sortTasks(tasks []*types.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

func sortDeployments(deployments []*types.Deployment) {
	sort.SliceStable(deployments, func(i, j int) bool {
		if deployments[i].CreatedAt.Equal(deployments[j].CreatedAt) {
			return deployments[i].ID < deployments[j].ID
		}
		return deployments[i].CreatedAt.Before(deployments[j].CreatedAt)
	})
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
