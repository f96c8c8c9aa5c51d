package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/caravel-io/caravel/pkg/events"
	"github.com/caravel-io/caravel/pkg/log"
	"github.com/caravel-io/caravel/pkg/metrics"
	"github.com/caravel-io/caravel/pkg/storage"
	"github.com/caravel-io/caravel/pkg/types"
)

const (
	defaultPollInterval  = 2 * time.Second
	defaultMaxConcurrent = 5

	// Completion reporting retries while the deployment's completion
	// lock is contended by a sibling task finishing at the same time.
	completionReportAttempts = 5
	completionReportBackoff  = 100 * time.Millisecond
)

// Completer receives the outcome of a finished task attempt and drives
// the owning deployment forward. The manager satisfies this.
type Completer interface {
	HandleTaskCompletion(ctx context.Context, taskID string, success bool, output map[string]any, errorMessage string) (*types.Deployment, error)
}

// Config tunes one worker agent. Zero values get defaults.
type Config struct {
	WorkerID      string
	PollInterval  time.Duration
	MaxConcurrent int64
}

// Agent is a long-running worker. It polls the task store for QUEUED
// tasks, claims them atomically, and runs each under a hard deadline
// of the task's timeout with bounded concurrency. Workers are
// stateless across restarts; correctness comes from task-level
// idempotency.
type Agent struct {
	workerID      string
	pollInterval  time.Duration
	maxConcurrent int64

	store     storage.TaskStore
	runner    Runner
	completer Completer
	sink      events.Sink

	sem     *semaphore.Weighted
	active  atomic.Int64
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewAgent creates a worker agent. completer and sink may be nil.
func NewAgent(cfg Config, store storage.TaskStore, runner Runner, completer Completer, sink events.Sink) *Agent {
	if cfg.WorkerID == "" {
		cfg.WorkerID = "worker-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	return &Agent{
		workerID:      cfg.WorkerID,
		pollInterval:  cfg.PollInterval,
		maxConcurrent: cfg.MaxConcurrent,
		store:         store,
		runner:        runner,
		completer:     completer,
		sink:          sink,
		sem:           semaphore.NewWeighted(cfg.MaxConcurrent),
		stopCh:        make(chan struct{}),
	}
}

// WorkerID returns the agent's identity.
func (a *Agent) WorkerID() string {
	return a.workerID
}

// Start begins the poll loop. It returns immediately; the loop runs
// until Stop or context cancellation.
func (a *Agent) Start(ctx context.Context) {
	if !a.running.CompareAndSwap(false, true) {
		return
	}

	log.WithWorkerID(a.workerID).Info().
		Dur("poll_interval", a.pollInterval).
		Int64("max_concurrent", a.maxConcurrent).
		Msg("worker started")

	a.wg.Add(1)
	go a.poll(ctx)
}

func (a *Agent) poll(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if a.active.Load() >= a.maxConcurrent {
			a.sleep(ctx)
			continue
		}

		task, err := a.store.AcquireNextTask(a.workerID)
		if err != nil {
			log.WithWorkerID(a.workerID).Error().Err(err).Msg("failed to acquire task")
			a.sleep(ctx)
			continue
		}
		if task == nil {
			a.sleep(ctx)
			continue
		}

		a.active.Add(1)
		a.wg.Add(1)
		go a.runTask(ctx, task)
	}
}

func (a *Agent) sleep(ctx context.Context) {
	timer := time.NewTimer(a.pollInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-a.stopCh:
	case <-ctx.Done():
	}
}

// runTask is the per-task activity: permit, start, execute under
// deadline, transition, persist, report.
func (a *Agent) runTask(ctx context.Context, task *types.Task) {
	defer a.wg.Done()
	defer a.active.Add(-1)

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer a.sem.Release(1)

	logger := log.WithTaskID(task.ID)

	if err := task.Start(); err != nil {
		logger.Error().Err(err).Msg("failed to start task")
		return
	}
	if err := a.store.UpdateTask(task); err != nil {
		logger.Error().Err(err).Msg("failed to persist task start")
		a.abandon(ctx, logger, task, "failed to persist task start: "+err.Error())
		return
	}

	timeout := time.Duration(task.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	output, execErr := a.runner.Execute(taskCtx, task)
	duration := time.Since(started)

	errorMessage := ""
	switch {
	case execErr == nil:
		if err := task.Succeed(output); err != nil {
			logger.Error().Err(err).Msg("failed to mark task succeeded")
		}
	case errors.Is(execErr, context.DeadlineExceeded):
		errorMessage = "task deadline exceeded"
		if err := task.Timeout(); err != nil {
			logger.Error().Err(err).Msg("failed to mark task timed out")
		}
	default:
		errorMessage = execErr.Error()
		if err := task.Fail(errorMessage); err != nil {
			logger.Error().Err(err).Msg("failed to mark task failed")
		}
	}

	if err := a.store.UpdateTask(task); err != nil {
		logger.Error().Err(err).Msg("failed to persist task result")
	}

	metrics.TasksCompleted.WithLabelValues(string(task.Status)).Inc()
	metrics.TaskDuration.WithLabelValues(string(task.Provider), task.TerraformAction).Observe(duration.Seconds())

	a.publishStatus(task)

	if a.completer != nil {
		a.reportCompletion(context.WithoutCancel(ctx), logger, task, execErr == nil, output, errorMessage)
	}

	logger.Info().
		Str("worker_id", a.workerID).
		Str("status", string(task.Status)).
		Dur("duration", duration).
		Msg("task finished")
}

// reportCompletion tells the completer how the attempt ended. Lock
// contention is expected when sibling tasks of one deployment finish
// together, and no one else will ever report this attempt, so the
// agent retries with backoff instead of dropping the completion.
func (a *Agent) reportCompletion(ctx context.Context, logger *zerolog.Logger, task *types.Task, success bool, output map[string]any, errorMessage string) {
	for attempt := 1; ; attempt++ {
		_, err := a.completer.HandleTaskCompletion(ctx, task.ID, success, output, errorMessage)
		if err == nil {
			return
		}
		if !errors.Is(err, types.ErrDeploymentLocked) || attempt == completionReportAttempts {
			logger.Error().Err(err).Msg("failed to report task completion")
			return
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("completion lock contended, retrying")
		time.Sleep(time.Duration(attempt) * completionReportBackoff)
	}
}

// abandon fails a claimed task that will never produce a result, so
// the claim is not stranded and the owning deployment still observes
// the outcome.
func (a *Agent) abandon(ctx context.Context, logger *zerolog.Logger, task *types.Task, reason string) {
	if err := task.Fail(reason); err != nil {
		logger.Error().Err(err).Msg("failed to fail abandoned task")
		return
	}
	if err := a.store.UpdateTask(task); err != nil {
		logger.Error().Err(err).Msg("failed to persist abandoned task")
	}
	metrics.TasksCompleted.WithLabelValues(string(task.Status)).Inc()
	a.publishStatus(task)
	if a.completer != nil {
		a.reportCompletion(context.WithoutCancel(ctx), logger, task, false, nil, reason)
	}
}

func (a *Agent) publishStatus(task *types.Task) {
	if a.sink == nil {
		return
	}
	a.sink.Publish(events.New("task."+string(task.Status), task.DeploymentID, map[string]any{
		"task_id":       task.ID,
		"deployment_id": task.DeploymentID,
		"worker_id":     a.workerID,
		"status":        string(task.Status),
	}))
}

// Stop ends the poll loop and blocks until every in-flight task has
// finished. No new claims begin once stopping.
func (a *Agent) Stop() {
	if !a.running.CompareAndSwap(true, false) {
		return
	}
	close(a.stopCh)
	a.wg.Wait()

	log.WithWorkerID(a.workerID).Info().Msg("worker stopped")
}

// Health reports the agent's live state.
func (a *Agent) Health() map[string]any {
	return map[string]any{
		"worker_id":      a.workerID,
		"active_tasks":   a.active.Load(),
		"max_concurrent": a.maxConcurrent,
		"running":        a.running.Load(),
	}
}
