/*
Package log provides structured logging for Caravel using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers and configurable levels. All logs
include timestamps and support filtering by severity.

# Usage

Initializing:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("orchestrator started")
	log.Errorf("failed to open store", err)

Structured logging:

	log.Logger.Info().
		Str("deployment_id", dep.ID).
		Int("step_count", plan.StepCount()).
		Msg("plan generated")

Context loggers:

	workerLog := log.WithWorkerID("worker-a1b2c3d4")
	workerLog.Info().Str("task_id", task.ID).Msg("task acquired")

# Log Levels

  - Debug: detailed troubleshooting output (poll loop, lock attempts)
  - Info: lifecycle transitions, plan generation, task completion
  - Warn: retries, skipped events, lock contention
  - Error: failed operations
  - Fatal: unrecoverable startup errors (process exits)

# See Also

  - pkg/manager, pkg/worker, pkg/drift for the main log producers
*/
package log
