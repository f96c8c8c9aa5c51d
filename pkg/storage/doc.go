/*
Package storage persists Caravel's orchestrator state.

Two implementations back the Store interface:

  - BoltStore: BoltDB file store, one bucket per aggregate kind with
    JSON values, plus a side index bucket for task idempotency keys.
    The production default.
  - MemoryStore: mutex-guarded maps for tests and single-node demos.

# Atomic Task Claim

Workers race for QUEUED tasks through AcquireNextTask(workerID). Its
contract is the backbone of the dispatch protocol:

  - Exactly one caller observes a given task move QUEUED -> ACQUIRED,
    even under concurrent callers.
  - Claims happen in FIFO order of created_at, ids breaking ties.
  - When nothing is QUEUED the call returns (nil, nil) immediately.
  - The new status and worker assignment are persisted before return.

BoltStore serializes the scan plus mutation inside a single update
transaction; MemoryStore holds its process-wide mutex across both.

# Serialization

Aggregates marshal to JSON. The domain event buffer is an unexported
field, so buffered events never hit disk; only the caller's live
aggregate can publish them. Version travels with every write and is the
optimistic-concurrency predicate.

# Usage

	store, err := storage.NewBoltStore("/var/lib/caravel")
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.CreateDeployment(deployment); err != nil {
		return err
	}

	task, err := store.AcquireNextTask("worker-a1b2c3d4")
	if err != nil {
		return err
	}
	if task == nil {
		// nothing queued
	}

# See Also

  - pkg/manager for lifecycle writes
  - pkg/worker for the claim loop
*/
package storage
