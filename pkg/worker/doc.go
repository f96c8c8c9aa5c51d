/*
Package worker runs the task execution loop.

An Agent polls the task store, claims QUEUED tasks through the store's
atomic AcquireNextTask, and runs each claimed task in its own
goroutine. Concurrency is bounded by a weighted semaphore
(max_concurrent, default 5); the poll interval defaults to 2s. Every
run is wrapped in a context deadline of the task's timeout_seconds:
normal completion transitions the task to SUCCEEDED, deadline expiry to
TIMED_OUT, and any other failure to FAILED with the error recorded.

After persisting the outcome, the agent publishes task.{status} with
the task id, deployment id, worker id, and status, and reports to the
Completer (the deployment manager), which is the path by which the
owning deployment advances. Completion reporting retries with backoff
while the deployment's completion lock is contended, since sibling
tasks finishing together are exactly the case the lock serializes and
nothing else would ever re-report the attempt.

The Runner interface is the variation point: the agent owns claiming,
deadlines, transitions, and reporting, while a Runner only turns a task
into an output map. TerraformRunner is the production runner; it drives
the executor port in the fixed order generate config, init, plan, then
apply or destroy, using a working directory derived from the task's
idempotency key so retried attempts are re-entrant.

Worker identity defaults to worker-{random8hex}. Agents hold no state
that matters across restarts. Stop drains: no new claims begin and the
call blocks until every in-flight task has finished.
*/
package worker
