package types

import (
	"errors"
	"fmt"
)

// Domain error kinds. Callers match with errors.Is; the service layer
// maps them onto its own error surface (not-found vs precondition vs
// invariant violation).
var (
	// ErrInvalidTransition signals a state-machine violation on a
	// deployment or task. It indicates a programming bug in the caller
	// and is never retried.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrMaxRetriesExceeded signals that a task's retry budget is
	// exhausted. The task is operator-visible and will not auto-recover.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrNotFound signals an unknown deployment, task, or report id.
	ErrNotFound = errors.New("not found")

	// ErrDeploymentLocked signals that another instance holds a
	// lifecycle lock for the deployment. The operation is safe to
	// retry once the holder finishes.
	ErrDeploymentLocked = errors.New("deployment locked by another operation")

	// ErrPlanMissing signals execute called before a plan was attached.
	ErrPlanMissing = errors.New("deployment has no execution plan")
)

func invalidTransition(kind, from, to string) error {
	return fmt.Errorf("%w: %s cannot move from %s to %s", ErrInvalidTransition, kind, from, to)
}
