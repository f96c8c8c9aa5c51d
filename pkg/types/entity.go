package types

import (
	"time"

	"github.com/google/uuid"

	"github.com/caravel-io/caravel/pkg/events"
)

// Entity carries the identity, timestamps, and optimistic-concurrency
// version shared by every aggregate. The pending event buffer is
// unexported so it never survives serialization; events live only
// between a lifecycle call and the CollectEvents that follows the
// storage commit.
type Entity struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`

	pending []events.Event
}

// NewEntity initializes identity and timestamps for a fresh aggregate.
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

// Touch bumps the version and update timestamp. Every mutating
// aggregate method calls this; storage backends use Version as the
// optimistic-concurrency predicate.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
	e.Version++
}

// Record buffers a domain event for later collection.
func (e *Entity) Record(event events.Event) {
	e.pending = append(e.pending, event)
}

// CollectEvents returns the buffered events and clears the buffer.
// The service layer calls this after the storage write commits, so
// subscribers never see events for state that was rolled back.
func (e *Entity) CollectEvents() []events.Event {
	collected := e.pending
	e.pending = nil
	return collected
}

// ClearEvents drops buffered events without returning them. Storage
// implementations call this on the copies they keep, so events are only
// ever published from the caller's live aggregate.
func (e *Entity) ClearEvents() {
	e.pending = nil
}

// PendingEvents returns the buffered events without clearing them.
func (e *Entity) PendingEvents() []events.Event {
	out := make([]events.Event, len(e.pending))
	copy(out, e.pending)
	return out
}
