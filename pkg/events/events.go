package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Deployment lifecycle event types
const (
	EventDeploymentCreated           = "deployment.created"
	EventDeploymentPlanGenerated     = "deployment.plan_generated"
	EventDeploymentApproved          = "deployment.approved"
	EventDeploymentStarted           = "deployment.started"
	EventDeploymentCompleted         = "deployment.completed"
	EventDeploymentFailed            = "deployment.failed"
	EventDeploymentRollbackStarted   = "deployment.rollback_started"
	EventDeploymentRollbackCompleted = "deployment.rollback_completed"
	EventDriftDetected               = "drift.detected"
)

// Event is the envelope every domain event crosses the sink boundary in.
type Event struct {
	ID            string         `json:"event_id"`
	Type          string         `json:"event_type"`
	OccurredAt    time.Time      `json:"occurred_at"`
	CorrelationID string         `json:"correlation_id"`
	Payload       map[string]any `json:"payload"`
}

// New creates an event with a fresh id and timestamp.
func New(eventType, correlationID string, payload map[string]any) Event {
	return Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		OccurredAt:    time.Now().UTC(),
		CorrelationID: correlationID,
		Payload:       payload,
	}
}

// Sink is the event-sink port. Implementations fan events out to
// subscribers; publishing never blocks the caller.
type Sink interface {
	Publish(event Event)
	PublishBatch(events []Event)
}

// Subscriber is a channel that receives events
type Subscriber chan Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers
func (b *Broker) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

// PublishBatch publishes events in order
func (b *Broker) PublishBatch(events []Event) {
	for _, event := range events {
		b.Publish(event)
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
