package events

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is the interface all domain events must implement.
type DomainEvent interface {
	EventID() string
	EventType() string
	AggregateID() string
	AggregateType() string
	TenantID() string
	OccurredAt() time.Time
}

// BaseEvent carries the envelope fields shared by every event. Concrete events embed
// it so the envelope is serialized alongside their own payload fields.
type BaseEvent struct {
	OccurredAtUTC time.Time `json:"occurred_at"`
	ID            string    `json:"event_id"`
	Type          string    `json:"event_type"`
	Aggregate     string    `json:"aggregate_id"`
	AggregateKind string    `json:"aggregate_type"`
	Tenant        string    `json:"tenant_id"`
}

// NewBaseEvent creates a BaseEvent with a generated ID and the current UTC time.
func NewBaseEvent(eventType, aggregateID, aggregateType, tenantID string) BaseEvent {
	return BaseEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		Aggregate:     aggregateID,
		AggregateKind: aggregateType,
		Tenant:        tenantID,
		OccurredAtUTC: time.Now().UTC(),
	}
}

// EventID returns the unique identifier for this event.
func (e BaseEvent) EventID() string { return e.ID }

// EventType returns the type name of this event.
func (e BaseEvent) EventType() string { return e.Type }

// AggregateID returns the identifier of the aggregate that produced this event.
func (e BaseEvent) AggregateID() string { return e.Aggregate }

// AggregateType returns the type name of the aggregate that produced this event.
func (e BaseEvent) AggregateType() string { return e.AggregateKind }

// TenantID returns the tenant the aggregate belongs to.
func (e BaseEvent) TenantID() string { return e.Tenant }

// OccurredAt returns the time at which this event occurred.
func (e BaseEvent) OccurredAt() time.Time { return e.OccurredAtUTC }

// EventCollector is embedded in aggregates to gather events raised by state changes
// until the application layer drains and publishes them.
type EventCollector struct {
	pending []DomainEvent
}

// Record queues an event.
func (c *EventCollector) Record(event DomainEvent) {
	c.pending = append(c.pending, event)
}

// Pending returns the queued events without draining them.
func (c *EventCollector) Pending() []DomainEvent {
	return c.pending
}

// Drain returns the queued events in the order they were recorded and empties the queue.
func (c *EventCollector) Drain() []DomainEvent {
	drained := c.pending
	c.pending = nil
	return drained
}
