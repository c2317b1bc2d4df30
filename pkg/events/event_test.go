package events

import (
	"encoding/json"
	"testing"
	"time"
)

type invoiceFlagged struct {
	BaseEvent
	InvoiceID string `json:"invoice_id"`
}

func TestNewBaseEvent(t *testing.T) {
	before := time.Now().UTC()
	event := NewBaseEvent("invoice.batch.scored", "batch-123", "BatchAssessment", "tenant-456")
	after := time.Now().UTC()

	if event.EventID() == "" {
		t.Error("expected non-empty event ID")
	}
	if event.EventType() != "invoice.batch.scored" {
		t.Errorf("expected event type %q, got %q", "invoice.batch.scored", event.EventType())
	}
	if event.AggregateID() != "batch-123" {
		t.Errorf("expected aggregate ID %q, got %q", "batch-123", event.AggregateID())
	}
	if event.AggregateType() != "BatchAssessment" {
		t.Errorf("expected aggregate type %q, got %q", "BatchAssessment", event.AggregateType())
	}
	if event.TenantID() != "tenant-456" {
		t.Errorf("expected tenant ID %q, got %q", "tenant-456", event.TenantID())
	}
	if event.OccurredAt().Before(before) || event.OccurredAt().After(after) {
		t.Errorf("expected occurredAt between %v and %v, got %v", before, after, event.OccurredAt())
	}
}

func TestNewBaseEventUniqueIDs(t *testing.T) {
	a := NewBaseEvent("x", "agg", "Agg", "t")
	b := NewBaseEvent("x", "agg", "Agg", "t")
	if a.EventID() == b.EventID() {
		t.Error("expected distinct event IDs")
	}
}

func TestEmbeddedEventSerializesEnvelope(t *testing.T) {
	evt := invoiceFlagged{
		BaseEvent: NewBaseEvent("invoice.high_risk.detected", "batch-1", "BatchAssessment", "tenant-1"),
		InvoiceID: "INV-001",
	}

	var _ DomainEvent = evt

	payload, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"event_id", "event_type", "aggregate_id", "aggregate_type", "tenant_id", "occurred_at", "invoice_id"} {
		if _, ok := parsed[key]; !ok {
			t.Errorf("expected key %q in payload %s", key, payload)
		}
	}
}

func TestEventCollector(t *testing.T) {
	var c EventCollector
	c.Record(NewBaseEvent("a", "1", "Agg", "t"))
	c.Record(NewBaseEvent("b", "1", "Agg", "t"))

	if got := len(c.Pending()); got != 2 {
		t.Fatalf("expected 2 events, got %d", got)
	}
	if got := len(c.Pending()); got != 2 {
		t.Fatalf("Pending must not drain, got %d", got)
	}

	drained := c.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained events, got %d", len(drained))
	}
	if drained[0].EventType() != "a" || drained[1].EventType() != "b" {
		t.Errorf("unexpected order: %s, %s", drained[0].EventType(), drained[1].EventType())
	}
	if len(c.Pending()) != 0 {
		t.Error("expected collector to be empty after Drain")
	}
}
