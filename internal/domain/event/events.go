package event

import (
	"github.com/google/uuid"

	"github.com/bibbank/invoice-anomaly/pkg/events"
)

const (
	// EventTypeBatchScored is emitted once per scored invoice batch.
	EventTypeBatchScored = "invoice.batch.scored"

	// EventTypeHighRiskDetected is emitted for every invoice assessed as HIGH risk.
	EventTypeHighRiskDetected = "invoice.high_risk.detected"

	aggregateType = "BatchAssessment"
)

// BatchScored is published when an invoice batch has been scored and persisted.
type BatchScored struct {
	events.BaseEvent
	LevelCounts  map[string]int `json:"level_counts"`
	Source       string         `json:"source"`
	ModelVersion string         `json:"model_version"`
	Abstentions  []string       `json:"abstentions,omitempty"`
	InvoiceCount int            `json:"invoice_count"`
}

// NewBatchScored creates a BatchScored event.
func NewBatchScored(
	assessmentID, tenantID uuid.UUID,
	source, modelVersion string,
	invoiceCount int,
	levelCounts map[string]int,
	abstentions []string,
) BatchScored {
	return BatchScored{
		BaseEvent:    events.NewBaseEvent(EventTypeBatchScored, assessmentID.String(), aggregateType, tenantID.String()),
		Source:       source,
		ModelVersion: modelVersion,
		InvoiceCount: invoiceCount,
		LevelCounts:  levelCounts,
		Abstentions:  abstentions,
	}
}

// HighRiskDetected is published for each HIGH verdict so reviewers can be alerted
// before the invoice is paid.
type HighRiskDetected struct {
	events.BaseEvent
	InvoiceID string   `json:"invoice_id"`
	Category  string   `json:"category"`
	Reasons   []string `json:"reasons"`
	Score     float64  `json:"score"`
}

// NewHighRiskDetected creates a HighRiskDetected event.
func NewHighRiskDetected(
	assessmentID, tenantID uuid.UUID,
	invoiceID, category string,
	score float64,
	reasons []string,
) HighRiskDetected {
	return HighRiskDetected{
		BaseEvent: events.NewBaseEvent(EventTypeHighRiskDetected, assessmentID.String(), aggregateType, tenantID.String()),
		InvoiceID: invoiceID,
		Category:  category,
		Score:     score,
		Reasons:   reasons,
	}
}
