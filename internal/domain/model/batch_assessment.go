package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bibbank/invoice-anomaly/internal/domain/event"
	"github.com/bibbank/invoice-anomaly/internal/domain/valueobject"
	"github.com/bibbank/invoice-anomaly/pkg/events"
)

// maxEventReasons bounds the reasons copied into a HighRiskDetected event.
const maxEventReasons = 3

// BatchAssessment is the aggregate root for one scored invoice batch.
type BatchAssessment struct {
	events.EventCollector

	scoredAt     time.Time
	createdAt    time.Time
	source       string
	modelVersion string
	verdicts     []AnomalyVerdict
	groups       []DuplicateGroup
	abstentions  []Abstention
	warnings     []StatisticsWarning
	version      int
	tenantID     uuid.UUID
	id           uuid.UUID
}

// NewBatchAssessment wraps an engine result into a new aggregate and records
// the BatchScored event plus one HighRiskDetected event per HIGH verdict.
func NewBatchAssessment(tenantID uuid.UUID, source string, result BatchResult) (*BatchAssessment, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("tenant ID is required")
	}
	if len(result.Verdicts) == 0 {
		return nil, fmt.Errorf("batch result has no verdicts")
	}
	if source == "" {
		source = "api"
	}

	now := time.Now().UTC()
	a := &BatchAssessment{
		id:           uuid.New(),
		tenantID:     tenantID,
		source:       source,
		modelVersion: result.Verdicts[0].ModelVersion,
		verdicts:     result.Verdicts,
		groups:       result.DuplicateGroups,
		abstentions:  result.Abstentions,
		warnings:     result.Warnings,
		version:      1,
		scoredAt:     now,
		createdAt:    now,
	}

	abstained := make([]string, 0, len(result.Abstentions))
	for _, ab := range result.Abstentions {
		abstained = append(abstained, fmt.Sprintf("%s: %s", ab.Source, ab.Reason))
	}

	a.Record(event.NewBatchScored(
		a.id, a.tenantID, a.source, a.modelVersion,
		len(a.verdicts), result.CountByLevel(), abstained,
	))

	for _, v := range a.verdicts {
		if !v.RiskLevel.Equal(valueobject.RiskLevelHigh) {
			continue
		}
		reasons := make([]string, 0, maxEventReasons)
		for _, s := range v.Signals {
			if len(reasons) == maxEventReasons {
				break
			}
			reasons = append(reasons, s.Reason)
		}
		a.Record(event.NewHighRiskDetected(a.id, a.tenantID, v.InvoiceID, v.Category.String(), v.Score, reasons))
	}

	return a, nil
}

// ReconstructBatchAssessment rebuilds an aggregate from persisted data (no validation, no events).
func ReconstructBatchAssessment(
	id, tenantID uuid.UUID,
	source, modelVersion string,
	verdicts []AnomalyVerdict,
	groups []DuplicateGroup,
	abstentions []Abstention,
	warnings []StatisticsWarning,
	version int,
	scoredAt, createdAt time.Time,
) *BatchAssessment {
	return &BatchAssessment{
		id:           id,
		tenantID:     tenantID,
		source:       source,
		modelVersion: modelVersion,
		verdicts:     verdicts,
		groups:       groups,
		abstentions:  abstentions,
		warnings:     warnings,
		version:      version,
		scoredAt:     scoredAt,
		createdAt:    createdAt,
	}
}

// --- Accessors ---

func (a *BatchAssessment) ID() uuid.UUID                     { return a.id }
func (a *BatchAssessment) TenantID() uuid.UUID               { return a.tenantID }
func (a *BatchAssessment) Source() string                    { return a.source }
func (a *BatchAssessment) ModelVersion() string              { return a.modelVersion }
func (a *BatchAssessment) Verdicts() []AnomalyVerdict        { return a.verdicts }
func (a *BatchAssessment) DuplicateGroups() []DuplicateGroup { return a.groups }
func (a *BatchAssessment) Abstentions() []Abstention         { return a.abstentions }
func (a *BatchAssessment) Warnings() []StatisticsWarning     { return a.warnings }
func (a *BatchAssessment) Version() int                      { return a.version }
func (a *BatchAssessment) ScoredAt() time.Time               { return a.scoredAt }
func (a *BatchAssessment) CreatedAt() time.Time              { return a.createdAt }

// HighRiskCount returns the number of HIGH verdicts in the batch.
func (a *BatchAssessment) HighRiskCount() int {
	n := 0
	for _, v := range a.verdicts {
		if v.RiskLevel.Equal(valueobject.RiskLevelHigh) {
			n++
		}
	}
	return n
}
