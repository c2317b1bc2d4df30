package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
)

// DateLayout is the wire format of invoice and due dates.
const DateLayout = "2006-01-02"

// InvoiceInput is one invoice as received from the extraction stage. Vendor and amount
// may be empty; the business rules flag such invoices instead of rejecting the batch.
type InvoiceInput struct {
	Amount           *string `json:"amount,omitempty" validate:"omitempty,numeric"`
	TaxAmount        *string `json:"tax_amount,omitempty" validate:"omitempty,numeric"`
	LineItemCount    *int    `json:"line_item_count,omitempty" validate:"omitempty,min=0"`
	ID               string  `json:"id" validate:"required,max=128"`
	Vendor           string  `json:"vendor" validate:"max=512"`
	VendorNormalized string  `json:"vendor_normalized,omitempty" validate:"max=512"`
	InvoiceDate      string  `json:"invoice_date" validate:"required,datetime=2006-01-02"`
	DueDate          string  `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	RawTextHash      string  `json:"raw_text_hash,omitempty" validate:"max=128"`
}

// ScoreBatchRequest is the input DTO for the ScoreBatch use case.
type ScoreBatchRequest struct {
	Source   string         `json:"source" validate:"omitempty,oneof=api kafka cli"`
	Invoices []InvoiceInput `json:"invoices" validate:"max=10000,dive"`
	TenantID uuid.UUID      `json:"tenant_id" validate:"required"`
}

// GetBatchAssessmentRequest is the input DTO for retrieving a scored batch.
type GetBatchAssessmentRequest struct {
	TenantID     uuid.UUID `json:"tenant_id" validate:"required"`
	AssessmentID uuid.UUID `json:"assessment_id" validate:"required"`
}

// GetInvoiceVerdictRequest is the input DTO for retrieving the latest verdict of an invoice.
type GetInvoiceVerdictRequest struct {
	InvoiceID string    `json:"invoice_id" validate:"required,max=128"`
	TenantID  uuid.UUID `json:"tenant_id" validate:"required"`
}

// SignalResponse is one entry of a verdict's audit trail.
type SignalResponse struct {
	Source string  `json:"source"`
	Code   string  `json:"code"`
	Reason string  `json:"reason"`
	Value  float64 `json:"value"`
}

// AbstentionResponse names a source that produced no signal and why.
type AbstentionResponse struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// VerdictResponse is the output DTO for one invoice.
type VerdictResponse struct {
	InvoiceID    string               `json:"invoice_id"`
	RiskLevel    string               `json:"risk_level"`
	Category     string               `json:"category"`
	ModelVersion string               `json:"model_version"`
	TopReason    string               `json:"top_reason,omitempty"`
	Signals      []SignalResponse     `json:"signals"`
	Abstentions  []AbstentionResponse `json:"abstentions,omitempty"`
	AmountImpact string               `json:"amount_impact"`
	Score        float64              `json:"score"`
}

// BatchAssessmentResponse is the output DTO returned after scoring or loading a batch.
type BatchAssessmentResponse struct {
	ScoredAt        time.Time            `json:"scored_at"`
	CreatedAt       time.Time            `json:"created_at"`
	LevelCounts     map[string]int       `json:"level_counts"`
	Source          string               `json:"source"`
	ModelVersion    string               `json:"model_version"`
	Verdicts        []VerdictResponse    `json:"verdicts"`
	DuplicateGroups [][]string           `json:"duplicate_groups,omitempty"`
	Abstentions     []AbstentionResponse `json:"abstentions,omitempty"`
	Warnings        []string             `json:"warnings,omitempty"`
	HighRiskCount   int                  `json:"high_risk_count"`
	ID              uuid.UUID            `json:"id"`
	TenantID        uuid.UUID            `json:"tenant_id"`
}

// FromModel maps a batch assessment aggregate to the response DTO.
func FromModel(a *model.BatchAssessment) BatchAssessmentResponse {
	verdicts := make([]VerdictResponse, len(a.Verdicts()))
	for i, v := range a.Verdicts() {
		verdicts[i] = FromVerdict(v)
	}

	var groups [][]string
	for _, g := range a.DuplicateGroups() {
		if g.IsDuplicate() {
			groups = append(groups, g.InvoiceIDs)
		}
	}

	var warnings []string
	for _, w := range a.Warnings() {
		if w.Key != "" {
			warnings = append(warnings, w.Scope+" "+w.Key+": "+w.Reason)
		} else {
			warnings = append(warnings, w.Scope+": "+w.Reason)
		}
	}

	return BatchAssessmentResponse{
		ID:              a.ID(),
		TenantID:        a.TenantID(),
		Source:          a.Source(),
		ModelVersion:    a.ModelVersion(),
		Verdicts:        verdicts,
		DuplicateGroups: groups,
		Abstentions:     fromAbstentions(a.Abstentions()),
		Warnings:        warnings,
		LevelCounts:     model.BatchResult{Verdicts: a.Verdicts()}.CountByLevel(),
		HighRiskCount:   a.HighRiskCount(),
		ScoredAt:        a.ScoredAt(),
		CreatedAt:       a.CreatedAt(),
	}
}

// FromVerdict maps a single verdict to the response DTO.
func FromVerdict(v model.AnomalyVerdict) VerdictResponse {
	signals := make([]SignalResponse, len(v.Signals))
	for i, s := range v.Signals {
		signals[i] = SignalResponse{
			Source: s.Source.String(),
			Code:   string(s.Code),
			Reason: s.Reason,
			Value:  s.Value,
		}
	}
	return VerdictResponse{
		InvoiceID:    v.InvoiceID,
		RiskLevel:    v.RiskLevel.String(),
		Category:     v.Category.String(),
		ModelVersion: v.ModelVersion,
		TopReason:    v.TopReason(),
		Signals:      signals,
		Abstentions:  fromAbstentions(v.Abstentions),
		AmountImpact: v.AmountImpact.String(),
		Score:        v.Score,
	}
}

func fromAbstentions(in []model.Abstention) []AbstentionResponse {
	if len(in) == 0 {
		return nil
	}
	out := make([]AbstentionResponse, len(in))
	for i, a := range in {
		out[i] = AbstentionResponse{Source: a.Source.String(), Reason: a.Reason}
	}
	return out
}
