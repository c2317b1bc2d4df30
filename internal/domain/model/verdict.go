package model

import (
	"github.com/shopspring/decimal"

	"github.com/bibbank/invoice-anomaly/internal/domain/valueobject"
)

// AnomalyVerdict is the engine's output for one invoice.
type AnomalyVerdict struct {
	RiskLevel    valueobject.RiskLevel       `json:"risk_level"`
	InvoiceID    string                      `json:"invoice_id"`
	Category     valueobject.AnomalyCategory `json:"category"`
	ModelVersion string                      `json:"model_version"`
	// Signals is the audit trail, sorted by descending value so the top reason is first.
	Signals []SignalScore `json:"signals"`
	// Abstentions lists the sources that deliberately produced no signal.
	Abstentions []Abstention `json:"abstentions,omitempty"`
	// AmountImpact estimates the money at risk; zero for LOW verdicts.
	AmountImpact decimal.Decimal `json:"amount_impact"`
	Score        float64         `json:"score"`
}

// TopReason returns the reason of the highest-valued signal, or "" when there is none.
func (v AnomalyVerdict) TopReason() string {
	if len(v.Signals) == 0 {
		return ""
	}
	return v.Signals[0].Reason
}

// Abstention records that a source produced no signal for a batch and why.
type Abstention struct {
	Source valueobject.SignalSource `json:"source"`
	Reason string                   `json:"reason"`
}

// DuplicateGroup is the set of invoices sharing one fingerprint. Groups partition
// the batch: every record is in exactly one group, singletons included.
type DuplicateGroup struct {
	Fingerprint string   `json:"fingerprint"`
	InvoiceIDs  []string `json:"invoice_ids"`
	Indices     []int    `json:"-"`
}

// IsDuplicate reports whether the group holds more than one invoice.
func (g DuplicateGroup) IsDuplicate() bool {
	return len(g.InvoiceIDs) > 1
}

// StatisticsWarning reports a zero-variance group that was handled with neutral scores.
type StatisticsWarning struct {
	// Scope is "batch" or "vendor".
	Scope  string `json:"scope"`
	Key    string `json:"key,omitempty"`
	Reason string `json:"reason"`
}

// BatchResult is everything the engine produced for one batch.
type BatchResult struct {
	Stats           BatchStats          `json:"-"`
	Verdicts        []AnomalyVerdict    `json:"verdicts"`
	DuplicateGroups []DuplicateGroup    `json:"duplicate_groups"`
	Abstentions     []Abstention        `json:"abstentions,omitempty"`
	Warnings        []StatisticsWarning `json:"warnings,omitempty"`
}

// CountByLevel returns how many verdicts fall into each risk level.
func (r BatchResult) CountByLevel() map[string]int {
	counts := map[string]int{
		valueobject.RiskLevelLow.String():    0,
		valueobject.RiskLevelMedium.String(): 0,
		valueobject.RiskLevelHigh.String():   0,
	}
	for _, v := range r.Verdicts {
		counts[v.RiskLevel.String()]++
	}
	return counts
}
