package service

import (
	"math"
	"sort"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
	"github.com/bibbank/invoice-anomaly/internal/domain/valueobject"
)

const scorePrecision = 1e6

// RiskAggregator merges the signals of all sources into one verdict per record.
// It is the only place where weighting and thresholds apply.
type RiskAggregator struct {
	weights    map[valueobject.SignalSource]float64
	floors     map[valueobject.SignalSource]bool
	thresholds valueobject.RiskThresholds
}

// NewRiskAggregator creates a RiskAggregator from the engine configuration.
func NewRiskAggregator(cfg EngineConfig) *RiskAggregator {
	floors := make(map[valueobject.SignalSource]bool, len(cfg.FloorSources))
	for _, src := range cfg.FloorSources {
		floors[src] = true
	}
	return &RiskAggregator{
		weights:    cfg.SourceWeights,
		floors:     floors,
		thresholds: cfg.RiskThresholds,
	}
}

// Aggregate builds the verdict of one record from all of its signals. The score is the
// weighted mean of each present source's strongest signal, raised to the strongest
// floor-source signal, so an absent source never lowers risk and a triggered rule or
// duplicate is never averaged away.
func (a *RiskAggregator) Aggregate(invoiceID string, signals []model.SignalScore) model.AnomalyVerdict {
	trail := make([]model.SignalScore, len(signals))
	copy(trail, signals)
	sortSignals(trail)

	perSource := make(map[valueobject.SignalSource]float64)
	for _, sig := range trail {
		if cur, ok := perSource[sig.Source]; !ok || sig.Value > cur {
			perSource[sig.Source] = sig.Value
		}
	}

	var weighted, totalWeight, floor float64
	for _, src := range valueobject.AllSignalSources() {
		v, ok := perSource[src]
		if !ok {
			continue
		}
		w := weightFor(a.weights, src)
		weighted += w * v
		totalWeight += w
		if a.floors[src] {
			floor = math.Max(floor, v)
		}
	}

	score := 0.0
	if totalWeight > 0 {
		score = weighted / totalWeight
	}
	score = math.Round(clamp01(math.Max(score, floor))*scorePrecision) / scorePrecision

	level := valueobject.RiskLevelFromScore(score, a.thresholds)
	return model.AnomalyVerdict{
		InvoiceID: invoiceID,
		Score:     score,
		RiskLevel: level,
		Category:  categorize(level, trail),
		Signals:   trail,
	}
}

// sortSignals orders by descending value; ties are broken by source, code and reason
// so the audit trail is identical across runs.
func sortSignals(signals []model.SignalScore) {
	sort.SliceStable(signals, func(i, j int) bool {
		a, b := signals[i], signals[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		if a.Source.Rank() != b.Source.Rank() {
			return a.Source.Rank() < b.Source.Rank()
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Reason < b.Reason
	})
}

func categorize(level valueobject.RiskLevel, trail []model.SignalScore) valueobject.AnomalyCategory {
	if level.Equal(valueobject.RiskLevelLow) || len(trail) == 0 {
		return valueobject.CategoryNone
	}

	top := trail[0]
	switch top.Code {
	case model.CodePotentialDuplicate, model.CodeDuplicateInvoiceID:
		return valueobject.CategoryDuplicate
	case model.CodeNonPositiveAmount, model.CodeAmountCeilingExceeded, model.CodeRoundAmount,
		model.CodeExtremeAmountLow:
		return valueobject.CategoryExtremeAmount
	case model.CodeMissingRequiredField, model.CodeTaxMismatch, model.CodeMissingInvoiceID:
		return valueobject.CategoryDataQuality
	case model.CodeFutureInvoiceDate, model.CodeWeekendInvoice, model.CodeDueBeforeInvoice:
		return valueobject.CategoryTemporal
	case model.CodeVendorAmountDeviation, model.CodeExceedsVendorMax:
		return valueobject.CategoryVendorBehavior
	}

	switch top.Source {
	case valueobject.SourceStatistical:
		return valueobject.CategoryStatistical
	case valueobject.SourceML:
		return valueobject.CategoryMLOutlier
	default:
		return valueobject.CategoryNone
	}
}
