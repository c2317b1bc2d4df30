package service

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/invoice-anomaly/internal/domain/valueobject"
)

const (
	defaultCurrencyPrecision = 2
	defaultMLMinBatchSize    = 10
	defaultMLFitBudget       = 5 * time.Second
	maxCurrencyPrecision     = 8
)

// Rule names accepted by RuleSet.Set.
const (
	RuleNonPositiveAmount    = "non_positive_amount"
	RuleFutureDated          = "future_dated"
	RuleAmountCeiling        = "amount_ceiling"
	RuleMissingRequiredField = "missing_required_field"
	RuleRoundAmount          = "round_amount"
	RuleWeekendInvoice       = "weekend_invoice"
	RuleTaxMismatch          = "tax_mismatch"
	RuleDueBeforeInvoice     = "due_before_invoice"
	RuleLowAmount            = "low_amount"
	RuleMissingInvoiceID     = "missing_invoice_id"
	RuleVendorDeviation      = "vendor_amount_deviation"
	RuleVendorHistoricalMax  = "vendor_historical_max"
	RuleDuplicateInvoiceID   = "duplicate_invoice_id"
)

// RuleSet toggles the individual business rules.
type RuleSet struct {
	NonPositiveAmount    bool
	FutureDated          bool
	AmountCeiling        bool
	MissingRequiredField bool
	RoundAmount          bool
	WeekendInvoice       bool
	TaxMismatch          bool
	DueBeforeInvoice     bool
	LowAmount            bool
	MissingInvoiceID     bool
	VendorDeviation      bool
	VendorHistoricalMax  bool
	DuplicateInvoiceID   bool
}

// DefaultRuleSet enables the four core rules and leaves the heuristic ones off.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		NonPositiveAmount:    true,
		FutureDated:          true,
		AmountCeiling:        true,
		MissingRequiredField: true,
	}
}

// Set toggles a rule by name.
func (r *RuleSet) Set(name string, enabled bool) error {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case RuleNonPositiveAmount:
		r.NonPositiveAmount = enabled
	case RuleFutureDated:
		r.FutureDated = enabled
	case RuleAmountCeiling:
		r.AmountCeiling = enabled
	case RuleMissingRequiredField:
		r.MissingRequiredField = enabled
	case RuleRoundAmount:
		r.RoundAmount = enabled
	case RuleWeekendInvoice:
		r.WeekendInvoice = enabled
	case RuleTaxMismatch:
		r.TaxMismatch = enabled
	case RuleDueBeforeInvoice:
		r.DueBeforeInvoice = enabled
	case RuleLowAmount:
		r.LowAmount = enabled
	case RuleMissingInvoiceID:
		r.MissingInvoiceID = enabled
	case RuleVendorDeviation:
		r.VendorDeviation = enabled
	case RuleVendorHistoricalMax:
		r.VendorHistoricalMax = enabled
	case RuleDuplicateInvoiceID:
		r.DuplicateInvoiceID = enabled
	default:
		return &ConfigurationError{Field: "rules", Reason: fmt.Sprintf("unknown rule %q", name)}
	}
	return nil
}

// EngineConfig holds every tunable of the anomaly engine.
type EngineConfig struct {
	// Clock returns the processing time used by date rules. Defaults to time.Now.
	Clock func() time.Time
	// AmountCeiling disables the ceiling rule when nil.
	AmountCeiling *decimal.Decimal
	// SourceWeights overrides the per-source aggregation weights; sources not
	// listed keep a weight of 1.
	SourceWeights map[valueobject.SignalSource]float64
	// FloorSources are sources whose maximum signal is a lower bound on the aggregate.
	FloorSources      []valueobject.SignalSource
	DuplicateWindow   valueobject.DuplicateWindow
	TaxRate           decimal.Decimal
	RiskThresholds    valueobject.RiskThresholds
	Rules             RuleSet
	CurrencyPrecision int32
	MLMinBatchSize    int
	MLFitBudget       time.Duration
	MLReuseLastModel  bool
	// Sequential runs the scorers one after another instead of in parallel.
	Sequential bool
}

// DefaultEngineConfig returns the documented defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Clock:             time.Now,
		DuplicateWindow:   valueobject.DuplicateWindowDay,
		CurrencyPrecision: defaultCurrencyPrecision,
		MLMinBatchSize:    defaultMLMinBatchSize,
		MLFitBudget:       defaultMLFitBudget,
		TaxRate:           decimal.NewFromFloat(0.1),
		RiskThresholds:    valueobject.DefaultRiskThresholds(),
		Rules:             DefaultRuleSet(),
		FloorSources:      []valueobject.SignalSource{valueobject.SourceBusinessRule, valueobject.SourceDuplicate},
	}
}

// Validate fails fast on settings the engine cannot run with.
func (c EngineConfig) Validate() error {
	if c.CurrencyPrecision < 0 || c.CurrencyPrecision > maxCurrencyPrecision {
		return &ConfigurationError{
			Field:  "currency_precision",
			Reason: fmt.Sprintf("must be within [0,%d], got %d", maxCurrencyPrecision, c.CurrencyPrecision),
		}
	}
	if c.AmountCeiling != nil && c.AmountCeiling.IsNegative() {
		return &ConfigurationError{Field: "amount_ceiling", Reason: "must not be negative"}
	}
	if c.MLMinBatchSize < 2 {
		return &ConfigurationError{
			Field:  "ml_min_batch_size",
			Reason: fmt.Sprintf("must be at least 2, got %d", c.MLMinBatchSize),
		}
	}
	if c.MLFitBudget < 0 {
		return &ConfigurationError{Field: "ml_fit_budget", Reason: "must not be negative"}
	}
	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return &ConfigurationError{Field: "tax_rate", Reason: "must be within [0,1]"}
	}
	if err := c.RiskThresholds.Validate(); err != nil {
		return &ConfigurationError{Field: "risk_thresholds", Reason: err.Error()}
	}
	if err := validateWeights(c.SourceWeights); err != nil {
		return err
	}
	for _, src := range c.FloorSources {
		if _, err := valueobject.ParseSignalSource(string(src)); err != nil {
			return &ConfigurationError{Field: "floor_sources", Reason: err.Error()}
		}
	}
	return nil
}

func validateWeights(weights map[valueobject.SignalSource]float64) error {
	if len(weights) == 0 {
		return nil
	}

	keys := make([]string, 0, len(weights))
	for src := range weights {
		keys = append(keys, string(src))
	}
	sort.Strings(keys)

	for _, k := range keys {
		src, err := valueobject.ParseSignalSource(k)
		if err != nil {
			return &ConfigurationError{Field: "source_weights", Reason: err.Error()}
		}
		w := weights[src]
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return &ConfigurationError{
				Field:  "source_weights",
				Reason: fmt.Sprintf("weight for %s must be a non-negative number, got %v", src, w),
			}
		}
	}

	total := 0.0
	for _, src := range valueobject.AllSignalSources() {
		total += weightFor(weights, src)
	}
	if total == 0 {
		return &ConfigurationError{Field: "source_weights", Reason: "at least one source needs a positive weight"}
	}
	return nil
}

// weightFor returns the configured weight, defaulting to 1 for unlisted sources.
func weightFor(weights map[valueobject.SignalSource]float64, src valueobject.SignalSource) float64 {
	if w, ok := weights[src]; ok {
		return w
	}
	return 1
}
