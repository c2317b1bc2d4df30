package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
	"github.com/bibbank/invoice-anomaly/internal/domain/valueobject"
)

var (
	roundAmountUnit    = decimal.NewFromInt(1000)
	roundAmountMinimum = decimal.NewFromInt(5000)
	taxTolerance       = decimal.NewFromInt(1)
	lowAmountLimit     = decimal.NewFromInt(10)
)

const (
	vendorDeviationFactor = 3.0
	vendorMaxFactor       = 1.5
	// minVendorPeers is how many other invoices of the vendor the vendor rules need.
	minVendorPeers = 2
)

// invoice IDs the extraction stage writes when it could not read one.
var missingInvoiceIDSentinels = map[string]bool{
	"NOT_FOUND": true,
	"UNKNOWN":   true,
}

// RuleEngine applies deterministic business rules. Every enabled rule that triggers
// contributes its own signal; the aggregator keeps the maximum.
type RuleEngine struct {
	clock   func() time.Time
	ceiling *decimal.Decimal
	taxRate decimal.Decimal
	rules   RuleSet
}

// NewRuleEngine creates a RuleEngine from the engine configuration.
func NewRuleEngine(cfg EngineConfig) *RuleEngine {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &RuleEngine{
		clock:   clock,
		ceiling: cfg.AmountCeiling,
		taxRate: cfg.TaxRate,
		rules:   cfg.Rules,
	}
}

// Evaluate returns the triggered rule signals for each record. The processing date is
// read once so every record in the batch is judged against the same day.
func (e *RuleEngine) Evaluate(records []model.InvoiceRecord, stats model.BatchStats) [][]model.SignalScore {
	today := truncateDay(e.clock())

	var idCounts map[string]int
	if e.rules.DuplicateInvoiceID {
		idCounts = make(map[string]int, len(records))
		for _, r := range records {
			if key, ok := invoiceIDKey(r); ok {
				idCounts[key]++
			}
		}
	}

	out := make([][]model.SignalScore, len(records))
	for i, r := range records {
		out[i] = e.evaluate(r, today, stats, idCounts)
	}
	return out
}

func (e *RuleEngine) evaluate(r model.InvoiceRecord, today time.Time, stats model.BatchStats, idCounts map[string]int) []model.SignalScore {
	var signals []model.SignalScore
	hit := func(code model.SignalCode, value float64, reason string) {
		signals = append(signals, model.SignalScore{
			Source: valueobject.SourceBusinessRule,
			Code:   code,
			Value:  value,
			Reason: reason,
		})
	}

	if e.rules.MissingRequiredField && (!r.HasVendor() || !r.HasAmount()) {
		hit(model.CodeMissingRequiredField, 1.0, "missing required field")
	}
	if e.rules.MissingInvoiceID && missingInvoiceID(r.ID) {
		hit(model.CodeMissingInvoiceID, 0.3, "invoice number could not be read")
	}
	if e.rules.DuplicateInvoiceID {
		if key, ok := invoiceIDKey(r); ok && idCounts[key] > 1 {
			hit(model.CodeDuplicateInvoiceID, 0.9, "invoice number already seen for vendor")
		}
	}

	if r.HasAmount() {
		amount := *r.Amount

		if e.rules.NonPositiveAmount && !amount.IsPositive() {
			hit(model.CodeNonPositiveAmount, 1.0, "non-positive amount")
		}
		if e.rules.AmountCeiling && e.ceiling != nil && amount.GreaterThan(*e.ceiling) {
			hit(model.CodeAmountCeilingExceeded, 0.8, "amount exceeds configured ceiling")
		}
		if e.rules.RoundAmount && amount.GreaterThan(roundAmountMinimum) && amount.Mod(roundAmountUnit).IsZero() {
			hit(model.CodeRoundAmount, 0.3, "suspiciously round amount")
		}
		if e.rules.TaxMismatch && r.TaxAmount != nil && amount.IsPositive() {
			expected := amount.Mul(e.taxRate)
			if r.TaxAmount.Sub(expected).Abs().GreaterThan(taxTolerance) {
				hit(model.CodeTaxMismatch, 0.5, "tax amount does not match expected rate")
			}
		}
		if e.rules.LowAmount && amount.IsPositive() && amount.LessThan(lowAmountLimit) {
			hit(model.CodeExtremeAmountLow, 0.4, "unusually small amount")
		}
		if e.rules.VendorDeviation || e.rules.VendorHistoricalMax {
			signals = append(signals, e.vendorBehavior(r, stats)...)
		}
	}

	if !r.InvoiceDate.IsZero() {
		invoiceDay := truncateDay(r.InvoiceDate)

		if e.rules.FutureDated && invoiceDay.After(today) {
			hit(model.CodeFutureInvoiceDate, 0.7, "future invoice date")
		}
		if e.rules.WeekendInvoice {
			if wd := invoiceDay.Weekday(); wd == time.Saturday || wd == time.Sunday {
				hit(model.CodeWeekendInvoice, 0.2, "invoice dated on a weekend")
			}
		}
		if e.rules.DueBeforeInvoice && r.DueDate != nil && truncateDay(*r.DueDate).Before(invoiceDay) {
			hit(model.CodeDueBeforeInvoice, 0.5, "due date precedes invoice date")
		}
	}

	return signals
}

// vendorBehavior compares the amount with the vendor's other invoices in the batch.
func (e *RuleEngine) vendorBehavior(r model.InvoiceRecord, stats model.BatchStats) []model.SignalScore {
	g, ok := stats.VendorStats(r.Vendor())
	if !ok || g.Count-1 < minVendorPeers {
		return nil
	}

	x := r.AmountFloat()
	peerMean := (g.Sum - x) / float64(g.Count-1)
	peerMax := g.Sorted[g.Count-1]
	if x >= peerMax {
		peerMax = g.Sorted[g.Count-2]
	}

	var signals []model.SignalScore
	if e.rules.VendorDeviation && peerMean > 0 && x > vendorDeviationFactor*peerMean {
		signals = append(signals, model.SignalScore{
			Source: valueobject.SourceBusinessRule,
			Code:   model.CodeVendorAmountDeviation,
			Value:  0.5,
			Reason: fmt.Sprintf("amount %.1fx vendor average", x/peerMean),
		})
	}
	if e.rules.VendorHistoricalMax && peerMax > 0 && x > vendorMaxFactor*peerMax {
		signals = append(signals, model.SignalScore{
			Source: valueobject.SourceBusinessRule,
			Code:   model.CodeExceedsVendorMax,
			Value:  0.75,
			Reason: "amount exceeds vendor maximum by more than 50%",
		})
	}
	return signals
}

func missingInvoiceID(id string) bool {
	trimmed := strings.TrimSpace(id)
	return trimmed == "" || missingInvoiceIDSentinels[strings.ToUpper(trimmed)]
}

// invoiceIDKey identifies an invoice number within a vendor. Records without a usable
// vendor or invoice number have no key.
func invoiceIDKey(r model.InvoiceRecord) (string, bool) {
	if !r.HasVendor() || missingInvoiceID(r.ID) {
		return "", false
	}
	return r.Vendor() + "\x00" + strings.ToUpper(strings.TrimSpace(r.ID)), true
}
