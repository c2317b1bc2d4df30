package service

import (
	"github.com/shopspring/decimal"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
	"github.com/bibbank/invoice-anomaly/internal/domain/valueobject"
)

var (
	extremeImpactShare     = decimal.RequireFromString("0.10")
	statisticalImpactShare = decimal.RequireFromString("0.05")
)

// amountImpact estimates how much money a flagged invoice puts at risk. Each signal code
// maps to a share of the amount (or the tax discrepancy); the largest estimate wins.
func amountImpact(r model.InvoiceRecord, v model.AnomalyVerdict, taxRate decimal.Decimal, precision int32) decimal.Decimal {
	if v.RiskLevel.Equal(valueobject.RiskLevelLow) || !r.HasAmount() {
		return decimal.Zero
	}
	amount := r.Amount.Abs()

	impact := decimal.Zero
	for _, s := range v.Signals {
		if s.Value <= 0 {
			continue
		}
		var est decimal.Decimal
		switch s.Code {
		case model.CodePotentialDuplicate, model.CodeDuplicateInvoiceID:
			est = amount
		case model.CodeAmountCeilingExceeded:
			est = amount.Mul(extremeImpactShare)
		case model.CodeZScoreDeviation, model.CodeIQROutlier, model.CodeIsolationForest:
			est = amount.Mul(statisticalImpactShare)
		case model.CodeTaxMismatch:
			if r.TaxAmount != nil {
				est = r.TaxAmount.Sub(r.Amount.Mul(taxRate)).Abs()
			}
		default:
			continue
		}
		if est.GreaterThan(impact) {
			impact = est
		}
	}
	return impact.Round(precision)
}
