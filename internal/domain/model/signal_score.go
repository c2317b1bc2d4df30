package model

import "github.com/bibbank/invoice-anomaly/internal/domain/valueobject"

// SignalCode is a machine-readable identifier for the condition behind a signal.
type SignalCode string

const (
	CodeZScoreDeviation       SignalCode = "Z_SCORE_DEVIATION"
	CodeIQROutlier            SignalCode = "IQR_OUTLIER"
	CodeInsufficientHistory   SignalCode = "INSUFFICIENT_HISTORY"
	CodePotentialDuplicate    SignalCode = "POTENTIAL_DUPLICATE"
	CodeIsolationForest       SignalCode = "ISOLATION_FOREST_OUTLIER"
	CodeNonPositiveAmount     SignalCode = "NON_POSITIVE_AMOUNT"
	CodeFutureInvoiceDate     SignalCode = "FUTURE_INVOICE_DATE"
	CodeAmountCeilingExceeded SignalCode = "AMOUNT_CEILING_EXCEEDED"
	CodeMissingRequiredField  SignalCode = "MISSING_REQUIRED_FIELD"
	CodeRoundAmount           SignalCode = "ROUND_AMOUNT"
	CodeWeekendInvoice        SignalCode = "WEEKEND_INVOICE"
	CodeTaxMismatch           SignalCode = "TAX_MISMATCH"
	CodeDueBeforeInvoice      SignalCode = "DUE_BEFORE_INVOICE"
	CodeExtremeAmountLow      SignalCode = "EXTREME_AMOUNT_LOW"
	CodeMissingInvoiceID      SignalCode = "MISSING_INVOICE_ID"
	CodeVendorAmountDeviation SignalCode = "VENDOR_AMOUNT_DEVIATION"
	CodeExceedsVendorMax      SignalCode = "EXCEEDS_VENDOR_HISTORICAL_MAX"
	CodeDuplicateInvoiceID    SignalCode = "DUPLICATE_INVOICE_ID"
)

// SignalScore is one source's contribution to an invoice's risk, in [0,1].
type SignalScore struct {
	Source valueobject.SignalSource `json:"source"`
	Code   SignalCode               `json:"code"`
	Reason string                   `json:"reason"`
	Value  float64                  `json:"value"`
}
