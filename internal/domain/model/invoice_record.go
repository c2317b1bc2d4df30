package model

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// InvoiceRecord is an immutable invoice as handed over by the extraction stage.
// Vendor and amount are mandatory in the contract but may still arrive empty;
// the business rules flag those records instead of rejecting the batch.
type InvoiceRecord struct {
	InvoiceDate      time.Time
	DueDate          *time.Time
	Amount           *decimal.Decimal
	TaxAmount        *decimal.Decimal
	LineItemCount    *int
	ID               string
	VendorRaw        string
	VendorNormalized string
	RawTextHash      string
}

// extraction sentinels written by the OCR stage when no vendor could be read.
var missingVendorSentinels = map[string]bool{
	"UNKNOWN_VENDOR": true,
	"NOT_FOUND":      true,
	"UNKNOWN":        true,
}

var legalSuffixes = map[string]bool{
	"inc": true, "incorporated": true, "llc": true, "ltd": true, "limited": true,
	"corp": true, "corporation": true, "co": true, "gmbh": true, "plc": true,
}

// NormalizeVendor lowercases the name, drops punctuation, collapses whitespace and
// strips trailing legal-form suffixes ("Acme, Inc." and "ACME inc" both become "acme").
func NormalizeVendor(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || missingVendorSentinels[strings.ToUpper(trimmed)] {
		return ""
	}

	var b strings.Builder
	for _, r := range strings.ToLower(trimmed) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '&':
			b.WriteString(" and ")
		default:
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	for len(words) > 1 && legalSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// Vendor returns the normalized vendor, deriving it from the raw name when the
// extraction stage did not provide one.
func (r InvoiceRecord) Vendor() string {
	if r.VendorNormalized != "" {
		return r.VendorNormalized
	}
	return NormalizeVendor(r.VendorRaw)
}

// HasVendor reports whether a usable vendor name is present.
func (r InvoiceRecord) HasVendor() bool {
	return r.Vendor() != ""
}

// HasAmount reports whether an amount is present.
func (r InvoiceRecord) HasAmount() bool {
	return r.Amount != nil
}

// AmountFloat returns the amount as float64, or 0 when absent.
func (r InvoiceRecord) AmountFloat() float64 {
	if r.Amount == nil {
		return 0
	}
	return r.Amount.InexactFloat64()
}
