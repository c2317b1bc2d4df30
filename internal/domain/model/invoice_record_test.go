package model_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
)

func TestNormalizeVendor(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "Acme", want: "acme"},
		{raw: "  ACME,   Inc. ", want: "acme"},
		{raw: "Acme Corp", want: "acme"},
		{raw: "Smith & Sons Ltd.", want: "smith and sons"},
		{raw: "Müller GmbH", want: "müller"},
		{raw: "Inc", want: "inc"},
		{raw: "Co-Op Supplies Co.", want: "co op supplies"},
		{raw: "UNKNOWN_VENDOR", want: ""},
		{raw: "not_found", want: ""},
		{raw: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, model.NormalizeVendor(tt.raw))
		})
	}
}

func TestInvoiceRecord_VendorPrefersNormalizedField(t *testing.T) {
	r := model.InvoiceRecord{VendorRaw: "Acme Inc", VendorNormalized: "acme-holdings"}
	assert.Equal(t, "acme-holdings", r.Vendor())

	r.VendorNormalized = ""
	assert.Equal(t, "acme", r.Vendor())
	assert.True(t, r.HasVendor())
}

func TestInvoiceRecord_Amount(t *testing.T) {
	var r model.InvoiceRecord
	assert.False(t, r.HasAmount())
	assert.Equal(t, 0.0, r.AmountFloat())

	amt := decimal.RequireFromString("1234.56")
	r.Amount = &amt
	assert.True(t, r.HasAmount())
	assert.Equal(t, 1234.56, r.AmountFloat())
}
