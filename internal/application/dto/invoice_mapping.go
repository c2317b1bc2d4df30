package dto

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
)

// ToRecords converts validated invoice inputs into domain records, in order. The error
// names the offending invoice.
func ToRecords(invoices []InvoiceInput) ([]model.InvoiceRecord, error) {
	records := make([]model.InvoiceRecord, len(invoices))
	for i, in := range invoices {
		r, err := in.ToRecord()
		if err != nil {
			return nil, fmt.Errorf("invoice %d (%s): %w", i, in.ID, err)
		}
		records[i] = r
	}
	return records, nil
}

// ToRecord converts one invoice input into a domain record.
func (in InvoiceInput) ToRecord() (model.InvoiceRecord, error) {
	r := model.InvoiceRecord{
		ID:               in.ID,
		VendorRaw:        in.Vendor,
		VendorNormalized: in.VendorNormalized,
		LineItemCount:    in.LineItemCount,
		RawTextHash:      in.RawTextHash,
	}

	invoiceDate, err := time.Parse(DateLayout, in.InvoiceDate)
	if err != nil {
		return r, fmt.Errorf("invalid invoice_date: %w", err)
	}
	r.InvoiceDate = invoiceDate

	if in.DueDate != "" {
		due, err := time.Parse(DateLayout, in.DueDate)
		if err != nil {
			return r, fmt.Errorf("invalid due_date: %w", err)
		}
		r.DueDate = &due
	}

	if r.Amount, err = parseAmount(in.Amount); err != nil {
		return r, fmt.Errorf("invalid amount: %w", err)
	}
	if r.TaxAmount, err = parseAmount(in.TaxAmount); err != nil {
		return r, fmt.Errorf("invalid tax_amount: %w", err)
	}

	return r, nil
}

func parseAmount(raw *string) (*decimal.Decimal, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
