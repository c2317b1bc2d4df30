package service_test

import (
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
	"github.com/bibbank/invoice-anomaly/internal/domain/service"
)

var processingTime = time.Date(2024, time.June, 14, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func invoice(id, vendor, amt, date string) model.InvoiceRecord {
	r := model.InvoiceRecord{
		ID:          id,
		VendorRaw:   vendor,
		InvoiceDate: day(date),
	}
	if amt != "" {
		r.Amount = amount(amt)
	}
	return r
}

func testConfig() service.EngineConfig {
	cfg := service.DefaultEngineConfig()
	cfg.Clock = func() time.Time { return processingTime }
	return cfg
}
