package service_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
	"github.com/bibbank/invoice-anomaly/internal/domain/service"
)

func scoreStatistical(t *testing.T, records []model.InvoiceRecord) ([][]model.SignalScore, []model.StatisticsWarning) {
	t.Helper()
	_, stats, err := service.NewFeatureExtractor().Extract(records)
	require.NoError(t, err)
	return service.NewStatisticalScorer().Score(records, stats)
}

func TestStatisticalScorer_VendorOutlier(t *testing.T) {
	records := []model.InvoiceRecord{
		invoice("inv-1", "Acme", "100", "2024-06-03"),
		invoice("inv-2", "Acme", "102", "2024-06-03"),
		invoice("inv-3", "Acme", "10000", "2024-06-03"),
	}

	signals, warnings := scoreStatistical(t, records)
	require.Len(t, signals, 3)
	assert.Empty(t, warnings)

	require.Len(t, signals[2], 1)
	outlier := signals[2][0]
	assert.Equal(t, model.CodeZScoreDeviation, outlier.Code)
	assert.Equal(t, 1.0, outlier.Value)
	assert.Contains(t, outlier.Reason, "above vendor mean")

	for _, i := range []int{0, 1} {
		require.Len(t, signals[i], 1)
		assert.InDelta(t, 0.0, signals[i][0].Value, 0.01, "record %d", i)
	}
}

func TestStatisticalScorer_BelowVendorMean(t *testing.T) {
	records := []model.InvoiceRecord{
		invoice("inv-1", "Acme", "1000", "2024-06-03"),
		invoice("inv-2", "Acme", "1010", "2024-06-03"),
		invoice("inv-3", "Acme", "990", "2024-06-03"),
		invoice("inv-4", "Acme", "5", "2024-06-03"),
	}

	signals, _ := scoreStatistical(t, records)

	require.Len(t, signals[3], 1)
	assert.Equal(t, 1.0, signals[3][0].Value)
	assert.Contains(t, signals[3][0].Reason, "below vendor mean")
}

func TestStatisticalScorer_IdenticalAmountsAreNeutral(t *testing.T) {
	records := []model.InvoiceRecord{
		invoice("inv-1", "Acme", "50.00", "2024-06-03"),
		invoice("inv-2", "Acme", "50.00", "2024-06-03"),
	}

	signals, warnings := scoreStatistical(t, records)

	require.Len(t, warnings, 1)
	assert.Equal(t, "batch", warnings[0].Scope)
	for _, s := range signals {
		require.Len(t, s, 1)
		assert.Equal(t, 0.0, s[0].Value)
		assert.Equal(t, "insufficient vendor history", s[0].Reason)
		assert.Equal(t, model.CodeInsufficientHistory, s[0].Code)
	}
}

func TestStatisticalScorer_SingleRecordIsNeutral(t *testing.T) {
	signals, warnings := scoreStatistical(t, []model.InvoiceRecord{
		invoice("inv-1", "Acme", "50.00", "2024-06-03"),
	})

	require.Len(t, warnings, 1)
	require.Len(t, signals[0], 1)
	assert.Equal(t, 0.0, signals[0][0].Value)
}

func TestStatisticalScorer_VendorWithoutVarianceWarns(t *testing.T) {
	records := []model.InvoiceRecord{
		invoice("inv-1", "Initech", "500", "2024-06-03"),
		invoice("inv-2", "Initech", "500", "2024-06-04"),
		invoice("inv-3", "Initech", "500", "2024-06-05"),
		invoice("inv-4", "Umbrella", "100", "2024-06-05"),
	}

	signals, warnings := scoreStatistical(t, records)

	require.Len(t, warnings, 1, "one warning per vendor, not per record")
	assert.Equal(t, "vendor", warnings[0].Scope)
	assert.Equal(t, "initech", warnings[0].Key)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0.0, signals[i][0].Value)
	}
}

func TestStatisticalScorer_IQROutlierAtBatchLevel(t *testing.T) {
	amounts := []string{"10", "10", "10", "10", "10", "10", "10", "10", "10", "20", "20", "20"}
	records := make([]model.InvoiceRecord, len(amounts))
	for i, a := range amounts {
		records[i] = invoice(fmt.Sprintf("inv-%d", i), fmt.Sprintf("vendor %d", i), a, "2024-06-03")
	}

	signals, _ := scoreStatistical(t, records)

	top := signals[11][0]
	assert.Equal(t, model.CodeIQROutlier, top.Code)
	assert.Equal(t, 0.6, top.Value)
	assert.Equal(t, "amount outside batch IQR fence [6.25, 16.25]", top.Reason)

	assert.Equal(t, model.CodeZScoreDeviation, signals[0][0].Code)
	assert.Less(t, signals[0][0].Value, 0.4)
}

func TestStatisticalScorer_MissingAmountGetsNoSignal(t *testing.T) {
	records := []model.InvoiceRecord{
		invoice("inv-1", "Acme", "100", "2024-06-03"),
		invoice("inv-2", "Acme", "", "2024-06-03"),
		invoice("inv-3", "Acme", "300", "2024-06-03"),
		invoice("inv-4", "Acme", "200", "2024-06-03"),
	}

	signals, _ := scoreStatistical(t, records)

	assert.Nil(t, signals[1])
	for _, i := range []int{0, 2, 3} {
		assert.Len(t, signals[i], 1)
	}
}

func TestStatisticalScorer_ValuesInUnitInterval(t *testing.T) {
	amounts := []string{"-40", "0", "12.5", "99999", "13", "14", "1000000", "15"}
	records := make([]model.InvoiceRecord, len(amounts))
	for i, a := range amounts {
		records[i] = invoice(fmt.Sprintf("inv-%d", i), "Acme", a, "2024-06-03")
	}

	signals, _ := scoreStatistical(t, records)

	for i, s := range signals {
		for _, sig := range s {
			assert.GreaterOrEqual(t, sig.Value, 0.0, "record %d", i)
			assert.LessOrEqual(t, sig.Value, 1.0, "record %d", i)
		}
	}
}

// ordinaryBatch is twelve unremarkable invoices spread over three vendors.
func ordinaryBatch() []model.InvoiceRecord {
	amounts := map[string][]string{
		"Acme":  {"100", "99", "104", "110"},
		"Beta":  {"95", "101", "98", "103"},
		"Gamma": {"107", "100", "102", "97"},
	}
	var records []model.InvoiceRecord
	for _, vendor := range []string{"Acme", "Beta", "Gamma"} {
		for i, a := range amounts[vendor] {
			records = append(records, invoice(
				fmt.Sprintf("%s-%d", vendor, i), vendor, a, fmt.Sprintf("2024-06-%02d", 3+i),
			))
		}
	}
	return records
}

func TestStatisticalScorer_OrdinaryAmountsStayLow(t *testing.T) {
	records := ordinaryBatch()

	signals, warnings := scoreStatistical(t, records)
	assert.Empty(t, warnings)

	for i, s := range signals {
		require.Len(t, s, 1, "record %d", i)
		assert.Less(t, s[0].Value, 0.4, "record %s: %s", records[i].ID, s[0].Reason)
		assert.Equal(t, model.CodeZScoreDeviation, s[0].Code, "record %s", records[i].ID)
	}

	// 110 against peers 100, 99 and 104.
	top := signals[3][0]
	assert.Equal(t, "amount 1.8σ above vendor mean", top.Reason)
	assert.InDelta(t, 0.26, top.Value, 0.01)
}

func TestStatisticalScorer_IQRNeedsFourAmounts(t *testing.T) {
	tests := []struct {
		name     string
		amounts  []string
		wantCode model.SignalCode
	}{
		{name: "three amounts use z-score only", amounts: []string{"1", "100", "210"}, wantCode: model.CodeZScoreDeviation},
		{name: "four amounts get fences", amounts: []string{"1", "100", "100", "210"}, wantCode: model.CodeIQROutlier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := make([]model.InvoiceRecord, len(tt.amounts))
			for i, a := range tt.amounts {
				records[i] = invoice(fmt.Sprintf("inv-%d", i), fmt.Sprintf("vendor %d", i), a, "2024-06-03")
			}

			signals, _ := scoreStatistical(t, records)

			for i, s := range signals {
				require.Len(t, s, 1, "record %d", i)
			}
			assert.Equal(t, tt.wantCode, signals[len(signals)-1][0].Code)
		})
	}
}
