package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
	"github.com/bibbank/invoice-anomaly/internal/domain/service"
	"github.com/bibbank/invoice-anomaly/internal/domain/valueobject"
	"github.com/bibbank/invoice-anomaly/internal/infrastructure/ml"
)

func newEngine(t *testing.T, cfg service.EngineConfig) *service.Engine {
	t.Helper()
	forest, err := ml.NewIsolationForest(ml.DefaultIsolationForestConfig(), discardLogger())
	require.NoError(t, err)
	engine, err := service.NewEngine(cfg, forest, discardLogger())
	require.NoError(t, err)
	return engine
}

// mixedBatch returns n invoices from a handful of vendors with one large outlier last.
func mixedBatch(n int) []model.InvoiceRecord {
	vendors := []string{"Acme", "Globex", "Initech", "Umbrella"}
	records := make([]model.InvoiceRecord, 0, n)
	for i := 0; i < n-1; i++ {
		records = append(records, invoice(
			fmt.Sprintf("inv-%02d", i),
			vendors[i%len(vendors)],
			fmt.Sprintf("%d.%02d", 200+i*7, i),
			fmt.Sprintf("2024-05-%02d", 1+i%28),
		))
	}
	return append(records, invoice(fmt.Sprintf("inv-%02d", n-1), "Acme", "98000.00", "2024-05-20"))
}

func hasSource(v model.AnomalyVerdict, src valueobject.SignalSource) bool {
	for _, s := range v.Signals {
		if s.Source == src {
			return true
		}
	}
	return false
}

func TestNewEngine_RejectsInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*service.EngineConfig)
		field  string
	}{
		{
			name: "negative weight",
			mutate: func(c *service.EngineConfig) {
				c.SourceWeights = map[valueobject.SignalSource]float64{valueobject.SourceML: -1}
			},
			field: "source_weights",
		},
		{
			name: "unknown source",
			mutate: func(c *service.EngineConfig) {
				c.SourceWeights = map[valueobject.SignalSource]float64{"velocity": 1}
			},
			field: "source_weights",
		},
		{
			name: "all weights zero",
			mutate: func(c *service.EngineConfig) {
				c.SourceWeights = map[valueobject.SignalSource]float64{
					valueobject.SourceStatistical:  0,
					valueobject.SourceDuplicate:    0,
					valueobject.SourceML:           0,
					valueobject.SourceBusinessRule: 0,
				}
			},
			field: "source_weights",
		},
		{
			name:   "negative threshold",
			mutate: func(c *service.EngineConfig) { c.RiskThresholds.Medium = -0.1 },
			field:  "risk_thresholds",
		},
		{
			name: "medium above high",
			mutate: func(c *service.EngineConfig) {
				c.RiskThresholds = valueobject.RiskThresholds{Medium: 0.8, High: 0.5}
			},
			field: "risk_thresholds",
		},
		{
			name:   "precision out of range",
			mutate: func(c *service.EngineConfig) { c.CurrencyPrecision = 9 },
			field:  "currency_precision",
		},
		{
			name:   "ml minimum too small",
			mutate: func(c *service.EngineConfig) { c.MLMinBatchSize = 1 },
			field:  "ml_min_batch_size",
		},
		{
			name:   "negative ceiling",
			mutate: func(c *service.EngineConfig) { c.AmountCeiling = amount("-1") },
			field:  "amount_ceiling",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			_, err := service.NewEngine(cfg, nil, discardLogger())

			var cfgErr *service.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.True(t, service.IsHalting(err))
		})
	}
}

func TestEngine_EmptyBatchHalts(t *testing.T) {
	result, err := newEngine(t, testConfig()).Score(context.Background(), nil)

	var insufficient *service.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Empty(t, result.Verdicts)
}

func TestEngine_VendorOutlierScenario(t *testing.T) {
	records := []model.InvoiceRecord{
		invoice("inv-1", "Acme", "100", "2024-06-03"),
		invoice("inv-2", "Acme", "102", "2024-06-03"),
		invoice("inv-3", "Acme", "10000", "2024-06-03"),
	}

	result, err := newEngine(t, testConfig()).Score(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, result.Verdicts, 3)

	outlier := result.Verdicts[2]
	assert.Equal(t, valueobject.RiskLevelHigh, outlier.RiskLevel)
	assert.Equal(t, valueobject.SourceStatistical, outlier.Signals[0].Source)
	assert.Contains(t, outlier.TopReason(), "σ above vendor mean")
	assert.Equal(t, valueobject.CategoryStatistical, outlier.Category)

	assert.Equal(t, valueobject.RiskLevelLow, result.Verdicts[0].RiskLevel)
	assert.Equal(t, valueobject.RiskLevelLow, result.Verdicts[1].RiskLevel)
}

func TestEngine_OrdinaryBatchHasNoMediumVerdicts(t *testing.T) {
	engine, err := service.NewEngine(testConfig(), nil, discardLogger())
	require.NoError(t, err)

	result, err := engine.Score(context.Background(), ordinaryBatch())
	require.NoError(t, err)
	for _, v := range result.Verdicts {
		assert.Equal(t, valueobject.RiskLevelLow, v.RiskLevel, "%s: %s", v.InvoiceID, v.TopReason())
	}

	records := append(ordinaryBatch(), invoice("acme-big", "Acme", "10000", "2024-06-07"))
	result, err = engine.Score(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, valueobject.RiskLevelHigh, result.Verdicts[len(records)-1].RiskLevel)
}

func TestEngine_DuplicateScenario(t *testing.T) {
	records := []model.InvoiceRecord{
		invoice("inv-1", "Acme", "450.00", "2024-06-03"),
		invoice("inv-2", "Acme", "450.00", "2024-06-03"),
	}

	result, err := newEngine(t, testConfig()).Score(context.Background(), records)
	require.NoError(t, err)

	for _, v := range result.Verdicts {
		require.NotEmpty(t, v.Signals)
		assert.Equal(t, valueobject.SourceDuplicate, v.Signals[0].Source)
		assert.Equal(t, 0.9, v.Signals[0].Value)
		assert.NotEqual(t, valueobject.RiskLevelLow, v.RiskLevel)
		assert.Equal(t, valueobject.CategoryDuplicate, v.Category)
	}
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "batch", result.Warnings[0].Scope)
	require.Len(t, result.DuplicateGroups, 1)
	assert.True(t, result.DuplicateGroups[0].IsDuplicate())
}

func TestEngine_NegativeAmountScenario(t *testing.T) {
	records := mixedBatch(12)
	records[3] = invoice("inv-neg", "Globex", "-50", "2024-05-04")

	result, err := newEngine(t, testConfig()).Score(context.Background(), records)
	require.NoError(t, err)

	v := result.Verdicts[3]
	assert.Equal(t, 1.0, v.Score)
	assert.Equal(t, valueobject.RiskLevelHigh, v.RiskLevel)
	assert.Equal(t, "non-positive amount", v.TopReason())
}

func TestEngine_OneVerdictPerRecordInOrder(t *testing.T) {
	for _, n := range []int{1, 2, 5, 10, 40} {
		t.Run(fmt.Sprintf("batch of %d", n), func(t *testing.T) {
			records := mixedBatch(n)

			result, err := newEngine(t, testConfig()).Score(context.Background(), records)
			require.NoError(t, err)
			require.Len(t, result.Verdicts, n)

			for i, v := range result.Verdicts {
				assert.Equal(t, records[i].ID, v.InvoiceID)
				assert.GreaterOrEqual(t, v.Score, 0.0)
				assert.LessOrEqual(t, v.Score, 1.0)
				assert.Equal(t, valueobject.RiskLevelFromScore(v.Score, valueobject.DefaultRiskThresholds()), v.RiskLevel)
			}
		})
	}
}

func TestEngine_MLAbstainsBelowMinimum(t *testing.T) {
	result, err := newEngine(t, testConfig()).Score(context.Background(), mixedBatch(9))
	require.NoError(t, err)

	require.Len(t, result.Abstentions, 1)
	assert.Equal(t, "batch too small for ML scoring", result.Abstentions[0].Reason)
	for _, v := range result.Verdicts {
		assert.False(t, hasSource(v, valueobject.SourceML))
		assert.Contains(t, v.Abstentions, model.Abstention{
			Source: valueobject.SourceML,
			Reason: "batch too small for ML scoring",
		})
		assert.Contains(t, v.ModelVersion, "ml-abstained")
	}
}

func TestEngine_MLScoresFullBatch(t *testing.T) {
	result, err := newEngine(t, testConfig()).Score(context.Background(), mixedBatch(30))
	require.NoError(t, err)

	assert.Empty(t, result.Abstentions)
	for _, v := range result.Verdicts {
		assert.True(t, hasSource(v, valueobject.SourceML))
		assert.Equal(t, service.EngineVersion+"+iforest-t100-s256-seed42", v.ModelVersion)
	}
	assert.Equal(t, valueobject.RiskLevelHigh, result.Verdicts[29].RiskLevel)
}

func TestEngine_Idempotent(t *testing.T) {
	records := mixedBatch(25)
	engine := newEngine(t, testConfig())

	first, err := engine.Score(context.Background(), records)
	require.NoError(t, err)
	second, err := engine.Score(context.Background(), records)
	require.NoError(t, err)

	a, err := json.Marshal(first.Verdicts)
	require.NoError(t, err)
	b, err := json.Marshal(second.Verdicts)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestEngine_SequentialMatchesParallel(t *testing.T) {
	records := mixedBatch(25)
	seqCfg := testConfig()
	seqCfg.Sequential = true

	parallel, err := newEngine(t, testConfig()).Score(context.Background(), records)
	require.NoError(t, err)
	sequential, err := newEngine(t, seqCfg).Score(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, parallel.Verdicts, sequential.Verdicts)
}

func TestEngine_MissingAmountAbstainsStatistical(t *testing.T) {
	records := []model.InvoiceRecord{
		invoice("inv-1", "Acme", "100", "2024-06-03"),
		invoice("inv-2", "Acme", "", "2024-06-03"),
		invoice("inv-3", "Acme", "130", "2024-06-03"),
	}

	result, err := newEngine(t, testConfig()).Score(context.Background(), records)
	require.NoError(t, err)

	v := result.Verdicts[1]
	assert.Contains(t, v.Abstentions, model.Abstention{Source: valueobject.SourceStatistical, Reason: "amount missing"})
	assert.Equal(t, 1.0, v.Score)
	assert.Equal(t, valueobject.CategoryDataQuality, v.Category)
}

func TestEngine_CanceledContextFailsWholeBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newEngine(t, testConfig()).Score(ctx, mixedBatch(20))

	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result.Verdicts)
	assert.False(t, service.IsHalting(err))
}

func TestEngine_ReusesModelForSmallBatch(t *testing.T) {
	cfg := testConfig()
	cfg.MLReuseLastModel = true
	engine := newEngine(t, cfg)
	handle := service.NewModelHandle()

	_, err := engine.Score(context.Background(), mixedBatch(20), service.WithModelHandle(handle))
	require.NoError(t, err)
	require.NotNil(t, handle.Load())

	result, err := engine.Score(context.Background(), mixedBatch(4), service.WithModelHandle(handle))
	require.NoError(t, err)

	assert.Empty(t, result.Abstentions)
	for _, v := range result.Verdicts {
		assert.True(t, hasSource(v, valueobject.SourceML))
	}
}
