package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/bibbank/invoice-anomaly/internal/domain/service"
	"github.com/bibbank/invoice-anomaly/internal/domain/valueobject"
	"github.com/bibbank/invoice-anomaly/internal/infrastructure/ml"
)

// EngineSettings are the engine knobs as they appear in the environment or in a
// YAML settings file. They are converted and validated by EngineConfig.
type EngineSettings struct {
	SourceWeights     map[string]float64         `yaml:"source_weights"`
	DuplicateWindow   string                     `yaml:"duplicate_window"`
	AmountCeiling     string                     `yaml:"amount_ceiling"`
	TaxRate           string                     `yaml:"tax_rate"`
	RulesEnabled      []string                   `yaml:"rules_enabled"`
	RulesDisabled     []string                   `yaml:"rules_disabled"`
	RiskThresholds    valueobject.RiskThresholds `yaml:"risk_thresholds"`
	MLFitBudget       time.Duration              `yaml:"ml_fit_budget"`
	MLSeed            uint64                     `yaml:"ml_seed"`
	MLMinBatchSize    int                        `yaml:"ml_min_batch_size"`
	MLTrees           int                        `yaml:"ml_trees"`
	MLSampleSize      int                        `yaml:"ml_sample_size"`
	CurrencyPrecision int32                      `yaml:"currency_precision"`
	MLReuseLastModel  bool                       `yaml:"ml_reuse_last_model"`
	Sequential        bool                       `yaml:"sequential"`
}

// DefaultEngineSettings mirrors service.DefaultEngineConfig and ml.DefaultIsolationForestConfig.
func DefaultEngineSettings() EngineSettings {
	engine := service.DefaultEngineConfig()
	forest := ml.DefaultIsolationForestConfig()
	return EngineSettings{
		DuplicateWindow:   engine.DuplicateWindow.String(),
		CurrencyPrecision: engine.CurrencyPrecision,
		TaxRate:           engine.TaxRate.String(),
		MLMinBatchSize:    engine.MLMinBatchSize,
		MLFitBudget:       engine.MLFitBudget,
		MLTrees:           forest.Trees,
		MLSampleSize:      forest.SampleSize,
		MLSeed:            forest.Seed,
		RiskThresholds:    engine.RiskThresholds,
	}
}

// LoadEngineFile reads settings from a YAML file. Keys missing from the file keep
// their defaults.
func LoadEngineFile(path string) (EngineSettings, error) {
	s := DefaultEngineSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("reading engine settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parsing engine settings %s: %w", path, err)
	}
	return s, nil
}

// EngineConfig converts the settings into a service.EngineConfig. Conversion errors are
// reported as *service.ConfigurationError; range checks happen in service.NewEngine.
func (s EngineSettings) EngineConfig() (service.EngineConfig, error) {
	cfg := service.DefaultEngineConfig()

	window, err := valueobject.DuplicateWindowFromString(s.DuplicateWindow)
	if err != nil {
		return cfg, &service.ConfigurationError{Field: "duplicate_window", Reason: err.Error()}
	}
	cfg.DuplicateWindow = window
	cfg.CurrencyPrecision = s.CurrencyPrecision
	cfg.MLMinBatchSize = s.MLMinBatchSize
	cfg.MLFitBudget = s.MLFitBudget
	cfg.MLReuseLastModel = s.MLReuseLastModel
	cfg.RiskThresholds = s.RiskThresholds
	cfg.Sequential = s.Sequential

	if s.AmountCeiling != "" {
		ceiling, err := decimal.NewFromString(s.AmountCeiling)
		if err != nil {
			return cfg, &service.ConfigurationError{Field: "amount_ceiling", Reason: err.Error()}
		}
		cfg.AmountCeiling = &ceiling
	}
	if s.TaxRate != "" {
		rate, err := decimal.NewFromString(s.TaxRate)
		if err != nil {
			return cfg, &service.ConfigurationError{Field: "tax_rate", Reason: err.Error()}
		}
		cfg.TaxRate = rate
	}

	if len(s.SourceWeights) > 0 {
		cfg.SourceWeights = make(map[valueobject.SignalSource]float64, len(s.SourceWeights))
		for name, w := range s.SourceWeights {
			cfg.SourceWeights[valueobject.SignalSource(name)] = w
		}
	}

	for _, name := range s.RulesEnabled {
		if err := cfg.Rules.Set(name, true); err != nil {
			return cfg, err
		}
	}
	for _, name := range s.RulesDisabled {
		if err := cfg.Rules.Set(name, false); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// ForestConfig returns the isolation forest hyperparameters.
func (s EngineSettings) ForestConfig() ml.IsolationForestConfig {
	return ml.IsolationForestConfig{
		Trees:      s.MLTrees,
		SampleSize: s.MLSampleSize,
		Seed:       s.MLSeed,
	}
}
