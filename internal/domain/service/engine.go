package service

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
	"github.com/bibbank/invoice-anomaly/internal/domain/port"
	"github.com/bibbank/invoice-anomaly/internal/domain/valueobject"
	"github.com/bibbank/invoice-anomaly/pkg/observability"
)

// EngineVersion is stamped on every verdict together with the ML model version.
const EngineVersion = "anomaly-engine/1.2.0"

const reasonAmountMissing = "amount missing"

// Engine turns a batch of invoice records into one verdict per record. An Engine is
// safe for concurrent use; each Score call works on its own data.
type Engine struct {
	cfg        EngineConfig
	extractor  *FeatureExtractor
	stats      *StatisticalScorer
	duplicates *DuplicateDetector
	ml         *MLScorer
	rules      *RuleEngine
	aggregator *RiskAggregator
	logger     *slog.Logger
}

// NewEngine validates cfg and wires the scorers. detector may be nil, in which case
// the ML source abstains on every batch.
func NewEngine(cfg EngineConfig, detector port.OutlierDetector, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DuplicateWindow.IsZero() {
		cfg.DuplicateWindow = valueobject.DuplicateWindowDay
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cfg:        cfg,
		extractor:  NewFeatureExtractor(),
		stats:      NewStatisticalScorer(),
		duplicates: NewDuplicateDetector(cfg.DuplicateWindow, cfg.CurrencyPrecision),
		ml:         NewMLScorer(detector, cfg, logger),
		rules:      NewRuleEngine(cfg),
		aggregator: NewRiskAggregator(cfg),
		logger:     logger,
	}, nil
}

// Config returns the validated configuration.
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

// ScoreOption customizes a single Score call.
type ScoreOption func(*scoreOptions)

type scoreOptions struct {
	handle *ModelHandle
}

// WithModelHandle lets the call store its fitted model in h and, when reuse is
// enabled, score undersized batches with the model already held there.
func WithModelHandle(h *ModelHandle) ScoreOption {
	return func(o *scoreOptions) {
		o.handle = h
	}
}

// Score runs every scorer over the batch and aggregates the results. It either returns
// a verdict for every record, in input order, or an error and no verdicts.
func (e *Engine) Score(ctx context.Context, records []model.InvoiceRecord, opts ...ScoreOption) (model.BatchResult, error) {
	var o scoreOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := observability.StartSpan(ctx, "anomaly.engine.score",
		attribute.Int("batch.size", len(records)),
	)
	defer span.End()

	vectors, stats, err := e.extractor.Extract(records)
	if err != nil {
		span.RecordError(err)
		return model.BatchResult{}, err
	}

	var (
		statSignals [][]model.SignalScore
		warnings    []model.StatisticsWarning
		groups      []model.DuplicateGroup
		dupSignals  [][]model.SignalScore
		ruleSignals [][]model.SignalScore
		mlResult    MLResult
	)

	tasks := []func(context.Context) error{
		func(context.Context) error {
			statSignals, warnings = e.stats.Score(records, stats)
			return nil
		},
		func(context.Context) error {
			groups, dupSignals = e.duplicates.Detect(records)
			return nil
		},
		func(context.Context) error {
			ruleSignals = e.rules.Evaluate(records, stats)
			return nil
		},
		func(ctx context.Context) error {
			ctx, span := observability.StartSpan(ctx, "anomaly.engine.ml")
			defer span.End()
			mlResult = e.ml.Score(ctx, vectors, o.handle)
			return nil
		},
	}
	if err := e.run(ctx, tasks); err != nil {
		span.RecordError(err)
		return model.BatchResult{}, fmt.Errorf("scoring batch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		return model.BatchResult{}, fmt.Errorf("scoring batch: %w", err)
	}

	var batchAbstentions []model.Abstention
	if mlResult.Abstention != nil {
		batchAbstentions = append(batchAbstentions, *mlResult.Abstention)
		e.logger.Info("ML source abstained",
			slog.String("reason", mlResult.Abstention.Reason),
			slog.Int("batch_size", len(records)),
			slog.Int("ml_min_batch_size", e.cfg.MLMinBatchSize),
		)
	}
	for _, w := range warnings {
		e.logger.Info("degenerate statistics, using neutral scores",
			slog.String("scope", w.Scope),
			slog.String("key", w.Key),
			slog.String("reason", w.Reason),
		)
	}

	modelVersion := EngineVersion + "+" + mlResult.ModelVersion
	verdicts := make([]model.AnomalyVerdict, len(records))
	for i, r := range records {
		signals := make([]model.SignalScore, 0, 4)
		signals = append(signals, statSignals[i]...)
		signals = append(signals, dupSignals[i]...)
		if mlResult.Signals != nil {
			signals = append(signals, mlResult.Signals[i]...)
		}
		signals = append(signals, ruleSignals[i]...)

		v := e.aggregator.Aggregate(r.ID, signals)
		v.ModelVersion = modelVersion
		v.AmountImpact = amountImpact(r, v, e.cfg.TaxRate, e.cfg.CurrencyPrecision)
		v.Abstentions = append(v.Abstentions, batchAbstentions...)
		if !r.HasAmount() {
			v.Abstentions = append(v.Abstentions, model.Abstention{
				Source: valueobject.SourceStatistical,
				Reason: reasonAmountMissing,
			})
		}
		verdicts[i] = v
	}

	result := model.BatchResult{
		Stats:           stats,
		Verdicts:        verdicts,
		DuplicateGroups: groups,
		Abstentions:     batchAbstentions,
		Warnings:        warnings,
	}

	counts := result.CountByLevel()
	span.SetAttributes(
		attribute.Int("verdicts.high", counts[valueobject.RiskLevelHigh.String()]),
		attribute.Int("verdicts.medium", counts[valueobject.RiskLevelMedium.String()]),
		attribute.String("model.version", modelVersion),
	)
	e.logger.Debug("batch scored",
		slog.Int("batch_size", len(records)),
		slog.Int("high", counts[valueobject.RiskLevelHigh.String()]),
		slog.Int("medium", counts[valueobject.RiskLevelMedium.String()]),
		slog.String("model_version", modelVersion),
	)

	return result, nil
}

// run executes the scorers, in parallel unless the configuration asks otherwise.
// Scorers only read the shared batch data and write to their own result variables.
func (e *Engine) run(ctx context.Context, tasks []func(context.Context) error) error {
	if e.cfg.Sequential {
		for _, task := range tasks {
			if err := task(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error {
			return task(gctx)
		})
	}
	return g.Wait()
}
