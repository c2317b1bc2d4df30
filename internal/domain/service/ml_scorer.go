package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
	"github.com/bibbank/invoice-anomaly/internal/domain/port"
	"github.com/bibbank/invoice-anomaly/internal/domain/valueobject"
)

const (
	// rawScoreBaseline is the isolation score of a point that is no easier to
	// isolate than average.
	rawScoreBaseline = 0.5
	// minNormalizationCeiling keeps batches without any real outlier from stretching
	// small score differences to the full range.
	minNormalizationCeiling = 0.75

	reasonBatchTooSmall   = "batch too small for ML scoring"
	reasonBudgetExceeded  = "model fit exceeded budget"
	reasonModelFitFailed  = "model fit failed"
	reasonNoDetector      = "no outlier detector configured"
	abstainedModelVersion = "ml-abstained"
)

// ModelHandle holds the last model fitted for one caller. The engine only reads it
// when reuse is enabled and a batch is below the ML minimum; it never creates one.
type ModelHandle struct {
	mu    sync.RWMutex
	model port.OutlierModel
}

// NewModelHandle returns an empty handle.
func NewModelHandle() *ModelHandle {
	return &ModelHandle{}
}

// Load returns the stored model, or nil.
func (h *ModelHandle) Load() port.OutlierModel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.model
}

// Store replaces the stored model.
func (h *ModelHandle) Store(m port.OutlierModel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.model = m
}

// Reset drops the stored model.
func (h *ModelHandle) Reset() {
	h.Store(nil)
}

// MLResult is the ML scorer's output for one batch. Exactly one of Signals and
// Abstention is set.
type MLResult struct {
	Abstention   *model.Abstention
	ModelVersion string
	Signals      [][]model.SignalScore
}

// MLScorer fits an unsupervised outlier model per batch and normalizes its scores.
type MLScorer struct {
	detector port.OutlierDetector
	logger   *slog.Logger
	minBatch int
	budget   time.Duration
	reuse    bool
}

// NewMLScorer creates an MLScorer. A nil detector makes the scorer abstain on every batch.
func NewMLScorer(detector port.OutlierDetector, cfg EngineConfig, logger *slog.Logger) *MLScorer {
	return &MLScorer{
		detector: detector,
		logger:   logger,
		minBatch: cfg.MLMinBatchSize,
		budget:   cfg.MLFitBudget,
		reuse:    cfg.MLReuseLastModel,
	}
}

// Score fits a model on the feature matrix and scores every record with it. Fit
// failures and budget overruns become abstentions; they never fail the batch.
func (s *MLScorer) Score(ctx context.Context, vectors []model.FeatureVector, handle *ModelHandle) MLResult {
	if s.detector == nil {
		return s.abstain(reasonNoDetector)
	}

	if len(vectors) < s.minBatch {
		if s.reuse && handle != nil {
			if m := handle.Load(); m != nil {
				s.logger.Info("scoring small batch with previously fitted model",
					slog.Int("batch_size", len(vectors)),
					slog.String("model_version", m.Version()),
				)
				return s.scoreWith(m, vectors)
			}
		}
		return s.abstain(reasonBatchTooSmall)
	}

	matrix := make([][]float64, len(vectors))
	for i, v := range vectors {
		matrix[i] = v.Slice()
	}

	fitCtx := ctx
	if s.budget > 0 {
		var cancel context.CancelFunc
		fitCtx, cancel = context.WithTimeout(ctx, s.budget)
		defer cancel()
	}

	m, err := s.detector.Fit(fitCtx, matrix)
	if err != nil {
		reason := reasonModelFitFailed
		if errors.Is(err, ErrModelBudgetExceeded) || errors.Is(err, context.DeadlineExceeded) {
			reason = reasonBudgetExceeded
		}
		s.logger.Warn("ML fit failed, scoring without ML signal",
			slog.String("reason", reason),
			slog.Int("batch_size", len(vectors)),
			slog.String("error", err.Error()),
		)
		return s.abstain(reason)
	}

	if handle != nil {
		handle.Store(m)
	}
	return s.scoreWith(m, vectors)
}

func (s *MLScorer) scoreWith(m port.OutlierModel, vectors []model.FeatureVector) MLResult {
	raw := make([]float64, len(vectors))
	maxRaw := 0.0
	for i, v := range vectors {
		raw[i] = m.Score(v.Slice())
		maxRaw = math.Max(maxRaw, raw[i])
	}

	span := math.Max(maxRaw, minNormalizationCeiling) - rawScoreBaseline
	signals := make([][]model.SignalScore, len(vectors))
	for i, r := range raw {
		signals[i] = []model.SignalScore{{
			Source: valueobject.SourceML,
			Code:   model.CodeIsolationForest,
			Value:  clamp01((r - rawScoreBaseline) / span),
			Reason: fmt.Sprintf("isolation forest outlier score %.3f", r),
		}}
	}

	return MLResult{Signals: signals, ModelVersion: m.Version()}
}

func (s *MLScorer) abstain(reason string) MLResult {
	return MLResult{
		Abstention:   &model.Abstention{Source: valueobject.SourceML, Reason: reason},
		ModelVersion: abstainedModelVersion,
	}
}
