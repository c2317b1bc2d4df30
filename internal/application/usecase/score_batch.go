package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bibbank/invoice-anomaly/internal/application/dto"
	"github.com/bibbank/invoice-anomaly/internal/domain/model"
	"github.com/bibbank/invoice-anomaly/internal/domain/port"
	"github.com/bibbank/invoice-anomaly/internal/domain/service"
)

// ModelHandles hands out the per-tenant ML model handle.
type ModelHandles interface {
	Handle(tenantID uuid.UUID) *service.ModelHandle
}

// BatchRecorder observes scored batches. Implemented by the metrics collectors.
type BatchRecorder interface {
	ObserveBatch(source string, result model.BatchResult, elapsed time.Duration)
	ObserveFailure(source string, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveBatch(string, model.BatchResult, time.Duration) {}
func (nopRecorder) ObserveFailure(string, error)                          {}

// ScoreBatch is the use case for scoring an invoice batch and recording the verdicts.
type ScoreBatch struct {
	repo      port.AssessmentRepository
	publisher port.EventPublisher
	engine    *service.Engine
	models    ModelHandles
	recorder  BatchRecorder
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewScoreBatch creates a new ScoreBatch use case. models and recorder may be nil.
func NewScoreBatch(
	repo port.AssessmentRepository,
	publisher port.EventPublisher,
	engine *service.Engine,
	models ModelHandles,
	recorder BatchRecorder,
	logger *slog.Logger,
) *ScoreBatch {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScoreBatch{
		repo:      repo,
		publisher: publisher,
		engine:    engine,
		models:    models,
		recorder:  recorder,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Execute validates the batch, scores it, persists the assessment and publishes its events.
func (uc *ScoreBatch) Execute(ctx context.Context, req dto.ScoreBatchRequest) (dto.BatchAssessmentResponse, error) {
	// 1. Validate and convert the request.
	if err := uc.validate.Struct(&req); err != nil {
		return dto.BatchAssessmentResponse{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	records, err := dto.ToRecords(req.Invoices)
	if err != nil {
		return dto.BatchAssessmentResponse{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	// 2. Score the batch.
	var opts []service.ScoreOption
	if uc.models != nil {
		opts = append(opts, service.WithModelHandle(uc.models.Handle(req.TenantID)))
	}
	start := time.Now()
	result, err := uc.engine.Score(ctx, records, opts...)
	if err != nil {
		uc.recorder.ObserveFailure(req.Source, err)
		return dto.BatchAssessmentResponse{}, fmt.Errorf("failed to score batch: %w", err)
	}
	uc.recorder.ObserveBatch(req.Source, result, time.Since(start))

	// 3. Build the aggregate (this records the domain events).
	assessment, err := model.NewBatchAssessment(req.TenantID, req.Source, result)
	if err != nil {
		return dto.BatchAssessmentResponse{}, fmt.Errorf("failed to create assessment: %w", err)
	}

	// 4. Persist the assessment.
	if err := uc.repo.Save(ctx, assessment); err != nil {
		return dto.BatchAssessmentResponse{}, fmt.Errorf("failed to save assessment: %w", err)
	}

	// 5. Publish domain events.
	if events := assessment.Drain(); len(events) > 0 {
		if err := uc.publisher.Publish(ctx, events...); err != nil {
			return dto.BatchAssessmentResponse{}, fmt.Errorf("failed to publish events: %w", err)
		}
	}

	resp := dto.FromModel(assessment)
	uc.logger.Info("invoice batch scored",
		slog.String("assessment_id", assessment.ID().String()),
		slog.String("tenant_id", req.TenantID.String()),
		slog.Int("invoices", len(records)),
		slog.Int("high_risk", resp.HighRiskCount),
		slog.String("model_version", resp.ModelVersion),
	)
	return resp, nil
}
