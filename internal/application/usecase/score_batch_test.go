package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/invoice-anomaly/internal/application/dto"
	"github.com/bibbank/invoice-anomaly/internal/application/usecase"
	"github.com/bibbank/invoice-anomaly/internal/domain/event"
	"github.com/bibbank/invoice-anomaly/internal/domain/model"
	"github.com/bibbank/invoice-anomaly/internal/domain/service"
	"github.com/bibbank/invoice-anomaly/pkg/events"
)

func ptr[T any](v T) *T {
	return &v
}

func acmeBatch() dto.ScoreBatchRequest {
	return dto.ScoreBatchRequest{
		TenantID: uuid.New(),
		Source:   "api",
		Invoices: []dto.InvoiceInput{
			{ID: "a1", Vendor: "Acme", Amount: ptr("100.00"), InvoiceDate: "2024-06-01"},
			{ID: "a2", Vendor: "Acme", Amount: ptr("102.00"), InvoiceDate: "2024-06-02"},
			{ID: "a3", Vendor: "Acme", Amount: ptr("10000.00"), InvoiceDate: "2024-06-03"},
		},
	}
}

func TestScoreBatch_Execute(t *testing.T) {
	t.Run("scores, persists and publishes a batch", func(t *testing.T) {
		repo := &mockAssessmentRepository{}
		publisher := &mockEventPublisher{}
		recorder := &mockRecorder{}
		uc := usecase.NewScoreBatch(repo, publisher, newEngine(t), nil, recorder, discardLogger())

		req := acmeBatch()
		resp, err := uc.Execute(context.Background(), req)
		require.NoError(t, err)

		require.Len(t, resp.Verdicts, 3)
		assert.Equal(t, "a1", resp.Verdicts[0].InvoiceID)
		assert.Equal(t, "LOW", resp.Verdicts[0].RiskLevel)
		assert.Equal(t, "LOW", resp.Verdicts[1].RiskLevel)
		assert.Equal(t, "HIGH", resp.Verdicts[2].RiskLevel)
		assert.Equal(t, 1, resp.HighRiskCount)
		assert.Equal(t, req.TenantID, resp.TenantID)
		assert.Contains(t, resp.ModelVersion, service.EngineVersion)

		require.NotNil(t, repo.savedAssessment)
		assert.Equal(t, resp.ID, repo.savedAssessment.ID())
		assert.Empty(t, repo.savedAssessment.Pending(), "events should be drained after publishing")

		require.Len(t, publisher.publishedEvents, 2)
		assert.Equal(t, event.EventTypeBatchScored, publisher.publishedEvents[0].EventType())
		high, ok := publisher.publishedEvents[1].(event.HighRiskDetected)
		require.True(t, ok)
		assert.Equal(t, "a3", high.InvoiceID)

		assert.Equal(t, 1, recorder.batches)
		assert.Zero(t, recorder.failures)
	})

	t.Run("requests the tenant's model handle", func(t *testing.T) {
		models := &mockModelHandles{handle: service.NewModelHandle()}
		uc := usecase.NewScoreBatch(&mockAssessmentRepository{}, &mockEventPublisher{}, newEngine(t), models, nil, nil)

		req := acmeBatch()
		_, err := uc.Execute(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{req.TenantID}, models.requested)
	})

	t.Run("rejects a request without tenant", func(t *testing.T) {
		repo := &mockAssessmentRepository{}
		uc := usecase.NewScoreBatch(repo, &mockEventPublisher{}, newEngine(t), nil, nil, nil)

		req := acmeBatch()
		req.TenantID = uuid.Nil
		_, err := uc.Execute(context.Background(), req)

		assert.ErrorIs(t, err, usecase.ErrInvalidRequest)
		assert.Nil(t, repo.savedAssessment)
	})

	t.Run("rejects malformed invoice fields", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(*dto.InvoiceInput)
		}{
			{"missing id", func(in *dto.InvoiceInput) { in.ID = "" }},
			{"bad date", func(in *dto.InvoiceInput) { in.InvoiceDate = "June 1st" }},
			{"bad amount", func(in *dto.InvoiceInput) { in.Amount = ptr("12,50") }},
			{"negative line items", func(in *dto.InvoiceInput) { in.LineItemCount = ptr(-1) }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				uc := usecase.NewScoreBatch(&mockAssessmentRepository{}, &mockEventPublisher{}, newEngine(t), nil, nil, nil)
				req := acmeBatch()
				tt.mutate(&req.Invoices[1])

				_, err := uc.Execute(context.Background(), req)
				assert.ErrorIs(t, err, usecase.ErrInvalidRequest)
			})
		}
	})

	t.Run("empty batch halts with insufficient data", func(t *testing.T) {
		recorder := &mockRecorder{}
		uc := usecase.NewScoreBatch(&mockAssessmentRepository{}, &mockEventPublisher{}, newEngine(t), nil, recorder, nil)

		_, err := uc.Execute(context.Background(), dto.ScoreBatchRequest{TenantID: uuid.New()})

		require.Error(t, err)
		assert.True(t, service.IsHalting(err))
		var insufficient *service.InsufficientDataError
		assert.ErrorAs(t, err, &insufficient)
		assert.Equal(t, 1, recorder.failures)
	})

	t.Run("returns error when repository save fails", func(t *testing.T) {
		repo := &mockAssessmentRepository{
			saveFunc: func(context.Context, *model.BatchAssessment) error {
				return errors.New("database unavailable")
			},
		}
		publisher := &mockEventPublisher{}
		uc := usecase.NewScoreBatch(repo, publisher, newEngine(t), nil, nil, nil)

		_, err := uc.Execute(context.Background(), acmeBatch())

		assert.ErrorContains(t, err, "failed to save assessment")
		assert.Empty(t, publisher.publishedEvents)
	})

	t.Run("returns error when publishing fails", func(t *testing.T) {
		publisher := &mockEventPublisher{
			publishFunc: func(context.Context, ...events.DomainEvent) error {
				return errors.New("broker down")
			},
		}
		uc := usecase.NewScoreBatch(&mockAssessmentRepository{}, publisher, newEngine(t), nil, nil, nil)

		_, err := uc.Execute(context.Background(), acmeBatch())
		assert.ErrorContains(t, err, "failed to publish events")
	})
}
