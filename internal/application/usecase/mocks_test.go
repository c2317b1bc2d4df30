package usecase_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
	"github.com/bibbank/invoice-anomaly/internal/domain/service"
	"github.com/bibbank/invoice-anomaly/pkg/events"
)

// --- Mock implementations ---

type mockAssessmentRepository struct {
	savedAssessment       *model.BatchAssessment
	saveFunc              func(ctx context.Context, assessment *model.BatchAssessment) error
	findByIDFunc          func(ctx context.Context, tenantID, id uuid.UUID) (*model.BatchAssessment, error)
	findLatestVerdictFunc func(ctx context.Context, tenantID uuid.UUID, invoiceID string) (*model.AnomalyVerdict, error)
}

func (m *mockAssessmentRepository) Save(ctx context.Context, assessment *model.BatchAssessment) error {
	if m.saveFunc != nil {
		return m.saveFunc(ctx, assessment)
	}
	m.savedAssessment = assessment
	return nil
}

func (m *mockAssessmentRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.BatchAssessment, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, tenantID, id)
	}
	return nil, nil
}

func (m *mockAssessmentRepository) FindLatestVerdict(ctx context.Context, tenantID uuid.UUID, invoiceID string) (*model.AnomalyVerdict, error) {
	if m.findLatestVerdictFunc != nil {
		return m.findLatestVerdictFunc(ctx, tenantID, invoiceID)
	}
	return nil, nil
}

type mockEventPublisher struct {
	publishedEvents []events.DomainEvent
	publishFunc     func(ctx context.Context, evts ...events.DomainEvent) error
}

func (m *mockEventPublisher) Publish(ctx context.Context, evts ...events.DomainEvent) error {
	if m.publishFunc != nil {
		return m.publishFunc(ctx, evts...)
	}
	m.publishedEvents = append(m.publishedEvents, evts...)
	return nil
}

type mockRecorder struct {
	batches  int
	failures int
}

func (m *mockRecorder) ObserveBatch(string, model.BatchResult, time.Duration) { m.batches++ }
func (m *mockRecorder) ObserveFailure(string, error)                          { m.failures++ }

type mockModelHandles struct {
	requested []uuid.UUID
	handle    *service.ModelHandle
}

func (m *mockModelHandles) Handle(tenantID uuid.UUID) *service.ModelHandle {
	m.requested = append(m.requested, tenantID)
	return m.handle
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T) *service.Engine {
	t.Helper()
	cfg := service.DefaultEngineConfig()
	cfg.Clock = func() time.Time { return time.Date(2024, time.June, 14, 12, 0, 0, 0, time.UTC) }
	engine, err := service.NewEngine(cfg, nil, discardLogger())
	require.NoError(t, err)
	return engine
}
