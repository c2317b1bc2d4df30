package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
	"github.com/bibbank/invoice-anomaly/pkg/events"
)

// AssessmentRepository defines the persistence port for scored invoice batches.
type AssessmentRepository interface {
	// Save persists a batch assessment together with its verdicts and signals.
	Save(ctx context.Context, assessment *model.BatchAssessment) error

	// FindByID retrieves a batch assessment by its unique identifier.
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.BatchAssessment, error)

	// FindLatestVerdict retrieves the most recent verdict recorded for an invoice.
	FindLatestVerdict(ctx context.Context, tenantID uuid.UUID, invoiceID string) (*model.AnomalyVerdict, error)
}

// EventPublisher defines the port for publishing domain events.
type EventPublisher interface {
	// Publish sends one or more domain events to the messaging infrastructure.
	Publish(ctx context.Context, events ...events.DomainEvent) error
}
