package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bibbank/invoice-anomaly/internal/application/dto"
	pkgkafka "github.com/bibbank/invoice-anomaly/pkg/kafka"
)

const sourceKafka = "kafka"

// BatchScorer is satisfied by usecase.ScoreBatch.
type BatchScorer interface {
	Execute(ctx context.Context, req dto.ScoreBatchRequest) (dto.BatchAssessmentResponse, error)
}

// BatchHandler turns invoice-batch messages into ScoreBatch calls. The tenant comes from
// the tenant_id header when the payload does not carry one.
type BatchHandler struct {
	scorer BatchScorer
	logger *slog.Logger
}

// NewBatchHandler creates a handler for the invoice batch topic.
func NewBatchHandler(scorer BatchScorer, logger *slog.Logger) *BatchHandler {
	return &BatchHandler{scorer: scorer, logger: logger}
}

// Handle decodes and scores one batch. A returned error sends the message to the
// dead-letter topic.
func (h *BatchHandler) Handle(ctx context.Context, msg pkgkafka.Message) error {
	var req dto.ScoreBatchRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return fmt.Errorf("failed to decode invoice batch: %w", err)
	}

	if req.TenantID == uuid.Nil {
		if raw, ok := msg.Headers["tenant_id"]; ok {
			tenantID, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("invalid tenant_id header: %w", err)
			}
			req.TenantID = tenantID
		}
	}
	req.Source = sourceKafka

	resp, err := h.scorer.Execute(ctx, req)
	if err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "consumed invoice batch",
		slog.String("assessment_id", resp.ID.String()),
		slog.String("key", string(msg.Key)),
		slog.Int("invoices", len(resp.Verdicts)),
		slog.Int("high_risk", resp.HighRiskCount),
	)
	return nil
}
