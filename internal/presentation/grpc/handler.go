package grpc

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bibbank/invoice-anomaly/internal/application/dto"
	"github.com/bibbank/invoice-anomaly/internal/application/usecase"
	"github.com/bibbank/invoice-anomaly/internal/domain/service"
	"github.com/bibbank/invoice-anomaly/pkg/auth"
)

// tenantIDFromContext extracts the tenant ID from the JWT claims in the context.
func tenantIDFromContext(ctx context.Context) (uuid.UUID, error) {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return uuid.Nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	return claims.TenantID, nil
}

// Compile-time assertion that AnomalyServiceHandler implements AnomalyServiceServer.
var _ AnomalyServiceServer = (*AnomalyServiceHandler)(nil)

// AnomalyServiceHandler implements the gRPC AnomalyServiceServer interface.
type AnomalyServiceHandler struct {
	UnimplementedAnomalyServiceServer
	scoreBatch         *usecase.ScoreBatch
	getBatchAssessment *usecase.GetBatchAssessment
	getInvoiceVerdict  *usecase.GetInvoiceVerdict
	logger             *slog.Logger
}

// NewAnomalyServiceHandler creates a new gRPC handler.
func NewAnomalyServiceHandler(
	scoreBatch *usecase.ScoreBatch,
	getBatchAssessment *usecase.GetBatchAssessment,
	getInvoiceVerdict *usecase.GetInvoiceVerdict,
	logger *slog.Logger,
) *AnomalyServiceHandler {
	return &AnomalyServiceHandler{
		scoreBatch:         scoreBatch,
		getBatchAssessment: getBatchAssessment,
		getInvoiceVerdict:  getInvoiceVerdict,
		logger:             logger,
	}
}

// ScoreBatchRequest represents the proto ScoreBatchRequest message. The tenant is
// taken from the caller's token.
type ScoreBatchRequest struct {
	Invoices []dto.InvoiceInput `json:"invoices"`
}

// ScoreBatchResponse represents the proto ScoreBatchResponse message.
type ScoreBatchResponse struct {
	Assessment *dto.BatchAssessmentResponse `json:"assessment"`
}

// GetBatchAssessmentRequest represents the proto GetBatchAssessmentRequest message.
type GetBatchAssessmentRequest struct {
	ID string `json:"id"`
}

// GetBatchAssessmentResponse represents the proto GetBatchAssessmentResponse message.
type GetBatchAssessmentResponse struct {
	Assessment *dto.BatchAssessmentResponse `json:"assessment"`
}

// GetInvoiceVerdictRequest represents the proto GetInvoiceVerdictRequest message.
type GetInvoiceVerdictRequest struct {
	InvoiceID string `json:"invoice_id"`
}

// GetInvoiceVerdictResponse represents the proto GetInvoiceVerdictResponse message.
type GetInvoiceVerdictResponse struct {
	Verdict *dto.VerdictResponse `json:"verdict"`
}

// ScoreBatch scores a batch of invoices for the caller's tenant.
func (h *AnomalyServiceHandler) ScoreBatch(ctx context.Context, req *ScoreBatchRequest) (*ScoreBatchResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	tenantID, err := tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	h.logger.Info("scoring invoice batch",
		slog.String("tenant_id", tenantID.String()),
		slog.Int("invoices", len(req.Invoices)),
	)

	result, err := h.scoreBatch.Execute(ctx, dto.ScoreBatchRequest{
		TenantID: tenantID,
		Source:   "api",
		Invoices: req.Invoices,
	})
	if err != nil {
		return nil, h.toStatus("failed to score batch", err)
	}

	return &ScoreBatchResponse{Assessment: &result}, nil
}

// GetBatchAssessment returns a previously scored batch.
func (h *AnomalyServiceHandler) GetBatchAssessment(ctx context.Context, req *GetBatchAssessmentRequest) (*GetBatchAssessmentResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	tenantID, err := tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	assessmentID, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid id: %v", err)
	}

	result, err := h.getBatchAssessment.Execute(ctx, dto.GetBatchAssessmentRequest{
		TenantID:     tenantID,
		AssessmentID: assessmentID,
	})
	if err != nil {
		return nil, h.toStatus("failed to get batch assessment", err)
	}

	return &GetBatchAssessmentResponse{Assessment: &result}, nil
}

// GetInvoiceVerdict returns the latest verdict recorded for an invoice.
func (h *AnomalyServiceHandler) GetInvoiceVerdict(ctx context.Context, req *GetInvoiceVerdictRequest) (*GetInvoiceVerdictResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	tenantID, err := tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	result, err := h.getInvoiceVerdict.Execute(ctx, dto.GetInvoiceVerdictRequest{
		TenantID:  tenantID,
		InvoiceID: req.InvoiceID,
	})
	if err != nil {
		return nil, h.toStatus("failed to get invoice verdict", err)
	}

	return &GetInvoiceVerdictResponse{Verdict: &result}, nil
}

// toStatus maps use case errors onto gRPC codes. Internal errors are logged and
// their details withheld from the caller.
func (h *AnomalyServiceHandler) toStatus(msg string, err error) error {
	var insufficient *service.InsufficientDataError
	var cfgErr *service.ConfigurationError

	switch {
	case errors.Is(err, usecase.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, usecase.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &insufficient):
		return status.Error(codes.FailedPrecondition, insufficient.Error())
	case errors.As(err, &cfgErr):
		h.logger.Error(msg, slog.String("error", err.Error()))
		return status.Error(codes.FailedPrecondition, cfgErr.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		h.logger.Error(msg, slog.String("error", err.Error()))
		return status.Error(codes.Internal, "internal error")
	}
}
