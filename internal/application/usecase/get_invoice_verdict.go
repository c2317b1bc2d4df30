package usecase

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/bibbank/invoice-anomaly/internal/application/dto"
	"github.com/bibbank/invoice-anomaly/internal/domain/port"
)

// GetInvoiceVerdict is the use case for retrieving the latest verdict of one invoice.
type GetInvoiceVerdict struct {
	repo     port.AssessmentRepository
	validate *validator.Validate
}

// NewGetInvoiceVerdict creates a new GetInvoiceVerdict use case.
func NewGetInvoiceVerdict(repo port.AssessmentRepository) *GetInvoiceVerdict {
	return &GetInvoiceVerdict{repo: repo, validate: validator.New()}
}

// Execute retrieves the most recent verdict recorded for the invoice.
func (uc *GetInvoiceVerdict) Execute(ctx context.Context, req dto.GetInvoiceVerdictRequest) (dto.VerdictResponse, error) {
	if err := uc.validate.Struct(&req); err != nil {
		return dto.VerdictResponse{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	verdict, err := uc.repo.FindLatestVerdict(ctx, req.TenantID, req.InvoiceID)
	if err != nil {
		return dto.VerdictResponse{}, fmt.Errorf("failed to find verdict: %w", err)
	}
	if verdict == nil {
		return dto.VerdictResponse{}, fmt.Errorf("verdict for invoice %s: %w", req.InvoiceID, ErrNotFound)
	}

	return dto.FromVerdict(*verdict), nil
}
