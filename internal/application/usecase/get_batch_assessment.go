package usecase

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/bibbank/invoice-anomaly/internal/application/dto"
	"github.com/bibbank/invoice-anomaly/internal/domain/port"
)

// GetBatchAssessment is the use case for retrieving a scored batch.
type GetBatchAssessment struct {
	repo     port.AssessmentRepository
	validate *validator.Validate
}

// NewGetBatchAssessment creates a new GetBatchAssessment use case.
func NewGetBatchAssessment(repo port.AssessmentRepository) *GetBatchAssessment {
	return &GetBatchAssessment{repo: repo, validate: validator.New()}
}

// Execute retrieves a batch assessment by ID.
func (uc *GetBatchAssessment) Execute(ctx context.Context, req dto.GetBatchAssessmentRequest) (dto.BatchAssessmentResponse, error) {
	if err := uc.validate.Struct(&req); err != nil {
		return dto.BatchAssessmentResponse{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	assessment, err := uc.repo.FindByID(ctx, req.TenantID, req.AssessmentID)
	if err != nil {
		return dto.BatchAssessmentResponse{}, fmt.Errorf("failed to find assessment: %w", err)
	}
	if assessment == nil {
		return dto.BatchAssessmentResponse{}, fmt.Errorf("assessment %s: %w", req.AssessmentID, ErrNotFound)
	}

	return dto.FromModel(assessment), nil
}
