package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/parkgrid-api/internal/models"
	appErrors "github.com/noah-isme/parkgrid-api/pkg/errors"
)

type issueRepository interface {
	ListByLot(ctx context.Context, lotID, spotLabel string) ([]models.Issue, error)
	Create(ctx context.Context, issue *models.Issue) error
}

type issueSpotRepository interface {
	FindByLabel(ctx context.Context, lotID, label string) (*models.Spot, error)
}

// CreateIssueRequest describes a new trouble ticket against a spot.
type CreateIssueRequest struct {
	LotID       string `json:"lot_id" validate:"required"`
	SpotLabel   string `json:"spot_label" validate:"required"`
	ReporterID  string `json:"reporter_id" validate:"required"`
	Description string `json:"description" validate:"required"`
}

// IssueService is a thin pass-through; ticket workflow lives elsewhere.
type IssueService struct {
	issues    issueRepository
	spots     issueSpotRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewIssueService instantiates IssueService.
func NewIssueService(issues issueRepository, spots issueSpotRepository, validate *validator.Validate, logger *zap.Logger) *IssueService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IssueService{issues: issues, spots: spots, validator: validate, logger: logger}
}

// ListByLot returns issues for a lot, optionally narrowed to one label.
func (s *IssueService) ListByLot(ctx context.Context, lotID, spotLabel string) ([]models.Issue, error) {
	issues, err := s.issues.ListByLot(ctx, lotID, spotLabel)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list issues")
	}
	return issues, nil
}

// Create files a ticket after confirming the spot exists.
func (s *IssueService) Create(ctx context.Context, req CreateIssueRequest) (*models.Issue, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid issue payload")
	}
	if _, err := s.spots.FindByLabel(ctx, req.LotID, req.SpotLabel); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidSpot, "spot "+req.SpotLabel+" does not exist in lot")
	}

	issue := models.Issue{
		LotID:       req.LotID,
		SpotLabel:   req.SpotLabel,
		ReporterID:  req.ReporterID,
		Description: req.Description,
	}
	if err := s.issues.Create(ctx, &issue); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create issue")
	}
	return &issue, nil
}
