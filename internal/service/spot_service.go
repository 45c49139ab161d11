package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/parkgrid-api/internal/models"
	appErrors "github.com/noah-isme/parkgrid-api/pkg/errors"
)

type spotRepository interface {
	ListByLot(ctx context.Context, lotID string) ([]models.Spot, error)
	FindByLabel(ctx context.Context, lotID, label string) (*models.Spot, error)
	UpdateStatus(ctx context.Context, id string, status models.SpotStatus) error
}

type spotScheduleRepository interface {
	ListLiveForSpot(ctx context.Context, lotID, spotLabel string) ([]models.Schedule, error)
}

// SpotStatusResult is the outcome of a manual status change. Advisory is
// set when an operator disables a spot that still holds live bookings:
// the bookings are honored, no new ones are accepted.
type SpotStatusResult struct {
	Spot     *models.Spot `json:"spot"`
	Advisory string       `json:"advisory,omitempty"`
}

// SpotService exposes the spot registry: lookups and manual overrides.
type SpotService struct {
	spots     spotRepository
	schedules spotScheduleRepository
	logger    *zap.Logger
}

// NewSpotService instantiates SpotService.
func NewSpotService(spots spotRepository, schedules spotScheduleRepository, logger *zap.Logger) *SpotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpotService{spots: spots, schedules: schedules, logger: logger}
}

// ListByLot returns every spot of a lot.
func (s *SpotService) ListByLot(ctx context.Context, lotID string) ([]models.Spot, error) {
	spots, err := s.spots.ListByLot(ctx, lotID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list spots")
	}
	return spots, nil
}

// Lookup resolves a spot by lot and label.
func (s *SpotService) Lookup(ctx context.Context, lotID, label string) (*models.Spot, error) {
	spot, err := s.spots.FindByLabel(ctx, lotID, label)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "spot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load spot")
	}
	return spot, nil
}

// SetManualStatus applies an operator override. Only the available and
// disabled states may be set here; reserved and occupied are derived
// from schedules and rejected.
func (s *SpotService) SetManualStatus(ctx context.Context, lotID, label string, status models.SpotStatus) (*SpotStatusResult, error) {
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown spot status "+string(status))
	}
	if !status.ManualStatus() {
		return nil, appErrors.Clone(appErrors.ErrValidation, string(status)+" is scheduler-derived and cannot be set manually")
	}

	spot, err := s.Lookup(ctx, lotID, label)
	if err != nil {
		return nil, err
	}

	if err := s.spots.UpdateStatus(ctx, spot.ID, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update spot status")
	}
	spot.Status = status

	result := &SpotStatusResult{Spot: spot}
	if status == models.SpotDisabled {
		live, err := s.schedules.ListLiveForSpot(ctx, lotID, label)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check spot schedules")
		}
		if len(live) > 0 {
			result.Advisory = "spot disabled with existing bookings; they remain honored but no new bookings are accepted"
			s.logger.Sugar().Warnw("spot disabled with live schedules", "lot_id", lotID, "label", label, "live", len(live))
		}
	}
	return result, nil
}
