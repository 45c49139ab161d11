package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/parkgrid-api/internal/models"
	appErrors "github.com/noah-isme/parkgrid-api/pkg/errors"
)

type lotRepository interface {
	List(ctx context.Context, filter models.LotFilter) ([]models.ParkingLot, int, error)
	FindByID(ctx context.Context, id string) (*models.ParkingLot, error)
	Create(ctx context.Context, lot *models.ParkingLot) error
	UpdateLayout(ctx context.Context, lot *models.ParkingLot) error
	Delete(ctx context.Context, id string) error
}

type lotSpotRepository interface {
	ListByLot(ctx context.Context, lotID string) ([]models.Spot, error)
	CreateBatch(ctx context.Context, spots []models.Spot) error
	Reattach(ctx context.Context, id string, coord models.Coord) error
	Retire(ctx context.Context, ids []string) error
}

type lotScheduleRepository interface {
	ListLiveForLot(ctx context.Context, lotID string) ([]models.Schedule, error)
}

// CreateLotRequest describes payload for defining a lot layout.
type CreateLotRequest struct {
	Name   string         `json:"name" validate:"required"`
	Rows   int            `json:"rows" validate:"required,min=1"`
	Cols   int            `json:"cols" validate:"required,min=1"`
	Aisles []models.Coord `json:"aisles"`
}

// ResizeLotRequest describes payload for editing a lot layout.
type ResizeLotRequest struct {
	Rows   int            `json:"rows" validate:"required,min=1"`
	Cols   int            `json:"cols" validate:"required,min=1"`
	Aisles []models.Coord `json:"aisles"`
}

// LotService owns lot geometry and keeps the spot set in sync with it.
type LotService struct {
	lots      lotRepository
	spots     lotSpotRepository
	schedules lotScheduleRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLotService instantiates LotService.
func NewLotService(lots lotRepository, spots lotSpotRepository, schedules lotScheduleRepository, validate *validator.Validate, logger *zap.Logger) *LotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LotService{lots: lots, spots: spots, schedules: schedules, validator: validate, logger: logger}
}

// List returns lots with pagination metadata.
func (s *LotService) List(ctx context.Context, filter models.LotFilter) ([]models.ParkingLot, *models.Pagination, error) {
	lots, total, err := s.lots.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lots")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return lots, pagination, nil
}

// Get loads a single lot.
func (s *LotService) Get(ctx context.Context, id string) (*models.ParkingLot, error) {
	lot, err := s.lots.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lot")
	}
	return lot, nil
}

// Create defines a new lot layout and establishes its spots.
func (s *LotService) Create(ctx context.Context, req CreateLotRequest) (*models.ParkingLot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lot payload")
	}

	layout, err := models.NewLotLayout(req.Rows, req.Cols, req.Aisles)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidGeometry.Code, appErrors.ErrInvalidGeometry.Status, err.Error())
	}

	lot := models.ParkingLot{
		Name:     req.Name,
		Rows:     layout.Rows,
		Cols:     layout.Cols,
		Capacity: layout.Capacity(),
		Aisles:   layout.AisleCoords(),
	}
	if err := s.lots.Create(ctx, &lot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lot")
	}
	if err := s.syncSpots(ctx, &lot, layout); err != nil {
		return nil, err
	}
	s.logger.Sugar().Infow("lot created", "lot_id", lot.ID, "capacity", lot.Capacity)
	return &lot, nil
}

// Resize applies new geometry to an existing lot. It refuses to drop a
// coordinate whose spot still holds non-cancelled schedules.
func (s *LotService) Resize(ctx context.Context, id string, req ResizeLotRequest) (*models.ParkingLot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resize payload")
	}

	lot, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	layout, err := models.NewLotLayout(req.Rows, req.Cols, req.Aisles)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidGeometry.Code, appErrors.ErrInvalidGeometry.Status, err.Error())
	}

	if err := s.checkResizeConflicts(ctx, lot, layout); err != nil {
		return nil, err
	}

	lot.Rows = layout.Rows
	lot.Cols = layout.Cols
	lot.Capacity = layout.Capacity()
	lot.Aisles = layout.AisleCoords()
	if err := s.lots.UpdateLayout(ctx, lot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lot layout")
	}
	if err := s.syncSpots(ctx, lot, layout); err != nil {
		return nil, err
	}
	s.logger.Sugar().Infow("lot resized", "lot_id", lot.ID, "capacity", lot.Capacity)
	return lot, nil
}

// Delete removes a lot and everything hanging off it.
func (s *LotService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.lots.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lot")
	}
	return nil
}

// checkResizeConflicts rejects a layout change that would retire a spot
// still referenced by live bookings.
func (s *LotService) checkResizeConflicts(ctx context.Context, lot *models.ParkingLot, next *models.LotLayout) error {
	spots, err := s.spots.ListByLot(ctx, lot.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list spots")
	}
	live, err := s.schedules.ListLiveForLot(ctx, lot.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	liveLabels := make(map[string]struct{}, len(live))
	for _, sched := range live {
		liveLabels[sched.SpotLabel] = struct{}{}
	}

	for i := range spots {
		coord, ok := spots[i].Coord()
		if !ok || next.Parkable(coord) {
			continue
		}
		if _, booked := liveLabels[spots[i].Label]; booked {
			return appErrors.Clone(appErrors.ErrConflictingResize,
				"resize would remove spot "+spots[i].Label+" which has non-cancelled schedules")
		}
	}
	return nil
}

// syncSpots reconciles the spot set with the layout: new parkable cells
// gain spots, retired spots on reappearing cells are reattached, and
// spots on vanished cells are retired.
func (s *LotService) syncSpots(ctx context.Context, lot *models.ParkingLot, layout *models.LotLayout) error {
	existing, err := s.spots.ListByLot(ctx, lot.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list spots")
	}

	byLabel := make(map[string]*models.Spot, len(existing))
	for i := range existing {
		byLabel[existing[i].Label] = &existing[i]
	}

	var toCreate []models.Spot
	var toRetire []string
	seen := make(map[string]struct{})

	for _, coord := range layout.ParkableCoords() {
		label := coord.Label()
		seen[label] = struct{}{}
		spot, ok := byLabel[label]
		if !ok {
			row, col := coord.Row, coord.Col
			toCreate = append(toCreate, models.Spot{
				LotID:  lot.ID,
				Label:  label,
				Row:    &row,
				Col:    &col,
				Status: models.SpotAvailable,
			})
			continue
		}
		if spot.Retired() {
			if err := s.spots.Reattach(ctx, spot.ID, coord); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reattach spot")
			}
		}
	}

	for i := range existing {
		if existing[i].Retired() {
			continue
		}
		if _, stillParkable := seen[existing[i].Label]; !stillParkable {
			toRetire = append(toRetire, existing[i].ID)
		}
	}

	if err := s.spots.CreateBatch(ctx, toCreate); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create spots")
	}
	if err := s.spots.Retire(ctx, toRetire); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire spots")
	}
	return nil
}
