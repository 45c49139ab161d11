package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/parkgrid-api/internal/models"
	appErrors "github.com/noah-isme/parkgrid-api/pkg/errors"
)

type scheduleRepository interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error)
	FindByID(ctx context.Context, id string) (*models.Schedule, error)
	ListLiveForSpot(ctx context.Context, lotID, spotLabel string) ([]models.Schedule, error)
	ListSweepable(ctx context.Context, lotID string) ([]models.Schedule, error)
	ListLotIDs(ctx context.Context) ([]string, error)
	Create(ctx context.Context, schedule *models.Schedule) error
	UpdateStatus(ctx context.Context, id string, status models.ScheduleStatus) error
}

type scheduleSpotRepository interface {
	FindByLabel(ctx context.Context, lotID, label string) (*models.Spot, error)
}

type scheduleLotRepository interface {
	FindByID(ctx context.Context, id string) (*models.ParkingLot, error)
}

type proposalObserver interface {
	ObserveProposal(accepted bool, reason string)
}

// ProposeScheduleRequest describes a booking proposal. User and vehicle
// identities are opaque references owned by the surrounding platform.
type ProposeScheduleRequest struct {
	UserID        string   `json:"user_id" validate:"required"`
	VehicleID     *string  `json:"vehicle_id"`
	LotID         string   `json:"lot_id" validate:"required"`
	SpotLabel     string   `json:"spot_label" validate:"required"`
	Date          string   `json:"date" validate:"required"`
	StartTime     string   `json:"start_time" validate:"required"`
	EndTime       string   `json:"end_time" validate:"required"`
	IsRecurring   bool     `json:"is_recurring"`
	RecurringDays []string `json:"recurring_days"`
}

// ScheduleService arbitrates reservations. Propose holds a per-spot lock
// across the overlap check and the insert so two racing proposals on one
// spot cannot both slip past the conflict check.
type ScheduleService struct {
	schedules scheduleRepository
	spots     scheduleSpotRepository
	lots      scheduleLotRepository
	locks     *spotLocks
	metrics   proposalObserver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService instantiates ScheduleService.
func NewScheduleService(schedules scheduleRepository, spots scheduleSpotRepository, lots scheduleLotRepository, metrics proposalObserver, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{
		schedules: schedules,
		spots:     spots,
		lots:      lots,
		locks:     newSpotLocks(),
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// List returns schedules with pagination metadata.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, *models.Pagination, error) {
	schedules, total, err := s.schedules.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
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
	return schedules, pagination, nil
}

// Propose validates a booking and commits it when no conflict exists.
// Checks run in a fixed order so identical input against identical
// committed state always yields the identical decision.
func (s *ScheduleService) Propose(ctx context.Context, req ProposeScheduleRequest) (*models.Schedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, s.reject(appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload"))
	}

	// 1. Spot exists on a parkable coordinate of its lot.
	spot, err := s.spots.FindByLabel(ctx, req.LotID, req.SpotLabel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.reject(appErrors.Clone(appErrors.ErrInvalidSpot, "spot "+req.SpotLabel+" does not exist in lot"))
		}
		return nil, s.reject(appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load spot"))
	}
	lot, err := s.lots.FindByID(ctx, req.LotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.reject(appErrors.Clone(appErrors.ErrInvalidSpot, "lot does not exist"))
		}
		return nil, s.reject(appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load lot"))
	}
	layout, err := lot.Layout()
	if err != nil {
		return nil, s.reject(appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored layout is invalid"))
	}
	coord, attached := spot.Coord()
	if !attached || !layout.Parkable(coord) {
		return nil, s.reject(appErrors.Clone(appErrors.ErrInvalidSpot, "spot "+req.SpotLabel+" is not on a parkable cell"))
	}

	// 2. Spot is not administratively disabled.
	if spot.Status == models.SpotDisabled {
		return nil, s.reject(appErrors.Clone(appErrors.ErrSpotDisabled, "spot "+req.SpotLabel+" is disabled"))
	}

	// 3. Sane same-day time range.
	date, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
	if err != nil {
		return nil, s.reject(appErrors.Clone(appErrors.ErrInvalidTimeRange, "date must be YYYY-MM-DD"))
	}
	start, err := models.ParseClock(req.StartTime)
	if err != nil {
		return nil, s.reject(appErrors.Clone(appErrors.ErrInvalidTimeRange, err.Error()))
	}
	end, err := models.ParseClock(req.EndTime)
	if err != nil {
		return nil, s.reject(appErrors.Clone(appErrors.ErrInvalidTimeRange, err.Error()))
	}
	if start >= end {
		return nil, s.reject(appErrors.Clone(appErrors.ErrInvalidTimeRange, "start_time must be before end_time"))
	}

	// 4. Recurrence rule shape.
	days, err := normalizeRecurrence(req.IsRecurring, req.RecurringDays)
	if err != nil {
		return nil, s.reject(appErrors.Clone(appErrors.ErrInvalidRecurrence, err.Error()))
	}

	candidate := models.Schedule{
		UserID:        req.UserID,
		VehicleID:     req.VehicleID,
		LotID:         req.LotID,
		SpotLabel:     req.SpotLabel,
		Date:          date,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		IsRecurring:   req.IsRecurring,
		RecurringDays: days,
		Status:        models.SchedulePending,
		CreatedAt:     time.Now().UTC(),
	}

	// 5. Overlap check and insert under the per-spot lock.
	release := s.locks.acquire(req.LotID, req.SpotLabel)
	defer release()

	existing, err := s.schedules.ListLiveForSpot(ctx, req.LotID, req.SpotLabel)
	if err != nil {
		return nil, s.reject(appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load existing schedules"))
	}
	for i := range existing {
		if candidate.ConflictsWith(&existing[i]) {
			conflictErr := &models.ScheduleConflictError{
				Message: "requested time overlaps schedule " + existing[i].ID,
				Conflict: models.ScheduleConflict{
					ScheduleID: existing[i].ID,
					SpotLabel:  existing[i].SpotLabel,
					Date:       existing[i].Date,
					StartTime:  existing[i].StartTime,
					EndTime:    existing[i].EndTime,
					Recurring:  existing[i].IsRecurring,
				},
			}
			return nil, s.reject(appErrors.Wrap(conflictErr, appErrors.ErrScheduleConflict.Code, appErrors.ErrScheduleConflict.Status, conflictErr.Message))
		}
	}

	if err := s.schedules.Create(ctx, &candidate); err != nil {
		return nil, s.reject(appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to persist schedule"))
	}

	if s.metrics != nil {
		s.metrics.ObserveProposal(true, "")
	}
	s.logger.Sugar().Infow("schedule accepted", "schedule_id", candidate.ID, "lot_id", candidate.LotID, "spot", candidate.SpotLabel)
	return &candidate, nil
}

func (s *ScheduleService) reject(err *appErrors.Error) error {
	if s.metrics != nil {
		s.metrics.ObserveProposal(false, err.Code)
	}
	return err
}

func normalizeRecurrence(isRecurring bool, days []string) (pq.StringArray, error) {
	if !isRecurring {
		if len(days) > 0 {
			return nil, errors.New("recurring_days requires is_recurring")
		}
		return nil, nil
	}
	if len(days) == 0 {
		return nil, errors.New("recurring schedule needs at least one weekday")
	}
	seen := make(map[models.Weekday]struct{}, len(days))
	out := make(pq.StringArray, 0, len(days))
	for _, raw := range days {
		w, ok := models.ParseWeekday(raw)
		if !ok {
			return nil, errors.New("unknown weekday " + raw)
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, string(w))
	}
	return out, nil
}

// Cancel marks a schedule cancelled. Cancelling an already-cancelled
// schedule is a no-op success and leaves updated_at untouched.
func (s *ScheduleService) Cancel(ctx context.Context, id string) (*models.Schedule, error) {
	sched, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	if sched.Status == models.ScheduleCancelled {
		return sched, nil
	}
	if err := s.schedules.UpdateStatus(ctx, id, models.ScheduleCancelled); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel schedule")
	}
	sched.Status = models.ScheduleCancelled
	return sched, nil
}

// Advance sweeps every lot with live schedules. Idempotent: statuses are
// recomputed purely from the stored schedules and now.
func (s *ScheduleService) Advance(ctx context.Context, now time.Time) (int, error) {
	lotIDs, err := s.schedules.ListLotIDs(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lots for sweep")
	}
	total := 0
	for _, lotID := range lotIDs {
		n, err := s.AdvanceLot(ctx, lotID, now)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// AdvanceLot recomputes lifecycle statuses for one lot at the given
// instant and returns how many schedules changed.
func (s *ScheduleService) AdvanceLot(ctx context.Context, lotID string, now time.Time) (int, error) {
	schedules, err := s.schedules.ListSweepable(ctx, lotID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sweepable schedules")
	}

	changed := 0
	for i := range schedules {
		desired := sweepStatus(&schedules[i], now)
		if desired == schedules[i].Status {
			continue
		}
		if err := s.schedules.UpdateStatus(ctx, schedules[i].ID, desired); err != nil {
			return changed, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance schedule")
		}
		changed++
	}
	if changed > 0 {
		s.logger.Sugar().Infow("schedules advanced", "lot_id", lotID, "changed", changed)
	}
	return changed, nil
}

// sweepStatus derives the lifecycle state of a live schedule from the
// clock. Recurring schedules never complete; they drop back to pending
// between occurrences.
func sweepStatus(sched *models.Schedule, now time.Time) models.ScheduleStatus {
	if sched.CoversInstant(now) {
		return models.ScheduleActive
	}
	if !sched.IsRecurring && sched.OccurrencePassed(sched.Date, now) {
		return models.ScheduleCompleted
	}
	return models.SchedulePending
}
