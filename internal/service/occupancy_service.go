package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/parkgrid-api/internal/models"
	appErrors "github.com/noah-isme/parkgrid-api/pkg/errors"
	"github.com/noah-isme/parkgrid-api/pkg/export"
)

type occupancyLotRepository interface {
	FindByID(ctx context.Context, id string) (*models.ParkingLot, error)
}

type occupancySpotRepository interface {
	ListByLot(ctx context.Context, lotID string) ([]models.Spot, error)
}

type occupancyScheduleRepository interface {
	ListLiveForLot(ctx context.Context, lotID string) ([]models.Schedule, error)
}

// OccupancyView is the derived status of every spot of a lot at a point
// in time.
type OccupancyView struct {
	LotID string                       `json:"lot_id"`
	At    time.Time                    `json:"at"`
	Spots map[string]models.SpotStatus `json:"spots"`
}

// OccupancyService projects live lot occupancy. The projection is a pure
// read: a manual disable wins over any schedule, an active schedule
// renders occupied, a pending one reserved, everything else available.
type OccupancyService struct {
	lots      occupancyLotRepository
	spots     occupancySpotRepository
	schedules occupancyScheduleRepository

	redis    *redis.Client
	cacheTTL time.Duration
	layouts  *gocache.Cache
	logger   *zap.Logger
}

// NewOccupancyService instantiates OccupancyService. redisClient may be
// nil, which disables response caching.
func NewOccupancyService(lots occupancyLotRepository, spots occupancySpotRepository, schedules occupancyScheduleRepository, redisClient *redis.Client, cacheTTL, layoutTTL time.Duration, logger *zap.Logger) *OccupancyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if layoutTTL <= 0 {
		layoutTTL = 5 * time.Minute
	}
	return &OccupancyService{
		lots:      lots,
		spots:     spots,
		schedules: schedules,
		redis:     redisClient,
		cacheTTL:  cacheTTL,
		layouts:   gocache.New(layoutTTL, 2*layoutTTL),
		logger:    logger,
	}
}

// OccupancyOf computes the occupancy of a lot at the given instant. The
// second return value reports whether the view came from cache; explicit
// historical/future instants always bypass the cache.
func (s *OccupancyService) OccupancyOf(ctx context.Context, lotID string, at time.Time, allowCached bool) (*OccupancyView, bool, error) {
	at = at.UTC().Truncate(time.Minute)

	cacheKey := "occupancy:" + lotID + ":" + strconv.FormatInt(at.Unix(), 10)
	if allowCached && s.redis != nil {
		if raw, err := s.redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var view OccupancyView
			if err := json.Unmarshal(raw, &view); err == nil {
				return &view, true, nil
			}
		}
	}

	if _, err := s.lot(ctx, lotID); err != nil {
		return nil, false, err
	}

	spots, err := s.spots.ListByLot(ctx, lotID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list spots")
	}
	schedules, err := s.schedules.ListLiveForLot(ctx, lotID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}

	bySpot := make(map[string][]*models.Schedule)
	for i := range schedules {
		bySpot[schedules[i].SpotLabel] = append(bySpot[schedules[i].SpotLabel], &schedules[i])
	}

	view := &OccupancyView{LotID: lotID, At: at, Spots: make(map[string]models.SpotStatus, len(spots))}
	for i := range spots {
		view.Spots[spots[i].Label] = deriveStatus(&spots[i], bySpot[spots[i].Label], at)
	}

	if allowCached && s.redis != nil && s.cacheTTL > 0 {
		if raw, err := json.Marshal(view); err == nil {
			if err := s.redis.Set(ctx, cacheKey, raw, s.cacheTTL).Err(); err != nil {
				s.logger.Sugar().Warnw("occupancy cache write failed", "lot_id", lotID, "error", err)
			}
		}
	}
	return view, false, nil
}

// deriveStatus resolves one spot's display status. The manual disable
// override wins for display even when a booking is running; the booking
// itself stays honored. Among schedule-derived states the most
// restrictive wins: occupied beats reserved.
func deriveStatus(spot *models.Spot, schedules []*models.Schedule, at time.Time) models.SpotStatus {
	if spot.Status == models.SpotDisabled || spot.Retired() {
		return models.SpotDisabled
	}
	status := models.SpotAvailable
	for _, sched := range schedules {
		if !sched.CoversInstant(at) {
			continue
		}
		switch sched.Status {
		case models.ScheduleActive:
			return models.SpotOccupied
		case models.SchedulePending:
			status = models.SpotReserved
		}
	}
	return status
}

// Dataset renders the occupancy view as a table for CSV/PDF export.
func (s *OccupancyService) Dataset(ctx context.Context, lotID string, at time.Time) (export.Dataset, error) {
	view, _, err := s.OccupancyOf(ctx, lotID, at, false)
	if err != nil {
		return export.Dataset{}, err
	}
	spots, err := s.spots.ListByLot(ctx, lotID)
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list spots")
	}

	data := export.Dataset{
		Title:   fmt.Sprintf("Lot %s occupancy at %s", lotID, at.UTC().Format("2006-01-02 15:04")),
		Headers: []string{"Label", "Row", "Col", "Status"},
	}
	for i := range spots {
		row := map[string]string{
			"Label":  spots[i].Label,
			"Status": string(view.Spots[spots[i].Label]),
		}
		if coord, ok := spots[i].Coord(); ok {
			row["Row"] = strconv.Itoa(coord.Row)
			row["Col"] = strconv.Itoa(coord.Col)
		}
		data.Rows = append(data.Rows, row)
	}
	return data, nil
}

// InvalidateLayout drops the memoized lot record after a layout edit.
func (s *OccupancyService) InvalidateLayout(lotID string) {
	s.layouts.Delete(lotID)
}

// lot loads a lot through a short-lived in-memory cache; occupancy reads
// hit the same layout far more often than it changes.
func (s *OccupancyService) lot(ctx context.Context, lotID string) (*models.ParkingLot, error) {
	if cached, ok := s.layouts.Get(lotID); ok {
		return cached.(*models.ParkingLot), nil
	}
	lot, err := s.lots.FindByID(ctx, lotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("lot %s not found", lotID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lot")
	}
	s.layouts.SetDefault(lotID, lot)
	return lot, nil
}
