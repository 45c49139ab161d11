package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/parkgrid-api/internal/models"
	appErrors "github.com/noah-isme/parkgrid-api/pkg/errors"
)

type lotStoreStub struct {
	lots      map[string]*models.ParkingLot
	seq       int
	updated   *models.ParkingLot
	deleted   []string
	createErr error
}

func newLotStoreStub() *lotStoreStub {
	return &lotStoreStub{lots: map[string]*models.ParkingLot{}}
}

func (s *lotStoreStub) List(ctx context.Context, filter models.LotFilter) ([]models.ParkingLot, int, error) {
	out := make([]models.ParkingLot, 0, len(s.lots))
	for _, lot := range s.lots {
		out = append(out, *lot)
	}
	return out, len(out), nil
}

func (s *lotStoreStub) FindByID(ctx context.Context, id string) (*models.ParkingLot, error) {
	if lot, ok := s.lots[id]; ok {
		copied := *lot
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *lotStoreStub) Create(ctx context.Context, lot *models.ParkingLot) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.seq++
	lot.ID = "lot-1"
	copied := *lot
	s.lots[lot.ID] = &copied
	return nil
}

func (s *lotStoreStub) UpdateLayout(ctx context.Context, lot *models.ParkingLot) error {
	copied := *lot
	s.updated = &copied
	s.lots[lot.ID] = &copied
	return nil
}

func (s *lotStoreStub) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	delete(s.lots, id)
	return nil
}

type spotStoreStub struct {
	spots      []models.Spot
	created    []models.Spot
	reattached map[string]models.Coord
	retired    []string
}

func (s *spotStoreStub) ListByLot(ctx context.Context, lotID string) ([]models.Spot, error) {
	return s.spots, nil
}

func (s *spotStoreStub) CreateBatch(ctx context.Context, spots []models.Spot) error {
	s.created = append(s.created, spots...)
	return nil
}

func (s *spotStoreStub) Reattach(ctx context.Context, id string, coord models.Coord) error {
	if s.reattached == nil {
		s.reattached = map[string]models.Coord{}
	}
	s.reattached[id] = coord
	return nil
}

func (s *spotStoreStub) Retire(ctx context.Context, ids []string) error {
	s.retired = append(s.retired, ids...)
	return nil
}

type liveScheduleStub struct {
	live []models.Schedule
}

func (s liveScheduleStub) ListLiveForLot(ctx context.Context, lotID string) ([]models.Schedule, error) {
	out := make([]models.Schedule, 0, len(s.live))
	for _, sched := range s.live {
		if sched.Status != models.ScheduleCancelled {
			out = append(out, sched)
		}
	}
	return out, nil
}

func attachedSpot(id, label string, row, col int) models.Spot {
	return models.Spot{ID: id, LotID: "lot-1", Label: label, Row: &row, Col: &col, Status: models.SpotAvailable}
}

func gridSpots(rows, cols int) []models.Spot {
	var out []models.Spot
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			coord := models.Coord{Row: r, Col: c}
			out = append(out, attachedSpot("spot-"+coord.Label(), coord.Label(), r, c))
		}
	}
	return out
}

func TestLotCreateEstablishesSpots(t *testing.T) {
	lots := newLotStoreStub()
	spots := &spotStoreStub{}
	svc := NewLotService(lots, spots, liveScheduleStub{}, nil, zap.NewNop())

	lot, err := svc.Create(context.Background(), CreateLotRequest{
		Name:   "North Deck",
		Rows:   4,
		Cols:   10,
		Aisles: []models.Coord{{Row: 1, Col: 5}},
	})
	require.NoError(t, err)
	assert.Equal(t, 39, lot.Capacity)
	assert.Len(t, spots.created, 39)
	assert.Equal(t, "R0C0", spots.created[0].Label)
}

func TestLotCreateRejectsBadGeometry(t *testing.T) {
	svc := NewLotService(newLotStoreStub(), &spotStoreStub{}, liveScheduleStub{}, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateLotRequest{Name: "Bad", Rows: 3, Cols: 3, Aisles: []models.Coord{{Row: 5, Col: 5}}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidGeometry.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), CreateLotRequest{Name: "Bad", Rows: 3, Cols: 3, Aisles: []models.Coord{{Row: 1, Col: 1}, {Row: 1, Col: 1}}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidGeometry.Code, appErrors.FromError(err).Code)
}

func TestResizeRejectedWhenBookedSpotWouldVanish(t *testing.T) {
	lots := newLotStoreStub()
	lots.lots["lot-1"] = &models.ParkingLot{ID: "lot-1", Name: "North Deck", Rows: 4, Cols: 10, Capacity: 40}
	spots := &spotStoreStub{spots: gridSpots(4, 10)}
	schedules := liveScheduleStub{live: []models.Schedule{
		{ID: "sched-1", LotID: "lot-1", SpotLabel: "R3C9", Status: models.SchedulePending},
	}}
	svc := NewLotService(lots, spots, schedules, nil, zap.NewNop())

	// Shrinking 4x10 to 3x10 drops row 3, where R3C9 still has a booking.
	_, err := svc.Resize(context.Background(), "lot-1", ResizeLotRequest{Rows: 3, Cols: 10})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflictingResize.Code, appErrors.FromError(err).Code)
	assert.Nil(t, lots.updated)
	assert.Empty(t, spots.retired)
}

func TestResizeAllowedWhenVanishingSpotsAreFree(t *testing.T) {
	lots := newLotStoreStub()
	lots.lots["lot-1"] = &models.ParkingLot{ID: "lot-1", Name: "North Deck", Rows: 4, Cols: 10, Capacity: 40}
	spots := &spotStoreStub{spots: gridSpots(4, 10)}
	schedules := liveScheduleStub{live: []models.Schedule{
		{ID: "sched-1", LotID: "lot-1", SpotLabel: "R0C0", Status: models.SchedulePending},
		{ID: "sched-2", LotID: "lot-1", SpotLabel: "R3C9", Status: models.ScheduleCancelled},
	}}
	svc := NewLotService(lots, spots, schedules, nil, zap.NewNop())

	lot, err := svc.Resize(context.Background(), "lot-1", ResizeLotRequest{Rows: 3, Cols: 10})
	require.NoError(t, err)
	assert.Equal(t, 30, lot.Capacity)
	assert.Len(t, spots.retired, 10)
}

func TestResizeCancelledSchedulesDoNotBlock(t *testing.T) {
	lots := newLotStoreStub()
	lots.lots["lot-1"] = &models.ParkingLot{ID: "lot-1", Name: "North Deck", Rows: 2, Cols: 2, Capacity: 4}
	spots := &spotStoreStub{spots: gridSpots(2, 2)}
	svc := NewLotService(lots, spots, liveScheduleStub{}, nil, zap.NewNop())

	lot, err := svc.Resize(context.Background(), "lot-1", ResizeLotRequest{Rows: 1, Cols: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, lot.Capacity)
}

func TestResizeReattachesRetiredSpotOnReturningCell(t *testing.T) {
	lots := newLotStoreStub()
	lots.lots["lot-1"] = &models.ParkingLot{ID: "lot-1", Name: "North Deck", Rows: 1, Cols: 2, Capacity: 2}
	retired := models.Spot{ID: "spot-R0C2", LotID: "lot-1", Label: "R0C2", Status: models.SpotDisabled}
	spots := &spotStoreStub{spots: append(gridSpots(1, 2), retired)}
	svc := NewLotService(lots, spots, liveScheduleStub{}, nil, zap.NewNop())

	_, err := svc.Resize(context.Background(), "lot-1", ResizeLotRequest{Rows: 1, Cols: 3})
	require.NoError(t, err)
	require.Contains(t, spots.reattached, "spot-R0C2")
	assert.Equal(t, models.Coord{Row: 0, Col: 2}, spots.reattached["spot-R0C2"])
	assert.Empty(t, spots.created)
}

func TestResizeGrowingCreatesNewSpots(t *testing.T) {
	lots := newLotStoreStub()
	lots.lots["lot-1"] = &models.ParkingLot{ID: "lot-1", Name: "North Deck", Rows: 1, Cols: 2, Capacity: 2}
	spots := &spotStoreStub{spots: gridSpots(1, 2)}
	svc := NewLotService(lots, spots, liveScheduleStub{}, nil, zap.NewNop())

	lot, err := svc.Resize(context.Background(), "lot-1", ResizeLotRequest{Rows: 2, Cols: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, lot.Capacity)
	assert.Len(t, spots.created, 2)
}

func TestLotGetNotFound(t *testing.T) {
	svc := NewLotService(newLotStoreStub(), &spotStoreStub{}, liveScheduleStub{}, nil, zap.NewNop())

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
