package service

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/parkgrid-api/internal/models"
	appErrors "github.com/noah-isme/parkgrid-api/pkg/errors"
)

type scheduleRepoStub struct {
	mu        sync.Mutex
	byID      map[string]*models.Schedule
	live      []models.Schedule
	listErr   error
	createErr error
	updates   []string
	seq       int
}

func newScheduleRepoStub() *scheduleRepoStub {
	return &scheduleRepoStub{byID: map[string]*models.Schedule{}}
}

func (s *scheduleRepoStub) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error) {
	return s.live, len(s.live), s.listErr
}

func (s *scheduleRepoStub) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	if sched, ok := s.byID[id]; ok {
		copied := *sched
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *scheduleRepoStub) ListLiveForSpot(ctx context.Context, lotID, spotLabel string) ([]models.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]models.Schedule, 0, len(s.live))
	for _, sched := range s.live {
		if sched.LotID == lotID && sched.SpotLabel == spotLabel && sched.Status != models.ScheduleCancelled {
			out = append(out, sched)
		}
	}
	return out, nil
}

func (s *scheduleRepoStub) ListSweepable(ctx context.Context, lotID string) ([]models.Schedule, error) {
	out := make([]models.Schedule, 0, len(s.live))
	for _, sched := range s.live {
		if sched.LotID == lotID && (sched.Status == models.SchedulePending || sched.Status == models.ScheduleActive) {
			out = append(out, sched)
		}
	}
	return out, s.listErr
}

func (s *scheduleRepoStub) ListLotIDs(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, sched := range s.live {
		if _, ok := seen[sched.LotID]; !ok {
			seen[sched.LotID] = struct{}{}
			out = append(out, sched.LotID)
		}
	}
	return out, nil
}

func (s *scheduleRepoStub) Create(ctx context.Context, schedule *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.seq++
	schedule.ID = fmt.Sprintf("sched-%d", s.seq)
	s.live = append(s.live, *schedule)
	copied := *schedule
	s.byID[schedule.ID] = &copied
	return nil
}

func (s *scheduleRepoStub) UpdateStatus(ctx context.Context, id string, status models.ScheduleStatus) error {
	s.updates = append(s.updates, id+":"+string(status))
	if sched, ok := s.byID[id]; ok {
		sched.Status = status
	}
	for i := range s.live {
		if s.live[i].ID == id {
			s.live[i].Status = status
		}
	}
	return nil
}

type spotRepoStub struct {
	spots map[string]*models.Spot
	err   error
}

func (s spotRepoStub) FindByLabel(ctx context.Context, lotID, label string) (*models.Spot, error) {
	if s.err != nil {
		return nil, s.err
	}
	if spot, ok := s.spots[lotID+"|"+label]; ok {
		return spot, nil
	}
	return nil, sql.ErrNoRows
}

type lotRepoStub struct {
	lots map[string]*models.ParkingLot
	err  error
}

func (s lotRepoStub) FindByID(ctx context.Context, id string) (*models.ParkingLot, error) {
	if s.err != nil {
		return nil, s.err
	}
	if lot, ok := s.lots[id]; ok {
		return lot, nil
	}
	return nil, sql.ErrNoRows
}

type proposalObserverStub struct {
	mu       sync.Mutex
	accepted int
	rejected map[string]int
}

func (o *proposalObserverStub) ObserveProposal(accepted bool, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if accepted {
		o.accepted++
		return
	}
	if o.rejected == nil {
		o.rejected = map[string]int{}
	}
	o.rejected[reason]++
}

func intPtr(v int) *int { return &v }

func fixtureLot() lotRepoStub {
	return lotRepoStub{lots: map[string]*models.ParkingLot{
		"lot-1": {ID: "lot-1", Name: "North Deck", Rows: 4, Cols: 10, Aisles: []models.Coord{{Row: 1, Col: 5}}},
	}}
}

func fixtureSpots() spotRepoStub {
	return spotRepoStub{spots: map[string]*models.Spot{
		"lot-1|R0C0": {ID: "spot-1", LotID: "lot-1", Label: "R0C0", Row: intPtr(0), Col: intPtr(0), Status: models.SpotAvailable},
		"lot-1|R0C1": {ID: "spot-2", LotID: "lot-1", Label: "R0C1", Row: intPtr(0), Col: intPtr(1), Status: models.SpotDisabled},
		"lot-1|R1C1": {ID: "spot-3", LotID: "lot-1", Label: "R1C1", Row: intPtr(1), Col: intPtr(1), Status: models.SpotAvailable},
		"lot-1|R9C9": {ID: "spot-4", LotID: "lot-1", Label: "R9C9", Row: intPtr(9), Col: intPtr(9), Status: models.SpotAvailable},
	}}
}

func proposal(label, date, start, end string) ProposeScheduleRequest {
	return ProposeScheduleRequest{
		UserID:    "user-1",
		LotID:     "lot-1",
		SpotLabel: label,
		Date:      date,
		StartTime: start,
		EndTime:   end,
	}
}

func TestProposeAcceptsValidBooking(t *testing.T) {
	repo := newScheduleRepoStub()
	observer := &proposalObserverStub{}
	svc := NewScheduleService(repo, fixtureSpots(), fixtureLot(), observer, nil, zap.NewNop())

	sched, err := svc.Propose(context.Background(), proposal("R0C0", "2025-02-03", "09:00", "10:00"))
	require.NoError(t, err)
	assert.NotEmpty(t, sched.ID)
	assert.Equal(t, models.SchedulePending, sched.Status)
	assert.Equal(t, 1, observer.accepted)
}

func TestProposeRejectsUnknownSpot(t *testing.T) {
	svc := NewScheduleService(newScheduleRepoStub(), fixtureSpots(), fixtureLot(), nil, nil, zap.NewNop())

	_, err := svc.Propose(context.Background(), proposal("R9C0", "2025-02-03", "09:00", "10:00"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidSpot.Code, appErrors.FromError(err).Code)
}

func TestProposeRejectsSpotOffTheGrid(t *testing.T) {
	// R9C9 exists in the registry but lies outside the 4x10 grid.
	svc := NewScheduleService(newScheduleRepoStub(), fixtureSpots(), fixtureLot(), nil, nil, zap.NewNop())

	_, err := svc.Propose(context.Background(), proposal("R9C9", "2025-02-03", "09:00", "10:00"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidSpot.Code, appErrors.FromError(err).Code)
}

func TestProposeRejectsDisabledSpot(t *testing.T) {
	observer := &proposalObserverStub{}
	svc := NewScheduleService(newScheduleRepoStub(), fixtureSpots(), fixtureLot(), observer, nil, zap.NewNop())

	_, err := svc.Propose(context.Background(), proposal("R0C1", "2025-02-03", "09:00", "10:00"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSpotDisabled.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, observer.rejected[appErrors.ErrSpotDisabled.Code])
}

func TestProposeRejectsInvalidTimeRange(t *testing.T) {
	svc := NewScheduleService(newScheduleRepoStub(), fixtureSpots(), fixtureLot(), nil, nil, zap.NewNop())

	cases := []struct {
		name  string
		date  string
		start string
		end   string
	}{
		{"bad date", "02-03-2025", "09:00", "10:00"},
		{"bad start", "2025-02-03", "25:00", "10:00"},
		{"bad end", "2025-02-03", "09:00", "10:61"},
		{"empty interval", "2025-02-03", "10:00", "10:00"},
		{"inverted interval", "2025-02-03", "11:00", "10:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Propose(context.Background(), proposal("R0C0", tc.date, tc.start, tc.end))
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrInvalidTimeRange.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestProposeRejectsInvalidRecurrence(t *testing.T) {
	svc := NewScheduleService(newScheduleRepoStub(), fixtureSpots(), fixtureLot(), nil, nil, zap.NewNop())

	req := proposal("R0C0", "2025-02-03", "09:00", "10:00")
	req.IsRecurring = true
	_, err := svc.Propose(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRecurrence.Code, appErrors.FromError(err).Code)

	req.RecurringDays = []string{"FUNDAY"}
	_, err = svc.Propose(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRecurrence.Code, appErrors.FromError(err).Code)

	req = proposal("R0C0", "2025-02-03", "09:00", "10:00")
	req.RecurringDays = []string{"MONDAY"}
	_, err = svc.Propose(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRecurrence.Code, appErrors.FromError(err).Code)
}

func TestProposeDisabledWinsOverBadTimeRange(t *testing.T) {
	// Checks run in a fixed order, so a disabled spot is reported even
	// when the time range is also broken.
	svc := NewScheduleService(newScheduleRepoStub(), fixtureSpots(), fixtureLot(), nil, nil, zap.NewNop())

	_, err := svc.Propose(context.Background(), proposal("R0C1", "2025-02-03", "11:00", "10:00"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSpotDisabled.Code, appErrors.FromError(err).Code)
}

func TestProposeRejectsConflictAndNamesWinner(t *testing.T) {
	repo := newScheduleRepoStub()
	observer := &proposalObserverStub{}
	svc := NewScheduleService(repo, fixtureSpots(), fixtureLot(), observer, nil, zap.NewNop())

	first, err := svc.Propose(context.Background(), proposal("R0C0", "2025-02-03", "09:00", "10:00"))
	require.NoError(t, err)

	_, err = svc.Propose(context.Background(), proposal("R0C0", "2025-02-03", "09:30", "10:30"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErr.Code)

	var conflictErr *models.ScheduleConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, first.ID, conflictErr.Conflict.ScheduleID)
	assert.Equal(t, "R0C0", conflictErr.Conflict.SpotLabel)
	assert.Equal(t, 1, observer.rejected[appErrors.ErrScheduleConflict.Code])
}

func TestProposeBackToBackAccepted(t *testing.T) {
	repo := newScheduleRepoStub()
	svc := NewScheduleService(repo, fixtureSpots(), fixtureLot(), nil, nil, zap.NewNop())

	_, err := svc.Propose(context.Background(), proposal("R0C0", "2025-02-03", "09:00", "10:00"))
	require.NoError(t, err)

	_, err = svc.Propose(context.Background(), proposal("R0C0", "2025-02-03", "10:00", "11:00"))
	require.NoError(t, err)
}

func TestProposeIsDeterministic(t *testing.T) {
	// Identical input against identical committed state yields the
	// identical decision.
	for i := 0; i < 3; i++ {
		repo := newScheduleRepoStub()
		svc := NewScheduleService(repo, fixtureSpots(), fixtureLot(), nil, nil, zap.NewNop())

		_, err := svc.Propose(context.Background(), proposal("R0C0", "2025-02-03", "09:00", "10:00"))
		require.NoError(t, err)

		_, err = svc.Propose(context.Background(), proposal("R0C0", "2025-02-03", "09:30", "10:30"))
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErrors.FromError(err).Code)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	repo := newScheduleRepoStub()
	svc := NewScheduleService(repo, fixtureSpots(), fixtureLot(), nil, nil, zap.NewNop())

	sched, err := svc.Propose(context.Background(), proposal("R0C0", "2025-02-03", "09:00", "10:00"))
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), sched.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleCancelled, cancelled.Status)
	require.Len(t, repo.updates, 1)

	// Second cancel succeeds without another write.
	cancelled, err = svc.Cancel(context.Background(), sched.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleCancelled, cancelled.Status)
	assert.Len(t, repo.updates, 1)
}

func TestCancelUnknownScheduleNotFound(t *testing.T) {
	svc := NewScheduleService(newScheduleRepoStub(), fixtureSpots(), fixtureLot(), nil, nil, zap.NewNop())

	_, err := svc.Cancel(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCancelledSpotIsFreeAgain(t *testing.T) {
	repo := newScheduleRepoStub()
	svc := NewScheduleService(repo, fixtureSpots(), fixtureLot(), nil, nil, zap.NewNop())

	sched, err := svc.Propose(context.Background(), proposal("R0C0", "2025-02-03", "09:00", "10:00"))
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), sched.ID)
	require.NoError(t, err)

	_, err = svc.Propose(context.Background(), proposal("R0C0", "2025-02-03", "09:00", "10:00"))
	require.NoError(t, err)
}

func TestAdvanceTransitions(t *testing.T) {
	repo := newScheduleRepoStub()
	svc := NewScheduleService(repo, fixtureSpots(), fixtureLot(), nil, nil, zap.NewNop())

	// 2027-02-01 is a Monday, safely after any schedule's creation date.
	oneShot, err := svc.Propose(context.Background(), proposal("R0C0", "2027-02-01", "09:00", "10:00"))
	require.NoError(t, err)

	rec := proposal("R0C0", "2027-02-01", "14:00", "15:00")
	rec.IsRecurring = true
	rec.RecurringDays = []string{"MONDAY"}
	recurring, err := svc.Propose(context.Background(), rec)
	require.NoError(t, err)

	// Inside the one-shot window it activates.
	changed, err := svc.Advance(context.Background(), time.Date(2027, 2, 1, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	got, err := repo.FindByID(context.Background(), oneShot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleActive, got.Status)

	// After the window it completes; the recurring one never does.
	changed, err = svc.Advance(context.Background(), time.Date(2027, 2, 1, 16, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	got, err = repo.FindByID(context.Background(), oneShot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleCompleted, got.Status)
	got, err = repo.FindByID(context.Background(), recurring.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SchedulePending, got.Status)

	// Running again at the same instant changes nothing.
	changed, err = svc.Advance(context.Background(), time.Date(2027, 2, 1, 16, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
}

func TestAdvanceActivatesRecurringOnMatchingDay(t *testing.T) {
	repo := newScheduleRepoStub()
	svc := NewScheduleService(repo, fixtureSpots(), fixtureLot(), nil, nil, zap.NewNop())

	req := proposal("R0C0", "2027-02-01", "14:00", "15:00")
	req.IsRecurring = true
	req.RecurringDays = []string{"MONDAY"}
	recurring, err := svc.Propose(context.Background(), req)
	require.NoError(t, err)

	// A Monday weeks later still activates it.
	_, err = svc.Advance(context.Background(), time.Date(2027, 3, 1, 14, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	got, err := repo.FindByID(context.Background(), recurring.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleActive, got.Status)

	// Off the window it drops back to pending.
	_, err = svc.Advance(context.Background(), time.Date(2027, 3, 1, 16, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	got, err = repo.FindByID(context.Background(), recurring.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SchedulePending, got.Status)
}

// TestProposeNeverCommitsOverlap fires randomized proposals at a handful
// of spots and asserts the committed set stays pairwise conflict free.
func TestProposeNeverCommitsOverlap(t *testing.T) {
	repo := newScheduleRepoStub()
	svc := NewScheduleService(repo, fixtureSpots(), fixtureLot(), nil, nil, zap.NewNop())

	rng := rand.New(rand.NewSource(42))
	days := []string{"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY", "SUNDAY"}
	labels := []string{"R0C0", "R1C1"}

	var wg sync.WaitGroup
	reqs := make([]ProposeScheduleRequest, 0, 200)
	for i := 0; i < 200; i++ {
		startHour := rng.Intn(22)
		endHour := startHour + 1 + rng.Intn(23-startHour)
		req := proposal(
			labels[rng.Intn(len(labels))],
			fmt.Sprintf("2027-02-%02d", 1+rng.Intn(14)),
			fmt.Sprintf("%02d:00", startHour),
			fmt.Sprintf("%02d:00", endHour),
		)
		if rng.Intn(4) == 0 {
			req.IsRecurring = true
			req.RecurringDays = []string{days[rng.Intn(len(days))]}
		}
		reqs = append(reqs, req)
	}

	for _, req := range reqs {
		wg.Add(1)
		go func(r ProposeScheduleRequest) {
			defer wg.Done()
			_, _ = svc.Propose(context.Background(), r)
		}(req)
	}
	wg.Wait()

	committed := repo.live
	require.NotEmpty(t, committed)
	for i := range committed {
		for j := i + 1; j < len(committed); j++ {
			if committed[i].SpotLabel != committed[j].SpotLabel {
				continue
			}
			assert.Falsef(t, committed[i].ConflictsWith(&committed[j]),
				"schedules %s and %s overlap on spot %s", committed[i].ID, committed[j].ID, committed[i].SpotLabel)
		}
	}
}
