package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/parkgrid-api/internal/models"
)

// ScheduleRepository provides persistence for reservations. Rows are
// keyed by (lot_id, spot_label) with a supporting index so per-spot
// overlap scans stay cheap.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = "id, user_id, vehicle_id, lot_id, spot_label, date, start_time, end_time, is_recurring, recurring_days, status, created_at, updated_at"

// List returns schedules with optional filtering and pagination.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error) {
	base := "FROM schedules WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.LotID != "" {
		conditions = append(conditions, fmt.Sprintf("lot_id = $%d", len(args)+1))
		args = append(args, filter.LotID)
	}
	if filter.SpotLabel != "" {
		conditions = append(conditions, fmt.Sprintf("spot_label = $%d", len(args)+1))
		args = append(args, filter.SpotLabel)
	}
	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Date != "" {
		conditions = append(conditions, fmt.Sprintf("date = $%d", len(args)+1))
		args = append(args, filter.Date)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"date":       true,
		"start_time": true,
		"status":     true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", scheduleColumns, base, sortBy, order, size, offset)
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}

	return schedules, total, nil
}

// FindByID loads a schedule by id.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	query := fmt.Sprintf("SELECT %s FROM schedules WHERE id = $1", scheduleColumns)
	var sched models.Schedule
	if err := r.db.GetContext(ctx, &sched, query, id); err != nil {
		return nil, err
	}
	return &sched, nil
}

// ListLiveForSpot returns every non-cancelled schedule on one spot. This
// is the read half of the overlap check.
func (r *ScheduleRepository) ListLiveForSpot(ctx context.Context, lotID, spotLabel string) ([]models.Schedule, error) {
	query := fmt.Sprintf("SELECT %s FROM schedules WHERE lot_id = $1 AND spot_label = $2 AND status <> 'cancelled' ORDER BY date ASC, start_time ASC", scheduleColumns)
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, lotID, spotLabel); err != nil {
		return nil, fmt.Errorf("list live schedules for spot: %w", err)
	}
	return schedules, nil
}

// ListLiveForLot returns every non-cancelled schedule of a lot.
func (r *ScheduleRepository) ListLiveForLot(ctx context.Context, lotID string) ([]models.Schedule, error) {
	query := fmt.Sprintf("SELECT %s FROM schedules WHERE lot_id = $1 AND status <> 'cancelled' ORDER BY spot_label ASC, date ASC", scheduleColumns)
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, lotID); err != nil {
		return nil, fmt.Errorf("list live schedules for lot: %w", err)
	}
	return schedules, nil
}

// ListSweepable returns schedules whose status may still change with time.
func (r *ScheduleRepository) ListSweepable(ctx context.Context, lotID string) ([]models.Schedule, error) {
	query := fmt.Sprintf("SELECT %s FROM schedules WHERE lot_id = $1 AND status IN ('pending', 'active')", scheduleColumns)
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, lotID); err != nil {
		return nil, fmt.Errorf("list sweepable schedules: %w", err)
	}
	return schedules, nil
}

// ListLotIDs returns the ids of every lot holding sweepable schedules.
func (r *ScheduleRepository) ListLotIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT DISTINCT lot_id FROM schedules WHERE status IN ('pending', 'active')`); err != nil {
		return nil, fmt.Errorf("list schedule lot ids: %w", err)
	}
	return ids, nil
}

// Create stores a new schedule record.
func (r *ScheduleRepository) Create(ctx context.Context, schedule *models.Schedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	const query = `INSERT INTO schedules (id, user_id, vehicle_id, lot_id, spot_label, date, start_time, end_time, is_recurring, recurring_days, status, created_at, updated_at) VALUES (:id, :user_id, :vehicle_id, :lot_id, :spot_label, :date, :start_time, :end_time, :is_recurring, :recurring_days, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, schedule); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

// UpdateStatus advances the lifecycle state of a schedule.
func (r *ScheduleRepository) UpdateStatus(ctx context.Context, id string, status models.ScheduleStatus) error {
	const query = `UPDATE schedules SET status = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update schedule status: %w", err)
	}
	return nil
}
