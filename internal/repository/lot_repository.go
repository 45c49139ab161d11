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

// LotRepository provides persistence for parking lots and their aisle sets.
type LotRepository struct {
	db *sqlx.DB
}

// NewLotRepository creates a new lot repository.
func NewLotRepository(db *sqlx.DB) *LotRepository {
	return &LotRepository{db: db}
}

const lotColumns = "id, name, grid_rows, grid_cols, capacity, created_at, updated_at"

// List returns lots with optional filtering and pagination.
func (r *LotRepository) List(ctx context.Context, filter models.LotFilter) ([]models.ParkingLot, int, error) {
	base := "FROM parking_lots WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":       true,
		"capacity":   true,
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", lotColumns, base, sortBy, order, size, offset)
	var lots []models.ParkingLot
	if err := r.db.SelectContext(ctx, &lots, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list lots: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count lots: %w", err)
	}

	for i := range lots {
		aisles, err := r.loadAisles(ctx, lots[i].ID)
		if err != nil {
			return nil, 0, err
		}
		lots[i].Aisles = aisles
	}
	return lots, total, nil
}

// FindByID loads a lot and its aisle set.
func (r *LotRepository) FindByID(ctx context.Context, id string) (*models.ParkingLot, error) {
	query := fmt.Sprintf("SELECT %s FROM parking_lots WHERE id = $1", lotColumns)
	var lot models.ParkingLot
	if err := r.db.GetContext(ctx, &lot, query, id); err != nil {
		return nil, err
	}
	aisles, err := r.loadAisles(ctx, id)
	if err != nil {
		return nil, err
	}
	lot.Aisles = aisles
	return &lot, nil
}

func (r *LotRepository) loadAisles(ctx context.Context, lotID string) ([]models.Coord, error) {
	const query = `SELECT grid_row, grid_col FROM lot_aisles WHERE lot_id = $1 ORDER BY grid_row, grid_col`
	var aisles []models.Coord
	if err := r.db.SelectContext(ctx, &aisles, query, lotID); err != nil {
		return nil, fmt.Errorf("load lot aisles: %w", err)
	}
	return aisles, nil
}

// Create stores a new lot with its aisle rows in one transaction.
func (r *LotRepository) Create(ctx context.Context, lot *models.ParkingLot) error {
	if lot.ID == "" {
		lot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	lot.CreatedAt = now
	lot.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create lot: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO parking_lots (id, name, grid_rows, grid_cols, capacity, created_at, updated_at) VALUES (:id, :name, :grid_rows, :grid_cols, :capacity, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, lot); err != nil {
		return fmt.Errorf("create lot: %w", err)
	}
	if err = insertAisles(ctx, tx, lot.ID, lot.Aisles); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create lot: %w", err)
	}
	return nil
}

// UpdateLayout persists new geometry, replacing the aisle set.
func (r *LotRepository) UpdateLayout(ctx context.Context, lot *models.ParkingLot) error {
	lot.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update lot layout: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `UPDATE parking_lots SET name = :name, grid_rows = :grid_rows, grid_cols = :grid_cols, capacity = :capacity, updated_at = :updated_at WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, query, lot); err != nil {
		return fmt.Errorf("update lot layout: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM lot_aisles WHERE lot_id = $1`, lot.ID); err != nil {
		return fmt.Errorf("clear lot aisles: %w", err)
	}
	if err = insertAisles(ctx, tx, lot.ID, lot.Aisles); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update lot layout: %w", err)
	}
	return nil
}

func insertAisles(ctx context.Context, tx *sqlx.Tx, lotID string, aisles []models.Coord) error {
	for _, a := range aisles {
		if _, err := tx.ExecContext(ctx, `INSERT INTO lot_aisles (lot_id, grid_row, grid_col) VALUES ($1, $2, $3)`, lotID, a.Row, a.Col); err != nil {
			return fmt.Errorf("insert aisle %s: %w", a.Label(), err)
		}
	}
	return nil
}

// Delete removes a lot and cascades to dependent spots and schedules.
func (r *LotRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete lot: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		`DELETE FROM schedules WHERE lot_id = $1`,
		`DELETE FROM spots WHERE lot_id = $1`,
		`DELETE FROM lot_aisles WHERE lot_id = $1`,
		`DELETE FROM parking_lots WHERE id = $1`,
	} {
		if _, err = tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("cascade delete lot: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete lot: %w", err)
	}
	return nil
}
