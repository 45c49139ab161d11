package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/parkgrid-api/internal/models"
)

// SpotRepository provides persistence for spots.
type SpotRepository struct {
	db *sqlx.DB
}

// NewSpotRepository creates a new spot repository.
func NewSpotRepository(db *sqlx.DB) *SpotRepository {
	return &SpotRepository{db: db}
}

const spotColumns = "id, lot_id, label, grid_row, grid_col, status, created_at, updated_at"

// ListByLot returns every spot of a lot, including retired ones,
// ordered by label.
func (r *SpotRepository) ListByLot(ctx context.Context, lotID string) ([]models.Spot, error) {
	query := fmt.Sprintf("SELECT %s FROM spots WHERE lot_id = $1 ORDER BY label ASC", spotColumns)
	var spots []models.Spot
	if err := r.db.SelectContext(ctx, &spots, query, lotID); err != nil {
		return nil, fmt.Errorf("list spots: %w", err)
	}
	return spots, nil
}

// FindByLabel loads a spot by its lot and label.
func (r *SpotRepository) FindByLabel(ctx context.Context, lotID, label string) (*models.Spot, error) {
	query := fmt.Sprintf("SELECT %s FROM spots WHERE lot_id = $1 AND label = $2", spotColumns)
	var spot models.Spot
	if err := r.db.GetContext(ctx, &spot, query, lotID, label); err != nil {
		return nil, err
	}
	return &spot, nil
}

// FindByID loads a spot by id.
func (r *SpotRepository) FindByID(ctx context.Context, id string) (*models.Spot, error) {
	query := fmt.Sprintf("SELECT %s FROM spots WHERE id = $1", spotColumns)
	var spot models.Spot
	if err := r.db.GetContext(ctx, &spot, query, id); err != nil {
		return nil, err
	}
	return &spot, nil
}

// CreateBatch inserts spots within a transaction.
func (r *SpotRepository) CreateBatch(ctx context.Context, spots []models.Spot) error {
	if len(spots) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create spots: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for i := range spots {
		payload := spots[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		if payload.CreatedAt.IsZero() {
			payload.CreatedAt = now
		}
		payload.UpdatedAt = now

		const query = `INSERT INTO spots (id, lot_id, label, grid_row, grid_col, status, created_at, updated_at) VALUES (:id, :lot_id, :label, :grid_row, :grid_col, :status, :created_at, :updated_at)`
		if _, err = sqlx.NamedExecContext(ctx, tx, query, &payload); err != nil {
			return fmt.Errorf("insert spot %s: %w", payload.Label, err)
		}
		spots[i] = payload
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create spots: %w", err)
	}
	return nil
}

// UpdateStatus sets a spot's manual status.
func (r *SpotRepository) UpdateStatus(ctx context.Context, id string, status models.SpotStatus) error {
	const query = `UPDATE spots SET status = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update spot status: %w", err)
	}
	return nil
}

// Reattach restores a retired spot to a parkable coordinate.
func (r *SpotRepository) Reattach(ctx context.Context, id string, coord models.Coord) error {
	const query = `UPDATE spots SET grid_row = $1, grid_col = $2, status = 'available', updated_at = $3 WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, query, coord.Row, coord.Col, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("reattach spot: %w", err)
	}
	return nil
}

// Retire soft-deletes spots: disabled status, coordinate detached.
func (r *SpotRepository) Retire(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE spots SET status = 'disabled', grid_row = NULL, grid_col = NULL, updated_at = ? WHERE id IN (?)`, time.Now().UTC(), ids)
	if err != nil {
		return fmt.Errorf("build retire spots: %w", err)
	}
	query = r.db.Rebind(query)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("retire spots: %w", err)
	}
	return nil
}
