package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/parkgrid-api/internal/models"
)

// IssueRepository persists trouble tickets raised against spots.
type IssueRepository struct {
	db *sqlx.DB
}

// NewIssueRepository creates a new issue repository.
func NewIssueRepository(db *sqlx.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

const issueColumns = "id, lot_id, spot_label, reporter_id, description, open, created_at, updated_at"

// ListByLot returns issues for a lot, optionally narrowed to one spot label.
func (r *IssueRepository) ListByLot(ctx context.Context, lotID, spotLabel string) ([]models.Issue, error) {
	query := fmt.Sprintf("SELECT %s FROM issues WHERE lot_id = $1", issueColumns)
	args := []interface{}{lotID}
	if spotLabel != "" {
		query += " AND spot_label = $2"
		args = append(args, spotLabel)
	}
	query += " ORDER BY created_at DESC"

	var issues []models.Issue
	if err := r.db.SelectContext(ctx, &issues, query, args...); err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return issues, nil
}

// Create stores a new issue.
func (r *IssueRepository) Create(ctx context.Context, issue *models.Issue) error {
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	issue.CreatedAt = now
	issue.UpdatedAt = now
	issue.Open = true

	const query = `INSERT INTO issues (id, lot_id, spot_label, reporter_id, description, open, created_at, updated_at) VALUES (:id, :lot_id, :spot_label, :reporter_id, :description, :open, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, issue); err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}
