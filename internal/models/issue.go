package models

import "time"

// Issue is a trouble ticket raised against a spot. The core treats it as
// an external collaborator entity: a read/create path keyed by spot
// label, with no workflow of its own.
type Issue struct {
	ID          string    `db:"id" json:"id"`
	LotID       string    `db:"lot_id" json:"lot_id"`
	SpotLabel   string    `db:"spot_label" json:"spot_label"`
	ReporterID  string    `db:"reporter_id" json:"reporter_id"`
	Description string    `db:"description" json:"description"`
	Open        bool      `db:"open" json:"open"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
