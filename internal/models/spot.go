package models

import "time"

// SpotStatus enumerates spot states. Only available and disabled may be
// set by an operator; reserved and occupied are derived from schedules.
type SpotStatus string

const (
	SpotAvailable SpotStatus = "available"
	SpotReserved  SpotStatus = "reserved"
	SpotOccupied  SpotStatus = "occupied"
	SpotDisabled  SpotStatus = "disabled"
)

// ManualStatus reports whether an operator may set the status directly.
func (s SpotStatus) ManualStatus() bool {
	return s == SpotAvailable || s == SpotDisabled
}

// Valid reports whether the value is a known spot status.
func (s SpotStatus) Valid() bool {
	switch s {
	case SpotAvailable, SpotReserved, SpotOccupied, SpotDisabled:
		return true
	}
	return false
}

// Spot is a parkable cell of a lot. The label is unique within the lot
// and stable across resizes for coordinates that survive. A retired spot
// keeps its row but loses its coordinate (Row/Col become nil).
type Spot struct {
	ID        string     `db:"id" json:"id"`
	LotID     string     `db:"lot_id" json:"lot_id"`
	Label     string     `db:"label" json:"label"`
	Row       *int       `db:"grid_row" json:"row,omitempty"`
	Col       *int       `db:"grid_col" json:"col,omitempty"`
	Status    SpotStatus `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Coord returns the grid coordinate, or false when the spot is retired.
func (s *Spot) Coord() (Coord, bool) {
	if s.Row == nil || s.Col == nil {
		return Coord{}, false
	}
	return Coord{Row: *s.Row, Col: *s.Col}, true
}

// Retired reports whether the spot has been detached from the grid.
func (s *Spot) Retired() bool {
	return s.Row == nil || s.Col == nil
}
