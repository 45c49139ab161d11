package models

import (
	"fmt"
	"sort"
	"time"
)

// Coord addresses a single grid cell. Row and column are zero-based.
type Coord struct {
	Row int `json:"row" db:"grid_row"`
	Col int `json:"col" db:"grid_col"`
}

// Label encodes the coordinate as the stable spot label for its cell.
func (c Coord) Label() string {
	return fmt.Sprintf("R%dC%d", c.Row, c.Col)
}

// ParkingLot is a physical lot stored as a typed grid. Aisles are kept as
// an explicit coordinate set, not a serialized blob, and capacity is
// computed whenever the layout changes.
type ParkingLot struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Rows      int       `db:"grid_rows" json:"rows"`
	Cols      int       `db:"grid_cols" json:"cols"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Aisles    []Coord   `db:"-" json:"aisles"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Layout returns the validated grid geometry for the lot.
func (l *ParkingLot) Layout() (*LotLayout, error) {
	return NewLotLayout(l.Rows, l.Cols, l.Aisles)
}

// LotLayout is validated grid geometry: extent plus the aisle set.
type LotLayout struct {
	Rows   int
	Cols   int
	aisles map[Coord]struct{}
}

// NewLotLayout validates and builds a layout. It fails when the extent is
// non-positive, an aisle lies outside the grid, or an aisle repeats.
func NewLotLayout(rows, cols int, aisles []Coord) (*LotLayout, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("grid extent must be at least 1x1, got %dx%d", rows, cols)
	}
	set := make(map[Coord]struct{}, len(aisles))
	for _, a := range aisles {
		if a.Row < 0 || a.Row >= rows || a.Col < 0 || a.Col >= cols {
			return nil, fmt.Errorf("aisle %s outside %dx%d grid", a.Label(), rows, cols)
		}
		if _, dup := set[a]; dup {
			return nil, fmt.Errorf("duplicate aisle %s", a.Label())
		}
		set[a] = struct{}{}
	}
	return &LotLayout{Rows: rows, Cols: cols, aisles: set}, nil
}

// InBounds reports whether the coordinate lies inside the grid.
func (l *LotLayout) InBounds(c Coord) bool {
	return c.Row >= 0 && c.Row < l.Rows && c.Col >= 0 && c.Col < l.Cols
}

// IsAisle reports whether the cell is excluded from parking use.
func (l *LotLayout) IsAisle(c Coord) bool {
	_, ok := l.aisles[c]
	return ok
}

// Parkable reports whether the coordinate can host a spot.
func (l *LotLayout) Parkable(c Coord) bool {
	return l.InBounds(c) && !l.IsAisle(c)
}

// Capacity is the number of parkable cells.
func (l *LotLayout) Capacity() int {
	return l.Rows*l.Cols - len(l.aisles)
}

// ParkableCoords lists every parkable cell in row-major order.
func (l *LotLayout) ParkableCoords() []Coord {
	out := make([]Coord, 0, l.Capacity())
	for r := 0; r < l.Rows; r++ {
		for c := 0; c < l.Cols; c++ {
			coord := Coord{Row: r, Col: c}
			if !l.IsAisle(coord) {
				out = append(out, coord)
			}
		}
	}
	return out
}

// AisleCoords lists the aisle cells in row-major order.
func (l *LotLayout) AisleCoords() []Coord {
	out := make([]Coord, 0, len(l.aisles))
	for a := range l.aisles {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Col < out[j].Col
	})
	return out
}

// LotFilter captures filtering criteria for listing lots.
type LotFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
