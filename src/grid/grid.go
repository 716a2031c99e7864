package grid

import "fmt"

// Grid arity shared by the overlay and the tracker. Not transmitted; both
// sides of the process boundary must agree on it.
const (
	Columns = 15
	Rows    = 11
)

// Rect is the tracked screen region in absolute virtual-desktop pixels.
type Rect struct {
	X      int `json:"x" mapstructure:"x"`
	Y      int `json:"y" mapstructure:"y"`
	Width  int `json:"width" mapstructure:"width"`
	Height int `json:"height" mapstructure:"height"`
}

// Point is an absolute screen coordinate.
type Point struct {
	X int
	Y int
}

// Cell is a zero-based grid position.
type Cell struct {
	Col int
	Row int
}

// Valid reports whether the rectangle has a positive area.
func (r Rect) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// Contains uses half-open bounds: the right and bottom edges are outside.
func (r Rect) Contains(p Point) bool {
	if !r.Valid() {
		return false
	}
	return p.X >= r.X && p.X < r.X+r.Width &&
		p.Y >= r.Y && p.Y < r.Y+r.Height
}

func (r Rect) String() string {
	return fmt.Sprintf("x=%d y=%d w=%d h=%d", r.X, r.Y, r.Width, r.Height)
}

// Args renders the rectangle as the tracker's positional arguments.
func (r Rect) Args() []string {
	return []string{
		fmt.Sprint(r.X),
		fmt.Sprint(r.Y),
		fmt.Sprint(r.Width),
		fmt.Sprint(r.Height),
	}
}

// Resolve maps p to the cell of a columns x rows partition of r. It returns
// false when p lies outside r or the arity is not positive.
//
// The cell index is floor(rel / size * n), computed in integer arithmetic so
// every platform gets identical results at cell borders.
func Resolve(r Rect, columns, rows int, p Point) (Cell, bool) {
	if columns <= 0 || rows <= 0 || !r.Contains(p) {
		return Cell{}, false
	}

	col := int(int64(p.X-r.X) * int64(columns) / int64(r.Width))
	row := int(int64(p.Y-r.Y) * int64(rows) / int64(r.Height))

	return Cell{
		Col: clamp(col, 0, columns-1),
		Row: clamp(row, 0, rows-1),
	}, true
}

// ResolveDefault resolves against the fixed 15x11 grid.
func ResolveDefault(r Rect, p Point) (Cell, bool) {
	return Resolve(r, Columns, Rows, p)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
