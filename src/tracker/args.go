package tracker

import (
	"errors"
	"fmt"
	"strconv"

	"rodspot/src/grid"
)

// ErrUsage is returned for missing or malformed positional arguments.
var ErrUsage = errors.New("usage: global_mouse_tracker <x> <y> <width> <height>")

// ParseArgs reads the tracked rectangle from exactly four base-10 integers.
// Values are limited to 32 bits so edge sums and cell products stay exact.
func ParseArgs(args []string) (grid.Rect, error) {
	if len(args) != 4 {
		return grid.Rect{}, fmt.Errorf("%w: expected 4 arguments, got %d", ErrUsage, len(args))
	}

	names := [4]string{"x", "y", "width", "height"}
	var vals [4]int
	for i, a := range args {
		n, err := strconv.ParseInt(a, 10, 32)
		if err != nil {
			return grid.Rect{}, fmt.Errorf("%w: %s %q is not a 32-bit integer", ErrUsage, names[i], a)
		}
		vals[i] = int(n)
	}

	r := grid.Rect{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}
	if !r.Valid() {
		return grid.Rect{}, fmt.Errorf("%w: width and height must be positive (got %dx%d)", ErrUsage, r.Width, r.Height)
	}
	return r, nil
}
