// Package bounds persists the last tracked rectangle between host runs as a
// flat JSON object {"x":..,"y":..,"width":..,"height":..}.
package bounds

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"rodspot/src/grid"
)

var ErrInvalid = errors.New("saved bounds are not a valid rectangle")

type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

func (s *Store) newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	return v
}

// Load returns the saved rectangle. ok is false when nothing has been saved.
func (s *Store) Load() (grid.Rect, bool, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return grid.Rect{}, false, nil
	}

	v := s.newViper()
	if err := v.ReadInConfig(); err != nil {
		return grid.Rect{}, false, fmt.Errorf("reading %s: %w", s.path, err)
	}

	var r grid.Rect
	if err := v.Unmarshal(&r); err != nil {
		return grid.Rect{}, false, fmt.Errorf("decoding %s: %w", s.path, err)
	}
	if !r.Valid() {
		return grid.Rect{}, false, fmt.Errorf("%w: %s", ErrInvalid, r)
	}
	return r, true, nil
}

// Save overwrites the file with r, creating its directory if needed.
func (s *Store) Save(r grid.Rect) error {
	if !r.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalid, r)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	v := s.newViper()
	v.Set("x", r.X)
	v.Set("y", r.Y)
	v.Set("width", r.Width)
	v.Set("height", r.Height)
	if err := v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	log.Printf("bounds: saved %s to %s", r, s.path)
	return nil
}
