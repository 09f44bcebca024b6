package stations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxNameLength bounds station names.
const MaxNameLength = 20

var (
	// ErrNotFound is returned when a station does not exist.
	ErrNotFound = errors.New("station: not found")
	// ErrValidation is returned for malformed station input.
	ErrValidation = errors.New("station: validation failed")
	// ErrStationInUse is returned when deleting a station referenced by a line.
	ErrStationInUse = errors.New("station: referenced by a line")
	// ErrNilStation is returned when saving a nil station.
	ErrNilStation = errors.New("station: nil station")
)

// Station is a stop that line sections connect.
type Station struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks station invariants.
func (s Station) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrValidation)
	}
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrValidation)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("%w: name longer than %d", ErrValidation, MaxNameLength)
	}
	return nil
}

// Registry resolves stations by id. Get returns nil, nil when missing.
type Registry interface {
	Get(ctx context.Context, id string) (*Station, error)
}

// Repository manages station persistence.
type Repository interface {
	Registry
	List(ctx context.Context) ([]Station, error)
	Save(ctx context.Context, station *Station) error
	Delete(ctx context.Context, id string) error
}
