package capture

import (
	"context"
	"errors"
)

// ErrNoLocation is returned when no position is available.
var ErrNoLocation = errors.New("capture: no location available")

// Coordinates is a position in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude" yaml:"lat"`
	Longitude float64 `json:"longitude" yaml:"lon"`
}

// Locator provides the current position.
type Locator interface {
	Locate(ctx context.Context) (Coordinates, error)
}

// StaticLocator always reports the same configured position.
type StaticLocator struct {
	Position *Coordinates
}

// Locate returns the configured position or ErrNoLocation.
func (l StaticLocator) Locate(ctx context.Context) (Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return Coordinates{}, err
	}
	if l.Position == nil {
		return Coordinates{}, ErrNoLocation
	}
	return *l.Position, nil
}
