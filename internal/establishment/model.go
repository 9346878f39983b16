package establishment

import (
	"time"

	"dispatch-be/internal/fee"

	"github.com/google/uuid"
)

type Establishment struct {
	ID             uuid.UUID
	Name           string
	NeighborhoodID *uuid.UUID
	Lat            *float64
	Lng            *float64
	IsOpen         bool
	CreatedAt      time.Time
}

// Location is nil unless both coordinates are known.
func (e *Establishment) Location() *fee.Point {
	if e.Lat == nil || e.Lng == nil {
		return nil
	}
	return &fee.Point{Lat: *e.Lat, Lng: *e.Lng}
}
