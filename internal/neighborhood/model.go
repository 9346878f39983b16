package neighborhood

import (
	"time"

	"github.com/google/uuid"
)

// Neighborhood is an administrative zone with a flat delivery fee in minor units.
type Neighborhood struct {
	ID          uuid.UUID
	CityID      uuid.UUID
	Name        string
	DeliveryFee int64
	Active      bool
	CreatedAt   time.Time
}
