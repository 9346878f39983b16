package fee

import (
	"context"
	"math"
)

const earthRadiusKm = 6371.0088

// HaversineKm is the great-circle distance between two points in kilometres.
func HaversineKm(a, b Point) float64 {
	const degToRad = math.Pi / 180
	dLat := (b.Lat - a.Lat) * degToRad
	dLng := (b.Lng - a.Lng) * degToRad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*degToRad)*math.Cos(b.Lat*degToRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// HaversineRouter estimates a route offline from straight-line distance.
type HaversineRouter struct {
	// Road distance over straight-line distance; 1.3 when zero.
	DetourFactor float64
	// Average courier speed; 25 km/h when zero.
	SpeedKmh float64
}

func (h HaversineRouter) Route(_ context.Context, origin, destination Point) (Route, error) {
	detour := h.DetourFactor
	if detour <= 0 {
		detour = 1.3
	}
	speed := h.SpeedKmh
	if speed <= 0 {
		speed = 25
	}

	km := HaversineKm(origin, destination) * detour
	return Route{
		DistanceKm:  km,
		DurationMin: km / speed * 60,
	}, nil
}
