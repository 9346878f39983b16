package fee

import (
	"context"
	"errors"
)

var ErrRouteUnavailable = errors.New("route unavailable")

type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

type Route struct {
	DistanceKm  float64
	DurationMin float64
}

// Router is the mapping collaborator. Any error means routing is unavailable
// for this quote.
type Router interface {
	Route(ctx context.Context, origin, destination Point) (Route, error)
}
