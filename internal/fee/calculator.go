package fee

import (
	"context"

	"dispatch-be/internal/logger"
	"dispatch-be/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Source records which pricing step produced a quote.
type Source string

const (
	SourceRoute   Source = "route"
	SourceZone    Source = "zone"
	SourceDefault Source = "default"
)

// Quote is attached to an order at creation and never re-validated.
type Quote struct {
	Fee         int64    `json:"fee"`
	DistanceKm  *float64 `json:"distance_km,omitempty"`
	DurationMin *float64 `json:"duration_min,omitempty"`
	Source      Source   `json:"source"`
}

// Degraded reports whether routing could not be used.
func (q Quote) Degraded() bool {
	return q.Source != SourceRoute
}

type Destination struct {
	Point          *Point
	NeighborhoodID *uuid.UUID
}

// ZoneFees resolves the flat delivery fee of a neighborhood.
type ZoneFees interface {
	DeliveryFee(ctx context.Context, neighborhoodID uuid.UUID) (int64, error)
}

type Calculator struct {
	router     Router
	zones      ZoneFees
	schedule   Schedule
	defaultFee int64

	Quotes   metrics.Counter
	Degrades metrics.Counter
}

// NewCalculator accepts a nil router when no mapping provider is configured.
func NewCalculator(router Router, zones ZoneFees, schedule Schedule, defaultFee int64) *Calculator {
	return &Calculator{
		router:     router,
		zones:      zones,
		schedule:   schedule,
		defaultFee: defaultFee,
	}
}

// Quote never fails: routing problems fall back to the zone fee, then to the
// default fee.
func (c *Calculator) Quote(ctx context.Context, establishment *Point, dest Destination) Quote {
	log := logger.FromCtx(ctx).With(zap.String("layer", "fee"))
	c.Quotes.Inc()

	if q, ok := c.routeQuote(ctx, log, establishment, dest.Point); ok {
		return q
	}
	c.Degrades.Inc()

	if dest.NeighborhoodID != nil && c.zones != nil {
		fee, err := c.zones.DeliveryFee(ctx, *dest.NeighborhoodID)
		if err == nil {
			return Quote{Fee: fee, Source: SourceZone}
		}
		log.Warn("zone fee unavailable",
			zap.String("neighborhood_id", dest.NeighborhoodID.String()),
			zap.Error(err),
		)
	}

	return Quote{Fee: c.defaultFee, Source: SourceDefault}
}

func (c *Calculator) routeQuote(ctx context.Context, log *zap.Logger, origin, dest *Point) (Quote, bool) {
	if c.router == nil || origin == nil || dest == nil {
		return Quote{}, false
	}

	route, err := c.router.Route(ctx, *origin, *dest)
	if err != nil {
		log.Warn("routing unavailable, falling back", zap.Error(err))
		return Quote{}, false
	}

	distance, duration := route.DistanceKm, route.DurationMin
	return Quote{
		Fee:         c.schedule.FeeFor(distance),
		DistanceKm:  &distance,
		DurationMin: &duration,
		Source:      SourceRoute,
	}, true
}
