package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dispatch-be/internal/auth"
	"dispatch-be/internal/logger"
	"dispatch-be/internal/metrics"
	"dispatch-be/internal/order"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Courier is one courier's claim session. Claims from the same courier are
// serialized; the store guard decides between couriers.
type Courier struct {
	id uuid.UUID
	d  *Dispatcher

	mu       sync.Mutex
	held     *uuid.UUID
	lastUsed time.Time
	evicted  bool
}

func (c *Courier) ID() uuid.UUID { return c.id }

// Holding returns the id of the order out for delivery, if any.
func (c *Courier) Holding() *uuid.UUID {
	c.mu.Lock()
	if c.evicted {
		c.mu.Unlock()
		if next := c.d.lookup(c.id); next != nil {
			return next.Holding()
		}
		return nil
	}
	defer c.mu.Unlock()
	if c.held == nil {
		return nil
	}
	id := *c.held
	return &id
}

func (c *Courier) actor() auth.Actor {
	return auth.Actor{ID: c.id, Role: auth.RoleCourier}
}

// acquire locks the courier's live session, following evictions to the
// session that replaced this one.
func (c *Courier) acquire(ctx context.Context) (*Courier, error) {
	for {
		c.mu.Lock()
		if !c.evicted {
			c.lastUsed = c.d.now()
			return c, nil
		}
		c.mu.Unlock()

		next, err := c.d.Session(ctx, c.id)
		if err != nil {
			return nil, err
		}
		c = next
	}
}

func (c *Courier) Claim(ctx context.Context, orderID uuid.UUID) (ClaimResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "dispatch"),
		zap.String("method", "Claim"),
		zap.String("courier_id", c.id.String()),
		zap.String("order_id", orderID.String()),
	)

	timer := metrics.StartTimer()
	c, err := c.acquire(ctx)
	if err != nil {
		return ClaimResult{}, err
	}
	defer c.mu.Unlock()

	if c.held != nil {
		c.d.Refused.Inc()
		log.Info("claim refused, courier already holding", zap.String("held_order_id", c.held.String()))
		return ClaimResult{}, ErrAlreadyHolding
	}

	o, err := c.d.store.Claim(ctx, orderID, c.id)
	if err != nil {
		log.Warn("claim write did not answer, resolving", zap.Error(err))
		o, err = c.resolve(ctx, orderID, err)
		if err != nil {
			c.d.Unknown.Inc()
			return ClaimResult{}, err
		}
	}

	if o == nil {
		c.d.Lost.Inc()
		log.Info("claim lost", zap.Duration("took", timer.Duration()))
		return ClaimResult{Outcome: ClaimLost}, nil
	}

	id := o.ID
	c.held = &id
	c.d.Won.Inc()
	log.Info("claim won",
		zap.Int64("order_number", o.OrderNumber),
		zap.Duration("took", timer.Duration()),
	)
	order.PublishClaim(ctx, c.d.publisher, o)
	return ClaimResult{Outcome: ClaimWon, Order: o}, nil
}

// resolve re-reads the order after a failed claim write, since the write may
// have committed even though its response was lost. A nil order means lost.
func (c *Courier) resolve(ctx context.Context, orderID uuid.UUID, cause error) (*order.Order, error) {
	fresh, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.d.RefetchTimeout)
	defer cancel()

	o, err := c.d.store.GetByID(fresh, orderID)
	if errors.Is(err, order.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v (re-fetch: %v)", ErrOutcomeUnknown, cause, err)
	}
	if o.DriverID != nil && *o.DriverID == c.id && o.Status == order.StatusOutForDelivery {
		return o, nil
	}
	if o.Status == order.StatusReady && o.DriverID == nil {
		// Nobody holds it yet, but our write may still be in flight.
		return nil, fmt.Errorf("%w: %v", ErrOutcomeUnknown, cause)
	}
	return nil, nil
}

// Deliver completes the held order and releases the hold.
func (c *Courier) Deliver(ctx context.Context) (*order.Order, error) {
	c, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer c.mu.Unlock()

	if c.held == nil {
		return nil, ErrNothingHeld
	}

	o, err := c.d.lifecycle.Transition(ctx, *c.held, order.StatusDelivered, c.actor())
	if err != nil {
		if errors.Is(err, order.ErrConflict) || errors.Is(err, order.ErrInvalidTransition) || errors.Is(err, order.ErrForbidden) {
			// The order left us (admin cancellation); drop the stale hold.
			_ = c.refreshLocked(ctx)
		}
		return nil, err
	}

	c.held = nil
	c.d.Delivers.Inc()
	return o, nil
}

// Refresh reloads the held order from the store.
func (c *Courier) Refresh(ctx context.Context) error {
	c, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *Courier) refreshLocked(ctx context.Context) error {
	held, err := c.d.store.GetActiveForDriver(ctx, c.id)
	if err != nil {
		return err
	}
	c.held = nil
	if held != nil {
		id := held.ID
		c.held = &id
	}
	return nil
}
