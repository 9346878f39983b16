package dispatch

import (
	"context"
	"sync"
	"time"

	"dispatch-be/internal/auth"
	"dispatch-be/internal/logger"
	"dispatch-be/internal/metrics"
	"dispatch-be/internal/order"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the subset of the order repository the claim protocol needs.
type Store interface {
	Claim(ctx context.Context, orderID, driverID uuid.UUID) (*order.Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error)
	ListAvailable(ctx context.Context, limit int) ([]*order.Order, error)
	GetActiveForDriver(ctx context.Context, driverID uuid.UUID) (*order.Order, error)
}

type Lifecycle interface {
	Transition(ctx context.Context, id uuid.UUID, target order.Status, actor auth.Actor) (*order.Order, error)
}

// Dispatcher owns the courier sessions of this process.
type Dispatcher struct {
	store     Store
	lifecycle Lifecycle
	publisher order.EventPublisher

	// RefetchTimeout bounds the read that resolves an unknown claim outcome.
	RefetchTimeout time.Duration

	mu       sync.Mutex
	couriers map[uuid.UUID]*Courier
	now      func() time.Time

	Won      metrics.Counter
	Lost     metrics.Counter
	Refused  metrics.Counter
	Unknown  metrics.Counter
	Delivers metrics.Counter
	Evicted  metrics.Counter
}

func NewDispatcher(store Store, lifecycle Lifecycle, publisher order.EventPublisher) *Dispatcher {
	return &Dispatcher{
		store:          store,
		lifecycle:      lifecycle,
		publisher:      publisher,
		RefetchTimeout: 3 * time.Second,
		couriers:       make(map[uuid.UUID]*Courier),
		now:            time.Now,
	}
}

// Session returns the courier's session, loading any order it already holds
// the first time the courier is seen.
func (d *Dispatcher) Session(ctx context.Context, courierID uuid.UUID) (*Courier, error) {
	d.mu.Lock()
	c, ok := d.couriers[courierID]
	d.mu.Unlock()
	if ok {
		return c, nil
	}

	held, err := d.store.GetActiveForDriver(ctx, courierID)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.couriers[courierID]; ok {
		return c, nil
	}
	c = &Courier{id: courierID, d: d, lastUsed: d.now()}
	if held != nil {
		id := held.ID
		c.held = &id
	}
	d.couriers[courierID] = c

	logger.FromCtx(ctx).Debug("courier session opened",
		zap.String("layer", "dispatch"),
		zap.String("courier_id", courierID.String()),
		zap.Bool("holding", c.held != nil),
	)
	return c, nil
}

func (d *Dispatcher) lookup(courierID uuid.UUID) *Courier {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.couriers[courierID]
}

// Available is the pool of ready, unclaimed orders, oldest first.
func (d *Dispatcher) Available(ctx context.Context, limit int) ([]*order.Order, error) {
	return d.store.ListAvailable(ctx, limit)
}

// Run evicts sessions that hold nothing and were idle for longer than idle,
// until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, every, idle time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := d.evictIdle(idle); n > 0 {
				logger.FromCtx(ctx).Debug("idle courier sessions evicted",
					zap.String("layer", "dispatch"),
					zap.Int("count", n),
				)
			}
		}
	}
}

// evictIdle skips sessions that are busy; an evicted session hands later
// calls over to a fresh one.
func (d *Dispatcher) evictIdle(idle time.Duration) int {
	cutoff := d.now().Add(-idle)

	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for id, c := range d.couriers {
		if !c.mu.TryLock() {
			continue
		}
		if c.held == nil && c.lastUsed.Before(cutoff) {
			c.evicted = true
			delete(d.couriers, id)
			n++
		}
		c.mu.Unlock()
	}
	d.Evicted.Add(uint64(n))
	return n
}
