// Package ordertest provides an in-memory order.Repository whose guarded
// writes behave like the SQL ones.
package ordertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"dispatch-be/internal/auth"
	"dispatch-be/internal/order"

	"github.com/google/uuid"
)

type Memory struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]*order.Order
	history map[uuid.UUID][]*order.StatusChange
	seq     int64
	logSeq  int64

	// Now stamps writes; time.Now when nil.
	Now func() time.Time
	// ClaimErr is returned after a claim write has landed, like a response
	// lost to a timeout.
	ClaimErr error
	// GetErr makes GetByID fail.
	GetErr error

	ClaimCalls int
}

var _ order.Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		orders:  make(map[uuid.UUID]*order.Order),
		history: make(map[uuid.UUID][]*order.StatusChange),
	}
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Put stores a copy of o as is, assigning an id and number when missing.
func (m *Memory) Put(o order.Order) *order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.OrderNumber == 0 {
		m.seq++
		o.OrderNumber = m.seq
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = m.now()
	}
	m.orders[o.ID] = &o
	cp := o
	return &cp
}

func (m *Memory) Create(_ context.Context, p order.NewOrderParams, actor auth.Actor) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	o := &order.Order{
		ID:              uuid.New(),
		OrderNumber:     m.seq,
		CustomerID:      p.CustomerID,
		EstablishmentID: p.EstablishmentID,
		Subtotal:        p.Subtotal,
		DeliveryFee:     p.DeliveryFee,
		Discount:        p.Discount,
		Total:           p.Total,
		PaymentMethod:   p.PaymentMethod,
		PaymentStatus:   order.PaymentStatusPending,
		DeliveryAddress: p.DeliveryAddress,
		DeliveryLat:     p.DeliveryLat,
		DeliveryLng:     p.DeliveryLng,
		NeighborhoodID:  p.NeighborhoodID,
		DistanceKm:      p.DistanceKm,
		DurationMin:     p.DurationMin,
		FeeSource:       p.FeeSource,
		Status:          order.StatusPending,
		CreatedAt:       m.now(),
	}
	m.orders[o.ID] = o
	m.logLocked(o.ID, nil, order.StatusPending, actor, nil, o.CreatedAt)
	cp := *o
	return &cp, nil
}

func (m *Memory) GetByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *Memory) ListByStatus(_ context.Context, establishmentID uuid.UUID, status order.Status) ([]*order.Order, error) {
	return m.filter(func(o *order.Order) bool {
		return o.EstablishmentID == establishmentID && o.Status == status
	}), nil
}

func (m *Memory) ListAvailable(_ context.Context, limit int) ([]*order.Order, error) {
	out := m.filter(func(o *order.Order) bool {
		return o.Status == order.StatusReady && o.DriverID == nil
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) filter(keep func(*order.Order) bool) []*order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*order.Order
	for _, o := range m.orders {
		if keep(o) {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return out
}

func (m *Memory) GetActiveForDriver(_ context.Context, driverID uuid.UUID) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.Status == order.StatusOutForDelivery && o.DriverID != nil && *o.DriverID == driverID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) History(_ context.Context, orderID uuid.UUID) ([]*order.StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*order.StatusChange(nil), m.history[orderID]...), nil
}

func (m *Memory) UpdateStatus(_ context.Context, w order.StatusWrite) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[w.OrderID]
	if !ok || o.Status != w.From {
		return nil, nil
	}
	if w.DriverID != nil && (o.DriverID == nil || *o.DriverID != *w.DriverID) {
		return nil, nil
	}

	at := m.stampLocked(o)
	switch w.To {
	case order.StatusConfirmed:
		o.ConfirmedAt = &at
	case order.StatusPreparing:
		o.PreparingAt = &at
	case order.StatusReady:
		o.ReadyAt = &at
	case order.StatusOutForDelivery:
		o.PickedUpAt = &at
	case order.StatusDelivered:
		o.DeliveredAt = &at
	case order.StatusCancelled:
		o.CancelledAt = &at
		o.CancellationReason = w.Reason
	}
	o.Status = w.To

	from := w.From
	m.logLocked(o.ID, &from, w.To, w.Actor, w.Reason, at)
	cp := *o
	return &cp, nil
}

func (m *Memory) Claim(_ context.Context, orderID, driverID uuid.UUID) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClaimCalls++

	o, ok := m.orders[orderID]
	if !ok || o.Status != order.StatusReady || o.DriverID != nil {
		return nil, m.ClaimErr
	}

	at := m.stampLocked(o)
	id := driverID
	o.DriverID = &id
	o.Status = order.StatusOutForDelivery
	o.PickedUpAt = &at

	from := order.StatusReady
	m.logLocked(o.ID, &from, order.StatusOutForDelivery, auth.Actor{ID: driverID, Role: auth.RoleCourier}, nil, at)
	if m.ClaimErr != nil {
		return nil, m.ClaimErr
	}
	cp := *o
	return &cp, nil
}

// stampLocked mirrors GREATEST(now(), earlier stamps).
func (m *Memory) stampLocked(o *order.Order) time.Time {
	at := m.now()
	for _, ts := range o.Stamps() {
		if ts.After(at) {
			at = ts
		}
	}
	return at
}

func (m *Memory) logLocked(orderID uuid.UUID, from *order.Status, to order.Status, actor auth.Actor, note *string, at time.Time) {
	m.logSeq++
	var actorID *uuid.UUID
	if actor.ID != uuid.Nil {
		id := actor.ID
		actorID = &id
	}
	m.history[orderID] = append(m.history[orderID], &order.StatusChange{
		ID:         m.logSeq,
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		ActorRole:  actor.Role,
		ActorID:    actorID,
		Note:       note,
		ChangedAt:  at,
	})
}
