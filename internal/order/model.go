package order

import (
	"time"

	"dispatch-be/internal/auth"
	"dispatch-be/internal/fee"

	"github.com/google/uuid"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentPix    PaymentMethod = "pix"
	PaymentWallet PaymentMethod = "wallet"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentPix, PaymentWallet:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Order amounts are in minor currency units.
type Order struct {
	ID              uuid.UUID
	OrderNumber     int64
	CustomerID      *uuid.UUID
	EstablishmentID uuid.UUID
	DriverID        *uuid.UUID

	Subtotal      int64
	DeliveryFee   int64
	Discount      int64
	Total         int64
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus

	DeliveryAddress string
	DeliveryLat     *float64
	DeliveryLng     *float64
	NeighborhoodID  *uuid.UUID

	DistanceKm  *float64
	DurationMin *float64
	FeeSource   fee.Source

	Status             Status
	CreatedAt          time.Time
	ConfirmedAt        *time.Time
	PreparingAt        *time.Time
	ReadyAt            *time.Time
	PickedUpAt         *time.Time
	DeliveredAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason *string
}

// Stamps returns the non-nil transition timestamps in lifecycle order,
// cancellation last.
func (o *Order) Stamps() []time.Time {
	out := []time.Time{o.CreatedAt}
	for _, ts := range []*time.Time{o.ConfirmedAt, o.PreparingAt, o.ReadyAt, o.PickedUpAt, o.DeliveredAt, o.CancelledAt} {
		if ts != nil {
			out = append(out, *ts)
		}
	}
	return out
}

// StampFor returns the timestamp written when the order entered s.
func (o *Order) StampFor(s Status) *time.Time {
	switch s {
	case StatusPending:
		return &o.CreatedAt
	case StatusConfirmed:
		return o.ConfirmedAt
	case StatusPreparing:
		return o.PreparingAt
	case StatusReady:
		return o.ReadyAt
	case StatusOutForDelivery:
		return o.PickedUpAt
	case StatusDelivered:
		return o.DeliveredAt
	case StatusCancelled:
		return o.CancelledAt
	}
	return nil
}

// StatusChange is one row of the order's audit trail.
type StatusChange struct {
	ID         int64
	OrderID    uuid.UUID
	FromStatus *Status
	ToStatus   Status
	ActorRole  auth.Role
	ActorID    *uuid.UUID
	Note       *string
	ChangedAt  time.Time
}

type CreateOrderInput struct {
	CustomerID      *uuid.UUID
	EstablishmentID uuid.UUID
	Subtotal        int64
	Discount        int64
	PaymentMethod   PaymentMethod
	DeliveryAddress string
	DeliveryLat     *float64
	DeliveryLng     *float64
	NeighborhoodID  *uuid.UUID
}

// NewOrderParams is what the repository persists for a fresh order.
type NewOrderParams struct {
	CreateOrderInput
	DeliveryFee int64
	Total       int64
	DistanceKm  *float64
	DurationMin *float64
	FeeSource   fee.Source
}

// StatusWrite is a guarded status write: it only lands while the order is
// still in From (and, when DriverID is set, still assigned to that driver).
type StatusWrite struct {
	OrderID  uuid.UUID
	From     Status
	To       Status
	Actor    auth.Actor
	Reason   *string
	DriverID *uuid.UUID
}

// StatusEvent is published after a status write commits.
type StatusEvent struct {
	OrderID         uuid.UUID  `json:"order_id"`
	OrderNumber     int64      `json:"order_number"`
	EstablishmentID uuid.UUID  `json:"establishment_id"`
	OldStatus       Status     `json:"old_status"`
	NewStatus       Status     `json:"new_status"`
	DriverID        *uuid.UUID `json:"driver_id,omitempty"`
	ChangedAt       time.Time  `json:"changed_at"`
}
