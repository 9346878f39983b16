package api

import (
	"time"

	"dispatch-be/internal/fee"
	"dispatch-be/internal/order"

	"github.com/google/uuid"
)

type OrderResponse struct {
	ID              uuid.UUID  `json:"id"`
	OrderNumber     int64      `json:"order_number"`
	CustomerID      *uuid.UUID `json:"customer_id,omitempty"`
	EstablishmentID uuid.UUID  `json:"establishment_id"`
	DriverID        *uuid.UUID `json:"driver_id,omitempty"`

	Subtotal      int64  `json:"subtotal"`
	DeliveryFee   int64  `json:"delivery_fee"`
	Discount      int64  `json:"discount"`
	Total         int64  `json:"total"`
	PaymentMethod string `json:"payment_method"`
	PaymentStatus string `json:"payment_status"`

	DeliveryAddress string     `json:"delivery_address"`
	DeliveryLat     *float64   `json:"delivery_lat,omitempty"`
	DeliveryLng     *float64   `json:"delivery_lng,omitempty"`
	NeighborhoodID  *uuid.UUID `json:"neighborhood_id,omitempty"`
	DistanceKm      *float64   `json:"distance_km,omitempty"`
	DurationMin     *float64   `json:"duration_min,omitempty"`
	FeeSource       fee.Source `json:"fee_source"`

	Status             order.Status `json:"status"`
	CreatedAt          time.Time    `json:"created_at"`
	ConfirmedAt        *time.Time   `json:"confirmed_at,omitempty"`
	PreparingAt        *time.Time   `json:"preparing_at,omitempty"`
	ReadyAt            *time.Time   `json:"ready_at,omitempty"`
	PickedUpAt         *time.Time   `json:"picked_up_at,omitempty"`
	DeliveredAt        *time.Time   `json:"delivered_at,omitempty"`
	CancelledAt        *time.Time   `json:"cancelled_at,omitempty"`
	CancellationReason *string      `json:"cancellation_reason,omitempty"`
}

type StatusChangeResponse struct {
	FromStatus *order.Status `json:"from_status"`
	ToStatus   order.Status  `json:"to_status"`
	ActorRole  string        `json:"actor_role"`
	ActorID    *uuid.UUID    `json:"actor_id,omitempty"`
	Note       *string       `json:"note,omitempty"`
	ChangedAt  time.Time     `json:"changed_at"`
}

type ClaimResponse struct {
	Outcome string         `json:"outcome"`
	Order   *OrderResponse `json:"order,omitempty"`
}

type AvailableResponse struct {
	Holding *uuid.UUID       `json:"holding"`
	Orders  []*OrderResponse `json:"orders"`
}

func MapOrder(o *order.Order) *OrderResponse {
	if o == nil {
		return nil
	}
	return &OrderResponse{
		ID:                 o.ID,
		OrderNumber:        o.OrderNumber,
		CustomerID:         o.CustomerID,
		EstablishmentID:    o.EstablishmentID,
		DriverID:           o.DriverID,
		Subtotal:           o.Subtotal,
		DeliveryFee:        o.DeliveryFee,
		Discount:           o.Discount,
		Total:              o.Total,
		PaymentMethod:      string(o.PaymentMethod),
		PaymentStatus:      string(o.PaymentStatus),
		DeliveryAddress:    o.DeliveryAddress,
		DeliveryLat:        o.DeliveryLat,
		DeliveryLng:        o.DeliveryLng,
		NeighborhoodID:     o.NeighborhoodID,
		DistanceKm:         o.DistanceKm,
		DurationMin:        o.DurationMin,
		FeeSource:          o.FeeSource,
		Status:             o.Status,
		CreatedAt:          o.CreatedAt,
		ConfirmedAt:        o.ConfirmedAt,
		PreparingAt:        o.PreparingAt,
		ReadyAt:            o.ReadyAt,
		PickedUpAt:         o.PickedUpAt,
		DeliveredAt:        o.DeliveredAt,
		CancelledAt:        o.CancelledAt,
		CancellationReason: o.CancellationReason,
	}
}

func MapOrders(list []*order.Order) []*OrderResponse {
	out := make([]*OrderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, MapOrder(o))
	}
	return out
}

func MapHistory(list []*order.StatusChange) []*StatusChangeResponse {
	out := make([]*StatusChangeResponse, 0, len(list))
	for _, c := range list {
		out = append(out, &StatusChangeResponse{
			FromStatus: c.FromStatus,
			ToStatus:   c.ToStatus,
			ActorRole:  string(c.ActorRole),
			ActorID:    c.ActorID,
			Note:       c.Note,
			ChangedAt:  c.ChangedAt,
		})
	}
	return out
}
