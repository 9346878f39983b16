package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dispatch-be/internal/auth"
	"dispatch-be/internal/establishment"
	"dispatch-be/internal/fee"
	"dispatch-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service interface {
	Create(ctx context.Context, in CreateOrderInput, actor auth.Actor) (*Order, error)
	Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*Order, error)
	ListByStatus(ctx context.Context, establishmentID uuid.UUID, status Status, actor auth.Actor) ([]*Order, error)
	History(ctx context.Context, id uuid.UUID, actor auth.Actor) ([]*StatusChange, error)
	Transition(ctx context.Context, id uuid.UUID, target Status, actor auth.Actor) (*Order, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string, actor auth.Actor) (*Order, error)
}

// EventPublisher receives committed status changes. Delivery is best-effort.
type EventPublisher interface {
	PublishStatus(ctx context.Context, ev StatusEvent) error
}

type Quoter interface {
	Quote(ctx context.Context, establishment *fee.Point, dest fee.Destination) fee.Quote
}

type EstablishmentFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*establishment.Establishment, error)
}

type service struct {
	repo           Repository
	establishments EstablishmentFinder
	quoter         Quoter
	publisher      EventPublisher
}

// NewService accepts a nil publisher when no broker is configured.
func NewService(repo Repository, establishments EstablishmentFinder, quoter Quoter, publisher EventPublisher) Service {
	return &service{
		repo:           repo,
		establishments: establishments,
		quoter:         quoter,
		publisher:      publisher,
	}
}

func validateCreate(in CreateOrderInput) error {
	switch {
	case in.EstablishmentID == uuid.Nil:
		return fmt.Errorf("%w: establishment_id is required", ErrValidation)
	case in.Subtotal < 0:
		return fmt.Errorf("%w: subtotal must not be negative", ErrValidation)
	case in.Discount < 0 || in.Discount > in.Subtotal:
		return fmt.Errorf("%w: discount must be between 0 and subtotal", ErrValidation)
	case !in.PaymentMethod.Valid():
		return fmt.Errorf("%w: unknown payment method %q", ErrValidation, in.PaymentMethod)
	case strings.TrimSpace(in.DeliveryAddress) == "":
		return fmt.Errorf("%w: delivery address is required", ErrValidation)
	case (in.DeliveryLat == nil) != (in.DeliveryLng == nil):
		return fmt.Errorf("%w: latitude and longitude go together", ErrValidation)
	}
	if in.DeliveryLat != nil {
		if *in.DeliveryLat < -90 || *in.DeliveryLat > 90 || *in.DeliveryLng < -180 || *in.DeliveryLng > 180 {
			return fmt.Errorf("%w: coordinates out of range", ErrValidation)
		}
	}
	return nil
}

func (s *service) Create(ctx context.Context, in CreateOrderInput, actor auth.Actor) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Create"),
		zap.String("establishment_id", in.EstablishmentID.String()),
	)

	switch actor.Role {
	case auth.RoleCustomer:
		id := actor.ID
		in.CustomerID = &id
	case auth.RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: role %s may not place orders", ErrForbidden, actor.Role)
	}

	if err := validateCreate(in); err != nil {
		log.Info("rejected order input", zap.Error(err))
		return nil, err
	}

	est, err := s.establishments.GetByID(ctx, in.EstablishmentID)
	if errors.Is(err, establishment.ErrNotFound) {
		return nil, ErrEstablishmentNotFound
	}
	if err != nil {
		log.Error("failed to load establishment", zap.Error(err))
		return nil, err
	}
	if !est.IsOpen {
		return nil, fmt.Errorf("%w: establishment is closed", ErrValidation)
	}

	dest := fee.Destination{NeighborhoodID: in.NeighborhoodID}
	if in.DeliveryLat != nil {
		dest.Point = &fee.Point{Lat: *in.DeliveryLat, Lng: *in.DeliveryLng}
	}
	quote := s.quoter.Quote(ctx, est.Location(), dest)

	o, err := s.repo.Create(ctx, NewOrderParams{
		CreateOrderInput: in,
		DeliveryFee:      quote.Fee,
		Total:            in.Subtotal + quote.Fee - in.Discount,
		DistanceKm:       quote.DistanceKm,
		DurationMin:      quote.DurationMin,
		FeeSource:        quote.Source,
	}, actor)
	if err != nil {
		return nil, err
	}

	log.Info("order placed",
		zap.String("order_id", o.ID.String()),
		zap.Int64("delivery_fee", o.DeliveryFee),
		zap.String("fee_source", string(o.FeeSource)),
		zap.Bool("fee_degraded", quote.Degraded()),
	)
	return o, nil
}

// canView decides read access. Couriers may see the open dispatch pool.
func canView(a auth.Actor, o *Order) bool {
	switch a.Role {
	case auth.RoleAdmin:
		return true
	case auth.RoleEstablishment:
		return a.ActsFor(o.EstablishmentID)
	case auth.RoleCustomer:
		return o.CustomerID != nil && *o.CustomerID == a.ID
	case auth.RoleCourier:
		if o.DriverID != nil {
			return *o.DriverID == a.ID
		}
		return o.Status == StatusReady
	}
	return false
}

// isParty decides whether the actor is involved in the order at all; the
// transition table then decides what the role may do.
func isParty(a auth.Actor, o *Order) bool {
	if a.Role == auth.RoleCourier {
		return o.DriverID != nil && *o.DriverID == a.ID
	}
	return canView(a, o)
}

func (s *service) Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, o) {
		return nil, ErrForbidden
	}
	return o, nil
}

func (s *service) ListByStatus(ctx context.Context, establishmentID uuid.UUID, status Status, actor auth.Actor) ([]*Order, error) {
	if !actor.ActsFor(establishmentID) {
		return nil, ErrForbidden
	}
	return s.repo.ListByStatus(ctx, establishmentID, status)
}

func (s *service) History(ctx context.Context, id uuid.UUID, actor auth.Actor) ([]*StatusChange, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, id)
}

func (s *service) Transition(ctx context.Context, id uuid.UUID, target Status, actor auth.Actor) (*Order, error) {
	switch target {
	case StatusCancelled:
		return nil, fmt.Errorf("%w: cancellation requires a reason", ErrValidation)
	case StatusOutForDelivery:
		// Pickup only happens through the claim write.
		if _, err := s.repo.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: orders are picked up by claiming them", ErrInvalidTransition)
	}
	return s.transition(ctx, id, target, actor, nil)
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID, reason string, actor auth.Actor) (*Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: cancellation reason is required", ErrValidation)
	}
	return s.transition(ctx, id, StatusCancelled, actor, &reason)
}

func (s *service) transition(ctx context.Context, id uuid.UUID, target Status, actor auth.Actor, reason *string) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Transition"),
		zap.String("order_id", id.String()),
		zap.String("target", string(target)),
		zap.String("actor_role", string(actor.Role)),
	)

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(current.Status, target, actor.Role); err != nil {
		log.Info("transition rejected", zap.String("from", string(current.Status)), zap.Error(err))
		return nil, err
	}
	if !isParty(actor, current) {
		return nil, ErrForbidden
	}

	w := StatusWrite{
		OrderID: id,
		From:    current.Status,
		To:      target,
		Actor:   actor,
		Reason:  reason,
	}
	if actor.Role == auth.RoleCourier {
		w.DriverID = &actor.ID
	}

	updated, err := s.repo.UpdateStatus(ctx, w)
	if err != nil {
		log.Error("status write failed", zap.Error(err))
		return nil, err
	}
	if updated == nil {
		return nil, s.resolveMiss(ctx, id, current.Status)
	}

	log.Info("order status changed", zap.String("from", string(current.Status)))
	publishStatus(ctx, s.publisher, current.Status, updated)
	return updated, nil
}

// resolveMiss explains a guarded write that matched no row.
func (s *service) resolveMiss(ctx context.Context, id uuid.UUID, expected Status) error {
	now, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: expected %s, order is now %s", ErrConflict, expected, now.Status)
}

func publishStatus(ctx context.Context, p EventPublisher, from Status, o *Order) {
	if p == nil {
		return
	}
	ev := StatusEvent{
		OrderID:         o.ID,
		OrderNumber:     o.OrderNumber,
		EstablishmentID: o.EstablishmentID,
		OldStatus:       from,
		NewStatus:       o.Status,
		DriverID:        o.DriverID,
	}
	if ts := o.StampFor(o.Status); ts != nil {
		ev.ChangedAt = *ts
	}
	if err := p.PublishStatus(ctx, ev); err != nil {
		logger.FromCtx(ctx).Warn("status event not published",
			zap.String("order_id", o.ID.String()),
			zap.Error(err),
		)
	}
}

// PublishClaim reports a won claim, which bypasses Transition.
func PublishClaim(ctx context.Context, p EventPublisher, o *Order) {
	publishStatus(ctx, p, StatusReady, o)
}
