package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role is the marketplace side an authenticated caller acts for.
type Role string

const (
	RoleCustomer      Role = "customer"
	RoleEstablishment Role = "establishment"
	RoleCourier       Role = "courier"
	RoleAdmin         Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleEstablishment, RoleCourier, RoleAdmin:
		return true
	}
	return false
}

// Actor is the caller identity resolved from a bearer token.
// EstablishmentID is set for establishment operators only.
type Actor struct {
	ID              uuid.UUID
	Role            Role
	EstablishmentID *uuid.UUID
}

// ActsFor reports whether the actor may operate on the given establishment.
func (a Actor) ActsFor(establishmentID uuid.UUID) bool {
	if a.Role == RoleAdmin {
		return true
	}
	return a.Role == RoleEstablishment && a.EstablishmentID != nil && *a.EstablishmentID == establishmentID
}

type ctxKey string

const actorKey ctxKey = "actor"

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}
