package order

import (
	"fmt"
	"slices"

	"dispatch-be/internal/auth"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusReady          Status = "ready"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusPreparing,
	StatusReady,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !slices.Contains(allStatuses, st) {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
	return st, nil
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// stampColumn is the timestamp column written when entering s.
func (s Status) stampColumn() string {
	switch s {
	case StatusConfirmed:
		return "confirmed_at"
	case StatusPreparing:
		return "preparing_at"
	case StatusReady:
		return "ready_at"
	case StatusOutForDelivery:
		return "picked_up_at"
	case StatusDelivered:
		return "delivered_at"
	case StatusCancelled:
		return "cancelled_at"
	}
	return ""
}

type edge struct {
	from Status
	to   Status
}

// transitions is the whole state machine: an edge is legal iff present, and
// only the listed roles may take it.
var transitions = map[edge][]auth.Role{
	{StatusPending, StatusConfirmed}:        {auth.RoleEstablishment, auth.RoleAdmin},
	{StatusConfirmed, StatusPreparing}:      {auth.RoleEstablishment, auth.RoleAdmin},
	{StatusPreparing, StatusReady}:          {auth.RoleEstablishment, auth.RoleAdmin},
	{StatusReady, StatusOutForDelivery}:     {auth.RoleCourier},
	{StatusOutForDelivery, StatusDelivered}: {auth.RoleCourier, auth.RoleAdmin},
	{StatusPending, StatusCancelled}:        {auth.RoleCustomer, auth.RoleEstablishment, auth.RoleAdmin},
	{StatusConfirmed, StatusCancelled}:      {auth.RoleCustomer, auth.RoleEstablishment, auth.RoleAdmin},
	{StatusPreparing, StatusCancelled}:      {auth.RoleEstablishment, auth.RoleAdmin},
	{StatusReady, StatusCancelled}:          {auth.RoleEstablishment, auth.RoleAdmin},
	{StatusOutForDelivery, StatusCancelled}: {auth.RoleAdmin},
}

// CheckTransition validates an edge for a role without touching the store.
func CheckTransition(from, to Status, role auth.Role) error {
	roles, ok := transitions[edge{from, to}]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if !slices.Contains(roles, role) {
		return fmt.Errorf("%w: role %s may not move order %s -> %s", ErrForbidden, role, from, to)
	}
	return nil
}

// NextStatuses lists the statuses reachable from s, in lifecycle order.
func NextStatuses(s Status) []Status {
	var out []Status
	for _, to := range allStatuses {
		if _, ok := transitions[edge{s, to}]; ok {
			out = append(out, to)
		}
	}
	return out
}
