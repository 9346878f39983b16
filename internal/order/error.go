package order

import "errors"

var (
	// -- Input --
	ErrValidation = errors.New("validation error")

	// -- Resource state --
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("order was changed concurrently")

	// -- Authorization --
	ErrForbidden = errors.New("forbidden")

	// -- Establishment lookup --
	ErrEstablishmentNotFound = errors.New("establishment not found")
)
