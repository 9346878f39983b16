package dispatch

import "errors"

var (
	// ErrAlreadyHolding is returned without contacting the store.
	ErrAlreadyHolding = errors.New("courier already holds an order out for delivery")
	// ErrOutcomeUnknown means the claim write may have landed; re-fetch
	// before retrying.
	ErrOutcomeUnknown = errors.New("claim outcome unknown")
	ErrNothingHeld    = errors.New("courier holds no order")
)
