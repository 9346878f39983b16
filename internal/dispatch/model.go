package dispatch

import "dispatch-be/internal/order"

type Outcome string

const (
	ClaimWon  Outcome = "won"
	ClaimLost Outcome = "lost"
)

// ClaimResult carries the order only when the claim was won.
type ClaimResult struct {
	Outcome Outcome
	Order   *order.Order
}
