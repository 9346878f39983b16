package feed

import (
	"encoding/json"
	"fmt"

	"dispatch-be/internal/order"

	"github.com/google/uuid"
)

// Channel is the NOTIFY channel written by the orders trigger.
const Channel = "order_changes"

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
)

// Change is one row event from the orders table.
type Change struct {
	Op              Op            `json:"op"`
	ID              uuid.UUID     `json:"id"`
	OrderNumber     int64         `json:"order_number"`
	EstablishmentID uuid.UUID     `json:"establishment_id"`
	DriverID        *uuid.UUID    `json:"driver_id"`
	Status          order.Status  `json:"status"`
	OldStatus       *order.Status `json:"old_status"`
}

func ParseChange(payload string) (Change, error) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}
	if c.Op != OpInsert && c.Op != OpUpdate {
		return Change{}, fmt.Errorf("unexpected op %q", c.Op)
	}
	if _, err := order.ParseStatus(string(c.Status)); err != nil {
		return Change{}, err
	}
	return c, nil
}
