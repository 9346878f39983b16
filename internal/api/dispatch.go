package api

import (
	"fmt"
	"net/http"

	"dispatch-be/internal/auth"
	"dispatch-be/internal/dispatch"
	"dispatch-be/internal/order"
	"dispatch-be/internal/utils"
)

const defaultPoolLimit = 50

func (h *Handler) courierSession(w http.ResponseWriter, r *http.Request) (*dispatch.Courier, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return nil, false
	}
	if actor.Role != auth.RoleCourier {
		writeError(w, r, fmt.Errorf("%w: couriers only", order.ErrForbidden))
		return nil, false
	}
	c, err := h.Dispatcher.Session(r.Context(), actor.ID)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	// A hold can end elsewhere (admin cancellation, another process).
	if c.Holding() != nil {
		if err := c.Refresh(r.Context()); err != nil {
			writeError(w, r, err)
			return nil, false
		}
	}
	return c, true
}

func (h *Handler) availableOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if actor.Role != auth.RoleCourier && actor.Role != auth.RoleAdmin {
		writeError(w, r, fmt.Errorf("%w: couriers only", order.ErrForbidden))
		return
	}
	limit, err := utils.QueryInt(r, "limit", defaultPoolLimit)
	if err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := AvailableResponse{}
	if actor.Role == auth.RoleCourier {
		c, err := h.Dispatcher.Session(r.Context(), actor.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		// The hold may have ended elsewhere (admin cancellation, another process).
		if err := c.Refresh(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
		resp.Holding = c.Holding()
	}

	pool, err := h.Dispatcher.Available(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp.Orders = MapOrders(pool)
	utils.WriteJSON(w, http.StatusOK, resp)
}

// claimOrder answers 200 for both outcomes; losing a race is not an error.
func (h *Handler) claimOrder(w http.ResponseWriter, r *http.Request) {
	c, ok := h.courierSession(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := c.Claim(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, ClaimResponse{
		Outcome: string(res.Outcome),
		Order:   MapOrder(res.Order),
	})
}

func (h *Handler) deliverOrder(w http.ResponseWriter, r *http.Request) {
	c, ok := h.courierSession(w, r)
	if !ok {
		return
	}

	o, err := c.Deliver(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, MapOrder(o))
}
