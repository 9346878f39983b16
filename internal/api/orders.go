package api

import (
	"net/http"

	"dispatch-be/internal/auth"
	"dispatch-be/internal/order"
	"dispatch-be/internal/utils"

	"github.com/google/uuid"
)

type createOrderRequest struct {
	CustomerID      *uuid.UUID `json:"customer_id"`
	EstablishmentID uuid.UUID  `json:"establishment_id"`
	Subtotal        int64      `json:"subtotal"`
	Discount        int64      `json:"discount"`
	PaymentMethod   string     `json:"payment_method"`
	DeliveryAddress string     `json:"delivery_address"`
	DeliveryLat     *float64   `json:"delivery_lat"`
	DeliveryLng     *float64   `json:"delivery_lng"`
	NeighborhoodID  *uuid.UUID `json:"neighborhood_id"`
}

type transitionRequest struct {
	Status string `json:"status"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	in := order.CreateOrderInput{
		EstablishmentID: req.EstablishmentID,
		Subtotal:        req.Subtotal,
		Discount:        req.Discount,
		PaymentMethod:   order.PaymentMethod(req.PaymentMethod),
		DeliveryAddress: req.DeliveryAddress,
		DeliveryLat:     req.DeliveryLat,
		DeliveryLng:     req.DeliveryLng,
		NeighborhoodID:  req.NeighborhoodID,
	}
	// Customers always order for themselves; the service overrides this.
	if actor.Role == auth.RoleAdmin {
		in.CustomerID = req.CustomerID
	}

	o, err := h.Orders.Create(r.Context(), in, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, MapOrder(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.Orders.Get(r.Context(), id, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, MapOrder(o))
}

func (h *Handler) orderHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	history, err := h.Orders.History(r.Context(), id, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, MapHistory(history))
}

func (h *Handler) transitionOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req transitionRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	target, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.Orders.Transition(r.Context(), id, target, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, MapOrder(o))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req cancelRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	o, err := h.Orders.Cancel(r.Context(), id, req.Reason, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, MapOrder(o))
}

// establishmentOrders lists by ?status=, pending when omitted.
func (h *Handler) establishmentOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	estID, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := order.StatusPending
	if s := r.URL.Query().Get("status"); s != "" {
		if status, err = order.ParseStatus(s); err != nil {
			writeError(w, r, err)
			return
		}
	}

	list, err := h.Orders.ListByStatus(r.Context(), estID, status, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, MapOrders(list))
}
