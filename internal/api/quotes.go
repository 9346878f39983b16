package api

import (
	"errors"
	"fmt"
	"net/http"

	"dispatch-be/internal/establishment"
	"dispatch-be/internal/fee"
	"dispatch-be/internal/order"
	"dispatch-be/internal/utils"

	"github.com/google/uuid"
)

type quoteRequest struct {
	EstablishmentID uuid.UUID  `json:"establishment_id"`
	Lat             *float64   `json:"lat"`
	Lng             *float64   `json:"lng"`
	NeighborhoodID  *uuid.UUID `json:"neighborhood_id"`
}

// quote prices a delivery before checkout. It is open to any authenticated
// caller and never fails on routing problems.
func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	var req quoteRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if (req.Lat == nil) != (req.Lng == nil) {
		writeError(w, r, fmt.Errorf("%w: lat and lng go together", order.ErrValidation))
		return
	}

	est, err := h.Establishments.GetByID(r.Context(), req.EstablishmentID)
	if errors.Is(err, establishment.ErrNotFound) {
		writeError(w, r, order.ErrEstablishmentNotFound)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	dest := fee.Destination{NeighborhoodID: req.NeighborhoodID}
	if req.Lat != nil {
		dest.Point = &fee.Point{Lat: *req.Lat, Lng: *req.Lng}
	}
	utils.WriteJSON(w, http.StatusOK, h.Quoter.Quote(r.Context(), est.Location(), dest))
}
