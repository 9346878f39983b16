package api

import (
	"errors"
	"fmt"
	"net/http"

	"dispatch-be/internal/dispatch"
	"dispatch-be/internal/logger"
	"dispatch-be/internal/order"
	"dispatch-be/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, order.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, order.ErrNotFound), errors.Is(err, order.ErrEstablishmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrConflict),
		errors.Is(err, dispatch.ErrAlreadyHolding),
		errors.Is(err, dispatch.ErrNothingHeld):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrOutcomeUnknown):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError maps domain errors to status codes. Unmapped errors are logged
// and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.FromCtx(r.Context()).Error("request failed",
			zap.String("layer", "api"),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		utils.WriteJSONError(w, "internal error", code)
		return
	}
	utils.WriteJSONError(w, err.Error(), code)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed id", order.ErrValidation)
	}
	return id, nil
}
