package api

import (
	"context"
	"net/http"
	"time"

	"dispatch-be/internal/alert"
	"dispatch-be/internal/auth"
	"dispatch-be/internal/dispatch"
	"dispatch-be/internal/feed"
	"dispatch-be/internal/metrics"
	"dispatch-be/internal/order"
	"dispatch-be/internal/utils"

	"github.com/gorilla/websocket"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	Orders         order.Service
	Dispatcher     *dispatch.Dispatcher
	Establishments order.EstablishmentFinder
	Quoter         order.Quoter
	Hub            *feed.Hub
	DB             Pinger
	Metrics        *metrics.Registry
	Alerts         alert.Options
}

type Handler struct {
	Deps
	upgrader websocket.Upgrader
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		Deps: d,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /metrics", h.metrics)

	mux.HandleFunc("POST /orders", h.createOrder)
	mux.HandleFunc("GET /orders/{id}", h.getOrder)
	mux.HandleFunc("GET /orders/{id}/history", h.orderHistory)
	mux.HandleFunc("POST /orders/{id}/transition", h.transitionOrder)
	mux.HandleFunc("POST /orders/{id}/cancel", h.cancelOrder)
	mux.HandleFunc("GET /establishments/{id}/orders", h.establishmentOrders)

	mux.HandleFunc("GET /dispatch/available", h.availableOrders)
	mux.HandleFunc("POST /dispatch/orders/{id}/claim", h.claimOrder)
	mux.HandleFunc("POST /dispatch/deliver", h.deliverOrder)

	mux.HandleFunc("POST /quotes", h.quote)

	mux.HandleFunc("GET /ws/alerts", h.alerts)

	return mux
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			utils.WriteJSONError(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// metrics reports the component counters to admins and internal callers.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if !utils.IsInternalRequest(r.Context()) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		if actor.Role != auth.RoleAdmin {
			utils.WriteJSONError(w, "forbidden", http.StatusForbidden)
			return
		}
	}
	snapshot := map[string]uint64{}
	if h.Metrics != nil {
		snapshot = h.Metrics.Snapshot()
	}
	utils.WriteJSON(w, http.StatusOK, snapshot)
}

func requireActor(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		utils.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
	}
	return actor, ok
}
