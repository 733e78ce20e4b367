package handler

import (
	"log/slog"
	"net/http"

	"github.com/calebhsu/longbox/internal/domain"
)

// OrderHandler serves the open order book for the dashboard.
type OrderHandler struct {
	orders domain.OrderStore
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler backed by the given store.
func NewOrderHandler(orders domain.OrderStore, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// ListOpenOrders responds with all open and partially filled orders.
// GET /api/orders
func (h *OrderHandler) ListOpenOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOpen(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list open orders failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}
