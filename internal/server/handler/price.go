package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/calebhsu/longbox/internal/domain"
)

// PriceHandler serves spot prices for the dashboard.
type PriceHandler struct {
	prices domain.PriceStore
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler backed by the given store.
func NewPriceHandler(prices domain.PriceStore, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{prices: prices, logger: logger}
}

// ListPrices responds with all asset spot prices.
// GET /api/prices
func (h *PriceHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.prices.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list prices failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list prices")
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

// GetPrice responds with the spot price for one asset.
// GET /api/prices/{asset}
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	assetID := pathParam(r, "asset")
	price, err := h.prices.Get(r.Context(), assetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "asset not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get price failed",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get price")
		return
	}
	writeJSON(w, http.StatusOK, price)
}
