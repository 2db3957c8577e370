package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// MarketService is the slice of the service layer the market endpoints need.
type MarketService interface {
	Get(ctx context.Context, conditionID string) (domain.Market, error)
	List(ctx context.Context, category string, opts domain.ListOpts) ([]domain.Market, int64, error)
	Sync(ctx context.Context) (int, error)
}

// MarketHandler serves the market endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

type listMarketsResponse struct {
	Markets []marketJSON `json:"markets"`
	Total   int64        `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// List returns active markets with stats, newest first.
// GET /api/v1/markets?category=sports&limit=50&offset=0
func (h *MarketHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r)
	markets, total, err := h.markets.List(r.Context(), r.URL.Query().Get("category"), domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "list markets", err)
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: renderMarkets(markets),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// Get returns one market by its condition id.
// GET /api/v1/markets/{conditionID}
func (h *MarketHandler) Get(w http.ResponseWriter, r *http.Request) {
	market, err := h.markets.Get(r.Context(), r.PathValue("conditionID"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, renderMarket(market))
}

// Sync runs one catalog sync against the factory contract, outside the
// background cadence. Intended for operators after deploying new markets.
// POST /api/v1/markets/sync
func (h *MarketHandler) Sync(w http.ResponseWriter, r *http.Request) {
	added, err := h.markets.Sync(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "market sync", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"added": added})
}
