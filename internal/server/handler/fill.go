package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// FillService is the slice of the service layer the fill endpoints need.
type FillService interface {
	ListFills(ctx context.Context, q domain.FillQuery) ([]domain.Fill, error)
}

// FillHandler serves the fill endpoints.
type FillHandler struct {
	fills  FillService
	logger *slog.Logger
}

// NewFillHandler creates a FillHandler.
func NewFillHandler(fills FillService, logger *slog.Logger) *FillHandler {
	return &FillHandler{fills: fills, logger: logger}
}

type listFillsResponse struct {
	Fills  []fillJSON `json:"fills"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// List returns fills filtered by wallet (either side), order and settlement
// status.
// GET /api/v1/fills?wallet=0x..&order_id=..&status=pending
func (h *FillHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := domain.FillQuery{Wallet: q.Get("wallet")}

	if v := q.Get("order_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "order_id must be an integer")
			return
		}
		query.OrderID = id
	}
	if v := q.Get("status"); v != "" {
		status := domain.FillStatus(strings.ToLower(v))
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status "+v)
			return
		}
		query.Status = status
	}
	query.Limit, query.Offset = parseLimitOffset(r)

	fills, err := h.fills.ListFills(r.Context(), query)
	if err != nil {
		writeServiceError(w, r, h.logger, "list fills", err)
		return
	}

	writeJSON(w, http.StatusOK, listFillsResponse{
		Fills:  renderFills(fills),
		Limit:  query.Limit,
		Offset: query.Offset,
	})
}
