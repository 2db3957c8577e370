package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// PositionService is the slice of the service layer the position endpoint
// needs.
type PositionService interface {
	Positions(ctx context.Context, wallet string) ([]domain.Position, error)
}

// PositionHandler serves on-chain conditional-token balances.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{positions: positions, logger: logger}
}

type listPositionsResponse struct {
	Wallet    string         `json:"wallet"`
	Positions []positionJSON `json:"positions"`
}

// List returns the wallet's non-zero outcome-token balances across active
// markets, read from the conditional-token contract.
// GET /api/v1/positions/{wallet}
func (h *PositionHandler) List(w http.ResponseWriter, r *http.Request) {
	wallet := r.PathValue("wallet")
	positions, err := h.positions.Positions(r.Context(), wallet)
	if err != nil {
		writeServiceError(w, r, h.logger, "list positions", err)
		return
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{
		Wallet:    wallet,
		Positions: renderPositions(positions),
	})
}
