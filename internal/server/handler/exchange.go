package handler

import (
	"net/http"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// ExchangeHandler serves the static signing parameters clients need to build
// a valid order: the EIP-712 domain plus the venue's fee limits.
type ExchangeHandler struct {
	info           domain.ExchangeInfo
	protocolFeeBps int64
	maxFeeRateBps  int64
}

// NewExchangeHandler creates an ExchangeHandler.
func NewExchangeHandler(info domain.ExchangeInfo, protocolFeeBps, maxFeeRateBps int64) *ExchangeHandler {
	return &ExchangeHandler{
		info:           info,
		protocolFeeBps: protocolFeeBps,
		maxFeeRateBps:  maxFeeRateBps,
	}
}

type exchangeResponse struct {
	domain.ExchangeInfo
	ProtocolFeeBps int64 `json:"protocol_fee_bps"`
	MaxFeeRateBps  int64 `json:"max_fee_rate_bps"`
}

// Get returns the signing domain and fee parameters.
// GET /api/v1/exchange
func (h *ExchangeHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, exchangeResponse{
		ExchangeInfo:   h.info,
		ProtocolFeeBps: h.protocolFeeBps,
		MaxFeeRateBps:  h.maxFeeRateBps,
	})
}
