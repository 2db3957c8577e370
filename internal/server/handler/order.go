package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// OrderService is the slice of the service layer the order endpoints need.
type OrderService interface {
	Submit(ctx context.Context, order domain.Order) (domain.Order, []domain.Fill, error)
	Cancel(ctx context.Context, orderHash, maker string) (domain.Order, error)
	GetOrder(ctx context.Context, orderHash string) (domain.Order, error)
	ListOrders(ctx context.Context, q domain.OrderQuery) ([]domain.Order, error)
}

// OrderHandler serves the order endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// submitOrderRequest is the signed order payload. Amounts are uint256
// decimal strings.
type submitOrderRequest struct {
	TokenID     string `json:"token_id"`
	Maker       string `json:"maker"`
	Signer      string `json:"signer"`
	Side        string `json:"side"`
	MakerAmount string `json:"maker_amount"`
	TakerAmount string `json:"taker_amount"`
	FeeRateBps  int64  `json:"fee_rate_bps"`
	Nonce       int64  `json:"nonce"`
	Expiration  int64  `json:"expiration"`
	Signature   string `json:"signature"`
}

func (req submitOrderRequest) toOrder() (domain.Order, error) {
	makerAmount, ok := new(big.Int).SetString(req.MakerAmount, 10)
	if !ok {
		return domain.Order{}, fmt.Errorf("maker_amount must be a base-10 integer")
	}
	takerAmount, ok := new(big.Int).SetString(req.TakerAmount, 10)
	if !ok {
		return domain.Order{}, fmt.Errorf("taker_amount must be a base-10 integer")
	}
	return domain.Order{
		TokenID:     req.TokenID,
		Maker:       req.Maker,
		Signer:      req.Signer,
		Side:        domain.OrderSide(strings.ToLower(req.Side)),
		MakerAmount: makerAmount,
		TakerAmount: takerAmount,
		FeeRateBps:  req.FeeRateBps,
		Nonce:       req.Nonce,
		Expiration:  req.Expiration,
		Signature:   req.Signature,
	}, nil
}

type submitOrderResponse struct {
	Order orderJSON  `json:"order"`
	Fills []fillJSON `json:"fills"`
}

// Submit accepts a signed order, matches it against the book and returns the
// stored order with any fills produced.
// POST /api/v1/orders
func (h *OrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	order, err := req.toOrder()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, fills, err := h.orders.Submit(r.Context(), order)
	if err != nil {
		writeServiceError(w, r, h.logger, "submit order", err)
		return
	}

	writeJSON(w, http.StatusCreated, submitOrderResponse{
		Order: renderOrder(stored),
		Fills: renderFills(fills),
	})
}

// Get returns one order by its hash.
// GET /api/v1/orders/{hash}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), r.PathValue("hash"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, renderOrder(order))
}

type listOrdersResponse struct {
	Orders []orderJSON `json:"orders"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// List returns orders filtered by maker, market, token and status.
// GET /api/v1/orders?maker=0x..&condition_id=0x..&token_id=..&status=open
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := domain.OrderQuery{
		Maker:       q.Get("maker"),
		ConditionID: q.Get("condition_id"),
		TokenID:     q.Get("token_id"),
	}
	if v := q.Get("status"); v != "" {
		status := domain.OrderStatus(strings.ToLower(v))
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status "+v)
			return
		}
		query.Status = status
	}
	query.Limit, query.Offset = parseLimitOffset(r)

	orders, err := h.orders.ListOrders(r.Context(), query)
	if err != nil {
		writeServiceError(w, r, h.logger, "list orders", err)
		return
	}

	writeJSON(w, http.StatusOK, listOrdersResponse{
		Orders: renderOrders(orders),
		Limit:  query.Limit,
		Offset: query.Offset,
	})
}

type cancelOrderRequest struct {
	Maker string `json:"maker"`
}

// Cancel withdraws a resting order. The maker address comes from the query
// string or a small JSON body and must match the order's maker.
// DELETE /api/v1/orders/{hash}?maker=0x..
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	maker := r.URL.Query().Get("maker")
	if maker == "" {
		var body cancelOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			maker = body.Maker
		}
	}
	if maker == "" {
		writeError(w, http.StatusBadRequest, "maker required")
		return
	}

	order, err := h.orders.Cancel(r.Context(), r.PathValue("hash"), maker)
	if err != nil {
		writeServiceError(w, r, h.logger, "cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, renderOrder(order))
}
