// Package service implements the exchange's application layer: the order
// lifecycle, book reads and market sync. Services hold no state of their own;
// they compose the stores, caches and the chain bridge behind the domain
// interfaces and emit events as post-commit side effects.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/madschristensen99/rushTrade/internal/domain"
	"github.com/madschristensen99/rushTrade/internal/engine"
)

// submitLockTTL bounds how long a crashed submission can keep a token's book
// serialized.
const submitLockTTL = 5 * time.Second

// maxMatchAttempts is how many times a submission re-lists and re-matches
// when a maker order changed between the engine pass and the transaction.
const maxMatchAttempts = 3

// OrderConfig carries the exchange parameters the order service enforces.
type OrderConfig struct {
	ProtocolFeeBps int64
	MaxFeeRateBps  int64
	BookDepth      int
}

// OrderService owns the order lifecycle: validation, signature checks,
// matching, persistence and the events that follow a commit.
type OrderService struct {
	orders   domain.OrderStore
	fills    domain.FillStore
	markets  domain.MarketStore
	audit    domain.AuditStore
	locks    domain.LockManager
	limiter  domain.RateLimiter
	bus      domain.SignalBus
	books    domain.BookCache
	hasher   domain.OrderHasher
	verifier domain.SignatureVerifier
	chain    domain.ChainExecutor
	stream   domain.FillStream
	cfg      OrderConfig
	logger   *slog.Logger
}

// NewOrderService creates an OrderService.
func NewOrderService(
	orders domain.OrderStore,
	fills domain.FillStore,
	markets domain.MarketStore,
	audit domain.AuditStore,
	locks domain.LockManager,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	books domain.BookCache,
	hasher domain.OrderHasher,
	verifier domain.SignatureVerifier,
	cfg OrderConfig,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		orders:   orders,
		fills:    fills,
		markets:  markets,
		audit:    audit,
		locks:    locks,
		limiter:  limiter,
		bus:      bus,
		books:    books,
		hasher:   hasher,
		verifier: verifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// WithChainExecutor wires the on-chain bridge so cancellations also
// invalidate the order's signature on the exchange contract.
func (s *OrderService) WithChainExecutor(chain domain.ChainExecutor) *OrderService {
	s.chain = chain
	return s
}

// WithFillStream wires an external stream that receives every created fill.
func (s *OrderService) WithFillStream(stream domain.FillStream) *OrderService {
	s.stream = stream
	return s
}

// Submit validates, matches and persists a signed order. It returns the
// stored order together with any fills created against the resting book.
func (s *OrderService) Submit(ctx context.Context, order domain.Order) (domain.Order, []domain.Fill, error) {
	if err := s.validate(order); err != nil {
		return domain.Order{}, nil, err
	}

	market, err := s.markets.GetByTokenID(ctx, order.TokenID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, nil, fmt.Errorf("order_service: unknown token %s: %w", order.TokenID, domain.ErrInvalidOrder)
		}
		return domain.Order{}, nil, fmt.Errorf("order_service: resolve market: %w", err)
	}
	if market.Status != domain.MarketStatusActive {
		return domain.Order{}, nil, fmt.Errorf("order_service: market %s: %w", market.ConditionID, domain.ErrMarketInactive)
	}
	order.ConditionID = market.ConditionID

	if allowed, limErr := s.limiter.Allow(ctx, "submit:"+strings.ToLower(order.Maker)); limErr != nil {
		s.logger.WarnContext(ctx, "rate limiter unavailable, allowing",
			slog.String("maker", order.Maker),
			slog.String("error", limErr.Error()))
	} else if !allowed {
		return domain.Order{}, nil, fmt.Errorf("order_service: maker %s: %w", order.Maker, domain.ErrRateLimited)
	}

	hash, err := s.hasher.Hash(order)
	if err != nil {
		return domain.Order{}, nil, fmt.Errorf("order_service: hash order: %w", err)
	}
	order.OrderHash = hash

	// Friendly dedupe before the signature check; the unique index on
	// order_hash catches the race this pre-check cannot.
	if _, err := s.orders.GetByHash(ctx, hash); err == nil {
		return domain.Order{}, nil, fmt.Errorf("order_service: order %s: %w", hash, domain.ErrDuplicateOrder)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Order{}, nil, fmt.Errorf("order_service: check duplicate %s: %w", hash, err)
	}

	if err := s.verifier.Verify(order); err != nil {
		return domain.Order{}, nil, fmt.Errorf("order_service: order %s: %w", hash, err)
	}

	// One submission per token at a time keeps the engine's view of the
	// resting set consistent with what the transaction applies. The guarded
	// maker updates in the store remain the correctness backstop, so a lock
	// backend outage degrades to optimistic retries rather than an outage.
	release, lockErr := s.locks.Acquire(ctx, "submit:"+order.TokenID, submitLockTTL)
	switch {
	case lockErr == nil:
		defer release()
	case errors.Is(lockErr, domain.ErrLockHeld):
		return domain.Order{}, nil, fmt.Errorf("order_service: token %s busy: %w", order.TokenID, domain.ErrLockHeld)
	default:
		s.logger.WarnContext(ctx, "lock backend unavailable, submitting unlocked",
			slog.String("token_id", order.TokenID),
			slog.String("error", lockErr.Error()))
	}

	order.Status = domain.OrderStatusOpen
	order.FilledAmount = big.NewInt(0)

	var (
		makers map[int64]domain.Order
		fills  []domain.Fill
	)
	for attempt := 1; ; attempt++ {
		resting, err := s.orders.ListResting(ctx, order.TokenID, order.Side.Opposite())
		if err != nil {
			return domain.Order{}, nil, fmt.Errorf("order_service: list resting orders: %w", err)
		}
		matches := engine.Match(&order, resting, s.cfg.ProtocolFeeBps)

		makers = make(map[int64]domain.Order, len(matches))
		for _, r := range resting {
			makers[r.ID] = r
		}

		fills, err = s.orders.CreateWithMatches(ctx, &order, matches)
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrOrderTerminal) && attempt < maxMatchAttempts {
			s.logger.WarnContext(ctx, "maker changed under match, retrying",
				slog.String("token_id", order.TokenID),
				slog.Int("attempt", attempt))
			continue
		}
		return domain.Order{}, nil, fmt.Errorf("order_service: store order %s: %w", hash, err)
	}

	s.logger.InfoContext(ctx, "order accepted",
		slog.String("order_hash", hash),
		slog.String("maker", order.Maker),
		slog.String("token_id", order.TokenID),
		slog.String("side", string(order.Side)),
		slog.String("status", string(order.Status)),
		slog.Int("fills", len(fills)))

	s.afterSubmit(ctx, order, fills, makers)
	return order, fills, nil
}

// validate applies the wire-level checks that need no I/O.
func (s *OrderService) validate(o domain.Order) error {
	invalid := func(format string, args ...any) error {
		args = append(args, domain.ErrInvalidOrder)
		return fmt.Errorf("order_service: "+format+": %w", args...)
	}
	switch {
	case !o.Side.Valid():
		return invalid("side %q", o.Side)
	case !common.IsHexAddress(o.Maker):
		return invalid("maker address %q", o.Maker)
	case o.Signer != "" && !common.IsHexAddress(o.Signer):
		return invalid("signer address %q", o.Signer)
	case o.TokenID == "":
		return invalid("missing token id")
	case o.MakerAmount == nil || o.MakerAmount.Sign() <= 0:
		return invalid("maker amount must be positive")
	case o.TakerAmount == nil || o.TakerAmount.Sign() <= 0:
		return invalid("taker amount must be positive")
	case o.FeeRateBps < 0 || o.FeeRateBps > s.cfg.MaxFeeRateBps:
		return invalid("fee rate %d outside 0-%d bps", o.FeeRateBps, s.cfg.MaxFeeRateBps)
	case o.Nonce < 0:
		return invalid("negative nonce")
	case o.Expiration < 0:
		return invalid("negative expiration")
	case o.Expired(time.Now()):
		return invalid("expired at %d", o.Expiration)
	case o.Signature == "":
		return invalid("missing signature")
	}
	return nil
}

// afterSubmit emits the side effects of a committed submission. All of them
// are best-effort: the transaction is already durable, so failures here are
// logged and the response proceeds.
func (s *OrderService) afterSubmit(ctx context.Context, order domain.Order, fills []domain.Fill, makers map[int64]domain.Order) {
	if err := s.books.Invalidate(ctx, order.TokenID); err != nil {
		s.logger.WarnContext(ctx, "book invalidate failed",
			slog.String("token_id", order.TokenID),
			slog.String("error", err.Error()))
	}

	for _, f := range fills {
		evt := s.fillEvent(f, order, makers[f.MakerOrderID])
		payload, _ := json.Marshal(evt)
		if pubErr := s.bus.Publish(ctx, domain.TradeChannel(order.ConditionID), payload); pubErr != nil {
			s.logger.WarnContext(ctx, "fill event publish failed",
				slog.Int64("fill_id", f.ID),
				slog.String("error", pubErr.Error()))
		}
		if s.stream != nil {
			if streamErr := s.stream.PublishFill(ctx, evt); streamErr != nil {
				s.logger.WarnContext(ctx, "fill stream export failed",
					slog.Int64("fill_id", f.ID),
					slog.String("error", streamErr.Error()))
			}
		}
	}

	s.publishBookEvent(ctx, order.ConditionID, order.TokenID)

	if len(fills) > 0 {
		if wakeErr := s.bus.Publish(ctx, domain.ChannelSettlementWake, []byte("1")); wakeErr != nil {
			s.logger.WarnContext(ctx, "settlement wake publish failed",
				slog.String("error", wakeErr.Error()))
		}
	}

	if auditErr := s.audit.Log(ctx, "order.submitted", map[string]any{
		"order_id":   order.ID,
		"order_hash": order.OrderHash,
		"maker":      order.Maker,
		"token_id":   order.TokenID,
		"side":       string(order.Side),
		"fills":      len(fills),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("order_hash", order.OrderHash),
			slog.String("error", auditErr.Error()))
	}
}

// fillEvent renders a fill for the trade channel. Price is the maker's
// quantized price: the level the fill executed at.
func (s *OrderService) fillEvent(f domain.Fill, taker domain.Order, maker domain.Order) domain.FillEvent {
	evt := domain.FillEvent{
		FillID:       f.ID,
		ConditionID:  taker.ConditionID,
		TokenID:      taker.TokenID,
		MakerOrderID: f.MakerOrderID,
		TakerOrderID: f.TakerOrderID,
		Maker:        f.Maker,
		Taker:        f.Taker,
		Side:         taker.Side,
		TokenAmount:  f.TokenAmount.String(),
		Collateral:   f.CollateralAmount.String(),
		Fee:          f.Fee.String(),
		Status:       f.Status,
		Timestamp:    f.CreatedAt,
	}
	if maker.ID != 0 {
		evt.Price = decimal.NewFromBigRat(engine.Price(&maker), domain.BookPrecision).StringFixed(domain.BookPrecision)
	}
	return evt
}

func (s *OrderService) publishBookEvent(ctx context.Context, conditionID, tokenID string) {
	evt := domain.BookEvent{
		ConditionID: conditionID,
		TokenID:     tokenID,
		Timestamp:   time.Now().UTC(),
	}
	payload, _ := json.Marshal(evt)
	if pubErr := s.bus.Publish(ctx, domain.BookChannel(tokenID), payload); pubErr != nil {
		s.logger.WarnContext(ctx, "book event publish failed",
			slog.String("token_id", tokenID),
			slog.String("error", pubErr.Error()))
	}
}

// Cancel marks the maker's order cancelled and, when a chain executor is
// wired, invalidates the signature on the exchange contract as well. The
// local status flip is authoritative; the on-chain call is best-effort.
func (s *OrderService) Cancel(ctx context.Context, orderHash, maker string) (domain.Order, error) {
	o, err := s.orders.GetByHash(ctx, orderHash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, fmt.Errorf("order_service: order %s: %w", orderHash, domain.ErrNotFound)
		}
		return domain.Order{}, fmt.Errorf("order_service: get order %s: %w", orderHash, err)
	}
	if !strings.EqualFold(o.Maker, maker) {
		return domain.Order{}, fmt.Errorf("order_service: order %s belongs to another maker: %w", orderHash, domain.ErrUnauthorized)
	}

	cancelled, err := s.orders.Cancel(ctx, o.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: cancel order %s: %w", orderHash, err)
	}

	if s.chain != nil {
		if _, chainErr := s.chain.CancelOrder(ctx, cancelled); chainErr != nil {
			s.logger.WarnContext(ctx, "on-chain cancel failed, signature stays live",
				slog.String("order_hash", orderHash),
				slog.String("error", chainErr.Error()))
		}
	}

	s.logger.InfoContext(ctx, "order cancelled",
		slog.String("order_hash", orderHash),
		slog.String("maker", cancelled.Maker),
		slog.String("token_id", cancelled.TokenID))

	s.afterCancel(ctx, cancelled)
	return cancelled, nil
}

// afterCancel emits the post-cancel side effects, all best-effort.
func (s *OrderService) afterCancel(ctx context.Context, o domain.Order) {
	if err := s.books.Invalidate(ctx, o.TokenID); err != nil {
		s.logger.WarnContext(ctx, "book invalidate failed",
			slog.String("token_id", o.TokenID),
			slog.String("error", err.Error()))
	}

	evt := domain.OrderEvent{
		OrderID:     o.ID,
		OrderHash:   o.OrderHash,
		ConditionID: o.ConditionID,
		TokenID:     o.TokenID,
		Maker:       o.Maker,
		Status:      o.Status,
		Timestamp:   o.UpdatedAt,
	}
	payload, _ := json.Marshal(evt)
	if pubErr := s.bus.Publish(ctx, domain.OrderChannel(o.Maker), payload); pubErr != nil {
		s.logger.WarnContext(ctx, "order event publish failed",
			slog.String("order_hash", o.OrderHash),
			slog.String("error", pubErr.Error()))
	}

	s.publishBookEvent(ctx, o.ConditionID, o.TokenID)

	if auditErr := s.audit.Log(ctx, "order.cancelled", map[string]any{
		"order_id":   o.ID,
		"order_hash": o.OrderHash,
		"maker":      o.Maker,
		"token_id":   o.TokenID,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("order_hash", o.OrderHash),
			slog.String("error", auditErr.Error()))
	}
}

// GetOrder returns one order by its canonical hash.
func (s *OrderService) GetOrder(ctx context.Context, orderHash string) (domain.Order, error) {
	o, err := s.orders.GetByHash(ctx, orderHash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, fmt.Errorf("order_service: order %s: %w", orderHash, domain.ErrNotFound)
		}
		return domain.Order{}, fmt.Errorf("order_service: get order %s: %w", orderHash, err)
	}
	return o, nil
}

// ListOrders returns orders matching the query, newest first.
func (s *OrderService) ListOrders(ctx context.Context, q domain.OrderQuery) ([]domain.Order, error) {
	orders, err := s.orders.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("order_service: list orders: %w", err)
	}
	return orders, nil
}

// ListFills returns fills matching the query, newest first.
func (s *OrderService) ListFills(ctx context.Context, q domain.FillQuery) ([]domain.Fill, error) {
	fills, err := s.fills.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("order_service: list fills: %w", err)
	}
	return fills, nil
}

// GetBook returns the aggregated book for one token, serving from the cache
// when a fresh snapshot exists. depth <= 0 uses the configured default.
func (s *OrderService) GetBook(ctx context.Context, tokenID string, depth int) (domain.BookSnapshot, error) {
	if depth <= 0 {
		depth = s.cfg.BookDepth
	}

	if snap, err := s.books.Get(ctx, tokenID, depth); err == nil {
		return *snap, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "book cache read failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()))
	}

	if _, err := s.markets.GetByTokenID(ctx, tokenID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.BookSnapshot{}, fmt.Errorf("order_service: unknown token %s: %w", tokenID, domain.ErrNotFound)
		}
		return domain.BookSnapshot{}, fmt.Errorf("order_service: resolve market: %w", err)
	}

	bids, err := s.orders.ListResting(ctx, tokenID, domain.OrderSideBuy)
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("order_service: list bids: %w", err)
	}
	asks, err := s.orders.ListResting(ctx, tokenID, domain.OrderSideSell)
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("order_service: list asks: %w", err)
	}

	snap := engine.Snapshot(tokenID, append(bids, asks...), depth, time.Now().UTC())
	if err := s.books.Set(ctx, &snap, depth); err != nil {
		s.logger.WarnContext(ctx, "book cache write failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()))
	}
	return snap, nil
}

// MarketBook returns the paired YES and NO books of one market.
func (s *OrderService) MarketBook(ctx context.Context, conditionID string, depth int) (domain.MarketBook, error) {
	m, err := s.markets.GetByConditionID(ctx, conditionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.MarketBook{}, fmt.Errorf("order_service: market %s: %w", conditionID, domain.ErrNotFound)
		}
		return domain.MarketBook{}, fmt.Errorf("order_service: get market %s: %w", conditionID, err)
	}

	yes, err := s.GetBook(ctx, m.YesTokenID, depth)
	if err != nil {
		return domain.MarketBook{}, fmt.Errorf("order_service: yes book: %w", err)
	}
	no, err := s.GetBook(ctx, m.NoTokenID, depth)
	if err != nil {
		return domain.MarketBook{}, fmt.Errorf("order_service: no book: %w", err)
	}

	return domain.MarketBook{ConditionID: m.ConditionID, Yes: yes, No: no}, nil
}
