package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/madschristensen99/rushTrade/internal/domain"
	"github.com/madschristensen99/rushTrade/internal/engine"
	"github.com/madschristensen99/rushTrade/internal/notify"
)

// settlerFillStore is the slice of the fill store the settler drives.
type settlerFillStore interface {
	ListPending(ctx context.Context, limit int) ([]domain.Fill, error)
	MarkSettled(ctx context.Context, ids []int64, txHash string, settledAt time.Time) error
	MarkFailed(ctx context.Context, ids []int64) error
}

// orderReader loads the maker orders a batch executes.
type orderReader interface {
	GetByID(ctx context.Context, id int64) (domain.Order, error)
}

// batchFiller submits one settlement batch on-chain.
type batchFiller interface {
	FillOrders(ctx context.Context, orders []domain.Order, amounts []*big.Int) (string, error)
}

// Settler drains pending fills into on-chain settlement batches. It runs on
// its interval and additionally wakes as soon as the order service signals
// new fills, so quiet periods cost nothing and busy ones settle fast.
type Settler struct {
	fills     settlerFillStore
	orders    orderReader
	chain     batchFiller
	bus       domain.SignalBus
	audit     auditLogger
	notifier  *notify.Notifier
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewSettler creates a Settler.
func NewSettler(
	fills settlerFillStore,
	orders orderReader,
	chain batchFiller,
	bus domain.SignalBus,
	audit auditLogger,
	notifier *notify.Notifier,
	interval time.Duration,
	batchSize int,
	logger *slog.Logger,
) *Settler {
	return &Settler{
		fills:     fills,
		orders:    orders,
		chain:     chain,
		bus:       bus,
		audit:     audit,
		notifier:  notifier,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run settles until the context is cancelled.
func (s *Settler) Run(ctx context.Context) error {
	wake, err := s.bus.Subscribe(ctx, domain.ChannelSettlementWake)
	if err != nil {
		return fmt.Errorf("settler: subscribe %s: %w", domain.ChannelSettlementWake, err)
	}

	s.logger.Info("settler started",
		slog.Duration("interval", s.interval),
		slog.Int("batch_size", s.batchSize))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case _, ok := <-wake:
			if !ok {
				return ctx.Err()
			}
		}

		if err := s.drain(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.ErrorContext(ctx, "settlement pass failed",
				slog.String("error", err.Error()))
		}
	}
}

// drain settles batch after batch until no pending fills remain or a batch
// is rejected on-chain.
func (s *Settler) drain(ctx context.Context) error {
	for {
		batch, err := s.fills.ListPending(ctx, s.batchSize)
		if err != nil {
			return fmt.Errorf("settler: list pending fills: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		submitted, err := s.settleBatch(ctx, batch)
		if err != nil {
			return err
		}
		if !submitted || len(batch) < s.batchSize {
			return nil
		}
	}
}

// settleBatch executes one batch. The returned bool reports whether the
// batch made it on-chain; false means the fills were marked failed and the
// operator alerted, and the pass should stop rather than cascade. A store
// or context error returns without marking anything, leaving the batch
// pending for the next pass.
func (s *Settler) settleBatch(ctx context.Context, batch []domain.Fill) (bool, error) {
	ref := ulid.Make().String()

	orders := make([]domain.Order, 0, len(batch))
	amounts := make([]*big.Int, 0, len(batch))
	ids := make([]int64, 0, len(batch))
	makers := make(map[int64]domain.Order, len(batch))
	for _, f := range batch {
		maker, ok := makers[f.MakerOrderID]
		if !ok {
			var err error
			maker, err = s.orders.GetByID(ctx, f.MakerOrderID)
			if err != nil {
				return false, fmt.Errorf("settler: load maker order %d for fill %d: %w", f.MakerOrderID, f.ID, err)
			}
			makers[f.MakerOrderID] = maker
		}
		orders = append(orders, maker)
		amounts = append(amounts, f.TokenAmount)
		ids = append(ids, f.ID)
	}

	txHash, err := s.chain.FillOrders(ctx, orders, amounts)
	if err != nil {
		// A shutdown mid-flight leaves the batch pending; an actual
		// rejection moves it to failed exactly once.
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, s.failBatch(ctx, batch, makers, ref, err)
	}

	now := time.Now().UTC()
	if err := s.fills.MarkSettled(ctx, ids, txHash, now); err != nil {
		return false, fmt.Errorf("settler: mark batch %s settled: %w", ref, err)
	}

	s.logger.InfoContext(ctx, "settlement batch confirmed",
		slog.String("batch_ref", ref),
		slog.String("tx_hash", txHash),
		slog.Int("fills", len(batch)))

	for _, f := range batch {
		s.publishFill(ctx, f, makers[f.MakerOrderID], domain.FillStatusSettled, txHash, now)
	}

	if auditErr := s.audit.Log(ctx, "settlement.batch", map[string]any{
		"batch_ref": ref,
		"tx_hash":   txHash,
		"fills":     len(batch),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("batch_ref", ref),
			slog.String("error", auditErr.Error()))
	}
	return true, nil
}

// failBatch marks the batch failed, announces the outcome and alerts the
// operator. It returns an error only when the status flip itself fails.
func (s *Settler) failBatch(ctx context.Context, batch []domain.Fill, makers map[int64]domain.Order, ref string, cause error) error {
	ids := make([]int64, len(batch))
	for i, f := range batch {
		ids[i] = f.ID
	}
	if err := s.fills.MarkFailed(ctx, ids); err != nil {
		return fmt.Errorf("settler: mark batch %s failed: %w", ref, err)
	}

	s.logger.ErrorContext(ctx, "settlement batch rejected",
		slog.String("batch_ref", ref),
		slog.Int("fills", len(batch)),
		slog.String("error", cause.Error()))

	now := time.Now().UTC()
	for _, f := range batch {
		s.publishFill(ctx, f, makers[f.MakerOrderID], domain.FillStatusFailed, "", now)
	}

	if s.notifier != nil {
		msg := fmt.Sprintf("Batch %s with %d fills: %v", ref, len(batch), cause)
		if notifyErr := s.notifier.Notify(ctx, notify.EventSettlementFailed, "Settlement failed", msg); notifyErr != nil {
			s.logger.WarnContext(ctx, "settlement alert failed",
				slog.String("error", notifyErr.Error()))
		}
	}

	if auditErr := s.audit.Log(ctx, "settlement.failed", map[string]any{
		"batch_ref": ref,
		"fills":     len(batch),
		"error":     cause.Error(),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("batch_ref", ref),
			slog.String("error", auditErr.Error()))
	}
	return nil
}

// publishFill announces a settlement outcome on the market's trade channel.
func (s *Settler) publishFill(ctx context.Context, f domain.Fill, maker domain.Order, status domain.FillStatus, txHash string, at time.Time) {
	evt := domain.FillEvent{
		FillID:       f.ID,
		ConditionID:  maker.ConditionID,
		TokenID:      maker.TokenID,
		MakerOrderID: f.MakerOrderID,
		TakerOrderID: f.TakerOrderID,
		Maker:        f.Maker,
		Taker:        f.Taker,
		Side:         maker.Side.Opposite(),
		Price:        decimal.NewFromBigRat(engine.Price(&maker), domain.BookPrecision).StringFixed(domain.BookPrecision),
		TokenAmount:  f.TokenAmount.String(),
		Collateral:   f.CollateralAmount.String(),
		Fee:          f.Fee.String(),
		Status:       status,
		TxHash:       txHash,
		Timestamp:    at,
	}
	payload, _ := json.Marshal(evt)
	if pubErr := s.bus.Publish(ctx, domain.TradeChannel(maker.ConditionID), payload); pubErr != nil {
		s.logger.WarnContext(ctx, "fill event publish failed",
			slog.Int64("fill_id", f.ID),
			slog.String("error", pubErr.Error()))
	}
}
