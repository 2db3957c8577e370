package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// orderExpirer is the slice of the order store the sweeper drives.
type orderExpirer interface {
	ExpireDue(ctx context.Context, now time.Time) ([]domain.Order, error)
}

// bookInvalidator drops cached book snapshots for the swept tokens.
type bookInvalidator interface {
	Invalidate(ctx context.Context, tokenIDs ...string) error
}

// Sweeper expires resting orders whose expiration has passed, so stale
// signatures stop matching even though nothing touched them on-chain.
type Sweeper struct {
	orders   orderExpirer
	books    bookInvalidator
	bus      publisher
	audit    auditLogger
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(
	orders orderExpirer,
	books bookInvalidator,
	bus publisher,
	audit auditLogger,
	interval time.Duration,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		orders:   orders,
		books:    books,
		bus:      bus,
		audit:    audit,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps immediately, then on every interval until the context is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper started", slog.Duration("interval", s.interval))

	if err := s.sweep(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.ErrorContext(ctx, "expiry sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.ErrorContext(ctx, "expiry sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) error {
	now := time.Now().UTC()
	expired, err := s.orders.ExpireDue(ctx, now)
	if err != nil {
		return fmt.Errorf("sweeper: expire due orders: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}

	// One invalidation and one book event per touched token.
	tokens := make(map[string]string, len(expired))
	for _, o := range expired {
		tokens[o.TokenID] = o.ConditionID

		evt := domain.OrderEvent{
			OrderID:     o.ID,
			OrderHash:   o.OrderHash,
			ConditionID: o.ConditionID,
			TokenID:     o.TokenID,
			Maker:       o.Maker,
			Status:      domain.OrderStatusExpired,
			Timestamp:   now,
		}
		payload, _ := json.Marshal(evt)
		if pubErr := s.bus.Publish(ctx, domain.OrderChannel(o.Maker), payload); pubErr != nil {
			s.logger.WarnContext(ctx, "order event publish failed",
				slog.String("order_hash", o.OrderHash),
				slog.String("error", pubErr.Error()))
		}
	}

	ids := make([]string, 0, len(tokens))
	for tokenID := range tokens {
		ids = append(ids, tokenID)
	}
	if invErr := s.books.Invalidate(ctx, ids...); invErr != nil {
		s.logger.WarnContext(ctx, "book invalidation failed",
			slog.String("error", invErr.Error()))
	}

	for tokenID, conditionID := range tokens {
		evt := domain.BookEvent{
			ConditionID: conditionID,
			TokenID:     tokenID,
			Timestamp:   now,
		}
		payload, _ := json.Marshal(evt)
		if pubErr := s.bus.Publish(ctx, domain.BookChannel(tokenID), payload); pubErr != nil {
			s.logger.WarnContext(ctx, "book event publish failed",
				slog.String("token_id", tokenID),
				slog.String("error", pubErr.Error()))
		}
	}

	s.logger.InfoContext(ctx, "expired orders swept",
		slog.Int("orders", len(expired)),
		slog.Int("tokens", len(tokens)))

	if auditErr := s.audit.Log(ctx, "orders.expired", map[string]any{
		"orders": len(expired),
		"tokens": len(tokens),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", auditErr.Error()))
	}
	return nil
}
