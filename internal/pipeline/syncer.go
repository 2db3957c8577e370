package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// marketSyncer pulls market metadata from the chain into the local store.
type marketSyncer interface {
	Sync(ctx context.Context) (int, error)
}

// Syncer keeps the market catalog current: it discovers newly created
// markets and picks up oracle resolutions.
type Syncer struct {
	markets  marketSyncer
	interval time.Duration
	logger   *slog.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(markets marketSyncer, interval time.Duration, logger *slog.Logger) *Syncer {
	return &Syncer{markets: markets, interval: interval, logger: logger}
}

// Run syncs immediately, then on every interval until the context is
// cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	s.logger.Info("market syncer started", slog.Duration("interval", s.interval))

	s.syncOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.syncOnce(ctx)
		}
	}
}

func (s *Syncer) syncOnce(ctx context.Context) {
	added, err := s.markets.Sync(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.ErrorContext(ctx, "market sync failed", slog.String("error", err.Error()))
		return
	}
	if added > 0 {
		s.logger.InfoContext(ctx, "market sync complete", slog.Int("added", added))
	}
}
