package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// bookSource renders the aggregated book for one token.
type bookSource interface {
	GetBook(ctx context.Context, tokenID string, depth int) (domain.BookSnapshot, error)
}

// statsFillStore is the slice of the fill store the stats updater reads.
type statsFillStore interface {
	SumSettledCollateral(ctx context.Context, conditionID string, since *time.Time) (*big.Int, error)
}

// statsMarketStore lists the markets to refresh and stores the results.
type statsMarketStore interface {
	ListActive(ctx context.Context, category string, opts domain.ListOpts) ([]domain.Market, int64, error)
	UpdateStats(ctx context.Context, conditionID string, stats domain.MarketStats) error
}

// StatsUpdater derives per-market stats from the books and settled fills:
// mid prices for both outcomes, trailing 24h volume and lifetime volume.
// The results are advisory; matching never reads them.
type StatsUpdater struct {
	markets  statsMarketStore
	fills    statsFillStore
	books    bookSource
	cache    domain.StatsCache
	bus      publisher
	interval time.Duration
	logger   *slog.Logger
}

// NewStatsUpdater creates a StatsUpdater.
func NewStatsUpdater(
	markets statsMarketStore,
	fills statsFillStore,
	books bookSource,
	cache domain.StatsCache,
	bus publisher,
	interval time.Duration,
	logger *slog.Logger,
) *StatsUpdater {
	return &StatsUpdater{
		markets:  markets,
		fills:    fills,
		books:    books,
		cache:    cache,
		bus:      bus,
		interval: interval,
		logger:   logger,
	}
}

// Run refreshes immediately, then on every interval until the context is
// cancelled.
func (s *StatsUpdater) Run(ctx context.Context) error {
	s.logger.Info("stats updater started", slog.Duration("interval", s.interval))

	if err := s.refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.ErrorContext(ctx, "stats refresh failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.ErrorContext(ctx, "stats refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *StatsUpdater) refresh(ctx context.Context) error {
	markets, _, err := s.markets.ListActive(ctx, "", domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("stats: list active markets: %w", err)
	}

	updated := 0
	for _, m := range markets {
		stats, err := s.compute(ctx, m)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.WarnContext(ctx, "stats computation failed",
				slog.String("condition_id", m.ConditionID),
				slog.String("error", err.Error()))
			continue
		}
		s.apply(ctx, stats)
		updated++
	}

	if updated > 0 {
		s.logger.InfoContext(ctx, "market stats refreshed", slog.Int("markets", updated))
	}
	return nil
}

// compute derives one market's stats. Prices come from the YES book's mid;
// the NO price is its complement, so the pair always sums to one. An empty
// book leaves both prices nil.
func (s *StatsUpdater) compute(ctx context.Context, m domain.Market) (domain.MarketStats, error) {
	stats := domain.MarketStats{
		ConditionID: m.ConditionID,
		UpdatedAt:   time.Now().UTC(),
	}

	snap, err := s.books.GetBook(ctx, m.YesTokenID, 1)
	if err != nil {
		return stats, fmt.Errorf("stats: yes book for %s: %w", m.ConditionID, err)
	}
	if snap.Mid != nil {
		yes := *snap.Mid
		no := decimal.NewFromInt(1).Sub(yes)
		stats.YesPrice = &yes
		stats.NoPrice = &no
	}

	total, err := s.fills.SumSettledCollateral(ctx, m.ConditionID, nil)
	if err != nil {
		return stats, fmt.Errorf("stats: total volume for %s: %w", m.ConditionID, err)
	}
	since := stats.UpdatedAt.Add(-24 * time.Hour)
	recent, err := s.fills.SumSettledCollateral(ctx, m.ConditionID, &since)
	if err != nil {
		return stats, fmt.Errorf("stats: 24h volume for %s: %w", m.ConditionID, err)
	}
	stats.TotalVolume = total.String()
	stats.Volume24h = recent.String()
	return stats, nil
}

// apply stores, caches and announces one market's refreshed stats. Each
// sink is best-effort on its own.
func (s *StatsUpdater) apply(ctx context.Context, stats domain.MarketStats) {
	if updErr := s.markets.UpdateStats(ctx, stats.ConditionID, stats); updErr != nil {
		s.logger.WarnContext(ctx, "stats store update failed",
			slog.String("condition_id", stats.ConditionID),
			slog.String("error", updErr.Error()))
	}
	if cacheErr := s.cache.Set(ctx, stats); cacheErr != nil {
		s.logger.WarnContext(ctx, "stats cache update failed",
			slog.String("condition_id", stats.ConditionID),
			slog.String("error", cacheErr.Error()))
	}
	payload, _ := json.Marshal(stats)
	if pubErr := s.bus.Publish(ctx, domain.StatsChannel(stats.ConditionID), payload); pubErr != nil {
		s.logger.WarnContext(ctx, "stats publish failed",
			slog.String("condition_id", stats.ConditionID),
			slog.String("error", pubErr.Error()))
	}
}
