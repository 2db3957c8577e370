package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/madschristensen99/rushTrade/internal/domain"
	"github.com/madschristensen99/rushTrade/internal/notify"
)

// syncPageSize is how many condition ids one factory call pages through.
const syncPageSize = 100

// MarketService mirrors the factory contract's market registry into the
// store and serves reads enriched with cached stats.
type MarketService struct {
	markets  domain.MarketStore
	stats    domain.StatsCache
	chain    domain.ChainExecutor
	audit    domain.AuditStore
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(
	markets domain.MarketStore,
	stats domain.StatsCache,
	chain domain.ChainExecutor,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:  markets,
		stats:    stats,
		chain:    chain,
		audit:    audit,
		notifier: notifier,
		logger:   logger,
	}
}

// Sync pulls the factory's registry, upserts condition ids not yet mirrored,
// then re-reads markets whose resolution time has passed. It returns how many
// markets were added.
func (s *MarketService) Sync(ctx context.Context) (int, error) {
	count, err := s.chain.MarketCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: market count: %w", err)
	}

	var added int
	for offset := int64(0); offset < count; offset += syncPageSize {
		ids, err := s.chain.MarketConditionIDs(ctx, offset, syncPageSize)
		if err != nil {
			return added, fmt.Errorf("market_service: condition ids at %d: %w", offset, err)
		}
		for _, cid := range ids {
			if _, err := s.markets.GetByConditionID(ctx, cid); err == nil {
				continue
			} else if !errors.Is(err, domain.ErrNotFound) {
				return added, fmt.Errorf("market_service: check market %s: %w", cid, err)
			}

			m, err := s.chain.MarketInfo(ctx, cid)
			if err != nil {
				s.logger.WarnContext(ctx, "market read failed",
					slog.String("condition_id", cid),
					slog.String("error", err.Error()))
				continue
			}
			if _, err := s.markets.Upsert(ctx, m); err != nil {
				return added, fmt.Errorf("market_service: upsert market %s: %w", cid, err)
			}
			added++
			s.logger.InfoContext(ctx, "market discovered",
				slog.String("condition_id", cid),
				slog.String("title", m.Title))
		}
	}

	resolved, err := s.syncResolutions(ctx)
	if err != nil {
		return added, err
	}

	if added > 0 || resolved > 0 {
		if auditErr := s.audit.Log(ctx, "market.synced", map[string]any{
			"total":    count,
			"added":    added,
			"resolved": resolved,
		}); auditErr != nil {
			s.logger.WarnContext(ctx, "audit log failed",
				slog.String("error", auditErr.Error()))
		}
	}
	return added, nil
}

// syncResolutions re-reads every active market whose resolution time has
// passed and flips the ones the oracle has resolved, announcing each flip.
func (s *MarketService) syncResolutions(ctx context.Context) (int, error) {
	due, err := s.markets.ListDueForResolution(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("market_service: list due markets: %w", err)
	}

	var resolved int
	for _, m := range due {
		onchain, err := s.chain.MarketInfo(ctx, m.ConditionID)
		if err != nil {
			s.logger.WarnContext(ctx, "resolution check failed",
				slog.String("condition_id", m.ConditionID),
				slog.String("error", err.Error()))
			continue
		}
		if onchain.Status != domain.MarketStatusResolved {
			continue
		}

		if _, err := s.markets.Upsert(ctx, onchain); err != nil {
			return resolved, fmt.Errorf("market_service: resolve market %s: %w", m.ConditionID, err)
		}
		resolved++

		s.logger.InfoContext(ctx, "market resolved",
			slog.String("condition_id", m.ConditionID),
			slog.String("title", onchain.Title),
			slog.Int("yes_payout", payoutValue(onchain.YesPayout)),
			slog.Int("no_payout", payoutValue(onchain.NoPayout)))

		if s.notifier != nil {
			msg := fmt.Sprintf("%s\nYES payout: %d, NO payout: %d",
				onchain.Title, payoutValue(onchain.YesPayout), payoutValue(onchain.NoPayout))
			if notifyErr := s.notifier.Notify(ctx, notify.EventMarketResolved, "Market resolved", msg); notifyErr != nil {
				s.logger.WarnContext(ctx, "resolution notify failed",
					slog.String("condition_id", m.ConditionID),
					slog.String("error", notifyErr.Error()))
			}
		}

		if auditErr := s.audit.Log(ctx, "market.resolved", map[string]any{
			"condition_id": m.ConditionID,
			"yes_payout":   payoutValue(onchain.YesPayout),
			"no_payout":    payoutValue(onchain.NoPayout),
		}); auditErr != nil {
			s.logger.WarnContext(ctx, "audit log failed",
				slog.String("condition_id", m.ConditionID),
				slog.String("error", auditErr.Error()))
		}
	}
	return resolved, nil
}

func payoutValue(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// Get returns one market with the freshest stats overlay the cache holds.
func (s *MarketService) Get(ctx context.Context, conditionID string) (domain.Market, error) {
	m, err := s.markets.GetByConditionID(ctx, conditionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Market{}, fmt.Errorf("market_service: market %s: %w", conditionID, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("market_service: get market %s: %w", conditionID, err)
	}
	s.overlayStats(ctx, &m)
	return m, nil
}

// List returns active markets, optionally filtered by category, with the
// total row count for pagination.
func (s *MarketService) List(ctx context.Context, category string, opts domain.ListOpts) ([]domain.Market, int64, error) {
	markets, total, err := s.markets.ListActive(ctx, category, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("market_service: list markets: %w", err)
	}
	for i := range markets {
		s.overlayStats(ctx, &markets[i])
	}
	return markets, total, nil
}

// overlayStats replaces the market's persisted stats with the cached copy
// when one exists. The stats are advisory; cache misses and errors leave the
// stored values untouched.
func (s *MarketService) overlayStats(ctx context.Context, m *domain.Market) {
	if s.stats == nil {
		return
	}
	st, err := s.stats.Get(ctx, m.ConditionID)
	if err != nil || st == nil {
		return
	}
	m.YesPrice = st.YesPrice
	m.NoPrice = st.NoPrice
	if v, ok := new(big.Int).SetString(st.Volume24h, 10); ok {
		m.Volume24h = v
	}
	if v, ok := new(big.Int).SetString(st.TotalVolume, 10); ok {
		m.TotalVolume = v
	}
}

// Positions reads the wallet's outcome-token balances across all active
// markets straight from the conditional-token contract. Zero balances are
// omitted.
func (s *MarketService) Positions(ctx context.Context, wallet string) ([]domain.Position, error) {
	if !common.IsHexAddress(wallet) {
		return nil, fmt.Errorf("market_service: wallet %q: %w", wallet, domain.ErrInvalidAddress)
	}

	markets, _, err := s.markets.ListActive(ctx, "", domain.ListOpts{})
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}

	var positions []domain.Position
	for _, m := range markets {
		for _, outcome := range []struct{ name, token string }{
			{"yes", m.YesTokenID},
			{"no", m.NoTokenID},
		} {
			if outcome.token == "" {
				continue
			}
			bal, err := s.chain.PositionBalance(ctx, wallet, outcome.token)
			if err != nil {
				s.logger.WarnContext(ctx, "balance read failed",
					slog.String("wallet", wallet),
					slog.String("token_id", outcome.token),
					slog.String("error", err.Error()))
				continue
			}
			if bal == nil || bal.Sign() == 0 {
				continue
			}
			positions = append(positions, domain.Position{
				ConditionID: m.ConditionID,
				TokenID:     outcome.token,
				Outcome:     outcome.name,
				Title:       m.Title,
				Balance:     bal,
			})
		}
	}
	return positions, nil
}
