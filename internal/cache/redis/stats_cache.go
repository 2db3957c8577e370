package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// Stats survive a little longer than books; the updater refreshes them on
// its own cadence regardless of read traffic.
const statsTTL = 60 * time.Second

// StatsCache implements domain.StatsCache with one JSON value per market.
//
// Key schema:
//
//	stats:{conditionID} - JSON-serialized MarketStats
type StatsCache struct {
	rdb *redis.Client
}

// NewStatsCache creates a StatsCache backed by the given Client.
func NewStatsCache(c *Client) *StatsCache {
	return &StatsCache{rdb: c.Underlying()}
}

func statsKey(conditionID string) string {
	return "stats:" + conditionID
}

// Get retrieves the cached stats for a market. It returns domain.ErrNotFound
// when no stats are cached.
func (sc *StatsCache) Get(ctx context.Context, conditionID string) (*domain.MarketStats, error) {
	data, err := sc.rdb.Get(ctx, statsKey(conditionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get stats %s: %w", conditionID, err)
	}

	var stats domain.MarketStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("redis: unmarshal stats %s: %w", conditionID, err)
	}
	return &stats, nil
}

// Set stores the stats for a market, refreshing the TTL.
func (sc *StatsCache) Set(ctx context.Context, stats domain.MarketStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("redis: marshal stats %s: %w", stats.ConditionID, err)
	}

	if err := sc.rdb.Set(ctx, statsKey(stats.ConditionID), data, statsTTL).Err(); err != nil {
		return fmt.Errorf("redis: set stats %s: %w", stats.ConditionID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.StatsCache = (*StatsCache)(nil)
