package domain

import (
	"context"
	"time"
)

// LockManager hands out short-lived distributed locks. Acquire returns an
// unlock function when the lock is won and ErrLockHeld when another holder
// has it.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter enforces a sliding-window request budget per key. Backend
// errors surface to the caller, which should fail open so a cache outage
// never blocks trading.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// SignalBus is the pub/sub fabric between the API process and the
// settlement workers, and the feed behind the websocket hub.
type SignalBus interface {
	// Publish fires a payload at a channel. Subscribers may or may not be
	// listening; delivery is at-most-once.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a receive channel for messages matching the given
	// channel patterns. The channel closes when ctx is cancelled.
	Subscribe(ctx context.Context, patterns ...string) (<-chan StreamMessage, error)
}

// StreamMessage is one delivered pub/sub payload.
type StreamMessage struct {
	Channel string
	Payload []byte
}

// BookCache holds rendered order book snapshots under a short TTL so bursts
// of reads hit the cache instead of re-aggregating from the store.
type BookCache interface {
	Get(ctx context.Context, tokenID string, depth int) (*BookSnapshot, error)
	Set(ctx context.Context, snapshot *BookSnapshot, depth int) error
	Invalidate(ctx context.Context, tokenIDs ...string) error
}

// StatsCache keeps the latest per-market stats for cheap reads and fans the
// updates out on the stats channel.
type StatsCache interface {
	Get(ctx context.Context, conditionID string) (*MarketStats, error)
	Set(ctx context.Context, stats MarketStats) error
}
