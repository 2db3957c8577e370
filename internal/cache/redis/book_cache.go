package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// bookTTL is deliberately short: the cache only absorbs read bursts between
// submissions, and every submission invalidates the token's books anyway.
const bookTTL = 2 * time.Second

// BookCache implements domain.BookCache using one Redis hash per token with
// a field per requested depth, so invalidation is a single DEL regardless of
// how many depths have been rendered.
//
// Key schema:
//
//	book:{tokenID} - hash mapping depth -> JSON snapshot
type BookCache struct {
	rdb *redis.Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying()}
}

func bookKey(tokenID string) string {
	return "book:" + tokenID
}

// Get retrieves a cached snapshot for the token at the given depth. It
// returns domain.ErrNotFound when no snapshot is cached.
func (bc *BookCache) Get(ctx context.Context, tokenID string, depth int) (*domain.BookSnapshot, error) {
	data, err := bc.rdb.HGet(ctx, bookKey(tokenID), strconv.Itoa(depth)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get book %s: %w", tokenID, err)
	}

	var snap domain.BookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("redis: unmarshal book %s: %w", tokenID, err)
	}
	return &snap, nil
}

// Set stores a snapshot under its token and depth, refreshing the TTL.
func (bc *BookCache) Set(ctx context.Context, snapshot *domain.BookSnapshot, depth int) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("redis: marshal book %s: %w", snapshot.TokenID, err)
	}

	key := bookKey(snapshot.TokenID)
	pipe := bc.rdb.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(depth), data)
	pipe.Expire(ctx, key, bookTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book %s: %w", snapshot.TokenID, err)
	}
	return nil
}

// Invalidate drops every cached depth for the given tokens.
func (bc *BookCache) Invalidate(ctx context.Context, tokenIDs ...string) error {
	if len(tokenIDs) == 0 {
		return nil
	}

	keys := make([]string, len(tokenIDs))
	for i, id := range tokenIDs {
		keys[i] = bookKey(id)
	}

	if err := bc.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: invalidate books: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)
