package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// SignalBus implements domain.SignalBus on Redis Pub/Sub. It carries the
// market-data fanout behind the websocket hub and the settlement wake
// signal; delivery is at-most-once and subscribers tolerate gaps.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish sends a raw byte payload to a channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a receive channel for messages matching the given
// channel patterns. Plain names subscribe exactly; names containing glob
// wildcards use pattern subscription. The returned channel closes when ctx
// is cancelled.
func (sb *SignalBus) Subscribe(ctx context.Context, patterns ...string) (<-chan domain.StreamMessage, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("redis: subscribe: no patterns")
	}

	var pubsub *redis.PubSub
	if anyPattern(patterns) {
		pubsub = sb.rdb.PSubscribe(ctx, patterns...)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, patterns...)
	}

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", strings.Join(patterns, ","), err)
	}

	out := make(chan domain.StreamMessage, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				sm := domain.StreamMessage{
					Channel: msg.Channel,
					Payload: []byte(msg.Payload),
				}
				select {
				case out <- sm:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// anyPattern reports whether any name includes glob-style wildcards, in
// which case PSubscribe must be used instead of Subscribe. A wildcard-free
// name matches itself exactly under either mode.
func anyPattern(patterns []string) bool {
	for _, p := range patterns {
		if strings.ContainsAny(p, "*?[") {
			return true
		}
	}
	return false
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
