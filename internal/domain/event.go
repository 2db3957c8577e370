package domain

import (
	"context"
	"strings"
	"time"
)

// Signal-bus channel layout. The websocket hub subscribes to the event
// pattern and fans messages out to clients by channel name; the settlement
// pipeline listens on the wake channel.
const (
	ChannelSettlementWake = "settlement:pending"
	channelPrefix         = "clob:"
)

// EventChannelPattern matches every client-facing event channel.
const EventChannelPattern = channelPrefix + "*"

// BookChannel is the channel carrying book updates for one outcome token.
func BookChannel(tokenID string) string { return channelPrefix + "book:" + tokenID }

// TradeChannel is the channel carrying fill events for one market.
func TradeChannel(conditionID string) string { return channelPrefix + "trades:" + conditionID }

// OrderChannel is the channel carrying order lifecycle events for one maker.
func OrderChannel(maker string) string { return channelPrefix + "orders:" + strings.ToLower(maker) }

// StatsChannel is the channel carrying derived stats for one market.
func StatsChannel(conditionID string) string { return channelPrefix + "stats:" + conditionID }

// ShortChannel strips the bus namespace from a channel name, leaving the
// client-facing name websocket subscribers use ("book:101", "trades:0xc1").
func ShortChannel(channel string) string { return strings.TrimPrefix(channel, channelPrefix) }

// FillEvent is published for every fill created by match application and
// again when the fill settles or fails. Amounts are decimal strings.
type FillEvent struct {
	FillID       int64      `json:"fill_id"`
	ConditionID  string     `json:"condition_id"`
	TokenID      string     `json:"token_id"`
	MakerOrderID int64      `json:"maker_order_id"`
	TakerOrderID int64      `json:"taker_order_id"`
	Maker        string     `json:"maker"`
	Taker        string     `json:"taker"`
	Side         OrderSide  `json:"side"`  // taker side
	Price        string     `json:"price"` // maker price, quantized
	TokenAmount  string     `json:"token_amount"`
	Collateral   string     `json:"collateral_amount"`
	Fee          string     `json:"fee"`
	Status       FillStatus `json:"status"`
	TxHash       string     `json:"tx_hash,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// BookEvent announces that the resting set for a token changed; consumers
// re-fetch the snapshot or apply the embedded top-of-book hint.
type BookEvent struct {
	ConditionID string    `json:"condition_id"`
	TokenID     string    `json:"token_id"`
	BestBid     string    `json:"best_bid,omitempty"`
	BestAsk     string    `json:"best_ask,omitempty"`
	Mid         string    `json:"mid,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// FillStream exports fill events to an external message stream for
// downstream consumers. A nil stream disables export.
type FillStream interface {
	PublishFill(ctx context.Context, evt FillEvent) error
}

// OrderEvent is published on order lifecycle transitions that are not fills
// (cancellation, expiry).
type OrderEvent struct {
	OrderID     int64       `json:"order_id"`
	OrderHash   string      `json:"order_hash"`
	ConditionID string      `json:"condition_id"`
	TokenID     string      `json:"token_id"`
	Maker       string      `json:"maker"`
	Status      OrderStatus `json:"status"`
	Timestamp   time.Time   `json:"timestamp"`
}
