package domain

import (
	"math/big"
	"time"
)

// ZeroAddress is the EVM zero address, used as the "maker signs for
// themselves" sentinel in the signer field.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// OrderSide indicates whether the maker is buying or selling outcome tokens.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Valid reports whether the side is one of the two known values.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// Opposite returns the other side of the book.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Uint8 returns the side encoding used by the CTFExchange Order struct.
func (s OrderSide) Uint8() uint8 {
	if s == OrderSideSell {
		return 1
	}
	return 0
}

// OrderStatus tracks the order lifecycle.
//
// Transitions are strictly monotonic: open and partial may advance to
// partial/filled as fills accumulate, or jump to cancelled/expired by an
// explicit action; filled, cancelled and expired are terminal.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
)

// Valid reports whether the status is a known lifecycle state.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusOpen, OrderStatusPartial, OrderStatusFilled,
		OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

// Resting reports whether an order in this status still provides liquidity.
func (s OrderStatus) Resting() bool {
	return s == OrderStatusOpen || s == OrderStatusPartial
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Terminal states admit nothing; open/partial admit fills and terminal
// actions.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case OrderStatusPartial, OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

// Order is a maker's signed intent to trade a fixed quantity of one outcome
// token, mirroring the CTFExchange Order struct.
//
// The price is implied by the (MakerAmount, TakerAmount) pair rather than
// stored as a single field, preserving the exact integer ratio:
//
//	BUY  side: price = MakerAmount / TakerAmount  (collateral per token)
//	SELL side: price = TakerAmount / MakerAmount  (collateral per token)
//
// FilledAmount is always expressed in token units regardless of side.
type Order struct {
	ID int64

	// Market linkage.
	ConditionID string
	TokenID     string

	// CTFExchange Order struct fields. Amounts are uint256 values and must
	// never be narrowed to machine integers.
	Maker       string
	MakerAmount *big.Int
	TakerAmount *big.Int
	Expiration  int64 // unix seconds; 0 = never expires
	Nonce       int64
	FeeRateBps  int64
	Side        OrderSide
	Signer      string // zero address = maker signs for themselves

	// EIP-712 signature produced by the maker's wallet.
	Signature string

	// Derived canonical hash; globally unique, used for dedupe and as the
	// on-chain order key.
	OrderHash string

	// Fill tracking.
	Status       OrderStatus
	FilledAmount *big.Int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SigningAddress returns the address a valid signature must recover to:
// the explicit signer when set, otherwise the maker.
func (o Order) SigningAddress() string {
	if o.Signer == "" || o.Signer == ZeroAddress {
		return o.Maker
	}
	return o.Signer
}

// Expired reports whether the order's expiration timestamp has passed.
// Orders with Expiration == 0 never expire.
func (o Order) Expired(now time.Time) bool {
	return o.Expiration > 0 && o.Expiration <= now.Unix()
}
