package domain

import (
	"context"
	"math/big"
)

// OrderHasher computes the canonical EIP-712 hash of an order's signed
// fields. The hash is deterministic, collision-resistant, and doubles as the
// on-chain order key.
type OrderHasher interface {
	Hash(o Order) (string, error)
}

// SignatureVerifier checks an order's signature against its declared signing
// address. Implementations return ErrInvalidSignature (wrapped) for
// malformed or non-matching signatures.
type SignatureVerifier interface {
	Verify(o Order) error
}

// ChainExecutor is the opaque bridge to the exchange contracts. All calls
// block on network I/O and honor the context deadline.
type ChainExecutor interface {
	// FillOrders submits one batch transaction executing the given maker
	// orders for the given token amounts. Signatures travel on the orders.
	// Returns the transaction hash.
	FillOrders(ctx context.Context, orders []Order, amounts []*big.Int) (string, error)

	// CancelOrder invalidates the order on-chain so its signature can no
	// longer be filled. Best-effort: local state stays authoritative.
	CancelOrder(ctx context.Context, o Order) (string, error)

	// MarketCount returns the number of markets the factory has created.
	MarketCount(ctx context.Context) (int64, error)

	// MarketConditionIDs pages through the factory's condition id registry.
	MarketConditionIDs(ctx context.Context, offset, limit int64) ([]string, error)

	// MarketInfo reads one market's metadata and resolution state.
	MarketInfo(ctx context.Context, conditionID string) (Market, error)

	// PositionBalance reads the wallet's conditional-token balance.
	PositionBalance(ctx context.Context, wallet string, tokenID string) (*big.Int, error)

	// Health verifies RPC connectivity.
	Health(ctx context.Context) error
}

// ExchangeInfo describes the EIP-712 signing domain clients need to
// construct a valid order signature.
type ExchangeInfo struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           int64  `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}
