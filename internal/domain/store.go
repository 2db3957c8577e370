package domain

import (
	"context"
	"math/big"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderQuery filters order listings. Zero values mean "no filter".
type OrderQuery struct {
	Maker       string
	ConditionID string
	TokenID     string
	Status      OrderStatus
	Limit       int
	Offset      int
}

// FillQuery filters fill listings. Wallet matches either side of the fill.
type FillQuery struct {
	Wallet  string
	OrderID int64
	Status  FillStatus
	Limit   int
	Offset  int
}

// OrderStore persists orders and applies match results.
//
// Orders are never deleted; they only transition status. All mutation of
// filled_amount and status at submission time happens inside
// CreateWithMatches so that a submission is one atomic unit.
type OrderStore interface {
	// CreateWithMatches inserts the taker order and applies the given match
	// results in a single transaction: one PENDING fill per match, both
	// sides' filled_amount incremented, statuses advanced to partial/filled.
	// The whole transaction fails if any matched maker order is no longer
	// resting. The stored order (with id and timestamps) and the created
	// fills are returned.
	CreateWithMatches(ctx context.Context, order *Order, matches []Match) ([]Fill, error)

	GetByID(ctx context.Context, id int64) (Order, error)
	GetByHash(ctx context.Context, orderHash string) (Order, error)

	// ListResting returns open/partial orders for one token and side, in
	// ascending id order. The matching engine price-sorts them itself.
	ListResting(ctx context.Context, tokenID string, side OrderSide) ([]Order, error)

	List(ctx context.Context, q OrderQuery) ([]Order, error)

	// Cancel marks the order cancelled iff it is still resting; returns
	// ErrOrderTerminal otherwise.
	Cancel(ctx context.Context, id int64) (Order, error)

	// ExpireDue marks every resting order whose expiration has passed as
	// expired and returns the affected orders.
	ExpireDue(ctx context.Context, now time.Time) ([]Order, error)

	// ListTerminalBefore returns terminal orders created before the cutoff,
	// for archival.
	ListTerminalBefore(ctx context.Context, before time.Time) ([]Order, error)
}

// FillStore reads fills and advances their settlement status. Fill amounts
// are immutable after creation; only status, tx hash and settlement time
// move, and only through the settlement pipeline.
type FillStore interface {
	GetByID(ctx context.Context, id int64) (Fill, error)

	// ListPending returns up to limit PENDING fills, oldest first.
	ListPending(ctx context.Context, limit int) ([]Fill, error)

	List(ctx context.Context, q FillQuery) ([]Fill, error)

	// MarkSettled moves the given fills to SETTLED with the transaction
	// reference and settlement timestamp, in one statement.
	MarkSettled(ctx context.Context, ids []int64, txHash string, settledAt time.Time) error

	// MarkFailed moves the given fills to FAILED in one statement.
	MarkFailed(ctx context.Context, ids []int64) error

	// SumSettledCollateral totals settled collateral for one market, joining
	// through the maker order. A non-nil since restricts the sum to fills
	// settled at or after it. Used by the stats updater.
	SumSettledCollateral(ctx context.Context, conditionID string, since *time.Time) (*big.Int, error)

	// ListTerminalBefore returns settled/failed fills created before the
	// cutoff, for archival.
	ListTerminalBefore(ctx context.Context, before time.Time) ([]Fill, error)
}

// MarketStore persists market metadata and derived stats.
type MarketStore interface {
	Upsert(ctx context.Context, m Market) (Market, error)
	GetByConditionID(ctx context.Context, conditionID string) (Market, error)
	GetByTokenID(ctx context.Context, tokenID string) (Market, error)
	ListActive(ctx context.Context, category string, opts ListOpts) ([]Market, int64, error)
	ListDueForResolution(ctx context.Context, now time.Time) ([]Market, error)
	UpdateStats(ctx context.Context, conditionID string, stats MarketStats) error
	Count(ctx context.Context) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
