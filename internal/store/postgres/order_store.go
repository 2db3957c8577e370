package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderSelectCols = `id, condition_id, token_id, maker,
	maker_amount::text, taker_amount::text,
	expiration, nonce, fee_rate_bps, side,
	signer, signature, order_hash, status,
	filled_amount::text, created_at, updated_at`

// scanOrderFromRow scans a single order from anything with a Scan method
// (pgx.Row or pgx.Rows).
func scanOrderFromRow(row interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var (
		o            domain.Order
		side         string
		status       string
		makerAmount  string
		takerAmount  string
		filledAmount string
	)
	if err := row.Scan(
		&o.ID, &o.ConditionID, &o.TokenID, &o.Maker,
		&makerAmount, &takerAmount,
		&o.Expiration, &o.Nonce, &o.FeeRateBps, &side,
		&o.Signer, &o.Signature, &o.OrderHash, &status,
		&filledAmount, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	var err error
	if o.MakerAmount, err = parseBigInt(makerAmount); err != nil {
		return domain.Order{}, err
	}
	if o.TakerAmount, err = parseBigInt(takerAmount); err != nil {
		return domain.Order{}, err
	}
	if o.FilledAmount, err = parseBigInt(filledAmount); err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: order rows: %w", err)
	}
	return orders, nil
}

// CreateWithMatches inserts the taker order and applies its match results in
// one transaction. Each match creates a pending fill and advances the maker
// order's filled amount and status; the taker order is advanced once with the
// summed quantity. Maker updates are guarded: the maker must still be resting
// with enough remaining quantity, or the whole submission rolls back.
//
// The inserted order's id, final filled amount, status and timestamps are
// written back into order.
func (s *OrderStore) CreateWithMatches(ctx context.Context, order *domain.Order, matches []domain.Match) ([]domain.Fill, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin submit order: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertOrder = `
		INSERT INTO orders (
			condition_id, token_id, maker,
			maker_amount, taker_amount,
			expiration, nonce, fee_rate_bps, side,
			signer, signature, order_hash,
			status, filled_amount
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6, $7, $8, $9,
			$10, $11, $12,
			$13, $14
		)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRow(ctx, insertOrder,
		order.ConditionID, order.TokenID, order.Maker,
		order.MakerAmount.String(), order.TakerAmount.String(),
		order.Expiration, order.Nonce, order.FeeRateBps, string(order.Side),
		order.Signer, order.Signature, order.OrderHash,
		string(order.Status), order.FilledAmount.String(),
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("postgres: create order: %w", domain.ErrDuplicateOrder)
		}
		return nil, fmt.Errorf("postgres: create order: %w", err)
	}

	// One guarded update per matched maker. The guard re-checks under the
	// transaction what the engine saw outside it: still resting, and the
	// matched quantity still fits in the remainder.
	const updateMaker = `
		UPDATE orders
		SET filled_amount = filled_amount + $1,
		    status = $2,
		    updated_at = NOW()
		WHERE id = $3
		  AND status IN ('open', 'partial')
		  AND filled_amount + $1 <= CASE WHEN side = 'buy' THEN taker_amount ELSE maker_amount END`

	for _, m := range matches {
		status := domain.OrderStatusPartial
		if m.MakerExhausted {
			status = domain.OrderStatusFilled
		}
		tag, err := tx.Exec(ctx, updateMaker, m.TokenAmount.String(), string(status), m.MakerOrderID)
		if err != nil {
			return nil, fmt.Errorf("postgres: fill maker order %d: %w", m.MakerOrderID, err)
		}
		if tag.RowsAffected() != 1 {
			return nil, fmt.Errorf("postgres: fill maker order %d: %w", m.MakerOrderID, domain.ErrOrderTerminal)
		}
	}

	// The taker advances once with the total matched quantity.
	if len(matches) > 0 {
		total := new(big.Int)
		takerStatus := domain.OrderStatusPartial
		for _, m := range matches {
			total.Add(total, m.TokenAmount)
			if m.TakerExhausted {
				takerStatus = domain.OrderStatusFilled
			}
		}

		const updateTaker = `
			UPDATE orders
			SET filled_amount = filled_amount + $1,
			    status = $2,
			    updated_at = NOW()
			WHERE id = $3
			RETURNING filled_amount::text, updated_at`

		var filled string
		if err := tx.QueryRow(ctx, updateTaker, total.String(), string(takerStatus), order.ID).
			Scan(&filled, &order.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: fill taker order %d: %w", order.ID, err)
		}
		if order.FilledAmount, err = parseBigInt(filled); err != nil {
			return nil, err
		}
		order.Status = takerStatus
	}

	const insertFill = `
		INSERT INTO fills (
			maker_order_id, taker_order_id, maker, taker,
			token_amount, collateral_amount, fee, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	batch := &pgx.Batch{}
	for _, m := range matches {
		batch.Queue(insertFill,
			m.MakerOrderID, order.ID, m.Maker, m.Taker,
			m.TokenAmount.String(), m.CollateralAmount.String(), m.Fee.String(),
			string(domain.FillStatusPending),
		)
	}

	fills := make([]domain.Fill, 0, len(matches))
	if len(matches) > 0 {
		br := tx.SendBatch(ctx, batch)
		for _, m := range matches {
			f := domain.Fill{
				MakerOrderID:     m.MakerOrderID,
				TakerOrderID:     order.ID,
				Maker:            m.Maker,
				Taker:            m.Taker,
				TokenAmount:      m.TokenAmount,
				CollateralAmount: m.CollateralAmount,
				Fee:              m.Fee,
				Status:           domain.FillStatusPending,
			}
			if err := br.QueryRow().Scan(&f.ID, &f.CreatedAt); err != nil {
				_ = br.Close()
				return nil, fmt.Errorf("postgres: insert fill for maker order %d: %w", m.MakerOrderID, err)
			}
			fills = append(fills, f)
		}
		if err := br.Close(); err != nil {
			return nil, fmt.Errorf("postgres: close fill batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit submit order: %w", err)
	}
	return fills, nil
}

// GetByID retrieves an order by its primary key.
func (s *OrderStore) GetByID(ctx context.Context, id int64) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)
	o, err := scanOrderFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %d: %w", id, err)
	}
	return o, nil
}

// GetByHash retrieves an order by its EIP-712 hash.
func (s *OrderStore) GetByHash(ctx context.Context, orderHash string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE order_hash = $1`, orderHash)
	o, err := scanOrderFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order by hash %s: %w", orderHash, err)
	}
	return o, nil
}

// ListResting returns open and partially filled orders for one token and
// side, in ascending id order. Price priority is applied by the matching
// engine, not here.
func (s *OrderStore) ListResting(ctx context.Context, tokenID string, side domain.OrderSide) ([]domain.Order, error) {
	const query = `SELECT ` + orderSelectCols + ` FROM orders
		WHERE token_id = $1 AND side = $2 AND status IN ('open', 'partial')
		ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query, tokenID, string(side))
	if err != nil {
		return nil, fmt.Errorf("postgres: list resting orders: %w", err)
	}
	defer rows.Close()
	return scanOrderRows(rows)
}

// List returns orders matching the query, newest first.
func (s *OrderStore) List(ctx context.Context, q domain.OrderQuery) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE 1=1`
	args := []any{}
	argIdx := 1

	if q.Maker != "" {
		query += fmt.Sprintf(" AND maker = $%d", argIdx)
		args = append(args, q.Maker)
		argIdx++
	}
	if q.ConditionID != "" {
		query += fmt.Sprintf(" AND condition_id = $%d", argIdx)
		args = append(args, q.ConditionID)
		argIdx++
	}
	if q.TokenID != "" {
		query += fmt.Sprintf(" AND token_id = $%d", argIdx)
		args = append(args, q.TokenID)
		argIdx++
	}
	if q.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(q.Status))
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, q.Limit)
		argIdx++
	}
	if q.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, q.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()
	return scanOrderRows(rows)
}

// Cancel marks the order cancelled iff it is still resting. It returns
// ErrNotFound for unknown ids and ErrOrderTerminal when the order already
// reached a final status.
func (s *OrderStore) Cancel(ctx context.Context, id int64) (domain.Order, error) {
	const query = `
		UPDATE orders
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN ('open', 'partial')
		RETURNING ` + orderSelectCols

	row := s.pool.QueryRow(ctx, query, id)
	o, err := scanOrderFromRow(row)
	if err == nil {
		return o, nil
	}
	if err != pgx.ErrNoRows {
		return domain.Order{}, fmt.Errorf("postgres: cancel order %d: %w", id, err)
	}

	// Nothing updated: either the order is unknown or it is past resting.
	if _, getErr := s.GetByID(ctx, id); getErr != nil {
		return domain.Order{}, getErr
	}
	return domain.Order{}, fmt.Errorf("postgres: cancel order %d: %w", id, domain.ErrOrderTerminal)
}

// ExpireDue marks every resting order whose expiration has passed as expired
// and returns the affected orders. Orders with expiration 0 never expire.
func (s *OrderStore) ExpireDue(ctx context.Context, now time.Time) ([]domain.Order, error) {
	const query = `
		UPDATE orders
		SET status = 'expired', updated_at = NOW()
		WHERE status IN ('open', 'partial')
		  AND expiration > 0
		  AND expiration <= $1
		RETURNING ` + orderSelectCols

	rows, err := s.pool.Query(ctx, query, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("postgres: expire due orders: %w", err)
	}
	defer rows.Close()
	return scanOrderRows(rows)
}

// ListTerminalBefore returns terminal orders created before the cutoff, in
// ascending creation order, for archiving.
func (s *OrderStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	const query = `SELECT ` + orderSelectCols + ` FROM orders
		WHERE status IN ('filled', 'cancelled', 'expired') AND created_at < $1
		ORDER BY created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal orders: %w", err)
	}
	defer rows.Close()
	return scanOrderRows(rows)
}
