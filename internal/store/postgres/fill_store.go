package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

const fillSelectCols = `id, maker_order_id, taker_order_id, maker, taker,
	token_amount::text, collateral_amount::text, fee::text,
	status, tx_hash, settled_at, created_at`

func scanFillFromRow(row interface{ Scan(dest ...any) error }) (domain.Fill, error) {
	var (
		f                domain.Fill
		status           string
		tokenAmount      string
		collateralAmount string
		fee              string
	)
	if err := row.Scan(
		&f.ID, &f.MakerOrderID, &f.TakerOrderID, &f.Maker, &f.Taker,
		&tokenAmount, &collateralAmount, &fee,
		&status, &f.TxHash, &f.SettledAt, &f.CreatedAt,
	); err != nil {
		return domain.Fill{}, err
	}

	var err error
	if f.TokenAmount, err = parseBigInt(tokenAmount); err != nil {
		return domain.Fill{}, err
	}
	if f.CollateralAmount, err = parseBigInt(collateralAmount); err != nil {
		return domain.Fill{}, err
	}
	if f.Fee, err = parseBigInt(fee); err != nil {
		return domain.Fill{}, err
	}
	f.Status = domain.FillStatus(status)
	return f, nil
}

func scanFillRows(rows pgx.Rows) ([]domain.Fill, error) {
	var fills []domain.Fill
	for rows.Next() {
		f, err := scanFillFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan fill row: %w", err)
		}
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: fill rows: %w", err)
	}
	return fills, nil
}

// GetByID retrieves a fill by its primary key.
func (s *FillStore) GetByID(ctx context.Context, id int64) (domain.Fill, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+fillSelectCols+` FROM fills WHERE id = $1`, id)
	f, err := scanFillFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Fill{}, domain.ErrNotFound
		}
		return domain.Fill{}, fmt.Errorf("postgres: get fill %d: %w", id, err)
	}
	return f, nil
}

// ListPending returns up to limit pending fills, oldest first. The settler
// consumes these in batches.
func (s *FillStore) ListPending(ctx context.Context, limit int) ([]domain.Fill, error) {
	const query = `SELECT ` + fillSelectCols + ` FROM fills
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending fills: %w", err)
	}
	defer rows.Close()
	return scanFillRows(rows)
}

// List returns fills matching the query, newest first. Wallet matches either
// side of the fill; OrderID matches either order.
func (s *FillStore) List(ctx context.Context, q domain.FillQuery) ([]domain.Fill, error) {
	query := `SELECT ` + fillSelectCols + ` FROM fills WHERE 1=1`
	args := []any{}
	argIdx := 1

	if q.Wallet != "" {
		query += fmt.Sprintf(" AND (maker = $%d OR taker = $%d)", argIdx, argIdx)
		args = append(args, q.Wallet)
		argIdx++
	}
	if q.OrderID != 0 {
		query += fmt.Sprintf(" AND (maker_order_id = $%d OR taker_order_id = $%d)", argIdx, argIdx)
		args = append(args, q.OrderID)
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
		return nil, fmt.Errorf("postgres: list fills: %w", err)
	}
	defer rows.Close()
	return scanFillRows(rows)
}

// MarkSettled moves the given fills from pending to settled with the
// transaction hash and settlement time, in one statement. A count mismatch
// means some fill was not pending anymore and is reported as an error.
func (s *FillStore) MarkSettled(ctx context.Context, ids []int64, txHash string, settledAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `
		UPDATE fills
		SET status = 'settled', tx_hash = $2, settled_at = $3
		WHERE id = ANY($1) AND status = 'pending'`

	tag, err := s.pool.Exec(ctx, query, ids, txHash, settledAt)
	if err != nil {
		return fmt.Errorf("postgres: mark fills settled: %w", err)
	}
	if n := tag.RowsAffected(); n != int64(len(ids)) {
		return fmt.Errorf("postgres: mark fills settled: %d of %d rows updated", n, len(ids))
	}
	return nil
}

// MarkFailed moves the given fills from pending to failed in one statement.
func (s *FillStore) MarkFailed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `
		UPDATE fills
		SET status = 'failed'
		WHERE id = ANY($1) AND status = 'pending'`

	tag, err := s.pool.Exec(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("postgres: mark fills failed: %w", err)
	}
	if n := tag.RowsAffected(); n != int64(len(ids)) {
		return fmt.Errorf("postgres: mark fills failed: %d of %d rows updated", n, len(ids))
	}
	return nil
}

// SumSettledCollateral totals settled collateral for one market, joining
// through the maker order. A non-nil since restricts the sum to fills
// settled at or after it.
func (s *FillStore) SumSettledCollateral(ctx context.Context, conditionID string, since *time.Time) (*big.Int, error) {
	query := `
		SELECT COALESCE(SUM(f.collateral_amount), 0)::text
		FROM fills f
		JOIN orders o ON o.id = f.maker_order_id
		WHERE f.status = 'settled' AND o.condition_id = $1`
	args := []any{conditionID}

	if since != nil {
		query += " AND f.settled_at >= $2"
		args = append(args, *since)
	}

	var sum string
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&sum); err != nil {
		return nil, fmt.Errorf("postgres: sum settled collateral for %s: %w", conditionID, err)
	}
	return parseBigInt(sum)
}

// ListTerminalBefore returns settled and failed fills created before the
// cutoff, in ascending creation order, for archiving.
func (s *FillStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Fill, error) {
	const query = `SELECT ` + fillSelectCols + ` FROM fills
		WHERE status IN ('settled', 'failed') AND created_at < $1
		ORDER BY created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal fills: %w", err)
	}
	defer rows.Close()
	return scanFillRows(rows)
}
