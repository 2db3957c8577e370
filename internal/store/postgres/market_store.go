package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `id, condition_id, question_id, oracle_address, collateral_token,
	yes_token_id, no_token_id, title, description, category,
	resolution_time, status, yes_payout, no_payout,
	yes_price::text, no_price::text, volume_24h::text, total_volume::text,
	created_at, updated_at`

func scanMarketFromRow(row interface{ Scan(dest ...any) error }) (domain.Market, error) {
	var (
		m           domain.Market
		status      string
		yesPrice    *string
		noPrice     *string
		volume24h   *string
		totalVolume *string
	)
	if err := row.Scan(
		&m.ID, &m.ConditionID, &m.QuestionID, &m.OracleAddress, &m.CollateralToken,
		&m.YesTokenID, &m.NoTokenID, &m.Title, &m.Description, &m.Category,
		&m.ResolutionTime, &status, &m.YesPayout, &m.NoPayout,
		&yesPrice, &noPrice, &volume24h, &totalVolume,
		&m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return domain.Market{}, err
	}

	var err error
	if m.YesPrice, err = parseDecimalPtr(yesPrice); err != nil {
		return domain.Market{}, err
	}
	if m.NoPrice, err = parseDecimalPtr(noPrice); err != nil {
		return domain.Market{}, err
	}
	if m.Volume24h, err = parseBigIntPtr(volume24h); err != nil {
		return domain.Market{}, err
	}
	if m.TotalVolume, err = parseBigIntPtr(totalVolume); err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

func scanMarketRows(rows pgx.Rows) ([]domain.Market, error) {
	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarketFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market row: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: market rows: %w", err)
	}
	return markets, nil
}

// Upsert inserts or updates a market keyed by condition id and returns the
// stored row. Only chain-sourced fields are written; the derived stats
// columns belong to UpdateStats, so a re-sync never clobbers them.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) (domain.Market, error) {
	const query = `
		INSERT INTO markets (
			condition_id, question_id, oracle_address, collateral_token,
			yes_token_id, no_token_id, title, description, category,
			resolution_time, status, yes_payout, no_payout
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13
		)
		ON CONFLICT (condition_id) DO UPDATE SET
			question_id      = EXCLUDED.question_id,
			oracle_address   = EXCLUDED.oracle_address,
			collateral_token = EXCLUDED.collateral_token,
			yes_token_id     = EXCLUDED.yes_token_id,
			no_token_id      = EXCLUDED.no_token_id,
			title            = EXCLUDED.title,
			description      = EXCLUDED.description,
			category         = EXCLUDED.category,
			resolution_time  = EXCLUDED.resolution_time,
			status           = EXCLUDED.status,
			yes_payout       = EXCLUDED.yes_payout,
			no_payout        = EXCLUDED.no_payout,
			updated_at       = NOW()
		RETURNING ` + marketSelectCols

	row := s.pool.QueryRow(ctx, query,
		m.ConditionID, m.QuestionID, m.OracleAddress, m.CollateralToken,
		m.YesTokenID, m.NoTokenID, m.Title, m.Description, m.Category,
		m.ResolutionTime, string(m.Status), m.YesPayout, m.NoPayout,
	)
	stored, err := scanMarketFromRow(row)
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: upsert market %s: %w", m.ConditionID, err)
	}
	return stored, nil
}

// GetByConditionID retrieves a market by its on-chain condition id.
func (s *MarketStore) GetByConditionID(ctx context.Context, conditionID string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE condition_id = $1`, conditionID)
	m, err := scanMarketFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", conditionID, err)
	}
	return m, nil
}

// GetByTokenID retrieves a market by either outcome token id.
func (s *MarketStore) GetByTokenID(ctx context.Context, tokenID string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE yes_token_id = $1 OR no_token_id = $1`, tokenID)
	m, err := scanMarketFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by token %s: %w", tokenID, err)
	}
	return m, nil
}

// ListActive returns active markets, newest first, with the total count of
// rows matching the filters for pagination.
func (s *MarketStore) ListActive(ctx context.Context, category string, opts domain.ListOpts) ([]domain.Market, int64, error) {
	where := ` FROM markets WHERE status = 'active'`
	args := []any{}
	argIdx := 1

	if category != "" {
		where += fmt.Sprintf(" AND category = $%d", argIdx)
		args = append(args, category)
		argIdx++
	}
	if opts.Since != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*)`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: count active markets: %w", err)
	}

	query := `SELECT ` + marketSelectCols + where + ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	markets, err := scanMarketRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return markets, total, nil
}

// ListDueForResolution returns active markets whose resolution time has
// passed, soonest first. The sync loop re-checks these against the chain.
func (s *MarketStore) ListDueForResolution(ctx context.Context, now time.Time) ([]domain.Market, error) {
	const query = `SELECT ` + marketSelectCols + ` FROM markets
		WHERE status = 'active' AND resolution_time > 0 AND resolution_time <= $1
		ORDER BY resolution_time ASC`

	rows, err := s.pool.Query(ctx, query, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets due for resolution: %w", err)
	}
	defer rows.Close()
	return scanMarketRows(rows)
}

// UpdateStats writes the derived stats columns for one market.
func (s *MarketStore) UpdateStats(ctx context.Context, conditionID string, stats domain.MarketStats) error {
	const query = `
		UPDATE markets
		SET yes_price = $2, no_price = $3, volume_24h = $4, total_volume = $5, updated_at = NOW()
		WHERE condition_id = $1`

	tag, err := s.pool.Exec(ctx, query,
		conditionID,
		decimalArg(stats.YesPrice), decimalArg(stats.NoPrice),
		numericStrArg(stats.Volume24h), numericStrArg(stats.TotalVolume),
	)
	if err != nil {
		return fmt.Errorf("postgres: update stats for %s: %w", conditionID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}
