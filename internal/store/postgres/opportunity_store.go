package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crossarb/crossarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunitySelectCols = `id, buy_exchange, sell_exchange, symbol,
	buy_price, sell_price, amount, spread, spread_percent,
	expected_profit, profit_percent, confidence, urgency, detected_at`

func scanOpportunityRows(rows pgx.Rows) ([]domain.Opportunity, error) {
	var opps []domain.Opportunity
	for rows.Next() {
		var o domain.Opportunity
		var urgency string
		if err := rows.Scan(
			&o.ID, &o.BuyExchange, &o.SellExchange, &o.Symbol,
			&o.BuyPrice, &o.SellPrice, &o.Amount, &o.Spread, &o.SpreadPercent,
			&o.ExpectedProfit, &o.ProfitPercent, &o.Confidence, &urgency,
			&o.Timestamp,
		); err != nil {
			return nil, err
		}
		o.Urgency = domain.Urgency(urgency)
		opps = append(opps, o)
	}
	return opps, rows.Err()
}

// InsertBatch inserts multiple opportunities efficiently using pgx Batch.
// Re-detected opportunities with the same ID are silently skipped via
// ON CONFLICT DO NOTHING.
func (s *OpportunityStore) InsertBatch(ctx context.Context, opps []domain.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO opportunities (
			id, buy_exchange, sell_exchange, symbol,
			buy_price, sell_price, amount, spread, spread_percent,
			expected_profit, profit_percent, confidence, urgency, detected_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14
		) ON CONFLICT (id) DO NOTHING`

	for _, o := range opps {
		batch.Queue(query,
			o.ID, o.BuyExchange, o.SellExchange, o.Symbol,
			o.BuyPrice, o.SellPrice, o.Amount, o.Spread, o.SpreadPercent,
			o.ExpectedProfit, o.ProfitPercent, o.Confidence, string(o.Urgency),
			o.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range opps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert opportunity batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListBefore returns opportunities detected strictly before the cutoff,
// oldest first, for archiving. limit <= 0 means no limit.
func (s *OpportunityStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities WHERE detected_at < $1 ORDER BY detected_at ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before: %w", err)
	}
	defer rows.Close()

	opps, err := scanOpportunityRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan opportunities before: %w", err)
	}
	return opps, nil
}

// DeleteBefore deletes all opportunities detected before the cutoff.
// Returns the number deleted.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunities WHERE detected_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
