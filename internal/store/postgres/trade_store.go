package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crossarb/crossarb/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, opportunity_id, symbol, buy_exchange, sell_exchange,
	buy_price, sell_price, amount, fees, realized_pnl, status, latency_ms, executed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.ExecutedTrade, error) {
	var trades []domain.ExecutedTrade
	for rows.Next() {
		var t domain.ExecutedTrade
		var status string
		if err := rows.Scan(
			&t.ID, &t.OpportunityID, &t.Symbol, &t.BuyExchange, &t.SellExchange,
			&t.BuyPrice, &t.SellPrice, &t.Amount, &t.Fees, &t.RealizedPnL,
			&status, &t.LatencyMs, &t.ExecutedAt,
		); err != nil {
			return nil, err
		}
		t.Status = domain.OpportunityStatus(status)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertBatch inserts multiple executed trades efficiently using pgx Batch.
// Duplicate IDs are silently skipped via ON CONFLICT DO NOTHING.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.ExecutedTrade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO executed_trades (
			id, opportunity_id, symbol, buy_exchange, sell_exchange,
			buy_price, sell_price, amount, fees, realized_pnl,
			status, latency_ms, executed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13
		) ON CONFLICT (id) DO NOTHING`

	for _, t := range trades {
		batch.Queue(query,
			t.ID, t.OpportunityID, t.Symbol, t.BuyExchange, t.SellExchange,
			t.BuyPrice, t.SellPrice, t.Amount, t.Fees, t.RealizedPnL,
			string(t.Status), t.LatencyMs, t.ExecutedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListBefore returns executed trades strictly before the cutoff, oldest
// first, for archiving. limit <= 0 means no limit.
func (s *TradeStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ExecutedTrade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM executed_trades WHERE executed_at < $1 ORDER BY executed_at ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades before: %w", err)
	}
	return trades, nil
}

// DeleteBefore deletes all executed trades before the cutoff. Returns the
// number deleted.
func (s *TradeStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM executed_trades WHERE executed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DailyPnL sums realized P&L over the UTC day containing the given time.
// Only completed trades count; partial fills are excluded until resolved.
func (s *TradeStore) DailyPnL(ctx context.Context, day time.Time) (float64, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	var pnl *float64
	err := s.pool.QueryRow(ctx, `
		SELECT SUM(realized_pnl) FROM executed_trades
		WHERE status = $1 AND executed_at >= $2 AND executed_at < $3`,
		string(domain.OppStatusCompleted), start, end,
	).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("postgres: daily pnl: %w", err)
	}
	if pnl == nil {
		return 0, nil
	}
	return *pnl, nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
