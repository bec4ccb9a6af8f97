package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/crossarb/crossarb/internal/domain"
	"github.com/redis/go-redis/v9"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each quote is
// stored at key "quote:{exchange}:{symbol}" with fields for both sides of
// the book plus a Unix nanosecond timestamp. Entries carry a TTL so a dead
// feed ages out of the cache instead of serving stale prices forever.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(exchange, symbol string) string {
	return "quote:" + exchange + ":" + symbol
}

// SetQuote stores the latest quote for an exchange/symbol pair with the
// given TTL.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.Quote, ttl time.Duration) error {
	key := quoteKey(q.Exchange, q.Symbol)
	fields := map[string]interface{}{
		"bid":    strconv.FormatFloat(q.BidPrice, 'f', -1, 64),
		"ask":    strconv.FormatFloat(q.AskPrice, 'f', -1, 64),
		"last":   strconv.FormatFloat(q.LastPrice, 'f', -1, 64),
		"volume": strconv.FormatFloat(q.Volume, 'f', -1, 64),
		"ts":     strconv.FormatInt(q.ReceivedAt.UnixNano(), 10),
	}

	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", q.Exchange, q.Symbol, err)
	}
	return nil
}

// GetQuote retrieves the latest quote for an exchange/symbol pair.
// It returns domain.ErrNotFound when the key does not exist.
func (qc *QuoteCache) GetQuote(ctx context.Context, exchange, symbol string) (domain.Quote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(exchange, symbol)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s/%s: %w", exchange, symbol, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}
	q, err := parseQuoteHash(exchange, symbol, vals)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s/%s: %w", exchange, symbol, err)
	}
	return q, nil
}

// GetLatestQuotes retrieves the latest quotes for a symbol across the given
// exchanges using a pipeline. Exchanges with no cached quote are silently
// omitted from the result set.
func (qc *QuoteCache) GetLatestQuotes(ctx context.Context, exchanges []string, symbol string) (domain.QuoteSet, error) {
	if len(exchanges) == 0 {
		return domain.QuoteSet{}, nil
	}

	pipe := qc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(exchanges))
	for _, ex := range exchanges {
		cmds[ex] = pipe.HGetAll(ctx, quoteKey(ex, symbol))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get latest quotes pipeline: %w", err)
	}

	out := make(domain.QuoteSet, len(exchanges))
	for ex, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		q, err := parseQuoteHash(ex, symbol, vals)
		if err != nil {
			continue
		}
		out[ex] = q
	}

	return out, nil
}

func parseQuoteHash(exchange, symbol string, vals map[string]string) (domain.Quote, error) {
	q := domain.Quote{Exchange: exchange, Symbol: symbol}

	var err error
	if q.BidPrice, err = strconv.ParseFloat(vals["bid"], 64); err != nil {
		return domain.Quote{}, fmt.Errorf("parse bid: %w", err)
	}
	if q.AskPrice, err = strconv.ParseFloat(vals["ask"], 64); err != nil {
		return domain.Quote{}, fmt.Errorf("parse ask: %w", err)
	}
	if q.LastPrice, err = strconv.ParseFloat(vals["last"], 64); err != nil {
		return domain.Quote{}, fmt.Errorf("parse last: %w", err)
	}
	if q.Volume, err = strconv.ParseFloat(vals["volume"], 64); err != nil {
		return domain.Quote{}, fmt.Errorf("parse volume: %w", err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parse ts: %w", err)
	}
	q.ReceivedAt = time.Unix(0, tsNano)

	return q, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
