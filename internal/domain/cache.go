package domain

import (
	"context"
	"time"
)

// QuoteCache mirrors the latest quotes for read-through access by external
// dashboards and collaborators.
type QuoteCache interface {
	SetQuote(ctx context.Context, q Quote, ttl time.Duration) error
	GetQuote(ctx context.Context, exchange, symbol string) (Quote, error)
	GetLatestQuotes(ctx context.Context, exchanges []string, symbol string) (QuoteSet, error)
}

// RateLimiter provides per-exchange request rate limiting. The executor
// checks headroom before every order dispatch.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter uploads serialized records to object storage. Used by the
// archiver to move aged rows out of the database.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}

// LockManager provides distributed locks. Live mode takes a leader lock so
// two engine instances never trade against the same accounts.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
