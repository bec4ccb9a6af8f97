package domain

import (
	"context"
	"time"
)

// ExecutedTrade is the persisted record of one completed (or partially
// completed) arbitrage execution.
type ExecutedTrade struct {
	ID            string
	OpportunityID string
	Symbol        string
	BuyExchange   string
	SellExchange  string
	BuyPrice      float64
	SellPrice     float64
	Amount        float64
	Fees          float64
	RealizedPnL   float64
	Status        OpportunityStatus
	LatencyMs     int64
	ExecutedAt    time.Time
}

// OpportunityStore persists detected opportunities for analysis. The engine
// only calls InsertBatch and the archiver's ListBefore/DeleteBefore; the
// store internals are a collaborator concern.
type OpportunityStore interface {
	InsertBatch(ctx context.Context, opps []Opportunity) error
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Opportunity, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TradeStore persists executed trades.
type TradeStore interface {
	InsertBatch(ctx context.Context, trades []ExecutedTrade) error
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]ExecutedTrade, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DailyPnL(ctx context.Context, day time.Time) (float64, error)
}
