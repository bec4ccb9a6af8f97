package domain

import "time"

// Quote is the canonical per-exchange market snapshot produced by the feed
// layer. Every exchange adapter normalizes its own wire format into this
// shape. A Quote is immutable once published; the feed manager is the only
// writer for a given exchange key.
type Quote struct {
	Exchange   string
	Symbol     string
	BidPrice   float64
	AskPrice   float64
	LastPrice  float64
	Volume     float64 // 24h base-asset volume as reported by the venue
	ReceivedAt time.Time
}

// Age returns how long ago the quote was received.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.ReceivedAt)
}

// Valid reports whether the quote carries usable two-sided prices.
func (q Quote) Valid() bool {
	return q.BidPrice > 0 && q.AskPrice > 0 && q.AskPrice >= q.BidPrice
}

// QuoteSet is a point-in-time snapshot of the latest quote per exchange.
// Readers receive a copy; there is no cross-key consistency guarantee, only
// the per-quote ReceivedAt staleness bound.
type QuoteSet map[string]Quote
