package domain

import "time"

// Urgency indicates how aggressively an opportunity should be executed.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate" // profit > 2%
	UrgencyFast      Urgency = "fast"      // profit > 1%
	UrgencyNormal    Urgency = "normal"
)

// OpportunityStatus tracks the opportunity lifecycle. Terminal states
// (rejected, completed, failed, partial) are never re-entered.
type OpportunityStatus string

const (
	OppStatusDetected  OpportunityStatus = "detected"
	OppStatusEvaluated OpportunityStatus = "evaluated"
	OppStatusRejected  OpportunityStatus = "rejected"
	OppStatusQueued    OpportunityStatus = "queued"
	OppStatusExecuting OpportunityStatus = "executing"
	OppStatusCompleted OpportunityStatus = "completed"
	OppStatusFailed    OpportunityStatus = "failed"
	OppStatusPartial   OpportunityStatus = "partial"
)

// Opportunity is a detected, fee-adjusted price discrepancy between two
// exchanges. It is immutable after creation and discarded once stale or
// after a single execution attempt.
type Opportunity struct {
	ID             string
	BuyExchange    string
	SellExchange   string
	Symbol         string
	BuyPrice       float64 // buy-side ask
	SellPrice      float64 // sell-side bid
	Amount         float64
	Spread         float64
	SpreadPercent  float64
	ExpectedProfit float64
	ProfitPercent  float64 // net of fees and TDS
	Confidence     int     // 0-100
	Urgency        Urgency
	Timestamp      time.Time
	Metadata       map[string]string
}

// Route identifies the directed exchange pair, used for duplicate-route
// suppression: no two opportunities on the same route execute concurrently.
func (o Opportunity) Route() string {
	return o.BuyExchange + ">" + o.SellExchange
}

// Expired reports whether the opportunity is older than maxAge at now.
func (o Opportunity) Expired(now time.Time, maxAge time.Duration) bool {
	return now.Sub(o.Timestamp) > maxAge
}

// ExecutionResult is the reconciled outcome of executing both legs of an
// opportunity. Emitted onward to persistence and notification collaborators.
type ExecutionResult struct {
	OpportunityID string
	Route         string
	Symbol        string
	Status        OpportunityStatus // completed, failed or partial
	Buy           OrderResponse
	Sell          OrderResponse
	RealizedPnL   float64
	LatencyMs     int64 // dispatch until both legs resolved
	Timestamp     time.Time
}

// PartialFill reports whether exactly one leg succeeded. Partial outcomes
// require an explicit operator decision; the engine holds the position and
// alerts rather than reversing the successful leg.
func (r ExecutionResult) PartialFill() bool {
	return r.Buy.Success != r.Sell.Success
}

// Err classifies a reconciled outcome: ErrPartialFill when exactly one leg
// succeeded, ErrExecution when neither did, nil for a completed execution.
func (r ExecutionResult) Err() error {
	switch {
	case r.PartialFill():
		return ErrPartialFill
	case r.Status == OppStatusCompleted:
		return nil
	default:
		return ErrExecution
	}
}
