package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/crossarb/crossarb/internal/domain"
)

// Event types used to filter operator alerts.
const (
	EventExecutionCompleted = "execution.completed"
	EventExecutionFailed    = "execution.failed"
	EventExecutionPartial   = "execution.partial"
	EventEngineStopped      = "engine.stopped"
	EventFeedDisconnected   = "feed.disconnected"
)

// Alerter formats trading events into operator notifications. Partial fills
// and engine stops always go out regardless of the configured event filter;
// everything else respects it.
type Alerter struct {
	n *Notifier
}

// NewAlerter wraps a Notifier.
func NewAlerter(n *Notifier) *Alerter {
	return &Alerter{n: n}
}

// ExecutionResult reports a reconciled execution. A partial fill is an
// unhedged position and bypasses the event filter.
func (a *Alerter) ExecutionResult(ctx context.Context, r domain.ExecutionResult) error {
	switch err := r.Err(); {
	case errors.Is(err, domain.ErrPartialFill):
		msg := fmt.Sprintf(
			"Route %s on %s: one leg filled, the other failed.\nBuy ok=%v (%s)\nSell ok=%v (%s)\nPosition is unhedged and requires manual resolution.",
			r.Route, r.Symbol, r.Buy.Success, r.Buy.Error, r.Sell.Success, r.Sell.Error,
		)
		return a.n.NotifyAll(ctx, "PARTIAL FILL", msg)
	case err == nil:
		msg := fmt.Sprintf(
			"Route %s on %s completed.\nRealized P&L: %.4f\nLatency: %dms",
			r.Route, r.Symbol, r.RealizedPnL, r.LatencyMs,
		)
		return a.n.Notify(ctx, EventExecutionCompleted, "Trade completed", msg)
	default:
		msg := fmt.Sprintf(
			"Route %s on %s failed.\nBuy: %s\nSell: %s",
			r.Route, r.Symbol, r.Buy.Error, r.Sell.Error,
		)
		return a.n.Notify(ctx, EventExecutionFailed, "Trade failed", msg)
	}
}

// EngineStopped reports that the critical-error cascade tripped the kill
// switch. Always delivered.
func (a *Alerter) EngineStopped(ctx context.Context, reason string) error {
	msg := fmt.Sprintf("Execution engine stopped: %s\nManual restart required.", reason)
	return a.n.NotifyAll(ctx, "ENGINE STOPPED", msg)
}

// FeedDisconnected reports a feed connection loss.
func (a *Alerter) FeedDisconnected(ctx context.Context, exchange string, err error) error {
	msg := fmt.Sprintf("Price feed for %s disconnected: %v", exchange, err)
	return a.n.Notify(ctx, EventFeedDisconnected, "Feed disconnected", msg)
}
