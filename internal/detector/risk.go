package detector

import (
	"fmt"

	"github.com/crossarb/crossarb/internal/domain"
)

// minConfidenceFloor rejects opportunities the engine should not act on
// unattended regardless of profitability.
const minConfidenceFloor = 60

// ExecutionView is the read-only window into the executor's state used by
// the risk gate. The executor owns this state; the detector only reads it.
type ExecutionView interface {
	ActiveCount() int
	RouteActive(route string) bool
	DailyPnL() float64
}

// RiskConfig holds the tunable limits applied before an opportunity is
// emitted.
type RiskConfig struct {
	MaxConcurrentTrades int
	MaxDailyLoss        float64 // negative; gate trips when PnL <= this
}

// riskGate rejects an opportunity that would breach the configured limits.
// It returns a non-nil error describing the first failed check.
func riskGate(opp domain.Opportunity, view ExecutionView, cfg RiskConfig) error {
	if view.ActiveCount() >= cfg.MaxConcurrentTrades {
		return fmt.Errorf("max concurrent trades reached (%d)", cfg.MaxConcurrentTrades)
	}
	if pnl := view.DailyPnL(); pnl <= cfg.MaxDailyLoss {
		return fmt.Errorf("daily loss limit hit (pnl %.2f <= %.2f)", pnl, cfg.MaxDailyLoss)
	}
	if view.RouteActive(opp.Route()) {
		return fmt.Errorf("route %s already executing", opp.Route())
	}
	if opp.Confidence < minConfidenceFloor {
		return fmt.Errorf("confidence %d below floor %d", opp.Confidence, minConfidenceFloor)
	}
	return nil
}
