package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crossarb/crossarb/internal/domain"
	"github.com/crossarb/crossarb/internal/exchange"
)

const (
	// maxHealthyLatencyMs rejects orders to venues whose rolling average
	// latency exceeds this threshold.
	maxHealthyLatencyMs = 5000.0

	// orderRateLimit / orderRateWindow bound per-exchange order dispatch.
	orderRateLimit  = 10
	orderRateWindow = time.Second
)

// preflight validates an order before dispatch: parameter validation,
// exchange health, rate-limit headroom, and auth freshness. A failure here
// aborts the order without touching the venue.
func (e *Engine) preflight(ctx context.Context, adapter exchange.Adapter, req domain.OrderRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("executor: validate %s order on %s: %w", req.Side, req.Exchange, err)
	}

	if avg := e.metrics.AvgLatency(req.Exchange); avg > maxHealthyLatencyMs {
		return fmt.Errorf("executor: %s avg latency %.0fms: %w", req.Exchange, avg, domain.ErrUnhealthyVenue)
	}

	if e.limiter != nil {
		allowed, err := e.limiter.Allow(ctx, "orders:"+req.Exchange, orderRateLimit, orderRateWindow)
		if err != nil {
			// Limiter backend unavailable: log upstream and proceed rather
			// than blocking all execution on the cache.
			e.logger.Warn("rate limiter unavailable, proceeding",
				slog.String("exchange", req.Exchange),
				slog.String("error", err.Error()),
			)
		} else if !allowed {
			return fmt.Errorf("executor: %s: %w", req.Exchange, domain.ErrRateLimited)
		}
	}

	if err := adapter.EnsureAuth(ctx); err != nil {
		return fmt.Errorf("executor: %s auth refresh: %w: %w", req.Exchange, domain.ErrAuthExpired, err)
	}
	return nil
}
