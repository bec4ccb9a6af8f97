// Package executor executes both legs of detected opportunities with
// minimal latency and reports reconciled results. It owns the active-order
// set and the realized P&L; the detector only reads them through the
// ExecutionView interface.
package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crossarb/crossarb/internal/domain"
	"github.com/crossarb/crossarb/internal/exchange"
)

const (
	// defaultSchedulerTick promotes queued opportunities into the active
	// set as capacity frees up.
	defaultSchedulerTick = 10 * time.Millisecond

	// defaultMaxActiveOrders bounds in-flight orders across all routes.
	defaultMaxActiveOrders = 10

	// defaultOrderTimeout applies when a request carries no TimeoutMs.
	defaultOrderTimeout = 5 * time.Second

	// criticalErrorCascade stops the whole engine after this many
	// consecutive transport-level failures.
	criticalErrorCascade = 5

	// pendingQueueLimit bounds ready-but-waiting opportunities; overflow
	// is dropped with a warning, never blocking the detector.
	pendingQueueLimit = 32
)

// Config holds the engine's tunable parameters.
type Config struct {
	MaxConcurrentTrades int
	MaxActiveOrders     int
	SchedulerTick       time.Duration
	OrderTimeout        time.Duration
	MaxOpportunityAge   time.Duration
}

// Engine consumes opportunities, dispatches paired orders concurrently, and
// emits reconciled ExecutionResults.
type Engine struct {
	cfg      Config
	registry *exchange.Registry
	limiter  domain.RateLimiter
	in       <-chan domain.Opportunity
	results  chan domain.ExecutionResult
	metrics  *Metrics
	logger   *slog.Logger

	mu           sync.Mutex
	pending      []domain.Opportunity
	activeRoutes map[string]struct{}
	activeOrders int
	dailyPnL     float64
	pnlDay       time.Time
	criticalErrs int
	stopped      bool
}

// New creates an Engine reading opportunities from in. limiter may be nil
// (rate-limit pre-flight is then skipped).
func New(cfg Config, registry *exchange.Registry, limiter domain.RateLimiter, in <-chan domain.Opportunity, logger *slog.Logger) *Engine {
	if cfg.MaxConcurrentTrades <= 0 {
		cfg.MaxConcurrentTrades = 3
	}
	if cfg.MaxActiveOrders <= 0 {
		cfg.MaxActiveOrders = defaultMaxActiveOrders
	}
	if cfg.SchedulerTick <= 0 {
		cfg.SchedulerTick = defaultSchedulerTick
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = defaultOrderTimeout
	}
	if cfg.MaxOpportunityAge <= 0 {
		cfg.MaxOpportunityAge = 5 * time.Second
	}
	return &Engine{
		cfg:          cfg,
		registry:     registry,
		limiter:      limiter,
		in:           in,
		results:      make(chan domain.ExecutionResult, 64),
		metrics:      NewMetrics(),
		logger:       logger.With(slog.String("component", "executor")),
		activeRoutes: make(map[string]struct{}),
		pnlDay:       time.Now().UTC().Truncate(24 * time.Hour),
	}
}

// Results returns the channel of reconciled execution results.
func (e *Engine) Results() <-chan domain.ExecutionResult {
	return e.results
}

// Metrics returns the engine's metrics aggregate.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// ---------------------------------------------------------------------------
// ExecutionView (read by the detector's risk gate)
// ---------------------------------------------------------------------------

// ActiveCount returns the number of opportunities currently executing.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.activeRoutes)
}

// RouteActive reports whether an opportunity on the given route is already
// executing.
func (e *Engine) RouteActive(route string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.activeRoutes[route]
	return ok
}

// DailyPnL returns today's cumulative realized P&L.
func (e *Engine) DailyPnL() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollPnLDayLocked(time.Now().UTC())
	return e.dailyPnL
}

// SeedDailyPnL primes today's realized P&L counter from persisted trades so
// the daily-loss gate survives a process restart. Call before Run.
func (e *Engine) SeedDailyPnL(pnl float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollPnLDayLocked(time.Now().UTC())
	e.dailyPnL = pnl
}

func (e *Engine) rollPnLDayLocked(now time.Time) {
	day := now.Truncate(24 * time.Hour)
	if day.After(e.pnlDay) {
		e.pnlDay = day
		e.dailyPnL = 0
	}
}

// ---------------------------------------------------------------------------
// Main loop
// ---------------------------------------------------------------------------

// Run consumes opportunities and drives the promotion scheduler until ctx
// is cancelled or the critical-error cascade trips the kill switch.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("execution engine started",
		slog.Int("max_concurrent_trades", e.cfg.MaxConcurrentTrades),
		slog.Int("max_active_orders", e.cfg.MaxActiveOrders),
	)
	defer e.logger.Info("execution engine stopped")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.intake(gctx) })
	g.Go(func() error { return e.schedule(gctx) })
	return g.Wait()
}

// intake moves opportunities from the detector channel into the bounded
// pending queue. Overflow is dropped with a warning.
func (e *Engine) intake(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case opp, ok := <-e.in:
			if !ok {
				return nil
			}
			e.mu.Lock()
			if e.stopped {
				e.mu.Unlock()
				continue
			}
			if len(e.pending) >= pendingQueueLimit {
				e.mu.Unlock()
				e.logger.Warn("pending queue full, dropping opportunity",
					slog.String("route", opp.Route()),
				)
				continue
			}
			e.pending = append(e.pending, opp)
			e.mu.Unlock()
		}
	}
}

// schedule promotes queued opportunities on a fixed tick whenever trade and
// order capacity allow.
func (e *Engine) schedule(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.SchedulerTick)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if e.killed() {
				return domain.ErrEngineStopped
			}
			batch := e.promote()
			if len(batch) == 0 {
				continue
			}
			wg.Add(1)
			go func(opps []domain.Opportunity) {
				defer wg.Done()
				e.executeGroup(ctx, opps)
			}(batch)
		}
	}
}

func (e *Engine) killed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// promote pops as many pending opportunities as current capacity allows,
// claiming their routes and order slots. Expired or duplicate-route entries
// are discarded here.
func (e *Engine) promote() []domain.Opportunity {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	var batch []domain.Opportunity
	remaining := e.pending[:0]

	for _, opp := range e.pending {
		if opp.Expired(now, e.cfg.MaxOpportunityAge) {
			e.logger.Warn("opportunity expired before dispatch",
				slog.String("route", opp.Route()),
				slog.Time("detected_at", opp.Timestamp),
			)
			continue
		}
		if _, active := e.activeRoutes[opp.Route()]; active {
			continue
		}
		if len(e.activeRoutes) >= e.cfg.MaxConcurrentTrades ||
			e.activeOrders+2 > e.cfg.MaxActiveOrders {
			remaining = append(remaining, opp)
			continue
		}
		e.activeRoutes[opp.Route()] = struct{}{}
		e.activeOrders += 2
		batch = append(batch, opp)
	}
	e.pending = remaining
	return batch
}

func (e *Engine) release(opp domain.Opportunity) {
	e.mu.Lock()
	delete(e.activeRoutes, opp.Route())
	e.activeOrders -= 2
	e.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// legRef ties a dispatched request back to its opportunity and side.
type legRef struct {
	opp  *domain.Opportunity
	req  domain.OrderRequest
	side domain.OrderSide
}

// executeGroup runs a batch of promoted opportunities. Leg orders targeting
// the same bulk-capable exchange are combined into one batched call; all
// other orders dispatch individually but concurrently. Every opportunity's
// two legs are awaited together.
func (e *Engine) executeGroup(ctx context.Context, opps []domain.Opportunity) {
	start := time.Now()

	var legs []legRef
	responses := make(map[string]domain.OrderResponse, len(opps)*2)
	var respMu sync.Mutex

	for i := range opps {
		opp := &opps[i]
		buy, sell := e.buildLegs(*opp)

		buyAdapter, errB := e.registry.Get(opp.BuyExchange)
		sellAdapter, errS := e.registry.Get(opp.SellExchange)
		if errB != nil || errS != nil {
			e.finish(*opp, failedResponse(buy, "unknown exchange"), failedResponse(sell, "unknown exchange"), start)
			continue
		}
		if err := e.preflight(ctx, buyAdapter, buy); err != nil {
			e.logger.Warn("buy pre-flight failed", slog.String("route", opp.Route()), slog.String("error", err.Error()))
			e.finish(*opp, failedResponse(buy, err.Error()), failedResponse(sell, "aborted: buy leg failed pre-flight"), start)
			continue
		}
		if err := e.preflight(ctx, sellAdapter, sell); err != nil {
			e.logger.Warn("sell pre-flight failed", slog.String("route", opp.Route()), slog.String("error", err.Error()))
			e.finish(*opp, failedResponse(buy, "aborted: sell leg failed pre-flight"), failedResponse(sell, err.Error()), start)
			continue
		}

		legs = append(legs,
			legRef{opp: opp, req: buy, side: domain.OrderSideBuy},
			legRef{opp: opp, req: sell, side: domain.OrderSideSell},
		)
	}
	if len(legs) == 0 {
		return
	}

	// Group by exchange so bulk-capable venues get one batched call.
	byExchange := make(map[string][]legRef)
	for _, l := range legs {
		byExchange[l.req.Exchange] = append(byExchange[l.req.Exchange], l)
	}

	var wg sync.WaitGroup
	for ex, group := range byExchange {
		adapter, err := e.registry.Get(ex)
		if err != nil {
			continue
		}
		wg.Add(1)
		go func(adapter exchange.Adapter, group []legRef) {
			defer wg.Done()
			resps := e.dispatch(ctx, adapter, group)
			respMu.Lock()
			for id, r := range resps {
				responses[id] = r
			}
			respMu.Unlock()
		}(adapter, group)
	}
	wg.Wait()

	for i := range opps {
		opp := opps[i]
		respMu.Lock()
		buyResp, haveBuy := responses[opp.ID+":buy"]
		sellResp, haveSell := responses[opp.ID+":sell"]
		respMu.Unlock()
		if !haveBuy && !haveSell {
			// Pre-flight already reported this opportunity.
			continue
		}
		e.finish(opp, buyResp, sellResp, start)
	}
}

// buildLegs constructs the paired critical-priority OrderRequests.
func (e *Engine) buildLegs(opp domain.Opportunity) (buy, sell domain.OrderRequest) {
	timeoutMs := e.cfg.OrderTimeout.Milliseconds()
	meta := map[string]string{"opportunity_id": opp.ID}
	buy = domain.OrderRequest{
		ID:        opp.ID + ":buy",
		Exchange:  opp.BuyExchange,
		Symbol:    opp.Symbol,
		Side:      domain.OrderSideBuy,
		Type:      domain.OrderTypeLimit,
		Amount:    opp.Amount,
		Price:     opp.BuyPrice,
		Priority:  domain.PriorityCritical,
		TimeoutMs: timeoutMs,
		Metadata:  meta,
	}
	sell = domain.OrderRequest{
		ID:        opp.ID + ":sell",
		Exchange:  opp.SellExchange,
		Symbol:    opp.Symbol,
		Side:      domain.OrderSideSell,
		Type:      domain.OrderTypeLimit,
		Amount:    opp.Amount,
		Price:     opp.SellPrice,
		Priority:  domain.PriorityCritical,
		TimeoutMs: timeoutMs,
		Metadata:  meta,
	}
	return buy, sell
}

// dispatch submits one exchange's orders: a single batched call when the
// venue supports it and more than one order is waiting, otherwise
// individual concurrent calls. Critical-priority orders always take the
// direct synchronous API path.
func (e *Engine) dispatch(ctx context.Context, adapter exchange.Adapter, group []legRef) map[string]domain.OrderResponse {
	out := make(map[string]domain.OrderResponse, len(group))

	if adapter.SupportsBulk() && len(group) > 1 {
		reqs := make([]domain.OrderRequest, 0, len(group))
		maxTimeout := time.Duration(0)
		for _, l := range group {
			reqs = append(reqs, l.req)
			if t := l.req.Timeout(e.cfg.OrderTimeout); t > maxTimeout {
				maxTimeout = t
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, maxTimeout)
		start := time.Now()
		resps, err := adapter.PlaceOrders(callCtx, reqs)
		cancel()
		if err != nil {
			e.recordCritical(adapter.Name(), err)
			latency := time.Since(start).Milliseconds()
			for _, l := range group {
				r := failedResponse(l.req, err.Error())
				r.LatencyMs = latency
				out[l.req.ID] = r
				e.metrics.RecordOrder(adapter.Name(), latency, false)
			}
			return out
		}
		e.resetCritical()
		for i, r := range resps {
			if i < len(group) {
				out[group[i].req.ID] = r
				e.metrics.RecordOrder(adapter.Name(), r.LatencyMs, r.Success)
			}
		}
		return out
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, l := range group {
		wg.Add(1)
		go func(l legRef) {
			defer wg.Done()
			resp := e.placeOne(ctx, adapter, l.req)
			mu.Lock()
			out[l.req.ID] = resp
			mu.Unlock()
		}(l)
	}
	wg.Wait()
	return out
}

// placeOne submits a single order under its own timeout. A timeout reports
// failure with latency at least the timeout, and the order slot is freed;
// the venue may still have filled it, which is reconciled out of band.
func (e *Engine) placeOne(ctx context.Context, adapter exchange.Adapter, req domain.OrderRequest) domain.OrderResponse {
	timeout := req.Timeout(e.cfg.OrderTimeout)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := adapter.PlaceOrder(callCtx, req)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			if latency < timeout.Milliseconds() {
				latency = timeout.Milliseconds()
			}
			resp = failedResponse(req, domain.ErrOrderTimeout.Error())
		} else {
			e.recordCritical(req.Exchange, err)
			resp = failedResponse(req, err.Error())
		}
		resp.LatencyMs = latency
		e.metrics.RecordOrder(req.Exchange, latency, false)
		return resp
	}

	e.resetCritical()
	if resp.LatencyMs == 0 {
		resp.LatencyMs = latency
	}
	e.metrics.RecordOrder(req.Exchange, resp.LatencyMs, resp.Success)
	return resp
}

// ---------------------------------------------------------------------------
// Reconciliation
// ---------------------------------------------------------------------------

// finish reconciles both legs, updates P&L, releases the route, and emits
// the result. Partial outcomes are a distinct state: the engine holds the
// position and surfaces the result for an operator decision; it never
// reverses the successful leg and never retries the failed one.
func (e *Engine) finish(opp domain.Opportunity, buy, sell domain.OrderResponse, start time.Time) {
	defer e.release(opp)

	status := domain.OppStatusFailed
	var realized float64
	switch {
	case buy.Success && sell.Success:
		status = domain.OppStatusCompleted
		realized = sell.ExecutedPrice*sell.ExecutedAmount -
			buy.ExecutedPrice*buy.ExecutedAmount -
			buy.Fees - sell.Fees
	case buy.Success != sell.Success:
		status = domain.OppStatusPartial
	}

	if status == domain.OppStatusCompleted {
		e.metrics.RecordPnL(realized)
		e.mu.Lock()
		e.rollPnLDayLocked(time.Now().UTC())
		e.dailyPnL += realized
		e.mu.Unlock()
	}

	result := domain.ExecutionResult{
		OpportunityID: opp.ID,
		Route:         opp.Route(),
		Symbol:        opp.Symbol,
		Status:        status,
		Buy:           buy,
		Sell:          sell,
		RealizedPnL:   realized,
		LatencyMs:     time.Since(start).Milliseconds(),
		Timestamp:     time.Now().UTC(),
	}

	switch status {
	case domain.OppStatusCompleted:
		e.logger.Info("opportunity executed",
			slog.String("route", opp.Route()),
			slog.Float64("realized_pnl", realized),
			slog.Int64("latency_ms", result.LatencyMs),
		)
	case domain.OppStatusPartial:
		e.logger.Error("partial fill: one leg succeeded, holding position",
			slog.String("route", opp.Route()),
			slog.Bool("buy_success", buy.Success),
			slog.Bool("sell_success", sell.Success),
			slog.String("buy_error", buy.Error),
			slog.String("sell_error", sell.Error),
		)
	default:
		e.logger.Warn("opportunity execution failed",
			slog.String("route", opp.Route()),
			slog.String("buy_error", buy.Error),
			slog.String("sell_error", sell.Error),
		)
	}

	select {
	case e.results <- result:
	default:
		e.logger.Warn("results channel full, dropping result",
			slog.String("opportunity_id", opp.ID),
		)
	}
}

// recordCritical counts a transport-level failure; a cascade stops the
// engine as a safety valve. Manual restart is required.
func (e *Engine) recordCritical(exchange string, err error) {
	e.mu.Lock()
	e.criticalErrs++
	count := e.criticalErrs
	if count >= criticalErrorCascade {
		e.stopped = true
	}
	stopped := e.stopped
	e.mu.Unlock()

	e.logger.Error("critical execution error",
		slog.String("exchange", exchange),
		slog.String("error", err.Error()),
		slog.Int("consecutive", count),
	)
	if stopped {
		e.logger.Error("critical error cascade, stopping engine")
	}
}

func (e *Engine) resetCritical() {
	e.mu.Lock()
	e.criticalErrs = 0
	e.mu.Unlock()
}

func failedResponse(req domain.OrderRequest, reason string) domain.OrderResponse {
	return domain.OrderResponse{
		ID:        req.ID,
		Success:   false,
		Error:     reason,
		Timestamp: time.Now().UTC(),
	}
}
