package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crossarb/crossarb/internal/detector"
	"github.com/crossarb/crossarb/internal/domain"
	"github.com/crossarb/crossarb/internal/exchange"
	"github.com/crossarb/crossarb/internal/executor"
	"github.com/crossarb/crossarb/internal/feed"
)

// leaderLockTTL bounds how long a crashed live instance blocks its
// replacement.
const leaderLockTTL = 5 * time.Minute

// LiveMode runs the full pipeline with real order placement: price feeds,
// detection, execution, persistence, archival, and alerts. A distributed
// leader lock ensures a single live instance per deployment.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode")

	unlock, err := deps.LockManager.Acquire(ctx, "engine-leader", leaderLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return errors.New("app: another live instance holds the leader lock")
		}
		return err
	}
	defer unlock()

	return a.runPipeline(ctx, deps, deps.Registry)
}

// SimulationMode runs the same pipeline against real market data but routes
// orders through paper adapters that fill at the requested price. No
// credentials or leader lock are required.
func (a *App) SimulationMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting simulation mode",
		slog.Duration("paper_fill_delay", a.cfg.Performance.PaperFillDelay.Duration),
	)

	paperReg := exchange.NewRegistry()
	for _, name := range deps.Enabled {
		adapter, err := deps.Registry.Get(name)
		if err != nil {
			return err
		}
		paperReg.Register(exchange.NewPaper(adapter, a.cfg.Performance.PaperFillDelay.Duration))
	}

	return a.runPipeline(ctx, deps, paperReg)
}

// MonitorMode runs feeds and detection only. Opportunities are recorded for
// analysis but never executed.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	manager, err := a.buildFeedManager(deps)
	if err != nil {
		return err
	}

	det := detector.New(
		a.detectorConfig(),
		deps.Registry,
		manager.Snapshot,
		a.sizingPolicy(),
		nullView{},
		a.logger,
	)

	recorder := NewRecorder(deps.OpportunityStore, deps.TradeStore, deps.Alerter, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gctx) })
	g.Go(func() error { return det.Run(gctx) })
	g.Go(func() error { return recorder.RecordOpportunities(gctx, det.Opportunities(), nil) })
	g.Go(func() error { return a.statusLoop(gctx, manager, nil) })
	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(gctx) })
	}
	return g.Wait()
}

// runPipeline starts feeds, detection, execution against execReg, and the
// recording and archival collaborators, then blocks until shutdown.
func (a *App) runPipeline(ctx context.Context, deps *Dependencies, execReg *exchange.Registry) error {
	manager, err := a.buildFeedManager(deps)
	if err != nil {
		return err
	}

	execIn := make(chan domain.Opportunity, 64)
	engine := executor.New(executor.Config{
		MaxConcurrentTrades: a.cfg.Risk.MaxConcurrentTrades,
		MaxActiveOrders:     a.cfg.Risk.MaxActiveOrders,
		OrderTimeout:        a.cfg.Performance.OrderTimeout.Duration,
		MaxOpportunityAge:   a.cfg.Performance.MaxOpportunityAge.Duration,
	}, execReg, deps.RateLimiter, execIn, a.logger)

	if deps.TradeStore != nil {
		pnl, err := deps.TradeStore.DailyPnL(ctx, time.Now().UTC())
		if err != nil {
			a.logger.Warn("could not restore daily pnl from trade store",
				slog.String("error", err.Error()),
			)
		} else {
			engine.SeedDailyPnL(pnl)
			a.logger.Info("daily pnl restored", slog.Float64("pnl", pnl))
		}
	}

	det := detector.New(
		a.detectorConfig(),
		deps.Registry,
		manager.Snapshot,
		a.sizingPolicy(),
		engine,
		a.logger,
	)

	recorder := NewRecorder(deps.OpportunityStore, deps.TradeStore, deps.Alerter, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gctx) })
	g.Go(func() error { return det.Run(gctx) })
	g.Go(func() error {
		defer close(execIn)
		return recorder.RecordOpportunities(gctx, det.Opportunities(), execIn)
	})
	g.Go(func() error {
		err := engine.Run(gctx)
		if errors.Is(err, domain.ErrEngineStopped) && deps.Alerter != nil {
			alertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = deps.Alerter.EngineStopped(alertCtx, err.Error())
			cancel()
		}
		return err
	})
	g.Go(func() error { return recorder.RecordResults(gctx, engine.Results()) })
	g.Go(func() error { return a.statusLoop(gctx, manager, engine) })
	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(gctx) })
	}
	return g.Wait()
}

// buildFeedManager wires the feed manager with disconnect alerts.
func (a *App) buildFeedManager(deps *Dependencies) (*feed.Manager, error) {
	manager, err := feed.NewManager(
		deps.Registry,
		deps.Enabled,
		a.cfg.Symbol,
		deps.QuoteCache,
		a.cfg.Performance.QuoteCacheTTL.Duration,
		a.logger,
	)
	if err != nil {
		return nil, err
	}

	if deps.Alerter != nil {
		manager.OnDisconnected(func(ex string, err error) {
			alertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = deps.Alerter.FeedDisconnected(alertCtx, ex, err)
		})
	}
	return manager, nil
}

func (a *App) detectorConfig() detector.Config {
	return detector.Config{
		Symbol:            a.cfg.Symbol,
		MinSpreadPercent:  a.cfg.Arbitrage.MinSpreadPercent,
		MinProfitPercent:  a.cfg.Arbitrage.MinProfitPercent,
		MaxAmount:         a.cfg.Arbitrage.MaxTradeAmount,
		MaxOpportunityAge: a.cfg.Performance.MaxOpportunityAge.Duration,
		TickInterval:      a.cfg.Performance.OpportunityCheckInterval.Duration,
		MinTickInterval:   a.cfg.Performance.MinCheckInterval.Duration,
		MaxTickInterval:   a.cfg.Performance.MaxCheckInterval.Duration,
		Risk: detector.RiskConfig{
			MaxConcurrentTrades: a.cfg.Risk.MaxConcurrentTrades,
			MaxDailyLoss:        -a.cfg.Risk.MaxDailyLoss,
		},
	}
}

func (a *App) sizingPolicy() detector.SizingPolicy {
	if a.cfg.Arbitrage.SizingPolicy == "fixed" {
		return detector.FixedSizing()
	}
	return detector.VolumeFractionSizing(a.cfg.Arbitrage.VolumeFraction)
}

// statusLoop periodically logs connection health and, when an engine is
// running, its execution metrics.
func (a *App) statusLoop(ctx context.Context, manager *feed.Manager, engine *executor.Engine) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, st := range manager.ConnectionStates() {
				a.logger.Info("feed status",
					slog.String("exchange", st.Exchange),
					slog.String("status", string(st.Status)),
					slog.Int("reconnects", st.ReconnectCount),
					slog.Time("last_message_at", st.LastMessageAt),
				)
			}
			if engine != nil {
				snap := engine.Metrics().Snapshot()
				a.logger.Info("execution metrics",
					slog.Int64("total_orders", snap.TotalOrders),
					slog.Int64("successful_orders", snap.SuccessfulOrders),
					slog.Float64("cumulative_pnl", snap.CumulativePnL),
					slog.Int64("fastest_ms", snap.FastestMs),
					slog.Int64("slowest_ms", snap.SlowestMs),
				)
			}
		}
	}
}

// nullView satisfies the detector's execution view when nothing executes.
type nullView struct{}

func (nullView) ActiveCount() int        { return 0 }
func (nullView) RouteActive(string) bool { return false }
func (nullView) DailyPnL() float64       { return 0 }
