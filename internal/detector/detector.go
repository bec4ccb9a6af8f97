// Package detector converts the current quote snapshot into actionable,
// risk-gated arbitrage opportunities.
package detector

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/crossarb/crossarb/internal/domain"
	"github.com/crossarb/crossarb/internal/exchange"
)

// minViableAmount is the floor below which a sized pair is discarded.
const minViableAmount = 10.0

// Config holds the detector's tunable parameters.
type Config struct {
	Symbol            string
	MinSpreadPercent  float64
	MinProfitPercent  float64
	MaxAmount         float64
	MaxOpportunityAge time.Duration

	// TickInterval is the base detection cadence; the loop adapts between
	// MinTickInterval and MaxTickInterval with recent opportunity volume.
	TickInterval    time.Duration
	MinTickInterval time.Duration
	MaxTickInterval time.Duration

	Risk RiskConfig
}

// SnapshotFunc supplies the current quote set. Provided by the feed manager.
type SnapshotFunc func() domain.QuoteSet

// Detector runs the pairing, profitability, and risk-gate pipeline on a
// fixed, adaptively tuned tick.
type Detector struct {
	cfg      Config
	registry *exchange.Registry
	snapshot SnapshotFunc
	sizing   SizingPolicy
	view     ExecutionView
	out      chan domain.Opportunity
	logger   *slog.Logger

	// lastEmitted suppresses duplicate emissions for a route while the
	// underlying quotes are unchanged.
	lastEmitted map[string]quotePair

	// quietTicks counts consecutive ticks without an emission, driving the
	// adaptive interval.
	quietTicks int
	interval   time.Duration
}

type quotePair struct {
	buyAt  time.Time
	sellAt time.Time
}

// New creates a Detector. The returned opportunity channel is bounded;
// overflow is dropped with a warning so the detector never blocks.
func New(cfg Config, registry *exchange.Registry, snapshot SnapshotFunc, sizing SizingPolicy, view ExecutionView, logger *slog.Logger) *Detector {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 500 * time.Millisecond
	}
	if cfg.MinTickInterval <= 0 {
		cfg.MinTickInterval = 100 * time.Millisecond
	}
	if cfg.MaxTickInterval <= 0 {
		cfg.MaxTickInterval = 5 * time.Second
	}
	if cfg.MaxOpportunityAge <= 0 {
		cfg.MaxOpportunityAge = 5 * time.Second
	}
	if sizing == nil {
		sizing = VolumeFractionSizing(0.01)
	}
	return &Detector{
		cfg:         cfg,
		registry:    registry,
		snapshot:    snapshot,
		sizing:      sizing,
		view:        view,
		out:         make(chan domain.Opportunity, 64),
		logger:      logger.With(slog.String("component", "detector")),
		lastEmitted: make(map[string]quotePair),
		interval:    cfg.TickInterval,
	}
}

// Opportunities returns the channel of emitted opportunities.
func (d *Detector) Opportunities() <-chan domain.Opportunity {
	return d.out
}

// Run drives the detection loop until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Info("detector started",
		slog.String("symbol", d.cfg.Symbol),
		slog.Duration("tick", d.interval),
	)
	defer d.logger.Info("detector stopped")

	timer := time.NewTimer(d.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			close(d.out)
			return ctx.Err()
		case <-timer.C:
			emitted := d.Tick(time.Now().UTC())
			d.retune(emitted)
			timer.Reset(d.interval)
		}
	}
}

// Tick evaluates the current snapshot once and returns how many
// opportunities were emitted. Exposed for tests.
func (d *Detector) Tick(now time.Time) int {
	quotes := d.snapshot()
	emitted := 0
	for buyEx, buyQuote := range quotes {
		for sellEx, sellQuote := range quotes {
			if buyEx == sellEx {
				continue
			}
			opp, ok := d.evaluate(now, buyQuote, sellQuote)
			if !ok {
				continue
			}
			if err := riskGate(opp, d.view, d.cfg.Risk); err != nil {
				d.logger.Debug("opportunity rejected",
					slog.String("route", opp.Route()),
					slog.String("reason", err.Error()),
				)
				continue
			}
			if d.duplicate(opp.Route(), buyQuote, sellQuote) {
				continue
			}
			if opp.Expired(time.Now().UTC(), d.cfg.MaxOpportunityAge) {
				continue
			}
			select {
			case d.out <- opp:
				d.remember(opp.Route(), buyQuote, sellQuote)
				emitted++
				d.logger.Info("opportunity detected",
					slog.String("route", opp.Route()),
					slog.Float64("spread_pct", opp.SpreadPercent),
					slog.Float64("profit_pct", opp.ProfitPercent),
					slog.Int("confidence", opp.Confidence),
					slog.String("urgency", string(opp.Urgency)),
				)
			default:
				d.logger.Warn("opportunity queue full, dropping",
					slog.String("route", opp.Route()),
				)
			}
		}
	}
	return emitted
}

// evaluate computes spread, size, and fee-adjusted profitability for one
// ordered pair. Both quotes must be for the configured symbol.
func (d *Detector) evaluate(now time.Time, buy, sell domain.Quote) (domain.Opportunity, bool) {
	if !buy.Valid() || !sell.Valid() {
		return domain.Opportunity{}, false
	}

	spread := sell.BidPrice - buy.AskPrice
	if spread <= 0 {
		return domain.Opportunity{}, false
	}
	spreadPercent := spread / buy.AskPrice * 100
	if spreadPercent < d.cfg.MinSpreadPercent {
		return domain.Opportunity{}, false
	}

	amount := d.sizing(d.cfg.MaxAmount, buy.Volume, sell.Volume)
	if amount < minViableAmount {
		return domain.Opportunity{}, false
	}

	buyAdapter, err := d.registry.Get(buy.Exchange)
	if err != nil {
		return domain.Opportunity{}, false
	}
	sellAdapter, err := d.registry.Get(sell.Exchange)
	if err != nil {
		return domain.Opportunity{}, false
	}

	cost := amount * buy.AskPrice
	buyFee := buyAdapter.Fees().TakerFee(cost)
	gross := amount * sell.BidPrice
	netRevenue := gross - sellAdapter.Fees().SellDeductions(gross)

	totalCost := cost + buyFee
	profit := netRevenue - totalCost
	profitPercent := profit / totalCost * 100
	if profitPercent < d.cfg.MinProfitPercent {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		ID:             uuid.New().String(),
		BuyExchange:    buy.Exchange,
		SellExchange:   sell.Exchange,
		Symbol:         d.cfg.Symbol,
		BuyPrice:       buy.AskPrice,
		SellPrice:      sell.BidPrice,
		Amount:         amount,
		Spread:         spread,
		SpreadPercent:  spreadPercent,
		ExpectedProfit: profit,
		ProfitPercent:  profitPercent,
		Confidence:     confidence(now, buy, sell, spreadPercent),
		Urgency:        urgency(profitPercent),
		Timestamp:      now,
	}, true
}

// confidence scores an opportunity 0-100: base 50, up to +30 for quote
// freshness using the older of the two quotes, up to +20 for spread size.
func confidence(now time.Time, buy, sell domain.Quote, spreadPercent float64) int {
	score := 50

	older := buy.Age(now)
	if s := sell.Age(now); s > older {
		older = s
	}
	switch {
	case older < time.Second:
		score += 30
	case older < 5*time.Second:
		score += 20
	case older < 10*time.Second:
		score += 10
	}

	switch {
	case spreadPercent >= 3.0:
		score += 20
	case spreadPercent >= 2.0:
		score += 15
	case spreadPercent >= 1.0:
		score += 10
	case spreadPercent >= 0.5:
		score += 5
	}

	if score > 100 {
		score = 100
	}
	return score
}

// urgency classifies how aggressively the opportunity should execute.
func urgency(profitPercent float64) domain.Urgency {
	switch {
	case profitPercent > 2.0:
		return domain.UrgencyImmediate
	case profitPercent > 1.0:
		return domain.UrgencyFast
	default:
		return domain.UrgencyNormal
	}
}

// duplicate reports whether this route was already emitted for the exact
// same pair of quotes.
func (d *Detector) duplicate(route string, buy, sell domain.Quote) bool {
	last, ok := d.lastEmitted[route]
	if !ok {
		return false
	}
	return last.buyAt.Equal(buy.ReceivedAt) && last.sellAt.Equal(sell.ReceivedAt)
}

func (d *Detector) remember(route string, buy, sell domain.Quote) {
	d.lastEmitted[route] = quotePair{buyAt: buy.ReceivedAt, sellAt: sell.ReceivedAt}
}

// retune adapts the tick interval: busy ticks speed the loop up, a quiet
// stretch slows it down, both within the configured bounds.
func (d *Detector) retune(emitted int) {
	if emitted > 0 {
		d.quietTicks = 0
		d.interval = d.interval * 3 / 4
		if d.interval < d.cfg.MinTickInterval {
			d.interval = d.cfg.MinTickInterval
		}
		return
	}
	d.quietTicks++
	if d.quietTicks >= 10 {
		d.quietTicks = 0
		d.interval = d.interval * 5 / 4
		if d.interval > d.cfg.MaxTickInterval {
			d.interval = d.cfg.MaxTickInterval
		}
	}
}

// Interval returns the current adaptive tick interval.
func (d *Detector) Interval() time.Duration {
	return d.interval
}
