package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crossarb/crossarb/internal/domain"
	"github.com/crossarb/crossarb/internal/exchange"
)

// gauge tracks peak concurrency across every adapter sharing it.
type gauge struct {
	cur  atomic.Int64
	peak atomic.Int64
}

func (g *gauge) enter() {
	cur := g.cur.Add(1)
	for {
		p := g.peak.Load()
		if cur <= p || g.peak.CompareAndSwap(p, cur) {
			return
		}
	}
}

func (g *gauge) exit() { g.cur.Add(-1) }

// stubAdapter satisfies exchange.Adapter with scripted order outcomes.
type stubAdapter struct {
	name      string
	delay     time.Duration
	transport error  // returned from PlaceOrder/PlaceOrders as a transport failure
	reject    bool   // venue-level rejection: Success=false, no error
	authErr   error  // returned from EnsureAuth
	bulk      bool
	track     *gauge // optional shared concurrency gauge

	mu        sync.Mutex
	placed    []domain.OrderRequest
	bulkCalls int
}

func (s *stubAdapter) Name() string                               { return s.name }
func (s *stubAdapter) WSURL() string                              { return "wss://example.test" }
func (s *stubAdapter) SubscribePayload(string) ([]byte, error)    { return []byte("{}"), nil }
func (s *stubAdapter) Heartbeat() ([]byte, time.Duration)         { return nil, 0 }
func (s *stubAdapter) ParseMessage([]byte) (*domain.Quote, error) { return nil, nil }
func (s *stubAdapter) Fees() exchange.FeeSchedule                 { return exchange.FeeSchedule{} }
func (s *stubAdapter) EnsureAuth(context.Context) error           { return s.authErr }
func (s *stubAdapter) SupportsBulk() bool                         { return s.bulk }

func (s *stubAdapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResponse, error) {
	if s.track != nil {
		s.track.enter()
		defer s.track.exit()
	}

	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return domain.OrderResponse{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}

	s.mu.Lock()
	s.placed = append(s.placed, req)
	s.mu.Unlock()

	if s.transport != nil {
		return domain.OrderResponse{}, s.transport
	}
	if s.reject {
		return domain.OrderResponse{
			ID: req.ID, Success: false, Error: "insufficient balance",
			Timestamp: time.Now().UTC(),
		}, nil
	}
	return domain.OrderResponse{
		ID:             req.ID,
		Success:        true,
		OrderID:        "stub-" + req.ID,
		ExecutedPrice:  req.Price,
		ExecutedAmount: req.Amount,
		LatencyMs:      s.delay.Milliseconds(),
		Timestamp:      time.Now().UTC(),
	}, nil
}

func (s *stubAdapter) PlaceOrders(ctx context.Context, reqs []domain.OrderRequest) ([]domain.OrderResponse, error) {
	s.mu.Lock()
	s.bulkCalls++
	s.mu.Unlock()
	if s.transport != nil {
		return nil, s.transport
	}
	out := make([]domain.OrderResponse, 0, len(reqs))
	for _, r := range reqs {
		resp, err := s.PlaceOrder(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, nil
}

var _ exchange.Adapter = (*stubAdapter)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		MaxConcurrentTrades: 3,
		MaxActiveOrders:     10,
		SchedulerTick:       time.Millisecond,
		OrderTimeout:        time.Second,
		MaxOpportunityAge:   5 * time.Second,
	}
}

func testOpportunity(id, buyEx, sellEx string) domain.Opportunity {
	return domain.Opportunity{
		ID:           id,
		BuyExchange:  buyEx,
		SellExchange: sellEx,
		Symbol:       "BTCUSDT",
		BuyPrice:     87,
		SellPrice:    89,
		Amount:       1,
		Timestamp:    time.Now().UTC(),
	}
}

func startEngine(t *testing.T, cfg Config, reg *exchange.Registry, in chan domain.Opportunity) (*Engine, func() error) {
	t.Helper()
	e := New(cfg, reg, nil, in, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	return e, func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("engine did not stop")
			return nil
		}
	}
}

func waitIdle(t *testing.T, e *Engine) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if e.ActiveCount() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("active count = %d, want 0", e.ActiveCount())
}

func awaitResult(t *testing.T, e *Engine) domain.ExecutionResult {
	t.Helper()
	select {
	case r := <-e.Results():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no execution result")
		return domain.ExecutionResult{}
	}
}

func TestEngineCompletesBothLegs(t *testing.T) {
	reg := exchange.NewRegistry()
	buyVenue := &stubAdapter{name: "alpha"}
	sellVenue := &stubAdapter{name: "beta"}
	reg.Register(buyVenue)
	reg.Register(sellVenue)

	in := make(chan domain.Opportunity, 1)
	e, stop := startEngine(t, testConfig(), reg, in)
	defer stop()

	in <- testOpportunity("opp-1", "alpha", "beta")
	res := awaitResult(t, e)

	if res.Status != domain.OppStatusCompleted {
		t.Fatalf("status = %q, want completed (buy err %q, sell err %q)",
			res.Status, res.Buy.Error, res.Sell.Error)
	}
	if res.RealizedPnL != 2 {
		t.Errorf("realized pnl = %v, want 2 (89 - 87, fee-free stubs)", res.RealizedPnL)
	}
	if e.DailyPnL() != 2 {
		t.Errorf("daily pnl = %v, want 2", e.DailyPnL())
	}
	if res.PartialFill() {
		t.Error("dual success flagged as partial fill")
	}

	buyVenue.mu.Lock()
	defer buyVenue.mu.Unlock()
	if len(buyVenue.placed) != 1 || buyVenue.placed[0].Side != domain.OrderSideBuy {
		t.Errorf("buy venue saw %+v, want one buy order", buyVenue.placed)
	}

	snap := e.Metrics().Snapshot()
	if snap.TotalOrders != 2 || snap.SuccessfulOrders != 2 {
		t.Errorf("metrics = %+v, want 2/2 orders", snap)
	}
}

func TestEngineTimeoutReportsFailure(t *testing.T) {
	reg := exchange.NewRegistry()
	reg.Register(&stubAdapter{name: "alpha", delay: time.Minute})
	reg.Register(&stubAdapter{name: "beta", delay: time.Minute})

	cfg := testConfig()
	cfg.OrderTimeout = 50 * time.Millisecond

	in := make(chan domain.Opportunity, 1)
	e, stop := startEngine(t, cfg, reg, in)
	defer stop()

	in <- testOpportunity("opp-1", "alpha", "beta")
	res := awaitResult(t, e)

	if res.Status != domain.OppStatusFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	if res.Buy.Error != domain.ErrOrderTimeout.Error() {
		t.Errorf("buy error = %q, want %q", res.Buy.Error, domain.ErrOrderTimeout.Error())
	}
	if res.Buy.LatencyMs < 50 {
		t.Errorf("buy latency = %dms, want at least the 50ms timeout", res.Buy.LatencyMs)
	}
	waitIdle(t, e)
	// Timeouts are not transport failures; the engine must keep running.
	if e.killed() {
		t.Error("timeout tripped the kill switch")
	}
}

func TestEnginePartialFillIsDistinct(t *testing.T) {
	reg := exchange.NewRegistry()
	reg.Register(&stubAdapter{name: "alpha"})
	reg.Register(&stubAdapter{name: "beta", reject: true})

	in := make(chan domain.Opportunity, 1)
	e, stop := startEngine(t, testConfig(), reg, in)
	defer stop()

	in <- testOpportunity("opp-1", "alpha", "beta")
	res := awaitResult(t, e)

	if res.Status != domain.OppStatusPartial {
		t.Fatalf("status = %q, want partial", res.Status)
	}
	if !res.PartialFill() {
		t.Error("PartialFill() = false on asymmetric outcome")
	}
	if res.RealizedPnL != 0 {
		t.Errorf("realized pnl = %v on partial, want 0", res.RealizedPnL)
	}
	if e.DailyPnL() != 0 {
		t.Errorf("daily pnl = %v after partial, want unchanged", e.DailyPnL())
	}
}

func TestEngineKillSwitchOnErrorCascade(t *testing.T) {
	broken := errors.New("connection reset")
	reg := exchange.NewRegistry()
	reg.Register(&stubAdapter{name: "alpha", transport: broken})
	reg.Register(&stubAdapter{name: "beta", transport: broken})
	reg.Register(&stubAdapter{name: "gamma", transport: broken})

	in := make(chan domain.Opportunity, 3)
	e := New(testConfig(), reg, nil, in, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	in <- testOpportunity("opp-1", "alpha", "beta")
	in <- testOpportunity("opp-2", "beta", "gamma")
	in <- testOpportunity("opp-3", "gamma", "alpha")

	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrEngineStopped) {
			t.Fatalf("Run returned %v, want ErrEngineStopped", err)
		}
	case <-time.After(4 * time.Second):
		t.Fatal("engine kept running through the error cascade")
	}
}

func TestEngineConcurrencyCap(t *testing.T) {
	shared := &gauge{}
	reg := exchange.NewRegistry()
	for _, name := range []string{"alpha", "beta", "gamma", "delta"} {
		reg.Register(&stubAdapter{name: name, delay: 30 * time.Millisecond, track: shared})
	}

	cfg := testConfig()
	cfg.MaxConcurrentTrades = 1

	in := make(chan domain.Opportunity, 2)
	e, stop := startEngine(t, cfg, reg, in)
	defer stop()

	in <- testOpportunity("opp-1", "alpha", "beta")
	in <- testOpportunity("opp-2", "gamma", "delta")

	first := awaitResult(t, e)
	second := awaitResult(t, e)
	if first.Status != domain.OppStatusCompleted || second.Status != domain.OppStatusCompleted {
		t.Fatalf("statuses %q/%q, want both completed", first.Status, second.Status)
	}

	// One opportunity at a time means at most its two legs in flight.
	if peak := shared.peak.Load(); peak > 2 {
		t.Errorf("peak in-flight orders = %d, want at most 2 under a cap of 1 trade", peak)
	}
}

func TestEngineBulkDispatch(t *testing.T) {
	bulky := &stubAdapter{name: "bulky", bulk: true}
	plain := &stubAdapter{name: "alpha"}
	reg := exchange.NewRegistry()
	reg.Register(bulky)
	reg.Register(plain)

	cfg := testConfig()
	cfg.SchedulerTick = 50 * time.Millisecond

	in := make(chan domain.Opportunity, 2)
	in <- testOpportunity("opp-1", "alpha", "bulky")
	in <- testOpportunity("opp-2", "bulky", "alpha")

	e, stop := startEngine(t, cfg, reg, in)
	defer stop()

	first := awaitResult(t, e)
	second := awaitResult(t, e)
	if first.Status != domain.OppStatusCompleted || second.Status != domain.OppStatusCompleted {
		t.Fatalf("statuses %q/%q, want both completed", first.Status, second.Status)
	}

	bulky.mu.Lock()
	defer bulky.mu.Unlock()
	if bulky.bulkCalls != 1 {
		t.Errorf("bulk venue got %d batched calls, want 1 for its two legs", bulky.bulkCalls)
	}
}

func TestEngineSeedDailyPnLSurvivesRestart(t *testing.T) {
	reg := exchange.NewRegistry()
	first := New(testConfig(), reg, nil, nil, testLogger())

	buy := domain.OrderResponse{Success: true, ExecutedPrice: 89, ExecutedAmount: 1}
	sell := domain.OrderResponse{Success: true, ExecutedPrice: 82, ExecutedAmount: 1}
	first.finish(testOpportunity("opp-1", "alpha", "beta"), buy, sell, time.Now())
	if got := first.DailyPnL(); got != -7 {
		t.Fatalf("daily pnl = %v, want -7", got)
	}

	// A replacement process must not forget the morning's losses: seeding
	// from the persisted figure restores the daily-loss gate's baseline.
	second := New(testConfig(), reg, nil, nil, testLogger())
	if got := second.DailyPnL(); got != 0 {
		t.Fatalf("fresh engine daily pnl = %v, want 0", got)
	}
	second.SeedDailyPnL(first.DailyPnL())
	if got := second.DailyPnL(); got != -7 {
		t.Errorf("seeded daily pnl = %v, want -7", got)
	}
}

func TestEngineDropsExpiredOpportunity(t *testing.T) {
	reg := exchange.NewRegistry()
	reg.Register(&stubAdapter{name: "alpha"})
	reg.Register(&stubAdapter{name: "beta"})

	in := make(chan domain.Opportunity, 1)
	e, stop := startEngine(t, testConfig(), reg, in)
	defer stop()

	opp := testOpportunity("opp-1", "alpha", "beta")
	opp.Timestamp = time.Now().UTC().Add(-10 * time.Second)
	in <- opp

	select {
	case res := <-e.Results():
		t.Fatalf("expired opportunity produced a result: %+v", res)
	case <-time.After(100 * time.Millisecond):
	}
	if e.ActiveCount() != 0 {
		t.Errorf("active count = %d, want 0", e.ActiveCount())
	}
}
