package domain

import (
	"errors"
	"testing"
	"time"
)

func TestOpportunityRoute(t *testing.T) {
	opp := Opportunity{BuyExchange: "binance", SellExchange: "wazirx"}
	if got := opp.Route(); got != "binance>wazirx" {
		t.Errorf("Route() = %q, want binance>wazirx", got)
	}
}

func TestOpportunityExpired(t *testing.T) {
	now := time.Now().UTC()
	opp := Opportunity{Timestamp: now.Add(-3 * time.Second)}
	if opp.Expired(now, 5*time.Second) {
		t.Error("3s old opportunity expired against a 5s limit")
	}
	if !opp.Expired(now, 2*time.Second) {
		t.Error("3s old opportunity not expired against a 2s limit")
	}
}

func TestQuoteValid(t *testing.T) {
	cases := []struct {
		name  string
		quote Quote
		want  bool
	}{
		{"two-sided", Quote{BidPrice: 99, AskPrice: 100}, true},
		{"zero bid", Quote{AskPrice: 100}, false},
		{"zero ask", Quote{BidPrice: 99}, false},
		{"crossed", Quote{BidPrice: 101, AskPrice: 100}, false},
	}
	for _, c := range cases {
		if got := c.quote.Valid(); got != c.want {
			t.Errorf("%s: Valid() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestExecutionResultPartialFill(t *testing.T) {
	r := ExecutionResult{Buy: OrderResponse{Success: true}, Sell: OrderResponse{Success: false}}
	if !r.PartialFill() {
		t.Error("asymmetric outcome not flagged as partial")
	}
	r.Sell.Success = true
	if r.PartialFill() {
		t.Error("dual success flagged as partial")
	}
}

func TestExecutionResultErr(t *testing.T) {
	partial := ExecutionResult{
		Status: OppStatusPartial,
		Buy:    OrderResponse{Success: true},
	}
	if !errors.Is(partial.Err(), ErrPartialFill) {
		t.Errorf("partial Err() = %v, want ErrPartialFill", partial.Err())
	}

	completed := ExecutionResult{
		Status: OppStatusCompleted,
		Buy:    OrderResponse{Success: true},
		Sell:   OrderResponse{Success: true},
	}
	if completed.Err() != nil {
		t.Errorf("completed Err() = %v, want nil", completed.Err())
	}

	failed := ExecutionResult{Status: OppStatusFailed}
	if !errors.Is(failed.Err(), ErrExecution) {
		t.Errorf("failed Err() = %v, want ErrExecution", failed.Err())
	}
}

func TestOrderRequestValidate(t *testing.T) {
	valid := OrderRequest{
		Exchange: "binance", Symbol: "BTCUSDT",
		Side: OrderSideBuy, Type: OrderTypeLimit, Amount: 1, Price: 100,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*OrderRequest)
	}{
		{"missing exchange", func(r *OrderRequest) { r.Exchange = "" }},
		{"zero amount", func(r *OrderRequest) { r.Amount = 0 }},
		{"limit without price", func(r *OrderRequest) { r.Price = 0 }},
		{"bad side", func(r *OrderRequest) { r.Side = "short" }},
	}
	for _, c := range cases {
		r := valid
		c.mutate(&r)
		if err := r.Validate(); !errors.Is(err, ErrInvalidOrder) {
			t.Errorf("%s: got %v, want ErrInvalidOrder", c.name, err)
		}
	}
}

func TestOrderRequestTimeout(t *testing.T) {
	r := OrderRequest{TimeoutMs: 250}
	if got := r.Timeout(5 * time.Second); got != 250*time.Millisecond {
		t.Errorf("Timeout() = %v, want 250ms", got)
	}
	r.TimeoutMs = 0
	if got := r.Timeout(5 * time.Second); got != 5*time.Second {
		t.Errorf("Timeout() fallback = %v, want 5s", got)
	}
}

func TestLatencyRingEviction(t *testing.T) {
	r := NewLatencyRing(3)
	for _, s := range []int64{10, 20, 30, 40} {
		r.Add(s)
	}
	got := r.Values()
	want := []int64{20, 30, 40}
	if len(got) != len(want) {
		t.Fatalf("Values() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Values() = %v, want %v", got, want)
		}
	}
	if avg := r.Average(); avg != 30 {
		t.Errorf("Average() = %v, want 30", avg)
	}
}

func TestExchangeErrorUnwrap(t *testing.T) {
	err := &ExchangeError{Exchange: "binance", Op: "place order", Err: ErrRateLimited}
	if !errors.Is(err, ErrRateLimited) {
		t.Error("ExchangeError does not unwrap to its cause")
	}
}
