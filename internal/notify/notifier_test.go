package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/crossarb/crossarb/internal/domain"
)

type fakeSender struct {
	name   string
	fail   error
	titles []string
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	if f.fail != nil {
		return f.fail
	}
	f.titles = append(f.titles, title)
	return nil
}

func testNotifyLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &fakeSender{name: "primary"}
	n := NewNotifier([]Sender{s}, []string{EventExecutionCompleted}, testNotifyLogger())

	if err := n.Notify(context.Background(), EventExecutionFailed, "Trade failed", "x"); err != nil {
		t.Fatalf("filtered notify returned %v", err)
	}
	if len(s.titles) != 0 {
		t.Fatalf("filtered event was delivered: %v", s.titles)
	}

	if err := n.Notify(context.Background(), EventExecutionCompleted, "Trade completed", "x"); err != nil {
		t.Fatalf("allowed notify returned %v", err)
	}
	if len(s.titles) != 1 || s.titles[0] != "Trade completed" {
		t.Errorf("delivered titles = %v, want [Trade completed]", s.titles)
	}
}

func TestNotifierFanoutSurvivesSenderFailure(t *testing.T) {
	broken := &fakeSender{name: "telegram", fail: errors.New("bot token revoked")}
	healthy := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{broken, healthy}, nil, testNotifyLogger())

	err := n.NotifyAll(context.Background(), "ENGINE STOPPED", "x")
	if err == nil || !strings.Contains(err.Error(), "telegram") {
		t.Errorf("fanout error = %v, want telegram failure reported", err)
	}
	if len(healthy.titles) != 1 {
		t.Errorf("healthy channel got %d alerts, want 1 despite the other failing", len(healthy.titles))
	}
}

func TestAlerterPartialFillBypassesFilter(t *testing.T) {
	s := &fakeSender{name: "primary"}
	// Filter allows completed trades only; a partial fill must still page.
	n := NewNotifier([]Sender{s}, []string{EventExecutionCompleted}, testNotifyLogger())
	a := NewAlerter(n)

	partial := domain.ExecutionResult{
		Route:  "binance>wazirx",
		Symbol: "BTCUSDT",
		Status: domain.OppStatusPartial,
		Buy:    domain.OrderResponse{Success: true},
		Sell:   domain.OrderResponse{Success: false, Error: "insufficient balance"},
	}
	if err := a.ExecutionResult(context.Background(), partial); err != nil {
		t.Fatalf("partial alert returned %v", err)
	}
	if len(s.titles) != 1 || s.titles[0] != "PARTIAL FILL" {
		t.Errorf("delivered titles = %v, want [PARTIAL FILL]", s.titles)
	}
}
