package exchange

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/crossarb/crossarb/internal/domain"
)

func TestPaperFillsAtRequestedPrice(t *testing.T) {
	p := NewPaper(NewWazirX("", "", "", ""), 0)
	req := domain.OrderRequest{
		ID:       "opp-1:buy",
		Exchange: "wazirx",
		Symbol:   "BTCUSDT",
		Side:     domain.OrderSideBuy,
		Type:     domain.OrderTypeLimit,
		Amount:   0.5,
		Price:    64000,
	}

	resp, err := p.PlaceOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if !resp.Success {
		t.Fatalf("simulated order failed: %s", resp.Error)
	}
	if resp.ExecutedPrice != 64000 || resp.ExecutedAmount != 0.5 {
		t.Errorf("fill = %v @ %v, want 0.5 @ 64000", resp.ExecutedAmount, resp.ExecutedPrice)
	}
	wantFees := p.Fees().TakerFee(64000 * 0.5)
	if resp.Fees != wantFees {
		t.Errorf("fees = %v, want %v", resp.Fees, wantFees)
	}
	if !strings.HasPrefix(resp.OrderID, "paper-wazirx-") {
		t.Errorf("order id = %q, want paper-wazirx- prefix", resp.OrderID)
	}
}

func TestPaperCancelledContextReportsTimeout(t *testing.T) {
	p := NewPaper(NewBinance("", "", "", ""), time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := p.PlaceOrder(ctx, domain.OrderRequest{ID: "opp-2:sell", Price: 100, Amount: 1})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if resp.Success {
		t.Error("order succeeded under a cancelled context")
	}
	if resp.Error != domain.ErrOrderTimeout.Error() {
		t.Errorf("error = %q, want %q", resp.Error, domain.ErrOrderTimeout.Error())
	}
}

func TestPaperBulkPreservesOrder(t *testing.T) {
	p := NewPaper(NewCoinDCX("", "", "", ""), 0)
	reqs := []domain.OrderRequest{
		{ID: "a:buy", Price: 100, Amount: 1},
		{ID: "b:sell", Price: 101, Amount: 2},
	}
	resps, err := p.PlaceOrders(context.Background(), reqs)
	if err != nil {
		t.Fatalf("PlaceOrders: %v", err)
	}
	if len(resps) != 2 {
		t.Fatalf("got %d responses, want 2", len(resps))
	}
	for i, r := range resps {
		if r.ID != reqs[i].ID {
			t.Errorf("response %d responds to %q, want %q", i, r.ID, reqs[i].ID)
		}
		if !r.Success {
			t.Errorf("response %d failed: %s", i, r.Error)
		}
	}
}
