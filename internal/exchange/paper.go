package exchange

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/crossarb/crossarb/internal/domain"
)

// Paper wraps a real adapter but replaces order placement with simulated
// fills at the requested price. Market data, fees, and parsing still come
// from the wrapped venue, so simulation mode exercises the full pipeline
// without touching venue order APIs.
type Paper struct {
	Adapter
	fillDelay time.Duration
	seq       atomic.Int64
}

// NewPaper creates a simulated-execution wrapper around base. fillDelay
// models venue round-trip time; zero means instant fills.
func NewPaper(base Adapter, fillDelay time.Duration) *Paper {
	return &Paper{Adapter: base, fillDelay: fillDelay}
}

func (p *Paper) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResponse, error) {
	start := time.Now()
	if p.fillDelay > 0 {
		select {
		case <-ctx.Done():
			return domain.OrderResponse{
				ID:        req.ID,
				Success:   false,
				LatencyMs: time.Since(start).Milliseconds(),
				Error:     domain.ErrOrderTimeout.Error(),
				Timestamp: time.Now().UTC(),
			}, nil
		case <-time.After(p.fillDelay):
		}
	}

	price := req.Price
	notional := price * req.Amount
	return domain.OrderResponse{
		ID:             req.ID,
		Success:        true,
		OrderID:        "paper-" + p.Name() + "-" + strconv.FormatInt(p.seq.Add(1), 10),
		ExecutedPrice:  price,
		ExecutedAmount: req.Amount,
		Fees:           p.Fees().TakerFee(notional),
		LatencyMs:      time.Since(start).Milliseconds(),
		Timestamp:      time.Now().UTC(),
	}, nil
}

func (p *Paper) PlaceOrders(ctx context.Context, reqs []domain.OrderRequest) ([]domain.OrderResponse, error) {
	out := make([]domain.OrderResponse, 0, len(reqs))
	for _, r := range reqs {
		resp, err := p.PlaceOrder(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, nil
}

var _ Adapter = (*Paper)(nil)
