package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType selects the venue order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderPriority drives the executor's strategy selection. Critical orders
// always take the direct synchronous API path.
type OrderPriority string

const (
	PriorityCritical OrderPriority = "critical"
	PriorityHigh     OrderPriority = "high"
	PriorityNormal   OrderPriority = "normal"
)

// OrderRequest describes one leg of a trade to be submitted to a venue.
// It lives only for the duration of a single execution attempt.
type OrderRequest struct {
	ID        string
	Exchange  string
	Symbol    string
	Side      OrderSide
	Type      OrderType
	Amount    float64
	Price     float64 // required for limit orders
	Priority  OrderPriority
	TimeoutMs int64
	Metadata  map[string]string
}

// Validate checks order parameters before dispatch. A failure here is a
// ValidationError and aborts the order without touching the venue.
func (r OrderRequest) Validate() error {
	if r.Exchange == "" || r.Symbol == "" {
		return ErrInvalidOrder
	}
	if r.Amount <= 0 {
		return ErrInvalidOrder
	}
	if r.Type == OrderTypeLimit && r.Price <= 0 {
		return ErrInvalidOrder
	}
	switch r.Side {
	case OrderSideBuy, OrderSideSell:
	default:
		return ErrInvalidOrder
	}
	return nil
}

// Timeout returns the per-order timeout as a duration, falling back to the
// given default when the request does not carry one.
func (r OrderRequest) Timeout(def time.Duration) time.Duration {
	if r.TimeoutMs <= 0 {
		return def
	}
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

// OrderResponse is the venue's answer to an OrderRequest, normalized by the
// exchange adapter.
type OrderResponse struct {
	ID             string // request ID this responds to
	Success        bool
	OrderID        string // venue-assigned ID when accepted
	ExecutedPrice  float64
	ExecutedAmount float64
	Fees           float64
	LatencyMs      int64
	Error          string
	Timestamp      time.Time
}
