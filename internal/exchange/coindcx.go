package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/crossarb/crossarb/internal/crypto"
	"github.com/crossarb/crossarb/internal/domain"
)

// CoinDCX implements Adapter for the CoinDCX exchange. It is the one venue
// here with a bulk order endpoint (create_multiple), so independent orders
// targeting it can be combined into a single batched call. Sell proceeds are
// subject to the 1% TDS deduction.
type CoinDCX struct {
	wsURL      string
	restURL    string
	auth       crypto.HMACAuth
	fees       FeeSchedule
	httpClient *http.Client
}

// NewCoinDCX creates a CoinDCX adapter with production endpoints unless
// overridden.
func NewCoinDCX(wsURL, restURL, apiKey, apiSecret string) *CoinDCX {
	if wsURL == "" {
		wsURL = "wss://stream.coindcx.com"
	}
	if restURL == "" {
		restURL = "https://api.coindcx.com"
	}
	return &CoinDCX{
		wsURL:   wsURL,
		restURL: restURL,
		auth:    crypto.HMACAuth{Key: apiKey, Secret: apiSecret},
		fees:    FeeSchedule{MakerPercent: 0.1, TakerPercent: 0.1, TDSPercent: 1.0},
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *CoinDCX) Name() string  { return "coindcx" }
func (c *CoinDCX) WSURL() string { return c.wsURL }

func (c *CoinDCX) SubscribePayload(symbol string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"event":   "join",
		"channel": symbol + "@ticker",
	})
}

func (c *CoinDCX) Heartbeat() ([]byte, time.Duration) {
	return []byte(`{"event":"ping"}`), 25 * time.Second
}

type coindcxTicker struct {
	Channel string  `json:"channel"`
	Market  string  `json:"market"`
	Bid     float64 `json:"bid"`
	Ask     float64 `json:"ask"`
	Last    float64 `json:"last_price"`
	Volume  float64 `json:"volume"`
}

func (c *CoinDCX) ParseMessage(raw []byte) (*domain.Quote, error) {
	var t coindcxTicker
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("coindcx: %w: %v", domain.ErrParse, err)
	}
	if t.Market == "" {
		return nil, nil
	}
	if t.Bid <= 0 || t.Ask <= 0 {
		return nil, fmt.Errorf("coindcx: %w: non-positive ticker prices", domain.ErrParse)
	}

	return &domain.Quote{
		Exchange:   c.Name(),
		Symbol:     t.Market,
		BidPrice:   t.Bid,
		AskPrice:   t.Ask,
		LastPrice:  t.Last,
		Volume:     t.Volume,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

func (c *CoinDCX) Fees() FeeSchedule { return c.fees }

func (c *CoinDCX) EnsureAuth(ctx context.Context) error { return nil }

// coindcxOrderBody is the signed JSON body for order creation.
type coindcxOrderBody struct {
	Side          string  `json:"side"`
	OrderType     string  `json:"order_type"`
	Market        string  `json:"market"`
	TotalQuantity float64 `json:"total_quantity"`
	PricePerUnit  float64 `json:"price_per_unit,omitempty"`
	ClientOrderID string  `json:"client_order_id"`
	Timestamp     int64   `json:"timestamp"`
}

type coindcxOrderAck struct {
	Orders []struct {
		ID        string  `json:"id"`
		AvgPrice  float64 `json:"avg_price"`
		FilledQty float64 `json:"filled_quantity"`
		Fee       float64 `json:"fee_amount"`
		Status    string  `json:"status"`
	} `json:"orders"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// PlaceOrder submits one signed order to POST /exchange/v1/orders/create.
func (c *CoinDCX) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResponse, error) {
	resps, err := c.post(ctx, "/exchange/v1/orders/create", c.orderBody(req), []domain.OrderRequest{req})
	if err != nil {
		return domain.OrderResponse{}, err
	}
	return resps[0], nil
}

// SupportsBulk is true: CoinDCX exposes orders/create_multiple.
func (c *CoinDCX) SupportsBulk() bool { return true }

// PlaceOrders combines up to 10 orders into one create_multiple call.
func (c *CoinDCX) PlaceOrders(ctx context.Context, reqs []domain.OrderRequest) ([]domain.OrderResponse, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	bodies := make([]coindcxOrderBody, 0, len(reqs))
	for _, r := range reqs {
		bodies = append(bodies, c.orderBody(r))
	}
	return c.post(ctx, "/exchange/v1/orders/create_multiple",
		map[string]any{"orders": bodies}, reqs)
}

func (c *CoinDCX) orderBody(req domain.OrderRequest) coindcxOrderBody {
	body := coindcxOrderBody{
		Side:          string(req.Side),
		OrderType:     "market_order",
		Market:        req.Symbol,
		TotalQuantity: req.Amount,
		ClientOrderID: req.ID,
		Timestamp:     time.Now().UnixMilli(),
	}
	if req.Type == domain.OrderTypeLimit {
		body.OrderType = "limit_order"
		body.PricePerUnit = req.Price
	}
	return body
}

// post signs and submits an order payload, then maps the venue response
// back onto the originating requests positionally.
func (c *CoinDCX) post(ctx context.Context, path string, payload any, reqs []domain.OrderRequest) ([]domain.OrderResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("coindcx: marshal order body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.restURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("coindcx: build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-AUTH-APIKEY", c.auth.Key)
	httpReq.Header.Set("X-AUTH-SIGNATURE", c.auth.SignHex(string(body)))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.ExchangeError{Exchange: c.Name(), Op: "place order", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.ExchangeError{Exchange: c.Name(), Op: "read order response", Err: err}
	}

	latency := time.Since(start).Milliseconds()
	now := time.Now().UTC()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &domain.ExchangeError{Exchange: c.Name(), Op: "place order", Err: domain.ErrRateLimited}
	}

	var ack coindcxOrderAck
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return nil, fmt.Errorf("coindcx: decode order response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || len(ack.Orders) == 0 {
		out := make([]domain.OrderResponse, len(reqs))
		for i, r := range reqs {
			out[i] = domain.OrderResponse{
				ID:        r.ID,
				Success:   false,
				LatencyMs: latency,
				Error:     fmt.Sprintf("coindcx rejected order (%d): %s", ack.Code, ack.Message),
				Timestamp: now,
			}
		}
		return out, nil
	}

	out := make([]domain.OrderResponse, len(reqs))
	for i, r := range reqs {
		if i >= len(ack.Orders) {
			out[i] = domain.OrderResponse{
				ID: r.ID, Success: false, LatencyMs: latency,
				Error: "coindcx: order missing from bulk response", Timestamp: now,
			}
			continue
		}
		o := ack.Orders[i]
		out[i] = domain.OrderResponse{
			ID:             r.ID,
			Success:        o.Status != "rejected",
			OrderID:        o.ID,
			ExecutedPrice:  o.AvgPrice,
			ExecutedAmount: o.FilledQty,
			Fees:           o.Fee,
			LatencyMs:      latency,
			Timestamp:      now,
		}
		if !out[i].Success {
			out[i].Error = "coindcx rejected order: " + o.Status
		}
	}
	return out, nil
}

var _ Adapter = (*CoinDCX)(nil)
