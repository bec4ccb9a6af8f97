package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/crossarb/crossarb/internal/crypto"
	"github.com/crossarb/crossarb/internal/domain"
)

// Binance implements Adapter for the Binance spot exchange. Market data uses
// the combined-stream 24h ticker; orders go through the signed REST API.
type Binance struct {
	wsURL      string
	restURL    string
	auth       crypto.HMACAuth
	fees       FeeSchedule
	httpClient *http.Client
}

// NewBinance creates a Binance adapter. Pass empty URLs to use production
// endpoints.
func NewBinance(wsURL, restURL, apiKey, apiSecret string) *Binance {
	if wsURL == "" {
		wsURL = "wss://stream.binance.com:9443/ws"
	}
	if restURL == "" {
		restURL = "https://api.binance.com"
	}
	return &Binance{
		wsURL:   wsURL,
		restURL: restURL,
		auth:    crypto.HMACAuth{Key: apiKey, Secret: apiSecret},
		fees:    FeeSchedule{MakerPercent: 0.1, TakerPercent: 0.1},
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (b *Binance) Name() string  { return "binance" }
func (b *Binance) WSURL() string { return b.wsURL }

// SubscribePayload subscribes to the 24h rolling ticker stream, which
// carries best bid/ask, last price, and volume in one message.
func (b *Binance) SubscribePayload(symbol string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"method": "SUBSCRIBE",
		"params": []string{strings.ToLower(symbol) + "@ticker"},
		"id":     1,
	})
}

// Heartbeat returns nil: Binance keeps connections alive with protocol
// ping/pong frames only.
func (b *Binance) Heartbeat() ([]byte, time.Duration) {
	return nil, 0
}

// binanceTicker is the 24hr ticker stream payload.
type binanceTicker struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
	BidPrice  string `json:"b"`
	AskPrice  string `json:"a"`
	Volume    string `json:"v"`
	EventTime int64  `json:"E"`
}

// ParseMessage maps a ticker event to a Quote. Subscription acks and other
// event types are ignored.
func (b *Binance) ParseMessage(raw []byte) (*domain.Quote, error) {
	var t binanceTicker
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("binance: %w: %v", domain.ErrParse, err)
	}
	if t.EventType != "24hrTicker" {
		return nil, nil
	}

	bid, err1 := strconv.ParseFloat(t.BidPrice, 64)
	ask, err2 := strconv.ParseFloat(t.AskPrice, 64)
	last, err3 := strconv.ParseFloat(t.LastPrice, 64)
	vol, err4 := strconv.ParseFloat(t.Volume, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return nil, fmt.Errorf("binance: %w: non-numeric ticker fields", domain.ErrParse)
	}

	return &domain.Quote{
		Exchange:   b.Name(),
		Symbol:     t.Symbol,
		BidPrice:   bid,
		AskPrice:   ask,
		LastPrice:  last,
		Volume:     vol,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

func (b *Binance) Fees() FeeSchedule { return b.fees }

// EnsureAuth is a no-op: Binance REST signing uses a static HMAC key pair.
func (b *Binance) EnsureAuth(ctx context.Context) error { return nil }

// PlaceOrder submits a signed order to POST /api/v3/order.
func (b *Binance) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("quantity", strconv.FormatFloat(req.Amount, 'f', -1, 64))
	params.Set("newClientOrderId", req.ID)
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	switch req.Type {
	case domain.OrderTypeLimit:
		params.Set("type", "LIMIT")
		params.Set("timeInForce", "IOC")
		params.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
	default:
		params.Set("type", "MARKET")
	}

	query := params.Encode()
	query += "&signature=" + b.auth.SignHex(query)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.restURL+"/api/v3/order?"+query, nil)
	if err != nil {
		return domain.OrderResponse{}, fmt.Errorf("binance: build order request: %w", err)
	}
	httpReq.Header.Set("X-MBX-APIKEY", b.auth.Key)

	start := time.Now()
	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return domain.OrderResponse{}, &domain.ExchangeError{
			Exchange: b.Name(), Op: "place order", Err: err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.OrderResponse{}, &domain.ExchangeError{
			Exchange: b.Name(), Op: "read order response", Err: err,
		}
	}

	latency := time.Since(start).Milliseconds()
	now := time.Now().UTC()

	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.OrderResponse{}, &domain.ExchangeError{
			Exchange: b.Name(), Op: "place order", Err: domain.ErrRateLimited,
		}
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return domain.OrderResponse{
			ID:        req.ID,
			Success:   false,
			LatencyMs: latency,
			Error:     fmt.Sprintf("binance rejected order (%d): %s", apiErr.Code, apiErr.Msg),
			Timestamp: now,
		}, nil
	}

	var fill struct {
		OrderID     int64  `json:"orderId"`
		ExecutedQty string `json:"executedQty"`
		Fills       []struct {
			Price      string `json:"price"`
			Qty        string `json:"qty"`
			Commission string `json:"commission"`
		} `json:"fills"`
	}
	if err := json.Unmarshal(body, &fill); err != nil {
		return domain.OrderResponse{}, fmt.Errorf("binance: decode order response: %w", err)
	}

	executed, _ := strconv.ParseFloat(fill.ExecutedQty, 64)
	var notional, qty, fees float64
	for _, f := range fill.Fills {
		p, _ := strconv.ParseFloat(f.Price, 64)
		q, _ := strconv.ParseFloat(f.Qty, 64)
		c, _ := strconv.ParseFloat(f.Commission, 64)
		notional += p * q
		qty += q
		fees += c
	}
	avgPrice := req.Price
	if qty > 0 {
		avgPrice = notional / qty
	}

	return domain.OrderResponse{
		ID:             req.ID,
		Success:        true,
		OrderID:        strconv.FormatInt(fill.OrderID, 10),
		ExecutedPrice:  avgPrice,
		ExecutedAmount: executed,
		Fees:           fees,
		LatencyMs:      latency,
		Timestamp:      now,
	}, nil
}

// SupportsBulk is false: the Binance spot API has no bulk order endpoint.
func (b *Binance) SupportsBulk() bool { return false }

func (b *Binance) PlaceOrders(ctx context.Context, reqs []domain.OrderRequest) ([]domain.OrderResponse, error) {
	return nil, fmt.Errorf("binance: bulk orders not supported")
}

var _ Adapter = (*Binance)(nil)
