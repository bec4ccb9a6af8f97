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

// WazirX implements Adapter for the WazirX exchange. Sell proceeds on WazirX
// are subject to the 1% TDS deduction, modeled in the fee schedule.
type WazirX struct {
	wsURL      string
	restURL    string
	auth       crypto.HMACAuth
	fees       FeeSchedule
	httpClient *http.Client
}

// NewWazirX creates a WazirX adapter with production endpoints unless
// overridden.
func NewWazirX(wsURL, restURL, apiKey, apiSecret string) *WazirX {
	if wsURL == "" {
		wsURL = "wss://stream.wazirx.com/stream"
	}
	if restURL == "" {
		restURL = "https://api.wazirx.com"
	}
	return &WazirX{
		wsURL:   wsURL,
		restURL: restURL,
		auth:    crypto.HMACAuth{Key: apiKey, Secret: apiSecret},
		fees:    FeeSchedule{MakerPercent: 0.2, TakerPercent: 0.2, TDSPercent: 1.0},
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *WazirX) Name() string  { return "wazirx" }
func (w *WazirX) WSURL() string { return w.wsURL }

func (w *WazirX) SubscribePayload(symbol string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"event":   "subscribe",
		"streams": []string{strings.ToLower(symbol) + "@ticker"},
	})
}

// Heartbeat: WazirX expects an application-level ping event every 5 minutes
// in addition to protocol pings; we send one per minute.
func (w *WazirX) Heartbeat() ([]byte, time.Duration) {
	return []byte(`{"event":"ping"}`), time.Minute
}

// wazirxEnvelope wraps every stream message.
type wazirxEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type wazirxTicker struct {
	Symbol    string `json:"s"`
	BuyPrice  string `json:"b"` // best bid
	SellPrice string `json:"a"` // best ask
	LastPrice string `json:"l"`
	Volume    string `json:"q"`
}

func (w *WazirX) ParseMessage(raw []byte) (*domain.Quote, error) {
	var env wazirxEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("wazirx: %w: %v", domain.ErrParse, err)
	}
	if !strings.HasSuffix(env.Stream, "@ticker") || len(env.Data) == 0 {
		return nil, nil
	}

	var t wazirxTicker
	if err := json.Unmarshal(env.Data, &t); err != nil {
		return nil, fmt.Errorf("wazirx: %w: %v", domain.ErrParse, err)
	}

	bid, err1 := strconv.ParseFloat(t.BuyPrice, 64)
	ask, err2 := strconv.ParseFloat(t.SellPrice, 64)
	last, err3 := strconv.ParseFloat(t.LastPrice, 64)
	vol, err4 := strconv.ParseFloat(t.Volume, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return nil, fmt.Errorf("wazirx: %w: non-numeric ticker fields", domain.ErrParse)
	}

	return &domain.Quote{
		Exchange:   w.Name(),
		Symbol:     strings.ToUpper(t.Symbol),
		BidPrice:   bid,
		AskPrice:   ask,
		LastPrice:  last,
		Volume:     vol,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

func (w *WazirX) Fees() FeeSchedule { return w.fees }

func (w *WazirX) EnsureAuth(ctx context.Context) error { return nil }

// PlaceOrder submits a signed order to POST /sapi/v1/order.
func (w *WazirX) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToLower(req.Symbol))
	params.Set("side", string(req.Side))
	params.Set("quantity", strconv.FormatFloat(req.Amount, 'f', -1, 64))
	params.Set("recvWindow", "5000")
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	if req.Type == domain.OrderTypeLimit {
		params.Set("type", "limit")
		params.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
	} else {
		params.Set("type", "market")
	}

	body := params.Encode()
	body += "&signature=" + w.auth.SignHex(body)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		w.restURL+"/sapi/v1/order", strings.NewReader(body))
	if err != nil {
		return domain.OrderResponse{}, fmt.Errorf("wazirx: build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("X-Api-Key", w.auth.Key)

	start := time.Now()
	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return domain.OrderResponse{}, &domain.ExchangeError{
			Exchange: w.Name(), Op: "place order", Err: err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.OrderResponse{}, &domain.ExchangeError{
			Exchange: w.Name(), Op: "read order response", Err: err,
		}
	}

	latency := time.Since(start).Milliseconds()
	now := time.Now().UTC()

	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.OrderResponse{}, &domain.ExchangeError{
			Exchange: w.Name(), Op: "place order", Err: domain.ErrRateLimited,
		}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &apiErr)
		return domain.OrderResponse{
			ID:        req.ID,
			Success:   false,
			LatencyMs: latency,
			Error:     fmt.Sprintf("wazirx rejected order (%d): %s", apiErr.Code, apiErr.Message),
			Timestamp: now,
		}, nil
	}

	var ack struct {
		ID            int64  `json:"id"`
		Price         string `json:"price"`
		ExecutedQty   string `json:"executedQty"`
		AvgFilledCost string `json:"avgFilledPrice"`
	}
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return domain.OrderResponse{}, fmt.Errorf("wazirx: decode order response: %w", err)
	}

	executed, _ := strconv.ParseFloat(ack.ExecutedQty, 64)
	avg, _ := strconv.ParseFloat(ack.AvgFilledCost, 64)
	if avg == 0 {
		avg, _ = strconv.ParseFloat(ack.Price, 64)
	}

	return domain.OrderResponse{
		ID:             req.ID,
		Success:        true,
		OrderID:        strconv.FormatInt(ack.ID, 10),
		ExecutedPrice:  avg,
		ExecutedAmount: executed,
		Fees:           w.fees.TakerFee(avg * executed),
		LatencyMs:      latency,
		Timestamp:      now,
	}, nil
}

func (w *WazirX) SupportsBulk() bool { return false }

func (w *WazirX) PlaceOrders(ctx context.Context, reqs []domain.OrderRequest) ([]domain.OrderResponse, error) {
	return nil, fmt.Errorf("wazirx: bulk orders not supported")
}

var _ Adapter = (*WazirX)(nil)
