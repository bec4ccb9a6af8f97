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

// Kraken implements Adapter for the Kraken exchange. Kraken's public feed
// delivers ticker updates as positional JSON arrays and status/heartbeat
// events as objects; both shapes are handled by ParseMessage.
type Kraken struct {
	wsURL      string
	restURL    string
	auth       crypto.HMACAuth
	fees       FeeSchedule
	httpClient *http.Client
}

// NewKraken creates a Kraken adapter with production endpoints unless
// overridden.
func NewKraken(wsURL, restURL, apiKey, apiSecret string) *Kraken {
	if wsURL == "" {
		wsURL = "wss://ws.kraken.com"
	}
	if restURL == "" {
		restURL = "https://api.kraken.com"
	}
	return &Kraken{
		wsURL:   wsURL,
		restURL: restURL,
		auth:    crypto.HMACAuth{Key: apiKey, Secret: apiSecret},
		fees:    FeeSchedule{MakerPercent: 0.16, TakerPercent: 0.26},
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (k *Kraken) Name() string  { return "kraken" }
func (k *Kraken) WSURL() string { return k.wsURL }

// pair converts a canonical symbol like "BTCUSDT" to Kraken's slash pair
// notation; Kraken uses XBT for Bitcoin.
func (k *Kraken) pair(symbol string) string {
	s := strings.ToUpper(symbol)
	for _, quote := range []string{"USDT", "USD", "EUR", "INR"} {
		if strings.HasSuffix(s, quote) {
			base := strings.TrimSuffix(s, quote)
			if base == "BTC" {
				base = "XBT"
			}
			return base + "/" + quote
		}
	}
	return s
}

func (k *Kraken) SubscribePayload(symbol string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"event":        "subscribe",
		"pair":         []string{k.pair(symbol)},
		"subscription": map[string]any{"name": "ticker"},
	})
}

func (k *Kraken) Heartbeat() ([]byte, time.Duration) {
	return nil, 0
}

// krakenTicker mirrors the payload object inside a ticker array message.
// Price fields arrive as [price, wholeLotVolume, lotVolume] string arrays.
type krakenTicker struct {
	Ask    []string `json:"a"`
	Bid    []string `json:"b"`
	Close  []string `json:"c"`
	Volume []string `json:"v"`
}

// ParseMessage handles both Kraken shapes: object events (heartbeat,
// subscriptionStatus, systemStatus) are ignored; ticker arrays
// [channelID, payload, "ticker", pair] become Quotes.
func (k *Kraken) ParseMessage(raw []byte) (*domain.Quote, error) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("kraken: %w: %v", domain.ErrParse, err)
	}
	if len(parts) < 4 {
		return nil, nil
	}

	var channel string
	if err := json.Unmarshal(parts[2], &channel); err != nil || channel != "ticker" {
		return nil, nil
	}

	var t krakenTicker
	if err := json.Unmarshal(parts[1], &t); err != nil {
		return nil, fmt.Errorf("kraken: %w: %v", domain.ErrParse, err)
	}
	if len(t.Ask) == 0 || len(t.Bid) == 0 || len(t.Close) == 0 {
		return nil, fmt.Errorf("kraken: %w: incomplete ticker payload", domain.ErrParse)
	}

	var pair string
	if err := json.Unmarshal(parts[3], &pair); err != nil {
		return nil, fmt.Errorf("kraken: %w: %v", domain.ErrParse, err)
	}

	ask, err1 := strconv.ParseFloat(t.Ask[0], 64)
	bid, err2 := strconv.ParseFloat(t.Bid[0], 64)
	last, err3 := strconv.ParseFloat(t.Close[0], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, fmt.Errorf("kraken: %w: non-numeric ticker fields", domain.ErrParse)
	}
	var vol float64
	if len(t.Volume) > 1 {
		vol, _ = strconv.ParseFloat(t.Volume[1], 64)
	}

	symbol := strings.ReplaceAll(strings.ReplaceAll(pair, "XBT", "BTC"), "/", "")

	return &domain.Quote{
		Exchange:   k.Name(),
		Symbol:     symbol,
		BidPrice:   bid,
		AskPrice:   ask,
		LastPrice:  last,
		Volume:     vol,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

func (k *Kraken) Fees() FeeSchedule { return k.fees }

func (k *Kraken) EnsureAuth(ctx context.Context) error { return nil }

// PlaceOrder submits a signed order to POST /0/private/AddOrder.
func (k *Kraken) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResponse, error) {
	const path = "/0/private/AddOrder"
	nonce := crypto.Nonce()

	params := url.Values{}
	params.Set("nonce", nonce)
	params.Set("pair", k.pair(req.Symbol))
	params.Set("type", string(req.Side))
	params.Set("volume", strconv.FormatFloat(req.Amount, 'f', -1, 64))
	// userref is a signed int32 on Kraken's side; the request ID travels in
	// cl_ord_id instead.
	params.Set("cl_ord_id", req.ID)
	if req.Type == domain.OrderTypeLimit {
		params.Set("ordertype", "limit")
		params.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
	} else {
		params.Set("ordertype", "market")
	}
	postData := params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		k.restURL+path, strings.NewReader(postData))
	if err != nil {
		return domain.OrderResponse{}, fmt.Errorf("kraken: build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("API-Key", k.auth.Key)
	httpReq.Header.Set("API-Sign", k.auth.SignKraken(path, nonce, postData))

	start := time.Now()
	resp, err := k.httpClient.Do(httpReq)
	if err != nil {
		return domain.OrderResponse{}, &domain.ExchangeError{
			Exchange: k.Name(), Op: "place order", Err: err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.OrderResponse{}, &domain.ExchangeError{
			Exchange: k.Name(), Op: "read order response", Err: err,
		}
	}

	latency := time.Since(start).Milliseconds()
	now := time.Now().UTC()

	var ack struct {
		Error  []string `json:"error"`
		Result struct {
			TxID []string `json:"txid"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return domain.OrderResponse{}, fmt.Errorf("kraken: decode order response: %w", err)
	}

	if len(ack.Error) > 0 {
		for _, e := range ack.Error {
			if strings.Contains(e, "Rate limit") {
				return domain.OrderResponse{}, &domain.ExchangeError{
					Exchange: k.Name(), Op: "place order", Err: domain.ErrRateLimited,
				}
			}
		}
		return domain.OrderResponse{
			ID:        req.ID,
			Success:   false,
			LatencyMs: latency,
			Error:     "kraken rejected order: " + strings.Join(ack.Error, "; "),
			Timestamp: now,
		}, nil
	}

	orderID := ""
	if len(ack.Result.TxID) > 0 {
		orderID = ack.Result.TxID[0]
	}

	// AddOrder acknowledges without fill details; report the requested
	// price and amount, with fees estimated from the taker schedule.
	return domain.OrderResponse{
		ID:             req.ID,
		Success:        true,
		OrderID:        orderID,
		ExecutedPrice:  req.Price,
		ExecutedAmount: req.Amount,
		Fees:           k.fees.TakerFee(req.Price * req.Amount),
		LatencyMs:      latency,
		Timestamp:      now,
	}, nil
}

func (k *Kraken) SupportsBulk() bool { return false }

func (k *Kraken) PlaceOrders(ctx context.Context, reqs []domain.OrderRequest) ([]domain.OrderResponse, error) {
	return nil, fmt.Errorf("kraken: bulk orders not supported")
}

var _ Adapter = (*Kraken)(nil)
