package exchange

import (
	"errors"
	"testing"

	"github.com/crossarb/crossarb/internal/domain"
)

func TestBinanceParseTicker(t *testing.T) {
	b := NewBinance("", "", "", "")
	raw := []byte(`{"e":"24hrTicker","E":1700000000000,"s":"BTCUSDT","c":"64990.1","b":"64980.5","a":"64991.2","v":"1234.5"}`)

	q, err := b.ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if q == nil {
		t.Fatal("ticker message produced no quote")
	}
	if q.Exchange != "binance" || q.Symbol != "BTCUSDT" {
		t.Errorf("got exchange=%q symbol=%q", q.Exchange, q.Symbol)
	}
	if q.BidPrice != 64980.5 || q.AskPrice != 64991.2 || q.LastPrice != 64990.1 || q.Volume != 1234.5 {
		t.Errorf("got quote %+v", q)
	}
	if !q.Valid() {
		t.Error("parsed quote is not valid")
	}
}

func TestBinanceParseIgnoresAck(t *testing.T) {
	b := NewBinance("", "", "", "")
	q, err := b.ParseMessage([]byte(`{"result":null,"id":1}`))
	if err != nil || q != nil {
		t.Errorf("subscription ack: got quote=%v err=%v, want nil/nil", q, err)
	}
}

func TestBinanceParseBadNumbers(t *testing.T) {
	b := NewBinance("", "", "", "")
	raw := []byte(`{"e":"24hrTicker","s":"BTCUSDT","c":"oops","b":"64980.5","a":"64991.2","v":"1234.5"}`)
	_, err := b.ParseMessage(raw)
	if !errors.Is(err, domain.ErrParse) {
		t.Errorf("got %v, want ErrParse", err)
	}
}

func TestKrakenParseTicker(t *testing.T) {
	k := NewKraken("", "", "", "")
	raw := []byte(`[340,{"a":["64991.2","1","1.000"],"b":["64980.5","2","2.000"],"c":["64990.1","0.01"],"v":["100.5","2345.6"]},"ticker","XBT/USDT"]`)

	q, err := k.ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if q == nil {
		t.Fatal("ticker array produced no quote")
	}
	if q.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %q, want BTCUSDT (XBT mapped back)", q.Symbol)
	}
	if q.AskPrice != 64991.2 || q.BidPrice != 64980.5 || q.LastPrice != 64990.1 {
		t.Errorf("got quote %+v", q)
	}
	if q.Volume != 2345.6 {
		t.Errorf("volume = %v, want 24h figure 2345.6", q.Volume)
	}
}

func TestKrakenParseIgnoresObjectEvents(t *testing.T) {
	k := NewKraken("", "", "", "")
	for _, raw := range []string{
		`{"event":"heartbeat"}`,
		`{"event":"systemStatus","status":"online"}`,
		`{"event":"subscriptionStatus","status":"subscribed","pair":"XBT/USD"}`,
	} {
		q, err := k.ParseMessage([]byte(raw))
		if err != nil || q != nil {
			t.Errorf("%s: got quote=%v err=%v, want nil/nil", raw, q, err)
		}
	}
}

func TestKrakenParseIncompleteTicker(t *testing.T) {
	k := NewKraken("", "", "", "")
	raw := []byte(`[340,{"a":[],"b":["64980.5"],"c":["64990.1"]},"ticker","XBT/USD"]`)
	_, err := k.ParseMessage(raw)
	if !errors.Is(err, domain.ErrParse) {
		t.Errorf("got %v, want ErrParse", err)
	}
}

func TestKrakenPairMapping(t *testing.T) {
	k := NewKraken("", "", "", "")
	cases := map[string]string{
		"BTCUSDT": "XBT/USDT",
		"BTCUSD":  "XBT/USD",
		"ETHUSD":  "ETH/USD",
		"ETHEUR":  "ETH/EUR",
		"BTCINR":  "XBT/INR",
		"DOGEJPY": "DOGEJPY",
	}
	for symbol, want := range cases {
		if got := k.pair(symbol); got != want {
			t.Errorf("pair(%q) = %q, want %q", symbol, got, want)
		}
	}
}

func TestWazirXParseTicker(t *testing.T) {
	w := NewWazirX("", "", "", "")
	raw := []byte(`{"stream":"btcusdt@ticker","data":{"s":"btcusdt","b":"5400000.5","a":"5400100.2","l":"5400050.0","q":"321.7"}}`)

	q, err := w.ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if q == nil {
		t.Fatal("ticker envelope produced no quote")
	}
	if q.Exchange != "wazirx" || q.Symbol != "BTCUSDT" {
		t.Errorf("got exchange=%q symbol=%q", q.Exchange, q.Symbol)
	}
	if q.BidPrice != 5400000.5 || q.AskPrice != 5400100.2 || q.Volume != 321.7 {
		t.Errorf("got quote %+v", q)
	}
}

func TestWazirXParseIgnoresOtherStreams(t *testing.T) {
	w := NewWazirX("", "", "", "")
	q, err := w.ParseMessage([]byte(`{"stream":"btcusdt@depth","data":{}}`))
	if err != nil || q != nil {
		t.Errorf("depth stream: got quote=%v err=%v, want nil/nil", q, err)
	}
}

func TestWazirXParseBadNumbers(t *testing.T) {
	w := NewWazirX("", "", "", "")
	raw := []byte(`{"stream":"btcusdt@ticker","data":{"s":"btcusdt","b":"x","a":"1","l":"1","q":"1"}}`)
	_, err := w.ParseMessage(raw)
	if !errors.Is(err, domain.ErrParse) {
		t.Errorf("got %v, want ErrParse", err)
	}
}

func TestCoinDCXParseTicker(t *testing.T) {
	c := NewCoinDCX("", "", "", "")
	raw := []byte(`{"channel":"btcusdt@ticker","market":"BTCUSDT","bid":64980.5,"ask":64991.2,"last_price":64990.1,"volume":1234.5}`)

	q, err := c.ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if q == nil {
		t.Fatal("ticker message produced no quote")
	}
	if q.Exchange != "coindcx" || q.Symbol != "BTCUSDT" {
		t.Errorf("got exchange=%q symbol=%q", q.Exchange, q.Symbol)
	}
	if q.BidPrice != 64980.5 || q.AskPrice != 64991.2 {
		t.Errorf("got quote %+v", q)
	}
}

func TestCoinDCXParseIgnoresNonMarketEvents(t *testing.T) {
	c := NewCoinDCX("", "", "", "")
	q, err := c.ParseMessage([]byte(`{"event":"pong"}`))
	if err != nil || q != nil {
		t.Errorf("pong: got quote=%v err=%v, want nil/nil", q, err)
	}
}

func TestCoinDCXParseNonPositivePrices(t *testing.T) {
	c := NewCoinDCX("", "", "", "")
	raw := []byte(`{"market":"BTCUSDT","bid":0,"ask":64991.2,"last_price":64990.1,"volume":1234.5}`)
	_, err := c.ParseMessage(raw)
	if !errors.Is(err, domain.ErrParse) {
		t.Errorf("got %v, want ErrParse", err)
	}
}
