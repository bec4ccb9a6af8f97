package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crossarb/crossarb/internal/domain"
	"github.com/crossarb/crossarb/internal/exchange"
)

// stubAdapter is a minimal venue for connection tests.
type stubAdapter struct {
	wsURL string
}

func (s *stubAdapter) Name() string                               { return "stub" }
func (s *stubAdapter) WSURL() string                              { return s.wsURL }
func (s *stubAdapter) SubscribePayload(string) ([]byte, error)    { return []byte(`{"op":"subscribe"}`), nil }
func (s *stubAdapter) Heartbeat() ([]byte, time.Duration)         { return nil, 0 }
func (s *stubAdapter) ParseMessage([]byte) (*domain.Quote, error) { return nil, nil }
func (s *stubAdapter) Fees() exchange.FeeSchedule                 { return exchange.FeeSchedule{} }
func (s *stubAdapter) EnsureAuth(context.Context) error           { return nil }
func (s *stubAdapter) SupportsBulk() bool                         { return false }

func (s *stubAdapter) PlaceOrder(context.Context, domain.OrderRequest) (domain.OrderResponse, error) {
	return domain.OrderResponse{}, nil
}

func (s *stubAdapter) PlaceOrders(context.Context, []domain.OrderRequest) ([]domain.OrderResponse, error) {
	return nil, nil
}

var _ exchange.Adapter = (*stubAdapter)(nil)

func testFeedLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wsServer runs handler against every accepted WebSocket connection.
func wsServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()
		handler(ws)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestBackoffDelaySequence(t *testing.T) {
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		attempt := i + 1
		got := backoffDelay(attempt, defaultBaseBackoff, defaultMaxBackoff)
		if got != w {
			t.Errorf("backoffDelay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestBackoffDelayClampsAttempt(t *testing.T) {
	if got := backoffDelay(0, defaultBaseBackoff, defaultMaxBackoff); got != defaultBaseBackoff {
		t.Errorf("backoffDelay(0) = %v, want base %v", got, defaultBaseBackoff)
	}
	if got := backoffDelay(-3, defaultBaseBackoff, defaultMaxBackoff); got != defaultBaseBackoff {
		t.Errorf("backoffDelay(-3) = %v, want base %v", got, defaultBaseBackoff)
	}
}

func TestBackoffDelayBaseAboveCap(t *testing.T) {
	if got := backoffDelay(1, time.Minute, 30*time.Second); got != 30*time.Second {
		t.Errorf("backoffDelay with base above cap = %v, want cap", got)
	}
}

func TestSendBoundsQueueWhileDisconnected(t *testing.T) {
	c := newConn(&stubAdapter{}, "BTCUSDT", connEvents{}, testFeedLogger())
	for i := 0; i < maxQueuedMessages+6; i++ {
		c.Send([]byte(fmt.Sprintf("msg-%d", i)))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) != maxQueuedMessages {
		t.Fatalf("queue length = %d, want %d", len(c.queue), maxQueuedMessages)
	}
	// Overflow drops the oldest entries.
	if got := string(c.queue[0].payload); got != "msg-6" {
		t.Errorf("oldest queued = %q, want msg-6", got)
	}
}

func TestFlushQueueReplaysInOrder(t *testing.T) {
	received := make(chan string, 8)
	srv := wsServer(t, func(ws *websocket.Conn) {
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			received <- string(msg)
		}
	})
	defer srv.Close()

	c := newConn(&stubAdapter{}, "BTCUSDT", connEvents{}, testFeedLogger())
	c.Send([]byte("first"))
	c.Send([]byte("second"))
	c.Send([]byte("third"))

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	c.flushQueue(ws)

	for _, want := range []string{"first", "second", "third"} {
		select {
		case got := <-received:
			if got != want {
				t.Fatalf("flushed %q, want %q", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("queued message %q never flushed", want)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) != 0 {
		t.Errorf("queue length after flush = %d, want 0", len(c.queue))
	}
}

func TestFlushQueueDropsPastRetryCeiling(t *testing.T) {
	srv := wsServer(t, func(ws *websocket.Conn) {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	ws.Close() // every write from here on fails

	c := newConn(&stubAdapter{}, "BTCUSDT", connEvents{}, testFeedLogger())
	c.Send([]byte("stuck"))

	for i := 1; i <= maxSendRetries; i++ {
		c.flushQueue(ws)
		c.mu.Lock()
		n := len(c.queue)
		c.mu.Unlock()
		if n != 1 {
			t.Fatalf("after %d failed flushes queue length = %d, want 1", i, n)
		}
	}

	c.flushQueue(ws)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) != 0 {
		t.Errorf("message survived %d failed flushes, want dropped", maxSendRetries+1)
	}
}

func TestReconnectCountSkipsFirstSession(t *testing.T) {
	srv := wsServer(t, func(ws *websocket.Conn) {
		// Consume the subscribe, then end the session normally.
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})
	defer srv.Close()

	c := newConn(&stubAdapter{wsURL: wsURL(srv)}, "BTCUSDT", connEvents{}, testFeedLogger())

	if err := c.runOnce(context.Background()); err != nil {
		t.Fatalf("first session: %v", err)
	}
	if got := c.State().ReconnectCount; got != 0 {
		t.Fatalf("reconnect count after first connect = %d, want 0", got)
	}

	if err := c.runOnce(context.Background()); err != nil {
		t.Fatalf("second session: %v", err)
	}
	if got := c.State().ReconnectCount; got != 1 {
		t.Errorf("reconnect count after one reconnect = %d, want 1", got)
	}
}

func TestDialFailureIsConnectionError(t *testing.T) {
	var fired error
	events := connEvents{onConnectionError: func(_ string, err error) { fired = err }}
	c := newConn(&stubAdapter{wsURL: "ws://127.0.0.1:1"}, "BTCUSDT", events, testFeedLogger())

	err := c.runOnce(context.Background())
	if !errors.Is(err, domain.ErrConnection) {
		t.Fatalf("runOnce error = %v, want ErrConnection", err)
	}
	if !errors.Is(fired, domain.ErrConnection) {
		t.Errorf("connection error event = %v, want ErrConnection", fired)
	}
}

func TestCircuitOpenEmitsConnectionError(t *testing.T) {
	var fired error
	events := connEvents{onConnectionError: func(_ string, err error) { fired = err }}
	c := newConn(&stubAdapter{wsURL: "ws://127.0.0.1:1"}, "BTCUSDT", events, testFeedLogger())

	now := time.Now()
	for i := 0; i < breakerThreshold; i++ {
		c.breaker.RecordFailure(now)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run returned %v, want deadline exceeded", err)
	}
	if !errors.Is(fired, domain.ErrCircuitOpen) {
		t.Errorf("connection error event = %v, want ErrCircuitOpen", fired)
	}
}
