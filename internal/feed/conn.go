package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crossarb/crossarb/internal/domain"
	"github.com/crossarb/crossarb/internal/exchange"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends protocol pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// defaultBaseBackoff and defaultMaxBackoff bound the reconnect delay
	// sequence base*2^(attempt-1).
	defaultBaseBackoff = time.Second
	defaultMaxBackoff  = 30 * time.Second

	// maxQueuedMessages bounds the outbound queue held while disconnected.
	maxQueuedMessages = 64

	// maxSendRetries is the per-message flush retry ceiling.
	maxSendRetries = 3

	// latencySampleSize bounds the ping round-trip sample ring.
	latencySampleSize = 100
)

// connEvents are the hooks the manager installs on each connection.
type connEvents struct {
	onQuote           func(domain.Quote)
	onConnected       func(exchange string)
	onDisconnected    func(exchange string, err error)
	onParseError      func(exchange string, err error)
	onConnectionError func(exchange string, err error)
}

type queuedMessage struct {
	payload []byte
	retries int
}

// Conn manages the persistent WebSocket connection for one exchange:
// subscribe handshake, heartbeats, reconnection with exponential backoff,
// circuit breaking, and parsing of inbound messages into Quotes.
type Conn struct {
	adapter     exchange.Adapter
	symbol      string
	events      connEvents
	logger      *slog.Logger
	baseBackoff time.Duration
	maxBackoff  time.Duration

	breaker *breaker
	latency *domain.LatencyRing

	mu             sync.Mutex
	ws             *websocket.Conn
	status         domain.ConnectionStatus
	lastMessageAt  time.Time
	everConnected  bool
	reconnectCount int
	attempt        int
	queue          []queuedMessage
	lastPingAt     time.Time
}

func newConn(adapter exchange.Adapter, symbol string, events connEvents, logger *slog.Logger) *Conn {
	return &Conn{
		adapter:     adapter,
		symbol:      symbol,
		events:      events,
		logger:      logger.With(slog.String("exchange", adapter.Name())),
		baseBackoff: defaultBaseBackoff,
		maxBackoff:  defaultMaxBackoff,
		breaker:     newBreaker(),
		latency:     domain.NewLatencyRing(latencySampleSize),
		status:      domain.ConnStatusDisconnected,
	}
}

// backoffDelay returns min(base * 2^(attempt-1), cap) for attempt >= 1.
func backoffDelay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}

// Run drives the connection until ctx is cancelled. Abnormal closes trigger
// reconnection with exponential backoff; repeated connect failures trip the
// circuit breaker.
func (c *Conn) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if wait, ok := c.breakerWait(); !ok {
			c.logger.Warn("circuit breaker open, holding connection attempts",
				slog.Duration("wait", wait))
			if c.events.onConnectionError != nil {
				c.events.onConnectionError(c.adapter.Name(),
					fmt.Errorf("feed: %s: %w", c.adapter.Name(), domain.ErrCircuitOpen))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			// Normal close from the venue side; we are done.
			return nil
		}

		c.mu.Lock()
		c.attempt++
		attempt := c.attempt
		c.mu.Unlock()

		delay := backoffDelay(attempt, c.baseBackoff, c.maxBackoff)
		c.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// breakerWait returns (remaining cooldown, false) when attempts are blocked.
func (c *Conn) breakerWait() (time.Duration, bool) {
	now := time.Now()
	if c.breaker.Allow(now) {
		return 0, true
	}
	st := c.breaker.State()
	wait := breakerCooldown - now.Sub(st.LastFailureAt)
	if wait < time.Second {
		wait = time.Second
	}
	return wait, false
}

// runOnce dials, subscribes, and reads until the connection drops. It
// returns nil only on a normal close.
func (c *Conn) runOnce(ctx context.Context) error {
	c.setStatus(domain.ConnStatusConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	ws, _, err := dialer.DialContext(dialCtx, c.adapter.WSURL(), nil)
	cancel()
	if err != nil {
		c.breaker.RecordFailure(time.Now())
		c.setStatus(domain.ConnStatusDisconnected)
		connErr := fmt.Errorf("feed: %s: connect: %w: %w", c.adapter.Name(), domain.ErrConnection, err)
		if c.events.onConnectionError != nil {
			c.events.onConnectionError(c.adapter.Name(), connErr)
		}
		return connErr
	}

	c.mu.Lock()
	c.ws = ws
	c.attempt = 0
	c.lastMessageAt = time.Now()
	// Only count reconnects, not the first session.
	if c.everConnected {
		c.reconnectCount++
	}
	c.everConnected = true
	c.mu.Unlock()
	c.breaker.Reset()
	c.setStatus(domain.ConnStatusConnected)

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		c.recordPong()
		return nil
	})

	if c.events.onConnected != nil {
		c.events.onConnected(c.adapter.Name())
	}

	if err := c.subscribe(ws); err != nil {
		ws.Close()
		c.setStatus(domain.ConnStatusDisconnected)
		return err
	}
	c.flushQueue(ws)

	stopHeartbeat := make(chan struct{})
	go c.heartbeatLoop(ws, stopHeartbeat)

	readErr := c.readLoop(ctx, ws)
	close(stopHeartbeat)
	ws.Close()

	c.mu.Lock()
	c.ws = nil
	c.mu.Unlock()
	c.setStatus(domain.ConnStatusDisconnected)

	if c.events.onDisconnected != nil {
		c.events.onDisconnected(c.adapter.Name(), readErr)
	}

	if websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return readErr
}

// subscribe sends the venue-specific handshake for the configured symbol.
func (c *Conn) subscribe(ws *websocket.Conn) error {
	payload, err := c.adapter.SubscribePayload(c.symbol)
	if err != nil {
		return fmt.Errorf("feed: %s: build subscribe: %w", c.adapter.Name(), err)
	}
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("feed: %s: subscribe: %w", c.adapter.Name(), err)
	}
	c.logger.Info("subscribed", slog.String("symbol", c.symbol))
	return nil
}

// readLoop reads and dispatches messages until the connection fails. Parse
// failures are isolated to the offending message.
func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, message, err := ws.ReadMessage()
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.lastMessageAt = time.Now()
		c.mu.Unlock()

		quote, perr := c.adapter.ParseMessage(message)
		if perr != nil {
			if c.events.onParseError != nil {
				c.events.onParseError(c.adapter.Name(), perr)
			}
			continue
		}
		if quote == nil {
			continue
		}
		if c.events.onQuote != nil {
			c.events.onQuote(*quote)
		}
	}
}

// heartbeatLoop sends protocol pings and, when the venue wants one, an
// application-level heartbeat payload at its own cadence.
func (c *Conn) heartbeatLoop(ws *websocket.Conn, stop <-chan struct{}) {
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	hbPayload, hbInterval := c.adapter.Heartbeat()
	var hbC <-chan time.Time
	if hbPayload != nil && hbInterval > 0 {
		hbTicker := time.NewTicker(hbInterval)
		defer hbTicker.Stop()
		hbC = hbTicker.C
	}

	for {
		select {
		case <-stop:
			return
		case <-pingTicker.C:
			c.mu.Lock()
			c.lastPingAt = time.Now()
			c.mu.Unlock()
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-hbC:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, hbPayload); err != nil {
				return
			}
		}
	}
}

// recordPong samples the ping round-trip time.
func (c *Conn) recordPong() {
	c.mu.Lock()
	pingAt := c.lastPingAt
	c.mu.Unlock()
	if pingAt.IsZero() {
		return
	}
	c.latency.Add(time.Since(pingAt).Milliseconds())
}

// Send writes a control message now when connected, otherwise enqueues it
// for the next reconnect. The queue is bounded; overflow drops the oldest
// entry with a warning.
func (c *Conn) Send(payload []byte) {
	c.mu.Lock()
	ws := c.ws
	connected := c.status == domain.ConnStatusConnected
	c.mu.Unlock()

	if connected && ws != nil {
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.TextMessage, payload); err == nil {
			return
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) >= maxQueuedMessages {
		c.queue = c.queue[1:]
		c.logger.Warn("outbound queue full, dropping oldest message")
	}
	c.queue = append(c.queue, queuedMessage{payload: payload})
}

// flushQueue replays queued control messages after a reconnect. Messages
// past the retry ceiling are dropped with a warning.
func (c *Conn) flushQueue(ws *websocket.Conn) {
	c.mu.Lock()
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	var requeue []queuedMessage
	for _, m := range pending {
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.TextMessage, m.payload); err != nil {
			m.retries++
			if m.retries > maxSendRetries {
				c.logger.Warn("dropping queued message past retry ceiling",
					slog.Int("retries", m.retries))
				continue
			}
			requeue = append(requeue, m)
		}
	}
	if len(requeue) > 0 {
		c.mu.Lock()
		c.queue = append(requeue, c.queue...)
		c.mu.Unlock()
	}
}

// ForceReconnect tears down the current socket so Run reconnects. Used by
// the manager's health sweep when a connection has gone quiet.
func (c *Conn) ForceReconnect() {
	c.mu.Lock()
	ws := c.ws
	c.status = domain.ConnStatusUnhealthy
	c.mu.Unlock()
	if ws != nil {
		ws.Close()
	}
}

func (c *Conn) setStatus(s domain.ConnectionStatus) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// State returns a read-only snapshot of the connection.
func (c *Conn) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.ConnectionState{
		Exchange:       c.adapter.Name(),
		Status:         c.status,
		LastMessageAt:  c.lastMessageAt,
		ReconnectCount: c.reconnectCount,
		LatencyMs:      c.latency.Values(),
		Breaker:        c.breaker.State(),
	}
}
