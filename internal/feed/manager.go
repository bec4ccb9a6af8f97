// Package feed maintains live quote data per exchange with bounded
// staleness and automatic recovery. It owns every feed connection and is the
// single writer of the quote set; other components read immutable snapshots
// and subscribe to its events.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crossarb/crossarb/internal/domain"
	"github.com/crossarb/crossarb/internal/exchange"
)

const (
	// healthSweepInterval is how often connections are checked for silence.
	healthSweepInterval = 30 * time.Second

	// staleAfter marks a connection unhealthy when no message arrived
	// within this window, forcing a reconnect.
	staleAfter = 2 * time.Minute
)

// QuoteHandler receives every parsed quote.
type QuoteHandler func(domain.Quote)

// ExchangeEventHandler receives connection lifecycle events.
type ExchangeEventHandler func(exchange string)

// ExchangeErrorHandler receives per-exchange failures.
type ExchangeErrorHandler func(exchange string, err error)

// Manager owns one Conn per enabled exchange and fans parsed quotes out to
// registered handlers and the quote cache.
type Manager struct {
	registry *exchange.Registry
	symbol   string
	cache    domain.QuoteCache
	cacheTTL time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	quotes domain.QuoteSet
	conns  map[string]*Conn

	handlerMu         sync.RWMutex
	quoteHandlers     []QuoteHandler
	connectedHandlers []ExchangeEventHandler
	disconnectHandler []ExchangeErrorHandler
	parseErrHandlers  []ExchangeErrorHandler
	connErrHandlers   []ExchangeErrorHandler
}

// NewManager creates a Manager for the given enabled exchanges and symbol.
// cache may be nil when no read-through mirror is wanted.
func NewManager(registry *exchange.Registry, enabled []string, symbol string, cache domain.QuoteCache, cacheTTL time.Duration, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		registry: registry,
		symbol:   symbol,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger.With(slog.String("component", "feed_manager")),
		quotes:   make(domain.QuoteSet),
		conns:    make(map[string]*Conn),
	}

	for _, name := range enabled {
		adapter, err := registry.Get(name)
		if err != nil {
			return nil, err
		}
		events := connEvents{
			onQuote:           m.handleQuote,
			onConnected:       m.fireConnected,
			onDisconnected:    m.fireDisconnected,
			onParseError:      m.fireParseError,
			onConnectionError: m.fireConnectionError,
		}
		m.conns[name] = newConn(adapter, symbol, events, logger)
	}
	return m, nil
}

// OnQuote registers a handler called for every parsed quote.
func (m *Manager) OnQuote(h QuoteHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.quoteHandlers = append(m.quoteHandlers, h)
}

// OnConnected registers a handler for successful (re)connects.
func (m *Manager) OnConnected(h ExchangeEventHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.connectedHandlers = append(m.connectedHandlers, h)
}

// OnDisconnected registers a handler for connection drops.
func (m *Manager) OnDisconnected(h ExchangeErrorHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.disconnectHandler = append(m.disconnectHandler, h)
}

// OnParseError registers a handler for malformed message events.
func (m *Manager) OnParseError(h ExchangeErrorHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.parseErrHandlers = append(m.parseErrHandlers, h)
}

// OnConnectionError registers a handler for failed connect attempts.
func (m *Manager) OnConnectionError(h ExchangeErrorHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.connErrHandlers = append(m.connErrHandlers, h)
}

// Run starts every connection plus the health sweep and blocks until ctx is
// cancelled. A single exchange failing does not stop the others; the
// detector simply stops seeing fresh quotes from that venue.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("feed manager started", slog.Int("exchanges", len(m.conns)))
	defer m.logger.Info("feed manager stopped")

	g, gctx := errgroup.WithContext(ctx)
	for name, conn := range m.conns {
		name, conn := name, conn
		g.Go(func() error {
			if err := conn.Run(gctx); err != nil && gctx.Err() == nil {
				m.logger.Error("feed connection exited",
					slog.String("exchange", name),
					slog.String("error", err.Error()),
				)
			}
			// Keep the group alive: one venue going away is degradation,
			// not shutdown.
			<-gctx.Done()
			return gctx.Err()
		})
	}
	g.Go(func() error {
		return m.healthSweep(gctx)
	})
	return g.Wait()
}

// healthSweep forces a reconnect for any connected venue that has been
// silent past the staleness bound.
func (m *Manager) healthSweep(ctx context.Context) error {
	ticker := time.NewTicker(healthSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now()
			for name, conn := range m.conns {
				st := conn.State()
				if st.Status != domain.ConnStatusConnected {
					continue
				}
				if st.LastMessageAt.IsZero() || now.Sub(st.LastMessageAt) < staleAfter {
					continue
				}
				m.logger.Warn("connection stale, forcing reconnect",
					slog.String("exchange", name),
					slog.Time("last_message", st.LastMessageAt),
				)
				conn.ForceReconnect()
			}
		}
	}
}

// handleQuote stores the quote (each connection writes only its own key),
// mirrors it to the cache, and fans it out to subscribers.
func (m *Manager) handleQuote(q domain.Quote) {
	m.mu.Lock()
	m.quotes[q.Exchange] = q
	m.mu.Unlock()

	if m.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := m.cache.SetQuote(ctx, q, m.cacheTTL); err != nil {
			m.logger.Debug("quote cache write failed",
				slog.String("exchange", q.Exchange),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}

	m.handlerMu.RLock()
	handlers := m.quoteHandlers
	m.handlerMu.RUnlock()
	for _, h := range handlers {
		h(q)
	}
}

// Snapshot returns a copy of the latest quote per exchange. There is no
// cross-exchange consistency guarantee; staleness is bounded per quote via
// ReceivedAt.
func (m *Manager) Snapshot() domain.QuoteSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(domain.QuoteSet, len(m.quotes))
	for k, v := range m.quotes {
		out[k] = v
	}
	return out
}

// ConnectionStates returns a snapshot of every connection for monitoring.
func (m *Manager) ConnectionStates() []domain.ConnectionState {
	states := make([]domain.ConnectionState, 0, len(m.conns))
	for _, conn := range m.conns {
		states = append(states, conn.State())
	}
	return states
}

// SendControl queues or sends an outbound control message on one exchange's
// connection.
func (m *Manager) SendControl(exchangeName string, payload []byte) {
	if conn, ok := m.conns[exchangeName]; ok {
		conn.Send(payload)
	}
}

func (m *Manager) fireConnected(ex string) {
	m.logger.Info("exchange connected", slog.String("exchange", ex))
	m.handlerMu.RLock()
	handlers := m.connectedHandlers
	m.handlerMu.RUnlock()
	for _, h := range handlers {
		h(ex)
	}
}

func (m *Manager) fireDisconnected(ex string, err error) {
	m.handlerMu.RLock()
	handlers := m.disconnectHandler
	m.handlerMu.RUnlock()
	for _, h := range handlers {
		h(ex, err)
	}
}

func (m *Manager) fireParseError(ex string, err error) {
	m.logger.Debug("parse error", slog.String("exchange", ex), slog.String("error", err.Error()))
	m.handlerMu.RLock()
	handlers := m.parseErrHandlers
	m.handlerMu.RUnlock()
	for _, h := range handlers {
		h(ex, err)
	}
}

func (m *Manager) fireConnectionError(ex string, err error) {
	m.handlerMu.RLock()
	handlers := m.connErrHandlers
	m.handlerMu.RUnlock()
	for _, h := range handlers {
		h(ex, err)
	}
}
