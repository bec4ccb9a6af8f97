// Package exchange contains the per-venue adapters. Each adapter knows its
// venue's WebSocket subscribe handshake, wire format, fee schedule, and REST
// order API, and normalizes everything to the canonical domain types.
package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/crossarb/crossarb/internal/domain"
)

// Adapter is the contract every venue implements. Adapters are selected by
// exchange identifier at startup and are safe for concurrent use.
type Adapter interface {
	// Name returns the lowercase exchange identifier, e.g. "binance".
	Name() string

	// WSURL returns the market-data WebSocket endpoint.
	WSURL() string

	// SubscribePayload builds the subscribe handshake for the given symbol.
	SubscribePayload(symbol string) ([]byte, error)

	// Heartbeat returns the application-level heartbeat payload and its
	// cadence. A nil payload means the venue only needs protocol pings.
	Heartbeat() ([]byte, time.Duration)

	// ParseMessage maps a raw wire message to a canonical Quote. It returns
	// (nil, nil) for message shapes that should be ignored and a ParseError
	// for malformed payloads of a known shape.
	ParseMessage(raw []byte) (*domain.Quote, error)

	// Fees returns the venue's trading fee schedule.
	Fees() FeeSchedule

	// EnsureAuth refreshes venue credentials when they are near expiry.
	// Venues with static HMAC keys return nil without any network call.
	EnsureAuth(ctx context.Context) error

	// PlaceOrder submits one order over the direct REST path.
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResponse, error)

	// SupportsBulk reports whether the venue exposes a bulk order endpoint.
	SupportsBulk() bool

	// PlaceOrders submits several orders in one batched call. Only called
	// when SupportsBulk is true.
	PlaceOrders(ctx context.Context, reqs []domain.OrderRequest) ([]domain.OrderResponse, error)
}

// Registry manages the named collection of venue adapters. It is safe for
// concurrent use.
type Registry struct {
	adapters map[string]Adapter
	mu       sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own name, replacing any previous entry.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get retrieves an adapter by exchange name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("exchange %q: not registered", name)
	}
	return a, nil
}

// List returns all registered exchange names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
