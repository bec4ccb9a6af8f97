package executor

import (
	"sync"

	"github.com/crossarb/crossarb/internal/domain"
)

// latencyWindowSize bounds the per-exchange rolling latency window.
const latencyWindowSize = 100

// Metrics aggregates execution statistics: per-exchange rolling latency,
// order counts, fastest/slowest execution, and cumulative realized P&L.
// Safe for concurrent use.
type Metrics struct {
	mu          sync.Mutex
	perExchange map[string]*domain.LatencyRing

	totalOrders      int64
	successfulOrders int64
	fastestMs        int64
	slowestMs        int64
	cumulativePnL    float64
}

// MetricsSnapshot is a point-in-time copy for status reporting.
type MetricsSnapshot struct {
	TotalOrders      int64
	SuccessfulOrders int64
	FastestMs        int64
	SlowestMs        int64
	CumulativePnL    float64
	AvgLatencyMs     map[string]float64
}

// NewMetrics returns an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		perExchange: make(map[string]*domain.LatencyRing),
		fastestMs:   -1,
	}
}

// RecordOrder accounts one order outcome and its latency sample.
func (m *Metrics) RecordOrder(exchange string, latencyMs int64, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ring, ok := m.perExchange[exchange]
	if !ok {
		ring = domain.NewLatencyRing(latencyWindowSize)
		m.perExchange[exchange] = ring
	}
	ring.Add(latencyMs)

	m.totalOrders++
	if success {
		m.successfulOrders++
	}
	if m.fastestMs < 0 || latencyMs < m.fastestMs {
		m.fastestMs = latencyMs
	}
	if latencyMs > m.slowestMs {
		m.slowestMs = latencyMs
	}
}

// RecordPnL adds a realized profit or loss to the cumulative total.
func (m *Metrics) RecordPnL(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cumulativePnL += pnl
}

// AvgLatency returns the rolling average latency for an exchange in
// milliseconds, or 0 when no samples exist.
func (m *Metrics) AvgLatency(exchange string) float64 {
	m.mu.Lock()
	ring, ok := m.perExchange[exchange]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	return ring.Average()
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	avg := make(map[string]float64, len(m.perExchange))
	for ex, ring := range m.perExchange {
		avg[ex] = ring.Average()
	}
	fastest := m.fastestMs
	if fastest < 0 {
		fastest = 0
	}
	return MetricsSnapshot{
		TotalOrders:      m.totalOrders,
		SuccessfulOrders: m.successfulOrders,
		FastestMs:        fastest,
		SlowestMs:        m.slowestMs,
		CumulativePnL:    m.cumulativePnL,
		AvgLatencyMs:     avg,
	}
}
