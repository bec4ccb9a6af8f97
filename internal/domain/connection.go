package domain

import "time"

// ConnectionStatus describes the health of one exchange feed connection.
type ConnectionStatus string

const (
	ConnStatusDisconnected ConnectionStatus = "disconnected"
	ConnStatusConnecting   ConnectionStatus = "connecting"
	ConnStatusConnected    ConnectionStatus = "connected"
	ConnStatusUnhealthy    ConnectionStatus = "unhealthy"
)

// CircuitBreakerState is the breaker sub-state of a connection. Once open,
// connection attempts are rejected until the cooldown has elapsed since the
// last failure.
type CircuitBreakerState struct {
	Failures      int
	LastFailureAt time.Time
	IsOpen        bool
}

// ConnectionState is a read-only snapshot of one exchange connection,
// mutated only by the feed manager.
type ConnectionState struct {
	Exchange       string
	Status         ConnectionStatus
	LastMessageAt  time.Time
	ReconnectCount int
	LatencyMs      []int64 // bounded recent samples, oldest first
	Breaker        CircuitBreakerState
}
