package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConnection     = errors.New("connection failed")
	ErrParse          = errors.New("malformed exchange message")
	ErrInvalidOrder   = errors.New("invalid order parameters")
	ErrRateLimited    = errors.New("rate limited")
	ErrExecution      = errors.New("venue rejected order")
	ErrPartialFill    = errors.New("one leg filled, the other failed")
	ErrCircuitOpen    = errors.New("circuit breaker open")
	ErrOrderTimeout   = errors.New("order timed out")
	ErrEngineStopped  = errors.New("engine stopped")
	ErrAuthExpired    = errors.New("authentication expired")
	ErrUnhealthyVenue = errors.New("exchange latency above threshold")
	ErrLockHeld       = errors.New("lock already held")
)

// ExchangeError wraps a venue-specific failure with its exchange identifier
// so callers can degrade a single venue without inspecting message text.
type ExchangeError struct {
	Exchange string
	Op       string
	Err      error
}

func (e *ExchangeError) Error() string {
	return e.Exchange + ": " + e.Op + ": " + e.Err.Error()
}

func (e *ExchangeError) Unwrap() error { return e.Err }
