package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/crossarb/crossarb/internal/domain"
	"github.com/crossarb/crossarb/internal/notify"
)

const (
	// recordBatchSize flushes the opportunity buffer when it fills.
	recordBatchSize = 32

	// recordFlushInterval bounds how long a detected opportunity waits in
	// the buffer before hitting the database.
	recordFlushInterval = 2 * time.Second
)

// Recorder persists the detection and execution streams and forwards
// operator alerts. Persistence is off the hot path: the detector and engine
// never wait on the database.
type Recorder struct {
	opps    domain.OpportunityStore
	trades  domain.TradeStore
	alerter *notify.Alerter
	logger  *slog.Logger
}

// NewRecorder creates a Recorder. Stores may be nil, in which case the
// corresponding stream is forwarded without persistence.
func NewRecorder(opps domain.OpportunityStore, trades domain.TradeStore, alerter *notify.Alerter, logger *slog.Logger) *Recorder {
	return &Recorder{
		opps:    opps,
		trades:  trades,
		alerter: alerter,
		logger:  logger.With(slog.String("component", "recorder")),
	}
}

// RecordOpportunities tees the detection stream: every opportunity is
// buffered for batched insertion and forwarded to out. A nil out records
// without forwarding (monitor mode). Returns when in closes or ctx is
// cancelled, after a final flush.
func (r *Recorder) RecordOpportunities(ctx context.Context, in <-chan domain.Opportunity, out chan<- domain.Opportunity) error {
	var buf []domain.Opportunity
	ticker := time.NewTicker(recordFlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(buf) == 0 || r.opps == nil {
			buf = buf[:0]
			return
		}
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.opps.InsertBatch(flushCtx, buf); err != nil {
			r.logger.Error("opportunity batch insert failed",
				slog.Int("count", len(buf)),
				slog.String("error", err.Error()),
			)
		}
		cancel()
		buf = buf[:0]
	}
	defer flush()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			flush()
		case opp, ok := <-in:
			if !ok {
				return nil
			}
			buf = append(buf, opp)
			if len(buf) >= recordBatchSize {
				flush()
			}
			if out != nil {
				select {
				case out <- opp:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// RecordResults persists reconciled execution results and raises operator
// alerts. Returns when in closes or ctx is cancelled.
func (r *Recorder) RecordResults(ctx context.Context, in <-chan domain.ExecutionResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok := <-in:
			if !ok {
				return nil
			}
			r.record(ctx, result)
		}
	}
}

func (r *Recorder) record(ctx context.Context, result domain.ExecutionResult) {
	if r.trades != nil {
		trade := tradeFromResult(result)
		insertCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.trades.InsertBatch(insertCtx, []domain.ExecutedTrade{trade}); err != nil {
			r.logger.Error("trade insert failed",
				slog.String("opportunity_id", result.OpportunityID),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}

	if r.alerter != nil {
		if err := r.alerter.ExecutionResult(ctx, result); err != nil {
			r.logger.Warn("execution alert failed",
				slog.String("opportunity_id", result.OpportunityID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func tradeFromResult(result domain.ExecutionResult) domain.ExecutedTrade {
	buyEx, sellEx := splitRoute(result.Route)
	return domain.ExecutedTrade{
		ID:            uuid.New().String(),
		OpportunityID: result.OpportunityID,
		Symbol:        result.Symbol,
		BuyExchange:   buyEx,
		SellExchange:  sellEx,
		BuyPrice:      result.Buy.ExecutedPrice,
		SellPrice:     result.Sell.ExecutedPrice,
		Amount:        result.Buy.ExecutedAmount,
		Fees:          result.Buy.Fees + result.Sell.Fees,
		RealizedPnL:   result.RealizedPnL,
		Status:        result.Status,
		LatencyMs:     result.LatencyMs,
		ExecutedAt:    result.Timestamp,
	}
}

func splitRoute(route string) (buy, sell string) {
	for i := 0; i < len(route); i++ {
		if route[i] == '>' {
			return route[:i], route[i+1:]
		}
	}
	return route, ""
}
