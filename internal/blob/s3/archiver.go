package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/crossarb/crossarb/internal/domain"
)

// Archiver moves aged opportunity and trade rows out of the primary store
// into object storage as JSONL files. Rows are deleted from the store only
// after the upload succeeds, so a failed sweep leaves the data in place for
// the next one.
type Archiver struct {
	writer    domain.BlobWriter
	opps      domain.OpportunityStore
	trades    domain.TradeStore
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an Archiver that sweeps on the given interval,
// archiving rows older than the retention window.
func NewArchiver(writer domain.BlobWriter, opps domain.OpportunityStore, trades domain.TradeStore, retention, interval time.Duration, logger *slog.Logger) *Archiver {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Archiver{
		writer:    writer,
		opps:      opps,
		trades:    trades,
		retention: retention,
		interval:  interval,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Run sweeps periodically until ctx is cancelled. Sweep errors are logged
// and the loop continues; archival is best-effort housekeeping.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.Sweep(ctx); err != nil {
				a.logger.Error("archive sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep archives and removes all rows older than the retention window.
func (a *Archiver) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-a.retention)

	oppCount, err := a.archiveOpportunities(ctx, cutoff)
	if err != nil {
		return err
	}
	tradeCount, err := a.archiveTrades(ctx, cutoff)
	if err != nil {
		return err
	}

	if oppCount > 0 || tradeCount > 0 {
		a.logger.Info("archive sweep complete",
			slog.Int64("opportunities", oppCount),
			slog.Int64("trades", tradeCount),
			slog.Time("cutoff", cutoff),
		)
	}
	return nil
}

func (a *Archiver) archiveOpportunities(ctx context.Context, cutoff time.Time) (int64, error) {
	opps, err := a.opps.ListBefore(ctx, cutoff, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(opps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities marshal: %w", err)
	}

	path := archivePath("opportunities", cutoff)
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities upload: %w", err)
	}

	deleted, err := a.opps.DeleteBefore(ctx, cutoff)
	if err != nil {
		return int64(len(opps)), fmt.Errorf("s3blob: archive opportunities delete: %w", err)
	}
	return deleted, nil
}

func (a *Archiver) archiveTrades(ctx context.Context, cutoff time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, cutoff, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", cutoff)
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	deleted, err := a.trades.DeleteBefore(ctx, cutoff)
	if err != nil {
		return int64(len(trades)), fmt.Errorf("s3blob: archive trades delete: %w", err)
	}
	return deleted, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month-day of the cutoff time.
//
//	archive/opportunities/2026-08-31.jsonl
//	archive/trades/2026-08-31.jsonl
func archivePath(kind string, cutoff time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, cutoff.Format("2006-01-02"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
