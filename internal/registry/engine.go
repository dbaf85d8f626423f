package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultBatchSize is the number of candidates written per transaction.
	DefaultBatchSize = 100

	// DefaultMaxReportedErrors caps Outcome.Errors.
	DefaultMaxReportedErrors = 10
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	// BatchSize bounds the candidates committed per transaction. A failing
	// write rolls back its whole chunk, so BatchSize = 1 gives per-row
	// atomicity at the cost of one transaction per row.
	BatchSize int

	// MaxReportedErrors caps the write failures listed in the Outcome.
	MaxReportedErrors int

	// Now is the clock used for the registration date fallback.
	Now func() time.Time

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxReportedErrors <= 0 {
		o.MaxReportedErrors = DefaultMaxReportedErrors
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Engine writes candidates into a Store in chunked transactions.
// It holds no state between runs and never deletes records.
type Engine struct {
	store Store
	opts  Options
}

// NewEngine creates an Engine writing through store.
func NewEngine(store Store, opts Options) *Engine {
	return &Engine{store: store, opts: opts.withDefaults()}
}

// chunkResult is what one committed or rolled-back chunk contributes.
type chunkResult struct {
	inserted int
	updated  int
	failure  *RowError
}

// Reconcile upserts candidates in input order, BatchSize at a time.
//
// A write failure rolls back its chunk, is recorded in the Outcome and does
// not stop later chunks. Cancellation is checked between chunks only and
// returns ErrImportCancelled. A Begin or Commit failure returns an error
// wrapping ErrStoreUnavailable. In both error cases chunks that already
// committed stay committed and no Outcome is returned.
func (e *Engine) Reconcile(ctx context.Context, candidates []Candidate) (*Outcome, error) {
	start := time.Now()
	today := processingDate(e.opts.Now())
	size := e.opts.BatchSize
	totalChunks := (len(candidates) + size - 1) / size

	outcome := &Outcome{Total: len(candidates)}

	for offset := 0; offset < len(candidates); offset += size {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w after %d of %d chunks: %w", ErrImportCancelled, outcome.Chunks, totalChunks, err)
		}

		end := min(offset+size, len(candidates))
		chunk := candidates[offset:end]

		res, err := e.runChunk(ctx, chunk, today)
		if err != nil {
			return nil, fmt.Errorf("chunk %d (rows %d-%d): %w", outcome.Chunks+1, offset+1, end, err)
		}
		outcome.Chunks++

		if res.failure != nil {
			outcome.Failed++
			outcome.RolledBack += len(chunk)
			if len(outcome.Errors) < e.opts.MaxReportedErrors {
				outcome.Errors = append(outcome.Errors, *res.failure)
			}
			e.opts.Logger.Warn("chunk rolled back",
				"chunk", outcome.Chunks,
				"line", res.failure.Line,
				"label", res.failure.Label,
				"error", res.failure.Message,
			)
			continue
		}

		outcome.Inserted += res.inserted
		outcome.Updated += res.updated
		e.opts.Logger.Debug("chunk committed",
			"chunk", outcome.Chunks,
			"inserted", res.inserted,
			"updated", res.updated,
		)
	}

	outcome.Duration = time.Since(start)
	return outcome, nil
}

// runChunk writes one chunk in its own transaction. A write failure is
// returned in chunkResult.failure; only Begin and Commit failures are errors.
func (e *Engine) runChunk(ctx context.Context, chunk []Candidate, today time.Time) (chunkResult, error) {
	// A started chunk runs to commit or rollback even if ctx is cancelled.
	ctx = context.WithoutCancel(ctx)

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return chunkResult{}, fmt.Errorf("%w: begin: %w", ErrStoreUnavailable, err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			e.opts.Logger.Error("rollback failed", "error", rbErr)
		}
	}()

	var res chunkResult
	for _, c := range chunk {
		written, err := tx.Upsert(ctx, toRecord(c, today))
		if err == nil {
			switch written {
			case WriteInserted:
				res.inserted++
				continue
			case WriteUpdated:
				res.updated++
				continue
			default:
				err = fmt.Errorf("unexpected write result %v", written)
			}
		}
		return chunkResult{failure: &RowError{
			Label:   c.FullName,
			Message: err.Error(),
			Line:    c.Line,
		}}, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return chunkResult{}, fmt.Errorf("%w: commit: %w", ErrStoreUnavailable, err)
	}
	committed = true
	return res, nil
}

// toRecord converts a candidate, substituting today for a missing date.
func toRecord(c Candidate, today time.Time) Record {
	date := today
	if c.RegistrationDate.Valid {
		date = c.RegistrationDate.Time
	}
	return Record{
		FullName:         c.FullName,
		TaxID:            c.TaxID,
		CredentialNumber: c.CredentialNumber,
		Status:           c.Status,
		Formation:        c.Formation,
		City:             c.City,
		State:            c.State,
		RegistrationDate: date,
	}
}
