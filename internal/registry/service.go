package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/registry/internal/logging"
)

const (
	// MinQueryLength is the shortest accepted lookup query.
	MinQueryLength = 3

	// SearchLimit caps lookup results.
	SearchLimit = 10

	// DefaultPageSize and MaxPageSize bound admin listings.
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	BatchSize         int
	MaxReportedErrors int

	// ReportSkipped sets Outcome.Skipped to the number of rows the parser dropped.
	ReportSkipped bool

	MaxConcurrent int
	MaxWait       time.Duration

	// Timeout bounds one import. It is only observed between chunks.
	Timeout time.Duration

	// Now overrides the clock; used by tests.
	Now func() time.Time
}

// Service runs imports and the maintenance operations around them.
// It is safe for concurrent use.
type Service struct {
	backend Backend
	cfg     ServiceConfig
	limiter *ImportLimiter
	metrics *Metrics
}

// NewService creates a Service. A nil metrics records nothing externally.
func NewService(backend Backend, cfg ServiceConfig, metrics *Metrics) *Service {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Service{
		backend: backend,
		cfg:     cfg,
		limiter: NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		metrics: metrics,
	}
}

// Limiter exposes the import limiter for status reporting and shutdown.
func (s *Service) Limiter() *ImportLimiter {
	return s.limiter
}

// Import parses src and reconciles it into the backend.
//
// source names the input in logs. ErrEmptyImport is returned when no row
// survives parsing; the store is not touched in that case.
func (s *Service) Import(ctx context.Context, source string, src io.Reader) (*Outcome, error) {
	start := time.Now()
	importID := uuid.NewString()
	logger := logging.WithFields(ctx, "import_id", importID, "source", source)

	if err := s.limiter.Acquire(ctx); err != nil {
		s.metrics.ObserveImport(resultRejected, start, nil)
		logger.Warn("import rejected", "error", err)
		return nil, err
	}
	defer s.limiter.Release()
	s.metrics.ActiveImports.Inc()
	defer s.metrics.ActiveImports.Dec()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	parser := Parser{Now: s.cfg.Now}
	candidates, stats, err := parser.Parse(src)
	if err != nil {
		s.metrics.ObserveImport(resultFailed, start, nil)
		logger.Error("import parse failed", "error", err)
		return nil, err
	}
	s.metrics.ObserveParse(stats)
	logger.Info("import parsed",
		"rows", stats.Rows,
		"candidates", len(candidates),
		"skipped", stats.SkippedTotal(),
		"bytes", stats.Bytes,
	)

	if len(candidates) == 0 {
		s.metrics.ObserveImport(resultEmpty, start, nil)
		return nil, ErrEmptyImport
	}

	engine := NewEngine(s.backend, Options{
		BatchSize:         s.cfg.BatchSize,
		MaxReportedErrors: s.cfg.MaxReportedErrors,
		Now:               s.cfg.Now,
		Logger:            logger,
	})

	outcome, err := engine.Reconcile(ctx, candidates)
	if err != nil {
		result := resultFailed
		if errors.Is(err, ErrImportCancelled) {
			result = resultCancelled
		}
		s.metrics.ObserveImport(result, start, nil)
		logger.Error("import failed", "error", err)
		return nil, err
	}

	if s.cfg.ReportSkipped {
		skipped := stats.SkippedTotal()
		outcome.Skipped = &skipped
	}

	result := resultSuccess
	if outcome.Failed > 0 {
		result = resultPartial
	}
	s.metrics.ObserveImport(result, start, outcome)
	logger.Info("import completed",
		"total", outcome.Total,
		"inserted", outcome.Inserted,
		"updated", outcome.Updated,
		"failed_chunks", outcome.Failed,
		"rolled_back", outcome.RolledBack,
		"duration", outcome.Duration,
	)
	return outcome, nil
}

// Lookup finds records by exact tax ID or by name substring.
// Queries shorter than MinQueryLength return ErrQueryTooShort.
func (s *Service) Lookup(ctx context.Context, query string) ([]Record, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinQueryLength {
		return nil, ErrQueryTooShort
	}

	records, err := s.backend.Search(ctx, NormalizeTaxID(query), query, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return records, nil
}

// List returns one page of records, optionally filtered by search text.
func (s *Service) List(ctx context.Context, p ListParams) (Page, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	p.Search = strings.TrimSpace(p.Search)

	page, err := s.backend.List(ctx, p)
	if err != nil {
		return Page{}, fmt.Errorf("list records: %w", err)
	}
	return page, nil
}

// UpdateStatus sets the status of one record after validating it.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (Record, error) {
	if err := ValidateStatus(status); err != nil {
		return Record{}, err
	}

	rec, err := s.backend.UpdateStatus(ctx, id, status)
	if err != nil {
		return Record{}, fmt.Errorf("update status of %s: %w", id, err)
	}
	s.metrics.StatusUpdates.Inc()
	logging.FromContext(ctx).Info("status updated", "id", id, "status", status)
	return rec, nil
}

// Clear deletes every record. Imports never call this.
func (s *Service) Clear(ctx context.Context) (int64, error) {
	n, err := s.backend.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear registry: %w", err)
	}
	s.metrics.RegistryCleared.Inc()
	logging.FromContext(ctx).Warn("registry cleared", "deleted", n)
	return n, nil
}

// Ping checks that the backend is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}
