// Package memory is an in-process registry backend.
//
// Transactions are serialized: Begin blocks until the previous transaction
// commits or rolls back. Writes are staged per transaction and only become
// visible on Commit.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/registry/internal/registry"
)

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("memory: transaction already finished")

// Store holds records keyed by tax ID.
type Store struct {
	txSlot chan struct{}

	mu      sync.RWMutex
	records map[string]registry.Record

	now func() time.Time
}

// New creates an empty store. A nil now uses time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		txSlot:  make(chan struct{}, 1),
		records: make(map[string]registry.Record),
		now:     now,
	}
}

// Begin waits for exclusive write access.
func (s *Store) Begin(ctx context.Context) (registry.Tx, error) {
	select {
	case s.txSlot <- struct{}{}:
		return &tx{store: s, staged: make(map[string]registry.Record)}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type tx struct {
	store  *Store
	staged map[string]registry.Record
	done   bool
}

func (t *tx) Upsert(ctx context.Context, rec registry.Record) (registry.WriteResult, error) {
	if t.done {
		return 0, ErrTxDone
	}
	if rec.TaxID == "" {
		return 0, errors.New("memory: tax id is required")
	}

	now := t.store.now().UTC()
	existing, ok := t.staged[rec.TaxID]
	if !ok {
		existing, ok = t.store.get(rec.TaxID)
	}

	rec.UpdatedAt = now
	if ok {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		t.staged[rec.TaxID] = rec
		return registry.WriteUpdated, nil
	}

	rec.ID = uuid.New()
	rec.CreatedAt = now
	t.staged[rec.TaxID] = rec
	return registry.WriteInserted, nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.store.mu.Lock()
	for k, v := range t.staged {
		t.store.records[k] = v
	}
	t.store.mu.Unlock()
	t.finish()
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *tx) finish() {
	t.done = true
	t.staged = nil
	<-t.store.txSlot
}

func (s *Store) get(taxID string) (registry.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[taxID]
	return rec, ok
}

// Get returns the committed record for taxID.
func (s *Store) Get(taxID string) (registry.Record, bool) {
	return s.get(taxID)
}

// Len returns the number of committed records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Search implements registry.Directory.
func (s *Store) Search(ctx context.Context, taxID, name string, limit int) ([]registry.Record, error) {
	needle := strings.ToLower(name)
	return s.filter(limit, func(r registry.Record) bool {
		return (taxID != "" && r.TaxID == taxID) || strings.Contains(strings.ToLower(r.FullName), needle)
	}), nil
}

// List implements registry.Directory.
func (s *Store) List(ctx context.Context, p registry.ListParams) (registry.Page, error) {
	needle := strings.ToLower(p.Search)
	match := func(r registry.Record) bool {
		return needle == "" ||
			strings.Contains(strings.ToLower(r.FullName), needle) ||
			strings.Contains(r.TaxID, p.Search)
	}

	all := s.filter(0, match)
	page := registry.Page{Total: int64(len(all))}
	offset := p.Offset()
	if offset >= len(all) {
		page.Records = []registry.Record{}
		return page, nil
	}
	end := len(all)
	if p.Limit > 0 && offset+p.Limit < end {
		end = offset + p.Limit
	}
	page.Records = all[offset:end]
	return page, nil
}

// filter returns matching records sorted by name. limit <= 0 means no limit.
func (s *Store) filter(limit int, match func(registry.Record) bool) []registry.Record {
	s.mu.RLock()
	out := make([]registry.Record, 0, len(s.records))
	for _, r := range s.records {
		if match(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].TaxID < out[j].TaxID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// UpdateStatus implements registry.Directory.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (registry.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, r := range s.records {
		if r.ID == id {
			r.Status = status
			r.UpdatedAt = s.now().UTC()
			s.records[k] = r
			return r, nil
		}
	}
	return registry.Record{}, registry.ErrNotFound
}

// Clear implements registry.Directory.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.records))
	s.records = make(map[string]registry.Record)
	return n, nil
}

// Ping implements registry.Directory.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close implements registry.Backend.
func (s *Store) Close() error {
	return nil
}

var _ registry.Backend = (*Store)(nil)
