// Package postgres is the PostgreSQL registry backend.
//
// Upserts use INSERT ... ON CONFLICT (cpf) DO UPDATE, so the unique index on
// cpf is the only concurrency control. Whether a row was inserted or updated
// is read from xmax in the RETURNING clause.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/registry/internal/config"
	"github.com/JonMunkholm/registry/internal/database"
	"github.com/JonMunkholm/registry/internal/registry"
)

// Store is backed by a pgx connection pool.
type Store struct {
	pool    *pgxpool.Pool
	queries *database.Queries
}

// Open creates a pool from cfg and verifies it with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(pool), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, queries: database.New(pool)}
}

// DatabaseName returns the database name from a connection URL, or "" if it
// cannot be parsed.
func DatabaseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

// Migrate creates the professionals table and its indexes if missing.
func (s *Store) Migrate(ctx context.Context) error {
	return database.Migrate(ctx, s.pool)
}

// Begin implements registry.Store.
func (s *Store) Begin(ctx context.Context) (registry.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx, queries: s.queries.WithTx(tx)}, nil
}

type pgTx struct {
	tx      pgx.Tx
	queries *database.Queries
}

func (t *pgTx) Upsert(ctx context.Context, rec registry.Record) (registry.WriteResult, error) {
	row, err := t.queries.UpsertProfessional(ctx, database.UpsertProfessionalParams{
		Name:               rec.FullName,
		Cpf:                rec.TaxID,
		RegistrationNumber: rec.CredentialNumber,
		Status:             rec.Status,
		Formation:          rec.Formation,
		City:               rec.City,
		State:              rec.State,
		RegistrationDate:   pgtype.Date{Time: rec.RegistrationDate, Valid: true},
	})
	if err != nil {
		return 0, err
	}
	if row.Inserted {
		return registry.WriteInserted, nil
	}
	return registry.WriteUpdated, nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// Search implements registry.Directory.
func (s *Store) Search(ctx context.Context, taxID, name string, limit int) ([]registry.Record, error) {
	rows, err := s.queries.SearchProfessionals(ctx, database.SearchProfessionalsParams{
		Cpf:        taxID,
		Name:       name,
		MaxResults: int32(limit),
	})
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// List implements registry.Directory.
func (s *Store) List(ctx context.Context, p registry.ListParams) (registry.Page, error) {
	total, err := s.queries.CountProfessionalsMatching(ctx, p.Search)
	if err != nil {
		return registry.Page{}, err
	}
	rows, err := s.queries.ListProfessionals(ctx, database.ListProfessionalsParams{
		Search:     p.Search,
		PageLimit:  int32(p.Limit),
		PageOffset: int32(p.Offset()),
	})
	if err != nil {
		return registry.Page{}, err
	}
	return registry.Page{Records: toRecords(rows), Total: total}, nil
}

// UpdateStatus implements registry.Directory.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (registry.Record, error) {
	row, err := s.queries.UpdateProfessionalStatus(ctx, database.UpdateProfessionalStatusParams{
		ID:     pgtype.UUID{Bytes: id, Valid: true},
		Status: status,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return registry.Record{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.Record{}, err
	}
	return toRecord(row), nil
}

// Clear implements registry.Directory.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	return s.queries.DeleteAllProfessionals(ctx)
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.queries.CountProfessionals(ctx)
}

// Get returns the record for taxID.
func (s *Store) Get(ctx context.Context, taxID string) (registry.Record, error) {
	row, err := s.queries.GetProfessionalByCpf(ctx, taxID)
	if errors.Is(err, pgx.ErrNoRows) {
		return registry.Record{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.Record{}, err
	}
	return toRecord(row), nil
}

// Ping implements registry.Directory.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements registry.Backend.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func toRecord(p database.Professional) registry.Record {
	return registry.Record{
		ID:               uuid.UUID(p.ID.Bytes),
		FullName:         p.Name,
		TaxID:            p.Cpf,
		CredentialNumber: p.RegistrationNumber,
		Status:           p.Status,
		Formation:        p.Formation,
		City:             p.City,
		State:            p.State,
		RegistrationDate: p.RegistrationDate.Time,
		CreatedAt:        p.CreatedAt.Time,
		UpdatedAt:        p.UpdatedAt.Time,
	}
}

func toRecords(rows []database.Professional) []registry.Record {
	out := make([]registry.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, toRecord(r))
	}
	return out
}

var _ registry.Backend = (*Store)(nil)
