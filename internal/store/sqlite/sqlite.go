// Package sqlite is an embedded registry backend built on gorm and a pure-Go
// SQLite driver. It backs the CLI and local development.
//
// SQLite allows one writer at a time, so the pool is limited to a single
// connection and transactions queue behind each other. Upserts bump a
// revision counter; a returned revision of 1 means the row was inserted.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/JonMunkholm/registry/internal/registry"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Professional is the gorm model for the professionals table.
type Professional struct {
	ID                 string    `gorm:"primaryKey;type:text"`
	Name               string    `gorm:"not null;index:professionals_name_idx"`
	Cpf                string    `gorm:"column:cpf;not null;uniqueIndex:professionals_cpf_key"`
	RegistrationNumber string    `gorm:"not null;default:''"`
	Status             string    `gorm:"not null;default:''"`
	Formation          string    `gorm:"not null"`
	City               string    `gorm:"not null"`
	State              string    `gorm:"not null"`
	RegistrationDate   time.Time `gorm:"not null"`
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
	Revision           int64     `gorm:"not null;default:1"`
}

// TableName pins the table name shared with the postgres schema.
func (Professional) TableName() string {
	return "professionals"
}

const upsertSQL = `
INSERT INTO professionals (
    id, name, cpf, registration_number, status, formation, city, state,
    registration_date, created_at, updated_at, revision
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
ON CONFLICT(cpf) DO UPDATE SET
    name = excluded.name,
    registration_number = excluded.registration_number,
    status = excluded.status,
    formation = excluded.formation,
    city = excluded.city,
    state = excluded.state,
    registration_date = excluded.registration_date,
    updated_at = excluded.updated_at,
    revision = professionals.revision + 1
RETURNING revision`

// Store is a gorm-backed SQLite registry.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	dsn := path
	if path != MemoryPath {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Professional{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// SetClock overrides the timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Begin implements registry.Store.
func (s *Store) Begin(ctx context.Context) (registry.Tx, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &gormTx{tx: tx, now: s.now}, nil
}

type gormTx struct {
	tx   *gorm.DB
	now  func() time.Time
	done bool
}

func (t *gormTx) Upsert(ctx context.Context, rec registry.Record) (registry.WriteResult, error) {
	now := t.now().UTC()
	var revision int64
	err := t.tx.WithContext(ctx).Raw(upsertSQL,
		uuid.NewString(),
		rec.FullName,
		rec.TaxID,
		rec.CredentialNumber,
		rec.Status,
		rec.Formation,
		rec.City,
		rec.State,
		rec.RegistrationDate.UTC(),
		now,
		now,
	).Scan(&revision).Error
	if err != nil {
		return 0, err
	}
	if revision == 1 {
		return registry.WriteInserted, nil
	}
	return registry.WriteUpdated, nil
}

func (t *gormTx) Commit(ctx context.Context) error {
	if t.done {
		return gorm.ErrInvalidTransaction
	}
	t.done = true
	return t.tx.Commit().Error
}

func (t *gormTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback().Error
}

// Search implements registry.Directory.
func (s *Store) Search(ctx context.Context, taxID, name string, limit int) ([]registry.Record, error) {
	var rows []Professional
	err := s.db.WithContext(ctx).
		Where("cpf = ? OR lower(name) LIKE ?", taxID, likePattern(name)).
		Order("name, cpf").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// List implements registry.Directory.
func (s *Store) List(ctx context.Context, p registry.ListParams) (registry.Page, error) {
	query := s.db.WithContext(ctx).Model(&Professional{})
	if p.Search != "" {
		query = query.Where("lower(name) LIKE ? OR cpf LIKE ?", likePattern(p.Search), "%"+p.Search+"%")
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return registry.Page{}, err
	}

	var rows []Professional
	err := query.Order("name, cpf").Limit(p.Limit).Offset(p.Offset()).Find(&rows).Error
	if err != nil {
		return registry.Page{}, err
	}
	return registry.Page{Records: toRecords(rows), Total: total}, nil
}

// UpdateStatus implements registry.Directory.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (registry.Record, error) {
	db := s.db.WithContext(ctx)
	res := db.Model(&Professional{}).
		Where("id = ?", id.String()).
		Updates(map[string]any{"status": status, "updated_at": s.now().UTC()})
	if res.Error != nil {
		return registry.Record{}, res.Error
	}
	if res.RowsAffected == 0 {
		return registry.Record{}, registry.ErrNotFound
	}

	var row Professional
	if err := db.First(&row, "id = ?", id.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return registry.Record{}, registry.ErrNotFound
		}
		return registry.Record{}, err
	}
	return toRecord(row), nil
}

// Clear implements registry.Directory.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Exec("DELETE FROM professionals")
	return res.RowsAffected, res.Error
}

// Get returns the record for taxID.
func (s *Store) Get(ctx context.Context, taxID string) (registry.Record, error) {
	var row Professional
	err := s.db.WithContext(ctx).First(&row, "cpf = ?", taxID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return registry.Record{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.Record{}, err
	}
	return toRecord(row), nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Professional{}).Count(&n).Error
	return n, err
}

// Ping implements registry.Directory.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close implements registry.Backend.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func likePattern(s string) string {
	return "%" + strings.ToLower(s) + "%"
}

func toRecord(p Professional) registry.Record {
	id, _ := uuid.Parse(p.ID)
	return registry.Record{
		ID:               id,
		FullName:         p.Name,
		TaxID:            p.Cpf,
		CredentialNumber: p.RegistrationNumber,
		Status:           p.Status,
		Formation:        p.Formation,
		City:             p.City,
		State:            p.State,
		RegistrationDate: p.RegistrationDate.UTC(),
		CreatedAt:        p.CreatedAt.UTC(),
		UpdatedAt:        p.UpdatedAt.UTC(),
	}
}

func toRecords(rows []Professional) []registry.Record {
	out := make([]registry.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, toRecord(r))
	}
	return out
}

var _ registry.Backend = (*Store)(nil)
