package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Candidate is a parsed row that has not been written yet.
type Candidate struct {
	// Line is the 1-based source line, kept for diagnostics only.
	Line int

	FullName         string
	TaxID            string // digits only, never empty
	CredentialNumber string
	Status           string // free text, validated only by UpdateStatus
	Formation        string
	City             string
	State            string

	// RegistrationDate is invalid when the source text was missing or malformed.
	RegistrationDate pgtype.Date
}

// Record is a stored registry entry. There is exactly one Record per TaxID.
type Record struct {
	ID               uuid.UUID `json:"id"`
	FullName         string    `json:"name"`
	TaxID            string    `json:"cpf"`
	CredentialNumber string    `json:"registrationNumber"`
	Status           string    `json:"status"`
	Formation        string    `json:"formation"`
	City             string    `json:"city"`
	State            string    `json:"state"`
	RegistrationDate time.Time `json:"registrationDate"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// WriteResult reports what a conflict-aware write did.
type WriteResult int

const (
	WriteInserted WriteResult = iota + 1
	WriteUpdated
)

func (w WriteResult) String() string {
	switch w {
	case WriteInserted:
		return "inserted"
	case WriteUpdated:
		return "updated"
	default:
		return fmt.Sprintf("WriteResult(%d)", int(w))
	}
}

// Store opens the transactions an import writes through.
// Satisfied by the postgres, sqlite and memory backends.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one chunk's transaction.
//
// Upsert inserts the record, or on a TaxID conflict overwrites every mutable
// field and refreshes UpdatedAt. ID and CreatedAt of an existing record are
// never changed. Rollback after Commit must be a no-op.
type Tx interface {
	Upsert(ctx context.Context, rec Record) (WriteResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ListParams selects one page of the admin listing.
type ListParams struct {
	Search string
	Page   int // 1-based
	Limit  int
}

// Offset returns the number of rows to skip for this page.
func (p ListParams) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Page is one page of records plus the total match count.
type Page struct {
	Records []Record
	Total   int64
}

// Directory is the read and maintenance surface of a store, used outside imports.
type Directory interface {
	// Search returns records whose TaxID equals taxID or whose name contains
	// name (case-insensitive), ordered by name.
	Search(ctx context.Context, taxID, name string, limit int) ([]Record, error)
	List(ctx context.Context, p ListParams) (Page, error)
	// UpdateStatus returns ErrNotFound when no record has the given ID.
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (Record, error)
	// Clear deletes every record and returns how many were removed.
	Clear(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// Backend is a complete store implementation.
type Backend interface {
	Store
	Directory
	Close() error
}

// RowError is a write failure reported back to the caller.
type RowError struct {
	Label   string `json:"label"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

func (e RowError) String() string {
	return e.Label + ": " + e.Message
}

// Outcome summarizes one import run.
type Outcome struct {
	Total    int `json:"total"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`

	// Errors holds the first MaxReportedErrors write failures.
	Errors []RowError `json:"errors,omitempty"`

	// Failed counts every chunk that hit a write failure, uncapped.
	Failed int `json:"failed"`

	// RolledBack counts candidates undone by chunk rollbacks, including the
	// failing one and any that were never attempted.
	RolledBack int `json:"rolledBack"`

	Chunks int `json:"chunks"`

	// Skipped counts parser discards. Only set when skip reporting is enabled.
	Skipped *int `json:"skipped,omitempty"`

	Duration time.Duration `json:"duration"`
}
