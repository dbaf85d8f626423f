// Package storetest holds the behavior every registry backend must share.
// Backend packages run it from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/JonMunkholm/registry/internal/registry"
)

// Now is the clock backends under test should use.
var Now = time.Date(2024, 7, 15, 13, 45, 0, 0, time.UTC)

// BackendSuite exercises a registry.Backend through the engine and directory.
// NewBackend is called before every test and must return an empty backend.
type BackendSuite struct {
	suite.Suite

	NewBackend func(t *testing.T) registry.Backend

	backend registry.Backend
	ctx     context.Context
}

// Run runs the suite against backends built by newBackend.
func Run(t *testing.T, newBackend func(t *testing.T) registry.Backend) {
	suite.Run(t, &BackendSuite{NewBackend: newBackend})
}

func (s *BackendSuite) SetupTest() {
	s.ctx = context.Background()
	s.backend = s.NewBackend(s.T())
}

func (s *BackendSuite) TearDownTest() {
	s.NoError(s.backend.Close())
}

func (s *BackendSuite) reconcile(batchSize int, cands ...registry.Candidate) *registry.Outcome {
	engine := registry.NewEngine(s.backend, registry.Options{
		BatchSize: batchSize,
		Now:       func() time.Time { return Now },
	})
	out, err := engine.Reconcile(s.ctx, cands)
	s.Require().NoError(err)
	return out
}

func (s *BackendSuite) find(taxID string) registry.Record {
	recs, err := s.backend.Search(s.ctx, taxID, "zz-no-such-name-zz", 10)
	s.Require().NoError(err)
	s.Require().Len(recs, 1, "tax id %s", taxID)
	return recs[0]
}

func professional(n int, name string) registry.Candidate {
	return registry.Candidate{
		Line:             n + 1,
		FullName:         name,
		TaxID:            fmt.Sprintf("%011d", n),
		CredentialNumber: fmt.Sprintf("CRP-%d", n),
		Status:           "Regular",
		Formation:        "Psicologia",
		City:             "Recife",
		State:            "PE",
	}
}

// TestInsertThenUpdate verifies upserts by tax ID keep identity and creation time.
func (s *BackendSuite) TestInsertThenUpdate() {
	first := s.reconcile(10, professional(1, "Ana Souza"), professional(2, "Bruno Lima"))
	s.Equal(2, first.Inserted)
	s.Equal(0, first.Updated)

	before := s.find("00000000001")
	s.Equal("Ana Souza", before.FullName)
	s.Equal(time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC), before.RegistrationDate.UTC())

	changed := professional(1, "Ana Souza Lima")
	changed.City = "Olinda"
	second := s.reconcile(10, changed)
	s.Equal(0, second.Inserted)
	s.Equal(1, second.Updated)

	after := s.find("00000000001")
	s.Equal(before.ID, after.ID)
	s.Equal("Ana Souza Lima", after.FullName)
	s.Equal("Olinda", after.City)
	s.True(after.CreatedAt.Equal(before.CreatedAt), "created_at changed on update")
}

// TestDuplicateWithinChunk verifies the last occurrence of a tax ID wins.
func (s *BackendSuite) TestDuplicateWithinChunk() {
	out := s.reconcile(10, professional(1, "First"), professional(1, "Second"))
	s.Equal(1, out.Inserted)
	s.Equal(1, out.Updated)
	s.Equal("Second", s.find("00000000001").FullName)
}

// TestSearch verifies exact tax ID and case-insensitive name matching.
func (s *BackendSuite) TestSearch() {
	s.reconcile(2,
		professional(1, "Ana Souza"),
		professional(2, "Mariana Alves"),
		professional(3, "Bruno Lima"),
	)

	s.Run("by tax id", func() {
		recs, err := s.backend.Search(s.ctx, "00000000003", "00000000003", 10)
		s.Require().NoError(err)
		s.Require().Len(recs, 1)
		s.Equal("Bruno Lima", recs[0].FullName)
	})

	s.Run("by name ordered", func() {
		recs, err := s.backend.Search(s.ctx, "", "ANA", 10)
		s.Require().NoError(err)
		s.Require().Len(recs, 2)
		s.Equal("Ana Souza", recs[0].FullName)
		s.Equal("Mariana Alves", recs[1].FullName)
	})

	s.Run("limit", func() {
		recs, err := s.backend.Search(s.ctx, "", "a", 1)
		s.Require().NoError(err)
		s.Len(recs, 1)
	})
}

// TestList verifies paging and filtering of the admin listing.
func (s *BackendSuite) TestList() {
	var cands []registry.Candidate
	for i := 0; i < 12; i++ {
		cands = append(cands, professional(i, fmt.Sprintf("Professional %02d", i)))
	}
	s.reconcile(5, cands...)

	page, err := s.backend.List(s.ctx, registry.ListParams{Page: 2, Limit: 5})
	s.Require().NoError(err)
	s.Equal(int64(12), page.Total)
	s.Require().Len(page.Records, 5)
	s.Equal("Professional 05", page.Records[0].FullName)

	page, err = s.backend.List(s.ctx, registry.ListParams{Page: 3, Limit: 5})
	s.Require().NoError(err)
	s.Len(page.Records, 2)

	page, err = s.backend.List(s.ctx, registry.ListParams{Search: "professional 1", Page: 1, Limit: 5})
	s.Require().NoError(err)
	s.Equal(int64(2), page.Total)
}

// TestUpdateStatus verifies status changes by ID.
func (s *BackendSuite) TestUpdateStatus() {
	s.reconcile(10, professional(1, "Ana Souza"))
	rec := s.find("00000000001")

	updated, err := s.backend.UpdateStatus(s.ctx, rec.ID, "Irregular")
	s.Require().NoError(err)
	s.Equal(rec.ID, updated.ID)
	s.Equal("Irregular", updated.Status)
	s.Equal("Irregular", s.find("00000000001").Status)

	_, err = s.backend.UpdateStatus(s.ctx, uuid.New(), "Regular")
	s.True(errors.Is(err, registry.ErrNotFound), "got %v", err)
}

// TestRollbackDiscardsWrites verifies nothing from a rolled back transaction persists.
func (s *BackendSuite) TestRollbackDiscardsWrites() {
	tx, err := s.backend.Begin(s.ctx)
	s.Require().NoError(err)

	_, err = tx.Upsert(s.ctx, registry.Record{
		FullName:         "Ghost",
		TaxID:            "99999999999",
		Formation:        "Psicologia",
		City:             "Recife",
		State:            "PE",
		RegistrationDate: Now,
	})
	s.Require().NoError(err)
	s.Require().NoError(tx.Rollback(s.ctx))
	s.NoError(tx.Rollback(s.ctx), "second rollback is a no-op")

	recs, err := s.backend.Search(s.ctx, "99999999999", "Ghost", 10)
	s.Require().NoError(err)
	s.Empty(recs)
}

// TestRollbackAfterCommit verifies Rollback after Commit keeps the writes.
func (s *BackendSuite) TestRollbackAfterCommit() {
	tx, err := s.backend.Begin(s.ctx)
	s.Require().NoError(err)

	_, err = tx.Upsert(s.ctx, registry.Record{
		FullName:         "Kept",
		TaxID:            "88888888888",
		Formation:        "Psicologia",
		City:             "Recife",
		State:            "PE",
		RegistrationDate: Now,
	})
	s.Require().NoError(err)
	s.Require().NoError(tx.Commit(s.ctx))
	s.NoError(tx.Rollback(s.ctx))

	s.Equal("Kept", s.find("88888888888").FullName)
}

// TestClear verifies bulk deletion.
func (s *BackendSuite) TestClear() {
	s.reconcile(10, professional(1, "Ana Souza"), professional(2, "Bruno Lima"))

	n, err := s.backend.Clear(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	page, err := s.backend.List(s.ctx, registry.ListParams{Page: 1, Limit: 10})
	s.Require().NoError(err)
	s.Zero(page.Total)
	s.NoError(s.backend.Ping(s.ctx))
}
