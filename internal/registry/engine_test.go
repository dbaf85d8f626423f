package registry_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/registry/internal/registry"
	"github.com/JonMunkholm/registry/internal/store/memory"
)

var fixedNow = time.Date(2024, 7, 15, 13, 45, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// faultyStore wraps a Store and injects failures.
type faultyStore struct {
	registry.Store

	failTaxIDs map[string]bool
	beginErr   error
	commitErr  error
	onCommit   func()
}

func (f *faultyStore) Begin(ctx context.Context) (registry.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	tx, err := f.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTx{Tx: tx, store: f}, nil
}

type faultyTx struct {
	registry.Tx
	store *faultyStore
}

func (t *faultyTx) Upsert(ctx context.Context, rec registry.Record) (registry.WriteResult, error) {
	if t.store.failTaxIDs[rec.TaxID] {
		return 0, fmt.Errorf("violates check constraint for %s", rec.TaxID)
	}
	return t.Tx.Upsert(ctx, rec)
}

func (t *faultyTx) Commit(ctx context.Context) error {
	if t.store.commitErr != nil {
		return t.store.commitErr
	}
	if err := t.Tx.Commit(ctx); err != nil {
		return err
	}
	if t.store.onCommit != nil {
		t.store.onCommit()
	}
	return nil
}

func candidate(n int) registry.Candidate {
	return registry.Candidate{
		Line:             n + 1,
		FullName:         fmt.Sprintf("Professional %02d", n),
		TaxID:            fmt.Sprintf("%011d", n),
		CredentialNumber: fmt.Sprintf("CRP-%d", n),
		Status:           "Regular",
		Formation:        "Psicologia",
		City:             "Recife",
		State:            "PE",
	}
}

func candidates(n int) []registry.Candidate {
	out := make([]registry.Candidate, n)
	for i := range out {
		out[i] = candidate(i + 1)
	}
	return out
}

func TestReconcile_DuplicateTaxIDLastWriteWins(t *testing.T) {
	store := memory.New(clock)
	input := "name,cpf,registration,status,code,formation,city,state,date\n" +
		"Ana Souza,123.456.789-01,CRP-1,Regular,01,Psicologia,Recife,PE,01/02/2010\n" +
		"Ana Souza,12345678901,CRP-1,Irregular,01,Psicologia,Recife,PE,01/02/2010\n"

	cands, _, err := registry.Parser{Now: clock}.Parse(strings.NewReader(input))
	require.NoError(t, err)

	outcome, err := registry.NewEngine(store, registry.Options{Now: clock}).Reconcile(context.Background(), cands)
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.Total)
	assert.Equal(t, 1, outcome.Inserted)
	assert.Equal(t, 1, outcome.Updated)
	assert.Empty(t, outcome.Errors)
	assert.Equal(t, 1, store.Len())

	rec, ok := store.Get("12345678901")
	require.True(t, ok)
	assert.Equal(t, "Irregular", rec.Status)
}

func TestReconcile_ChunkRollbackIsolation(t *testing.T) {
	mem := memory.New(clock)
	cands := candidates(5)
	store := &faultyStore{Store: mem, failTaxIDs: map[string]bool{cands[3].TaxID: true}}

	outcome, err := registry.NewEngine(store, registry.Options{BatchSize: 2, Now: clock}).
		Reconcile(context.Background(), cands)
	require.NoError(t, err)

	assert.Equal(t, 5, outcome.Total)
	assert.Equal(t, 3, outcome.Inserted)
	assert.Equal(t, 0, outcome.Updated)
	assert.Equal(t, 3, outcome.Chunks)
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, 2, outcome.RolledBack)

	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, cands[3].FullName, outcome.Errors[0].Label)
	assert.Equal(t, cands[3].Line, outcome.Errors[0].Line)
	assert.Contains(t, outcome.Errors[0].Message, "check constraint")

	assert.Equal(t, 3, mem.Len())
	for _, i := range []int{0, 1, 4} {
		_, ok := mem.Get(cands[i].TaxID)
		assert.True(t, ok, "candidate %d should be committed", i+1)
	}
	_, ok := mem.Get(cands[2].TaxID)
	assert.False(t, ok, "candidate 3 must be rolled back with its chunk")
}

func TestReconcile_Idempotent(t *testing.T) {
	store := memory.New(clock)
	engine := registry.NewEngine(store, registry.Options{BatchSize: 3, Now: clock})
	cands := candidates(7)

	first, err := engine.Reconcile(context.Background(), cands)
	require.NoError(t, err)
	assert.Equal(t, 7, first.Inserted)

	second, err := engine.Reconcile(context.Background(), cands)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, second.Total, second.Updated)
	assert.Equal(t, 7, store.Len())
}

func TestReconcile_UpdateKeepsIdentity(t *testing.T) {
	var now time.Time = fixedNow
	store := memory.New(func() time.Time { return now })
	engine := registry.NewEngine(store, registry.Options{Now: clock})

	c := candidate(1)
	_, err := engine.Reconcile(context.Background(), []registry.Candidate{c})
	require.NoError(t, err)
	before, _ := store.Get(c.TaxID)

	now = fixedNow.Add(time.Hour)
	c.City = "Olinda"
	_, err = engine.Reconcile(context.Background(), []registry.Candidate{c})
	require.NoError(t, err)
	after, _ := store.Get(c.TaxID)

	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
	assert.Equal(t, "Olinda", after.City)
}

func TestReconcile_DateFallback(t *testing.T) {
	store := memory.New(clock)
	input := "header\n" +
		"Ana,11111111111,C1,Regular,01,Psicologia,Recife,PE,31/02/2020\n" +
		"Bia,22222222222,C2,Regular,01,Psicologia,Recife,PE,\n" +
		"Caio,33333333333,C3,Regular,01,Psicologia,Recife,PE,ab/cd/efgh\n" +
		"Duda,44444444444,C4,Regular,01,Psicologia,Recife,PE,05/03/2021\n"

	cands, _, err := registry.Parser{Now: clock}.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, cands, 4)

	_, err = registry.NewEngine(store, registry.Options{Now: clock}).Reconcile(context.Background(), cands)
	require.NoError(t, err)

	today := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)
	for _, taxID := range []string{"11111111111", "22222222222", "33333333333"} {
		rec, ok := store.Get(taxID)
		require.True(t, ok)
		assert.True(t, rec.RegistrationDate.Equal(today), "%s: got %v", taxID, rec.RegistrationDate)
	}

	rec, _ := store.Get("44444444444")
	assert.True(t, rec.RegistrationDate.Equal(time.Date(2021, 3, 5, 0, 0, 0, 0, time.UTC)))
}

func TestReconcile_ErrorListIsCapped(t *testing.T) {
	cands := candidates(15)
	fail := make(map[string]bool)
	for _, c := range cands {
		fail[c.TaxID] = true
	}
	store := &faultyStore{Store: memory.New(clock), failTaxIDs: fail}

	outcome, err := registry.NewEngine(store, registry.Options{BatchSize: 1}).
		Reconcile(context.Background(), cands)
	require.NoError(t, err)

	assert.Len(t, outcome.Errors, registry.DefaultMaxReportedErrors)
	assert.Equal(t, 15, outcome.Failed)
	assert.Equal(t, 15, outcome.RolledBack)
	assert.Equal(t, 0, outcome.Inserted)
	assert.Equal(t, cands[0].FullName, outcome.Errors[0].Label)
}

func TestReconcile_BatchSizeOneIsolatesRows(t *testing.T) {
	mem := memory.New(clock)
	cands := candidates(5)
	store := &faultyStore{Store: mem, failTaxIDs: map[string]bool{cands[3].TaxID: true}}

	outcome, err := registry.NewEngine(store, registry.Options{BatchSize: 1}).
		Reconcile(context.Background(), cands)
	require.NoError(t, err)

	assert.Equal(t, 4, outcome.Inserted)
	assert.Equal(t, 1, outcome.RolledBack)
	assert.Equal(t, 4, mem.Len())
}

func TestReconcile_CancelledBetweenChunks(t *testing.T) {
	mem := memory.New(clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	commits := 0
	store := &faultyStore{Store: mem, onCommit: func() {
		commits++
		if commits == 1 {
			cancel()
		}
	}}

	outcome, err := registry.NewEngine(store, registry.Options{BatchSize: 2}).
		Reconcile(ctx, candidates(6))
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.ErrorIs(t, err, registry.ErrImportCancelled)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 1, commits)
	assert.Equal(t, 2, mem.Len(), "the chunk committed before cancellation stays")
}

func TestReconcile_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mem := memory.New(clock)
	_, err := registry.NewEngine(mem, registry.Options{}).Reconcile(ctx, candidates(3))
	assert.ErrorIs(t, err, registry.ErrImportCancelled)
	assert.Equal(t, 0, mem.Len())
}

func TestReconcile_SystemicFailures(t *testing.T) {
	tests := []struct {
		name  string
		store *faultyStore
	}{
		{"begin fails", &faultyStore{Store: memory.New(clock), beginErr: errors.New("dial tcp: connection refused")}},
		{"commit fails", &faultyStore{Store: memory.New(clock), commitErr: errors.New("connection reset by peer")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := registry.NewEngine(tt.store, registry.Options{}).
				Reconcile(context.Background(), candidates(3))
			require.Error(t, err)
			assert.Nil(t, outcome)
			assert.ErrorIs(t, err, registry.ErrStoreUnavailable)
		})
	}
}

func TestReconcile_EmptyInput(t *testing.T) {
	outcome, err := registry.NewEngine(memory.New(clock), registry.Options{}).
		Reconcile(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.Total)
	assert.Equal(t, 0, outcome.Chunks)
}

func TestReconcile_OrderIndependentForDistinctKeys(t *testing.T) {
	cands := candidates(12)
	reference := memory.New(clock)
	_, err := registry.NewEngine(reference, registry.Options{BatchSize: 5, Now: clock}).
		Reconcile(context.Background(), cands)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 5; round++ {
		shuffled := append([]registry.Candidate(nil), cands...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		store := memory.New(clock)
		_, err := registry.NewEngine(store, registry.Options{BatchSize: 5, Now: clock}).
			Reconcile(context.Background(), shuffled)
		require.NoError(t, err)

		require.Equal(t, reference.Len(), store.Len())
		for _, c := range cands {
			want, _ := reference.Get(c.TaxID)
			got, ok := store.Get(c.TaxID)
			require.True(t, ok)
			assert.Equal(t, want.FullName, got.FullName)
			assert.Equal(t, want.Status, got.Status)
			assert.Equal(t, want.RegistrationDate, got.RegistrationDate)
		}
	}
}

func TestReconcile_NaturalKeyUniqueness(t *testing.T) {
	store := memory.New(clock)
	var cands []registry.Candidate
	for i := 0; i < 30; i++ {
		c := candidate(i%7 + 1)
		c.Status = fmt.Sprintf("round-%d", i)
		cands = append(cands, c)
	}

	outcome, err := registry.NewEngine(store, registry.Options{BatchSize: 4}).
		Reconcile(context.Background(), cands)
	require.NoError(t, err)

	assert.Equal(t, 7, store.Len())
	assert.Equal(t, 7, outcome.Inserted)
	assert.Equal(t, 23, outcome.Updated)

	last, _ := store.Get(candidate(29%7 + 1).TaxID)
	assert.Equal(t, "round-29", last.Status)
}
