package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/cardledger/internal/domain"
	"github.com/rumor-ml/commons.systems/cardledger/internal/rules"
	"github.com/rumor-ml/commons.systems/cardledger/internal/store"
)

var (
	batchA = time.Date(2024, time.March, 20, 10, 0, 0, 0, time.UTC)
	batchB = time.Date(2024, time.March, 21, 9, 0, 0, 0, time.UTC)
)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *store.Store
	engine *Engine
	card   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	categorizer, err := rules.LoadEmbedded()
	require.NoError(t, err)

	card, err := domain.NewCard("Nubank", decimal.NewFromInt(5000), 15, 7)
	require.NoError(t, err)
	cardID, err := s.CreateCard(ctx, card)
	require.NoError(t, err)

	e := NewEngine(s, categorizer, zerolog.Nop())
	e.now = func() time.Time { return time.Date(2024, time.March, 22, 12, 0, 0, 0, time.UTC) }
	return &fixture{t: t, ctx: ctx, store: s, engine: e, card: cardID}
}

func (f *fixture) tx(date time.Time, amount string) int64 {
	f.t.Helper()
	id, err := f.store.InsertTransaction(f.ctx, &domain.Transaction{
		Date:          date,
		Description:   "compra " + amount,
		Category:      domain.CategoryOther,
		CardID:        f.card,
		Amount:        decimal.RequireFromString(amount),
		Installments:  1,
		InstallmentNo: 1,
	})
	require.NoError(f.t, err)
	return id
}

func (f *fixture) line(extID string, date time.Time, amount, batch string, importedAt time.Time) int64 {
	f.t.Helper()
	id, inserted, err := f.store.InsertStatementLine(f.ctx, &domain.StatementLine{
		AccountName: "Conta Corrente",
		Date:        date,
		Description: "PIX " + extID,
		Amount:      decimal.RequireFromString(amount),
		ExternalID:  extID,
		ImportedAt:  importedAt,
		BatchID:     batch,
	})
	require.NoError(f.t, err)
	require.True(f.t, inserted)
	return id
}

func (f *fixture) confirmed(txID int64) bool {
	f.t.Helper()
	tx, err := f.store.GetTransaction(f.ctx, txID)
	require.NoError(f.t, err)
	return tx.Confirmed
}

func (f *fixture) matchedTo(stmtID int64) *int64 {
	f.t.Helper()
	l, err := f.store.GetStatementLine(f.ctx, stmtID)
	require.NoError(f.t, err)
	return l.MatchedTxID
}

func march(day int) time.Time {
	return domain.Date(2024, time.March, day)
}

func TestAutoMatch(t *testing.T) {
	f := newFixture(t)

	exact := f.tx(march(10), "50.00")
	nearby := f.tx(march(14), "80.01")
	farAway := f.tx(march(20), "120.00")
	wrongAmount := f.tx(march(25), "30.00")

	l1 := f.line("F1", march(10), "50.00", "a", batchA)
	l2 := f.line("F2", march(12), "80.00", "a", batchA)
	l3 := f.line("F3", march(15), "120.00", "a", batchA)
	l4 := f.line("F4", march(25), "30.02", "a", batchA)
	outside := f.line("F5", domain.Date(2024, time.April, 1), "50.00", "a", batchA)

	n, err := f.engine.AutoMatch(f.ctx, march(1), DefaultTolerance())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, exact, *f.matchedTo(l1))
	assert.Equal(t, nearby, *f.matchedTo(l2))
	assert.Nil(t, f.matchedTo(l3), "5 days apart")
	assert.Nil(t, f.matchedTo(l4), "0.02 apart")
	assert.Nil(t, f.matchedTo(outside), "line dated in another month")

	assert.True(t, f.confirmed(exact))
	assert.True(t, f.confirmed(nearby))
	assert.False(t, f.confirmed(farAway))
	assert.False(t, f.confirmed(wrongAmount))

	n, err = f.engine.AutoMatch(f.ctx, march(1), DefaultTolerance())
	require.NoError(t, err)
	assert.Zero(t, n, "second run finds nothing new")

	n, err = f.engine.AutoMatch(f.ctx, march(1), Tolerance{Days: 5, Value: decimal.RequireFromString("0.05")})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "wider tolerance")
}

func TestAutoMatch_FirstFit(t *testing.T) {
	f := newFixture(t)

	older := f.tx(march(9), "25.00")
	newer := f.tx(march(11), "25.00")

	l1 := f.line("F1", march(10), "25.00", "a", batchA)
	l2 := f.line("F2", march(10), "25.00", "a", batchA)
	l3 := f.line("F3", march(10), "25.00", "a", batchA)

	n, err := f.engine.AutoMatch(f.ctx, march(1), DefaultTolerance())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, newer, *f.matchedTo(l1), "newest candidate first")
	assert.Equal(t, older, *f.matchedTo(l2), "a transaction pairs with one line per run")
	assert.Nil(t, f.matchedTo(l3))
}

func TestAutoMatch_WindowCrossesMonth(t *testing.T) {
	f := newFixture(t)

	feb := f.tx(domain.Date(2024, time.February, 29), "10.00")
	l := f.line("F1", march(1), "10.00", "a", batchA)

	n, err := f.engine.AutoMatch(f.ctx, march(15), DefaultTolerance())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, feb, *f.matchedTo(l))
}

func TestAutoMatch_InvalidTolerance(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.AutoMatch(f.ctx, march(1), Tolerance{Days: -1, Value: decimal.Zero})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = f.engine.AutoMatch(f.ctx, march(1), Tolerance{Days: 1, Value: decimal.RequireFromString("-0.01")})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestMatchAndUnmatch(t *testing.T) {
	f := newFixture(t)

	first := f.tx(march(1), "10.00")
	second := f.tx(march(2), "999.00")
	l := f.line("F1", march(28), "-10.00", "a", batchA)

	require.NoError(t, f.engine.Match(f.ctx, l, first), "no tolerance check")
	assert.Equal(t, first, *f.matchedTo(l))
	assert.True(t, f.confirmed(first))

	require.NoError(t, f.engine.Match(f.ctx, l, second))
	assert.Equal(t, second, *f.matchedTo(l))
	assert.False(t, f.confirmed(first), "previous pairing released")
	assert.True(t, f.confirmed(second))

	require.NoError(t, f.engine.Unmatch(f.ctx, l))
	assert.Nil(t, f.matchedTo(l))
	assert.False(t, f.confirmed(second))

	require.NoError(t, f.engine.Unmatch(f.ctx, l), "already unmatched")

	assert.True(t, errors.Is(f.engine.Match(f.ctx, 999, first), domain.ErrNotFound))
	assert.True(t, errors.Is(f.engine.Match(f.ctx, l, 999), domain.ErrNotFound))
	assert.True(t, errors.Is(f.engine.Unmatch(f.ctx, 999), domain.ErrNotFound))
}

func TestUnmatch_SharedTransaction(t *testing.T) {
	f := newFixture(t)

	tx := f.tx(march(5), "40.00")
	l1 := f.line("F1", march(5), "20.00", "a", batchA)
	l2 := f.line("F2", march(5), "20.00", "a", batchA)

	require.NoError(t, f.engine.Match(f.ctx, l1, tx))
	require.NoError(t, f.engine.Match(f.ctx, l2, tx))

	require.NoError(t, f.engine.Unmatch(f.ctx, l1))
	assert.True(t, f.confirmed(tx), "still referenced by another line")

	require.NoError(t, f.engine.Unmatch(f.ctx, l2))
	assert.False(t, f.confirmed(tx))
}

func TestMaterialize(t *testing.T) {
	f := newFixture(t)

	l := f.line("F1", march(8), "-152.30", "a", batchA)

	txID, err := f.engine.Materialize(f.ctx, l, f.card)
	require.NoError(t, err)

	tx, err := f.store.GetTransaction(f.ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, march(8), tx.Date)
	assert.Equal(t, "PIX F1", tx.Description)
	assert.Equal(t, domain.CategoryReconciled, tx.Category)
	assert.Equal(t, domain.TagStatement, tx.Tags)
	assert.Equal(t, "-152.30", tx.Amount.StringFixed(2))
	assert.Equal(t, 1, tx.Installments)
	assert.True(t, tx.Confirmed)
	assert.Equal(t, txID, *f.matchedTo(l))

	_, err = f.engine.Materialize(f.ctx, 999, f.card)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = f.engine.Materialize(f.ctx, l, 999)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMaterialize_Categorized(t *testing.T) {
	f := newFixture(t)

	id, _, err := f.store.InsertStatementLine(f.ctx, &domain.StatementLine{
		AccountName: "Conta Corrente",
		Date:        march(3),
		Description: "Supermercado Dia",
		Amount:      decimal.RequireFromString("-48.90"),
		ExternalID:  "S1",
		ImportedAt:  batchA,
		BatchID:     "a",
	})
	require.NoError(t, err)

	previous := f.tx(march(3), "48.90")
	require.NoError(t, f.engine.Match(f.ctx, id, previous))

	txID, err := f.engine.Materialize(f.ctx, id, f.card)
	require.NoError(t, err)

	tx, err := f.store.GetTransaction(f.ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryGroceries, tx.Category)
	assert.False(t, f.confirmed(previous), "previous pairing released")
}

func TestUndoLastBatch_Soft(t *testing.T) {
	f := newFixture(t)

	tx := f.tx(march(10), "50.00")
	old := f.line("A1", march(1), "5.00", "a", batchA)
	matched := f.line("B1", march(10), "50.00", "b", batchB)
	f.line("B2", march(11), "7.00", "b", batchB)
	f.line("B3", march(12), "8.00", "b", batchB)

	n, err := f.engine.AutoMatch(f.ctx, march(1), DefaultTolerance())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	removed, err := f.engine.UndoLastBatch(f.ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	assert.Equal(t, tx, *f.matchedTo(matched), "matched line kept")
	assert.True(t, f.confirmed(tx), "confirmed flag untouched")
	_, err = f.store.GetStatementLine(f.ctx, old)
	assert.NoError(t, err, "older batch untouched")

	batch, err := f.engine.LastBatch(f.ctx)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, "b", batch.ID)
	assert.Equal(t, 1, batch.Total)
	assert.Equal(t, 1, batch.Matched)
}

func TestUndoLastBatch_Force(t *testing.T) {
	f := newFixture(t)

	preConfirmed := f.tx(march(3), "15.00")
	require.NoError(t, f.store.SetConfirmed(f.ctx, preConfirmed, true))
	matchedTx := f.tx(march(10), "50.00")
	sharedTx := f.tx(march(20), "70.00")

	olderLine := f.line("A1", march(20), "70.00", "a", batchA)
	f.line("B1", march(10), "50.00", "b", batchB)
	f.line("B2", march(20), "70.00", "b", batchB)
	f.line("B3", march(21), "1.00", "b", batchB)

	n, err := f.engine.AutoMatch(f.ctx, march(1), DefaultTolerance())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, sharedTx, *f.matchedTo(olderLine))

	// point a line from the latest batch at the transaction the older batch confirmed
	latest, err := f.store.ListStatementLines(f.ctx, domain.StatementFilter{BatchID: "b"})
	require.NoError(t, err)
	require.NoError(t, f.engine.Match(f.ctx, latest[1].ID, sharedTx))

	removed, err := f.engine.UndoLastBatch(f.ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	assert.False(t, f.confirmed(matchedTx), "restored to pending")
	assert.True(t, f.confirmed(sharedTx), "older batch still references it")
	assert.True(t, f.confirmed(preConfirmed), "unrelated flag untouched")

	left, err := f.store.ListStatementLines(f.ctx, domain.StatementFilter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, olderLine, left[0].ID)
}

func TestUndoLastBatch_ForceRestoresFlags(t *testing.T) {
	f := newFixture(t)

	txs := []int64{f.tx(march(2), "10.00"), f.tx(march(4), "20.00"), f.tx(march(6), "30.00")}
	require.NoError(t, f.store.SetConfirmed(f.ctx, txs[2], true))
	before := make([]bool, len(txs))
	for i, id := range txs {
		before[i] = f.confirmed(id)
	}

	f.line("B1", march(2), "10.00", "b", batchB)
	f.line("B2", march(5), "20.00", "b", batchB)
	f.line("B3", march(6), "30.00", "b", batchB)

	_, err := f.engine.AutoMatch(f.ctx, march(1), DefaultTolerance())
	require.NoError(t, err)
	_, err = f.engine.UndoLastBatch(f.ctx, true)
	require.NoError(t, err)

	for i, id := range txs {
		assert.Equal(t, before[i], f.confirmed(id), "transaction %d", id)
	}
}

func TestUndoLastBatch_NoBatch(t *testing.T) {
	f := newFixture(t)

	removed, err := f.engine.UndoLastBatch(f.ctx, true)
	require.NoError(t, err)
	assert.Zero(t, removed)

	batch, err := f.engine.LastBatch(f.ctx)
	require.NoError(t, err)
	assert.Nil(t, batch)
}

func TestStatementLines(t *testing.T) {
	f := newFixture(t)

	f.line("F2", march(31), "2.00", "a", batchA)
	f.line("F1", march(1), "1.00", "a", batchA)
	f.line("F3", domain.Date(2024, time.April, 1), "3.00", "a", batchA)

	lines, err := f.engine.StatementLines(f.ctx, march(17))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "F1", lines[0].ExternalID)
	assert.Equal(t, "F2", lines[1].ExternalID)
}
