// Package reconcile pairs imported statement lines with ledger transactions.
//
// A statement line is UNMATCHED or MATCHED to exactly one transaction; a
// transaction is PENDING or CONFIRMED. Every transition updates both sides
// inside a single store transaction so that a transaction is CONFIRMED
// exactly when at least one statement line references it.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/cardledger/internal/domain"
	"github.com/rumor-ml/commons.systems/cardledger/internal/rules"
)

// Tolerance bounds how far apart a line and a transaction may be for AutoMatch
type Tolerance struct {
	Days  int             `json:"days"`
	Value decimal.Decimal `json:"value"`
}

// DefaultTolerance is ±2 days and ±0.01
func DefaultTolerance() Tolerance {
	return Tolerance{Days: 2, Value: decimal.NewFromFloat(0.01)}
}

func (t Tolerance) validate() error {
	if t.Days < 0 {
		return domain.NewValidationError("toleranceDays", fmt.Sprintf("must not be negative, got %d", t.Days))
	}
	if t.Value.IsNegative() {
		return domain.NewValidationError("toleranceValue", fmt.Sprintf("must not be negative, got %s", t.Value.String()))
	}
	return nil
}

// Engine links statement lines to ledger transactions. Every mutation runs
// in a single store transaction.
type Engine struct {
	store domain.Store
	rules *rules.Engine
	log   zerolog.Logger
	now   func() time.Time
}

// NewEngine creates a reconciliation engine. categorizer may be nil, in which
// case materialized transactions always get the reconciliation category.
func NewEngine(store domain.Store, categorizer *rules.Engine, log zerolog.Logger) *Engine {
	return &Engine{store: store, rules: categorizer, log: log, now: time.Now}
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Second)
}

// AutoMatch pairs every unmatched line dated in month with the first
// unconfirmed transaction, in store order (newest first), dated within
// tol.Days of the line and whose amount differs by at most tol.Value.
// A transaction is paired with at most one line per run. It returns the
// number of lines matched.
func (e *Engine) AutoMatch(ctx context.Context, month time.Time, tol Tolerance) (int, error) {
	if err := tol.validate(); err != nil {
		return 0, err
	}

	first, next := domain.MonthRange(month)
	last := next.AddDate(0, 0, -1)
	window := time.Duration(tol.Days) * 24 * time.Hour

	matched := 0
	err := e.store.WithinTx(ctx, func(repo domain.Repository) error {
		lines, err := repo.ListStatementLines(ctx, domain.StatementFilter{From: first, To: last, UnmatchedOnly: true})
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return nil
		}

		candidates, err := repo.ListTransactions(ctx, domain.TransactionFilter{
			From:            first.AddDate(0, 0, -tol.Days),
			To:              last.AddDate(0, 0, tol.Days),
			UnconfirmedOnly: true,
		})
		if err != nil {
			return err
		}

		taken := make(map[int64]bool)
		at := e.timestamp()
		for _, line := range lines {
			for _, tx := range candidates {
				if taken[tx.ID] || !withinDays(tx.Date, line.Date, window) {
					continue
				}
				if tx.Amount.Sub(line.Amount).Abs().GreaterThan(tol.Value) {
					continue
				}

				if err := pair(ctx, repo, line.ID, tx.ID, at); err != nil {
					return err
				}
				taken[tx.ID] = true
				matched++
				break
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to auto-match %s: %w", first.Format("2006-01"), err)
	}

	e.log.Info().
		Str("month", first.Format("2006-01")).
		Int("days", tol.Days).
		Str("value", tol.Value.String()).
		Int("matched", matched).
		Msg("auto-match finished")
	return matched, nil
}

func withinDays(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}

// Match pairs a line with a transaction without any tolerance check.
// A line already paired elsewhere is released from its previous transaction first.
func (e *Engine) Match(ctx context.Context, stmtID, txID int64) error {
	err := e.store.WithinTx(ctx, func(repo domain.Repository) error {
		line, err := repo.GetStatementLine(ctx, stmtID)
		if err != nil {
			return err
		}
		if _, err := repo.GetTransaction(ctx, txID); err != nil {
			return err
		}
		if err := unpair(ctx, repo, line); err != nil {
			return err
		}
		return pair(ctx, repo, stmtID, txID, e.timestamp())
	})
	if err != nil {
		return err
	}

	e.log.Info().Int64("line", stmtID).Int64("transaction", txID).Msg("statement line matched")
	return nil
}

// Unmatch reverses the pairing of one line. Unmatched lines are left alone.
func (e *Engine) Unmatch(ctx context.Context, stmtID int64) error {
	return e.store.WithinTx(ctx, func(repo domain.Repository) error {
		line, err := repo.GetStatementLine(ctx, stmtID)
		if err != nil {
			return err
		}
		if !line.Matched() {
			return nil
		}
		if err := unpair(ctx, repo, line); err != nil {
			return err
		}
		e.log.Info().Int64("line", stmtID).Int64("transaction", *line.MatchedTxID).Msg("statement line unmatched")
		return nil
	})
}

// Materialize creates a confirmed single-installment transaction on cardID
// from a statement line and pairs the two. It returns the new transaction id.
func (e *Engine) Materialize(ctx context.Context, stmtID, cardID int64) (int64, error) {
	var txID int64
	err := e.store.WithinTx(ctx, func(repo domain.Repository) error {
		line, err := repo.GetStatementLine(ctx, stmtID)
		if err != nil {
			return err
		}
		if _, err := repo.GetCard(ctx, cardID); err != nil {
			return err
		}
		if err := unpair(ctx, repo, line); err != nil {
			return err
		}

		desc := strings.TrimSpace(line.Description)
		if desc == "" {
			desc = domain.TagStatement
		}
		tx := &domain.Transaction{
			Date:          line.Date,
			Description:   desc,
			Category:      e.rules.Categorize(desc, domain.CategoryReconciled),
			CardID:        cardID,
			Amount:        line.Amount,
			Installments:  1,
			InstallmentNo: 1,
			Tags:          domain.TagStatement,
			Confirmed:     true,
		}
		if txID, err = repo.InsertTransaction(ctx, tx); err != nil {
			return err
		}
		return repo.SetMatch(ctx, stmtID, txID, e.timestamp())
	})
	if err != nil {
		return 0, err
	}

	e.log.Info().Int64("line", stmtID).Int64("card", cardID).Int64("transaction", txID).Msg("transaction materialized")
	return txID, nil
}

// UndoLastBatch removes the most recently imported batch. Without force only
// its unmatched lines are deleted. With force every line is deleted and the
// transactions they confirmed go back to pending unless another line still
// references them. It returns the number of lines removed, 0 when there is
// no batch.
func (e *Engine) UndoLastBatch(ctx context.Context, force bool) (int, error) {
	var (
		removed int
		batchID string
	)
	err := e.store.WithinTx(ctx, func(repo domain.Repository) error {
		batch, err := repo.LatestBatch(ctx)
		if err != nil || batch == nil {
			return err
		}
		batchID = batch.ID

		if force {
			lines, err := repo.ListStatementLines(ctx, domain.StatementFilter{BatchID: batch.ID})
			if err != nil {
				return err
			}
			var released []int64
			for i := range lines {
				if !lines[i].Matched() {
					continue
				}
				if err := repo.ClearMatch(ctx, lines[i].ID); err != nil {
					return err
				}
				released = append(released, *lines[i].MatchedTxID)
			}
			for _, txID := range released {
				if err := release(ctx, repo, txID); err != nil {
					return err
				}
			}
		}

		removed, err = repo.DeleteStatementLines(ctx, batch.ID, !force)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to undo last batch: %w", err)
	}

	if batchID != "" {
		e.log.Info().Str("batch", batchID).Bool("force", force).Int("removed", removed).Msg("batch undone")
	}
	return removed, nil
}

// LastBatch returns the most recent import batch, or nil when none exists
func (e *Engine) LastBatch(ctx context.Context) (*domain.Batch, error) {
	return e.store.LatestBatch(ctx)
}

// StatementLines returns the lines dated in month in date order
func (e *Engine) StatementLines(ctx context.Context, month time.Time) ([]domain.StatementLine, error) {
	first, next := domain.MonthRange(month)
	return e.store.ListStatementLines(ctx, domain.StatementFilter{From: first, To: next.AddDate(0, 0, -1)})
}

// pair links a line to a transaction and confirms the transaction
func pair(ctx context.Context, repo domain.Repository, stmtID, txID int64, at time.Time) error {
	if err := repo.SetMatch(ctx, stmtID, txID, at); err != nil {
		return err
	}
	return repo.SetConfirmed(ctx, txID, true)
}

// unpair clears a line's match, if any, and releases its transaction
func unpair(ctx context.Context, repo domain.Repository, line *domain.StatementLine) error {
	if !line.Matched() {
		return nil
	}
	if err := repo.ClearMatch(ctx, line.ID); err != nil {
		return err
	}
	return release(ctx, repo, *line.MatchedTxID)
}

// release returns a transaction to pending once no line references it
func release(ctx context.Context, repo domain.Repository, txID int64) error {
	n, err := repo.CountLinesMatchedTo(ctx, txID)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return repo.SetConfirmed(ctx, txID, false)
}
