package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/cardledger/internal/domain"
)

// repo implements domain.Repository on top of a querier
type repo struct {
	q querier
}

const cardColumns = `id, name, COALESCE(limit_value, 0), closing_day, due_day`

const transactionColumns = `id, tx_date, description, COALESCE(category, ''), card_id, amount,
	installments, installment_no, COALESCE(tags, ''), confirmed`

const statementColumns = `id, COALESCE(account_name, ''), trx_date, COALESCE(description, ''), amount,
	COALESCE(external_id, ''), matched_tx_id, matched_at, COALESCE(imported_at, ''), COALESCE(batch_id, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateCard inserts the card and returns its id
func (r *repo) CreateCard(ctx context.Context, c *domain.Card) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO cards(name, limit_value, closing_day, due_day) VALUES(?, ?, ?, ?)`,
		c.Name, c.Limit.InexactFloat64(), c.ClosingDay, c.DueDay)
	if err != nil {
		return 0, fmt.Errorf("failed to insert card: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read card id: %w", err)
	}
	return id, nil
}

// GetCard returns the card or a *domain.NotFoundError
func (r *repo) GetCard(ctx context.Context, id int64) (*domain.Card, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("card", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load card: %w", err)
	}
	return c, nil
}

// ListCards returns all cards ordered by name
func (r *repo) ListCards(ctx context.Context) ([]domain.Card, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	cards := []domain.Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

func scanCard(s rowScanner) (*domain.Card, error) {
	var (
		c     domain.Card
		limit float64
	)
	if err := s.Scan(&c.ID, &c.Name, &limit, &c.ClosingDay, &c.DueDay); err != nil {
		return nil, err
	}
	c.Limit = money(limit)
	return &c, nil
}

// InsertTransaction inserts t and returns its id
func (r *repo) InsertTransaction(ctx context.Context, t *domain.Transaction) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO transactions(tx_date, description, category, card_id, amount, installments, installment_no, tags, confirmed)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		domain.FormatDate(t.Date), t.Description, nullString(t.Category), t.CardID,
		t.Amount.InexactFloat64(), t.Installments, t.InstallmentNo, nullString(t.Tags), boolInt(t.Confirmed))
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read transaction id: %w", err)
	}
	return id, nil
}

// GetTransaction returns the transaction or a *domain.NotFoundError
func (r *repo) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	return t, nil
}

// ListTransactions returns transactions matching f, newest first
func (r *repo) ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.CardID != 0 {
		where = append(where, "card_id = ?")
		args = append(args, f.CardID)
	}
	if !f.From.IsZero() {
		where = append(where, "date(tx_date) >= date(?)")
		args = append(args, domain.FormatDate(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "date(tx_date) <= date(?)")
		args = append(args, domain.FormatDate(f.To))
	}
	if f.UnconfirmedOnly {
		where = append(where, "confirmed = 0")
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions` + whereClause(where) +
		` ORDER BY date(tx_date) DESC, id DESC`
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txs := []domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func scanTransaction(s rowScanner) (*domain.Transaction, error) {
	var (
		t         domain.Transaction
		date      string
		amount    float64
		confirmed int
	)
	err := s.Scan(&t.ID, &date, &t.Description, &t.Category, &t.CardID, &amount,
		&t.Installments, &t.InstallmentNo, &t.Tags, &confirmed)
	if err != nil {
		return nil, err
	}
	if t.Date, err = domain.ParseDate(date); err != nil {
		return nil, fmt.Errorf("transaction %d: %w", t.ID, err)
	}
	t.Amount = money(amount)
	t.Confirmed = confirmed != 0
	return &t, nil
}

// SetConfirmed flips the confirmed flag of a transaction
func (r *repo) SetConfirmed(ctx context.Context, txID int64, confirmed bool) error {
	res, err := r.q.ExecContext(ctx, `UPDATE transactions SET confirmed = ? WHERE id = ?`, boolInt(confirmed), txID)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return requireAffected(res, "transaction", txID)
}

// InsertStatementLine inserts s unless its external id is already stored
func (r *repo) InsertStatementLine(ctx context.Context, s *domain.StatementLine) (int64, bool, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO bank_statements(account_name, trx_date, description, amount, external_id, imported_at, batch_id)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO NOTHING`,
		s.AccountName, domain.FormatDate(s.Date), s.Description, s.Amount.InexactFloat64(),
		nullString(s.ExternalID), s.ImportedAt.UTC().Format(domain.TimestampLayout), nullString(s.BatchID))
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert statement line: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read statement line id: %w", err)
	}
	return id, true, nil
}

// GetStatementLine returns the line or a *domain.NotFoundError
func (r *repo) GetStatementLine(ctx context.Context, id int64) (*domain.StatementLine, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+statementColumns+` FROM bank_statements WHERE id = ?`, id)
	s, err := scanStatementLine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("statement line", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load statement line: %w", err)
	}
	return s, nil
}

// ListStatementLines returns lines matching f, oldest first
func (r *repo) ListStatementLines(ctx context.Context, f domain.StatementFilter) ([]domain.StatementLine, error) {
	var (
		where []string
		args  []any
	)
	if !f.From.IsZero() {
		where = append(where, "date(trx_date) >= date(?)")
		args = append(args, domain.FormatDate(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "date(trx_date) <= date(?)")
		args = append(args, domain.FormatDate(f.To))
	}
	if f.BatchID != "" {
		where = append(where, "batch_id = ?")
		args = append(args, f.BatchID)
	}
	if f.UnmatchedOnly {
		where = append(where, "matched_tx_id IS NULL")
	}

	query := `SELECT ` + statementColumns + ` FROM bank_statements` + whereClause(where) +
		` ORDER BY date(trx_date), id`
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list statement lines: %w", err)
	}
	defer rows.Close()

	lines := []domain.StatementLine{}
	for rows.Next() {
		s, err := scanStatementLine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan statement line: %w", err)
		}
		lines = append(lines, *s)
	}
	return lines, rows.Err()
}

func scanStatementLine(sc rowScanner) (*domain.StatementLine, error) {
	var (
		s          domain.StatementLine
		date       string
		amount     float64
		matchedTx  sql.NullInt64
		matchedAt  sql.NullString
		importedAt string
	)
	err := sc.Scan(&s.ID, &s.AccountName, &date, &s.Description, &amount,
		&s.ExternalID, &matchedTx, &matchedAt, &importedAt, &s.BatchID)
	if err != nil {
		return nil, err
	}
	if s.Date, err = domain.ParseDate(date); err != nil {
		return nil, fmt.Errorf("statement line %d: %w", s.ID, err)
	}
	s.Amount = money(amount)
	if matchedTx.Valid {
		id := matchedTx.Int64
		s.MatchedTxID = &id
	}
	if matchedAt.Valid && matchedAt.String != "" {
		at, err := parseTimestamp(matchedAt.String)
		if err != nil {
			return nil, fmt.Errorf("statement line %d matched_at: %w", s.ID, err)
		}
		s.MatchedAt = &at
	}
	if importedAt != "" {
		if s.ImportedAt, err = parseTimestamp(importedAt); err != nil {
			return nil, fmt.Errorf("statement line %d imported_at: %w", s.ID, err)
		}
	}
	return &s, nil
}

// SetMatch pairs a statement line with a transaction
func (r *repo) SetMatch(ctx context.Context, stmtID, txID int64, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE bank_statements SET matched_tx_id = ?, matched_at = ? WHERE id = ?`,
		txID, at.UTC().Format(domain.TimestampLayout), stmtID)
	if err != nil {
		return fmt.Errorf("failed to match statement line: %w", err)
	}
	return requireAffected(res, "statement line", stmtID)
}

// ClearMatch removes the pairing from a statement line
func (r *repo) ClearMatch(ctx context.Context, stmtID int64) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE bank_statements SET matched_tx_id = NULL, matched_at = NULL WHERE id = ?`, stmtID)
	if err != nil {
		return fmt.Errorf("failed to unmatch statement line: %w", err)
	}
	return requireAffected(res, "statement line", stmtID)
}

// CountLinesMatchedTo counts statement lines paired with txID
func (r *repo) CountLinesMatchedTo(ctx context.Context, txID int64) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank_statements WHERE matched_tx_id = ?`, txID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count matched lines: %w", err)
	}
	return n, nil
}

// LatestBatch returns the most recently imported batch, or nil when there is none
func (r *repo) LatestBatch(ctx context.Context) (*domain.Batch, error) {
	var (
		b          domain.Batch
		importedAt string
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT batch_id, imported_at FROM bank_statements
		WHERE batch_id IS NOT NULL AND batch_id <> ''
		ORDER BY imported_at DESC, id DESC
		LIMIT 1`).Scan(&b.ID, &importedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest batch: %w", err)
	}
	if b.ImportedAt, err = parseTimestamp(importedAt); err != nil {
		return nil, fmt.Errorf("batch %s imported_at: %w", b.ID, err)
	}

	err = r.q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN matched_tx_id IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM bank_statements WHERE batch_id = ?`, b.ID).Scan(&b.Total, &b.Matched)
	if err != nil {
		return nil, fmt.Errorf("failed to count batch lines: %w", err)
	}
	return &b, nil
}

// DeleteStatementLines removes the lines of a batch, optionally only the unmatched ones
func (r *repo) DeleteStatementLines(ctx context.Context, batchID string, unmatchedOnly bool) (int, error) {
	query := `DELETE FROM bank_statements WHERE batch_id = ?`
	if unmatchedOnly {
		query += ` AND matched_tx_id IS NULL`
	}
	res, err := r.q.ExecContext(ctx, query, batchID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete batch lines: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func requireAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError(entity, id)
	}
	return nil
}

// money converts a REAL column back to a cent-rounded decimal
func money(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseTimestamp accepts the stored layout plus RFC 3339 for rows written by other tools
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(domain.TimestampLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
