package domain

import (
	"context"
	"time"
)

// TransactionFilter narrows ListTransactions. Zero values mean "no constraint".
// From and To are inclusive calendar dates.
type TransactionFilter struct {
	CardID          int64
	From            time.Time
	To              time.Time
	UnconfirmedOnly bool
}

// StatementFilter narrows ListStatementLines. From and To are inclusive.
type StatementFilter struct {
	From          time.Time
	To            time.Time
	BatchID       string
	UnmatchedOnly bool
}

// Repository is the persistence contract used by the ledger, importer and
// reconciliation components. Implementations must return *NotFoundError
// from the Get methods when the id does not exist.
type Repository interface {
	CreateCard(ctx context.Context, c *Card) (int64, error)
	GetCard(ctx context.Context, id int64) (*Card, error)
	ListCards(ctx context.Context) ([]Card, error)

	InsertTransaction(ctx context.Context, t *Transaction) (int64, error)
	GetTransaction(ctx context.Context, id int64) (*Transaction, error)
	// ListTransactions orders by date descending, then id descending
	ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error)
	SetConfirmed(ctx context.Context, txID int64, confirmed bool) error

	// InsertStatementLine returns inserted=false when the external id already exists
	InsertStatementLine(ctx context.Context, s *StatementLine) (id int64, inserted bool, err error)
	GetStatementLine(ctx context.Context, id int64) (*StatementLine, error)
	// ListStatementLines orders by date ascending, then id ascending
	ListStatementLines(ctx context.Context, f StatementFilter) ([]StatementLine, error)
	SetMatch(ctx context.Context, stmtID, txID int64, at time.Time) error
	ClearMatch(ctx context.Context, stmtID int64) error
	// CountLinesMatchedTo counts statement lines referencing txID
	CountLinesMatchedTo(ctx context.Context, txID int64) (int, error)

	// LatestBatch returns nil when no statement line exists
	LatestBatch(ctx context.Context) (*Batch, error)
	// DeleteStatementLines removes the batch's lines and returns the number deleted
	DeleteStatementLines(ctx context.Context, batchID string, unmatchedOnly bool) (int, error)
}

// Store is a Repository that can run a function atomically.
// Inside fn only the supplied Repository may be used.
type Store interface {
	Repository
	WithinTx(ctx context.Context, fn func(Repository) error) error
}
