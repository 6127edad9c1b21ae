package validate

import (
	"context"
	"fmt"

	"github.com/rumor-ml/commons.systems/cardledger/internal/domain"
)

// ValidationResult contains all validation errors and warnings for a ledger
type ValidationResult struct {
	Errors   []ValidationError   `json:"errors"`
	Warnings []ValidationWarning `json:"warnings"`
}

// OK reports whether no errors were found. Warnings do not count.
func (r *ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// ValidationError represents a validation error
type ValidationError struct {
	Entity  string `json:"entity"` // "card", "transaction", "statement"
	ID      int64  `json:"id"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ValidationWarning represents a non-critical validation issue
type ValidationWarning struct {
	Entity  string `json:"entity"`
	ID      int64  `json:"id"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Snapshot is the full ledger state checked by ValidateSnapshot
type Snapshot struct {
	Cards        []domain.Card
	Transactions []domain.Transaction
	Lines        []domain.StatementLine
}

// Load reads every card, transaction and statement line from repo
func Load(ctx context.Context, repo domain.Repository) (*Snapshot, error) {
	cards, err := repo.ListCards(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := repo.ListTransactions(ctx, domain.TransactionFilter{})
	if err != nil {
		return nil, err
	}
	lines, err := repo.ListStatementLines(ctx, domain.StatementFilter{})
	if err != nil {
		return nil, err
	}
	return &Snapshot{Cards: cards, Transactions: txs, Lines: lines}, nil
}

// Ledger loads the store inside one transaction and validates it
func Ledger(ctx context.Context, store domain.Store) (*ValidationResult, error) {
	var snap *Snapshot
	err := store.WithinTx(ctx, func(repo domain.Repository) error {
		var err error
		snap, err = Load(ctx, repo)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return ValidateSnapshot(snap), nil
}

// ValidateSnapshot checks individual entity constraints, references between
// entities and the pairing invariant: a transaction referenced by a statement
// line must be confirmed. A confirmed transaction without any line is only a
// warning since it may have been confirmed by hand.
func ValidateSnapshot(s *Snapshot) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}

	cardIDs := make(map[int64]bool)
	for _, c := range s.Cards {
		if c.Name == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "card",
				ID:      c.ID,
				Field:   "Name",
				Message: "card name cannot be empty",
			})
		}
		if err := domain.ValidateCycleDay("ClosingDay", c.ClosingDay); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "card",
				ID:      c.ID,
				Field:   "ClosingDay",
				Value:   fmt.Sprint(c.ClosingDay),
				Message: err.Error(),
			})
		}
		if err := domain.ValidateCycleDay("DueDay", c.DueDay); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "card",
				ID:      c.ID,
				Field:   "DueDay",
				Value:   fmt.Sprint(c.DueDay),
				Message: err.Error(),
			})
		}
		if c.Limit.IsNegative() {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "card",
				ID:      c.ID,
				Field:   "Limit",
				Value:   c.Limit.String(),
				Message: "card limit cannot be negative",
			})
		}
		cardIDs[c.ID] = true
	}

	txByID := make(map[int64]*domain.Transaction, len(s.Transactions))
	for i := range s.Transactions {
		txn := &s.Transactions[i]
		txByID[txn.ID] = txn

		if !cardIDs[txn.CardID] {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      txn.ID,
				Field:   "CardID",
				Value:   fmt.Sprint(txn.CardID),
				Message: fmt.Sprintf("references non-existent card: %d", txn.CardID),
			})
		}
		if txn.Installments < 1 || txn.Installments > domain.MaxInstallments {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      txn.ID,
				Field:   "Installments",
				Value:   fmt.Sprint(txn.Installments),
				Message: fmt.Sprintf("installments must be in [1,%d]", domain.MaxInstallments),
			})
		} else if txn.InstallmentNo < 1 || txn.InstallmentNo > txn.Installments {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      txn.ID,
				Field:   "InstallmentNo",
				Value:   fmt.Sprint(txn.InstallmentNo),
				Message: fmt.Sprintf("installment number must be in [1,%d]", txn.Installments),
			})
		}
		if !txn.Amount.Equal(txn.Amount.Round(2)) {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      txn.ID,
				Field:   "Amount",
				Value:   txn.Amount.String(),
				Message: "amount has more than two decimal places",
			})
		}
		if !domain.ValidateCategory(txn.Category) {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Entity:  "transaction",
				ID:      txn.ID,
				Field:   "Category",
				Value:   txn.Category,
				Message: fmt.Sprintf("category is not one of the suggested categories: %s", txn.Category),
			})
		}
	}

	referenced := make(map[int64]bool)
	externalIDs := make(map[string]int64)
	for _, line := range s.Lines {
		if line.ExternalID == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "statement",
				ID:      line.ID,
				Field:   "ExternalID",
				Message: "statement external id cannot be empty",
			})
		} else if prev, ok := externalIDs[line.ExternalID]; ok {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "statement",
				ID:      line.ID,
				Field:   "ExternalID",
				Value:   line.ExternalID,
				Message: fmt.Sprintf("duplicate external id, also used by statement %d", prev),
			})
		} else {
			externalIDs[line.ExternalID] = line.ID
		}

		if (line.MatchedTxID == nil) != (line.MatchedAt == nil) {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "statement",
				ID:      line.ID,
				Field:   "MatchedAt",
				Message: "match reference and match timestamp must be set together",
			})
		}
		if line.MatchedTxID == nil {
			continue
		}

		txID := *line.MatchedTxID
		referenced[txID] = true
		txn, ok := txByID[txID]
		if !ok {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "statement",
				ID:      line.ID,
				Field:   "MatchedTxID",
				Value:   fmt.Sprint(txID),
				Message: fmt.Sprintf("references non-existent transaction: %d", txID),
			})
			continue
		}
		if !txn.Confirmed {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "statement",
				ID:      line.ID,
				Field:   "MatchedTxID",
				Value:   fmt.Sprint(txID),
				Message: fmt.Sprintf("matched transaction %d is not confirmed", txID),
			})
		}
	}

	for _, txn := range s.Transactions {
		if txn.Confirmed && !referenced[txn.ID] {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Entity:  "transaction",
				ID:      txn.ID,
				Field:   "Confirmed",
				Value:   "true",
				Message: "confirmed transaction is not referenced by any statement line",
			})
		}
	}

	return result
}
