package validate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/cardledger/internal/domain"
	"github.com/rumor-ml/commons.systems/cardledger/internal/store"
)

func validSnapshot() *Snapshot {
	matched := int64(10)
	at := time.Date(2024, time.March, 20, 10, 0, 0, 0, time.UTC)
	return &Snapshot{
		Cards: []domain.Card{
			{ID: 1, Name: "Nubank", Limit: decimal.NewFromInt(5000), ClosingDay: 15, DueDay: 7},
		},
		Transactions: []domain.Transaction{
			{ID: 10, CardID: 1, Date: domain.Date(2024, time.March, 5), Description: "Mercado", Category: domain.CategoryGroceries, Amount: decimal.RequireFromString("45.90"), Installments: 1, InstallmentNo: 1, Confirmed: true},
			{ID: 11, CardID: 1, Date: domain.Date(2024, time.March, 6), Description: "TV (2/3)", Category: domain.CategoryTechnology, Amount: decimal.RequireFromString("100.00"), Installments: 3, InstallmentNo: 2},
		},
		Lines: []domain.StatementLine{
			{ID: 100, ExternalID: "F1", Date: domain.Date(2024, time.March, 5), Amount: decimal.RequireFromString("45.90"), MatchedTxID: &matched, MatchedAt: &at},
			{ID: 101, ExternalID: "F2", Date: domain.Date(2024, time.March, 6), Amount: decimal.RequireFromString("-10.00")},
		},
	}
}

func hasError(r *ValidationResult, entity, field string) bool {
	for _, e := range r.Errors {
		if e.Entity == entity && e.Field == field {
			return true
		}
	}
	return false
}

func TestValidateSnapshot_Empty(t *testing.T) {
	result := ValidateSnapshot(&Snapshot{})

	if !result.OK() {
		t.Errorf("empty ledger should have no errors, got %d", len(result.Errors))
	}
}

func TestValidateSnapshot_Valid(t *testing.T) {
	result := ValidateSnapshot(validSnapshot())

	if !result.OK() {
		t.Errorf("valid ledger should have no errors, got %d:", len(result.Errors))
		for _, e := range result.Errors {
			t.Errorf("  - %s %d: %s", e.Entity, e.ID, e.Message)
		}
	}
	if len(result.Warnings) != 0 {
		t.Errorf("valid ledger should have no warnings, got %+v", result.Warnings)
	}
}

func TestValidateSnapshot_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Snapshot)
		entity string
		field  string
	}{
		{"empty card name", func(s *Snapshot) { s.Cards[0].Name = "" }, "card", "Name"},
		{"closing day out of range", func(s *Snapshot) { s.Cards[0].ClosingDay = 29 }, "card", "ClosingDay"},
		{"due day out of range", func(s *Snapshot) { s.Cards[0].DueDay = 0 }, "card", "DueDay"},
		{"negative limit", func(s *Snapshot) { s.Cards[0].Limit = decimal.NewFromInt(-1) }, "card", "Limit"},
		{"unknown card", func(s *Snapshot) { s.Transactions[1].CardID = 9 }, "transaction", "CardID"},
		{"too many installments", func(s *Snapshot) { s.Transactions[1].Installments = 61 }, "transaction", "Installments"},
		{"installment number past total", func(s *Snapshot) { s.Transactions[1].InstallmentNo = 4 }, "transaction", "InstallmentNo"},
		{"sub-cent amount", func(s *Snapshot) { s.Transactions[1].Amount = decimal.RequireFromString("1.005") }, "transaction", "Amount"},
		{"empty external id", func(s *Snapshot) { s.Lines[1].ExternalID = "" }, "statement", "ExternalID"},
		{"duplicate external id", func(s *Snapshot) { s.Lines[1].ExternalID = "F1" }, "statement", "ExternalID"},
		{"match without timestamp", func(s *Snapshot) { s.Lines[0].MatchedAt = nil }, "statement", "MatchedAt"},
		{"matched transaction pending", func(s *Snapshot) { s.Transactions[0].Confirmed = false }, "statement", "MatchedTxID"},
		{"dangling match", func(s *Snapshot) {
			missing := int64(99)
			s.Lines[0].MatchedTxID = &missing
		}, "statement", "MatchedTxID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSnapshot()
			tt.mutate(s)
			result := ValidateSnapshot(s)
			if result.OK() {
				t.Fatal("expected validation errors")
			}
			if !hasError(result, tt.entity, tt.field) {
				t.Errorf("expected %s %s error, got %+v", tt.entity, tt.field, result.Errors)
			}
		})
	}
}

func TestValidateSnapshot_Warnings(t *testing.T) {
	s := validSnapshot()
	s.Transactions[1].Confirmed = true
	s.Transactions[1].Category = "Presentes"

	result := ValidateSnapshot(s)
	if !result.OK() {
		t.Fatalf("warnings must not produce errors, got %+v", result.Errors)
	}
	if len(result.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %+v", result.Warnings)
	}
	fields := map[string]bool{}
	for _, w := range result.Warnings {
		fields[w.Field] = true
	}
	if !fields["Confirmed"] || !fields["Category"] {
		t.Errorf("unexpected warnings: %+v", result.Warnings)
	}
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	card, err := domain.NewCard("Nubank", decimal.NewFromInt(1000), 15, 7)
	if err != nil {
		t.Fatalf("NewCard() error = %v", err)
	}
	cardID, err := s.CreateCard(ctx, card)
	if err != nil {
		t.Fatalf("CreateCard() error = %v", err)
	}
	txID, err := s.InsertTransaction(ctx, &domain.Transaction{
		Date: domain.Date(2024, time.March, 5), Description: "Mercado", Category: domain.CategoryGroceries,
		CardID: cardID, Amount: decimal.RequireFromString("45.90"), Installments: 1, InstallmentNo: 1,
	})
	if err != nil {
		t.Fatalf("InsertTransaction() error = %v", err)
	}
	stmtID, _, err := s.InsertStatementLine(ctx, &domain.StatementLine{
		AccountName: "Conta", Date: domain.Date(2024, time.March, 5), Description: "MERCADO",
		Amount: decimal.RequireFromString("45.90"), ExternalID: "F1", ImportedAt: time.Now(), BatchID: "b",
	})
	if err != nil {
		t.Fatalf("InsertStatementLine() error = %v", err)
	}

	// a match whose transaction was never confirmed breaks the pairing invariant
	if err := s.SetMatch(ctx, stmtID, txID, time.Now()); err != nil {
		t.Fatalf("SetMatch() error = %v", err)
	}
	result, err := Ledger(ctx, s)
	if err != nil {
		t.Fatalf("Ledger() error = %v", err)
	}
	if !hasError(result, "statement", "MatchedTxID") {
		t.Errorf("expected pairing error, got %+v", result.Errors)
	}

	if err := s.SetConfirmed(ctx, txID, true); err != nil {
		t.Fatalf("SetConfirmed() error = %v", err)
	}
	result, err = Ledger(ctx, s)
	if err != nil {
		t.Fatalf("Ledger() error = %v", err)
	}
	if !result.OK() {
		t.Errorf("expected consistent ledger, got %+v", result.Errors)
	}
}
