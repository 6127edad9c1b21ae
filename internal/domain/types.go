// Package domain holds the ledger entities shared by every cardledger component.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the persisted calendar date format (ISO YYYY-MM-DD)
const DateLayout = "2006-01-02"

// TimestampLayout is the persisted format for import and match timestamps
const TimestampLayout = "2006-01-02T15:04:05"

const (
	// MinCycleDay and MaxCycleDay bound closing and due days so that the day
	// exists in every month of every year.
	MinCycleDay = 1
	MaxCycleDay = 28

	// MaxInstallments caps how many monthly installments a purchase may be split into
	MaxInstallments = 60
)

// Card is a registered credit card.
// Limit is informational only and never enforced.
type Card struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Limit      decimal.Decimal `json:"limit"`
	ClosingDay int             `json:"closingDay"`
	DueDay     int             `json:"dueDay"`
}

// Transaction is a ledger entry owned by a card.
// Amount sign convention: positive = charge.
type Transaction struct {
	ID            int64           `json:"id"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	CardID        int64           `json:"cardId"`
	Amount        decimal.Decimal `json:"amount"`
	Installments  int             `json:"installments"`
	InstallmentNo int             `json:"installmentNo"`
	Tags          string          `json:"tags,omitempty"`
	Confirmed     bool            `json:"confirmed"`
}

// StatementLine is one normalized record imported from a bank statement.
// MatchedTxID and MatchedAt are nil while the line is unmatched.
type StatementLine struct {
	ID          int64           `json:"id"`
	AccountName string          `json:"accountName"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	ExternalID  string          `json:"externalId"`
	MatchedTxID *int64          `json:"matchedTxId,omitempty"`
	MatchedAt   *time.Time      `json:"matchedAt,omitempty"`
	ImportedAt  time.Time       `json:"importedAt"`
	BatchID     string          `json:"batchId"`
}

// Matched reports whether the line is paired with a transaction
func (s *StatementLine) Matched() bool {
	return s.MatchedTxID != nil
}

// Batch groups the statement lines inserted by one import call.
// It is derived from the lines and never stored on its own.
type Batch struct {
	ID         string    `json:"batchId"`
	ImportedAt time.Time `json:"importedAt"`
	Total      int       `json:"total"`
	Matched    int       `json:"matched"`
}

// NewCard creates a validated card
func NewCard(name string, limit decimal.Decimal, closingDay, dueDay int) (*Card, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewValidationError("name", "card name cannot be empty")
	}
	if limit.IsNegative() {
		return nil, NewValidationError("limit", "credit limit cannot be negative")
	}
	if err := ValidateCycleDay("closingDay", closingDay); err != nil {
		return nil, err
	}
	if err := ValidateCycleDay("dueDay", dueDay); err != nil {
		return nil, err
	}

	return &Card{
		Name:       name,
		Limit:      limit.Round(2),
		ClosingDay: closingDay,
		DueDay:     dueDay,
	}, nil
}

// ValidateCycleDay checks that a closing or due day is within [MinCycleDay, MaxCycleDay]
func ValidateCycleDay(field string, day int) error {
	if day < MinCycleDay || day > MaxCycleDay {
		return NewValidationError(field, fmt.Sprintf("must be between %d and %d, got %d", MinCycleDay, MaxCycleDay, day))
	}
	return nil
}

// Date returns the calendar date y-m-d at UTC midnight.
// Out-of-range months and days are normalized the way time.Date does.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf truncates t to its calendar date at UTC midnight
func DateOf(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// ParseDate parses an ISO YYYY-MM-DD calendar date
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return d, nil
}

// FormatDate formats t as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// MonthRange returns the first day of month's month and the first day of the next month.
// The range is half-open: [first, next).
func MonthRange(month time.Time) (first, next time.Time) {
	first = Date(month.Year(), month.Month(), 1)
	return first, first.AddDate(0, 1, 0)
}

// Category is a free-text transaction category. The constants below are the
// suggested set offered by the CLI; any non-empty value is accepted.
type Category = string

const (
	CategoryFood          Category = "Alimentação"
	CategoryGroceries     Category = "Mercado"
	CategoryTransport     Category = "Transporte"
	CategoryHealth        Category = "Saúde"
	CategoryLeisure       Category = "Lazer"
	CategoryEducation     Category = "Educação"
	CategoryHousing       Category = "Moradia"
	CategorySubscriptions Category = "Assinaturas"
	CategoryClothing      Category = "Vestuário"
	CategoryTechnology    Category = "Tecnologia"
	CategoryOther         Category = "Outros"

	// CategoryReconciled is assigned to transactions materialized from statement lines
	// when no categorization rule applies.
	CategoryReconciled Category = "Conciliado"

	// TagStatement marks transactions created from an imported statement
	TagStatement = "OFX"
)

// DefaultCategories lists the suggested categories in display order
func DefaultCategories() []Category {
	return []Category{
		CategoryFood, CategoryGroceries, CategoryTransport, CategoryHealth,
		CategoryLeisure, CategoryEducation, CategoryHousing, CategorySubscriptions,
		CategoryClothing, CategoryTechnology, CategoryOther,
	}
}

// ValidateCategory reports whether c is one of the suggested categories or
// the reconciliation category
func ValidateCategory(c Category) bool {
	if c == CategoryReconciled {
		return true
	}
	for _, known := range DefaultCategories() {
		if c == known {
			return true
		}
	}
	return false
}
