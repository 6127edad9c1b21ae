// Package installment splits a purchase into monthly installment transactions.
package installment

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/cardledger/internal/domain"
)

// Purchase is a card purchase before it is split into ledger rows
type Purchase struct {
	CardID       int64
	Date         time.Time
	Description  string
	Category     string
	Amount       decimal.Decimal
	Installments int
	Tags         string
	Confirmed    bool
}

// Validate checks the purchase fields and normalizes them in place:
// description and category are trimmed, the amount is rounded to cents and
// installments below 1 are clamped to 1.
func (p *Purchase) Validate() error {
	p.Description = strings.TrimSpace(p.Description)
	p.Category = strings.TrimSpace(p.Category)
	p.Tags = strings.TrimSpace(p.Tags)

	if p.Description == "" {
		return domain.NewValidationError("description", "description cannot be empty")
	}
	if p.Category == "" {
		p.Category = domain.CategoryOther
	}
	p.Amount = p.Amount.Round(2)
	if !p.Amount.IsPositive() {
		return domain.NewValidationError("amount", fmt.Sprintf("must be positive, got %s", p.Amount.StringFixed(2)))
	}
	if p.Installments < 1 {
		p.Installments = 1
	}
	if p.Installments > domain.MaxInstallments {
		return domain.NewValidationError("installments", fmt.Sprintf("at most %d installments allowed, got %d", domain.MaxInstallments, p.Installments))
	}
	if p.Date.IsZero() {
		return domain.NewValidationError("date", "purchase date is required")
	}
	p.Date = domain.DateOf(p.Date)
	return nil
}

// Split divides total into n amounts rounded to cents. The first n-1 receive
// round(total/n, 2) and the last absorbs the rounding remainder, so the
// amounts always sum exactly to the rounded total. n below 1 is treated as 1.
func Split(total decimal.Decimal, n int) []decimal.Decimal {
	if n < 1 {
		n = 1
	}
	total = total.Round(2)
	base := total.Div(decimal.NewFromInt(int64(n))).Round(2)

	parts := make([]decimal.Decimal, n)
	acc := decimal.Zero
	for i := 0; i < n-1; i++ {
		parts[i] = base
		acc = acc.Add(base)
	}
	parts[n-1] = total.Sub(acc).Round(2)
	return parts
}

// DueDate returns the date of installment i (1-based) for a purchase made on
// first: i-1 months later, clamped to the last day of the target month when
// the purchase day does not exist there.
func DueDate(first time.Time, i int) time.Time {
	y, m, day := first.Date()
	target := domain.Date(y, m+time.Month(i-1), 1)
	last := target.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return domain.Date(target.Year(), target.Month(), day)
}

// Plan expands a validated purchase into one transaction per installment.
// Descriptions gain an " (i/n)" suffix when there is more than one installment.
func Plan(p Purchase) []domain.Transaction {
	n := p.Installments
	if n < 1 {
		n = 1
	}
	amounts := Split(p.Amount, n)

	rows := make([]domain.Transaction, n)
	for i := range rows {
		desc := p.Description
		if n > 1 {
			desc = fmt.Sprintf("%s (%d/%d)", p.Description, i+1, n)
		}
		rows[i] = domain.Transaction{
			Date:          DueDate(p.Date, i+1),
			Description:   desc,
			Category:      p.Category,
			CardID:        p.CardID,
			Amount:        amounts[i],
			Installments:  n,
			InstallmentNo: i + 1,
			Tags:          p.Tags,
			Confirmed:     p.Confirmed,
		}
	}
	return rows
}
