package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/cardledger/internal/domain"
)

// DayStatus compares a day's statement total with its ledger total
type DayStatus string

const (
	DayEmpty    DayStatus = "EMPTY"
	DayBalanced DayStatus = "BALANCED"
	DayMismatch DayStatus = "MISMATCH"
)

var balanceEpsilon = decimal.New(1, -2)

// DaySummary holds the per-day totals of a month
type DaySummary struct {
	Date         time.Time       `json:"date"`
	Statement    decimal.Decimal `json:"statement"`
	Ledger       decimal.Decimal `json:"ledger"`
	Difference   decimal.Decimal `json:"difference"`
	Status       DayStatus       `json:"status"`
	Lines        int             `json:"lines"`
	Transactions int             `json:"transactions"`
}

// MonthSummary aggregates the statement lines of one month.
// Debits keep their negative sign so Net = Credits + Debits.
type MonthSummary struct {
	Month     string          `json:"month"`
	Credits   decimal.Decimal `json:"credits"`
	Debits    decimal.Decimal `json:"debits"`
	Net       decimal.Decimal `json:"net"`
	Lines     int             `json:"lines"`
	Matched   int             `json:"matched"`
	Unmatched int             `json:"unmatched"`
	Days      []DaySummary    `json:"days"`
}

// MonthSummary totals the month's statement lines and compares, day by day,
// the statement sum with the sum of every ledger transaction dated that day.
func (e *Engine) MonthSummary(ctx context.Context, month time.Time) (*MonthSummary, error) {
	first, next := domain.MonthRange(month)
	last := next.AddDate(0, 0, -1)

	lines, err := e.store.ListStatementLines(ctx, domain.StatementFilter{From: first, To: last})
	if err != nil {
		return nil, fmt.Errorf("failed to load statement lines: %w", err)
	}
	txs, err := e.store.ListTransactions(ctx, domain.TransactionFilter{From: first, To: last})
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	sum := &MonthSummary{
		Month:   first.Format("2006-01"),
		Credits: decimal.Zero,
		Debits:  decimal.Zero,
	}

	days := make([]DaySummary, last.Day())
	for i := range days {
		days[i] = DaySummary{Date: first.AddDate(0, 0, i), Statement: decimal.Zero, Ledger: decimal.Zero}
	}

	for _, l := range lines {
		switch {
		case l.Amount.IsPositive():
			sum.Credits = sum.Credits.Add(l.Amount)
		case l.Amount.IsNegative():
			sum.Debits = sum.Debits.Add(l.Amount)
		}
		if l.Matched() {
			sum.Matched++
		}
		d := &days[l.Date.Day()-1]
		d.Statement = d.Statement.Add(l.Amount)
		d.Lines++
	}
	for _, t := range txs {
		d := &days[t.Date.Day()-1]
		d.Ledger = d.Ledger.Add(t.Amount)
		d.Transactions++
	}

	for i := range days {
		d := &days[i]
		d.Statement = d.Statement.Round(2)
		d.Ledger = d.Ledger.Round(2)
		d.Difference = d.Statement.Sub(d.Ledger).Round(2)
		switch {
		case d.Lines == 0 && d.Transactions == 0:
			d.Status = DayEmpty
		case d.Difference.Abs().LessThan(balanceEpsilon):
			d.Status = DayBalanced
		default:
			d.Status = DayMismatch
		}
	}

	sum.Lines = len(lines)
	sum.Unmatched = sum.Lines - sum.Matched
	sum.Credits = sum.Credits.Round(2)
	sum.Debits = sum.Debits.Round(2)
	sum.Net = sum.Credits.Add(sum.Debits)
	sum.Days = days
	return sum, nil
}
