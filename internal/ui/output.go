// Package ui renders command results for a terminal.
package ui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rumor-ml/commons.systems/cardledger/internal/domain"
	"github.com/rumor-ml/commons.systems/cardledger/internal/importer"
	"github.com/rumor-ml/commons.systems/cardledger/internal/ledger"
	"github.com/rumor-ml/commons.systems/cardledger/internal/reconcile"
	"github.com/rumor-ml/commons.systems/cardledger/internal/validate"
)

const lineWidth = 60

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	blue   = color.New(color.FgBlue)
	red    = color.New(color.FgRed)

	money = message.NewPrinter(language.BrazilianPortuguese)
)

// Printer writes human-readable output to w
type Printer struct {
	w io.Writer
}

func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Header prints a formatted header
func (p *Printer) Header(text string) {
	line := strings.Repeat("=", lineWidth)
	green.Fprintf(p.w, "\n%s\n", line)
	green.Fprintf(p.w, "%s\n", center(text, lineWidth))
	green.Fprintf(p.w, "%s\n\n", line)
}

// Step prints a step indicator
func (p *Printer) Step(stepNum, totalSteps int, text string) {
	yellow.Fprintf(p.w, "[%d/%d] %s\n", stepNum, totalSteps, text)
}

func (p *Printer) Success(text string) {
	green.Fprintf(p.w, "  → %s\n", text)
}

func (p *Printer) Info(text string) {
	fmt.Fprintf(p.w, "  → %s\n", text)
}

func (p *Printer) Warning(text string) {
	yellow.Fprintf(p.w, "  ⚠ %s\n", text)
}

func (p *Printer) Error(text string) {
	red.Fprintf(p.w, "Error: %s\n", text)
}

// Money formats an amount as Brazilian reais, e.g. "R$ 1.234,56"
func Money(d decimal.Decimal) string {
	return money.Sprintf("R$ %.2f", d.Round(2).InexactFloat64())
}

// Cards prints one row per card
func (p *Printer) Cards(cards []domain.Card) {
	if len(cards) == 0 {
		p.Info("no cards registered")
		return
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLIMIT\tCLOSING\tDUE")
	for _, c := range cards {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\n", c.ID, c.Name, Money(c.Limit), c.ClosingDay, c.DueDay)
	}
	tw.Flush()
}

// Transactions prints ledger transactions with their state
func (p *Printer) Transactions(txs []domain.Transaction) {
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tDESCRIPTION\tCATEGORY\tAMOUNT\tSTATE")
	for _, t := range txs {
		state := "pending"
		if t.Confirmed {
			state = "confirmed"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, domain.FormatDate(t.Date), t.Description, t.Category, Money(t.Amount), state)
	}
	tw.Flush()
}

// Invoice prints the cycle, due date and items of an invoice
func (p *Printer) Invoice(inv *ledger.Invoice) {
	p.Header(fmt.Sprintf("%s  %s", inv.Card.Name, inv.Cycle.String()))
	fmt.Fprintf(p.w, "Due date: %s\n\n", domain.FormatDate(inv.DueDate))
	if len(inv.Items) == 0 {
		p.Info("no transactions in this cycle")
	} else {
		p.Transactions(inv.Items)
	}
	blue.Fprintf(p.w, "\nTotal: %s\n", Money(inv.Total))
}

// Preview prints limit usage for each card
func (p *Printer) Preview(previews []ledger.Preview) {
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CARD\tCYCLE\tDUE\tUSED\tAVAILABLE\tUSAGE\tCONFIRMED\tPENDING")
	for _, pv := range previews {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.0f%%\t%d\t%d\n",
			pv.Invoice.Card.Name, pv.Invoice.Cycle.String(), domain.FormatDate(pv.Invoice.DueDate),
			Money(pv.Used), Money(pv.Available), pv.Utilization*100, pv.Confirmed, pv.Pending)
	}
	tw.Flush()
}

// ImportOutcome prints the counters of one import and its skipped records
func (p *Printer) ImportOutcome(o *importer.Outcome) {
	p.Success(fmt.Sprintf("batch %s: %d inserted, %d duplicates (%s, %s)",
		o.BatchID, o.Inserted, o.Duplicates, o.Parser, o.Encoding))
	for _, s := range o.Skipped {
		p.Warning("skipped " + s.String())
	}
}

// StatementLines prints statement lines with their match state
func (p *Printer) StatementLines(lines []domain.StatementLine) {
	if len(lines) == 0 {
		p.Info("no statement lines")
		return
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tDESCRIPTION\tAMOUNT\tMATCH")
	for _, l := range lines {
		match := "-"
		if l.Matched() {
			match = fmt.Sprintf("tx %d", *l.MatchedTxID)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", l.ID, domain.FormatDate(l.Date), l.Description, Money(l.Amount), match)
	}
	tw.Flush()
}

// Batch prints the latest import batch
func (p *Printer) Batch(b *domain.Batch) {
	if b == nil {
		p.Info("no imported batch")
		return
	}
	p.Info(fmt.Sprintf("batch %s imported at %s: %d lines, %d matched",
		b.ID, b.ImportedAt.Format("2006-01-02 15:04:05"), b.Total, b.Matched))
}

// MonthSummary prints month totals followed by every non-empty day
func (p *Printer) MonthSummary(s *reconcile.MonthSummary) {
	p.Header("Month " + s.Month)
	fmt.Fprintf(p.w, "Credits: %s  Debits: %s  Net: %s\n", Money(s.Credits), Money(s.Debits), Money(s.Net))
	fmt.Fprintf(p.w, "Lines: %d  Matched: %d  Unmatched: %d\n\n", s.Lines, s.Matched, s.Unmatched)

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tSTATEMENT\tLEDGER\tDIFF\tSTATUS")
	for _, d := range s.Days {
		if d.Status == reconcile.DayEmpty {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			domain.FormatDate(d.Date), Money(d.Statement), Money(d.Ledger), Money(d.Difference), statusText(d.Status))
	}
	tw.Flush()
}

func statusText(s reconcile.DayStatus) string {
	if s == reconcile.DayMismatch {
		return red.Sprint(string(s))
	}
	return green.Sprint(string(s))
}

// Validation prints the result of a ledger check
func (p *Printer) Validation(r *validate.ValidationResult) {
	for _, e := range r.Errors {
		p.Error(fmt.Sprintf("%s %d %s: %s", e.Entity, e.ID, e.Field, e.Message))
	}
	for _, w := range r.Warnings {
		p.Warning(fmt.Sprintf("%s %d %s: %s", w.Entity, w.ID, w.Field, w.Message))
	}
	if r.OK() {
		p.Success(fmt.Sprintf("ledger is consistent (%d warnings)", len(r.Warnings)))
	}
}

// center centers text within a given width
func center(text string, width int) string {
	n := utf8.RuneCountInString(text)
	if n >= width {
		return text
	}
	padding := (width - n) / 2
	return strings.Repeat(" ", padding) + text
}
