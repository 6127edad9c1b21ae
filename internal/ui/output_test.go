package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/cardledger/internal/cycle"
	"github.com/rumor-ml/commons.systems/cardledger/internal/domain"
	"github.com/rumor-ml/commons.systems/cardledger/internal/importer"
	"github.com/rumor-ml/commons.systems/cardledger/internal/ledger"
	"github.com/rumor-ml/commons.systems/cardledger/internal/parser"
	"github.com/rumor-ml/commons.systems/cardledger/internal/reconcile"
	"github.com/rumor-ml/commons.systems/cardledger/internal/validate"
)

func init() {
	color.NoColor = true
}

func TestCenter(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		width    int
		expected string
	}{
		{
			name:     "text shorter than width",
			text:     "Hello",
			width:    15,
			expected: "     Hello",
		},
		{
			name:     "text same as width",
			text:     "Hello",
			width:    5,
			expected: "Hello",
		},
		{
			name:     "text longer than width",
			text:     "Hello World",
			width:    5,
			expected: "Hello World",
		},
		{
			name:     "even padding",
			text:     "Test",
			width:    10,
			expected: "   Test",
		},
		{
			name:     "accented text counts runes",
			text:     "Itaú",
			width:    10,
			expected: "   Itaú",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := center(tt.text, tt.width)
			if result != tt.expected {
				t.Errorf("center(%q, %d) = %q; want %q", tt.text, tt.width, result, tt.expected)
			}
		})
	}
}

func TestMessages(t *testing.T) {
	tests := []struct {
		name string
		fn   func(p *Printer)
		want string
	}{
		{"Header", func(p *Printer) { p.Header("Test Header") }, strings.Repeat("=", lineWidth)},
		{"Step", func(p *Printer) { p.Step(1, 5, "Test Step") }, "[1/5] Test Step"},
		{"Success", func(p *Printer) { p.Success("Test Success") }, "→ Test Success"},
		{"Info", func(p *Printer) { p.Info("Test Info") }, "→ Test Info"},
		{"Warning", func(p *Printer) { p.Warning("Test Warning") }, "⚠ Test Warning"},
		{"Error", func(p *Printer) { p.Error("Test Error") }, "Error: Test Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.fn(New(&buf))
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q does not contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestMoney(t *testing.T) {
	got := Money(decimal.RequireFromString("-10.5"))
	if !strings.HasPrefix(got, "R$ ") || !strings.Contains(got, "10,50") {
		t.Errorf("Money() = %q, want Brazilian format", got)
	}
}

func TestInvoice(t *testing.T) {
	inv := &ledger.Invoice{
		Card:    domain.Card{ID: 1, Name: "Nubank"},
		Cycle:   cycle.Range{Start: domain.Date(2024, time.February, 16), End: domain.Date(2024, time.March, 15)},
		DueDate: domain.Date(2024, time.April, 8),
		Items: []domain.Transaction{
			{ID: 3, Date: domain.Date(2024, time.March, 1), Description: "Padaria", Category: domain.CategoryFood, Amount: decimal.RequireFromString("12.00"), Confirmed: true},
		},
		Total: decimal.RequireFromString("12.00"),
	}

	var buf bytes.Buffer
	New(&buf).Invoice(inv)
	out := buf.String()
	for _, want := range []string{"Nubank", "Due date: 2024-04-08", "Padaria", "confirmed", "Total:"} {
		if !strings.Contains(out, want) {
			t.Errorf("invoice output missing %q:\n%s", want, out)
		}
	}
}

func TestImportOutcome(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).ImportOutcome(&importer.Outcome{
		BatchID:    "20240320103000-deadbeef",
		Parser:     "ofx",
		Encoding:   "utf-8",
		Inserted:   2,
		Duplicates: 1,
		Skipped:    []parser.Skip{{Index: 4, Reason: "missing amount"}},
	})
	out := buf.String()
	if !strings.Contains(out, "2 inserted, 1 duplicates") {
		t.Errorf("missing counters:\n%s", out)
	}
	if !strings.Contains(out, "skipped entry 4: missing amount") {
		t.Errorf("missing skip:\n%s", out)
	}
}

func TestMonthSummary(t *testing.T) {
	s := &reconcile.MonthSummary{
		Month: "2024-03",
		Days: []reconcile.DaySummary{
			{Date: domain.Date(2024, time.March, 1), Status: reconcile.DayEmpty},
			{Date: domain.Date(2024, time.March, 2), Status: reconcile.DayMismatch, Statement: decimal.NewFromInt(-5)},
		},
	}

	var buf bytes.Buffer
	New(&buf).MonthSummary(s)
	out := buf.String()
	if strings.Contains(out, "2024-03-01") {
		t.Errorf("empty days should be hidden:\n%s", out)
	}
	if !strings.Contains(out, "2024-03-02") || !strings.Contains(out, "MISMATCH") {
		t.Errorf("mismatched day missing:\n%s", out)
	}
}

func TestValidation(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Validation(&validate.ValidationResult{
		Warnings: []validate.ValidationWarning{{Entity: "transaction", ID: 2, Field: "Confirmed", Message: "not referenced"}},
	})
	out := buf.String()
	if !strings.Contains(out, "ledger is consistent (1 warnings)") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestBatch_None(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Batch(nil)
	if !strings.Contains(buf.String(), "no imported batch") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}
