package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var nonDigit = regexp.MustCompile(`\D`)

// NormalizeAmount rewrites comma-decimal amounts ("109,99") to the
// dot-decimal form. Only text with a comma and no period is rewritten;
// anything else, including mixed "1.234,56", is returned trimmed and
// untouched and will fail to parse.
func NormalizeAmount(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return s
}

// ParseAmountStrict parses s after NormalizeAmount
func ParseAmountStrict(s string) (decimal.Decimal, error) {
	norm := NormalizeAmount(s)
	if norm == "" {
		return decimal.Zero, fmt.Errorf("amount cannot be empty")
	}
	d, err := decimal.NewFromString(strings.TrimPrefix(norm, "+"))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d.Round(2), nil
}

// ParseAmount is ParseAmountStrict with unparseable input mapped to zero
func ParseAmount(s string) decimal.Decimal {
	d, err := ParseAmountStrict(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseCompactDate reads the first eight digits of s as YYYYMMDD.
// Separators and trailing time or timezone parts are ignored.
func ParseCompactDate(s string) (time.Time, error) {
	digits := nonDigit.ReplaceAllString(s, "")
	if len(digits) < 8 {
		return time.Time{}, fmt.Errorf("date %q has fewer than 8 digits", s)
	}
	d, err := time.Parse("20060102", digits[:8])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}
