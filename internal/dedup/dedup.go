// Package dedup derives stable external ids for statement records and
// tracks which ids one import has already seen.
package dedup

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// syntheticDescLen is how many description characters a synthetic id keeps
const syntheticDescLen = 20

// SyntheticID builds the external id used when a statement record carries none.
// Format: "{YYYY-MM-DD}-{amount with 2 decimals}-{first 20 chars of description}"
//
// Identical purchases on the same day therefore share an id and only the
// first of them is stored.
func SyntheticID(date time.Time, amount decimal.Decimal, description string) string {
	desc := strings.TrimSpace(description)
	if r := []rune(desc); len(r) > syntheticDescLen {
		desc = string(r[:syntheticDescLen])
	}
	return fmt.Sprintf("%s-%s-%s", date.Format("2006-01-02"), amount.StringFixed(2), desc)
}

// Tracker records external ids observed during a single import.
// It is not safe for concurrent use.
type Tracker struct {
	seen map[string]struct{}
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[string]struct{})}
}

// Observe records id and reports whether this is its first occurrence
func (t *Tracker) Observe(id string) bool {
	if _, ok := t.seen[id]; ok {
		return false
	}
	t.seen[id] = struct{}{}
	return true
}
