package cycle

import (
	"fmt"
	"time"

	"github.com/rumor-ml/commons.systems/cardledger/internal/domain"
)

// Holidays is a set of non-business calendar dates. The nil set is empty.
type Holidays map[string]struct{}

// NewHolidays builds a set from calendar dates
func NewHolidays(dates ...time.Time) Holidays {
	h := make(Holidays, len(dates))
	for _, d := range dates {
		h[domain.FormatDate(d)] = struct{}{}
	}
	return h
}

// ParseHolidays builds a set from YYYY-MM-DD strings
func ParseHolidays(values []string) (Holidays, error) {
	h := make(Holidays, len(values))
	for i, v := range values {
		d, err := domain.ParseDate(v)
		if err != nil {
			return nil, fmt.Errorf("holiday %d: %w", i, err)
		}
		h[domain.FormatDate(d)] = struct{}{}
	}
	return h, nil
}

// Contains reports whether d is a holiday
func (h Holidays) Contains(d time.Time) bool {
	if len(h) == 0 {
		return false
	}
	_, ok := h[domain.FormatDate(d)]
	return ok
}
