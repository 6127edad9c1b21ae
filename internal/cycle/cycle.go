// Package cycle computes credit-card billing cycles and invoice due dates.
package cycle

import (
	"fmt"
	"time"

	"github.com/rumor-ml/commons.systems/cardledger/internal/domain"
)

// Range is a closed interval of calendar dates [Start, End]
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether d falls within the range, inclusive on both ends
func (r Range) Contains(d time.Time) bool {
	d = domain.DateOf(d)
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r Range) String() string {
	return fmt.Sprintf("%s..%s", domain.FormatDate(r.Start), domain.FormatDate(r.End))
}

// RangeFor returns the billing cycle containing ref for a card closing on closingDay.
//
// When ref falls on or before the closing day the cycle ends on this month's
// closing day and starts the day after the previous month's closing day.
// Otherwise it starts the day after this month's closing day and ends on the
// next month's closing day.
func RangeFor(closingDay int, ref time.Time) (Range, error) {
	if err := domain.ValidateCycleDay("closingDay", closingDay); err != nil {
		return Range{}, err
	}

	y, m, d := ref.Date()
	if d <= closingDay {
		return Range{
			Start: domain.Date(y, m-1, closingDay+1),
			End:   domain.Date(y, m, closingDay),
		}, nil
	}
	return Range{
		Start: domain.Date(y, m, closingDay+1),
		End:   domain.Date(y, m+1, closingDay),
	}, nil
}

// InvoiceDueDate returns the due date of the invoice for a cycle ending on cycleEnd:
// dueDay of the month following cycleEnd's month, rolled forward to a business day.
func InvoiceDueDate(dueDay int, cycleEnd time.Time, holidays Holidays) (time.Time, error) {
	if err := domain.ValidateCycleDay("dueDay", dueDay); err != nil {
		return time.Time{}, err
	}
	y, m, _ := cycleEnd.Date()
	naive := domain.Date(y, m+1, dueDay)
	return NextBusinessDay(naive, holidays), nil
}

// NextBusinessDay returns d itself when it is a weekday and not a holiday,
// otherwise the first later date that is. It never moves backward.
func NextBusinessDay(d time.Time, holidays Holidays) time.Time {
	d = domain.DateOf(d)
	for !IsBusinessDay(d, holidays) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// IsBusinessDay reports whether d is a weekday that is not a holiday
func IsBusinessDay(d time.Time, holidays Holidays) bool {
	return !isWeekend(d) && !holidays.Contains(d)
}

func isWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
