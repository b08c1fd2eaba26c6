package internal

import (
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is a billing cadence.
type Frequency string

const (
	Weekly   Frequency = "weekly"
	BiWeekly Frequency = "bi-weekly"
	Monthly  Frequency = "monthly"
	Yearly   Frequency = "yearly"
)

// Frequencies lists every supported cadence, shortest first.
var Frequencies = []Frequency{Weekly, BiWeekly, Monthly, Yearly}

// ParseFrequency accepts the wire names of a frequency.
func ParseFrequency(s string) (Frequency, bool) {
	for _, f := range Frequencies {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// NominalDays is the length of one period used for day-based reasoning.
func (f Frequency) NominalDays() int {
	switch f {
	case Weekly:
		return 7
	case BiWeekly:
		return 14
	case Monthly:
		return 30
	case Yearly:
		return 365
	}
	return 0
}

// band is the accepted day-gap window [min, max] for a cadence.
func (f Frequency) band() (min, max int) {
	switch f {
	case Weekly:
		return 5, 9
	case BiWeekly:
		return 11, 17
	case Monthly:
		return 26, 34
	case Yearly:
		return 355, 375
	}
	return 0, -1
}

// Step returns the billing anchor n periods after anchor. Months and years
// are stepped on the calendar and always computed from anchor itself, so a
// start on the 31st keeps returning to the 31st after a short month.
func (f Frequency) Step(anchor time.Time, n int) time.Time {
	anchor = Day(anchor)
	switch f {
	case Weekly:
		return anchor.AddDate(0, 0, 7*n)
	case BiWeekly:
		return anchor.AddDate(0, 0, 14*n)
	case Monthly:
		return AddMonths(anchor, n)
	case Yearly:
		return AddMonths(anchor, 12*n)
	}
	return anchor
}

// Average weeks per month (52/12 and 26/12), kept at two decimals for
// compatibility with the dashboard contract.
var (
	weeklyPerMonth   = decimal.RequireFromString("4.33")
	biWeeklyPerMonth = decimal.RequireFromString("2.17")
	monthsPerYear    = decimal.NewFromInt(12)
)

// MonthlyEquivalent normalises a per-period amount to a monthly cost.
func (f Frequency) MonthlyEquivalent(amount decimal.Decimal) decimal.Decimal {
	switch f {
	case Weekly:
		return amount.Mul(weeklyPerMonth)
	case BiWeekly:
		return amount.Mul(biWeeklyPerMonth)
	case Yearly:
		return amount.Div(monthsPerYear)
	}
	return amount
}
