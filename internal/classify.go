package internal

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ClassifierOptions controls the amount consistency check.
type ClassifierOptions struct {
	// AmountTolerance is the allowed relative deviation from the median (0.05 = 5%).
	AmountTolerance decimal.Decimal
	// AmountEpsilon is the absolute deviation always allowed, for low-value charges.
	AmountEpsilon decimal.Decimal
}

// DefaultClassifierOptions tolerate tax and FX jitter of 5% or 50 cents.
func DefaultClassifierOptions() ClassifierOptions {
	return ClassifierOptions{
		AmountTolerance: decimal.RequireFromString("0.05"),
		AmountEpsilon:   decimal.RequireFromString("0.50"),
	}
}

// Match is a positive classification of a charge series.
type Match struct {
	Frequency  Frequency
	Confidence Confidence
	Gaps       int
	Median     decimal.Decimal
}

// Classify infers the billing frequency of a dated series of amounts, using
// the default amount tolerance. The bool is false for NoMatch.
func Classify(dates []time.Time, amounts []decimal.Decimal) (Match, bool) {
	return DefaultClassifierOptions().Classify(dates, amounts)
}

// Classify infers the billing frequency of a dated series of amounts. Every
// day gap must fall in the same frequency band and every amount must sit
// within tolerance of the median; otherwise the series is NoMatch.
func (o ClassifierOptions) Classify(dates []time.Time, amounts []decimal.Decimal) (Match, bool) {
	if len(dates) < 2 || len(dates) != len(amounts) {
		return Match{}, false
	}

	type point struct {
		date   time.Time
		amount decimal.Decimal
	}
	points := make([]point, len(dates))
	for i := range dates {
		points[i] = point{date: Day(dates[i]), amount: amounts[i]}
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].date.Before(points[j].date)
	})

	gaps := make([]int, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		gaps = append(gaps, DaysBetween(points[i-1].date, points[i].date))
	}

	freq, ok := matchBand(gaps)
	if !ok {
		return Match{}, false
	}

	sorted := make([]decimal.Decimal, len(points))
	for i, p := range points {
		sorted[i] = p.amount
	}
	median := Median(sorted)
	if !o.amountsConsistent(sorted, median) {
		return Match{}, false
	}

	confidence := ConfidenceLow
	if len(gaps) >= 3 {
		confidence = ConfidenceHigh
	}
	return Match{Frequency: freq, Confidence: confidence, Gaps: len(gaps), Median: median}, true
}

// matchBand returns the single frequency whose band contains every gap.
func matchBand(gaps []int) (Frequency, bool) {
	for _, f := range Frequencies {
		min, max := f.band()
		all := true
		for _, g := range gaps {
			if g < min || g > max {
				all = false
				break
			}
		}
		if all {
			return f, true
		}
	}
	return "", false
}

func (o ClassifierOptions) amountsConsistent(amounts []decimal.Decimal, median decimal.Decimal) bool {
	allowed := median.Abs().Mul(o.AmountTolerance)
	if o.AmountEpsilon.GreaterThan(allowed) {
		allowed = o.AmountEpsilon
	}
	for _, a := range amounts {
		if a.Sub(median).Abs().GreaterThan(allowed) {
			return false
		}
	}
	return true
}

// Median returns the median of amounts (mean of the middle pair for even
// counts). It does not modify its argument.
func Median(amounts []decimal.Decimal) decimal.Decimal {
	if len(amounts) == 0 {
		return decimal.Zero
	}
	sorted := append([]decimal.Decimal(nil), amounts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}
