package internal

import (
	"time"

	"github.com/shopspring/decimal"
)

// Prorate computes the refund owed for cancelling sub on cancellationDate.
// The cycle is the pair of billing anchors, stepped from StartDate, that
// brackets the cancellation date. It does not modify sub.
func Prorate(sub Subscription, cancellationDate time.Time) (ProrationResult, error) {
	if sub.Status == StatusCancelled {
		return ProrationResult{}, &AlreadyCancelledError{ID: sub.ID}
	}
	if sub.Frequency.NominalDays() == 0 {
		return ProrationResult{}, &ValidationError{Field: "frequency", Reason: "unknown frequency " + string(sub.Frequency)}
	}
	start := Day(sub.StartDate)
	cancel := Day(cancellationDate)
	if cancel.Before(start) {
		return ProrationResult{}, &InvalidDateError{CancellationDate: cancel, StartDate: start}
	}

	cycleStart, cycleEnd := billingCycle(sub.Frequency, start, cancel)

	totalDays := DaysBetween(cycleStart, cycleEnd)
	daysUsed := min(max(DaysBetween(cycleStart, cancel), 0), totalDays)
	remaining := totalDays - daysUsed

	charged := sub.Amount
	refund := charged.
		Mul(decimal.NewFromInt(int64(remaining))).
		Div(decimal.NewFromInt(int64(totalDays)))
	refund = roundHalfUp(refund)
	if refund.IsNegative() {
		refund = decimal.Zero
	}
	if refund.GreaterThan(charged) {
		refund = charged
	}

	return ProrationResult{
		CycleStart:    cycleStart,
		CycleEnd:      cycleEnd,
		TotalDays:     totalDays,
		DaysUsed:      daysUsed,
		RemainingDays: remaining,
		ChargedAmount: charged,
		UsedAmount:    charged.Sub(refund),
		RefundAmount:  refund,
	}, nil
}

// billingCycle walks anchors forward from start until the next one would pass
// cancel. Each anchor is stepped from start, so month-end clamping never drifts.
func billingCycle(freq Frequency, start, cancel time.Time) (cycleStart, cycleEnd time.Time) {
	n := 0
	// Jump close to the answer for long-running subscriptions before walking.
	if days := freq.NominalDays(); days > 0 {
		if guess := DaysBetween(start, cancel)/days - 1; guess > 0 {
			n = guess
		}
	}
	for !freq.Step(start, n).After(cancel) {
		n++
	}
	for n > 0 && freq.Step(start, n-1).After(cancel) {
		n--
	}
	return freq.Step(start, n-1), freq.Step(start, n)
}

// roundHalfUp rounds to cents. Refunds are never negative here, so
// decimal's half-away-from-zero rounding is half-up.
func roundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
