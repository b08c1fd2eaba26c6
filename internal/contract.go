package internal

import (
	"github.com/shopspring/decimal"
)

// Money is a currency amount encoded as a JSON number with two decimals.
type Money decimal.Decimal

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).StringFixed(2)), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*m = Money(d)
	return nil
}

func (m Money) Decimal() decimal.Decimal { return decimal.Decimal(m) }

// JSONTransaction is the external form of a stored transaction
type JSONTransaction struct {
	ID          string `json:"id"`
	UserID      int64  `json:"user_id"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      Money  `json:"amount"`
}

// JSONSubscription is the external form of a subscription
type JSONSubscription struct {
	ID                   string   `json:"id"`
	UserID               int64    `json:"user_id"`
	MerchantKey          string   `json:"merchant_key"`
	MerchantName         string   `json:"merchant_name"`
	Category             string   `json:"category,omitempty"`
	Amount               Money    `json:"amount"`
	MonthlyCost          Money    `json:"monthly_cost"`
	Frequency            string   `json:"frequency"`
	Confidence           string   `json:"confidence"`
	Status               string   `json:"status"`
	StartDate            string   `json:"start_date"`
	LastSeenDate         string   `json:"last_seen_date"`
	NextBillingDate      *string  `json:"next_billing_date"`
	SourceTransactionIDs []string `json:"source_transaction_ids"`
}

// JSONDetectResult is the detection response
type JSONDetectResult struct {
	DetectedCount    int                `json:"detected_count"`
	CreatedCount     int                `json:"created_count"`
	UpdatedCount     int                `json:"updated_count"`
	ExcludedCount    int                `json:"excluded_count"`
	SkippedCancelled int                `json:"skipped_cancelled"`
	Subscriptions    []JSONSubscription `json:"subscriptions"`
	Candidates       []JSONSubscription `json:"candidates,omitempty"`
}

// JSONProration is the proration response
type JSONProration struct {
	SubscriptionID string `json:"subscription_id,omitempty"`
	CycleStart     string `json:"cycle_start"`
	CycleEnd       string `json:"cycle_end"`
	TotalDays      int    `json:"total_days"`
	DaysUsed       int    `json:"days_used"`
	RemainingDays  int    `json:"remaining_days"`
	ChargedAmount  Money  `json:"charged_amount"`
	UsedAmount     Money  `json:"used_amount"`
	RefundAmount   Money  `json:"refund_amount"`
}

type JSONUnusedSubscription struct {
	JSONSubscription
	Reason string `json:"reason"`
}

type JSONUpcomingPayment struct {
	JSONSubscription
	DaysUntil int `json:"days_until"`
}

type JSONCategoryAmount struct {
	Category string `json:"category"`
	Amount   Money  `json:"amount"`
}

type JSONMonthAmount struct {
	Month  string `json:"month"`
	Amount Money  `json:"amount"`
}

// JSONInsights is the insights response
type JSONInsights struct {
	AsOf                      string                   `json:"as_of"`
	TotalMonthlyCost          Money                    `json:"total_monthly_cost"`
	TotalYearlyCost           Money                    `json:"total_yearly_cost"`
	SubscriptionCount         int                      `json:"subscription_count"`
	AveragePerSubscription    Money                    `json:"average_per_subscription"`
	HighestSpend              *JSONSubscription        `json:"highest_spend"`
	UnusedSubscriptions       []JSONUnusedSubscription `json:"unused_subscriptions"`
	PredictedUpcomingPayments []JSONUpcomingPayment    `json:"predicted_upcoming_payments"`
	CategoryBreakdown         []JSONCategoryAmount     `json:"category_breakdown"`
	SpendingTrend             []JSONMonthAmount        `json:"spending_trend"`
}

func ToJSONTransaction(tx Transaction) JSONTransaction {
	return JSONTransaction{
		ID:          tx.ID,
		UserID:      tx.UserID,
		Date:        FormatDate(tx.Date),
		Description: tx.Description,
		Amount:      Money(tx.Amount),
	}
}

// ToJSONSubscription converts sub; categorizer may be nil.
func ToJSONSubscription(sub Subscription, categorizer Categorizer) JSONSubscription {
	out := JSONSubscription{
		ID:                   sub.ID,
		UserID:               sub.UserID,
		MerchantKey:          sub.MerchantKey,
		MerchantName:         sub.MerchantName,
		Amount:               Money(sub.Amount),
		MonthlyCost:          Money(sub.Frequency.MonthlyEquivalent(sub.Amount).Round(2)),
		Frequency:            string(sub.Frequency),
		Confidence:           string(sub.Confidence),
		Status:               string(sub.Status),
		StartDate:            FormatDate(sub.StartDate),
		LastSeenDate:         FormatDate(sub.LastSeenDate),
		SourceTransactionIDs: append([]string{}, sub.SourceTransactionIDs...),
	}
	if categorizer != nil {
		out.Category = categorizer.Category(sub.MerchantKey)
	}
	if sub.NextBillingDate != nil {
		next := FormatDate(*sub.NextBillingDate)
		out.NextBillingDate = &next
	}
	return out
}

func ToJSONSubscriptions(subs []Subscription, categorizer Categorizer) []JSONSubscription {
	out := make([]JSONSubscription, 0, len(subs))
	for _, sub := range subs {
		out = append(out, ToJSONSubscription(sub, categorizer))
	}
	return out
}

func ToJSONDetectResult(res DetectResult, categorizer Categorizer) JSONDetectResult {
	out := JSONDetectResult{
		DetectedCount:    res.DetectedCount,
		CreatedCount:     res.CreatedCount,
		UpdatedCount:     res.UpdatedCount,
		ExcludedCount:    res.ExcludedCount,
		SkippedCancelled: res.SkippedCancelled,
		Subscriptions:    ToJSONSubscriptions(res.Subscriptions, categorizer),
	}
	if len(res.Candidates) > 0 {
		out.Candidates = ToJSONSubscriptions(res.Candidates, categorizer)
	}
	return out
}

func ToJSONProration(subscriptionID string, p ProrationResult) JSONProration {
	return JSONProration{
		SubscriptionID: subscriptionID,
		CycleStart:     FormatDate(p.CycleStart),
		CycleEnd:       FormatDate(p.CycleEnd),
		TotalDays:      p.TotalDays,
		DaysUsed:       p.DaysUsed,
		RemainingDays:  p.RemainingDays,
		ChargedAmount:  Money(p.ChargedAmount),
		UsedAmount:     Money(p.UsedAmount),
		RefundAmount:   Money(p.RefundAmount),
	}
}

func ToJSONInsights(snap InsightsSnapshot, categorizer Categorizer) JSONInsights {
	out := JSONInsights{
		AsOf:                      FormatDate(snap.AsOf),
		TotalMonthlyCost:          Money(snap.TotalMonthlyCost),
		TotalYearlyCost:           Money(snap.TotalYearlyCost),
		SubscriptionCount:         snap.SubscriptionCount,
		AveragePerSubscription:    Money(snap.AveragePerSubscription),
		UnusedSubscriptions:       make([]JSONUnusedSubscription, 0, len(snap.Unused)),
		PredictedUpcomingPayments: make([]JSONUpcomingPayment, 0, len(snap.Upcoming)),
		CategoryBreakdown:         make([]JSONCategoryAmount, 0, len(snap.CategoryBreakdown)),
		SpendingTrend:             make([]JSONMonthAmount, 0, len(snap.SpendingTrend)),
	}
	if snap.HighestSpend != nil {
		h := ToJSONSubscription(*snap.HighestSpend, categorizer)
		out.HighestSpend = &h
	}
	for _, u := range snap.Unused {
		out.UnusedSubscriptions = append(out.UnusedSubscriptions, JSONUnusedSubscription{
			JSONSubscription: ToJSONSubscription(u.Subscription, categorizer),
			Reason:           u.Reason,
		})
	}
	for _, u := range snap.Upcoming {
		out.PredictedUpcomingPayments = append(out.PredictedUpcomingPayments, JSONUpcomingPayment{
			JSONSubscription: ToJSONSubscription(u.Subscription, categorizer),
			DaysUntil:        u.DaysUntil,
		})
	}
	for _, c := range snap.CategoryBreakdown {
		out.CategoryBreakdown = append(out.CategoryBreakdown, JSONCategoryAmount{Category: c.Category, Amount: Money(c.Amount)})
	}
	for _, m := range snap.SpendingTrend {
		out.SpendingTrend = append(out.SpendingTrend, JSONMonthAmount{Month: m.Month, Amount: Money(m.Amount)})
	}
	return out
}
