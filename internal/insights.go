package internal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	upcomingWindowDays = 30
	trendMonths        = 6
	unusedReason       = "no recent charge"
)

// UnusedSubscription is an active subscription that has stopped charging.
type UnusedSubscription struct {
	Subscription
	Reason string
}

// UpcomingPayment is an active subscription billing within the upcoming window.
type UpcomingPayment struct {
	Subscription
	DaysUntil int
}

type CategoryAmount struct {
	Category string
	Amount   decimal.Decimal
}

type MonthAmount struct {
	Month  string // YYYY-MM
	Amount decimal.Decimal
}

// InsightsSnapshot is the dashboard view of one user's subscriptions at AsOf.
type InsightsSnapshot struct {
	AsOf                   time.Time
	TotalMonthlyCost       decimal.Decimal
	TotalYearlyCost        decimal.Decimal
	SubscriptionCount      int
	AveragePerSubscription decimal.Decimal
	HighestSpend           *Subscription
	Unused                 []UnusedSubscription
	Upcoming               []UpcomingPayment
	CategoryBreakdown      []CategoryAmount
	SpendingTrend          []MonthAmount
}

// Aggregator computes insights from store state. It only reads.
type Aggregator struct {
	subs        SubscriptionStore
	txs         TransactionStore
	categorizer Categorizer
}

// NewAggregator creates an aggregator. txs may be nil, in which case the
// spending trend is all zeros; a nil categorizer files everything under Other.
func NewAggregator(subs SubscriptionStore, txs TransactionStore, categorizer Categorizer) *Aggregator {
	return &Aggregator{subs: subs, txs: txs, categorizer: categorizer}
}

// Summarize builds the snapshot for userID as of the given day.
func (a *Aggregator) Summarize(ctx context.Context, userID int64, asOf time.Time) (InsightsSnapshot, error) {
	asOf = Day(asOf)

	all, err := a.subs.ListSubscriptions(ctx, SubscriptionFilter{UserID: userID})
	if err != nil {
		return InsightsSnapshot{}, fmt.Errorf("listing subscriptions: %w", err)
	}
	var active []Subscription
	for _, sub := range all {
		if sub.Status == StatusActive {
			active = append(active, sub)
		}
	}

	snap := InsightsSnapshot{
		AsOf:              asOf,
		SubscriptionCount: len(active),
		Unused:            unusedSubscriptions(active, asOf),
		Upcoming:          upcomingPayments(active, asOf),
		CategoryBreakdown: a.categoryBreakdown(active),
	}

	total := decimal.Zero
	var highest *Subscription
	var highestCost decimal.Decimal
	for i := range active {
		sub := &active[i]
		cost := sub.Frequency.MonthlyEquivalent(sub.Amount)
		total = total.Add(cost)
		if highest == nil || cost.GreaterThan(highestCost) ||
			(cost.Equal(highestCost) && earlierStart(*sub, *highest)) {
			highest = sub
			highestCost = cost
		}
	}
	snap.TotalMonthlyCost = total.Round(2)
	snap.TotalYearlyCost = total.Mul(monthsPerYear).Round(2)
	snap.AveragePerSubscription = decimal.Zero
	if len(active) > 0 {
		snap.AveragePerSubscription = total.Div(decimal.NewFromInt(int64(len(active)))).Round(2)
	}
	if highest != nil {
		h := highest.Clone()
		snap.HighestSpend = &h
	}

	snap.SpendingTrend, err = a.spendingTrend(ctx, userID, all, asOf)
	if err != nil {
		return InsightsSnapshot{}, err
	}
	return snap, nil
}

func earlierStart(a, b Subscription) bool {
	if !a.StartDate.Equal(b.StartDate) {
		return a.StartDate.Before(b.StartDate)
	}
	return a.ID < b.ID
}

// unusedSubscriptions flags subscriptions not charged for over two periods.
func unusedSubscriptions(active []Subscription, asOf time.Time) []UnusedSubscription {
	var unused []UnusedSubscription
	for _, sub := range active {
		if DaysBetween(sub.LastSeenDate, asOf) > 2*sub.Frequency.NominalDays() {
			unused = append(unused, UnusedSubscription{Subscription: sub, Reason: unusedReason})
		}
	}
	sort.SliceStable(unused, func(i, j int) bool {
		return unused[i].LastSeenDate.Before(unused[j].LastSeenDate)
	})
	return unused
}

// upcomingPayments lists bills due in [asOf, asOf+30 days], soonest first.
func upcomingPayments(active []Subscription, asOf time.Time) []UpcomingPayment {
	var upcoming []UpcomingPayment
	for _, sub := range active {
		if sub.NextBillingDate == nil {
			continue
		}
		days := DaysBetween(asOf, *sub.NextBillingDate)
		if days < 0 || days > upcomingWindowDays {
			continue
		}
		upcoming = append(upcoming, UpcomingPayment{Subscription: sub, DaysUntil: days})
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		if upcoming[i].DaysUntil != upcoming[j].DaysUntil {
			return upcoming[i].DaysUntil < upcoming[j].DaysUntil
		}
		return upcoming[i].MerchantKey < upcoming[j].MerchantKey
	})
	return upcoming
}

// categoryBreakdown sums monthly-equivalent cost per category, largest first.
func (a *Aggregator) categoryBreakdown(active []Subscription) []CategoryAmount {
	totals := make(map[string]decimal.Decimal)
	for _, sub := range active {
		category := UncategorizedName
		if a.categorizer != nil {
			category = a.categorizer.Category(sub.MerchantKey)
		}
		totals[category] = totals[category].Add(sub.Frequency.MonthlyEquivalent(sub.Amount))
	}

	breakdown := make([]CategoryAmount, 0, len(totals))
	for category, amount := range totals {
		if amount.IsZero() {
			continue
		}
		breakdown = append(breakdown, CategoryAmount{Category: category, Amount: amount.Round(2)})
	}
	sort.Slice(breakdown, func(i, j int) bool {
		if !breakdown[i].Amount.Equal(breakdown[j].Amount) {
			return breakdown[i].Amount.GreaterThan(breakdown[j].Amount)
		}
		return breakdown[i].Category < breakdown[j].Category
	})
	return breakdown
}

// spendingTrend sums the charges behind subs per calendar month for the six
// months ending with asOf's month, oldest first. Empty months are zero.
func (a *Aggregator) spendingTrend(ctx context.Context, userID int64, subs []Subscription, asOf time.Time) ([]MonthAmount, error) {
	thisMonth := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)
	first := AddMonths(thisMonth, -(trendMonths - 1))

	trend := make([]MonthAmount, trendMonths)
	index := make(map[string]int, trendMonths)
	for i := range trend {
		month := AddMonths(first, i).Format("2006-01")
		trend[i] = MonthAmount{Month: month, Amount: decimal.Zero}
		index[month] = i
	}
	if a.txs == nil || len(subs) == 0 {
		return trend, nil
	}

	sources := make(map[string]bool)
	for _, sub := range subs {
		for _, id := range sub.SourceTransactionIDs {
			sources[id] = true
		}
	}

	txs, err := a.txs.ListTransactions(ctx, TransactionFilter{UserID: userID, From: first, To: asOf})
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	for _, tx := range txs {
		if !sources[tx.ID] {
			continue
		}
		if i, ok := index[tx.Date.Format("2006-01")]; ok {
			trend[i].Amount = trend[i].Amount.Add(tx.Amount)
		}
	}
	for i := range trend {
		trend[i].Amount = trend[i].Amount.Round(2)
	}
	return trend, nil
}
