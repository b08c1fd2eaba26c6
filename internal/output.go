package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
)

// OutputOptions controls how subscriptions are displayed
type OutputOptions struct {
	ShowFilter string // active, cancelled or all
	SortField  string // name, amount or monthly
	SortDir    string // asc or desc
}

// JSONSubscriptionList is the root JSON output object of a listing
type JSONSubscriptionList struct {
	Subscriptions []JSONSubscription `json:"subscriptions"`
	Summary       JSONSummary        `json:"summary"`
}

// JSONSummary contains aggregate statistics
type JSONSummary struct {
	Count        int   `json:"count"`
	MonthlyTotal Money `json:"monthly_total"`
	YearlyTotal  Money `json:"yearly_total"`
}

// WriteJSON writes v as indented JSON
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// activeMonthlyTotal sums the monthly-equivalent cost of active subscriptions
func activeMonthlyTotal(subs []Subscription) decimal.Decimal {
	total := decimal.Zero
	for _, sub := range subs {
		if sub.Status == StatusActive {
			total = total.Add(sub.Frequency.MonthlyEquivalent(sub.Amount))
		}
	}
	return total
}

// PrintSubscriptionsJSON outputs subscriptions in JSON format
func PrintSubscriptionsJSON(w io.Writer, subs []Subscription, categorizer Categorizer) error {
	monthly := activeMonthlyTotal(subs)
	return WriteJSON(w, JSONSubscriptionList{
		Subscriptions: ToJSONSubscriptions(subs, categorizer),
		Summary: JSONSummary{
			Count:        len(subs),
			MonthlyTotal: Money(monthly.Round(2)),
			YearlyTotal:  Money(monthly.Mul(monthsPerYear).Round(2)),
		},
	})
}

// PrintSubscriptionsTable outputs subscriptions as a formatted table
func PrintSubscriptionsTable(w io.Writer, allSubs []Subscription, displaySubs []Subscription, opts OutputOptions, categorizer Categorizer) {
	activeCount := 0
	cancelledCount := 0
	for _, sub := range allSubs {
		if sub.Status == StatusActive {
			activeCount++
		} else {
			cancelledCount++
		}
	}

	fmt.Fprintf(w, "Found %d subscriptions (%d active, %d cancelled)\n", len(allSubs), activeCount, cancelledCount)
	fmt.Fprintf(w, "Showing: %s\n\n", opts.ShowFilter)

	SortSubscriptions(displaySubs, opts.SortField, opts.SortDir)

	t := table.NewWriter()
	t.SetOutputMirror(w)

	header := table.Row{"Merchant"}
	if categorizer != nil {
		header = append(header, "Category")
	}
	header = append(header, "Status", "Frequency", "Started", "Last Seen", "Next", "Amount", "Monthly")
	t.AppendHeader(header)

	for _, sub := range displaySubs {
		status := text.FgGreen.Sprint("ACTIVE")
		if sub.Status == StatusCancelled {
			status = text.FgRed.Sprint("CANCELLED")
		}
		freq := string(sub.Frequency)
		if sub.Confidence == ConfidenceLow {
			freq += text.FgYellow.Sprint(" ?")
		}
		next := text.FgHiBlack.Sprint("-")
		if sub.NextBillingDate != nil && sub.Status == StatusActive {
			next = FormatDate(*sub.NextBillingDate)
		}
		monthly := sub.Frequency.MonthlyEquivalent(sub.Amount).StringFixed(2)
		if sub.Status == StatusCancelled {
			monthly = text.FgHiBlack.Sprint("-")
		}

		row := table.Row{sub.MerchantKey}
		if categorizer != nil {
			row = append(row, categorizer.Category(sub.MerchantKey))
		}
		row = append(row, status, freq, FormatDate(sub.StartDate), FormatDate(sub.LastSeenDate), next,
			sub.Amount.StringFixed(2), monthly)
		t.AppendRow(row)
	}

	t.AppendSeparator()

	monthlyTotal := activeMonthlyTotal(displaySubs)
	footer := table.Row{""}
	if categorizer != nil {
		footer = append(footer, "")
	}
	footer = append(footer, "", "", "", "", "",
		text.Bold.Sprint("Total (active)"), text.Bold.Sprint(monthlyTotal.StringFixed(2)))
	t.AppendFooter(footer)

	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault

	// Right-align Amount and Monthly columns (last two)
	colCount := len(header)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: colCount - 1, Align: text.AlignRight},
		{Number: colCount, Align: text.AlignRight},
	})

	t.Render()
	fmt.Fprintf(w, "Yearly (active): %s\n", monthlyTotal.Mul(monthsPerYear).StringFixed(2))
}

// SortSubscriptions orders subs in place by field ("name", "amount", "monthly")
func SortSubscriptions(subs []Subscription, field, dir string) {
	less := func(a, b Subscription) bool {
		switch field {
		case "amount":
			return a.Amount.LessThan(b.Amount)
		case "monthly":
			return a.Frequency.MonthlyEquivalent(a.Amount).LessThan(b.Frequency.MonthlyEquivalent(b.Amount))
		default: // "name"
			return strings.ToLower(a.MerchantKey) < strings.ToLower(b.MerchantKey)
		}
	}
	sort.SliceStable(subs, func(i, j int) bool {
		if dir == "desc" {
			return less(subs[j], subs[i])
		}
		return less(subs[i], subs[j])
	})
}

// FilterByStatus filters subscriptions by status (active/cancelled/all)
func FilterByStatus(subs []Subscription, show string) []Subscription {
	if show == "all" || show == "" {
		return subs
	}
	var result []Subscription
	for _, sub := range subs {
		if string(sub.Status) == show {
			result = append(result, sub)
		}
	}
	return result
}

// PrintDetectSummary prints the counters of a detection run
func PrintDetectSummary(w io.Writer, res DetectResult) {
	fmt.Fprintf(w, "Detected %d recurring merchants: %d created, %d updated, %d skipped (cancelled), %d transactions excluded\n",
		res.DetectedCount, res.CreatedCount, res.UpdatedCount, res.SkippedCancelled, res.ExcludedCount)
	if len(res.Candidates) > 0 {
		keys := make([]string, 0, len(res.Candidates))
		for _, c := range res.Candidates {
			keys = append(keys, c.MerchantKey)
		}
		fmt.Fprintf(w, "Unconfirmed (seen twice): %s\n", strings.Join(keys, ", "))
	}
	fmt.Fprintln(w)
}

// PrintProrationTable shows the refund breakdown for one cancellation
func PrintProrationTable(w io.Writer, sub Subscription, p ProrationResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Cancelling %s (%s)", sub.MerchantKey, sub.Frequency))
	t.AppendRows([]table.Row{
		{"Cycle", FormatDate(p.CycleStart) + " → " + FormatDate(p.CycleEnd)},
		{"Days used", fmt.Sprintf("%d / %d", p.DaysUsed, p.TotalDays)},
		{"Charged", p.ChargedAmount.StringFixed(2)},
		{"Used", p.UsedAmount.StringFixed(2)},
		{"Refund", text.Bold.Sprint(p.RefundAmount.StringFixed(2))},
	})
	t.SetStyle(table.StyleRounded)
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	t.Render()
}

// PrintInsightsTable renders the dashboard view
func PrintInsightsTable(w io.Writer, snap InsightsSnapshot) {
	fmt.Fprintf(w, "Insights as of %s\n\n", FormatDate(snap.AsOf))

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendRows([]table.Row{
		{"Active subscriptions", snap.SubscriptionCount},
		{"Monthly cost", snap.TotalMonthlyCost.StringFixed(2)},
		{"Yearly cost", snap.TotalYearlyCost.StringFixed(2)},
		{"Average per subscription", snap.AveragePerSubscription.StringFixed(2)},
	})
	if snap.HighestSpend != nil {
		h := snap.HighestSpend
		t.AppendRow(table.Row{"Highest spend", fmt.Sprintf("%s (%s %s)", h.MerchantKey, h.Amount.StringFixed(2), h.Frequency)})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()

	if len(snap.Upcoming) > 0 {
		fmt.Fprintln(w, "\nUpcoming payments")
		up := table.NewWriter()
		up.SetOutputMirror(w)
		up.AppendHeader(table.Row{"Merchant", "Date", "In days", "Amount"})
		for _, u := range snap.Upcoming {
			up.AppendRow(table.Row{u.MerchantKey, FormatDate(*u.NextBillingDate), u.DaysUntil, u.Amount.StringFixed(2)})
		}
		up.SetStyle(table.StyleRounded)
		up.Render()
	}

	if len(snap.Unused) > 0 {
		fmt.Fprintln(w, "\nPossibly unused")
		un := table.NewWriter()
		un.SetOutputMirror(w)
		un.AppendHeader(table.Row{"Merchant", "Last Seen", "Reason"})
		for _, u := range snap.Unused {
			un.AppendRow(table.Row{u.MerchantKey, FormatDate(u.LastSeenDate), u.Reason})
		}
		un.SetStyle(table.StyleRounded)
		un.Render()
	}

	if len(snap.CategoryBreakdown) > 0 {
		fmt.Fprintln(w, "\nBy category (monthly)")
		cat := table.NewWriter()
		cat.SetOutputMirror(w)
		for _, c := range snap.CategoryBreakdown {
			cat.AppendRow(table.Row{c.Category, c.Amount.StringFixed(2)})
		}
		cat.SetStyle(table.StyleRounded)
		cat.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
		cat.Render()
	}

	fmt.Fprintln(w, "\nSpending trend")
	trend := table.NewWriter()
	trend.SetOutputMirror(w)
	header := table.Row{}
	row := table.Row{}
	for _, m := range snap.SpendingTrend {
		header = append(header, m.Month)
		row = append(row, m.Amount.StringFixed(2))
	}
	trend.AppendHeader(header)
	trend.AppendRow(row)
	trend.SetStyle(table.StyleRounded)
	trend.Render()
}
