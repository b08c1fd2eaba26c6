package internal

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable bank transaction. Positive amounts are charges.
type Transaction struct {
	ID          string
	UserID      int64
	Date        time.Time // calendar date, UTC midnight
	Description string
	Amount      decimal.Decimal
}

type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusCancelled SubscriptionStatus = "cancelled"
)

// ParseStatus accepts the wire names of a subscription status.
func ParseStatus(s string) (SubscriptionStatus, bool) {
	switch SubscriptionStatus(s) {
	case StatusActive, StatusCancelled:
		return SubscriptionStatus(s), true
	}
	return "", false
}

type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// Subscription is a recurring charge detected for one merchant of one user.
// It is owned by the detection engine; only an explicit cancel changes its status.
type Subscription struct {
	ID                   string
	UserID               int64
	MerchantKey          string
	MerchantName         string // first-seen raw description
	Amount               decimal.Decimal
	Frequency            Frequency
	Confidence           Confidence
	StartDate            time.Time
	NextBillingDate      *time.Time
	Status               SubscriptionStatus
	LastSeenDate         time.Time
	SourceTransactionIDs []string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Clone returns a deep copy so stores can hand out values without sharing slices.
func (s Subscription) Clone() Subscription {
	c := s
	if s.NextBillingDate != nil {
		next := *s.NextBillingDate
		c.NextBillingDate = &next
	}
	c.SourceTransactionIDs = append([]string(nil), s.SourceTransactionIDs...)
	return c
}

// ProrationResult is the refund breakdown for cancelling within a billing cycle.
type ProrationResult struct {
	CycleStart    time.Time
	CycleEnd      time.Time
	TotalDays     int
	DaysUsed      int
	RemainingDays int
	ChargedAmount decimal.Decimal
	UsedAmount    decimal.Decimal
	RefundAmount  decimal.Decimal
}

// DetectResult reports the outcome of one detection run.
type DetectResult struct {
	DetectedCount    int
	CreatedCount     int
	UpdatedCount     int
	ExcludedCount    int // malformed transactions left out of grouping
	SkippedCancelled int // matched groups whose subscription was cancelled by the user
	Subscriptions    []Subscription
	Candidates       []Subscription // low-confidence matches held back by policy, not persisted
}
