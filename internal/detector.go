package internal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Policy holds detection decisions that are product choices rather than math.
type Policy struct {
	// AutoCreateLowConfidence persists two-point matches. When false they are
	// only reported as candidates.
	AutoCreateLowConfidence bool
}

// EngineConfig wires optional collaborators into an Engine. Zero fields get defaults.
type EngineConfig struct {
	Normalizer *Normalizer
	Classifier *ClassifierOptions
	Policy     *Policy
	// Exclude drops matches the user never wants tracked.
	Exclude func(candidate Subscription) bool
	Logger  *zerolog.Logger
	Clock   func() time.Time
	NewID   func() string
}

// Engine detects recurring charges and upserts them as subscriptions.
type Engine struct {
	store      SubscriptionStore
	normalizer *Normalizer
	classifier ClassifierOptions
	policy     Policy
	exclude    func(Subscription) bool
	log        zerolog.Logger
	clock      func() time.Time
	newID      func() string
	locks      *userLocks
}

// NewEngine creates an engine writing to store.
func NewEngine(store SubscriptionStore, cfg EngineConfig) *Engine {
	e := &Engine{
		store:      store,
		normalizer: cfg.Normalizer,
		classifier: DefaultClassifierOptions(),
		policy:     Policy{AutoCreateLowConfidence: true},
		exclude:    cfg.Exclude,
		log:        zerolog.Nop(),
		clock:      func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
		locks:      newUserLocks(),
	}
	if e.normalizer == nil {
		e.normalizer = defaultNormalizer
	}
	if cfg.Classifier != nil {
		e.classifier = *cfg.Classifier
	}
	if cfg.Policy != nil {
		e.policy = *cfg.Policy
	}
	if cfg.Logger != nil {
		e.log = *cfg.Logger
	}
	if cfg.Clock != nil {
		e.clock = cfg.Clock
	}
	if cfg.NewID != nil {
		e.newID = cfg.NewID
	}
	return e
}

// Normalizer returns the normalizer the engine groups with.
func (e *Engine) Normalizer() *Normalizer {
	return e.normalizer
}

// Detect groups txs by merchant key, classifies every group and upserts the
// matches for userID. Malformed transactions are counted and skipped. Runs
// for the same user are serialised; different users run in parallel.
func (e *Engine) Detect(ctx context.Context, userID int64, txs []Transaction) (DetectResult, error) {
	return e.detect(ctx, userID, txs, 0)
}

// DetectRecords parses wire records and detects over the ones that parse.
func (e *Engine) DetectRecords(ctx context.Context, userID int64, recs []TransactionRecord) (DetectResult, error) {
	txs, errs := ParseRecords(recs)
	for _, err := range errs {
		e.log.Debug().Err(err).Int64("user_id", userID).Msg("excluding transaction record")
	}
	return e.detect(ctx, userID, txs, len(errs))
}

type upsertOutcome int

const (
	outcomeUnchanged upsertOutcome = iota
	outcomeCreated
	outcomeUpdated
	outcomeSkippedCancelled
)

func (e *Engine) detect(ctx context.Context, userID int64, txs []Transaction, excluded int) (DetectResult, error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	log := e.log.With().Int64("user_id", userID).Logger()
	res := DetectResult{ExcludedCount: excluded}

	groups, invalid := e.group(userID, txs, log)
	res.ExcludedCount += invalid

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if len(g.txs) < 2 {
			continue
		}
		match, ok := e.classifier.Classify(g.dates(), g.amounts())
		if !ok {
			continue
		}
		candidate := g.subscription(userID, match)
		if e.exclude != nil && e.exclude(candidate) {
			log.Debug().Str("merchant_key", g.key).Msg("merchant excluded by config")
			continue
		}
		res.DetectedCount++

		if match.Confidence == ConfidenceLow && !e.policy.AutoCreateLowConfidence {
			res.Candidates = append(res.Candidates, candidate)
			continue
		}

		sub, outcome, err := e.upsert(ctx, candidate)
		if err != nil {
			return res, fmt.Errorf("upserting subscription %q: %w", g.key, err)
		}
		switch outcome {
		case outcomeCreated:
			res.CreatedCount++
		case outcomeUpdated:
			res.UpdatedCount++
		case outcomeSkippedCancelled:
			res.SkippedCancelled++
			continue
		}
		res.Subscriptions = append(res.Subscriptions, sub)
	}

	log.Info().
		Int("groups", len(groups)).
		Int("detected", res.DetectedCount).
		Int("created", res.CreatedCount).
		Int("updated", res.UpdatedCount).
		Int("excluded", res.ExcludedCount).
		Int("skipped_cancelled", res.SkippedCancelled).
		Msg("detection finished")

	return res, nil
}

// merchantGroup is every valid transaction of one user sharing a merchant key.
type merchantGroup struct {
	key string
	txs []Transaction
}

// group partitions valid transactions by merchant key in first-seen order,
// each group sorted by date with repeated ids dropped.
func (e *Engine) group(userID int64, txs []Transaction, log zerolog.Logger) ([]*merchantGroup, int) {
	var groups []*merchantGroup
	byKey := make(map[string]*merchantGroup)
	seen := make(map[string]bool)
	invalid := 0

	for _, tx := range txs {
		if err := validate(tx, userID); err != nil {
			invalid++
			log.Debug().Err(err).Str("transaction_id", tx.ID).Msg("excluding transaction")
			continue
		}
		if tx.ID != "" {
			if seen[tx.ID] {
				continue
			}
			seen[tx.ID] = true
		}
		tx.Date = Day(tx.Date)
		key := e.normalizer.Normalize(tx.Description)
		g, ok := byKey[key]
		if !ok {
			g = &merchantGroup{key: key}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.txs = append(g.txs, tx)
	}

	for _, g := range groups {
		sort.SliceStable(g.txs, func(i, j int) bool {
			return g.txs[i].Date.Before(g.txs[j].Date)
		})
		g.collapseSameDay(log)
	}
	return groups, invalid
}

// collapseSameDay keeps the first of several charges with the same date and
// amount. They are one charge seen through overlapping imports, and a zero
// day gap would otherwise break the interval classification. g.txs must be
// sorted by date.
func (g *merchantGroup) collapseSameDay(log zerolog.Logger) {
	kept := g.txs[:0]
	dayStart := 0
	for _, tx := range g.txs {
		if len(kept) > 0 && !kept[len(kept)-1].Date.Equal(tx.Date) {
			dayStart = len(kept)
		}
		if slices.ContainsFunc(kept[dayStart:], func(k Transaction) bool { return k.Amount.Equal(tx.Amount) }) {
			log.Debug().Str("transaction_id", tx.ID).Str("merchant_key", g.key).Msg("collapsing same-day duplicate charge")
			continue
		}
		kept = append(kept, tx)
	}
	g.txs = kept
}

func (g *merchantGroup) dates() []time.Time {
	dates := make([]time.Time, len(g.txs))
	for i, tx := range g.txs {
		dates[i] = tx.Date
	}
	return dates
}

func (g *merchantGroup) amounts() []decimal.Decimal {
	amounts := make([]decimal.Decimal, len(g.txs))
	for i, tx := range g.txs {
		amounts[i] = tx.Amount
	}
	return amounts
}

// subscription builds the unsaved subscription a matched group implies.
func (g *merchantGroup) subscription(userID int64, match Match) Subscription {
	first := g.txs[0]
	last := g.txs[len(g.txs)-1]
	next := match.Frequency.Step(last.Date, 1)

	ids := make([]string, 0, len(g.txs))
	for _, tx := range g.txs {
		if tx.ID != "" {
			ids = append(ids, tx.ID)
		}
	}

	return Subscription{
		UserID:               userID,
		MerchantKey:          g.key,
		MerchantName:         first.Description,
		Amount:               match.Median,
		Frequency:            match.Frequency,
		Confidence:           match.Confidence,
		StartDate:            first.Date,
		NextBillingDate:      &next,
		Status:               StatusActive,
		LastSeenDate:         last.Date,
		SourceTransactionIDs: ids,
	}
}

// upsert creates candidate or refreshes the user's existing subscription for
// the same merchant key. Cancelled subscriptions are never touched.
func (e *Engine) upsert(ctx context.Context, candidate Subscription) (Subscription, upsertOutcome, error) {
	existing, found, err := e.store.FindByMerchantKey(ctx, candidate.UserID, candidate.MerchantKey)
	if err != nil {
		return Subscription{}, 0, err
	}

	if !found {
		now := e.clock()
		candidate.ID = e.newID()
		candidate.CreatedAt = now
		candidate.UpdatedAt = now
		err := e.store.CreateSubscription(ctx, candidate)
		if err == nil {
			return candidate, outcomeCreated, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return Subscription{}, 0, err
		}
		// Another writer outside this process won the race; refresh theirs.
		existing, found, err = e.store.FindByMerchantKey(ctx, candidate.UserID, candidate.MerchantKey)
		if err != nil {
			return Subscription{}, 0, err
		}
		if !found {
			return Subscription{}, 0, fmt.Errorf("subscription vanished after duplicate insert: %w", ErrDuplicate)
		}
	}

	if existing.Status == StatusCancelled {
		return existing, outcomeSkippedCancelled, nil
	}

	merged := mergeSubscription(existing, candidate)
	if sameSubscription(existing, merged) {
		return existing, outcomeUnchanged, nil
	}
	merged.UpdatedAt = e.clock()
	if err := e.store.UpdateSubscription(ctx, merged); err != nil {
		return Subscription{}, 0, err
	}
	return merged, outcomeUpdated, nil
}

// mergeSubscription applies a fresh detection to an existing active record.
func mergeSubscription(existing, fresh Subscription) Subscription {
	merged := existing.Clone()
	merged.Amount = fresh.Amount
	merged.Frequency = fresh.Frequency
	merged.Confidence = fresh.Confidence
	if fresh.StartDate.Before(merged.StartDate) {
		merged.StartDate = fresh.StartDate
	}
	if fresh.LastSeenDate.After(merged.LastSeenDate) {
		merged.LastSeenDate = fresh.LastSeenDate
	}
	next := merged.Frequency.Step(merged.LastSeenDate, 1)
	merged.NextBillingDate = &next

	known := make(map[string]bool, len(merged.SourceTransactionIDs))
	for _, id := range merged.SourceTransactionIDs {
		known[id] = true
	}
	for _, id := range fresh.SourceTransactionIDs {
		if !known[id] {
			known[id] = true
			merged.SourceTransactionIDs = append(merged.SourceTransactionIDs, id)
		}
	}
	return merged
}

func sameSubscription(a, b Subscription) bool {
	if !a.Amount.Equal(b.Amount) ||
		a.Frequency != b.Frequency ||
		a.Confidence != b.Confidence ||
		!a.StartDate.Equal(b.StartDate) ||
		!a.LastSeenDate.Equal(b.LastSeenDate) {
		return false
	}
	if (a.NextBillingDate == nil) != (b.NextBillingDate == nil) {
		return false
	}
	if a.NextBillingDate != nil && !a.NextBillingDate.Equal(*b.NextBillingDate) {
		return false
	}
	return len(a.SourceTransactionIDs) == len(b.SourceTransactionIDs)
}
