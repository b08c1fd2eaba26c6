package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// IngestResult reports one ingestion batch.
type IngestResult struct {
	Stored   int // newly stored transactions
	Repeated int // valid records whose id was already stored
	Errors   []RecordError
}

// RecordError ties a rejected record to its position in the batch.
type RecordError struct {
	Index int
	Err   error
}

// Service is the use-case layer the CLI and HTTP API share: ingestion,
// detection over stored history, lookups, proration, cancellation and insights.
type Service struct {
	txs        TransactionStore
	subs       SubscriptionStore
	engine     *Engine
	aggregator *Aggregator
	log        zerolog.Logger
}

func NewService(store Store, engine *Engine, categorizer Categorizer, log zerolog.Logger) *Service {
	return &Service{
		txs:        store,
		subs:       store,
		engine:     engine,
		aggregator: NewAggregator(store, store, categorizer),
		log:        log,
	}
}

// Ingest stores every valid record for userID. Records naming a different
// user are rejected; records without a user are assigned to userID.
func (s *Service) Ingest(ctx context.Context, userID int64, recs []TransactionRecord) (IngestResult, error) {
	ids := newContentIDs()
	var rejected []RecordError
	var txs []Transaction
	for i, rec := range recs {
		if rec.UserID == 0 {
			rec.UserID = userID
		}
		tx, err := parseRecord(rec, ids)
		if err == nil {
			err = checkOwner(tx, userID)
		}
		if err != nil {
			rejected = append(rejected, RecordError{Index: i, Err: err})
			continue
		}
		txs = append(txs, tx)
	}
	return s.save(ctx, userID, txs, rejected)
}

// Import stores parsed transactions (e.g. from a bank export) for userID.
// Transactions without a user are assigned to userID; invalid ones are rejected.
func (s *Service) Import(ctx context.Context, userID int64, parsed []Transaction) (IngestResult, error) {
	var rejected []RecordError
	var txs []Transaction
	for i, tx := range parsed {
		if tx.UserID == 0 {
			tx.UserID = userID
		}
		if err := validate(tx, userID); err != nil {
			rejected = append(rejected, RecordError{Index: i, Err: err})
			continue
		}
		txs = append(txs, tx)
	}
	return s.save(ctx, userID, txs, rejected)
}

func checkOwner(tx Transaction, userID int64) error {
	if tx.UserID != userID {
		return &ValidationError{Field: "user_id", Reason: fmt.Sprintf("record belongs to user %d", tx.UserID)}
	}
	return nil
}

func (s *Service) save(ctx context.Context, userID int64, txs []Transaction, rejected []RecordError) (IngestResult, error) {
	res := IngestResult{Errors: rejected}
	stored, err := s.txs.AddTransactions(ctx, txs)
	if err != nil {
		return res, fmt.Errorf("storing transactions: %w", err)
	}
	res.Stored = stored
	res.Repeated = len(txs) - stored

	s.log.Info().
		Int64("user_id", userID).
		Int("stored", res.Stored).
		Int("repeated", res.Repeated).
		Int("rejected", len(res.Errors)).
		Msg("transactions ingested")
	return res, nil
}

// DetectStored runs detection over everything stored for userID.
func (s *Service) DetectStored(ctx context.Context, userID int64) (DetectResult, error) {
	txs, err := s.txs.ListTransactions(ctx, TransactionFilter{UserID: userID})
	if err != nil {
		return DetectResult{}, fmt.Errorf("listing transactions: %w", err)
	}
	return s.engine.Detect(ctx, userID, txs)
}

func (s *Service) Transactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	return s.txs.ListTransactions(ctx, filter)
}

func (s *Service) Subscriptions(ctx context.Context, filter SubscriptionFilter) ([]Subscription, error) {
	return s.subs.ListSubscriptions(ctx, filter)
}

func (s *Service) Subscription(ctx context.Context, id string) (Subscription, error) {
	return s.subs.GetSubscription(ctx, id)
}

// SubscriptionByMerchant looks up userID's subscription for a merchant key.
func (s *Service) SubscriptionByMerchant(ctx context.Context, userID int64, merchantKey string) (Subscription, error) {
	sub, ok, err := s.subs.FindByMerchantKey(ctx, userID, merchantKey)
	if err != nil {
		return Subscription{}, err
	}
	if !ok {
		return Subscription{}, &NotFoundError{ID: merchantKey}
	}
	return sub, nil
}

// Prorate computes the refund for cancelling subscription id on date. Nothing is written.
func (s *Service) Prorate(ctx context.Context, id string, date time.Time) (ProrationResult, error) {
	sub, err := s.subs.GetSubscription(ctx, id)
	if err != nil {
		return ProrationResult{}, err
	}
	return Prorate(sub, date)
}

// Cancel prorates and then marks the subscription cancelled. It holds the
// user's detection lock so a concurrent run cannot write the old status back.
// NextBillingDate is left as it was.
func (s *Service) Cancel(ctx context.Context, id string, date time.Time) (Subscription, ProrationResult, error) {
	sub, err := s.subs.GetSubscription(ctx, id)
	if err != nil {
		return Subscription{}, ProrationResult{}, err
	}

	unlock := s.engine.locks.lock(sub.UserID)
	defer unlock()

	// Re-read under the lock.
	sub, err = s.subs.GetSubscription(ctx, id)
	if err != nil {
		return Subscription{}, ProrationResult{}, err
	}
	proration, err := Prorate(sub, date)
	if err != nil {
		return Subscription{}, ProrationResult{}, err
	}

	sub.Status = StatusCancelled
	sub.UpdatedAt = s.engine.clock()
	if err := s.subs.UpdateSubscription(ctx, sub); err != nil {
		return Subscription{}, ProrationResult{}, fmt.Errorf("cancelling subscription: %w", err)
	}

	s.log.Info().
		Str("subscription_id", sub.ID).
		Int64("user_id", sub.UserID).
		Str("refund", proration.RefundAmount.StringFixed(2)).
		Msg("subscription cancelled")
	return sub, proration, nil
}

// Delete removes a subscription. Detection may recreate it from history.
func (s *Service) Delete(ctx context.Context, id string) error {
	sub, err := s.subs.GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	unlock := s.engine.locks.lock(sub.UserID)
	defer unlock()
	return s.subs.DeleteSubscription(ctx, id)
}

func (s *Service) Insights(ctx context.Context, userID int64, asOf time.Time) (InsightsSnapshot, error) {
	return s.aggregator.Summarize(ctx, userID, asOf)
}
