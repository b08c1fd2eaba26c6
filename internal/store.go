package internal

import (
	"context"
	"sort"
	"sync"
	"time"
)

// SubscriptionFilter selects subscriptions by user and optionally status.
type SubscriptionFilter struct {
	UserID int64
	Status SubscriptionStatus // empty = any
}

// TransactionFilter selects a user's transactions. Zero From/To are open
// bounds; Limit <= 0 means no limit.
type TransactionFilter struct {
	UserID int64
	From   time.Time
	To     time.Time
	Offset int
	Limit  int
}

func (f TransactionFilter) matches(tx Transaction) bool {
	if tx.UserID != f.UserID {
		return false
	}
	if !f.From.IsZero() && tx.Date.Before(Day(f.From)) {
		return false
	}
	if !f.To.IsZero() && tx.Date.After(Day(f.To)) {
		return false
	}
	return true
}

// SubscriptionStore is the durable keyed storage the engine owns records in.
type SubscriptionStore interface {
	GetSubscription(ctx context.Context, id string) (Subscription, error)
	// FindByMerchantKey reports false when the user has no subscription for key.
	FindByMerchantKey(ctx context.Context, userID int64, merchantKey string) (Subscription, bool, error)
	ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]Subscription, error)
	// CreateSubscription returns ErrDuplicate if (user_id, merchant_key) exists.
	CreateSubscription(ctx context.Context, sub Subscription) error
	UpdateSubscription(ctx context.Context, sub Subscription) error
	DeleteSubscription(ctx context.Context, id string) error
}

// TransactionStore holds ingested transactions. Transactions are immutable
// and keyed by (user, id); re-adding an id the same user already has is
// ignored.
type TransactionStore interface {
	AddTransactions(ctx context.Context, txs []Transaction) (int, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
}

// Store combines both halves.
type Store interface {
	SubscriptionStore
	TransactionStore
}

// MemoryStore is an in-memory Store, safe for concurrent use. Values are
// copied in and out.
type MemoryStore struct {
	mu            sync.RWMutex
	subscriptions map[string]Subscription
	byMerchant    map[merchantRef]string
	transactions  map[txRef]Transaction
	txOrder       []txRef
}

type merchantRef struct {
	userID int64
	key    string
}

type txRef struct {
	userID int64
	id     string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscriptions: make(map[string]Subscription),
		byMerchant:    make(map[merchantRef]string),
		transactions:  make(map[txRef]Transaction),
	}
}

func (s *MemoryStore) GetSubscription(ctx context.Context, id string) (Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return Subscription{}, &NotFoundError{ID: id}
	}
	return sub.Clone(), nil
}

func (s *MemoryStore) FindByMerchantKey(ctx context.Context, userID int64, merchantKey string) (Subscription, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byMerchant[merchantRef{userID, merchantKey}]
	if !ok {
		return Subscription{}, false, nil
	}
	return s.subscriptions[id].Clone(), true, nil
}

func (s *MemoryStore) ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var subs []Subscription
	for _, sub := range s.subscriptions {
		if sub.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && sub.Status != filter.Status {
			continue
		}
		subs = append(subs, sub.Clone())
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].MerchantKey < subs[j].MerchantKey })
	return subs, nil
}

func (s *MemoryStore) CreateSubscription(ctx context.Context, sub Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := merchantRef{sub.UserID, sub.MerchantKey}
	if _, exists := s.byMerchant[ref]; exists {
		return ErrDuplicate
	}
	s.subscriptions[sub.ID] = sub.Clone()
	s.byMerchant[ref] = sub.ID
	return nil
}

func (s *MemoryStore) UpdateSubscription(ctx context.Context, sub Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.subscriptions[sub.ID]
	if !ok {
		return &NotFoundError{ID: sub.ID}
	}
	newRef := merchantRef{sub.UserID, sub.MerchantKey}
	if oldRef := (merchantRef{old.UserID, old.MerchantKey}); oldRef != newRef {
		if _, taken := s.byMerchant[newRef]; taken {
			return ErrDuplicate
		}
		delete(s.byMerchant, oldRef)
		s.byMerchant[newRef] = sub.ID
	}
	s.subscriptions[sub.ID] = sub.Clone()
	return nil
}

func (s *MemoryStore) DeleteSubscription(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	delete(s.byMerchant, merchantRef{sub.UserID, sub.MerchantKey})
	delete(s.subscriptions, id)
	return nil
}

func (s *MemoryStore) AddTransactions(ctx context.Context, txs []Transaction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, tx := range txs {
		ref := txRef{userID: tx.UserID, id: tx.ID}
		if _, exists := s.transactions[ref]; exists {
			continue
		}
		s.transactions[ref] = tx
		s.txOrder = append(s.txOrder, ref)
		added++
	}
	return added, nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var txs []Transaction
	for _, ref := range s.txOrder {
		if tx := s.transactions[ref]; filter.matches(tx) {
			txs = append(txs, tx)
		}
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Date.Before(txs[j].Date) })
	return paginate(txs, filter.Offset, filter.Limit), nil
}

func paginate(txs []Transaction, offset, limit int) []Transaction {
	if offset >= len(txs) {
		return nil
	}
	if offset > 0 {
		txs = txs[offset:]
	}
	if limit > 0 && limit < len(txs) {
		txs = txs[:limit]
	}
	return txs
}
