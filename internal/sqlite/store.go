package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gigurra/subsmart/internal"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const timestampLayout = time.RFC3339Nano

// Store implements internal.Store on a migrated sqlite database.
// Money is stored as decimal TEXT and dates as YYYY-MM-DD.
type Store struct {
	db *sql.DB
}

var _ internal.Store = (*Store)(nil)

// New wraps an open, migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// OpenStore opens the database at path and applies migrations.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return New(db), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const subscriptionColumns = `id, user_id, merchant_key, merchant_name, amount, frequency, confidence,
	status, start_date, last_seen_date, next_billing_date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (internal.Subscription, error) {
	var (
		sub                               internal.Subscription
		amount, freq, conf, status        string
		start, lastSeen, created, updated string
		next                              sql.NullString
	)
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.MerchantKey, &sub.MerchantName, &amount, &freq, &conf,
		&status, &start, &lastSeen, &next, &created, &updated); err != nil {
		return internal.Subscription{}, err
	}

	var err error
	if sub.Amount, err = decimal.NewFromString(amount); err != nil {
		return internal.Subscription{}, fmt.Errorf("decoding amount of %s: %w", sub.ID, err)
	}
	sub.Frequency = internal.Frequency(freq)
	sub.Confidence = internal.Confidence(conf)
	sub.Status = internal.SubscriptionStatus(status)
	if sub.StartDate, err = internal.ParseDate(start); err != nil {
		return internal.Subscription{}, err
	}
	if sub.LastSeenDate, err = internal.ParseDate(lastSeen); err != nil {
		return internal.Subscription{}, err
	}
	if next.Valid {
		d, err := internal.ParseDate(next.String)
		if err != nil {
			return internal.Subscription{}, err
		}
		sub.NextBillingDate = &d
	}
	if sub.CreatedAt, err = time.Parse(timestampLayout, created); err != nil {
		return internal.Subscription{}, fmt.Errorf("decoding created_at of %s: %w", sub.ID, err)
	}
	if sub.UpdatedAt, err = time.Parse(timestampLayout, updated); err != nil {
		return internal.Subscription{}, fmt.Errorf("decoding updated_at of %s: %w", sub.ID, err)
	}
	return sub, nil
}

func subscriptionArgs(sub internal.Subscription) []any {
	var next any
	if sub.NextBillingDate != nil {
		next = internal.FormatDate(*sub.NextBillingDate)
	}
	return []any{
		sub.ID, sub.UserID, sub.MerchantKey, sub.MerchantName, sub.Amount.String(),
		string(sub.Frequency), string(sub.Confidence), string(sub.Status),
		internal.FormatDate(sub.StartDate), internal.FormatDate(sub.LastSeenDate), next,
		sub.CreatedAt.UTC().Format(timestampLayout), sub.UpdatedAt.UTC().Format(timestampLayout),
	}
}

// loadSources fills SourceTransactionIDs for every subscription in subs.
func (s *Store) loadSources(ctx context.Context, subs []internal.Subscription) error {
	if len(subs) == 0 {
		return nil
	}
	index := make(map[string]int, len(subs))
	placeholders := make([]string, len(subs))
	args := make([]any, len(subs))
	for i, sub := range subs {
		index[sub.ID] = i
		placeholders[i] = "?"
		args[i] = sub.ID
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT subscription_id, transaction_id FROM subscription_sources
	WHERE subscription_id IN (`+strings.Join(placeholders, ",")+`)
	ORDER BY subscription_id, position`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var subID, txID string
		if err := rows.Scan(&subID, &txID); err != nil {
			return err
		}
		i := index[subID]
		subs[i].SourceTransactionIDs = append(subs[i].SourceTransactionIDs, txID)
	}
	return rows.Err()
}

func writeSources(ctx context.Context, tx *sql.Tx, sub internal.Subscription) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM subscription_sources WHERE subscription_id = ?`, sub.ID); err != nil {
		return err
	}
	for i, id := range sub.SourceTransactionIDs {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO subscription_sources(subscription_id, transaction_id, position) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`, sub.ID, id, i); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, id string) (internal.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return internal.Subscription{}, &internal.NotFoundError{ID: id}
	}
	if err != nil {
		return internal.Subscription{}, err
	}
	subs := []internal.Subscription{sub}
	if err := s.loadSources(ctx, subs); err != nil {
		return internal.Subscription{}, err
	}
	return subs[0], nil
}

func (s *Store) FindByMerchantKey(ctx context.Context, userID int64, merchantKey string) (internal.Subscription, bool, error) {
	sub, err := scanSubscription(s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = ? AND merchant_key = ?`, userID, merchantKey))
	if errors.Is(err, sql.ErrNoRows) {
		return internal.Subscription{}, false, nil
	}
	if err != nil {
		return internal.Subscription{}, false, err
	}
	subs := []internal.Subscription{sub}
	if err := s.loadSources(ctx, subs); err != nil {
		return internal.Subscription{}, false, err
	}
	return subs[0], true, nil
}

func (s *Store) ListSubscriptions(ctx context.Context, filter internal.SubscriptionFilter) ([]internal.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = ?`
	args := []any{filter.UserID}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY merchant_key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []internal.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := s.loadSources(ctx, subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *Store) CreateSubscription(ctx context.Context, sub internal.Subscription) error {
	return WithTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO subscriptions(`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, subscriptionArgs(sub)...)
		if isUniqueViolation(err) {
			return internal.ErrDuplicate
		}
		if err != nil {
			return err
		}
		return writeSources(ctx, tx, sub)
	})
}

func (s *Store) UpdateSubscription(ctx context.Context, sub internal.Subscription) error {
	return WithTx(ctx, s.db, func(tx *sql.Tx) error {
		// created_at is never rewritten
		cols := subscriptionArgs(sub)
		args := append(append([]any{}, cols[1:11]...), cols[12], cols[0])
		res, err := tx.ExecContext(ctx, `
		UPDATE subscriptions SET
		 user_id = ?, merchant_key = ?, merchant_name = ?, amount = ?, frequency = ?, confidence = ?,
		 status = ?, start_date = ?, last_seen_date = ?, next_billing_date = ?, updated_at = ?
		WHERE id = ?`, args...)
		if isUniqueViolation(err) {
			return internal.ErrDuplicate
		}
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return &internal.NotFoundError{ID: sub.ID}
		}
		return writeSources(ctx, tx, sub)
	})
}

func (s *Store) DeleteSubscription(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &internal.NotFoundError{ID: id}
	}
	return nil
}

func (s *Store) AddTransactions(ctx context.Context, txs []internal.Transaction) (int, error) {
	added := 0
	err := WithTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions(id, user_id, date, description, amount) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range txs {
			res, err := stmt.ExecContext(ctx, t.ID, t.UserID, internal.FormatDate(t.Date), t.Description, t.Amount.String())
			if err != nil {
				return fmt.Errorf("inserting transaction %s: %w", t.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			added += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter internal.TransactionFilter) ([]internal.Transaction, error) {
	query := `SELECT id, user_id, date, description, amount FROM transactions WHERE user_id = ?`
	args := []any{filter.UserID}
	if !filter.From.IsZero() {
		query += ` AND date >= ?`
		args = append(args, internal.FormatDate(filter.From))
	}
	if !filter.To.IsZero() {
		query += ` AND date <= ?`
		args = append(args, internal.FormatDate(filter.To))
	}
	query += ` ORDER BY date, rowid`
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1 // sqlite: no limit
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []internal.Transaction
	for rows.Next() {
		var (
			t            internal.Transaction
			date, amount string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &date, &t.Description, &amount); err != nil {
			return nil, err
		}
		if t.Date, err = internal.ParseDate(date); err != nil {
			return nil, err
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("decoding amount of %s: %w", t.ID, err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
