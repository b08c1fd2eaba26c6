package internal

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// TransactionRecord is the ingestion wire format. Amount accepts either a JSON
// number or a decimal string.
type TransactionRecord struct {
	ID          string          `json:"id,omitempty"`
	Date        string          `json:"date"` // YYYY-MM-DD
	Description string          `json:"description"`
	Amount      json.RawMessage `json:"amount"`
	UserID      int64           `json:"user_id"`
}

// ParseRecord validates a record and converts it to a Transaction. Records
// without an id get one derived from their date, description and amount.
func ParseRecord(rec TransactionRecord) (Transaction, error) {
	return parseRecord(rec, newContentIDs())
}

func parseRecord(rec TransactionRecord, ids *contentIDs) (Transaction, error) {
	date, err := ParseDate(strings.TrimSpace(rec.Date))
	if err != nil {
		return Transaction{}, &ValidationError{Field: "date", Reason: err.Error()}
	}
	amount, err := parseAmount(rec.Amount)
	if err != nil {
		return Transaction{}, &ValidationError{Field: "amount", Reason: err.Error()}
	}
	if strings.TrimSpace(rec.Description) == "" {
		return Transaction{}, &ValidationError{Field: "description", Reason: "empty"}
	}
	id := rec.ID
	if id == "" {
		id = ids.next(date, rec.Description, amount)
	}
	return Transaction{
		ID:          id,
		UserID:      rec.UserID,
		Date:        date,
		Description: rec.Description,
		Amount:      amount,
	}, nil
}

// ParseRecords converts every record it can. Failures are returned alongside,
// in input order; they never abort the batch. Identical id-less records get
// distinct ids.
func ParseRecords(recs []TransactionRecord) ([]Transaction, []error) {
	ids := newContentIDs()
	var txs []Transaction
	var errs []error
	for _, rec := range recs {
		tx, err := parseRecord(rec, ids)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		txs = append(txs, tx)
	}
	return txs, errs
}

func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	s = strings.Trim(s, `"`)
	if s == "" || s == "null" {
		return decimal.Zero, errors.New("missing")
	}
	return decimal.NewFromString(s)
}

// validate reports why tx cannot take part in detection for userID.
func validate(tx Transaction, userID int64) error {
	switch {
	case tx.Date.IsZero():
		return &ValidationError{Field: "date", Reason: "missing or unparsable"}
	case tx.UserID != userID:
		return &ValidationError{Field: "user_id", Reason: "belongs to another user"}
	case !tx.Amount.IsPositive():
		return &ValidationError{Field: "amount", Reason: "not a positive charge"}
	case strings.TrimSpace(tx.Description) == "":
		return &ValidationError{Field: "description", Reason: "empty"}
	}
	return nil
}
