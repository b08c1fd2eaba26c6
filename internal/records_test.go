package internal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name      string
		rec       TransactionRecord
		wantField string
		amount    string
	}{
		{
			name:   "number amount",
			rec:    TransactionRecord{ID: "t1", UserID: 1, Date: "2025-01-15", Description: "Netflix", Amount: json.RawMessage(`15.49`)},
			amount: "15.49",
		},
		{
			name:   "string amount",
			rec:    TransactionRecord{ID: "t1", UserID: 1, Date: " 2025-01-15 ", Description: "Netflix", Amount: json.RawMessage(`"15.49"`)},
			amount: "15.49",
		},
		{
			name:      "bad date",
			rec:       TransactionRecord{UserID: 1, Date: "2025-02-30", Description: "Netflix", Amount: json.RawMessage(`1`)},
			wantField: "date",
		},
		{
			name:      "missing amount",
			rec:       TransactionRecord{UserID: 1, Date: "2025-01-15", Description: "Netflix"},
			wantField: "amount",
		},
		{
			name:      "null amount",
			rec:       TransactionRecord{UserID: 1, Date: "2025-01-15", Description: "Netflix", Amount: json.RawMessage(`null`)},
			wantField: "amount",
		},
		{
			name:      "text amount",
			rec:       TransactionRecord{UserID: 1, Date: "2025-01-15", Description: "Netflix", Amount: json.RawMessage(`"ten"`)},
			wantField: "amount",
		},
		{
			name:      "blank description",
			rec:       TransactionRecord{UserID: 1, Date: "2025-01-15", Description: "  ", Amount: json.RawMessage(`1`)},
			wantField: "description",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := ParseRecord(tt.rec)
			if tt.wantField != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.wantField, verr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.rec.ID, tx.ID)
			assert.Equal(t, tt.rec.UserID, tx.UserID)
			assert.Equal(t, date("2025-01-15"), tx.Date)
			assert.Equal(t, tt.amount, tx.Amount.String())
		})
	}
}

func TestParseRecord_AssignsID(t *testing.T) {
	rec := TransactionRecord{UserID: 1, Date: "2025-01-15", Description: "Netflix", Amount: json.RawMessage(`99`)}
	a, err := ParseRecord(rec)
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)

	// Uploading the same charge again yields the same id, whatever the
	// amount spelling.
	rec.Amount = json.RawMessage(`"99.00"`)
	b, err := ParseRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	rec.Date = "2025-02-15"
	c, err := ParseRecord(rec)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestParseRecords_IdenticalRecordsGetDistinctIDs(t *testing.T) {
	rec := TransactionRecord{UserID: 1, Date: "2025-01-15", Description: "Coffee", Amount: json.RawMessage(`35`)}
	first, errs := ParseRecords([]TransactionRecord{rec, rec})
	require.Empty(t, errs)
	require.Len(t, first, 2)
	assert.NotEqual(t, first[0].ID, first[1].ID)

	again, errs := ParseRecords([]TransactionRecord{rec, rec})
	require.Empty(t, errs)
	assert.Equal(t, []string{first[0].ID, first[1].ID}, []string{again[0].ID, again[1].ID})
}

func TestParseRecords_KeepsGoing(t *testing.T) {
	var recs []TransactionRecord
	require.NoError(t, json.Unmarshal([]byte(`[
		{"date": "2025-01-15", "description": "Netflix", "amount": 99, "user_id": 1},
		{"date": "yesterday", "description": "Netflix", "amount": 99, "user_id": 1},
		{"date": "2025-02-15", "description": "Netflix", "amount": "99.00", "user_id": 1}
	]`), &recs))

	txs, errs := ParseRecords(recs)
	assert.Len(t, txs, 2)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "invalid date")
}
