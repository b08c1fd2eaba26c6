package internal

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// SimpleJSONExport is the bank-neutral import format. Amounts carry the
// bank's sign, so expenses are negative:
//
//	{"transactions": [
//	  {"date": "2025-01-15", "text": "Netflix", "amount": -99.00},
//	  {"date": "2025-01-25", "text": "Salary", "amount": 35000}
//	]}
type SimpleJSONExport struct {
	Transactions []SimpleJSONRow `json:"transactions"`
}

type SimpleJSONRow struct {
	Date   string          `json:"date"`
	Text   string          `json:"text"`
	Amount decimal.Decimal `json:"amount"`
}

func readJSONFile[T any](path string) (T, error) {
	var v T
	data, err := os.ReadFile(path)
	if err != nil {
		return v, fmt.Errorf("reading file: %w", err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("parsing JSON: %w", err)
	}
	return v, nil
}

// ParseSimpleJSON reads a SimpleJSONExport and keeps the expenses as charges.
// A bad date anywhere fails the file.
func ParseSimpleJSON(path string) ([]Transaction, error) {
	export, err := readJSONFile[SimpleJSONExport](path)
	if err != nil {
		return nil, err
	}

	ids := newContentIDs()
	var charges []Transaction
	for i, row := range export.Transactions {
		date, err := ParseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		if charge, ok := bankCharge(ids, date, row.Text, row.Amount); ok {
			charges = append(charges, charge)
		}
	}
	return charges, nil
}

// ParseRecordsJSON reads a JSON array in the ingestion wire format, where
// amounts are positive charges. Malformed records fail the file since it is
// usually hand-made.
func ParseRecordsJSON(path string) ([]Transaction, error) {
	recs, err := readJSONFile[[]TransactionRecord](path)
	if err != nil {
		return nil, err
	}
	txs, errs := ParseRecords(recs)
	if len(errs) > 0 {
		return nil, fmt.Errorf("parsing records: %w", errs[0])
	}
	return txs, nil
}
