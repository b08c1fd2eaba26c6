package internal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ParseHandelsbankenXLSX reads charges from the first sheet of a
// Handelsbanken Excel export. Account exports (with a Saldo column) and
// credit card exports (without one, sometimes with an empty first column)
// share the Reskontradatum, Text and Belopp headers. Belopp is negative for
// expenses; deposits are skipped.
func ParseHandelsbankenXLSX(path string) ([]Transaction, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in file")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet: %w", err)
	}
	return parseHandelsbankenRows(rows)
}

// hbLayout locates the columns of interest. Data starts after the header row.
type hbLayout struct {
	date, text, amount int
	firstDataRow       int
}

func (l hbLayout) width() int {
	return max(l.date, l.text, l.amount) + 1
}

func findHandelsbankenLayout(rows [][]string) (hbLayout, error) {
	for i, row := range rows {
		l := hbLayout{date: -1, text: -1, amount: -1, firstDataRow: i + 1}
		for j, cell := range row {
			switch strings.TrimSpace(cell) {
			case "Reskontradatum":
				l.date = j
			case "Text":
				l.text = j
			case "Belopp":
				l.amount = j
			}
		}
		if l.date >= 0 && l.text >= 0 && l.amount >= 0 {
			return l, nil
		}
	}
	return hbLayout{}, fmt.Errorf("could not find required columns (Reskontradatum, Text, Belopp)")
}

// parseSwedishAmount reads "-1 129,50": decimal comma, space or NBSP grouping.
func parseSwedishAmount(s string) (decimal.Decimal, error) {
	s = strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(s)
	return decimal.NewFromString(s)
}

func parseHandelsbankenRows(rows [][]string) ([]Transaction, error) {
	layout, err := findHandelsbankenLayout(rows)
	if err != nil {
		return nil, err
	}

	ids := newContentIDs()
	var charges []Transaction
	for i := layout.firstDataRow; i < len(rows); i++ {
		row := rows[i]
		if len(row) < layout.width() {
			continue
		}
		cell := func(col int) string { return strings.TrimSpace(row[col]) }

		// Rows without a date, text or amount are summaries or padding.
		date, err := ParseDate(cell(layout.date))
		if err != nil {
			continue
		}
		amount, err := parseSwedishAmount(cell(layout.amount))
		if err != nil {
			continue
		}
		text := strings.TrimPrefix(cell(layout.text), "Prel ") // pending
		if text == "" {
			continue
		}

		if charge, ok := bankCharge(ids, date, text, amount); ok {
			charges = append(charges, charge)
		}
	}
	return charges, nil
}
