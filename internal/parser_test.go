package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func registerTestSource(t *testing.T) {
	t.Helper()
	RegisterSource(Source{Name: "test-format", Parse: func(string) ([]Transaction, error) {
		return []Transaction{{Description: "from test source"}}, nil
	}})
	t.Cleanup(func() { delete(sources, "test-format") })
}

func TestSplitFileArg(t *testing.T) {
	registerTestSource(t)

	tests := []struct {
		input      string
		wantFormat string
		wantPath   string
	}{
		{"test-format:data.json", "test-format", "data.json"},
		{"handelsbanken-xlsx:bank.xlsx", "handelsbanken-xlsx", "bank.xlsx"},
		{"records-json:export.json", "records-json", "export.json"},
		{"data.json", "", "data.json"},
		{"unknown:data.json", "", "unknown:data.json"},
		{"C:\\Users\\test\\data.xlsx", "", "C:\\Users\\test\\data.xlsx"},
		{"foo:bar:baz.json", "", "foo:bar:baz.json"},
		{"test-format:path with spaces/file.json", "test-format", "path with spaces/file.json"},
		{"test-format:/home/user/a:b.json", "test-format", "/home/user/a:b.json"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			format, path := SplitFileArg(tt.input)
			if format != tt.wantFormat || path != tt.wantPath {
				t.Errorf("SplitFileArg(%q) = (%q, %q), want (%q, %q)", tt.input, format, path, tt.wantFormat, tt.wantPath)
			}
		})
	}
}

func TestLookupSource(t *testing.T) {
	registerTestSource(t)

	src, err := LookupSource("test-format")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	txs, _ := src.Parse("ignored")
	if len(txs) != 1 || txs[0].Description != "from test source" {
		t.Errorf("unexpected parse result: %+v", txs)
	}

	_, err = LookupSource("unknown-format")
	if err == nil || !strings.Contains(err.Error(), "records-json") {
		t.Errorf("expected error listing available sources, got %v", err)
	}

	txs, err = ParseFile("test-format:whatever.bin")
	if err != nil || len(txs) != 1 {
		t.Errorf("ParseFile with explicit prefix = %v, %v", txs, err)
	}
}

func TestSourceForPath(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"bank.xlsx", "handelsbanken-xlsx", false},
		{"BANK.XLSX", "handelsbanken-xlsx", false},
		{"/tmp/data.json", "simple-json", false},
		{"export.csv", "", true},
		{"noextension", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			src, err := SourceForPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SourceForPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if src.Name != tt.want {
				t.Errorf("SourceForPath(%q) = %q, want %q", tt.path, src.Name, tt.want)
			}
		})
	}
}

func TestParseSwedishAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"-99,00", "-99"},
		{"-1 129,50", "-1129.5"},
		{"25\u00a0000,00", "25000"},
		{"12", "12"},
	}
	for _, tt := range tests {
		got, err := parseSwedishAmount(tt.in)
		if err != nil {
			t.Errorf("parseSwedishAmount(%q) error: %v", tt.in, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("parseSwedishAmount(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if _, err := parseSwedishAmount("abc"); err == nil {
		t.Error("expected error for abc")
	}
}

func TestParseHandelsbankenRows(t *testing.T) {
	rows := [][]string{
		{"Kontoutdrag"},
		{"", "Reskontradatum", "Transaktionsdatum", "Text", "Belopp", "Saldo"},
		{"", "2025-01-15", "2025-01-14", "NETFLIX.COM", "-99,00", "10 000,00"},
		{"", "2025-01-20", "2025-01-20", "Prel Spotify", "-1 129,50", "8 870,50"},
		{"", "2025-01-25", "2025-01-25", "Lön", "25\u00a0000,00", "33 870,50"},
		{"", "not a date", "", "Broken", "-1,00", ""},
		{"", "2025-01-26", "", "Broken amount", "abc", ""},
		{"", "2025-01-27"},
		{"", "", "", "", "", ""},
	}

	txs, err := parseHandelsbankenRows(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 charges, got %d", len(txs))
	}
	if txs[0].Description != "NETFLIX.COM" || txs[0].Amount.String() != "99" {
		t.Errorf("unexpected first charge: %+v", txs[0])
	}
	if txs[1].Description != "Spotify" || txs[1].Amount.String() != "1129.5" {
		t.Errorf("unexpected second charge: %+v", txs[1])
	}
	if txs[0].ID == "" || txs[0].ID == txs[1].ID {
		t.Errorf("expected distinct ids, got %q and %q", txs[0].ID, txs[1].ID)
	}

	again, _ := parseHandelsbankenRows(rows)
	if again[0].ID != txs[0].ID {
		t.Errorf("expected stable ids across parses")
	}
}

func TestParseHandelsbankenRows_MissingColumns(t *testing.T) {
	_, err := parseHandelsbankenRows([][]string{{"Datum", "Text", "Belopp"}})
	if err == nil {
		t.Fatal("expected error for missing Reskontradatum column")
	}
}

func TestParseSimpleJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tx.json")
	data := `{"transactions": [
		{"date": "2025-01-15", "text": "Netflix", "amount": -99.00},
		{"date": "2025-01-25", "text": "Salary", "amount": 35000},
		{"date": "2025-02-15", "text": "Netflix", "amount": "-99.50"}
	]}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	txs, err := ParseFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 charges, got %d", len(txs))
	}
	if txs[1].Amount.String() != "99.5" {
		t.Errorf("expected positive charge 99.5, got %s", txs[1].Amount)
	}
	if txs[0].UserID != 0 {
		t.Errorf("expected parsed charges without user, got %d", txs[0].UserID)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"transactions": [{"date": "15/01/2025", "text": "x", "amount": -1}]}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseSimpleJSON(bad); err == nil {
		t.Error("expected error for bad date")
	}
}

func TestParseSimpleJSON_IDsFollowContent(t *testing.T) {
	dir := t.TempDir()
	write := func(name, data string) []Transaction {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
		txs, err := ParseSimpleJSON(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return txs
	}

	older := write("a.json", `{"transactions": [
		{"date": "2025-01-15", "text": "Netflix", "amount": -99},
		{"date": "2025-02-15", "text": "Netflix", "amount": -99},
		{"date": "2025-02-15", "text": "Netflix", "amount": -99}
	]}`)
	newer := write("b.json", `{"transactions": [
		{"date": "2025-02-15", "text": "Netflix", "amount": -99.00},
		{"date": "2025-02-15", "text": "Netflix", "amount": -99.00},
		{"date": "2025-03-15", "text": "Netflix", "amount": -99.00}
	]}`)

	if older[1].ID == older[2].ID {
		t.Errorf("identical rows in one export share id %s", older[1].ID)
	}
	if newer[0].ID != older[1].ID || newer[1].ID != older[2].ID {
		t.Errorf("overlapping rows got new ids: %s %s, want %s %s", newer[0].ID, newer[1].ID, older[1].ID, older[2].ID)
	}
	if newer[2].ID == older[0].ID {
		t.Error("different charges share an id")
	}
}

func TestParseRecordsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	if err := os.WriteFile(path, []byte(`[{"id": "r1", "date": "2025-01-15", "description": "Netflix", "amount": "99.00"}]`), 0644); err != nil {
		t.Fatal(err)
	}
	txs, err := ParseFile("records-json:" + path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 1 || txs[0].ID != "r1" || txs[0].Amount.String() != "99" {
		t.Errorf("unexpected records: %+v", txs)
	}

	if err := os.WriteFile(path, []byte(`[{"date": "2025-01-15", "description": "", "amount": 1}]`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseRecordsJSON(path); err == nil {
		t.Error("expected error for empty description")
	}
}
