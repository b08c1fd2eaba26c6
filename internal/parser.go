package internal

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Source is an import format for transaction files. Parse returns
// transactions without a user; the caller assigns one.
type Source struct {
	Name string
	// Extensions (lower case, with dot) this source claims when a file
	// argument carries no explicit format prefix.
	Extensions []string
	Parse      func(path string) ([]Transaction, error)
}

var sources = map[string]Source{}

// RegisterSource adds or replaces an import format.
func RegisterSource(s Source) {
	sources[s.Name] = s
}

// LookupSource returns the registered source called name.
func LookupSource(name string) (Source, error) {
	s, ok := sources[name]
	if !ok {
		return Source{}, fmt.Errorf("unknown source type: %s (available: %v)", name, SourceNames())
	}
	return s, nil
}

// SourceNames lists the registered formats, sorted.
func SourceNames() []string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SplitFileArg separates an optional "<format>:" prefix from a file argument.
// Prefixes that are not registered formats stay part of the path, so
// "C:\data.xlsx" and "a:b.json" are plain paths.
func SplitFileArg(arg string) (format, path string) {
	prefix, rest, found := strings.Cut(arg, ":")
	if !found {
		return "", arg
	}
	if _, ok := sources[prefix]; ok {
		return prefix, rest
	}
	return "", arg
}

// SourceForPath picks the source claiming the file's extension.
func SourceForPath(path string) (Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, name := range SourceNames() {
		for _, claimed := range sources[name].Extensions {
			if ext != "" && ext == claimed {
				return sources[name], nil
			}
		}
	}
	return Source{}, fmt.Errorf("cannot infer source type of %s, prefix it with one of %v", path, SourceNames())
}

// ParseFile resolves the format of a file argument and parses it.
func ParseFile(arg string) ([]Transaction, error) {
	format, path := SplitFileArg(arg)
	var (
		src Source
		err error
	)
	if format != "" {
		src, err = LookupSource(format)
	} else {
		src, err = SourceForPath(path)
	}
	if err != nil {
		return nil, err
	}
	return src.Parse(path)
}

// importNamespace scopes the ids of imported rows.
var importNamespace = uuid.MustParse("6f1c1b2e-2f5d-4a43-9d0c-5b7e7b1d3a10")

// contentIDs derives transaction ids from what a charge is rather than where
// it sits in a file, so overlapping exports and re-uploads of the same
// charges map to the same ids. Identical rows within one batch are told
// apart by their occurrence ordinal.
type contentIDs struct {
	seen map[string]int
}

func newContentIDs() *contentIDs {
	return &contentIDs{seen: map[string]int{}}
}

func (c *contentIDs) next(date time.Time, description string, amount decimal.Decimal) string {
	key := fmt.Sprintf("%s|%s|%s", FormatDate(date), description, amount.String())
	n := c.seen[key]
	c.seen[key] = n + 1
	return uuid.NewSHA1(importNamespace, []byte(fmt.Sprintf("%s|%d", key, n))).String()
}

// bankCharge converts a bank-signed row (expenses negative) into a charge.
// Income and zero rows report false.
func bankCharge(ids *contentIDs, date time.Time, text string, amount decimal.Decimal) (Transaction, bool) {
	if !amount.IsNegative() {
		return Transaction{}, false
	}
	charge := amount.Neg()
	return Transaction{
		ID:          ids.next(date, text, charge),
		Date:        Day(date),
		Description: text,
		Amount:      charge,
	}, true
}

func init() {
	RegisterSource(Source{Name: "handelsbanken-xlsx", Extensions: []string{".xlsx"}, Parse: ParseHandelsbankenXLSX})
	RegisterSource(Source{Name: "simple-json", Extensions: []string{".json"}, Parse: ParseSimpleJSON})
	RegisterSource(Source{Name: "records-json", Parse: ParseRecordsJSON})
}
