package internal

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// DefaultProcessorPrefixes are payment-processor and channel prefixes banks put
// in front of the merchant name.
var DefaultProcessorPrefixes = []string{
	"pos",
	"ach",
	"debit",
	"debit card",
	"credit card",
	"card purchase",
	"purchase",
	"purchase at",
	"payment to",
	"online payment",
	"recurring payment",
	"checkcard",
	"sq",
	"tst",
}

var (
	embeddedDateRe = regexp.MustCompile(`\b\d{1,4}[/.-]\d{1,2}(?:[/.-]\d{2,4})?\b`)
	referenceRe    = regexp.MustCompile(`(?:\b(?:ref|txn|trx|conf|auth)\b\s*[:#.]?\s*[a-z0-9-]+)|#\s*\d+|\*+\d+`)
	longDigitsRe   = regexp.MustCompile(`[\p{L}\p{N}]*\d{4,}[\p{L}\p{N}]*`)
	separatorRe    = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	trailingCodeRe = regexp.MustCompile(`\s[\p{L}\p{N}]{6,}$`)
)

// MerchantGroup forces every description matching one of its patterns onto Key.
type MerchantGroup struct {
	Key      string
	Patterns []*regexp.Regexp
}

// Normalizer turns raw descriptions into merchant keys. The zero value uses
// the default processor prefixes and no groups.
type Normalizer struct {
	prefixes []string
	groups   []MerchantGroup
}

// NewNormalizer builds a normalizer with extra prefixes on top of the defaults.
func NewNormalizer(extraPrefixes []string, groups []MerchantGroup) *Normalizer {
	seen := make(map[string]bool)
	var prefixes []string
	for _, p := range append(append([]string{}, DefaultProcessorPrefixes...), extraPrefixes...) {
		p = strings.Join(strings.Fields(strings.ToLower(p)), " ")
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		prefixes = append(prefixes, p)
	}
	// Longest first so "debit card" wins over "debit".
	sort.SliceStable(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	return &Normalizer{prefixes: prefixes, groups: groups}
}

var defaultNormalizer = NewNormalizer(nil, nil)

// Normalize canonicalises a raw description with the default rules.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

// Normalize returns the merchant key for raw. It never fails: when every token
// is stripped the trimmed, case-folded input is returned.
func (n *Normalizer) Normalize(raw string) string {
	if n == nil {
		n = defaultNormalizer
	}
	for _, g := range n.groups {
		for _, re := range g.Patterns {
			if re.MatchString(raw) {
				return g.Key
			}
		}
	}

	folded := strings.TrimSpace(strings.ToLower(raw))

	s := embeddedDateRe.ReplaceAllString(folded, " ")
	s = referenceRe.ReplaceAllString(s, " ")
	s = longDigitsRe.ReplaceAllString(s, " ")
	s = separatorRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = n.stripPrefixes(s)
	s = stripTrailingCode(s)

	if s == "" {
		return folded
	}
	return s
}

func (n *Normalizer) stripPrefixes(s string) string {
	for {
		stripped := false
		for _, p := range n.prefixes {
			if strings.HasPrefix(s, p+" ") {
				s = strings.TrimSpace(s[len(p):])
				stripped = true
				break
			}
		}
		if !stripped {
			return s
		}
	}
}

// stripTrailingCode drops a final token of six or more characters that mixes
// letters and digits, such as "p0a1b2c3". The first token is never dropped.
func stripTrailingCode(s string) string {
	loc := trailingCodeRe.FindStringIndex(s)
	if loc == nil {
		return s
	}
	token := s[loc[0]+1:]
	if !strings.ContainsFunc(token, unicode.IsLetter) || !strings.ContainsFunc(token, unicode.IsDigit) {
		return s
	}
	return strings.TrimSpace(s[:loc[0]])
}
