package internal

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// GroupSuggestion is a set of merchant keys that only recur once merged
type GroupSuggestion struct {
	Name         string
	Pattern      string
	Keys         []string
	Frequency    Frequency
	Transactions []Transaction
}

// SuggestGroups looks for merchant keys that are too sparse to classify on
// their own but form a recurring series together. Keys are clustered by a
// shared leading word and by edit distance (e.g. "spotify p0a1b" vs
// "spotify p0c9d"), and a cluster is suggested when its merged charges classify.
func SuggestGroups(txs []Transaction, normalizer *Normalizer, opts ClassifierOptions) []GroupSuggestion {
	byKey := make(map[string][]Transaction)
	for _, tx := range txs {
		if !tx.Amount.IsPositive() || tx.Date.IsZero() {
			continue
		}
		key := normalizer.Normalize(tx.Description)
		byKey[key] = append(byKey[key], tx)
	}

	// Keys seen only once or twice can't carry a series alone
	var orphans []string
	for key, list := range byKey {
		if len(list) <= 2 {
			orphans = append(orphans, key)
		}
	}
	sort.Strings(orphans)

	var suggestions []GroupSuggestion
	seen := make(map[string]bool)
	for _, c := range append(prefixClusters(orphans), similarityClusters(orphans)...) {
		keys := uniqueStrings(c.keys)
		if len(keys) < 2 {
			continue
		}
		sort.Strings(keys)
		id := strings.Join(keys, "|")
		if seen[id] {
			continue
		}
		seen[id] = true

		var merged []Transaction
		for _, key := range keys {
			merged = append(merged, byKey[key]...)
		}
		sort.SliceStable(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })

		g := &merchantGroup{key: c.name, txs: merged}
		match, ok := opts.Classify(g.dates(), g.amounts())
		if !ok || match.Confidence != ConfidenceHigh {
			continue
		}
		suggestions = append(suggestions, GroupSuggestion{
			Name:         c.name,
			Pattern:      generatePattern(c.name),
			Keys:         keys,
			Frequency:    match.Frequency,
			Transactions: merged,
		})
	}

	// Deduplicate: if two suggestions cover the same keys, prefer shorter/cleaner names
	suggestions = deduplicateSuggestions(suggestions)

	sort.SliceStable(suggestions, func(i, j int) bool {
		if len(suggestions[i].Transactions) != len(suggestions[j].Transactions) {
			return len(suggestions[i].Transactions) > len(suggestions[j].Transactions)
		}
		return suggestions[i].Name < suggestions[j].Name
	})
	return suggestions
}

type keyCluster struct {
	name string
	keys []string
}

// prefixClusters groups keys by their first word and first two words
func prefixClusters(keys []string) []keyCluster {
	byPrefix := make(map[string][]string)
	for _, key := range keys {
		words := strings.Fields(key)
		if len(words) == 0 {
			continue
		}
		if len(words[0]) >= 3 {
			byPrefix[words[0]] = append(byPrefix[words[0]], key)
		}
		if len(words) > 1 {
			two := words[0] + " " + words[1]
			byPrefix[two] = append(byPrefix[two], key)
		}
	}

	prefixes := make([]string, 0, len(byPrefix))
	for p := range byPrefix {
		prefixes = append(prefixes, p)
	}
	// Shorter prefixes first so they win deduplication
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) < len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})

	clusters := make([]keyCluster, 0, len(prefixes))
	for _, p := range prefixes {
		clusters = append(clusters, keyCluster{name: p, keys: byPrefix[p]})
	}
	return clusters
}

// similarityClusters links keys within a small edit distance of each other
func similarityClusters(keys []string) []keyCluster {
	parent := make([]int, len(keys))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for i := range keys {
		for j := i + 1; j < len(keys); j++ {
			if similarKeys(keys[i], keys[j]) {
				parent[find(j)] = find(i)
			}
		}
	}

	members := make(map[int][]string)
	var roots []int
	for i, key := range keys {
		r := find(i)
		if _, ok := members[r]; !ok {
			roots = append(roots, r)
		}
		members[r] = append(members[r], key)
	}

	var clusters []keyCluster
	for _, r := range roots {
		if len(members[r]) < 2 {
			continue
		}
		clusters = append(clusters, keyCluster{name: commonPrefix(members[r]), keys: members[r]})
	}
	return clusters
}

// similarKeys allows roughly one edit per five characters of the shorter key
func similarKeys(a, b string) bool {
	limit := max(min(len(a), len(b))/5, 1)
	return levenshtein.ComputeDistance(a, b) <= limit
}

// commonPrefix returns the shared leading words of keys, or the shortest key
func commonPrefix(keys []string) string {
	shortest := keys[0]
	for _, k := range keys[1:] {
		if len(k) < len(shortest) {
			shortest = k
		}
	}
	words := strings.Fields(shortest)
	for n := len(words); n > 0; n-- {
		prefix := strings.Join(words[:n], " ")
		all := true
		for _, k := range keys {
			if k != prefix && !strings.HasPrefix(k, prefix+" ") {
				all = false
				break
			}
		}
		if all {
			return prefix
		}
	}
	return shortest
}

// generatePattern creates a case-insensitive regex matching the words of
// name in raw descriptions, whatever separators the bank used between them
func generatePattern(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, `[^\p{L}\p{N}]+`)
}

// deduplicateSuggestions removes redundant suggestions that cover the same keys,
// preferring shorter/cleaner names
func deduplicateSuggestions(suggestions []GroupSuggestion) []GroupSuggestion {
	if len(suggestions) <= 1 {
		return suggestions
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return len(suggestions[i].Name) < len(suggestions[j].Name)
	})

	var result []GroupSuggestion
	covered := make(map[string]bool)
	for _, s := range suggestions {
		fresh := 0
		for _, key := range s.Keys {
			if !covered[key] {
				fresh++
			}
		}
		// Only keep if it adds significant new coverage (>50% new keys)
		if float64(fresh)/float64(len(s.Keys)) > 0.5 {
			result = append(result, s)
			for _, key := range s.Keys {
				covered[key] = true
			}
		}
	}
	return result
}

// uniqueStrings returns unique strings from a slice
func uniqueStrings(strs []string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, s := range strs {
		if !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	return result
}

// PrintGroupSuggestions displays suggested groups as ready-to-paste config
func PrintGroupSuggestions(w io.Writer, suggestions []GroupSuggestion) {
	if len(suggestions) == 0 {
		fmt.Fprintln(w, "No group suggestions found.")
		return
	}

	fmt.Fprintf(w, "Found %d potential group(s):\n\n", len(suggestions))

	for _, s := range suggestions {
		fmt.Fprintf(w, "  \"%s\" (%s, %d transactions)\n", s.Name, s.Frequency, len(s.Transactions))
		fmt.Fprintf(w, "    Keys: %s\n", strings.Join(truncateStrings(s.Keys, 3), ", "))
		if len(s.Keys) > 3 {
			fmt.Fprintf(w, "          ... and %d more\n", len(s.Keys)-3)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "    Add to config:")
		fmt.Fprintf(w, "      - name: \"%s\"\n", s.Name)
		fmt.Fprintln(w, "        patterns:")
		fmt.Fprintf(w, "          - '%s'\n", s.Pattern)
		fmt.Fprintln(w)
	}
}

// truncateStrings returns at most n strings from the slice
func truncateStrings(strs []string, n int) []string {
	if len(strs) <= n {
		return strs
	}
	return strs[:n]
}
