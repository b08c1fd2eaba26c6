package internal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dgraph-io/ristretto"
)

// UncategorizedName is the category of merchants no rule matches.
const UncategorizedName = "Other"

// Categorizer assigns a spending category to a merchant key.
type Categorizer interface {
	Category(merchantKey string) string
}

type compiledCategory struct {
	name     string
	patterns []*regexp.Regexp
}

// RuleCategorizer matches merchant keys against ordered category rules. The
// first matching rule wins; explicit overrides beat every rule. Lookups are
// memoised since insights ask for the same handful of keys on every request.
type RuleCategorizer struct {
	overrides map[string]string
	rules     []compiledCategory
	cache     *ristretto.Cache
}

// NewRuleCategorizer compiles rules (case-insensitive) and sets up the lookup cache.
func NewRuleCategorizer(rules []CategoryRule, overrides map[string]string) (*RuleCategorizer, error) {
	c := &RuleCategorizer{overrides: make(map[string]string, len(overrides))}
	for key, category := range overrides {
		if category = strings.TrimSpace(category); category != "" {
			c.overrides[Normalize(key)] = category
		}
	}
	for _, rule := range rules {
		if strings.TrimSpace(rule.Name) == "" {
			return nil, fmt.Errorf("category rule without name")
		}
		cc := compiledCategory{name: rule.Name}
		for _, pattern := range rule.Patterns {
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid category pattern %q: %w", pattern, err)
			}
			cc.patterns = append(cc.patterns, re)
		}
		c.rules = append(c.rules, cc)
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating category cache: %w", err)
	}
	c.cache = cache
	return c, nil
}

// NewCategorizer builds the categorizer described by cfg (defaults when nil).
func NewCategorizer(cfg *Config) (*RuleCategorizer, error) {
	var overrides map[string]string
	if cfg != nil {
		overrides = cfg.CategoryOverrides
	}
	return NewRuleCategorizer(cfg.CategoryRules(), overrides)
}

func (c *RuleCategorizer) Category(merchantKey string) string {
	if v, ok := c.cache.Get(merchantKey); ok {
		return v.(string)
	}
	category := c.lookup(merchantKey)
	c.cache.Set(merchantKey, category, 1)
	return category
}

func (c *RuleCategorizer) lookup(merchantKey string) string {
	if category, ok := c.overrides[merchantKey]; ok {
		return category
	}
	for _, rule := range c.rules {
		for _, re := range rule.patterns {
			if re.MatchString(merchantKey) {
				return rule.name
			}
		}
	}
	return UncategorizedName
}

// Close releases the cache's background goroutines.
func (c *RuleCategorizer) Close() {
	c.cache.Close()
}
