package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ExcludeRule keeps a merchant out of detection, optionally only within a time window.
type ExcludeRule struct {
	Pattern string `yaml:"pattern"`
	Before  string `yaml:"before,omitempty"` // Exclude only subscriptions last seen before this date (YYYY-MM-DD)
	After   string `yaml:"after,omitempty"`  // Exclude only subscriptions started on or after this date

	// compiled fields
	regex      *regexp.Regexp `yaml:"-"`
	beforeDate time.Time      `yaml:"-"`
	afterDate  time.Time      `yaml:"-"`
}

// Group maps several raw descriptions onto one merchant key
type Group struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

// CategoryRule assigns a category to merchant keys matching any pattern
type CategoryRule struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

// DetectionConfig tunes the classifier and the low-confidence policy
type DetectionConfig struct {
	AmountTolerance         *float64 `yaml:"amount_tolerance,omitempty"` // 0.05 = 5%
	AmountEpsilon           *float64 `yaml:"amount_epsilon,omitempty"`   // absolute, in currency units
	AutoCreateLowConfidence *bool    `yaml:"auto_create_low_confidence,omitempty"`
}

// DefaultCategories buckets well-known subscription services.
// These are automatically included unless disabled via use_default_categories: false
var DefaultCategories = []CategoryRule{
	{Name: "Streaming", Patterns: []string{
		"netflix", `disney\s*(\+|plus)?`, `hbo\s*max`, "hulu", `prime\s*video`, `amazon\s*prime`,
		`apple\s*tv`, "paramount", "peacock", "crunchyroll", "viaplay", "youtube",
		"spotify", `apple\s*music`, "tidal", "deezer", "soundcloud", "audible",
	}},
	{Name: "Gaming", Patterns: []string{
		"xbox", "playstation", `ps\s*plus`, "nintendo", `ea\s*play`, `geforce\s*now`,
	}},
	{Name: "Productivity", Patterns: []string{
		"microsoft", `office\s*365`, "adobe", "dropbox", `google\s*(one|workspace|gsuite)`, "icloud",
		"onedrive", "notion", "evernote", "canva", "slack", "zoom", "1password", "lastpass",
		"bitwarden", "github", "gitlab", "jetbrains",
	}},
	{Name: "Security", Patterns: []string{
		"nordvpn", "expressvpn", "surfshark", "mullvad", "protonvpn", `proton\s*(mail|drive)`,
	}},
	{Name: "News", Patterns: []string{
		"nytimes", `new\s*york\s*times`, `washington\s*post`, `wall\s*street\s*journal`, "wsj",
		"medium", "substack", `kindle\s*unlimited`, "journal", "news",
	}},
	{Name: "Fitness", Patterns: []string{
		"gym", "peloton", "fitness", "yoga", "strava", "headspace", "calm", "myfitnesspal",
	}},
}

type Config struct {
	// Prefixes are extra payment-processor prefixes stripped during normalization
	Prefixes []string `yaml:"prefixes,omitempty"`

	// Groups allows combining multiple transaction descriptions into one merchant
	Groups []Group `yaml:"groups,omitempty"`

	// Exclude is a list of exclusion rules (can be strings or objects with time bounds)
	Exclude []yaml.Node `yaml:"exclude,omitempty"`

	// UseDefaultCategories controls whether the built-in category rules apply.
	// Defaults to true.
	UseDefaultCategories *bool `yaml:"use_default_categories,omitempty"`

	// Categories are matched before the defaults
	Categories []CategoryRule `yaml:"categories,omitempty"`

	// CategoryOverrides pins a merchant key to a category
	CategoryOverrides map[string]string `yaml:"category_overrides,omitempty"`

	Detection DetectionConfig `yaml:"detection,omitempty"`

	// compiled (not serialized)
	excludeRules []ExcludeRule   `yaml:"-"`
	groups       []MerchantGroup `yaml:"-"`
}

// DefaultConfigPath returns the default rules file path (~/.subsmart/config.yaml)
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".subsmart", "config.yaml")
}

// NewDefaultConfig returns the config used when no file exists.
func NewDefaultConfig() *Config {
	return &Config{}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and compiles a YAML rules document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Compile group patterns
	for _, g := range cfg.Groups {
		if strings.TrimSpace(g.Name) == "" {
			return nil, fmt.Errorf("group without name")
		}
		mg := MerchantGroup{Key: strings.Join(strings.Fields(strings.ToLower(g.Name)), " ")}
		for _, pattern := range g.Patterns {
			re, err := regexp.Compile("(?i)" + pattern) // case-insensitive
			if err != nil {
				return nil, fmt.Errorf("invalid group pattern %q: %w", pattern, err)
			}
			mg.Patterns = append(mg.Patterns, re)
		}
		cfg.groups = append(cfg.groups, mg)
	}

	// Parse exclude rules (supports both strings and objects)
	for _, node := range cfg.Exclude {
		var rule ExcludeRule

		switch node.Kind {
		case yaml.ScalarNode:
			rule.Pattern = node.Value
		case yaml.MappingNode:
			if err := node.Decode(&rule); err != nil {
				return nil, fmt.Errorf("parsing exclude rule: %w", err)
			}
		default:
			return nil, fmt.Errorf("invalid exclude rule format")
		}

		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", rule.Pattern, err)
		}
		rule.regex = re

		if rule.Before != "" {
			t, err := ParseDate(rule.Before)
			if err != nil {
				return nil, fmt.Errorf("invalid 'before' date in exclude rule: %w", err)
			}
			rule.beforeDate = t
		}
		if rule.After != "" {
			t, err := ParseDate(rule.After)
			if err != nil {
				return nil, fmt.Errorf("invalid 'after' date in exclude rule: %w", err)
			}
			rule.afterDate = t
		}

		cfg.excludeRules = append(cfg.excludeRules, rule)
	}

	if d := cfg.Detection; d.AmountTolerance != nil && *d.AmountTolerance < 0 {
		return nil, fmt.Errorf("amount_tolerance must not be negative")
	}
	if d := cfg.Detection; d.AmountEpsilon != nil && *d.AmountEpsilon < 0 {
		return nil, fmt.Errorf("amount_epsilon must not be negative")
	}

	return &cfg, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// ShouldExclude reports whether sub matches an exclude rule, honouring the
// rule's time bounds against the subscription's date range.
func (c *Config) ShouldExclude(sub Subscription) bool {
	if c == nil {
		return false
	}
	for _, rule := range c.excludeRules {
		if !rule.regex.MatchString(sub.MerchantKey) && !rule.regex.MatchString(sub.MerchantName) {
			continue
		}
		// before: only subscriptions that ended before the date
		if !rule.beforeDate.IsZero() && !sub.LastSeenDate.Before(rule.beforeDate) {
			continue
		}
		// after: only subscriptions that started on or after the date
		if !rule.afterDate.IsZero() && sub.StartDate.Before(rule.afterDate) {
			continue
		}
		return true
	}
	return false
}

// Normalizer builds the merchant-key normalizer these rules describe.
func (c *Config) Normalizer() *Normalizer {
	if c == nil {
		return defaultNormalizer
	}
	return NewNormalizer(c.Prefixes, c.groups)
}

// ClassifierOptions returns the default options with configured overrides.
func (c *Config) ClassifierOptions() ClassifierOptions {
	opts := DefaultClassifierOptions()
	if c == nil {
		return opts
	}
	if t := c.Detection.AmountTolerance; t != nil {
		opts.AmountTolerance = decimal.NewFromFloat(*t)
	}
	if e := c.Detection.AmountEpsilon; e != nil {
		opts.AmountEpsilon = decimal.NewFromFloat(*e)
	}
	return opts
}

// Policy returns the detection policy; low-confidence matches are created unless disabled.
func (c *Config) Policy() Policy {
	p := Policy{AutoCreateLowConfidence: true}
	if c != nil && c.Detection.AutoCreateLowConfidence != nil {
		p.AutoCreateLowConfidence = *c.Detection.AutoCreateLowConfidence
	}
	return p
}

// CategoryRules returns user rules followed by the defaults (unless disabled).
func (c *Config) CategoryRules() []CategoryRule {
	if c == nil {
		return DefaultCategories
	}
	rules := append([]CategoryRule{}, c.Categories...)
	if c.UseDefaultCategories == nil || *c.UseDefaultCategories {
		rules = append(rules, DefaultCategories...)
	}
	return rules
}

// EngineConfig wires these rules into a detection engine config.
func (c *Config) EngineConfig() EngineConfig {
	classifier := c.ClassifierOptions()
	policy := c.Policy()
	return EngineConfig{
		Normalizer: c.Normalizer(),
		Classifier: &classifier,
		Policy:     &policy,
		Exclude:    c.ShouldExclude,
	}
}

// GenerateConfigTemplate creates a config with an override slot per detected merchant
func GenerateConfigTemplate(subscriptions []Subscription, categorizer Categorizer) *Config {
	cfg := &Config{
		CategoryOverrides: make(map[string]string),
	}

	for _, sub := range subscriptions {
		category := ""
		if categorizer != nil {
			category = categorizer.Category(sub.MerchantKey)
		}
		cfg.CategoryOverrides[sub.MerchantKey] = category
	}

	return cfg
}
