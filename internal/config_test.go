package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
prefixes:
  - klarna
groups:
  - name: "Google  Cloud"
    patterns:
      - 'google\s*cloud'
      - '^gcp\b'
exclude:
  - "employer lunch"
  - pattern: netflix
    before: "2025-01-01"
use_default_categories: false
categories:
  - name: Transport
    patterns: ["sl access", "voi"]
category_overrides:
  "POS Hulu": Streaming
detection:
  amount_tolerance: 0.1
  amount_epsilon: 1
  auto_create_low_confidence: false
`))
	require.NoError(t, err)

	n := cfg.Normalizer()
	assert.Equal(t, "google cloud", n.Normalize("Google Cloud EMEA"))
	assert.Equal(t, "google cloud", n.Normalize("GCP billing"))
	assert.Equal(t, "zalando", n.Normalize("Klarna Zalando"))

	opts := cfg.ClassifierOptions()
	assert.True(t, opts.AmountTolerance.Equal(dec("0.1")))
	assert.True(t, opts.AmountEpsilon.Equal(dec("1")))
	assert.False(t, cfg.Policy().AutoCreateLowConfidence)

	rules := cfg.CategoryRules()
	require.Len(t, rules, 1)
	assert.Equal(t, "Transport", rules[0].Name)
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "groups: [\n"},
		{"group without name", "groups:\n  - patterns: [x]\n"},
		{"bad group pattern", "groups:\n  - name: x\n    patterns: ['(']\n"},
		{"bad exclude pattern", "exclude:\n  - '['\n"},
		{"bad exclude date", "exclude:\n  - pattern: x\n    before: tomorrow\n"},
		{"exclude list", "exclude:\n  - [a, b]\n"},
		{"negative tolerance", "detection:\n  amount_tolerance: -0.1\n"},
		{"negative epsilon", "detection:\n  amount_epsilon: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestConfig_ShouldExclude(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
exclude:
  - employer
  - pattern: netflix
    before: "2025-01-01"
  - pattern: spotify
    after: "2025-03-01"
`))
	require.NoError(t, err)

	sub := func(key, start, lastSeen string) Subscription {
		return Subscription{MerchantKey: key, MerchantName: key, StartDate: date(start), LastSeenDate: date(lastSeen)}
	}

	tests := []struct {
		name string
		sub  Subscription
		want bool
	}{
		{"plain pattern", sub("employer canteen", "2024-01-01", "2025-06-01"), true},
		{"name matches", Subscription{MerchantKey: "canteen", MerchantName: "EMPLOYER Canteen"}, true},
		{"ended before bound", sub("netflix", "2024-01-01", "2024-12-15"), true},
		{"still running past bound", sub("netflix", "2024-01-01", "2025-02-15"), false},
		{"started after bound", sub("spotify", "2025-03-01", "2025-06-01"), true},
		{"started before bound", sub("spotify", "2025-02-01", "2025-06-01"), false},
		{"no rule", sub("hulu", "2024-01-01", "2025-06-01"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.ShouldExclude(tt.sub))
		})
	}

	var nilCfg *Config
	assert.False(t, nilCfg.ShouldExclude(sub("employer", "2024-01-01", "2025-01-01")))
}

func TestConfig_NilDefaults(t *testing.T) {
	var cfg *Config
	assert.Equal(t, "netflix", cfg.Normalizer().Normalize("POS Netflix"))
	assert.Equal(t, DefaultClassifierOptions(), cfg.ClassifierOptions())
	assert.True(t, cfg.Policy().AutoCreateLowConfidence)
	assert.Equal(t, DefaultCategories, cfg.CategoryRules())

	ec := cfg.EngineConfig()
	require.NotNil(t, ec.Policy)
	assert.True(t, ec.Policy.AutoCreateLowConfidence)
	assert.False(t, ec.Exclude(Subscription{MerchantKey: "netflix"}))
}

func TestConfig_UserCategoriesBeforeDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("categories:\n  - name: Music\n    patterns: [spotify]\n"))
	require.NoError(t, err)

	rules := cfg.CategoryRules()
	require.Len(t, rules, len(DefaultCategories)+1)
	assert.Equal(t, "Music", rules[0].Name)
}

func TestConfig_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	subs := []Subscription{{MerchantKey: "netflix"}, {MerchantKey: "corner gym"}}

	categorizer, err := NewCategorizer(nil)
	require.NoError(t, err)
	defer categorizer.Close()

	require.NoError(t, GenerateConfigTemplate(subs, categorizer).Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"netflix": "Streaming", "corner gym": "Fitness"}, loaded.CategoryOverrides)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
