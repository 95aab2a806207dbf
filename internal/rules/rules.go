// Package rules suggests business categories for parsed transactions from
// a YAML keyword rules file. Suggestions only pre-fill the optional category
// field surfaced in preview; categorization proper stays explicit.
package rules

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arthaledger/bankfeed/internal/domain"
	"github.com/arthaledger/bankfeed/internal/parser"
)

// MatchType defines how a pattern is compared to a description.
type MatchType string

const (
	// MatchContains requires the pattern to appear in the description.
	MatchContains MatchType = "contains"
	// MatchExact requires the pattern to equal the whole description.
	MatchExact MatchType = "exact"
)

// Rule maps a description pattern to a suggested category. Matching is
// case-insensitive. Higher priority wins; ties keep file order.
type Rule struct {
	Pattern  string          `yaml:"pattern"`
	Match    MatchType       `yaml:"match"`
	Category domain.Category `yaml:"category"`
	Priority int             `yaml:"priority"`
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// Engine applies rules in priority order.
type Engine struct {
	rules []Rule
}

// NewEngine validates and orders a rule set.
func NewEngine(rules []Rule) (*Engine, error) {
	for i, r := range rules {
		if strings.TrimSpace(r.Pattern) == "" {
			return nil, fmt.Errorf("rule %d: pattern cannot be empty", i)
		}
		switch r.Match {
		case MatchContains, MatchExact:
		case "":
			rules[i].Match = MatchContains
		default:
			return nil, fmt.Errorf("rule %d: invalid match type %q", i, r.Match)
		}
		if !domain.ValidateCategory(r.Category) {
			return nil, fmt.Errorf("rule %d: unknown category %q", i, r.Category)
		}
	}

	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	return &Engine{rules: ordered}, nil
}

// LoadFile reads a YAML rules file.
func LoadFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	return NewEngine(file.Rules)
}

// Suggest returns the category of the first matching rule, or ok=false.
func (e *Engine) Suggest(description string) (domain.Category, bool) {
	desc := strings.ToLower(strings.TrimSpace(description))
	for _, r := range e.rules {
		pattern := strings.ToLower(strings.TrimSpace(r.Pattern))
		switch r.Match {
		case MatchExact:
			if desc == pattern {
				return r.Category, true
			}
		default:
			if strings.Contains(desc, pattern) {
				return r.Category, true
			}
		}
	}
	return "", false
}

// Annotate fills the suggested category on every row that doesn't already
// carry one.
func (e *Engine) Annotate(rows []parser.Row) {
	if e == nil {
		return
	}
	for i := range rows {
		if rows[i].Category != "" {
			continue
		}
		if category, ok := e.Suggest(rows[i].Description); ok {
			rows[i].Category = category
		}
	}
}
