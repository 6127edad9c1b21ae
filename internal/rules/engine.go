// Package rules provides a YAML-based rules engine for transaction categorization.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/commons.systems/cardledger/internal/domain"
	"github.com/rumor-ml/commons.systems/cardledger/internal/transform"
)

//go:embed rules.yaml
var embeddedRules []byte

// MatchType defines how patterns are matched against transaction descriptions
type MatchType string

const (
	// MatchTypeExact requires the pattern to match the entire description exactly
	MatchTypeExact MatchType = "exact"
	// MatchTypeContains requires the pattern to be a substring of the description
	MatchTypeContains MatchType = "contains"
	// MatchTypePrefix requires the description to start with the pattern
	MatchTypePrefix MatchType = "prefix"
)

// Rule represents a single categorization rule.
//
// Rules should be created via NewEngine (YAML) or NewRule. Both check that
// the priority is in [0, 999], the pattern is not blank, the match type is
// known and the category is one of the suggested categories.
type Rule struct {
	Name      string    `yaml:"name"`
	Pattern   string    `yaml:"pattern"`
	MatchType MatchType `yaml:"match_type"`
	Priority  int       `yaml:"priority"`
	Category  string    `yaml:"category"`
}

// NewRule creates a validated rule
func NewRule(name, pattern string, matchType MatchType, priority int, category string) (*Rule, error) {
	r := Rule{
		Name:      name,
		Pattern:   pattern,
		MatchType: matchType,
		Priority:  priority,
		Category:  category,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r Rule) validate() error {
	if !domain.ValidateCategory(domain.Category(r.Category)) {
		return fmt.Errorf("invalid category %q", r.Category)
	}
	if r.Priority < 0 || r.Priority > 999 {
		return fmt.Errorf("priority must be in [0,999], got %d", r.Priority)
	}
	switch r.MatchType {
	case MatchTypeExact, MatchTypeContains, MatchTypePrefix:
	default:
		return fmt.Errorf("invalid match_type %q (must be 'exact', 'contains' or 'prefix')", r.MatchType)
	}
	if strings.TrimSpace(r.Pattern) == "" {
		return fmt.Errorf("pattern cannot be empty")
	}
	return nil
}

// RuleSet represents the top-level YAML structure
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// Engine performs rule matching on transaction descriptions
type Engine struct {
	rules    []Rule   // Sorted by priority (highest first)
	patterns []string // folded patterns, parallel to rules
}

// MatchResult contains the result of applying a rule
type MatchResult struct {
	Category domain.Category
	RuleName string // For debugging
}

// NewEngine creates a rules engine from YAML data
func NewEngine(rulesData []byte) (*Engine, error) {
	var ruleSet RuleSet
	if err := yaml.Unmarshal(rulesData, &ruleSet); err != nil {
		return nil, fmt.Errorf("failed to parse YAML rules (check syntax, indentation, and field names): %w", err)
	}

	for i, rule := range ruleSet.Rules {
		if err := rule.validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Name, err)
		}
	}

	// Sort rules by priority (highest first). SliceStable keeps file order
	// for equal priorities so matching stays deterministic.
	sortedRules := make([]Rule, len(ruleSet.Rules))
	copy(sortedRules, ruleSet.Rules)
	sort.SliceStable(sortedRules, func(i, j int) bool {
		return sortedRules[i].Priority > sortedRules[j].Priority
	})

	patterns := make([]string, len(sortedRules))
	for i, r := range sortedRules {
		patterns[i] = transform.Fold(r.Pattern)
	}

	return &Engine{
		rules:    sortedRules,
		patterns: patterns,
	}, nil
}

// LoadEmbedded loads the embedded rules.yaml file
func LoadEmbedded() (*Engine, error) {
	engine, err := NewEngine(embeddedRules)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded rules (possible binary corruption): %w", err)
	}
	return engine, nil
}

// LoadFromFile loads rules from a filesystem path
func LoadFromFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	engine, err := NewEngine(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %q: %w", path, err)
	}
	return engine, nil
}

// Match applies rules to a transaction description and returns the first match.
// Descriptions and patterns are compared case- and accent-insensitively.
// Returns (nil, false) if no rules match.
func (e *Engine) Match(description string) (*MatchResult, bool) {
	desc := transform.Fold(description)
	if desc == "" {
		return nil, false
	}

	for i, rule := range e.rules {
		pattern := e.patterns[i]

		matched := false
		switch rule.MatchType {
		case MatchTypeExact:
			matched = desc == pattern
		case MatchTypeContains:
			matched = strings.Contains(desc, pattern)
		case MatchTypePrefix:
			matched = strings.HasPrefix(desc, pattern)
		}

		if matched {
			return &MatchResult{
				Category: domain.Category(rule.Category),
				RuleName: rule.Name,
			}, true
		}
	}

	return nil, false
}

// Categorize returns the category of the first matching rule, or fallback.
// A nil engine always returns fallback.
func (e *Engine) Categorize(description string, fallback domain.Category) domain.Category {
	if e == nil {
		return fallback
	}
	if m, ok := e.Match(description); ok {
		return m.Category
	}
	return fallback
}

// GetRules returns a copy of the rules in priority order (highest first)
func (e *Engine) GetRules() []Rule {
	result := make([]Rule, len(e.rules))
	copy(result, e.rules)
	return result
}
