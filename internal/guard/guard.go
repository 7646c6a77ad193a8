package guard

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy defines what callers may write into and ask of memory.
type Policy struct {
	MaxQueryLength    int      `mapstructure:"max_query_length" yaml:"max_query_length" json:"max_query_length"`
	MaxContentLength  int      `mapstructure:"max_content_length" yaml:"max_content_length" json:"max_content_length"`
	MaxInteractions   int      `mapstructure:"max_interactions" yaml:"max_interactions" json:"max_interactions"`
	AllowedCategories []string `mapstructure:"allowed_categories" yaml:"allowed_categories" json:"allowed_categories"`
	DeniedCategories  []string `mapstructure:"denied_categories" yaml:"denied_categories" json:"denied_categories"`
}

// DefaultPolicy provides safe defaults.
var DefaultPolicy = Policy{
	MaxQueryLength:    4000,
	MaxContentLength:  64000,
	MaxInteractions:   0,
	AllowedCategories: []string{"**"},
}

// Violation represents a specific breach of policy.
type Violation struct {
	Rule    string
	Message string
	Fatal   bool
}

func (v *Violation) Error() string {
	return v.Rule + ": " + v.Message
}

// Guard enforces the policy.
type Guard struct {
	policy Policy
}

func New(p Policy) *Guard {
	return &Guard{policy: p}
}

// Policy returns the guard's current policy configuration.
func (g *Guard) Policy() Policy {
	return g.policy
}

// CheckQuery verifies a query is non-empty and within the length limit.
func (g *Guard) CheckQuery(query string) *Violation {
	if strings.TrimSpace(query) == "" {
		return &Violation{Rule: "empty_query", Message: "Query is empty"}
	}
	if n := utf8.RuneCountInString(query); g.policy.MaxQueryLength > 0 && n > g.policy.MaxQueryLength {
		return &Violation{
			Rule:    "max_query_length",
			Message: fmt.Sprintf("Query length %d exceeds %d", n, g.policy.MaxQueryLength),
		}
	}
	return nil
}

// CheckContent verifies stored content is within the length limit.
func (g *Guard) CheckContent(content string) *Violation {
	if n := utf8.RuneCountInString(content); g.policy.MaxContentLength > 0 && n > g.policy.MaxContentLength {
		return &Violation{
			Rule:    "max_content_length",
			Message: fmt.Sprintf("Content length %d exceeds %d", n, g.policy.MaxContentLength),
		}
	}
	return nil
}

// CheckCategory verifies a knowledge category may be written. Deny globs win
// over allow globs; an empty allow list allows everything.
func (g *Guard) CheckCategory(category string) *Violation {
	for _, pattern := range g.policy.DeniedCategories {
		match, err := doublestar.Match(pattern, category)
		if err == nil && match {
			return &Violation{Rule: "denied_categories", Message: "Category is protected: " + category, Fatal: true}
		}
	}
	if len(g.policy.AllowedCategories) == 0 {
		return nil
	}

	allowed := false
	for _, pattern := range g.policy.AllowedCategories {
		match, err := doublestar.Match(pattern, category)
		if err == nil && match {
			allowed = true
			break
		}
	}

	if !allowed {
		return &Violation{Rule: "allowed_categories", Message: "Category not allowed: " + category, Fatal: true}
	}
	return nil
}

// CheckBudget verifies the interaction count is within limits. A zero limit
// is unlimited.
func (g *Guard) CheckBudget(interactions int) *Violation {
	if g.policy.MaxInteractions > 0 && interactions >= g.policy.MaxInteractions {
		return &Violation{Rule: "max_interactions", Message: "Interaction limit reached", Fatal: true}
	}
	return nil
}

// ValidatePatterns reports the first malformed glob in the policy.
func (p Policy) ValidatePatterns() error {
	for _, list := range [][]string{p.AllowedCategories, p.DeniedCategories} {
		for _, pattern := range list {
			if !doublestar.ValidatePattern(pattern) {
				return fmt.Errorf("invalid category pattern %q", pattern)
			}
		}
	}
	return nil
}
