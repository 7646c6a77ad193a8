package guard

import (
	"strings"
	"testing"
)

func TestGuard_CheckCategory(t *testing.T) {
	g := New(Policy{
		AllowedCategories: []string{"project/**", "working_context", "code_*"},
		DeniedCategories:  []string{"project/secrets/**"},
	})

	t.Run("Allowed", func(t *testing.T) {
		for _, c := range []string{"project/api", "project/api/v2", "working_context", "code_patterns"} {
			if v := g.CheckCategory(c); v != nil {
				t.Errorf("Unexpected violation for %q: %v", c, v.Message)
			}
		}
	})

	t.Run("Blocked", func(t *testing.T) {
		if v := g.CheckCategory("troubleshooting"); v == nil || v.Rule != "allowed_categories" {
			t.Errorf("Expected allowed_categories violation, got %v", v)
		}
		if v := g.CheckCategory("project/secrets/keys"); v == nil || v.Rule != "denied_categories" {
			t.Errorf("Expected denied_categories violation, got %v", v)
		}
	})

	t.Run("EmptyAllowList", func(t *testing.T) {
		open := New(Policy{})
		if v := open.CheckCategory("anything/at/all"); v != nil {
			t.Errorf("Unexpected violation: %v", v.Message)
		}
	})
}

func TestGuard_CheckQuery(t *testing.T) {
	g := New(Policy{MaxQueryLength: 10})

	if v := g.CheckQuery("short"); v != nil {
		t.Errorf("Unexpected violation: %v", v.Message)
	}
	if v := g.CheckQuery("   "); v == nil || v.Rule != "empty_query" {
		t.Errorf("Expected empty_query violation, got %v", v)
	}
	if v := g.CheckQuery(strings.Repeat("x", 11)); v == nil || v.Rule != "max_query_length" {
		t.Errorf("Expected max_query_length violation, got %v", v)
	}
	// Length counts runes, not bytes.
	if v := g.CheckQuery(strings.Repeat("é", 10)); v != nil {
		t.Errorf("Unexpected violation: %v", v.Message)
	}
}

func TestGuard_CheckContent(t *testing.T) {
	g := New(Policy{MaxContentLength: 3})
	if v := g.CheckContent("abc"); v != nil {
		t.Errorf("Unexpected violation: %v", v.Message)
	}
	if v := g.CheckContent("abcd"); v == nil {
		t.Error("Expected violation for long content")
	}
	if v := New(Policy{}).CheckContent(strings.Repeat("x", 1<<16)); v != nil {
		t.Errorf("Unexpected violation with no limit: %v", v.Message)
	}
}

func TestGuard_CheckBudget(t *testing.T) {
	g := New(Policy{MaxInteractions: 5})

	if v := g.CheckBudget(4); v != nil {
		t.Errorf("Unexpected violation: %v", v.Message)
	}
	v := g.CheckBudget(5)
	if v == nil {
		t.Fatal("Expected violation at the limit")
	}
	if !v.Fatal {
		t.Error("Expected budget violation to be fatal")
	}
	if v.Error() != "max_interactions: Interaction limit reached" {
		t.Errorf("Unexpected error text %q", v.Error())
	}
	if v := New(DefaultPolicy).CheckBudget(1 << 20); v != nil {
		t.Errorf("Unexpected violation with unlimited budget: %v", v.Message)
	}
}

func TestPolicy_ValidatePatterns(t *testing.T) {
	if err := DefaultPolicy.ValidatePatterns(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	bad := Policy{AllowedCategories: []string{"[unclosed"}}
	if err := bad.ValidatePatterns(); err == nil {
		t.Error("Expected error for malformed pattern")
	}
}
