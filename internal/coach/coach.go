// Package coach loads and validates seed files that pre-populate memory.
package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/recall/internal/guard"
	"github.com/felixgeelhaar/recall/internal/memory"
)

// Seed is the declarative content of a seed file.
type Seed struct {
	Context       map[string]any  `json:"context" yaml:"context"`
	Working       []WorkingSeed   `json:"working_context" yaml:"working_context"`
	Knowledge     []KnowledgeSeed `json:"knowledge" yaml:"knowledge"`
	Relationships []LinkSeed      `json:"relationships" yaml:"relationships"`
}

// WorkingSeed is a working-context item.
type WorkingSeed struct {
	Topic      string `json:"topic" yaml:"topic"`
	Details    string `json:"details" yaml:"details"`
	Importance int    `json:"importance" yaml:"importance"`
}

// KnowledgeSeed is a knowledge node.
type KnowledgeSeed struct {
	Category   string          `json:"category" yaml:"category"`
	Topic      string          `json:"topic" yaml:"topic"`
	Content    string          `json:"content" yaml:"content"`
	Confidence *float64        `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Source     string          `json:"source,omitempty" yaml:"source,omitempty"`
	Metadata   memory.Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NodeKey names a node by its natural key.
type NodeKey struct {
	Category string `json:"category" yaml:"category"`
	Topic    string `json:"topic" yaml:"topic"`
}

func (k NodeKey) String() string { return k.Category + "/" + k.Topic }

// LinkSeed is a relationship between two nodes named by category and topic.
type LinkSeed struct {
	From     NodeKey         `json:"from" yaml:"from"`
	To       NodeKey         `json:"to" yaml:"to"`
	Type     string          `json:"type" yaml:"type"`
	Strength *float64        `json:"strength,omitempty" yaml:"strength,omitempty"`
	Metadata memory.Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ValidationResult represents the outcome of a linting pass.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

// ApplyReport counts what a seed wrote.
type ApplyReport struct {
	Context       int      `json:"context"`
	Working       int      `json:"working_context"`
	Knowledge     int      `json:"knowledge"`
	Relationships int      `json:"relationships"`
	Skipped       []string `json:"skipped,omitempty"`
}

// Coach validates seeds and applies them through the memory stores.
type Coach struct {
	guard *guard.Guard
}

// New creates a coach. A nil guard skips category checks.
func New(g *guard.Guard) *Coach {
	return &Coach{guard: g}
}

// LoadSeed reads a seed from a file (JSON or YAML).
func (c *Coach) LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed Seed
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &seed); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON seed: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML seed: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported seed format: %s (use .json or .yaml)", ext)
	}

	return &seed, nil
}

// Validate checks the seed for completeness. Errors block Apply; warnings
// describe values that will be adjusted or may not resolve.
func (c *Coach) Validate(seed Seed) ValidationResult {
	res := ValidationResult{
		Valid:    true,
		Warnings: []string{},
		Errors:   []string{},
	}
	fail := func(format string, args ...any) {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}
	warn := func(format string, args ...any) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
	}

	if len(seed.Context) == 0 && len(seed.Working) == 0 && len(seed.Knowledge) == 0 && len(seed.Relationships) == 0 {
		warn("Seed is empty")
	}

	for key := range seed.Context {
		if strings.TrimSpace(key) == "" {
			fail("context: key is required")
		}
	}

	for i, w := range seed.Working {
		if strings.TrimSpace(w.Topic) == "" {
			fail("working_context[%d]: topic is required", i)
		}
		if w.Importance != 0 && (w.Importance < memory.MinImportance || w.Importance > memory.MaxImportance) {
			warn("working_context[%d]: importance %d will be clamped to %d-%d", i, w.Importance, memory.MinImportance, memory.MaxImportance)
		}
	}

	declared := make(map[NodeKey]bool)
	for i, k := range seed.Knowledge {
		key := NodeKey{Category: strings.TrimSpace(k.Category), Topic: strings.TrimSpace(k.Topic)}
		if key.Category == "" || key.Topic == "" {
			fail("knowledge[%d]: category and topic are required", i)
			continue
		}
		if strings.TrimSpace(k.Content) == "" {
			fail("knowledge[%d] %s: content is required", i, key)
		}
		if declared[key] {
			warn("knowledge[%d] %s: duplicate entry, the last one wins", i, key)
		}
		declared[key] = true
		if k.Confidence != nil && (*k.Confidence < 0 || *k.Confidence > 1) {
			warn("knowledge[%d] %s: confidence %g will be clamped to 0-1", i, key, *k.Confidence)
		}
		if c.guard != nil {
			if v := c.guard.CheckCategory(key.Category); v != nil {
				fail("knowledge[%d] %s: %s", i, key, v.Message)
			}
			if v := c.guard.CheckContent(k.Content); v != nil {
				fail("knowledge[%d] %s: %s", i, key, v.Message)
			}
		}
	}

	for i, l := range seed.Relationships {
		if strings.TrimSpace(l.Type) == "" {
			fail("relationships[%d]: type is required", i)
		}
		for _, end := range []NodeKey{l.From, l.To} {
			if end.Category == "" || end.Topic == "" {
				fail("relationships[%d]: endpoints need category and topic", i)
				break
			}
			if !declared[end] {
				warn("relationships[%d]: %s is not declared in this seed and must already exist", i, end)
			}
		}
		if l.Strength != nil && (*l.Strength < 0 || *l.Strength > 1) {
			warn("relationships[%d]: strength %g will be clamped to 0-1", i, *l.Strength)
		}
	}

	return res
}

// Apply validates seed and writes it through stores in dependency order:
// context, working items, knowledge, then relationships.
func (c *Coach) Apply(ctx context.Context, seed Seed, stores memory.Stores) (ApplyReport, error) {
	report := ApplyReport{}
	if res := c.Validate(seed); !res.Valid {
		return report, memory.NewError(memory.ErrCodeInvalidInput, "invalid seed: "+strings.Join(res.Errors, "; "))
	}
	stores = stores.WithDefaults()

	for key, value := range seed.Context {
		if stores.ShortTerm.StoreContext(ctx, key, value, memory.ContextOptions{}) {
			report.Context++
		} else {
			report.Skipped = append(report.Skipped, "context "+key)
		}
	}

	for _, w := range seed.Working {
		id := stores.ShortTerm.AddWorkingContext(ctx, memory.WorkingContextInput{
			Topic: w.Topic, Details: w.Details, Importance: w.Importance,
		})
		if id != "" {
			report.Working++
		} else {
			report.Skipped = append(report.Skipped, "working "+w.Topic)
		}
	}

	for _, k := range seed.Knowledge {
		source := k.Source
		if source == "" {
			source = "seed"
		}
		id := stores.Semantic.StoreKnowledge(ctx, k.Category, k.Topic, k.Content, memory.KnowledgeOptions{
			Confidence: k.Confidence, Source: source, Metadata: k.Metadata,
		})
		if id != "" {
			report.Knowledge++
		} else {
			report.Skipped = append(report.Skipped, "knowledge "+NodeKey{k.Category, k.Topic}.String())
		}
	}

	for _, l := range seed.Relationships {
		label := fmt.Sprintf("relationship %s -%s-> %s", l.From, l.Type, l.To)
		from := stores.Semantic.GetKnowledge(ctx, l.From.Category, l.From.Topic)
		to := stores.Semantic.GetKnowledge(ctx, l.To.Category, l.To.Topic)
		if from == nil || to == nil {
			report.Skipped = append(report.Skipped, label)
			continue
		}
		if stores.Semantic.CreateRelationship(ctx, from.ID, to.ID, l.Type, memory.RelationshipOptions{
			Strength: l.Strength, Metadata: l.Metadata,
		}) {
			report.Relationships++
		} else {
			report.Skipped = append(report.Skipped, label)
		}
	}

	return report, nil
}
