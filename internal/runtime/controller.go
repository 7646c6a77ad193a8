package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/felixgeelhaar/recall/internal/guard"
	"github.com/felixgeelhaar/recall/internal/memory"
	"github.com/felixgeelhaar/recall/internal/memory/episodic"
	"github.com/felixgeelhaar/recall/internal/observe"
)

// FallbackResponse is returned when an interaction cannot complete.
const FallbackResponse = "I'm sorry, I couldn't process that request right now. Please try again."

// Knowledge written by consolidation and extraction.
const (
	CategoryWorkingContext  = "working_context"
	CategoryCodePatterns    = "code_patterns"
	CategoryTroubleshooting = "troubleshooting"

	SourceShortTerm = "short_term_memory"
	SourceEpisodic  = "episodic_memory"
)

// ResponseFunc produces the assistant reply to query given its enriched
// context.
type ResponseFunc func(ctx context.Context, query string, ec *memory.EnrichedContext) (string, error)

// Controller orchestrates the memory tiers. It owns no records: it
// consolidates, extracts, enriches and runs the interaction workflow.
type Controller struct {
	mu     sync.Mutex
	stores memory.Stores
	cfg    memory.Config
	obs    *observe.Observer
	bus    *EventBus
	state  *StateTracker
	guard  *guard.Guard
}

// Option configures a Controller.
type Option func(*Controller)

// WithGuard checks queries and knowledge categories against g.
func WithGuard(g *guard.Guard) Option {
	return func(c *Controller) { c.guard = g }
}

// WithEventBus publishes workflow events on bus.
func WithEventBus(bus *EventBus) Option {
	return func(c *Controller) { c.bus = bus }
}

// New creates a controller. Missing tiers are replaced with memory.Nop.
func New(stores memory.Stores, obs *observe.Observer, cfg memory.Config, opts ...Option) *Controller {
	if obs == nil {
		obs = observe.Discard()
	}
	cfg.ApplyDefaults()
	c := &Controller{
		stores: stores.WithDefaults(),
		cfg:    cfg,
		obs:    obs,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bus == nil {
		c.bus = NewEventBus()
	}
	c.state = NewStateTracker(c.bus)
	return c
}

// Memory returns the three tiers.
func (c *Controller) Memory() memory.Stores { return c.stores }

// Bus returns the event bus.
func (c *Controller) Bus() *EventBus { return c.bus }

// State returns the current workflow state.
func (c *Controller) State() State { return c.state.Current() }

// Config returns the effective memory configuration.
func (c *Controller) Config() memory.Config { return c.cfg }

// ConsolidationReport describes one consolidation pass.
type ConsolidationReport struct {
	Promoted         []string `json:"promoted"`
	SummaryEpisodeID int64    `json:"summary_episode_id,omitempty"`
	Summary          string   `json:"summary,omitempty"`
}

// ConsolidateMemory promotes important working context into the knowledge
// graph and logs the current session summary as a system entry.
func (c *Controller) ConsolidateMemory(ctx context.Context) ConsolidationReport {
	ctx, span := c.obs.StartSpan(ctx, "ConsolidateMemory")
	defer span.End()

	report := ConsolidationReport{Promoted: []string{}}

	// Read short-term first; its lock is released before the other tiers run.
	items := c.stores.ShortTerm.GetWorkingContext(ctx, memory.WorkingContextQuery{
		MinImportance: c.cfg.PromotionThreshold,
		MaxItems:      c.cfg.WorkingCapacity,
	})

	if len(items) > 0 && c.checkCategory(CategoryWorkingContext) != nil {
		items = nil
	}
	for _, it := range items {
		id := c.stores.Semantic.StoreKnowledge(ctx, CategoryWorkingContext, it.Topic, it.Details, memory.KnowledgeOptions{
			Source: SourceShortTerm,
			Metadata: memory.Metadata{
				"importance": memory.ImportanceLabel(it.Importance),
				"item_id":    it.ID,
			},
		})
		if id != "" {
			report.Promoted = append(report.Promoted, id)
		}
	}

	if sum := c.stores.Episodic.SummarizeCurrentSession(ctx); sum != nil {
		report.Summary = sum.Summary
		report.SummaryEpisodeID = c.stores.Episodic.StoreConversation(ctx, memory.ConversationInput{
			Role:      memory.RoleSystem,
			Content:   sum.Summary,
			SessionID: sum.SessionID,
			Metadata: memory.Metadata{
				episodic.MetaKind: episodic.KindSessionSummary,
				"summary_id":      sum.ID,
				"message_count":   sum.MessageCount,
			},
		})
	}

	c.obs.Log().Info().Int("promoted", len(report.Promoted)).Msg("consolidated memory")
	c.bus.PublishWithData(EventMemoryConsolidated, "", map[string]any{
		"promoted":   len(report.Promoted),
		"summarized": report.SummaryEpisodeID != 0,
	})
	return report
}

func (c *Controller) checkCategory(category string) *guard.Violation {
	if c.guard == nil {
		return nil
	}
	v := c.guard.CheckCategory(category)
	if v != nil {
		c.obs.Log().Warn().Str("rule", v.Rule).Str("category", category).Msg("guard blocked knowledge write")
		c.bus.PublishWithData(EventGuardViolation, "", map[string]any{"rule": v.Rule, "message": v.Message})
	}
	return v
}

// ExtractKnowledge classifies recent episodes by vocabulary and records
// matches as knowledge. It returns the ids written.
func (c *Controller) ExtractKnowledge(ctx context.Context) []string {
	ctx, span := c.obs.StartSpan(ctx, "ExtractKnowledge")
	defer span.End()

	written := []string{}
	episodes := c.stores.Episodic.GetRecentConversations(ctx, c.cfg.ExtractionWindow, "")
	for _, e := range episodes {
		if e.Metadata.String(episodic.MetaKind) == episodic.KindSessionSummary {
			continue
		}
		for _, b := range Classify(e.Content) {
			if c.checkCategory(b.Category) != nil {
				continue
			}
			id := c.stores.Semantic.StoreKnowledge(ctx, b.Category, fmt.Sprintf("episode_%d", e.ID), e.Content, memory.KnowledgeOptions{
				Source: SourceEpisodic,
				Metadata: memory.Metadata{
					"importance": b.Importance,
					"episode_id": e.ID,
					"session_id": e.SessionID,
				},
			})
			if id != "" {
				written = append(written, id)
			}
		}
	}

	c.obs.Log().Info().Int("scanned", len(episodes)).Int("written", len(written)).Msg("extracted knowledge")
	c.bus.PublishWithData(EventKnowledgeExtracted, "", map[string]any{"scanned": len(episodes), "written": len(written)})
	return written
}

// EnrichContext assembles working context, recent history and knowledge
// matching the query's keywords. The result is cached in short-term memory.
func (c *Controller) EnrichContext(ctx context.Context, query string) *memory.EnrichedContext {
	ctx, span := c.obs.StartSpan(ctx, "EnrichContext")
	defer span.End()

	st := c.stores.ShortTerm
	ec := &memory.EnrichedContext{
		Query:          query,
		Keywords:       memory.Keywords(query),
		WorkingContext: st.GetWorkingContext(ctx, memory.WorkingContextQuery{}),
		RecentConversations: c.stores.Episodic.GetRecentConversations(ctx,
			c.cfg.EnrichmentConversations, st.ActiveSessionID(ctx)),
		RecentTurns:       st.GetConversationContext(ctx, 0),
		RelevantKnowledge: []memory.KnowledgeNode{},
		Timestamp:         timeNow(),
	}

	seen := make(map[string]bool)
	for _, kw := range ec.Keywords {
		for _, n := range c.stores.Semantic.Search(ctx, kw, memory.SearchOptions{Limit: c.cfg.HitsPerKeyword}) {
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			ec.RelevantKnowledge = append(ec.RelevantKnowledge, n)
		}
	}

	st.StoreContext(ctx, memory.KeyEnrichedContext, ec, memory.ContextOptions{})
	c.bus.PublishWithData(EventContextEnriched, st.ActiveSessionID(ctx), map[string]any{
		"keywords":  len(ec.Keywords),
		"knowledge": len(ec.RelevantKnowledge),
	})
	return ec
}

// Placeholder is the reply used when no responder is supplied.
func Placeholder(_ context.Context, query string, ec *memory.EnrichedContext) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Noted: %q.", query)
	if ec != nil {
		fmt.Fprintf(&sb, " Context: %d working items, %d recent conversations, %d relevant knowledge items.",
			len(ec.WorkingContext), len(ec.RecentConversations), len(ec.RelevantKnowledge))
		if len(ec.RelevantKnowledge) > 0 {
			fmt.Fprintf(&sb, " Most relevant: %s/%s.", ec.RelevantKnowledge[0].Category, ec.RelevantKnowledge[0].Topic)
		}
	}
	return sb.String(), nil
}

// Interactions returns the number of completed interactions.
func (c *Controller) Interactions(ctx context.Context) int {
	return toInt(c.stores.ShortTerm.GetContext(ctx, memory.KeyInteractionCount))
}

// UntilConsolidation returns how many interactions remain before the next
// consolidation pass.
func (c *Controller) UntilConsolidation(ctx context.Context) int {
	return c.cfg.ConsolidationInterval - c.Interactions(ctx)%c.cfg.ConsolidationInterval
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
