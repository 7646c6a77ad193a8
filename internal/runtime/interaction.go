package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/recall/internal/memory"
)

var timeNow = time.Now

// ProcessInteraction runs one query through the workflow: record the query,
// enrich, respond, record the response, count, and consolidate every
// configured number of interactions. It never fails; any error or panic
// yields FallbackResponse.
func (c *Controller) ProcessInteraction(ctx context.Context, query string, respond ResponseFunc) (resp string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.obs.StartSpan(ctx, "ProcessInteraction")
	defer span.End()

	st := c.stores.ShortTerm
	sessionID := st.ActiveSessionID(ctx)

	defer func() {
		if r := recover(); r != nil {
			c.fail(sessionID, fmt.Errorf("panic: %v", r))
			resp = FallbackResponse
		}
	}()

	if respond == nil {
		respond = Placeholder
	}
	if c.guard != nil {
		v := c.guard.CheckQuery(query)
		if v == nil {
			v = c.guard.CheckBudget(c.Interactions(ctx))
		}
		if v != nil {
			c.bus.PublishWithData(EventGuardViolation, sessionID, map[string]any{"rule": v.Rule, "message": v.Message})
			c.fail(sessionID, v)
			return FallbackResponse
		}
	}

	c.bus.PublishWithData(EventInteractionStart, sessionID, map[string]any{"query": query})

	// 1. Short-term record of the query.
	st.StoreContext(ctx, memory.KeyCurrentQuery, query, memory.ContextOptions{})
	st.AddConversationTurn(ctx, memory.ConversationTurn{Role: memory.RoleUser, Content: query, Timestamp: timeNow()})

	// 2. Episodic record of the query.
	queryID := c.stores.Episodic.StoreConversation(ctx, memory.ConversationInput{Role: memory.RoleUser, Content: query})
	if sessionID == "" {
		sessionID = st.ActiveSessionID(ctx)
	}

	// 3. Enrichment.
	if err := c.state.Transition(StateEnriching); err != nil {
		c.fail(sessionID, err)
		return FallbackResponse
	}
	ec := c.EnrichContext(ctx, query)

	// 4. Response.
	if err := c.state.Transition(StateResponding); err != nil {
		c.fail(sessionID, err)
		return FallbackResponse
	}
	c.bus.PublishSimple(EventResponderRequest, sessionID)
	reply, err := respond(ctx, query, ec)
	if err != nil {
		c.fail(sessionID, fmt.Errorf("responder: %w", err))
		return FallbackResponse
	}
	c.bus.PublishWithData(EventResponderResponse, sessionID, map[string]any{"length": len(reply)})

	// 5. Record the response in both tiers.
	st.StoreContext(ctx, memory.KeyLastResponse, reply, memory.ContextOptions{})
	st.AddConversationTurn(ctx, memory.ConversationTurn{Role: memory.RoleAssistant, Content: reply, Timestamp: timeNow()})
	var related []int64
	if queryID != 0 {
		related = []int64{queryID}
	}
	c.stores.Episodic.StoreConversation(ctx, memory.ConversationInput{
		Role: memory.RoleAssistant, Content: reply, SessionID: sessionID, RelatedIDs: related,
	})

	// 6. Count.
	count := c.Interactions(ctx) + 1
	st.StoreContext(ctx, memory.KeyInteractionCount, count, memory.ContextOptions{})

	// 7. Periodic consolidation.
	if count%c.cfg.ConsolidationInterval == 0 {
		if err := c.state.Transition(StateConsolidating); err != nil {
			c.fail(sessionID, err)
			return FallbackResponse
		}
		c.ConsolidateMemory(ctx)
		c.ExtractKnowledge(ctx)
	}

	// 8. Done.
	if err := c.state.Transition(StateIdle); err != nil {
		c.fail(sessionID, err)
		return FallbackResponse
	}
	c.obs.Log().Info().Str("session", sessionID).Int("interaction", count).Msg("interaction complete")
	c.bus.PublishWithData(EventInteractionEnd, sessionID, map[string]any{"interaction": count})
	return reply
}

func (c *Controller) fail(sessionID string, err error) {
	c.state.Reset()
	c.obs.Log().Error().Str("session", sessionID).Err(err).Msg("interaction failed")
	c.bus.PublishWithData(EventInteractionFailed, sessionID, map[string]any{"error": err.Error()})
}
