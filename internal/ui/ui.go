// Package ui reports interaction progress to a terminal front end.
package ui

import (
	"fmt"

	"github.com/felixgeelhaar/recall/internal/runtime"
)

type UI interface {
	UpdateStatus(status string)
	UpdateProgress(interactions, interval int)
	Log(msg string)
}

type SilentUI struct{}

func (s SilentUI) UpdateStatus(status string)                {}
func (s SilentUI) UpdateProgress(interactions, interval int) {}
func (s SilentUI) Log(msg string)                            {}

// Bind forwards controller events to u. interval is the consolidation
// interval used to render progress.
func Bind(bus *runtime.EventBus, u UI, interval int) {
	bus.Subscribe(runtime.EventStateChanged, func(e runtime.Event) {
		if to, ok := e.Data["to"].(string); ok {
			u.UpdateStatus(to)
		}
	})
	bus.Subscribe(runtime.EventInteractionEnd, func(e runtime.Event) {
		if n, ok := e.Data["interaction"].(int); ok {
			u.UpdateProgress(n, interval)
		}
	})
	bus.Subscribe(runtime.EventInteractionFailed, func(e runtime.Event) {
		u.Log(fmt.Sprintf("interaction failed: %v", e.Data["error"]))
	})
	bus.Subscribe(runtime.EventMemoryConsolidated, func(e runtime.Event) {
		u.Log(fmt.Sprintf("memory consolidated: %v items promoted", e.Data["promoted"]))
	})
	bus.Subscribe(runtime.EventKnowledgeExtracted, func(e runtime.Event) {
		u.Log(fmt.Sprintf("knowledge extracted: %v nodes written", e.Data["written"]))
	})
	bus.Subscribe(runtime.EventGuardViolation, func(e runtime.Event) {
		u.Log(fmt.Sprintf("blocked by policy: %v", e.Data["message"]))
	})
}
