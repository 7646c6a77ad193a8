package runtime

import (
	"fmt"
	"sync"
	"time"
)

// State is a phase of the interaction workflow.
type State string

const (
	StateIdle          State = "idle"
	StateEnriching     State = "enriching"
	StateResponding    State = "responding"
	StateConsolidating State = "consolidating"
)

// transitions lists the allowed successors of each state. Any state may
// return to Idle when an interaction is aborted.
var transitions = map[State][]State{
	StateIdle:          {StateEnriching},
	StateEnriching:     {StateResponding, StateIdle},
	StateResponding:    {StateConsolidating, StateIdle},
	StateConsolidating: {StateIdle},
}

// StateSnapshot is a point-in-time view of the tracker.
type StateSnapshot struct {
	Current     State
	Since       time.Time
	Transitions int
}

// StateTracker tracks the controller's workflow state.
// It provides thread-safe access and publishes every change on the bus.
type StateTracker struct {
	mu          sync.RWMutex
	bus         *EventBus
	current     State
	since       time.Time
	transitions int
}

// NewStateTracker creates a tracker in the Idle state. bus may be nil.
func NewStateTracker(bus *EventBus) *StateTracker {
	return &StateTracker{
		bus:     bus,
		current: StateIdle,
		since:   time.Now(),
	}
}

// Current returns the current state.
func (st *StateTracker) Current() State {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current
}

// Snapshot returns the current state with its bookkeeping.
func (st *StateTracker) Snapshot() StateSnapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return StateSnapshot{Current: st.current, Since: st.since, Transitions: st.transitions}
}

// Transition moves to the next state, rejecting moves the workflow does not
// allow.
func (st *StateTracker) Transition(to State) error {
	st.mu.Lock()
	from := st.current
	if !allowed(from, to) {
		st.mu.Unlock()
		return fmt.Errorf("invalid state transition %s -> %s", from, to)
	}
	st.current = to
	st.since = time.Now()
	st.transitions++
	st.mu.Unlock()

	if st.bus != nil {
		st.bus.PublishWithData(EventStateChanged, "", map[string]any{"from": string(from), "to": string(to)})
	}
	return nil
}

// Reset returns to Idle from any state.
func (st *StateTracker) Reset() {
	if st.Current() == StateIdle {
		return
	}
	st.mu.Lock()
	from := st.current
	st.current = StateIdle
	st.since = time.Now()
	st.transitions++
	st.mu.Unlock()

	if st.bus != nil {
		st.bus.PublishWithData(EventStateChanged, "", map[string]any{"from": string(from), "to": string(StateIdle)})
	}
}

func allowed(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
