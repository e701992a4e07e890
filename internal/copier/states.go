package copier

import (
	"fmt"
	"sync"
)

// LegState is the replication lifecycle of one (source position, destination)
// leg as tracked in memory by its trader.
type LegState string

const (
	// StateUnseen means no replication has been attempted for the leg.
	StateUnseen LegState = "unseen"
	// StateOpening means an open is in flight on the destination.
	StateOpening LegState = "opening"
	// StateOpen means the destination position exists and is mapped.
	StateOpen LegState = "open"
	// StateClosing means a close is in flight on the destination.
	StateClosing LegState = "closing"
	// StateClosed is terminal; the mapping has been deleted.
	StateClosed LegState = "closed"
)

// ValidTransitions defines the allowed lifecycle moves. Closing back to open
// covers an unresolved exit that will be redriven later.
var ValidTransitions = map[LegState][]LegState{
	StateUnseen:  {StateOpening},
	StateOpening: {StateOpen, StateUnseen},
	StateOpen:    {StateClosing},
	StateClosing: {StateClosed, StateOpen},
	StateClosed:  {},
}

type legKey struct {
	positionID    string
	destAccountID string
}

// Lifecycle tracks leg states for one trader. The trader goroutine is the only
// writer; the control API reads snapshots concurrently.
type Lifecycle struct {
	mu     sync.RWMutex
	states map[legKey]LegState
}

// NewLifecycle creates an empty tracker.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{states: make(map[legKey]LegState)}
}

// State returns the current state of a leg, StateUnseen when untracked.
func (l *Lifecycle) State(positionID, destAccountID string) LegState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if s, ok := l.states[legKey{positionID, destAccountID}]; ok {
		return s
	}
	return StateUnseen
}

// Transition moves a leg to the target state, enforcing ValidTransitions.
func (l *Lifecycle) Transition(positionID, destAccountID string, to LegState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := legKey{positionID, destAccountID}
	from, ok := l.states[key]
	if !ok {
		from = StateUnseen
	}
	if !transitionAllowed(from, to) {
		return fmt.Errorf("invalid transition %s -> %s for position %s dest %s",
			from, to, positionID, destAccountID)
	}
	if to == StateClosed {
		delete(l.states, key)
		return nil
	}
	l.states[key] = to
	return nil
}

// Force sets a leg state without validation. Used when rehydrating mappings
// from the store at startup.
func (l *Lifecycle) Force(positionID, destAccountID string, s LegState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states[legKey{positionID, destAccountID}] = s
}

// Forget drops tracking for a leg.
func (l *Lifecycle) Forget(positionID, destAccountID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.states, legKey{positionID, destAccountID})
}

func transitionAllowed(from, to LegState) bool {
	for _, allowed := range ValidTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
