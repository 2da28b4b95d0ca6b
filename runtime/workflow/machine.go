package workflow

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrInvalidEvent is returned when an event is not defined for the current state.
	ErrInvalidEvent = errors.New("invalid event for current state")
	// ErrTerminalState is returned when trying to process an event in a terminal state.
	ErrTerminalState = errors.New("current state is terminal (no outgoing transitions)")
)

// TimeFunc returns the current time. Override for deterministic tests.
type TimeFunc func() time.Time

// StateMachine tracks one session's position in a Spec.
type StateMachine struct {
	spec    *Spec
	context *Context
	now     TimeFunc
}

// NewStateMachine creates a state machine at the spec's entry state.
func NewStateMachine(spec *Spec) *StateMachine {
	return &StateMachine{
		spec:    spec,
		context: NewContext(spec.Entry, time.Now()),
		now:     time.Now,
	}
}

// WithTimeFunc sets a custom time function for deterministic tests. The
// context start time is reset to the new clock.
func (sm *StateMachine) WithTimeFunc(fn TimeFunc) *StateMachine {
	sm.now = fn
	if sm.context.TransitionCount() == 0 {
		sm.context = NewContext(sm.context.CurrentState, fn())
	}
	return sm
}

// CurrentState returns the name of the current state.
func (sm *StateMachine) CurrentState() string {
	return sm.context.CurrentState
}

// ProcessEvent applies an event and returns the target state.
func (sm *StateMachine) ProcessEvent(event string) (string, error) {
	state := sm.spec.States[sm.context.CurrentState]
	if state == nil {
		return "", fmt.Errorf("%w: state %q not found in spec", ErrInvalidEvent, sm.context.CurrentState)
	}

	if len(state.OnEvent) == 0 {
		return "", fmt.Errorf("%w: state %q has no transitions", ErrTerminalState, sm.context.CurrentState)
	}

	target, ok := state.OnEvent[event]
	if !ok {
		return "", fmt.Errorf("%w: event %q not defined for state %q (available: %v)",
			ErrInvalidEvent, event, sm.context.CurrentState, sm.AvailableEvents())
	}

	sm.context.RecordTransition(sm.context.CurrentState, target, event, sm.now())
	return target, nil
}

// Target returns the state event leads to from the current state without
// applying it.
func (sm *StateMachine) Target(event string) (string, bool) {
	state := sm.spec.States[sm.context.CurrentState]
	if state == nil {
		return "", false
	}
	target, ok := state.OnEvent[event]
	return target, ok
}

// IsTerminal returns true if the current state has no outgoing transitions.
func (sm *StateMachine) IsTerminal() bool {
	state := sm.spec.States[sm.context.CurrentState]
	if state == nil {
		return true
	}
	return len(state.OnEvent) == 0
}

// AvailableEvents returns the set of valid events for the current state, sorted.
func (sm *StateMachine) AvailableEvents() []string {
	state := sm.spec.States[sm.context.CurrentState]
	if state == nil || len(state.OnEvent) == 0 {
		return nil
	}
	return SortedEvents(state.OnEvent)
}

// Context returns a snapshot of the current workflow context.
func (sm *StateMachine) Context() *Context {
	return sm.context.Clone()
}

// SortedEvents returns a sorted copy of the event keys from an OnEvent map.
func SortedEvents(onEvent map[string]string) []string {
	events := make([]string, 0, len(onEvent))
	for event := range onEvent {
		events = append(events, event)
	}
	slices.Sort(events)
	return events
}
