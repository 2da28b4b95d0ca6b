package workflow

import (
	"time"
)

// NewContext creates a new Context initialized at the given entry state.
func NewContext(entryState string, now time.Time) *Context {
	return &Context{
		CurrentState: entryState,
		History:      []StateTransition{},
		StartedAt:    now,
		UpdatedAt:    now,
	}
}

// RecordTransition records a state transition and updates the current state.
func (ctx *Context) RecordTransition(from, to, event string, ts time.Time) {
	ctx.History = append(ctx.History, StateTransition{
		From:      from,
		To:        to,
		Event:     event,
		Timestamp: ts,
	})
	ctx.CurrentState = to
	ctx.UpdatedAt = ts
}

// Clone returns a deep copy of the Context.
func (ctx *Context) Clone() *Context {
	c := &Context{
		CurrentState: ctx.CurrentState,
		StartedAt:    ctx.StartedAt,
		UpdatedAt:    ctx.UpdatedAt,
	}
	if ctx.History != nil {
		c.History = make([]StateTransition, len(ctx.History))
		copy(c.History, ctx.History)
	}
	return c
}

// TransitionCount returns the number of transitions recorded.
func (ctx *Context) TransitionCount() int {
	return len(ctx.History)
}

// LastTransition returns the most recent transition, or nil if none.
func (ctx *Context) LastTransition() *StateTransition {
	if len(ctx.History) == 0 {
		return nil
	}
	t := ctx.History[len(ctx.History)-1]
	return &t
}

// Path lists the visited states in order, starting with the entry state.
func (ctx *Context) Path() []string {
	if len(ctx.History) == 0 {
		return []string{ctx.CurrentState}
	}
	path := make([]string, 0, len(ctx.History)+1)
	path = append(path, ctx.History[0].From)
	for _, t := range ctx.History {
		path = append(path, t.To)
	}
	return path
}

// Events lists the events of the recorded transitions in order.
func (ctx *Context) Events() []string {
	events := make([]string, len(ctx.History))
	for i, t := range ctx.History {
		events[i] = t.Event
	}
	return events
}

// Duration returns the time between the start and the last update.
func (ctx *Context) Duration() time.Duration {
	return ctx.UpdatedAt.Sub(ctx.StartedAt)
}
