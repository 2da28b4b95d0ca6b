package workflow

import (
	"encoding/json"
	"slices"
	"testing"
	"time"
)

func TestNewContext(t *testing.T) {
	now := time.Date(2026, 2, 17, 10, 0, 0, 0, time.UTC)
	ctx := NewContext(StateInitial, now)

	if ctx.CurrentState != StateInitial {
		t.Errorf("CurrentState = %q, want %q", ctx.CurrentState, StateInitial)
	}
	if len(ctx.History) != 0 {
		t.Errorf("History should be empty, got %d", len(ctx.History))
	}
	if !ctx.StartedAt.Equal(now) || !ctx.UpdatedAt.Equal(now) {
		t.Errorf("StartedAt/UpdatedAt = %v/%v, want %v", ctx.StartedAt, ctx.UpdatedAt, now)
	}
	if got := ctx.Path(); !slices.Equal(got, []string{StateInitial}) {
		t.Errorf("Path = %v", got)
	}
	if ctx.LastTransition() != nil {
		t.Error("LastTransition should be nil without history")
	}
}

func TestRecordTransition(t *testing.T) {
	now := time.Date(2026, 2, 17, 10, 0, 0, 0, time.UTC)
	ctx := NewContext(StateInitial, now)

	t1 := now.Add(time.Minute)
	ctx.RecordTransition(StateInitial, StateAwaitingGuidance, EventNoPreference, t1)
	if ctx.CurrentState != StateAwaitingGuidance {
		t.Errorf("CurrentState = %q", ctx.CurrentState)
	}
	if !ctx.UpdatedAt.Equal(t1) {
		t.Errorf("UpdatedAt = %v, want %v", ctx.UpdatedAt, t1)
	}

	t2 := now.Add(3 * time.Minute)
	ctx.RecordTransition(StateAwaitingGuidance, StateDone, EventTimeout, t2)

	if ctx.TransitionCount() != 2 {
		t.Fatalf("TransitionCount = %d, want 2", ctx.TransitionCount())
	}
	last := ctx.LastTransition()
	if last == nil || last.Event != EventTimeout || last.To != StateDone {
		t.Errorf("LastTransition = %+v", last)
	}
	if got := ctx.Path(); !slices.Equal(got, []string{StateInitial, StateAwaitingGuidance, StateDone}) {
		t.Errorf("Path = %v", got)
	}
	if got := ctx.Events(); !slices.Equal(got, []string{EventNoPreference, EventTimeout}) {
		t.Errorf("Events = %v", got)
	}
	if ctx.Duration() != 3*time.Minute {
		t.Errorf("Duration = %v, want 3m", ctx.Duration())
	}
}

func TestClone(t *testing.T) {
	now := time.Date(2026, 2, 17, 10, 0, 0, 0, time.UTC)
	ctx := NewContext(StateInitial, now)
	ctx.RecordTransition(StateInitial, StateDone, EventStale, now)

	c := ctx.Clone()
	c.History[0].Event = "Changed"
	c.CurrentState = "Elsewhere"

	if ctx.History[0].Event != EventStale {
		t.Error("clone shares history with the original")
	}
	if ctx.CurrentState != StateDone {
		t.Error("clone shares state with the original")
	}
}

func TestCloneNilHistory(t *testing.T) {
	ctx := &Context{CurrentState: StateInitial}
	c := ctx.Clone()
	if c.History != nil {
		t.Errorf("expected nil history, got %v", c.History)
	}
}

func TestContextRoundTripThroughJSON(t *testing.T) {
	now := time.Date(2026, 2, 17, 10, 0, 0, 0, time.UTC)
	ctx := NewContext(StateInitial, now)
	ctx.RecordTransition(StateInitial, StateConfirmingPublish, EventAskConfirm, now.Add(time.Second))

	data, err := json.Marshal(ctx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Context
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.CurrentState != StateConfirmingPublish || got.TransitionCount() != 1 {
		t.Errorf("round trip lost data: %+v", got)
	}
}
