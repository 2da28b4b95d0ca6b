// Package trigger decides whether a newly created thread starts an
// auto-publish session and runs the admitted sessions.
package trigger

import (
	"context"
	"sync"

	"github.com/Opizontas-Studio/dc-license-bot/runtime/dedup"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/events"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/logger"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/messaging"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/workflow"
)

// Decision is the outcome of the entry checks. Reason is set when the
// trigger was rejected.
type Decision struct {
	Admitted bool
	Reason   string
}

// Gate filters thread-created triggers and hands admitted ones to a runner.
type Gate struct {
	seen   dedup.Set
	runner workflow.Runner
	forums map[string]struct{}
	bus    *events.EventBus

	wg sync.WaitGroup
}

// Option configures a Gate.
type Option func(*Gate)

// WithForums restricts triggers to threads in the given forum channels.
// Without it every forum is accepted.
func WithForums(ids ...string) Option {
	return func(g *Gate) {
		for _, id := range ids {
			if id != "" {
				g.forums[id] = struct{}{}
			}
		}
	}
}

// WithEventBus emits rejections on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(g *Gate) { g.bus = bus }
}

// New creates a gate.
func New(seen dedup.Set, runner workflow.Runner, opts ...Option) *Gate {
	g := &Gate{
		seen:   seen,
		runner: runner,
		forums: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check runs the entry checks for thread. An admitted thread is recorded in
// the dedup set, so a second Check for the same thread inside the window
// is rejected.
func (g *Gate) Check(ctx context.Context, thread messaging.Thread) Decision {
	var reason string
	switch {
	case !g.allowed(thread.ParentID):
		reason = events.RejectNotAllowed
	case thread.OwnerID == "":
		reason = events.RejectNoOwner
	case !g.seen.Admit(ctx, thread.ID):
		reason = events.RejectDuplicate
	default:
		return Decision{Admitted: true}
	}

	logger.DebugContext(ctx, "Trigger rejected", "thread_id", thread.ID, "forum_id", thread.ParentID, "reason", reason)
	g.bus.Publish(&events.Event{
		Type:     events.EventTriggerRejected,
		UserID:   thread.OwnerID,
		ThreadID: thread.ID,
		Data:     &events.TriggerRejectedData{Reason: reason},
	})
	return Decision{Reason: reason}
}

// ThreadCreated checks thread and, when admitted, runs its session to
// completion on the calling goroutine.
func (g *Gate) ThreadCreated(ctx context.Context, thread messaging.Thread) Decision {
	d := g.Check(ctx, thread)
	if !d.Admitted {
		return d
	}
	g.run(ctx, thread)
	return d
}

// Dispatch is ThreadCreated on a new goroutine. Wait blocks until every
// dispatched session has finished.
func (g *Gate) Dispatch(ctx context.Context, thread messaging.Thread) Decision {
	d := g.Check(ctx, thread)
	if !d.Admitted {
		return d
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.run(ctx, thread)
	}()
	return d
}

// Wait blocks until all sessions started by Dispatch return.
func (g *Gate) Wait() {
	g.wg.Wait()
}

func (g *Gate) run(ctx context.Context, thread messaging.Thread) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "Session panicked", "thread_id", thread.ID, "panic", r)
		}
	}()
	if _, err := g.runner.Run(ctx, thread); err != nil {
		logger.WarnContext(ctx, "Session ended with error", "thread_id", thread.ID, "error", err)
	}
}

func (g *Gate) allowed(forumID string) bool {
	if len(g.forums) == 0 {
		return true
	}
	_, ok := g.forums[forumID]
	return ok
}
