package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Opizontas-Studio/dc-license-bot/pkg/testutil"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/catalog"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/dedup"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/events"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/messaging"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/messaging/messagingtest"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/publish"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/store"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/workflow"
)

type countingRunner struct {
	calls atomic.Int32
	delay time.Duration
}

func (r *countingRunner) Run(context.Context, messaging.Thread) (*workflow.Report, error) {
	r.calls.Add(1)
	time.Sleep(r.delay)
	return &workflow.Report{Reason: workflow.ReasonTimeout}, nil
}

type panickingRunner struct{}

func (panickingRunner) Run(context.Context, messaging.Thread) (*workflow.Report, error) {
	panic("boom")
}

func thread(id string) messaging.Thread {
	return messaging.Thread{ID: id, GuildID: "g1", ParentID: "art", OwnerID: "u1"}
}

func TestGate_AdmitsOncePerThread(t *testing.T) {
	runner := &countingRunner{}
	g := New(dedup.NewMemorySet(), runner)
	ctx := context.Background()

	assert.True(t, g.ThreadCreated(ctx, thread("t1")).Admitted)
	d := g.ThreadCreated(ctx, thread("t1"))
	assert.False(t, d.Admitted)
	assert.Equal(t, events.RejectDuplicate, d.Reason)
	assert.True(t, g.ThreadCreated(ctx, thread("t2")).Admitted)

	assert.EqualValues(t, 2, runner.calls.Load())
}

func TestGate_ForumAllowList(t *testing.T) {
	runner := &countingRunner{}
	g := New(dedup.NewMemorySet(), runner, WithForums("art", ""))

	other := thread("t1")
	other.ParentID = "memes"
	d := g.ThreadCreated(context.Background(), other)
	assert.Equal(t, events.RejectNotAllowed, d.Reason)

	assert.True(t, g.ThreadCreated(context.Background(), thread("t2")).Admitted)
	assert.EqualValues(t, 1, runner.calls.Load())
}

func TestGate_RejectedForumDoesNotConsumeDedup(t *testing.T) {
	seen := dedup.NewMemorySet()
	g := New(seen, &countingRunner{}, WithForums("art"))

	other := thread("t1")
	other.ParentID = "memes"
	g.Check(context.Background(), other)

	assert.True(t, seen.Admit(context.Background(), "t1"))
}

func TestGate_RequiresOwner(t *testing.T) {
	runner := &countingRunner{}
	g := New(dedup.NewMemorySet(), runner)

	orphan := thread("t1")
	orphan.OwnerID = ""
	assert.Equal(t, events.RejectNoOwner, g.ThreadCreated(context.Background(), orphan).Reason)
	assert.Zero(t, runner.calls.Load())
}

func TestGate_EmitsRejections(t *testing.T) {
	bus := events.NewEventBus()
	var mu sync.Mutex
	var reasons []string
	bus.Subscribe(events.EventTriggerRejected, func(e *events.Event) {
		mu.Lock()
		defer mu.Unlock()
		reasons = append(reasons, e.Data.(*events.TriggerRejectedData).Reason)
	})

	g := New(dedup.NewMemorySet(), &countingRunner{}, WithEventBus(bus))
	g.ThreadCreated(context.Background(), thread("t1"))
	g.ThreadCreated(context.Background(), thread("t1"))

	bus.Wait()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{events.RejectDuplicate}, reasons)
}

func TestGate_ConcurrentDuplicates(t *testing.T) {
	runner := &countingRunner{delay: 10 * time.Millisecond}
	g := New(dedup.NewMemorySet(), runner)

	var wg sync.WaitGroup
	var admitted atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Dispatch(context.Background(), thread("t1")).Admitted {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	g.Wait()

	assert.EqualValues(t, 1, admitted.Load())
	assert.EqualValues(t, 1, runner.calls.Load())
}

func TestGate_RecoversFromPanics(t *testing.T) {
	g := New(dedup.NewMemorySet(), panickingRunner{})
	require.NotPanics(t, func() {
		g.Dispatch(context.Background(), thread("t1"))
		g.Wait()
	})
}

func TestGate_DuplicateTriggerShowsOnePrompt(t *testing.T) {
	fake := messagingtest.New()
	st := store.NewMemoryStore()
	clock := testutil.NewClock()
	engine, err := workflow.NewEngine(fake, st, catalog.Static{}, publish.NewCoordinator(st, fake),
		workflow.WithClock(clock.Now))
	require.NoError(t, err)

	g := New(dedup.NewMemorySet(dedup.WithClock(clock.Now)), engine)
	th := thread("t1")
	th.CreatedAt = clock.Now()

	g.ThreadCreated(context.Background(), th)
	clock.Advance(time.Minute)
	g.ThreadCreated(context.Background(), th)

	assert.Len(t, fake.Sent(), 1)
}
