package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func click(user, message, customID string) *Event {
	return &Event{Kind: EventButton, UserID: user, MessageID: message, CustomID: customID}
}

func TestFilter_Matches(t *testing.T) {
	f := Filter{UserID: "u1", MessageID: "m1", CustomIDs: []string{"a", "b"}}

	assert.True(t, f.Matches(click("u1", "m1", "a")))
	assert.False(t, f.Matches(click("u2", "m1", "a")), "other user")
	assert.False(t, f.Matches(click("u1", "m2", "a")), "other message")
	assert.False(t, f.Matches(click("u1", "m1", "c")), "unexpected custom id")
	assert.False(t, f.Matches(nil))
	assert.False(t, Filter{}.Matches(click("", "m1", "a")), "filters without a user match nothing")

	form := Filter{UserID: "u1", Form: true, CustomIDs: []string{"name_form"}}
	assert.True(t, form.Matches(&Event{Kind: EventFormSubmit, UserID: "u1", CustomID: "name_form"}))
	assert.False(t, form.Matches(click("u1", "m1", "name_form")))
	assert.False(t, Filter{UserID: "u1"}.Matches(&Event{Kind: EventFormSubmit, UserID: "u1"}))
}

func TestPayload_CustomIDs(t *testing.T) {
	p := Payload{Rows: []Row{
		{Button("a", "A", StylePrimary), Button("b", "B", StyleDanger)},
		{Select("s", "pick", SelectOption{Label: "x", Value: "x"})},
	}}
	assert.Equal(t, []string{"a", "b", "s"}, p.CustomIDs())
}

func TestEvent_Value(t *testing.T) {
	assert.Equal(t, "", (*Event)(nil).Value())
	assert.Equal(t, "v", (&Event{Values: []string{"v", "w"}}).Value())
}

func TestHub_DispatchToMatchingWaiter(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	got := make(chan *Event, 1)
	go func() {
		ev, err := h.Await(ctx, time.Second, Filter{UserID: "u1", MessageID: "m1"})
		assert.NoError(t, err)
		got <- ev
	}()
	require.Eventually(t, func() bool { return h.Waiting() == 1 }, time.Second, time.Millisecond)

	assert.False(t, h.Dispatch(click("intruder", "m1", "confirm")), "other users are not correlated")
	assert.True(t, h.Dispatch(click("u1", "m1", "confirm")))

	ev := <-got
	require.NotNil(t, ev)
	assert.Equal(t, "confirm", ev.CustomID)
	assert.Equal(t, 0, h.Waiting())
	assert.False(t, h.Dispatch(click("u1", "m1", "confirm")), "waiter is consumed")
}

func TestHub_AwaitTimeout(t *testing.T) {
	h := NewHub()

	ev, err := h.Await(context.Background(), 10*time.Millisecond, Filter{UserID: "u1"})
	assert.NoError(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, 0, h.Waiting())
}

func TestHub_AwaitContextCancelled(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ev, err := h.Await(ctx, time.Minute, Filter{UserID: "u1"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, ev)
}

func TestHub_MultipleFilters(t *testing.T) {
	h := NewHub()

	var wg sync.WaitGroup
	wg.Add(1)
	var ev *Event
	go func() {
		defer wg.Done()
		ev, _ = h.Await(context.Background(), time.Second,
			Filter{UserID: "u1", Form: true},
			Filter{UserID: "u1", MessageID: "editor"},
		)
	}()
	require.Eventually(t, func() bool { return h.Waiting() == 1 }, time.Second, time.Millisecond)

	require.True(t, h.Dispatch(&Event{Kind: EventFormSubmit, UserID: "u1", CustomID: "name_form"}))
	wg.Wait()
	assert.Equal(t, EventFormSubmit, ev.Kind)
}
