package editor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Opizontas-Studio/dc-license-bot/pkg/testutil"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/license"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/messaging"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/messaging/messagingtest"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/ui"
)

const user = "u1"

func firstEvent() *messaging.Event {
	return &messaging.Event{
		ID:       "select-1",
		Kind:     messaging.EventSelect,
		CustomID: ui.IDLicenseSelection,
		Values:   []string{ui.ValueNewLicense},
		UserID:   user,
	}
}

func TestRun_SaveAfterEdits(t *testing.T) {
	fake := messagingtest.New()
	fake.Click(user, ui.IDToggleRedistribution).
		Click(user, ui.IDToggleBackup).
		Click(user, ui.IDEditName).
		Submit(user, ui.FormEditName, map[string]string{ui.InputName: "  X  "}).
		Click(user, ui.IDSaveLicense)

	out, err := New(fake).Run(context.Background(), license.NewDraft("My License 1"), firstEvent())
	require.NoError(t, err)

	require.True(t, out.Saved())
	assert.False(t, out.TimedOut())
	assert.Equal(t, "X", out.Draft.Name)
	assert.Equal(t, license.Permissions{AllowRedistribution: true, AllowBackup: true}, out.Draft.Permissions)
	assert.Nil(t, out.Draft.RestrictionsNote)
	assert.Equal(t, ui.IDSaveLicense, out.Event.CustomID)

	responses := fake.Responses()
	require.NotEmpty(t, responses)
	assert.Equal(t, messaging.RespondMessage, responses[0].Response.Kind)
	assert.True(t, responses[0].Response.Payload.Ephemeral)

	last := responses[len(responses)-1]
	assert.Equal(t, messaging.RespondUpdate, last.Response.Kind)
	assert.Equal(t, ui.TextSaved, last.Response.Payload.Content)
	assert.Empty(t, last.Response.Payload.Rows)
	assert.Zero(t, fake.Pending())
}

func TestRun_DoesNotMutateInitialDraft(t *testing.T) {
	fake := messagingtest.New()
	fake.Click(user, ui.IDToggleModification).Click(user, ui.IDSaveLicense)

	initial := license.NewDraft("Keep")
	out, err := New(fake).Run(context.Background(), initial, firstEvent())
	require.NoError(t, err)
	assert.True(t, out.Draft.Permissions.AllowModification)
	assert.False(t, initial.Permissions.AllowModification)
}

func TestRun_RestrictionsForm(t *testing.T) {
	fake := messagingtest.New()
	fake.Click(user, ui.IDEditRestrictions).
		Submit(user, ui.FormEditRestrictions, map[string]string{ui.InputRestrictions: "credit the author"}).
		Click(user, ui.IDSaveLicense)

	out, err := New(fake).Run(context.Background(), license.NewDraft("N"), firstEvent())
	require.NoError(t, err)
	require.NotNil(t, out.Draft.RestrictionsNote)
	assert.Equal(t, "credit the author", *out.Draft.RestrictionsNote)

	var forms []*messaging.Form
	for _, r := range fake.Responses() {
		if r.Response.Kind == messaging.RespondForm {
			forms = append(forms, r.Response.Form)
		}
	}
	require.Len(t, forms, 1)
	assert.Equal(t, ui.FormEditRestrictions, forms[0].CustomID)
}

func TestRun_InvalidNameRerendersWithProblem(t *testing.T) {
	fake := messagingtest.New()
	fake.Click(user, ui.IDEditName).
		Submit(user, ui.FormEditName, map[string]string{ui.InputName: "   "}).
		Click(user, ui.IDSaveLicense)

	out, err := New(fake).Run(context.Background(), license.NewDraft("Original"), firstEvent())
	require.NoError(t, err)
	assert.Equal(t, "Original", out.Draft.Name)

	var rejected bool
	for _, r := range fake.Responses() {
		if r.Event.Kind == messaging.EventFormSubmit {
			rejected = true
			assert.Contains(t, r.Response.Payload.Content, license.ErrEmptyName.Error())
		}
	}
	assert.True(t, rejected)
}

func TestRun_ComponentEventSupersedesForm(t *testing.T) {
	fake := messagingtest.New()
	fake.Click(user, ui.IDEditName).
		Click(user, ui.IDToggleModification).
		Submit(user, ui.FormEditName, map[string]string{ui.InputName: "Stale"}).
		Click(user, ui.IDCancelLicense)

	out, err := New(fake).Run(context.Background(), license.NewDraft("Draft"), firstEvent())
	require.NoError(t, err)

	assert.False(t, out.Saved())
	require.NotNil(t, out.Event)
	assert.Equal(t, ui.IDCancelLicense, out.Event.CustomID)

	ignored := fake.Ignored()
	require.Len(t, ignored, 1)
	assert.Equal(t, ui.FormEditName, ignored[0].CustomID)

	awaits := fake.Awaits()
	require.Len(t, awaits, 3)
	assert.Len(t, awaits[1].Filters, 2, "form and editor message are awaited together")
	assert.Equal(t, awaits[1].Filters[0].MessageID, awaits[1].Filters[1].MessageID, "form is tied to the editor message")
	assert.Len(t, awaits[2].Filters, 1, "superseded form is no longer awaited")
}

func TestRun_FormExpiryKeepsEditorAlive(t *testing.T) {
	fake := messagingtest.New()
	fake.Click(user, ui.IDEditName).
		Timeout().
		Click(user, ui.IDSaveLicense)

	out, err := New(fake, WithFormTimeout(30*time.Second), WithClock(testutil.NewClock().Now)).Run(context.Background(), license.NewDraft("D"), firstEvent())
	require.NoError(t, err)
	assert.True(t, out.Saved())

	awaits := fake.Awaits()
	require.Len(t, awaits, 3)
	assert.Equal(t, 30*time.Second, awaits[1].Timeout)
	assert.Equal(t, DefaultIdleTimeout, awaits[2].Timeout)
}

func TestRun_IgnoresOtherUsers(t *testing.T) {
	fake := messagingtest.New()
	fake.Click("intruder", ui.IDSaveLicense).Click(user, ui.IDCancelLicense)

	out, err := New(fake).Run(context.Background(), license.NewDraft("D"), firstEvent())
	require.NoError(t, err)
	assert.False(t, out.Saved())
	assert.Len(t, fake.Ignored(), 1)
}

func TestRun_TimeoutReturnsNoEvent(t *testing.T) {
	fake := messagingtest.New()

	out, err := New(fake, WithIdleTimeout(time.Minute), WithClock(testutil.NewClock().Now)).Run(context.Background(), license.NewDraft("D"), firstEvent())
	require.NoError(t, err)
	assert.False(t, out.Saved())
	assert.True(t, out.TimedOut())

	awaits := fake.Awaits()
	require.Len(t, awaits, 1)
	assert.Equal(t, time.Minute, awaits[0].Timeout)
	assert.Equal(t, user, awaits[0].Filters[0].UserID)
}

func TestRun_IdleMeasuredFromLastActivity(t *testing.T) {
	clock := testutil.NewClock()

	fake := messagingtest.New()
	fake.Click(user, ui.IDToggleBackup)

	ed := New(fake, WithIdleTimeout(time.Minute), WithClock(clock.Now))
	s := &session{Editor: ed, draft: license.NewDraft("D"), user: user, messageID: "m1", last: clock.Now().Add(-40 * time.Second)}

	_, err := s.loop(context.Background())
	require.NoError(t, err)

	awaits := fake.Awaits()
	require.Len(t, awaits, 2)
	assert.Equal(t, 20*time.Second, awaits[0].Timeout)
	assert.Equal(t, time.Minute, awaits[1].Timeout, "activity resets the idle window")
}

func TestRun_Errors(t *testing.T) {
	_, err := New(messagingtest.New()).Run(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrNoEvent)

	boom := errors.New("gateway down")
	fake := messagingtest.New().Fail("respond", boom)
	out, err := New(fake).Run(context.Background(), nil, firstEvent())
	require.ErrorIs(t, err, boom)
	assert.Nil(t, out.Event, "an unanswered first event is not reported")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(messagingtest.New()).Run(ctx, nil, firstEvent())
	require.ErrorIs(t, err, context.Canceled)
}

// hubSurface routes Await through a real hub so several sessions can share it.
type hubSurface struct {
	*messagingtest.Fake
	hub *messaging.Hub
}

func (s *hubSurface) Await(ctx context.Context, timeout time.Duration, filters ...messaging.Filter) (*messaging.Event, error) {
	return s.hub.Await(ctx, timeout, filters...)
}

// failingUpdates fails every RespondUpdate after the editor has opened.
type failingUpdates struct {
	*messagingtest.Fake
	err error
}

func (s *failingUpdates) Respond(ctx context.Context, ev *messaging.Event, r messaging.Response) error {
	if r.Kind == messaging.RespondUpdate {
		return s.err
	}
	return s.Fake.Respond(ctx, ev, r)
}

func TestRun_ErrorReportsAnsweredEvent(t *testing.T) {
	boom := errors.New("unknown interaction")
	fake := messagingtest.New()
	fake.Click(user, ui.IDToggleBackup)

	first := firstEvent()
	out, err := New(&failingUpdates{Fake: fake, err: boom}).Run(context.Background(), license.NewDraft("D"), first)
	require.ErrorIs(t, err, boom)
	assert.Same(t, first, out.Event)
	assert.False(t, out.Saved())
}

func TestRun_ConcurrentSessionsKeepTheirForms(t *testing.T) {
	hub := messaging.NewHub()
	surface := &hubSurface{Fake: messagingtest.New(), hub: hub}
	ed := New(surface)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		out Outcome
		err error
	}
	start := func(id, name string) (<-chan result, string) {
		t.Helper()
		first := &messaging.Event{
			ID:       id,
			Kind:     messaging.EventSelect,
			CustomID: ui.IDLicenseSelection,
			Values:   []string{ui.ValueNewLicense},
			UserID:   user,
		}
		waiting := hub.Waiting()
		done := make(chan result, 1)
		go func() {
			out, err := ed.Run(ctx, license.NewDraft(name), first)
			done <- result{out: out, err: err}
		}()
		require.Eventually(t, func() bool { return hub.Waiting() == waiting+1 }, time.Second, time.Millisecond)
		msg, err := surface.ResponseMessage(ctx, first)
		require.NoError(t, err)
		return done, msg.ID
	}
	// dispatch hands ev to a live session and waits until it is waiting again.
	dispatch := func(ev *messaging.Event) {
		t.Helper()
		waiting := hub.Waiting()
		require.True(t, hub.Dispatch(ev))
		require.Eventually(t, func() bool { return hub.Waiting() == waiting }, time.Second, time.Millisecond)
	}
	click := func(id, messageID, customID string) *messaging.Event {
		return &messaging.Event{ID: id, Kind: messaging.EventButton, UserID: user, MessageID: messageID, CustomID: customID}
	}

	doneA, msgA := start("select-a", "Draft A")
	doneB, msgB := start("select-b", "Draft B")
	require.NotEqual(t, msgA, msgB)

	dispatch(click("a1", msgA, ui.IDEditName))
	dispatch(click("b1", msgB, ui.IDEditName))
	dispatch(&messaging.Event{
		ID:        "a2",
		Kind:      messaging.EventFormSubmit,
		UserID:    user,
		MessageID: msgA,
		CustomID:  ui.FormEditName,
		Fields:    map[string]string{ui.InputName: "Name for A"},
	})

	require.True(t, hub.Dispatch(click("a3", msgA, ui.IDSaveLicense)))
	a := <-doneA
	require.True(t, hub.Dispatch(click("b3", msgB, ui.IDSaveLicense)))
	b := <-doneB

	require.NoError(t, a.err)
	require.NoError(t, b.err)
	require.True(t, a.out.Saved())
	require.True(t, b.out.Saved())
	assert.Equal(t, "Name for A", a.out.Draft.Name)
	assert.Equal(t, "Draft B", b.out.Draft.Name)
	assert.Zero(t, hub.Waiting())
}
