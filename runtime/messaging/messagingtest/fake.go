// Package messagingtest provides a scripted in-memory messaging.Surface.
//
// Tests queue the interaction events a user will perform; each Await pops the
// next queued event. Events that do not match the waiter's filters are
// recorded as ignored and skipped, an explicit Timeout step or an empty queue
// makes Await report a timeout.
package messagingtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/runtime/messaging"
)

// ErrUnknownMessage is returned for operations on messages that do not exist.
var ErrUnknownMessage = errors.New("unknown message")

type step struct {
	event   *messaging.Event
	timeout bool
}

// Response is a recorded interaction acknowledgement.
type Response struct {
	Event    *messaging.Event
	Response messaging.Response
}

// AwaitCall is a recorded Await invocation.
type AwaitCall struct {
	Timeout time.Duration
	Filters []messaging.Filter
}

// Fake is a scripted messaging.Surface. It is safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	plan     []step
	seq      int
	eventSeq int

	messages    map[string]*messaging.Message
	responseMsg map[string]string

	sent      []*messaging.Message
	edits     []string
	deleted   []string
	responses []Response
	followups []*messaging.Message
	ignored   []*messaging.Event
	awaits    []AwaitCall

	members map[string]messaging.User

	// Injected failures, keyed by operation name ("send", "edit", "delete",
	// "fetch", "pin", "unpin", "respond", "followup", "member").
	failures map[string]error
}

// New creates an empty fake.
func New() *Fake {
	return &Fake{
		messages:    make(map[string]*messaging.Message),
		responseMsg: make(map[string]string),
		members:     make(map[string]messaging.User),
		failures:    make(map[string]error),
	}
}

// Fail makes every subsequent call of op return err. A nil err clears it.
func (f *Fake) Fail(op string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
	} else {
		f.failures[op] = err
	}
	return f
}

// AddMember registers a guild member for Member lookups.
func (f *Fake) AddMember(u messaging.User) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[u.ID] = u
	return f
}

// Seed stores an existing message, e.g. a thread's starter post.
func (f *Fake) Seed(m messaging.Message) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := m
	f.messages[m.ID] = &c
	return f
}

// Plan queues a raw event. An event without a MessageID is delivered on
// whatever message the waiter is watching.
func (f *Fake) Plan(ev *messaging.Event) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev.ID == "" {
		f.eventSeq++
		ev.ID = fmt.Sprintf("i%d", f.eventSeq)
	}
	f.plan = append(f.plan, step{event: ev})
	return f
}

// Click queues a button press by user.
func (f *Fake) Click(user, customID string) *Fake {
	return f.Plan(&messaging.Event{Kind: messaging.EventButton, UserID: user, CustomID: customID})
}

// ClickOn queues a button press on a specific message.
func (f *Fake) ClickOn(user, messageID, customID string) *Fake {
	return f.Plan(&messaging.Event{Kind: messaging.EventButton, UserID: user, MessageID: messageID, CustomID: customID})
}

// Choose queues a select-menu choice.
func (f *Fake) Choose(user, customID, value string) *Fake {
	return f.Plan(&messaging.Event{Kind: messaging.EventSelect, UserID: user, CustomID: customID, Values: []string{value}})
}

// Submit queues a form submission.
func (f *Fake) Submit(user, formID string, fields map[string]string) *Fake {
	return f.Plan(&messaging.Event{Kind: messaging.EventFormSubmit, UserID: user, CustomID: formID, Fields: fields})
}

// Timeout queues a wait that expires.
func (f *Fake) Timeout() *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plan = append(f.plan, step{timeout: true})
	return f
}

// Await implements messaging.Interactions.
func (f *Fake) Await(ctx context.Context, timeout time.Duration, filters ...messaging.Filter) (*messaging.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.awaits = append(f.awaits, AwaitCall{Timeout: timeout, Filters: filters})
	for len(f.plan) > 0 {
		next := f.plan[0]
		f.plan = f.plan[1:]
		if next.timeout {
			return nil, nil
		}
		if ev := resolve(next.event, filters); ev != nil {
			return ev, nil
		}
		f.ignored = append(f.ignored, next.event)
	}
	return nil, nil
}

func resolve(ev *messaging.Event, filters []messaging.Filter) *messaging.Event {
	for _, flt := range filters {
		candidate := *ev
		if candidate.MessageID == "" {
			candidate.MessageID = flt.MessageID
		}
		if flt.Matches(&candidate) {
			return &candidate
		}
	}
	return nil
}

func (f *Fake) failure(op string) error {
	return f.failures[op]
}

func (f *Fake) newMessage(channelID string, p messaging.Payload) *messaging.Message {
	f.seq++
	m := &messaging.Message{
		ID:          fmt.Sprintf("m%d", f.seq),
		ChannelID:   channelID,
		AuthorIsBot: true,
		Ephemeral:   p.Ephemeral,
	}
	apply(m, p)
	f.messages[m.ID] = m
	return m
}

func apply(m *messaging.Message, p messaging.Payload) {
	m.Content = p.Content
	m.Embeds = append([]messaging.Embed(nil), p.Embeds...)
	m.Rows = append([]messaging.Row(nil), p.Rows...)
}

func snapshot(m *messaging.Message) *messaging.Message {
	c := *m
	return &c
}

// Send implements messaging.Channels.
func (f *Fake) Send(_ context.Context, channelID string, p messaging.Payload) (*messaging.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("send"); err != nil {
		return nil, err
	}
	m := f.newMessage(channelID, p)
	f.sent = append(f.sent, snapshot(m))
	return snapshot(m), nil
}

// Edit implements messaging.Channels.
func (f *Fake) Edit(_ context.Context, _, messageID string, p messaging.Payload) (*messaging.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("edit"); err != nil {
		return nil, err
	}
	m, ok := f.messages[messageID]
	if !ok {
		return nil, ErrUnknownMessage
	}
	apply(m, p)
	f.edits = append(f.edits, messageID)
	return snapshot(m), nil
}

// Delete implements messaging.Channels.
func (f *Fake) Delete(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("delete"); err != nil {
		return err
	}
	if _, ok := f.messages[messageID]; !ok {
		return ErrUnknownMessage
	}
	delete(f.messages, messageID)
	f.deleted = append(f.deleted, messageID)
	return nil
}

// Fetch implements messaging.Channels.
func (f *Fake) Fetch(_ context.Context, _, messageID string) (*messaging.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("fetch"); err != nil {
		return nil, err
	}
	m, ok := f.messages[messageID]
	if !ok {
		return nil, ErrUnknownMessage
	}
	return snapshot(m), nil
}

// Pin implements messaging.Channels.
func (f *Fake) Pin(_ context.Context, _, messageID string) error {
	return f.setPinned("pin", messageID, true)
}

// Unpin implements messaging.Channels.
func (f *Fake) Unpin(_ context.Context, _, messageID string) error {
	return f.setPinned("unpin", messageID, false)
}

func (f *Fake) setPinned(op, messageID string, pinned bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(op); err != nil {
		return err
	}
	m, ok := f.messages[messageID]
	if !ok {
		return ErrUnknownMessage
	}
	m.Pinned = pinned
	return nil
}

// Respond implements messaging.Interactions.
func (f *Fake) Respond(_ context.Context, ev *messaging.Event, r messaging.Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("respond"); err != nil {
		return err
	}
	f.responses = append(f.responses, Response{Event: ev, Response: r})

	switch r.Kind {
	case messaging.RespondMessage:
		m := f.newMessage(ev.ChannelID, r.Payload)
		f.responseMsg[ev.ID] = m.ID
	case messaging.RespondUpdate:
		if m, ok := f.messages[ev.MessageID]; ok {
			apply(m, r.Payload)
		}
	}
	return nil
}

// ResponseMessage implements messaging.Interactions.
func (f *Fake) ResponseMessage(_ context.Context, ev *messaging.Event) (*messaging.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.responseMsg[ev.ID]
	if !ok {
		return nil, ErrUnknownMessage
	}
	m, ok := f.messages[id]
	if !ok {
		return nil, ErrUnknownMessage
	}
	return snapshot(m), nil
}

// Followup implements messaging.Interactions.
func (f *Fake) Followup(_ context.Context, ev *messaging.Event, p messaging.Payload) (*messaging.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("followup"); err != nil {
		return nil, err
	}
	m := f.newMessage(ev.ChannelID, p)
	f.followups = append(f.followups, snapshot(m))
	return snapshot(m), nil
}

// Member implements messaging.Directory.
func (f *Fake) Member(_ context.Context, _, userID string) (*messaging.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("member"); err != nil {
		return nil, err
	}
	if u, ok := f.members[userID]; ok {
		return &u, nil
	}
	return &messaging.User{ID: userID, Username: "user-" + userID}, nil
}

// Sent returns snapshots of messages created with Send, in order.
func (f *Fake) Sent() []*messaging.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*messaging.Message(nil), f.sent...)
}

// Deleted returns the ids of deleted messages, in order.
func (f *Fake) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// Edited returns the ids of edited messages, in order.
func (f *Fake) Edited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.edits...)
}

// Responses returns every recorded acknowledgement, in order.
func (f *Fake) Responses() []Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Response(nil), f.responses...)
}

// Followups returns snapshots of follow-up messages, in order.
func (f *Fake) Followups() []*messaging.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*messaging.Message(nil), f.followups...)
}

// Ignored returns queued events that no waiter accepted.
func (f *Fake) Ignored() []*messaging.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*messaging.Event(nil), f.ignored...)
}

// Awaits returns every recorded Await call.
func (f *Fake) Awaits() []AwaitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]AwaitCall(nil), f.awaits...)
}

// Pending returns the number of queued steps not yet consumed.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.plan)
}

// Message returns the current state of a live message.
func (f *Fake) Message(id string) (*messaging.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, false
	}
	return snapshot(m), true
}

// Visible returns the live, non-ephemeral messages in a channel.
func (f *Fake) Visible(channelID string) []*messaging.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*messaging.Message
	for _, m := range f.messages {
		if m.ChannelID == channelID && !m.Ephemeral {
			out = append(out, snapshot(m))
		}
	}
	return out
}

var _ messaging.Surface = (*Fake)(nil)
