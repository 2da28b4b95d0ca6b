// Package editor runs the interactive license draft editor: a nested
// request/response loop in which one user toggles permissions, edits the
// name and restrictions through forms, and finally saves or cancels.
package editor

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/Opizontas-Studio/dc-license-bot/pkg/errors"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/license"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/logger"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/messaging"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/ui"
)

const component = "editor"

// Default timeouts.
const (
	DefaultIdleTimeout = 600 * time.Second
	DefaultFormTimeout = 300 * time.Second
)

// ErrNoEvent is returned when Run is called without an event to answer.
var ErrNoEvent = errors.New("editor requires an interaction event")

// Outcome is the result of an editor session.
type Outcome struct {
	// Draft is the saved draft, nil when the user cancelled or the editor timed out.
	Draft *license.Draft
	// Event is the last acknowledged event, usable for follow-ups. It is nil
	// only when the editor timed out.
	Event *messaging.Event
}

// Saved reports whether the user saved the draft.
func (o Outcome) Saved() bool {
	return o.Draft != nil
}

// TimedOut reports whether the session ended without a usable event.
func (o Outcome) TimedOut() bool {
	return o.Event == nil
}

// Editor drives draft editing sessions over a messaging surface.
type Editor struct {
	surface messaging.Interactions
	idle    time.Duration
	form    time.Duration
	now     func() time.Time
}

// Option configures an Editor.
type Option func(*Editor)

// WithIdleTimeout bounds how long the editor waits without any activity.
func WithIdleTimeout(d time.Duration) Option {
	return func(e *Editor) {
		if d > 0 {
			e.idle = d
		}
	}
}

// WithFormTimeout bounds how long an opened form is waited for.
func WithFormTimeout(d time.Duration) Option {
	return func(e *Editor) {
		if d > 0 {
			e.form = d
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Editor) { e.now = now }
}

// New creates an editor.
func New(surface messaging.Interactions, opts ...Option) *Editor {
	e := &Editor{
		surface: surface,
		idle:    DefaultIdleTimeout,
		form:    DefaultFormTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// session is the state of one Run call.
type session struct {
	*Editor
	draft       *license.Draft
	user        string
	messageID   string
	pendingForm string
	last        time.Time
	// answered is the latest event this session acknowledged.
	answered *messaging.Event
}

// Run edits a copy of initial. The editor is shown as a reply to first and
// every later event must come from first's user on that reply. On error the
// Outcome still carries the last acknowledged event, nil if first was never
// answered.
func (e *Editor) Run(ctx context.Context, initial *license.Draft, first *messaging.Event) (Outcome, error) {
	if first == nil {
		return Outcome{}, pkgerrors.New(component, "Run", ErrNoEvent).WithKind(pkgerrors.KindCorrelation)
	}
	if initial == nil {
		initial = license.NewDraft(license.DefaultDraftName(0))
	}

	s := &session{Editor: e, draft: initial.Clone(), user: first.UserID}
	if err := e.surface.Respond(ctx, first, messaging.Response{
		Kind:    messaging.RespondMessage,
		Payload: ui.Editor(s.draft, ""),
	}); err != nil {
		return Outcome{}, pkgerrors.New(component, "Open", err)
	}
	s.answered = first
	msg, err := e.surface.ResponseMessage(ctx, first)
	if err != nil {
		return Outcome{Event: first}, pkgerrors.New(component, "Open", err).WithKind(pkgerrors.KindCorrelation)
	}
	s.messageID = msg.ID
	s.last = e.now()

	logger.DebugContext(ctx, "Editor opened", "message_id", msg.ID, "draft", s.draft.Name)
	out, err := s.loop(ctx)
	if err != nil {
		return Outcome{Event: s.answered}, err
	}
	return out, nil
}

func (s *session) loop(ctx context.Context) (Outcome, error) {
	for {
		remaining := s.idle - s.now().Sub(s.last)
		if remaining <= 0 {
			return s.timedOut(ctx), nil
		}

		filters := []messaging.Filter{{
			UserID:    s.user,
			MessageID: s.messageID,
			CustomIDs: ui.EditorButtons,
		}}
		wait := remaining
		if s.pendingForm != "" {
			filters = append(filters, messaging.Filter{
				UserID:    s.user,
				MessageID: s.messageID,
				Form:      true,
				CustomIDs: []string{s.pendingForm},
			})
			wait = min(wait, s.form)
		}

		ev, err := s.surface.Await(ctx, wait, filters...)
		if err != nil {
			return Outcome{}, err
		}
		if ev == nil {
			if s.pendingForm != "" {
				logger.DebugContext(ctx, "Editor form expired", "form", s.pendingForm)
				s.pendingForm = ""
				continue
			}
			return s.timedOut(ctx), nil
		}
		s.last = s.now()

		if ev.Kind == messaging.EventFormSubmit {
			if err := s.submitForm(ctx, ev); err != nil {
				return Outcome{}, err
			}
			continue
		}

		if s.pendingForm != "" {
			logger.DebugContext(ctx, "Editor form superseded", "form", s.pendingForm, "by", ev.CustomID)
			s.pendingForm = ""
		}

		out, done, err := s.handleComponent(ctx, ev)
		if err != nil || done {
			return out, err
		}
	}
}

func (s *session) handleComponent(ctx context.Context, ev *messaging.Event) (Outcome, bool, error) {
	switch ev.CustomID {
	case ui.IDToggleRedistribution:
		s.draft.ToggleRedistribution()
	case ui.IDToggleModification:
		s.draft.ToggleModification()
	case ui.IDToggleBackup:
		s.draft.ToggleBackup()
	case ui.IDEditName:
		return Outcome{}, false, s.openForm(ctx, ev, ui.NameForm(s.draft.Name))
	case ui.IDEditRestrictions:
		return Outcome{}, false, s.openForm(ctx, ev, ui.RestrictionsForm(s.draft.Note()))
	case ui.IDSaveLicense:
		if err := s.update(ctx, ev, ui.Final(ui.TextSaved)); err != nil {
			return Outcome{}, true, err
		}
		logger.DebugContext(ctx, "Editor saved", "draft", s.draft.Name)
		return Outcome{Draft: s.draft.Clone(), Event: ev}, true, nil
	case ui.IDCancelLicense:
		if err := s.update(ctx, ev, ui.Final(ui.TextEditorClosed)); err != nil {
			return Outcome{}, true, err
		}
		logger.DebugContext(ctx, "Editor cancelled")
		return Outcome{Event: ev}, true, nil
	}
	return Outcome{}, false, s.update(ctx, ev, ui.Editor(s.draft, ""))
}

func (s *session) openForm(ctx context.Context, ev *messaging.Event, form *messaging.Form) error {
	if err := s.surface.Respond(ctx, ev, messaging.Response{Kind: messaging.RespondForm, Form: form}); err != nil {
		return pkgerrors.New(component, "OpenForm", err)
	}
	s.pendingForm = form.CustomID
	return nil
}

func (s *session) submitForm(ctx context.Context, ev *messaging.Event) error {
	s.pendingForm = ""

	var problem string
	switch ev.CustomID {
	case ui.FormEditName:
		if err := s.draft.SetName(ev.Fields[ui.InputName]); err != nil {
			problem = err.Error()
		}
	case ui.FormEditRestrictions:
		if err := s.draft.SetNote(ev.Fields[ui.InputRestrictions]); err != nil {
			problem = err.Error()
		}
	}
	return s.update(ctx, ev, ui.Editor(s.draft, problem))
}

func (s *session) update(ctx context.Context, ev *messaging.Event, p messaging.Payload) error {
	if ev.MessageID == "" {
		ev.MessageID = s.messageID
	}
	if err := s.surface.Respond(ctx, ev, messaging.Response{Kind: messaging.RespondUpdate, Payload: p}); err != nil {
		return pkgerrors.New(component, "Update", err)
	}
	s.answered = ev
	return nil
}

func (s *session) timedOut(ctx context.Context) Outcome {
	logger.DebugContext(ctx, "Editor timed out", "idle", s.idle)
	return Outcome{}
}
