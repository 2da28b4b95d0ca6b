package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/Opizontas-Studio/dc-license-bot/pkg/errors"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/catalog"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/editor"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/events"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/license"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/logger"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/messaging"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/publish"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/store"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/ui"
)

const component = "workflow"

// DefaultMaxThreadAge is the oldest thread a session is started for.
const DefaultMaxThreadAge = 5 * time.Minute

// ErrNoPrompt is returned when a step needs a message that is not there.
var ErrNoPrompt = errors.New("no prompt to wait on")

// Timeouts bound each waiting step.
type Timeouts struct {
	Guidance     time.Duration
	Selection    time.Duration
	Publish      time.Duration
	SetupPublish time.Duration
}

// DefaultTimeouts returns the product timeouts.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Guidance:     180 * time.Second,
		Selection:    120 * time.Second,
		Publish:      180 * time.Second,
		SetupPublish: 120 * time.Second,
	}
}

// Report summarises a finished session.
type Report struct {
	SessionID string
	Reason    string
	Path      []string
	Events    []string
	Duration  time.Duration
}

// Runner runs one session for a thread.
type Runner interface {
	Run(ctx context.Context, thread messaging.Thread) (*Report, error)
}

// Engine runs auto-publish sessions.
type Engine struct {
	surface   messaging.Surface
	store     store.Store
	catalog   catalog.Catalog
	publisher publish.Publisher
	editor    *editor.Editor
	bus       *events.EventBus
	spec      *Spec
	timeouts  Timeouts
	maxAge    time.Duration
	startedAt time.Time
	now       func() time.Time
	newID     func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeouts overrides the non-zero step timeouts.
func WithTimeouts(t Timeouts) Option {
	return func(e *Engine) {
		if t.Guidance > 0 {
			e.timeouts.Guidance = t.Guidance
		}
		if t.Selection > 0 {
			e.timeouts.Selection = t.Selection
		}
		if t.Publish > 0 {
			e.timeouts.Publish = t.Publish
		}
		if t.SetupPublish > 0 {
			e.timeouts.SetupPublish = t.SetupPublish
		}
	}
}

// WithMaxThreadAge sets the freshness bound. Zero disables the age check.
func WithMaxThreadAge(d time.Duration) Option {
	return func(e *Engine) { e.maxAge = d }
}

// WithStartTime sets the process start; older threads are ignored.
func WithStartTime(t time.Time) Option {
	return func(e *Engine) { e.startedAt = t }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithEventBus emits lifecycle events on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithEditor replaces the default draft editor.
func WithEditor(ed *editor.Editor) Option {
	return func(e *Engine) { e.editor = ed }
}

// WithSpec replaces the transition table.
func WithSpec(spec *Spec) Option {
	return func(e *Engine) { e.spec = spec }
}

// WithIDGenerator replaces the session id generator.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine creates an engine. It fails when the transition table is invalid.
func NewEngine(
	surface messaging.Surface, st store.Store, cat catalog.Catalog, pub publish.Publisher, opts ...Option,
) (*Engine, error) {
	e := &Engine{
		surface:   surface,
		store:     st,
		catalog:   cat,
		publisher: pub,
		spec:      DefaultSpec(),
		timeouts:  DefaultTimeouts(),
		maxAge:    DefaultMaxThreadAge,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.editor == nil {
		e.editor = editor.New(surface, editor.WithClock(e.now))
	}
	if e.startedAt.IsZero() {
		e.startedAt = e.now()
	}
	if r := Validate(e.spec); r.HasErrors() {
		return nil, pkgerrors.New(component, "NewEngine", fmt.Errorf("invalid workflow: %v", r.Errors))
	}
	return e, nil
}

// session is the state of one Run call.
type session struct {
	*Engine
	id     string
	thread messaging.Thread
	owner  string
	sm     *StateMachine
	state  FlowState

	templates       []license.Template
	templatesLoaded bool
	author          *license.Author

	// prompt is the visible thread message deleted on exit.
	prompt *messaging.Message
	// last is the most recent correlated event and acked whether it has
	// been answered.
	last   *messaging.Event
	acked  bool
	waited time.Duration
}

// Run drives one session for thread until it reaches Done. Critical errors
// end the session with a notice to the user and are returned; the report
// is always non-nil.
func (e *Engine) Run(ctx context.Context, thread messaging.Thread) (*Report, error) {
	s := &session{
		Engine: e,
		id:     e.newID(),
		thread: thread,
		owner:  thread.OwnerID,
		sm:     NewStateMachine(e.spec).WithTimeFunc(e.now),
		state:  Initial{},
	}
	ctx = logger.WithSessionID(ctx, s.id)
	ctx = logger.WithUserID(ctx, s.owner)
	ctx = logger.WithThreadID(ctx, thread.ID)
	ctx = logger.WithGuildID(ctx, thread.GuildID)

	logger.InfoContext(ctx, "Session started", "thread_name", thread.Name)
	s.emit(events.EventSessionStarted, nil)

	var runErr error
	for {
		if _, ok := s.state.(Done); ok {
			break
		}
		stepCtx := logger.WithFlowState(ctx, s.state.Name())
		tr, err := s.step(stepCtx)
		if err != nil {
			runErr = err
			logger.ErrorContext(stepCtx, "Session step failed", "error", err, "kind", pkgerrors.KindOf(err))
			s.notifyError(stepCtx, err)
			tr = done(EventError, ReasonError)
		}
		if err := s.apply(stepCtx, tr); err != nil {
			logger.ErrorContext(stepCtx, "Invalid transition", "error", err)
			if runErr == nil {
				runErr = err
			}
			s.state = Done{Reason: ReasonError}
		}
	}

	s.cleanup(ctx)
	return s.finish(ctx, runErr), runErr
}

func (s *session) step(ctx context.Context) (Transition, error) {
	switch st := s.state.(type) {
	case Initial:
		return s.initial(ctx)
	case AwaitingGuidance:
		return s.guidance(ctx)
	case EditingLicense:
		return s.editing(ctx, st)
	case AwaitingLicenseReselection:
		return s.reselection(ctx, st)
	case ConfirmingSave:
		return Transition{Event: EventContinue, Next: ConfirmingPublish{License: st.License, Setup: true, Event: st.Event}}, nil
	case ConfirmingPublish:
		return s.confirming(ctx, st)
	default:
		return Transition{}, fmt.Errorf("unhandled state %T", st)
	}
}

// apply checks tr against the transition table and moves the session.
func (s *session) apply(ctx context.Context, tr Transition) error {
	if tr.Next == nil {
		return fmt.Errorf("%w: no target for event %q", ErrInvalidEvent, tr.Event)
	}
	from := s.sm.CurrentState()
	if target, ok := s.sm.Target(tr.Event); ok && target != tr.Next.Name() {
		return fmt.Errorf("%w: event %q leads to %q, not %q", ErrInvalidEvent, tr.Event, target, tr.Next.Name())
	}
	if _, err := s.sm.ProcessEvent(tr.Event); err != nil {
		return err
	}
	s.state = tr.Next

	logger.Transition(ctx, from, tr.Next.Name(), tr.Event)
	s.emit(events.EventSessionStateChanged, &events.StateChangedData{From: from, To: tr.Next.Name(), Event: tr.Event})
	if tr.Event == EventTimeout {
		s.emit(events.EventWaitTimedOut, &events.WaitTimedOutData{State: from, Timeout: s.waited})
	}
	return nil
}

func (s *session) initial(ctx context.Context) (Transition, error) {
	if isStale(s.thread.CreatedAt, s.startedAt, s.now(), s.maxAge) {
		logger.DebugContext(ctx, "Ignoring stale thread", "created_at", s.thread.CreatedAt)
		return decideInitial(InitialFacts{Stale: true}), nil
	}

	pref, err := s.store.GetPreference(ctx, s.owner)
	switch {
	case errors.Is(err, store.ErrNotFound):
		pref = nil
	case err != nil:
		return Transition{}, pkgerrors.New(component, "GetPreference", err)
	}

	facts := InitialFacts{Preference: pref}
	if pref != nil && pref.AutoPublishEnabled && pref.DefaultLicense != nil {
		if facts.License, err = s.resolveDefault(ctx, pref); err != nil {
			return Transition{}, err
		}
	}

	tr := decideInitial(facts)
	switch tr.Event {
	case EventAutoPublish:
		if err := s.publish(ctx, facts.License); err != nil {
			return Transition{}, err
		}
	case EventAskConfirm:
		author, err := s.resolveAuthor(ctx)
		if err != nil {
			return Transition{}, err
		}
		msg, err := s.surface.Send(ctx, s.thread.ID, ui.ConfirmPublish(facts.License, author.Name()))
		if err != nil {
			return Transition{}, pkgerrors.New(component, "SendConfirmation", err)
		}
		s.prompt = msg
	}
	return tr, nil
}

// resolveDefault returns the publishable default license, or nil when the
// reference no longer resolves.
func (s *session) resolveDefault(ctx context.Context, pref *license.Preference) (*license.Record, error) {
	ref := pref.DefaultLicense
	switch ref.Kind {
	case license.RefUserOwned:
		rec, err := s.store.GetLicense(ctx, s.owner, ref.LicenseID)
		if errors.Is(err, store.ErrNotFound) {
			logger.WarnContext(ctx, "Default license not found", "ref", ref.String())
			return nil, nil
		}
		if err != nil {
			return nil, pkgerrors.New(component, "GetLicense", err)
		}
		return rec, nil
	case license.RefTemplate:
		t, ok := s.catalog.ByName(ctx, ref.TemplateName)
		if !ok {
			logger.WarnContext(ctx, "Default template not found", "ref", ref.String())
			return nil, nil
		}
		return t.AsRecord(s.owner, pref.BackupOverride), nil
	default:
		return nil, nil
	}
}

func (s *session) guidance(ctx context.Context) (Transition, error) {
	msg, err := s.surface.Send(ctx, s.thread.ID, ui.Guidance())
	if err != nil {
		return Transition{}, pkgerrors.New(component, "SendGuidance", err)
	}
	s.prompt = msg

	ev, err := s.wait(ctx, s.timeouts.Guidance, messaging.Filter{
		UserID:    s.owner,
		MessageID: msg.ID,
		CustomIDs: []string{ui.IDEnableSetup, ui.IDDisableSetup},
	})
	if err != nil {
		return Transition{}, err
	}

	tr, enable := decideGuidance(ev)
	if !enable {
		if tr.Event == EventDisable {
			if err := s.store.SetAutoPublish(ctx, s.owner, false); err != nil {
				return Transition{}, pkgerrors.New(component, "SetAutoPublish", err)
			}
			if err := s.respond(ctx, ev, messaging.RespondMessage, ui.Notice(ui.TextDisabled)); err != nil {
				return Transition{}, err
			}
		}
		return tr, nil
	}

	if err := s.store.SetAutoPublish(ctx, s.owner, true); err != nil {
		return Transition{}, pkgerrors.New(component, "SetAutoPublish", err)
	}
	if err := s.respond(ctx, ev, messaging.RespondMessage, ui.Enabled(s.loadTemplates(ctx))); err != nil {
		return Transition{}, err
	}
	s.dropPrompt(ctx)

	menu, err := s.surface.ResponseMessage(ctx, ev)
	if err != nil {
		return Transition{}, pkgerrors.New(component, "SelectionMenu", err).WithKind(pkgerrors.KindCorrelation)
	}
	sel, err := s.wait(ctx, s.timeouts.Selection, selectionFilter(s.owner, menu.ID))
	if err != nil {
		return Transition{}, err
	}
	return s.choose(ctx, sel, false)
}

func (s *session) reselection(ctx context.Context, st AwaitingLicenseReselection) (Transition, error) {
	if st.Event == nil {
		return Transition{}, pkgerrors.New(component, "Reselection", ErrNoPrompt).WithKind(pkgerrors.KindCorrelation)
	}
	msg, err := s.surface.Followup(ctx, st.Event, ui.Reselection(s.loadTemplates(ctx)))
	if err != nil {
		return Transition{}, pkgerrors.New(component, "SendReselection", err)
	}
	ev, err := s.wait(ctx, s.timeouts.Selection, selectionFilter(s.owner, msg.ID))
	if err != nil {
		return Transition{}, err
	}
	return s.choose(ctx, ev, true)
}

// choose decides on a selection menu answer.
func (s *session) choose(ctx context.Context, ev *messaging.Event, allowExit bool) (Transition, error) {
	owned := 0
	if ev != nil && ev.Value() == ui.ValueNewLicense {
		n, err := s.store.CountLicenses(ctx, s.owner)
		if err != nil {
			return Transition{}, pkgerrors.New(component, "CountLicenses", err)
		}
		owned = n
	}

	tr, err := decideSelection(ev, s.templates, owned, allowExit)
	if err != nil {
		return Transition{}, err
	}
	if tr.Event == EventExit {
		if err := s.respond(ctx, ev, messaging.RespondMessage, ui.Notice(ui.TextSetupExited)); err != nil {
			return Transition{}, err
		}
	}
	return tr, nil
}

func (s *session) editing(ctx context.Context, st EditingLicense) (Transition, error) {
	out, err := s.editor.Run(ctx, st.Draft, st.Event)
	if err != nil {
		if out.Event != nil {
			s.last, s.acked = out.Event, true
		}
		return Transition{}, err
	}
	if st.Event == s.last {
		s.acked = true
	}
	if out.Event != nil {
		s.last, s.acked = out.Event, true
	}
	if !out.Saved() {
		return decideEditorOutcome(out), nil
	}

	rec, saveErr := s.store.CreateLicense(ctx, s.owner, out.Draft)
	tr, err := decideSave(rec, saveErr, out.Event)
	if err != nil {
		return Transition{}, pkgerrors.New(component, "CreateLicense", err)
	}

	switch tr.Event {
	case EventSaved:
		ref := license.UserOwned(rec.ID)
		if err := s.store.SetDefaultLicense(ctx, s.owner, &ref, license.BackupInherit); err != nil {
			return Transition{}, pkgerrors.New(component, "SetDefaultLicense", err)
		}
		if err := s.store.SetAutoPublish(ctx, s.owner, true); err != nil {
			return Transition{}, pkgerrors.New(component, "SetAutoPublish", err)
		}
		logger.InfoContext(ctx, "License saved", "license_id", rec.ID, "license", rec.Name)
		s.emit(events.EventLicenseSaved, &events.LicenseSavedData{LicenseID: rec.ID, LicenseName: rec.Name})
	default:
		logger.InfoContext(ctx, "License not saved", "reason", saveErr)
		s.followup(ctx, out.Event, ui.ErrorNotice(pkgerrors.UserMessage(saveErr)))
	}
	return tr, nil
}

func (s *session) confirming(ctx context.Context, st ConfirmingPublish) (Transition, error) {
	var (
		filter  messaging.Filter
		timeout time.Duration
	)
	if st.Setup {
		if st.Event == nil {
			return Transition{}, pkgerrors.New(component, "ConfirmNewLicense", ErrNoPrompt).WithKind(pkgerrors.KindCorrelation)
		}
		msg, err := s.surface.Followup(ctx, st.Event, ui.ConfirmNewLicense(st.License.Name))
		if err != nil {
			return Transition{}, pkgerrors.New(component, "ConfirmNewLicense", err)
		}
		filter = messaging.Filter{
			UserID: s.owner, MessageID: msg.ID,
			CustomIDs: []string{ui.IDConfirmNewLicense, ui.IDSkipNewLicense},
		}
		timeout = s.timeouts.SetupPublish
	} else {
		if s.prompt == nil {
			return Transition{}, pkgerrors.New(component, "ConfirmPublish", ErrNoPrompt).WithKind(pkgerrors.KindCorrelation)
		}
		filter = messaging.Filter{
			UserID: s.owner, MessageID: s.prompt.ID,
			CustomIDs: []string{ui.IDConfirmAutoPublish, ui.IDCancelAutoPublish},
		}
		timeout = s.timeouts.Publish
	}

	ev, err := s.wait(ctx, timeout, filter)
	if err != nil {
		return Transition{}, err
	}

	tr := decideConfirm(ev)
	switch tr.Event {
	case EventConfirm:
		if err := s.publish(ctx, st.License); err != nil {
			return Transition{}, err
		}
		text := ui.TextPublished
		if st.Setup {
			text = ui.TextSetupPublished
		}
		err = s.conclude(ctx, ev, st.Setup, text)
	case EventDecline:
		text := ui.TextPublishCanceled
		if st.Setup {
			text = ui.TextSetupSkipped
		}
		err = s.conclude(ctx, ev, st.Setup, text)
	}
	return tr, err
}

// conclude answers the final confirmation. The setup prompt is updated in
// place; the thread prompt is removed and the answer sent privately.
func (s *session) conclude(ctx context.Context, ev *messaging.Event, setup bool, text string) error {
	if setup {
		return s.respond(ctx, ev, messaging.RespondUpdate, ui.Final(text))
	}
	s.dropPrompt(ctx)
	return s.respond(ctx, ev, messaging.RespondMessage, ui.Notice(text))
}

func (s *session) publish(ctx context.Context, rec *license.Record) error {
	author, err := s.resolveAuthor(ctx)
	if err != nil {
		return err
	}
	_, err = s.publisher.Publish(ctx, publish.Request{
		Thread:        s.thread,
		License:       rec,
		BackupAllowed: rec.Permissions.AllowBackup,
		Author:        *author,
		SessionID:     s.id,
	})
	return err
}

func (s *session) resolveAuthor(ctx context.Context) (*license.Author, error) {
	if s.author != nil {
		return s.author, nil
	}
	u, err := s.surface.Member(ctx, s.thread.GuildID, s.owner)
	if err != nil {
		return nil, pkgerrors.New(component, "Member", err)
	}
	s.author = &license.Author{UserID: u.ID, Username: u.Username, DisplayName: u.DisplayName}
	return s.author, nil
}

// loadTemplates fetches the catalog once per session.
func (s *session) loadTemplates(ctx context.Context) []license.Template {
	if !s.templatesLoaded {
		s.templates = s.catalog.All(ctx)
		s.templatesLoaded = true
	}
	return s.templates
}

func (s *session) wait(ctx context.Context, timeout time.Duration, filters ...messaging.Filter) (*messaging.Event, error) {
	s.waited = timeout
	ev, err := s.surface.Await(ctx, timeout, filters...)
	if err != nil {
		return nil, pkgerrors.New(component, "Await", err)
	}
	if ev != nil {
		s.last, s.acked = ev, false
	}
	return ev, nil
}

func (s *session) respond(ctx context.Context, ev *messaging.Event, kind messaging.ResponseKind, p messaging.Payload) error {
	if err := s.surface.Respond(ctx, ev, messaging.Response{Kind: kind, Payload: p}); err != nil {
		return pkgerrors.New(component, "Respond", err)
	}
	if ev == s.last {
		s.acked = true
	}
	return nil
}

// followup sends a best-effort follow-up message.
func (s *session) followup(ctx context.Context, ev *messaging.Event, p messaging.Payload) {
	if ev == nil {
		return
	}
	if _, err := s.surface.Followup(ctx, ev, p); err != nil {
		logger.WarnContext(ctx, "Failed to send follow-up", "error", err)
	}
}

// notifyError tells the user a step failed, chained off the latest event.
func (s *session) notifyError(ctx context.Context, err error) {
	if s.last == nil {
		return
	}
	p := ui.ErrorNotice(pkgerrors.UserMessage(err))
	if s.acked {
		s.followup(ctx, s.last, p)
		return
	}
	if rerr := s.surface.Respond(ctx, s.last, messaging.Response{Kind: messaging.RespondMessage, Payload: p}); rerr != nil {
		logger.WarnContext(ctx, "Failed to send error notice", "error", rerr)
		return
	}
	s.acked = true
}

// dropPrompt deletes the thread prompt now. Failures are ignored.
func (s *session) dropPrompt(ctx context.Context) {
	if s.prompt == nil {
		return
	}
	if err := s.surface.Delete(ctx, s.thread.ID, s.prompt.ID); err != nil {
		logger.DebugContext(ctx, "Failed to delete prompt", "message_id", s.prompt.ID, "error", err)
	}
	s.prompt = nil
}

func (s *session) cleanup(ctx context.Context) {
	s.dropPrompt(ctx)
}

func (s *session) finish(ctx context.Context, runErr error) *Report {
	wctx := s.sm.Context()
	reason := ReasonError
	if d, ok := s.state.(Done); ok {
		reason = d.Reason
	}
	r := &Report{
		SessionID: s.id,
		Reason:    reason,
		Path:      wctx.Path(),
		Events:    wctx.Events(),
		Duration:  s.now().Sub(wctx.StartedAt),
	}

	data := &events.SessionEndedData{
		Reason:      reason,
		Duration:    r.Duration,
		Transitions: wctx.TransitionCount(),
		Error:       runErr,
	}
	if runErr != nil {
		s.emit(events.EventSessionFailed, data)
	} else {
		s.emit(events.EventSessionCompleted, data)
	}
	logger.InfoContext(ctx, "Session finished", "reason", reason, "transitions", data.Transitions, "duration", r.Duration)
	return r
}

func (s *session) emit(t events.EventType, data events.EventData) {
	s.bus.Publish(&events.Event{
		Type:      t,
		SessionID: s.id,
		UserID:    s.owner,
		ThreadID:  s.thread.ID,
		Data:      data,
	})
}

func selectionFilter(user, messageID string) messaging.Filter {
	return messaging.Filter{UserID: user, MessageID: messageID, CustomIDs: []string{ui.IDLicenseSelection}}
}

var _ Runner = (*Engine)(nil)
