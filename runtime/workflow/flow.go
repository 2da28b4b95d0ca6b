package workflow

import (
	"errors"
	"time"

	pkgerrors "github.com/Opizontas-Studio/dc-license-bot/pkg/errors"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/editor"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/license"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/messaging"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/store"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/ui"
)

// FlowState is the current step of a session. Exactly one of the types
// below is active; each carries the data its handler needs.
type FlowState interface {
	Name() string
	flowState()
}

// Initial checks freshness and the owner's preference.
type Initial struct{}

// AwaitingGuidance asks a first-time user whether to enable auto-publish.
type AwaitingGuidance struct{}

// EditingLicense runs the draft editor as a reply to Event.
type EditingLicense struct {
	Draft *license.Draft
	Event *messaging.Event
}

// AwaitingLicenseReselection offers the starting points again. Event is the
// acknowledged interaction the menu is chained off.
type AwaitingLicenseReselection struct {
	Event *messaging.Event
}

// ConfirmingSave carries a freshly saved license into the publish step.
type ConfirmingSave struct {
	License *license.Record
	Event   *messaging.Event
}

// ConfirmingPublish asks whether License should be published. Setup marks
// the first-time path, where the prompt is a follow-up to Event; otherwise
// the prompt is the message posted into the thread.
type ConfirmingPublish struct {
	License *license.Record
	Setup   bool
	Event   *messaging.Event
}

// Done ends the session.
type Done struct {
	Reason string
}

func (Initial) Name() string                    { return StateInitial }
func (AwaitingGuidance) Name() string           { return StateAwaitingGuidance }
func (EditingLicense) Name() string             { return StateEditingLicense }
func (AwaitingLicenseReselection) Name() string { return StateAwaitingLicenseReselection }
func (ConfirmingSave) Name() string             { return StateConfirmingSave }
func (ConfirmingPublish) Name() string          { return StateConfirmingPublish }
func (Done) Name() string                       { return StateDone }

func (Initial) flowState()                    {}
func (AwaitingGuidance) flowState()           {}
func (EditingLicense) flowState()             {}
func (AwaitingLicenseReselection) flowState() {}
func (ConfirmingSave) flowState()             {}
func (ConfirmingPublish) flowState()          {}
func (Done) flowState()                       {}

// Reasons a session ended.
const (
	ReasonStale         = "stale"
	ReasonDisabled      = "auto_publish_disabled"
	ReasonNoDefault     = "no_default_license"
	ReasonAutoPublished = "auto_published"
	ReasonPublished     = "published"
	ReasonDeclined      = "declined"
	ReasonOptedOut      = "opted_out"
	ReasonExited        = "exited"
	ReasonLimitReached  = "license_limit"
	ReasonTimeout       = "timeout"
	ReasonError         = "error"
)

// Transition is a decision: the named event and the state it leads to.
type Transition struct {
	Event string
	Next  FlowState
}

func done(event, reason string) Transition {
	return Transition{Event: event, Next: Done{Reason: reason}}
}

// ErrUnknownSelection is returned when a menu value names no starting point.
var ErrUnknownSelection = errors.New("unknown license selection")

// InitialFacts is what the Initial state decides on.
type InitialFacts struct {
	Stale bool
	// Preference is nil when the owner has no preference row.
	Preference *license.Preference
	// License is the resolved default, nil when missing or unresolvable.
	License *license.Record
}

func decideInitial(f InitialFacts) Transition {
	switch {
	case f.Stale:
		return done(EventStale, ReasonStale)
	case f.Preference == nil:
		return Transition{Event: EventNoPreference, Next: AwaitingGuidance{}}
	case !f.Preference.AutoPublishEnabled:
		return done(EventDisabled, ReasonDisabled)
	case f.License == nil:
		return done(EventNoDefault, ReasonNoDefault)
	case f.Preference.SkipConfirmation:
		return done(EventAutoPublish, ReasonAutoPublished)
	default:
		return Transition{Event: EventAskConfirm, Next: ConfirmingPublish{License: f.License}}
	}
}

// decideGuidance handles the enable/disable answer. enable reports that the
// session stays in AwaitingGuidance to wait for the license selection.
func decideGuidance(ev *messaging.Event) (tr Transition, enable bool) {
	switch {
	case ev == nil:
		return done(EventTimeout, ReasonTimeout), false
	case ev.CustomID == ui.IDEnableSetup:
		return Transition{}, true
	default:
		return done(EventDisable, ReasonOptedOut), false
	}
}

// decideSelection turns a menu choice into a draft. owned is the number of
// licenses the user owns, used to name a blank draft.
func decideSelection(ev *messaging.Event, templates []license.Template, owned int, allowExit bool) (Transition, error) {
	if ev == nil {
		return done(EventTimeout, ReasonTimeout), nil
	}
	value := ev.Value()
	switch {
	case allowExit && value == ui.ValueExitSetup:
		return done(EventExit, ReasonExited), nil
	case value == ui.ValueNewLicense:
		draft := license.NewDraft(license.DefaultDraftName(owned))
		return Transition{Event: EventSelect, Next: EditingLicense{Draft: draft, Event: ev}}, nil
	}
	if name, ok := ui.ParseTemplateValue(value); ok {
		for _, t := range templates {
			if t.Name == name {
				return Transition{Event: EventSelect, Next: EditingLicense{Draft: license.DraftFromTemplate(t), Event: ev}}, nil
			}
		}
	}
	return Transition{}, pkgerrors.Validation(component, "Select", ui.TextTemplateMissing, ErrUnknownSelection)
}

// decideEditorOutcome handles an editor session that did not save.
func decideEditorOutcome(out editor.Outcome) Transition {
	if out.TimedOut() {
		return done(EventTimeout, ReasonTimeout)
	}
	return Transition{Event: EventCancelled, Next: AwaitingLicenseReselection{Event: out.Event}}
}

// decideSave handles the result of persisting a saved draft. Validation
// failures are recovered; anything else is returned as critical.
func decideSave(rec *license.Record, err error, ev *messaging.Event) (Transition, error) {
	switch {
	case err == nil:
		return Transition{Event: EventSaved, Next: ConfirmingSave{License: rec, Event: ev}}, nil
	case errors.Is(err, store.ErrLicenseLimit):
		return done(EventLimitReached, ReasonLimitReached), nil
	case errors.Is(err, store.ErrDuplicateName):
		return Transition{Event: EventDuplicateName, Next: AwaitingLicenseReselection{Event: ev}}, nil
	default:
		return Transition{}, err
	}
}

// decideConfirm handles the publish confirmation answer.
func decideConfirm(ev *messaging.Event) Transition {
	switch {
	case ev == nil:
		return done(EventTimeout, ReasonTimeout)
	case ev.CustomID == ui.IDConfirmAutoPublish || ev.CustomID == ui.IDConfirmNewLicense:
		return done(EventConfirm, ReasonPublished)
	default:
		return done(EventDecline, ReasonDeclined)
	}
}

// isStale reports whether a thread is too old to start a session: created
// before the process started or more than maxAge ago. An unknown creation
// time is treated as fresh.
func isStale(created, started, now time.Time, maxAge time.Duration) bool {
	if created.IsZero() {
		return false
	}
	if !started.IsZero() && created.Before(started) {
		return true
	}
	return maxAge > 0 && now.Sub(created) > maxAge
}
