// Package workflow runs the auto-publish conversation started by a new
// forum thread.
//
// The conversation is a small state machine. Its states and the named events
// that move between them are declared once in a Spec (see DefaultSpec); the
// StateMachine validates every step against that table and records the
// history in a Context. The Engine drives a session: pure deciders pick the
// next FlowState from store data or the correlated interaction event, and
// one effectful handler per state renders prompts, waits and writes.
package workflow

import "time"

// State names.
const (
	StateInitial                    = "Initial"
	StateAwaitingGuidance           = "AwaitingGuidance"
	StateEditingLicense             = "EditingLicense"
	StateAwaitingLicenseReselection = "AwaitingLicenseReselection"
	StateConfirmingSave             = "ConfirmingSave"
	StateConfirmingPublish          = "ConfirmingPublish"
	StateDone                       = "Done"
)

// Event names.
const (
	EventStale         = "Stale"
	EventNoPreference  = "NoPreference"
	EventDisabled      = "Disabled"
	EventNoDefault     = "NoDefault"
	EventAutoPublish   = "AutoPublish"
	EventAskConfirm    = "AskConfirm"
	EventDisable       = "Disable"
	EventSelect        = "Select"
	EventSaved         = "Saved"
	EventCancelled     = "Cancelled"
	EventDuplicateName = "DuplicateName"
	EventLimitReached  = "LimitReached"
	EventExit          = "Exit"
	EventContinue      = "Continue"
	EventConfirm       = "Confirm"
	EventDecline       = "Decline"
	EventTimeout       = "Timeout"
	EventError         = "Error"
)

// Spec is the transition table of a workflow.
type Spec struct {
	Entry  string            `json:"entry" yaml:"entry"`
	States map[string]*State `json:"states" yaml:"states"`
}

// State defines a single state and its outgoing transitions. A state with
// no transitions is terminal.
type State struct {
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	OnEvent     map[string]string `json:"on_event,omitempty" yaml:"on_event,omitempty"`
}

// Context holds the runtime state of a workflow execution.
type Context struct {
	CurrentState string            `json:"current_state"`
	History      []StateTransition `json:"history"`
	StartedAt    time.Time         `json:"started_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// StateTransition records a single state transition.
type StateTransition struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultSpec returns the auto-publish transition table. Every waiting
// state may time out and every non-terminal state may fail; both end the
// session.
func DefaultSpec() *Spec {
	always := func(on map[string]string) map[string]string {
		on[EventError] = StateDone
		return on
	}
	return &Spec{
		Entry: StateInitial,
		States: map[string]*State{
			StateInitial: {
				Description: "check freshness and the owner's preference",
				OnEvent: always(map[string]string{
					EventStale:        StateDone,
					EventNoPreference: StateAwaitingGuidance,
					EventDisabled:     StateDone,
					EventNoDefault:    StateDone,
					EventAutoPublish:  StateDone,
					EventAskConfirm:   StateConfirmingPublish,
				}),
			},
			StateAwaitingGuidance: {
				Description: "ask a first-time user to enable auto-publish and pick a starting point",
				OnEvent: always(map[string]string{
					EventDisable: StateDone,
					EventSelect:  StateEditingLicense,
					EventTimeout: StateDone,
				}),
			},
			StateEditingLicense: {
				Description: "run the draft editor and save the result",
				OnEvent: always(map[string]string{
					EventSaved:         StateConfirmingSave,
					EventCancelled:     StateAwaitingLicenseReselection,
					EventDuplicateName: StateAwaitingLicenseReselection,
					EventLimitReached:  StateDone,
					EventTimeout:       StateDone,
				}),
			},
			StateAwaitingLicenseReselection: {
				Description: "offer the starting points again after a cancelled edit",
				OnEvent: always(map[string]string{
					EventSelect:  StateEditingLicense,
					EventExit:    StateDone,
					EventTimeout: StateDone,
				}),
			},
			StateConfirmingSave: {
				Description: "hand the saved license to the publish confirmation",
				OnEvent: always(map[string]string{
					EventContinue: StateConfirmingPublish,
				}),
			},
			StateConfirmingPublish: {
				Description: "ask whether to publish into the thread",
				OnEvent: always(map[string]string{
					EventConfirm: StateDone,
					EventDecline: StateDone,
					EventTimeout: StateDone,
				}),
			},
			StateDone: {Description: "clean up and end the session"},
		},
	}
}
