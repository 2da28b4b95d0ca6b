package events

import (
	"time"
)

// EventType identifies the type of event emitted by the bot.
type EventType string

const (
	// EventSessionStarted marks admission of a trigger and the start of a session.
	EventSessionStarted EventType = "session.started"
	// EventSessionStateChanged marks a workflow state transition.
	EventSessionStateChanged EventType = "session.state_changed"
	// EventSessionCompleted marks a session reaching Done normally.
	EventSessionCompleted EventType = "session.completed"
	// EventSessionFailed marks a session aborted by a critical error.
	EventSessionFailed EventType = "session.failed"

	// EventTriggerRejected marks a trigger dropped by the entry gate.
	EventTriggerRejected EventType = "trigger.rejected"

	// EventWaitTimedOut marks a wait that ended without a correlated event.
	EventWaitTimedOut EventType = "wait.timed_out"

	// EventLicensePublished marks a successful announcement.
	EventLicensePublished EventType = "license.published"
	// EventLicenseSaved marks a new license record.
	EventLicenseSaved EventType = "license.saved"

	// EventNotificationSent marks a delivered backup-change notification.
	EventNotificationSent EventType = "notification.sent"
	// EventNotificationFailed marks a failed backup-change notification.
	EventNotificationFailed EventType = "notification.failed"
)

// EventData is a marker interface for event payloads.
type EventData interface {
	eventData()
}

// Event represents a workflow lifecycle event.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	UserID    string
	ThreadID  string
	Data      EventData
}

type baseEventData struct{}

func (baseEventData) eventData() {}

// StateChangedData contains data for state transition events.
type StateChangedData struct {
	baseEventData
	From  string
	To    string
	Event string
}

// SessionEndedData contains data for completed and failed sessions.
type SessionEndedData struct {
	baseEventData
	Reason      string
	Duration    time.Duration
	Transitions int
	Error       error
}

// TriggerRejectedData explains why a trigger did not start a session.
type TriggerRejectedData struct {
	baseEventData
	Reason string
}

// Trigger rejection reasons.
const (
	RejectDuplicate  = "duplicate"
	RejectNotAllowed = "forum_not_allowed"
	RejectNoOwner    = "no_owner"
)

// WaitTimedOutData names the state whose wait expired.
type WaitTimedOutData struct {
	baseEventData
	State   string
	Timeout time.Duration
}

// LicensePublishedData contains data for publish events.
type LicensePublishedData struct {
	baseEventData
	LicenseName   string
	UserOwned     bool
	BackupAllowed bool
	BackupChanged bool
	Superseded    bool
	Duration      time.Duration
}

// LicenseSavedData contains data for license creation events.
type LicenseSavedData struct {
	baseEventData
	LicenseID   int64
	LicenseName string
}

// NotificationData contains data for notification events.
type NotificationData struct {
	baseEventData
	BackupAllowed bool
	Error         error
}
