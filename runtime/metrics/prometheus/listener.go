package prometheus

import (
	"github.com/Opizontas-Studio/dc-license-bot/runtime/events"
)

// Status constants for metric labels.
const (
	statusSuccess = "success"
	statusError   = "error"
	statusSent    = "sent"
	statusFailed  = "failed"
)

// MetricsListener records workflow events as Prometheus metrics.
// Register Handle with an EventBus using SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes an event and records relevant metrics.
func (l *MetricsListener) Handle(event *events.Event) {
	//exhaustive:ignore
	switch event.Type {
	case events.EventSessionStarted:
		RecordSessionStart()
	case events.EventSessionCompleted:
		l.handleSessionEnded(event, statusSuccess)
	case events.EventSessionFailed:
		l.handleSessionEnded(event, statusError)
	case events.EventSessionStateChanged:
		if data, ok := event.Data.(*events.StateChangedData); ok {
			RecordTransition(data.From, data.To, data.Event)
		}
	case events.EventWaitTimedOut:
		if data, ok := event.Data.(*events.WaitTimedOutData); ok {
			RecordWaitTimeout(data.State)
		}
	case events.EventTriggerRejected:
		if data, ok := event.Data.(*events.TriggerRejectedData); ok {
			RecordTriggerRejected(data.Reason)
		}
	case events.EventLicensePublished:
		if data, ok := event.Data.(*events.LicensePublishedData); ok {
			RecordPublish(data.UserOwned, data.Superseded, data.Duration.Seconds())
		}
	case events.EventLicenseSaved:
		RecordLicenseSaved()
	case events.EventNotificationSent:
		RecordNotification(statusSent)
	case events.EventNotificationFailed:
		RecordNotification(statusFailed)
	default:
		// Ignore events that don't have metrics
	}
}

func (l *MetricsListener) handleSessionEnded(event *events.Event, status string) {
	data, ok := event.Data.(*events.SessionEndedData)
	if !ok {
		return
	}
	RecordSessionEnd(data.Reason, status, data.Duration.Seconds())
}

// Listener returns an events.Listener function that can be registered with an EventBus.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}
