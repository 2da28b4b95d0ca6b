package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Opizontas-Studio/dc-license-bot/runtime/events"
)

// Span names.
const (
	SpanSession    = "licensebot.session"
	SpanTransition = "licensebot.workflow.transition"
	SpanPublish    = "licensebot.publish"
	SpanNotify     = "licensebot.notify"
	SpanRejected   = "licensebot.trigger.rejected"
)

// sessionState tracks the root span for a session.
type sessionState struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // needed to parent child spans
}

// pendingEnd buffers a session end that arrived before the session start.
// The EventBus dispatches each Publish() in a separate goroutine, so end
// events can race ahead of start events.
type pendingEnd struct {
	errMsg string // empty means success
	at     time.Time
	attrs  []attribute.KeyValue
}

// OTelEventListener converts workflow events into OTel spans in real time.
// Each session gets a root span; transitions, publications and notifications
// become child spans, timeouts and saved licenses become span events.
// It is safe for concurrent use and tolerates out-of-order event delivery.
type OTelEventListener struct {
	tracer trace.Tracer

	mu          sync.Mutex
	sessions    map[string]*sessionState
	pendingEnds map[string]*pendingEnd
}

// NewOTelEventListener creates a listener that creates OTel spans from workflow events.
func NewOTelEventListener(tracer trace.Tracer) *OTelEventListener {
	return &OTelEventListener{
		tracer:      tracer,
		sessions:    make(map[string]*sessionState),
		pendingEnds: make(map[string]*pendingEnd),
	}
}

// OnEvent handles a single event. It can be passed to EventBus.SubscribeAll.
func (l *OTelEventListener) OnEvent(evt *events.Event) {
	//nolint:exhaustive // Only handling span-producing events
	switch evt.Type {
	case events.EventSessionStarted:
		l.startSession(evt)
	case events.EventSessionCompleted:
		l.endSession(evt, "")
	case events.EventSessionFailed:
		msg := "session failed"
		if data, ok := asPtr[events.SessionEndedData](evt.Data); ok && data.Error != nil {
			msg = data.Error.Error()
		}
		l.endSession(evt, msg)
	case events.EventSessionStateChanged:
		l.handleTransition(evt)
	case events.EventWaitTimedOut:
		l.handleTimeout(evt)
	case events.EventLicenseSaved:
		l.handleSaved(evt)
	case events.EventLicensePublished:
		l.handlePublished(evt)
	case events.EventNotificationSent, events.EventNotificationFailed:
		l.handleNotification(evt)
	case events.EventTriggerRejected:
		l.handleRejected(evt)
	}
}

// Active returns the number of open session spans.
func (l *OTelEventListener) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

func (l *OTelEventListener) startSession(evt *events.Event) {
	ctx, span := l.tracer.Start(context.Background(), SpanSession,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithTimestamp(evt.Timestamp),
		trace.WithAttributes(
			attribute.String("session.id", evt.SessionID),
			attribute.String("user.id", evt.UserID),
			attribute.String("thread.id", evt.ThreadID),
		),
	)

	l.mu.Lock()
	pe, havePending := l.pendingEnds[evt.SessionID]
	if havePending {
		delete(l.pendingEnds, evt.SessionID)
	} else {
		l.sessions[evt.SessionID] = &sessionState{span: span, ctx: ctx}
	}
	l.mu.Unlock()

	if havePending {
		finish(span, pe)
	}
}

func (l *OTelEventListener) endSession(evt *events.Event, errMsg string) {
	pe := &pendingEnd{errMsg: errMsg, at: evt.Timestamp}
	if data, ok := asPtr[events.SessionEndedData](evt.Data); ok {
		pe.attrs = []attribute.KeyValue{
			attribute.String("session.end_reason", data.Reason),
			attribute.Int("session.transitions", data.Transitions),
			attribute.Int64("session.duration_ms", data.Duration.Milliseconds()),
		}
	}

	l.mu.Lock()
	ss, ok := l.sessions[evt.SessionID]
	if ok {
		delete(l.sessions, evt.SessionID)
	} else {
		l.pendingEnds[evt.SessionID] = pe
	}
	l.mu.Unlock()

	if ok {
		finish(ss.span, pe)
	}
}

func finish(span trace.Span, pe *pendingEnd) {
	span.SetAttributes(pe.attrs...)
	if pe.errMsg != "" {
		span.SetStatus(codes.Error, pe.errMsg)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	var opts []trace.SpanEndOption
	if !pe.at.IsZero() {
		opts = append(opts, trace.WithTimestamp(pe.at))
	}
	span.End(opts...)
}

// sessionCtx returns the context for the session (to parent child spans).
// Falls back to context.Background() if the session is unknown.
func (l *OTelEventListener) sessionCtx(sessionID string) context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ss, ok := l.sessions[sessionID]; ok {
		return ss.ctx
	}
	return context.Background()
}

// addSessionEvent records a span event on the session root, if it is open.
func (l *OTelEventListener) addSessionEvent(evt *events.Event, name string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ss, ok := l.sessions[evt.SessionID]; ok {
		ss.span.AddEvent(name, trace.WithTimestamp(evt.Timestamp), trace.WithAttributes(attrs...))
	}
}

// instant records a zero-length child span at the event time.
func (l *OTelEventListener) instant(evt *events.Event, name string, kind trace.SpanKind, errMsg string, attrs ...attribute.KeyValue) {
	l.interval(evt, name, kind, evt.Timestamp, errMsg, attrs...)
}

// interval records a child span from start to the event time.
func (l *OTelEventListener) interval(
	evt *events.Event, name string, kind trace.SpanKind, start time.Time, errMsg string, attrs ...attribute.KeyValue,
) {
	_, span := l.tracer.Start(l.sessionCtx(evt.SessionID), name,
		trace.WithSpanKind(kind),
		trace.WithTimestamp(start),
		trace.WithAttributes(attrs...),
	)
	if errMsg != "" {
		span.SetStatus(codes.Error, errMsg)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(evt.Timestamp))
}

// asPtr extracts event data as a pointer, handling both value and pointer types.
func asPtr[T any](data any) (*T, bool) {
	if p, ok := data.(*T); ok {
		return p, true
	}
	if v, ok := data.(T); ok {
		return &v, true
	}
	return nil, false
}

func (l *OTelEventListener) handleTransition(evt *events.Event) {
	data, ok := asPtr[events.StateChangedData](evt.Data)
	if !ok {
		return
	}
	l.instant(evt, SpanTransition, trace.SpanKindInternal, "",
		attribute.String("workflow.from_state", data.From),
		attribute.String("workflow.to_state", data.To),
		attribute.String("workflow.event", data.Event),
	)
}

func (l *OTelEventListener) handleTimeout(evt *events.Event) {
	data, ok := asPtr[events.WaitTimedOutData](evt.Data)
	if !ok {
		return
	}
	l.addSessionEvent(evt, "wait.timed_out",
		attribute.String("workflow.state", data.State),
		attribute.Int64("wait.timeout_ms", data.Timeout.Milliseconds()),
	)
}

func (l *OTelEventListener) handleSaved(evt *events.Event) {
	data, ok := asPtr[events.LicenseSavedData](evt.Data)
	if !ok {
		return
	}
	l.addSessionEvent(evt, "license.saved",
		attribute.Int64("license.id", data.LicenseID),
		attribute.String("license.name", data.LicenseName),
	)
}

func (l *OTelEventListener) handlePublished(evt *events.Event) {
	data, ok := asPtr[events.LicensePublishedData](evt.Data)
	if !ok {
		return
	}
	l.interval(evt, SpanPublish, trace.SpanKindClient, evt.Timestamp.Add(-data.Duration), "",
		attribute.String("license.name", data.LicenseName),
		attribute.Bool("license.user_owned", data.UserOwned),
		attribute.Bool("publish.backup_allowed", data.BackupAllowed),
		attribute.Bool("publish.backup_changed", data.BackupChanged),
		attribute.Bool("publish.superseded", data.Superseded),
		attribute.String("thread.id", evt.ThreadID),
	)
}

func (l *OTelEventListener) handleNotification(evt *events.Event) {
	data, ok := asPtr[events.NotificationData](evt.Data)
	if !ok {
		return
	}
	errMsg := ""
	if data.Error != nil {
		errMsg = data.Error.Error()
	} else if evt.Type == events.EventNotificationFailed {
		errMsg = "notification failed"
	}
	l.instant(evt, SpanNotify, trace.SpanKindClient, errMsg,
		attribute.Bool("publish.backup_allowed", data.BackupAllowed),
		attribute.String("thread.id", evt.ThreadID),
	)
}

func (l *OTelEventListener) handleRejected(evt *events.Event) {
	data, ok := asPtr[events.TriggerRejectedData](evt.Data)
	if !ok {
		return
	}
	l.instant(evt, SpanRejected, trace.SpanKindInternal, "",
		attribute.String("trigger.reason", data.Reason),
		attribute.String("thread.id", evt.ThreadID),
	)
}
