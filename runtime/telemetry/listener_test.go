package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Opizontas-Studio/dc-license-bot/runtime/events"
)

// newTestListener returns a listener, in-memory exporter, and TracerProvider for tests.
func newTestListener(t *testing.T) (*OTelEventListener, *tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	return NewOTelEventListener(Tracer(tp)), exp, tp
}

// flushAndGetSpans forces span export and returns spans. Spans are read
// before Shutdown because InMemoryExporter.Shutdown resets the buffer.
func flushAndGetSpans(t *testing.T, tp *sdktrace.TracerProvider, exp *tracetest.InMemoryExporter) tracetest.SpanStubs {
	t.Helper()
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	spans := exp.GetSpans()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	return spans
}

func findSpan(t *testing.T, spans tracetest.SpanStubs, name string) tracetest.SpanStub {
	t.Helper()
	for _, s := range spans {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("span %q not found in %d spans", name, len(spans))
	return tracetest.SpanStub{}
}

func attrs(span tracetest.SpanStub) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(span.Attributes))
	for _, a := range span.Attributes {
		m[string(a.Key)] = a.Value
	}
	return m
}

func started(id string, at time.Time) *events.Event {
	return &events.Event{
		Type: events.EventSessionStarted, Timestamp: at,
		SessionID: id, UserID: "u1", ThreadID: "t1",
	}
}

func completed(id string, at time.Time) *events.Event {
	return &events.Event{
		Type: events.EventSessionCompleted, Timestamp: at, SessionID: id,
		Data: &events.SessionEndedData{Reason: "published", Transitions: 4, Duration: time.Second},
	}
}

func TestOTelEventListener_SessionLifecycle(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.OnEvent(started("sess-1", now))
	if listener.Active() != 1 {
		t.Fatalf("expected 1 active session, got %d", listener.Active())
	}
	listener.OnEvent(completed("sess-1", now.Add(time.Second)))
	if listener.Active() != 0 {
		t.Fatalf("expected no active sessions, got %d", listener.Active())
	}

	spans := flushAndGetSpans(t, tp, exp)
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name != SpanSession {
		t.Errorf("expected span name %q, got %q", SpanSession, s.Name)
	}
	if s.Status.Code != codes.Ok {
		t.Errorf("expected Ok status, got %v", s.Status.Code)
	}
	m := attrs(s)
	if m["session.id"].AsString() != "sess-1" || m["thread.id"].AsString() != "t1" {
		t.Errorf("unexpected attributes: %v", m)
	}
	if m["session.end_reason"].AsString() != "published" || m["session.transitions"].AsInt64() != 4 {
		t.Errorf("expected end attributes, got %v", m)
	}
	if !s.EndTime.Equal(now.Add(time.Second)) {
		t.Errorf("expected end time from event, got %v", s.EndTime)
	}
}

func TestOTelEventListener_SessionFailed(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.OnEvent(started("sess-1", now))
	listener.OnEvent(&events.Event{
		Type: events.EventSessionFailed, Timestamp: now, SessionID: "sess-1",
		Data: &events.SessionEndedData{Reason: "error", Error: errors.New("database offline")},
	})

	s := findSpan(t, flushAndGetSpans(t, tp, exp), SpanSession)
	if s.Status.Code != codes.Error {
		t.Errorf("expected Error status, got %v", s.Status.Code)
	}
	if s.Status.Description != "database offline" {
		t.Errorf("expected error description, got %q", s.Status.Description)
	}
}

func TestOTelEventListener_TransitionIsChildOfSession(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.OnEvent(started("sess-1", now))
	listener.OnEvent(&events.Event{
		Type: events.EventSessionStateChanged, Timestamp: now, SessionID: "sess-1",
		Data: &events.StateChangedData{From: "Guidance", To: "Selection", Event: "enable"},
	})
	listener.OnEvent(completed("sess-1", now))

	spans := flushAndGetSpans(t, tp, exp)
	tr := findSpan(t, spans, SpanTransition)
	root := findSpan(t, spans, SpanSession)

	if tr.Parent.SpanID() != root.SpanContext.SpanID() {
		t.Error("transition span should be child of session span")
	}
	m := attrs(tr)
	if m["workflow.from_state"].AsString() != "Guidance" || m["workflow.to_state"].AsString() != "Selection" {
		t.Errorf("unexpected transition attributes: %v", m)
	}
}

func TestOTelEventListener_PublishSpanCoversDuration(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.OnEvent(started("sess-1", now))
	listener.OnEvent(&events.Event{
		Type: events.EventLicensePublished, Timestamp: now.Add(2 * time.Second),
		SessionID: "sess-1", ThreadID: "t1",
		Data: events.LicensePublishedData{
			LicenseName: "CC-BY", BackupAllowed: true, BackupChanged: true, Duration: 500 * time.Millisecond,
		},
	})
	listener.OnEvent(completed("sess-1", now.Add(3*time.Second)))

	s := findSpan(t, flushAndGetSpans(t, tp, exp), SpanPublish)
	if got := s.EndTime.Sub(s.StartTime); got != 500*time.Millisecond {
		t.Errorf("expected 500ms span, got %v", got)
	}
	m := attrs(s)
	if m["license.name"].AsString() != "CC-BY" || !m["publish.backup_changed"].AsBool() {
		t.Errorf("unexpected publish attributes: %v", m)
	}
}

func TestOTelEventListener_NotificationFailed(t *testing.T) {
	listener, exp, tp := newTestListener(t)

	listener.OnEvent(&events.Event{
		Type: events.EventNotificationFailed, Timestamp: time.Now(), ThreadID: "t1",
		Data: &events.NotificationData{BackupAllowed: true, Error: errors.New("HTTP 503")},
	})

	s := findSpan(t, flushAndGetSpans(t, tp, exp), SpanNotify)
	if s.Status.Code != codes.Error || s.Status.Description != "HTTP 503" {
		t.Errorf("expected error status, got %+v", s.Status)
	}
}

func TestOTelEventListener_SessionEvents(t *testing.T) {
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.OnEvent(started("sess-1", now))
	listener.OnEvent(&events.Event{
		Type: events.EventWaitTimedOut, Timestamp: now, SessionID: "sess-1",
		Data: &events.WaitTimedOutData{State: "Selection", Timeout: 2 * time.Minute},
	})
	listener.OnEvent(&events.Event{
		Type: events.EventLicenseSaved, Timestamp: now, SessionID: "sess-1",
		Data: &events.LicenseSavedData{LicenseID: 7, LicenseName: "Mine"},
	})
	listener.OnEvent(completed("sess-1", now))

	s := findSpan(t, flushAndGetSpans(t, tp, exp), SpanSession)
	if len(s.Events) != 2 {
		t.Fatalf("expected 2 span events, got %d", len(s.Events))
	}
	if s.Events[0].Name != "wait.timed_out" || s.Events[1].Name != "license.saved" {
		t.Errorf("unexpected events: %s, %s", s.Events[0].Name, s.Events[1].Name)
	}
}

func TestOTelEventListener_TriggerRejected(t *testing.T) {
	listener, exp, tp := newTestListener(t)

	listener.OnEvent(&events.Event{
		Type: events.EventTriggerRejected, Timestamp: time.Now(), ThreadID: "t9",
		Data: &events.TriggerRejectedData{Reason: events.RejectDuplicate},
	})

	s := findSpan(t, flushAndGetSpans(t, tp, exp), SpanRejected)
	if attrs(s)["trigger.reason"].AsString() != events.RejectDuplicate {
		t.Errorf("expected trigger.reason attribute")
	}
}

func TestOTelEventListener_OutOfOrderEnd(t *testing.T) {
	// The bus delivers each event in its own goroutine, so the end can
	// arrive before the start.
	listener, exp, tp := newTestListener(t)
	now := time.Now()

	listener.OnEvent(&events.Event{
		Type: events.EventSessionFailed, Timestamp: now.Add(time.Second), SessionID: "sess-1",
		Data: events.SessionEndedData{Reason: "error", Error: errors.New("timeout")},
	})
	listener.OnEvent(started("sess-1", now))

	if listener.Active() != 0 {
		t.Fatalf("buffered end should close the session, got %d active", listener.Active())
	}
	s := findSpan(t, flushAndGetSpans(t, tp, exp), SpanSession)
	if s.Status.Code != codes.Error || s.Status.Description != "timeout" {
		t.Errorf("expected buffered error status, got %+v", s.Status)
	}
}

func TestOTelEventListener_IgnoresMalformedData(t *testing.T) {
	listener, exp, tp := newTestListener(t)

	listener.OnEvent(&events.Event{Type: events.EventSessionStateChanged, SessionID: "sess-1"})
	listener.OnEvent(&events.Event{Type: events.EventLicensePublished, SessionID: "sess-1"})
	listener.OnEvent(&events.Event{Type: events.EventType("unknown"), SessionID: "sess-1"})

	if spans := flushAndGetSpans(t, tp, exp); len(spans) != 0 {
		t.Errorf("expected no spans, got %d", len(spans))
	}
}
