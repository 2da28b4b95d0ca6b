// Package events provides a lightweight pub/sub bus for workflow lifecycle events.
package events

import (
	"sync"
	"time"
)

// Listener is a function that handles events.
type Listener func(*Event)

// EventBus manages event distribution to listeners.
type EventBus struct {
	mu              sync.RWMutex
	listeners       map[EventType][]Listener
	globalListeners []Listener
	inflight        sync.WaitGroup
	now             func() time.Time
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners: make(map[EventType][]Listener),
		now:       time.Now,
	}
}

// Subscribe registers a listener for a specific event type.
func (eb *EventBus) Subscribe(eventType EventType, listener Listener) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.listeners[eventType] = append(eb.listeners[eventType], listener)
}

// SubscribeAll registers a listener for all event types.
func (eb *EventBus) SubscribeAll(listener Listener) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.globalListeners = append(eb.globalListeners, listener)
}

// Publish sends an event to all registered listeners asynchronously.
// A nil bus drops the event, so components can be built without one.
func (eb *EventBus) Publish(event *Event) {
	if eb == nil || event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = eb.now()
	}

	eb.mu.RLock()
	typeListeners := eb.listeners[event.Type]

	specificListeners := make([]Listener, len(typeListeners))
	copy(specificListeners, typeListeners)

	globalListeners := make([]Listener, len(eb.globalListeners))
	copy(globalListeners, eb.globalListeners)
	eb.mu.RUnlock()

	if len(specificListeners)+len(globalListeners) == 0 {
		return
	}

	eb.inflight.Add(1)
	go func() {
		defer eb.inflight.Done()
		for _, listener := range specificListeners {
			safeInvoke(listener, event)
		}
		for _, listener := range globalListeners {
			safeInvoke(listener, event)
		}
	}()
}

// Wait blocks until every published event has been delivered.
func (eb *EventBus) Wait() {
	eb.inflight.Wait()
}

// Close waits for in-flight deliveries and removes all listeners.
func (eb *EventBus) Close() {
	eb.Wait()
	eb.Clear()
}

// Clear removes all listeners (primarily for tests).
func (eb *EventBus) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.listeners = make(map[EventType][]Listener)
	eb.globalListeners = nil
}

func safeInvoke(listener Listener, event *Event) {
	defer func() { _ = recover() }()
	listener(event)
}
