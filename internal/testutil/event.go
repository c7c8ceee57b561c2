// Package testutil provides common test utilities for the measurement backend.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/medview/backend/internal/domain/shared"
)

// EventRecorder is a shared.EventHandler that records every event it handles.
type EventRecorder struct {
	mu      sync.Mutex
	handled []shared.DomainEvent
	err     error
}

// NewEventRecorder creates an empty event recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{
		handled: make([]shared.DomainEvent, 0),
	}
}

// Handle records an event.
func (r *EventRecorder) Handle(_ context.Context, event shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handled = append(r.handled, event)
	return r.err
}

// Handled returns all handled events.
func (r *EventRecorder) Handled() []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]shared.DomainEvent, len(r.handled))
	copy(result, r.handled)
	return result
}

// HandledCount returns the number of handled events.
func (r *EventRecorder) HandledCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handled)
}

// Types returns the event types in the order they were handled.
func (r *EventRecorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.handled))
	for i, e := range r.handled {
		types[i] = e.EventType()
	}
	return types
}

// Last returns the most recent event, or nil.
func (r *EventRecorder) Last() shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.handled) == 0 {
		return nil
	}
	return r.handled[len(r.handled)-1]
}

// SetError sets the error to return from Handle.
func (r *EventRecorder) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Reset clears all handled events.
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handled = make([]shared.DomainEvent, 0)
	r.err = nil
}

// TestEvent is a simple domain event for testing.
type TestEvent struct {
	shared.BaseDomainEvent
	Data string
}

// NewTestEvent creates a new test event.
func NewTestEvent(eventType, aggregateID string) *TestEvent {
	return &TestEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", aggregateID),
		Data:            "test-data",
	}
}

// WaitForCondition waits for a condition to become true.
// Returns true if the condition was met, false if timeout occurred.
func WaitForCondition(t *testing.T, condition func() bool, timeout, interval time.Duration) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(interval)
	}
	return false
}

// WaitForEventCount waits until the recorder has handled at least count events.
func WaitForEventCount(t *testing.T, recorder *EventRecorder, count int, timeout time.Duration) bool {
	t.Helper()

	return WaitForCondition(t, func() bool {
		return recorder.HandledCount() >= count
	}, timeout, 10*time.Millisecond)
}
