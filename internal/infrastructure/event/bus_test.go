package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/medview/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// testEvent implements DomainEvent for testing
type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", "agg-1"),
		Data:            "test data",
	}
}

// testHandler implements EventHandler for testing
type testHandler struct {
	name    string
	handled []shared.DomainEvent
	err     error
	trace   *[]string
	mu      sync.Mutex
}

func newTestHandler(name string, trace *[]string) *testHandler {
	return &testHandler{
		name:    name,
		handled: make([]shared.DomainEvent, 0),
		trace:   trace,
	}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	if h.trace != nil {
		*h.trace = append(*h.trace, h.name)
	}
	return h.err
}

func (h *testHandler) getHandled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newTestHandler("h", nil)
	bus.Subscribe(handler, "TestEvent")

	event := newTestEvent("TestEvent")
	err := bus.Publish(context.Background(), event)

	require.NoError(t, err)
	assert.Len(t, handler.getHandled(), 1)
	assert.Equal(t, event, handler.getHandled()[0])
}

func TestInMemoryEventBus_Publish_MultipleEvents(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newTestHandler("h", nil)
	bus.Subscribe(handler, "TestEvent")

	err := bus.Publish(context.Background(), newTestEvent("TestEvent"), newTestEvent("TestEvent"))

	require.NoError(t, err)
	assert.Len(t, handler.getHandled(), 2)
}

func TestInMemoryEventBus_Publish_RegistrationOrder(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	var trace []string

	bus.Subscribe(newTestHandler("first", &trace), "TestEvent")
	bus.Subscribe(newTestHandler("wildcard", &trace))
	bus.Subscribe(newTestHandler("third", &trace), "TestEvent")

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("TestEvent")))

	assert.Equal(t, []string{"first", "wildcard", "third"}, trace)
}

func TestInMemoryEventBus_Publish_RepeatedSubscribedType(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newTestHandler("h", nil)
	bus.Subscribe(handler, "TestEvent", "TestEvent")

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("TestEvent")))

	assert.Len(t, handler.getHandled(), 1)
}

func TestInMemoryEventBus_Publish_WildcardHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	wildcardHandler := newTestHandler("w", nil) // No event types = wildcard
	bus.Subscribe(wildcardHandler)

	err := bus.Publish(context.Background(), newTestEvent("AnyEventType"))

	require.NoError(t, err)
	assert.Len(t, wildcardHandler.getHandled(), 1)
}

func TestInMemoryEventBus_Publish_HandlerError(t *testing.T) {
	core, recorded := observer.New(zapcore.ErrorLevel)
	bus := NewInMemoryEventBus(zap.New(core))

	handler1 := newTestHandler("h1", nil)
	handler1.err = errors.New("handler error")
	handler2 := newTestHandler("h2", nil)
	bus.Subscribe(handler1, "TestEvent")
	bus.Subscribe(handler2, "TestEvent")

	err := bus.Publish(context.Background(), newTestEvent("TestEvent"))

	// Should not return error, but continue with other handlers
	require.NoError(t, err)
	assert.Len(t, handler1.getHandled(), 1)
	assert.Len(t, handler2.getHandled(), 1)
	assert.Equal(t, 1, recorded.FilterMessage("handler failed to process event").Len())
}

func TestInMemoryEventBus_Publish_HandlerPanic(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	bus.Subscribe(shared.EventHandlerFunc(func(ctx context.Context, event shared.DomainEvent) error {
		panic("boom")
	}), "TestEvent")
	after := newTestHandler("after", nil)
	bus.Subscribe(after, "TestEvent")

	assert.NotPanics(t, func() {
		_ = bus.Publish(context.Background(), newTestEvent("TestEvent"))
	})
	assert.Len(t, after.getHandled(), 1)
}

func TestInMemoryEventBus_Publish_NoMatchingHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newTestHandler("h", nil)
	bus.Subscribe(handler, "OtherEvent")

	err := bus.Publish(context.Background(), newTestEvent("TestEvent"))

	require.NoError(t, err)
	assert.Len(t, handler.getHandled(), 0)
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := newTestHandler("h", nil)
	sub := bus.Subscribe(handler, "TestEvent")

	_ = bus.Publish(context.Background(), newTestEvent("TestEvent"))
	assert.Len(t, handler.getHandled(), 1)

	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	_ = bus.Publish(context.Background(), newTestEvent("TestEvent"))
	assert.Len(t, handler.getHandled(), 1) // Still 1, not 2
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestInMemoryEventBus_SubscribeDuringPublish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	late := newTestHandler("late", nil)

	bus.Subscribe(shared.EventHandlerFunc(func(ctx context.Context, event shared.DomainEvent) error {
		bus.Subscribe(late, "TestEvent")
		return nil
	}), "TestEvent")

	_ = bus.Publish(context.Background(), newTestEvent("TestEvent"))
	assert.Empty(t, late.getHandled(), "handler added mid-broadcast must wait for the next publish")

	_ = bus.Publish(context.Background(), newTestEvent("TestEvent"))
	assert.NotEmpty(t, late.getHandled())
}

func TestInMemoryEventBus_UnsubscribeDuringPublish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	second := newTestHandler("second", nil)

	var secondSub shared.Subscription
	bus.Subscribe(shared.EventHandlerFunc(func(ctx context.Context, event shared.DomainEvent) error {
		secondSub.Unsubscribe()
		return nil
	}), "TestEvent")
	secondSub = bus.Subscribe(second, "TestEvent")

	_ = bus.Publish(context.Background(), newTestEvent("TestEvent"))
	assert.Len(t, second.getHandled(), 1, "removal takes effect from the next publish")

	_ = bus.Publish(context.Background(), newTestEvent("TestEvent"))
	assert.Len(t, second.getHandled(), 1)
}
