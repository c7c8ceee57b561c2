package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/medview/backend/internal/domain/shared"
	"github.com/medview/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// sseMessageBufferSize lets messages queue without blocking the publisher
const sseMessageBufferSize = 100

// SSEClient represents a connected SSE client
type SSEClient struct {
	ID    string
	Types map[string]struct{} // empty means every event type
	Chan  chan SSEMessage
	Done  chan struct{}
}

func (c *SSEClient) wants(eventType string) bool {
	if len(c.Types) == 0 {
		return true
	}
	_, ok := c.Types[eventType]
	return ok
}

// SSEMessage represents a message to be sent to SSE clients
type SSEMessage struct {
	Event string `json:"event"`
	Data  string `json:"data"`
	ID    string `json:"id,omitempty"`
}

// EventStreamHandler relays measurement events to Server-Sent Events clients.
//
// It subscribes to the bus once and fans each event out to every connected
// client whose filter accepts it. Delivery to a client is best effort: a
// client that falls behind by more than its buffer loses messages.
type EventStreamHandler struct {
	BaseHandler
	subscriber   shared.EventSubscriber
	logger       *zap.Logger
	clients      sync.Map // map[string]*SSEClient
	ctx          context.Context
	cancel       context.CancelFunc
	heartbeat    time.Duration
	started      bool
	startMu      sync.Mutex
	subscription shared.Subscription
	maxClients   int
}

// EventStreamOption is a functional option for configuring the handler
type EventStreamOption func(*EventStreamHandler)

// WithStreamLogger sets the logger for the handler
func WithStreamLogger(logger *zap.Logger) EventStreamOption {
	return func(h *EventStreamHandler) {
		h.logger = logger
	}
}

// WithStreamHeartbeat sets the heartbeat interval
func WithStreamHeartbeat(interval time.Duration) EventStreamOption {
	return func(h *EventStreamHandler) {
		if interval > 0 {
			h.heartbeat = interval
		}
	}
}

// WithStreamMaxClients sets the maximum number of concurrent SSE clients
func WithStreamMaxClients(max int) EventStreamOption {
	return func(h *EventStreamHandler) {
		h.maxClients = max
	}
}

// NewEventStreamHandler creates a new SSE handler for measurement events
func NewEventStreamHandler(subscriber shared.EventSubscriber, opts ...EventStreamOption) *EventStreamHandler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &EventStreamHandler{
		subscriber: subscriber,
		logger:     zap.NewNop(),
		ctx:        ctx,
		cancel:     cancel,
		heartbeat:  30 * time.Second,
		maxClients: 1000,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Start subscribes to the bus and begins sending heartbeats
func (h *EventStreamHandler) Start() error {
	h.startMu.Lock()
	defer h.startMu.Unlock()

	if h.started {
		return errors.New("event stream handler already started")
	}

	h.subscription = h.subscriber.Subscribe(shared.EventHandlerFunc(h.handleEvent))
	go h.sendHeartbeats()

	h.started = true
	h.logger.Info("Measurement event stream started")
	return nil
}

// Stop detaches from the bus and disconnects every client
func (h *EventStreamHandler) Stop() {
	h.startMu.Lock()
	if h.subscription != nil {
		h.subscription.Unsubscribe()
		h.subscription = nil
	}
	h.startMu.Unlock()

	h.cancel()

	h.logger.Info("Measurement event stream stopped")
}

// handleEvent is the bus handler. It never blocks on slow clients.
func (h *EventStreamHandler) handleEvent(_ context.Context, event shared.DomainEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal SSE event",
			zap.String("event_type", event.EventType()),
			zap.Error(err))
		return nil
	}

	h.broadcast(SSEMessage{
		Event: event.EventType(),
		Data:  string(data),
		ID:    event.EventID().String(),
	})
	return nil
}

// broadcast sends a message to all connected clients that want it
func (h *EventStreamHandler) broadcast(msg SSEMessage) {
	h.clients.Range(func(key, value any) bool {
		client, ok := value.(*SSEClient)
		if !ok {
			return true
		}
		if msg.Event != "heartbeat" && !client.wants(msg.Event) {
			return true
		}

		select {
		case <-client.Done:
		case client.Chan <- msg:
			h.logger.Debug("Sent SSE message to client",
				zap.String("client_id", client.ID),
				zap.String("event", msg.Event))
		default:
			h.logger.Warn("Client channel full, dropping message",
				zap.String("client_id", client.ID),
				zap.String("event", msg.Event))
		}
		return true
	})
}

// sendHeartbeats periodically sends heartbeat messages to keep connections alive
func (h *EventStreamHandler) sendHeartbeats() {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.broadcast(SSEMessage{
				Event: "heartbeat",
				Data:  fmt.Sprintf(`{"timestamp":%d}`, time.Now().Unix()),
			})
		}
	}
}

// Stream establishes a Server-Sent Events connection. The optional types
// query parameter is a comma separated list of event types to receive.
//
//	GET /events/stream
func (h *EventStreamHandler) Stream(c *gin.Context) {
	if h.maxClients > 0 && h.ClientCount() >= h.maxClients {
		h.ErrorWithCode(c, dto.ErrCodeMaxConnections, "Maximum number of SSE connections reached")
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	client := &SSEClient{
		ID:    uuid.New().String(),
		Types: parseTypes(c.Query("types")),
		Chan:  make(chan SSEMessage, sseMessageBufferSize),
		Done:  make(chan struct{}),
	}

	h.clients.Store(client.ID, client)
	defer func() {
		// Done is closed instead of Chan so a concurrent broadcast never
		// sends on a closed channel
		h.clients.Delete(client.ID)
		close(client.Done)
	}()

	h.logger.Info("SSE client connected",
		zap.String("client_id", client.ID),
		zap.Int("type_filter", len(client.Types)))

	h.sendEvent(c.Writer, SSEMessage{
		Event: "connected",
		Data:  fmt.Sprintf(`{"client_id":"%s","timestamp":%d}`, client.ID, time.Now().Unix()),
	})
	c.Writer.Flush()

	reqCtx := c.Request.Context()

	for {
		select {
		case <-reqCtx.Done():
			h.logger.Info("SSE client disconnected (request context done)",
				zap.String("client_id", client.ID))
			return
		case <-h.ctx.Done():
			h.logger.Info("SSE handler stopped, disconnecting client",
				zap.String("client_id", client.ID))
			return
		case msg := <-client.Chan:
			h.sendEvent(c.Writer, msg)
			c.Writer.Flush()
		}
	}
}

// sendEvent writes an SSE event to the response writer
func (h *EventStreamHandler) sendEvent(w io.Writer, msg SSEMessage) {
	if msg.Event != "" {
		fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	if msg.ID != "" {
		fmt.Fprintf(w, "id: %s\n", msg.ID)
	}
	fmt.Fprintf(w, "data: %s\n\n", msg.Data)
}

// ClientCount returns the number of connected SSE clients
func (h *EventStreamHandler) ClientCount() int {
	count := 0
	h.clients.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func parseTypes(raw string) map[string]struct{} {
	if raw == "" {
		return nil
	}
	types := make(map[string]struct{})
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types[t] = struct{}{}
		}
	}
	return types
}
