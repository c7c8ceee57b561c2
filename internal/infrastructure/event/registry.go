package event

import (
	"slices"
	"sync"

	"github.com/medview/backend/internal/domain/shared"
)

// registration is a single Subscribe call. seq preserves registration order
// across typed and wildcard handlers.
type registration struct {
	seq     uint64
	handler shared.EventHandler
}

// HandlerRegistry manages event handler registrations
type HandlerRegistry struct {
	mu       sync.RWMutex
	nextSeq  uint64
	handlers map[string][]registration // eventType -> handlers
	wildcard []registration            // handlers for all events
}

// NewHandlerRegistry creates a new handler registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string][]registration),
		wildcard: make([]registration, 0),
	}
}

// Register adds a handler for specific event types and returns the
// registration sequence number used to unregister it.
// If no event types are provided, the handler receives all events
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSeq++
	reg := registration{seq: r.nextSeq, handler: handler}

	if len(eventTypes) == 0 {
		r.wildcard = append(r.wildcard, reg)
		return reg.seq
	}

	// A type listed twice still gets one registration
	seen := make(map[string]struct{}, len(eventTypes))
	for _, eventType := range eventTypes {
		if _, dup := seen[eventType]; dup {
			continue
		}
		seen[eventType] = struct{}{}
		r.handlers[eventType] = append(r.handlers[eventType], reg)
	}
	return reg.seq
}

// Unregister removes the registration with the given sequence number
func (r *HandlerRegistry) Unregister(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.wildcard = removeRegistration(r.wildcard, seq)

	for eventType, regs := range r.handlers {
		r.handlers[eventType] = removeRegistration(regs, seq)
		if len(r.handlers[eventType]) == 0 {
			delete(r.handlers, eventType)
		}
	}
}

// GetHandlers returns a snapshot of the handlers for a specific event type,
// typed and wildcard handlers interleaved in registration order.
// Changes made to the registry after the call do not affect the snapshot.
func (r *HandlerRegistry) GetHandlers(eventType string) []shared.EventHandler {
	r.mu.RLock()
	typeRegs := r.handlers[eventType]
	regs := make([]registration, 0, len(typeRegs)+len(r.wildcard))
	regs = append(regs, typeRegs...)
	regs = append(regs, r.wildcard...)
	r.mu.RUnlock()

	slices.SortFunc(regs, func(a, b registration) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})

	result := make([]shared.EventHandler, len(regs))
	for i, reg := range regs {
		result[i] = reg.handler
	}
	return result
}

// Count returns the number of live registrations
func (r *HandlerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[uint64]struct{}, len(r.wildcard))
	for _, reg := range r.wildcard {
		seen[reg.seq] = struct{}{}
	}
	for _, regs := range r.handlers {
		for _, reg := range regs {
			seen[reg.seq] = struct{}{}
		}
	}
	return len(seen)
}

// removeRegistration removes a registration from a slice of registrations
func removeRegistration(regs []registration, seq uint64) []registration {
	result := make([]registration, 0, len(regs))
	for _, reg := range regs {
		if reg.seq != seq {
			result = append(result, reg)
		}
	}
	return result
}
