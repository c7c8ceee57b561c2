package measurement

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medview/backend/internal/domain/measurement"
	"github.com/medview/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Service owns the source table, the mapping table and the two measurement
// collections (stored and unmapped) for one viewing session.
//
// All table mutations are serialized by a single mutex. Events are published
// after the mutation is committed and the lock released, but before the
// mutating call returns, so listeners observe the new state and may call back
// into the service.
type Service struct {
	mu sync.Mutex

	bus    shared.EventBus
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	sources      []*measurement.Source
	sourcesByKey map[measurement.SourceKey]*measurement.Source
	mappings     map[*measurement.Source][]*measurement.Mapping

	entries       map[string]*entry
	unmapped      map[string]*unmappedEntry
	seq           uint64
	lastTimestamp time.Time
}

var _ measurement.SourceOperations = (*Service)(nil)

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithClock sets the clock used to stamp modification times
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator sets the generator for measurement ids of annotations that
// carry none
func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewService creates a measurement service publishing on bus
func NewService(bus shared.EventBus, logger *zap.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		bus:          bus,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
		sourcesByKey: make(map[measurement.SourceKey]*measurement.Source),
		mappings:     make(map[*measurement.Source][]*measurement.Mapping),
		entries:      make(map[string]*entry),
		unmapped:     make(map[string]*unmappedEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers handler for one event type. An empty eventType
// subscribes to every event.
func (s *Service) Subscribe(eventType string, handler shared.EventHandler) shared.Subscription {
	if eventType == "" {
		return s.bus.Subscribe(handler)
	}
	return s.bus.Subscribe(handler, eventType)
}

// publish delivers events synchronously. Must not be called with s.mu held.
func (s *Service) publish(events ...shared.DomainEvent) {
	if len(events) == 0 {
		return
	}
	if err := s.bus.Publish(context.Background(), events...); err != nil {
		s.logger.Error("Failed to publish measurement events",
			zap.Int("event_count", len(events)),
			zap.Error(err))
	}
}

// stamp returns a modification time that never goes backwards.
// Must be called with s.mu held.
func (s *Service) stamp() time.Time {
	t := s.now()
	if t.Before(s.lastTimestamp) {
		t = s.lastTimestamp
	}
	s.lastTimestamp = t
	return t
}

// nextSeq must be called with s.mu held
func (s *Service) nextSeq() uint64 {
	s.seq++
	return s.seq
}
