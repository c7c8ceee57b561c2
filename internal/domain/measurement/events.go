package measurement

import (
	"sync/atomic"

	"github.com/medview/backend/internal/domain/shared"
)

// Event type constants
const (
	EventTypeMeasurementAdded          = "MEASUREMENT_ADDED"
	EventTypeRawMeasurementAdded       = "RAW_MEASUREMENT_ADDED"
	EventTypeMeasurementUpdated        = "MEASUREMENT_UPDATED"
	EventTypeMeasurementRemoved        = "MEASUREMENT_REMOVED"
	EventTypeMeasurementsCleared       = "MEASUREMENTS_CLEARED"
	EventTypeJumpToMeasurementViewport = "JUMP_TO_MEASUREMENT_VIEWPORT"
	EventTypeJumpToMeasurementLayout   = "JUMP_TO_MEASUREMENT_LAYOUT"
)

// AllEventTypes returns every event type the service broadcasts
func AllEventTypes() []string {
	return []string{
		EventTypeMeasurementAdded,
		EventTypeRawMeasurementAdded,
		EventTypeMeasurementUpdated,
		EventTypeMeasurementRemoved,
		EventTypeMeasurementsCleared,
		EventTypeJumpToMeasurementViewport,
		EventTypeJumpToMeasurementLayout,
	}
}

// MeasurementAddedEvent is published when a measurement is stored for the
// first time. Raw (import) adds use EventTypeRawMeasurementAdded.
type MeasurementAddedEvent struct {
	shared.BaseDomainEvent
	Source      *Source     `json:"source"`
	Measurement Measurement `json:"measurement"`
}

// NewMeasurementAddedEvent creates a new MeasurementAddedEvent
func NewMeasurementAddedEvent(source *Source, m Measurement, raw bool) *MeasurementAddedEvent {
	eventType := EventTypeMeasurementAdded
	if raw {
		eventType = EventTypeRawMeasurementAdded
	}
	return &MeasurementAddedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeMeasurement, m.UID),
		Source:          source,
		Measurement:     m,
	}
}

// MeasurementUpdatedEvent is published when a stored measurement changes
type MeasurementUpdatedEvent struct {
	shared.BaseDomainEvent
	Source      *Source     `json:"source"`
	Measurement Measurement `json:"measurement"`
	// NotYetUpdatedAtSource is set when the change originated outside the
	// producing tool, which still has to apply it to its own annotation.
	NotYetUpdatedAtSource bool `json:"not_yet_updated_at_source"`
}

// NewMeasurementUpdatedEvent creates a new MeasurementUpdatedEvent
func NewMeasurementUpdatedEvent(source *Source, m Measurement, notYetUpdatedAtSource bool) *MeasurementUpdatedEvent {
	return &MeasurementUpdatedEvent{
		BaseDomainEvent:       shared.NewBaseDomainEvent(EventTypeMeasurementUpdated, AggregateTypeMeasurement, m.UID),
		Source:                source,
		Measurement:           m,
		NotYetUpdatedAtSource: notYetUpdatedAtSource,
	}
}

// MeasurementRemovedEvent is published when a measurement or an unmapped
// record is removed
type MeasurementRemovedEvent struct {
	shared.BaseDomainEvent
	Source        *Source        `json:"source"`
	MeasurementID string         `json:"measurement_id"`
	Details       map[string]any `json:"details,omitempty"`
}

// NewMeasurementRemovedEvent creates a new MeasurementRemovedEvent
func NewMeasurementRemovedEvent(source *Source, measurementID string, details map[string]any) *MeasurementRemovedEvent {
	return &MeasurementRemovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMeasurementRemoved, AggregateTypeMeasurement, measurementID),
		Source:          source,
		MeasurementID:   measurementID,
		Details:         details,
	}
}

// MeasurementsClearedEvent is published once per clear and carries
// everything that was discarded
type MeasurementsClearedEvent struct {
	shared.BaseDomainEvent
	Measurements []Measurement         `json:"measurements"`
	Unmapped     []UnmappedMeasurement `json:"unmapped"`
}

// NewMeasurementsClearedEvent creates a new MeasurementsClearedEvent
func NewMeasurementsClearedEvent(measurements []Measurement, unmapped []UnmappedMeasurement) *MeasurementsClearedEvent {
	return &MeasurementsClearedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMeasurementsCleared, AggregateTypeMeasurement, ""),
		Measurements:    measurements,
		Unmapped:        unmapped,
	}
}

// JumpToMeasurementEvent asks listeners to navigate to a measurement.
//
// It is broadcast twice: first to viewport listeners, then to layout
// listeners. Both broadcasts share one consumed flag, so a viewport that
// can already show the measurement calls Consume and the layout listeners
// see IsConsumed() == true.
type JumpToMeasurementEvent struct {
	shared.BaseDomainEvent
	ViewportID    string      `json:"viewport_id"`
	MeasurementID string      `json:"measurement_id"`
	Measurement   Measurement `json:"measurement"`

	consumed         *atomic.Bool
	viewportConsumed bool
}

// NewJumpToMeasurementEvent creates the viewport-scoped jump event
func NewJumpToMeasurementEvent(viewportID string, m Measurement) *JumpToMeasurementEvent {
	return &JumpToMeasurementEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeJumpToMeasurementViewport, AggregateTypeMeasurement, m.UID),
		ViewportID:      viewportID,
		MeasurementID:   m.UID,
		Measurement:     m,
		consumed:        new(atomic.Bool),
	}
}

// LayoutPhase returns the layout-scoped view of the same jump request.
// The returned event shares the consumed flag with e. Call it after the
// viewport broadcast; the flag's value at that point is kept as
// ConsumedByViewport.
func (e *JumpToMeasurementEvent) LayoutPhase() *JumpToMeasurementEvent {
	layout := *e
	layout.Type = EventTypeJumpToMeasurementLayout
	layout.viewportConsumed = e.IsConsumed()
	return &layout
}

// ConsumedByViewport reports whether a viewport listener consumed the
// request. It is only meaningful on the layout phase.
func (e *JumpToMeasurementEvent) ConsumedByViewport() bool {
	return e.viewportConsumed
}

// Consume marks the jump as handled
func (e *JumpToMeasurementEvent) Consume() {
	e.consumed.Store(true)
}

// IsConsumed reports whether a listener has handled the jump
func (e *JumpToMeasurementEvent) IsConsumed() bool {
	return e.consumed.Load()
}
