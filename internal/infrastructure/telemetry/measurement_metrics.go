package telemetry

import (
	"context"
	"fmt"

	"github.com/medview/backend/internal/domain/measurement"
	"github.com/medview/backend/internal/domain/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Metric names
const (
	MetricMeasurementEvents     = "medview.measurement.events"
	MetricMeasurementsDiscarded = "medview.measurements.discarded"
	MetricJumps                 = "medview.measurement.jumps"
)

// MeasurementMetrics counts measurement lifecycle events. It is an event
// handler and observes the service through the event bus only.
type MeasurementMetrics struct {
	events    *Counter
	discarded *Counter
	jumps     *Counter
	logger    *zap.Logger
}

// NewMeasurementMetrics creates the lifecycle counters on meter
func NewMeasurementMetrics(meter metric.Meter, logger *zap.Logger) (*MeasurementMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	events, err := NewCounter(meter, MetricMeasurementEvents,
		"Measurement lifecycle events by type", "{event}")
	if err != nil {
		return nil, err
	}
	discarded, err := NewCounter(meter, MetricMeasurementsDiscarded,
		"Measurements and unmapped records discarded by clear", "{measurement}")
	if err != nil {
		return nil, err
	}
	jumps, err := NewCounter(meter, MetricJumps,
		"Jump-to-measurement requests by whether a viewport consumed them", "{request}")
	if err != nil {
		return nil, err
	}
	return &MeasurementMetrics{
		events:    events,
		discarded: discarded,
		jumps:     jumps,
		logger:    logger,
	}, nil
}

// Handle implements shared.EventHandler
func (m *MeasurementMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	eventType := attribute.String("event.type", event.EventType())

	switch e := event.(type) {
	case *measurement.MeasurementAddedEvent:
		m.events.Inc(ctx, eventType, sourceAttr(e.Source))
	case *measurement.MeasurementUpdatedEvent:
		m.events.Inc(ctx, eventType, sourceAttr(e.Source),
			attribute.Bool("not_yet_updated_at_source", e.NotYetUpdatedAtSource))
	case *measurement.MeasurementRemovedEvent:
		m.events.Inc(ctx, eventType, sourceAttr(e.Source))
	case *measurement.MeasurementsClearedEvent:
		m.events.Inc(ctx, eventType)
		m.discarded.Add(ctx, int64(len(e.Measurements)), attribute.String("record", "measurement"))
		m.discarded.Add(ctx, int64(len(e.Unmapped)), attribute.String("record", "unmapped"))
	case *measurement.JumpToMeasurementEvent:
		// Layout listeners may still consume after this handler runs, so
		// only the viewport outcome is recorded.
		if e.EventType() == measurement.EventTypeJumpToMeasurementLayout {
			m.jumps.Inc(ctx, attribute.Bool("consumed_by_viewport", e.ConsumedByViewport()))
		}
	default:
		return fmt.Errorf("unexpected event %T", event)
	}
	return nil
}

// Subscribe attaches the metrics to every measurement event on bus
func (m *MeasurementMetrics) Subscribe(bus shared.EventSubscriber) shared.Subscription {
	m.logger.Debug("Measurement metrics subscribed")
	return bus.Subscribe(m, measurement.AllEventTypes()...)
}

func sourceAttr(source *measurement.Source) attribute.KeyValue {
	if source == nil {
		return attribute.String("source", "")
	}
	return attribute.String("source", source.Name)
}
