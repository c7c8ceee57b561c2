package measurement

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/medview/backend/internal/domain/measurement"
	"github.com/medview/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Predicate selects measurements in GetMeasurements
type Predicate func(m measurement.Measurement) bool

// entry is a stored measurement plus the mapping that produced it
type entry struct {
	measurement measurement.Measurement
	mapping     *measurement.Mapping
	seq         uint64
}

type unmappedEntry struct {
	record measurement.UnmappedMeasurement
	seq    uint64
}

// GetMeasurement returns a copy of the measurement with the given id
func (s *Service) GetMeasurement(id string) (measurement.Measurement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return measurement.Measurement{}, false
	}
	return e.measurement.Clone(), true
}

// GetMeasurements returns a snapshot of the stored measurements in insertion
// order. Only measurements accepted by every filter are included. Later
// changes are not reflected in the returned slice.
func (s *Service) GetMeasurements(filter ...Predicate) []measurement.Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := s.orderedEntries()
	result := make([]measurement.Measurement, 0, len(ordered))
next:
	for _, e := range ordered {
		for _, accept := range filter {
			if accept != nil && !accept(e.measurement) {
				continue next
			}
		}
		result = append(result, e.measurement.Clone())
	}
	return result
}

// GetUnmapped returns the unmapped record captured under id
func (s *Service) GetUnmapped(id string) (measurement.UnmappedMeasurement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.unmapped[id]
	if !ok {
		return measurement.UnmappedMeasurement{}, false
	}
	return u.record, true
}

// GetUnmappedMeasurements returns the annotations that failed conversion, in
// capture order
func (s *Service) GetUnmappedMeasurements() []measurement.UnmappedMeasurement {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.orderedUnmapped()
}

// put stores m under m.UID. An existing id is updated: the incoming content
// is merged over the stored finding fields. A new id is added. The stored
// measurement is validated first and nothing is written if it is invalid.
func (s *Service) put(mapping *measurement.Mapping, m measurement.Measurement, raw bool) (shared.DomainEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, isUpdate := s.entries[m.UID]
	if isUpdate {
		m = measurement.MergeForUpdate(existing.measurement, m)
	}
	m.ModifiedTimestamp = s.stamp()
	if err := m.Validate(); err != nil {
		return nil, err
	}

	if isUpdate {
		existing.measurement = m
		existing.mapping = mapping
		s.logger.Debug("Measurement updated",
			zap.String("measurement_id", m.UID),
			zap.String("source", m.Source.String()))
		return measurement.NewMeasurementUpdatedEvent(m.Source, m.Clone(), false), nil
	}

	s.entries[m.UID] = &entry{measurement: m, mapping: mapping, seq: s.nextSeq()}
	s.logger.Debug("Measurement added",
		zap.String("measurement_id", m.UID),
		zap.String("source", m.Source.String()),
		zap.Bool("raw", raw))
	return measurement.NewMeasurementAddedEvent(m.Source, m.Clone(), raw), nil
}

// captureUnmapped keeps an annotation that failed conversion. It returns the
// id the record is stored under.
func (s *Service) captureUnmapped(source *measurement.Source, annotationType string, annotation measurement.Annotation, id string, cause error) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = s.newID()
	}
	seq := s.nextSeq()
	if prev, ok := s.unmapped[id]; ok {
		seq = prev.seq
	}
	s.unmapped[id] = &unmappedEntry{
		record: measurement.NewUnmappedMeasurement(id, source, annotationType, annotation, cause, s.now()),
		seq:    seq,
	}

	s.logger.Error("Failed to convert annotation to measurement",
		zap.String("unmapped_id", id),
		zap.String("source", source.String()),
		zap.String("annotation_type", annotationType),
		zap.Error(cause))
	return id
}

// Remove deletes the measurement or unmapped record with the given id and
// publishes MEASUREMENT_REMOVED. An unknown id is logged and ignored. source
// may be nil when the removal does not originate from a source.
func (s *Service) Remove(source *measurement.Source, measurementID string, details map[string]any) error {
	s.mu.Lock()
	if source != nil {
		if err := s.checkSource(source); err != nil {
			s.mu.Unlock()
			return err
		}
	}

	e, stored := s.entries[measurementID]
	_, unmapped := s.unmapped[measurementID]
	if !stored && !unmapped {
		s.mu.Unlock()
		s.logger.Warn("No measurement found to remove",
			zap.String("measurement_id", measurementID))
		return nil
	}
	if stored {
		delete(s.entries, measurementID)
		if source == nil {
			source = e.measurement.Source
		}
	}
	delete(s.unmapped, measurementID)
	s.mu.Unlock()

	s.publish(measurement.NewMeasurementRemovedEvent(source, measurementID, maps.Clone(details)))
	return nil
}

// ClearMeasurements empties both the stored and the unmapped collections and
// publishes a single MEASUREMENTS_CLEARED event carrying everything that was
// discarded. Session teardown must call it.
func (s *Service) ClearMeasurements() {
	s.mu.Lock()
	cleared := make([]measurement.Measurement, 0, len(s.entries))
	for _, e := range s.orderedEntries() {
		cleared = append(cleared, e.measurement)
	}
	unmapped := s.orderedUnmapped()
	s.entries = make(map[string]*entry)
	s.unmapped = make(map[string]*unmappedEntry)
	s.mu.Unlock()

	s.logger.Info("Measurements cleared",
		zap.Int("measurement_count", len(cleared)),
		zap.Int("unmapped_count", len(unmapped)))
	s.publish(measurement.NewMeasurementsClearedEvent(cleared, unmapped))
}

// SetMeasurementSelected sets the selected flag and publishes
// MEASUREMENT_UPDATED. An unknown id is a no-op.
func (s *Service) SetMeasurementSelected(measurementID string, selected bool) {
	s.mu.Lock()
	e, ok := s.entries[measurementID]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("No measurement found to select",
			zap.String("measurement_id", measurementID))
		return
	}
	e.measurement.Selected = selected
	e.measurement.ModifiedTimestamp = s.stamp()
	m := e.measurement.Clone()
	s.mu.Unlock()

	s.publish(measurement.NewMeasurementUpdatedEvent(m.Source, m, false))
}

// Update applies patch to a stored measurement and publishes
// MEASUREMENT_UPDATED. notYetUpdatedAtSource tells the producing tool that
// the change did not come from it. An unknown id is logged and ignored; a
// patch that leaves the measurement invalid is rejected without a write.
func (s *Service) Update(measurementID string, patch measurement.MeasurementPatch, notYetUpdatedAtSource bool) error {
	s.mu.Lock()
	e, ok := s.entries[measurementID]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("No measurement found to update",
			zap.String("measurement_id", measurementID))
		return nil
	}

	updated := patch.ApplyTo(e.measurement)
	updated.ModifiedTimestamp = s.stamp()
	if err := updated.Validate(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("update %s: %w", measurementID, err)
	}
	e.measurement = updated
	m := updated.Clone()
	s.mu.Unlock()

	s.logger.Debug("Measurement patched",
		zap.String("measurement_id", measurementID),
		zap.Strings("fields", patch.Keys()),
		zap.Bool("not_yet_updated_at_source", notYetUpdatedAtSource))
	s.publish(measurement.NewMeasurementUpdatedEvent(m.Source, m, notYetUpdatedAtSource))
	return nil
}

// JumpToMeasurement asks viewports, then layouts, to navigate to a
// measurement. Both broadcasts carry the same request, so layout listeners
// can skip navigation when a viewport consumed it. It reports whether any
// listener consumed the request.
func (s *Service) JumpToMeasurement(viewportID, measurementID string) bool {
	m, ok := s.GetMeasurement(measurementID)
	if !ok {
		s.logger.Warn("No measurement found to jump to",
			zap.String("measurement_id", measurementID),
			zap.String("viewport_id", viewportID))
		return false
	}

	viewportEvent := measurement.NewJumpToMeasurementEvent(viewportID, m)
	s.publish(viewportEvent)
	s.publish(viewportEvent.LayoutPhase())
	return viewportEvent.IsConsumed()
}

// orderedEntries must be called with s.mu held
func (s *Service) orderedEntries() []*entry {
	ordered := slices.Collect(maps.Values(s.entries))
	slices.SortFunc(ordered, func(a, b *entry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return ordered
}

// orderedUnmapped must be called with s.mu held
func (s *Service) orderedUnmapped() []measurement.UnmappedMeasurement {
	ordered := slices.Collect(maps.Values(s.unmapped))
	slices.SortFunc(ordered, func(a, b *unmappedEntry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	records := make([]measurement.UnmappedMeasurement, len(ordered))
	for i, u := range ordered {
		records[i] = u.record
	}
	return records
}
