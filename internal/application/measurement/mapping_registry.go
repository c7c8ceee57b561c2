package measurement

import (
	"fmt"
	"slices"

	"github.com/medview/backend/internal/domain/measurement"
	"go.uber.org/zap"
)

// AddMapping registers a conversion rule for one annotation type of source.
//
// Mappings sharing an annotation type are told apart by their criteria. A
// mapping whose criteria overlap one already registered for the same type
// would make resolution depend on registration order, so it is rejected with
// ErrAmbiguousMapping. At most one unconstrained (default) mapping may exist
// per annotation type.
func (s *Service) AddMapping(
	source *measurement.Source,
	annotationType string,
	criteria *measurement.MatchingCriteria,
	converter measurement.Converter,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkSource(source); err != nil {
		return err
	}
	mapping, err := measurement.NewMapping(source, annotationType, criteria, converter)
	if err != nil {
		return err
	}

	for _, existing := range s.mappings[source] {
		if existing.AnnotationType != mapping.AnnotationType {
			continue
		}
		if existing.Criteria.Overlaps(mapping.Criteria) {
			return fmt.Errorf("%w: %s %s criteria %s overlap registered criteria %s",
				measurement.ErrAmbiguousMapping, source, mapping.AnnotationType,
				mapping.Criteria, existing.Criteria)
		}
	}

	s.mappings[source] = append(s.mappings[source], mapping)
	s.logger.Debug("Measurement mapping registered",
		zap.String("source", source.String()),
		zap.String("annotation_type", mapping.AnnotationType),
		zap.Stringer("criteria", mapping.Criteria))
	return nil
}

// Mappings returns the mappings registered for source in registration order
func (s *Service) Mappings(source *measurement.Source) []*measurement.Mapping {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.mappings[source])
}

// resolve selects the mapping for (source, annotationType) whose criteria
// the shape satisfies, falling back to the type's unconstrained mapping.
// Must be called with s.mu held.
func (s *Service) resolve(source *measurement.Source, annotationType string, shape measurement.Shape) *measurement.Mapping {
	var fallback *measurement.Mapping
	for _, m := range s.mappings[source] {
		if m.AnnotationType != annotationType {
			continue
		}
		if m.Criteria.Matches(shape) {
			return m
		}
		if m.IsDefault() && fallback == nil {
			fallback = m
		}
	}
	return fallback
}

// resolveAnnotation picks the mapping for an inbound payload. Payloads that
// report their shape go through resolve; for the rest the shape is unknown
// before conversion and the first mapping registered for the type is used.
// Must be called with s.mu held.
func (s *Service) resolveAnnotation(source *measurement.Source, annotationType string, annotation measurement.Annotation) *measurement.Mapping {
	if shaper, ok := annotation.(measurement.Shaper); ok {
		return s.resolve(source, annotationType, shaper.Shape())
	}
	for _, m := range s.mappings[source] {
		if m.AnnotationType == annotationType {
			return m
		}
	}
	return nil
}

// resolveReverse picks the mapping used to rebuild the annotation of a stored
// measurement. The mapping that produced the entry is preferred when it
// belongs to the same source and type. Must be called with s.mu held.
func (s *Service) resolveReverse(source *measurement.Source, annotationType string, e *entry) *measurement.Mapping {
	if m := e.mapping; m != nil && m.Source == source && m.AnnotationType == annotationType {
		return m
	}
	return s.resolve(source, annotationType, e.measurement.Shape())
}
