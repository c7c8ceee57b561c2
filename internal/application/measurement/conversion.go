package measurement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/medview/backend/internal/domain/measurement"
	"github.com/medview/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// AnnotationToMeasurement converts an annotation produced by source and
// stores the result, returning the measurement id.
//
// The id is the annotation's own UID when it carries one; otherwise a new id
// is generated and the tool is expected to persist it onto its annotation so
// that later updates correlate. A converter failure or an invalid result is
// captured in the unmapped set and returned as ErrConversionFailed. When no
// mapping applies the call logs a warning and returns "" with no error.
func (s *Service) AnnotationToMeasurement(
	source *measurement.Source,
	annotationType string,
	annotation measurement.Annotation,
	isUpdate bool,
) (string, error) {
	annotationType = strings.TrimSpace(annotationType)

	s.mu.Lock()
	if err := s.checkSource(source); err != nil {
		s.mu.Unlock()
		return "", err
	}
	if annotationType == "" {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: annotation type is required", shared.ErrInvalidInput)
	}
	if len(s.mappings[source]) == 0 {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", measurement.ErrNoMappings, source)
	}
	mapping := s.resolveAnnotation(source, annotationType, annotation)
	s.mu.Unlock()

	if mapping == nil {
		s.logger.Warn("No mapping found for annotation",
			zap.String("source", source.String()),
			zap.String("annotation_type", annotationType))
		return "", nil
	}

	uid := measurement.AnnotationUID(annotation)
	if isUpdate && uid == "" {
		s.logger.Warn("Annotation update carries no uid and will be stored as a new measurement",
			zap.String("source", source.String()),
			zap.String("annotation_type", annotationType))
	}

	return s.convertAndStore(source, annotationType, annotation, uid, mapping, mapping.Converter.ToMeasurement, false)
}

// AddRawMeasurement stores data converted by a one-off converter instead of
// a registered mapping. It is the entry point for imported measurements and
// follows the validation rules of AnnotationToMeasurement, so the source must
// have mappings registered. Added measurements are published as
// RAW_MEASUREMENT_ADDED.
func (s *Service) AddRawMeasurement(
	source *measurement.Source,
	annotationType string,
	data any,
	toMeasurement measurement.ToMeasurementFunc,
) (string, error) {
	annotationType = strings.TrimSpace(annotationType)

	s.mu.Lock()
	if err := s.checkSource(source); err != nil {
		s.mu.Unlock()
		return "", err
	}
	if annotationType == "" {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: annotation type is required", shared.ErrInvalidInput)
	}
	if len(s.mappings[source]) == 0 {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", measurement.ErrNoMappings, source)
	}
	s.mu.Unlock()

	if toMeasurement == nil {
		return "", fmt.Errorf("%w: toMeasurement converter is required", shared.ErrInvalidInput)
	}

	return s.convertAndStore(source, annotationType, data, measurement.AnnotationUID(data), nil, toMeasurement, true)
}

// convertAndStore runs the converter outside the lock, since converters are
// tool code that may read back from the service.
func (s *Service) convertAndStore(
	source *measurement.Source,
	annotationType string,
	annotation measurement.Annotation,
	uid string,
	mapping *measurement.Mapping,
	toMeasurement func(measurement.Annotation) (*measurement.Measurement, error),
	raw bool,
) (string, error) {
	converted, err := safeToMeasurement(toMeasurement, annotation)
	if err == nil && converted == nil {
		err = errors.New("converter returned no measurement")
	}
	if err != nil {
		id := s.captureUnmapped(source, annotationType, annotation, uid, err)
		return "", fmt.Errorf("%w: %s %s (unmapped id %s): %w",
			measurement.ErrConversionFailed, source, annotationType, id, err)
	}

	m := converted.Clone()
	if uid == "" {
		uid = s.newID()
		s.logger.Info("Annotation has no uid, generated one; the tool must persist it for later updates",
			zap.String("measurement_id", uid),
			zap.String("source", source.String()),
			zap.String("annotation_type", annotationType))
	}
	m.UID = uid
	m.Source = source
	m.AnnotationType = annotationType

	if mapping == nil {
		s.mu.Lock()
		mapping = s.resolve(source, annotationType, m.Shape())
		s.mu.Unlock()
	}

	event, err := s.put(mapping, m, raw)
	if err != nil {
		id := s.captureUnmapped(source, annotationType, annotation, uid, err)
		return "", fmt.Errorf("%w: %s %s (unmapped id %s): %w",
			measurement.ErrConversionFailed, source, annotationType, id, err)
	}
	s.publish(event)
	return uid, nil
}

// GetAnnotation rebuilds the annotation for a stored measurement through the
// source's mapping. An unknown measurement or a missing mapping is logged and
// yields a nil annotation with no error.
func (s *Service) GetAnnotation(source *measurement.Source, annotationType, measurementID string) (measurement.Annotation, error) {
	annotationType = strings.TrimSpace(annotationType)

	s.mu.Lock()
	if err := s.checkSource(source); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if annotationType == "" {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: annotation type is required", shared.ErrInvalidInput)
	}
	e, ok := s.entries[measurementID]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("No measurement found for annotation lookup",
			zap.String("measurement_id", measurementID),
			zap.String("source", source.String()))
		return nil, nil
	}
	mapping := s.resolveReverse(source, annotationType, e)
	m := e.measurement.Clone()
	s.mu.Unlock()

	if mapping == nil {
		s.logger.Warn("No mapping found for measurement",
			zap.String("measurement_id", measurementID),
			zap.String("source", source.String()),
			zap.String("annotation_type", annotationType))
		return nil, nil
	}

	annotation, err := safeToAnnotation(mapping.Converter, m)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s to annotation: %w",
			measurement.ErrConversionFailed, source, annotationType, err)
	}
	return annotation, nil
}

func safeToMeasurement(
	convert func(measurement.Annotation) (*measurement.Measurement, error),
	annotation measurement.Annotation,
) (m *measurement.Measurement, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("converter panic: %v", r)
		}
	}()
	return convert(annotation)
}

func safeToAnnotation(converter measurement.Converter, m measurement.Measurement) (a measurement.Annotation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("converter panic: %v", r)
		}
	}()
	return converter.ToAnnotation(m)
}
