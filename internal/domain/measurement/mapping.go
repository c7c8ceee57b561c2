package measurement

import (
	"fmt"
	"strings"

	"github.com/medview/backend/internal/domain/shared"
)

// Annotation is the native, tool-specific payload of a finding. Its shape is
// owned by the tool and is only interpreted by the tool's converters.
type Annotation = any

// Identified is implemented by annotations that carry their own UID
type Identified interface {
	AnnotationUID() string
}

// AnnotationUID returns the UID carried by the annotation, or "" if it has none
func AnnotationUID(annotation Annotation) string {
	switch a := annotation.(type) {
	case Identified:
		return a.AnnotationUID()
	case map[string]any:
		for _, key := range []string{"uid", "annotationUID"} {
			if uid, ok := a[key].(string); ok && uid != "" {
				return uid
			}
		}
	}
	return ""
}

// Converter translates between a source's annotation shape and Measurement
type Converter interface {
	ToMeasurement(annotation Annotation) (*Measurement, error)
	ToAnnotation(m Measurement) (Annotation, error)
}

// ToMeasurementFunc converts one payload to a measurement. It is the one-off
// converter used for raw (import) measurements.
type ToMeasurementFunc func(data any) (*Measurement, error)

// ToAnnotationFunc converts a measurement back to a tool annotation
type ToAnnotationFunc func(m Measurement) (Annotation, error)

// ConverterFuncs adapts a pair of functions to the Converter interface
type ConverterFuncs struct {
	ToMeasurementFunc ToMeasurementFunc
	ToAnnotationFunc  ToAnnotationFunc
}

// ToMeasurement calls ToMeasurementFunc
func (c ConverterFuncs) ToMeasurement(annotation Annotation) (*Measurement, error) {
	return c.ToMeasurementFunc(annotation)
}

// ToAnnotation calls ToAnnotationFunc
func (c ConverterFuncs) ToAnnotation(m Measurement) (Annotation, error) {
	return c.ToAnnotationFunc(m)
}

// isComplete reports whether both directions of the converter are present
func isComplete(c Converter) bool {
	switch fn := c.(type) {
	case nil:
		return false
	case ConverterFuncs:
		return fn.ToMeasurementFunc != nil && fn.ToAnnotationFunc != nil
	case *ConverterFuncs:
		return fn != nil && fn.ToMeasurementFunc != nil && fn.ToAnnotationFunc != nil
	}
	return true
}

// Mapping is a conversion rule between one source's annotation type and the
// canonical Measurement. Mappings are immutable once registered.
type Mapping struct {
	Source         *Source
	AnnotationType string
	Criteria       *MatchingCriteria
	Converter      Converter
}

// NewMapping validates the mapping arguments. Whether source is registered
// is checked by the registry that stores the mapping.
func NewMapping(source *Source, annotationType string, criteria *MatchingCriteria, converter Converter) (*Mapping, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: mapping requires a source", ErrInvalidSource)
	}
	annotationType = strings.TrimSpace(annotationType)
	if annotationType == "" {
		return nil, fmt.Errorf("%w: annotation type is required", shared.ErrInvalidInput)
	}
	if criteria == nil {
		return nil, fmt.Errorf("%w: matching criteria are required for %s", shared.ErrInvalidInput, annotationType)
	}
	for _, c := range criteria.Criteria {
		if c.Points < 1 {
			return nil, fmt.Errorf("%w: criterion point count must be positive", shared.ErrInvalidInput)
		}
		if c.ValueType != "" && !c.ValueType.IsValid() {
			return nil, fmt.Errorf("%w: unknown value type %q", shared.ErrInvalidInput, c.ValueType)
		}
	}
	if !isComplete(converter) {
		return nil, fmt.Errorf("%w: both toAnnotation and toMeasurement converters are required for %s",
			shared.ErrInvalidInput, annotationType)
	}

	return &Mapping{
		Source:         source,
		AnnotationType: annotationType,
		Criteria:       &MatchingCriteria{Criteria: append([]Criterion(nil), criteria.Criteria...)},
		Converter:      converter,
	}, nil
}

// IsDefault reports whether the mapping has no criteria constraint
func (m *Mapping) IsDefault() bool {
	return m.Criteria.IsUnconstrained()
}
