package measurement

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/medview/backend/internal/domain/shared"
)

// SourceOperations is implemented by the service that owns the source
// table. A Source forwards its bound operations to it.
type SourceOperations interface {
	AnnotationToMeasurement(source *Source, annotationType string, annotation Annotation, isUpdate bool) (string, error)
	GetAnnotation(source *Source, annotationType, measurementID string) (Annotation, error)
	Remove(source *Source, measurementID string, details map[string]any) error
}

// Source is a named, versioned producer of annotations, typically one per
// external tool integration. Sources are created once and never mutated.
type Source struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`

	ops SourceOperations
}

// NewSource creates a source bound to ops. Name and version are required.
func NewSource(name, version string, ops SourceOperations) (*Source, error) {
	name = strings.TrimSpace(name)
	version = strings.TrimSpace(version)
	if name == "" {
		return nil, fmt.Errorf("%w: source name is required", shared.ErrInvalidInput)
	}
	if version == "" {
		return nil, fmt.Errorf("%w: source version is required", shared.ErrInvalidInput)
	}

	return &Source{
		ID:      uuid.NewString(),
		Name:    name,
		Version: version,
		ops:     ops,
	}, nil
}

// Key returns the (name, version) identity used for idempotent registration
func (s *Source) Key() SourceKey {
	return SourceKey{Name: s.Name, Version: s.Version}
}

// String returns "name@version"
func (s *Source) String() string {
	if s == nil {
		return "<nil source>"
	}
	return s.Name + "@" + s.Version
}

// AnnotationToMeasurement converts an annotation produced by this source
func (s *Source) AnnotationToMeasurement(annotationType string, annotation Annotation, isUpdate bool) (string, error) {
	if s == nil || s.ops == nil {
		return "", fmt.Errorf("%w: source is not bound to a service", ErrInvalidSource)
	}
	return s.ops.AnnotationToMeasurement(s, annotationType, annotation, isUpdate)
}

// GetAnnotation returns the annotation-shaped view of a stored measurement
func (s *Source) GetAnnotation(annotationType, measurementID string) (Annotation, error) {
	if s == nil || s.ops == nil {
		return nil, fmt.Errorf("%w: source is not bound to a service", ErrInvalidSource)
	}
	return s.ops.GetAnnotation(s, annotationType, measurementID)
}

// Remove removes a measurement on behalf of this source. details are passed
// through to the removed event.
func (s *Source) Remove(measurementID string, details map[string]any) error {
	if s == nil || s.ops == nil {
		return fmt.Errorf("%w: source is not bound to a service", ErrInvalidSource)
	}
	return s.ops.Remove(s, measurementID, details)
}

// SourceKey identifies a source by name and version
type SourceKey struct {
	Name    string
	Version string
}
