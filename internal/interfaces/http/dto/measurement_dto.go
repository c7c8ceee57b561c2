package dto

import (
	"time"

	"github.com/medview/backend/internal/domain/measurement"
)

// CreateSourceRequest registers an annotation source
type CreateSourceRequest struct {
	Name    string `json:"name" binding:"required,max=128"`
	Version string `json:"version" binding:"required,max=64"`
}

// SourceResponse describes a registered source
type SourceResponse struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Version  string            `json:"version"`
	Mappings []MappingResponse `json:"mappings,omitempty"`
}

// MappingResponse describes one registered mapping
type MappingResponse struct {
	AnnotationType string `json:"annotation_type"`
	Criteria       string `json:"criteria"`
	Default        bool   `json:"default"`
}

// ToSourceResponse converts a source and its mappings
func ToSourceResponse(source *measurement.Source, mappings []*measurement.Mapping) SourceResponse {
	resp := SourceResponse{
		ID:      source.ID,
		Name:    source.Name,
		Version: source.Version,
	}
	for _, m := range mappings {
		resp.Mappings = append(resp.Mappings, MappingResponse{
			AnnotationType: m.AnnotationType,
			Criteria:       m.Criteria.String(),
			Default:        m.IsDefault(),
		})
	}
	return resp
}

// SourceRef is the compact source reference embedded in measurements
type SourceRef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

func toSourceRef(source *measurement.Source) *SourceRef {
	if source == nil {
		return nil
	}
	return &SourceRef{ID: source.ID, Name: source.Name, Version: source.Version}
}

// MeasurementResponse is the wire form of a measurement
type MeasurementResponse struct {
	measurement.Measurement
	Source *SourceRef `json:"source,omitempty"`
}

// ToMeasurementResponse converts a measurement
func ToMeasurementResponse(m measurement.Measurement) MeasurementResponse {
	return MeasurementResponse{
		Measurement: m,
		Source:      toSourceRef(m.Source),
	}
}

// ToMeasurementResponses converts a slice of measurements
func ToMeasurementResponses(ms []measurement.Measurement) []MeasurementResponse {
	out := make([]MeasurementResponse, len(ms))
	for i, m := range ms {
		out[i] = ToMeasurementResponse(m)
	}
	return out
}

// UnmappedResponse is the wire form of an annotation that failed conversion
type UnmappedResponse struct {
	ID             string    `json:"id"`
	Source         SourceRef `json:"source"`
	AnnotationType string    `json:"annotation_type"`
	Annotation     any       `json:"annotation"`
	Reason         string    `json:"reason"`
	CapturedAt     time.Time `json:"captured_at"`
}

// ToUnmappedResponses converts unmapped records
func ToUnmappedResponses(records []measurement.UnmappedMeasurement) []UnmappedResponse {
	out := make([]UnmappedResponse, len(records))
	for i, u := range records {
		out[i] = ToUnmappedResponse(u)
	}
	return out
}

// ToUnmappedResponse converts one unmapped record
func ToUnmappedResponse(u measurement.UnmappedMeasurement) UnmappedResponse {
	return UnmappedResponse{
		ID: u.ID,
		Source: SourceRef{
			ID:      u.SourceID,
			Name:    u.SourceName,
			Version: u.SourceVersion,
		},
		AnnotationType: u.AnnotationType,
		Annotation:     u.Annotation,
		Reason:         u.Reason,
		CapturedAt:     u.CapturedAt,
	}
}

// AnnotationResponse is returned after an annotation is converted
type AnnotationResponse struct {
	MeasurementID string `json:"measurement_id"`
}

// UpdateMeasurementRequest is decoded with unknown fields disallowed, so
// only fields a measurement defines can be patched
type UpdateMeasurementRequest struct {
	measurement.MeasurementPatch
	NotYetUpdatedAtSource bool `json:"not_yet_updated_at_source,omitempty"`
}

// SelectMeasurementRequest toggles the selected flag
type SelectMeasurementRequest struct {
	Selected *bool `json:"selected" binding:"required"`
}

// RemoveMeasurementRequest is the optional body of a delete
type RemoveMeasurementRequest struct {
	SourceID string         `json:"source_id,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// JumpRequest asks viewers to navigate to a measurement
type JumpRequest struct {
	ViewportID string `json:"viewport_id" binding:"max=128"`
}

// JumpResponse reports whether a listener consumed the jump
type JumpResponse struct {
	MeasurementID string `json:"measurement_id"`
	Consumed      bool   `json:"consumed"`
}
