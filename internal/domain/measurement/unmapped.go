package measurement

import "time"

// UnmappedMeasurement keeps an annotation that failed conversion so that it
// is not silently lost. It lives until its id is removed or the store is
// cleared.
type UnmappedMeasurement struct {
	ID             string     `json:"id"`
	SourceID       string     `json:"source_id"`
	SourceName     string     `json:"source_name"`
	SourceVersion  string     `json:"source_version"`
	AnnotationType string     `json:"annotation_type"`
	Annotation     Annotation `json:"annotation"`
	Reason         string     `json:"reason"`
	CapturedAt     time.Time  `json:"captured_at"`
}

// NewUnmappedMeasurement records a failed conversion
func NewUnmappedMeasurement(id string, source *Source, annotationType string, annotation Annotation, cause error, at time.Time) UnmappedMeasurement {
	u := UnmappedMeasurement{
		ID:             id,
		AnnotationType: annotationType,
		Annotation:     annotation,
		CapturedAt:     at,
	}
	if source != nil {
		u.SourceID = source.ID
		u.SourceName = source.Name
		u.SourceVersion = source.Version
	}
	if cause != nil {
		u.Reason = cause.Error()
	}
	return u
}
