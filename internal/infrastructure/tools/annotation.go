package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/medview/backend/internal/domain/measurement"
	"github.com/medview/backend/internal/domain/shared"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Stats holds the values computed by the annotation tool. They are passed
// through to the measurement unchanged.
type Stats struct {
	Length    *float64 `json:"length,omitempty"`
	Width     *float64 `json:"width,omitempty"`
	Area      *float64 `json:"area,omitempty"`
	Perimeter *float64 `json:"perimeter,omitempty"`
	Mean      *float64 `json:"mean,omitempty"`
	StdDev    *float64 `json:"stdDev,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Angle     *float64 `json:"angle,omitempty"`
	Value     *float64 `json:"value,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	AreaUnit  string   `json:"areaUnit,omitempty"`
}

// Annotation is the payload produced by the viewer's annotation tools
type Annotation struct {
	UID                 string              `json:"annotationUID,omitempty" validate:"max=128"`
	ToolName            string              `json:"toolName" validate:"required,max=64"`
	Label               string              `json:"label,omitempty"`
	Text                string              `json:"text,omitempty"`
	Handles             []measurement.Point `json:"handles" validate:"required,min=1"`
	Stats               *Stats              `json:"cachedStats,omitempty"`
	ReferencedImageID   string              `json:"referencedImageId,omitempty"`
	StudyInstanceUID    string              `json:"studyInstanceUID,omitempty"`
	SeriesInstanceUID   string              `json:"seriesInstanceUID,omitempty"`
	SOPInstanceUID      string              `json:"sopInstanceUID,omitempty"`
	FrameOfReferenceUID string              `json:"frameOfReferenceUID,omitempty"`
	FrameNumber         int                 `json:"frameNumber,omitempty"`
}

// AnnotationUID implements measurement.Identified
func (a Annotation) AnnotationUID() string {
	return a.UID
}

// Shape implements measurement.Shaper
func (a Annotation) Shape() measurement.Shape {
	return measurement.Shape{ValueType: ValueTypeFor(a.ToolName), Points: len(a.Handles)}
}

// Validate checks the annotation's structural constraints
func (a *Annotation) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("%w: %s", shared.ErrInvalidInput, err.Error())
	}
	return nil
}

// DecodeAnnotation parses a tool annotation. Unknown fields are rejected.
// An empty toolName defaults to annotationType.
func DecodeAnnotation(annotationType string, raw []byte) (Annotation, error) {
	var a Annotation
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return Annotation{}, fmt.Errorf("%w: decode %s annotation: %s", shared.ErrInvalidInput, annotationType, err.Error())
	}
	if a.ToolName == "" {
		a.ToolName = annotationType
	}
	if err := a.Validate(); err != nil {
		return Annotation{}, err
	}
	return a, nil
}

func asAnnotation(payload measurement.Annotation) (Annotation, error) {
	switch a := payload.(type) {
	case Annotation:
		return a, nil
	case *Annotation:
		if a == nil {
			return Annotation{}, errors.New("nil tool annotation")
		}
		return *a, nil
	default:
		return Annotation{}, fmt.Errorf("unexpected annotation payload %T", payload)
	}
}
