package measurement

import (
	"fmt"
	"maps"
	"math"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// AggregateTypeMeasurement is the aggregate type carried by measurement events
const AggregateTypeMeasurement = "Measurement"

// extensionKeyRegex validates extension keys: must start with a letter,
// followed by letters, numbers, underscores, hyphens, or dots
var extensionKeyRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]{0,63}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	_ = v.RegisterValidation("extkey", func(fl validator.FieldLevel) bool {
		return extensionKeyRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("valuetype", func(fl validator.FieldLevel) bool {
		return ValueType(fl.Field().String()).IsValid()
	})
	return v
}

// Point is a vertex in world (patient) coordinates
type Point struct {
	X float64 `json:"x" validate:"finite"`
	Y float64 `json:"y" validate:"finite"`
	Z float64 `json:"z" validate:"finite"`
}

// CodedConcept is a coded term such as a finding or finding site
type CodedConcept struct {
	CodeValue              string `json:"code_value" validate:"required"`
	CodingSchemeDesignator string `json:"coding_scheme_designator" validate:"required"`
	CodeMeaning            string `json:"code_meaning,omitempty"`
}

// Measurement is the canonical, source-agnostic record of a finding.
//
// The field set is fixed; tool-specific metadata that has no home here goes
// into Extensions. Geometric values are computed by the producing tool and
// passed through unchanged.
type Measurement struct {
	UID            string    `json:"uid" validate:"required,max=128"`
	Source         *Source   `json:"source,omitempty" validate:"-"`
	AnnotationType string    `json:"annotation_type,omitempty" validate:"max=128"`
	Type           ValueType `json:"type,omitempty" validate:"omitempty,valuetype"`

	Label       string `json:"label,omitempty" validate:"max=256"`
	Description string `json:"description,omitempty" validate:"max=1024"`
	DisplayText string `json:"display_text,omitempty" validate:"max=1024"`
	Unit        string `json:"unit,omitempty" validate:"max=32"`
	AreaUnit    string `json:"area_unit,omitempty" validate:"max=32"`

	Points           []Point  `json:"points,omitempty" validate:"omitempty,dive"`
	Length           *float64 `json:"length,omitempty" validate:"omitempty,finite"`
	Area             *float64 `json:"area,omitempty" validate:"omitempty,finite"`
	Perimeter        *float64 `json:"perimeter,omitempty" validate:"omitempty,finite"`
	Mean             *float64 `json:"mean,omitempty" validate:"omitempty,finite"`
	StdDev           *float64 `json:"std_dev,omitempty" validate:"omitempty,finite"`
	Min              *float64 `json:"min,omitempty" validate:"omitempty,finite"`
	Max              *float64 `json:"max,omitempty" validate:"omitempty,finite"`
	ShortestDiameter *float64 `json:"shortest_diameter,omitempty" validate:"omitempty,finite"`
	LongestDiameter  *float64 `json:"longest_diameter,omitempty" validate:"omitempty,finite"`
	Angle            *float64 `json:"angle,omitempty" validate:"omitempty,finite"`

	Finding      *CodedConcept  `json:"finding,omitempty"`
	FindingSites []CodedConcept `json:"finding_sites,omitempty" validate:"omitempty,dive"`

	StudyInstanceUID      string `json:"study_instance_uid,omitempty" validate:"max=64"`
	SeriesInstanceUID     string `json:"series_instance_uid,omitempty" validate:"max=64"`
	SOPInstanceUID        string `json:"sop_instance_uid,omitempty" validate:"max=64"`
	FrameOfReferenceUID   string `json:"frame_of_reference_uid,omitempty" validate:"max=64"`
	ReferencedImageID     string `json:"referenced_image_id,omitempty" validate:"max=2048"`
	DisplaySetInstanceUID string `json:"display_set_instance_uid,omitempty" validate:"max=128"`
	FrameNumber           int    `json:"frame_number,omitempty" validate:"gte=0"`

	Selected          bool      `json:"selected"`
	ModifiedTimestamp time.Time `json:"modified_timestamp"`

	Extensions map[string]any `json:"extensions,omitempty" validate:"omitempty,max=64,dive,keys,extkey,endkeys"`
}

// Validate checks the measurement against its field constraints
func (m *Measurement) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: measurement is nil", ErrInvalidMeasurement)
	}
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMeasurement, err.Error())
	}
	return nil
}

// Shape returns the shape used to match the measurement against mapping criteria
func (m *Measurement) Shape() Shape {
	return Shape{ValueType: m.Type, Points: len(m.Points)}
}

// Clone returns a deep copy. The Source reference is shared; it is
// informational and never owned by the measurement.
func (m Measurement) Clone() Measurement {
	c := m
	c.Points = slices.Clone(m.Points)
	c.FindingSites = slices.Clone(m.FindingSites)
	if m.Finding != nil {
		f := *m.Finding
		c.Finding = &f
	}
	c.Length = cloneFloat(m.Length)
	c.Area = cloneFloat(m.Area)
	c.Perimeter = cloneFloat(m.Perimeter)
	c.Mean = cloneFloat(m.Mean)
	c.StdDev = cloneFloat(m.StdDev)
	c.Min = cloneFloat(m.Min)
	c.Max = cloneFloat(m.Max)
	c.ShortestDiameter = cloneFloat(m.ShortestDiameter)
	c.LongestDiameter = cloneFloat(m.LongestDiameter)
	c.Angle = cloneFloat(m.Angle)
	c.Extensions = maps.Clone(m.Extensions)
	return c
}

// MergeForUpdate combines an incoming conversion result with the stored
// measurement it replaces. Converters do not repopulate the finding and
// finding sites on update, so those are kept from the stored record unless
// the incoming content sets them. The UID never changes.
func MergeForUpdate(existing, incoming Measurement) Measurement {
	merged := incoming.Clone()
	merged.UID = existing.UID
	if merged.Finding == nil && existing.Finding != nil {
		f := *existing.Finding
		merged.Finding = &f
	}
	if len(merged.FindingSites) == 0 {
		merged.FindingSites = slices.Clone(existing.FindingSites)
	}
	return merged
}

// Float returns a pointer to v, for populating optional value fields
func Float(v float64) *float64 {
	return &v
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}
