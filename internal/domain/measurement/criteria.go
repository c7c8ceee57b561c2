package measurement

import (
	"slices"
	"strconv"
	"strings"
)

// ValueType describes the geometric shape of a measurement
type ValueType string

const (
	ValueTypePoint         ValueType = "point"
	ValueTypePolyline      ValueType = "polyline"
	ValueTypeEllipse       ValueType = "ellipse"
	ValueTypeCircle        ValueType = "circle"
	ValueTypeRectangle     ValueType = "rectangle"
	ValueTypeBidirectional ValueType = "bidirectional"
	ValueTypeAngle         ValueType = "angle"
)

// IsValid checks if the value type is one of the known shapes
func (t ValueType) IsValid() bool {
	switch t {
	case ValueTypePoint, ValueTypePolyline, ValueTypeEllipse, ValueTypeCircle,
		ValueTypeRectangle, ValueTypeBidirectional, ValueTypeAngle:
		return true
	default:
		return false
	}
}

// Shape is the part of an annotation or measurement that matching criteria
// are evaluated against.
type Shape struct {
	ValueType ValueType
	Points    int
}

// Shaper is implemented by annotation payloads that can report their shape
// before conversion. Payloads that don't are resolved by registration order.
type Shaper interface {
	Shape() Shape
}

// Criterion is one condition of a mapping's matching criteria.
// Points is the required vertex count. An empty ValueType matches any type.
type Criterion struct {
	ValueType ValueType `json:"value_type,omitempty"`
	Points    int       `json:"points"`
}

// Matches reports whether the shape satisfies the criterion
func (c Criterion) Matches(shape Shape) bool {
	if c.Points != shape.Points {
		return false
	}
	return c.ValueType == "" || c.ValueType == shape.ValueType
}

// MatchingCriteria disambiguates mappings registered under the same
// annotation type. A mapping with no criteria is unconstrained and serves as
// the default for its annotation type.
type MatchingCriteria struct {
	Criteria []Criterion `json:"criteria"`
}

// Unconstrained returns criteria that match any shape
func Unconstrained() *MatchingCriteria {
	return &MatchingCriteria{}
}

// PointCount returns criteria requiring exactly n points of the given type
func PointCount(valueType ValueType, n int) *MatchingCriteria {
	return &MatchingCriteria{Criteria: []Criterion{{ValueType: valueType, Points: n}}}
}

// IsUnconstrained reports whether the criteria accept any shape
func (m *MatchingCriteria) IsUnconstrained() bool {
	return m == nil || len(m.Criteria) == 0
}

// Matches reports whether every criterion holds for the shape.
// Unconstrained criteria do not "match"; they are only used as the default.
func (m *MatchingCriteria) Matches(shape Shape) bool {
	if m.IsUnconstrained() {
		return false
	}
	for _, c := range m.Criteria {
		if !c.Matches(shape) {
			return false
		}
	}
	return true
}

// Overlaps reports whether some shape would satisfy both criteria, which
// would make the two mappings indistinguishable for that shape. Two
// unconstrained criteria overlap because both claim to be the default.
func (m *MatchingCriteria) Overlaps(other *MatchingCriteria) bool {
	if m.IsUnconstrained() || other.IsUnconstrained() {
		return m.IsUnconstrained() && other.IsUnconstrained()
	}
	combined := slices.Concat(m.Criteria, other.Criteria)
	points := combined[0].Points
	var valueType ValueType
	for _, c := range combined {
		if c.Points != points {
			return false
		}
		if c.ValueType == "" {
			continue
		}
		if valueType != "" && valueType != c.ValueType {
			return false
		}
		valueType = c.ValueType
	}
	return true
}

// String renders the criteria for logs
func (m *MatchingCriteria) String() string {
	if m.IsUnconstrained() {
		return "*"
	}
	parts := make([]string, len(m.Criteria))
	for i, c := range m.Criteria {
		vt := string(c.ValueType)
		if vt == "" {
			vt = "any"
		}
		parts[i] = vt + "/" + strconv.Itoa(c.Points)
	}
	return strings.Join(parts, ",")
}
