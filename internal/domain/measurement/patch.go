package measurement

import (
	"maps"
	"slices"
)

// MeasurementPatch is a partial update. Nil fields are left unchanged.
// ClearFinding removes the finding, since a nil Finding means "unchanged".
type MeasurementPatch struct {
	Label        *string         `json:"label,omitempty"`
	Description  *string         `json:"description,omitempty"`
	DisplayText  *string         `json:"display_text,omitempty"`
	Unit         *string         `json:"unit,omitempty"`
	AreaUnit     *string         `json:"area_unit,omitempty"`
	Points       *[]Point        `json:"points,omitempty"`
	Length       *float64        `json:"length,omitempty"`
	Area         *float64        `json:"area,omitempty"`
	Perimeter    *float64        `json:"perimeter,omitempty"`
	Mean         *float64        `json:"mean,omitempty"`
	StdDev       *float64        `json:"std_dev,omitempty"`
	Finding      *CodedConcept   `json:"finding,omitempty"`
	ClearFinding bool            `json:"clear_finding,omitempty"`
	FindingSites *[]CodedConcept `json:"finding_sites,omitempty"`
	Selected     *bool           `json:"selected,omitempty"`
	Extensions   map[string]any  `json:"extensions,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p MeasurementPatch) IsEmpty() bool {
	return p.Label == nil && p.Description == nil && p.DisplayText == nil &&
		p.Unit == nil && p.AreaUnit == nil && p.Points == nil &&
		p.Length == nil && p.Area == nil && p.Perimeter == nil &&
		p.Mean == nil && p.StdDev == nil && p.Finding == nil && !p.ClearFinding &&
		p.FindingSites == nil && p.Selected == nil && len(p.Extensions) == 0
}

// ApplyTo returns a copy of m with the patch applied. Extensions are merged
// key by key; a nil value deletes the key.
func (p MeasurementPatch) ApplyTo(m Measurement) Measurement {
	out := m.Clone()
	setString(&out.Label, p.Label)
	setString(&out.Description, p.Description)
	setString(&out.DisplayText, p.DisplayText)
	setString(&out.Unit, p.Unit)
	setString(&out.AreaUnit, p.AreaUnit)
	if p.Points != nil {
		out.Points = slices.Clone(*p.Points)
	}
	setFloat(&out.Length, p.Length)
	setFloat(&out.Area, p.Area)
	setFloat(&out.Perimeter, p.Perimeter)
	setFloat(&out.Mean, p.Mean)
	setFloat(&out.StdDev, p.StdDev)
	if p.ClearFinding {
		out.Finding = nil
	}
	if p.Finding != nil {
		f := *p.Finding
		out.Finding = &f
	}
	if p.FindingSites != nil {
		out.FindingSites = slices.Clone(*p.FindingSites)
	}
	if p.Selected != nil {
		out.Selected = *p.Selected
	}
	if len(p.Extensions) > 0 {
		if out.Extensions == nil {
			out.Extensions = make(map[string]any, len(p.Extensions))
		}
		for k, v := range p.Extensions {
			if v == nil {
				delete(out.Extensions, k)
				continue
			}
			out.Extensions[k] = v
		}
		if len(out.Extensions) == 0 {
			out.Extensions = nil
		}
	}
	return out
}

// Keys lists the fields the patch touches, for logging
func (p MeasurementPatch) Keys() []string {
	var keys []string
	add := func(set bool, name string) {
		if set {
			keys = append(keys, name)
		}
	}
	add(p.Label != nil, "label")
	add(p.Description != nil, "description")
	add(p.DisplayText != nil, "display_text")
	add(p.Unit != nil, "unit")
	add(p.AreaUnit != nil, "area_unit")
	add(p.Points != nil, "points")
	add(p.Length != nil, "length")
	add(p.Area != nil, "area")
	add(p.Perimeter != nil, "perimeter")
	add(p.Mean != nil, "mean")
	add(p.StdDev != nil, "std_dev")
	add(p.Finding != nil || p.ClearFinding, "finding")
	add(p.FindingSites != nil, "finding_sites")
	add(p.Selected != nil, "selected")
	if len(p.Extensions) > 0 {
		keys = append(keys, slices.Sorted(maps.Keys(p.Extensions))...)
	}
	return keys
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst **float64, v *float64) {
	if v != nil {
		f := *v
		*dst = &f
	}
}
