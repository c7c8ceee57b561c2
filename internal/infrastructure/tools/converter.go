package tools

import (
	"slices"

	"github.com/medview/backend/internal/domain/measurement"
)

// converter implements measurement.Converter for one tool
type converter struct {
	tool Tool
}

func (c converter) ToMeasurement(payload measurement.Annotation) (*measurement.Measurement, error) {
	a, err := asAnnotation(payload)
	if err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	m := &measurement.Measurement{
		UID:                 a.UID,
		Type:                c.tool.ValueType,
		Label:               a.Label,
		Points:              slices.Clone(a.Handles),
		ReferencedImageID:   a.ReferencedImageID,
		StudyInstanceUID:    a.StudyInstanceUID,
		SeriesInstanceUID:   a.SeriesInstanceUID,
		SOPInstanceUID:      a.SOPInstanceUID,
		FrameOfReferenceUID: a.FrameOfReferenceUID,
		FrameNumber:         a.FrameNumber,
	}
	if a.Text != "" && m.Label == "" {
		m.Label = a.Text
	}
	if a.Stats != nil {
		m.Unit = a.Stats.Unit
		m.AreaUnit = a.Stats.AreaUnit
		c.tool.values(a.Stats, m)
	}
	m.DisplayText = c.tool.display(m)
	return m, nil
}

func (c converter) ToAnnotation(m measurement.Measurement) (measurement.Annotation, error) {
	a := Annotation{
		UID:                 m.UID,
		ToolName:            c.tool.Name,
		Label:               m.Label,
		Handles:             slices.Clone(m.Points),
		ReferencedImageID:   m.ReferencedImageID,
		StudyInstanceUID:    m.StudyInstanceUID,
		SeriesInstanceUID:   m.SeriesInstanceUID,
		SOPInstanceUID:      m.SOPInstanceUID,
		FrameOfReferenceUID: m.FrameOfReferenceUID,
		FrameNumber:         m.FrameNumber,
		Stats: &Stats{
			Unit:      m.Unit,
			AreaUnit:  m.AreaUnit,
			Area:      m.Area,
			Perimeter: m.Perimeter,
			Mean:      m.Mean,
			StdDev:    m.StdDev,
			Min:       m.Min,
			Max:       m.Max,
			Angle:     m.Angle,
		},
	}
	switch c.tool.Name {
	case ToolBidirectional:
		a.Stats.Length = m.LongestDiameter
		a.Stats.Width = m.ShortestDiameter
	case ToolProbe:
		a.Stats.Value = m.Mean
		a.Stats.Mean = nil
	case ToolArrowAnnotate:
		a.Text = m.Label
	default:
		a.Stats.Length = m.Length
	}
	return a, nil
}
