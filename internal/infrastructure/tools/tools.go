// Package tools provides the measurement source for the viewer's built-in
// annotation tools: one mapping per tool, converting the tool's annotation
// payload to a Measurement and back.
package tools

import (
	"fmt"

	"github.com/medview/backend/internal/domain/measurement"
	"go.uber.org/zap"
)

// Tool names
const (
	ToolLength            = "Length"
	ToolBidirectional     = "Bidirectional"
	ToolEllipticalROI     = "EllipticalROI"
	ToolCircleROI         = "CircleROI"
	ToolRectangleROI      = "RectangleROI"
	ToolArrowAnnotate     = "ArrowAnnotate"
	ToolAngle             = "Angle"
	ToolCobbAngle         = "CobbAngle"
	ToolProbe             = "Probe"
	ToolPlanarFreehandROI = "PlanarFreehandROI"
)

// Tool describes how one annotation tool maps to measurements
type Tool struct {
	Name      string
	ValueType measurement.ValueType
	// Points is the handle count the mapping requires. Zero registers the
	// tool as the unconstrained default for its name.
	Points int

	values  func(s *Stats, m *measurement.Measurement)
	display func(m *measurement.Measurement) string
}

// Criteria returns the matching criteria registered for the tool
func (t Tool) Criteria() *measurement.MatchingCriteria {
	if t.Points == 0 {
		return measurement.Unconstrained()
	}
	return measurement.PointCount(t.ValueType, t.Points)
}

var builtinTools = []Tool{
	{Name: ToolLength, ValueType: measurement.ValueTypePolyline, Points: 2,
		values: func(s *Stats, m *measurement.Measurement) { m.Length = s.Length },
		display: func(m *measurement.Measurement) string {
			return formatValue(m.Length, m.Unit)
		}},
	{Name: ToolBidirectional, ValueType: measurement.ValueTypeBidirectional, Points: 4,
		values: func(s *Stats, m *measurement.Measurement) {
			m.LongestDiameter = s.Length
			m.ShortestDiameter = s.Width
		},
		display: func(m *measurement.Measurement) string {
			return joinDisplay(labelled("L:", formatValue(m.LongestDiameter, m.Unit)),
				labelled("W:", formatValue(m.ShortestDiameter, m.Unit)))
		}},
	{Name: ToolEllipticalROI, ValueType: measurement.ValueTypeEllipse, Points: 4,
		values: areaValues, display: areaDisplay},
	{Name: ToolCircleROI, ValueType: measurement.ValueTypeCircle, Points: 2,
		values: areaValues, display: areaDisplay},
	{Name: ToolRectangleROI, ValueType: measurement.ValueTypeRectangle, Points: 4,
		values: areaValues, display: areaDisplay},
	{Name: ToolArrowAnnotate, ValueType: measurement.ValueTypePoint, Points: 2,
		values:  func(*Stats, *measurement.Measurement) {},
		display: func(m *measurement.Measurement) string { return m.Label }},
	{Name: ToolAngle, ValueType: measurement.ValueTypeAngle, Points: 3,
		values:  func(s *Stats, m *measurement.Measurement) { m.Angle = s.Angle },
		display: func(m *measurement.Measurement) string { return formatValue(m.Angle, "°") }},
	{Name: ToolCobbAngle, ValueType: measurement.ValueTypeAngle, Points: 4,
		values:  func(s *Stats, m *measurement.Measurement) { m.Angle = s.Angle },
		display: func(m *measurement.Measurement) string { return formatValue(m.Angle, "°") }},
	{Name: ToolProbe, ValueType: measurement.ValueTypePoint, Points: 1,
		values:  func(s *Stats, m *measurement.Measurement) { m.Mean = s.Value },
		display: func(m *measurement.Measurement) string { return formatValue(m.Mean, m.Unit) }},
	{Name: ToolPlanarFreehandROI, ValueType: measurement.ValueTypePolyline,
		values: func(s *Stats, m *measurement.Measurement) {
			areaValues(s, m)
			m.Perimeter = s.Perimeter
		},
		display: areaDisplay},
}

func areaValues(s *Stats, m *measurement.Measurement) {
	m.Area = s.Area
	m.Mean = s.Mean
	m.StdDev = s.StdDev
	m.Min = s.Min
	m.Max = s.Max
}

func areaDisplay(m *measurement.Measurement) string {
	return joinDisplay(
		labelled("Area:", formatValue(m.Area, m.AreaUnit)),
		labelled("Mean:", formatValue(m.Mean, m.Unit)),
		labelled("SD:", formatValue(m.StdDev, m.Unit)),
	)
}

// Tools returns the built-in tools in registration order
func Tools() []Tool {
	return append([]Tool(nil), builtinTools...)
}

// ValueTypeFor returns the value type produced by the named tool, or "" for
// an unknown tool
func ValueTypeFor(toolName string) measurement.ValueType {
	for _, t := range builtinTools {
		if t.Name == toolName {
			return t.ValueType
		}
	}
	return ""
}

// MappingRegistrar registers mappings for a source
type MappingRegistrar interface {
	AddMapping(source *measurement.Source, annotationType string,
		criteria *measurement.MatchingCriteria, converter measurement.Converter) error
}

// RegisterMappings registers a mapping for every built-in tool on source
func RegisterMappings(registrar MappingRegistrar, source *measurement.Source, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, tool := range builtinTools {
		if err := registrar.AddMapping(source, tool.Name, tool.Criteria(), converter{tool: tool}); err != nil {
			return fmt.Errorf("register %s mapping: %w", tool.Name, err)
		}
	}
	logger.Info("Tool mappings registered",
		zap.String("source", source.String()),
		zap.Int("tool_count", len(builtinTools)))
	return nil
}
