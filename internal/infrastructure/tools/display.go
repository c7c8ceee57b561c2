package tools

import (
	"strings"

	"github.com/shopspring/decimal"
)

// displayPrecision is the number of decimals shown in display text
const displayPrecision = 2

// formatValue rounds v for display and appends the unit, if any
func formatValue(v *float64, unit string) string {
	if v == nil {
		return ""
	}
	s := decimal.NewFromFloat(*v).Round(displayPrecision).String()
	if unit == "" {
		return s
	}
	return s + " " + unit
}

// joinDisplay joins the non-empty parts with ", "
func joinDisplay(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

func labelled(label, value string) string {
	if value == "" {
		return ""
	}
	return label + " " + value
}
