// Package render draws retention matrices as colour-scaled cells, PNG
// heatmaps, spreadsheets and terminal tables.
package render

import (
	"fmt"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// The colour scale saturates at 50% retention so later, smaller cohorts
// stay distinguishable from each other.
const (
	ScaleMin = 0.0
	ScaleMax = 0.5
)

var (
	scaleLow  = colorful.Color{R: 0xf7 / 255.0, G: 0xfb / 255.0, B: 0xff / 255.0}
	scaleHigh = colorful.Color{R: 0x08 / 255.0, G: 0x30 / 255.0, B: 0x6b / 255.0}
)

// Clamp bounds v to [ScaleMin, ScaleMax].
func Clamp(v float64) float64 {
	return math.Max(ScaleMin, math.Min(ScaleMax, v))
}

func intensity(v float64) float64 {
	return (Clamp(v) - ScaleMin) / (ScaleMax - ScaleMin)
}

// CellColor maps a retention fraction onto the Blues ramp as #rrggbb.
func CellColor(v float64) string {
	return scaleLow.BlendLab(scaleHigh, intensity(v)).Clamped().Hex()
}

// TextColor picks a label colour that stays readable on CellColor(v).
func TextColor(v float64) string {
	if intensity(v) > 0.55 {
		return "#ffffff"
	}
	return "#08306b"
}

// Percent formats a fraction the way the heatmap annotates cells.
func Percent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

// bluesPalette implements gonum's palette.Palette over the same ramp.
type bluesPalette int

func (n bluesPalette) Colors() []color.Color {
	out := make([]color.Color, int(n))
	for i := range out {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		out[i] = scaleLow.BlendLab(scaleHigh, t).Clamped()
	}
	return out
}
