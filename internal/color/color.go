// Package color holds the lamp's HSV color value and its conversions.
package color

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// HSV is a hue/saturation/value color.
// Hue is in degrees [0, 360); saturation and value are nominally in [0, 1].
type HSV struct {
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
	Value      float64 `json:"value"`
}

// RGB is a color with normalized [0, 1] channels.
type RGB struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// Default is the color a fresh lamp starts with: fully saturated red at full brightness.
var Default = HSV{Hue: 0, Saturation: 1, Value: 1}

// NormalizeHue wraps any angle into [0, 360).
func NormalizeHue(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	// math.Mod can return 360 for tiny negative inputs after the correction above
	if h >= 360 {
		h = 0
	}
	return h
}

// Clamp01 limits v to [0, 1].
func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// Normalized returns c with its hue wrapped into [0, 360).
func (c HSV) Normalized() HSV {
	c.Hue = NormalizeHue(c.Hue)
	return c
}

// RGB converts the color to normalized RGB.
// Saturation and value are clamped first so the result is always in gamut.
func (c HSV) RGB() RGB {
	col := colorful.Hsv(NormalizeHue(c.Hue), Clamp01(c.Saturation), Clamp01(c.Value))
	return RGB{R: col.R, G: col.G, B: col.B}
}

// HSV converts an RGB color to HSV.
func (c RGB) HSV() HSV {
	col := colorful.Color{R: Clamp01(c.R), G: Clamp01(c.G), B: Clamp01(c.B)}
	h, s, v := col.Hsv()
	return HSV{Hue: NormalizeHue(h), Saturation: s, Value: v}
}

// Clamped returns c with every channel limited to [0, 1].
func (c RGB) Clamped() RGB {
	return RGB{R: Clamp01(c.R), G: Clamp01(c.G), B: Clamp01(c.B)}
}
