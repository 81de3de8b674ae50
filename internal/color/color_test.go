package color

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHue(t *testing.T) {
	tests := []struct {
		name     string
		in       float64
		expected float64
	}{
		{name: "zero", in: 0, expected: 0},
		{name: "in_range", in: 120, expected: 120},
		{name: "full_turn", in: 360, expected: 0},
		{name: "over_one_turn", in: 480, expected: 120},
		{name: "negative", in: -30, expected: 330},
		{name: "many_negative_turns", in: -750, expected: 330},
		{name: "nan", in: math.NaN(), expected: 0},
		{name: "inf", in: math.Inf(1), expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeHue(tt.in)
			assert.InDelta(t, tt.expected, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.Less(t, got, 360.0)
		})
	}
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.5))
	assert.Equal(t, 0.25, Clamp01(0.25))
	assert.Equal(t, 1.0, Clamp01(1.7))
	assert.Equal(t, 0.0, Clamp01(math.NaN()))
}

func TestHSVToRGB(t *testing.T) {
	tests := []struct {
		name     string
		hsv      HSV
		expected RGB
	}{
		{name: "red", hsv: HSV{Hue: 0, Saturation: 1, Value: 1}, expected: RGB{R: 1}},
		{name: "green", hsv: HSV{Hue: 120, Saturation: 1, Value: 1}, expected: RGB{G: 1}},
		{name: "blue", hsv: HSV{Hue: 240, Saturation: 1, Value: 1}, expected: RGB{B: 1}},
		{name: "white", hsv: HSV{Hue: 42, Saturation: 0, Value: 1}, expected: RGB{R: 1, G: 1, B: 1}},
		{name: "black", hsv: HSV{Hue: 200, Saturation: 1, Value: 0}, expected: RGB{}},
		{name: "wrapped_hue", hsv: HSV{Hue: 480, Saturation: 1, Value: 1}, expected: RGB{G: 1}},
		{name: "out_of_range_value", hsv: HSV{Hue: 0, Saturation: 1, Value: 3}, expected: RGB{R: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.hsv.RGB()
			assert.InDelta(t, tt.expected.R, got.R, 1e-9)
			assert.InDelta(t, tt.expected.G, got.G, 1e-9)
			assert.InDelta(t, tt.expected.B, got.B, 1e-9)
		})
	}
}

func TestRGBToHSV(t *testing.T) {
	blue := RGB{B: 1}.HSV()
	assert.InDelta(t, 240, blue.Hue, 1e-9)
	assert.InDelta(t, 1, blue.Saturation, 1e-9)
	assert.InDelta(t, 1, blue.Value, 1e-9)

	black := RGB{}.HSV()
	assert.InDelta(t, 0, black.Value, 1e-9)
}

func TestClampedRGB(t *testing.T) {
	got := RGB{R: -1, G: 0.5, B: 2}.Clamped()
	assert.Equal(t, RGB{R: 0, G: 0.5, B: 1}, got)
}
