package transition

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lampd/internal/color"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindCycle, "cycle"},
		{KindPulse, "pulse"},
		{KindShiftHue, "shift_hue"},
		{KindShiftSaturation, "shift_saturation"},
		{KindShiftValue, "shift_value"},
		{Kind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.String())
		})
	}
}

func TestKindAmbient(t *testing.T) {
	assert.True(t, KindCycle.Ambient())
	assert.True(t, KindPulse.Ambient())
	assert.False(t, KindShiftHue.Ambient())
	assert.False(t, KindShiftSaturation.Ambient())
	assert.False(t, KindShiftValue.Ambient())
}

func TestProgress(t *testing.T) {
	tr := NewShift(KindShiftValue, 0, 1, 200*time.Millisecond, t0)

	assert.Equal(t, 0.0, tr.Progress(t0))
	assert.Equal(t, 0.0, tr.Progress(t0.Add(-time.Second)), "clock skew must not go negative")
	assert.InDelta(t, 0.5, tr.Progress(t0.Add(100*time.Millisecond)), 1e-9)
	assert.InDelta(t, 3.0, tr.Progress(t0.Add(600*time.Millisecond)), 1e-9)

	zero := NewShift(KindShiftValue, 0, 1, 0, t0)
	assert.Equal(t, 1.0, zero.Progress(t0))
}

func TestShiftEndpoints(t *testing.T) {
	const d = 150 * time.Millisecond

	tests := []struct {
		name    string
		kind    Kind
		start   float64
		delta   float64
		channel func(color.HSV) float64
	}{
		{
			name:    "hue",
			kind:    KindShiftHue,
			start:   10,
			delta:   110,
			channel: func(c color.HSV) float64 { return c.Hue },
		},
		{
			name:    "saturation",
			kind:    KindShiftSaturation,
			start:   0.2,
			delta:   0.7,
			channel: func(c color.HSV) float64 { return c.Saturation },
		},
		{
			name:    "value",
			kind:    KindShiftValue,
			start:   0.9,
			delta:   -0.6,
			channel: func(c color.HSV) float64 { return c.Value },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewShift(tt.kind, tt.start, tt.delta, d, t0)

			c := color.HSV{Hue: 300, Saturation: 0.5, Value: 0.5}
			done := tr.Apply(&c, t0)
			assert.False(t, done, "shift must not complete at elapsed=0")
			assert.Equal(t, tt.start, tt.channel(c))

			for _, elapsed := range []time.Duration{d, d + time.Millisecond, 10 * d} {
				c := color.HSV{Hue: 300, Saturation: 0.5, Value: 0.5}
				done := tr.Apply(&c, t0.Add(elapsed))
				assert.True(t, done, "shift must complete at elapsed=%s", elapsed)
				assert.Equal(t, tt.start+tt.delta, tt.channel(c))
			}
		})
	}
}

func TestShiftMidway(t *testing.T) {
	tr := NewShift(KindShiftSaturation, 0, 1, 100*time.Millisecond, t0)
	c := color.HSV{}

	done := tr.Apply(&c, t0.Add(25*time.Millisecond))
	assert.False(t, done)
	assert.InDelta(t, 0.25, c.Saturation, 1e-9)
}

func TestShiftHueWraps(t *testing.T) {
	// from 350 to 370 crosses the 0 boundary and must stay normalized
	tr := NewShift(KindShiftHue, 350, 20, 100*time.Millisecond, t0)
	c := color.HSV{}

	tr.Apply(&c, t0.Add(75*time.Millisecond))
	assert.InDelta(t, 5, c.Hue, 1e-9)

	tr.Apply(&c, t0.Add(100*time.Millisecond))
	assert.InDelta(t, 10, c.Hue, 1e-9)
}

func TestShiftOnlyTouchesItsChannel(t *testing.T) {
	tr := NewShift(KindShiftValue, 0, 1, 100*time.Millisecond, t0)
	c := color.HSV{Hue: 42, Saturation: 0.3, Value: 0}

	tr.Apply(&c, t0.Add(50*time.Millisecond))
	assert.Equal(t, 42.0, c.Hue)
	assert.Equal(t, 0.3, c.Saturation)
}

func TestCyclePeriodic(t *testing.T) {
	const period = 5 * time.Second
	tr := NewCycle(90, period, t0)

	for _, offset := range []time.Duration{0, 300 * time.Millisecond, 1750 * time.Millisecond, 4 * time.Second, 12 * time.Second} {
		var a, b color.HSV
		assert.False(t, tr.Apply(&a, t0.Add(offset)))
		assert.False(t, tr.Apply(&b, t0.Add(offset+period)))
		assert.InDelta(t, a.Hue, b.Hue, 1e-6, "offset %s", offset)
		assert.GreaterOrEqual(t, a.Hue, 0.0)
		assert.Less(t, a.Hue, 360.0)
	}
}

func TestCycleRotation(t *testing.T) {
	tr := NewCycle(90, 4*time.Second, t0)
	c := color.HSV{}

	tr.Apply(&c, t0)
	assert.InDelta(t, 90, c.Hue, 1e-9)

	tr.Apply(&c, t0.Add(time.Second))
	assert.InDelta(t, 180, c.Hue, 1e-9)

	tr.Apply(&c, t0.Add(3*time.Second))
	assert.InDelta(t, 0, c.Hue, 1e-9)
}

func TestCycleNeverCompletes(t *testing.T) {
	tr := NewCycle(0, time.Second, t0)
	c := color.HSV{}
	assert.False(t, tr.Apply(&c, t0.Add(time.Hour)))
}

func TestPulseWave(t *testing.T) {
	const period = 2 * time.Second
	tr := NewPulse(color.HSV{Saturation: 0.8, Value: 0.4}, period, t0)

	tests := []struct {
		offset   time.Duration
		expected float64
	}{
		{0, 0.5},
		{period / 4, 1},
		{period / 2, 0.5},
		{3 * period / 4, 0},
		{period + period/4, 1},
	}

	for _, tt := range tests {
		c := color.HSV{}
		done := tr.Apply(&c, t0.Add(tt.offset))
		assert.False(t, done)
		assert.InDelta(t, tt.expected, c.Value, 1e-9, "offset %s", tt.offset)
	}
}

func TestPulseSnapshot(t *testing.T) {
	tr := NewPulse(color.HSV{Hue: 10, Saturation: 0.8, Value: 0.4}, time.Second, t0)
	require.NotNil(t, tr.Restore)
	assert.Equal(t, Snapshot{Saturation: 0.8, Value: 0.4}, *tr.Restore)
}

func TestPulseValueInRange(t *testing.T) {
	tr := NewPulse(color.HSV{}, 700*time.Millisecond, t0)
	for ms := 0; ms < 5000; ms += 13 {
		c := color.HSV{}
		tr.Apply(&c, t0.Add(time.Duration(ms)*time.Millisecond))
		if c.Value < 0 || c.Value > 1 || math.IsNaN(c.Value) {
			t.Fatalf("pulse value %v out of range at %dms", c.Value, ms)
		}
	}
}
