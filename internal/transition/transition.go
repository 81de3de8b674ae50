// Package transition animates a shared HSV color over time.
//
// A Transition is a closed set of variants (cycle, pulse and the three shift
// kinds) advanced by a single dispatch in Apply. The Engine owns the color and
// the ordered set of active transitions; it is not safe for concurrent use and
// is meant to live behind the led.Actor lock.
package transition

import (
	"math"
	"time"

	"github.com/dokzlo13/lampd/internal/color"
)

// Kind identifies a transition variant.
type Kind int

const (
	KindCycle Kind = iota
	KindPulse
	KindShiftHue
	KindShiftSaturation
	KindShiftValue
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindCycle:
		return "cycle"
	case KindPulse:
		return "pulse"
	case KindShiftHue:
		return "shift_hue"
	case KindShiftSaturation:
		return "shift_saturation"
	case KindShiftValue:
		return "shift_value"
	default:
		return "unknown"
	}
}

// Ambient reports whether the kind runs until explicitly cancelled.
func (k Kind) Ambient() bool {
	return k == KindCycle || k == KindPulse
}

// Snapshot holds the saturation and value to restore when a transition is cancelled.
type Snapshot struct {
	Saturation float64
	Value      float64
}

// Transition is one animation applied to the color on every tick.
//
// Start and Delta are variant parameters: the starting hue for a cycle, and
// the starting channel value plus the change for shifts. Pulses use neither.
type Transition struct {
	Kind      Kind
	StartedAt time.Time
	Duration  time.Duration
	Start     float64
	Delta     float64
	Restore   *Snapshot
}

// NewCycle rotates hue a full turn every period, starting from startHue.
func NewCycle(startHue float64, period time.Duration, now time.Time) Transition {
	return Transition{
		Kind:      KindCycle,
		StartedAt: now,
		Duration:  period,
		Start:     color.NormalizeHue(startHue),
	}
}

// NewPulse oscillates value with a sine wave of the given period.
// The current saturation and value are captured for restoration.
func NewPulse(current color.HSV, period time.Duration, now time.Time) Transition {
	return Transition{
		Kind:      KindPulse,
		StartedAt: now,
		Duration:  period,
		Restore: &Snapshot{
			Saturation: current.Saturation,
			Value:      current.Value,
		},
	}
}

// NewShift moves one channel linearly from start to start+delta over d.
// kind must be one of the shift kinds.
func NewShift(kind Kind, start, delta float64, d time.Duration, now time.Time) Transition {
	return Transition{
		Kind:      kind,
		StartedAt: now,
		Duration:  d,
		Start:     start,
		Delta:     delta,
	}
}

// Progress returns elapsed/duration at now. It never goes below zero and is
// unbounded above. A non-positive duration counts as already finished.
func (t Transition) Progress(now time.Time) float64 {
	if t.Duration <= 0 {
		return 1
	}
	elapsed := now.Sub(t.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed.Seconds() / t.Duration.Seconds()
}

// Apply advances the transition against c and reports whether it has completed.
func (t Transition) Apply(c *color.HSV, now time.Time) (done bool) {
	progress := t.Progress(now)

	switch t.Kind {
	case KindCycle:
		c.Hue = color.NormalizeHue(t.Start + progress*360)
		return false

	case KindPulse:
		_, frac := math.Modf(progress)
		c.Value = math.Sin(frac*2*math.Pi)/2 + 0.5
		return false

	case KindShiftHue:
		clamped, done := clampProgress(progress)
		c.Hue = color.NormalizeHue(t.Start + clamped*t.Delta)
		return done

	case KindShiftSaturation:
		clamped, done := clampProgress(progress)
		c.Saturation = t.Start + clamped*t.Delta
		return done

	case KindShiftValue:
		clamped, done := clampProgress(progress)
		c.Value = t.Start + clamped*t.Delta
		return done
	}

	// Unknown kinds have nothing to animate.
	return true
}

func clampProgress(progress float64) (float64, bool) {
	if progress >= 1 {
		return 1, true
	}
	return progress, false
}
