// Package led wraps the transition engine and the output behind one lock.
package led

import (
	"sync"
	"time"

	"github.com/dokzlo13/lampd/internal/color"
	"github.com/dokzlo13/lampd/internal/transition"
)

// DefaultShiftDuration is how long a settle effect takes to reach its target.
const DefaultShiftDuration = 100 * time.Millisecond

// Status is a consistent snapshot of the actor state.
type Status struct {
	Color   color.HSV
	Cycling bool
	Pulsing bool
	Active  int
}

// Report is the flat status document served over HTTP and MQTT.
type Report struct {
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
	Value      float64 `json:"value"`
	Cycling    bool    `json:"cycling"`
	Pulsing    bool    `json:"pulsing"`
}

// Report flattens the snapshot.
func (s Status) Report() Report {
	return Report{
		Hue:        s.Color.Hue,
		Saturation: s.Color.Saturation,
		Value:      s.Color.Value,
		Cycling:    s.Cycling,
		Pulsing:    s.Pulsing,
	}
}

// Option configures an Actor.
type Option func(*Actor)

// WithShiftDuration sets the duration of hue/saturation/value settle effects.
func WithShiftDuration(d time.Duration) Option {
	return func(a *Actor) {
		if d > 0 {
			a.shift = d
		}
	}
}

// WithInitialColor sets the starting color.
func WithInitialColor(c color.HSV) Option {
	return func(a *Actor) {
		a.initial = c
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Actor) {
		a.now = now
	}
}

// Actor serializes every access to the color and the active transitions.
// The tick loop and any number of request handlers may call it concurrently.
type Actor struct {
	mu      sync.Mutex
	engine  *transition.Engine
	shift   time.Duration
	initial color.HSV
	now     func() time.Time
}

// NewActor creates an actor writing to out.
func NewActor(out transition.Output, opts ...Option) *Actor {
	a := &Actor{
		shift:   DefaultShiftDuration,
		initial: color.Default,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.engine = transition.NewEngine(out, a.initial)
	return a
}

// Tick advances all active transitions and writes the result.
// Output failures are returned as is; the color stays updated.
func (a *Actor) Tick() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.engine.AdvanceAll(a.now())
}

// SetHue cancels ambient effects and settles hue to the target.
func (a *Actor) SetHue(hue float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.engine.ClearAll()
	current := a.engine.Color().Hue
	target := color.NormalizeHue(hue)
	a.engine.Add(transition.NewShift(transition.KindShiftHue, current, target-current, a.shift, a.now()))
}

// SetSaturation settles saturation to the target, clamped to [0, 1].
// Ambient effects keep running.
func (a *Actor) SetSaturation(saturation float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	current := a.engine.Color().Saturation
	target := color.Clamp01(saturation)
	a.engine.Add(transition.NewShift(transition.KindShiftSaturation, current, target-current, a.shift, a.now()))
}

// SetValue settles value to the target, clamped to [0, 1].
// Ambient effects keep running.
func (a *Actor) SetValue(value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	current := a.engine.Color().Value
	target := color.Clamp01(value)
	a.engine.Add(transition.NewShift(transition.KindShiftValue, current, target-current, a.shift, a.now()))
}

// SetRGB assigns the color immediately and writes it out.
// Active transitions are left untouched.
func (a *Actor) SetRGB(c color.RGB) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.engine.SetDirect(c.HSV())
}

// Cycle cancels every effect and starts rotating hue with the given period.
func (a *Actor) Cycle(period time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.engine.ClearAll()
	a.engine.Add(transition.NewCycle(a.engine.Color().Hue, period, a.now()))
}

// Pulse cancels every effect and starts breathing value with the given period.
func (a *Actor) Pulse(period time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.engine.ClearAll()
	a.engine.Add(transition.NewPulse(a.engine.Color(), period, a.now()))
}

// Stop cancels every effect, restoring any pulse snapshot, and writes the
// resulting color.
func (a *Actor) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.engine.ClearAll()
	return a.engine.Flush()
}

// Status returns the current color and which effects are running.
func (a *Actor) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Status{
		Color:   a.engine.Color(),
		Cycling: a.engine.Has(transition.KindCycle),
		Pulsing: a.engine.Has(transition.KindPulse),
		Active:  a.engine.ActiveCount(),
	}
}
