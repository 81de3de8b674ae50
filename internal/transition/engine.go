package transition

import (
	"time"

	"github.com/dokzlo13/lampd/internal/color"
)

// Output receives the color after every tick or direct assignment.
type Output interface {
	Write(c color.RGB) error
}

// Engine owns the color and the ordered set of active transitions.
//
// Transitions targeting different channels compose. Two transitions on the
// same channel overwrite each other, and the one added last wins each tick.
type Engine struct {
	color  color.HSV
	active []Transition
	out    Output
}

// NewEngine creates an engine starting at initial. It does not write to out
// until the first tick or SetDirect.
func NewEngine(out Output, initial color.HSV) *Engine {
	return &Engine{
		color: initial.Normalized(),
		out:   out,
	}
}

// Color returns the current color.
func (e *Engine) Color() color.HSV {
	return e.color
}

// Active returns a copy of the active transitions in tick order.
func (e *Engine) Active() []Transition {
	out := make([]Transition, len(e.active))
	copy(out, e.active)
	return out
}

// ActiveCount returns how many transitions are active.
func (e *Engine) ActiveCount() int {
	return len(e.active)
}

// Has reports whether a transition of the given kind is active.
func (e *Engine) Has(kind Kind) bool {
	for _, t := range e.active {
		if t.Kind == kind {
			return true
		}
	}
	return false
}

// Add appends t to the active set without cancelling anything.
func (e *Engine) Add(t Transition) {
	e.active = append(e.active, t)
}

// ClearAll discards every active transition, restoring saturation and value
// from any restoration snapshot. Snapshots are applied newest first so the
// oldest one, taken before any of the cleared effects started, wins.
func (e *Engine) ClearAll() {
	for i := len(e.active) - 1; i >= 0; i-- {
		if snap := e.active[i].Restore; snap != nil {
			e.color.Saturation = snap.Saturation
			e.color.Value = snap.Value
		}
	}
	e.active = nil
}

// SetDirect replaces the color and writes it out. Active transitions are kept.
func (e *Engine) SetDirect(c color.HSV) error {
	e.color = c.Normalized()
	return e.out.Write(e.color.RGB())
}

// Flush writes the current color without advancing anything.
func (e *Engine) Flush() error {
	return e.out.Write(e.color.RGB())
}

// AdvanceAll applies every active transition at now, drops the completed
// ones and writes the resulting color exactly once.
func (e *Engine) AdvanceAll(now time.Time) error {
	kept := e.active[:0]
	for _, t := range e.active {
		if done := t.Apply(&e.color, now); !done {
			kept = append(kept, t)
		}
	}
	// clear the tail so dropped transitions do not linger in the backing array
	for i := len(kept); i < len(e.active); i++ {
		e.active[i] = Transition{}
	}
	e.active = kept

	return e.out.Write(e.color.RGB())
}
