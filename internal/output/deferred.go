package output

import (
	"sync"

	"github.com/dokzlo13/lampd/internal/color"
)

// Deferred forwards writes to a fallback driver until the real one is
// attached. Drivers that need the network, like MQTT, cannot exist while the
// lamp is still provisioning.
type Deferred struct {
	mu       sync.Mutex
	current  Writer
	attached bool
	last     color.RGB
	wrote    bool
}

// NewDeferred creates a writer that uses fallback until Attach.
func NewDeferred(fallback Writer) *Deferred {
	return &Deferred{current: fallback}
}

// Attach switches to w and replays the last color so the new driver starts
// in sync with the lamp.
func (d *Deferred) Attach(w Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.current, d.attached = w, true
	if !d.wrote {
		return nil
	}
	return w.Write(d.last)
}

// Attached reports whether the real driver is in place.
func (d *Deferred) Attached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attached
}

// Write implements Writer.
func (d *Deferred) Write(c color.RGB) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last, d.wrote = c, true
	return d.current.Write(c)
}
