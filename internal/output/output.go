// Package output maps the lamp color onto three brightness channels.
package output

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lampd/internal/color"
)

// ErrWriteFailed marks a hardware write the output rejected.
var ErrWriteFailed = errors.New("output write failed")

// Writer is implemented by every output driver. Channels are normalized to [0, 1].
type Writer interface {
	Write(c color.RGB) error
}

// Driver names accepted in configuration.
const (
	DriverLog   = "log"
	DriverSysfs = "sysfs"
	DriverMQTT  = "mqtt"
)

// Log is a driver without hardware; it logs each distinct color at debug level.
type Log struct {
	last  color.RGB
	wrote bool
}

// NewLog creates a logging driver.
func NewLog() *Log {
	return &Log{}
}

// Write logs c when it differs from the previous write.
func (l *Log) Write(c color.RGB) error {
	c = c.Clamped()
	if l.wrote && c == l.last {
		return nil
	}
	l.last, l.wrote = c, true

	log.Debug().
		Float64("r", c.R).
		Float64("g", c.G).
		Float64("b", c.B).
		Msg("Output color")
	return nil
}

func writeFailed(channel string, err error) error {
	return fmt.Errorf("%w: channel %s: %w", ErrWriteFailed, channel, err)
}
