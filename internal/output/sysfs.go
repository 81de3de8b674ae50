package output

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lampd/internal/color"
)

// DefaultPWMPeriod is 25kHz, above audible coil whine.
const DefaultPWMPeriod = 40 * time.Microsecond

// SysfsConfig locates three PWM channels under the Linux sysfs PWM interface.
type SysfsConfig struct {
	// Chip is the pwmchip directory, e.g. /sys/class/pwm/pwmchip0.
	Chip string
	// Channels are the red, green and blue channel numbers on the chip.
	Channels [3]int
	// Period of the PWM signal.
	Period time.Duration
}

// SysfsPWM drives one RGB fixture through /sys/class/pwm.
type SysfsPWM struct {
	cfg      SysfsConfig
	periodNs int64
	duty     [3]string
	last     [3]int64
	wrote    bool
}

var channelNames = [3]string{"red", "green", "blue"}

// OpenSysfsPWM exports and enables the three channels.
func OpenSysfsPWM(cfg SysfsConfig) (*SysfsPWM, error) {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPWMPeriod
	}

	p := &SysfsPWM{
		cfg:      cfg,
		periodNs: cfg.Period.Nanoseconds(),
	}

	for i, ch := range cfg.Channels {
		dir, err := p.export(ch)
		if err != nil {
			return nil, err
		}
		if err := writeAttr(filepath.Join(dir, "period"), p.periodNs); err != nil {
			return nil, writeFailed(channelNames[i], err)
		}
		p.duty[i] = filepath.Join(dir, "duty_cycle")
		if err := writeAttr(p.duty[i], 0); err != nil {
			return nil, writeFailed(channelNames[i], err)
		}
		if err := writeAttr(filepath.Join(dir, "enable"), 1); err != nil {
			return nil, writeFailed(channelNames[i], err)
		}
	}

	log.Info().
		Str("chip", cfg.Chip).
		Ints("channels", cfg.Channels[:]).
		Dur("period", cfg.Period).
		Msg("Sysfs PWM output ready")
	return p, nil
}

// export makes pwmN visible under the chip, writing to the export file only
// when the channel directory does not exist yet.
func (p *SysfsPWM) export(ch int) (string, error) {
	dir := filepath.Join(p.cfg.Chip, "pwm"+strconv.Itoa(ch))
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: stat %s: %w", ErrWriteFailed, dir, err)
	}

	if err := writeAttr(filepath.Join(p.cfg.Chip, "export"), int64(ch)); err != nil {
		return "", fmt.Errorf("%w: export pwm%d: %w", ErrWriteFailed, ch, err)
	}
	return dir, nil
}

// Write sets each channel's duty cycle to level*period. Unchanged channels are skipped.
func (p *SysfsPWM) Write(c color.RGB) error {
	c = c.Clamped()
	levels := [3]float64{c.R, c.G, c.B}

	for i, level := range levels {
		duty := int64(math.Round(level * float64(p.periodNs)))
		if p.wrote && duty == p.last[i] {
			continue
		}
		if err := writeAttr(p.duty[i], duty); err != nil {
			// force a full rewrite next time so a partial write does not stick
			p.wrote = false
			return writeFailed(channelNames[i], err)
		}
		p.last[i] = duty
	}
	p.wrote = true
	return nil
}

// Close turns the channels off.
func (p *SysfsPWM) Close() error {
	var errs []error
	for i, path := range p.duty {
		if path == "" {
			continue
		}
		if err := writeAttr(filepath.Join(filepath.Dir(path), "enable"), 0); err != nil {
			errs = append(errs, writeFailed(channelNames[i], err))
		}
	}
	return errors.Join(errs...)
}

func writeAttr(path string, v int64) error {
	return os.WriteFile(path, []byte(strconv.FormatInt(v, 10)), 0o644)
}
