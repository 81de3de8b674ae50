package output

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/lampd/internal/color"
)

// DefaultMQTTRate caps color messages per second; intermediate colors are dropped.
const DefaultMQTTRate = 25

// Publisher is the subset of the MQTT client the driver needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTT forwards the color to a remote fixture as {"r","g","b"} JSON.
//
// Write only records the newest color and returns; Run publishes it from its
// own goroutine, so a slow broker never stalls the caller. A publish failure
// is reported by the next Write. Colors that do not change the 8-bit level of
// any channel are not republished.
type MQTT struct {
	pub     Publisher
	topic   string
	qos     byte
	limiter *rate.Limiter
	trigger chan struct{}

	mu      sync.Mutex
	pending color.RGB
	dirty   bool
	err     error

	// owned by Run
	last [3]uint8
	sent bool
}

// NewMQTT creates a driver publishing to topic at most perSecond times a
// second. A non-positive rate uses DefaultMQTTRate.
func NewMQTT(pub Publisher, topic string, qos byte, perSecond float64) *MQTT {
	if perSecond <= 0 {
		perSecond = DefaultMQTTRate
	}
	return &MQTT{
		pub:     pub,
		topic:   topic,
		qos:     qos,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		trigger: make(chan struct{}, 1),
	}
}

// Topic returns the topic the driver publishes to.
func (m *MQTT) Topic() string {
	return m.topic
}

// Write queues c for publishing. It returns the error of a publish that
// failed since the previous Write, if any.
func (m *MQTT) Write(c color.RGB) error {
	m.mu.Lock()
	m.pending, m.dirty = c.Clamped(), true
	err := m.err
	m.err = nil
	m.mu.Unlock()

	select {
	case m.trigger <- struct{}{}:
	default:
		// already triggered
	}
	return err
}

// Run publishes queued colors until ctx is cancelled.
func (m *MQTT) Run(ctx context.Context) {
	log.Debug().Str("topic", m.topic).Msg("MQTT output started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.trigger:
		}

		if err := m.limiter.Wait(ctx); err != nil {
			return
		}
		m.flush()
	}
}

func (m *MQTT) flush() {
	m.mu.Lock()
	c, dirty := m.pending, m.dirty
	m.dirty = false
	m.mu.Unlock()

	if !dirty {
		return
	}
	levels := [3]uint8{to8(c.R), to8(c.G), to8(c.B)}
	if m.sent && levels == m.last {
		return
	}

	payload, err := json.Marshal(c)
	if err == nil {
		err = m.pub.Publish(m.topic, payload, m.qos, false)
	}
	if err != nil {
		m.mu.Lock()
		m.err = fmt.Errorf("%w: publish %s: %w", ErrWriteFailed, m.topic, err)
		m.mu.Unlock()
		return
	}
	m.last, m.sent = levels, true
}

func to8(v float64) uint8 {
	return uint8(math.Round(v * 255))
}
