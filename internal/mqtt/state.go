package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/lampd/internal/eventbus"
	"github.com/dokzlo13/lampd/internal/led"
)

// Defaults for the state publisher.
const (
	DefaultPublishRate    = 5.0 // per second
	DefaultResyncInterval = time.Minute

	// settleRecheck is how soon a state with pending settle effects is looked at again.
	settleRecheck = 50 * time.Millisecond
)

// Publisher sends one message.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// StatusSource reports the current lamp status.
type StatusSource interface {
	Status() led.Status
}

// StatePublisher keeps the retained state topic in line with the lamp.
// Bus events only mark the state dirty; the run loop publishes at most
// rate messages per second and skips payloads equal to the last one sent.
type StatePublisher struct {
	pub    Publisher
	source StatusSource
	topic  string
	qos    byte

	resyncInterval time.Duration
	limiter        *rate.Limiter

	mu   sync.Mutex
	last []byte

	trigger chan struct{}
}

// NewStatePublisher creates a publisher for topic.
func NewStatePublisher(pub Publisher, source StatusSource, topic string, qos byte, perSecond float64, resync time.Duration) *StatePublisher {
	if perSecond <= 0 {
		perSecond = DefaultPublishRate
	}
	if resync <= 0 {
		resync = DefaultResyncInterval
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}

	return &StatePublisher{
		pub:            pub,
		source:         source,
		topic:          topic,
		qos:            qos,
		resyncInterval: resync,
		limiter:        rate.NewLimiter(rate.Limit(perSecond), burst),
		trigger:        make(chan struct{}, 1),
	}
}

// Trigger marks the state dirty.
func (s *StatePublisher) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
		// already triggered
	}
}

// HandleEvent is an eventbus handler.
func (s *StatePublisher) HandleEvent(eventbus.Event) {
	s.Trigger()
}

// Run publishes until ctx is cancelled. The state is also republished every
// resync interval, which restores the retained message after a broker restart.
func (s *StatePublisher) Run(ctx context.Context) error {
	log.Info().Str("topic", s.topic).Dur("resync_interval", s.resyncInterval).Msg("State publisher started")

	ticker := time.NewTicker(s.resyncInterval)
	defer ticker.Stop()

	s.Trigger()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("State publisher stopping")
			return nil

		case <-s.trigger:
			s.publish(ctx, false)

		case <-ticker.C:
			s.publish(ctx, true)
		}
	}
}

func (s *StatePublisher) publish(ctx context.Context, force bool) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}

	st := s.source.Status()
	if settling(st) {
		time.AfterFunc(settleRecheck, s.Trigger)
	}

	payload, err := json.Marshal(st.Report())
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode lamp state")
		return
	}

	s.mu.Lock()
	unchanged := bytes.Equal(payload, s.last)
	s.mu.Unlock()
	if unchanged && !force {
		return
	}

	if err := s.pub.Publish(s.topic, payload, s.qos, true); err != nil {
		log.Warn().Err(err).Str("topic", s.topic).Msg("Failed to publish lamp state")
		return
	}

	s.mu.Lock()
	s.last = payload
	s.mu.Unlock()
}

// settling reports whether a hue/saturation/value shift is still running, so
// the published color is not the final one yet.
func settling(st led.Status) bool {
	ambient := 0
	if st.Cycling {
		ambient++
	}
	if st.Pulsing {
		ambient++
	}
	return st.Active > ambient
}
