package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lampd/internal/config"
	"github.com/dokzlo13/lampd/internal/eventbus"
	"github.com/dokzlo13/lampd/internal/led"
	"github.com/dokzlo13/lampd/internal/mqtt"
	"github.com/dokzlo13/lampd/internal/output"
)

// MQTTService connects to the broker once the lamp is online, reports its
// state and, with the mqtt output driver, carries the color to the LEDs.
type MQTTService struct {
	cfg      config.MQTTConfig
	actor    *led.Actor
	bus      *eventbus.Bus
	deferred *output.Deferred

	client *mqtt.Client
	state  *mqtt.StatePublisher
	wg     sync.WaitGroup
}

// NewMQTTService creates a new MQTTService. deferred is nil unless the LEDs
// are driven over MQTT.
func NewMQTTService(cfg config.MQTTConfig, actor *led.Actor, bus *eventbus.Bus, deferred *output.Deferred) *MQTTService {
	return &MQTTService{
		cfg:      cfg,
		actor:    actor,
		bus:      bus,
		deferred: deferred,
	}
}

// Start connects and starts the state publisher. The client id gets the
// device id appended so several lamps can share a broker.
func (s *MQTTService) Start(ctx context.Context, deviceID string) error {
	topics := mqtt.Topics{Prefix: s.cfg.TopicPrefix, DeviceID: deviceID}
	qos := byte(s.cfg.QoS)

	client, err := mqtt.Connect(mqtt.Config{
		Broker:   s.cfg.Broker,
		ClientID: s.cfg.ClientID + "-" + deviceID,
		Username: s.cfg.Username,
		Password: s.cfg.Password,
		QoS:      qos,
		Topics:   topics,
	})
	if err != nil {
		return err
	}
	s.client = client

	if s.deferred != nil {
		rgb := output.NewMQTT(client, topics.RGB(), qos, output.DefaultMQTTRate)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			rgb.Run(ctx)
		}()
		if err := s.deferred.Attach(rgb); err != nil {
			log.Warn().Err(err).Msg("Failed to publish initial color")
		}
		log.Info().Str("topic", topics.RGB()).Msg("MQTT output attached")
	}

	s.state = mqtt.NewStatePublisher(client, s.actor, topics.State(), qos,
		s.cfg.PublishRate, s.cfg.ResyncInterval.Duration())
	s.bus.SubscribeAll(s.state.HandleEvent, eventbus.AllEventTypes...)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.state.Run(ctx); err != nil {
			log.Error().Err(err).Msg("State publisher failed")
		}
	}()
	return nil
}

// Stop waits for the publisher and disconnects. The context passed to Start
// must be cancelled first.
func (s *MQTTService) Stop() {
	s.wg.Wait()
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close MQTT client")
		}
	}
}
