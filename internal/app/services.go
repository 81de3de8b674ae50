package app

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lampd/internal/color"
	"github.com/dokzlo13/lampd/internal/config"
	"github.com/dokzlo13/lampd/internal/device"
	"github.com/dokzlo13/lampd/internal/eventbus"
	"github.com/dokzlo13/lampd/internal/led"
	"github.com/dokzlo13/lampd/internal/ledger"
	"github.com/dokzlo13/lampd/internal/metrics"
	"github.com/dokzlo13/lampd/internal/network"
	"github.com/dokzlo13/lampd/internal/output"
	"github.com/dokzlo13/lampd/internal/provision"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	Storage *Storage
	Bus     *eventbus.Bus
	Metrics *metrics.Metrics

	// Fixture
	Actor     *led.Actor
	Transport network.Transport
	sysfs     *output.SysfsPWM
	deferred  *output.Deferred

	// Lamp mode
	Lamp *LampService
	MQTT *MQTTService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	storage, err := OpenStorage(cfg)
	if err != nil {
		return nil, err
	}
	s.Storage = storage

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.Workers, cfg.EventBus.QueueSize)
	s.Metrics = metrics.New(s.Bus.Dropped)

	out, err := s.openOutput()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Actor = led.NewActor(out, led.WithShiftDuration(cfg.Lamp.ShiftDuration.Duration()))

	s.Transport, err = newTransport(cfg.Network)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Lamp = NewLampService(cfg, s.Actor, s.Storage, s.Bus, s.Metrics)
	if cfg.MQTT.Enabled {
		s.MQTT = NewMQTTService(cfg.MQTT, s.Actor, s.Bus, s.deferred)
	}

	return s, nil
}

func (s *Services) openOutput() (output.Writer, error) {
	switch s.cfg.Output.Driver {
	case output.DriverSysfs:
		sc := s.cfg.Output.Sysfs
		pwm, err := output.OpenSysfsPWM(output.SysfsConfig{
			Chip:     sc.Chip,
			Channels: sc.Channels,
			Period:   sc.Period.Duration(),
		})
		if err != nil {
			return nil, err
		}
		s.sysfs = pwm
		return pwm, nil
	case output.DriverMQTT:
		// the broker is unreachable until the lamp joins a network
		s.deferred = output.NewDeferred(output.NewLog())
		return s.deferred, nil
	default:
		return output.NewLog(), nil
	}
}

func newTransport(cfg config.NetworkConfig) (network.Transport, error) {
	if cfg.Driver == network.DriverSimulated {
		var addr net.HardwareAddr
		if cfg.SimulatedMAC != "" {
			parsed, err := net.ParseMAC(cfg.SimulatedMAC)
			if err != nil {
				return nil, fmt.Errorf("network.simulated_mac: %w", err)
			}
			addr = parsed
		}
		return network.NewSimulated(addr), nil
	}
	return network.NewNMCLI(network.NMCLIConfig{
		Interface:      cfg.Interface,
		ConnectTimeout: cfg.ConnectTimeout.Duration(),
	}, network.ExecRunner), nil
}

// Start runs provisioning, joins the network and starts lamp mode.
// onFatalError is called when a background service fails; onRestart when
// /reset asks for a fresh boot.
func (s *Services) Start(ctx context.Context, onFatalError func(error), onRestart func()) error {
	res, err := s.provision(ctx)
	if err != nil {
		return err
	}

	link, err := s.Transport.Connect(ctx, res.Credentials.SSID, res.Credentials.Password)
	if err != nil {
		return fmt.Errorf("join %q: %w", res.Credentials.SSID, err)
	}

	deviceID, err := device.ID(link.HardwareAddr(), s.Storage.AppBucket())
	if err != nil {
		return err
	}
	log.Info().Str("ssid", res.Credentials.SSID).Str("device_id", deviceID).Msg("Network connected")

	if s.MQTT != nil {
		if err := s.MQTT.Start(ctx, deviceID); err != nil {
			if s.deferred != nil {
				return err
			}
			// state reporting is optional when the LEDs do not depend on the broker
			log.Warn().Err(err).Msg("MQTT unavailable, continuing without state reporting")
			s.MQTT = nil
		}
	}

	if err := s.Storage.Ledger.Append(ledger.EventLampStarted, map[string]any{
		"ssid":      res.Credentials.SSID,
		"device_id": deviceID,
		"fresh":     res.Fresh,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to record lamp start")
	}

	s.Actor.Cycle(s.cfg.Lamp.StartupCyclePeriod.Duration())

	return s.Lamp.Start(ctx, onFatalError, onRestart)
}

func (s *Services) provision(ctx context.Context) (provision.Result, error) {
	pc := s.cfg.Provisioning
	p := provision.New(provision.Config{
		SSID:            pc.SSID,
		Password:        pc.Password,
		Listen:          pc.Listen,
		PulsePeriod:     pc.PulsePeriod.Duration(),
		PollInterval:    pc.PollInterval.Duration(),
		Indicator:       color.RGB{R: pc.Indicator.R, G: pc.Indicator.G, B: pc.Indicator.B},
		ShutdownTimeout: s.cfg.ShutdownTimeout.Duration(),
	}, s.Storage.Credentials, s.Transport, s.Actor,
		provision.WithRecorder(s.Storage.Ledger),
		provision.WithBus(s.Bus),
		provision.WithStateObserver(func(st provision.State) {
			s.Metrics.SetProvisioningState(int(st))
		}),
		provision.WithHardwareID(func(addr net.HardwareAddr) (string, error) {
			return device.ID(addr, s.Storage.AppBucket())
		}),
	)
	return p.Run(ctx)
}

// Stop gracefully stops all services. The context passed to Start must be
// cancelled first.
func (s *Services) Stop() error {
	if s.Lamp != nil {
		s.Lamp.Wait()
	}
	if s.MQTT != nil {
		s.MQTT.Stop()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	s.Close()
	return nil
}

// Close releases all resources. The network link is left up: a restart
// reconnects with the same profile and a shutdown should not drop the host
// off the network.
func (s *Services) Close() {
	if s.sysfs != nil {
		if err := s.sysfs.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to disable PWM output")
		}
	}
	if s.Storage != nil {
		s.Storage.Close()
	}
}
