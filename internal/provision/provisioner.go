// Package provision resolves the network credentials at startup: from storage
// when the lamp was set up before, otherwise from a client talking to a
// temporary access point.
package provision

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lampd/internal/color"
	"github.com/dokzlo13/lampd/internal/credentials"
	"github.com/dokzlo13/lampd/internal/eventbus"
	"github.com/dokzlo13/lampd/internal/httpserver"
	"github.com/dokzlo13/lampd/internal/ledger"
	"github.com/dokzlo13/lampd/internal/network"
)

// Defaults for the provisioning phase.
const (
	DefaultPulsePeriod  = 2 * time.Second
	DefaultPollInterval = 20 * time.Millisecond
)

// Indicator colors shown around the awaiting phase.
var (
	DefaultIndicator = color.RGB{R: 0, G: 0, B: 1}
	handoffColor     = color.RGB{}
)

// Store reads and writes the credentials record.
type Store interface {
	Get() (*credentials.Credentials, error)
	Set(c credentials.Credentials) error
}

// LED is the part of the actor used for feedback.
type LED interface {
	SetRGB(c color.RGB) error
	Pulse(period time.Duration)
	Tick() error
	Stop() error
}

// Recorder appends lifecycle entries.
type Recorder interface {
	Append(eventType ledger.EventType, payload map[string]any) error
}

// Config controls the access point and the capture endpoint.
type Config struct {
	SSID            string
	Password        string
	Listen          string
	PulsePeriod     time.Duration
	PollInterval    time.Duration
	Indicator       color.RGB
	ShutdownTimeout time.Duration
}

// Result is what provisioning hands to lamp mode.
type Result struct {
	Credentials credentials.Credentials
	// Fresh is true when the credentials were just captured rather than loaded.
	Fresh bool
	// HardwareID is the identifier returned to the client; empty when loaded from storage.
	HardwareID string
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithRecorder appends a ledger entry when credentials are captured.
func WithRecorder(r Recorder) Option {
	return func(p *Provisioner) { p.recorder = r }
}

// WithBus publishes a provisioned event on handoff.
func WithBus(b *eventbus.Bus) Option {
	return func(p *Provisioner) { p.bus = b }
}

// WithStateObserver is called on every state change.
func WithStateObserver(fn func(State)) Option {
	return func(p *Provisioner) { p.observe = fn }
}

// WithHardwareID replaces how the access point MAC is turned into the reported identifier.
func WithHardwareID(fn func(net.HardwareAddr) (string, error)) Option {
	return func(p *Provisioner) { p.hardwareID = fn }
}

// WithListening is called with the bound capture address once it accepts requests.
func WithListening(fn func(addr net.Addr)) Option {
	return func(p *Provisioner) { p.listening = fn }
}

// Provisioner runs the startup state machine once.
type Provisioner struct {
	cfg       Config
	store     Store
	transport network.Transport
	led       LED

	recorder   Recorder
	bus        *eventbus.Bus
	observe    func(State)
	hardwareID func(net.HardwareAddr) (string, error)
	listening  func(net.Addr)

	state State
}

// New creates a provisioner.
func New(cfg Config, store Store, transport network.Transport, led LED, opts ...Option) *Provisioner {
	if cfg.PulsePeriod <= 0 {
		cfg.PulsePeriod = DefaultPulsePeriod
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Indicator == (color.RGB{}) {
		cfg.Indicator = DefaultIndicator
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	p := &Provisioner{
		cfg:       cfg,
		store:     store,
		transport: transport,
		led:       led,
		hardwareID: func(addr net.HardwareAddr) (string, error) {
			return network.FormatMAC(addr), nil
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current step.
func (p *Provisioner) State() State {
	return p.state
}

func (p *Provisioner) enter(s State) {
	p.state = s
	log.Debug().Str("state", s.String()).Msg("Provisioning state changed")
	if p.observe != nil {
		p.observe(s)
	}
}

// Run resolves the credentials. A storage read error, an access point
// failure or an LED write failure while awaiting input ends the run with an
// error. Failing to persist fresh credentials is only logged.
func (p *Provisioner) Run(ctx context.Context) (Result, error) {
	p.enter(StateCheckStorage)

	saved, err := p.store.Get()
	if err != nil {
		return Result{}, fmt.Errorf("check stored credentials: %w", err)
	}
	if saved != nil {
		p.enter(StateClientReady)
		log.Info().Str("ssid", saved.SSID).Msg("Found stored credentials")
		p.enter(StateHandoff)
		return Result{Credentials: *saved}, nil
	}

	log.Info().Msg("No stored credentials, starting provisioning")
	return p.await(ctx)
}

func (p *Provisioner) await(ctx context.Context) (Result, error) {
	p.enter(StateAwaitingCredentials)

	ap, err := p.transport.StartAccessPoint(ctx, p.cfg.SSID, p.cfg.Password)
	if err != nil {
		return Result{}, fmt.Errorf("start access point: %w", err)
	}
	apStopped := false
	defer func() {
		if !apStopped {
			if err := ap.Stop(); err != nil {
				log.Error().Err(err).Msg("Failed to stop access point")
			}
		}
	}()

	id, err := p.hardwareID(ap.HardwareAddr())
	if err != nil {
		return Result{}, fmt.Errorf("resolve hardware id: %w", err)
	}

	slot := &Slot{}
	srv := httpserver.New("capture", p.cfg.Listen, NewCaptureRouter(slot, id))
	ln, err := srv.Listen()
	if err != nil {
		return Result{}, fmt.Errorf("start capture endpoint: %w", err)
	}

	serveCtx, stopServer := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(serveCtx, ln, p.cfg.ShutdownTimeout); err != nil {
			log.Error().Err(err).Msg("Capture endpoint failed")
		}
	}()
	defer func() {
		stopServer()
		wg.Wait()
	}()

	log.Info().
		Str("ssid", p.cfg.SSID).
		Str("addr", ln.Addr().String()).
		Str("hardware_id", id).
		Msg("Awaiting credentials")
	if p.listening != nil {
		p.listening(ln.Addr())
	}

	if err := p.led.SetRGB(p.cfg.Indicator); err != nil {
		return Result{}, fmt.Errorf("show provisioning indicator: %w", err)
	}
	p.led.Pulse(p.cfg.PulsePeriod)

	creds, err := p.poll(ctx, slot)
	if err != nil {
		return Result{}, err
	}

	p.enter(StatePersist)

	apStopped = true
	if err := ap.Stop(); err != nil {
		return Result{}, fmt.Errorf("stop access point: %w", err)
	}
	if err := p.led.Stop(); err != nil {
		return Result{}, fmt.Errorf("stop provisioning indicator: %w", err)
	}
	if err := p.led.SetRGB(handoffColor); err != nil {
		return Result{}, fmt.Errorf("clear provisioning indicator: %w", err)
	}

	if err := p.store.Set(creds); err != nil {
		log.Warn().Err(err).Msg("Failed to persist credentials, provisioning will repeat on next boot")
	}
	p.record(creds, id)

	p.enter(StateHandoff)
	return Result{Credentials: creds, Fresh: true, HardwareID: id}, nil
}

// poll ticks the LED until the slot is filled.
func (p *Provisioner) poll(ctx context.Context, slot *Slot) (credentials.Credentials, error) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if c, ok := slot.Take(); ok {
			return c, nil
		}
		if err := p.led.Tick(); err != nil {
			return credentials.Credentials{}, fmt.Errorf("animate provisioning indicator: %w", err)
		}

		select {
		case <-ctx.Done():
			return credentials.Credentials{}, fmt.Errorf("provisioning cancelled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *Provisioner) record(c credentials.Credentials, id string) {
	if p.recorder != nil {
		err := p.recorder.Append(ledger.EventCredentialsProvisioned, map[string]any{
			"ssid":        c.SSID,
			"hardware_id": id,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to record provisioning")
		}
	}
	if p.bus != nil {
		p.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeProvisioned,
			Data: map[string]any{"ssid": c.SSID},
		})
	}
}
