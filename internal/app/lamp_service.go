package app

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/lampd/internal/config"
	"github.com/dokzlo13/lampd/internal/eventbus"
	"github.com/dokzlo13/lampd/internal/httpserver"
	"github.com/dokzlo13/lampd/internal/lamp"
	"github.com/dokzlo13/lampd/internal/led"
	"github.com/dokzlo13/lampd/internal/metrics"
)

// tickErrorLogInterval limits how often a persistent output failure is logged.
const tickErrorLogInterval = 10 * time.Second

// LampService runs the command server and the tick loop.
type LampService struct {
	cfg     *config.Config
	actor   *led.Actor
	storage *Storage
	bus     *eventbus.Bus
	metrics *metrics.Metrics

	addr net.Addr
	wg   sync.WaitGroup
}

// NewLampService creates a new LampService.
func NewLampService(cfg *config.Config, actor *led.Actor, storage *Storage, bus *eventbus.Bus, m *metrics.Metrics) *LampService {
	return &LampService{
		cfg:     cfg,
		actor:   actor,
		storage: storage,
		bus:     bus,
		metrics: m,
	}
}

// Start binds the command server and starts ticking. A bind failure is
// returned; a server failure after that goes to onFatalError.
func (s *LampService) Start(ctx context.Context, onFatalError func(error), onRestart func()) error {
	opts := []lamp.Option{
		lamp.WithBus(s.bus),
		lamp.WithRecorder(s.storage.Ledger),
		lamp.WithHistory(s.storage.Ledger),
		lamp.WithRestart(onRestart),
	}
	if s.cfg.Metrics.Enabled {
		opts = append(opts, lamp.WithMetrics(s.metrics))
	}

	lc := s.cfg.Lamp
	handler := lamp.NewHandler(lamp.Config{
		CyclePeriod: lc.CyclePeriod.Duration(),
		PulsePeriod: lc.PulsePeriod.Duration(),
		ResetDelay:  lc.ResetDelay.Duration(),
	}, s.actor, s.storage.Credentials, opts...)

	server := httpserver.New("lamp", lc.Listen, handler.Router())
	ln, err := server.Listen()
	if err != nil {
		return fmt.Errorf("start lamp server: %w", err)
	}
	s.addr = ln.Addr()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := server.Serve(ctx, ln, s.cfg.ShutdownTimeout.Duration()); err != nil {
			onFatalError(fmt.Errorf("lamp server: %w", err))
		}
	}()
	go func() {
		defer s.wg.Done()
		s.runTicks(ctx)
	}()

	return nil
}

// Addr returns the bound command server address, nil before Start.
func (s *LampService) Addr() net.Addr {
	return s.addr
}

// Wait blocks until the server and the tick loop have exited.
func (s *LampService) Wait() {
	s.wg.Wait()
}

// runTicks advances the actor on a fixed interval. A failed tick leaves the
// output stale until the next one succeeds, so the loop keeps going.
func (s *LampService) runTicks(ctx context.Context) {
	interval := s.cfg.Lamp.TickInterval.Duration()
	log.Info().Dur("interval", interval).Msg("Tick loop started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	errLog := rate.Sometimes{First: 1, Interval: tickErrorLogInterval}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Tick loop stopped")
			return
		case <-ticker.C:
		}

		err := s.actor.Tick()
		s.metrics.ObserveTick(s.actor.Status().Active, err)
		if err != nil {
			errLog.Do(func() {
				log.Error().Err(err).Msg("Tick failed")
			})
		}
	}
}
