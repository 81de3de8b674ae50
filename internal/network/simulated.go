package network

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"
)

// Simulated is an in-process transport for development machines and tests.
// It always succeeds unless a failure is injected.
type Simulated struct {
	mu sync.Mutex

	addr       net.HardwareAddr
	connectErr error
	apErr      error

	connected string
	apActive  bool
	stops     int
}

// NewSimulated creates a transport reporting addr as its hardware address.
func NewSimulated(addr net.HardwareAddr) *Simulated {
	return &Simulated{addr: addr}
}

// FailConnect makes every following Connect return err.
func (s *Simulated) FailConnect(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectErr = err
}

// FailAccessPoint makes every following StartAccessPoint return err.
func (s *Simulated) FailAccessPoint(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apErr = err
}

func (s *Simulated) Connect(ctx context.Context, ssid, _ string) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	if s.connectErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, s.connectErr)
	}

	s.connected = ssid
	log.Info().Str("ssid", ssid).Msg("Simulated network connected")
	return &simHandle{s: s, ap: false}, nil
}

func (s *Simulated) StartAccessPoint(ctx context.Context, ssid, _ string) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAccessPointFailed, err)
	}
	if s.apErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrAccessPointFailed, s.apErr)
	}

	s.apActive = true
	log.Info().Str("ssid", ssid).Msg("Simulated access point started")
	return &simHandle{s: s, ap: true}, nil
}

// Connected returns the SSID of the current client connection, if any.
func (s *Simulated) Connected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// AccessPointActive reports whether an access point is up.
func (s *Simulated) AccessPointActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apActive
}

// Stops counts how many handles were stopped.
func (s *Simulated) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type simHandle struct {
	s  *Simulated
	ap bool
}

func (h *simHandle) HardwareAddr() net.HardwareAddr {
	return h.s.addr
}

func (h *simHandle) Stop() error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()

	if h.ap {
		h.s.apActive = false
	} else {
		h.s.connected = ""
	}
	h.s.stops++
	return nil
}
