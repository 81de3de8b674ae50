// Package httpserver runs the lamp's HTTP endpoints with graceful shutdown.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Server is an HTTP server bound to one handler.
type Server struct {
	name       string
	addr       string
	handler    http.Handler
	httpServer *http.Server
}

// New creates a server. name only appears in logs.
func New(name, addr string, handler http.Handler) *Server {
	return &Server{
		name:    name,
		addr:    addr,
		handler: handler,
	}
}

// Listen binds the address without serving yet, so callers know the port
// is taken before they report readiness.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return ln, nil
}

// Run listens and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve serves on ln. It blocks until the context is cancelled and the
// server has shut down.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("server", s.name).Str("addr", ln.Addr().String()).Msg("Starting HTTP server")

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("server", s.name).Msg("HTTP server shutdown error")
		}
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done

	log.Info().Str("server", s.name).Msg("HTTP server stopped")
	return nil
}
