// Package lamp is the HTTP command surface of a provisioned lamp.
package lamp

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lampd/internal/color"
	"github.com/dokzlo13/lampd/internal/eventbus"
	"github.com/dokzlo13/lampd/internal/httpserver"
	"github.com/dokzlo13/lampd/internal/ledger"
	"github.com/dokzlo13/lampd/internal/led"
)

// Defaults for lamp commands.
const (
	DefaultCyclePeriod = 5 * time.Second
	DefaultPulsePeriod = 2 * time.Second
	DefaultResetDelay  = 500 * time.Millisecond

	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// Actor is the LED actor as seen by the command surface.
type Actor interface {
	SetHue(hue float64)
	SetSaturation(saturation float64)
	SetValue(value float64)
	SetRGB(c color.RGB) error
	Cycle(period time.Duration)
	Pulse(period time.Duration)
	Stop() error
	Status() led.Status
}

// CredentialRemover erases the stored credentials.
type CredentialRemover interface {
	Remove() error
}

// Recorder appends lifecycle entries.
type Recorder interface {
	Append(eventType ledger.EventType, payload map[string]any) error
}

// History reads recent lifecycle entries, newest first.
type History interface {
	Recent(limit int) ([]*ledger.Entry, error)
}

// CommandObserver counts handled commands.
type CommandObserver interface {
	ObserveCommand(route string)
	Handler() http.Handler
}

// Config holds the command parameters.
type Config struct {
	CyclePeriod time.Duration
	PulsePeriod time.Duration
	ResetDelay  time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithBus publishes an event after every state-changing command.
func WithBus(b *eventbus.Bus) Option {
	return func(h *Handler) { h.bus = b }
}

// WithRecorder records credential resets.
func WithRecorder(r Recorder) Option {
	return func(h *Handler) { h.recorder = r }
}

// WithHistory serves /history.
func WithHistory(hist History) Option {
	return func(h *Handler) { h.history = hist }
}

// WithMetrics counts commands and serves /metrics.
func WithMetrics(m CommandObserver) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithRestart is called once, ResetDelay after a successful /reset.
func WithRestart(fn func()) Option {
	return func(h *Handler) { h.restart = fn }
}

// Handler translates HTTP requests into actor operations.
type Handler struct {
	cfg   Config
	actor Actor
	creds CredentialRemover

	bus      *eventbus.Bus
	recorder Recorder
	history  History
	metrics  CommandObserver
	restart  func()

	restartOnce sync.Once
}

// NewHandler creates the command handler.
func NewHandler(cfg Config, actor Actor, creds CredentialRemover, opts ...Option) *Handler {
	if cfg.CyclePeriod <= 0 {
		cfg.CyclePeriod = DefaultCyclePeriod
	}
	if cfg.PulsePeriod <= 0 {
		cfg.PulsePeriod = DefaultPulsePeriod
	}
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = DefaultResetDelay
	}

	h := &Handler{cfg: cfg, actor: actor, creds: creds}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router builds the routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.RequestLogger)
	r.Use(httpserver.AllowAnyOrigin)

	r.Get("/set", h.counted("/set", h.handleSet))
	r.Get("/cycle", h.counted("/cycle", h.handleCycle))
	r.Get("/pulse", h.counted("/pulse", h.handlePulse))
	r.Get("/stop", h.counted("/stop", h.handleStop))
	r.Get("/rgb", h.counted("/rgb", h.handleRGB))
	r.Get("/status", h.counted("/status", h.handleStatus))
	r.Get("/reset", h.counted("/reset", h.handleReset))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.history != nil {
		r.Get("/history", h.counted("/history", h.handleHistory))
	}
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}
	return r
}

func (h *Handler) counted(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.metrics != nil {
			h.metrics.ObserveCommand(route)
		}
		fn(w, r)
	}
}

// handleSet applies any of hue, sat/saturation and val/value. Missing or
// malformed fields are skipped rather than rejecting the request.
func (h *Handler) handleSet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	applied := map[string]any{}

	if hue, ok := queryFloat(q.Get("hue")); ok {
		h.actor.SetHue(hue)
		applied["hue"] = color.NormalizeHue(hue)
	}
	if sat, ok := queryFloat(firstOf(q.Get("sat"), q.Get("saturation"))); ok {
		h.actor.SetSaturation(sat)
		applied["saturation"] = color.Clamp01(sat)
	}
	if val, ok := queryFloat(firstOf(q.Get("val"), q.Get("value"))); ok {
		h.actor.SetValue(val)
		applied["value"] = color.Clamp01(val)
	}

	if len(applied) > 0 {
		log.Debug().Interface("applied", applied).Msg("Color set")
		h.publish(eventbus.EventTypeColorChanged, applied)
	}
	writeJSON(w, http.StatusOK, applied)
}

func (h *Handler) handleCycle(w http.ResponseWriter, r *http.Request) {
	h.actor.Cycle(h.cfg.CyclePeriod)
	h.publish(eventbus.EventTypeEffectStarted, map[string]any{
		"effect": "cycle",
		"period": h.cfg.CyclePeriod.String(),
	})
	writeJSON(w, http.StatusOK, periodResponse(h.cfg.CyclePeriod))
}

// handlePulse accepts an optional Go duration, e.g. ?period=1500ms.
func (h *Handler) handlePulse(w http.ResponseWriter, r *http.Request) {
	period := h.cfg.PulsePeriod
	if d, err := time.ParseDuration(r.URL.Query().Get("period")); err == nil && d > 0 {
		period = d
	}

	h.actor.Pulse(period)
	h.publish(eventbus.EventTypeEffectStarted, map[string]any{
		"effect": "pulse",
		"period": period.String(),
	})
	writeJSON(w, http.StatusOK, periodResponse(period))
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := h.actor.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop effects")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.publish(eventbus.EventTypeEffectStopped, nil)
	writeJSON(w, http.StatusOK, h.actor.Status().Report())
}

// handleRGB sets a normalized RGB color directly; missing channels keep their current level.
func (h *Handler) handleRGB(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c := h.actor.Status().Color.RGB()
	if v, ok := queryFloat(q.Get("r")); ok {
		c.R = v
	}
	if v, ok := queryFloat(q.Get("g")); ok {
		c.G = v
	}
	if v, ok := queryFloat(q.Get("b")); ok {
		c.B = v
	}
	c = c.Clamped()

	if err := h.actor.SetRGB(c); err != nil {
		log.Error().Err(err).Msg("Failed to set RGB")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.publish(eventbus.EventTypeColorChanged, map[string]any{"r": c.R, "g": c.G, "b": c.B})
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.actor.Status().Report())
}

// handleReset erases the credentials and schedules a restart so the lamp
// boots into provisioning. The delay lets this response reach the client.
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.creds.Remove(); err != nil {
		log.Error().Err(err).Msg("Failed to erase credentials")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Info().Dur("delay", h.cfg.ResetDelay).Msg("Credentials erased, restarting")

	if h.recorder != nil {
		if err := h.recorder.Append(ledger.EventCredentialsReset, map[string]any{"source": "http"}); err != nil {
			log.Warn().Err(err).Msg("Failed to record credentials reset")
		}
	}

	if h.restart != nil {
		h.restartOnce.Do(func() {
			time.AfterFunc(h.cfg.ResetDelay, h.restart)
		})
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "restarting",
		"delay":  h.cfg.ResetDelay.String(),
	})
}

// handleHistory lists lifecycle entries, newest first. ?limit=N caps the
// count; malformed values use the default.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = min(n, maxHistoryLimit)
	}

	entries, err := h.history.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read history")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) publish(t eventbus.EventType, data map[string]any) {
	if h.bus != nil {
		h.bus.Publish(eventbus.Event{Type: t, Data: data})
	}
}

func periodResponse(d time.Duration) map[string]any {
	return map[string]any{
		"period":    d.String(),
		"period_ms": d.Milliseconds(),
	}
}

func queryFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
