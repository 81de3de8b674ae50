package provision

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lampd/internal/credentials"
	"github.com/dokzlo13/lampd/internal/httpserver"
)

// NewCaptureRouter serves GET /connect?ssid=&password=. The reply body is
// hardwareID, so the client can confirm which fixture it configured; the
// submission is committed to slot once that reply is flushed.
func NewCaptureRouter(slot *Slot, hardwareID string) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.RequestLogger)
	r.Use(httpserver.AllowAnyOrigin)

	r.Get("/connect", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		c := credentials.Credentials{
			SSID:     q.Get("ssid"),
			Password: q.Get("password"),
		}
		if c.SSID == "" {
			http.Error(w, "ssid is required", http.StatusBadRequest)
			return
		}

		commit, ok := slot.Offer(c)
		if !ok {
			log.Warn().Str("ssid", c.SSID).Msg("Credentials already submitted, ignoring")
			http.Error(w, "credentials already submitted", http.StatusConflict)
			return
		}

		log.Info().Str("ssid", c.SSID).Msg("Credentials received")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if _, err := io.WriteString(w, hardwareID); err != nil {
			log.Warn().Err(err).Msg("Failed to send hardware id")
		}
		// the access point goes down right after Take, so the reply must leave first
		if err := http.NewResponseController(w).Flush(); err != nil {
			log.Debug().Err(err).Msg("Failed to flush capture reply")
		}
		commit()
	})

	return r
}
