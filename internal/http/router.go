// Package http provides the session control API.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"target-speaker-monitor/internal/profile"
	"target-speaker-monitor/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // deployments front this with their own origin policy
	},
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(mgr *session.Manager, profiles *profile.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/profiles", listProfiles(profiles))
		r.Post("/sessions", startSession(mgr))
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", getSession(mgr))
			r.Delete("/", stopSession(mgr))
			r.Get("/transcript", getTranscript(mgr))
			r.Get("/events", streamEvents(mgr))
		})
	})

	return r
}

// requestLogger logs each request with zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

type startSessionRequest struct {
	ProfileID string  `json:"profileId"`
	DeviceID  string  `json:"deviceId"`
	Threshold float64 `json:"threshold,omitempty"`
	Language  string  `json:"language,omitempty"`
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
	ProfileID string `json:"profileId"`
	State     string `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func startSession(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.ProfileID == "" || req.DeviceID == "" {
			writeError(w, http.StatusBadRequest, errors.New("profileId and deviceId are required"))
			return
		}

		c, err := mgr.StartSession(r.Context(), session.Params{
			ProfileID: req.ProfileID,
			DeviceID:  req.DeviceID,
			Threshold: req.Threshold,
			Language:  req.Language,
		})
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, profile.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeError(w, status, err)
			return
		}

		writeJSON(w, http.StatusCreated, sessionResponse{
			SessionID: c.ID(),
			ProfileID: req.ProfileID,
			State:     c.State().String(),
		})
	}
}

func getSession(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := mgr.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"sessionId":   c.ID(),
			"state":       c.State().String(),
			"transcripts": len(c.Transcripts(false)),
		})
	}
}

func stopSession(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := mgr.StopSession(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			if errors.Is(err, session.ErrNotRunning) {
				writeError(w, http.StatusConflict, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"sessionId":        sum.SessionID,
			"profileId":        sum.ProfileID,
			"durationMs":       sum.Duration.Milliseconds(),
			"windowsProcessed": sum.WindowsProcessed,
			"targetSegments":   sum.TargetSegments,
			"characters":       sum.Characters,
			"transcripts":      sum.Transcripts,
			"failed":           sum.Failed,
		})
	}
}

func getTranscript(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := mgr.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		targetOnly := r.URL.Query().Get("targetOnly") != "false"
		results := c.Transcripts(targetOnly)
		writeJSON(w, http.StatusOK, map[string]any{
			"sessionId":  c.ID(),
			"targetOnly": targetOnly,
			"results":    results,
		})
	}
}

// streamEvents upgrades to a websocket and forwards final transcripts as
// they are produced. The socket closes when the session stops.
func streamEvents(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := mgr.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		defer conn.Close()

		results, cancel := c.Subscribe()
		defer cancel()

		// Drain client reads so pings and close frames are processed.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					cancel()
					return
				}
			}
		}()

		for res := range results {
			if err := conn.WriteJSON(res); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session stopped"))
	}
}

func listProfiles(profiles *profile.Store) http.HandlerFunc {
	type profileView struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Dims      int       `json:"dims"`
		CreatedAt time.Time `json:"createdAt,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := profiles.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		out := make([]profileView, 0, len(all))
		for _, p := range all {
			out = append(out, profileView{ID: p.ID, Name: p.Name, Dims: len(p.Embedding), CreatedAt: p.CreatedAt})
		}
		writeJSON(w, http.StatusOK, map[string]any{"profiles": out})
	}
}
