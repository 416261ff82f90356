// It defines the API server, sets up the routes (endpoints) using chi,
// and links them to the handler functions.

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/heiftools/heifconv/internal/core"
	"github.com/heiftools/heifconv/internal/store"
)

// Server holds the dependencies for our API.
type Server struct {
	app   *core.App
	store *store.Store
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	return &Server{
		app:   app,
		store: store.New(app.DB),
	}
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)    // Logs requests to the console
	r.Use(middleware.Recoverer) // Recovers from panics
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Post("/convert", s.handleStartConversion)
		r.Post("/convert/cancel", s.handleCancelConversion)
		r.Get("/status", s.handleGetStatus)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runID}", s.handleGetRun)
		r.Get("/runs/{runID}/files", s.handleGetRunResults)

		r.Get("/formats", s.handleListFormats)
		r.Get("/config", s.handleGetConfig)
		r.Get("/version", s.handleGetVersion)
	})

	// WebSocket route for live progress snapshots
	r.Get("/ws/progress", func(w http.ResponseWriter, r *http.Request) {
		s.app.Hub.ServeWs(w, r)
	})

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if err := s.app.DB.Ping(); err != nil {
			RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
			return
		}
		RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
