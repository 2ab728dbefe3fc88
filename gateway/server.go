// Package gateway exposes the job pipeline over HTTP.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"kmusic-audio-api/jobs"
	"kmusic-audio-api/shared"
)

// Version is reported by the health endpoint.
const Version = "1.0"

// Dispatcher accepts uploads for asynchronous processing.
type Dispatcher interface {
	Submit(ctx context.Context, sub jobs.Submission) (string, error)
}

// Reporter reports the current state of a job.
type Reporter interface {
	Status(ctx context.Context, jobID string) (jobs.StatusPayload, error)
}

// Server holds the handlers' dependencies.
type Server struct {
	cfg        *shared.Config
	dispatcher Dispatcher
	reporter   Reporter
	limiter    *shared.RateLimiter
	logger     *log.Logger
}

// NewServer wires handlers to the dispatcher and reporter. limiter may be nil.
func NewServer(cfg *shared.Config, dispatcher Dispatcher, reporter Reporter, limiter *shared.RateLimiter, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		reporter:   reporter,
		limiter:    limiter,
		logger:     logger,
	}
}

// Router configures all API routes.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/task_status/{task_id}", s.handleTaskStatus).Methods(http.MethodGet)

	uploads := r.NewRoute().Subrouter()
	uploads.HandleFunc("/upload_and_process_lyrics", s.handleLyrics).Methods(http.MethodPost)
	uploads.HandleFunc("/detect_chords", s.handleChords).Methods(http.MethodPost)
	uploads.HandleFunc("/separate_stems", s.handleStems).Methods(http.MethodPost)
	if s.limiter != nil {
		uploads.Use(s.limiter.Middleware)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

// WriteJSON encodes v as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}
