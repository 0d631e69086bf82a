// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/avatarcast/internal/adapters/pool"
	"github.com/okian/avatarcast/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	GenerationDependencies
	AvatarDependencies
	StatsProvider

	// Ready reports whether the service accepts work.
	Ready(ctx context.Context) bool
}

// PoolView is the read shape of the avatar pool.
type PoolView struct {
	Stats     pool.Stats              `json:"stats"`
	Available []model.AvatarCandidate `json:"available"`
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps               Dependencies
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	generationsHandler *GenerationsHandler
	avatarsHandler     *AvatarsHandler
	mediaDir           string
	avatarDir          string
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMediaDir serves synthesized audio from dir under /media/.
func WithMediaDir(dir string) Option {
	return func(s *Server) { s.mediaDir = dir }
}

// WithAvatarDir serves available avatar images from dir under
// /avatars/files/ so video providers can fetch them.
func WithAvatarDir(dir string) Option {
	return func(s *Server) { s.avatarDir = dir }
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:               deps,
		healthHandler:      NewHealthHandler(deps),
		statsHandler:       NewStatsHandler(deps),
		generationsHandler: NewGenerationsHandler(deps, defaultListLimit, maxListLimit),
		avatarsHandler:     NewAvatarsHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/readyz", MetricsMiddleware(s.healthHandler.HandleReady, "readyz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/generations", MetricsMiddleware(s.generationsHandler.HandleGenerations, "generations"))
	mux.HandleFunc("/generations/", MetricsMiddleware(s.generationsHandler.HandleGetGeneration, "generation"))
	mux.HandleFunc("/avatars", MetricsMiddleware(s.avatarsHandler.HandleGetAvatars, "avatars"))
	mux.HandleFunc("/avatars/sync", MetricsMiddleware(s.avatarsHandler.HandleSync, "avatars_sync"))
	mux.HandleFunc("/avatars/", MetricsMiddleware(s.avatarsHandler.HandleRecycle, "avatars_recycle"))

	if s.mediaDir != "" {
		mux.Handle("/media/", http.StripPrefix("/media/", fileServer(s.mediaDir)))
	}
	if s.avatarDir != "" {
		mux.Handle("/avatars/files/", http.StripPrefix("/avatars/files/", fileServer(s.avatarDir)))
	}
}

// fileServer serves files from dir without directory listings.
func fileServer(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.NotFound(w, r)
			return
		}
		if r.URL.Path == "" || r.URL.Path[len(r.URL.Path)-1] == '/' {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps err to a status by its kind.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	writeError(w, status, code, err)
}
