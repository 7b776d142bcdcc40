// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	service "github.com/okian/facetally/internal/app"
	"github.com/okian/facetally/internal/domain/model"
	"github.com/okian/facetally/internal/domain/registry"
	"github.com/okian/facetally/internal/domain/types"
	"github.com/okian/facetally/pkg/logger"
)

const defaultMaxBodyBytes = 32 << 20

// Dependencies required by HTTP handlers.
type Dependencies interface {
	StatsProvider

	// Recognize runs one session and waits for its outcome.
	Recognize(ctx context.Context, frames []model.Frame) (service.Outcome, error)

	// ReloadRegistry swaps in a registry rebuilt from the store.
	ReloadRegistry(ctx context.Context) (*registry.Snapshot, error)

	// Identities lists the enrolled identities.
	Identities(ctx context.Context) []types.Identity

	// Attendance reads the records of one day.
	Attendance(ctx context.Context, day time.Time) ([]model.AttendanceRecord, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps         Dependencies
	logger       logger.Logger
	maxBodyBytes int64
	now          func() time.Time

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:          deps,
		logger:        logger.Get(),
		maxBodyBytes:  defaultMaxBodyBytes,
		now:           time.Now,
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("api")
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("POST /recognize", MetricsMiddleware(s.HandleRecognize, "recognize"))
	mux.HandleFunc("GET /registry", MetricsMiddleware(s.HandleListRegistry, "registry"))
	mux.HandleFunc("POST /registry/reload", MetricsMiddleware(s.HandleReloadRegistry, "registry_reload"))
	mux.HandleFunc("GET /attendance", MetricsMiddleware(s.HandleAttendance, "attendance"))
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
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

func writeError(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
