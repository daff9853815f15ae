// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/jobrank/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service package.
type Dependencies interface {
	// Rank runs one aggregation-and-ranking pass for profile.
	Rank(ctx context.Context, profile *model.CandidateProfile) (model.RunResult, error)

	// LastRun returns the most recent successful run.
	LastRun() (model.RunResult, bool)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	rankHandler   *RankHandler
	exportHandler *ExportHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		healthHandler: NewHealthHandler(),
		rankHandler:   NewRankHandler(deps),
		exportHandler: NewExportHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/rank", MetricsMiddleware(s.rankHandler.HandlePostRank, "rank"))
	mux.HandleFunc("/runs/last", MetricsMiddleware(s.rankHandler.HandleGetLastRun, "runs_last"))
	mux.HandleFunc("/runs/last.xlsx", MetricsMiddleware(s.exportHandler.HandleGetWorkbook, "runs_last_xlsx"))
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
