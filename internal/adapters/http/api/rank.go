package api

import (
	"errors"
	"net/http"

	"github.com/okian/jobrank/internal/adapters/profile"
	"github.com/okian/jobrank/internal/domain/model"
)

const defaultMaxProfileBytes = 1 << 20

// RankHandler handles run requests.
type RankHandler struct {
	deps     Dependencies
	maxBody  int64
	rejected []error
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps Dependencies) *RankHandler {
	return &RankHandler{deps: deps, maxBody: defaultMaxProfileBytes}
}

// HandlePostRank handles POST /rank. The body is a profile document in JSON
// or YAML; the response is the full run result.
func (h *RankHandler) HandlePostRank(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}

	p, err := profile.Decode(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		if errors.Is(err, model.ErrEmptyProfile) {
			writeError(w, http.StatusUnprocessableEntity, "invalid_profile", err)
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", errors.Join(ErrBadRequest, err))
		return
	}

	res, err := h.deps.Rank(r.Context(), p)
	if err != nil {
		for _, target := range h.rejected {
			if errors.Is(err, target) {
				writeError(w, http.StatusUnprocessableEntity, "invalid_run", err)
				return
			}
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGetLastRun handles GET /runs/last.
func (h *RankHandler) HandleGetLastRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	res, ok := h.deps.LastRun()
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", ErrNoRun)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
