package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/okian/jobrank/internal/adapters/export/excel"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler serves run results as spreadsheets.
type ExportHandler struct {
	deps Dependencies
}

// NewExportHandler creates a new export handler.
func NewExportHandler(deps Dependencies) *ExportHandler {
	return &ExportHandler{deps: deps}
}

// HandleGetWorkbook handles GET /runs/last.xlsx.
func (h *ExportHandler) HandleGetWorkbook(w http.ResponseWriter, r *http.Request) {
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

	// Buffer so a failed build can still answer with an error status.
	var buf bytes.Buffer
	if err := excel.Write(&buf, &res); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="job_matches_`+res.RunID+`.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
