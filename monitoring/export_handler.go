package monitoring

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"sealink/recorder"
)

// ExportHandler serves the session listing and CSV downloads
type ExportHandler struct {
	recorder *recorder.Recorder
}

// NewExportHandler creates a new export handler
func NewExportHandler(rec *recorder.Recorder) *ExportHandler {
	return &ExportHandler{
		recorder: rec,
	}
}

// sessions handles the /api/sessions endpoint
func (h *ExportHandler) sessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions, err := h.recorder.Sessions(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sessions": sessions,
	})
}

// session handles the /api/export/session endpoint
func (h *ExportHandler) session(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id parameter required", http.StatusBadRequest)
		return
	}

	// Export into a buffer first so a failure can still produce an
	// error status.
	var buf bytes.Buffer
	if err := h.recorder.ExportSession(r.Context(), id, &buf); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sendCSV(w, fmt.Sprintf("session-%s.csv", id), &buf)
}

// all handles the /api/export/all endpoint
func (h *ExportHandler) all(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var buf bytes.Buffer
	if err := h.recorder.ExportAll(r.Context(), &buf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sendCSV(w, "telemetry-all.csv", &buf)
}

func sendCSV(w http.ResponseWriter, filename string, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	buf.WriteTo(w)
}
