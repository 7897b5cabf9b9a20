package monitoring

import (
	"encoding/json"
	"net/http"

	"sealink/history"
)

// HistoryHandler handles requests for retained channel history
type HistoryHandler struct {
	store *history.Store
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(store *history.Store) *HistoryHandler {
	return &HistoryHandler{
		store: store,
	}
}

// ServeHTTP handles history requests. Without a channel parameter it
// lists the known channels; with one it returns the retained points
// and their summary statistics.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	channel := r.URL.Query().Get("channel")
	if channel == "" {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"channels": h.store.Channels(),
		})
		return
	}

	summary, ok := h.store.Summarize(channel)
	if !ok {
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"channel": channel,
		"points":  h.store.Snapshot(channel),
		"summary": summary,
	})
}
