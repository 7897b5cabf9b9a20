package monitoring

import (
	"encoding/json"
	"net/http"

	"sealink/config"
)

// ConfigHandler serves a read-only view of the active configuration.
// Secrets are masked; the config itself only changes on restart.
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ServeHTTP handles config requests
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	view := *h.config
	if view.Notify.WebhookURL != "" {
		view.Notify.WebhookURL = "(configured)"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}
