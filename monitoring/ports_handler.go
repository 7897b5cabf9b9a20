package monitoring

import (
	"encoding/json"
	"net/http"

	"sealink/catalog"
)

// PortsHandler handles requests for the port catalog
type PortsHandler struct {
	catalog *catalog.Catalog
}

// NewPortsHandler creates a new ports handler
func NewPortsHandler(c *catalog.Catalog) *PortsHandler {
	return &PortsHandler{
		catalog: c,
	}
}

// ServeHTTP handles port catalog requests
func (h *PortsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ports, err := h.catalog.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ports": ports,
	})
}
