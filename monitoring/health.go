package monitoring

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"sealink/hub"
	"sealink/link"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string                  `json:"status"`
	InstanceID string                  `json:"instance_id"`
	Version    string                  `json:"version"`
	UptimeSec  int64                   `json:"uptime_sec"`
	Started    string                  `json:"started"`
	Connection ConnectionHealth        `json:"connection"`
	Recording  RecordingHealth         `json:"recording"`
	Consumers  []hub.SubscriptionStats `json:"consumers"`
}

// ConnectionHealth summarizes the managed connection
type ConnectionHealth struct {
	State         link.State `json:"state"`
	Device        string     `json:"device,omitempty"`
	Error         string     `json:"error,omitempty"`
	Frames        int64      `json:"frames"`
	Samples       int64      `json:"samples"`
	Malformed     int64      `json:"malformed"`
	Oversized     int64      `json:"oversized"`
	Reconnects    int64      `json:"reconnects"`
	BytesReceived string     `json:"bytes_received"`
	LastFrame     string     `json:"last_frame,omitempty"`
}

// RecordingHealth summarizes the recorder
type RecordingHealth struct {
	Active    bool   `json:"active"`
	SessionID string `json:"session_id,omitempty"`
	Appends   int64  `json:"appends"`
	Failures  int64  `json:"failures"`
}

// HealthHandler creates an HTTP handler for health checks
type HealthHandler struct {
	instanceID string
	version    string
	startTime  time.Time
	pipeline   *Pipeline
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(instanceID, version string, p *Pipeline) *HealthHandler {
	return &HealthHandler{
		instanceID: instanceID,
		version:    version,
		startTime:  time.Now(),
		pipeline:   p,
	}
}

// ServeHTTP handles the /health endpoint
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := h.pipeline.Manager.Stats()

	// Reconnecting and Failed mean the stream is not flowing.
	status := "healthy"
	switch st.State {
	case link.StateReconnecting, link.StateFailed:
		status = "degraded"
	}

	conn := ConnectionHealth{
		State:         st.State,
		Device:        st.Device,
		Frames:        st.Frames,
		Samples:       st.Samples,
		Malformed:     st.Malformed,
		Oversized:     st.Oversized,
		Reconnects:    st.Reconnects,
		BytesReceived: humanize.Bytes(uint64(st.BytesReceived)),
	}
	if err := h.pipeline.Manager.Err(); err != nil {
		conn.Error = err.Error()
	}
	if !st.LastFrameTime.IsZero() {
		conn.LastFrame = humanize.Time(st.LastFrameTime)
	}

	rs := h.pipeline.Recorder.Stats()
	recording := RecordingHealth{
		Active:    rs.ActiveSession != "",
		SessionID: rs.ActiveSession,
		Appends:   rs.Appends,
		Failures:  rs.Failures,
	}

	response := HealthResponse{
		Status:     status,
		InstanceID: h.instanceID,
		Version:    h.version,
		UptimeSec:  int64(time.Since(h.startTime).Seconds()),
		Started:    humanize.Time(h.startTime),
		Connection: conn,
		Recording:  recording,
		Consumers:  h.pipeline.Hub.Stats(),
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}
