package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"sealink/recorder"
	"sealink/telemetry"
)

// ControlHandler drives the connection and the recorder over HTTP
type ControlHandler struct {
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewControlHandler creates a new control handler
func NewControlHandler(p *Pipeline, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{
		pipeline: p,
		logger:   logger,
	}
}

// connect handles /api/connect. An empty body connects by discovery,
// otherwise the body names the target port.
func (h *ControlHandler) connect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var target telemetry.PortDescriptor
	if err := json.NewDecoder(r.Body).Decode(&target); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.pipeline.Manager.Connect(target); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "connected",
		"device": h.pipeline.Manager.Target().Device,
		"state":  h.pipeline.Manager.State(),
	})
}

// disconnect handles /api/disconnect
func (h *ControlHandler) disconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.pipeline.Manager.Disconnect(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "disconnected",
	})
}

// startRecording handles /api/recording/start
func (h *ControlHandler) startRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	target := h.pipeline.Manager.Target()
	sessionID, err := h.pipeline.Recorder.StartSession(target)
	if err != nil {
		if errors.Is(err, recorder.ErrSessionActive) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.notify(func() error {
		return h.pipeline.Notifier.NotifyRecordingStarted(sessionID, target.Device)
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     "recording",
		"session_id": sessionID,
	})
}

// stopRecording handles /api/recording/stop
func (h *ControlHandler) stopRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID, _ := h.pipeline.Recorder.Active()
	if err := h.pipeline.Recorder.Stop(); err != nil {
		if errors.Is(err, recorder.ErrNoActiveSession) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	samples := h.sessionSamples(r.Context(), sessionID)
	h.notify(func() error {
		return h.pipeline.Notifier.NotifyRecordingStopped(sessionID, samples)
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     "stopped",
		"session_id": sessionID,
		"samples":    samples,
	})
}

func (h *ControlHandler) sessionSamples(ctx context.Context, id string) int64 {
	sessions, err := h.pipeline.Recorder.Sessions(ctx)
	if err != nil {
		return 0
	}
	for _, s := range sessions {
		if s.ID == id {
			return s.Samples
		}
	}
	return 0
}

// notify fires a webhook notification without holding up the response.
// Failures are logged and dropped.
func (h *ControlHandler) notify(send func() error) {
	if h.pipeline.Notifier == nil || !h.pipeline.Notifier.IsEnabled() {
		return
	}
	go func() {
		if err := send(); err != nil {
			h.logger.Warn("Notification failed", "error", err)
		}
	}()
}
