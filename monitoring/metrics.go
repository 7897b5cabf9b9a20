package monitoring

import (
	"fmt"
	"net/http"

	"sealink/link"
	"sealink/telemetry"
)

// MetricsHandler creates an HTTP handler for Prometheus metrics
type MetricsHandler struct {
	pipeline *Pipeline
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(p *Pipeline) *MetricsHandler {
	return &MetricsHandler{
		pipeline: p,
	}
}

// ServeHTTP handles the /metrics endpoint in Prometheus format
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := h.pipeline.Manager.Stats()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Frames received
	fmt.Fprintln(w, "# HELP sealink_frames_total Frames assembled from the serial stream")
	fmt.Fprintln(w, "# TYPE sealink_frames_total counter")
	fmt.Fprintf(w, "sealink_frames_total %d\n", st.Frames)

	// Samples by kind
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP sealink_samples_total Parsed samples by kind")
	fmt.Fprintln(w, "# TYPE sealink_samples_total counter")
	for _, kind := range []telemetry.Kind{telemetry.KindDHT, telemetry.KindIMU, telemetry.KindGeneric} {
		fmt.Fprintf(w, "sealink_samples_total{kind=%q} %d\n", kind, st.SamplesByKind[kind])
	}

	// Rejected frames
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP sealink_frames_malformed_total Frames rejected by every format")
	fmt.Fprintln(w, "# TYPE sealink_frames_malformed_total counter")
	fmt.Fprintf(w, "sealink_frames_malformed_total %d\n", st.Malformed)

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP sealink_frames_oversized_total Frames discarded for exceeding the length limit")
	fmt.Fprintln(w, "# TYPE sealink_frames_oversized_total counter")
	fmt.Fprintf(w, "sealink_frames_oversized_total %d\n", st.Oversized)

	// Reconnects
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP sealink_reconnects_total Reconnect attempts on the managed connection")
	fmt.Fprintln(w, "# TYPE sealink_reconnects_total counter")
	fmt.Fprintf(w, "sealink_reconnects_total %d\n", st.Reconnects)

	// Connection status
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP sealink_connection_up Connection status (1=streaming, 0=not streaming)")
	fmt.Fprintln(w, "# TYPE sealink_connection_up gauge")
	up := 0
	if st.State == link.StateStreaming {
		up = 1
	}
	fmt.Fprintf(w, "sealink_connection_up{device=%q,state=%q} %d\n", st.Device, st.State, up)

	// Last frame timestamp
	if !st.LastFrameTime.IsZero() {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "# HELP sealink_last_frame_timestamp Unix timestamp of the last assembled frame")
		fmt.Fprintln(w, "# TYPE sealink_last_frame_timestamp gauge")
		fmt.Fprintf(w, "sealink_last_frame_timestamp %d\n", st.LastFrameTime.Unix())
	}

	// Hub distribution
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP sealink_hub_published_total Samples accepted for distribution")
	fmt.Fprintln(w, "# TYPE sealink_hub_published_total counter")
	fmt.Fprintf(w, "sealink_hub_published_total %d\n", h.pipeline.Hub.Published())

	consumers := h.pipeline.Hub.Stats()

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP sealink_hub_delivered_total Samples delivered per consumer")
	fmt.Fprintln(w, "# TYPE sealink_hub_delivered_total counter")
	for _, c := range consumers {
		fmt.Fprintf(w, "sealink_hub_delivered_total{consumer=%q,policy=%q} %d\n", c.Name, c.Policy, c.Delivered)
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP sealink_hub_dropped_total Samples superseded before a latest-wins consumer read them")
	fmt.Fprintln(w, "# TYPE sealink_hub_dropped_total counter")
	for _, c := range consumers {
		fmt.Fprintf(w, "sealink_hub_dropped_total{consumer=%q} %d\n", c.Name, c.Dropped)
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP sealink_hub_pending Samples queued per consumer")
	fmt.Fprintln(w, "# TYPE sealink_hub_pending gauge")
	for _, c := range consumers {
		fmt.Fprintf(w, "sealink_hub_pending{consumer=%q} %d\n", c.Name, c.Pending)
	}

	// Recorder
	rs := h.pipeline.Recorder.Stats()

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP sealink_recorder_appends_total Samples written to the session log")
	fmt.Fprintln(w, "# TYPE sealink_recorder_appends_total counter")
	fmt.Fprintf(w, "sealink_recorder_appends_total %d\n", rs.Appends)

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP sealink_recorder_failures_total Session log write failures")
	fmt.Fprintln(w, "# TYPE sealink_recorder_failures_total counter")
	fmt.Fprintf(w, "sealink_recorder_failures_total %d\n", rs.Failures)

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "# HELP sealink_recording_active Recording status (1=session open, 0=idle)")
	fmt.Fprintln(w, "# TYPE sealink_recording_active gauge")
	active := 0
	if rs.ActiveSession != "" {
		active = 1
	}
	fmt.Fprintf(w, "sealink_recording_active %d\n", active)
}
