// Package monitoring exposes the pipeline over HTTP: health and
// Prometheus metrics, port and history queries, CSV exports, and
// connect/disconnect/recording control, plus an embedded dashboard.
package monitoring

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"sealink/catalog"
	"sealink/config"
	"sealink/history"
	"sealink/hub"
	"sealink/link"
	"sealink/notify"
	"sealink/recorder"
)

//go:embed dashboard.html
var dashboardHTML string

// Pipeline bundles the running components the endpoints expose.
type Pipeline struct {
	Config   *config.Config
	Manager  *link.Manager
	Hub      *hub.Hub
	History  *history.Store
	Catalog  *catalog.Catalog
	Recorder *recorder.Recorder
	Notifier *notify.Notifier
}

// Server provides HTTP endpoints for monitoring and control
type Server struct {
	config   *config.MonitoringConfig
	pipeline *Pipeline
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates a new monitoring server
func NewServer(cfg *config.MonitoringConfig, instanceID, version string, p *Pipeline, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health endpoint
	healthHandler := NewHealthHandler(instanceID, version, p)
	mux.Handle("/health", healthHandler)

	// Metrics endpoint (Prometheus format)
	metricsHandler := NewMetricsHandler(p)
	mux.Handle("/metrics", metricsHandler)

	// Config endpoint
	configHandler := NewConfigHandler(p.Config)
	mux.Handle("/api/config", configHandler)

	// Port catalog endpoint
	portsHandler := NewPortsHandler(p.Catalog)
	mux.Handle("/api/ports", portsHandler)

	// History endpoint
	historyHandler := NewHistoryHandler(p.History)
	mux.Handle("/api/history", historyHandler)

	// Session listing and CSV exports
	exportHandler := NewExportHandler(p.Recorder)
	mux.HandleFunc("/api/sessions", exportHandler.sessions)
	mux.HandleFunc("/api/export/session", exportHandler.session)
	mux.HandleFunc("/api/export/all", exportHandler.all)

	// Connection and recording control
	controlHandler := NewControlHandler(p, logger)
	mux.HandleFunc("/api/connect", controlHandler.connect)
	mux.HandleFunc("/api/disconnect", controlHandler.disconnect)
	mux.HandleFunc("/api/recording/start", controlHandler.startRecording)
	mux.HandleFunc("/api/recording/stop", controlHandler.stopRecording)

	// Dashboard endpoint
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, dashboardHTML)
	})

	return &Server{
		config:   cfg,
		pipeline: p,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the route table, for serving on a caller-owned
// listener.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the monitoring server
func (s *Server) Start() error {
	s.logger.Info("Starting monitoring server", "port", s.config.Port)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Monitoring server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully stops the monitoring server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping monitoring server")
	return s.server.Shutdown(ctx)
}
