package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"sealink/catalog"
	"sealink/config"
	"sealink/format"
	"sealink/history"
	"sealink/hub"
	"sealink/link"
	"sealink/monitoring"
	"sealink/notify"
	"sealink/recorder"
	"sealink/serial"
	"sealink/simul"
	"sealink/telemetry"

	// Import format packages for side-effect registration
	_ "sealink/format/dht"
	_ "sealink/format/generic"
	_ "sealink/format/imu"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (defaults apply when omitted)")
	validate := flag.Bool("validate", false, "Validate configuration and exit")
	listPorts := flag.Bool("list-ports", false, "List available serial ports and exit")
	listFormats := flag.Bool("list-formats", false, "List registered telemetry formats and exit")
	simulate := flag.Bool("simulate", false, "Stream from the synthetic source instead of hardware")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Display version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Sealink - Serial Telemetry Pipeline\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s -config config.json\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -simulate\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -list-ports\n", os.Args[0])
	}

	flag.Parse()

	// Handle version flag
	if *showVersion {
		fmt.Printf("Sealink version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// Handle list-formats flag
	if *listFormats {
		fmt.Println("Registered telemetry formats:")
		formats := format.Formats()
		if len(formats) == 0 {
			fmt.Println("  (none registered)")
		} else {
			for _, f := range formats {
				fmt.Printf("  %-10s priority %-3d - %s\n", f.Name(), f.Priority(), f.Description())
			}
		}
		os.Exit(0)
	}

	// Load configuration; built-in defaults serve when no file is given
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation failed:\n  %v\n", err)
		os.Exit(1)
	}

	// Handle validate flag
	if *validate {
		fmt.Println("Configuration is valid")
		fmt.Printf("  Instance: %s\n", cfg.App.InstanceID)
		if cfg.Serial.Device != "" {
			fmt.Printf("  Device: %s at %d baud\n", cfg.Serial.Device, cfg.Serial.BaudRate)
		} else {
			fmt.Printf("  Device: (discovery) at %d baud\n", cfg.Serial.BaudRate)
		}
		fmt.Printf("  Database: %s\n", cfg.Recorder.DatabasePath)
		fmt.Printf("  Monitoring port: %d\n", cfg.Monitoring.Port)
		os.Exit(0)
	}

	// Handle list-ports flag
	if *listPorts {
		cat, err := catalog.New(cfg.Catalog.NamesPath, slog.Default())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening port catalog: %v\n", err)
			os.Exit(1)
		}
		ports, err := cat.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Available serial ports:")
		if len(ports) == 0 {
			fmt.Println("  (none found)")
		} else {
			for _, port := range ports {
				if label := port.Label(); label != port.Device {
					fmt.Printf("  %s - %s\n", port.Device, label)
				} else {
					fmt.Printf("  %s\n", port.Device)
				}
			}
		}
		os.Exit(0)
	}

	// Setup logging
	logger := setupLogging(cfg, *debug)
	slog.SetDefault(logger)

	logger.Info("Sealink starting",
		"version", version,
		"instance", cfg.App.InstanceID,
	)

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", "signal", sig)
		cancel()
	}()

	// Build the pipeline
	cat, err := catalog.New(cfg.Catalog.NamesPath, logger)
	if err != nil {
		logger.Error("Failed to open port catalog", "error", err)
		os.Exit(1)
	}

	h := hub.New(cfg.Hub.QueueSize, logger)
	store := history.NewStore(cfg.History.Capacity)
	rec := recorder.New(cfg.Recorder.DatabasePath, logger)
	manager := link.NewManager(cfg, cat, h, logger)
	notifier := notify.NewNotifier(&cfg.Notify, cfg.App.InstanceID, logger)

	// Consumers run until the hub closes so queued samples drain on the
	// way out.
	historySub, err := h.Subscribe("history", hub.LatestWins)
	if err != nil {
		logger.Error("Failed to subscribe history consumer", "error", err)
		os.Exit(1)
	}
	recorderSub, err := h.Subscribe("recorder", hub.Blocking)
	if err != nil {
		logger.Error("Failed to subscribe recorder consumer", "error", err)
		os.Exit(1)
	}

	var consumers sync.WaitGroup
	consumers.Add(2)
	go func() {
		defer consumers.Done()
		history.Consume(context.Background(), historySub, store)
	}()
	go func() {
		defer consumers.Done()
		recorder.Consume(context.Background(), recorderSub, rec)
	}()

	// Webhook notifications for stream starts and failures. The
	// listener runs on the manager's transition path, so sends go to a
	// goroutine.
	manager.SetStateListener(func(state link.State) {
		if !notifier.IsEnabled() {
			return
		}
		switch state {
		case link.StateStreaming:
			target := manager.Target()
			go func() {
				if err := notifier.NotifyStreaming(target); err != nil {
					logger.Warn("Failed to send stream notification", "error", err)
				}
			}()
		case link.StateFailed:
			device := manager.Target().Device
			streamErr := manager.Err()
			go func() {
				if err := notifier.NotifyError(device, streamErr); err != nil {
					logger.Warn("Failed to send error notification", "error", err)
				}
			}()
		}
	})

	// An explicit device skips discovery; empty leaves the pick to the
	// catalog.
	var target telemetry.PortDescriptor
	if cfg.Serial.Device != "" {
		target = telemetry.PortDescriptor{Device: cfg.Serial.Device}
	}

	if *simulate || cfg.Simulation.Enabled {
		sim, err := simul.NewSource(&cfg.Simulation)
		if err != nil {
			logger.Error("Failed to create simulated source", "error", err)
			os.Exit(1)
		}
		target = sim.Descriptor()
		// Reconnecting after a disconnect gets a fresh source.
		manager.SetOpener(func(serial.PortConfig) (serial.Port, error) {
			if sim.IsOpen() {
				return sim, nil
			}
			return simul.NewSource(&cfg.Simulation)
		})
		logger.Info("Simulation mode", "mode", cfg.Simulation.Mode,
			"lines_per_second", cfg.Simulation.LinesPerSecond)
	}

	// A failed first connect is not fatal; the monitoring API can
	// connect later.
	if err := manager.Connect(target); err != nil {
		logger.Warn("Initial connection failed", "error", err)
	}

	// Start monitoring server
	pipeline := &monitoring.Pipeline{
		Config:   cfg,
		Manager:  manager,
		Hub:      h,
		History:  store,
		Catalog:  cat,
		Recorder: rec,
		Notifier: notifier,
	}
	monitorServer := monitoring.NewServer(&cfg.Monitoring, cfg.App.InstanceID, version, pipeline, logger)
	if err := monitorServer.Start(); err != nil {
		logger.Error("Failed to start monitoring server", "error", err)
	}

	startTime := time.Now()
	logger.Info("Sealink running",
		"device", manager.Target().Device,
		"state", manager.State(),
		"monitoring_port", cfg.Monitoring.Port,
	)

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Sealink shutting down")

	// Stop monitoring server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := monitorServer.Stop(shutdownCtx); err != nil {
		logger.Warn("Error stopping monitoring server", "error", err)
	}

	// Stop the stream, then close the hub so consumers drain and exit
	if err := manager.Disconnect(); err != nil {
		logger.Warn("Error closing connection", "error", err)
	}
	h.Close()
	consumers.Wait()

	// Close out a recording session left open
	if _, active := rec.Active(); active {
		if err := rec.Stop(); err != nil {
			logger.Warn("Error closing recording session", "error", err)
		}
	}

	totalSamples := manager.Stats().Samples

	if err := rec.Close(); err != nil {
		logger.Warn("Error closing session log", "error", err)
	}

	// Send shutdown notification
	uptime := time.Since(startTime)
	if err := notifier.NotifyShutdown(totalSamples, uptime); err != nil {
		logger.Warn("Failed to send shutdown notification", "error", err)
	}

	logger.Info("Sealink stopped",
		"uptime", uptime,
		"total_samples", totalSamples,
	)
}

func setupLogging(cfg *config.Config, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	// If base path is set, use file logging with rotation; -debug also
	// mirrors file logs to stderr
	var writer io.Writer = os.Stdout
	if cfg.Logging.BasePath != "" {
		writer = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Logging.BasePath, cfg.Logging.Filename),
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			Compress:   cfg.Logging.Compress,
		}
		if debug {
			writer = io.MultiWriter(writer, os.Stderr)
		}
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler)
}
