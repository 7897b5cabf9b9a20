package config

import (
	"fmt"
	"os"
	"strings"
)

// ValidationError contains details about configuration validation failures
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// validBaudRates lists the supported line speeds
var validBaudRates = []int{300, 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

// Validate checks the configuration for errors
func Validate(cfg *Config) error {
	var errors ValidationErrors

	errors = append(errors, validateSerial(&cfg.Serial)...)

	// Validate reconnect policy
	if cfg.Reconnect.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "reconnect.max_attempts",
			Message: "must be at least 1",
		})
	}
	if cfg.Reconnect.InitialDelayMs < 1 {
		errors = append(errors, ValidationError{
			Field:   "reconnect.initial_delay_ms",
			Message: "must be at least 1",
		})
	}
	if cfg.Reconnect.MaxDelayMs < cfg.Reconnect.InitialDelayMs {
		errors = append(errors, ValidationError{
			Field:   "reconnect.max_delay_ms",
			Message: "must be greater than or equal to initial_delay_ms",
		})
	}

	// Validate reader
	if cfg.Reader.MaxFrameLen < 64 {
		errors = append(errors, ValidationError{
			Field:   "reader.max_frame_len",
			Message: "must be at least 64 bytes",
		})
	}

	// Validate hub
	if cfg.Hub.QueueSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "hub.queue_size",
			Message: "must be at least 1",
		})
	}

	// Validate history
	if cfg.History.Capacity < 1 {
		errors = append(errors, ValidationError{
			Field:   "history.capacity",
			Message: "must be at least 1",
		})
	}

	// Validate recorder
	if cfg.Recorder.DatabasePath == "" {
		errors = append(errors, ValidationError{
			Field:   "recorder.database_path",
			Message: "database path is required",
		})
	}

	// Validate simulation
	validModes := []string{"dht", "imu", "mixed"}
	if !containsString(validModes, strings.ToLower(cfg.Simulation.Mode)) {
		errors = append(errors, ValidationError{
			Field:   "simulation.mode",
			Message: fmt.Sprintf("invalid mode: %s (must be 'dht', 'imu' or 'mixed')", cfg.Simulation.Mode),
		})
	}
	if cfg.Simulation.LinesPerSecond <= 0 {
		errors = append(errors, ValidationError{
			Field:   "simulation.lines_per_second",
			Message: "must be greater than 0",
		})
	}
	if cfg.Simulation.JitterPercent < 0 || cfg.Simulation.JitterPercent > 100 {
		errors = append(errors, ValidationError{
			Field:   "simulation.jitter_percent",
			Message: "must be between 0 and 100",
		})
	}

	// Validate logging
	validLevels := []string{"debug", "info", "warn", "error"}
	if !containsString(validLevels, strings.ToLower(cfg.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level: %s", cfg.Logging.Level),
		})
	}
	validLogFormats := []string{"text", "json"}
	if !containsString(validLogFormats, strings.ToLower(cfg.Logging.Format)) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format: %s (must be 'text' or 'json')", cfg.Logging.Format),
		})
	}
	if cfg.Logging.BasePath != "" {
		if info, err := os.Stat(cfg.Logging.BasePath); err != nil || !info.IsDir() {
			errors = append(errors, ValidationError{
				Field:   "logging.base_path",
				Message: fmt.Sprintf("directory does not exist: %s", cfg.Logging.BasePath),
			})
		}
	}

	// Validate monitoring
	if cfg.Monitoring.Port < 1 || cfg.Monitoring.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "monitoring.port",
			Message: "must be between 1 and 65535",
		})
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func validateSerial(serial *SerialConfig) ValidationErrors {
	var errors ValidationErrors

	// Device may be empty: connection discovery picks one at runtime.

	if !contains(validBaudRates, serial.BaudRate) {
		errors = append(errors, ValidationError{
			Field:   "serial.baud_rate",
			Message: fmt.Sprintf("invalid baud rate: %d", serial.BaudRate),
		})
	}

	validDataBits := []int{5, 6, 7, 8}
	if !contains(validDataBits, serial.DataBits) {
		errors = append(errors, ValidationError{
			Field:   "serial.data_bits",
			Message: fmt.Sprintf("invalid data bits: %d", serial.DataBits),
		})
	}

	validStopBits := []int{1, 2}
	if !contains(validStopBits, serial.StopBits) {
		errors = append(errors, ValidationError{
			Field:   "serial.stop_bits",
			Message: fmt.Sprintf("invalid stop bits: %d", serial.StopBits),
		})
	}

	validParity := []string{"none", "odd", "even"}
	if !containsString(validParity, strings.ToLower(serial.Parity)) {
		errors = append(errors, ValidationError{
			Field:   "serial.parity",
			Message: fmt.Sprintf("invalid parity: %s (must be 'none', 'odd' or 'even')", serial.Parity),
		})
	}

	if serial.ReadTimeoutMs < 10 {
		errors = append(errors, ValidationError{
			Field:   "serial.read_timeout_ms",
			Message: "must be at least 10",
		})
	}

	return errors
}

func contains(slice []int, val int) bool {
	for _, item := range slice {
		if item == val {
			return true
		}
	}
	return false
}

func containsString(slice []string, val string) bool {
	for _, item := range slice {
		if item == val {
			return true
		}
	}
	return false
}
