package config

import (
	"encoding/json"
	"os"
	"time"
)

// Config is the root configuration structure
type Config struct {
	App        AppConfig        `json:"app"`
	Serial     SerialConfig     `json:"serial"`
	Reconnect  ReconnectConfig  `json:"reconnect"`
	Reader     ReaderConfig     `json:"reader"`
	Hub        HubConfig        `json:"hub"`
	History    HistoryConfig    `json:"history"`
	Recorder   RecorderConfig   `json:"recorder"`
	Catalog    CatalogConfig    `json:"catalog"`
	Simulation SimulationConfig `json:"simulation"`
	Logging    LoggingConfig    `json:"logging"`
	Monitoring MonitoringConfig `json:"monitoring"`
	Notify     NotifyConfig     `json:"notify"`
}

// AppConfig contains application metadata
type AppConfig struct {
	Name       string `json:"name"`
	InstanceID string `json:"instance_id"`
}

// SerialConfig defines the target port and line parameters. An empty
// device selects a port by discovery at connect time.
type SerialConfig struct {
	Device        string `json:"device,omitempty"`
	BaudRate      int    `json:"baud_rate"`
	DataBits      int    `json:"data_bits"`
	StopBits      int    `json:"stop_bits"`
	Parity        string `json:"parity"`
	ReadTimeoutMs int    `json:"read_timeout_ms"`
	// Hello is written to the board once streaming starts, telling the
	// firmware the host is listening.
	Hello string `json:"hello,omitempty"`
}

// ReconnectConfig defines reconnection behavior after a stream drops
type ReconnectConfig struct {
	MaxAttempts    int `json:"max_attempts"`
	InitialDelayMs int `json:"initial_delay_ms"`
	MaxDelayMs     int `json:"max_delay_ms"`
}

// ReaderConfig bounds the frame reader's accumulation buffer
type ReaderConfig struct {
	MaxFrameLen int `json:"max_frame_len"`
}

// HubConfig sizes the blocking subscription queues
type HubConfig struct {
	QueueSize int `json:"queue_size"`
}

// HistoryConfig bounds the per-channel history rings
type HistoryConfig struct {
	Capacity int `json:"capacity"`
}

// RecorderConfig locates the durable session log
type RecorderConfig struct {
	DatabasePath string `json:"database_path"`
}

// CatalogConfig locates the persisted friendly-name map
type CatalogConfig struct {
	NamesPath string `json:"names_path"`
}

// SimulationConfig drives the synthetic telemetry source used when no
// hardware is attached
type SimulationConfig struct {
	Enabled        bool    `json:"enabled"`
	Mode           string  `json:"mode"`
	LinesPerSecond float64 `json:"lines_per_second"`
	JitterPercent  float64 `json:"jitter_percent"`
}

// LoggingConfig defines logging settings
type LoggingConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	BasePath   string `json:"base_path"`
	Filename   string `json:"filename"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	Compress   bool   `json:"compress"`
}

// MonitoringConfig defines HTTP monitoring settings
type MonitoringConfig struct {
	Port             int `json:"port"`
	StatsIntervalSec int `json:"stats_interval_sec"`
}

// NotifyConfig defines webhook notification settings
type NotifyConfig struct {
	WebhookURL      string `json:"webhook_url"`
	NotifyStartup   bool   `json:"notify_startup"`
	NotifyShutdown  bool   `json:"notify_shutdown"`
	NotifyErrors    bool   `json:"notify_errors"`
	NotifyRecording bool   `json:"notify_recording"`
}

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Default returns a configuration with every default applied, used when
// no config file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// applyDefaults sets default values for unspecified fields
func (c *Config) applyDefaults() {
	// App defaults
	if c.App.Name == "" {
		c.App.Name = "SeaLink"
	}
	if c.App.InstanceID == "" {
		hostname, _ := os.Hostname()
		c.App.InstanceID = hostname
	}

	// Serial defaults
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = 115200
	}
	if c.Serial.DataBits == 0 {
		c.Serial.DataBits = 8
	}
	if c.Serial.StopBits == 0 {
		c.Serial.StopBits = 1
	}
	if c.Serial.Parity == "" {
		c.Serial.Parity = "none"
	}
	if c.Serial.ReadTimeoutMs == 0 {
		c.Serial.ReadTimeoutMs = 1000
	}
	if c.Serial.Hello == "" {
		c.Serial.Hello = "F"
	}

	// Reconnect defaults
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = 5
	}
	if c.Reconnect.InitialDelayMs == 0 {
		c.Reconnect.InitialDelayMs = 500
	}
	if c.Reconnect.MaxDelayMs == 0 {
		c.Reconnect.MaxDelayMs = 5000
	}

	// Reader defaults
	if c.Reader.MaxFrameLen == 0 {
		c.Reader.MaxFrameLen = 1024
	}

	// Hub defaults
	if c.Hub.QueueSize == 0 {
		c.Hub.QueueSize = 256
	}

	// History defaults
	if c.History.Capacity == 0 {
		c.History.Capacity = 100
	}

	// Recorder defaults
	if c.Recorder.DatabasePath == "" {
		c.Recorder.DatabasePath = "sealink.db"
	}

	// Catalog defaults
	if c.Catalog.NamesPath == "" {
		c.Catalog.NamesPath = "board_names.json"
	}

	// Simulation defaults
	if c.Simulation.Mode == "" {
		c.Simulation.Mode = "mixed"
	}
	if c.Simulation.LinesPerSecond == 0 {
		c.Simulation.LinesPerSecond = 2.0
	}
	if c.Simulation.JitterPercent == 0 {
		c.Simulation.JitterPercent = 10.0
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Filename == "" {
		c.Logging.Filename = "sealink.log"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 50
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}

	// Monitoring defaults
	if c.Monitoring.Port == 0 {
		c.Monitoring.Port = 8080
	}
	if c.Monitoring.StatsIntervalSec == 0 {
		c.Monitoring.StatsIntervalSec = 60
	}
}

// GetReadTimeout returns the serial read timeout as a duration
func (c *SerialConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// GetInitialDelay returns the first reconnect backoff as a duration
func (c *ReconnectConfig) GetInitialDelay() time.Duration {
	return time.Duration(c.InitialDelayMs) * time.Millisecond
}

// GetMaxDelay returns the backoff cap as a duration
func (c *ReconnectConfig) GetMaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}
