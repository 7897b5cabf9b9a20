// Package notify posts pipeline events to a Slack-compatible webhook.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"sealink/config"
	"sealink/telemetry"
)

// Notifier sends event notifications to a configured webhook
type Notifier struct {
	config     *config.NotifyConfig
	instanceID string
	logger     *slog.Logger
	client     *http.Client
}

// Message is the webhook payload. The shape follows the Slack incoming
// webhook format, which most chat webhooks accept.
type Message struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a message attachment
type Attachment struct {
	Color     string  `json:"color,omitempty"`
	Title     string  `json:"title,omitempty"`
	Text      string  `json:"text,omitempty"`
	Fields    []Field `json:"fields,omitempty"`
	Footer    string  `json:"footer,omitempty"`
	Timestamp int64   `json:"ts,omitempty"`
}

// Field represents a field in a message attachment
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewNotifier creates a new webhook notifier
func NewNotifier(cfg *config.NotifyConfig, instanceID string, logger *slog.Logger) *Notifier {
	return &Notifier{
		config:     cfg,
		instanceID: instanceID,
		logger:     logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// IsEnabled returns true if a webhook URL is configured
func (n *Notifier) IsEnabled() bool {
	return n.config.WebhookURL != ""
}

// NotifyStreaming reports that the telemetry stream came up
func (n *Notifier) NotifyStreaming(port telemetry.PortDescriptor) error {
	if !n.IsEnabled() || !n.config.NotifyStartup {
		return nil
	}

	fields := []Field{
		{Title: "Instance", Value: n.instanceID, Short: true},
		{Title: "Device", Value: port.Device, Short: true},
	}
	if label := port.Label(); label != port.Device {
		fields = append(fields, Field{Title: "Port", Value: label, Short: true})
	}

	msg := Message{
		Attachments: []Attachment{
			{
				Color:     "good",
				Title:     "Telemetry Stream Started",
				Fields:    fields,
				Footer:    "Sealink",
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return n.send(msg)
}

// NotifyShutdown reports a clean shutdown
func (n *Notifier) NotifyShutdown(samples int64, uptime time.Duration) error {
	if !n.IsEnabled() || !n.config.NotifyShutdown {
		return nil
	}

	msg := Message{
		Attachments: []Attachment{
			{
				Color: "warning",
				Title: "Sealink Stopped",
				Fields: []Field{
					{Title: "Instance", Value: n.instanceID, Short: true},
					{Title: "Uptime", Value: formatDuration(uptime), Short: true},
					{Title: "Samples", Value: fmt.Sprintf("%d", samples), Short: true},
				},
				Footer:    "Sealink",
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return n.send(msg)
}

// NotifyError reports a failed connection
func (n *Notifier) NotifyError(device string, err error) error {
	if !n.IsEnabled() || !n.config.NotifyErrors {
		return nil
	}

	msg := Message{
		Attachments: []Attachment{
			{
				Color: "danger",
				Title: "Connection Failed",
				Fields: []Field{
					{Title: "Instance", Value: n.instanceID, Short: true},
					{Title: "Device", Value: device, Short: true},
					{Title: "Error", Value: err.Error(), Short: false},
				},
				Footer:    "Sealink",
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return n.send(msg)
}

// NotifyRecordingStarted reports a new recording session
func (n *Notifier) NotifyRecordingStarted(sessionID, device string) error {
	if !n.IsEnabled() || !n.config.NotifyRecording {
		return nil
	}

	msg := Message{
		Attachments: []Attachment{
			{
				Color: "good",
				Title: "Recording Started",
				Fields: []Field{
					{Title: "Instance", Value: n.instanceID, Short: true},
					{Title: "Session", Value: sessionID, Short: true},
					{Title: "Device", Value: device, Short: true},
				},
				Footer:    "Sealink",
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return n.send(msg)
}

// NotifyRecordingStopped reports the end of a recording session
func (n *Notifier) NotifyRecordingStopped(sessionID string, samples int64) error {
	if !n.IsEnabled() || !n.config.NotifyRecording {
		return nil
	}

	msg := Message{
		Attachments: []Attachment{
			{
				Color: "warning",
				Title: "Recording Stopped",
				Fields: []Field{
					{Title: "Instance", Value: n.instanceID, Short: true},
					{Title: "Session", Value: sessionID, Short: true},
					{Title: "Samples", Value: fmt.Sprintf("%d", samples), Short: true},
				},
				Footer:    "Sealink",
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return n.send(msg)
}

func (n *Notifier) send(msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook message: %w", err)
	}

	req, err := http.NewRequest("POST", n.config.WebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned non-OK status: %d", resp.StatusCode)
	}

	n.logger.Debug("Webhook notification sent")
	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
