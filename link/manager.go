// Package link manages the single serial connection: a state machine
// around opening, streaming, reconnecting and releasing the port, and
// the frame reader that turns its bytes into telemetry samples.
package link

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sealink/config"
	"sealink/format"
	"sealink/hub"
	"sealink/serial"
	"sealink/telemetry"
)

// State represents the current state of the managed connection
type State string

const (
	StateIdle         State = "idle"
	StateDiscovering  State = "discovering"
	StateConnecting   State = "connecting"
	StateStreaming    State = "streaming"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

// PortPicker supplies a discovery target when no device is configured.
// The catalog implements it.
type PortPicker interface {
	Preferred() (telemetry.PortDescriptor, bool)
}

// Opener opens the serial port for a connection attempt. The default
// opener talks to real hardware; a synthetic source can be substituted
// for hardware-free runs.
type Opener func(serial.PortConfig) (serial.Port, error)

// Manager owns the one managed connection per process. Samples parsed
// from the stream are published to the hub; consumers never see the
// port directly.
type Manager struct {
	cfg    *config.Config
	picker PortPicker
	hub    *hub.Hub
	logger *slog.Logger

	open Opener

	stateMutex sync.RWMutex
	state      State
	lastErr    error
	target     telemetry.PortDescriptor
	listener   func(State)

	// mu serializes Connect and Disconnect
	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup

	// portMu guards the handles swapped on reconnect; the reader
	// pointer is included because Stats reads its counters.
	portMu    sync.Mutex
	port      serial.Port
	portStats *serial.PortWithStats
	reader    *Reader

	frames         atomic.Int64
	samples        atomic.Int64
	samplesDHT     atomic.Int64
	samplesIMU     atomic.Int64
	samplesGeneric atomic.Int64
	parseRejects   atomic.Int64
	reconnects     atomic.Int64
	lastFrameNanos atomic.Int64
}

// Stats is a point-in-time snapshot of the managed connection.
type Stats struct {
	State         State                    `json:"state"`
	Device        string                   `json:"device,omitempty"`
	Frames        int64                    `json:"frames"`
	Samples       int64                    `json:"samples"`
	SamplesByKind map[telemetry.Kind]int64 `json:"samples_by_kind"`
	Malformed     int64                    `json:"malformed"`
	Oversized     int64                    `json:"oversized"`
	Reconnects    int64                    `json:"reconnects"`
	BytesReceived int64                    `json:"bytes_received"`
	LastFrameTime time.Time                `json:"last_frame_time"`
}

// NewManager creates a connection manager. The picker is consulted
// when Connect is called without a target device.
func NewManager(cfg *config.Config, picker PortPicker, h *hub.Hub, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		picker: picker,
		hub:    h,
		logger: logger,
		open:   defaultOpen,
		state:  StateIdle,
	}
}

func defaultOpen(pc serial.PortConfig) (serial.Port, error) {
	port, err := serial.Open(pc)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// SetOpener replaces how ports are opened. Must be called before
// Connect.
func (m *Manager) SetOpener(open Opener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = open
}

// SetStateListener registers a callback invoked on every state
// transition. Must be called before Connect. The listener runs on the
// transitioning goroutine and must not call back into Connect or
// Disconnect; for Failed transitions Err() already carries the cause.
func (m *Manager) SetStateListener(fn func(State)) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	m.listener = fn
}

// Connect opens the target port and starts streaming. A zero target
// selects a port by discovery. Calling Connect while a connection is
// up disconnects it first. On failure the manager lands in Failed
// with the classified error attached; it never retries on its own.
func (m *Manager) Connect(target telemetry.PortDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	m.setErr(nil)

	if target.IsZero() {
		m.setState(StateDiscovering)
		m.logger.Info("Discovering serial ports")
		found, ok := m.picker.Preferred()
		if !ok {
			oe := &OpenError{Reason: ReasonNonexistent, Err: errors.New("no serial ports present")}
			m.failConnect(oe)
			return oe
		}
		m.logger.Info("Discovered port", "device", found.Device, "name", found.Label())
		target = found
	}

	m.setTarget(target)
	m.setState(StateConnecting)

	port, err := m.open(m.portConfig(target.Device))
	if err != nil {
		oe := classifyOpen(target.Device, err)
		m.failConnect(oe)
		return oe
	}

	m.setPort(port)
	m.portMu.Lock()
	m.reader = NewReader(m.cfg.Reader.MaxFrameLen)
	m.portMu.Unlock()

	stopCh := make(chan struct{})
	m.stopCh = stopCh

	m.setState(StateStreaming)
	m.sendHello()
	m.logger.Info("Connected", "device", target.Device, "baud_rate", m.cfg.Serial.BaudRate)

	m.wg.Add(1)
	go m.run(stopCh)

	return nil
}

// Disconnect stops streaming and releases the port. It returns once
// the reader goroutine has exited and always succeeds.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	m.setState(StateClosed)
	m.logger.Info("Disconnected",
		"frames", m.frames.Load(),
		"samples", m.samples.Load(),
	)
	return nil
}

// State returns the current connection state
func (m *Manager) State() State {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()
	return m.state
}

// Err returns the error that put the manager into Failed, nil in any
// other state.
func (m *Manager) Err() error {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()
	return m.lastErr
}

// Target returns the descriptor of the connected (or last attempted)
// port.
func (m *Manager) Target() telemetry.PortDescriptor {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()
	return m.target
}

// Stats returns a snapshot of the connection counters.
func (m *Manager) Stats() Stats {
	s := Stats{
		State:   m.State(),
		Device:  m.Target().Device,
		Frames:  m.frames.Load(),
		Samples: m.samples.Load(),
		SamplesByKind: map[telemetry.Kind]int64{
			telemetry.KindDHT:     m.samplesDHT.Load(),
			telemetry.KindIMU:     m.samplesIMU.Load(),
			telemetry.KindGeneric: m.samplesGeneric.Load(),
		},
		Malformed:  m.parseRejects.Load(),
		Reconnects: m.reconnects.Load(),
	}
	if nanos := m.lastFrameNanos.Load(); nanos != 0 {
		s.LastFrameTime = time.Unix(0, nanos)
	}
	m.portMu.Lock()
	if m.reader != nil {
		s.Malformed += m.reader.Malformed()
		s.Oversized = m.reader.Oversized()
	}
	if m.portStats != nil {
		s.BytesReceived = m.portStats.Stats().BytesReceived
	}
	m.portMu.Unlock()
	return s
}

func (m *Manager) setState(state State) {
	m.stateMutex.Lock()
	m.state = state
	listener := m.listener
	m.stateMutex.Unlock()

	if listener != nil {
		listener(state)
	}
}

func (m *Manager) setErr(err error) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	m.lastErr = err
}

func (m *Manager) setTarget(target telemetry.PortDescriptor) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	m.target = target
}

// failConnect records err and lands in Failed. The caller still holds
// no port at this point.
func (m *Manager) failConnect(err error) {
	m.setErr(err)
	m.setState(StateFailed)
	m.logger.Error("Connection failed", "error", err)
}

// stopLocked tears down any running stream: signals the reader
// goroutine, closes the port to unblock its read, and waits for it.
func (m *Manager) stopLocked() {
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	m.closePort()
	m.wg.Wait()
}

func (m *Manager) portConfig(device string) serial.PortConfig {
	return serial.PortConfig{
		Device:      device,
		BaudRate:    m.cfg.Serial.BaudRate,
		DataBits:    m.cfg.Serial.DataBits,
		StopBits:    m.cfg.Serial.StopBits,
		Parity:      m.cfg.Serial.Parity,
		ReadTimeout: m.cfg.Serial.GetReadTimeout(),
	}
}

func (m *Manager) setPort(port serial.Port) {
	m.portMu.Lock()
	defer m.portMu.Unlock()
	m.port = port
	m.portStats = serial.NewPortWithStats(port)
}

func (m *Manager) currentPort() *serial.PortWithStats {
	m.portMu.Lock()
	defer m.portMu.Unlock()
	return m.portStats
}

func (m *Manager) closePort() {
	m.portMu.Lock()
	defer m.portMu.Unlock()
	if m.port != nil {
		_ = m.port.Close()
	}
}

// sendHello writes the hello sequence that tells the firmware the
// host is listening. A failed write is logged, not fatal.
func (m *Manager) sendHello() {
	hello := m.cfg.Serial.Hello
	if hello == "" {
		return
	}
	port := m.currentPort()
	if port == nil {
		return
	}
	if _, err := port.Write([]byte(hello)); err != nil {
		m.logger.Warn("Hello write failed", "error", err)
	}
}

// run owns the stream for the lifetime of one Connect: it reads until
// the stream drops, then cycles through reconnect attempts until one
// succeeds, the budget runs out, or a disconnect is requested.
func (m *Manager) run(stopCh chan struct{}) {
	defer m.wg.Done()

	for {
		err := m.stream(stopCh)
		if err == nil {
			return
		}

		m.logger.Warn("Stream interrupted", "device", m.Target().Device, "error", err)
		m.reader.Reset()
		m.closePort()

		if !m.reconnect(stopCh) {
			return
		}
	}
}

// stream reads frames until the port errors or a stop is requested.
// A nil return means deliberate shutdown.
func (m *Manager) stream(stopCh chan struct{}) error {
	port := m.currentPort()
	buf := make([]byte, 4096)

	for {
		select {
		case <-stopCh:
			return nil
		default:
		}

		// A read timeout surfaces as (0, nil), which keeps this loop
		// polling the stop channel while the line is quiet.
		n, err := port.Read(buf)
		if n > 0 {
			for _, frame := range m.reader.Push(buf[:n]) {
				m.dispatch(frame)
			}
		}
		if err != nil {
			select {
			case <-stopCh:
				return nil
			default:
			}
			return fmt.Errorf("reading %s: %w", port.Device(), errors.Join(ErrStreamInterrupted, err))
		}
	}
}

// dispatch classifies one frame and publishes the resulting sample.
func (m *Manager) dispatch(frame telemetry.RawFrame) {
	m.frames.Add(1)
	m.lastFrameNanos.Store(frame.Time.UnixNano())

	sample, err := format.Classify(frame, m.Target())
	if err != nil {
		m.parseRejects.Add(1)
		m.logger.Debug("Rejected frame", "error", err)
		return
	}

	m.samples.Add(1)
	switch sample.Kind {
	case telemetry.KindDHT:
		m.samplesDHT.Add(1)
	case telemetry.KindIMU:
		m.samplesIMU.Add(1)
	case telemetry.KindGeneric:
		m.samplesGeneric.Add(1)
	}
	m.hub.Publish(sample)
}

// reconnect tries to reopen the target port under the retry policy:
// a fixed attempt budget with exponentially growing, capped delays.
// It returns true once streaming resumes.
func (m *Manager) reconnect(stopCh chan struct{}) bool {
	m.setState(StateReconnecting)

	device := m.Target().Device
	delay := m.cfg.Reconnect.GetInitialDelay()
	maxDelay := m.cfg.Reconnect.GetMaxDelay()

	for attempt := 1; attempt <= m.cfg.Reconnect.MaxAttempts; attempt++ {
		m.logger.Info("Attempting to reconnect", "device", device, "attempt", attempt, "delay", delay)

		select {
		case <-stopCh:
			return false
		case <-time.After(delay):
		}

		m.reconnects.Add(1)
		port, err := m.open(m.portConfig(device))
		if err != nil {
			m.logger.Warn("Reconnect failed", "device", device, "attempt", attempt, "error", err)

			delay = delay * 2
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}

		m.setPort(port)
		m.setState(StateStreaming)
		m.sendHello()
		m.logger.Info("Reconnected", "device", device, "attempt", attempt)
		return true
	}

	err := fmt.Errorf("device %s: %w", device, ErrReconnectExhausted)
	m.setErr(err)
	m.setState(StateFailed)
	m.logger.Error("Connection failed", "error", err)
	return false
}
