package serial

import (
	"fmt"
	"sync/atomic"

	"go.bug.st/serial"
)

// RealPort implements Port using a real serial port
type RealPort struct {
	port   serial.Port
	config PortConfig
	isOpen atomic.Bool
}

// Open opens a serial port with the given configuration. The read
// timeout makes blocked reads surface as (0, nil) periodically; callers
// treat that as "no data yet".
func Open(config PortConfig) (*RealPort, error) {
	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
		StopBits: convertStopBits(config.StopBits),
		Parity:   convertParity(config.Parity),
	}

	port, err := serial.Open(config.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", config.Device, err)
	}

	if config.ReadTimeout > 0 {
		if err := port.SetReadTimeout(config.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	p := &RealPort{
		port:   port,
		config: config,
	}
	p.isOpen.Store(true)
	return p, nil
}

// Read reads bytes from the serial port
func (p *RealPort) Read(buf []byte) (int, error) {
	if !p.isOpen.Load() {
		return 0, fmt.Errorf("port is closed")
	}
	return p.port.Read(buf)
}

// Write writes data to the serial port
func (p *RealPort) Write(data []byte) (int, error) {
	if !p.isOpen.Load() {
		return 0, fmt.Errorf("port is closed")
	}
	return p.port.Write(data)
}

// Close closes the serial port, unblocking any in-flight Read
func (p *RealPort) Close() error {
	if !p.isOpen.CompareAndSwap(true, false) {
		return nil
	}
	return p.port.Close()
}

// Flush waits until all output has been transmitted
func (p *RealPort) Flush() error {
	if !p.isOpen.Load() {
		return fmt.Errorf("port is closed")
	}
	return p.port.Drain()
}

// Device returns the device path
func (p *RealPort) Device() string {
	return p.config.Device
}

// IsOpen returns true if the port is currently open
func (p *RealPort) IsOpen() bool {
	return p.isOpen.Load()
}

func convertStopBits(bits int) serial.StopBits {
	switch bits {
	case 1:
		return serial.OneStopBit
	case 2:
		return serial.TwoStopBits
	default:
		return serial.OneStopBit
	}
}

func convertParity(parity string) serial.Parity {
	switch parity {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	case "mark":
		return serial.MarkParity
	case "space":
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}
