package serial

import (
	"io"
	"sync/atomic"
	"time"
)

// PortConfig contains serial port configuration settings
type PortConfig struct {
	Device      string
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      string // "none", "odd", "even"
	ReadTimeout time.Duration
}

// Port defines the interface for serial port operations. Close may be
// called concurrently with a blocked Read and must unblock it.
type Port interface {
	io.ReadWriteCloser

	// Flush waits until all output has been transmitted
	Flush() error

	// Device returns the device path
	Device() string

	// IsOpen returns true if the port is currently open
	IsOpen() bool
}

// Stats tracks statistics for a serial port
type Stats struct {
	BytesReceived int64
	BytesSent     int64
	ReadErrors    int64
	LastReadTime  time.Time
	OpenedAt      time.Time
}

// PortWithStats wraps a Port with statistics tracking. Counters are
// atomic: the reader goroutine updates them while monitoring reads.
type PortWithStats struct {
	Port
	bytesReceived atomic.Int64
	bytesSent     atomic.Int64
	readErrors    atomic.Int64
	lastReadNanos atomic.Int64
	openedAt      time.Time
}

// NewPortWithStats creates a new port wrapper with statistics
func NewPortWithStats(port Port) *PortWithStats {
	return &PortWithStats{
		Port:     port,
		openedAt: time.Now(),
	}
}

// Read reads from the port and tracks statistics
func (p *PortWithStats) Read(buf []byte) (int, error) {
	n, err := p.Port.Read(buf)
	if n > 0 {
		p.bytesReceived.Add(int64(n))
		p.lastReadNanos.Store(time.Now().UnixNano())
	}
	if err != nil {
		p.readErrors.Add(1)
	}
	return n, err
}

// Write writes data to the port and tracks statistics
func (p *PortWithStats) Write(data []byte) (int, error) {
	n, err := p.Port.Write(data)
	p.bytesSent.Add(int64(n))
	return n, err
}

// Stats returns a copy of the current statistics
func (p *PortWithStats) Stats() Stats {
	s := Stats{
		BytesReceived: p.bytesReceived.Load(),
		BytesSent:     p.bytesSent.Load(),
		ReadErrors:    p.readErrors.Load(),
		OpenedAt:      p.openedAt,
	}
	if nanos := p.lastReadNanos.Load(); nanos != 0 {
		s.LastReadTime = time.Unix(0, nanos)
	}
	return s
}
