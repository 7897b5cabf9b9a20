package serial

import (
	"fmt"
	"io"
	"sync"
)

// MockPort implements Port for testing purposes. Reads are fed from
// scripted chunks so tests control exactly how the byte stream is
// split; an empty chunk simulates a read-timeout tick (0, nil).
type MockPort struct {
	mu       sync.Mutex
	cond     *sync.Cond
	device   string
	isOpen   bool
	pending  [][]byte
	readErr  error
	writes   [][]byte
	writeErr error
}

// NewMockPort creates a new mock port
func NewMockPort(device string) *MockPort {
	p := &MockPort{
		device: device,
		isOpen: true,
		writes: make([][]byte, 0),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Feed queues a chunk of bytes for subsequent reads. Each Read returns
// at most one queued chunk, so callers control chunk boundaries.
func (p *MockPort) Feed(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	chunk := make([]byte, len(data))
	copy(chunk, data)
	p.pending = append(p.pending, chunk)
	p.cond.Signal()
}

// FeedString queues a string chunk for subsequent reads
func (p *MockPort) FeedString(s string) {
	p.Feed([]byte(s))
}

// FeedTimeout queues an empty read, emulating a read-timeout expiry
func (p *MockPort) FeedTimeout() {
	p.Feed(nil)
}

// Read returns the next queued chunk, blocking until data is fed, a
// read error is set, or the port closes. Queued data drains before a
// pending error or close is reported.
func (p *MockPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if len(p.pending) > 0 {
			chunk := p.pending[0]
			n := copy(buf, chunk)
			if n < len(chunk) {
				p.pending[0] = chunk[n:]
			} else {
				p.pending = p.pending[1:]
			}
			return n, nil
		}
		if p.readErr != nil {
			return 0, p.readErr
		}
		if !p.isOpen {
			return 0, fmt.Errorf("port is closed")
		}
		p.cond.Wait()
	}
}

// Write writes data to the mock port
func (p *MockPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isOpen {
		return 0, fmt.Errorf("port is closed")
	}

	if p.writeErr != nil {
		return 0, p.writeErr
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	p.writes = append(p.writes, dataCopy)

	return len(data), nil
}

// Close closes the mock port, unblocking any waiting Read
func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isOpen = false
	p.cond.Broadcast()
	return nil
}

// Flush is a no-op for the mock port
func (p *MockPort) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isOpen {
		return fmt.Errorf("port is closed")
	}
	return nil
}

// Device returns the mock device path
func (p *MockPort) Device() string {
	return p.device
}

// IsOpen returns true if the mock port is open
func (p *MockPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isOpen
}

// SetReadError makes reads fail once queued data has drained; any
// blocked Read wakes up
func (p *MockPort) SetReadError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
	p.cond.Broadcast()
}

// ClearReadError clears any read error
func (p *MockPort) ClearReadError() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = nil
}

// SetWriteError sets an error to be returned on subsequent writes
func (p *MockPort) SetWriteError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// GetWrites returns all individual write operations
func (p *MockPort) GetWrites() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([][]byte, len(p.writes))
	for i, w := range p.writes {
		result[i] = make([]byte, len(w))
		copy(result[i], w)
	}
	return result
}

// Reopen reopens a closed mock port, keeping its scripted data
func (p *MockPort) Reopen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isOpen = true
	p.readErr = nil
}

// FilePort implements Port reading from a capture file, useful for
// replaying recorded telemetry through the pipeline
type FilePort struct {
	reader io.ReadCloser
	device string
	isOpen bool
}

// NewFilePort creates a new file-backed port
func NewFilePort(device string, reader io.ReadCloser) *FilePort {
	return &FilePort{
		reader: reader,
		device: device,
		isOpen: true,
	}
}

// Read reads from the underlying file
func (p *FilePort) Read(buf []byte) (int, error) {
	if !p.isOpen {
		return 0, fmt.Errorf("port is closed")
	}
	return p.reader.Read(buf)
}

// Write discards data; a capture file accepts no commands
func (p *FilePort) Write(data []byte) (int, error) {
	if !p.isOpen {
		return 0, fmt.Errorf("port is closed")
	}
	return len(data), nil
}

// Close closes the underlying file
func (p *FilePort) Close() error {
	if !p.isOpen {
		return nil
	}
	p.isOpen = false
	return p.reader.Close()
}

// Flush is a no-op for file ports
func (p *FilePort) Flush() error {
	if !p.isOpen {
		return fmt.Errorf("port is closed")
	}
	return nil
}

// Device returns the device/file path
func (p *FilePort) Device() string {
	return p.device
}

// IsOpen returns true if the file port is open
func (p *FilePort) IsOpen() bool {
	return p.isOpen
}
