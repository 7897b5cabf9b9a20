// Package simul provides a synthetic telemetry source that stands in
// for a real board: it implements the serial port interface and emits
// sensor lines at a configured pace, so the rest of the pipeline runs
// unchanged without hardware.
package simul

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"sealink/config"
	"sealink/telemetry"
)

// Mode selects which sensor lines the source emits
type Mode string

const (
	ModeDHT   Mode = "dht"
	ModeIMU   Mode = "imu"
	ModeMixed Mode = "mixed"
)

// Source is a synthetic serial port. Each read-rate tick produces one
// telemetry line; reads block in between, like a quiet serial line.
type Source struct {
	mode    Mode
	device  string
	limiter *RateLimiter
	ticker  *Ticker

	mu      sync.Mutex
	pending []byte
	writes  [][]byte
	step    int
	random  *rand.Rand
	isOpen  bool

	closeOnce sync.Once
	closed    chan struct{}
}

// NewSource creates a synthetic source from the simulation settings.
func NewSource(cfg *config.SimulationConfig) (*Source, error) {
	mode := Mode(cfg.Mode)
	if mode != ModeDHT && mode != ModeIMU && mode != ModeMixed {
		return nil, fmt.Errorf("invalid simulation mode: %s", cfg.Mode)
	}

	limiter := NewRateLimiter(cfg.LinesPerSecond, cfg.JitterPercent)
	s := &Source{
		mode:    mode,
		device:  "sim://" + string(mode),
		limiter: limiter,
		ticker:  NewTicker(limiter),
		random:  rand.New(rand.NewSource(time.Now().UnixNano())),
		isOpen:  true,
		closed:  make(chan struct{}),
	}
	return s, nil
}

// Descriptor returns the port identity the source presents upstream.
func (s *Source) Descriptor() telemetry.PortDescriptor {
	return telemetry.PortDescriptor{
		Device:     s.device,
		Name:       "Simulated board",
		PhysicalID: "sim:" + string(s.mode),
	}
}

// Read blocks until the next line is due, then returns its bytes.
// Lines longer than buf carry over into subsequent reads.
func (s *Source) Read(buf []byte) (int, error) {
	s.mu.Lock()
	if !s.isOpen {
		s.mu.Unlock()
		return 0, fmt.Errorf("port is closed")
	}
	if len(s.pending) == 0 {
		s.mu.Unlock()
		select {
		case <-s.ticker.C:
		case <-s.closed:
			return 0, fmt.Errorf("port is closed")
		}
		s.mu.Lock()
		if !s.isOpen {
			s.mu.Unlock()
			return 0, fmt.Errorf("port is closed")
		}
		s.pending = []byte(s.nextLine())
	}

	n := copy(buf, s.pending)
	s.pending = s.pending[n:]
	s.mu.Unlock()
	return n, nil
}

// Write records the data and reports success; the simulated firmware
// accepts any command.
func (s *Source) Write(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isOpen {
		return 0, fmt.Errorf("port is closed")
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	s.writes = append(s.writes, chunk)
	return len(data), nil
}

// Writes returns everything written to the source.
func (s *Source) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([][]byte, len(s.writes))
	for i, w := range s.writes {
		result[i] = append([]byte(nil), w...)
	}
	return result
}

// Close stops the source, unblocking any waiting Read.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.isOpen = false
		s.mu.Unlock()
		close(s.closed)
		s.ticker.Stop()
	})
	return nil
}

// Flush is a no-op for the synthetic source
func (s *Source) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isOpen {
		return fmt.Errorf("port is closed")
	}
	return nil
}

// Device returns the synthetic device path
func (s *Source) Device() string {
	return s.device
}

// IsOpen returns true if the source has not been closed
func (s *Source) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOpen
}

// nextLine produces the next telemetry line. Readings ride slow sine
// waves with a little noise so plots look like a live board. Called
// with s.mu held.
func (s *Source) nextLine() string {
	s.step++
	t := float64(s.step)

	// An occasional status line exercises the generic path.
	if s.step%25 == 0 {
		return fmt.Sprintf("UPTIME:%d STATUS:OK\r\n", s.step)
	}

	emitDHT := s.mode == ModeDHT || (s.mode == ModeMixed && s.step%2 == 0)
	if emitDHT {
		tempF := 77 + 10*math.Sin(t/20) + s.noise(1)
		humidity := 50 + 15*math.Sin(t/33) + s.noise(1)
		return fmt.Sprintf("TEMP:%.1f HUM:%.1f\r\n", tempF, humidity)
	}

	yaw := 179 * math.Sin(t/25)
	pitch := 45 * math.Sin(t/18)
	roll := 30*math.Sin(t/12) + s.noise(0.5)
	return fmt.Sprintf("YAW:%.1f PITCH:%.1f ROLL:%.1f\r\n", yaw, pitch, roll)
}

func (s *Source) noise(scale float64) float64 {
	return (s.random.Float64()*2 - 1) * scale
}
