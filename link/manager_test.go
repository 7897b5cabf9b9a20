package link

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bugst "go.bug.st/serial"

	"sealink/config"
	_ "sealink/format/dht"
	_ "sealink/format/generic"
	_ "sealink/format/imu"
	"sealink/hub"
	"sealink/serial"
	"sealink/telemetry"
)

type fakePicker struct {
	port telemetry.PortDescriptor
	ok   bool
}

func (p fakePicker) Preferred() (telemetry.PortDescriptor, bool) { return p.port, p.ok }

type openResult struct {
	port serial.Port
	err  error
}

// scriptedOpener hands out one result per open call, then fails.
type scriptedOpener struct {
	mu      sync.Mutex
	results []openResult
	devices []string
}

func (o *scriptedOpener) open(pc serial.PortConfig) (serial.Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.devices = append(o.devices, pc.Device)
	if len(o.results) == 0 {
		return nil, errors.New("no port available")
	}
	res := o.results[0]
	o.results = o.results[1:]
	return res.port, res.err
}

func (o *scriptedOpener) openedDevices() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.devices...)
}

func (o *scriptedOpener) openCalls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.devices)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Reconnect.MaxAttempts = 3
	cfg.Reconnect.InitialDelayMs = 1
	cfg.Reconnect.MaxDelayMs = 4
	return cfg
}

func newTestManager(t *testing.T, cfg *config.Config, picker PortPicker, open Opener) (*Manager, *hub.Subscription) {
	t.Helper()
	h := hub.New(64, slog.Default())
	t.Cleanup(h.Close)
	sub, err := h.Subscribe("test", hub.Blocking)
	require.NoError(t, err)

	m := NewManager(cfg, picker, h, slog.Default())
	m.SetOpener(open)
	t.Cleanup(func() { _ = m.Disconnect() })
	return m, sub
}

func nextSample(t *testing.T, sub *hub.Subscription) telemetry.Sample {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sample, err := sub.Next(ctx)
	require.NoError(t, err)
	return sample
}

func TestConnectStreamsSamples(t *testing.T) {
	port := serial.NewMockPort("/dev/ttyUSB0")
	port.FeedString("TEMP:77 HUM:50\n")
	opener := &scriptedOpener{results: []openResult{{port: port}}}
	m, sub := newTestManager(t, testConfig(), fakePicker{}, opener.open)

	require.NoError(t, m.Connect(telemetry.PortDescriptor{Device: "/dev/ttyUSB0"}))
	require.Equal(t, StateStreaming, m.State())
	require.Equal(t, [][]byte{[]byte("F")}, port.GetWrites())

	sample := nextSample(t, sub)
	require.Equal(t, telemetry.KindDHT, sample.Kind)
	require.InDelta(t, 25.0, sample.DHT.TemperatureC, 1e-9)
	require.InDelta(t, 50.0, sample.DHT.Humidity, 1e-9)
	require.Equal(t, uint64(1), sample.Seq)
	require.Equal(t, "/dev/ttyUSB0", sample.Port.Device)

	st := m.Stats()
	require.Equal(t, int64(1), st.Frames)
	require.Equal(t, int64(1), st.Samples)
	require.Equal(t, int64(1), st.SamplesByKind[telemetry.KindDHT])
	require.Equal(t, int64(0), st.SamplesByKind[telemetry.KindIMU])

	require.NoError(t, m.Disconnect())
	require.Equal(t, StateClosed, m.State())
	require.False(t, port.IsOpen())
}

func TestConnectClassifiesOpenFailures(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		reason OpenReason
	}{
		{"missing device", fmt.Errorf("open /dev/ttyUSB9: %w", fs.ErrNotExist), ReasonNonexistent},
		{"permission denied", fmt.Errorf("open /dev/ttyUSB0: %w", fs.ErrPermission), ReasonPermission},
		{"port busy", &bugst.PortError{}, ReasonBusy},
		{"anything else", errors.New("ioctl failed"), ReasonOther},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opener := &scriptedOpener{results: []openResult{{err: tc.err}}}
			m, _ := newTestManager(t, testConfig(), fakePicker{}, opener.open)

			err := m.Connect(telemetry.PortDescriptor{Device: "/dev/ttyUSB0"})
			require.ErrorIs(t, err, ErrPortOpenFailed)

			var oe *OpenError
			require.ErrorAs(t, err, &oe)
			require.Equal(t, tc.reason, oe.Reason)

			require.Equal(t, StateFailed, m.State())
			require.ErrorIs(t, m.Err(), ErrPortOpenFailed)
			require.Equal(t, int64(0), m.Stats().Reconnects)
		})
	}
}

func TestDiscoveryUsesPreferredPort(t *testing.T) {
	picker := fakePicker{
		port: telemetry.PortDescriptor{Device: "/dev/ttyACM3", Name: "Nano 33 BLE", PhysicalID: "2341:805A:77"},
		ok:   true,
	}
	port := serial.NewMockPort("/dev/ttyACM3")
	opener := &scriptedOpener{results: []openResult{{port: port}}}
	m, sub := newTestManager(t, testConfig(), picker, opener.open)

	require.NoError(t, m.Connect(telemetry.PortDescriptor{}))
	require.Equal(t, StateStreaming, m.State())
	require.Equal(t, "/dev/ttyACM3", m.Target().Device)
	require.Equal(t, []string{"/dev/ttyACM3"}, opener.openedDevices())

	port.FeedString("YAW:10 PITCH:2 ROLL:-3\n")
	sample := nextSample(t, sub)
	require.Equal(t, "2341:805A:77", sample.Port.PhysicalID)
}

func TestDiscoveryWithNoPortsFails(t *testing.T) {
	opener := &scriptedOpener{}
	m, _ := newTestManager(t, testConfig(), fakePicker{}, opener.open)

	err := m.Connect(telemetry.PortDescriptor{})
	require.ErrorIs(t, err, ErrPortOpenFailed)

	var oe *OpenError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, ReasonNonexistent, oe.Reason)
	require.Equal(t, StateFailed, m.State())
	require.Equal(t, 0, opener.openCalls())
}

func TestConnectWhileStreamingDisconnectsFirst(t *testing.T) {
	portA := serial.NewMockPort("/dev/ttyUSB0")
	portB := serial.NewMockPort("/dev/ttyUSB1")
	opener := &scriptedOpener{results: []openResult{{port: portA}, {port: portB}}}
	m, _ := newTestManager(t, testConfig(), fakePicker{}, opener.open)

	require.NoError(t, m.Connect(telemetry.PortDescriptor{Device: "/dev/ttyUSB0"}))
	require.NoError(t, m.Connect(telemetry.PortDescriptor{Device: "/dev/ttyUSB1"}))

	require.False(t, portA.IsOpen())
	require.True(t, portB.IsOpen())
	require.Equal(t, StateStreaming, m.State())
	require.Equal(t, "/dev/ttyUSB1", m.Target().Device)
}

func TestReconnectResumesStreaming(t *testing.T) {
	portA := serial.NewMockPort("/dev/ttyUSB0")
	portA.FeedString("TEMP:77 HUM:50\n")
	portB := serial.NewMockPort("/dev/ttyUSB0")
	portB.FeedString("TEMP:32 HUM:60\n")
	opener := &scriptedOpener{results: []openResult{{port: portA}, {port: portB}}}
	m, sub := newTestManager(t, testConfig(), fakePicker{}, opener.open)

	require.NoError(t, m.Connect(telemetry.PortDescriptor{Device: "/dev/ttyUSB0"}))
	first := nextSample(t, sub)
	require.Equal(t, uint64(1), first.Seq)

	portA.SetReadError(errors.New("device yanked"))

	second := nextSample(t, sub)
	require.InDelta(t, 0.0, second.DHT.TemperatureC, 1e-9)

	// Sequence numbers stay monotonic across the reconnect.
	require.Equal(t, uint64(2), second.Seq)

	require.Equal(t, StateStreaming, m.State())
	require.Equal(t, int64(1), m.Stats().Reconnects)
	require.Equal(t, [][]byte{[]byte("F")}, portB.GetWrites())
}

func TestReconnectBudgetExhausted(t *testing.T) {
	port := serial.NewMockPort("/dev/ttyUSB0")
	opener := &scriptedOpener{results: []openResult{{port: port}}}
	m, _ := newTestManager(t, testConfig(), fakePicker{}, opener.open)

	require.NoError(t, m.Connect(telemetry.PortDescriptor{Device: "/dev/ttyUSB0"}))
	port.SetReadError(errors.New("device yanked"))

	require.Eventually(t, func() bool {
		return m.State() == StateFailed
	}, 5*time.Second, 10*time.Millisecond)

	require.ErrorIs(t, m.Err(), ErrReconnectExhausted)
	require.Equal(t, int64(3), m.Stats().Reconnects)

	// One initial open plus one per attempt.
	require.Equal(t, 4, opener.openCalls())
}

func TestDisconnectDuringReconnectReturnsPromptly(t *testing.T) {
	cfg := testConfig()
	cfg.Reconnect.MaxAttempts = 5
	cfg.Reconnect.InitialDelayMs = 60000
	cfg.Reconnect.MaxDelayMs = 60000

	port := serial.NewMockPort("/dev/ttyUSB0")
	opener := &scriptedOpener{results: []openResult{{port: port}}}
	m, _ := newTestManager(t, cfg, fakePicker{}, opener.open)

	require.NoError(t, m.Connect(telemetry.PortDescriptor{Device: "/dev/ttyUSB0"}))
	port.SetReadError(errors.New("device yanked"))

	require.Eventually(t, func() bool {
		return m.State() == StateReconnecting
	}, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, m.Disconnect())
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, StateClosed, m.State())
}

func TestMidFrameDropDiscardsPartial(t *testing.T) {
	cfg := testConfig()
	cfg.Reconnect.MaxAttempts = 1

	port := serial.NewMockPort("/dev/ttyUSB0")
	port.FeedString("TEMP:77 HUM:50\n")
	port.FeedString("TEMP:8")
	opener := &scriptedOpener{results: []openResult{{port: port}}}
	m, sub := newTestManager(t, cfg, fakePicker{}, opener.open)

	require.NoError(t, m.Connect(telemetry.PortDescriptor{Device: "/dev/ttyUSB0"}))
	first := nextSample(t, sub)
	require.Equal(t, uint64(1), first.Seq)

	port.SetReadError(errors.New("device yanked"))
	require.Eventually(t, func() bool {
		return m.State() == StateFailed
	}, 2*time.Second, 10*time.Millisecond)

	// The trailing fragment is never emitted.
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err := sub.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRejectedFramesCounted(t *testing.T) {
	port := serial.NewMockPort("/dev/ttyUSB0")
	port.FeedString("GARBAGE-DATA\nTEMP:abc HUM:40\nTEMP:77 HUM:50\n")
	opener := &scriptedOpener{results: []openResult{{port: port}}}
	m, sub := newTestManager(t, testConfig(), fakePicker{}, opener.open)

	require.NoError(t, m.Connect(telemetry.PortDescriptor{Device: "/dev/ttyUSB0"}))

	sample := nextSample(t, sub)
	require.Equal(t, telemetry.KindDHT, sample.Kind)
	require.Equal(t, uint64(3), sample.Seq)

	st := m.Stats()
	require.Equal(t, int64(3), st.Frames)
	require.Equal(t, int64(1), st.Samples)
	require.Equal(t, int64(2), st.Malformed)
}

func TestReadTimeoutTicksKeepStreaming(t *testing.T) {
	port := serial.NewMockPort("/dev/ttyUSB0")
	port.FeedTimeout()
	port.FeedTimeout()
	port.FeedString("STATUS:OK COUNT:42\n")
	opener := &scriptedOpener{results: []openResult{{port: port}}}
	m, sub := newTestManager(t, testConfig(), fakePicker{}, opener.open)

	require.NoError(t, m.Connect(telemetry.PortDescriptor{Device: "/dev/ttyUSB0"}))

	sample := nextSample(t, sub)
	require.Equal(t, telemetry.KindGeneric, sample.Kind)
	require.Equal(t, StateStreaming, m.State())
	require.Equal(t, int64(0), m.Stats().Reconnects)
}

func TestStateListenerObservesTransitions(t *testing.T) {
	port := serial.NewMockPort("/dev/ttyUSB0")
	opener := &scriptedOpener{results: []openResult{{port: port}}}
	m, _ := newTestManager(t, testConfig(), fakePicker{}, opener.open)

	var mu sync.Mutex
	var states []State
	var failedErr error
	m.SetStateListener(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
		if s == StateFailed {
			failedErr = m.Err()
		}
	})

	require.NoError(t, m.Connect(telemetry.PortDescriptor{Device: "/dev/ttyUSB0"}))
	require.NoError(t, m.Disconnect())

	// The opener is spent, so this attempt lands in Failed.
	require.Error(t, m.Connect(telemetry.PortDescriptor{Device: "/dev/ttyUSB0"}))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []State{
		StateConnecting, StateStreaming, StateClosed,
		StateConnecting, StateFailed,
	}, states)
	require.ErrorIs(t, failedErr, ErrPortOpenFailed)
}
