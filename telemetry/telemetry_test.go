package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPortDescriptorLabel(t *testing.T) {
	p := PortDescriptor{Device: "/dev/ttyUSB0"}
	require.Equal(t, "/dev/ttyUSB0", p.Label())

	p.Name = "Arduino Uno"
	require.Equal(t, "Arduino Uno", p.Label())

	p.Friendly = "bench board"
	require.Equal(t, "bench board", p.Label())
}

func TestValueString(t *testing.T) {
	require.Equal(t, "21.5", Num(21.5).String())
	require.Equal(t, "370", Num(370).String())
	require.Equal(t, "ok", Str("ok").String())
}

func TestNumericChannels(t *testing.T) {
	frame := RawFrame{Seq: 1, Time: time.Now()}
	port := PortDescriptor{Device: "/dev/ttyUSB0"}

	dht := NewDHT(frame, port, 21.5, 40)
	require.Equal(t, []Channel{
		{Name: "temperature", Value: 21.5},
		{Name: "humidity", Value: 40},
	}, dht.NumericChannels())

	imu := NewIMU(frame, port, 10, -5, 0.25)
	require.Equal(t, []Channel{
		{Name: "yaw", Value: 10},
		{Name: "pitch", Value: -5},
		{Name: "roll", Value: 0.25},
	}, imu.NumericChannels())

	gen := NewGeneric(frame, port, []string{"RPM", "STATE", "LOAD"}, map[string]Value{
		"RPM":   Num(1200),
		"STATE": Str("idle"),
		"LOAD":  Num(0.3),
	})
	// String values carry no scalar channel.
	require.Equal(t, []Channel{
		{Name: "RPM", Value: 1200},
		{Name: "LOAD", Value: 0.3},
	}, gen.NumericChannels())
}

func TestCSVSchemaPerKind(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 250e6, time.UTC)
	frame := RawFrame{Seq: 7, Time: ts}
	port := PortDescriptor{Device: "COM3"}

	dht := NewDHT(frame, port, 20, 55.5)
	require.Equal(t, []string{"timestamp", "temperature_c", "humidity_pct"}, dht.CSVHeader())
	require.Equal(t, []string{"2025-03-01T12:00:00.250Z", "20", "55.5"}, dht.CSVRow())

	imu := NewIMU(frame, port, 10, 0, -90)
	require.Equal(t, []string{"timestamp", "yaw", "pitch", "roll"}, imu.CSVHeader())
	require.Equal(t, []string{"2025-03-01T12:00:00.250Z", "10", "0", "-90"}, imu.CSVRow())

	gen := NewGeneric(frame, port, []string{"B", "A"}, map[string]Value{
		"B": Num(2),
		"A": Str("x"),
	})
	// Key order is preserved, never sorted.
	require.Equal(t, []string{"timestamp", "B", "A"}, gen.CSVHeader())
	require.Equal(t, []string{"2025-03-01T12:00:00.250Z", "2", "x"}, gen.CSVRow())
}

func TestNewGenericCopiesKeys(t *testing.T) {
	keys := []string{"A"}
	s := NewGeneric(RawFrame{}, PortDescriptor{}, keys, map[string]Value{"A": Num(1)})
	keys[0] = "mutated"
	require.Equal(t, []string{"A"}, s.Generic.Keys)
}
