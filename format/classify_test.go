package format_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sealink/format"
	"sealink/telemetry"

	_ "sealink/format/dht"
	_ "sealink/format/generic"
	_ "sealink/format/imu"
)

func TestClassificationOrder(t *testing.T) {
	require.Equal(t, []string{"dht", "imu", "generic"}, format.List())
}

func TestClassifyCascade(t *testing.T) {
	port := telemetry.PortDescriptor{Device: "/dev/ttyUSB0"}

	sample, err := format.Classify(telemetry.RawFrame{Seq: 1, Text: "TEMP:98.6 HUM:40"}, port)
	require.NoError(t, err)
	require.Equal(t, telemetry.KindDHT, sample.Kind)
	require.Equal(t, port, sample.Port)

	sample, err = format.Classify(telemetry.RawFrame{Seq: 2, Text: "YAW:370.0 PITCH:0 ROLL:0"}, port)
	require.NoError(t, err)
	require.Equal(t, telemetry.KindIMU, sample.Kind)
	require.InDelta(t, 10.0, sample.IMU.Yaw, 1e-9)

	sample, err = format.Classify(telemetry.RawFrame{Seq: 3, Text: "RPM:1200 STATE:idle"}, port)
	require.NoError(t, err)
	require.Equal(t, telemetry.KindGeneric, sample.Kind)
}

func TestClassifyRejectsGarbage(t *testing.T) {
	_, err := format.Classify(telemetry.RawFrame{Text: "GARBAGE DATA"}, telemetry.PortDescriptor{})
	require.ErrorIs(t, err, format.ErrMalformedFrame)
}

// A frame with the DHT shape but unparseable values must reject as a
// whole, not degrade into a generic sample with string fields.
func TestClassifyShapeMatchDoesNotFallThrough(t *testing.T) {
	_, err := format.Classify(telemetry.RawFrame{Text: "TEMP:abc HUM:40"}, telemetry.PortDescriptor{})
	require.ErrorIs(t, err, format.ErrMalformedFrame)
}

func TestGetAndSnippet(t *testing.T) {
	f, err := format.Get("DHT")
	require.NoError(t, err)
	require.Equal(t, "dht", f.Name())

	_, err = format.Get("morse")
	require.Error(t, err)

	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	require.Len(t, format.Snippet(string(long)), 67)
	require.Equal(t, "short", format.Snippet("short"))
}
