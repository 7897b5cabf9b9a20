package dht

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"sealink/format"
	"sealink/telemetry"
)

func TestParseConvertsFahrenheit(t *testing.T) {
	cases := []struct {
		line  string
		tempC float64
		hum   float64
	}{
		{"TEMP:98.6 HUM:40", 37.0, 40},
		{"TEMP:32 HUM:0", 0, 0},
		{"TEMP:212 HUM:100", 100, 100},
		{"TEMP:-40 HUM:55.5", -40, 55.5},
	}

	f := &DHTFormat{}
	for _, tc := range cases {
		sample, err := f.Parse(telemetry.RawFrame{Text: tc.line}, telemetry.PortDescriptor{})
		require.NoError(t, err, tc.line)
		require.Equal(t, telemetry.KindDHT, sample.Kind)
		require.InDelta(t, tc.tempC, sample.DHT.TemperatureC, 1e-9, tc.line)
		require.InDelta(t, tc.hum, sample.DHT.Humidity, 1e-9, tc.line)
	}
}

func TestParseNoMatch(t *testing.T) {
	f := &DHTFormat{}
	for _, line := range []string{
		"YAW:1 PITCH:2 ROLL:3",
		"TEMP:70",
		"TEMP:70 HUM:40 EXTRA:1",
		"temp:70 hum:40",
		"",
	} {
		_, err := f.Parse(telemetry.RawFrame{Text: line}, telemetry.PortDescriptor{})
		require.ErrorIs(t, err, format.ErrNoMatch, "line %q", line)
	}
}

func TestParseBadNumberRejectsFrame(t *testing.T) {
	f := &DHTFormat{}
	for _, line := range []string{
		"TEMP:abc HUM:40",
		"TEMP:70 HUM:wet",
	} {
		_, err := f.Parse(telemetry.RawFrame{Text: line}, telemetry.PortDescriptor{})
		require.ErrorIs(t, err, format.ErrMalformedFrame, "line %q", line)
		require.False(t, errors.Is(err, format.ErrNoMatch), "line %q must not fall through", line)
	}
}
