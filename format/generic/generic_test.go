package generic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sealink/format"
	"sealink/telemetry"
)

func TestParsePreservesKeyOrder(t *testing.T) {
	f := &GenericFormat{}
	sample, err := f.Parse(telemetry.RawFrame{Text: "RPM:1200 STATE:idle LOAD:0.3"}, telemetry.PortDescriptor{})
	require.NoError(t, err)
	require.Equal(t, telemetry.KindGeneric, sample.Kind)
	require.Equal(t, []string{"RPM", "STATE", "LOAD"}, sample.Generic.Keys)
	require.Equal(t, telemetry.Num(1200), sample.Generic.Values["RPM"])
	require.Equal(t, telemetry.Str("idle"), sample.Generic.Values["STATE"])
	require.Equal(t, telemetry.Num(0.3), sample.Generic.Values["LOAD"])
}

func TestParseNumericCoercion(t *testing.T) {
	f := &GenericFormat{}
	sample, err := f.Parse(telemetry.RawFrame{Text: "A:-1.5e2 B:10% C:0"}, telemetry.PortDescriptor{})
	require.NoError(t, err)
	require.Equal(t, telemetry.Num(-150), sample.Generic.Values["A"])
	require.Equal(t, telemetry.Str("10%"), sample.Generic.Values["B"])
	require.Equal(t, telemetry.Num(0), sample.Generic.Values["C"])
}

func TestParseRepeatedKeyKeepsLastValue(t *testing.T) {
	f := &GenericFormat{}
	sample, err := f.Parse(telemetry.RawFrame{Text: "A:1 B:2 A:3"}, telemetry.PortDescriptor{})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, sample.Generic.Keys)
	require.Equal(t, telemetry.Num(3), sample.Generic.Values["A"])
}

func TestParseNoMatch(t *testing.T) {
	f := &GenericFormat{}
	for _, line := range []string{
		"GARBAGE DATA",
		"KEY:",
		"9X:1",
		"A:1 nope",
		"::",
		"",
	} {
		_, err := f.Parse(telemetry.RawFrame{Text: line}, telemetry.PortDescriptor{})
		require.ErrorIs(t, err, format.ErrNoMatch, "line %q", line)
	}
}

// Raw Fahrenheit and humidity figures stay plain numerics when exported
// through the generic CSV schema.
func TestDHTFiguresRoundTripAsNumerics(t *testing.T) {
	f := &GenericFormat{}
	sample, err := f.Parse(telemetry.RawFrame{Text: "TEMP:98.6 HUM:40"}, telemetry.PortDescriptor{})
	require.NoError(t, err)

	require.True(t, sample.Generic.Values["TEMP"].Numeric)
	require.True(t, sample.Generic.Values["HUM"].Numeric)

	row := sample.CSVRow()
	require.Equal(t, []string{"timestamp", "TEMP", "HUM"}, sample.CSVHeader())
	require.Equal(t, "98.6", row[1])
	require.Equal(t, "40", row[2])
}
