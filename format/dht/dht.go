package dht

import (
	"fmt"
	"regexp"
	"strconv"

	"sealink/format"
	"sealink/telemetry"
)

func init() {
	format.MustRegister(&DHTFormat{})
}

// linePattern matches the DHT frame shape. Value validation happens
// separately so a shape-matching frame with bad numbers is rejected
// outright instead of falling through to the generic format.
var linePattern = regexp.MustCompile(`^TEMP:(\S+)\s+HUM:(\S+)$`)

// DHTFormat implements the Format interface for DHT temperature and
// humidity sensors
type DHTFormat struct{}

// Name returns the format identifier
func (f *DHTFormat) Name() string {
	return "dht"
}

// Description returns a human-readable description
func (f *DHTFormat) Description() string {
	return "DHT temperature/humidity sensor (TEMP:<degF> HUM:<pct>)"
}

// Priority places DHT first in the classification order
func (f *DHTFormat) Priority() int {
	return 10
}

// Parse converts a TEMP/HUM frame into a DHT sample. Boards report
// Fahrenheit; samples carry Celsius.
func (f *DHTFormat) Parse(frame telemetry.RawFrame, port telemetry.PortDescriptor) (telemetry.Sample, error) {
	m := linePattern.FindStringSubmatch(frame.Text)
	if m == nil {
		return telemetry.Sample{}, format.ErrNoMatch
	}

	tempF, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return telemetry.Sample{}, fmt.Errorf("dht: bad temperature %q: %w", m[1], format.ErrMalformedFrame)
	}
	humidity, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return telemetry.Sample{}, fmt.Errorf("dht: bad humidity %q: %w", m[2], format.ErrMalformedFrame)
	}

	return telemetry.NewDHT(frame, port, FahrenheitToCelsius(tempF), humidity), nil
}

// FahrenheitToCelsius converts a Fahrenheit reading to Celsius.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}
