// Package telemetry defines the data model shared by the pipeline:
// port identities, raw frames and parsed sensor samples.
package telemetry

import (
	"strconv"
	"time"
)

// TimeFormat is the timestamp layout used in CSV exports and API payloads.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// PortDescriptor identifies a serial endpoint.
type PortDescriptor struct {
	// Device is the OS device path, e.g. /dev/ttyUSB0 or COM3.
	Device string `json:"device"`
	// Name is the product string reported by the OS, may be empty.
	Name string `json:"name,omitempty"`
	// PhysicalID is a stable identity across reconnects: VID:PID:SERIAL
	// for USB ports, the device path otherwise.
	PhysicalID string `json:"physical_id"`
	// Friendly is the user-assigned name, empty when unset.
	Friendly string `json:"friendly,omitempty"`
}

// IsZero reports whether the descriptor identifies no port.
func (p PortDescriptor) IsZero() bool {
	return p.Device == "" && p.PhysicalID == ""
}

// Label returns the best human-readable name for the port.
func (p PortDescriptor) Label() string {
	switch {
	case p.Friendly != "":
		return p.Friendly
	case p.Name != "":
		return p.Name
	default:
		return p.Device
	}
}

// RawFrame is a single decoded line of serial text, stripped of its
// terminator. Frames are consumed by the parser and never stored.
type RawFrame struct {
	Seq  uint64
	Time time.Time
	Text string
}

// Kind discriminates the sample union.
type Kind string

const (
	KindDHT     Kind = "dht"
	KindIMU     Kind = "imu"
	KindGeneric Kind = "generic"
)

// DHTReading carries temperature and relative humidity.
type DHTReading struct {
	TemperatureC float64 `json:"temperature_c"`
	Humidity     float64 `json:"humidity_pct"`
}

// IMUReading carries orientation angles in degrees, each normalized
// into [-180, 180).
type IMUReading struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// Value is one field of a generic reading: numeric when the source text
// parsed as a float, string otherwise.
type Value struct {
	Num     float64 `json:"num,omitempty"`
	Str     string  `json:"str,omitempty"`
	Numeric bool    `json:"numeric"`
}

// Num returns a numeric Value.
func Num(v float64) Value { return Value{Num: v, Numeric: true} }

// Str returns a string Value.
func Str(s string) Value { return Value{Str: s} }

// String formats the value the way it is written to CSV.
func (v Value) String() string {
	if v.Numeric {
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	}
	return v.Str
}

// GenericReading carries KEY:VALUE fields in their original order.
type GenericReading struct {
	Keys   []string         `json:"keys"`
	Values map[string]Value `json:"values"`
}

// Sample is a parsed telemetry reading derived from exactly one frame.
// Kind selects which reading pointer is set; the others are nil.
// Samples are immutable once constructed.
type Sample struct {
	Seq  uint64         `json:"seq"`
	Time time.Time      `json:"time"`
	Port PortDescriptor `json:"port"`
	Kind Kind           `json:"kind"`

	DHT     *DHTReading     `json:"dht,omitempty"`
	IMU     *IMUReading     `json:"imu,omitempty"`
	Generic *GenericReading `json:"generic,omitempty"`
}

// NewDHT builds a DHT sample from a frame's metadata.
func NewDHT(frame RawFrame, port PortDescriptor, tempC, humidity float64) Sample {
	return Sample{
		Seq:  frame.Seq,
		Time: frame.Time,
		Port: port,
		Kind: KindDHT,
		DHT:  &DHTReading{TemperatureC: tempC, Humidity: humidity},
	}
}

// NewIMU builds an IMU sample from a frame's metadata.
func NewIMU(frame RawFrame, port PortDescriptor, yaw, pitch, roll float64) Sample {
	return Sample{
		Seq:  frame.Seq,
		Time: frame.Time,
		Port: port,
		Kind: KindIMU,
		IMU:  &IMUReading{Yaw: yaw, Pitch: pitch, Roll: roll},
	}
}

// NewGeneric builds a generic sample. The key slice is copied so the
// sample does not alias parser state.
func NewGeneric(frame RawFrame, port PortDescriptor, keys []string, values map[string]Value) Sample {
	ks := make([]string, len(keys))
	copy(ks, keys)
	vs := make(map[string]Value, len(values))
	for k, v := range values {
		vs[k] = v
	}
	return Sample{
		Seq:     frame.Seq,
		Time:    frame.Time,
		Port:    port,
		Kind:    KindGeneric,
		Generic: &GenericReading{Keys: ks, Values: vs},
	}
}

// Channel is one named scalar reading within a sample.
type Channel struct {
	Name  string
	Value float64
}

// NumericChannels returns the sample's scalar channels in schema order.
// Generic string values are omitted.
func (s Sample) NumericChannels() []Channel {
	switch s.Kind {
	case KindDHT:
		return []Channel{
			{Name: "temperature", Value: s.DHT.TemperatureC},
			{Name: "humidity", Value: s.DHT.Humidity},
		}
	case KindIMU:
		return []Channel{
			{Name: "yaw", Value: s.IMU.Yaw},
			{Name: "pitch", Value: s.IMU.Pitch},
			{Name: "roll", Value: s.IMU.Roll},
		}
	case KindGeneric:
		chans := make([]Channel, 0, len(s.Generic.Keys))
		for _, k := range s.Generic.Keys {
			if v := s.Generic.Values[k]; v.Numeric {
				chans = append(chans, Channel{Name: k, Value: v.Num})
			}
		}
		return chans
	}
	return nil
}

// CSVHeader returns the column names for this sample's kind, timestamp
// first.
func (s Sample) CSVHeader() []string {
	switch s.Kind {
	case KindDHT:
		return []string{"timestamp", "temperature_c", "humidity_pct"}
	case KindIMU:
		return []string{"timestamp", "yaw", "pitch", "roll"}
	case KindGeneric:
		header := make([]string, 0, len(s.Generic.Keys)+1)
		header = append(header, "timestamp")
		header = append(header, s.Generic.Keys...)
		return header
	}
	return nil
}

// CSVRow returns the sample's values matching CSVHeader order.
func (s Sample) CSVRow() []string {
	switch s.Kind {
	case KindDHT:
		return []string{
			s.Time.Format(TimeFormat),
			formatFloat(s.DHT.TemperatureC),
			formatFloat(s.DHT.Humidity),
		}
	case KindIMU:
		return []string{
			s.Time.Format(TimeFormat),
			formatFloat(s.IMU.Yaw),
			formatFloat(s.IMU.Pitch),
			formatFloat(s.IMU.Roll),
		}
	case KindGeneric:
		row := make([]string, 0, len(s.Generic.Keys)+1)
		row = append(row, s.Time.Format(TimeFormat))
		for _, k := range s.Generic.Keys {
			row = append(row, s.Generic.Values[k].String())
		}
		return row
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
