package imu

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"sealink/format"
	"sealink/telemetry"
)

func init() {
	format.MustRegister(&IMUFormat{})
}

var linePattern = regexp.MustCompile(`^YAW:(\S+)\s+PITCH:(\S+)\s+ROLL:(\S+)$`)

// IMUFormat implements the Format interface for inertial orientation
// frames
type IMUFormat struct{}

// Name returns the format identifier
func (f *IMUFormat) Name() string {
	return "imu"
}

// Description returns a human-readable description
func (f *IMUFormat) Description() string {
	return "IMU orientation (YAW:<deg> PITCH:<deg> ROLL:<deg>)"
}

// Priority places IMU after DHT in the classification order
func (f *IMUFormat) Priority() int {
	return 20
}

// Parse converts a YAW/PITCH/ROLL frame into an IMU sample with each
// angle normalized into [-180, 180).
func (f *IMUFormat) Parse(frame telemetry.RawFrame, port telemetry.PortDescriptor) (telemetry.Sample, error) {
	m := linePattern.FindStringSubmatch(frame.Text)
	if m == nil {
		return telemetry.Sample{}, format.ErrNoMatch
	}

	angles := make([]float64, 3)
	names := []string{"yaw", "pitch", "roll"}
	for i, raw := range m[1:] {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return telemetry.Sample{}, fmt.Errorf("imu: bad %s %q: %w", names[i], raw, format.ErrMalformedFrame)
		}
		angles[i] = NormalizeAngle(v)
	}

	return telemetry.NewIMU(frame, port, angles[0], angles[1], angles[2]), nil
}

// NormalizeAngle wraps a degree value into [-180, 180).
func NormalizeAngle(deg float64) float64 {
	deg = math.Mod(deg+180, 360)
	if deg < 0 {
		deg += 360
	}
	return deg - 180
}
