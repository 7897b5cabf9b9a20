package generic

import (
	"regexp"
	"strconv"
	"strings"

	"sealink/format"
	"sealink/telemetry"
)

func init() {
	format.MustRegister(&GenericFormat{})
}

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// GenericFormat implements the Format interface for any KEY:VALUE frame
// not claimed by a more specific format
type GenericFormat struct{}

// Name returns the format identifier
func (f *GenericFormat) Name() string {
	return "generic"
}

// Description returns a human-readable description
func (f *GenericFormat) Description() string {
	return "Generic KEY:VALUE telemetry (space-separated pairs)"
}

// Priority places generic last in the classification order
func (f *GenericFormat) Priority() int {
	return 90
}

// Parse converts a line of space-separated KEY:VALUE pairs into a
// generic sample. Key order is preserved; each value is numeric when it
// parses as a float, a string otherwise. A repeated key keeps its first
// position and its last value.
func (f *GenericFormat) Parse(frame telemetry.RawFrame, port telemetry.PortDescriptor) (telemetry.Sample, error) {
	fields := strings.Fields(frame.Text)
	if len(fields) == 0 {
		return telemetry.Sample{}, format.ErrNoMatch
	}

	keys := make([]string, 0, len(fields))
	values := make(map[string]telemetry.Value, len(fields))
	for _, field := range fields {
		key, raw, ok := strings.Cut(field, ":")
		if !ok || raw == "" || !keyPattern.MatchString(key) {
			return telemetry.Sample{}, format.ErrNoMatch
		}

		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			values[key] = telemetry.Num(n)
		} else {
			values[key] = telemetry.Str(raw)
		}
	}

	return telemetry.NewGeneric(frame, port, keys, values), nil
}
