// Package format classifies raw telemetry frames into typed samples.
// Each recognized line shape lives in its own subpackage and registers
// itself with the registry; classification walks the registered formats
// in priority order.
package format

import (
	"errors"

	"sealink/telemetry"
)

// ErrNoMatch is returned by a Format whose line shape does not match
// the frame. Classification moves on to the next format.
var ErrNoMatch = errors.New("format: no match")

// ErrMalformedFrame marks a frame that produced no sample: either no
// format matched, or a matching shape carried values that failed to
// parse. Malformed frames are counted, never fatal.
var ErrMalformedFrame = errors.New("malformed frame")

// Format defines the interface that all frame format handlers must implement.
// This is the primary extension point for adding new sensor protocols.
type Format interface {
	// Name returns the unique identifier for this format (e.g., "dht", "imu")
	Name() string

	// Description returns a human-readable description
	Description() string

	// Priority orders classification attempts; lower values are tried first
	Priority() int

	// Parse converts a frame into a sample. It returns ErrNoMatch when
	// the frame does not have this format's shape, and an error wrapping
	// ErrMalformedFrame when the shape matches but a value is invalid.
	Parse(frame telemetry.RawFrame, port telemetry.PortDescriptor) (telemetry.Sample, error)
}
