package format

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"sealink/telemetry"
)

// registry holds all registered frame formats
var (
	registry = make(map[string]Format)
	ordered  []Format
	mu       sync.RWMutex
)

// Register adds a new format to the registry.
// This is typically called from init() functions in format packages.
func Register(f Format) error {
	mu.Lock()
	defer mu.Unlock()

	name := strings.ToLower(f.Name())
	if _, exists := registry[name]; exists {
		return fmt.Errorf("format %q already registered", name)
	}

	registry[name] = f
	next := make([]Format, 0, len(ordered)+1)
	next = append(next, ordered...)
	next = append(next, f)
	sort.SliceStable(next, func(i, j int) bool {
		if next[i].Priority() != next[j].Priority() {
			return next[i].Priority() < next[j].Priority()
		}
		return next[i].Name() < next[j].Name()
	})
	ordered = next
	return nil
}

// MustRegister registers a format and panics on error.
// This is useful for init() functions.
func MustRegister(f Format) {
	if err := Register(f); err != nil {
		panic(err)
	}
}

// Get retrieves a format by name (case-insensitive)
func Get(name string) (Format, error) {
	mu.RLock()
	defer mu.RUnlock()

	f, exists := registry[strings.ToLower(name)]
	if !exists {
		return nil, fmt.Errorf("unknown format: %s", name)
	}
	return f, nil
}

// List returns all registered format names in classification order
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(ordered))
	for _, f := range ordered {
		names = append(names, f.Name())
	}
	return names
}

// Formats returns the registered formats in classification order
func Formats() []Format {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]Format, len(ordered))
	copy(out, ordered)
	return out
}

// Classify runs the frame through each registered format in priority
// order and returns the first sample produced. A frame no format
// accepts, or one whose matching shape carries unparseable values,
// yields an error wrapping ErrMalformedFrame.
func Classify(frame telemetry.RawFrame, port telemetry.PortDescriptor) (telemetry.Sample, error) {
	mu.RLock()
	formats := ordered
	mu.RUnlock()

	for _, f := range formats {
		sample, err := f.Parse(frame, port)
		if err == nil {
			return sample, nil
		}
		if errors.Is(err, ErrNoMatch) {
			continue
		}
		return telemetry.Sample{}, err
	}
	return telemetry.Sample{}, fmt.Errorf("unrecognized frame %q: %w", Snippet(frame.Text), ErrMalformedFrame)
}

// Snippet shortens frame text for log and error messages.
func Snippet(text string) string {
	const max = 64
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
