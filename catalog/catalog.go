// Package catalog enumerates serial endpoints and persists the mapping
// from physical port identity to user-assigned friendly names.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"go.bug.st/serial/enumerator"

	"sealink/telemetry"
)

// ErrEnumerationFailed marks a failed or timed-out OS port enumeration.
var ErrEnumerationFailed = errors.New("port enumeration failed")

// enumTimeout bounds a single enumeration call. A wedged driver must
// not stall callers.
const enumTimeout = time.Second

// Catalog lists available ports and owns the friendly-name map.
type Catalog struct {
	path    string
	logger  *slog.Logger
	timeout time.Duration

	// enumerate is swappable so tests run without hardware.
	enumerate func() ([]*enumerator.PortDetails, error)

	mu    sync.Mutex
	names map[string]string
}

// New creates a catalog backed by the names file at path. A missing
// file is not an error; it is created on the first save.
func New(path string, logger *slog.Logger) (*Catalog, error) {
	c := &Catalog{
		path:      path,
		logger:    logger,
		timeout:   enumTimeout,
		enumerate: enumerator.GetDetailedPortsList,
		names:     make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("reading names file: %w", err)
	}
	if err := json.Unmarshal(data, &c.names); err != nil {
		return nil, fmt.Errorf("parsing names file %s: %w", path, err)
	}
	logger.Debug("Loaded friendly names", "path", path, "count", len(c.names))
	return c, nil
}

// SetEnumerator replaces how the OS port list is read. Must be called
// before List.
func (c *Catalog) SetEnumerator(fn func() ([]*enumerator.PortDetails, error)) {
	c.enumerate = fn
}

// List re-enumerates the OS port list. Results are sorted by device
// path so an unchanged port set keeps a stable order. On failure or
// timeout it returns an empty slice and an error wrapping
// ErrEnumerationFailed.
func (c *Catalog) List() ([]telemetry.PortDescriptor, error) {
	type result struct {
		details []*enumerator.PortDetails
		err     error
	}

	ch := make(chan result, 1)
	go func() {
		details, err := c.enumerate()
		ch <- result{details, err}
	}()

	var details []*enumerator.PortDetails
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("enumerating serial ports: %w", errors.Join(ErrEnumerationFailed, res.err))
		}
		details = res.details
	case <-time.After(c.timeout):
		return nil, fmt.Errorf("port enumeration timed out after %s: %w", c.timeout, ErrEnumerationFailed)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ports := make([]telemetry.PortDescriptor, 0, len(details))
	for _, d := range details {
		desc := telemetry.PortDescriptor{
			Device:     d.Name,
			Name:       d.Product,
			PhysicalID: physicalID(d),
		}
		desc.Friendly = c.names[desc.PhysicalID]
		ports = append(ports, desc)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Device < ports[j].Device })
	return ports, nil
}

// Preferred picks a port for discovery: the first USB port carrying a
// known friendly name, else the first USB port.
func (c *Catalog) Preferred() (telemetry.PortDescriptor, bool) {
	ports, err := c.List()
	if err != nil {
		return telemetry.PortDescriptor{}, false
	}

	var firstUSB telemetry.PortDescriptor
	for _, p := range ports {
		if !isUSB(p) {
			continue
		}
		if p.Friendly != "" {
			return p, true
		}
		if firstUSB.IsZero() {
			firstUSB = p
		}
	}
	if !firstUSB.IsZero() {
		return firstUSB, true
	}
	return telemetry.PortDescriptor{}, false
}

// SetFriendlyName assigns a name to a physical port identity and
// persists the map immediately.
func (c *Catalog) SetFriendlyName(physicalID, name string) error {
	if physicalID == "" {
		return fmt.Errorf("physical id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[physicalID] = name
	return c.saveLocked()
}

// FriendlyName returns the assigned name for a physical port identity.
func (c *Catalog) FriendlyName(physicalID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.names[physicalID]
	return name, ok
}

// Forget removes a stored name. Removing an unknown identity is a
// no-op.
func (c *Catalog) Forget(physicalID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.names[physicalID]; !ok {
		return nil
	}
	delete(c.names, physicalID)
	return c.saveLocked()
}

// Names returns a copy of the friendly-name map.
func (c *Catalog) Names() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]string, len(c.names))
	for k, v := range c.names {
		out[k] = v
	}
	return out
}

// saveLocked writes the names file through a temp file and rename so a
// crash mid-write never corrupts it. Callers hold c.mu.
func (c *Catalog) saveLocked() error {
	data, err := json.MarshalIndent(c.names, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding names: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing names file: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing names file: %w", err)
	}
	return nil
}

// physicalID derives a stable identity for a port: VID:PID:SERIAL for
// USB devices, the device path for everything else.
func physicalID(d *enumerator.PortDetails) string {
	if d.IsUSB {
		return fmt.Sprintf("%s:%s:%s", d.VID, d.PID, d.SerialNumber)
	}
	return d.Name
}

// isUSB reports whether the descriptor came from a USB device. USB
// physical IDs are VID:PID:SERIAL, never a bare device path.
func isUSB(p telemetry.PortDescriptor) bool {
	return p.PhysicalID != p.Device
}
