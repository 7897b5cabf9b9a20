package link

import (
	"errors"
	"fmt"
	"io/fs"

	bugst "go.bug.st/serial"
)

var (
	// ErrPortOpenFailed marks a connect attempt that could not open
	// its port. The returned error is always an *OpenError carrying
	// the classified reason.
	ErrPortOpenFailed = errors.New("port open failed")

	// ErrStreamInterrupted marks a read error or unexpected closure
	// on an open stream.
	ErrStreamInterrupted = errors.New("stream interrupted")

	// ErrReconnectExhausted marks a connection abandoned after the
	// retry budget ran out.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// OpenReason classifies why a port could not be opened.
type OpenReason string

const (
	ReasonBusy        OpenReason = "busy"
	ReasonPermission  OpenReason = "permission"
	ReasonNonexistent OpenReason = "nonexistent"
	ReasonOther       OpenReason = "other"
)

// OpenError describes a failed port open with its classified reason.
type OpenError struct {
	Device string
	Reason OpenReason
	Err    error
}

func (e *OpenError) Error() string {
	device := e.Device
	if device == "" {
		device = "serial port"
	}
	return fmt.Sprintf("opening %s: %s: %v", device, e.Reason, e.Err)
}

func (e *OpenError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPortOpenFailed}
	}
	return []error{ErrPortOpenFailed, e.Err}
}

// classifyOpen maps driver and OS errors onto an OpenReason so callers
// can tell a busy port from a missing or forbidden one.
func classifyOpen(device string, err error) *OpenError {
	reason := ReasonOther

	var pe *bugst.PortError
	switch {
	case errors.As(err, &pe):
		switch pe.Code() {
		case bugst.PortBusy:
			reason = ReasonBusy
		case bugst.PortNotFound:
			reason = ReasonNonexistent
		case bugst.PermissionDenied:
			reason = ReasonPermission
		}
	case errors.Is(err, fs.ErrNotExist):
		reason = ReasonNonexistent
	case errors.Is(err, fs.ErrPermission):
		reason = ReasonPermission
	}

	return &OpenError{Device: device, Reason: reason, Err: err}
}
