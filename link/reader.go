package link

import (
	"bytes"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"sealink/telemetry"
)

// Reader assembles newline-terminated frames from arbitrary read
// chunks. Frame reconstruction does not depend on how the byte stream
// is split: any chunking of the same bytes yields the same frames.
// Push and Reset belong to a single goroutine; the counters may be
// read concurrently.
type Reader struct {
	maxFrameLen int
	buf         []byte
	seq         uint64

	// discarding is set when an unterminated frame outgrows the cap;
	// bytes are dropped until the next terminator.
	discarding bool

	malformed atomic.Int64
	oversized atomic.Int64
}

// NewReader creates a frame reader whose accumulation buffer never
// holds more than maxFrameLen bytes.
func NewReader(maxFrameLen int) *Reader {
	return &Reader{maxFrameLen: maxFrameLen}
}

// Push consumes one read chunk and returns the frames it completed,
// in order. Sequence numbers keep counting across Reset, so frames
// stay monotonic over reconnects of the same connection.
func (r *Reader) Push(chunk []byte) []telemetry.RawFrame {
	var frames []telemetry.RawFrame

	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			r.accumulate(chunk)
			break
		}

		r.accumulate(chunk[:i])
		chunk = chunk[i+1:]

		if r.discarding {
			r.discarding = false
			r.buf = r.buf[:0]
			continue
		}
		if frame, ok := r.complete(); ok {
			frames = append(frames, frame)
		}
	}

	return frames
}

// Reset drops any partially accumulated frame. Called when a stream
// ends so a mid-frame disconnect never emits the fragment.
func (r *Reader) Reset() {
	r.buf = r.buf[:0]
	r.discarding = false
}

// Malformed counts lines skipped for invalid UTF-8.
func (r *Reader) Malformed() int64 {
	return r.malformed.Load()
}

// Oversized counts unterminated frames dropped at the length cap.
func (r *Reader) Oversized() int64 {
	return r.oversized.Load()
}

func (r *Reader) accumulate(part []byte) {
	if r.discarding {
		return
	}
	if len(r.buf)+len(part) > r.maxFrameLen {
		r.oversized.Add(1)
		r.discarding = true
		r.buf = r.buf[:0]
		return
	}
	r.buf = append(r.buf, part...)
}

func (r *Reader) complete() (telemetry.RawFrame, bool) {
	line := r.buf
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}

	frame := telemetry.RawFrame{}
	ok := false
	switch {
	case len(line) == 0:
		// bare terminator, no frame
	case !utf8.Valid(line):
		r.malformed.Add(1)
	default:
		r.seq++
		frame = telemetry.RawFrame{Seq: r.seq, Time: time.Now(), Text: string(line)}
		ok = true
	}

	r.buf = r.buf[:0]
	return frame, ok
}
