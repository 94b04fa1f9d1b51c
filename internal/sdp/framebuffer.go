package sdp

import (
	"bytes"
	"fmt"
)

// FrameBuffer wraps bytes.Buffer with explicit lifecycle management so
// a frame already handed to net.Conn.Write can't be mutated out from
// under it. Adapted from the teacher's SafeBuffer: same commit/reset
// discipline, repurposed from guarding an assembled object-file section
// to guarding an assembled SDP datagram.
type FrameBuffer struct {
	buf  bytes.Buffer
	sent bool
	name string
}

// NewFrameBuffer creates a FrameBuffer with a name for diagnostics.
func NewFrameBuffer(name string) *FrameBuffer {
	return &FrameBuffer{name: name}
}

// Write appends bytes to the buffer. Panics if the frame was already sent.
func (f *FrameBuffer) Write(p []byte) (int, error) {
	if f.sent {
		panic(fmt.Sprintf("FrameBuffer(%s): write after send", f.name))
	}
	return f.buf.Write(p)
}

// Bytes returns the buffer contents. Safe to call after Sent.
func (f *FrameBuffer) Bytes() []byte {
	return f.buf.Bytes()
}

// Len returns the buffer length.
func (f *FrameBuffer) Len() int {
	return f.buf.Len()
}

// MarkSent records that the frame has gone out. No further writes are
// permitted.
func (f *FrameBuffer) MarkSent() {
	f.sent = true
}

// Reset clears the buffer for reuse.
func (f *FrameBuffer) Reset() {
	f.buf.Reset()
	f.sent = false
}
