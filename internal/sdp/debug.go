package sdp

import (
	"fmt"
	"net"
	"os"
	"sync/atomic"

	"github.com/xyproto/damsonloader/internal/damsonerr"
	"github.com/xyproto/damsonloader/internal/damsonrt"
)

// Frame is one parsed debug-channel datagram: its source address and
// whatever payload followed the 16-byte header (spec.md §4.C).
type Frame struct {
	ChipX, ChipY byte
	Core         byte
	Payload      []byte
}

// Receiver runs the background HOSTCMD: listener of spec.md §4.C. It
// owns the debug UDP socket and dispatches every received frame to a
// caller-supplied callback from its own goroutine until Stop is called.
type Receiver struct {
	conn    *net.UDPConn
	running atomic.Bool
	done    chan struct{}
}

// NewReceiver opens the debug port and returns a Receiver ready to
// Start. bindIP is normally net.IPv4zero: the debug port listens on
// every local address, since any chip on the board may address it.
func NewReceiver(bindIP net.IP) (*Receiver, error) {
	return newReceiverOnPort(bindIP, damsonrt.DebugPort)
}

func newReceiverOnPort(bindIP net.IP, port int) (*Receiver, error) {
	laddr := &net.UDPAddr{IP: bindIP, Port: port}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, damsonerr.Wrap(damsonerr.SocketBind, err, "bind debug port %d", port)
	}
	if err := tuneSocket(conn, 1<<20); err != nil && VerboseMode {
		fmt.Fprintf(os.Stderr, "sdp: tune debug socket: %v\n", err)
	}
	return &Receiver{conn: conn, done: make(chan struct{})}, nil
}

// Start launches the receive loop in a background goroutine. Every
// frame is handed to onFrame on that same goroutine; onFrame must not
// block for long or it will stall delivery of subsequent frames.
func (r *Receiver) Start(onFrame func(Frame)) {
	r.running.Store(true)
	go r.loop(onFrame)
}

// Running reports whether the receiver is still accepting frames. Stop
// flips it false.
func (r *Receiver) Running() bool {
	return r.running.Load()
}

func (r *Receiver) loop(onFrame func(Frame)) {
	defer close(r.done)
	buf := make([]byte, 2048)
	for r.running.Load() {
		n, err := r.conn.Read(buf)
		if err != nil {
			if !r.running.Load() {
				return
			}
			if VerboseMode {
				fmt.Fprintf(os.Stderr, "sdp: debug recv: %v\n", err)
			}
			continue
		}
		if n < DebugHeaderSize {
			if VerboseMode {
				fmt.Fprintf(os.Stderr, "sdp: short debug frame (%d bytes)\n", n)
			}
			continue
		}
		h := UnmarshalDebugHeader(buf[:n])
		x, y, core := h.SourceAddress()
		payload := make([]byte, n-DebugHeaderSize)
		copy(payload, buf[DebugHeaderSize:n])
		onFrame(Frame{ChipX: x, ChipY: y, Core: core, Payload: payload})
	}
}

// Stop flips the running flag and unblocks the receive loop by closing
// the socket, then waits for the goroutine to exit.
func (r *Receiver) Stop() error {
	r.running.Store(false)
	err := r.conn.Close()
	<-r.done
	return err
}
