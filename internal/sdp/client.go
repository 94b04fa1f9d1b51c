package sdp

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/xyproto/damsonloader/internal/damsonerr"
	"github.com/xyproto/damsonloader/internal/damsonrt"
)

// VerboseMode mirrors the teacher's package-level logging switch: this
// package checks it directly for its socket and per-command tracing
// rather than taking a logger interface.
var VerboseMode bool

// Client is the connected-less control RPC of spec.md §4.B: one
// request out, one response datagram in, bounded by SdpTimeout, no
// retry. A Client is bound to one board at construction; each command
// names its destination chip and core.
type Client struct {
	conn     *net.UDPConn
	chipAddr *net.UDPAddr
	lastSend time.Time
}

// Dial opens the control socket used for every command against
// boardIP's monitor cores. One Client serves the whole board; callers
// pass the destination chip/core per call.
func Dial(boardIP net.IP) (*Client, error) {
	return dialPort(boardIP, damsonrt.ControlPort)
}

func dialPort(boardIP net.IP, port int) (*Client, error) {
	raddr := &net.UDPAddr{IP: boardIP, Port: port}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, damsonerr.Wrap(damsonerr.SocketCreate, err, "dial control port on %s", boardIP)
	}
	if err := tuneSocket(conn, 1<<20); err != nil && VerboseMode {
		fmt.Fprintf(os.Stderr, "sdp: tune control socket: %v\n", err)
	}
	return &Client{conn: conn, chipAddr: raddr}, nil
}

// Close releases the control socket.
func (c *Client) Close() error {
	return c.conn.Close()
}

// throttle enforces CmdDelay between consecutive requests so a burst
// of writes doesn't overrun the monitor core's receive queue.
func (c *Client) throttle() {
	if elapsed := time.Since(c.lastSend); elapsed < damsonrt.CmdDelay {
		time.Sleep(damsonrt.CmdDelay - elapsed)
	}
}

// roundTrip sends req and waits for exactly one response datagram,
// bounded by SdpTimeout. It does not retry: a timeout is SdpTimeout,
// passed straight back to the caller (spec.md §4.B).
func (c *Client) roundTrip(req RequestHeader) (ResponseHeader, []byte, error) {
	c.throttle()

	if _, err := c.conn.Write(req.Marshal()); err != nil {
		return ResponseHeader{}, nil, damsonerr.Wrap(damsonerr.SdpSend, err, "send cmd %d to core %d", req.Cmd, req.DstCore)
	}
	c.lastSend = time.Now()

	if err := c.conn.SetReadDeadline(time.Now().Add(damsonrt.SdpTimeout)); err != nil {
		return ResponseHeader{}, nil, damsonerr.Wrap(damsonerr.SdpRecv, err, "set read deadline")
	}

	buf := make([]byte, 1500)
	n, err := c.conn.Read(buf)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return ResponseHeader{}, nil, damsonerr.New(damsonerr.SdpTimeout, "no reply to cmd %d from core %d within %s", req.Cmd, req.DstCore, damsonrt.SdpTimeout)
		}
		return ResponseHeader{}, nil, damsonerr.Wrap(damsonerr.SdpRecv, err, "recv reply to cmd %d", req.Cmd)
	}
	if n < ResponseHeaderSize {
		return ResponseHeader{}, nil, damsonerr.New(damsonerr.SdpRecv, "short reply (%d bytes) to cmd %d", n, req.Cmd)
	}

	resp := UnmarshalResponseHeader(buf)
	data := buf[ResponseHeaderSize:n]
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "sdp: cmd %d -> core %d: rc=%d, %d bytes data\n", req.Cmd, req.DstCore, resp.RC, len(data))
	}
	return resp, data, nil
}

// SendCmd issues a bare command with no data payload (e.g. IPTAG, P2PC
// control sequences) and returns its response header.
func (c *Client) SendCmd(x, y byte, core byte, cmd uint16, arg1, arg2, arg3 uint32) (ResponseHeader, error) {
	req := NewRequest(chipCPU(x, y), core, cmd, arg1, arg2, arg3)
	resp, _, err := c.roundTrip(req)
	return resp, err
}

// ReadMemory reads n bytes from addr in core's local address space.
// It chunks the transfer at MaxWriteChunk-sized requests.
func (c *Client) ReadMemory(x, y byte, core byte, addr uint32, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		chunk := n - len(out)
		if chunk > damsonrt.MaxWriteChunk {
			chunk = damsonrt.MaxWriteChunk
		}
		req := NewRequest(chipCPU(x, y), core, CmdRead, addr+uint32(len(out)), uint32(chunk), TypeByte)
		_, data, err := c.roundTrip(req)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	return out, nil
}

// WriteMemory writes data to addr in core's local address space,
// chunked at MaxWriteChunk bytes per request.
func (c *Client) WriteMemory(x, y byte, core byte, addr uint32, data []byte) error {
	for off := 0; off < len(data); {
		end := off + damsonrt.MaxWriteChunk
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]
		fb := NewFrameBuffer("write-memory")
		fb.Write(chunk)
		fb.MarkSent()

		req := NewRequest(chipCPU(x, y), core, CmdWrite, addr+uint32(off), uint32(len(chunk)), TypeByte)
		b := req.Marshal()
		b = append(b, fb.Bytes()...)

		c.throttle()
		if _, err := c.conn.Write(b); err != nil {
			return damsonerr.Wrap(damsonerr.SdpSend, err, "write %d bytes to 0x%x on core %d", len(chunk), addr+uint32(off), core)
		}
		c.lastSend = time.Now()
		if err := c.conn.SetReadDeadline(time.Now().Add(damsonrt.SdpTimeout)); err != nil {
			return damsonerr.Wrap(damsonerr.SdpRecv, err, "set read deadline")
		}
		ack := make([]byte, ResponseHeaderSize)
		if _, err := c.conn.Read(ack); err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				return damsonerr.New(damsonerr.SdpTimeout, "no ack writing 0x%x on core %d", addr+uint32(off), core)
			}
			return damsonerr.Wrap(damsonerr.SdpRecv, err, "recv write ack")
		}

		off = end
	}
	return nil
}

// WriteNonZeroMemory is WriteMemory but elides any run of words that
// are entirely zero, relying on the APLX-FILL zeroing pass having
// already cleared the destination (spec.md §4.H).
func (c *Client) WriteNonZeroMemory(x, y byte, core byte, addr uint32, words []uint32) error {
	i := 0
	for i < len(words) {
		if words[i] == 0 {
			i++
			continue
		}
		start := i
		for i < len(words) && words[i] != 0 {
			i++
		}
		run := words[start:i]
		data := make([]byte, len(run)*4)
		for j, w := range run {
			data[j*4] = byte(w)
			data[j*4+1] = byte(w >> 8)
			data[j*4+2] = byte(w >> 16)
			data[j*4+3] = byte(w >> 24)
		}
		if err := c.WriteMemory(x, y, core, addr+uint32(start*4), data); err != nil {
			return err
		}
	}
	return nil
}

// StartApplicationAt issues the CMD_APLX start-app command against
// core at (x,y), having already loaded its image and verified it
// (spec.md §4.H/§6). Starting core 0 (the monitor) is rejected.
func (c *Client) StartApplicationAt(x, y byte, core byte, entryPoint uint32) error {
	if core == damsonrt.MonitorCoreID {
		return damsonerr.New(damsonerr.StartAppOnMonitor, "refusing to start application on monitor core of chip (%d,%d)", x, y)
	}
	_, err := c.SendCmd(x, y, core, CmdAPLX, entryPoint, 0, 0)
	return err
}

// ConfigureIPTag issues the CLR then AUTO IPTAG sub-commands against
// the monitor core of (x,y) to route debug text back to this host
// (spec.md §6): CLR carries arg1=IPTAG_CLR<<16 with no tag bits; AUTO
// carries arg1=IPTAG_AUTO<<16 and arg2=DebugPort, the port the reply
// tag should forward to.
func (c *Client) ConfigureIPTag(x, y byte) error {
	if _, err := c.SendCmd(x, y, damsonrt.MonitorCoreID, CmdIPTag, uint32(IPTagSubClr)<<16, 0, 0); err != nil {
		return err
	}
	_, err := c.SendCmd(x, y, damsonrt.MonitorCoreID, CmdIPTag, uint32(IPTagSubAuto)<<16, damsonrt.DebugPort, 0)
	return err
}

// ConfigureP2PC issues the point-to-point routing-configuration command
// against the monitor core of (x,y), establishing id as that chip's
// logical address within a gridW x gridH grid (spec.md §6):
// arg1=0x003e0000|id, arg2=(gridW<<24)|(gridH<<16), arg3=0x00003ff8.
func (c *Client) ConfigureP2PC(x, y byte, id, gridW, gridH uint32) error {
	arg1 := uint32(0x003e0000) | id
	arg2 := (gridW << 24) | (gridH << 16)
	_, err := c.SendCmd(x, y, damsonrt.MonitorCoreID, CmdP2PC, arg1, arg2, 0x00003ff8)
	return err
}

// chipCPU packs an (x,y) chip address into the 16-bit dst_cpu field
// the way SDP encodes it: high byte x, low byte y.
func chipCPU(x, y byte) uint16 {
	return uint16(x)<<8 | uint16(y)
}
