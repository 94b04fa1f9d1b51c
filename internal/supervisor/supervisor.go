// Package supervisor implements spec.md §4.I/§5: the host busy-waits on
// a shared `running` flag cleared by a HOSTCMD:shutdown debug message,
// then walks every populated core in start-reverse order to drain its
// log ring to formatted text files.
package supervisor

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/xyproto/damsonloader/internal/damsonrt"
	"github.com/xyproto/damsonloader/internal/fmtconv"
	"github.com/xyproto/damsonloader/internal/linker"
	"github.com/xyproto/damsonloader/internal/placement"
	"github.com/xyproto/damsonloader/internal/sdp"
)

// Client is the subset of *sdp.Client the drainer reads memory with.
type Client interface {
	ReadMemory(x, y byte, core byte, addr uint32, n int) ([]byte, error)
}

// Logger receives one line of console output: a HOSTCMD notice, an
// unrecognized debug line passed through verbatim, or a drain warning
// (spec.md §4.C/§4.I/§7 "unrecognized debug lines pass through
// verbatim to stdout").
type Logger func(line string)

// Supervisor owns the one-way `running` flag spec.md §5 describes: set
// true before cores are started, cleared only by the debug receiver's
// HOSTCMD:shutdown handler. A relaxed atomic is sufficient since it is
// a one-way transition (spec.md §5 "Shared resources").
type Supervisor struct {
	running atomic.Bool
	m       *placement.Map
	log     Logger
}

// New builds a Supervisor already in the running state, ready to have
// its HandleDebugFrame wired as the debug receiver's callback.
func New(m *placement.Map, log Logger) *Supervisor {
	s := &Supervisor{m: m, log: log}
	s.running.Store(true)
	return s
}

// Running reports whether shutdown has been requested yet.
func (s *Supervisor) Running() bool { return s.running.Load() }

// Wait busy-waits until Running is false, polling at a short interval.
// spec.md §5 permits a condition variable instead, provided no further
// SDP traffic is sent to the fabric while waiting — this loop sends
// none.
func (s *Supervisor) Wait() {
	for s.running.Load() {
		time.Sleep(time.Millisecond)
	}
}

// HandleDebugFrame is the debug receiver's per-frame callback
// (original_source/loader.c's HandleDebugMessage). HOSTCMD: messages
// are intercepted; everything else is logged as "<node_id>\t<text>".
func (s *Supervisor) HandleDebugFrame(f sdp.Frame) {
	if !s.running.Load() {
		return
	}

	msg := strings.TrimRight(string(f.Payload), "\n\x00")
	nodeID := s.nodeIDFor(f.ChipX, f.ChipY, f.Core)

	const prefix = "HOSTCMD:"
	if !strings.HasPrefix(msg, prefix) {
		s.log(fmt.Sprintf("%d\t%s", nodeID, msg))
		return
	}

	cmd, arg, _ := strings.Cut(msg[len(prefix):], " ")
	switch cmd {
	case "shutdown":
		s.log(fmt.Sprintf("SpiNNaker time: %s ms", arg))
		s.running.Store(false)
	case "exit":
		s.log(fmt.Sprintf("Node (%d) exit %s", nodeID, arg))
	case "ticks":
		s.log(fmt.Sprintf("SpiNNaker ticks: %s", arg))
	default:
		s.log(fmt.Sprintf("unrecognized HOSTCMD %q from node %d", cmd, nodeID))
	}
}

func (s *Supervisor) nodeIDFor(x, y, core byte) uint32 {
	physID := damsonrt.PackPhysicalID(uint32(x), uint32(y), uint32(core))
	if e, ok := s.m.ByPhysical(physID); ok {
		return e.NodeID
	}
	return 0
}

// Drain walks every populated core, in the same reversed start order
// spec.md §4.H mandates (chip (W-1,H-1)..(0,0), core 16..1), reading
// and formatting each core's log ring, then releases that node's
// log/snapshot declarations (spec.md §3 Lifecycles: "freed only at
// shutdown, after drain").
func (s *Supervisor) Drain(c Client, gridW, gridH uint32) error {
	for x := int(gridW) - 1; x >= 0; x-- {
		for y := int(gridH) - 1; y >= 0; y-- {
			cm := s.m.CoreMap(uint32(x), uint32(y))
			for core := 16; core >= 1; core-- {
				if cm&(1<<uint(core)) == 0 {
					continue
				}
				physID := damsonrt.PackPhysicalID(uint32(x), uint32(y), uint32(core))
				entry, ok := s.m.ByPhysical(physID)
				if !ok {
					continue
				}
				if err := s.drainCore(c, byte(x), byte(y), byte(core), entry.NodeID); err != nil {
					return err
				}
				s.m.Release(entry.NodeID)
			}
		}
	}
	return nil
}

func (s *Supervisor) drainCore(c Client, x, y, core byte, nodeID uint32) error {
	evAddr := damsonrt.EVStart(uint32(core))
	sizeBytes, err := c.ReadMemory(x, y, core, evAddr, 4)
	if err != nil {
		return err
	}
	evSizeWords := binary.LittleEndian.Uint32(sizeBytes)

	endBytes, err := c.ReadMemory(x, y, core, damsonrt.SystemGlobalAddress(damsonrt.SysLogDataEnd), 4)
	if err != nil {
		return err
	}
	logDataEnd := binary.LittleEndian.Uint32(endBytes)
	logDataStart := evAddr + evSizeWords*4 + 4

	if logDataEnd <= logDataStart {
		return nil
	}

	span, err := c.ReadMemory(x, y, core, logDataStart, int(logDataEnd-logDataStart))
	if err != nil {
		return err
	}

	return s.emitLogs(nodeID, span)
}

// emitLogs parses span as a sequence of {handle, n_items, values...}
// records and writes each one, formatted, to its LogDecl's own file.
// A record with n_items > MaxLogItems stops parsing this core's log
// entirely (possible corruption); a handle with no matching decl, or a
// declared item-count mismatch, only skips that one record.
func (s *Supervisor) emitLogs(nodeID uint32, span []byte) error {
	logs := s.m.Logs(nodeID)
	snapshots := s.m.Snapshots(nodeID)

	files := make(map[string]*os.File)
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	openFor := func(r linker.LogRecord) (*os.File, error) {
		if f, ok := files[r.Filename]; ok {
			return f, nil
		}
		f, err := os.Create(r.Filename)
		if err != nil {
			s.log(fmt.Sprintf("warning: unable to open log file %q: %v", r.Filename, err))
			files[r.Filename] = nil
			return nil, nil
		}
		files[r.Filename] = f
		return f, nil
	}

	words := bytesToWords(span)
	i := 0
	for i+2 <= len(words) {
		handle := words[i]
		nItems := words[i+1]
		i += 2

		if nItems > damsonrt.MaxLogItems {
			s.log(fmt.Sprintf("warning: possible log corruption, node %d entry has %d items", nodeID, nItems))
			break
		}
		if i+int(nItems) > len(words) {
			s.log(fmt.Sprintf("warning: truncated log entry for node %d", nodeID))
			break
		}
		values := words[i : i+int(nItems)]
		i += int(nItems)

		rec, ok := findDecl(logs, snapshots, handle)
		if !ok {
			s.log(fmt.Sprintf("warning: node %d log entry has unknown handle %d", nodeID, handle))
			continue
		}
		if rec.LogItems != nItems {
			s.log(fmt.Sprintf("warning: node %d log %d declared %d items, entry has %d", nodeID, handle, rec.LogItems, nItems))
			continue
		}

		line, err := fmtconv.Format(rec.Format, values)
		if err != nil {
			s.log(fmt.Sprintf("warning: node %d log %d: %v", nodeID, handle, err))
			continue
		}

		f, err := openFor(rec)
		if err != nil {
			return err
		}
		if f != nil {
			fmt.Fprintln(f, line)
		}
	}
	return nil
}

// findDecl locates a LogDecl by its combined-order handle, logs first
// then snapshots (spec.md §4.I step 6).
func findDecl(logs, snapshots []linker.LogRecord, handle uint32) (linker.LogRecord, bool) {
	for _, r := range logs {
		if r.Handle == handle {
			return r, true
		}
	}
	for _, r := range snapshots {
		if r.Handle == handle {
			return r, true
		}
	}
	return linker.LogRecord{}, false
}

func bytesToWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}
