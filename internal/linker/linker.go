// Package linker implements the two-pass, big-endian linker-file reader
// of spec.md §4.D. The file is slurped into memory once; pass 1 and
// pass 2 each get their own cursor over that buffer, avoiding any
// reliance on a Seek/rewind-capable stream (spec.md §9 Design Notes).
package linker

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/xyproto/damsonloader/internal/damsonerr"
	"github.com/xyproto/damsonloader/internal/damsonrt"
)

// Interrupt is one {code_offset, src_node} subscription entry, in file
// order (code_offset precedes src_node on the wire).
type Interrupt struct {
	CodeOffset uint32
	SrcNode    uint32
}

// LogTag distinguishes a LogRecord as a periodic log or a snapshot.
type LogTag uint32

const (
	LogTagLog      LogTag = 1
	LogTagSnapshot LogTag = 2
)

// LogRecord is one LogDecl, addresses already converted from word
// offsets to DTCM byte addresses (spec.md §4.D: `word*4 + DAMSONRT_DTCM_START`).
//
// Handle is not a wire field of the individual record; it is the
// record's position among *all* of its node's log-and-snapshot
// declarations in file order, before the tag-based split into Logs and
// Snapshots (original_source/main.c: `node_map.logs[...].handle = i`
// where i walks the combined pre-split list). The on-chip
// RuntimeLogItem header carries this same value, so the drain's
// handle-based lookup matches what the loader wrote.
type LogRecord struct {
	Handle      uint32
	Tag         LogTag
	Start       uint32
	End         uint32
	Interval    uint32
	LogItems    uint32
	LogGlobals  []uint32 // byte addresses, length LogItems
	Format      string
	Filename    string
}

// Node is one logical compute node as read from the linker file.
type Node struct {
	NodeID         uint32
	PrototypeName  string
	GV             []int32 // length = gv_size+1 from the file; GV[0] == 0
	EV             []int32
	Interrupts     []Interrupt
	Logs           []LogRecord // Tag == LogTagLog
	Snapshots      []LogRecord // Tag == LogTagSnapshot
}

// Reader holds the slurped file contents and produces independent
// cursors for pass 1 and pass 2.
type Reader struct {
	buf []byte
}

// Open reads path fully into memory.
func Open(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, damsonerr.Wrap(damsonerr.LoadFileOpen, err, "open linker file %s", path)
	}
	return &Reader{buf: data}, nil
}

// cursor reads big-endian 32-bit words and NUL-terminated,
// 4-byte-padded strings from a fixed byte slice.
type cursor struct {
	r *bytes.Reader
}

func (c *cursor) word() (uint32, error) {
	var w uint32
	if err := binary.Read(c.r, binary.BigEndian, &w); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, damsonerr.New(damsonerr.ConfigMalformed, "unexpected end found in linker file")
		}
		return 0, damsonerr.Wrap(damsonerr.ConfigMalformed, err, "read word")
	}
	return w, nil
}

func (c *cursor) signedWord() (int32, error) {
	w, err := c.word()
	return int32(w), err
}

// str reads a NUL-terminated string, then consumes pad bytes until the
// total byte count (string + NUL + pad) is a multiple of 4. Pad byte
// values are not validated (spec.md §4.D).
func (c *cursor) str() (string, error) {
	var out []byte
	n := 0
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return "", damsonerr.New(damsonerr.ConfigMalformed, "unexpected end found in linker file (string)")
		}
		n++
		if b == 0 {
			break
		}
		out = append(out, b)
	}
	for n%4 != 0 {
		if _, err := c.r.ReadByte(); err != nil {
			return "", damsonerr.New(damsonerr.ConfigMalformed, "unexpected end found in linker file (string pad)")
		}
		n++
	}
	if len(out) >= damsonrt.MaxStringSize {
		return "", damsonerr.New(damsonerr.ConfigMalformed, "string exceeds %d bytes", damsonrt.MaxStringSize)
	}
	return string(out), nil
}

// readNode reads one logical-node record. It returns (nil, nil) when
// the terminating node_id == 0 is read.
func readNode(c *cursor) (*Node, error) {
	nodeID, err := c.word()
	if err != nil {
		return nil, err
	}
	if nodeID == 0 {
		return nil, nil
	}

	name, err := c.str()
	if err != nil {
		return nil, err
	}

	gvSize, err := c.word()
	if err != nil {
		return nil, err
	}
	gvSize++ // first gv value is always 0
	if gvSize > damsonrt.MaxGVWords {
		return nil, damsonerr.New(damsonerr.ConfigMalformed,
			"node %d global vector words %d exceeds loader maximum %d", nodeID, gvSize, damsonrt.MaxGVWords)
	}
	gv := make([]int32, gvSize)
	for i := range gv {
		v, err := c.signedWord()
		if err != nil {
			return nil, err
		}
		gv[i] = v
	}

	evSize, err := c.word()
	if err != nil {
		return nil, err
	}
	ev := make([]int32, evSize)
	for i := range ev {
		v, err := c.signedWord()
		if err != nil {
			return nil, err
		}
		ev[i] = v
	}

	nInterrupts, err := c.word()
	if err != nil {
		return nil, err
	}
	if nInterrupts > damsonrt.MaxInterruptItems {
		return nil, damsonerr.New(damsonerr.ConfigMalformed,
			"node %d interrupt vector entries %d exceeds loader maximum %d", nodeID, nInterrupts, damsonrt.MaxInterruptItems)
	}
	interrupts := make([]Interrupt, nInterrupts)
	for i := range interrupts {
		codeOffset, err := c.word()
		if err != nil {
			return nil, err
		}
		srcNode, err := c.word()
		if err != nil {
			return nil, err
		}
		interrupts[i] = Interrupt{CodeOffset: codeOffset, SrcNode: srcNode}
	}

	nLogs, err := c.word()
	if err != nil {
		return nil, err
	}
	node := &Node{NodeID: nodeID, PrototypeName: name, GV: gv, EV: ev, Interrupts: interrupts}
	for i := uint32(0); i < nLogs; i++ {
		rec, err := readLogRecord(c)
		if err != nil {
			return nil, err
		}
		rec.Handle = i
		switch rec.Tag {
		case LogTagLog:
			if rec.LogItems > damsonrt.MaxLogItemsPerLog {
				return nil, damsonerr.New(damsonerr.ConfigMalformed,
					"node %d log has more items %d than maximum %d", nodeID, rec.LogItems, damsonrt.MaxLogItemsPerLog)
			}
			node.Logs = append(node.Logs, rec)
		case LogTagSnapshot:
			if rec.LogItems > damsonrt.MaxLogItemsPerSnap {
				return nil, damsonerr.New(damsonerr.ConfigMalformed,
					"node %d snapshot has more items %d than maximum %d", nodeID, rec.LogItems, damsonrt.MaxLogItemsPerSnap)
			}
			node.Snapshots = append(node.Snapshots, rec)
		default:
			return nil, damsonerr.New(damsonerr.ConfigMalformed, "node %d log record has unknown tag %d", nodeID, rec.Tag)
		}
	}
	if len(node.Logs)+len(node.Snapshots) > damsonrt.MaxLogsPerNode*2 {
		return nil, damsonerr.New(damsonerr.ConfigMalformed,
			"node %d declares too many logs/snapshots", nodeID)
	}

	return node, nil
}

func readLogRecord(c *cursor) (LogRecord, error) {
	tag, err := c.word()
	if err != nil {
		return LogRecord{}, err
	}
	start, err := c.word()
	if err != nil {
		return LogRecord{}, err
	}
	end, err := c.word()
	if err != nil {
		return LogRecord{}, err
	}
	interval, err := c.word()
	if err != nil {
		return LogRecord{}, err
	}
	logItems, err := c.word()
	if err != nil {
		return LogRecord{}, err
	}
	globals := make([]uint32, logItems)
	for i := range globals {
		w, err := c.word()
		if err != nil {
			return LogRecord{}, err
		}
		globals[i] = w*4 + damsonrt.DTCMStart
	}
	format, err := c.str()
	if err != nil {
		return LogRecord{}, err
	}
	filename, err := c.str()
	if err != nil {
		return LogRecord{}, err
	}
	return LogRecord{
		Tag:        LogTag(tag),
		Start:      start,
		End:        end,
		Interval:   interval,
		LogItems:   logItems,
		LogGlobals: globals,
		Format:     format,
		Filename:   filename,
	}, nil
}

// ReadAll runs one full pass over the linker file and returns every
// node record in file order, up to the node_id==0 terminator. Both
// PassOne and PassTwo (see below) call this; spec.md requires two
// independent traversals, not two different parses, so pass 1's
// result and pass 2's result are always identical (spec.md §8
// round-trip law).
func (r *Reader) ReadAll() ([]*Node, error) {
	c := &cursor{r: bytes.NewReader(r.buf)}
	var nodes []*Node
	for {
		n, err := readNode(c)
		if err != nil {
			return nil, err
		}
		if n == nil {
			break
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// PassOne is the placement/log-classification traversal (spec.md §4.D).
func (r *Reader) PassOne() ([]*Node, error) { return r.ReadAll() }

// PassTwo is the memory-image-loading traversal. It rewinds (in the
// sense of starting a fresh cursor over the same slurped buffer) rather
// than literally seeking a live file handle.
func (r *Reader) PassTwo() ([]*Node, error) { return r.ReadAll() }

// String renders a Node for diagnostics.
func (n *Node) String() string {
	return fmt.Sprintf("Node{id=%d proto=%q gv=%d ev=%d intv=%d logs=%d snaps=%d}",
		n.NodeID, n.PrototypeName, len(n.GV), len(n.EV), len(n.Interrupts), len(n.Logs), len(n.Snapshots))
}
