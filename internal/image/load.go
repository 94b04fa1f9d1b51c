package image

import (
	"time"

	"github.com/xyproto/damsonloader/internal/damsonerr"
	"github.com/xyproto/damsonloader/internal/damsonrt"
	"github.com/xyproto/damsonloader/internal/linker"
	"github.com/xyproto/damsonloader/internal/placement"
	"github.com/xyproto/damsonloader/internal/routing"
)

// Client is the subset of *sdp.Client the image loader drives. It is
// an interface (rather than importing package sdp directly) so tests
// can substitute a recording fake without a real socket.
type Client interface {
	WriteMemory(x, y byte, core byte, addr uint32, data []byte) error
	WriteNonZeroMemory(x, y byte, core byte, addr uint32, words []uint32) error
	StartApplicationAt(x, y byte, core byte, entryPoint uint32) error
	ReadMemory(x, y byte, core byte, addr uint32, n int) ([]byte, error)
}

// ProgramLoader loads the prototype object bytes for node.PrototypeName,
// abstracted so image doesn't need to know the object file format.
type ProgramLoader func(prototypeName string) ([]byte, uint32, error) // returns (image, entryPoint, err)

// aplxFillDescriptor builds one {opcode, addr, length, value} fill row.
func aplxFillDescriptor(addr, length, value uint32) [4]uint32 {
	return [4]uint32{0x00000003, addr, length, value}
}

// aplxFillTerminator is APLX-FILL's end-of-list sentinel row.
var aplxFillTerminator = [4]uint32{0xffffffff, 0, 0, 0}

// zeroNode writes the APLX-FILL descriptor for node's data region and
// EV window to the scratch address and runs it, clearing both before
// any real data is written (spec.md §4.H). It sleeps afterwards: the
// interpreter needs time to complete before validation reads are safe
// (original_source/loader.c's usleep(10000) after this step).
func zeroNode(c Client, x, y byte, core byte, l Layout, evSizeBytes uint32) error {
	rows := []uint32{}
	d1 := aplxFillDescriptor(damsonrt.DTCMStart, l.DTCMDataSize, 0)
	d2 := aplxFillDescriptor(l.EVStart, evSizeBytes+4, 0)
	for _, d := range [][4]uint32{d1, d2, aplxFillTerminator} {
		rows = append(rows, d[:]...)
	}
	if err := c.WriteMemory(x, y, core, damsonrt.APLXScratchAddr, wordsToBytes(rows)); err != nil {
		return err
	}
	if err := c.StartApplicationAt(x, y, core, damsonrt.APLXScratchAddr); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

// writeSystemGlobals writes the fixed system-global words spec.md §6
// names, one word at a time.
func writeSystemGlobals(c Client, x, y byte, core byte, l Layout, node *linker.Node, gridW, gridH uint32, debugMode bool) error {
	writeWord := func(idx, v uint32) error {
		return c.WriteMemory(x, y, core, damsonrt.SystemGlobalAddress(idx), wordsToBytes([]uint32{v}))
	}
	if err := writeWord(damsonrt.SysGVSize, l.GVSizeWords); err != nil {
		return err
	}
	if err := writeWord(damsonrt.SysIntvHashSize, l.IntvHashSize); err != nil {
		return err
	}
	if err := writeWord(damsonrt.SysLogCount, uint32(len(node.Logs))); err != nil {
		return err
	}
	if err := writeWord(damsonrt.SysSnapshotCount, uint32(len(node.Snapshots))); err != nil {
		return err
	}
	if err := writeWord(damsonrt.SysIntvHashStartAddr, l.IntvStart); err != nil {
		return err
	}
	if err := writeWord(damsonrt.SysLogsStartAddr, l.LogsStart); err != nil {
		return err
	}
	if err := writeWord(damsonrt.SysSnapshotsStartAddr, l.SnapshotsStart); err != nil {
		return err
	}
	if err := writeWord(damsonrt.SysChipCount, gridW*gridH); err != nil {
		return err
	}
	if err := writeWord(damsonrt.SysNodeLogicalID, node.NodeID); err != nil {
		return err
	}
	if debugMode {
		if err := writeWord(damsonrt.SysDebugMode, 1); err != nil {
			return err
		}
	}
	return nil
}

// writeSharedChipArea writes the chip-wide core-occupancy map and
// routing table once per chip, issued only by the chip's core 1
// (original_source/loader.c: `if (node_address.core_id == 1)`).
func writeSharedChipArea(c Client, x, y byte, m *placement.Map, table *routing.Table) error {
	gridW, gridH := m.GridW(), m.GridH()
	coreMap := make([]uint32, chipCount(gridW, gridH))
	for cx := uint32(0); cx < gridW; cx++ {
		for cy := uint32(0); cy < gridH; cy++ {
			coreMap[chipIndex(cx, cy, gridW)] = m.CoreMap(cx, cy)
		}
	}
	var addr uint32 = damsonrt.EVSharedStart
	if err := c.WriteMemory(x, y, 1, addr, wordsToBytes(coreMap)); err != nil {
		return err
	}
	addr += uint32(len(coreMap)) * 4

	entries := table.Chip(uint32(x), uint32(y))
	if len(entries) > damsonrt.MaxRoutingTableEntries {
		return damsonerr.New(damsonerr.RoutingTableOverflow, "chip (%d,%d) has %d routing entries, exceeds %d", x, y, len(entries), damsonrt.MaxRoutingTableEntries)
	}
	if err := c.WriteMemory(x, y, 1, addr, wordsToBytes([]uint32{uint32(len(entries))})); err != nil {
		return err
	}
	addr += 4

	rtWords := make([]uint32, 0, len(entries)*2)
	for _, e := range entries {
		rtWords = append(rtWords, e.Key, e.Route)
	}
	return c.WriteMemory(x, y, 1, addr, wordsToBytes(rtWords))
}

// LoadNode runs the full per-node write sequence of spec.md §4.H: zero,
// system globals, vectors, logs/snapshots, the chip-shared area (core
// 1 only), then the prototype program itself.
func LoadNode(c Client, node *linker.Node, m *placement.Map, table *routing.Table, gridW, gridH uint32, debugMode bool, load ProgramLoader) error {
	placed, ok := m.ByNode(node.NodeID)
	if !ok {
		return damsonerr.New(damsonerr.OutOfCores, "node %d was never placed", node.NodeID)
	}
	x, y, core := byte(placed.ChipX), byte(placed.ChipY), byte(placed.Core)
	l := Compute(node, placed.Core)
	evSizeBytes := EVSizeBytes(node)

	if l.DTCMDataSize > damsonrt.DTCMDataMax {
		return damsonerr.New(damsonerr.DtcmTooBig, "node %d DTCM data size %d exceeds limit %d", node.NodeID, l.DTCMDataSize, damsonrt.DTCMDataMax)
	}

	if err := zeroNode(c, x, y, core, l, evSizeBytes); err != nil {
		return err
	}

	slots, err := placement.BuildInterruptHash(node.Interrupts)
	if err != nil {
		return err
	}

	if err := writeSystemGlobals(c, x, y, core, l, node, gridW, gridH, debugMode); err != nil {
		return err
	}

	if err := c.WriteMemory(x, y, core, l.EVStart, wordsToBytes([]uint32{uint32(len(node.EV))})); err != nil {
		return err
	}

	if err := c.WriteNonZeroMemory(x, y, core, l.GVUserStart, uint32Slice(node.GV)); err != nil {
		return err
	}
	if err := c.WriteNonZeroMemory(x, y, core, l.EVStart+4, uint32Slice(node.EV)); err != nil {
		return err
	}
	if err := c.WriteNonZeroMemory(x, y, core, l.IntvStart, marshalIntvHash(slots)); err != nil {
		return err
	}
	if err := c.WriteNonZeroMemory(x, y, core, l.LogsStart, marshalLogItems(node.Logs)); err != nil {
		return err
	}
	if err := c.WriteNonZeroMemory(x, y, core, l.SnapshotsStart, marshalLogItems(node.Snapshots)); err != nil {
		return err
	}

	if placed.Core == 1 {
		if err := writeSharedChipArea(c, x, y, m, table); err != nil {
			return err
		}
	}

	img, entry, err := load(node.PrototypeName)
	if err != nil {
		return damsonerr.Wrap(damsonerr.LoadFileOpen, err, "load prototype %q for node %d", node.PrototypeName, node.NodeID)
	}
	if err := c.WriteMemory(x, y, core, damsonrt.DTCMProgramStart, img); err != nil {
		return err
	}
	_ = entry // the program is started later, as a batch, once every node is loaded

	return nil
}

// uint32Slice reinterprets a signed word slice as unsigned for the wire
// (two's complement, no value change).
func uint32Slice(in []int32) []uint32 {
	out := make([]uint32, len(in))
	for i, v := range in {
		out[i] = uint32(v)
	}
	return out
}
