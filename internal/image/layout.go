// Package image computes each node's per-core DTCM layout and drives
// the write sequence that actually lands it on the fabric (spec.md
// §3 "Memory model", §4.H): APLX-FILL zeroing, system globals, the
// interrupt hash, global/external vectors, logs/snapshots, the
// chip-shared core map and routing table (core 1 only), and finally
// the prototype program image itself.
package image

import (
	"github.com/xyproto/damsonloader/internal/damsonrt"
	"github.com/xyproto/damsonloader/internal/linker"
)

// Layout is the fully-resolved set of DTCM addresses and sizes for one
// node, derived the way original_source/loader.c's LoadNode computes
// them before issuing a single write.
type Layout struct {
	GVSizeWords uint32
	GVSizeBytes uint32

	IntvHashSize      uint32 // entry count, power of 2 plus the timer slot
	IntvHashSizeBytes uint32

	LogsSizeBytes      uint32
	SnapshotsSizeBytes uint32

	GVStart        uint32
	GVUserStart    uint32
	IntvStart      uint32
	EVStart        uint32
	LogsStart      uint32
	SnapshotsStart uint32

	DTCMDataSize uint32
}

// Compute derives n's Layout. gvLen is len(n.GV) (already including the
// always-zero leading word, spec.md §4.D), matching how
// original_source/main.c passes its "gvusersize" on to LoadNode.
func Compute(n *linker.Node, coreID uint32) Layout {
	gvLen := uint32(len(n.GV))
	intvHashSize := damsonrt.NextPow2(2*uint32(len(n.Interrupts))) + 1
	logsSizeBytes := uint32(len(n.Logs)) * damsonrt.RuntimeLogItemSize
	snapshotsSizeBytes := uint32(len(n.Snapshots)) * damsonrt.RuntimeLogItemSize

	l := Layout{
		GVSizeWords:        damsonrt.SystemReservedWords + gvLen,
		IntvHashSize:       intvHashSize,
		IntvHashSizeBytes:  intvHashSize * damsonrt.InterruptSlotSize,
		LogsSizeBytes:      logsSizeBytes,
		SnapshotsSizeBytes: snapshotsSizeBytes,
	}
	l.GVSizeBytes = l.GVSizeWords * 4
	l.GVStart = damsonrt.DTCMStart
	l.GVUserStart = l.GVStart + damsonrt.SystemReservedBytes
	l.IntvStart = l.GVStart + l.GVSizeBytes
	l.LogsStart = l.IntvStart + l.IntvHashSizeBytes
	l.SnapshotsStart = l.LogsStart + l.LogsSizeBytes
	l.DTCMDataSize = l.GVSizeBytes + l.IntvHashSizeBytes + l.LogsSizeBytes + l.SnapshotsSizeBytes
	l.EVStart = damsonrt.EVStart(coreID)
	return l
}

// EVSizeBytes is the byte length of n's external-vector array (not
// counting the leading evsize header word written at EVStart).
func EVSizeBytes(n *linker.Node) uint32 { return uint32(len(n.EV)) * 4 }

// chipCount is the number of chips a board of gridW x gridH holds;
// shared between layout and validation for indexing the core map.
func chipCount(gridW, gridH uint32) uint32 { return gridW * gridH }

// chipIndex returns a chip's position in the row-major core-map array
// original_source/loader.c builds as `y + x*layout_width`.
func chipIndex(x, y, gridW uint32) uint32 { return y + x*gridW }
