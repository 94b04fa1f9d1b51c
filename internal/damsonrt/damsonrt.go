// Package damsonrt is the single source of truth for the numeric layout
// and protocol constants the rest of the loader consumes: on-chip DTCM
// offsets, system-global word indices, SDP/boot protocol numbers, and
// the fabric's fixed limits. Nothing in here depends on any other
// loader package.
package damsonrt

import (
	"fmt"
	"time"
)

// Fabric shape.
const (
	MaxCoresPerChip  = 18 // core 0 is the monitor, 1..17 are application cores
	MaxVirtualPorts  = 7
	MonitorCoreID    = 0
	MinApplicationID = 1
	MaxApplicationID = MaxCoresPerChip - 1
)

// Placement hash (spec.md §3, §4.E). A and C are the linear-congruential
// constants used by both the node_id-keyed and physical_id-keyed tables,
// and by the interrupt-hash builder (spec.md §4.F), all three sharing
// the one `h(n) = n*A + C` family.
const (
	PlacementHashA = 1103515245
	PlacementHashC = 12345
)

// Hash is the `h(n) = n*A + C` function shared by the placement tables
// and the interrupt-vector hash. Callers reduce modulo their own table
// size.
func Hash(n uint32) uint32 {
	return n*PlacementHashA + PlacementHashC
}

// Routing.
const (
	// PortBits is the number of low bits of a routing key reserved for
	// port/destination discrimination; log2(MaxVirtualPorts) rounded up.
	PortBits = 3

	MaxRoutingTableEntries = 1024

	// Outgoing link bits (bits 0-5 of a routing entry's route mask).
	LinkEast      = 1 << 0
	LinkNorthEast = 1 << 1
	LinkNorth     = 1 << 2
	LinkWest      = 1 << 3
	LinkSouthWest = 1 << 4
	LinkSouth     = 1 << 5

	// CoreDeliveryBit returns the per-core local-delivery bit for the
	// given application core id (bits 6-23 of a routing entry).
)

// CoreDeliveryBit is the route-mask bit that delivers a packet to the
// given core on the local chip.
func CoreDeliveryBit(coreID uint32) uint32 {
	return 1 << (6 + coreID)
}

// RoutingKey packs a source node id into a chip routing table key.
func RoutingKey(srcNodeID uint32) uint32 {
	return srcNodeID << PortBits
}

// Interrupt hash / log records.
const (
	// MaxLogItems is the fixed arity of a RuntimeLogItem's log_globals
	// array. The original loader asserted this should be 10 (it backs
	// the printf-arity assumption that snapshots may carry up to 10
	// logged values); log declarations are additionally capped at 5
	// items apiece by convention (see MaxLogItemsPerLog).
	MaxLogItems        = 10
	MaxLogItemsPerLog  = 5
	MaxLogItemsPerSnap = MaxLogItems

	MaxStringSize = 128 // format/filename strings, including NUL
)

// CheckLogItemsInvariant reproduces the original loader's startup
// sanity check ("Loader MAX_LOG_ITEMS %d should be 10"). It never
// fails the build; it returns a non-empty warning string if the
// constant has drifted so a caller can log it, the way the original
// printed a warning and kept going.
func CheckLogItemsInvariant() string {
	if MaxLogItems != 10 {
		return fmt.Sprintf("warning: MaxLogItems %d should be 10", MaxLogItems)
	}
	return ""
}

// Host-side ceilings on the linker file, independent of anything the
// device enforces (original_source/main.c).
const (
	MaxGVWords        = 10000
	MaxInterruptItems = 1000
	MaxLogsPerNode    = 10
)

// On-chip per-core memory layout (spec.md §3). DTCMStart is the base of
// the per-core DTCM data region in that core's own local address space;
// every other per-core offset is relative to it.
const (
	DTCMStart = 0x00400000

	// SystemReservedWords is the size, in words, of the fixed
	// system-global table at the front of every core's layout. It must
	// be large enough to hold every index named in spec.md §6 (the
	// highest is 49).
	SystemReservedWords = 64
	SystemReservedBytes = SystemReservedWords * 4

	// DTCMDataMax bounds gvusersize+reserved+intv+logs+snapshots, in
	// bytes, for a single core's data region.
	DTCMDataMax = 0x00008000

	// DTCMProgramStart is where the prototype object image is loaded;
	// it lives outside the data region above.
	DTCMProgramStart = 0x00000000

	// EV region: evRegionBase + coreID*evStride gives the per-core
	// external-vector window within the shared EV bank.
	evRegionBase = 0x00500000
	evStride     = 0x00001000

	// EVSharedStart is the chip-wide shared area written once, by the
	// loader, to core 1 of every chip only.
	EVSharedStart = 0x00600000

	// Scratch address used for the APLX-FILL zeroing descriptor.
	APLXScratchAddr = 0xf5000000
)

// EVStart returns the byte address of the external-vector region for
// the given core, in that core's local address space.
func EVStart(coreID uint32) uint32 {
	return evRegionBase + coreID*evStride
}

// SystemGlobalAddress returns the byte address of system-global word
// index idx, within the system-reserved area at the front of the
// per-core layout.
func SystemGlobalAddress(idx uint32) uint32 {
	return DTCMStart + idx*4
}

// System-global word indices (spec.md §6).
const (
	SysGVSize             = 0
	SysIntvHashSize       = 5
	SysLogCount           = 8
	SysSnapshotCount      = 9
	SysDebugMode          = 24
	SysLogDataEnd         = 25 // host-read only; device writes it
	SysIntvHashStartAddr  = 40
	SysLogsStartAddr      = 43
	SysSnapshotsStartAddr = 44
	SysChipCount          = 48
	SysNodeLogicalID      = 49
)

// RuntimeLogItemSize is sizeof(RuntimeLogItem): six u32 header fields
// (handle, start_time, end_time, interval, log_items, log_count)
// plus a fixed MaxLogItems-word log_globals array.
const RuntimeLogItemSize = 6*4 + MaxLogItems*4

// InterruptSlotSize is sizeof one interrupt-hash slot:
// {src_node, code_offset, count}, three u32 fields.
const InterruptSlotSize = 12

// NextPow2 returns the smallest power of two >= n, with NextPow2(0) == 1.
func NextPow2(n uint32) uint32 {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

// SDP network parameters (spec.md §4.B/§4.C/§6).
const (
	ControlPort = 17893
	DebugPort   = 17892
	BootPort    = 54321

	// BootBlockBytes is SPINNAKER_BOOT_DATA_MAX: the fixed payload size
	// of one boot DATA packet. BootMaxBlocks bounds total boot image
	// size at 32768 bytes.
	BootBlockBytes = 1024
	BootMaxBlocks  = 32

	// SdpTimeout bounds a single control request: send, then wait for
	// exactly one reply datagram before giving up (no retry).
	SdpTimeout = 1 * time.Second

	// CmdDelay throttles consecutive control requests so a burst of
	// memory writes doesn't overrun the monitor core's receive queue.
	CmdDelay = 10 * time.Millisecond

	// MaxWriteChunk is the largest single CMD_WRITE payload, in bytes,
	// a request datagram carries alongside its header.
	MaxWriteChunk = 256

	// CmdVersion is the SCP version command (opcode 0).
	CmdVersion = 0
)

// PackPhysicalID packs a (chip_x, chip_y, core_id) triple into the
// 24-bit physical_id used as the second placement-hash key.
func PackPhysicalID(x, y, core uint32) uint32 {
	return (x << 16) | (y << 8) | core
}

// UnpackPhysicalID reverses PackPhysicalID.
func UnpackPhysicalID(id uint32) (x, y, core uint32) {
	return (id >> 16) & 0xff, (id >> 8) & 0xff, id & 0xff
}
