package placement

import (
	"github.com/xyproto/damsonloader/internal/damsonerr"
	"github.com/xyproto/damsonloader/internal/damsonrt"
	"github.com/xyproto/damsonloader/internal/linker"
)

// Map is the placement planner's output: the bidirectional node_id <->
// physical_id mapping, the per-chip core-occupancy bitmask, and the
// ownership of each node's log/snapshot declarations (released only at
// shutdown, after drain — spec.md §3 "Lifecycles").
type Map struct {
	byNode *openTable
	byPhys *openTable

	gridW, gridH uint32
	coreMap      map[chipKey]uint32 // bit i set iff core i is populated

	logs      map[uint32][]linker.LogRecord
	snapshots map[uint32][]linker.LogRecord
}

type chipKey struct{ x, y uint32 }

// New builds an empty Map sized for nodeCount nodes (spec.md §3: each
// table is sized 2*node_count).
func New(nodeCount int, gridW, gridH uint32) *Map {
	size := uint32(2 * nodeCount)
	if size == 0 {
		size = 2
	}
	return &Map{
		byNode:    newOpenTable(size, func(e Entry) uint32 { return e.NodeID }),
		byPhys:    newOpenTable(size, func(e Entry) uint32 { return e.PhysicalID }),
		gridW:     gridW,
		gridH:     gridH,
		coreMap:   make(map[chipKey]uint32),
		logs:      make(map[uint32][]linker.LogRecord),
		snapshots: make(map[uint32][]linker.LogRecord),
	}
}

// insert records the placement of nodeID at (x,y,core) in both tables
// and sets the corresponding core-map bit. It is an internal helper;
// Place is the public entry point that drives the whole linear scan.
func (m *Map) insert(nodeID, x, y, core uint32) error {
	physID := damsonrt.PackPhysicalID(x, y, core)
	e := Entry{NodeID: nodeID, PhysicalID: physID, ChipX: x, ChipY: y, Core: core}
	if !m.byNode.insert(e) {
		return damsonerr.New(damsonerr.MappingHashOverflow, "node_id table full inserting node %d", nodeID)
	}
	if !m.byPhys.insert(e) {
		return damsonerr.New(damsonerr.MappingHashOverflow, "physical_id table full inserting node %d", nodeID)
	}
	m.coreMap[chipKey{x, y}] |= 1 << core
	return nil
}

// ByNode looks up a node's placement.
func (m *Map) ByNode(nodeID uint32) (Entry, bool) { return m.byNode.lookup(nodeID) }

// ByPhysical looks up the node placed at a packed physical_id.
func (m *Map) ByPhysical(physID uint32) (Entry, bool) { return m.byPhys.lookup(physID) }

// CoreMap returns the bitmask of populated application cores for chip
// (x,y). Bit i set means core i is populated (spec.md invariant 6).
func (m *Map) CoreMap(x, y uint32) uint32 { return m.coreMap[chipKey{x, y}] }

// GridW and GridH report the fabric shape this Map was built for.
func (m *Map) GridW() uint32 { return m.gridW }
func (m *Map) GridH() uint32 { return m.gridH }

// SetLogs and SetSnapshots record ownership of a node's declarations,
// consumed by the supervisor at drain time and released afterwards.
func (m *Map) SetLogs(nodeID uint32, logs []linker.LogRecord)           { m.logs[nodeID] = logs }
func (m *Map) SetSnapshots(nodeID uint32, snapshots []linker.LogRecord) { m.snapshots[nodeID] = snapshots }

// Logs and Snapshots return a node's declarations. Calling either after
// Release(nodeID) returns nil: the declaration arrays are owned by the
// map entry and freed at shutdown, after drain (spec.md §3 Lifecycles).
func (m *Map) Logs(nodeID uint32) []linker.LogRecord      { return m.logs[nodeID] }
func (m *Map) Snapshots(nodeID uint32) []linker.LogRecord { return m.snapshots[nodeID] }

// Release frees a node's log/snapshot declarations. Call only after
// that node's core has been fully drained.
func (m *Map) Release(nodeID uint32) {
	delete(m.logs, nodeID)
	delete(m.snapshots, nodeID)
}

// Place runs the linear allocator of spec.md §4.E over nodes, in file
// order, and returns the resulting Map.
//
// The wrap check is `core > 16`, tested strictly after incrementing
// core for the node about to be placed. Because the check fires before
// the node is ever assigned the just-incremented value, a node that
// would land on core 17 is instead wrapped onto core 1 of the next
// chip — core 17 of every chip is never actually handed out. This is
// spec.md §9's first Open Question; it is preserved here exactly as
// specified, not "fixed" to a `> 17` test that would hand out core 17.
func Place(nodes []*linker.Node, gridW, gridH uint32) (*Map, error) {
	m := New(len(nodes), gridW, gridH)

	var x, y, core uint32
	for _, n := range nodes {
		core++
		if core > 16 {
			core = 1
			x++
		}
		if x > gridW-1 {
			x = 0
			y++
		}
		if y > gridH-1 {
			return nil, damsonerr.New(damsonerr.OutOfCores,
				"ran out of cores placing node %d (grid %dx%d)", n.NodeID, gridW, gridH)
		}

		if err := m.insert(n.NodeID, x, y, core); err != nil {
			return nil, err
		}
		m.SetLogs(n.NodeID, n.Logs)
		m.SetSnapshots(n.NodeID, n.Snapshots)
	}

	return m, nil
}
