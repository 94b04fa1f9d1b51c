// Package routing synthesizes per-chip XY routing tables (spec.md
// §4.G): a dimension-ordered walk from a source chip to a destination
// chip, coalescing entries that share a (chip, key) pair by OR-ing
// their route bitmasks.
package routing

import (
	"github.com/xyproto/damsonloader/internal/damsonerr"
	"github.com/xyproto/damsonloader/internal/damsonrt"
	"github.com/xyproto/damsonloader/internal/placement"
)

// Entry is one {key, route} routing-table row.
type Entry struct {
	Key   uint32
	Route uint32
}

type chipKey struct{ x, y uint32 }

// Table holds every chip's routing table, keyed by (x,y).
type Table struct {
	chips map[chipKey][]Entry
}

// NewTable returns an empty routing table set.
func NewTable() *Table {
	return &Table{chips: make(map[chipKey][]Entry)}
}

// Chip returns chip (x,y)'s routing entries, in insertion order.
func (t *Table) Chip(x, y uint32) []Entry {
	return t.chips[chipKey{x, y}]
}

// emit installs or coalesces one routing entry at chip (x,y).
func (t *Table) emit(x, y, key, route uint32) error {
	ck := chipKey{x, y}
	entries := t.chips[ck]
	for i := range entries {
		if entries[i].Key == key {
			entries[i].Route |= route
			t.chips[ck] = entries
			return nil
		}
	}
	if len(entries) >= damsonrt.MaxRoutingTableEntries {
		return damsonerr.New(damsonerr.RoutingTableOverflow, "chip (%d,%d) routing table overflow", x, y)
	}
	t.chips[ck] = append(entries, Entry{Key: key, Route: route})
	return nil
}

// Route walks from srcNode's chip to dstNode's chip (spec.md §4.G
// table), emitting a link-bit entry at every visited chip excluding
// the destination, and a per-core delivery-bit entry at the
// destination. The walk assumes a non-toroidal grid (no wrap-around).
//
// The Δx≠0/Δy-opposite-sign cases fall back to an L-shaped path with no
// synthesized diagonal (spec.md §9's second Open Question); that
// behavior is preserved here exactly as specified.
func Route(m *placement.Map, srcNodeID, dstNodeID uint32, table *Table) error {
	if srcNodeID == 0 {
		return nil // the timer is local, never routed
	}

	src, ok := m.ByNode(srcNodeID)
	if !ok {
		return damsonerr.New(damsonerr.OutOfCores, "route: unknown source node %d", srcNodeID)
	}
	dst, ok := m.ByNode(dstNodeID)
	if !ok {
		return damsonerr.New(damsonerr.OutOfCores, "route: unknown destination node %d", dstNodeID)
	}

	key := damsonrt.RoutingKey(srcNodeID)
	x, y := src.ChipX, src.ChipY

	for x != dst.ChipX || y != dst.ChipY {
		fromX, fromY := x, y
		var link uint32
		switch {
		case x < dst.ChipX && y == dst.ChipY:
			link = damsonrt.LinkEast
			x++
		case x > dst.ChipX && y == dst.ChipY:
			link = damsonrt.LinkWest
			x--
		case x == dst.ChipX && y < dst.ChipY:
			link = damsonrt.LinkNorth
			y++
		case x == dst.ChipX && y > dst.ChipY:
			link = damsonrt.LinkSouth
			y--
		case x < dst.ChipX && y < dst.ChipY:
			link = damsonrt.LinkNorthEast
			x++
			y++
		case x > dst.ChipX && y > dst.ChipY:
			link = damsonrt.LinkSouthWest
			x--
			y--
		case x < dst.ChipX && y > dst.ChipY:
			link = damsonrt.LinkEast
			x++
		case x > dst.ChipX && y < dst.ChipY:
			link = damsonrt.LinkWest
			x--
		}

		if err := table.emit(fromX, fromY, key, link); err != nil {
			return err
		}
	}

	deliveryBit := damsonrt.CoreDeliveryBit(dst.Core)
	return table.emit(dst.ChipX, dst.ChipY, key, deliveryBit)
}
