package routing

import (
	"testing"

	"github.com/xyproto/damsonloader/internal/damsonrt"
	"github.com/xyproto/damsonloader/internal/linker"
	"github.com/xyproto/damsonloader/internal/placement"
)

// S2: a direct east-west route between two adjacent chips emits one
// link entry at the source chip and one delivery entry at the
// destination.
func TestRouteDirectEastWest(t *testing.T) {
	// Node 1 takes core 1 of chip (0,0); 15 filler nodes take cores 2-16
	// and the 16th wraps onto (1,0,1), so node 2 lands at (1,0,2).
	nodes := []*linker.Node{{NodeID: 1}}
	for i := 0; i < 16; i++ {
		nodes = append(nodes, &linker.Node{NodeID: uint32(i + 200)})
	}
	nodes = append(nodes, &linker.Node{NodeID: 2})
	m, err := placement.Place(nodes, 2, 1)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}

	src, _ := m.ByNode(1)
	dst, _ := m.ByNode(2)
	if src.ChipX != 0 || dst.ChipX != 1 {
		t.Fatalf("expected node 1 on chip 0 and node 2 on chip 1, got %+v and %+v", src, dst)
	}

	table := NewTable()
	if err := Route(m, 1, 2, table); err != nil {
		t.Fatalf("Route: %v", err)
	}

	key := damsonrt.RoutingKey(1)
	srcEntries := table.Chip(0, 0)
	if len(srcEntries) != 1 || srcEntries[0].Key != key || srcEntries[0].Route != damsonrt.LinkEast {
		t.Fatalf("source chip entries = %+v, want one LinkEast entry keyed %d", srcEntries, key)
	}

	dstEntries := table.Chip(1, 0)
	wantDelivery := damsonrt.CoreDeliveryBit(dst.Core)
	if len(dstEntries) != 1 || dstEntries[0].Key != key || dstEntries[0].Route != wantDelivery {
		t.Fatalf("destination chip entries = %+v, want one delivery entry %d", dstEntries, wantDelivery)
	}
}

func TestRouteSameChipOnlyDelivery(t *testing.T) {
	nodes := []*linker.Node{{NodeID: 1}, {NodeID: 2}}
	m, err := placement.Place(nodes, 1, 1)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}

	table := NewTable()
	if err := Route(m, 1, 2, table); err != nil {
		t.Fatalf("Route: %v", err)
	}

	dst, _ := m.ByNode(2)
	entries := table.Chip(0, 0)
	want := damsonrt.CoreDeliveryBit(dst.Core)
	if len(entries) != 1 || entries[0].Route != want {
		t.Fatalf("entries = %+v, want one delivery entry %d", entries, want)
	}
}

func TestRouteTimerIsNoOp(t *testing.T) {
	nodes := []*linker.Node{{NodeID: 1}}
	m, err := placement.Place(nodes, 1, 1)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	table := NewTable()
	if err := Route(m, 0, 1, table); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if entries := table.Chip(0, 0); len(entries) != 0 {
		t.Fatalf("entries = %+v, want none (timer never routed)", entries)
	}
}

// Two routes sharing a source node share a routing key, so their entry
// at a common chip coalesces into one row instead of two.
func TestRouteCoalescesRepeatedRouteAtSameChip(t *testing.T) {
	nodes := []*linker.Node{{NodeID: 1}}
	for i := 0; i < 16; i++ {
		nodes = append(nodes, &linker.Node{NodeID: uint32(i + 200)})
	}
	nodes = append(nodes, &linker.Node{NodeID: 2}, &linker.Node{NodeID: 3})
	m, err := placement.Place(nodes, 2, 1)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}

	table := NewTable()
	if err := Route(m, 1, 2, table); err != nil {
		t.Fatalf("Route node 1->2: %v", err)
	}
	if err := Route(m, 1, 3, table); err != nil {
		t.Fatalf("Route node 1->3: %v", err)
	}

	// Both destinations share the same source, hence the same routing
	// key, so the source chip's entry is a single coalesced row.
	entries := table.Chip(0, 0)
	if len(entries) != 1 {
		t.Fatalf("source chip entries = %+v, want exactly one coalesced row", entries)
	}
}

func TestRouteUnknownNode(t *testing.T) {
	nodes := []*linker.Node{{NodeID: 1}}
	m, err := placement.Place(nodes, 1, 1)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	table := NewTable()
	if err := Route(m, 1, 999, table); err == nil {
		t.Fatal("expected error routing to an unplaced destination node")
	}
}
