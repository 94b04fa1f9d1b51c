package placement

import (
	"testing"

	"github.com/xyproto/damsonloader/internal/linker"
)

func TestBuildInterruptHashEmpty(t *testing.T) {
	slots, err := BuildInterruptHash(nil)
	if err != nil {
		t.Fatalf("BuildInterruptHash: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("len(slots) = %d, want 2 (next_pow2(0)+1: timer slot plus one probe slot)", len(slots))
	}
	if slots[0].Occupied {
		t.Fatal("slot 0 occupied with no timer subscription")
	}
}

// S4: a timer subscription (src_node == 0) always lands in slot 0, and
// repeated timer entries count but keep only the last code_offset.
func TestBuildInterruptHashTimer(t *testing.T) {
	intv := []linker.Interrupt{
		{SrcNode: 0, CodeOffset: 100},
		{SrcNode: 0, CodeOffset: 200},
	}
	slots, err := BuildInterruptHash(intv)
	if err != nil {
		t.Fatalf("BuildInterruptHash: %v", err)
	}
	if !slots[0].Occupied || slots[0].SrcNode != 0 {
		t.Fatalf("slot 0 = %+v, want occupied timer slot", slots[0])
	}
	if slots[0].CodeOffset != 200 {
		t.Fatalf("slot 0 CodeOffset = %d, want 200 (last writer wins)", slots[0].CodeOffset)
	}
	if slots[0].Count != 2 {
		t.Fatalf("slot 0 Count = %d, want 2", slots[0].Count)
	}
}

func TestBuildInterruptHashNonTimer(t *testing.T) {
	intv := []linker.Interrupt{{SrcNode: 5, CodeOffset: 42}}
	slots, err := BuildInterruptHash(intv)
	if err != nil {
		t.Fatalf("BuildInterruptHash: %v", err)
	}

	found := false
	for i, s := range slots {
		if i == 0 {
			continue
		}
		if s.Occupied && s.SrcNode == 5 {
			found = true
			if s.CodeOffset != 42 {
				t.Fatalf("slot %d CodeOffset = %d, want 42", i, s.CodeOffset)
			}
		}
	}
	if !found {
		t.Fatal("src_node 5 not found in any non-timer slot")
	}
}

func TestBuildInterruptHashRepeatedSourceCounts(t *testing.T) {
	intv := []linker.Interrupt{
		{SrcNode: 3, CodeOffset: 10},
		{SrcNode: 3, CodeOffset: 20},
	}
	slots, err := BuildInterruptHash(intv)
	if err != nil {
		t.Fatalf("BuildInterruptHash: %v", err)
	}
	var total uint32
	for i, s := range slots {
		if i == 0 {
			continue
		}
		if s.Occupied && s.SrcNode == 3 {
			total += s.Count
		}
	}
	if total != 2 {
		t.Fatalf("total Count for src_node 3 = %d, want 2", total)
	}
}

// The hash is sized at next_pow2(2*len(intv))+1, twice the occupancy it
// actually needs, so a realistic subscription list never overflows even
// with many distinct sources.
func TestBuildInterruptHashManyDistinctSourcesNeverOverflows(t *testing.T) {
	intv := make([]linker.Interrupt, 0, 64)
	for i := uint32(1); i <= 64; i++ {
		intv = append(intv, linker.Interrupt{SrcNode: i, CodeOffset: i})
	}
	slots, err := BuildInterruptHash(intv)
	if err != nil {
		t.Fatalf("BuildInterruptHash: %v", err)
	}

	occupied := 0
	for i, s := range slots {
		if i == 0 {
			continue
		}
		if s.Occupied {
			occupied++
		}
	}
	if occupied != 64 {
		t.Fatalf("occupied non-timer slots = %d, want 64", occupied)
	}
}
