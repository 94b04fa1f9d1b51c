package placement

import (
	"github.com/xyproto/damsonloader/internal/damsonerr"
	"github.com/xyproto/damsonloader/internal/damsonrt"
	"github.com/xyproto/damsonloader/internal/linker"
)

// InterruptSlot is one entry of a per-core interrupt hash (spec.md §3,
// §4.F). Slot 0 of the returned slice is always the reserved timer
// slot (SrcNode == 0).
type InterruptSlot struct {
	SrcNode    uint32
	CodeOffset uint32
	Count      uint32
	Occupied   bool
}

// BuildInterruptHash builds one core's interrupt hash from its
// subscriptions, sized `next_pow2(2*len(intv)) + 1` with slot 0
// reserved for the timer (spec.md §4.F).
func BuildInterruptHash(intv []linker.Interrupt) ([]InterruptSlot, error) {
	size := damsonrt.NextPow2(2*uint32(len(intv))) + 1
	slots := make([]InterruptSlot, size)

	for _, iv := range intv {
		if iv.SrcNode == 0 {
			// Timer: last writer wins the code offset, but every
			// occurrence is counted (spec.md §4.F).
			slots[0].SrcNode = 0
			slots[0].CodeOffset = iv.CodeOffset
			slots[0].Count++
			slots[0].Occupied = true
			continue
		}

		if size <= 1 {
			return nil, damsonerr.New(damsonerr.InterruptHashOverflow, "interrupt hash has no non-timer slots")
		}
		probeSize := size - 1
		start := damsonrt.Hash(iv.SrcNode)%probeSize + 1

		placed := false
		for i := uint32(0); i < probeSize; i++ {
			idx := (start-1+i)%probeSize + 1
			s := &slots[idx]
			if !s.Occupied {
				s.SrcNode = iv.SrcNode
				s.CodeOffset = iv.CodeOffset
				s.Count = 1
				s.Occupied = true
				placed = true
				break
			}
			if s.SrcNode == iv.SrcNode {
				// Same source hit a second time on its slot: count it,
				// first writer's code_offset stands.
				s.Count++
				placed = true
				break
			}
		}
		if !placed {
			return nil, damsonerr.New(damsonerr.InterruptHashOverflow,
				"interrupt hash overflow placing src_node %d", iv.SrcNode)
		}
	}

	return slots, nil
}
