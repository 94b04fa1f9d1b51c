package image

import "github.com/xyproto/damsonloader/internal/placement"

// marshalIntvHash packs a built interrupt hash into the three-word
// {src_node, code_offset, count} slots the device reads (spec.md §3).
func marshalIntvHash(slots []placement.InterruptSlot) []uint32 {
	out := make([]uint32, len(slots)*3)
	for i, s := range slots {
		out[i*3] = s.SrcNode
		out[i*3+1] = s.CodeOffset
		out[i*3+2] = s.Count
	}
	return out
}
