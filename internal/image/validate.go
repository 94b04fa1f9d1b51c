package image

import (
	"fmt"

	"github.com/xyproto/damsonloader/internal/damsonerr"
	"github.com/xyproto/damsonloader/internal/damsonrt"
	"github.com/xyproto/damsonloader/internal/linker"
	"github.com/xyproto/damsonloader/internal/placement"
)

// Mismatch is one validation failure from CheckNodeMemory: what field,
// at what index, host value vs. device value (spec.md §4.H's optional
// post-load read-back check, gated by -validate per SPEC_FULL.md §7).
type Mismatch struct {
	Field  string
	Index  int
	Host   uint32
	Device uint32
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s[%d]: host %d != device %d", m.Field, m.Index, m.Host, m.Device)
}

// CheckNodeMemory re-reads node's written regions and compares them
// against the host's own copy, exactly mirroring
// original_source/loader.c's CheckNodeMemory. It never mutates state;
// call it only after LoadNode has completed for this node.
func CheckNodeMemory(c Client, node *linker.Node, m *placement.Map, gridW, gridH uint32) (bool, []Mismatch, error) {
	placed, ok := m.ByNode(node.NodeID)
	if !ok {
		return false, nil, damsonerr.New(damsonerr.OutOfCores, "node %d was never placed", node.NodeID)
	}
	x, y, core := byte(placed.ChipX), byte(placed.ChipY), byte(placed.Core)
	l := Compute(node, placed.Core)

	var bad []Mismatch

	gvBytes, err := c.ReadMemory(x, y, core, l.GVUserStart, len(node.GV)*4)
	if err != nil {
		return false, nil, err
	}
	gvWords := bytesToWords(gvBytes)
	for i, want := range node.GV {
		if gvWords[i] != uint32(want) {
			bad = append(bad, Mismatch{Field: "gv", Index: i, Host: uint32(want), Device: gvWords[i]})
		}
	}

	evBytes, err := c.ReadMemory(x, y, core, l.EVStart+4, len(node.EV)*4)
	if err != nil {
		return false, nil, err
	}
	evWords := bytesToWords(evBytes)
	for i, want := range node.EV {
		if evWords[i] != uint32(want) {
			bad = append(bad, Mismatch{Field: "ev", Index: i, Host: uint32(want), Device: evWords[i]})
		}
	}

	slots, err := placement.BuildInterruptHash(node.Interrupts)
	if err != nil {
		return false, nil, err
	}
	intvBytes, err := c.ReadMemory(x, y, core, l.IntvStart, int(l.IntvHashSizeBytes))
	if err != nil {
		return false, nil, err
	}
	intvWords := bytesToWords(intvBytes)
	for i, s := range slots {
		if intvWords[i*3] != s.SrcNode {
			bad = append(bad, Mismatch{Field: "intv.src_node", Index: i, Host: s.SrcNode, Device: intvWords[i*3]})
		}
	}

	if placed.Core == 1 {
		chipBad, err := checkSharedChipArea(c, x, y, m, gridW, gridH)
		if err != nil {
			return false, nil, err
		}
		bad = append(bad, chipBad...)
	}

	logBad, err := checkLogItems(c, x, y, core, l.LogsStart, node.Logs)
	if err != nil {
		return false, nil, err
	}
	bad = append(bad, logBad...)

	snapBad, err := checkLogItems(c, x, y, core, l.SnapshotsStart, node.Snapshots)
	if err != nil {
		return false, nil, err
	}
	bad = append(bad, snapBad...)

	return len(bad) == 0, bad, nil
}

func checkSharedChipArea(c Client, x, y byte, m *placement.Map, gridW, gridH uint32) ([]Mismatch, error) {
	var bad []Mismatch
	count := chipCount(gridW, gridH)
	raw, err := c.ReadMemory(x, y, 1, damsonrt.EVSharedStart, int(count)*4)
	if err != nil {
		return nil, err
	}
	deviceMap := bytesToWords(raw)
	for cx := uint32(0); cx < gridW; cx++ {
		for cy := uint32(0); cy < gridH; cy++ {
			idx := chipIndex(cx, cy, gridW)
			want := m.CoreMap(cx, cy)
			if deviceMap[idx] != want {
				bad = append(bad, Mismatch{Field: "core_map", Index: int(idx), Host: want, Device: deviceMap[idx]})
			}
		}
	}
	return bad, nil
}

func checkLogItems(c Client, x, y byte, core byte, start uint32, records []linker.LogRecord) ([]Mismatch, error) {
	var bad []Mismatch
	for i, r := range records {
		addr := start + uint32(i)*damsonrt.RuntimeLogItemSize
		raw, err := c.ReadMemory(x, y, core, addr, damsonrt.RuntimeLogItemSize)
		if err != nil {
			return nil, err
		}
		words := bytesToWords(raw)
		if words[0] != r.Handle {
			bad = append(bad, Mismatch{Field: "log.handle", Index: i, Host: r.Handle, Device: words[0]})
		}
		if words[1] != r.Start {
			bad = append(bad, Mismatch{Field: "log.start_time", Index: i, Host: r.Start, Device: words[1]})
		}
		if words[2] != r.End {
			bad = append(bad, Mismatch{Field: "log.end_time", Index: i, Host: r.End, Device: words[2]})
		}
		if words[3] != r.Interval {
			bad = append(bad, Mismatch{Field: "log.interval", Index: i, Host: r.Interval, Device: words[3]})
		}
		if words[4] != r.LogItems {
			bad = append(bad, Mismatch{Field: "log.log_items", Index: i, Host: r.LogItems, Device: words[4]})
		}
	}
	return bad, nil
}
