package image

import (
	"fmt"
	"testing"

	"github.com/xyproto/damsonloader/internal/linker"
	"github.com/xyproto/damsonloader/internal/placement"
	"github.com/xyproto/damsonloader/internal/routing"
)

// memClient is an in-memory fake implementing Client, keyed by
// (x,y,core), simulating a perfectly cooperative fabric so LoadNode's
// write sequence and CheckNodeMemory's read-back can be tested without
// a socket.
type memClient struct {
	mem     map[[3]byte]map[uint32]byte
	started []string
}

func newMemClient() *memClient {
	return &memClient{mem: make(map[[3]byte]map[uint32]byte)}
}

func (m *memClient) coreMem(x, y, core byte) map[uint32]byte {
	k := [3]byte{x, y, core}
	if m.mem[k] == nil {
		m.mem[k] = make(map[uint32]byte)
	}
	return m.mem[k]
}

func (m *memClient) WriteMemory(x, y byte, core byte, addr uint32, data []byte) error {
	mem := m.coreMem(x, y, core)
	for i, b := range data {
		mem[addr+uint32(i)] = b
	}
	return nil
}

func (m *memClient) WriteNonZeroMemory(x, y byte, core byte, addr uint32, words []uint32) error {
	return m.WriteMemory(x, y, core, addr, wordsToBytes(words))
}

func (m *memClient) StartApplicationAt(x, y byte, core byte, entryPoint uint32) error {
	m.started = append(m.started, fmt.Sprintf("%d,%d,%d", x, y, core))
	return nil
}

func (m *memClient) ReadMemory(x, y byte, core byte, addr uint32, n int) ([]byte, error) {
	mem := m.coreMem(x, y, core)
	out := make([]byte, n)
	for i := range out {
		out[i] = mem[addr+uint32(i)]
	}
	return out, nil
}

func testNode() *linker.Node {
	return &linker.Node{
		NodeID:        1,
		PrototypeName: "proto",
		GV:            []int32{0, 10, 20, -30},
		EV:            []int32{1, 2},
		Interrupts:    []linker.Interrupt{{SrcNode: 2, CodeOffset: 40}},
		Logs: []linker.LogRecord{
			{Handle: 0, Start: 0, End: 100, Interval: 10, LogItems: 1, LogGlobals: []uint32{0x1000}, Format: "%d"},
		},
	}
}

func testPlacement(t *testing.T, node *linker.Node) (*placement.Map, *routing.Table) {
	t.Helper()
	m, err := placement.Place([]*linker.Node{node}, 4, 4)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	table := routing.NewTable()
	return m, table
}

func fakeLoader(name string) ([]byte, uint32, error) {
	return []byte{0xde, 0xad, 0xbe, 0xef}, 0, nil
}

func TestLoadNodeThenCheckNodeMemoryRoundTrips(t *testing.T) {
	node := testNode()
	m, table := testPlacement(t, node)

	c := newMemClient()
	if err := LoadNode(c, node, m, table, 4, 4, false, fakeLoader); err != nil {
		t.Fatalf("LoadNode: %v", err)
	}

	ok, mismatches, err := CheckNodeMemory(c, node, m, 4, 4)
	if err != nil {
		t.Fatalf("CheckNodeMemory: %v", err)
	}
	if !ok {
		t.Fatalf("expected clean validation, got mismatches: %v", mismatches)
	}
}

func TestCheckNodeMemoryCatchesCorruption(t *testing.T) {
	node := testNode()
	m, table := testPlacement(t, node)

	c := newMemClient()
	if err := LoadNode(c, node, m, table, 4, 4, false, fakeLoader); err != nil {
		t.Fatalf("LoadNode: %v", err)
	}

	placed, _ := m.ByNode(node.NodeID)
	l := Compute(node, placed.Core)
	c.WriteMemory(byte(placed.ChipX), byte(placed.ChipY), byte(placed.Core), l.GVUserStart, []byte{0xff, 0xff, 0xff, 0xff})

	ok, mismatches, err := CheckNodeMemory(c, node, m, 4, 4)
	if err != nil {
		t.Fatalf("CheckNodeMemory: %v", err)
	}
	if ok {
		t.Fatal("expected corruption to be detected")
	}
	if len(mismatches) == 0 {
		t.Fatal("expected at least one mismatch")
	}
}

func TestLoadNodeRejectsOversizedDTCM(t *testing.T) {
	node := testNode()
	node.GV = make([]int32, 100000) // drives DTCMDataSize past the limit
	m, table := testPlacement(t, node)

	c := newMemClient()
	err := LoadNode(c, node, m, table, 4, 4, false, fakeLoader)
	if err == nil {
		t.Fatal("expected DtcmTooBig error")
	}
}
