package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xyproto/damsonloader/internal/damsonrt"
	"github.com/xyproto/damsonloader/internal/linker"
	"github.com/xyproto/damsonloader/internal/placement"
)

type recordingStarter struct {
	started [][3]byte
}

func (r *recordingStarter) StartApplicationAt(x, y byte, core byte, entryPoint uint32) error {
	if entryPoint != damsonrt.DTCMProgramStart {
		panic("unexpected entry point")
	}
	r.started = append(r.started, [3]byte{x, y, core})
	return nil
}

func TestStartApplicationsReversedOrder(t *testing.T) {
	nodes := []*linker.Node{{NodeID: 1}, {NodeID: 2}, {NodeID: 3}}
	m, err := placement.Place(nodes, 2, 1)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}

	s := &recordingStarter{}
	if err := startApplications(s, m, 2, 1); err != nil {
		t.Fatalf("startApplications: %v", err)
	}

	// nodes land at (0,0,1), (0,0,2), (0,0,3): placement fills cores
	// before moving to the next chip. Reversed order visits core 16
	// down to 1 within a chip.
	want := [][3]byte{{0, 0, 3}, {0, 0, 2}, {0, 0, 1}}
	if len(s.started) != len(want) {
		t.Fatalf("started = %v, want %v", s.started, want)
	}
	for i, w := range want {
		if s.started[i] != w {
			t.Fatalf("started[%d] = %v, want %v", i, s.started[i], w)
		}
	}
}

func TestLoadPrototypeReadsFileVerbatim(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prototype.bin")
	want := []byte{0x01, 0x02, 0x03, 0x04}
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, entry, err := loadPrototype(path)
	if err != nil {
		t.Fatalf("loadPrototype: %v", err)
	}
	if entry != damsonrt.DTCMProgramStart {
		t.Fatalf("entry = %d, want %d", entry, damsonrt.DTCMProgramStart)
	}
	if string(data) != string(want) {
		t.Fatalf("data = %v, want %v", data, want)
	}
}

func TestLoadPrototypeMissingFile(t *testing.T) {
	if _, _, err := loadPrototype(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Fatal("expected error for missing prototype file")
	}
}
