package sdp

import "testing"

func TestRequestHeaderRoundTrip(t *testing.T) {
	req := NewRequest(chipCPU(1, 2), 5, CmdWrite, 0x1000, 64, TypeByte)
	b := req.Marshal()
	if len(b) != RequestHeaderSize {
		t.Fatalf("marshaled request is %d bytes, want %d", len(b), RequestHeaderSize)
	}
	if b[0] != DefaultTTO {
		t.Fatalf("tto = %d, want %d", b[0], DefaultTTO)
	}
	if b[4] != 5 {
		t.Fatalf("dst_core = %d, want 5", b[4])
	}
	gotArg1 := uint32(b[14]) | uint32(b[15])<<8 | uint32(b[16])<<16 | uint32(b[17])<<24
	if gotArg1 != 0x1000 {
		t.Fatalf("arg1 = 0x%x, want 0x1000", gotArg1)
	}
}

func TestResponseHeaderRoundTrip(t *testing.T) {
	b := make([]byte, ResponseHeaderSize)
	b[2] = 0x87 // flags
	b[4] = 9    // dst_core
	b[10] = 0x01
	b[11] = 0x00 // rc = 1
	resp := UnmarshalResponseHeader(b)
	if resp.DstCore != 9 {
		t.Fatalf("dst_core = %d, want 9", resp.DstCore)
	}
	if resp.RC != 1 {
		t.Fatalf("rc = %d, want 1", resp.RC)
	}
}

func TestDebugHeaderSourceAddress(t *testing.T) {
	b := make([]byte, DebugHeaderSize)
	b[4] = 3 // dst_core (unused here)
	b[5] = 7 // src_core
	b[8] = 2 // src_cpu low byte -> y
	b[9] = 5 // src_cpu high byte -> x
	h := UnmarshalDebugHeader(b)
	x, y, core := h.SourceAddress()
	if x != 5 || y != 2 || core != 7 {
		t.Fatalf("SourceAddress() = (%d,%d,%d), want (5,2,7)", x, y, core)
	}
}

func TestChipCPUPacking(t *testing.T) {
	cpu := chipCPU(3, 4)
	if cpu != 0x0304 {
		t.Fatalf("chipCPU(3,4) = 0x%x, want 0x0304", cpu)
	}
}
