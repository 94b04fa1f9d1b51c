package sdp

import "encoding/binary"

// BootHeaderSize is the 18-byte packed boot-protocol header of spec.md
// §3/§6: prot_ver, op, a1, a2, a3, all big-endian.
const BootHeaderSize = 18

// Boot protocol operations (spec.md §6).
const (
	BootOpStart = 1
	BootOpData  = 3
	BootOpEnd   = 5
)

// BootProtocolVersion is the boot header's prot_ver field.
const BootProtocolVersion = 1

// BootHeader is the boot-protocol frame header. Every boot datagram is
// sent big-endian, unlike the little-endian control/debug channels
// (spec.md §3).
type BootHeader struct {
	ProtVer uint16
	Op      uint32
	A1      uint32
	A2      uint32
	A3      uint32
}

// Marshal packs h into its 18-byte big-endian wire form.
func (h BootHeader) Marshal() []byte {
	b := make([]byte, BootHeaderSize)
	binary.BigEndian.PutUint16(b[0:], h.ProtVer)
	binary.BigEndian.PutUint32(b[2:], h.Op)
	binary.BigEndian.PutUint32(b[6:], h.A1)
	binary.BigEndian.PutUint32(b[10:], h.A2)
	binary.BigEndian.PutUint32(b[14:], h.A3)
	return b
}

// swapWordBytes reverses the byte order of each 4-byte group in place,
// matching the boot ROM's expectation that a payload's words arrive
// byte-swapped to network order (spec.md §3: "Payload words in boot
// packets are word-reversed to network order").
func swapWordBytes(data []byte) []byte {
	out := make([]byte, len(data))
	for i := 0; i+4 <= len(data); i += 4 {
		out[i], out[i+1], out[i+2], out[i+3] = data[i+3], data[i+2], data[i+1], data[i]
	}
	return out
}

// MarshalBootStart builds the START packet that opens a boot upload:
// op=1, a3=blocks-1 (spec.md §6).
func MarshalBootStart(blocks int) []byte {
	h := BootHeader{ProtVer: BootProtocolVersion, Op: BootOpStart, A3: uint32(blocks - 1)}
	return h.Marshal()
}

// MarshalBootData builds one DATA packet: op=3, a1=((256-1)<<8)|(block
// index & 0xff), body the block's BootBlockBytes bytes reinterpreted
// as 32-bit words and byte-swapped to network order (spec.md §6).
func MarshalBootData(blockIndex int, block []byte) []byte {
	h := BootHeader{
		ProtVer: BootProtocolVersion,
		Op:      BootOpData,
		A1:      0xff00 | uint32(blockIndex&0xff),
	}
	return append(h.Marshal(), swapWordBytes(block)...)
}

// MarshalBootEnd builds the END packet that closes a boot upload:
// op=5, a1=1 (spec.md §6).
func MarshalBootEnd() []byte {
	h := BootHeader{ProtVer: BootProtocolVersion, Op: BootOpEnd, A1: 1}
	return h.Marshal()
}
