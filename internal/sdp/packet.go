// Package sdp implements the wire codec, control client, and debug
// receiver of spec.md §4.A/§4.B/§4.C: a connected-less UDP RPC to the
// fabric's control port, and a background receiver on its debug port.
//
// Byte-packing follows the teacher's `emit.go` idiom (small typed
// `writeU*`/`readU*` helpers instead of struct-layout/`unsafe` tricks —
// spec.md §9 Design Notes explicitly calls for this over C-style packing
// attributes).
package sdp

import "encoding/binary"

// Wire sizes. The SDP request/response body (flags through arg3) is
// exactly the 24 bytes spec.md §4.A names; every frame additionally
// carries the 2-byte tto/pad prefix spec.md calls out separately
// ("tto:u8, pad:u8, ..." / "prepends a 2-byte pad"), for 26 bytes on
// the wire. The debug channel's header is 16 bytes: the response
// header's fields up to cmd_flags (14 bytes, no SCP arguments, since a
// debug text line is not replying to a read/write) followed by two
// bytes that are not decoded. See DESIGN.md's Open Question decisions
// for how the 26-byte control-channel size reconciles with the
// headline "24-byte" figure.
const (
	prefixSize       = 2
	requestBodySize  = 24
	responseBodySize = 24
	debugBodySize    = 14

	RequestHeaderSize  = prefixSize + requestBodySize
	ResponseHeaderSize = prefixSize + responseBodySize
	DebugHeaderSize    = prefixSize + debugBodySize
)

// Standard per-request defaults (spec.md §4.A).
const (
	DefaultTTO     = 8
	DefaultFlags   = 0x87
	DefaultTag     = 255
	DefaultSrcCore = 255
)

// SDP commands used by this loader (spec.md §4.B/§6).
const (
	CmdRead  = 2
	CmdWrite = 3
	CmdAPLX  = 4
	CmdIPTag = 26 // SCAMP IPTAG command
	CmdP2PC  = 13
)

// IPTAG sub-operations, packed into the high 16 bits of arg1.
const (
	IPTagSubClr  = 3
	IPTagSubAuto = 4
)

// TYPE_BYTE transfer width for CMD_READ/CMD_WRITE (spec.md §4.B).
const TypeByte = 0

// RequestHeader is the 26-byte request frame prefix of spec.md §4.A.
type RequestHeader struct {
	TTO      byte
	Pad      byte
	Flags    byte
	Tag      byte
	DstCore  byte
	SrcCore  byte
	DstCPU   uint16
	SrcCPU   uint16
	Cmd      uint16
	CmdFlags uint16
	Arg1     uint32
	Arg2     uint32
	Arg3     uint32
}

// NewRequest builds a RequestHeader with the standard defaults
// (spec.md §4.A) for the given destination CPU/core and command.
func NewRequest(dstCPU uint16, dstCore byte, cmd uint16, arg1, arg2, arg3 uint32) RequestHeader {
	return RequestHeader{
		TTO:      DefaultTTO,
		Flags:    DefaultFlags,
		Tag:      DefaultTag,
		DstCore:  dstCore,
		SrcCore:  DefaultSrcCore,
		DstCPU:   dstCPU,
		Cmd:      cmd,
		Arg1:     arg1,
		Arg2:     arg2,
		Arg3:     arg3,
	}
}

// Marshal packs h into its 26-byte little-endian wire form.
func (h RequestHeader) Marshal() []byte {
	b := make([]byte, RequestHeaderSize)
	b[0] = h.TTO
	b[1] = h.Pad
	b[2] = h.Flags
	b[3] = h.Tag
	b[4] = h.DstCore
	b[5] = h.SrcCore
	binary.LittleEndian.PutUint16(b[6:], h.DstCPU)
	binary.LittleEndian.PutUint16(b[8:], h.SrcCPU)
	binary.LittleEndian.PutUint16(b[10:], h.Cmd)
	binary.LittleEndian.PutUint16(b[12:], h.CmdFlags)
	binary.LittleEndian.PutUint32(b[14:], h.Arg1)
	binary.LittleEndian.PutUint32(b[18:], h.Arg2)
	binary.LittleEndian.PutUint32(b[22:], h.Arg3)
	return b
}

// ResponseHeader is the 26-byte response frame prefix on the control
// channel: same shape as RequestHeader with `cmd` replaced by `rc`.
type ResponseHeader struct {
	Pad      byte
	Pad2     byte
	Flags    byte
	Tag      byte
	DstCore  byte
	SrcCore  byte
	DstCPU   uint16
	SrcCPU   uint16
	RC       uint16
	CmdFlags uint16
	Arg1     uint32
	Arg2     uint32
	Arg3     uint32
}

// UnmarshalResponseHeader parses a 26-byte response prefix.
func UnmarshalResponseHeader(b []byte) ResponseHeader {
	return ResponseHeader{
		Pad:      b[0],
		Pad2:     b[1],
		Flags:    b[2],
		Tag:      b[3],
		DstCore:  b[4],
		SrcCore:  b[5],
		DstCPU:   binary.LittleEndian.Uint16(b[6:]),
		SrcCPU:   binary.LittleEndian.Uint16(b[8:]),
		RC:       binary.LittleEndian.Uint16(b[10:]),
		CmdFlags: binary.LittleEndian.Uint16(b[12:]),
		Arg1:     binary.LittleEndian.Uint32(b[14:]),
		Arg2:     binary.LittleEndian.Uint32(b[18:]),
		Arg3:     binary.LittleEndian.Uint32(b[22:]),
	}
}

// DebugHeader is the 16-byte header prefixing every debug-channel
// datagram (spec.md §4.C): the response header's fields up to
// cmd_flags, with no SCP arguments, since a debug text line isn't
// replying to a memory command. The header's last two bytes are not
// decoded.
type DebugHeader struct {
	Pad      byte
	Pad2     byte
	Flags    byte
	Tag      byte
	DstCore  byte
	SrcCore  byte
	DstCPU   uint16
	SrcCPU   uint16
	RC       uint16
	CmdFlags uint16
}

// UnmarshalDebugHeader parses a 16-byte debug-channel header.
func UnmarshalDebugHeader(b []byte) DebugHeader {
	return DebugHeader{
		Pad:      b[0],
		Pad2:     b[1],
		Flags:    b[2],
		Tag:      b[3],
		DstCore:  b[4],
		SrcCore:  b[5],
		DstCPU:   binary.LittleEndian.Uint16(b[6:]),
		SrcCPU:   binary.LittleEndian.Uint16(b[8:]),
		RC:       binary.LittleEndian.Uint16(b[10:]),
		CmdFlags: binary.LittleEndian.Uint16(b[12:]),
	}
}

// SourceAddress decodes the {x,y,core} triple spec.md §4.C derives
// from a debug header's src_cpu/src_core fields.
func (h DebugHeader) SourceAddress() (x, y byte, core byte) {
	return byte(h.SrcCPU >> 8), byte(h.SrcCPU & 0xff), h.SrcCore
}
