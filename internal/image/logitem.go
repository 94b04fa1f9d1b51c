package image

import (
	"encoding/binary"

	"github.com/xyproto/damsonloader/internal/damsonrt"
	"github.com/xyproto/damsonloader/internal/linker"
)

// marshalLogItem packs one LogRecord into a RuntimeLogItem: six header
// words (r.Handle, the record's combined pre-split position, identifies
// it to the supervisor's drain lookup) followed by the fixed
// MaxLogItems-word log_globals array, zero-padded past LogItems.
func marshalLogItem(r linker.LogRecord) []uint32 {
	out := make([]uint32, 6+damsonrt.MaxLogItems)
	out[0] = r.Handle
	out[1] = r.Start
	out[2] = r.End
	out[3] = r.Interval
	out[4] = r.LogItems
	out[5] = 0 // log_count, zeroed at load time, incremented on-device
	copy(out[6:], r.LogGlobals)
	return out
}

// marshalLogItems packs a run of records into a flat word stream ready
// for WriteNonZeroMemory.
func marshalLogItems(records []linker.LogRecord) []uint32 {
	var out []uint32
	for _, r := range records {
		out = append(out, marshalLogItem(r)...)
	}
	return out
}

// wordsToBytes little-endian packs a word slice for the wire.
func wordsToBytes(words []uint32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

// bytesToWords is wordsToBytes's inverse, used when reading memory
// back for validation.
func bytesToWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}
