// Package placement implements the linear (x,y,core) allocator (spec.md
// §4.E) and the two open-addressed placement hash tables (spec.md §3).
//
// Both tables share the teacher's `hashmap.go` shape (a fixed-size
// backing slice, one Go-idiomatic type wrapping the probe logic) but are
// reworked from the teacher's chained buckets to the spec's required
// open addressing with 0-as-empty-sentinel: the on-chip firmware reads
// this exact layout, so the probe discipline is a correctness
// requirement, not a style choice (spec.md §9).
package placement

import "github.com/xyproto/damsonloader/internal/damsonrt"

// Entry is the full mapping record stored in both placement tables.
type Entry struct {
	NodeID     uint32
	PhysicalID uint32
	ChipX      uint32
	ChipY      uint32
	Core       uint32
}

// openTable is a fixed-size, linearly-probed, 0-as-empty-sentinel hash
// table. keyOf extracts the table's key (NodeID or PhysicalID) from an
// Entry so the same probe code serves both placement tables.
type openTable struct {
	slots []Entry
	keyOf func(Entry) uint32
}

func newOpenTable(size uint32, keyOf func(Entry) uint32) *openTable {
	return &openTable{slots: make([]Entry, size), keyOf: keyOf}
}

func hashSlot(key, size uint32) uint32 {
	return damsonrt.Hash(key) % size
}

// insert places e, probing linearly from hashSlot(key) until an empty
// slot (key 0) is found. Returns false if the table is full.
func (t *openTable) insert(e Entry) bool {
	size := uint32(len(t.slots))
	key := t.keyOf(e)
	start := hashSlot(key, size)
	for i := uint32(0); i < size; i++ {
		idx := (start + i) % size
		if t.keyOf(t.slots[idx]) == 0 {
			t.slots[idx] = e
			return true
		}
	}
	return false
}

// lookup finds the entry keyed by key, if present.
func (t *openTable) lookup(key uint32) (Entry, bool) {
	size := uint32(len(t.slots))
	if size == 0 || key == 0 {
		return Entry{}, false
	}
	start := hashSlot(key, size)
	for i := uint32(0); i < size; i++ {
		idx := (start + i) % size
		e := t.slots[idx]
		if t.keyOf(e) == key {
			return e, true
		}
		if t.keyOf(e) == 0 {
			return Entry{}, false
		}
	}
	return Entry{}, false
}
