package object

import (
	"fmt"

	"go.uber.org/zap"
)

// RootSource is supplied by the caller (internal/vm) at heap construction
// time. Each call returns every currently-live root array: the operand
// stack's live range and the named-roots array. The collector rewrites
// the returned slices in place, which is visible to the caller because
// Go slices share their backing array — no separate "write back" step is
// needed, matching gc_relink_roots in original_source/mem.c.
type RootSource func() [][]uint64

// Heap is the object memory subsystem of §4.A: a single contiguous
// bump-allocated region addressed by byte offset, grown and compacted by
// the copying collector in gc.go. It is the Go translation of the
// `heap` struct in original_source/gc.c, built over a []byte in the style
// of backend_vm.go's VM.memory rather than a raw malloc'd buffer.
type Heap struct {
	mem         []byte
	used        uint64
	capacity    uint64
	maxCapacity uint64
	lastUsed    uint64

	roots RootSource
	log   *zap.Logger

	collections int
}

// ErrOutOfMemory is returned when an allocation still does not fit after
// growing the heap to maxCapacity and collecting again (spec §7).
type ErrOutOfMemory struct {
	Requested uint64
	Capacity  uint64
}

func (e *ErrOutOfMemory) Error() string {
	return fmt.Sprintf("out of memory: requested %d bytes, heap capacity is %d", e.Requested, e.Capacity)
}

// New creates a heap with the given initial and maximum capacities (in
// bytes). roots must not be nil: every allocation that triggers a
// collection calls it to find the live root arrays.
//
// The bump pointer starts at addrReserved, not 0: address 0 is the single
// sentinel value every reference slot uses for "no object" (see copyOne
// in gc.go and every Ref/RootNil consumer), so it must never be handed out
// as a real object's address. Reserving the heap's first word keeps 0
// permanently out of the space of valid addresses in both semi-spaces,
// across every collection.
func New(initial, max uint64, roots RootSource, log *zap.Logger) *Heap {
	if roots == nil {
		panic("BUG: object.New called with nil RootSource")
	}
	return &Heap{
		mem:         make([]byte, initial),
		used:        addrReserved,
		capacity:    initial,
		maxCapacity: max,
		lastUsed:    initial,
		roots:       roots,
		log:         log,
	}
}

// addrReserved is the lowest address the bump allocator and collector will
// ever hand out. It must equal WordSize exactly: small enough to waste
// nothing worth tracking, large enough that 0 stays reserved as the
// "absent reference" sentinel.
const addrReserved = WordSize

func (h *Heap) loadWord(addr uint64) uint64 {
	var v uint64
	for i := 0; i < WordSize; i++ {
		v |= uint64(h.mem[addr+uint64(i)]) << uint(i*8)
	}
	return v
}

func (h *Heap) storeWord(addr uint64, val uint64) {
	for i := 0; i < WordSize; i++ {
		h.mem[addr+uint64(i)] = byte(val >> uint(i*8))
	}
}

func (h *Heap) loadByte(addr uint64) byte { return h.mem[addr] }

func (h *Heap) storeByte(addr uint64, b byte) { h.mem[addr] = b }

func (h *Heap) readBytes(addr, n uint64) []byte {
	out := make([]byte, n)
	copy(out, h.mem[addr:addr+n])
	return out
}

func (h *Heap) writeBytes(addr uint64, data []byte) {
	copy(h.mem[addr:addr+uint64(len(data))], data)
}

func (h *Heap) headerAt(addr uint64) header {
	return header(h.loadWord(addr))
}

// objSize returns the number of bytes occupied by the object at addr, not
// counting trailing alignment padding. For refs&&binary objects (CONS,
// LAMBDA) this requires one extra word read beyond the header — the
// stored payload-byte-length word right after the reference array — so
// the object remains self-describing without any external type table,
// exactly as obj_size does in original_source/gc.c.
func (h *Heap) objSize(addr uint64) uint64 {
	hdr := h.headerAt(addr)
	switch {
	case hdr.refs() && hdr.binary():
		lenWordAddr := addr + HeaderSize + hdr.len()*WordSize
		payloadLen := h.loadWord(lenWordAddr)
		return HeaderSize + hdr.len()*WordSize + WordSize + payloadLen
	case hdr.refs() && !hdr.binary():
		return HeaderSize + hdr.len()*WordSize
	case !hdr.refs() && hdr.binary():
		return HeaderSize + hdr.len()
	default:
		panic("BUG: invalid object header (refs=0, binary=0)")
	}
}

// Refs reports whether the object at addr carries a reference array, and
// if so its length.
func (h *Heap) Refs(addr uint64) (n int, ok bool) {
	hdr := h.headerAt(addr)
	if !hdr.refs() {
		return 0, false
	}
	return int(hdr.len()), true
}

// Ref reads reference slot i of the object at addr.
func (h *Heap) Ref(addr uint64, i int) uint64 {
	return h.loadWord(addr + HeaderSize + uint64(i)*WordSize)
}

// SetRef writes reference slot i of the object at addr. Used by
// internal/vm's cons and lambda primitives to fill a slot reserved by
// NewConsSlot/NewLambdaSlot immediately after allocation; general
// mutation of cons cells is a non-goal (spec §1).
func (h *Heap) SetRef(addr uint64, i int, val uint64) {
	h.storeWord(addr+HeaderSize+uint64(i)*WordSize, val)
}

// BinaryPtr returns the address of the binary payload of the object at
// addr, or 0 if it carries no binary payload.
func (h *Heap) BinaryPtr(addr uint64) uint64 {
	hdr := h.headerAt(addr)
	if !hdr.binary() {
		return 0
	}
	if hdr.refs() {
		return addr + HeaderSize + hdr.len()*WordSize + WordSize
	}
	return addr + HeaderSize
}

// BinaryLen returns the byte length of the binary payload of the object
// at addr, or 0 if it carries none.
func (h *Heap) BinaryLen(addr uint64) uint64 {
	hdr := h.headerAt(addr)
	if !hdr.binary() {
		return 0
	}
	if hdr.refs() {
		return h.loadWord(addr + HeaderSize + hdr.len()*WordSize)
	}
	return hdr.len()
}

// Tag returns the semantic type tag stored as the first word of an
// object's binary payload.
func (h *Heap) Tag(addr uint64) Tag {
	return Tag(h.loadWord(h.BinaryPtr(addr)))
}

// BinaryBytes returns a copy of the full binary payload at addr,
// including the leading type-tag word. Used by equality comparison
// (internal/vm) to compare two objects' payloads byte-for-byte without
// caring which concrete type they hold.
func (h *Heap) BinaryBytes(addr uint64) []byte {
	return h.readBytes(h.BinaryPtr(addr), h.BinaryLen(addr))
}

// alloc reserves n bytes (before alignment) at the current bump pointer,
// collecting and growing as needed per §4.A's allocation algorithm:
//
//  1. If the request does not fit, collect (collect's own growth
//     heuristic, §4.B, may already make room).
//  2. If it still does not fit, collect again, this time forcing the new
//     capacity to be at least big enough for the pending request.
//  3. If it still does not fit (maxCapacity reached), fail with OOM.
//
// It returns the address of the new object's header.
func (h *Heap) alloc(n uint64) (uint64, error) {
	if align(h.used+n) >= h.capacity {
		if err := h.collect(0); err != nil {
			return 0, err
		}
	}
	if align(h.used+n) >= h.capacity {
		if err := h.collect(n); err != nil {
			return 0, err
		}
	}
	if align(h.used+n) >= h.capacity {
		return 0, &ErrOutOfMemory{Requested: n, Capacity: h.capacity}
	}
	addr := h.used
	h.used = align(h.used + n)
	return addr, nil
}

// Stats reports current heap usage, surfaced by -gcstats (SPEC_FULL.md §4.J).
type Stats struct {
	Used        uint64
	Capacity    uint64
	MaxCapacity uint64
	Collections int
}

func (h *Heap) Stats() Stats {
	return Stats{Used: h.used, Capacity: h.capacity, MaxCapacity: h.maxCapacity, Collections: h.collections}
}
