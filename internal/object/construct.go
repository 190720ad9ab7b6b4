package object

import "math"

// This file implements §4.D's typed constructors. Each writes the type
// tag into the payload's first word and fills the remaining payload; all
// of them take raw scalar Go values, never heap references, so none can
// observe a collection triggered by a sibling allocation leaving a
// reference dangling (the hazard called out in §4.C). CONS and LAMBDA are
// the two reference-bearing types and are deliberately NOT constructed
// here — building them safely requires the stack-anchored calling
// convention of internal/vm's `cons`/`lambda` primitives (see that
// package's doc comment for why).

func (h *Heap) newBinary(tag Tag, payload []byte) (uint64, error) {
	binaryLen := uint64(WordSize + len(payload)) // tag word + payload
	addr, err := h.alloc(HeaderSize + binaryLen)
	if err != nil {
		return 0, err
	}
	h.storeWord(addr, uint64(makeHeader(false, false, true, binaryLen)))
	h.storeWord(addr+HeaderSize, uint64(tag))
	if len(payload) > 0 {
		h.writeBytes(addr+HeaderSize+WordSize, payload)
	}
	return addr, nil
}

// NewInteger allocates a 64-bit signed integer object.
func (h *Heap) NewInteger(v int64) (uint64, error) {
	return h.newBinary(TagInteger, encodeWord(uint64(v)))
}

// NewReal allocates a 64-bit float object.
func (h *Heap) NewReal(v float64) (uint64, error) {
	return h.newBinary(TagReal, encodeWord(math.Float64bits(v)))
}

// NewBool allocates a one-byte boolean object, per §3: "BOOL — one byte,
// 0 or 1". NIL/TRUE/FALSE are allocated exactly once at startup (spec
// invariant); callers needing a boolean result reuse those roots rather
// than calling this repeatedly.
func (h *Heap) NewBool(v bool) (uint64, error) {
	b := byte(0)
	if v {
		b = 1
	}
	return h.newBinary(TagBool, []byte{b})
}

// NewNil allocates the NIL singleton. Called exactly once, at startup.
func (h *Heap) NewNil() (uint64, error) {
	return h.newBinary(TagNil, nil)
}

// NewSymbol allocates a NUL-terminated symbol object. Symbols are not
// interned (spec §9): equality is always by name comparison.
func (h *Heap) NewSymbol(name string) (uint64, error) {
	return h.newBinary(TagSymbol, append([]byte(name), 0))
}

// NewString allocates a NUL-terminated string object.
func (h *Heap) NewString(s string) (uint64, error) {
	return h.newBinary(TagString, append([]byte(s), 0))
}

// NewNatfun allocates a native-function object. Go functions cannot be
// encoded as heap bytes, so the payload holds a dispatch index into a
// function table the caller (internal/vm) maintains; this is the direct
// analogue of the C original's `natfun x` function pointer field.
func (h *Heap) NewNatfun(dispatchIndex uint64) (uint64, error) {
	return h.newBinary(TagNatfun, encodeWord(dispatchIndex))
}

func encodeWord(v uint64) []byte {
	b := make([]byte, WordSize)
	for i := 0; i < WordSize; i++ {
		b[i] = byte(v >> uint(i*8))
	}
	return b
}

func decodeWord(b []byte) uint64 {
	var v uint64
	for i := 0; i < WordSize && i < len(b); i++ {
		v |= uint64(b[i]) << uint(i*8)
	}
	return v
}

// Int64 reads the INTEGER payload at addr.
func (h *Heap) Int64(addr uint64) int64 {
	return int64(decodeWord(h.readBytes(h.BinaryPtr(addr)+WordSize, WordSize)))
}

// Float64 reads the REAL payload at addr.
func (h *Heap) Float64(addr uint64) float64 {
	return math.Float64frombits(decodeWord(h.readBytes(h.BinaryPtr(addr)+WordSize, WordSize)))
}

// Bool reads the BOOL payload at addr.
func (h *Heap) Bool(addr uint64) bool {
	return h.loadByte(h.BinaryPtr(addr)+WordSize) != 0
}

// Name reads a NUL-terminated SYMBOL or STRING payload at addr.
func (h *Heap) Name(addr uint64) string {
	ptr := h.BinaryPtr(addr) + WordSize
	end := ptr
	for h.loadByte(end) != 0 {
		end++
	}
	return string(h.readBytes(ptr, end-ptr))
}

// NatfunIndex reads the dispatch index of a NATFUN object at addr.
func (h *Heap) NatfunIndex(addr uint64) uint64 {
	return decodeWord(h.readBytes(h.BinaryPtr(addr)+WordSize, WordSize))
}

// NewConsSlot and NewLambdaSlot reserve (but do not fill) the object
// layout for CONS (2 refs) and LAMBDA (3 refs), each with a binary
// payload holding only the one-word type tag, per the refs&&binary row of
// §3's payload table. The caller (internal/vm) fills ref slots afterward,
// once the values to store are back on the operand stack following the
// allocation (which may have triggered a collection).
func (h *Heap) NewConsSlot() (uint64, error) {
	return h.newRefsBinary(TagCons, 2)
}

func (h *Heap) NewLambdaSlot() (uint64, error) {
	return h.newRefsBinary(TagLambda, 3)
}

func (h *Heap) newRefsBinary(tag Tag, nrefs uint64) (uint64, error) {
	const tagPayloadLen = WordSize
	total := HeaderSize + nrefs*WordSize + WordSize + tagPayloadLen
	addr, err := h.alloc(total)
	if err != nil {
		return 0, err
	}
	h.storeWord(addr, uint64(makeHeader(false, true, true, nrefs)))
	for i := uint64(0); i < nrefs; i++ {
		h.storeWord(addr+HeaderSize+i*WordSize, 0)
	}
	lenWordAddr := addr + HeaderSize + nrefs*WordSize
	h.storeWord(lenWordAddr, tagPayloadLen)
	h.storeWord(lenWordAddr+WordSize, uint64(tag))
	return addr, nil
}
