package object

import "go.uber.org/zap"

// collect runs one Cheney-style copying collection (spec §4.B). minNeeded
// is 0 for an ordinary collection (growth governed purely by the 1.5x
// survivor heuristic) or the byte size of a pending allocation that must
// fit afterwards (the "grow and collect again" step of §4.A), in which
// case the new capacity is widened to guarantee room for it.
//
// Unlike the original C source's recursive gc_copy, copying here uses an
// explicit worklist of old-space addresses already copied but not yet
// scanned, per the Recursive-copy design note in spec §9: this bounds Go
// call-stack usage independent of how deep a cons chain goes, which
// matters because a long list is trivial to build from the REPL.
func (h *Heap) collect(minNeeded uint64) error {
	newCap := align(3 * h.lastUsed / 2)
	if newCap < h.capacity {
		newCap = h.capacity
	}
	if minNeeded > 0 {
		if need := align(h.used+minNeeded) + WordSize; need > newCap {
			newCap = need
		}
	}
	if newCap > h.maxCapacity {
		newCap = h.maxCapacity
	}

	dest := make([]byte, newCap)
	// cursor starts at addrReserved, not 0, for the same reason New does:
	// 0 must stay out of the space of valid addresses in the new
	// semi-space too, or the first object copied would collide with the
	// "no reference" sentinel every oldAddr == 0 check below relies on.
	cursor := uint64(addrReserved)
	worklist := make([]uint64, 0, 64)

	// copyOne copies a single old-space object into dest (if not already
	// copied) and returns its new address. Objects with references are
	// pushed onto the worklist so their own references are copied on a
	// later iteration, instead of recursing.
	copyOne := func(oldAddr uint64) uint64 {
		if oldAddr == 0 {
			return 0
		}
		hdr := h.headerAt(oldAddr)
		if hdr.live() {
			// Already copied: the forwarding pointer lives at the first
			// payload word of the old copy (ref[0] for refs objects, the
			// type-tag word for binary-only objects — always safe since
			// every constructed object has at least one payload word).
			return h.loadWord(oldAddr + HeaderSize)
		}
		size := h.objSize(oldAddr)
		newAddr := cursor
		copy(dest[newAddr:newAddr+size], h.mem[oldAddr:oldAddr+size])
		cursor = align(cursor + size)

		h.storeWord(oldAddr, uint64(hdr.withLive()))
		if hdr.refs() {
			worklist = append(worklist, oldAddr)
		}
		h.storeWord(oldAddr+HeaderSize, newAddr) // forwarding pointer
		return newAddr
	}

	for _, arr := range h.roots() {
		for i, r := range arr {
			arr[i] = copyOne(r)
		}
	}
	for len(worklist) > 0 {
		oldAddr := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		hdr := h.headerAt(oldAddr)
		n := int(hdr.len())
		// ref[0] of the old copy now holds the forwarding pointer, so the
		// references are read from the new copy, which still holds them
		// verbatim.
		newAddr := h.loadWord(oldAddr + HeaderSize)
		for i := 0; i < n; i++ {
			copyOne(loadWordFrom(dest, newAddr+HeaderSize+uint64(i)*WordSize))
		}
	}

	// Relink pass: walk the new semi-space linearly using only
	// header-derived sizes (property #2, heap walkability), rewriting
	// every reference — still an old-space address, copied verbatim by
	// copyOne above — to its forwarding address. h.mem is still the old
	// semi-space at this point, so the forwarding pointers written above
	// are readable.
	relinkHeap(dest, cursor, h.mem)

	h.mem = dest
	h.used = cursor
	h.capacity = newCap
	h.lastUsed = cursor
	h.collections++

	if h.log != nil {
		h.log.Debug("gc: collection complete",
			zap.Uint64("survivor_bytes", cursor),
			zap.Uint64("new_capacity", newCap),
			zap.Int("collections_total", h.collections),
		)
	}
	return nil
}

// relinkHeap rewrites every reference slot in the new semi-space from an
// old-space address to the forwarding address recorded for it in oldMem,
// matching gc_relink_heap in original_source/gc.c.
func relinkHeap(newMem []byte, used uint64, oldMem []byte) {
	base := uint64(addrReserved)
	for base < used {
		h := header(loadWordFrom(newMem, base))
		if h.refs() {
			n := int(h.len())
			for i := 0; i < n; i++ {
				slot := base + HeaderSize + uint64(i)*WordSize
				oldRef := loadWordFrom(newMem, slot)
				if oldRef == 0 {
					continue
				}
				storeWordTo(newMem, slot, loadWordFrom(oldMem, oldRef+HeaderSize))
			}
		}
		base = align(base + sizeFrom(newMem, base))
	}
}

func loadWordFrom(mem []byte, addr uint64) uint64 {
	var v uint64
	for i := 0; i < WordSize; i++ {
		v |= uint64(mem[addr+uint64(i)]) << uint(i*8)
	}
	return v
}

func storeWordTo(mem []byte, addr uint64, val uint64) {
	for i := 0; i < WordSize; i++ {
		mem[addr+uint64(i)] = byte(val >> uint(i*8))
	}
}

func sizeFrom(mem []byte, addr uint64) uint64 {
	h := header(loadWordFrom(mem, addr))
	switch {
	case h.refs() && h.binary():
		lenWordAddr := addr + HeaderSize + h.len()*WordSize
		payloadLen := loadWordFrom(mem, lenWordAddr)
		return HeaderSize + h.len()*WordSize + WordSize + payloadLen
	case h.refs() && !h.binary():
		return HeaderSize + h.len()*WordSize
	case !h.refs() && h.binary():
		return HeaderSize + h.len()
	default:
		panic("BUG: invalid object header (refs=0, binary=0) during relink")
	}
}

// WalkLive walks the heap's current semi-space linearly using only
// header-derived sizes, invoking fn with each object's address. It exists
// to let tests exercise property #2 (heap walkability) directly.
func (h *Heap) WalkLive(fn func(addr uint64)) {
	base := uint64(addrReserved)
	for base < h.used {
		fn(base)
		base = align(base + h.objSize(base))
	}
}
