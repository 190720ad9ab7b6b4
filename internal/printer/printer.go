// Package printer renders heap values to the external printed form of
// §6: lists as `(a b c)`, an improper tail as `<head tail>`, symbols and
// strings, decimal integers, shortest-roundtrip reals, `<true>`/
// `<false>`, `()` for NIL, `\formals.body` for a closure, and
// `<atom:N>` for anything else (matching the original's fallthrough
// `switch` arm for types with no dedicated printed form, NATFUN
// included). Grounded on original_source/lisp.c's print().
package printer

import (
	"strconv"
	"strings"

	"lisp1k/internal/object"
)

// Sprint renders addr's printed form as a string.
func Sprint(h *object.Heap, addr uint64) string {
	var sb strings.Builder
	write(&sb, h, addr)
	return sb.String()
}

func write(sb *strings.Builder, h *object.Heap, addr uint64) {
	switch h.Tag(addr) {
	case object.TagNil:
		sb.WriteString("()")
	case object.TagBool:
		if h.Bool(addr) {
			sb.WriteString("<true>")
		} else {
			sb.WriteString("<false>")
		}
	case object.TagInteger:
		sb.WriteString(strconv.FormatInt(h.Int64(addr), 10))
	case object.TagReal:
		sb.WriteString(strconv.FormatFloat(h.Float64(addr), 'g', -1, 64))
	case object.TagSymbol:
		sb.WriteString(h.Name(addr))
	case object.TagString:
		sb.WriteByte('"')
		sb.WriteString(h.Name(addr))
		sb.WriteByte('"')
	case object.TagCons:
		writeCons(sb, h, addr)
	case object.TagLambda:
		writeLambda(sb, h, addr)
	default:
		// NATFUN and anything future falls here, matching the original's
		// default switch arm: there is no printed form for a native
		// function closure, only its type tag.
		sb.WriteString("<atom:")
		sb.WriteString(strconv.FormatUint(uint64(h.Tag(addr)), 10))
		sb.WriteByte('>')
	}
}

// writeCons renders a proper list as `(a b c)`. If the final cdr is
// neither another CONS nor NIL, that last cell prints as `<head tail>`
// in place of the trailing element, matching the original's list
// printer exactly.
func writeCons(sb *strings.Builder, h *object.Heap, addr uint64) {
	sb.WriteByte('(')
	cur := addr
	first := true
	for cur != 0 {
		tail := h.Ref(cur, 1)
		if h.Tag(tail) != object.TagCons && h.Tag(tail) != object.TagNil {
			sb.WriteByte('<')
			write(sb, h, h.Ref(cur, 0))
			sb.WriteByte(' ')
			write(sb, h, tail)
			sb.WriteByte('>')
			break
		}
		if !first {
			sb.WriteByte(' ')
		}
		first = false
		write(sb, h, h.Ref(cur, 0))
		if h.Tag(tail) == object.TagNil {
			break
		}
		cur = tail
	}
	sb.WriteByte(')')
}

// writeLambda renders a closure as `\formals.body`, e.g. `\(x y).(+ x
// y)`. The captured environment is never shown: two closures with
// identical formals and body but different captured environments print
// identically, matching the original's print-by-code-not-by-identity.
func writeLambda(sb *strings.Builder, h *object.Heap, addr uint64) {
	sb.WriteByte('\\')
	write(sb, h, h.Ref(addr, 0))
	sb.WriteByte('.')
	write(sb, h, h.Ref(addr, 1))
}
