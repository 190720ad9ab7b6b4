// Package object implements the interpreter's heap: a uniformly-tagged,
// variable-size object space and the copying collector that manages it.
//
// There is no external type table. Every object's footprint is derived
// from its header alone (refs/binary/len bits); the semantic type lives
// inside the binary payload as its first machine word. This mirrors the
// object layout in the original lisp1k core (mem.c/gc.c), translated from
// C bitfields over a malloc'd region to explicit bit-packing over a flat
// []byte heap, in the style of backend_vm.go's VM.memory.
package object

// Tag identifies the semantic type stored in an object's binary payload.
// Values match the enumeration order of the original native_type so that
// anyone cross-referencing original_source/mem.c sees the same ordinals.
type Tag uint64

const (
	TagNatfun Tag = iota
	TagLambda
	TagCons
	TagInteger
	TagReal
	TagSymbol
	TagString
	TagBool
	TagNil
)

func (t Tag) String() string {
	switch t {
	case TagNatfun:
		return "natfun"
	case TagLambda:
		return "lambda"
	case TagCons:
		return "cons"
	case TagInteger:
		return "integer"
	case TagReal:
		return "real"
	case TagSymbol:
		return "symbol"
	case TagString:
		return "string"
	case TagBool:
		return "bool"
	case TagNil:
		return "nil"
	default:
		return "unknown"
	}
}

// WordSize is the platform word used for header, reference slots, and
// the payload-length word of ref+binary objects. The language has no
// numeric tower beyond 64-bit integer/float, so a fixed 8-byte word
// keeps every offset computation simple.
const WordSize = 8

// HeaderSize is the size in bytes of an object's header word. It also
// doubles as the offset of the first payload/ref slot, which is what a
// forwarding pointer overwrites during collection (see gc.go).
const HeaderSize = WordSize
