package reader

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"lisp1k/internal/object"
	"lisp1k/internal/vm"
)

func newMachine(t *testing.T) *vm.Machine {
	t.Helper()
	m, err := vm.New(1<<16, 1<<20, zap.NewNop())
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	return m
}

func readOne(t *testing.T, m *vm.Machine, src string) uint64 {
	t.Helper()
	rd := New(strings.NewReader(src))
	addr, ok, err := rd.Read(m)
	if err != nil {
		t.Fatalf("Read(%q): %v", src, err)
	}
	if !ok {
		t.Fatalf("Read(%q): expected a form, got clean EOF", src)
	}
	return addr
}

func TestReadAtoms(t *testing.T) {
	m := newMachine(t)

	if addr := readOne(t, m, "42"); m.Heap.Tag(addr) != object.TagInteger || m.Heap.Int64(addr) != 42 {
		t.Fatalf("expected INTEGER 42, got tag %v", m.Heap.Tag(addr))
	}
	if addr := readOne(t, m, "-17"); m.Heap.Tag(addr) != object.TagInteger || m.Heap.Int64(addr) != -17 {
		t.Fatalf("expected INTEGER -17")
	}
	if addr := readOne(t, m, "3.5"); m.Heap.Tag(addr) != object.TagReal {
		t.Fatalf("expected REAL, got tag %v", m.Heap.Tag(addr))
	}
	if addr := readOne(t, m, "foo"); m.Heap.Tag(addr) != object.TagSymbol || m.Heap.Name(addr) != "foo" {
		t.Fatalf("expected SYMBOL foo")
	}
	if addr := readOne(t, m, `"hi there"`); m.Heap.Tag(addr) != object.TagString {
		t.Fatalf("expected STRING, got tag %v", m.Heap.Tag(addr))
	}
}

func TestReadListOrderAndNesting(t *testing.T) {
	m := newMachine(t)
	addr := readOne(t, m, "(1 2 (3 4) 5)")

	var got []string
	cur := addr
	for m.Heap.Tag(cur) == object.TagCons {
		elem := m.Heap.Ref(cur, 0)
		if m.Heap.Tag(elem) == object.TagInteger {
			got = append(got, "int")
		} else {
			got = append(got, "list")
		}
		cur = m.Heap.Ref(cur, 1)
	}
	if cur != m.Roots[vm.RootNil] {
		t.Fatalf("list did not terminate in NIL")
	}
	want := []string{"int", "int", "list", "int"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("element %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestReadEmptyListIsNil(t *testing.T) {
	m := newMachine(t)
	addr := readOne(t, m, "()")
	if addr != m.Roots[vm.RootNil] {
		t.Fatalf("() did not read as the canonical NIL")
	}
}

func TestReadSkipsComments(t *testing.T) {
	m := newMachine(t)
	addr := readOne(t, m, "; a comment\n42 ; trailing\n")
	if m.Heap.Tag(addr) != object.TagInteger || m.Heap.Int64(addr) != 42 {
		t.Fatalf("expected INTEGER 42 after skipping comments")
	}
}

func TestReadMultipleTopLevelForms(t *testing.T) {
	m := newMachine(t)
	rd := New(strings.NewReader("1 2 3"))

	var vals []int64
	for {
		addr, ok, err := rd.Read(m)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if !ok {
			break
		}
		vals = append(vals, m.Heap.Int64(addr))
	}
	if len(vals) != 3 || vals[0] != 1 || vals[1] != 2 || vals[2] != 3 {
		t.Fatalf("got %v, want [1 2 3]", vals)
	}
}

func TestReadCleanEOF(t *testing.T) {
	m := newMachine(t)
	rd := New(strings.NewReader("   \n; just a comment\n"))
	_, ok, err := rd.Read(m)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if ok {
		t.Fatalf("expected clean EOF with no form")
	}
}

func TestUnterminatedListIsSyntaxError(t *testing.T) {
	m := newMachine(t)
	rd := New(strings.NewReader("(1 2 3"))
	_, _, err := rd.Read(m)
	if _, ok := err.(*SyntaxError); !ok {
		t.Fatalf("expected *SyntaxError, got %v", err)
	}
}

func TestUnterminatedStringIsSyntaxError(t *testing.T) {
	m := newMachine(t)
	rd := New(strings.NewReader(`"unterminated`))
	_, _, err := rd.Read(m)
	if _, ok := err.(*SyntaxError); !ok {
		t.Fatalf("expected *SyntaxError, got %v", err)
	}
}

func TestUnexpectedCloseParenIsSyntaxError(t *testing.T) {
	m := newMachine(t)
	rd := New(strings.NewReader(")"))
	_, _, err := rd.Read(m)
	if _, ok := err.(*SyntaxError); !ok {
		t.Fatalf("expected *SyntaxError, got %v", err)
	}
}
