package vm

import "testing"

func newMachine(t *testing.T) *Machine {
	t.Helper()
	m, err := New(4096, 1<<20, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.InitCore(); err != nil {
		t.Fatalf("InitCore: %v", err)
	}
	return m
}

func mustInt(t *testing.T, m *Machine, v int64) uint64 {
	t.Helper()
	addr, err := m.Heap.NewInteger(v)
	if err != nil {
		t.Fatalf("NewInteger: %v", err)
	}
	return addr
}

func TestConsHeadTail(t *testing.T) {
	m := newMachine(t)
	a := mustInt(t, m, 1)
	b := mustInt(t, m, 2)
	m.Push(a)
	m.Push(b)
	if err := m.Cons(); err != nil {
		t.Fatalf("Cons: %v", err)
	}
	pair := m.TOS()

	m.Push(pair)
	if err := m.Head(); err != nil {
		t.Fatalf("Head: %v", err)
	}
	if got := m.Pop(); m.Heap.Int64(got) != 1 {
		t.Fatalf("head = %d, want 1", m.Heap.Int64(got))
	}

	m.Push(pair)
	if err := m.Tail(); err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if got := m.Pop(); m.Heap.Int64(got) != 2 {
		t.Fatalf("tail = %d, want 2", m.Heap.Int64(got))
	}
}

func TestHeadOnNonConsIsTypeError(t *testing.T) {
	m := newMachine(t)
	m.Push(mustInt(t, m, 1))
	if err := m.Head(); err == nil {
		t.Fatal("expected a type error, got nil")
	} else if _, ok := err.(*TypeError); !ok {
		t.Fatalf("expected *TypeError, got %T: %v", err, err)
	}
}

// buildList conses up a proper list of the given integers, NIL-terminated.
func buildList(t *testing.T, m *Machine, vals ...int64) uint64 {
	t.Helper()
	m.Push(m.Roots[RootNil])
	for i := len(vals) - 1; i >= 0; i-- {
		m.Push(mustInt(t, m, vals[i]))
		m.Swap()
		if err := m.Cons(); err != nil {
			t.Fatalf("Cons: %v", err)
		}
	}
	return m.Pop()
}

func listInts(t *testing.T, m *Machine, list uint64) []int64 {
	t.Helper()
	var out []int64
	cur := list
	for cur != m.Roots[RootNil] {
		out = append(out, m.Heap.Int64(m.Heap.Ref(cur, 0)))
		cur = m.Heap.Ref(cur, 1)
	}
	return out
}

func TestAppend(t *testing.T) {
	m := newMachine(t)
	a := buildList(t, m, 1, 2, 3)
	b := buildList(t, m, 4, 5)

	m.Push(a)
	m.Push(b)
	if err := m.Append(); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got := listInts(t, m, m.Pop())
	want := []int64{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("append = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("append = %v, want %v", got, want)
		}
	}
}

func TestAppendNilIsIdentity(t *testing.T) {
	m := newMachine(t)
	b := buildList(t, m, 1, 2, 3)
	m.Push(m.Roots[RootNil])
	m.Push(b)
	if err := m.Append(); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if m.Pop() != b {
		t.Fatal("NIL ++ b did not return b unchanged")
	}
}

func TestEqReflexiveAndSymmetric(t *testing.T) {
	m := newMachine(t)
	a := buildList(t, m, 1, 2, 3)
	b := buildList(t, m, 1, 2, 3)

	m.Push(a)
	m.Push(a)
	m.Eq()
	if m.Pop() != m.Roots[RootTrue] {
		t.Fatal("a = a should be TRUE")
	}

	m.Push(a)
	m.Push(b)
	m.Eq()
	ab := m.Pop()

	m.Push(b)
	m.Push(a)
	m.Eq()
	ba := m.Pop()

	if ab != m.Roots[RootTrue] || ab != ba {
		t.Fatalf("a = b should equal b = a and both TRUE, got ab=%v ba=%v", ab, ba)
	}
}

func TestEqDetectsCycleAsUnequal(t *testing.T) {
	m := newMachine(t)

	selfA, err := m.Heap.NewConsSlot()
	if err != nil {
		t.Fatalf("NewConsSlot: %v", err)
	}
	m.Heap.SetRef(selfA, 0, selfA)
	m.Heap.SetRef(selfA, 1, m.Roots[RootNil])

	selfB, err := m.Heap.NewConsSlot()
	if err != nil {
		t.Fatalf("NewConsSlot: %v", err)
	}
	m.Heap.SetRef(selfB, 0, selfB)
	m.Heap.SetRef(selfB, 1, m.Roots[RootNil])

	m.Push(selfA)
	m.Push(selfB)
	m.Eq()
	if m.Pop() != m.Roots[RootFalse] {
		t.Fatal("comparing two distinct self-referential cycles should not hang and should report FALSE")
	}
}

func TestLookupExtend(t *testing.T) {
	m := newMachine(t)
	env := m.Roots[RootNil]
	key, err := m.Heap.NewSymbol("x")
	if err != nil {
		t.Fatalf("NewSymbol: %v", err)
	}
	val := mustInt(t, m, 42)

	m.Push(env)
	m.Push(key)
	m.Push(val)
	if err := m.Extend(); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	env = m.Pop()

	key2, err := m.Heap.NewSymbol("x")
	if err != nil {
		t.Fatalf("NewSymbol: %v", err)
	}
	m.Push(env)
	m.Push(key2)
	if err := m.Lookup(); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	found := m.Pop()
	result := m.Pop()
	if found != m.Roots[RootTrue] {
		t.Fatal("lookup of bound symbol should report TRUE")
	}
	if m.Heap.Int64(result) != 42 {
		t.Fatalf("lookup value = %d, want 42", m.Heap.Int64(result))
	}

	miss, err := m.Heap.NewSymbol("y")
	if err != nil {
		t.Fatalf("NewSymbol: %v", err)
	}
	m.Push(env)
	m.Push(miss)
	if err := m.Lookup(); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if m.Pop() != m.Roots[RootFalse] {
		t.Fatal("lookup of unbound symbol should report FALSE")
	}
}

func TestArithmeticMixedTypesIsError(t *testing.T) {
	m := newMachine(t)
	i := mustInt(t, m, 1)
	f, err := m.Heap.NewReal(2.0)
	if err != nil {
		t.Fatalf("NewReal: %v", err)
	}
	m.Push(i)
	m.Push(f)
	if err := m.Plus(); err == nil {
		t.Fatal("expected a type error mixing INTEGER and REAL")
	}
}

func TestIntegerDivideByZero(t *testing.T) {
	m := newMachine(t)
	m.Push(mustInt(t, m, 1))
	m.Push(mustInt(t, m, 0))
	err := m.Div()
	if err == nil {
		t.Fatal("expected a divide-by-zero error")
	}
	if _, ok := err.(*DivideByZeroError); !ok {
		t.Fatalf("expected *DivideByZeroError, got %T: %v", err, err)
	}
}

func TestGlobalBindingsPresent(t *testing.T) {
	m := newMachine(t)
	names := []string{"cons", "decons", "head", "tail", "++", "=", "<", "+", "*", "/", "neg",
		"extend", "lookup", "global", "global!", "swap", "dup", "drop", "over", "nip", "rot", "execute"}
	for _, name := range names {
		sym, err := m.Heap.NewSymbol(name)
		if err != nil {
			t.Fatalf("NewSymbol(%q): %v", name, err)
		}
		m.Push(m.Roots[RootGlobal])
		m.Push(sym)
		if err := m.Lookup(); err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		found := m.Pop()
		m.Pop()
		if found != m.Roots[RootTrue] {
			t.Fatalf("global binding %q missing at startup", name)
		}
	}
}

func TestStackUnderflowPanics(t *testing.T) {
	m := newMachine(t)
	// Drain whatever InitCore left in the registration scratch area.
	for m.Depth() > 0 {
		m.Pop()
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on stack underflow")
		}
	}()
	m.Pop()
}
