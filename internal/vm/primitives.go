package vm

import "lisp1k/internal/object"

// This file implements the stack primitives of §4.E. Every primitive
// follows the same shape: pop operands, do the work, push the result(s).
// Primitives that store operand references into a new object (cons,
// lambda) allocate before popping, so those inputs ride out any
// collection on the operand stack rather than in a bare local — see this
// package's doc comment; the arithmetic primitives read their scalar
// operands before allocating the result and hold no reference afterward.

func (m *Machine) requireTag(op string, addr uint64, want object.Tag) error {
	got := m.Heap.Tag(addr)
	if got != want {
		return &TypeError{Op: op, Expected: want.String(), Got: got.String()}
	}
	return nil
}

// --- stack shuffling, §4.E -------------------------------------------------

// Swap: (a b -- b a)
func (m *Machine) Swap() {
	a, b := m.Pick(1), m.Pick(0)
	m.SetPick(1, b)
	m.SetPick(0, a)
}

// Dup: (a -- a a)
func (m *Machine) Dup() { m.Push(m.TOS()) }

// Drop: (a -- )
func (m *Machine) Drop() { m.Pop() }

// Over: (a b -- a b a)
func (m *Machine) Over() { m.Push(m.Pick(1)) }

// Nip: (a b -- b)
func (m *Machine) Nip() {
	b := m.Pop()
	m.Pop()
	m.Push(b)
}

// Rot: (a b c -- b c a)
func (m *Machine) Rot() {
	c, b, a := m.Pop(), m.Pop(), m.Pop()
	m.Push(b)
	m.Push(c)
	m.Push(a)
}

// --- pairs, §4.E ------------------------------------------------------------

// Cons: (a b -- a::b). Allocates.
func (m *Machine) Cons() error {
	addr, err := m.Heap.NewConsSlot()
	if err != nil {
		return err
	}
	b := m.Pop()
	a := m.Pop()
	m.Heap.SetRef(addr, 0, a)
	m.Heap.SetRef(addr, 1, b)
	m.Push(addr)
	return nil
}

// Decons: (a::b -- a b)
func (m *Machine) Decons() error {
	c := m.TOS()
	if err := m.requireTag("decons", c, object.TagCons); err != nil {
		return err
	}
	head := m.Heap.Ref(c, 0)
	tail := m.Heap.Ref(c, 1)
	m.Pop()
	m.Push(head)
	m.Push(tail)
	return nil
}

// Head: (a::b -- a)
func (m *Machine) Head() error {
	c := m.TOS()
	if err := m.requireTag("head", c, object.TagCons); err != nil {
		return err
	}
	m.Pop()
	m.Push(m.Heap.Ref(c, 0))
	return nil
}

// Tail: (a::b -- b)
func (m *Machine) Tail() error {
	c := m.TOS()
	if err := m.requireTag("tail", c, object.TagCons); err != nil {
		return err
	}
	m.Pop()
	m.Push(m.Heap.Ref(c, 1))
	return nil
}

// Append: (a b -- a++b), a must be a proper (NIL-terminated) list. Built
// iteratively off the operand stack rather than recursively, so every
// intermediate head value is a GC root throughout — matching the
// "Operand-stack-anchored locals" discipline rather than original
// core_append's recursive C-stack walk.
func (m *Machine) Append() error {
	b := m.Pop()
	a := m.Pop()

	count := 0
	cur := a
	for cur != m.Roots[RootNil] {
		if err := m.requireTag("++", cur, object.TagCons); err != nil {
			return err
		}
		m.Push(m.Heap.Ref(cur, 0))
		cur = m.Heap.Ref(cur, 1)
		count++
	}

	m.Push(b)
	for i := 0; i < count; i++ {
		acc := m.Pop()
		head := m.Pop()
		m.Push(head)
		m.Push(acc)
		if err := m.Cons(); err != nil {
			return err
		}
	}
	return nil
}

// --- equality and ordering, §4.E --------------------------------------------

type pairKey struct{ a, b uint64 }

// eqWork is one entry of structEq's work stack: a pair to compare, or
// (leave set) the marker that the pair's references are all compared.
type eqWork struct {
	p     pairKey
	leave bool
}

// Eq: (a b -- bool). Structural equality over the full object graph,
// comparing tag and binary payload directly and recursing into reference
// slots. Uses an explicit work stack rather than Go recursion (same
// rationale as the collector) and the set of pairs currently being
// compared to detect cycles: a structure found to recur into a pair
// still being compared is reported unequal rather than looping forever.
// A pair reached twice through shared, acyclic structure is compared
// again each time.
func (m *Machine) Eq() {
	b := m.Pop()
	a := m.Pop()
	if m.structEq(a, b) {
		m.Push(m.Roots[RootTrue])
	} else {
		m.Push(m.Roots[RootFalse])
	}
}

func (m *Machine) structEq(a0, b0 uint64) bool {
	onPath := make(map[pairKey]bool)
	work := []eqWork{{p: pairKey{a0, b0}}}

	for len(work) > 0 {
		w := work[len(work)-1]
		work = work[:len(work)-1]
		p := w.p
		if w.leave {
			delete(onPath, p)
			continue
		}

		if p.a == p.b {
			continue
		}
		if onPath[p] {
			return false
		}

		refsA, okA := m.Heap.Refs(p.a)
		refsB, okB := m.Heap.Refs(p.b)
		if okA != okB || refsA != refsB {
			return false
		}
		if !bytesEqual(m.Heap.BinaryBytes(p.a), m.Heap.BinaryBytes(p.b)) {
			return false
		}
		if okA {
			onPath[p] = true
			work = append(work, eqWork{p: p, leave: true})
			for i := 0; i < refsA; i++ {
				work = append(work, eqWork{p: pairKey{m.Heap.Ref(p.a, i), m.Heap.Ref(p.b, i)}})
			}
		}
	}
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Lt: (a b -- bool). INTEGER or REAL only, no mixing.
func (m *Machine) Lt() error {
	b := m.Pop()
	a := m.Pop()
	less, err := m.numericCompare("<", a, b)
	if err != nil {
		return err
	}
	if less {
		m.Push(m.Roots[RootTrue])
	} else {
		m.Push(m.Roots[RootFalse])
	}
	return nil
}

func (m *Machine) numericCompare(op string, a, b uint64) (bool, error) {
	ta, tb := m.Heap.Tag(a), m.Heap.Tag(b)
	if ta != tb {
		return false, &TypeError{Op: op, Expected: ta.String(), Got: tb.String()}
	}
	switch ta {
	case object.TagInteger:
		return m.Heap.Int64(a) < m.Heap.Int64(b), nil
	case object.TagReal:
		return m.Heap.Float64(a) < m.Heap.Float64(b), nil
	default:
		return false, &TypeError{Op: op, Expected: "INTEGER or REAL", Got: ta.String()}
	}
}

// --- arithmetic, §4.E --------------------------------------------------------

// Plus, Mul, Div, Neg operate on INTEGER or REAL, never mixed. Integer
// division by zero is fatal (DivideByZeroError); float
// division by zero is not special-cased and follows IEEE 754.

func (m *Machine) Plus() error { return m.arith("+", func(x, y int64) int64 { return x + y }, func(x, y float64) float64 { return x + y }) }
func (m *Machine) Mul() error {
	return m.arith("*", func(x, y int64) int64 { return x * y }, func(x, y float64) float64 { return x * y })
}

func (m *Machine) Div() error {
	b := m.Pop()
	a := m.Pop()
	ta, tb := m.Heap.Tag(a), m.Heap.Tag(b)
	if ta != tb {
		return &TypeError{Op: "/", Expected: ta.String(), Got: tb.String()}
	}
	switch ta {
	case object.TagInteger:
		bi := m.Heap.Int64(b)
		if bi == 0 {
			return &DivideByZeroError{Op: "/"}
		}
		addr, err := m.Heap.NewInteger(m.Heap.Int64(a) / bi)
		if err != nil {
			return err
		}
		m.Push(addr)
	case object.TagReal:
		addr, err := m.Heap.NewReal(m.Heap.Float64(a) / m.Heap.Float64(b))
		if err != nil {
			return err
		}
		m.Push(addr)
	default:
		return &TypeError{Op: "/", Expected: "INTEGER or REAL", Got: ta.String()}
	}
	return nil
}

func (m *Machine) arith(op string, iop func(x, y int64) int64, fop func(x, y float64) float64) error {
	b := m.Pop()
	a := m.Pop()
	ta, tb := m.Heap.Tag(a), m.Heap.Tag(b)
	if ta != tb {
		return &TypeError{Op: op, Expected: ta.String(), Got: tb.String()}
	}
	switch ta {
	case object.TagInteger:
		addr, err := m.Heap.NewInteger(iop(m.Heap.Int64(a), m.Heap.Int64(b)))
		if err != nil {
			return err
		}
		m.Push(addr)
	case object.TagReal:
		addr, err := m.Heap.NewReal(fop(m.Heap.Float64(a), m.Heap.Float64(b)))
		if err != nil {
			return err
		}
		m.Push(addr)
	default:
		return &TypeError{Op: op, Expected: "INTEGER or REAL", Got: ta.String()}
	}
	return nil
}

// Neg: (a -- -a)
func (m *Machine) Neg() error {
	a := m.Pop()
	switch m.Heap.Tag(a) {
	case object.TagInteger:
		addr, err := m.Heap.NewInteger(-m.Heap.Int64(a))
		if err != nil {
			return err
		}
		m.Push(addr)
	case object.TagReal:
		addr, err := m.Heap.NewReal(-m.Heap.Float64(a))
		if err != nil {
			return err
		}
		m.Push(addr)
	default:
		return &TypeError{Op: "neg", Expected: "INTEGER or REAL", Got: m.Heap.Tag(a).String()}
	}
	return nil
}

// --- environments, §4.E ------------------------------------------------------
//
// An environment is an association list: NIL, or CONS(CONS(key, value),
// rest). Shadowing is by prepend; there is no in-place mutation of a
// binding (extend always conses a new pair onto the front).

// Lookup: (env key -- value TRUE | FALSE). Walks the association list
// linearly, comparing keys with the same structural equality as `=`.
func (m *Machine) Lookup() error {
	key := m.Pop()
	env := m.Pop()

	cur := env
	for cur != m.Roots[RootNil] {
		if err := m.requireTag("lookup", cur, object.TagCons); err != nil {
			return err
		}
		pair := m.Heap.Ref(cur, 0)
		if err := m.requireTag("lookup", pair, object.TagCons); err != nil {
			return err
		}
		if m.structEq(m.Heap.Ref(pair, 0), key) {
			m.Push(m.Heap.Ref(pair, 1))
			m.Push(m.Roots[RootTrue])
			return nil
		}
		cur = m.Heap.Ref(cur, 1)
	}
	m.Push(m.Roots[RootFalse])
	return nil
}

// Extend: (env key value -- env'). Always prepends; never mutates an
// existing binding, so closures that captured the old environment value
// are unaffected (spec invariant).
func (m *Machine) Extend() error {
	// (env key value -- env') is (env (key . value) . env) built from the
	// inside out: cons(key,value), then cons(pair, env).
	if err := m.Cons(); err != nil { // (key value -- pair), consumes TOS=value, NOS=key
		return err
	}
	pair := m.Pop()
	env := m.Pop()
	m.Push(pair)
	m.Push(env)
	return m.Cons()
}

// --- closures and dispatch, §4.E ---------------------------------------------

// Lambda: (vars body env -- closure). Allocates the slot before popping
// operands, so vars/body/env ride out a collection on the operand stack.
func (m *Machine) Lambda() error {
	addr, err := m.Heap.NewLambdaSlot()
	if err != nil {
		return err
	}
	env := m.Pop()
	body := m.Pop()
	vars := m.Pop()
	m.Heap.SetRef(addr, 0, vars)
	m.Heap.SetRef(addr, 1, body)
	m.Heap.SetRef(addr, 2, env)
	m.Push(addr)
	return nil
}

// Execute: (natfun -- ...). Pops a NATFUN and dispatches to the
// registered Go function at its table index. Different primitives
// consume different numbers of operands before they can even discover
// a type error (arithmetic pops both before checking; head/tail check
// the still-unpopped TOS first), so a failing call's net effect on the
// stack varies by which primitive ran. Execute makes that invisible to
// its caller: on any error it restores the operand stack to the depth it
// had on entry (the NATFUN slot included), so a caller up the chain can
// discard a known number of slots regardless of which natfun was
// invoked. The restored slots are not guaranteed to hold their original
// values: a failing primitive may already have overwritten them.
func (m *Machine) Execute() error {
	depthBefore := m.Depth()
	f := m.Pop()
	if err := m.requireTag("execute", f, object.TagNatfun); err != nil {
		m.Push(f)
		return err
	}
	idx := m.Heap.NatfunIndex(f)
	if idx >= uint64(len(m.Natives)) {
		panic("BUG: natfun dispatch index out of range")
	}
	if err := m.Natives[idx](m); err != nil {
		m.SP = StackSize - depthBefore
		return err
	}
	return nil
}
