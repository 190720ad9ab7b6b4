// Package vm implements the root set, operand stack, and stack
// primitives of §4.C and §4.E: the fixed-capacity evaluation substrate
// that both the evaluator (internal/eval) and the reader/printer build
// on. Every primitive here is itself a GC root source by construction —
// none of them hold a heap reference anywhere except on the operand
// stack or in Machine.Roots, following the "Operand-stack-anchored
// locals" design note: any bare local holding a reference across an
// allocating call is a bug class this package is built to avoid.
//
// Grounded on std/compiler/backend_vm.go's VM type (stack []uint64, sp
// int, push/pop) for the operand-stack shape, and on
// original_source/core.c for primitive semantics.
package vm

import (
	"go.uber.org/zap"

	"lisp1k/internal/object"
)

// StackSize is the fixed operand-stack capacity of §4.C.
const StackSize = 4096

// Root indices into Machine.Roots, matching the ROOT_* enum in
// original_source/mem.c.
const (
	RootNil = iota
	RootTrue
	RootFalse
	RootGlobal
	rootsSize
)

// NativeFunc is a primitive operator invokable via `execute`. It is the
// Go analogue of the C original's `natfun` function-pointer type.
type NativeFunc func(m *Machine) error

// Machine owns one heap, one operand stack, and the four named roots —
// the complete GC-visible state of one interpreter instance. Per the
// GLOBAL-root design note (spec §9), this is an explicit value a caller
// constructs and threads through, never a process-wide singleton, so
// tests can run independent interpreters concurrently.
type Machine struct {
	Heap *object.Heap

	Stack []uint64 // length StackSize; [SP:] is the live range
	SP    int      // index of TOS; grows downward from StackSize

	Roots [rootsSize]uint64

	Natives     []NativeFunc
	nativeNames []string

	Log *zap.Logger
}

// New constructs a Machine with a heap of the given initial/maximum
// capacity, and allocates the NIL/TRUE/FALSE singletons plus an empty
// GLOBAL environment. It does not install any native-function bindings;
// callers use Register (and higher-level packages like internal/interp)
// to build up the initial global environment.
func New(heapInitial, heapMax uint64, log *zap.Logger) (*Machine, error) {
	m := &Machine{
		Stack: make([]uint64, StackSize),
		SP:    StackSize,
		Log:   log,
	}
	m.Heap = object.New(heapInitial, heapMax, m.gcRoots, log)

	nilAddr, err := m.Heap.NewNil()
	if err != nil {
		return nil, err
	}
	trueAddr, err := m.Heap.NewBool(true)
	if err != nil {
		return nil, err
	}
	falseAddr, err := m.Heap.NewBool(false)
	if err != nil {
		return nil, err
	}
	m.Roots[RootNil] = nilAddr
	m.Roots[RootTrue] = trueAddr
	m.Roots[RootFalse] = falseAddr
	m.Roots[RootGlobal] = nilAddr

	return m, nil
}

// gcRoots is the object.RootSource the heap calls on every collection: the
// live operand-stack range, then the named roots array.
func (m *Machine) gcRoots() [][]uint64 {
	return [][]uint64{m.Stack[m.SP:], m.Roots[:]}
}

// Push places v on top of the operand stack. Overflow is a stack-
// discipline bug (spec §7), not a user-facing error, so it panics.
func (m *Machine) Push(v uint64) {
	if m.SP == 0 {
		panic("BUG: operand stack overflow")
	}
	m.SP--
	m.Stack[m.SP] = v
}

// Pop removes and returns the top of the operand stack. Underflow is a
// stack-discipline bug, not a user-facing error, so it panics.
func (m *Machine) Pop() uint64 {
	if m.SP >= StackSize {
		panic("BUG: operand stack underflow")
	}
	v := m.Stack[m.SP]
	m.SP++
	return v
}

// Pick returns the nth slot from the top without popping (0 is TOS).
func (m *Machine) Pick(n int) uint64 {
	if m.SP+n >= StackSize || n < 0 {
		panic("BUG: operand stack underflow")
	}
	return m.Stack[m.SP+n]
}

// SetPick overwrites the nth slot from the top without changing depth.
func (m *Machine) SetPick(n int, v uint64) {
	if m.SP+n >= StackSize || n < 0 {
		panic("BUG: operand stack underflow")
	}
	m.Stack[m.SP+n] = v
}

func (m *Machine) TOS() uint64 { return m.Pick(0) }
func (m *Machine) NOS() uint64 { return m.Pick(1) }

// Depth returns the number of values currently on the operand stack.
func (m *Machine) Depth() int { return StackSize - m.SP }
