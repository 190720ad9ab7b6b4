// Package interp wires the heap, operand stack, reader, evaluator, and
// printer together into one interpreter instance and drives the
// read-eval-print loop of §4.G. It owns the `parse`/`eval`/`print`
// native bindings that internal/vm.InitCore cannot register itself,
// since those three delegate to internal/reader, internal/eval, and
// internal/printer — packages internal/vm must not import, on pain of
// an import cycle (all three already depend on internal/vm).
//
// One *Interpreter is one self-contained instance: its own heap, stack,
// root set, and logger, nothing shared across instances (§9's design
// note on why GLOBAL lives on the instance rather than as a process-wide
// singleton, specifically so tests can run independent interpreters in
// parallel). Grounded in shape on a driver that runs ResolveModule/
// CompileModule/GenerateELF as one linear pipeline, generalized here to
// a loop rather than a one-shot pipeline, and on original_source/lisp.c's
// main()'s read-eval loop.
package interp

import (
	"bufio"
	"fmt"
	"io"

	"go.uber.org/zap"

	"lisp1k/internal/eval"
	"lisp1k/internal/printer"
	"lisp1k/internal/reader"
	"lisp1k/internal/vm"
)

const (
	defaultHeapInitial = 1 << 20 // 1 MiB
	defaultHeapMax     = 1 << 28 // 256 MiB
)

// Options configures a new Interpreter. A zero Options is valid: it
// picks the default heap sizes and a no-op logger.
type Options struct {
	HeapInitial uint64
	HeapMax     uint64
	Log         *zap.Logger
	GCStats     bool
}

// Interpreter owns one machine, the current input source, and the
// output sink `print` writes to.
type Interpreter struct {
	Machine *vm.Machine
	Log     *zap.Logger

	gcStats bool
	out     *bufio.Writer
	in      *reader.Reader
}

// New constructs an interpreter: a fresh heap and stack, the core
// stack/arithmetic/environment primitives, and the parse/eval/print
// bindings layered on top of them. Output (what `print` writes to)
// goes to w.
func New(opts Options, w io.Writer) (*Interpreter, error) {
	if opts.HeapInitial == 0 {
		opts.HeapInitial = defaultHeapInitial
	}
	if opts.HeapMax == 0 {
		opts.HeapMax = defaultHeapMax
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	m, err := vm.New(opts.HeapInitial, opts.HeapMax, opts.Log)
	if err != nil {
		return nil, err
	}
	opts.Log.Debug("heap created",
		zap.Uint64("initial", opts.HeapInitial),
		zap.Uint64("max", opts.HeapMax))

	if err := m.InitCore(); err != nil {
		return nil, err
	}

	it := &Interpreter{
		Machine: m,
		Log:     opts.Log,
		gcStats: opts.GCStats,
		out:     bufio.NewWriter(w),
	}
	if err := it.registerExtras(); err != nil {
		return nil, err
	}
	return it, nil
}

// registerExtras binds parse/eval/print into GLOBAL, the three natfuns
// internal/vm.InitCore leaves out.
func (it *Interpreter) registerExtras() error {
	bindings := []struct {
		name string
		fn   vm.NativeFunc
	}{
		{"parse", it.natParse},
		{"eval", eval.Eval},
		{"print", it.natPrint},
	}
	for _, b := range bindings {
		if err := it.Machine.Register(b.name, b.fn); err != nil {
			return err
		}
	}
	return nil
}

// SetInput points subsequent parses (both the `parse` natfun and the
// read loop) at r. RunLoop and RunExpr call it themselves with their own
// input.
func (it *Interpreter) SetInput(r io.Reader) {
	it.in = reader.New(r)
}

// natParse: ( -- expr true | () false ). Reads one top-level form from
// the interpreter's current input. false signals clean end of input; a
// malformed form is a syntax error, fatal per §7, so unlike the
// original's three-way true/false/nil signal (nil meant "stray )"),
// here any genuine parse failure is returned as a Go error instead of a
// stack value, and only exhaustion of the input is reported in-band.
func (it *Interpreter) natParse(m *vm.Machine) error {
	if it.in == nil {
		return fmt.Errorf("parse: no input configured")
	}
	addr, ok, err := it.in.Read(m)
	if err != nil {
		return err
	}
	if !ok {
		m.Push(m.Roots[vm.RootNil])
		m.Push(m.Roots[vm.RootFalse])
		return nil
	}
	m.Push(addr)
	m.Push(m.Roots[vm.RootTrue])
	return nil
}

// natPrint: (value -- nil). Writes value's printed form followed by a
// newline and leaves NIL on the stack in its place, matching core_print's
// "(expr -- nil)" contract: print is a side-effecting statement, not an
// identity function, so `(+ 1 (print 5))` is a type error here exactly as
// it is in the original.
func (it *Interpreter) natPrint(m *vm.Machine) error {
	val := m.Pop()
	fmt.Fprintln(it.out, printer.Sprint(m.Heap, val))
	if err := it.out.Flush(); err != nil {
		return err
	}
	m.Push(m.Roots[vm.RootNil])
	return nil
}
