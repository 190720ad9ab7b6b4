// Package eval implements the tree-walking evaluator of §4.F: self-
// evaluating atoms, symbol lookup through the environment chain, the
// four special forms (lambda, quote, if, define), and application of
// LAMBDA closures (strict arity) or NATFUN primitives (via the operand
// stack, exactly as internal/vm's `execute` primitive already does for
// hand-written natfun calls).
//
// Every function here follows the same GC discipline as internal/vm:
// any heap reference that must survive a call which might allocate
// (and so might trigger a collection) is pushed onto the operand stack
// first and read back afterward, never trusted as a bare Go local
// across such a call. Grounded on original_source/lisp.c's eval().
//
// A natfun call's net effect on the stack when it errors varies by
// which natfun it was (arithmetic pops both operands before checking
// their type; head/tail check the still-unpopped TOS first and pop
// nothing on a type mismatch) — internal/vm's Execute hides that by
// rolling the stack back to exactly where it stood before the call on
// any error, so callers here can unwind a known, fixed number of slots
// regardless of which primitive ran. The other error paths of
// evalCombination and applyLambda (an argument or operator failing to
// evaluate, a non-callable operator, an arity mismatch, an Extend
// running out of memory mid-bind) return without unwinding their
// scratch slots; internal/interp resets the operand stack to empty after
// any error that reaches the top level, before reading the next form.
package eval

import (
	"lisp1k/internal/object"
	"lisp1k/internal/vm"
)

// Eval is the natfun entry point with stack effect (env expr -- value),
// registered under the name "eval" by internal/interp.
func Eval(m *vm.Machine) error {
	expr := m.Pop()
	env := m.Pop()
	val, err := evalExpr(m, env, expr)
	if err != nil {
		return err
	}
	m.Push(val)
	return nil
}

// evalExpr evaluates expr in env and returns the resulting value. On
// success it leaves the operand stack exactly as deep as it found it:
// any scratch pushes it makes to protect a value across an allocating
// call are popped again before returning. Some error paths leave scratch
// slots behind (see the package comment).
func evalExpr(m *vm.Machine, env, expr uint64) (uint64, error) {
	switch m.Heap.Tag(expr) {
	case object.TagSymbol:
		m.Push(env)
		m.Push(expr)
		if err := m.Lookup(); err != nil {
			return 0, err
		}
		found := m.Pop()
		if found != m.Roots[vm.RootTrue] {
			// A miss leaves only FALSE, no value slot.
			return 0, &vm.UnboundError{Name: m.Heap.Name(expr)}
		}
		return m.Pop(), nil
	case object.TagCons:
		return evalCombination(m, env, expr)
	default:
		// INTEGER, REAL, BOOL, NIL, STRING, NATFUN, LAMBDA all evaluate
		// to themselves.
		return expr, nil
	}
}

func evalCombination(m *vm.Machine, env, expr uint64) (uint64, error) {
	car := m.Heap.Ref(expr, 0)
	cdr := m.Heap.Ref(expr, 1)

	if m.Heap.Tag(car) == object.TagSymbol {
		switch m.Heap.Name(car) {
		case "quote":
			return m.Heap.Ref(cdr, 0), nil
		case "if":
			return evalIf(m, env, cdr)
		case "lambda":
			return evalLambda(m, env, cdr)
		case "define":
			return evalDefine(m, env, cdr)
		}
	}

	// Application. Evaluate every argument expression left to right,
	// protecting env, the unevaluated operator expression, and the
	// not-yet-processed tail of the argument list at fixed operand-stack
	// depths across each evaluation (any of which may allocate and so
	// may relocate all three). Each evaluated argument value, once
	// produced, is itself pushed and needs no further special handling
	// beyond normal stack-root visibility.
	m.Push(env)  // depth argc+2 once argc args are on top
	m.Push(car)  // depth argc+1
	m.Push(cdr)  // depth argc   (cursor over the remaining arg-expr list)

	argc := 0
	for {
		cur := m.Pick(argc)
		if cur == m.Roots[vm.RootNil] {
			break
		}
		if err := requireCons(m, "application", cur); err != nil {
			return 0, err
		}
		argExpr := m.Heap.Ref(cur, 0)
		next := m.Heap.Ref(cur, 1)
		m.SetPick(argc, next)
		curEnv := m.Pick(argc + 2)
		val, err := evalExpr(m, curEnv, argExpr)
		if err != nil {
			return 0, err
		}
		m.Push(val)
		argc++
	}

	// Stack now: args (argc, TOS = last arg) / cursor(NIL) / carSlot /
	// envSlot. Evaluate the operator without disturbing any of it.
	opExpr := m.Pick(argc + 1)
	opEnv := m.Pick(argc + 2)
	opVal, err := evalExpr(m, opEnv, opExpr)
	if err != nil {
		return 0, err
	}
	m.Push(opVal) // depth 0; args now at 1..argc, cursor/carSlot/envSlot follow

	switch tag := m.Heap.Tag(opVal); tag {
	case object.TagNatfun:
		if err := m.Execute(); err != nil {
			// Execute restores the stack to the depth it found it at on
			// error (see its doc comment), so the operator slot and the
			// argc+3 dead slots below it are all still there.
			unwind(m, argc+4)
			return 0, err
		}
		result := m.Pop()
		unwind(m, 3)
		return result, nil
	case object.TagLambda:
		return applyLambda(m, argc)
	default:
		return 0, &vm.NotCallableError{Got: tag.String()}
	}
}

// applyLambda runs a closure against argc already-evaluated arguments
// sitting on the operand stack (closure at depth 0, arguments at
// 1..argc, followed by the three dead bookkeeping slots evalCombination
// left behind). It is responsible for the entire remaining stack and, on
// success, leaves it exactly as deep as evalCombination found it; its
// error returns do not unwind (see the package comment).
func applyLambda(m *vm.Machine, argc int) (uint64, error) {
	closure := m.Pop()
	vars := m.Heap.Ref(closure, 0)
	body := m.Heap.Ref(closure, 1)
	closureEnv := m.Heap.Ref(closure, 2)

	// Arguments were pushed in list order, so the first-evaluated one
	// ended up deepest; reverse in place so index k lines up with the
	// k-th formal parameter. Pure rearrangement, no allocation involved.
	for i, j := 0, argc-1; i < j; i, j = i+1, j-1 {
		a, b := m.Pick(i), m.Pick(j)
		m.SetPick(i, b)
		m.SetPick(j, a)
	}

	m.Push(vars)       // depth 2 once body/accEnv follow
	m.Push(body)       // depth 1
	m.Push(closureEnv) // depth 0: the accumulating environment

	cleanup := func() { unwind(m, argc+6) }

	for k := 0; k < argc; k++ {
		varsList := m.Pick(2)
		if varsList == m.Roots[vm.RootNil] {
			return 0, &vm.ArityError{Reason: "too many arguments"}
		}
		if err := requireCons(m, "lambda application", varsList); err != nil {
			return 0, err
		}
		varSym := m.Heap.Ref(varsList, 0)
		nextVars := m.Heap.Ref(varsList, 1)
		m.SetPick(2, nextVars)

		argVal := m.Pick(3 + k)
		accEnv := m.Pick(0)
		m.Push(accEnv)
		m.Push(varSym)
		m.Push(argVal)
		if err := m.Extend(); err != nil {
			return 0, err
		}
		newEnv := m.Pop()
		m.SetPick(0, newEnv)
	}

	if m.Pick(2) != m.Roots[vm.RootNil] {
		return 0, &vm.ArityError{Reason: "too few arguments"}
	}

	finalEnv := m.Pick(0)
	bodyExpr := m.Pick(1)
	result, err := evalExpr(m, finalEnv, bodyExpr)
	if err != nil {
		// evalExpr's own error paths do not guarantee a balanced stack
		// (see package doc comment), so cleanup's fixed pop count cannot
		// be trusted here; leave it for the driver's top-level reset.
		return 0, err
	}
	cleanup()
	return result, nil
}

func evalIf(m *vm.Machine, env, rest uint64) (uint64, error) {
	condExpr := m.Heap.Ref(rest, 0)
	m.Push(env)
	m.Push(rest)
	condVal, err := evalExpr(m, env, condExpr)
	if err != nil {
		unwind(m, 2)
		return 0, err
	}
	rest = m.Pop()
	env = m.Pop()

	rest2 := m.Heap.Ref(rest, 1)
	if condVal == m.Roots[vm.RootFalse] {
		elseExpr := m.Heap.Ref(m.Heap.Ref(rest2, 1), 0)
		return evalExpr(m, env, elseExpr)
	}
	thenExpr := m.Heap.Ref(rest2, 0)
	return evalExpr(m, env, thenExpr)
}

func evalLambda(m *vm.Machine, env, rest uint64) (uint64, error) {
	vars := m.Heap.Ref(rest, 0)
	body := m.Heap.Ref(m.Heap.Ref(rest, 1), 0)

	m.Push(vars)
	m.Push(body)
	m.Push(env)
	if err := m.Lambda(); err != nil {
		unwind(m, 3)
		return 0, err
	}
	return m.Pop(), nil
}

// evalDefine always binds into GLOBAL, never into the lexical env it is
// evaluated under — this system has exactly one mutable environment
// table, matching the original's global-only define (see DESIGN.md).
// It returns NIL.
func evalDefine(m *vm.Machine, env, rest uint64) (uint64, error) {
	name := m.Heap.Ref(rest, 0)
	body := m.Heap.Ref(m.Heap.Ref(rest, 1), 0)

	if err := requireSymbol(m, "define", name); err != nil {
		return 0, err
	}

	m.Push(name)
	val, err := evalExpr(m, env, body)
	if err != nil {
		unwind(m, 1)
		return 0, err
	}
	name = m.Pop()

	m.Push(m.Roots[vm.RootGlobal])
	m.Push(name)
	m.Push(val)
	if err := m.Extend(); err != nil {
		return 0, err
	}
	m.Roots[vm.RootGlobal] = m.Pop()
	return m.Roots[vm.RootNil], nil
}

func requireCons(m *vm.Machine, op string, addr uint64) error {
	if m.Heap.Tag(addr) != object.TagCons {
		return &vm.TypeError{Op: op, Expected: "CONS", Got: m.Heap.Tag(addr).String()}
	}
	return nil
}

func requireSymbol(m *vm.Machine, op string, addr uint64) error {
	if m.Heap.Tag(addr) != object.TagSymbol {
		return &vm.TypeError{Op: op, Expected: "SYMBOL", Got: m.Heap.Tag(addr).String()}
	}
	return nil
}

func unwind(m *vm.Machine, n int) {
	for i := 0; i < n; i++ {
		m.Pop()
	}
}
