package vm

// Register adds a native function to the dispatch table and binds it in
// the GLOBAL environment under name, in the style of the original
// source's DEFINE_NATFUN macro: allocate a NATFUN object carrying a
// dispatch index, a SYMBOL for its name, then extend GLOBAL with the
// pair. Order of registration matters only in that later calls can
// shadow earlier ones (association-list prepend semantics).
func (m *Machine) Register(name string, fn NativeFunc) error {
	idx := uint64(len(m.Natives))
	m.Natives = append(m.Natives, fn)
	m.nativeNames = append(m.nativeNames, name)

	natAddr, err := m.Heap.NewNatfun(idx)
	if err != nil {
		return err
	}
	m.Push(natAddr) // protect across the allocation below

	symAddr, err := m.Heap.NewSymbol(name)
	if err != nil {
		return err
	}
	m.Push(symAddr)

	// Both addresses may have moved during either allocation's GC, so
	// read the current values back off the stack rather than trusting
	// the local variables above. TOS is sym (pushed last), then nat.
	sym := m.Pop()
	nat := m.Pop()
	m.Push(m.Roots[RootGlobal])
	m.Push(sym)
	m.Push(nat)
	if err := m.Extend(); err != nil {
		return err
	}
	m.Roots[RootGlobal] = m.Pop()
	return nil
}

// NativeName returns the registered name of dispatch index idx, for
// diagnostics. (The printer does not use it: a NATFUN prints as its tag
// ordinal.)
func (m *Machine) NativeName(idx uint64) string {
	if idx >= uint64(len(m.nativeNames)) {
		return "?"
	}
	return m.nativeNames[idx]
}

// InitCore registers every stack/arithmetic/environment primitive of
// §4.E that does not require the reader, evaluator, or printer (those
// three — parse/eval/print — are registered by internal/interp once it
// has constructed the components they delegate to). The name list
// matches §6's global-bindings table, minus parse/eval/print.
func (m *Machine) InitCore() error {
	bindings := []struct {
		name string
		fn   NativeFunc
	}{
		{"cons", func(m *Machine) error { return m.Cons() }},
		{"decons", func(m *Machine) error { return m.Decons() }},
		{"head", func(m *Machine) error { return m.Head() }},
		{"tail", func(m *Machine) error { return m.Tail() }},
		{"++", func(m *Machine) error { return m.Append() }},
		{"=", func(m *Machine) error { m.Eq(); return nil }},
		{"<", func(m *Machine) error { return m.Lt() }},
		{"+", func(m *Machine) error { return m.Plus() }},
		{"*", func(m *Machine) error { return m.Mul() }},
		{"/", func(m *Machine) error { return m.Div() }},
		{"neg", func(m *Machine) error { return m.Neg() }},
		{"extend", func(m *Machine) error { return m.Extend() }},
		{"lookup", func(m *Machine) error { return m.Lookup() }},
		{"global", func(m *Machine) error { m.Push(m.Roots[RootGlobal]); return nil }},
		{"global!", func(m *Machine) error { m.Roots[RootGlobal] = m.Pop(); return nil }},
		{"swap", func(m *Machine) error { m.Swap(); return nil }},
		{"dup", func(m *Machine) error { m.Dup(); return nil }},
		{"drop", func(m *Machine) error { m.Drop(); return nil }},
		{"over", func(m *Machine) error { m.Over(); return nil }},
		{"nip", func(m *Machine) error { m.Nip(); return nil }},
		{"rot", func(m *Machine) error { m.Rot(); return nil }},
		{"execute", func(m *Machine) error { return m.Execute() }},
	}
	for _, b := range bindings {
		if err := m.Register(b.name, b.fn); err != nil {
			return err
		}
	}
	return nil
}
