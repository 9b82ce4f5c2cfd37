package vm

import (
	"github.com/wudi/mrblite/class"
	"github.com/wudi/mrblite/irep"
	"github.com/wudi/mrblite/procs"
	"github.com/wudi/mrblite/values"
)

// send implements §4.5's "Send (core of the loop)": resolve the method
// against recv's class, substitute method_missing on a miss (reshaping
// the argument list per §4.3 item 4), build a call-info, and either
// invoke a Go method directly (no call-info is pushed for it) or hand the
// call-info to invoke, which pushes it and recurses into the bytecode
// dispatch loop for a Proc method.
func (s *State) send(f *FiberContext, recv values.Value, sym values.SymbolID, argv []values.Value, block values.Value) (values.Value, *Error) {
	recvClass := s.classFor(recv)
	resolved, method, usedMissing, found := class.ResolveOrMissing(recvClass, sym, s.MethodMissingSym, s.Cache)
	if !found {
		return values.Nil, s.raise(ErrNoMethod, "undefined method '%s'", s.Syms.MustName(sym))
	}
	calledSym := sym
	if usedMissing {
		reshaped := make([]values.Value, 0, len(argv)+1)
		reshaped = append(reshaped, values.Sym(sym))
		reshaped = append(reshaped, argv...)
		argv = reshaped
		calledSym = s.MethodMissingSym
	}

	ci := CallInfo{
		MethodID:     calledSym,
		TargetClass:  resolved,
		StackOffset:  f.Base,
		Argc:         len(argv),
		AcceptSlot:   AcceptNormal,
		RescueDepth:  len(f.RescueStack),
		EnsureDepth:  len(f.EnsureStack),
		PendingArgv:  argv,
		PendingBlock: block,
	}

	if method.Kind == class.MethodGo {
		result, err := method.Go(recv, argv, block)
		if err != nil {
			if verr, ok := err.(*Error); ok {
				return values.Nil, verr
			}
			return values.Nil, s.raise(ErrRuntime, "%v", err)
		}
		return result, nil
	}

	bp, ok := method.Proc.(*procs.Proc)
	if !ok || bp.Irep == nil {
		return values.Nil, s.raise(ErrNoMethod, "method '%s' has no callable body", s.Syms.MustName(calledSym))
	}
	return s.invoke(f, bp, recv, ci)
}

// invoke runs a bytecode Proc as a new frame on fiber f: it saves the
// caller's resume point, extends the stack, places self into the new
// frame's register 0, pushes ci (with PendingArgv/PendingBlock already
// set by send or by the opcode loop's LAMBDA/CALL handling), and
// recurses into run(). On return it restores the caller's resume point
// and pops the call-info.
func (s *State) invoke(f *FiberContext, p *procs.Proc, self values.Value, ci CallInfo) (values.Value, *Error) {
	ir := p.Irep
	savedBase, savedIrep, savedPC := f.Base, f.curIrep, f.PC

	// The new frame is placed immediately above the caller's current
	// frame rather than overlapping the receiver's register in place
	// (the C implementation's memory-saving layout, §4.5 item 5) — an
	// adaptation documented in DESIGN.md: frame placement is an
	// allocation-policy detail invisible to correct bytecode, and a
	// disjoint-frame layout is the natural fit for a slice-backed stack
	// that also has to support env relocation.
	frameSize := 0
	if savedIrep != nil {
		frameSize = int(savedIrep.NRegs)
	}
	newBase := savedBase + frameSize

	f.Base = newBase
	if verr := s.ensureStack(f, int(ir.NRegs)); verr != nil {
		f.Base = savedBase
		return values.Nil, verr
	}
	regs := f.Stack[f.Base : f.Base+int(ir.NRegs)]
	regs[0] = self

	ci.CallerIrep = savedIrep
	ci.CallerPC = savedPC
	ci.CallerBase = savedBase
	ci.StackOffset = newBase
	ci.Proc = p
	p.ClearOrphan()
	f.pushCI(ci)
	f.curIrep = ir
	f.PC = 0

	result, err := s.run(f, p)

	popped := f.popCI()
	f.unshareFrom(popped.StackOffset)
	f.Base = popped.CallerBase
	f.curIrep = popped.CallerIrep
	f.PC = popped.CallerPC
	return result, err
}

// Funcall implements §6.2's `funcall(state, receiver, method_name, argc,
// argv) -> value`: invoke a method from the host, on the current fiber,
// propagating any raised exception as a Go error instead of a long jump.
func (s *State) Funcall(recv values.Value, name string, argv []values.Value, block values.Value) (values.Value, error) {
	sym := s.Syms.Intern(name)
	v, err := s.send(s.Current, recv, sym, argv, block)
	if err != nil {
		return values.Nil, err
	}
	return v, nil
}

// Load implements §6.2's `load(state, bytes) -> value`: parse a compiled
// unit and execute its top-level irep on the root fiber with self set to
// the top-level main object (an ordinary Object instance, per mruby's
// convention of running top-level code against a fresh `main`).
func (s *State) Load(data []byte) (values.Value, error) {
	root, _, lerr := irep.Load(data, s.Syms)
	if lerr != nil {
		return values.Nil, lerr
	}
	main := values.Obj(track(s, class.NewInstance(s.ObjectClass)))
	p := track(s, procs.NewBytecodeProc(root, nil, s.ObjectClass))
	ci := CallInfo{
		MethodID:    0,
		TargetClass: s.ObjectClass,
		AcceptSlot:  AcceptSkip,
	}
	v, err := s.invoke(s.Current, p, main, ci)
	if err != nil {
		return values.Nil, err
	}
	return v, nil
}
