package vm

import (
	"github.com/wudi/mrblite/class"
	"github.com/wudi/mrblite/irep"
	"github.com/wudi/mrblite/opcodes"
	"github.com/wudi/mrblite/procs"
	"github.com/wudi/mrblite/values"
)

// execSend decodes one SEND/SENDB/SENDV/SENDVB instruction's operands and
// dispatches through send (§4.5 opcode family table). The non-V forms carry
// a fixed argc in inst.C starting at register A+1; the V forms instead read
// one already-built array register holding every argument (the "argc given
// as one packed array" case, produced by a prior ARYCAT/ARRAY2 splat
// sequence).
func (s *State) execSend(f *FiberContext, p *procs.Proc, ir *irep.Irep, inst opcodes.Instruction, splat bool, withBlock bool) (values.Value, *Error) {
	recv := f.getReg(inst.A)
	sym := ir.Syms[inst.B]

	var argv []values.Value
	var block values.Value = values.Nil

	if splat {
		arr, ok := f.getReg(inst.A + 1).HeapObj().(*values.RArray)
		if !ok {
			return values.Nil, s.raise(ErrType, "no implicit conversion to Array")
		}
		argv = append([]values.Value(nil), arr.Elems...)
		if withBlock {
			block = f.getReg(inst.A + 2)
		}
	} else {
		argc := int(inst.C)
		argv = make([]values.Value, argc)
		for i := 0; i < argc; i++ {
			argv[i] = f.getReg(inst.A + 1 + int32(i))
		}
		if withBlock {
			block = f.getReg(inst.A + 1 + int32(argc))
		}
	}

	return s.send(f, recv, sym, argv, block)
}

// execSuper implements the SUPER opcode (§4.5): resolve MethodID starting
// one step past the call-info's TargetClass, reusing the original argument
// list when inst.B's explicit count is negative (ARGARY having already
// built it), or rebinding a fresh explicit list otherwise.
func (s *State) execSuper(f *FiberContext, p *procs.Proc, ir *irep.Irep, inst opcodes.Instruction) (values.Value, *Error) {
	ci := f.currentCI()
	if ci == nil || ci.TargetClass == nil {
		return values.Nil, s.raise(ErrRuntime, "super called outside of a method")
	}

	var argv []values.Value
	if inst.B < 0 {
		argv = ci.PendingArgv
	} else {
		argc := int(inst.B)
		argv = make([]values.Value, argc)
		for i := 0; i < argc; i++ {
			argv[i] = f.getReg(inst.A + 1 + int32(i))
		}
	}

	self := f.getReg(0)
	start := ci.TargetClass.Super()
	if start == nil {
		return values.Nil, s.raise(ErrNoMethod, "super: no superclass for '%s'", s.Syms.MustName(ci.MethodID))
	}
	resolved, method, found := class.Resolve(start, ci.MethodID, s.Cache)
	if !found {
		return values.Nil, s.raise(ErrNoMethod, "super: no superclass method '%s'", s.Syms.MustName(ci.MethodID))
	}

	if method.Kind == class.MethodGo {
		result, err := method.Go(self, argv, values.Nil)
		if err != nil {
			if verr, ok := err.(*Error); ok {
				return values.Nil, verr
			}
			return values.Nil, s.raise(ErrRuntime, "%v", err)
		}
		return result, nil
	}

	bp, ok := method.Proc.(*procs.Proc)
	if !ok {
		return values.Nil, s.raise(ErrNoMethod, "super target has no callable body")
	}
	newCI := CallInfo{
		MethodID:    ci.MethodID,
		TargetClass: resolved,
		Argc:        len(argv),
		AcceptSlot:  AcceptNormal,
		RescueDepth: len(f.RescueStack),
		EnsureDepth: len(f.EnsureStack),
		PendingArgv: argv,
	}
	return s.invoke(f, bp, self, newCI)
}

// callProc invokes a Proc directly against self/argv/block, used by the
// CALL opcode and by ensure-handler (EPOP) execution. A Go-native Proc runs
// inline; a bytecode Proc recurses into invoke/run like any method body.
func (s *State) callProc(f *FiberContext, pr *procs.Proc, self values.Value, argv []values.Value, block values.Value) (values.Value, *Error) {
	if pr == nil {
		return values.Nil, nil
	}
	if pr.IsCFunc() {
		result, err := pr.Native(self, argv, block)
		if err != nil {
			if verr, ok := err.(*Error); ok {
				return values.Nil, verr
			}
			return values.Nil, s.raise(ErrRuntime, "%v", err)
		}
		return result, nil
	}
	ci := CallInfo{
		TargetClass:  pr.TargetClass,
		Proc:         pr,
		Env:          pr.Env,
		Argc:         len(argv),
		AcceptSlot:   AcceptNormal,
		RescueDepth:  len(f.RescueStack),
		EnsureDepth:  len(f.EnsureStack),
		PendingArgv:  argv,
		PendingBlock: block,
	}
	return s.invoke(f, pr, self, ci)
}

func arithMethodName(op opcodes.Opcode) (string, bool) {
	switch op {
	case opcodes.OP_ADD:
		return "+", true
	case opcodes.OP_SUB:
		return "-", true
	case opcodes.OP_MUL:
		return "*", true
	case opcodes.OP_DIV:
		return "/", true
	case opcodes.OP_EQ:
		return "==", true
	case opcodes.OP_LT:
		return "<", true
	case opcodes.OP_LE:
		return "<=", true
	case opcodes.OP_GT:
		return ">", true
	case opcodes.OP_GE:
		return ">=", true
	default:
		return "", false
	}
}

func numAsFloat(v values.Value) float64 {
	if v.Kind() == values.KindFixnum {
		return float64(v.Int64())
	}
	return v.Float64()
}

// execArith implements §4.5's inline arithmetic/compare fast path: fixnum-
// fixnum tries overflow-checked integer math first, promoting to float on
// overflow; mixed numeric operands compute in float; anything else falls
// through to an ordinary method dispatch on the operator name, so a
// user-redefined `+`/`==`/etc. on a non-numeric receiver still works.
func (s *State) execArith(f *FiberContext, op opcodes.Opcode, a, b values.Value) (values.Value, *Error) {
	if a.Kind() == values.KindFixnum && b.Kind() == values.KindFixnum {
		x, y := a.Int64(), b.Int64()
		switch op {
		case opcodes.OP_ADD:
			if r, ovf := values.AddOvf(x, y); !ovf {
				return values.Int(r), nil
			}
			return values.Float(float64(x) + float64(y)), nil
		case opcodes.OP_SUB:
			if r, ovf := values.SubOvf(x, y); !ovf {
				return values.Int(r), nil
			}
			return values.Float(float64(x) - float64(y)), nil
		case opcodes.OP_MUL:
			if r, ovf := values.MulOvf(x, y); !ovf {
				return values.Int(r), nil
			}
			return values.Float(float64(x) * float64(y)), nil
		case opcodes.OP_DIV:
			if y == 0 {
				return values.Nil, s.raise(ErrRuntime, "divided by 0")
			}
			return values.Int(x / y), nil
		case opcodes.OP_EQ:
			return values.Bool(x == y), nil
		case opcodes.OP_LT:
			return values.Bool(x < y), nil
		case opcodes.OP_LE:
			return values.Bool(x <= y), nil
		case opcodes.OP_GT:
			return values.Bool(x > y), nil
		case opcodes.OP_GE:
			return values.Bool(x >= y), nil
		}
	}

	if a.IsNumeric() && b.IsNumeric() {
		x, y := numAsFloat(a), numAsFloat(b)
		switch op {
		case opcodes.OP_ADD:
			return values.Float(x + y), nil
		case opcodes.OP_SUB:
			return values.Float(x - y), nil
		case opcodes.OP_MUL:
			return values.Float(x * y), nil
		case opcodes.OP_DIV:
			return values.Float(x / y), nil
		case opcodes.OP_EQ:
			return values.Bool(x == y), nil
		case opcodes.OP_LT:
			return values.Bool(x < y), nil
		case opcodes.OP_LE:
			return values.Bool(x <= y), nil
		case opcodes.OP_GT:
			return values.Bool(x > y), nil
		case opcodes.OP_GE:
			return values.Bool(x >= y), nil
		}
	}

	name, ok := arithMethodName(op)
	if !ok {
		return values.Nil, s.raise(ErrNotImplemented, "no method for opcode %s", op)
	}
	sym := s.Syms.Intern(name)
	return s.send(f, a, sym, []values.Value{b}, values.Nil)
}

// execArithImm implements ADDI/SUBI: a fixnum fast path skipping a LOADI
// for the immediate operand, falling back to execArith's general path for
// anything not already a fixnum (so `"x" + 1`-shaped bytecode — which a
// real compiler never emits for ADDI, but nothing stops a hand-built irep
// from doing so — still reaches a method dispatch rather than panicking).
func (s *State) execArithImm(f *FiberContext, op opcodes.Opcode, a values.Value, imm int64) (values.Value, *Error) {
	if a.Kind() == values.KindFixnum {
		x := a.Int64()
		switch op {
		case opcodes.OP_ADD:
			if r, ovf := values.AddOvf(x, imm); !ovf {
				return values.Int(r), nil
			}
			return values.Float(float64(x) + float64(imm)), nil
		case opcodes.OP_SUB:
			if r, ovf := values.SubOvf(x, imm); !ovf {
				return values.Int(r), nil
			}
			return values.Float(float64(x) - float64(imm)), nil
		}
	}
	return s.execArith(f, op, a, values.Int(imm))
}

// execApost implements the post-rest destructuring opcode (§4.5 "a, *b, c =
// ary"): inst.A is the base register the unpacked values are written to,
// inst.B holds the source array, and inst.C packs n_pre in its high 16 bits
// and n_post in its low 16 bits — a layout this module defines itself,
// since spec.md names the opcode's role but not a wire encoding for its
// four logical operands against a 3-operand Instruction.
func (s *State) execApost(f *FiberContext, inst opcodes.Instruction) {
	nPre := int(inst.C >> 16)
	nPost := int(inst.C & 0xffff)

	var elems []values.Value
	if arr, ok := f.getReg(inst.B).HeapObj().(*values.RArray); ok {
		elems = arr.Elems
	}

	reg := inst.A
	for i := 0; i < nPre; i++ {
		if i < len(elems) {
			f.setReg(reg, elems[i])
		} else {
			f.setReg(reg, values.Nil)
		}
		reg++
	}

	restStart := nPre
	if restStart > len(elems) {
		restStart = len(elems)
	}
	restLen := len(elems) - nPre - nPost
	if restLen < 0 {
		restLen = 0
	}
	restEnd := restStart + restLen
	if restEnd > len(elems) {
		restEnd = len(elems)
	}
	f.setReg(reg, values.Obj(track(s, values.NewArray(elems[restStart:restEnd]...))))
	reg++

	for i := 0; i < nPost; i++ {
		idx := restEnd + i
		if idx < len(elems) {
			f.setReg(reg, elems[idx])
		} else {
			f.setReg(reg, values.Nil)
		}
		reg++
	}
}

func newRange(low, high values.Value, exclusive bool) *values.RRange {
	return values.NewRange(low, high, exclusive)
}

type ivarHolder interface {
	IVars() *class.IVarTable
}

func ivarsOf(h values.HeapObject) (*class.IVarTable, bool) {
	if ih, ok := h.(ivarHolder); ok {
		return ih.IVars(), true
	}
	return nil, false
}

// getIVar implements GETIV (§4.5 "self.@sym"): a receiver with no ivar
// table (an immediate value) simply reads as nil, matching Ruby's "unset
// ivar reads as nil" rule rather than raising.
func (s *State) getIVar(self values.Value, sym values.SymbolID) (values.Value, *Error) {
	h := self.HeapObj()
	if h == nil {
		return values.Nil, nil
	}
	ivt, ok := ivarsOf(h)
	if !ok {
		return values.Nil, nil
	}
	v, _ := ivt.Get(sym)
	return v, nil
}

func (s *State) setIVar(f *FiberContext, self values.Value, sym values.SymbolID, v values.Value) *Error {
	h := self.HeapObj()
	if h == nil {
		return s.raise(ErrRuntime, "can't set an instance variable on an immediate value")
	}
	if h.GCHeader().Frozen() {
		return s.raise(ErrFrozen, "can't modify frozen object")
	}
	ivt, ok := ivarsOf(h)
	if !ok {
		return s.raise(ErrRuntime, "object has no instance-variable table")
	}
	ivt.Set(sym, v)
	if v.IsHeap() {
		s.Heap.WriteBarrier(h, v.HeapObj())
	}
	return nil
}

// getUpvar/setUpvar implement the closure upvalue opcodes (§4.5): walk
// depth steps up the proc's static lexical chain (Upper) and read/write the
// target frame's captured Env by local index.
func (s *State) getUpvar(p *procs.Proc, idx, depth int) values.Value {
	target := p
	for i := 0; i < depth && target != nil; i++ {
		target = target.Upper
	}
	if target == nil || target.Env == nil {
		return values.Nil
	}
	return target.Env.Get(idx)
}

func (s *State) setUpvar(p *procs.Proc, idx, depth int, v values.Value) {
	target := p
	for i := 0; i < depth && target != nil; i++ {
		target = target.Upper
	}
	if target == nil || target.Env == nil {
		return
	}
	target.Env.Set(idx, v)
	if v.IsHeap() {
		s.Heap.WriteBarrier(target.Env, v.HeapObj())
	}
}

// captureEnv gives a freshly built LAMBDA/BLOCK Proc an Env pointing at the
// creating frame's live registers, allocating that frame's Env lazily (on
// first capture) and registering it in FiberContext.LiveEnvs so a later
// stack growth relocates it (§5) and so invoke's unshareFrom finds it and
// copies it to the heap once this frame returns (§3.8).
func (s *State) captureEnv(f *FiberContext, np *procs.Proc) {
	ci := f.currentCI()
	if ci == nil {
		return
	}
	if ci.Env == nil {
		nregs := 0
		if f.curIrep != nil {
			nregs = int(f.curIrep.NRegs)
		}
		env := track(s, &procs.Env{
			State:    procs.EnvShared,
			Stack:    f.Stack[f.Base : f.Base+nregs],
			MethodID: ci.MethodID,
		})
		ci.Env = env
		f.LiveEnvs = append(f.LiveEnvs, liveEnv{env: env, offset: f.Base})
	}
	np.Env = ci.Env
	np.Upper = ci.Proc
}

// execDefineClass implements CLASS/MODULE (§4.5): look up or create a
// class/module named by inst.B nested under outer (inst.A), storing it in
// outer's constant (ivar) table the way a top-level CLASS/MODULE opcode's
// target is always the surrounding lexical scope's own namespace.
func (s *State) execDefineClass(f *FiberContext, ir *irep.Irep, inst opcodes.Instruction, isModule bool) (values.Value, *Error) {
	outerVal := f.getReg(inst.A)
	name := ir.Syms[inst.B]

	var outer class.Node = s.ObjectClass
	if n, ok := outerVal.HeapObj().(class.Node); ok {
		outer = n
	}

	if existing, ok := outer.IVars().Get(name); ok && existing.IsHeap() {
		if n, ok := existing.HeapObj().(class.Node); ok {
			return values.Obj(n), nil
		}
	}

	var super class.Node = s.ObjectClass
	if !isModule && inst.C != 0 {
		if sv := f.getReg(inst.C); sv.IsHeap() {
			if n, ok := sv.HeapObj().(class.Node); ok {
				super = n
			}
		}
	}

	var created *class.Class
	if isModule {
		created = track(s, class.NewModule(s.Syms.MustName(name)))
	} else {
		created = track(s, class.NewClass(s.Syms.MustName(name), super))
		if sc, ok := super.(*class.Class); ok {
			sc.IsInherited = true
		}
	}
	outer.IVars().Set(name, values.Obj(created))
	return values.Obj(created), nil
}

// execClassBody implements EXEC (§4.5): run a child irep as a class/module
// body, with self and TargetClass both set to target.
func (s *State) execClassBody(f *FiberContext, ir *irep.Irep, inst opcodes.Instruction) (values.Value, *Error) {
	target := f.getReg(inst.A)
	child := ir.Children[inst.B]
	n, ok := target.HeapObj().(class.Node)
	if !ok {
		return values.Nil, s.raise(ErrType, "EXEC target is not a class or module")
	}
	bp := track(s, procs.NewBytecodeProc(child, nil, n))
	bp.Flags |= procs.FlagScope
	ci := CallInfo{
		TargetClass: n,
		AcceptSlot:  AcceptNormal,
		RescueDepth: len(f.RescueStack),
		EnsureDepth: len(f.EnsureStack),
	}
	return s.invoke(f, bp, target, ci)
}

// execDef implements DEF (§4.5): bind a bytecode method body onto target's
// method table and invalidate any cached lookups it could shadow.
func (s *State) execDef(f *FiberContext, ir *irep.Irep, inst opcodes.Instruction) {
	target := f.getReg(inst.A)
	sym := ir.Syms[inst.B]
	child := ir.Children[inst.C]
	n, ok := target.HeapObj().(class.Node)
	if !ok {
		return
	}
	bp := track(s, procs.NewBytecodeProc(child, nil, n))
	bp.Flags |= procs.FlagStrict
	n.Methods().Define(sym, &class.Method{Kind: class.MethodBytecode, Proc: bp})
	if cls, ok := n.(*class.Class); ok {
		class.InvalidateForDefine(s.Cache, cls, sym)
	} else if s.Cache != nil {
		s.Cache.FlushAll()
	}
}

// execAlias/execUndef implement ALIAS and UNDEF (§4.5), both mutating a
// method table and therefore both routing through InvalidateForDefine.
func (s *State) execAlias(f *FiberContext, ir *irep.Irep, inst opcodes.Instruction) {
	target := f.getReg(inst.A)
	n, ok := target.HeapObj().(class.Node)
	if !ok {
		return
	}
	newSym := ir.Syms[inst.B]
	oldSym := ir.Syms[inst.C]
	m, found := n.Methods().Lookup(oldSym)
	if !found {
		return
	}
	aliased := *m
	n.Methods().Define(newSym, &aliased)
	if cls, ok := n.(*class.Class); ok {
		class.InvalidateForDefine(s.Cache, cls, newSym)
	} else if s.Cache != nil {
		s.Cache.FlushAll()
	}
}

func (s *State) execUndef(f *FiberContext, ir *irep.Irep, inst opcodes.Instruction) {
	target := f.getReg(inst.A)
	n, ok := target.HeapObj().(class.Node)
	if !ok {
		return
	}
	sym := ir.Syms[inst.B]
	n.Methods().Undefine(sym)
	if cls, ok := n.(*class.Class); ok {
		class.InvalidateForDefine(s.Cache, cls, sym)
	} else if s.Cache != nil {
		s.Cache.FlushAll()
	}
}

// singletonOf implements SCLASS (§4.5), allocating an object's singleton
// class lazily and caching it on State keyed by the object's identity, per
// §3.3 "allocated lazily."
func (s *State) singletonOf(v values.Value) values.Value {
	h := v.HeapObj()
	if h == nil {
		return values.Obj(s.classFor(v))
	}
	if sc, ok := s.singletons[h]; ok {
		return values.Obj(sc)
	}
	var super class.Node
	if n, ok := h.(class.Node); ok {
		super = n
	} else if hdr := h.GCHeader(); hdr.Class != nil {
		if n, ok := hdr.Class.(class.Node); ok {
			super = n
		}
	}
	sc := track(s, class.NewSClass(h, super))
	s.singletons[h] = sc
	return values.Obj(sc)
}

// isA implements the RESCUE opcode's class-match test (§4.6): whether v's
// class descends from (or is) the class value clsVal names.
func (s *State) isA(v values.Value, clsVal values.Value) bool {
	n, ok := clsVal.HeapObj().(class.Node)
	if !ok {
		return false
	}
	return class.AncestorOf(s.classFor(v), n)
}

func (s *State) describeException(v values.Value) string {
	if exc, ok := v.HeapObj().(*class.Exception); ok {
		return exc.Message
	}
	return v.String()
}

// setPendingFromValue implements RAISE's operand handling (§4.6): raising
// an already-built Exception object installs it verbatim; raising anything
// else (e.g. a bare class) wraps it in a fresh Exception of the pending
// value's own class.
func (s *State) setPendingFromValue(v values.Value) {
	if exc, ok := v.HeapObj().(*class.Exception); ok {
		s.PendingException = exc
		return
	}
	cls, _ := s.classFor(v).(*class.Class)
	if cls == nil {
		cls = s.ExceptionClass
	}
	s.PendingException = track(s, class.NewException(cls, v.String()))
}
