package vm

import (
	"github.com/wudi/mrblite/class"
	"github.com/wudi/mrblite/irep"
	"github.com/wudi/mrblite/opcodes"
	"github.com/wudi/mrblite/procs"
	"github.com/wudi/mrblite/values"
)

func (f *FiberContext) getReg(i int32) values.Value   { return f.Stack[f.Base+int(i)] }
func (f *FiberContext) setReg(i int32, v values.Value) { f.Stack[f.Base+int(i)] = v }

// run is the fetch/decode/dispatch loop from §4.5. One call corresponds
// to exactly one call-info frame; nested SEND/SUPER/CALL opcodes recurse
// into invoke(), which itself recurses into run() — Go's own call stack
// stands in for the C implementation's explicit per-frame resume state,
// per §9 Design Notes' "use the host's native unwinding mechanism."
func (s *State) run(f *FiberContext, p *procs.Proc) (result values.Value, rerr *Error) {
	ir := f.curIrep

	defer func() {
		if rec := recover(); rec != nil {
			switch sig := rec.(type) {
			case *breakSignal:
				if sig.target == p {
					result, rerr = sig.value, nil
					return
				}
				panic(sig)
			case *returnSignal:
				if sig.target == p {
					result, rerr = sig.value, nil
					return
				}
				panic(sig)
			default:
				panic(rec)
			}
		}
	}()

	for {
		if f.PC < 0 || f.PC >= len(ir.Instructions) {
			return values.Nil, nil
		}
		inst := ir.Instructions[f.PC]
		s.profile.observe(f.PC, inst.Op)

		switch inst.Op {
		case opcodes.OP_NOP:
			f.PC++

		case opcodes.OP_MOVE:
			f.setReg(inst.A, f.getReg(inst.B))
			f.PC++

		case opcodes.OP_LOADL:
			v, err := s.loadPoolEntry(ir, int(inst.B))
			if err != nil {
				return s.unwind(f, p, err)
			}
			f.setReg(inst.A, v)
			f.PC++

		case opcodes.OP_LOADI:
			f.setReg(inst.A, values.Int(int64(inst.B)))
			f.PC++

		case opcodes.OP_LOADSYM:
			f.setReg(inst.A, values.Sym(ir.Syms[inst.B]))
			f.PC++

		case opcodes.OP_LOADNIL:
			f.setReg(inst.A, values.Nil)
			f.PC++

		case opcodes.OP_LOADSELF:
			f.setReg(inst.A, f.getReg(0))
			f.PC++

		case opcodes.OP_LOADT:
			f.setReg(inst.A, values.True)
			f.PC++

		case opcodes.OP_LOADF:
			f.setReg(inst.A, values.False)
			f.PC++

		case opcodes.OP_GETGV:
			f.setReg(inst.A, s.Globals[ir.Syms[inst.B]])
			f.PC++

		case opcodes.OP_SETGV:
			s.Globals[ir.Syms[inst.B]] = f.getReg(inst.A)
			f.PC++

		case opcodes.OP_GETSV:
			f.setReg(inst.A, s.Globals[ir.Syms[inst.B]]) // special vars share the global table in this core
			f.PC++

		case opcodes.OP_SETSV:
			s.Globals[ir.Syms[inst.B]] = f.getReg(inst.A)
			f.PC++

		case opcodes.OP_GETIV:
			v, err := s.getIVar(f.getReg(0), ir.Syms[inst.B])
			if err != nil {
				return s.unwind(f, p, err)
			}
			f.setReg(inst.A, v)
			f.PC++

		case opcodes.OP_SETIV:
			if err := s.setIVar(f, f.getReg(0), ir.Syms[inst.B], f.getReg(inst.A)); err != nil {
				return s.unwind(f, p, err)
			}
			f.PC++

		case opcodes.OP_GETCV:
			self := f.getReg(0)
			cls := s.classFor(self)
			v, _ := cls.IVars().Get(ir.Syms[inst.B])
			f.setReg(inst.A, v)
			f.PC++

		case opcodes.OP_SETCV:
			self := f.getReg(0)
			cls := s.classFor(self)
			cls.IVars().Set(ir.Syms[inst.B], f.getReg(inst.A))
			f.PC++

		case opcodes.OP_GETCONST:
			v, ok := s.Consts[ir.Syms[inst.B]]
			if !ok {
				return s.unwind(f, p, s.raise(ErrName, "uninitialized constant %s", s.Syms.MustName(ir.Syms[inst.B])))
			}
			f.setReg(inst.A, v)
			f.PC++

		case opcodes.OP_SETCONST:
			s.Consts[ir.Syms[inst.B]] = f.getReg(inst.A)
			f.PC++

		case opcodes.OP_GETMCNST:
			base := f.getReg(inst.B)
			n, ok := base.HeapObj().(class.Node)
			if !ok {
				return s.unwind(f, p, s.raise(ErrType, "not a class/module"))
			}
			v, ok := n.IVars().Get(ir.Syms[inst.C])
			if !ok {
				return s.unwind(f, p, s.raise(ErrName, "uninitialized constant %s", s.Syms.MustName(ir.Syms[inst.C])))
			}
			f.setReg(inst.A, v)
			f.PC++

		case opcodes.OP_SETMCNST:
			base := f.getReg(inst.A)
			n, ok := base.HeapObj().(class.Node)
			if !ok {
				return s.unwind(f, p, s.raise(ErrType, "not a class/module"))
			}
			n.IVars().Set(ir.Syms[inst.B], f.getReg(inst.C))
			f.PC++

		case opcodes.OP_GETUPVAR:
			f.setReg(inst.A, s.getUpvar(p, int(inst.B), int(inst.C)))
			f.PC++

		case opcodes.OP_SETUPVAR:
			s.setUpvar(p, int(inst.A), int(inst.B), f.getReg(inst.C))
			f.PC++

		case opcodes.OP_JMP:
			f.PC = int(inst.A)
			continue

		case opcodes.OP_JMPIF:
			if f.getReg(inst.A).Truthy() {
				f.PC = int(inst.B)
				continue
			}
			f.PC++

		case opcodes.OP_JMPNOT:
			if !f.getReg(inst.A).Truthy() {
				f.PC = int(inst.B)
				continue
			}
			f.PC++

		case opcodes.OP_JMPNIL:
			if f.getReg(inst.A).IsNil() {
				f.PC = int(inst.B)
				continue
			}
			f.PC++

		case opcodes.OP_ONERR:
			f.RescueStack = append(f.RescueStack, int(inst.A))
			f.PC++

		case opcodes.OP_POPERR:
			n := int(inst.A)
			if n > len(f.RescueStack) {
				n = len(f.RescueStack)
			}
			f.RescueStack = f.RescueStack[:len(f.RescueStack)-n]
			f.PC++

		case opcodes.OP_EXCEPT:
			if s.PendingException != nil {
				f.setReg(inst.A, values.Obj(s.PendingException))
			} else {
				f.setReg(inst.A, values.Nil)
			}
			f.PC++

		case opcodes.OP_RESCUE:
			exc := f.getReg(inst.B)
			cls := f.getReg(inst.C)
			matches := s.isA(exc, cls)
			if matches {
				s.PendingException = nil
			}
			f.setReg(inst.A, values.Bool(matches))
			f.PC++

		case opcodes.OP_RAISE:
			exc := f.getReg(inst.A)
			s.setPendingFromValue(exc)
			return s.unwind(f, p, newError(ErrRuntime, "%s", s.describeException(exc)))

		case opcodes.OP_EPUSH:
			child := ir.Children[inst.A]
			ep := track(s, procs.NewBytecodeProc(child, p, nil))
			f.EnsureStack = append(f.EnsureStack, ep)
			f.PC++

		case opcodes.OP_EPOP:
			n := int(inst.A)
			for i := 0; i < n && len(f.EnsureStack) > 0; i++ {
				ep := f.EnsureStack[len(f.EnsureStack)-1]
				f.EnsureStack = f.EnsureStack[:len(f.EnsureStack)-1]
				if _, eerr := s.callProc(f, ep, f.getReg(0), nil, values.Nil); eerr != nil {
					return s.unwind(f, p, eerr)
				}
			}
			f.PC++

		case opcodes.OP_SEND, opcodes.OP_SENDB:
			v, err := s.execSend(f, p, ir, inst, false, inst.Op == opcodes.OP_SENDB)
			if err != nil {
				return s.unwind(f, p, err)
			}
			f.setReg(inst.A, v)
			f.PC++

		case opcodes.OP_SENDV, opcodes.OP_SENDVB:
			v, err := s.execSend(f, p, ir, inst, true, inst.Op == opcodes.OP_SENDVB)
			if err != nil {
				return s.unwind(f, p, err)
			}
			f.setReg(inst.A, v)
			f.PC++

		case opcodes.OP_CALL:
			recv := f.getReg(inst.A)
			pr, ok := recv.HeapObj().(*procs.Proc)
			if !ok {
				return s.unwind(f, p, s.raise(ErrType, "not a Proc"))
			}
			v, err := s.callProc(f, pr, f.getReg(0), nil, values.Nil)
			if err != nil {
				return s.unwind(f, p, err)
			}
			f.setReg(inst.A, v)
			f.PC++

		case opcodes.OP_SUPER:
			v, err := s.execSuper(f, p, ir, inst)
			if err != nil {
				return s.unwind(f, p, err)
			}
			f.setReg(inst.A, v)
			f.PC++

		case opcodes.OP_ARGARY:
			ci := f.currentCI()
			var argv []values.Value
			if ci != nil {
				argv = ci.PendingArgv
			}
			f.setReg(inst.A, values.Obj(track(s, values.NewArray(argv...))))
			f.PC++

		case opcodes.OP_ENTER:
			spec := DecodeArgSpec(inst.A)
			ci := f.currentCI()
			var argv []values.Value
			var block values.Value
			strict := true
			if ci != nil {
				argv = ci.PendingArgv
				block = ci.PendingBlock
				if p.Flags&procs.FlagStrict == 0 {
					strict = false
				}
			}
			regs := f.Stack[f.Base : f.Base+int(ir.NRegs)]
			argc, kwDict, err := s.bindArgs(spec, regs, argv, block, strict)
			if err != nil {
				return s.unwind(f, p, err)
			}
			if ci != nil {
				ci.Argc = argc
				ci.KwDict = kwDict
				ci.BlockReg = spec.blockReg()
			}
			f.PC++

		case opcodes.OP_KARG:
			ci := f.currentCI()
			var kwDict values.Value
			if ci != nil {
				kwDict = ci.KwDict
			}
			v, err := s.karg(kwDict, ir.Syms[inst.A])
			if err != nil {
				return s.unwind(f, p, err)
			}
			f.setReg(inst.B, v)
			f.PC++

		case opcodes.OP_KEY_P:
			ci := f.currentCI()
			var kwDict values.Value
			if ci != nil {
				kwDict = ci.KwDict
			}
			h, ok := kwDict.HeapObj().(*values.RHash)
			present := false
			if ok {
				_, present = h.Get(values.Sym(ir.Syms[inst.A]))
			}
			f.setReg(inst.B, values.Bool(present))
			f.PC++

		case opcodes.OP_KEYEND:
			ci := f.currentCI()
			if ci != nil {
				if kerr := s.keyend(ci.KwDict); kerr != nil {
					return s.unwind(f, p, kerr)
				}
			}
			f.PC++

		case opcodes.OP_RETURN:
			return f.getReg(inst.A), nil

		case opcodes.OP_RETURN_BLK:
			if p.Upper == nil || p.Upper.IsOrphan() {
				return s.unwind(f, p, s.raise(ErrLocalJump, "return from proc-closure"))
			}
			panic(&returnSignal{target: p.Upper, value: f.getReg(inst.A)})

		case opcodes.OP_BREAK:
			if p.Upper == nil || p.Upper.IsOrphan() {
				return s.unwind(f, p, s.raise(ErrLocalJump, "break from proc-closure"))
			}
			panic(&breakSignal{target: p.Upper, value: f.getReg(inst.A)})

		case opcodes.OP_BLKPUSH:
			ci := f.currentCI()
			if ci != nil && ci.BlockReg > 0 {
				f.setReg(inst.A, f.getReg(int32(ci.BlockReg)))
			} else {
				f.setReg(inst.A, values.Nil)
			}
			f.PC++

		case opcodes.OP_ADD, opcodes.OP_SUB, opcodes.OP_MUL, opcodes.OP_DIV,
			opcodes.OP_EQ, opcodes.OP_LT, opcodes.OP_LE, opcodes.OP_GT, opcodes.OP_GE:
			v, err := s.execArith(f, inst.Op, f.getReg(inst.A), f.getReg(inst.A+1))
			if err != nil {
				return s.unwind(f, p, err)
			}
			f.setReg(inst.A, v)
			f.PC++

		case opcodes.OP_ADDI:
			v, err := s.execArithImm(f, opcodes.OP_ADD, f.getReg(inst.B), int64(inst.C))
			if err != nil {
				return s.unwind(f, p, err)
			}
			f.setReg(inst.A, v)
			f.PC++

		case opcodes.OP_SUBI:
			v, err := s.execArithImm(f, opcodes.OP_SUB, f.getReg(inst.B), int64(inst.C))
			if err != nil {
				return s.unwind(f, p, err)
			}
			f.setReg(inst.A, v)
			f.PC++

		case opcodes.OP_ARRAY:
			elems := make([]values.Value, inst.C)
			for i := int32(0); i < inst.C; i++ {
				elems[i] = f.getReg(inst.B + i)
			}
			f.setReg(inst.A, values.Obj(track(s, values.NewArray(elems...))))
			f.PC++

		case opcodes.OP_ARRAY2:
			n := inst.C
			elems := make([]values.Value, 0, n+1)
			for i := int32(0); i < n; i++ {
				elems = append(elems, f.getReg(inst.B+i))
			}
			if tail, ok := f.getReg(inst.B + n).HeapObj().(*values.RArray); ok {
				elems = append(elems, tail.Elems...)
			}
			f.setReg(inst.A, values.Obj(track(s, values.NewArray(elems...))))
			f.PC++

		case opcodes.OP_ARYCAT:
			dst, ok := f.getReg(inst.A).HeapObj().(*values.RArray)
			if !ok {
				return s.unwind(f, p, s.raise(ErrType, "no implicit conversion to Array"))
			}
			if src, ok := f.getReg(inst.B).HeapObj().(*values.RArray); ok {
				for _, v := range src.Elems {
					dst.Push(v)
				}
				s.Heap.WriteBarrierBack(dst)
			}
			f.PC++

		case opcodes.OP_ARYPUSH:
			dst, ok := f.getReg(inst.A).HeapObj().(*values.RArray)
			if !ok {
				return s.unwind(f, p, s.raise(ErrType, "no implicit conversion to Array"))
			}
			dst.Push(f.getReg(inst.B))
			s.Heap.WriteBarrierBack(dst)
			f.PC++

		case opcodes.OP_ARYDUP:
			src, ok := f.getReg(inst.B).HeapObj().(*values.RArray)
			if !ok {
				return s.unwind(f, p, s.raise(ErrType, "no implicit conversion to Array"))
			}
			f.setReg(inst.A, values.Obj(track(s, values.NewArray(src.Elems...))))
			f.PC++

		case opcodes.OP_AREF:
			src, ok := f.getReg(inst.B).HeapObj().(*values.RArray)
			idx := int(inst.C)
			if !ok || idx < 0 || idx >= len(src.Elems) {
				f.setReg(inst.A, values.Nil)
			} else {
				f.setReg(inst.A, src.Elems[idx])
			}
			f.PC++

		case opcodes.OP_ASET:
			dst, ok := f.getReg(inst.A).HeapObj().(*values.RArray)
			idx := int(inst.B)
			if ok && idx >= 0 && idx < len(dst.Elems) {
				dst.Elems[idx] = f.getReg(inst.C)
				s.Heap.WriteBarrierBack(dst)
			}
			f.PC++

		case opcodes.OP_APOST:
			s.execApost(f, inst)
			f.PC++

		case opcodes.OP_HASH:
			h := track(s, values.NewHash())
			for i := int32(0); i < inst.C; i += 2 {
				h.Set(f.getReg(inst.B+i), f.getReg(inst.B+i+1))
			}
			f.setReg(inst.A, values.Obj(h))
			f.PC++

		case opcodes.OP_HASHADD:
			dst, ok := f.getReg(inst.A).HeapObj().(*values.RHash)
			if !ok {
				return s.unwind(f, p, s.raise(ErrType, "no implicit conversion to Hash"))
			}
			for i := int32(0); i < inst.C; i += 2 {
				dst.Set(f.getReg(inst.B+i), f.getReg(inst.B+i+1))
			}
			s.Heap.WriteBarrierBack(dst)
			f.PC++

		case opcodes.OP_HASHCAT:
			dst, ok := f.getReg(inst.A).HeapObj().(*values.RHash)
			if !ok {
				return s.unwind(f, p, s.raise(ErrType, "no implicit conversion to Hash"))
			}
			if src, ok := f.getReg(inst.B).HeapObj().(*values.RHash); ok {
				dst.Merge(src)
				s.Heap.WriteBarrierBack(dst)
			}
			f.PC++

		case opcodes.OP_STRING:
			entry, err := s.poolEntry(ir, int(inst.B))
			if err != nil {
				return s.unwind(f, p, err)
			}
			f.setReg(inst.A, values.Obj(track(s, values.NewString(entry.Str))))
			f.PC++

		case opcodes.OP_STRCAT:
			dst, ok := f.getReg(inst.A).HeapObj().(*values.RString)
			src, ok2 := f.getReg(inst.B).HeapObj().(*values.RString)
			if !ok || !ok2 {
				return s.unwind(f, p, s.raise(ErrType, "no implicit conversion to String"))
			}
			f.setReg(inst.A, values.Obj(dst.Concat(src)))
			f.PC++

		case opcodes.OP_INTERN:
			src, ok := f.getReg(inst.B).HeapObj().(*values.RString)
			if !ok {
				return s.unwind(f, p, s.raise(ErrType, "no implicit conversion to String"))
			}
			f.setReg(inst.A, values.Sym(s.Syms.Intern(string(src.Bytes))))
			f.PC++

		case opcodes.OP_LAMBDA:
			child := ir.Children[inst.B]
			np := track(s, procs.NewBytecodeProc(child, p, nil))
			np.Flags |= procs.FlagStrict
			s.captureEnv(f, np)
			f.setReg(inst.A, values.Obj(np))
			f.PC++

		case opcodes.OP_BLOCK:
			child := ir.Children[inst.B]
			np := track(s, procs.NewBytecodeProc(child, p, nil))
			s.captureEnv(f, np)
			f.setReg(inst.A, values.Obj(np))
			f.PC++

		case opcodes.OP_METHOD:
			child := ir.Children[inst.B]
			np := track(s, procs.NewBytecodeProc(child, p, nil))
			np.Flags |= procs.FlagScope
			f.setReg(inst.A, values.Obj(np))
			f.PC++

		case opcodes.OP_RANGE_INC:
			r := newRange(f.getReg(inst.B), f.getReg(inst.C), false)
			r.Header.Class = s.RangeClass
			track(s, r)
			f.setReg(inst.A, values.Obj(r))
			f.PC++

		case opcodes.OP_RANGE_EXC:
			r := newRange(f.getReg(inst.B), f.getReg(inst.C), true)
			r.Header.Class = s.RangeClass
			track(s, r)
			f.setReg(inst.A, values.Obj(r))
			f.PC++

		case opcodes.OP_OCLASS:
			f.setReg(inst.A, values.Obj(s.ObjectClass))
			f.PC++

		case opcodes.OP_CLASS:
			v, err := s.execDefineClass(f, ir, inst, false)
			if err != nil {
				return s.unwind(f, p, err)
			}
			f.setReg(inst.A, v)
			f.PC++

		case opcodes.OP_MODULE:
			v, err := s.execDefineClass(f, ir, inst, true)
			if err != nil {
				return s.unwind(f, p, err)
			}
			f.setReg(inst.A, v)
			f.PC++

		case opcodes.OP_EXEC:
			v, err := s.execClassBody(f, ir, inst)
			if err != nil {
				return s.unwind(f, p, err)
			}
			f.setReg(inst.A, v)
			f.PC++

		case opcodes.OP_DEF:
			s.execDef(f, ir, inst)
			f.PC++

		case opcodes.OP_SCLASS:
			f.setReg(inst.A, s.singletonOf(f.getReg(inst.B)))
			f.PC++

		case opcodes.OP_TCLASS:
			ci := f.currentCI()
			if ci != nil && ci.TargetClass != nil {
				f.setReg(inst.A, values.Obj(ci.TargetClass))
			} else {
				f.setReg(inst.A, values.Obj(s.ObjectClass))
			}
			f.PC++

		case opcodes.OP_ALIAS:
			s.execAlias(f, ir, inst)
			f.PC++

		case opcodes.OP_UNDEF:
			s.execUndef(f, ir, inst)
			f.PC++

		case opcodes.OP_STOP:
			return values.Nil, nil

		case opcodes.OP_ERR:
			entry, _ := s.poolEntry(ir, int(inst.A))
			return s.unwind(f, p, s.raise(ErrLocalJump, "%s", entry.Str))

		case opcodes.OP_DEBUG:
			f.PC++

		default:
			return s.unwind(f, p, s.raise(ErrNotImplemented, "opcode %s not implemented", inst.Op))
		}
	}
}

// unwind checks the pending exception against the current frame's rescue
// stack (§4.6): a rescue pushed since this call began transfers control
// to its handler offset, with s.PendingException left in place for
// EXCEPT/RESCUE to read and test; otherwise ensures run and the error
// propagates to the caller.
func (s *State) unwind(f *FiberContext, p *procs.Proc, err *Error) (values.Value, *Error) {
	ci := f.currentCI()
	baseline := 0
	if ci != nil {
		baseline = ci.RescueDepth
	}
	if len(f.RescueStack) > baseline {
		target := f.RescueStack[len(f.RescueStack)-1]
		f.RescueStack = f.RescueStack[:len(f.RescueStack)-1]
		f.PC = target
		return s.run(f, p)
	}

	ensureBaseline := 0
	if ci != nil {
		ensureBaseline = ci.EnsureDepth
	}
	for len(f.EnsureStack) > ensureBaseline {
		ep := f.EnsureStack[len(f.EnsureStack)-1]
		f.EnsureStack = f.EnsureStack[:len(f.EnsureStack)-1]
		s.callProc(f, ep, f.getReg(0), nil, values.Nil)
	}
	return values.Nil, err
}

func (s *State) loadPoolEntry(ir *irep.Irep, idx int) (values.Value, *Error) {
	entry, err := s.poolEntry(ir, idx)
	if err != nil {
		return values.Nil, err
	}
	switch entry.Kind {
	case irep.PoolFixnum:
		return values.Int(entry.Int), nil
	case irep.PoolFloat:
		return values.Float(entry.Float), nil
	default:
		return values.Obj(track(s, values.NewString(entry.Str))), nil
	}
}

func (s *State) poolEntry(ir *irep.Irep, idx int) (irep.PoolEntry, *Error) {
	if idx < 0 || idx >= len(ir.Pool) {
		return irep.PoolEntry{}, s.raise(ErrRuntime, "pool index out of range")
	}
	return ir.Pool[idx], nil
}
