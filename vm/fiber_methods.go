package vm

import (
	"github.com/wudi/mrblite/class"
	"github.com/wudi/mrblite/procs"
	"github.com/wudi/mrblite/values"
)

// bootstrapFiberSupport wires Fiber.new/Fiber.yield/Fiber#resume onto the
// shared class surface. A generic `new` lives on ClassClass (every class
// object's fallback class per classFor) rather than one per-class
// singleton, the same shortcut the original implementation's
// mrb_instance_alloc takes: one allocator branching on instance type
// instead of a singleton method per built-in (§3.3 notes singleton
// classes are "allocated lazily" — not needed at all for the handful of
// class-level entry points this core exposes).
func (s *State) bootstrapFiberSupport() {
	s.ClassClass.Methods().Define(s.Syms.Intern("new"), &class.Method{
		Kind: class.MethodGo,
		Go:   s.classNew,
	})
	s.ClassClass.Methods().Define(s.Syms.Intern("yield"), &class.Method{
		Kind: class.MethodGo,
		Go:   s.fiberClassYield,
	})
	s.FiberClass.Methods().Define(s.Syms.Intern("resume"), &class.Method{
		Kind: class.MethodGo,
		Go:   s.fiberResumeMethod,
	})
}

// classNew implements the generic allocator every class object responds
// to: Fiber gets its own constructor shape (a block, no ivar-bearing
// instance), everything else gets a plain class.Instance with
// `initialize` dispatched if the class (or an ancestor) defines one.
func (s *State) classNew(recv values.Value, argv []values.Value, block values.Value) (values.Value, error) {
	cls, ok := recv.HeapObj().(class.Node)
	if !ok {
		return values.Nil, s.raise(ErrType, "receiver is not a class")
	}
	if cls == class.Node(s.FiberClass) {
		return s.newFiberFromBlock(block)
	}

	real, ok := cls.(*class.Class)
	if !ok {
		return values.Nil, s.raise(ErrType, "receiver is not instantiable")
	}
	inst := track(s, class.NewInstance(real))
	v := values.Obj(inst)
	if _, m, found := class.Resolve(real, s.Syms.Intern("initialize"), s.Cache); found && m.Kind != class.MethodUndefined {
		if _, err := s.Funcall(v, "initialize", argv, block); err != nil {
			return values.Nil, err
		}
	}
	return v, nil
}

// fiberClassYield implements Fiber.yield; every other class inherits the
// same ClassClass "yield" entry but has no legal receiver for it.
func (s *State) fiberClassYield(recv values.Value, argv []values.Value, block values.Value) (values.Value, error) {
	cls, ok := recv.HeapObj().(class.Node)
	if !ok || cls != class.Node(s.FiberClass) {
		return values.Nil, s.raise(ErrNoMethod, "undefined method 'yield'")
	}
	return s.FiberYield(s.Current, argv)
}

func (s *State) fiberResumeMethod(recv values.Value, argv []values.Value, block values.Value) (values.Value, error) {
	target, ok := recv.HeapObj().(*FiberContext)
	if !ok {
		return values.Nil, s.raise(ErrType, "not a Fiber")
	}
	return s.FiberResume(target, argv)
}

// newFiberFromBlock requires a block (§4.7's only construction path) and
// captures the calling frame's self, matching this codebase's existing
// convention that a Proc invoked outside of a SEND dispatch (OP_CALL,
// ensure procs) runs with the invoking frame's own self rather than a
// separately captured lexical one.
func (s *State) newFiberFromBlock(block values.Value) (values.Value, error) {
	if block.IsNil() {
		return values.Nil, s.raise(ErrArgument, "tried to create Fiber without a block")
	}
	proc, ok := block.HeapObj().(*procs.Proc)
	if !ok {
		return values.Nil, s.raise(ErrType, "block argument must be a Proc")
	}
	var self values.Value = values.Nil
	if s.Current != nil && len(s.Current.Stack) > 0 {
		self = s.Current.getReg(0)
	}
	return values.Obj(s.NewFiber(proc, self)), nil
}
