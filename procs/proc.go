// Package procs implements the Proc (closure) and Env (captured local-
// variable frame) types from §3.7/§3.8.
package procs

import (
	"github.com/wudi/mrblite/class"
	"github.com/wudi/mrblite/irep"
	"github.com/wudi/mrblite/values"
)

// ProcFlags are the Proc flags from §3.7.
type ProcFlags uint8

const (
	FlagCFunc  ProcFlags = 1 << iota // backed by a Go function, not bytecode
	FlagStrict                       // lambda semantics: return returns to caller, strict arity
	FlagOrphan                       // enclosing frame has returned — break must raise
	FlagEnvSet                       // env captured
	FlagScope                        // top-level of a class/module body
)

// GoFunc is the C-function-equivalent payload for a native Proc.
type GoFunc func(self values.Value, argv []values.Value, block values.Value) (values.Value, error)

// Proc is a closure: either bytecode (Irep + Upper forming a static
// lexical chain, plus either a TargetClass or a captured Env) or a native
// Go function (optionally with its own captured Env for closing over
// values), per §3.7.
type Proc struct {
	values.Header

	Irep  *irep.Irep // nil for a Go-function proc
	Upper *Proc      // static lexical chain
	Native GoFunc

	TargetClass class.Node // set when this proc is a plain method body, not a closure
	Env         *Env       // set when this proc captured an enclosing frame's locals

	Flags ProcFlags
}

func (p *Proc) Kind() values.Kind        { return values.KindProc }
func (p *Proc) GCHeader() *values.Header { return &p.Header }

func (p *Proc) TraceChildren(visit func(values.HeapObject)) {
	if p.Upper != nil {
		visit(p.Upper)
	}
	if p.TargetClass != nil {
		visit(p.TargetClass)
	}
	if p.Env != nil {
		visit(p.Env)
	}
}

func NewBytecodeProc(ir *irep.Irep, upper *Proc, target class.Node) *Proc {
	return &Proc{Irep: ir, Upper: upper, TargetClass: target}
}

func NewGoProc(fn GoFunc) *Proc {
	return &Proc{Native: fn, Flags: FlagCFunc}
}

func (p *Proc) IsCFunc() bool  { return p.Flags&FlagCFunc != 0 }
func (p *Proc) IsStrict() bool { return p.Flags&FlagStrict != 0 }
func (p *Proc) IsOrphan() bool { return p.Flags&FlagOrphan != 0 }

// MarkOrphan sets FlagOrphan. Per SPEC_FULL's resolution of the §9 Open
// Question, vm's popCI calls this as soon as the last call-info on a
// fiber's stack that references the proc is popped, not deferred until
// some later point such as a native caller returning.
func (p *Proc) MarkOrphan() { p.Flags |= FlagOrphan }

// ClearOrphan unsets FlagOrphan. A method body's Proc is shared across
// every call to that method, so each fresh invocation must re-establish
// that its frame is live before the next pop can correctly re-orphan it.
func (p *Proc) ClearOrphan() { p.Flags &^= FlagOrphan }

// EnvState is whether an Env's locals still live in a live value stack or
// have been copied to the heap, per §3.8.
type EnvState byte

const (
	EnvShared EnvState = iota
	EnvUnshared
)

// Env is the captured local-variable frame from §3.8.
type Env struct {
	values.Header

	State EnvState

	// Stack points into the owning fiber's live value stack while
	// State == EnvShared; Locals holds an independent heap copy once
	// State == EnvUnshared (the frame that created this Env has returned).
	Stack  []values.Value
	Locals []values.Value

	FiberID  uint64 // back-reference to the owning fiber context, for stack-relocation bookkeeping
	MethodID values.SymbolID
}

func (e *Env) Kind() values.Kind        { return values.KindEnv }
func (e *Env) GCHeader() *values.Header { return &e.Header }

func (e *Env) TraceChildren(visit func(values.HeapObject)) {
	locals := e.live()
	for _, v := range locals {
		if v.IsHeap() {
			visit(v.HeapObj())
		}
	}
}

func (e *Env) live() []values.Value {
	if e.State == EnvShared {
		return e.Stack
	}
	return e.Locals
}

// Get/Set read and write a captured local by register index.
func (e *Env) Get(idx int) values.Value {
	l := e.live()
	if idx < 0 || idx >= len(l) {
		return values.Nil
	}
	return l[idx]
}

func (e *Env) Set(idx int, v values.Value) {
	l := e.live()
	if idx < 0 || idx >= len(l) {
		return
	}
	l[idx] = v
}

// Unshare copies the currently-shared stack slice to the heap and detaches
// from the stack, per §3.8: "When a frame exits, every env still referring
// to it is 'unshared' — its values are copied to the heap."
func (e *Env) Unshare() {
	if e.State == EnvUnshared {
		return
	}
	cp := make([]values.Value, len(e.Stack))
	copy(cp, e.Stack)
	e.Locals = cp
	e.Stack = nil
	e.State = EnvUnshared
}

// Relocate rebases a shared Env's Stack pointer after the owning value
// stack buffer moved (§5 "Stack extension": "every live env whose stack
// pointer falls within the old buffer is relocated to the matching offset
// in the new buffer").
func (e *Env) Relocate(newStack []values.Value, offset int) {
	if e.State != EnvShared {
		return
	}
	e.Stack = newStack[offset : offset+len(e.Stack)]
}
