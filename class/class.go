// Package class implements the class/module object model from §3.3: class
// objects, module inclusion via iclass splicing, prepend via an origin
// class, singleton classes, and method lookup with an optional direct-
// mapped cache (§4.3).
//
// Design Notes §9 directs a strictly-typed reimplementation to model the
// super chain as a sum type `Node = Class | IClass{wraps, super} | SClass`
// with one uniform methods()/super() accessor rather than Go-level
// inheritance; Node below is exactly that, grounded in the teacher's
// registry.Class/Interface/Trait family of small data-holder structs
// (github.com/wudi/hey, registry/types.go) but restructured around the
// chain-traversal contract the spec requires instead of the teacher's
// flat map-of-classes-by-name model.
package class

import (
	"github.com/wudi/mrblite/values"
)

// Node is any link in a class's super chain: a real Class, an IClass
// proxying an included Module's method table, or an SClass (singleton
// class). All three share Methods()/Super()/IVars().
type Node interface {
	values.HeapObject
	Methods() *MethodTable
	Super() Node
	SetSuper(Node)
	IVars() *IVarTable
	DisplayName() string
}

// Class is a real class or module object (§3.3). Modules are represented
// as a Class with IsModule set; they are never instantiated and never
// appear as another class's Super() target directly — inclusion always
// goes through an IClass proxy (see NewIClass) so the same module's method
// table can be shared by every class that includes it.
type Class struct {
	values.Header

	Name string

	ivars   IVarTable
	methods MethodTable
	super   Node

	IsModule   bool
	IsInherited bool // set once any subclass exists; gates method-cache invalidation granularity, §4.3
	IsPrepended bool
	IsOrigin    bool

	// InstanceType is the vtype new instances of this class carry, per
	// §3.3 "an instance-type tag indicating the vtype of instances it
	// creates". Ordinary user classes produce values.KindObject; built-in
	// classes the VM special-cases (Array, Hash, String, …) set their own.
	InstanceType values.Kind
}

func NewClass(name string, super Node) *Class {
	c := &Class{Name: name, super: super, InstanceType: values.KindObject}
	c.methods = newMethodTable()
	c.ivars = newIVarTable()
	return c
}

func NewModule(name string) *Class {
	m := NewClass(name, nil)
	m.IsModule = true
	return m
}

func (c *Class) Kind() values.Kind {
	if c.IsModule {
		return values.KindModule
	}
	return values.KindClass
}
func (c *Class) GCHeader() *values.Header { return &c.Header }
func (c *Class) Methods() *MethodTable    { return &c.methods }
func (c *Class) Super() Node             { return c.super }
func (c *Class) SetSuper(n Node)         { c.super = n }
func (c *Class) IVars() *IVarTable       { return &c.ivars }
func (c *Class) DisplayName() string     { return c.Name }

// TraceChildren exposes the super chain, every bytecode method's Proc, and
// every heap-valued constant/class-variable (stored in ivars) to the GC's
// MARK phase — without this, a class reachable only from an outer class's
// constant table would leave its methods and constants invisible to the
// collector (§8.1 invariant 2, "every object reachable... is alive").
func (c *Class) TraceChildren(visit func(values.HeapObject)) {
	if c.super != nil {
		visit(c.super)
	}
	c.methods.Each(func(_ values.SymbolID, m *Method) {
		if m.Proc != nil {
			visit(m.Proc)
		}
	})
	c.ivars.Each(func(_ values.SymbolID, v values.Value) {
		if v.IsHeap() {
			visit(v.HeapObj())
		}
	})
}

// IClass is the proxy node spliced into a class's super chain when a
// module is included (§3.3): "an iclass node I sharing M's method table is
// spliced into C's super chain." IClass never owns its own method entries;
// Methods() forwards to the wrapped module.
type IClass struct {
	values.Header
	Wraps *Class // the included module
	super Node
}

func NewIClass(wraps *Class, super Node) *IClass {
	return &IClass{Wraps: wraps, super: super}
}

func (i *IClass) Kind() values.Kind        { return values.KindIClass }
func (i *IClass) GCHeader() *values.Header { return &i.Header }
func (i *IClass) Methods() *MethodTable    { return i.Wraps.Methods() }
func (i *IClass) Super() Node              { return i.super }
func (i *IClass) SetSuper(n Node)          { i.super = n }
func (i *IClass) IVars() *IVarTable        { return i.Wraps.IVars() }
func (i *IClass) DisplayName() string      { return i.Wraps.Name }

// TraceChildren keeps the wrapped module and the rest of the super chain
// reachable; the module's own methods/ivars are traced when the module
// object itself is visited (every IClass's Wraps is also reachable as an
// ordinary Class via the module registry/constant table).
func (i *IClass) TraceChildren(visit func(values.HeapObject)) {
	if i.Wraps != nil {
		visit(i.Wraps)
	}
	if i.super != nil {
		visit(i.super)
	}
}

// SClass is a per-object singleton class (§3.3), allocated lazily to hold
// object-specific methods. Its super is the Node passed to NewSClass
// (vm.State.singletonOf passes the object's class, or the class object
// itself when the object is a class).
type SClass struct {
	values.Header
	ivars   IVarTable
	methods MethodTable
	super   Node

	// Attached is the object this singleton class was allocated for, kept
	// only for diagnostics (e.g. printing "#<Class:#<Foo>>").
	Attached values.HeapObject
}

func NewSClass(attached values.HeapObject, super Node) *SClass {
	s := &SClass{Attached: attached, super: super}
	s.methods = newMethodTable()
	s.ivars = newIVarTable()
	return s
}

func (s *SClass) Kind() values.Kind        { return values.KindSClass }
func (s *SClass) GCHeader() *values.Header { return &s.Header }
func (s *SClass) Methods() *MethodTable    { return &s.methods }
func (s *SClass) Super() Node              { return s.super }
func (s *SClass) SetSuper(n Node)          { s.super = n }
func (s *SClass) IVars() *IVarTable        { return &s.ivars }
func (s *SClass) DisplayName() string      { return "singleton class" }

// TraceChildren mirrors Class.TraceChildren: the attached object, the super
// chain, singleton methods, and any singleton ivars must all stay visible
// to MARK once this SClass itself is reachable (e.g. via State.singletons,
// scanned as a root in vm.State.ScanRoots).
func (s *SClass) TraceChildren(visit func(values.HeapObject)) {
	if s.Attached != nil {
		visit(s.Attached)
	}
	if s.super != nil {
		visit(s.super)
	}
	s.methods.Each(func(_ values.SymbolID, m *Method) {
		if m.Proc != nil {
			visit(m.Proc)
		}
	})
	s.ivars.Each(func(_ values.SymbolID, v values.Value) {
		if v.IsHeap() {
			visit(v.HeapObj())
		}
	})
}

// Prepend interposes an origin class holding c's own methods, so modules
// prepended after this call precede c itself in the super chain (§3.3:
// "an origin class is interposed to hold C's own methods while the
// prepended modules precede it in the super chain").
//
// The first Prepend moves c's existing method and ivar tables to the
// origin and gives c a fresh, empty method table; methods defined on c
// afterwards land in that new table, which is searched before the
// prepended modules. Include calls made after Prepend insert their IClass
// between c and the origin.
func (c *Class) Prepend(mod *Class) {
	if !c.IsPrepended {
		origin := NewClass(c.Name, c.super)
		origin.methods = c.methods
		origin.ivars = c.ivars
		origin.IsOrigin = true
		c.methods = newMethodTable()
		c.super = origin
		c.IsPrepended = true
	}
	ic := NewIClass(mod, c.super)
	c.super = ic
}

// Include splices an IClass wrapping mod directly above c in the chain —
// or, once c is prepended, directly above c's prepend chain — per §3.3.
// Re-including an already-included module is a no-op, checked by walking
// the existing chain for an IClass wrapping the same *Class pointer.
func (c *Class) Include(mod *Class) {
	for n := Node(c); n != nil; n = n.Super() {
		if ic, ok := n.(*IClass); ok && ic.Wraps == mod {
			return
		}
	}
	ic := NewIClass(mod, c.super)
	c.super = ic
}
