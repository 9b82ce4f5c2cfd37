package class

import "github.com/wudi/mrblite/values"

// Instance is an ordinary heap object: a user-defined class instance, or
// a built-in kind (Exception, Range, …) layered with its own payload
// fields alongside the shared ivar table (§3.3: "a class object owns an
// instance-variable table... an instance-type tag indicating the vtype
// of instances it creates").
type Instance struct {
	values.Header
	vtype values.Kind
	ivars IVarTable
}

func NewInstance(cls *Class) *Instance {
	inst := &Instance{vtype: cls.InstanceType}
	inst.Header.Class = cls
	inst.ivars = newIVarTable()
	return inst
}

func (o *Instance) Kind() values.Kind        { return o.vtype }
func (o *Instance) GCHeader() *values.Header { return &o.Header }
func (o *Instance) IVars() *IVarTable        { return &o.ivars }

func (o *Instance) TraceChildren(visit func(values.HeapObject)) {
	o.ivars.Each(func(_ values.SymbolID, v values.Value) {
		if v.IsHeap() {
			visit(v.HeapObj())
		}
	})
}

// Exception is a raised/raisable object (kind EXCEPTION), carrying a
// message string and, when constructed during unwinding, the backtrace
// is intentionally omitted — the built-in backtrace-capture machinery is
// part of the class library this module excludes (§1).
type Exception struct {
	values.Header
	ivars   IVarTable
	Message string
}

func NewException(cls *Class, message string) *Exception {
	e := &Exception{Message: message}
	e.Header.Class = cls
	e.ivars = newIVarTable()
	return e
}

func (e *Exception) Kind() values.Kind        { return values.KindException }
func (e *Exception) GCHeader() *values.Header { return &e.Header }
func (e *Exception) IVars() *IVarTable        { return &e.ivars }

func (e *Exception) TraceChildren(visit func(values.HeapObject)) {
	e.ivars.Each(func(_ values.SymbolID, v values.Value) {
		if v.IsHeap() {
			visit(v.HeapObj())
		}
	})
}
