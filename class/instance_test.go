package class

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wudi/mrblite/values"
)

func TestNewInstanceInheritsInstanceType(t *testing.T) {
	arr := NewClass("Array", nil)
	arr.InstanceType = values.KindArray

	inst := NewInstance(arr)
	assert.Equal(t, values.KindArray, inst.Kind())
	assert.Same(t, arr, inst.GCHeader().Class)
}

func TestInstanceTraceChildrenVisitsHeapIVarsOnly(t *testing.T) {
	object := NewClass("Object", nil)
	inst := NewInstance(object)
	heapVal := values.NewString("payload")
	inst.IVars().Set(values.SymbolID(1), values.Obj(heapVal))
	inst.IVars().Set(values.SymbolID(2), values.Int(7))

	var seen []values.HeapObject
	inst.TraceChildren(func(o values.HeapObject) { seen = append(seen, o) })
	assert.Equal(t, []values.HeapObject{heapVal}, seen, "a fixnum ivar carries no heap pointer to trace")
}

func TestNewExceptionCarriesMessageAndClass(t *testing.T) {
	errClass := NewClass("RuntimeError", nil)
	e := NewException(errClass, "boom")

	assert.Equal(t, "boom", e.Message)
	assert.Equal(t, values.KindException, e.Kind())
	assert.Same(t, errClass, e.GCHeader().Class)
}

func TestExceptionTraceChildrenVisitsHeapIVarsOnly(t *testing.T) {
	errClass := NewClass("RuntimeError", nil)
	e := NewException(errClass, "boom")
	heapVal := values.NewString("detail")
	e.IVars().Set(values.SymbolID(1), values.Obj(heapVal))
	e.IVars().Set(values.SymbolID(2), values.Bool(true))

	var seen []values.HeapObject
	e.TraceChildren(func(o values.HeapObject) { seen = append(seen, o) })
	assert.Equal(t, []values.HeapObject{heapVal}, seen)
}
