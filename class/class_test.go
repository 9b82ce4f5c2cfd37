package class

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wudi/mrblite/values"
)

func TestNewClassDefaultsToObjectInstanceType(t *testing.T) {
	c := NewClass("Foo", nil)
	assert.Equal(t, values.KindObject, c.InstanceType)
	assert.Equal(t, values.KindClass, c.Kind())
	assert.False(t, c.IsModule)
}

func TestNewModuleSetsModuleFlagAndKind(t *testing.T) {
	m := NewModule("Enumerable")
	assert.True(t, m.IsModule)
	assert.Equal(t, values.KindModule, m.Kind())
}

func TestIncludeSplicesIClassAboveSuper(t *testing.T) {
	object := NewClass("Object", nil)
	mod := NewModule("Greet")
	c := NewClass("Foo", object)

	c.Include(mod)

	ic, ok := c.Super().(*IClass)
	if assert.True(t, ok, "Include must splice an IClass directly above the previous super") {
		assert.Same(t, mod, ic.Wraps)
		assert.Same(t, Node(object), ic.Super())
	}
}

func TestIncludeIsIdempotent(t *testing.T) {
	object := NewClass("Object", nil)
	mod := NewModule("Greet")
	c := NewClass("Foo", object)

	c.Include(mod)
	first := c.Super()
	c.Include(mod)
	assert.Same(t, first, c.Super(), "including the same module twice must be a no-op")
}

func TestIClassForwardsMethodsAndIVarsToWrappedModule(t *testing.T) {
	mod := NewModule("Greet")
	sym := values.SymbolID(7)
	mod.Methods().Define(sym, &Method{Kind: MethodGo})

	ic := NewIClass(mod, nil)
	assert.Same(t, mod.Methods(), ic.Methods())
	assert.Same(t, mod.IVars(), ic.IVars())
	_, ok := ic.Methods().Lookup(sym)
	assert.True(t, ok)
}

func TestPrependInterposesOriginHoldingOwnMethods(t *testing.T) {
	object := NewClass("Object", nil)
	c := NewClass("Foo", object)
	sym := values.SymbolID(3)
	c.Methods().Define(sym, &Method{Kind: MethodGo})

	mod := NewModule("Loud")
	c.Prepend(mod)

	// c's own methods move to the origin and still resolve through c.
	_, _, ok := Resolve(c, sym, nil)
	assert.True(t, ok)

	ic, ok := c.Super().(*IClass)
	if assert.True(t, ok) {
		assert.Same(t, mod, ic.Wraps)
		origin, ok := ic.Super().(*Class)
		if assert.True(t, ok) {
			assert.True(t, origin.IsOrigin)
			_, held := origin.Methods().Lookup(sym)
			assert.True(t, held)
			assert.Same(t, Node(object), origin.Super())
		}
	}
}

func TestPrependTwiceDoesNotReinterposeOrigin(t *testing.T) {
	object := NewClass("Object", nil)
	c := NewClass("Foo", object)
	c.Prepend(NewModule("A"))
	assert.True(t, c.IsPrepended)

	// A second prepend adds another IClass but must not build a second
	// origin class.
	c.Prepend(NewModule("B"))
	originCount := 0
	for n := Node(c); n != nil; n = n.Super() {
		if cls, ok := n.(*Class); ok && cls.IsOrigin {
			originCount++
		}
	}
	assert.Equal(t, 1, originCount)
}

func TestClassTraceChildrenVisitsSuperMethodsAndIVars(t *testing.T) {
	object := NewClass("Object", nil)
	c := NewClass("Foo", object)

	method := &Method{Kind: MethodGo}
	c.Methods().Define(values.SymbolID(1), method)

	heapVal := values.NewString("const")
	c.IVars().Set(values.SymbolID(2), values.Obj(heapVal))

	var seen []values.HeapObject
	c.TraceChildren(func(o values.HeapObject) { seen = append(seen, o) })

	assert.Contains(t, seen, values.HeapObject(object))
	assert.Contains(t, seen, values.HeapObject(heapVal))
}

func TestSClassTraceChildrenVisitsAttachedObject(t *testing.T) {
	object := NewClass("Object", nil)
	attached := NewInstance(object)
	sc := NewSClass(attached, object)

	var seen []values.HeapObject
	sc.TraceChildren(func(o values.HeapObject) { seen = append(seen, o) })

	assert.Contains(t, seen, values.HeapObject(attached))
	assert.Contains(t, seen, values.HeapObject(object))
}
