package class

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wudi/mrblite/values"
)

func TestMethodTableDefineAndLookup(t *testing.T) {
	tbl := newMethodTable()
	sym := values.SymbolID(1)
	m := &Method{Kind: MethodGo}
	tbl.Define(sym, m)

	got, ok := tbl.Lookup(sym)
	assert.True(t, ok)
	assert.Same(t, m, got)
	assert.Equal(t, sym, got.Name, "Define must stamp the method's own Name field")
}

func TestMethodTableUndefineInstallsSentinel(t *testing.T) {
	tbl := newMethodTable()
	sym := values.SymbolID(1)
	tbl.Undefine(sym)

	m, ok := tbl.Lookup(sym)
	assert.True(t, ok, "an undefined method is still present in the table, just tagged")
	assert.Equal(t, MethodUndefined, m.Kind)
}

func TestMethodTableEachSkipsUndefined(t *testing.T) {
	tbl := newMethodTable()
	tbl.Define(values.SymbolID(1), &Method{Kind: MethodGo})
	tbl.Undefine(values.SymbolID(2))

	var seen []values.SymbolID
	tbl.Each(func(sym values.SymbolID, m *Method) { seen = append(seen, sym) })
	assert.Equal(t, []values.SymbolID{values.SymbolID(1)}, seen)
}

func TestNewMethodCachePanicsOnNonPowerOfTwo(t *testing.T) {
	assert.Panics(t, func() { NewMethodCache(3) })
}

func TestMethodCacheDisabledAtZeroSize(t *testing.T) {
	c := NewMethodCache(0)
	object := NewClass("Object", nil)
	c.Put(object, values.SymbolID(1), object, &Method{Kind: MethodGo})
	_, _, ok := c.Get(object, values.SymbolID(1))
	assert.False(t, ok, "a zero-size cache must never retain an entry")
}

func TestMethodCachePutGetRoundTrips(t *testing.T) {
	c := NewMethodCache(8)
	object := NewClass("Object", nil)
	m := &Method{Kind: MethodGo}
	c.Put(object, values.SymbolID(3), object, m)

	rc, got, ok := c.Get(object, values.SymbolID(3))
	assert.True(t, ok)
	assert.Same(t, object, rc)
	assert.Same(t, m, got)
}

func TestMethodCacheMissOnDifferentClassOrSymbol(t *testing.T) {
	c := NewMethodCache(8)
	object := NewClass("Object", nil)
	other := NewClass("Other", nil)
	c.Put(object, values.SymbolID(3), object, &Method{Kind: MethodGo})

	_, _, ok := c.Get(other, values.SymbolID(3))
	assert.False(t, ok)
	_, _, ok = c.Get(object, values.SymbolID(4))
	assert.False(t, ok)
}

func TestMethodCacheFlushAllClearsEverything(t *testing.T) {
	c := NewMethodCache(8)
	object := NewClass("Object", nil)
	c.Put(object, values.SymbolID(1), object, &Method{Kind: MethodGo})
	c.FlushAll()
	_, _, ok := c.Get(object, values.SymbolID(1))
	assert.False(t, ok)
}

func TestMethodCacheFlushForTargetedEviction(t *testing.T) {
	c := NewMethodCache(64)
	objA := NewClass("A", nil)
	objB := NewClass("B", nil)
	c.Put(objA, values.SymbolID(1), objA, &Method{Kind: MethodGo})
	c.Put(objB, values.SymbolID(2), objB, &Method{Kind: MethodGo})

	c.FlushFor(objA, values.SymbolID(999))

	_, _, okA := c.Get(objA, values.SymbolID(1))
	_, _, okB := c.Get(objB, values.SymbolID(2))
	assert.False(t, okA, "an entry whose cached class matches the flush target must be evicted")
	assert.True(t, okB, "an unrelated entry must survive a targeted flush")
}

func TestMethodCacheFlushForMatchesBySymbolToo(t *testing.T) {
	c := NewMethodCache(64)
	objA := NewClass("A", nil)
	objB := NewClass("B", nil)
	sym := values.SymbolID(5)
	c.Put(objA, sym, objA, &Method{Kind: MethodGo})
	c.Put(objB, sym, objB, &Method{Kind: MethodGo})

	unrelated := NewClass("Z", nil)
	c.FlushFor(unrelated, sym)

	_, _, okA := c.Get(objA, sym)
	_, _, okB := c.Get(objB, sym)
	assert.False(t, okA)
	assert.False(t, okB)
}
