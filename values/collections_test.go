package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringConcatAllocatesFresh(t *testing.T) {
	a := NewString("foo")
	b := NewString("bar")
	c := a.Concat(b)
	assert.Equal(t, "foobar", c.String())
	assert.Equal(t, "foo", a.String(), "Concat must not mutate either operand")
	assert.Equal(t, "bar", b.String())
}

func TestArrayPushAndTraceChildren(t *testing.T) {
	inner := NewString("x")
	arr := NewArray(Int(1), Obj(inner))
	arr.Push(Sym(5))
	assert.Equal(t, 3, arr.Len())

	var seen []HeapObject
	arr.TraceChildren(func(o HeapObject) { seen = append(seen, o) })
	assert.Equal(t, []HeapObject{inner}, seen, "only the heap-valued element should be traced")
}

func TestHashSetGetSymbolFastPath(t *testing.T) {
	h := NewHash()
	h.Set(Sym(1), Int(42))
	v, ok := h.Get(Sym(1))
	assert.True(t, ok)
	assert.Equal(t, int64(42), v.Int64())
	assert.True(t, h.AllSymbolKeys())
}

func TestHashSetGetNonSymbolKeyFallsBackToPairs(t *testing.T) {
	h := NewHash()
	key := Obj(NewString("k"))
	h.Set(key, Int(7))
	v, ok := h.Get(Obj(NewString("k")))
	assert.True(t, ok)
	assert.Equal(t, int64(7), v.Int64())
	assert.False(t, h.AllSymbolKeys())
}

func TestHashDeleteReportsPresence(t *testing.T) {
	h := NewHash()
	h.Set(Sym(1), Int(1))
	assert.True(t, h.Delete(Sym(1)))
	assert.False(t, h.Delete(Sym(1)))
	assert.True(t, h.Empty())
}

func TestHashDupIsShallowAndIndependent(t *testing.T) {
	h := NewHash()
	h.Set(Sym(1), Int(1))
	dup := h.Dup()
	dup.Delete(Sym(1))
	assert.True(t, dup.Empty())
	assert.False(t, h.Empty(), "deleting from the dup must not affect the original")
}

func TestHashMergeOverwritesFromOther(t *testing.T) {
	h := NewHash()
	h.Set(Sym(1), Int(1))
	other := NewHash()
	other.Set(Sym(1), Int(99))
	other.Set(Sym(2), Int(2))
	h.Merge(other)

	v1, _ := h.Get(Sym(1))
	v2, _ := h.Get(Sym(2))
	assert.Equal(t, int64(99), v1.Int64())
	assert.Equal(t, int64(2), v2.Int64())
}

func TestHashTraceChildrenVisitsKeysAndValues(t *testing.T) {
	h := NewHash()
	strKey := NewString("name")
	strVal := NewString("bob")
	h.Set(Obj(strKey), Obj(strVal))

	var seen []HeapObject
	h.TraceChildren(func(o HeapObject) { seen = append(seen, o) })
	assert.Contains(t, seen, HeapObject(strKey))
	assert.Contains(t, seen, HeapObject(strVal))
}

func TestRangeTraceChildrenVisitsHeapBounds(t *testing.T) {
	low := NewString("a")
	r := NewRange(Obj(low), Int(10), true)
	assert.True(t, r.Exclusive)

	var seen []HeapObject
	r.TraceChildren(func(o HeapObject) { seen = append(seen, o) })
	assert.Equal(t, []HeapObject{low}, seen, "the fixnum bound carries no heap pointer")
}
