package class

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wudi/mrblite/values"
)

func TestResolveWalksSuperChain(t *testing.T) {
	object := NewClass("Object", nil)
	sym := values.SymbolID(42)
	m := &Method{Kind: MethodGo}
	object.Methods().Define(sym, m)

	child := NewClass("Child", object)
	resolved, found, ok := Resolve(child, sym, nil)
	assert.True(t, ok)
	assert.Same(t, object, resolved)
	assert.Same(t, m, found)
}

func TestResolveStopsAtExplicitUndef(t *testing.T) {
	object := NewClass("Object", nil)
	sym := values.SymbolID(1)
	object.Methods().Define(sym, &Method{Kind: MethodGo})

	child := NewClass("Child", object)
	child.Methods().Undefine(sym)

	_, _, ok := Resolve(child, sym, nil)
	assert.False(t, ok, "an explicit undef must abort the search rather than fall through to the ancestor")
}

func TestResolveNotFoundReturnsFalse(t *testing.T) {
	object := NewClass("Object", nil)
	_, _, ok := Resolve(object, values.SymbolID(999), nil)
	assert.False(t, ok)
}

func TestResolveUsesAndPopulatesCache(t *testing.T) {
	object := NewClass("Object", nil)
	sym := values.SymbolID(5)
	m := &Method{Kind: MethodGo}
	object.Methods().Define(sym, m)

	cache := NewMethodCache(16)
	child := NewClass("Child", object)

	_, _, ok := Resolve(child, sym, cache)
	assert.True(t, ok)

	rc, cached, ok := cache.Get(child, sym)
	assert.True(t, ok)
	assert.Same(t, object, rc)
	assert.Same(t, m, cached)
}

func TestResolveOrMissingFallsBackToMethodMissing(t *testing.T) {
	object := NewClass("Object", nil)
	missingSym := values.SymbolID(100)
	mm := &Method{Kind: MethodGo}
	object.Methods().Define(missingSym, mm)

	_, m, usedMissing, found := ResolveOrMissing(object, values.SymbolID(7), missingSym, nil)
	assert.True(t, found)
	assert.True(t, usedMissing)
	assert.Same(t, mm, m)
}

func TestResolveOrMissingPrefersDirectHit(t *testing.T) {
	object := NewClass("Object", nil)
	sym := values.SymbolID(7)
	missingSym := values.SymbolID(100)
	direct := &Method{Kind: MethodGo}
	object.Methods().Define(sym, direct)
	object.Methods().Define(missingSym, &Method{Kind: MethodGo})

	_, m, usedMissing, found := ResolveOrMissing(object, sym, missingSym, nil)
	assert.True(t, found)
	assert.False(t, usedMissing)
	assert.Same(t, direct, m)
}

func TestAncestorOfWalksChainAndIncludedModules(t *testing.T) {
	object := NewClass("Object", nil)
	mod := NewModule("Greet")
	c := NewClass("Foo", object)
	c.Include(mod)

	assert.True(t, AncestorOf(c, object))
	assert.True(t, AncestorOf(c, mod))
	assert.True(t, AncestorOf(c, c))
	assert.False(t, AncestorOf(object, c))
}

func TestInvalidateForDefineTargetedFlush(t *testing.T) {
	object := NewClass("Object", nil)
	sym := values.SymbolID(9)
	m := &Method{Kind: MethodGo}
	object.Methods().Define(sym, m)

	cache := NewMethodCache(16)
	Resolve(object, sym, cache)
	_, _, ok := cache.Get(object, sym)
	assert.True(t, ok)

	InvalidateForDefine(cache, object, sym)
	_, _, ok = cache.Get(object, sym)
	assert.False(t, ok, "a targeted flush must evict the entry for the redefined (class, symbol) pair")
}

func TestInvalidateForDefineFullFlushWhenInherited(t *testing.T) {
	object := NewClass("Object", nil)
	object.IsInherited = true
	sym := values.SymbolID(1)
	other := values.SymbolID(2)
	object.Methods().Define(sym, &Method{Kind: MethodGo})
	object.Methods().Define(other, &Method{Kind: MethodGo})

	cache := NewMethodCache(16)
	Resolve(object, sym, cache)
	Resolve(object, other, cache)

	InvalidateForDefine(cache, object, sym)

	_, _, ok1 := cache.Get(object, sym)
	_, _, ok2 := cache.Get(object, other)
	assert.False(t, ok1)
	assert.False(t, ok2, "IsInherited must trigger a full flush, not just the mutated symbol")
}
