package class

import "github.com/wudi/mrblite/values"

// Resolve implements the method-search algorithm from §4.3: walk the super
// chain (iclass nodes transparently expose their wrapped module's method
// table via Methods()), stopping at the first entry found — including an
// explicitly undefined one, which aborts the search rather than falling
// through to a shallower ancestor. cache may be nil.
//
// Returns the method, the class the method was actually found on
// (resolvedClass, needed for Proc.TargetClass / `self.class` inside the
// method), and whether resolution succeeded at all (false when no node in
// the chain defines sym, and also when the first entry found is an
// explicit undef, matching Ruby's `undef_method` semantics).
func Resolve(start Node, sym values.SymbolID, cache *MethodCache) (resolved Node, method *Method, found bool) {
	if cache != nil {
		if rc, m, ok := cache.Get(start, sym); ok {
			if m.Kind == MethodUndefined {
				return nil, nil, false
			}
			return rc, m, true
		}
	}
	for n := start; n != nil; n = n.Super() {
		if m, ok := n.Methods().Lookup(sym); ok {
			if cache != nil {
				cache.Put(start, sym, n, m)
			}
			if m.Kind == MethodUndefined {
				return nil, nil, false
			}
			return n, m, true
		}
	}
	return nil, nil, false
}

// MethodMissingSymbol is interned once by the VM at startup and passed in
// here rather than re-interned on every failed lookup (§4.3 item 3: "retry
// with the symbol method_missing").
func ResolveOrMissing(start Node, sym values.SymbolID, methodMissing values.SymbolID, cache *MethodCache) (resolved Node, method *Method, usedMissing bool, found bool) {
	if rc, m, ok := Resolve(start, sym, cache); ok {
		return rc, m, false, true
	}
	if rc, m, ok := Resolve(start, methodMissing, cache); ok {
		return rc, m, true, true
	}
	return nil, nil, false, false
}

// AncestorOf reports whether target appears anywhere in start's super
// chain (including start itself), used for `is_a?`-style checks such as
// vm.State.isA's RESCUE class match. MethodCache.FlushFor does not use it:
// it matches cached entries by class, resolved class or symbol equality.
func AncestorOf(start, target Node) bool {
	for n := start; n != nil; n = n.Super() {
		if n == target {
			return true
		}
		if ic, ok := n.(*IClass); ok && ic.Wraps != nil && values.HeapObject(ic.Wraps) == values.HeapObject(target) {
			return true
		}
	}
	return false
}

// InvalidateForDefine is called whenever a method table mutates (Define,
// Undefine, Alias) on the class/module `owner`, implementing §4.3's
// invalidation rule: a full flush if `owner.IsInherited` (some class
// already descends from it, so the set of affected cache entries cannot be
// enumerated cheaply), otherwise a targeted flush for (owner, sym).
func InvalidateForDefine(cache *MethodCache, owner *Class, sym values.SymbolID) {
	if cache == nil {
		return
	}
	if owner.IsInherited {
		cache.FlushAll()
		return
	}
	cache.FlushFor(owner, sym)
}
