package class

import (
	"fmt"
	"hash/fnv"

	"github.com/wudi/mrblite/values"
	"golang.org/x/exp/slices"
)

// MethodKind discriminates a Method's payload (§3.5: "either a reference to
// a Proc (bytecode method) or a raw C function pointer"). Go has no
// function-pointer-alignment trick to steal a tag bit from, so this is an
// explicit byte rather than the teacher's inline-tagged-pointer
// optimization — Design Notes §9 calls that trick "a size optimization,
// not a semantic requirement."
type MethodKind byte

const (
	MethodUndefined MethodKind = iota // sentinel: "abort the search as not found", §4.3 item 2
	MethodBytecode
	MethodGo
)

// GoMethod is the native-function payload, taking the receiver, the
// argument values and the block argument; the symbol it was dispatched as
// is not passed. This mirrors mruby's `mrb_get_args`-style C function
// contract (§6.2 `get_args`).
type GoMethod func(recv values.Value, argv []values.Value, block values.Value) (values.Value, error)

// Method is one method-table entry.
type Method struct {
	Kind MethodKind
	Proc values.HeapObject // *procs.Proc, stored as HeapObject to avoid an import cycle
	Go   GoMethod
	Name values.SymbolID
}

// MethodTable is the symbol->method closed hash map from §3.5.
type MethodTable struct {
	entries map[values.SymbolID]*Method
}

func newMethodTable() MethodTable {
	return MethodTable{entries: make(map[values.SymbolID]*Method)}
}

func (t *MethodTable) Define(sym values.SymbolID, m *Method) {
	m.Name = sym
	t.entries[sym] = m
}

// Undefine installs the MethodUndefined sentinel rather than deleting the
// key outright, so §4.3 item 2's "abort the search as not found" rule can
// tell "truly absent, keep walking super" apart from "explicitly undef'd
// here, stop."
func (t *MethodTable) Undefine(sym values.SymbolID) {
	t.entries[sym] = &Method{Kind: MethodUndefined, Name: sym}
}

func (t *MethodTable) Lookup(sym values.SymbolID) (*Method, bool) {
	m, ok := t.entries[sym]
	return m, ok
}

// Each iterates live (non-undefined) entries, used by ObjectSpace-style
// introspection and by Alias.
func (t *MethodTable) Each(fn func(values.SymbolID, *Method)) {
	for sym, m := range t.entries {
		if m.Kind != MethodUndefined {
			fn(sym, m)
		}
	}
}

// cacheEntry and MethodCache implement the optional direct-mapped method
// cache from §4.3: "a direct-mapped table indexed by hash(class_ptr ^
// symbol) & (cache_size - 1) storing (class, symbol, resolved_class,
// method)."
type cacheEntry struct {
	class         Node
	symbol        values.SymbolID
	resolvedClass Node
	method        *Method
	occupied      bool
}

type MethodCache struct {
	entries []cacheEntry
	mask    uint64
}

// NewMethodCache builds a cache of the given power-of-two size. Size 0
// disables the cache entirely (§4.3: "The cache is strictly a hint; an
// implementation may omit it").
func NewMethodCache(size int) *MethodCache {
	if size <= 0 {
		return &MethodCache{}
	}
	if size&(size-1) != 0 {
		panic(fmt.Sprintf("method cache size %d is not a power of two", size))
	}
	return &MethodCache{entries: make([]cacheEntry, size), mask: uint64(size - 1)}
}

func (c *MethodCache) index(class Node, sym values.SymbolID) uint64 {
	h := uintptrHash(class) ^ uint64(sym)
	return h & c.mask
}

func (c *MethodCache) Get(class Node, sym values.SymbolID) (Node, *Method, bool) {
	if len(c.entries) == 0 {
		return nil, nil, false
	}
	e := &c.entries[c.index(class, sym)]
	if e.occupied && e.class == class && e.symbol == sym {
		return e.resolvedClass, e.method, true
	}
	return nil, nil, false
}

func (c *MethodCache) Put(class Node, sym values.SymbolID, resolved Node, m *Method) {
	if len(c.entries) == 0 {
		return
	}
	c.entries[c.index(class, sym)] = cacheEntry{class: class, symbol: sym, resolvedClass: resolved, method: m, occupied: true}
}

// FlushAll clears the entire cache. §4.3: mutating a method table on a
// class with IsInherited set must flush everything, since a targeted flush
// cannot cheaply account for every subclass that might have cached a
// lookup resolving through it.
func (c *MethodCache) FlushAll() {
	for i := range c.entries {
		c.entries[i] = cacheEntry{}
	}
}

// FlushFor does a targeted invalidation: drop any entry whose cached class
// is c, whose resolvedClass is c, or whose symbol is sym. This is the
// SPEC_FULL-pinned mechanic from the Supplemented Features note — the
// spec's prose left "flushes only entries matching the class or symbol"
// directly implementable without naming a data structure, so the slice
// compaction below uses slices.DeleteFunc from the shared example pack
// rather than a hand-rolled index loop.
func (c *MethodCache) FlushFor(target Node, sym values.SymbolID) {
	if len(c.entries) == 0 {
		return
	}
	live := make([]cacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.occupied {
			live = append(live, e)
		}
	}
	live = slices.DeleteFunc(live, func(e cacheEntry) bool {
		return e.class == target || e.resolvedClass == target || e.symbol == sym
	})
	for i := range c.entries {
		c.entries[i] = cacheEntry{}
	}
	for _, e := range live {
		c.Put(e.class, e.symbol, e.resolvedClass, e.method)
	}
}

// uintptrHash derives a stable hash for a Node. Go interface values backed
// by pointers compare equal iff the underlying pointers are equal, which is
// all Get/Put above actually need for correctness; the hash only has to
// scatter entries across buckets reasonably, not reproduce the C
// implementation's literal pointer-XOR, so formatting the pointer and
// hashing the bytes (rather than reaching for unsafe.Pointer arithmetic,
// which this codebase never uses) is sufficient.
func uintptrHash(n Node) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%p", n)
	return h.Sum64()
}
