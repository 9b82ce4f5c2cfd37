package values

// The built-in class library is out of scope (§1), except for the minimal
// object-model surface the VM intrinsically needs: literal construction,
// `+` on strings, splat, hash merge, and keyword-arg extraction (§2 "String/
// Array/Hash hooks"). RString, RArray, and RHash below are exactly that
// surface and nothing more; a host embedding mrblite is expected to bring
// its own richer Array/Hash/String classes built atop these.

// RString is the heap string object.
type RString struct {
	Header
	Bytes []byte
}

func NewString(s string) *RString { return &RString{Bytes: []byte(s)} }

func (s *RString) Kind() Kind        { return KindString }
func (s *RString) GCHeader() *Header { return &s.Header }
func (s *RString) String() string    { return string(s.Bytes) }

// Concat implements the `+` fast path §4.5 calls out for strings: a new
// RString is always allocated (PHP/Ruby string values are not mutated by
// `+`), so a write barrier is never needed here; callers append the result
// through the allocator like any other new object.
func (s *RString) Concat(other *RString) *RString {
	buf := make([]byte, 0, len(s.Bytes)+len(other.Bytes))
	buf = append(buf, s.Bytes...)
	buf = append(buf, other.Bytes...)
	return &RString{Bytes: buf}
}

// RArray is the heap array object, used for splat (`*`) and literal
// construction (§4.5 ARRAY/ARYCAT/ARYPUSH/AREF/ASET/APOST family).
type RArray struct {
	Header
	Elems []Value
}

func NewArray(elems ...Value) *RArray {
	cp := make([]Value, len(elems))
	copy(cp, elems)
	return &RArray{Elems: cp}
}

func (a *RArray) Kind() Kind        { return KindArray }
func (a *RArray) GCHeader() *Header { return &a.Header }
func (a *RArray) Len() int          { return len(a.Elems) }

// Push appends a value. The caller is responsible for issuing the backward
// write barrier (heap.WriteBarrierBack) before or after this call, since
// RArray has no access to the owning *heap.Heap.
func (a *RArray) Push(v Value) { a.Elems = append(a.Elems, v) }

// TraceChildren exposes every element to the GC's MARK phase. Defined
// purely in terms of values.HeapObject so this package never needs to
// import heap (heap.Tracer is matched structurally).
func (a *RArray) TraceChildren(visit func(HeapObject)) {
	for _, v := range a.Elems {
		if v.IsHeap() {
			visit(v.HeapObj())
		}
	}
}

// RHash is the heap hash object, used for hash literals and for lifting
// out trailing keyword arguments (§4.4 item 4).
type RHash struct {
	Header
	keys   []Value
	values map[SymbolID]Value // fast path when every key is a symbol, which covers the keyword-arg case §4.4 depends on
	pairs  []hashPair         // general (non-symbol-key) storage, linear scan; the built-in class library owns a real hash table, this is only the VM-intrinsic subset
}

type hashPair struct {
	key Value
	val Value
}

func NewHash() *RHash {
	return &RHash{values: make(map[SymbolID]Value)}
}

func (h *RHash) Kind() Kind        { return KindHash }
func (h *RHash) GCHeader() *Header { return &h.Header }

// Set stores key->val. Symbol keys use the fast map; anything else falls
// back to a linear pair list, since general key equality for heap values
// (strings, arrays) is defined by the built-in class library this module
// does not include.
func (h *RHash) Set(key, val Value) {
	if key.Kind() == KindSymbol {
		if _, existed := h.values[key.SymbolID()]; !existed {
			h.keys = append(h.keys, key)
		}
		h.values[key.SymbolID()] = val
		return
	}
	for i := range h.pairs {
		if sameKey(h.pairs[i].key, key) {
			h.pairs[i].val = val
			return
		}
	}
	h.pairs = append(h.pairs, hashPair{key: key, val: val})
}

func (h *RHash) Get(key Value) (Value, bool) {
	if key.Kind() == KindSymbol {
		v, ok := h.values[key.SymbolID()]
		return v, ok
	}
	for _, p := range h.pairs {
		if sameKey(p.key, key) {
			return p.val, true
		}
	}
	return Nil, false
}

// Delete removes key, returning whether it was present. §4.4's KARG opcode
// removes each consumed keyword as it binds it, so later KEYEND can check
// the dict emptied out.
func (h *RHash) Delete(key Value) bool {
	if key.Kind() == KindSymbol {
		if _, ok := h.values[key.SymbolID()]; !ok {
			return false
		}
		delete(h.values, key.SymbolID())
		for i, k := range h.keys {
			if k.SymbolID() == key.SymbolID() {
				h.keys = append(h.keys[:i], h.keys[i+1:]...)
				break
			}
		}
		return true
	}
	for i, p := range h.pairs {
		if sameKey(p.key, key) {
			h.pairs = append(h.pairs[:i], h.pairs[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports the number of live key/value pairs.
func (h *RHash) Len() int { return len(h.keys) + len(h.pairs) }

// Empty reports whether the dict has no entries, which is exactly what
// KEYEND needs to check (§4.4).
func (h *RHash) Empty() bool { return h.Len() == 0 }

// AllSymbolKeys reports whether every key currently stored is a symbol,
// which is the precondition §4.4 item 4 requires before a trailing Hash
// argument is lifted out as the keyword dict rather than treated as an
// ordinary positional Hash.
func (h *RHash) AllSymbolKeys() bool { return len(h.pairs) == 0 }

// Dup performs the `_hash_dup` §4.4 item 4 calls for: a shallow copy so the
// callee can delete consumed keyword keys without mutating the caller's
// hash.
func (h *RHash) Dup() *RHash {
	out := NewHash()
	for _, k := range h.keys {
		out.Set(k, h.values[k.SymbolID()])
	}
	out.pairs = append(out.pairs, h.pairs...)
	return out
}

// Merge implements HASHCAT: entries from other overwrite entries in h.
func (h *RHash) Merge(other *RHash) {
	for _, k := range other.keys {
		h.Set(k, other.values[k.SymbolID()])
	}
	for _, p := range other.pairs {
		h.Set(p.key, p.val)
	}
}

// TraceChildren exposes every key and value to the GC's MARK phase.
func (h *RHash) TraceChildren(visit func(HeapObject)) {
	for _, k := range h.keys {
		if k.IsHeap() {
			visit(k.HeapObj())
		}
		if v := h.values[k.SymbolID()]; v.IsHeap() {
			visit(v.HeapObj())
		}
	}
	for _, p := range h.pairs {
		if p.key.IsHeap() {
			visit(p.key.HeapObj())
		}
		if p.val.IsHeap() {
			visit(p.val.HeapObj())
		}
	}
}

// RRange is the heap range object backing the RANGE_INC/RANGE_EXC opcodes.
// The built-in class library's Range#each/#cover?/#to_a family is out of
// scope (§1); this is only the literal-construction payload the VM itself
// needs to produce a value for `lo..hi`/`lo...hi`.
type RRange struct {
	Header
	Low, High Value
	Exclusive bool
}

func NewRange(low, high Value, exclusive bool) *RRange {
	return &RRange{Low: low, High: high, Exclusive: exclusive}
}

func (r *RRange) Kind() Kind        { return KindRange }
func (r *RRange) GCHeader() *Header { return &r.Header }

func (r *RRange) TraceChildren(visit func(HeapObject)) {
	if r.Low.IsHeap() {
		visit(r.Low.HeapObj())
	}
	if r.High.IsHeap() {
		visit(r.High.HeapObj())
	}
}

func sameKey(a, b Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case KindFixnum:
		return a.Int64() == b.Int64()
	case KindFloat:
		return a.Float64() == b.Float64()
	case KindSymbol:
		return a.SymbolID() == b.SymbolID()
	case KindString:
		as, aok := a.HeapObj().(*RString)
		bs, bok := b.HeapObj().(*RString)
		return aok && bok && string(as.Bytes) == string(bs.Bytes)
	default:
		return a.HeapObj() == b.HeapObj()
	}
}
