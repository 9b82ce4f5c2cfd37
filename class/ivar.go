package class

import "github.com/wudi/mrblite/values"

// segmentSize is the fixed width of one linked segment in the small-table
// representation (§3.4: "Small tables... are a plain linked list of fixed-
// size segments").
const segmentSize = 4

// indexThreshold is the entry count above which IVarTable builds the
// power-of-two open-addressed index (§3.4).
const indexThreshold = 8

type ivarSlot struct {
	sym   values.SymbolID
	val   values.Value
	valid bool // false once deleted; the slot's key model is "overwrite with UNDEF" per §3.4, represented here as valid=false rather than an actual UNDEF value, since Go doesn't need an observable sentinel in private storage
}

type ivarSegment struct {
	slots [segmentSize]ivarSlot
	next  *ivarSegment
}

// IVarTable is the ordered symbol->value map from §3.4: a linked list of
// fixed-size segments below the promotion threshold, an open-addressed
// power-of-two index above it.
type IVarTable struct {
	head    *ivarSegment
	tail    *ivarSegment
	live    int
	deleted int

	index []int32 // bucket -> linear slot ordinal (1-based, 0 = empty), built only once len > indexThreshold
	order []*ivarSlot
}

func newIVarTable() IVarTable {
	return IVarTable{}
}

// Get returns the value bound to sym, if any and not deleted.
func (t *IVarTable) Get(sym values.SymbolID) (values.Value, bool) {
	if t.index != nil {
		if slot := t.lookupIndexed(sym); slot != nil && slot.valid {
			return slot.val, true
		}
		return values.Nil, false
	}
	for seg := t.head; seg != nil; seg = seg.next {
		for i := range seg.slots {
			if seg.slots[i].valid && seg.slots[i].sym == sym {
				return seg.slots[i].val, true
			}
		}
	}
	return values.Nil, false
}

// Set stores sym->val, promoting to the indexed representation once the
// live entry count crosses indexThreshold.
func (t *IVarTable) Set(sym values.SymbolID, val values.Value) {
	if t.index != nil {
		if slot := t.lookupIndexed(sym); slot != nil {
			if !slot.valid {
				slot.valid = true
				t.live++
			}
			slot.val = val
			return
		}
		t.appendSegment(sym, val)
		t.buildIndex()
		return
	}
	for seg := t.head; seg != nil; seg = seg.next {
		for i := range seg.slots {
			if seg.slots[i].valid && seg.slots[i].sym == sym {
				seg.slots[i].val = val
				return
			}
		}
	}
	t.appendSegment(sym, val)
	if t.live > indexThreshold {
		t.buildIndex()
	}
}

func (t *IVarTable) appendSegment(sym values.SymbolID, val values.Value) {
	if t.tail == nil || segmentFull(t.tail) {
		seg := &ivarSegment{}
		if t.tail != nil {
			t.tail.next = seg
		} else {
			t.head = seg
		}
		t.tail = seg
	}
	for i := range t.tail.slots {
		if !t.tail.slots[i].valid && t.tail.slots[i].sym == 0 {
			t.tail.slots[i] = ivarSlot{sym: sym, val: val, valid: true}
			t.live++
			return
		}
	}
}

func segmentFull(seg *ivarSegment) bool {
	for i := range seg.slots {
		if !seg.slots[i].valid && seg.slots[i].sym == 0 {
			return false
		}
	}
	return true
}

// Delete overwrites the key with UNDEF (§3.4) rather than physically
// removing the segment slot, then triggers compaction once the
// deleted-to-live ratio grows past one third.
func (t *IVarTable) Delete(sym values.SymbolID) bool {
	found := false
	for seg := t.head; seg != nil; seg = seg.next {
		for i := range seg.slots {
			if seg.slots[i].valid && seg.slots[i].sym == sym {
				seg.slots[i].valid = false
				t.live--
				t.deleted++
				found = true
			}
		}
	}
	if found && t.deleted*3 > t.live {
		t.compact()
	}
	if found && t.index != nil {
		t.buildIndex()
	}
	return found
}

// compact rebuilds the segment chain keeping only live slots, resetting
// the deleted counter (§3.4: "compaction runs when deleted-to-live ratio
// grows").
func (t *IVarTable) compact() {
	var survivors []ivarSlot
	for seg := t.head; seg != nil; seg = seg.next {
		for i := range seg.slots {
			if seg.slots[i].valid {
				survivors = append(survivors, seg.slots[i])
			}
		}
	}
	t.head, t.tail = nil, nil
	t.live, t.deleted = 0, 0
	for _, s := range survivors {
		t.appendSegment(s.sym, s.val)
	}
}

// buildIndex constructs the power-of-two open-addressed index over the
// current segment storage (§3.4).
func (t *IVarTable) buildIndex() {
	var order []*ivarSlot
	for seg := t.head; seg != nil; seg = seg.next {
		for i := range seg.slots {
			if seg.slots[i].valid {
				order = append(order, &seg.slots[i])
			}
		}
	}
	t.order = order
	t.reindex()
}

func (t *IVarTable) reindex() {
	size := nextPow2(len(t.order) * 2)
	if size < 4 {
		size = 4
	}
	t.index = make([]int32, size)
	for ord, slot := range t.order {
		t.insertIndex(slot.sym, int32(ord+1))
	}
}

func (t *IVarTable) insertIndex(sym values.SymbolID, ord int32) {
	mask := uint32(len(t.index) - 1)
	h := uint32(sym)
	for step := uint32(0); ; step++ {
		bucket := (h + step*step) & mask
		if t.index[bucket] == 0 {
			t.index[bucket] = ord
			return
		}
	}
}

func (t *IVarTable) lookupIndexed(sym values.SymbolID) *ivarSlot {
	mask := uint32(len(t.index) - 1)
	h := uint32(sym)
	for step := uint32(0); step <= mask; step++ {
		bucket := (h + step*step) & mask
		ord := t.index[bucket]
		if ord == 0 {
			return nil
		}
		slot := t.order[ord-1]
		if slot.sym == sym {
			return slot
		}
	}
	return nil
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Len reports the number of live entries.
func (t *IVarTable) Len() int { return t.live }

// Each iterates live (non-deleted) entries in segment order. Used by the
// GC's TraceChildren walk on every ivar-table-holding object (§4.2 MARK
// must see through instance variables to whatever they reference).
func (t *IVarTable) Each(fn func(values.SymbolID, values.Value)) {
	for seg := t.head; seg != nil; seg = seg.next {
		for i := range seg.slots {
			if seg.slots[i].valid {
				fn(seg.slots[i].sym, seg.slots[i].val)
			}
		}
	}
}
