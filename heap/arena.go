package heap

import "github.com/wudi/mrblite/values"

// ArenaSave is a saved arena top (§3.11, §4.2): "the VM periodically
// save/restores the arena top around known-safe points to bound its
// growth."
type ArenaSave int

// ArenaPush protects obj from collection until the next ArenaRestore back
// to (or past) the save point surrounding this call. C-level allocations
// that must survive across further allocations push onto the arena.
func (h *Heap) ArenaPush(obj values.HeapObject) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.arena) >= h.arenaCap {
		return errArenaOverflow
	}
	h.arena = append(h.arena, obj)
	return nil
}

// ArenaSaveTop records the current arena top (§3.3 invariant 3: "the arena
// top never exceeds its capacity").
func (h *Heap) ArenaSaveTop() ArenaSave {
	h.mu.Lock()
	defer h.mu.Unlock()
	return ArenaSave(len(h.arena))
}

// ArenaRestore releases every object pushed since save, by truncating the
// arena back to that point.
func (h *Heap) ArenaRestore(save ArenaSave) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(save) <= len(h.arena) {
		h.arena = h.arena[:save]
	}
}

// ArenaLen reports the current arena depth, exposed for invariant tests
// (§8.1 invariant 3).
func (h *Heap) ArenaLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.arena)
}
