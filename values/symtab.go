package values

import "sync"

// SymbolID is the interned integer identity of a method/variable/constant
// name (§2 "Symbol table: interned name -> integer id; reverse lookup").
type SymbolID uint32

// SymbolTable interns byte-string names to SymbolIDs. It is owned by a
// single *vm.State (per §9 "no process-wide mutable state in the core");
// embedders never reach for a package-level table.
type SymbolTable struct {
	mu      sync.RWMutex
	byName  map[string]SymbolID
	byID    []string
}

// NewSymbolTable returns an empty table with id 0 reserved (0 never names a
// real symbol, so a zero-valued SymbolID reliably means "absent").
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		byName: make(map[string]SymbolID, 64),
		byID:   []string{""},
	}
}

// Intern returns the SymbolID for name, assigning a fresh one if this is
// the first time name has been seen. Per §8.1 invariant 7, two byte
// sequences equal as strings always intern to the same id.
func (t *SymbolTable) Intern(name string) SymbolID {
	t.mu.RLock()
	if id, ok := t.byName[name]; ok {
		t.mu.RUnlock()
		return id
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byName[name]; ok {
		return id
	}
	id := SymbolID(len(t.byID))
	t.byID = append(t.byID, name)
	t.byName[name] = id
	return id
}

// Name reverse-looks-up a previously interned id. The empty string and
// false are returned for an unknown id rather than panicking, since a
// corrupt bytecode stream can reference an out-of-range symbol index and
// the loader is expected to surface that as an ordinary error, not a crash.
func (t *SymbolTable) Name(id SymbolID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) <= 0 || int(id) >= len(t.byID) {
		return "", false
	}
	return t.byID[id], true
}

// MustName is Name without the ok flag, for call sites that already know
// the id came from this table (e.g. printing a resolved method's name in
// an error message).
func (t *SymbolTable) MustName(id SymbolID) string {
	name, _ := t.Name(id)
	return name
}

// Len reports how many distinct symbols have been interned, including the
// reserved zero slot.
func (t *SymbolTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}
