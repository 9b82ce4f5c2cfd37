// Package irep implements the compiled-unit in-memory representation and
// its external binary encoding from §3.6 and §6.1: the "rite" format.
package irep

import (
	"github.com/wudi/mrblite/opcodes"
	"github.com/wudi/mrblite/values"
)

// PoolKind discriminates a constant-pool entry (§6.1 pool entry type byte).
type PoolKind byte

const (
	PoolString PoolKind = iota
	PoolFixnum
	PoolFloat
)

// PoolEntry is one constant-pool slot.
type PoolEntry struct {
	Kind  PoolKind
	Str   string  // PoolString
	Int   int64   // PoolFixnum (decoded from decimal text per §6.1)
	Float float64 // PoolFloat (decoded from text per §6.1)
}

// NoSymbol is the sentinel local-variable symbol index meaning "anonymous
// local" (§6.1: "A symbol of length 0xffff denotes 'no symbol'").
const NoSymbol = 0xffff

// LocalVar names one register slot for debugging/LVAR section purposes.
type LocalVar struct {
	Name values.SymbolID // NoSymbol if anonymous
	Reg  uint16
}

// DebugLine maps one bytecode offset to a source position (§6.1 LINE/DBG).
type DebugLine struct {
	StartPC int
	Line    int
	File    string
}

// Flags on an Irep record (§3.6).
type Flags uint8

const (
	FlagNotFreeable Flags = 1 << iota // "iseq not freeable" — statically embedded, refcount never drops it
)

// Irep is one compiled-unit record: instruction bytes (already decoded
// into the uniform Instruction form, per opcodes.Instruction's doc
// comment), constant pool, symbol array, nested child ireps, local
// variable metadata, flags, and register/local counts (§3.6).
//
// Ireps are reference-counted (§3.6: "so that procs outliving their
// enclosing compilation unit do not dangle") via RefCount; Go's own GC
// would keep the backing memory alive regardless, but the refcount is kept
// as an explicit, inspectable field since §8's testable properties and a
// host embedder's diagnostics (how many procs still reference a unit
// before unloading it) depend on observing it directly rather than on
// Go's opaque reachability.
type Irep struct {
	Instructions []opcodes.Instruction
	Pool         []PoolEntry
	Syms         []values.SymbolID
	Children     []*Irep

	Locals []LocalVar
	Debug  []DebugLine
	File   string

	Flags   Flags
	NLocals uint16
	NRegs   uint16

	RefCount int32

	// DebugSectionIdent/DebugSectionRaw and LvarSectionRaw hold the LINE/
	// DBG\0 and LVAR section payloads exactly as read, so Dump can re-emit
	// them byte-for-byte (§6.1 "two optional encodings" — this module
	// parses neither into Debug/Locals, it only preserves the bytes it was
	// handed). DebugSectionIdent distinguishes which of the two encodings
	// DebugSectionRaw holds; both are empty when the unit carried no debug
	// info at all.
	DebugSectionIdent string
	DebugSectionRaw   []byte
	LvarSectionRaw    []byte
}

func (ir *Irep) Retain() { ir.RefCount++ }
func (ir *Irep) Release() int32 {
	ir.RefCount--
	return ir.RefCount
}

// LineFor resolves a bytecode offset to a source line using the Debug
// table, returning ("", 0, false) when no debug info was loaded — debug
// sections are optional per §6.1.
func (ir *Irep) LineFor(pc int) (file string, line int, ok bool) {
	best := -1
	for i, d := range ir.Debug {
		if d.StartPC <= pc && d.StartPC >= 0 {
			if best == -1 || ir.Debug[i].StartPC > ir.Debug[best].StartPC {
				best = i
			}
		}
	}
	if best == -1 {
		return "", 0, false
	}
	return ir.Debug[best].File, ir.Debug[best].Line, true
}
