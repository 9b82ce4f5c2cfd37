// Package vm implements the register-based bytecode interpreter from
// §3.9-§3.11, §4.3-§4.7, and §5: call-info stack, fiber contexts,
// argument unpacking, the opcode dispatch loop, exception unwinding, and
// write-barrier-respecting mutation of every object the loop touches.
package vm

import (
	"github.com/google/uuid"

	"github.com/wudi/mrblite/class"
	"github.com/wudi/mrblite/heap"
	"github.com/wudi/mrblite/values"
)

// State is the VM state from §9 Design Notes: "the single container for
// globals... an explicit handle passed to every operation." Nothing in
// this package reaches for a package-level variable; every operation
// either is a method on *State or takes one explicitly.
type State struct {
	// ID identifies this VM state, same rationale as FiberContext.ID: a
	// host embedding more than one VM (§5 "multiple VM states may exist
	// concurrently in the same process") can tell them apart by it;
	// cmd/mrb does not print it.
	ID uuid.UUID

	Heap *heap.Heap
	Syms *values.SymbolTable

	Globals map[values.SymbolID]values.Value
	Consts  map[values.SymbolID]values.Value // top-level constant table (GETCONST/SETCONST)
	Cache   *class.MethodCache

	ObjectClass    *class.Class
	ModuleClass    *class.Class
	ClassClass     *class.Class
	FixnumClass    *class.Class
	FloatClass     *class.Class
	SymbolClass    *class.Class
	TrueClass      *class.Class
	FalseClass     *class.Class
	NilClass       *class.Class
	StringClass    *class.Class
	ArrayClass     *class.Class
	HashClass      *class.Class
	ProcClass      *class.Class
	RangeClass     *class.Class
	FiberClass     *class.Class
	ExceptionClass *class.Class

	errorClasses map[ErrorClass]*class.Class

	// singletons caches each object's lazily-allocated singleton class,
	// keyed by identity (§3.3 "allocated lazily"); SCLASS looks here before
	// building a new one.
	singletons map[values.HeapObject]*class.SClass

	MethodMissingSym values.SymbolID

	Root    *FiberContext
	Current *FiberContext

	PendingException *class.Exception

	// Pre-allocated per §7 "raising them must never allocate".
	preallocNoMemory   *class.Exception
	preallocSysStack   *class.Exception
	preallocArenaOver  *class.Exception

	DebugHooks bool
	profile    *profileState
}

// Config mirrors the §6.3 options this package cares about directly; the
// rest (integer width, boxing strategy, no-float) are compile-time
// properties of the values package in this Go port, not runtime State
// fields, since Go cannot select a struct layout at runtime the way the
// C `#ifdef` matrix does.
type Config struct {
	Heap         heap.Config
	MethodCache  int // power-of-two size; 0 disables the cache (§4.3)
	StackInit    int
	DebugHooks   bool
}

func DefaultConfig() Config {
	return Config{
		Heap:        heap.DefaultConfig(),
		MethodCache: 256,
		StackInit:   128,
		DebugHooks:  false,
	}
}

// Open constructs a fresh VM state (§6.2 "open(allocator) -> state"),
// bootstrapping the symbol table, the built-in immediate-type classes,
// the error taxonomy, and the root fiber.
func Open(cfg Config) *State {
	s := &State{
		ID:           uuid.New(),
		Syms:         values.NewSymbolTable(),
		Globals:      make(map[values.SymbolID]values.Value),
		Consts:       make(map[values.SymbolID]values.Value),
		errorClasses: make(map[ErrorClass]*class.Class),
		singletons:   make(map[values.HeapObject]*class.SClass),
		DebugHooks:   cfg.DebugHooks,
		profile:      newProfileState(),
	}
	s.Heap = heap.New(cfg.Heap, s)
	if cfg.MethodCache > 0 {
		s.Cache = class.NewMethodCache(cfg.MethodCache)
	}
	s.MethodMissingSym = s.Syms.Intern("method_missing")

	s.bootstrapClasses()
	s.bootstrapErrors()
	s.bootstrapFiberSupport()

	s.preallocNoMemory = track(s, class.NewException(s.errorClasses[ErrNoMemory], "failed to allocate memory"))
	s.preallocSysStack = track(s, class.NewException(s.errorClasses[ErrSysStack], "stack level too deep"))
	s.preallocArenaOver = track(s, class.NewException(s.errorClasses[ErrRuntime], "arena overflow"))
	s.Heap.NoMemoryError = s.preallocNoMemory
	s.Heap.ArenaOverflowErr = s.preallocArenaOver

	s.Root = track(s, newFiberContext(cfg.StackInit))
	s.Root.Status = FiberRunning
	s.Current = s.Root

	return s
}

// Close releases VM-owned resources. The Go garbage collector reclaims
// everything once s drops out of scope; Close exists only to mirror the
// §6.2 embedding-API surface (`open`/`close` pair) for a host written
// against that lifecycle contract, and as the natural place to run any
// future shutdown hooks.
func (s *State) Close() {}

// ScanRoots implements heap.RootScanner (§4.2 ROOT phase): "global
// variable table, method-cache entries, VM-level built-in class
// pointers, pre-allocated exceptions, ... every call-info's proc/env/
// target-class... every fiber context's value-stack live region."
func (s *State) ScanRoots(mark func(values.HeapObject)) {
	for _, v := range s.Globals {
		if v.IsHeap() {
			mark(v.HeapObj())
		}
	}
	for _, v := range s.Consts {
		if v.IsHeap() {
			mark(v.HeapObj())
		}
	}
	for _, c := range s.builtinClasses() {
		if c != nil {
			mark(c)
		}
	}
	for _, c := range s.errorClasses {
		mark(c)
	}
	if s.preallocNoMemory != nil {
		mark(s.preallocNoMemory)
	}
	if s.preallocSysStack != nil {
		mark(s.preallocSysStack)
	}
	if s.preallocArenaOver != nil {
		mark(s.preallocArenaOver)
	}
	if s.PendingException != nil {
		mark(s.PendingException)
	}
	for f := s.Current; f != nil; f = f.Caller {
		mark(f)
	}
	mark(s.Root)
	for _, sc := range s.singletons {
		mark(sc)
	}
}

// track registers a freshly constructed heap object with the allocator
// (§3.11 "Heap objects are created by obj_alloc... pushed onto the GC
// arena"): every HeapObject this package's opcode handlers build —
// instances, strings, arrays, hashes, ranges, procs, envs, classes,
// fibers — is routed through here rather than handed back from a bare Go
// `&T{}` literal, so the object is counted in Heap.live, occupies a page
// slot, and is therefore visible to the next SWEEP. The object's own
// Header.Class (already set by its constructor for class.Instance/
// class.Exception, left nil for the VM-intrinsic collection kinds that
// State.classFor resolves by Kind instead) passes through unchanged.
//
// Allocation failure here is vanishingly rare (Heap.Alloc grows a fresh
// page and forces a full GC before giving up) and is treated the way §7
// prescribes for any other allocation site: the pre-allocated
// NoMemoryError is installed as pending without this call itself
// allocating.
func track[T values.HeapObject](s *State, obj T) T {
	cls := obj.GCHeader().Class
	if !s.Heap.Alloc(obj, cls) {
		s.PendingException = s.preallocNoMemory
		return obj
	}
	s.profile.recordAlloc(1)
	return obj
}

// NewString allocates a heap string tracked by the GC, for hosts (cmd/mrb's
// REPL, Funcall callers) that need to build an argument Value without
// reaching into this package's unexported allocation path.
func (s *State) NewString(str string) *values.RString {
	return track(s, values.NewString(str))
}

func (s *State) builtinClasses() []*class.Class {
	return []*class.Class{
		s.ObjectClass, s.ModuleClass, s.ClassClass, s.FixnumClass, s.FloatClass,
		s.SymbolClass, s.TrueClass, s.FalseClass, s.NilClass, s.StringClass,
		s.ArrayClass, s.HashClass, s.ProcClass, s.RangeClass, s.FiberClass,
		s.ExceptionClass,
	}
}

// classFor returns the class backing v's runtime type, per §4.3 item 1:
// "immediate types each map to a singleton class held at VM init." For a
// heap value, an explicitly recorded header class (set by NewInstance,
// NewException, or a singleton-class assignment) always wins; otherwise
// the VM-intrinsic collection/range/proc/fiber kinds this package
// constructs directly (values.NewString/NewArray/NewHash/NewRange, none of
// which stamp a Header.Class themselves) fall back to their built-in class
// by Kind.
func (s *State) classFor(v values.Value) class.Node {
	switch v.Kind() {
	case values.KindFixnum:
		return s.FixnumClass
	case values.KindFloat:
		return s.FloatClass
	case values.KindSymbol:
		return s.SymbolClass
	case values.KindTrue:
		return s.TrueClass
	case values.KindFalse:
		if v.IsNil() {
			return s.NilClass
		}
		return s.FalseClass
	}

	if h := v.HeapObj(); h != nil {
		if hdr := h.GCHeader(); hdr.Class != nil {
			if n, ok := hdr.Class.(class.Node); ok {
				return n
			}
		}
	}

	switch v.Kind() {
	case values.KindString:
		return s.StringClass
	case values.KindArray:
		return s.ArrayClass
	case values.KindHash:
		return s.HashClass
	case values.KindRange:
		return s.RangeClass
	case values.KindProc:
		return s.ProcClass
	case values.KindFiber:
		return s.FiberClass
	case values.KindException:
		return s.ExceptionClass
	case values.KindClass:
		return s.ClassClass
	case values.KindModule:
		return s.ModuleClass
	case values.KindIClass, values.KindSClass:
		return s.ClassClass
	default:
		return s.ObjectClass
	}
}
