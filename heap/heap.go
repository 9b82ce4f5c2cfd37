// Package heap implements the allocator and tri-color incremental garbage
// collector from §4.1/§4.2: fixed-size object slots across linked pages, a
// per-page free list, generational minor/major modes, write barriers, and
// the bounded arena.
//
// No repo in the retrieval pack ships a reusable tri-color GC for an
// embeddable interpreter (the only tri-color/"mark and sweep" hits in the
// pack are the Go runtime's own `gc.c`/`runtime` sources, referenced for
// documentation, not importable as a library) — per the DESIGN.md ledger
// this package is grounded directly in spec.md §4.1/§4.2 and
// original_source/src/gc.c's constants, styled after the teacher's
// receiver-heavy, no-generics, explicit-mutex package shape.
package heap

import (
	"sync"

	"github.com/wudi/mrblite/values"
)

// Tunables mirror original_source/src/gc.c's #defines so the defaults this
// package ships reproduce mruby's observed GC cadence.
const (
	DefaultPageSize          = 1024 // HEAP_PAGE_SIZE
	DefaultStepSize          = 1024 // GC_STEP_SIZE: mark units processed per incremental step
	DefaultIntervalRatioPct  = 200  // DEFAULT_GC_INTERVAL_RATIO
	DefaultStepRatioPct      = 200  // DEFAULT_GC_STEP_RATIO
	MajorIncRatioPct         = 120  // MAJOR_GC_INC_RATIO
	DefaultArenaCapacity     = 256
)

// Phase is the GC state machine from §4.2: ROOT -> MARK -> SWEEP -> ROOT.
type Phase byte

const (
	PhaseRoot Phase = iota
	PhaseMark
	PhaseSweep
)

func (p Phase) String() string {
	switch p {
	case PhaseRoot:
		return "root"
	case PhaseMark:
		return "mark"
	case PhaseSweep:
		return "sweep"
	default:
		return "?"
	}
}

// page is a fixed array of object slots plus the page's own free list, per
// §4.1.
type page struct {
	slots    []values.HeapObject
	free     []int // indices currently on this page's free list
	prev, next *page
}

// RootScanner is implemented by the embedder (the vm package) so heap
// never needs to import vm: it supplies every root the MARK phase must
// trace (§4.2 ROOT: "global variable table, method-cache entries,
// VM-level built-in class pointers, pre-allocated exceptions, arena stack,
// every call-info's proc/env/target-class... every fiber context's
// value-stack live region").
type RootScanner interface {
	ScanRoots(mark func(values.HeapObject))
}

// Heap owns the page list, the gray/atomic-gray lists, the arena, and the
// GC state machine. One Heap belongs to exactly one *vm.State (§9: no
// process-wide mutable state).
type Heap struct {
	mu sync.Mutex

	pageSize int
	pages    *page // head of the page list
	live     int
	threshold int

	currentWhite values.Color
	sweepTarget  values.Color // "other white": objects bearing it at sweep time are unreachable

	phase    Phase
	gray     []values.HeapObject
	atomic   []values.HeapObject
	sweepPage *page
	sweepIdx  int

	generational bool
	allOld       bool
	majorOldThreshold int

	arena       []values.HeapObject
	arenaCap    int

	stepRatioPct int
	scanner      RootScanner

	// Pre-allocated errors (§7: "NoMemoryError, SysStackError, and
	// (optionally) the arena-overflow error are instantiated at VM init
	// and reused — raising them must never allocate"). Stored as opaque
	// HeapObject so this package doesn't need to import the exception
	// representation; vm wires these in at Open time.
	NoMemoryError    values.HeapObject
	ArenaOverflowErr values.HeapObject
}

// Config mirrors §6.3's configuration table entries relevant to the heap.
type Config struct {
	PageSize          int
	Generational      bool
	MajorOldThreshold int
	ArenaCapacity     int
	StepRatioPct      int
}

func DefaultConfig() Config {
	return Config{
		PageSize:          DefaultPageSize,
		Generational:      true,
		MajorOldThreshold: 0, // 0 = computed from live count at first major, see checkMajorLocked
		ArenaCapacity:     DefaultArenaCapacity,
		StepRatioPct:      DefaultStepRatioPct,
	}
}

// New constructs a Heap. scanner is consulted at the start of every ROOT
// phase; it may be nil only in tests that drive marking manually.
func New(cfg Config, scanner RootScanner) *Heap {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.ArenaCapacity <= 0 {
		cfg.ArenaCapacity = DefaultArenaCapacity
	}
	if cfg.StepRatioPct <= 0 {
		cfg.StepRatioPct = DefaultStepRatioPct
	}
	h := &Heap{
		pageSize:          cfg.PageSize,
		currentWhite:      values.ColorWhiteA,
		sweepTarget:       values.ColorWhiteB,
		generational:      cfg.Generational,
		majorOldThreshold: cfg.MajorOldThreshold,
		arenaCap:          cfg.ArenaCapacity,
		stepRatioPct:      cfg.StepRatioPct,
		scanner:           scanner,
		threshold:         cfg.PageSize * 2,
	}
	return h
}

func (h *Heap) newPage() *page {
	p := &page{slots: make([]values.HeapObject, h.pageSize)}
	p.free = make([]int, h.pageSize)
	for i := range p.free {
		p.free[i] = h.pageSize - 1 - i
	}
	if h.pages != nil {
		h.pages.prev = p
	}
	p.next = h.pages
	h.pages = p
	return p
}

// AllocSimple pulls a slot from the current page's free list, returning
// false on failure rather than growing the heap — the variant §4.1 specifies
// "used inside the GC itself to avoid reentry." obj must already be fully
// constructed; AllocSimple only installs the header (color, class) and
// places it in a page slot.
func (h *Heap) AllocSimple(obj values.HeapObject, cls values.HeapObject) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.pages
	for p != nil && len(p.free) == 0 {
		p = p.next
	}
	if p == nil {
		return false
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.slots[idx] = obj
	hdr := obj.GCHeader()
	hdr.Color = h.currentWhite
	hdr.Class = cls
	h.live++
	return true
}

// Alloc is the growing variant: on AllocSimple failure it adds a fresh
// page and retries; if that still fails it runs a full GC, adds another
// page and retries once more. It returns ok=false if the object still
// could not be placed, and the caller (vm) then raises its pre-allocated
// NoMemoryError without allocating.
func (h *Heap) Alloc(obj values.HeapObject, cls values.HeapObject) (ok bool) {
	if h.AllocSimple(obj, cls) {
		h.maybeStep()
		return true
	}
	h.newPage()
	if h.AllocSimple(obj, cls) {
		return true
	}
	h.FullGC()
	h.newPage()
	return h.AllocSimple(obj, cls)
}

// maybeStep advances one incremental GC step when live exceeds threshold,
// per §3.11/§4.1.
func (h *Heap) maybeStep() {
	if h.live > h.threshold {
		h.Step()
	}
}

// Stats mirrors what the teacher's profiler reports, formatted with
// dustin/go-humanize at the cmd/mrb layer rather than in this package
// (heap stays free of presentation concerns).
type Stats struct {
	Live      int
	Pages     int
	Phase     Phase
	Threshold int
}

func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for p := h.pages; p != nil; p = p.next {
		n++
	}
	return Stats{Live: h.live, Pages: n, Phase: h.phase, Threshold: h.threshold}
}
