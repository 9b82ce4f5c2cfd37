package heap

import "github.com/wudi/mrblite/values"

// Tracer is implemented by every heap object kind so the MARK phase can
// walk its children without this package importing class/procs/vm (which
// would create an import cycle). Each object's Children callback invokes
// the supplied visit function once per outgoing reference.
type Tracer interface {
	TraceChildren(visit func(values.HeapObject))
}

// Step runs one incremental GC step: in PhaseRoot it scans roots and
// flips the current white; in PhaseMark it drains up to
// StepSize*stepRatio/100 mark units from the gray list, promoting to
// PhaseSweep (with a final-marking atomic re-scan) once the gray list
// empties; in PhaseSweep it walks a bounded number of slots.
func (h *Heap) Step() {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.phase {
	case PhaseRoot:
		h.rootPhaseLocked()
	case PhaseMark:
		h.markPhaseLocked()
	case PhaseSweep:
		h.sweepPhaseLocked()
	}
}

func (h *Heap) rootPhaseLocked() {
	if !h.generational || !h.allOld {
		h.gray = h.gray[:0]
		h.atomic = h.atomic[:0]
	}
	if h.scanner != nil {
		h.scanner.ScanRoots(func(o values.HeapObject) { h.markGrayLocked(o) })
	}
	for _, o := range h.arena {
		h.markGrayLocked(o)
	}
	if h.NoMemoryError != nil {
		h.markGrayLocked(h.NoMemoryError)
	}
	if h.ArenaOverflowErr != nil {
		h.markGrayLocked(h.ArenaOverflowErr)
	}
	prevWhite := h.currentWhite
	if prevWhite == values.ColorWhiteA {
		h.currentWhite = values.ColorWhiteB
	} else {
		h.currentWhite = values.ColorWhiteA
	}
	h.sweepTarget = prevWhite
	h.phase = PhaseMark
}

// markGrayLocked paints a white object (of either white) gray and pushes
// it onto the gray list; gray and black objects are left alone.
func (h *Heap) markGrayLocked(o values.HeapObject) {
	if o == nil {
		return
	}
	hdr := o.GCHeader()
	if hdr.Color == values.ColorGray || hdr.Color == values.ColorBlack {
		return
	}
	hdr.Color = values.ColorGray
	h.gray = append(h.gray, o)
}

func (h *Heap) markPhaseLocked() {
	budget := h.stepRatioPct * DefaultStepSize / 100
	for budget > 0 && len(h.gray) > 0 {
		o := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		budget -= h.blackenLocked(o)
	}
	if len(h.gray) == 0 {
		h.finalMarkLocked()
		h.phase = PhaseSweep
		h.sweepPage = h.pages
		h.sweepIdx = 0
	}
}

// blackenLocked marks o's children gray and paints o black, returning the
// number of mark units (child pointers) charged against the step budget.
func (h *Heap) blackenLocked(o values.HeapObject) int {
	units := 1
	hdr := o.GCHeader()
	if hdr.Class != nil {
		h.markGrayLocked(hdr.Class)
		units++
	}
	if tr, ok := o.(Tracer); ok {
		tr.TraceChildren(func(child values.HeapObject) {
			h.markGrayLocked(child)
			units++
		})
	}
	hdr.Color = values.ColorBlack
	return units
}

// finalMarkLocked is the atomic final-marking substep: re-scan roots (in
// case mutation since the last root scan missed something) and drain the
// atomic-gray list built up by backward write barriers during incremental
// marking.
func (h *Heap) finalMarkLocked() {
	if h.scanner != nil {
		h.scanner.ScanRoots(func(o values.HeapObject) { h.markGrayLocked(o) })
	}
	for len(h.atomic) > 0 {
		o := h.atomic[len(h.atomic)-1]
		h.atomic = h.atomic[:len(h.atomic)-1]
		if o.GCHeader().Color != values.ColorBlack {
			h.markGrayLocked(o)
		}
	}
	for len(h.gray) > 0 {
		o := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		h.blackenLocked(o)
	}
}

const sweepStepSlots = DefaultStepSize

func (h *Heap) sweepPhaseLocked() {
	processed := 0
	for h.sweepPage != nil && processed < sweepStepSlots {
		p := h.sweepPage
		sawYoung := false
		for ; h.sweepIdx < len(p.slots); h.sweepIdx++ {
			obj := p.slots[h.sweepIdx]
			processed++
			if processed >= sweepStepSlots {
				h.sweepIdx++
				break
			}
			if obj == nil {
				continue
			}
			hdr := obj.GCHeader()
			if hdr.Color == h.sweepTarget {
				p.slots[h.sweepIdx] = nil
				p.free = append(p.free, h.sweepIdx)
				h.live--
				continue
			}
			if h.generational {
				hdr.Color = values.ColorBlack // survivors become "old"
				sawYoung = true
			} else {
				hdr.Color = h.currentWhite
			}
		}
		if h.sweepIdx >= len(p.slots) {
			// Page age is not tracked: sawYoung is not stored on the
			// page, no page is ever skipped, and every page is swept on
			// every pass, minor or major.
			_ = sawYoung
			h.sweepPage = p.next
			h.sweepIdx = 0
		}
	}
	if h.sweepPage == nil {
		h.phase = PhaseRoot
		h.checkMajorLocked()
	}
}

func (h *Heap) checkMajorLocked() {
	if !h.generational {
		return
	}
	if h.majorOldThreshold == 0 {
		h.majorOldThreshold = h.live * MajorIncRatioPct / 100
		return
	}
	if h.live > h.majorOldThreshold {
		h.forceMajorLocked()
	}
}

func (h *Heap) forceMajorLocked() {
	h.allOld = false
	for p := h.pages; p != nil; p = p.next {
		for _, obj := range p.slots {
			if obj != nil {
				obj.GCHeader().Color = h.currentWhite
			}
		}
	}
	h.majorOldThreshold = 0
}

// FullGC drives the state machine through ROOT->MARK->SWEEP->ROOT to
// completion, used by Alloc's retry path and by the §8.2 round-trip law
// "full_gc(); full_gc(); leaves live unchanged if no mutator ran between."
func (h *Heap) FullGC() {
	h.mu.Lock()
	startPhase := h.phase
	h.mu.Unlock()
	for {
		h.Step()
		h.mu.Lock()
		done := h.phase == PhaseRoot && startPhase != PhaseRoot
		if startPhase == PhaseRoot {
			// ran at least one full lap: Root->Mark->Sweep->Root
			done = h.phase == PhaseRoot && h.sweepPage == nil && len(h.gray) == 0
		}
		h.mu.Unlock()
		if done {
			return
		}
	}
}

// SetGenerational toggles generational mode. Per §4.2, toggling forces a
// full cycle to re-establish invariants (mixing generational and
// non-generational color bookkeeping mid-cycle would leave some objects
// black for the wrong reason).
func (h *Heap) SetGenerational(on bool) {
	h.mu.Lock()
	h.generational = on
	h.allOld = false
	h.mu.Unlock()
	h.FullGC()
}
