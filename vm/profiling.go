package vm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/wudi/mrblite/opcodes"
)

// HotSpot describes a program counter that was executed frequently, the
// same shape the teacher's profiler reports by instruction pointer.
type HotSpot struct {
	PC    int
	Op    opcodes.Opcode
	Count int
}

// profileState is the always-on opcode-frequency profiler and debug-record
// ring backing DebugHooks diagnostics (§6.3). Every State carries one; the
// dispatch loop's observe call is cheap enough to leave unconditional, the
// way the teacher's vm.profile.observe is called on every fetched
// instruction regardless of DebugLevel — only the free-form debug log is
// gated on DebugHooks, since that's the verbose/string-building path.
type profileState struct {
	mu sync.Mutex

	pcCounts   map[int]int
	opCounts   map[opcodes.Opcode]int
	totalSteps int

	allocs int
	frees  int

	debug []string
}

func newProfileState() *profileState {
	return &profileState{
		pcCounts: make(map[int]int),
		opCounts: make(map[opcodes.Opcode]int),
		debug:    make([]string, 0, 64),
	}
}

func (ps *profileState) observe(pc int, op opcodes.Opcode) {
	ps.mu.Lock()
	ps.pcCounts[pc]++
	ps.opCounts[op]++
	ps.totalSteps++
	ps.mu.Unlock()
}

func (ps *profileState) addDebug(message string) {
	ps.mu.Lock()
	ps.debug = append(ps.debug, message)
	ps.mu.Unlock()
}

func (ps *profileState) debugRecords() []string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	out := make([]string, len(ps.debug))
	copy(out, ps.debug)
	return out
}

func (ps *profileState) recordAlloc(delta int) {
	ps.mu.Lock()
	if delta > 0 {
		ps.allocs += delta
	} else {
		ps.frees += -delta
	}
	ps.mu.Unlock()
}

func (ps *profileState) hotSpots(n int) []HotSpot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	spots := make([]HotSpot, 0, len(ps.pcCounts))
	for pc, count := range ps.pcCounts {
		spots = append(spots, HotSpot{PC: pc, Count: count})
	}
	sort.Slice(spots, func(i, j int) bool {
		if spots[i].Count == spots[j].Count {
			return spots[i].PC < spots[j].PC
		}
		return spots[i].Count > spots[j].Count
	})
	if n <= 0 || n >= len(spots) {
		return spots
	}
	return spots[:n]
}

func (ps *profileState) render() string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.totalSteps == 0 {
		return "(no profiling data)"
	}
	return fmt.Sprintf(
		"instructions executed: %s, unique pcs: %s, allocs: %s, frees: %s",
		humanize.Comma(int64(ps.totalSteps)), humanize.Comma(int64(len(ps.pcCounts))),
		humanize.Comma(int64(ps.allocs)), humanize.Comma(int64(ps.frees)),
	)
}

// GetPerformanceReport renders a one-line summary of the dispatch loop's
// opcode traffic, mirroring the teacher's VirtualMachine.GetPerformanceReport.
func (s *State) GetPerformanceReport() string {
	return s.profile.render()
}

// GetHotSpots returns the n most-executed program counters across every
// irep this State has run, or all of them if n <= 0.
func (s *State) GetHotSpots(n int) []HotSpot {
	return s.profile.hotSpots(n)
}

// GetMemoryStats reports the number of objects registered through track
// since this State was opened, the counterpart to the teacher's
// GetMemoryStats; frees are never recorded, so the second result is 0.
func (s *State) GetMemoryStats() (allocs int, frees int) {
	return s.profile.allocs, s.profile.frees
}

// GetDebugReport joins every record appended via recordDebug, in order.
func (s *State) GetDebugReport() string {
	return joinLines(s.profile.debugRecords())
}

// recordDebug appends message to the debug ring when DebugHooks is set,
// the gate the teacher's recordDebug skips when its debugLevel is none.
func (s *State) recordDebug(message string) {
	if !s.DebugHooks {
		return
	}
	s.profile.addDebug(message)
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
