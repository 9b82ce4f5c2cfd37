package vm

import (
	"github.com/google/uuid"

	"github.com/wudi/mrblite/irep"
	"github.com/wudi/mrblite/procs"
	"github.com/wudi/mrblite/values"
)

// FiberStatus is the fiber state machine from §3.10.
type FiberStatus byte

const (
	FiberCreated FiberStatus = iota
	FiberRunning
	FiberResumed
	FiberSuspended
	FiberTransferred
	FiberTerminated
)

func (s FiberStatus) String() string {
	switch s {
	case FiberCreated:
		return "created"
	case FiberRunning:
		return "running"
	case FiberResumed:
		return "resumed"
	case FiberSuspended:
		return "suspended"
	case FiberTransferred:
		return "transferred"
	case FiberTerminated:
		return "terminated"
	default:
		return "?"
	}
}

// FiberContext owns a value stack, a call-info stack, a rescue stack
// (iseq offsets pushed by ONERR), and an ensure stack, per §3.10/§4.7. It
// is itself a heap object (kind FIBER) so the GC root-scans it and user
// code can hold a Fiber value.
//
// ID is generated once per fiber via google/uuid (rather than, say, a
// simple incrementing counter), as a stable external identifier for a
// host juggling several fibers; nothing in this module, cmd/mrb included,
// prints it.
type FiberContext struct {
	values.Header

	ID uuid.UUID

	Status FiberStatus
	Stack  []values.Value
	Calls  []CallInfo

	RescueStack []int
	EnsureStack []*procs.Proc

	Caller *FiberContext
	Proc   *procs.Proc // the block passed to Fiber.new
	Self   values.Value // self captured from the frame that called Fiber.new

	// resumeCh/yieldCh are the rendezvous channels backing FiberResume/
	// FiberYield (§4.7, fiber_exec.go): nil until this fiber's first
	// resume starts its goroutine. Only one side of the pair is ever
	// readable at a time, so whichever goroutine holds the token is the
	// only one touching VM/heap state — the same single-threaded
	// invariant §5 "Concurrency model" already requires.
	resumeCh chan fiberHandoff
	yieldCh  chan fiberHandoff

	PC      int
	Base    int        // current frame's register base, an index into Stack
	curIrep *irep.Irep // the irep currently executing in this frame, nil before the first call

	// LiveEnvs tracks every shared-state Env currently pointing into
	// Stack, alongside the register offset it was captured at, so
	// ensureStack (§5 "Stack extension") can relocate them when the
	// backing array is reallocated. An entry is appended when an Env is
	// constructed in EnvShared state and removed by unshareFrom once its
	// frame returns and the env is copied to the heap (§3.8) — a stray
	// entry left past that point would be harmless (Relocate and Unshare
	// are both no-ops on an already-unshared Env) but unshareFrom prunes
	// it anyway so the list doesn't grow unbounded across many calls.
	LiveEnvs []liveEnv
}

type liveEnv struct {
	env    *procs.Env
	offset int
}

// unshareFrom copies every live env captured at base or above to the heap
// and detaches it from f.Stack (§3.8: "every env still referring to it is
// unshared — its values are copied to the heap"), then drops them from
// LiveEnvs since an unshared env no longer needs stack-growth relocation.
// Called when the frame starting at base is torn down, before f.Base is
// lowered back to the caller's — envs captured by frames nested below
// base are already unshared by their own exit.
func (f *FiberContext) unshareFrom(base int) {
	kept := f.LiveEnvs[:0]
	for _, le := range f.LiveEnvs {
		if le.offset >= base {
			le.env.Unshare()
			continue
		}
		kept = append(kept, le)
	}
	f.LiveEnvs = kept
}

func (f *FiberContext) Kind() values.Kind        { return values.KindFiber }
func (f *FiberContext) GCHeader() *values.Header { return &f.Header }

func (f *FiberContext) TraceChildren(visit func(values.HeapObject)) {
	for _, v := range f.Stack {
		if v.IsHeap() {
			visit(v.HeapObj())
		}
	}
	for _, ci := range f.Calls {
		if ci.Proc != nil {
			visit(ci.Proc)
		}
		if ci.Env != nil {
			visit(ci.Env)
		}
		if tc, ok := ci.TargetClass.(values.HeapObject); ok && tc != nil {
			visit(tc)
		}
		// PendingArgv/PendingBlock/KwDict carry not-yet-bound argument
		// values that may not be on the register stack yet (§4.4 binding
		// runs after the call-info is pushed); a GC step triggered by
		// to_proc coercion mid-bind must still see them.
		for _, v := range ci.PendingArgv {
			if v.IsHeap() {
				visit(v.HeapObj())
			}
		}
		if ci.PendingBlock.IsHeap() {
			visit(ci.PendingBlock.HeapObj())
		}
		if ci.KwDict.IsHeap() {
			visit(ci.KwDict.HeapObj())
		}
	}
	for _, p := range f.EnsureStack {
		if p != nil {
			visit(p)
		}
	}
	for _, le := range f.LiveEnvs {
		if le.env != nil {
			visit(le.env)
		}
	}
	if f.Proc != nil {
		visit(f.Proc)
	}
}

func newFiberContext(stackCap int) *FiberContext {
	return &FiberContext{
		ID:    uuid.New(),
		Stack: make([]values.Value, stackCap),
	}
}

// currentCI returns a pointer to the top call-info, or nil if the fiber's
// call-info stack is empty (as it is for any fiber before its first
// bytecode call, and while only Go-native code runs on it).
func (f *FiberContext) currentCI() *CallInfo {
	if len(f.Calls) == 0 {
		return nil
	}
	return &f.Calls[len(f.Calls)-1]
}

func (f *FiberContext) pushCI(ci CallInfo) {
	f.Calls = append(f.Calls, ci)
}

// popCI pops the top call-info and, once no other entry on this fiber's
// call stack still references the same proc (a plain return leaves none; a
// recursive call returning to an outer live frame of the same proc leaves
// one), marks it orphaned. Per SPEC_FULL's resolution of the break/return
// orphan-detection Open Question, the flag is set the instant the last
// live frame for a proc is gone, not deferred until some later point such
// as a native caller returning.
func (f *FiberContext) popCI() CallInfo {
	ci := f.Calls[len(f.Calls)-1]
	f.Calls = f.Calls[:len(f.Calls)-1]
	if ci.Proc != nil {
		stillLive := false
		for i := range f.Calls {
			if f.Calls[i].Proc == ci.Proc {
				stillLive = true
				break
			}
		}
		if !stillLive {
			ci.Proc.MarkOrphan()
		}
	}
	return ci
}

// regs returns the live register window for the current frame.
func (f *FiberContext) regs() []values.Value {
	return f.Stack[f.Base:]
}
