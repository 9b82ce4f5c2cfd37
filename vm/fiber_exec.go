package vm

import (
	"github.com/wudi/mrblite/procs"
	"github.com/wudi/mrblite/values"
)

// defaultFiberStackInit is the initial value-stack size for a freshly
// created fiber, mirroring the root fiber's own DefaultConfig().StackInit.
const defaultFiberStackInit = 128

// fiberHandoff is one message passed across a resume/yield rendezvous.
// Only one of a fiber's two channels is ever readable at a time, which is
// what keeps "Fiber switches are synchronous and see each other's writes
// without barriers" (§5) true without any additional locking: at most one
// goroutine runs VM code at any instant.
type fiberHandoff struct {
	argv []values.Value
	err  *Error
	done bool
}

// NewFiber allocates a fiber context for Fiber.new (§3.10). Its goroutine
// is not started until the first resume, so a fiber that is created but
// never resumed costs nothing beyond the struct itself.
func (s *State) NewFiber(body *procs.Proc, self values.Value) *FiberContext {
	f := track(s, newFiberContext(defaultFiberStackInit))
	f.Proc = body
	f.Self = self
	f.Status = FiberCreated
	return f
}

// FiberResume implements fiber_resume (§4.7): swap the current-fiber
// pointer to target, hand it argv, and block until it yields or
// terminates, then swap back.
//
// Each fiber's body runs for its entire lifetime on one dedicated
// goroutine, parked on a channel read whenever it isn't the fiber
// currently holding the VM. That is the Go-idiomatic stand-in for §9's
// "resume and yield are implemented entirely at the VM level by swapping
// the current_context pointer — no OS-level context switch occurs": Go
// has no first-class continuations to suspend an arbitrary call stack
// and resume it later, but a parked goroutine's own stack already holds
// exactly that suspended state, and the channel rendezvous enforces that
// only one goroutine ever runs at a time, so the GC's root scanner still
// only ever has to reason about one active call-info/register-stack walk
// per fiber, never a data race between two live ones.
func (s *State) FiberResume(target *FiberContext, argv []values.Value) (values.Value, *Error) {
	switch target.Status {
	case FiberTerminated:
		return values.Nil, s.raise(ErrFiber, "dead fiber called")
	case FiberRunning, FiberResumed:
		return values.Nil, s.raise(ErrFiber, "double resume")
	}

	caller := s.Current
	caller.Status = FiberResumed
	target.Caller = caller
	s.Current = target
	target.Status = FiberRunning

	if target.resumeCh == nil {
		target.resumeCh = make(chan fiberHandoff)
		target.yieldCh = make(chan fiberHandoff)
		go s.runFiberBody(target, argv)
	} else {
		target.resumeCh <- fiberHandoff{argv: argv}
	}

	msg := <-target.yieldCh

	s.Current = caller
	caller.Status = FiberRunning
	if msg.done {
		target.Status = FiberTerminated
	} else {
		target.Status = FiberSuspended
	}

	if msg.err != nil {
		return values.Nil, msg.err
	}
	return packArgv(s, msg.argv), nil
}

// FiberYield implements fiber_yield (§4.7): suspend the fiber f (always
// s.Current at the point this is called), hand argv to whichever fiber
// resumed it, and block until resumed again. Yielding from the root fiber
// raises FiberError since the root has no resumer to return control to.
func (s *State) FiberYield(f *FiberContext, argv []values.Value) (values.Value, *Error) {
	if f == s.Root {
		return values.Nil, s.raise(ErrFiber, "can't yield from root fiber")
	}
	f.yieldCh <- fiberHandoff{argv: argv}
	msg := <-f.resumeCh
	return packArgv(s, msg.argv), nil
}

// runFiberBody is the entire lifetime of a fiber's dedicated goroutine:
// one call into its stored block, reporting the final value (or a
// propagated error) back to whichever fiber resumes it last. A
// fiber_yield anywhere within this call tree (however deeply nested
// inside invoke()/run()) suspends this goroutine in place without ever
// returning from runFiberBody.
func (s *State) runFiberBody(target *FiberContext, argv []values.Value) {
	defer func() {
		if r := recover(); r != nil {
			target.yieldCh <- fiberHandoff{err: s.raise(ErrRuntime, "fiber terminated abnormally: %v", r), done: true}
		}
	}()

	v, err := s.callProc(target, target.Proc, target.Self, argv, values.Nil)
	target.yieldCh <- fiberHandoff{argv: []values.Value{v}, err: err, done: true}
}

// packArgv collapses a yield/resume argument list to the single value
// callers see (S5: `Fiber.yield 1` round-trips to plain `1`); the rare
// multi-argument case is array-wrapped rather than silently truncated.
func packArgv(s *State, argv []values.Value) values.Value {
	switch len(argv) {
	case 0:
		return values.Nil
	case 1:
		return argv[0]
	default:
		return values.Obj(track(s, values.NewArray(argv...)))
	}
}
