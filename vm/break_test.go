package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/mrblite/irep"
	"github.com/wudi/mrblite/opcodes"
	"github.com/wudi/mrblite/procs"
	"github.com/wudi/mrblite/values"
)

// breakIrep builds a one-instruction unit that immediately executes op
// against register A, matching how OP_BREAK/OP_RETURN_BLK read their
// operand straight out of the current frame.
func breakIrep(op opcodes.Opcode) *irep.Irep {
	return &irep.Irep{
		Instructions: []opcodes.Instruction{{Op: op, A: 0}},
		NRegs:        1,
	}
}

func TestRunCatchesBreakSignalTargetingItsOwnProc(t *testing.T) {
	s := Open(DefaultConfig())
	ir := breakIrep(opcodes.OP_BREAK)
	p := procs.NewBytecodeProc(ir, nil, nil)
	p.Upper = p // a top-level block: breaking out of it resumes its own invoke() frame

	f := newFiberContext(4)
	f.curIrep = ir
	f.PC = 0
	f.setReg(0, values.Int(7))

	result, rerr := s.run(f, p)
	require.Nil(t, rerr)
	assert.Equal(t, int64(7), result.Int64())
}

func TestRunCatchesReturnBlkSignalTargetingItsOwnProc(t *testing.T) {
	s := Open(DefaultConfig())
	ir := breakIrep(opcodes.OP_RETURN_BLK)
	p := procs.NewBytecodeProc(ir, nil, nil)
	p.Upper = p

	f := newFiberContext(4)
	f.curIrep = ir
	f.PC = 0
	f.setReg(0, values.Int(11))

	result, rerr := s.run(f, p)
	require.Nil(t, rerr)
	assert.Equal(t, int64(11), result.Int64())
}

// TestRunPropagatesBreakSignalPastEnclosedFrame exercises the case that
// matters in practice: a block proc's BREAK targets the method that
// yielded to it (p.Upper), not the block itself. run() for the block must
// not swallow the panic — it has to keep unwinding Go's call stack until
// it reaches the run() frame for the target, which here is simulated by
// our own recover since no caller run() frame is on the stack.
func TestRunPropagatesBreakSignalPastEnclosedFrame(t *testing.T) {
	s := Open(DefaultConfig())
	outer := procs.NewBytecodeProc(&irep.Irep{NRegs: 1}, nil, nil)
	blockIrep := breakIrep(opcodes.OP_BREAK)
	block := procs.NewBytecodeProc(blockIrep, outer, nil)

	f := newFiberContext(4)
	f.curIrep = blockIrep
	f.PC = 0
	f.setReg(0, values.Int(99))

	var caught *breakSignal
	func() {
		defer func() {
			if r := recover(); r != nil {
				sig, ok := r.(*breakSignal)
				require.True(t, ok, "run must re-panic the original *breakSignal unchanged")
				caught = sig
			}
		}()
		s.run(f, block)
		t.Fatal("run should not return normally when the break targets an enclosing proc")
	}()

	require.NotNil(t, caught)
	assert.Same(t, outer, caught.target)
	assert.Equal(t, int64(99), caught.value.Int64())
}

func TestInvokePropagatesBreakSignalUnrecovered(t *testing.T) {
	s := Open(DefaultConfig())
	outer := procs.NewBytecodeProc(&irep.Irep{NRegs: 1}, nil, nil)
	blockIrep := breakIrep(opcodes.OP_BREAK)
	block := procs.NewBytecodeProc(blockIrep, outer, nil)

	ci := CallInfo{TargetClass: nil, AcceptSlot: AcceptSkip}

	var caught *breakSignal
	func() {
		defer func() {
			if r := recover(); r != nil {
				sig, ok := r.(*breakSignal)
				require.True(t, ok)
				caught = sig
			}
		}()
		s.invoke(s.Current, block, values.Nil, ci)
		t.Fatal("invoke should not absorb a break signal meant for an enclosing frame")
	}()

	require.NotNil(t, caught, "the panic must escape invoke() so the enclosing run() frame can catch it")
	assert.Same(t, outer, caught.target)
}

func TestCallInfoProcIsRootedWhileLive(t *testing.T) {
	f := newFiberContext(4)
	p := procs.NewBytecodeProc(&irep.Irep{NRegs: 1}, nil, nil)
	f.pushCI(CallInfo{Proc: p})

	var seen []values.HeapObject
	f.TraceChildren(func(o values.HeapObject) { seen = append(seen, o) })
	assert.Contains(t, seen, values.HeapObject(p))

	f.popCI()
	seen = nil
	f.TraceChildren(func(o values.HeapObject) { seen = append(seen, o) })
	assert.NotContains(t, seen, values.HeapObject(p), "a popped call-info must no longer root its proc")
}

func TestBreakRaisesLocalJumpErrorOnceUpperIsOrphaned(t *testing.T) {
	s := Open(DefaultConfig())
	outer := procs.NewBytecodeProc(&irep.Irep{NRegs: 1}, nil, nil)
	outer.MarkOrphan()

	ir := breakIrep(opcodes.OP_BREAK)
	block := procs.NewBytecodeProc(ir, outer, nil)

	f := newFiberContext(4)
	f.curIrep = ir
	f.PC = 0
	f.setReg(0, values.Int(1))

	_, rerr := s.run(f, block)
	require.NotNil(t, rerr)
	assert.Equal(t, ErrLocalJump, rerr.Class)
}

func TestInvokeClearsOrphanFlagOnReentry(t *testing.T) {
	s := Open(DefaultConfig())
	// A self-targeting BREAK raises LocalJumpError while p is orphaned, so
	// the call only returns cleanly if invoke cleared the flag first.
	p := procs.NewBytecodeProc(breakIrep(opcodes.OP_BREAK), nil, nil)
	p.Upper = p
	p.MarkOrphan()
	require.True(t, p.IsOrphan())

	_, rerr := s.invoke(s.Current, p, values.Nil, CallInfo{AcceptSlot: AcceptSkip})
	require.Nil(t, rerr)
	assert.True(t, p.IsOrphan(), "popCI re-orphans once this fresh call's own frame is popped and nothing else references p")
}

func TestPopCIDoesNotOrphanAProcWithAnotherLiveFrame(t *testing.T) {
	f := newFiberContext(4)
	p := procs.NewBytecodeProc(&irep.Irep{NRegs: 1}, nil, nil)

	f.pushCI(CallInfo{Proc: p})
	f.pushCI(CallInfo{Proc: p}) // simulates recursion: two live frames of the same proc

	f.popCI()
	assert.False(t, p.IsOrphan(), "an outer live frame of the same proc must prevent orphaning")

	f.popCI()
	assert.True(t, p.IsOrphan(), "the last live frame popping must orphan it")
}
