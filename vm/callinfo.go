package vm

import (
	"github.com/wudi/mrblite/class"
	"github.com/wudi/mrblite/irep"
	"github.com/wudi/mrblite/procs"
	"github.com/wudi/mrblite/values"
)

// Accept-slot sentinels (§3.9 "special values signal 'skip unwind',
// 'direct C call', 'resumed fiber'").
const (
	AcceptNormal   = -1 // ordinary register index 0.. is the common case; -1 never collides with a real register
	AcceptSkip     = -2 // top-level call: no caller frame to deposit a return value into
	AcceptDirect   = -3 // invoked directly from Go (vm.Funcall), result is returned to the Go caller, not a register
	AcceptResumed  = -4 // this call-info belongs to a fiber resumed from another fiber
)

// CallInfo is the per-active-call metadata from §3.9: method id, target
// class, caller's stack offset, argc (negative = splat-packed), return
// pc, the accept slot, rescue/ensure stack depths at entry, and the
// proc/env currently executing.
type CallInfo struct {
	MethodID    values.SymbolID
	TargetClass class.Node
	StackOffset int
	Argc        int
	ReturnPC    int
	AcceptSlot  int
	RescueDepth int
	EnsureDepth int
	Proc        *procs.Proc
	Env         *procs.Env

	// Caller-side resume point, saved/restored around a nested bytecode
	// call so the dispatch loop can continue exactly where it left off.
	CallerIrep *irep.Irep
	CallerPC   int
	CallerBase int

	// PendingArgv/PendingBlock carry the not-yet-bound argument list from
	// Send to the callee's first ENTER instruction (§4.4). Deliberately
	// left populated after ENTER reads them (not cleared to nil) since
	// ARGARY/SUPER's implicit-argument-reuse form (§4.5) needs the same
	// original list again later in the same frame.
	PendingArgv  []values.Value
	PendingBlock values.Value

	// KwDict is the keyword-argument dict ENTER lifted out of PendingArgv
	// (§4.4 item 4), read and mutated in place by KARG/KEY_P/KEYEND.
	KwDict values.Value

	// BlockReg is the register ENTER deposited the bound block argument
	// into (ArgSpec.blockReg), read by BLKPUSH for `yield`. Zero means "no
	// block parameter declared" — never a valid block register, since the
	// lowest possible value is 1 (register 0 always holds self).
	BlockReg int
}
