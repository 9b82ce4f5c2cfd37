package vm

import "github.com/wudi/mrblite/values"

const (
	// StackGrowth and StackMax mirror §5 "the value stack grows linearly
	// (by STACK_GROWTH slots or by the requested amount, whichever is
	// larger) up to STACK_MAX, above which SysStackError is raised."
	StackGrowth = 128
	StackMax    = 1 << 20
)

// ensureStack grows f.Stack so that f.Base+need registers are available,
// relocating every live shared env and leaving every call-info's
// StackOffset valid — call-info offsets are relative to the start of the
// same backing array and never need rebasing themselves, only the Env
// slices that alias into it do (§5 "Stack extension").
func (s *State) ensureStack(f *FiberContext, need int) *Error {
	required := f.Base + need
	if required <= len(f.Stack) {
		return nil
	}
	grow := required - len(f.Stack)
	if grow < StackGrowth {
		grow = StackGrowth
	}
	newLen := len(f.Stack) + grow
	if newLen > StackMax {
		if required > StackMax {
			return s.raise(ErrSysStack, "stack level too deep")
		}
		newLen = StackMax
	}

	grown := make([]values.Value, newLen)
	copy(grown, f.Stack)
	f.Stack = grown

	for _, le := range f.LiveEnvs {
		le.env.Relocate(f.Stack, le.offset)
	}
	return nil
}
