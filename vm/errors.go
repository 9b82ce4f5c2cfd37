package vm

import (
	"fmt"

	"github.com/wudi/mrblite/procs"
	"github.com/wudi/mrblite/values"
)

// ErrorClass names one of the conventional Ruby exception classes from
// §7's error taxonomy. The VM pre-builds a class.Class for each at Open
// time (see builtin.go) so raising one never has to intern a name or
// allocate a class.
type ErrorClass string

const (
	ErrNoMemory          ErrorClass = "NoMemoryError"
	ErrSysStack          ErrorClass = "SysStackError"
	ErrArgument          ErrorClass = "ArgumentError"
	ErrType              ErrorClass = "TypeError"
	ErrName              ErrorClass = "NameError"
	ErrNoMethod          ErrorClass = "NoMethodError"
	ErrFrozen            ErrorClass = "FrozenError"
	ErrRange             ErrorClass = "RangeError"
	ErrFloatDomain       ErrorClass = "FloatDomainError"
	ErrLocalJump         ErrorClass = "LocalJumpError"
	ErrFiber             ErrorClass = "FiberError"
	ErrRuntime           ErrorClass = "RuntimeError"
	ErrNotImplemented    ErrorClass = "NotImplementedError"
)

// taxonomyOrder fixes the bootstrap order so tests asserting on a freshly
// opened State's class list get a stable result.
var taxonomyOrder = []ErrorClass{
	ErrNoMemory, ErrSysStack, ErrArgument, ErrType, ErrName, ErrNoMethod,
	ErrFrozen, ErrRange, ErrFloatDomain, ErrLocalJump, ErrFiber, ErrRuntime,
	ErrNotImplemented,
}

// Error wraps a raised exception object as a Go error, the way the
// teacher's vm.VMError wraps a PHP-domain failure with context: a
// sentinel-comparable Class field plus a free-form Message, with Unwrap
// available for errors.Is/As chains through ordinary Go error handling
// instead of setjmp/longjmp (§9 Design Notes: "use the host's native
// unwinding mechanism").
type Error struct {
	Class   ErrorClass
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Class)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func newError(class ErrorClass, format string, args ...any) *Error {
	return &Error{Class: class, Message: fmt.Sprintf(format, args...)}
}

// breakSignal implements the BREAK opcode's non-local exit (§4.6): it
// unwinds Go's call stack up to the invoke() frame that originally
// yielded to Target, carrying Value to be returned from that yield call.
type breakSignal struct {
	target *procs.Proc
	value  values.Value
}

func (b *breakSignal) Error() string { return "break from a block" }

// returnSignal implements RETURN_BLK's non-local exit: unwind to the
// method that lexically encloses the returning block.
type returnSignal struct {
	target *procs.Proc
	value  values.Value
}

func (r *returnSignal) Error() string { return "return from a block" }
