package vm

import (
	"fmt"

	"github.com/wudi/mrblite/class"
	"github.com/wudi/mrblite/values"
)

// bootstrapClasses builds the VM-level built-in class objects §4.3 item 1
// requires: a superclass chain of Object <- (everything) and one
// singleton class per immediate kind, so method dispatch on a fixnum,
// symbol, or boolean has somewhere to look.
func (s *State) bootstrapClasses() {
	s.ObjectClass = track(s, class.NewClass("Object", nil))
	s.ModuleClass = track(s, class.NewClass("Module", s.ObjectClass))
	s.ClassClass = track(s, class.NewClass("Class", s.ModuleClass))

	s.FixnumClass = track(s, class.NewClass("Integer", s.ObjectClass))
	s.FloatClass = track(s, class.NewClass("Float", s.ObjectClass))
	s.SymbolClass = track(s, class.NewClass("Symbol", s.ObjectClass))
	s.TrueClass = track(s, class.NewClass("TrueClass", s.ObjectClass))
	s.FalseClass = track(s, class.NewClass("FalseClass", s.ObjectClass))
	s.NilClass = track(s, class.NewClass("NilClass", s.ObjectClass))
	s.StringClass = track(s, class.NewClass("String", s.ObjectClass))
	s.StringClass.InstanceType = values.KindString
	s.ArrayClass = track(s, class.NewClass("Array", s.ObjectClass))
	s.ArrayClass.InstanceType = values.KindArray
	s.HashClass = track(s, class.NewClass("Hash", s.ObjectClass))
	s.HashClass.InstanceType = values.KindHash
	s.ProcClass = track(s, class.NewClass("Proc", s.ObjectClass))
	s.RangeClass = track(s, class.NewClass("Range", s.ObjectClass))
	s.FiberClass = track(s, class.NewClass("Fiber", s.ObjectClass))
	s.ExceptionClass = track(s, class.NewClass("Exception", s.ObjectClass))

	for _, c := range s.builtinClasses() {
		c.IsInherited = true // built-ins are always treated as having subclasses, so cache invalidation never skips them
	}
}

// bootstrapErrors builds one class.Class per §7 taxonomy entry, all
// descending from ExceptionClass — the conventional Ruby exception
// hierarchy (StandardError, etc.) beyond this flat taxonomy belongs to
// the built-in class library this module excludes (§1).
func (s *State) bootstrapErrors() {
	for _, name := range taxonomyOrder {
		c := track(s, class.NewClass(string(name), s.ExceptionClass))
		c.IsInherited = true
		s.errorClasses[name] = c
	}
}

// raise constructs an exception of the given taxonomy class, sets it as
// the pending exception, and returns the Go error the dispatch loop
// propagates (§7 "raised inside bytecode, the interpreter jumps to its
// L_RAISE handler" — here, an ordinary Go error return standing in for
// that jump per §9 Design Notes).
func (s *State) raise(ec ErrorClass, format string, args ...any) *Error {
	err := newError(ec, format, args...)
	cls := s.errorClasses[ec]
	if cls == nil {
		cls = s.ExceptionClass
	}
	s.PendingException = track(s, class.NewException(cls, err.Message))
	s.recordDebug(fmt.Sprintf("raised %s: %s", ec, err.Message))
	return err
}
