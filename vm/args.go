package vm

import (
	"github.com/wudi/mrblite/class"
	"github.com/wudi/mrblite/values"
)

// ArgSpec decodes the OP_ENTER 23-bit word (§4.4), laid out exactly as
// original_source's mrbconf ASPEC bitfields (req:5 opt:5 rest:1 post:5
// key:5 kdict:1 block:1, high to low) — the one detail spec.md leaves as
// "a 23-bit word" without naming the field order, so the field widths
// and positions are taken from the original implementation per
// SPEC_FULL's resolution rule for silent/ambiguous spec details.
type ArgSpec struct {
	ReqPre  int
	Opt     int
	Rest    bool
	ReqPost int
	Key     int
	KDict   bool
	Block   bool
}

func DecodeArgSpec(word int32) ArgSpec {
	w := uint32(word)
	return ArgSpec{
		ReqPre:  int((w >> 18) & 0x1f),
		Opt:     int((w >> 13) & 0x1f),
		Rest:    (w>>12)&0x1 != 0,
		ReqPost: int((w >> 7) & 0x1f),
		Key:     int((w >> 2) & 0x1f),
		KDict:   w&0x2 != 0,
		Block:   w&0x1 != 0,
	}
}

func (a ArgSpec) fixedCount() int { return a.ReqPre + a.Opt + a.ReqPost }
func (a ArgSpec) hasKeywords() bool { return a.Key > 0 || a.KDict }

// blockReg reports the register ENTER deposits the (possibly to_proc-
// coerced) block argument into, mirroring bindArgs's own register-layout
// arithmetic exactly. Returns 0 ("no block parameter") when spec.Block is
// false.
func (a ArgSpec) blockReg() int {
	if !a.Block {
		return 0
	}
	reg := 1 + a.ReqPre + a.Opt
	if a.Rest {
		reg++
	}
	reg += a.ReqPost
	if a.hasKeywords() {
		reg++
	}
	return reg
}

// bindArgs implements §4.4 steps 1-8 against the callee's fresh register
// window regs (regs[0] is self; positional locals start at regs[1]).
// argv is the already-flattened (splat-expanded, see step 1) argument
// list; block is the block argument Value (Proc or nil). When the spec
// declares keywords, a trailing Hash whose keys are all symbols is always
// duplicated and bound as the keyword dict, which KARG later reads.
//
// Returns the canonical argc (fixedCount + 1 if a keyword dict was
// bound, per §4.4's closing paragraph) and the keyword dict Value (Nil
// if none), or an *Error for an arity/keyword failure.
func (s *State) bindArgs(spec ArgSpec, regs []values.Value, argv []values.Value, block values.Value, strict bool) (canonicalArgc int, kwDict values.Value, err *Error) {
	total := spec.fixedCount()

	if spec.hasKeywords() && len(argv) > 0 {
		if h, ok := lastAsKeywordHash(argv[len(argv)-1]); ok {
			kwDict = values.Obj(h)
			argv = argv[:len(argv)-1]
		}
	}
	if kwDict.IsNil() && spec.hasKeywords() {
		kwDict = values.Obj(track(s, values.NewHash()))
	}

	if strict {
		if len(argv) < spec.ReqPre+spec.ReqPost || (len(argv) > total && !spec.Rest) {
			return 0, values.Nil, s.raise(ErrArgument, "wrong number of arguments (given %d, expected %d)", len(argv), total)
		}
	} else if len(argv) != total && !spec.Rest && len(argv) == 1 {
		// Non-strict auto-splat (§4.4 item 3): a block with more than one
		// declared parameter, called with a single array argument, treats
		// the array's elements as the actual argument list.
		if arr, ok := argv[0].HeapObj().(*values.RArray); ok && argv[0].Kind() == values.KindArray && (spec.ReqPre+spec.Opt+spec.ReqPost) > 1 {
			argv = arr.Elems
		}
	}

	reg := 1
	pre := spec.ReqPre
	if pre > len(argv) {
		pre = len(argv)
	}
	for i := 0; i < pre; i++ {
		regs[reg] = argv[i]
		reg++
	}
	for i := pre; i < spec.ReqPre; i++ {
		regs[reg] = values.Nil
		reg++
	}
	rest := argv[pre:]

	for i := 0; i < spec.Opt; i++ {
		if i < len(rest)-spec.ReqPost && len(rest) > spec.ReqPost {
			regs[reg] = rest[i]
		} else {
			regs[reg] = values.Nil
		}
		reg++
	}
	consumedOpt := spec.Opt
	if consumedOpt > len(rest)-spec.ReqPost {
		consumedOpt = len(rest) - spec.ReqPost
		if consumedOpt < 0 {
			consumedOpt = 0
		}
	}
	rest = rest[consumedOpt:]

	if spec.Rest {
		restLen := len(rest) - spec.ReqPost
		if restLen < 0 {
			restLen = 0
		}
		regs[reg] = values.Obj(track(s, values.NewArray(rest[:restLen]...)))
		reg++
		rest = rest[restLen:]
	}

	for i := 0; i < spec.ReqPost; i++ {
		if i < len(rest) {
			regs[reg] = rest[i]
		} else {
			regs[reg] = values.Nil
		}
		reg++
	}

	if spec.hasKeywords() {
		regs[reg] = kwDict
		reg++
	}

	if spec.Block {
		b, berr := s.coerceBlock(block)
		if berr != nil {
			return 0, values.Nil, berr
		}
		regs[reg] = b
		reg++
	}

	for ; reg < len(regs); reg++ {
		regs[reg] = values.Nil
	}

	canonicalArgc = total
	if spec.hasKeywords() {
		canonicalArgc++
	}
	return canonicalArgc, kwDict, nil
}

// lastAsKeywordHash implements §4.4 item 4's precondition check: the
// trailing positional argument is liftable as the keyword dict only if
// it is a Hash whose keys are all symbols.
func lastAsKeywordHash(v values.Value) (*values.RHash, bool) {
	if v.Kind() != values.KindHash {
		return nil, false
	}
	h, ok := v.HeapObj().(*values.RHash)
	if !ok || !h.AllSymbolKeys() {
		return nil, false
	}
	return h.Dup(), true
}

// coerceBlock implements §4.4 item 7: a non-nil, non-Proc block argument
// is coerced via a `to_proc` method dispatch.
func (s *State) coerceBlock(block values.Value) (values.Value, *Error) {
	if block.IsNil() || block.Kind() == values.KindProc {
		return block, nil
	}
	recv := s.classFor(block)
	sym := s.Syms.Intern("to_proc")
	_, m, found := class.Resolve(recv, sym, s.Cache)
	if !found {
		return values.Nil, s.raise(ErrType, "no implicit conversion to Proc")
	}
	if m.Kind != class.MethodGo {
		return values.Nil, s.raise(ErrType, "to_proc must be a native method in this core")
	}
	result, err := m.Go(block, nil, values.Nil)
	if err != nil {
		return values.Nil, s.raise(ErrType, "to_proc failed: %v", err)
	}
	return result, nil
}

// karg implements the KARG opcode (§4.4 closing paragraph): extract sym
// from the keyword dict, raising ArgumentError("missing keyword") if
// absent, and remove it from the dict.
func (s *State) karg(kwDict values.Value, sym values.SymbolID) (values.Value, *Error) {
	h, ok := kwDict.HeapObj().(*values.RHash)
	if !ok {
		return values.Nil, s.raise(ErrArgument, "missing keyword: %s", s.Syms.MustName(sym))
	}
	v, ok := h.Get(values.Sym(sym))
	if !ok {
		return values.Nil, s.raise(ErrArgument, "missing keyword: %s", s.Syms.MustName(sym))
	}
	h.Delete(values.Sym(sym))
	return v, nil
}

// keyend implements KEYEND: the keyword dict must be empty once every
// declared keyword has been extracted via KARG, else an unexpected key
// was passed.
func (s *State) keyend(kwDict values.Value) *Error {
	h, ok := kwDict.HeapObj().(*values.RHash)
	if !ok || h.Empty() {
		return nil
	}
	return s.raise(ErrArgument, "unknown keyword")
}
