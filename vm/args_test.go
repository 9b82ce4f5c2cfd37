package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/mrblite/values"
)

// newRegs allocates a callee register window of n slots, self at regs[0].
func newRegs(n int) []values.Value {
	regs := make([]values.Value, n)
	regs[0] = values.Nil
	return regs
}

func TestDecodeArgSpecFieldLayout(t *testing.T) {
	// req:5 opt:5 rest:1 post:5 key:5 kdict:1 block:1, high to low.
	word := int32(0)
	word |= 2 << 18  // req
	word |= 1 << 13  // opt
	word |= 1 << 12  // rest
	word |= 3 << 7   // post
	word |= 1 << 2   // key
	word |= 1 << 1   // kdict
	word |= 1        // block

	spec := DecodeArgSpec(word)
	assert.Equal(t, 2, spec.ReqPre)
	assert.Equal(t, 1, spec.Opt)
	assert.True(t, spec.Rest)
	assert.Equal(t, 3, spec.ReqPost)
	assert.Equal(t, 1, spec.Key)
	assert.True(t, spec.KDict)
	assert.True(t, spec.Block)
}

func TestBindArgsSimpleFixedArity(t *testing.T) {
	s := Open(DefaultConfig())
	spec := ArgSpec{ReqPre: 2}
	regs := newRegs(3)

	argc, kwDict, err := s.bindArgs(spec, regs, []values.Value{values.Int(1), values.Int(2)}, values.Nil, true)
	require.Nil(t, err)
	assert.Equal(t, 2, argc)
	assert.True(t, kwDict.IsNil())
	assert.Equal(t, int64(1), regs[1].Int64())
	assert.Equal(t, int64(2), regs[2].Int64())
}

func TestBindArgsStrictArityMismatchRaises(t *testing.T) {
	s := Open(DefaultConfig())
	spec := ArgSpec{ReqPre: 2}
	regs := newRegs(3)

	_, _, err := s.bindArgs(spec, regs, []values.Value{values.Int(1)}, values.Nil, true)
	require.NotNil(t, err)
	assert.Equal(t, ErrArgument, err.Class)
}

func TestBindArgsOptionalDefaultsToNilWhenOmitted(t *testing.T) {
	s := Open(DefaultConfig())
	spec := ArgSpec{ReqPre: 1, Opt: 2}
	regs := newRegs(4)

	_, _, err := s.bindArgs(spec, regs, []values.Value{values.Int(1)}, values.Nil, true)
	require.Nil(t, err)
	assert.Equal(t, int64(1), regs[1].Int64())
	assert.True(t, regs[2].IsNil())
	assert.True(t, regs[3].IsNil())
}

func TestBindArgsRestCollectsMiddleArguments(t *testing.T) {
	s := Open(DefaultConfig())
	spec := ArgSpec{ReqPre: 1, Rest: true, ReqPost: 1}
	regs := newRegs(4)

	argv := []values.Value{values.Int(1), values.Int(2), values.Int(3), values.Int(4)}
	_, _, err := s.bindArgs(spec, regs, argv, values.Nil, true)
	require.Nil(t, err)
	assert.Equal(t, int64(1), regs[1].Int64())
	arr, ok := regs[2].HeapObj().(*values.RArray)
	require.True(t, ok)
	assert.Equal(t, 2, arr.Len())
	assert.Equal(t, int64(4), regs[3].Int64(), "the post-rest required parameter takes the trailing argument")
}

func TestBindArgsAutoSplatsSingleArrayArgument(t *testing.T) {
	s := Open(DefaultConfig())
	spec := ArgSpec{ReqPre: 2}
	regs := newRegs(3)

	arrVal := values.Obj(track(s, values.NewArray(values.Int(10), values.Int(20))))
	_, _, err := s.bindArgs(spec, regs, []values.Value{arrVal}, values.Nil, false)
	require.Nil(t, err)
	assert.Equal(t, int64(10), regs[1].Int64())
	assert.Equal(t, int64(20), regs[2].Int64())
}

func TestBindArgsKeywordDictDefaultsToEmptyHash(t *testing.T) {
	s := Open(DefaultConfig())
	spec := ArgSpec{Key: 1}
	regs := newRegs(2)

	_, kwDict, err := s.bindArgs(spec, regs, nil, values.Nil, true)
	require.Nil(t, err)
	h, ok := kwDict.HeapObj().(*values.RHash)
	require.True(t, ok)
	assert.True(t, h.Empty())
}

func TestBindArgsLiftsTrailingSymbolHashAsKeywords(t *testing.T) {
	s := Open(DefaultConfig())
	spec := ArgSpec{ReqPre: 1, Key: 1}
	regs := newRegs(3)

	h := values.NewHash()
	sym := s.Syms.Intern("name")
	h.Set(values.Sym(sym), values.Obj(s.NewString("bob")))
	argv := []values.Value{values.Int(1), values.Obj(h)}

	_, kwDict, err := s.bindArgs(spec, regs, argv, values.Nil, true)
	require.Nil(t, err)
	assert.Equal(t, int64(1), regs[1].Int64())
	got, ok := kwDict.HeapObj().(*values.RHash)
	require.True(t, ok)
	v, ok := got.Get(values.Sym(sym))
	require.True(t, ok)
	assert.Equal(t, "bob", v.HeapObj().(*values.RString).String())
}

func TestKargExtractsAndRemovesKey(t *testing.T) {
	s := Open(DefaultConfig())
	h := values.NewHash()
	sym := s.Syms.Intern("x")
	h.Set(values.Sym(sym), values.Int(5))
	kwDict := values.Obj(h)

	v, err := s.karg(kwDict, sym)
	require.Nil(t, err)
	assert.Equal(t, int64(5), v.Int64())
	_, ok := h.Get(values.Sym(sym))
	assert.False(t, ok, "karg must remove the key once extracted")
}

func TestKargMissingKeywordRaises(t *testing.T) {
	s := Open(DefaultConfig())
	h := values.NewHash()
	kwDict := values.Obj(h)
	sym := s.Syms.Intern("missing")

	_, err := s.karg(kwDict, sym)
	require.NotNil(t, err)
	assert.Equal(t, ErrArgument, err.Class)
}

func TestKeyendEmptyDictPasses(t *testing.T) {
	s := Open(DefaultConfig())
	kwDict := values.Obj(values.NewHash())
	assert.Nil(t, s.keyend(kwDict))
}

func TestKeyendNonEmptyDictRaises(t *testing.T) {
	s := Open(DefaultConfig())
	h := values.NewHash()
	h.Set(values.Sym(s.Syms.Intern("extra")), values.Int(1))
	kwDict := values.Obj(h)

	err := s.keyend(kwDict)
	require.NotNil(t, err)
	assert.Equal(t, ErrArgument, err.Class)
}
