package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilFalseDistinctSameKind(t *testing.T) {
	assert.True(t, Nil.IsNil())
	assert.False(t, False.IsNil())
	assert.Equal(t, KindFalse, Nil.Kind())
	assert.Equal(t, KindFalse, False.Kind())
	assert.NotEqual(t, Nil, False)
}

func TestTruthy(t *testing.T) {
	assert.False(t, Nil.Truthy())
	assert.False(t, False.Truthy())
	assert.True(t, True.Truthy())
	assert.True(t, Int(0).Truthy()) // unlike most C-family languages, 0 is truthy in Ruby
}

func TestObjWrapsNilForNilPointer(t *testing.T) {
	var s *RString
	v := Obj(s)
	assert.True(t, v.IsNil())
}

func TestObjTagsHeapObjectKind(t *testing.T) {
	arr := NewArray(Int(1), Int(2))
	v := Obj(arr)
	assert.Equal(t, KindArray, v.Kind())
	assert.True(t, v.IsHeap())
	assert.Same(t, arr, v.HeapObj())
}

func TestIsHeapFalseForImmediates(t *testing.T) {
	assert.False(t, Int(5).IsHeap())
	assert.False(t, Float(1.5).IsHeap())
	assert.False(t, Sym(3).IsHeap())
	assert.False(t, True.IsHeap())
	assert.False(t, Nil.IsHeap())
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, Int(1).IsNumeric())
	assert.True(t, Float(1).IsNumeric())
	assert.False(t, True.IsNumeric())
	assert.False(t, Sym(1).IsNumeric())
}
