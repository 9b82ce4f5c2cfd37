package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/mrblite/procs"
	"github.com/wudi/mrblite/values"
	"github.com/wudi/mrblite/vm"
)

// TestFiberResumeYieldSequence exercises the S5 scenario from the spec:
// a fiber that yields 1, then 2, then returns 3; a fourth resume raises
// FiberError. The fiber body is a native Go proc (procs.NewGoProc) rather
// than compiled bytecode, since callProc runs a CFunc proc's Go closure
// directly on the resuming goroutine without needing an irep at all —
// exactly the seam FiberYield needs to suspend mid-body.
func TestFiberResumeYieldSequence(t *testing.T) {
	s := vm.Open(vm.DefaultConfig())

	body := procs.NewGoProc(func(self values.Value, argv []values.Value, block values.Value) (values.Value, error) {
		if _, err := s.FiberYield(s.Current, []values.Value{values.Int(1)}); err != nil {
			return values.Nil, err
		}
		if _, err := s.FiberYield(s.Current, []values.Value{values.Int(2)}); err != nil {
			return values.Nil, err
		}
		return values.Int(3), nil
	})

	f := s.NewFiber(body, values.Nil)

	v1, err := s.FiberResume(f, nil)
	require.Nil(t, err)
	assert.Equal(t, int64(1), v1.Int64())

	v2, err := s.FiberResume(f, nil)
	require.Nil(t, err)
	assert.Equal(t, int64(2), v2.Int64())

	v3, err := s.FiberResume(f, nil)
	require.Nil(t, err)
	assert.Equal(t, int64(3), v3.Int64())

	_, err = s.FiberResume(f, nil)
	require.NotNil(t, err)
	assert.Equal(t, vm.ErrFiber, err.Class)
}

// TestFiberDoubleResumeRaises covers resuming a fiber that is itself in
// the middle of resuming something else.
func TestFiberDoubleResumeRaises(t *testing.T) {
	s := vm.Open(vm.DefaultConfig())

	var outer *vm.FiberContext
	inner := s.NewFiber(procs.NewGoProc(func(self values.Value, argv []values.Value, block values.Value) (values.Value, error) {
		// outer is suspended mid-resume, waiting on inner, so resuming it
		// again from here must raise.
		if _, err := s.FiberResume(outer, nil); err != nil {
			return values.Nil, err
		}
		return values.Nil, nil
	}), values.Nil)

	outer = s.NewFiber(procs.NewGoProc(func(self values.Value, argv []values.Value, block values.Value) (values.Value, error) {
		_, err := s.FiberResume(inner, nil)
		if err != nil {
			return values.Nil, err
		}
		return values.Int(99), nil
	}), values.Nil)

	// The FiberError raised inside inner propagates out through outer.
	_, err := s.FiberResume(outer, nil)
	require.NotNil(t, err)
	assert.Equal(t, vm.ErrFiber, err.Class)
}

// TestFiberYieldFromRootRaises checks §4.7's "yielding from the root
// fiber raises FiberError".
func TestFiberYieldFromRootRaises(t *testing.T) {
	s := vm.Open(vm.DefaultConfig())
	_, err := s.FiberYield(s.Current, nil)
	require.NotNil(t, err)
	assert.Equal(t, vm.ErrFiber, err.Class)
}

// TestFiberResumeTerminatedRaises checks resuming a fiber twice after it
// has already returned.
func TestFiberResumeTerminatedRaises(t *testing.T) {
	s := vm.Open(vm.DefaultConfig())
	f := s.NewFiber(procs.NewGoProc(func(self values.Value, argv []values.Value, block values.Value) (values.Value, error) {
		return values.Int(1), nil
	}), values.Nil)

	_, err := s.FiberResume(f, nil)
	require.Nil(t, err)

	_, err = s.FiberResume(f, nil)
	require.NotNil(t, err)
	assert.Equal(t, vm.ErrFiber, err.Class)
}
