package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/mrblite/procs"
	"github.com/wudi/mrblite/values"
)

func TestUnwindRunsEnsureHandlersWhenNoRescueMatches(t *testing.T) {
	s := Open(DefaultConfig())
	f := newFiberContext(8)
	f.pushCI(CallInfo{RescueDepth: 0, EnsureDepth: 0})

	ran := false
	ensureProc := procs.NewGoProc(func(self values.Value, argv []values.Value, block values.Value) (values.Value, error) {
		ran = true
		return values.Nil, nil
	})
	f.EnsureStack = append(f.EnsureStack, ensureProc)

	origErr := s.raise(ErrRuntime, "boom")
	_, err := s.unwind(f, nil, origErr)

	assert.True(t, ran, "an ensure handler registered above the call's baseline must run during unwind")
	assert.Same(t, origErr, err, "unwind must propagate the original error once no rescue handler claims it")
	assert.Empty(t, f.EnsureStack, "the run ensure handler must be popped")
}

func TestUnwindDoesNotRunEnsureHandlersBelowBaseline(t *testing.T) {
	s := Open(DefaultConfig())
	f := newFiberContext(8)

	ran := false
	outer := procs.NewGoProc(func(self values.Value, argv []values.Value, block values.Value) (values.Value, error) {
		ran = true
		return values.Nil, nil
	})
	f.EnsureStack = append(f.EnsureStack, outer)
	// The current call's own baseline is above the outer ensure handler,
	// so unwind must leave it alone (it belongs to an enclosing frame).
	f.pushCI(CallInfo{RescueDepth: 0, EnsureDepth: len(f.EnsureStack)})

	err := s.raise(ErrRuntime, "boom")
	_, rerr := s.unwind(f, nil, err)

	assert.False(t, ran, "an ensure handler registered before the current call's EnsureDepth baseline must not run")
	assert.Same(t, err, rerr)
	require.Len(t, f.EnsureStack, 1, "the outer handler stays queued for its own frame's unwind")
}
