package values

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternAssignsStableIDs(t *testing.T) {
	tab := NewSymbolTable()
	id := tab.Intern("foo")
	assert.Equal(t, id, tab.Intern("foo"))
	assert.NotEqual(t, SymbolID(0), id)
}

func TestInternDistinctNamesGetDistinctIDs(t *testing.T) {
	tab := NewSymbolTable()
	a := tab.Intern("foo")
	b := tab.Intern("bar")
	assert.NotEqual(t, a, b)
}

func TestZeroSymbolIDIsReservedAbsent(t *testing.T) {
	tab := NewSymbolTable()
	_, ok := tab.Name(0)
	assert.False(t, ok)
}

func TestNameRoundTrips(t *testing.T) {
	tab := NewSymbolTable()
	id := tab.Intern("initialize")
	name, ok := tab.Name(id)
	assert.True(t, ok)
	assert.Equal(t, "initialize", name)
	assert.Equal(t, "initialize", tab.MustName(id))
}

func TestNameOutOfRangeIsNotOK(t *testing.T) {
	tab := NewSymbolTable()
	_, ok := tab.Name(SymbolID(999))
	assert.False(t, ok)
	assert.Equal(t, "", tab.MustName(SymbolID(999)))
}

func TestLenCountsReservedSlot(t *testing.T) {
	tab := NewSymbolTable()
	assert.Equal(t, 1, tab.Len())
	tab.Intern("a")
	tab.Intern("b")
	assert.Equal(t, 3, tab.Len())
}

// TestInternConcurrentSafe exercises the RLock-then-Lock upgrade path: many
// goroutines interning overlapping names must never produce two ids for the
// same name.
func TestInternConcurrentSafe(t *testing.T) {
	tab := NewSymbolTable()
	names := []string{"a", "b", "c", "d", "e"}

	var wg sync.WaitGroup
	ids := make([][]SymbolID, len(names))
	for i := range ids {
		ids[i] = make([]SymbolID, 50)
	}

	for n, name := range names {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(n, i int, name string) {
				defer wg.Done()
				ids[n][i] = tab.Intern(name)
			}(n, i, name)
		}
	}
	wg.Wait()

	for n := range names {
		first := ids[n][0]
		for _, id := range ids[n] {
			assert.Equal(t, first, id)
		}
	}
}
