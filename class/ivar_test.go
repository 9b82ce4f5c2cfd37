package class

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wudi/mrblite/values"
)

func TestIVarTableSetGetRoundTrips(t *testing.T) {
	tbl := newIVarTable()
	tbl.Set(values.SymbolID(1), values.Int(42))

	v, ok := tbl.Get(values.SymbolID(1))
	assert.True(t, ok)
	assert.Equal(t, int64(42), v.Int64())
}

func TestIVarTableGetMissingReturnsFalse(t *testing.T) {
	tbl := newIVarTable()
	_, ok := tbl.Get(values.SymbolID(1))
	assert.False(t, ok)
}

func TestIVarTableSetOverwritesExisting(t *testing.T) {
	tbl := newIVarTable()
	tbl.Set(values.SymbolID(1), values.Int(1))
	tbl.Set(values.SymbolID(1), values.Int(2))

	v, ok := tbl.Get(values.SymbolID(1))
	assert.True(t, ok)
	assert.Equal(t, int64(2), v.Int64())
	assert.Equal(t, 1, tbl.Len())
}

func TestIVarTableDeleteRemovesEntry(t *testing.T) {
	tbl := newIVarTable()
	tbl.Set(values.SymbolID(1), values.Int(1))
	assert.True(t, tbl.Delete(values.SymbolID(1)))
	_, ok := tbl.Get(values.SymbolID(1))
	assert.False(t, ok)
	assert.False(t, tbl.Delete(values.SymbolID(1)), "deleting an already-deleted symbol reports false")
}

func TestIVarTablePromotesToIndexedAboveThreshold(t *testing.T) {
	tbl := newIVarTable()
	for i := 1; i <= indexThreshold+2; i++ {
		tbl.Set(values.SymbolID(i), values.Int(int64(i)))
	}
	assert.NotNil(t, tbl.index, "crossing indexThreshold live entries must build the open-addressed index")

	for i := 1; i <= indexThreshold+2; i++ {
		v, ok := tbl.Get(values.SymbolID(i))
		assert.True(t, ok, fmt.Sprintf("symbol %d must still resolve via the index", i))
		assert.Equal(t, int64(i), v.Int64())
	}
}

func TestIVarTableEachIteratesLiveEntriesOnly(t *testing.T) {
	tbl := newIVarTable()
	tbl.Set(values.SymbolID(1), values.Int(1))
	tbl.Set(values.SymbolID(2), values.Int(2))
	tbl.Delete(values.SymbolID(1))

	seen := map[values.SymbolID]values.Value{}
	tbl.Each(func(sym values.SymbolID, v values.Value) { seen[sym] = v })

	assert.Len(t, seen, 1)
	assert.Contains(t, seen, values.SymbolID(2))
}

func TestIVarTableCompactionShrinksDeletedCount(t *testing.T) {
	tbl := newIVarTable()
	for i := 1; i <= 4; i++ {
		tbl.Set(values.SymbolID(i), values.Int(int64(i)))
	}
	// Delete enough entries to cross the deleted*3 > live compaction
	// trigger without crossing the index-promotion threshold.
	tbl.Delete(values.SymbolID(1))
	tbl.Delete(values.SymbolID(2))

	assert.Equal(t, 0, tbl.deleted, "compaction must reset the deleted counter")
	v, ok := tbl.Get(values.SymbolID(3))
	assert.True(t, ok)
	assert.Equal(t, int64(3), v.Int64())
}
