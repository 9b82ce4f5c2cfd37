package irep

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wudi/mrblite/opcodes"
	"github.com/wudi/mrblite/values"
)

func sampleIrep(syms *values.SymbolTable) *Irep {
	return &Irep{
		Instructions: []opcodes.Instruction{
			{Op: opcodes.OP_LOADI, A: 0, B: 42, C: 0},
			{Op: opcodes.OP_RETURN, A: 0, B: 0, C: 0},
		},
		Pool: []PoolEntry{
			{Kind: PoolString, Str: "hello"},
			{Kind: PoolFixnum, Int: 7},
			{Kind: PoolFloat, Float: 3.5},
		},
		Syms:    []values.SymbolID{syms.Intern("foo"), syms.Intern("bar")},
		NLocals: 3,
		NRegs:   4,
	}
}

func TestDumpLoadRoundTripLittleEndian(t *testing.T) {
	syms := values.NewSymbolTable()
	root := sampleIrep(syms)

	data, err := Dump(root, syms, false)
	assert.NoError(t, err)

	loadSyms := values.NewSymbolTable()
	loaded, hdr, err := Load(data, loadSyms)
	assert.NoError(t, err)
	assert.Equal(t, identLittle, hdr.Ident)
	assert.Equal(t, root.Instructions, loaded.Instructions)
	assert.Equal(t, root.Pool, loaded.Pool)
	assert.Equal(t, root.NLocals, loaded.NLocals)
	assert.Equal(t, root.NRegs, loaded.NRegs)

	for i, sid := range root.Syms {
		name, _ := syms.Name(sid)
		loadedName, _ := loadSyms.Name(loaded.Syms[i])
		assert.Equal(t, name, loadedName)
	}
}

func TestDumpLoadRoundTripBigEndian(t *testing.T) {
	syms := values.NewSymbolTable()
	root := sampleIrep(syms)

	data, err := Dump(root, syms, true)
	assert.NoError(t, err)

	loadSyms := values.NewSymbolTable()
	loaded, hdr, err := Load(data, loadSyms)
	assert.NoError(t, err)
	assert.Equal(t, identBig, hdr.Ident)
	assert.Equal(t, root.Instructions, loaded.Instructions)
}

func TestDumpLoadRoundTripWithChildren(t *testing.T) {
	syms := values.NewSymbolTable()
	child := sampleIrep(syms)
	root := &Irep{
		Instructions: []opcodes.Instruction{{Op: opcodes.OP_RETURN}},
		Children:     []*Irep{child},
	}

	data, err := Dump(root, syms, false)
	assert.NoError(t, err)

	loaded, _, err := Load(data, values.NewSymbolTable())
	assert.NoError(t, err)
	if assert.Len(t, loaded.Children, 1) {
		assert.Equal(t, child.Instructions, loaded.Children[0].Instructions)
	}
}

func TestLoadRejectsCorruptedCRC(t *testing.T) {
	syms := values.NewSymbolTable()
	root := sampleIrep(syms)
	data, err := Dump(root, syms, false)
	assert.NoError(t, err)

	corrupt := append([]byte(nil), data...)
	corrupt[len(corrupt)-1] ^= 0xFF

	_, _, err = Load(corrupt, values.NewSymbolTable())
	assert.Error(t, err)
}

func TestLoadRejectsUnknownIdent(t *testing.T) {
	_, _, err := Load([]byte("ROPE0000MRBL0000xxxxxxxxxxxxxxxxxxxxxxxx"), values.NewSymbolTable())
	assert.Error(t, err)
}

func TestLoadRejectsMissingIrepSection(t *testing.T) {
	syms := values.NewSymbolTable()
	root := sampleIrep(syms)
	data, err := Dump(root, syms, false)
	assert.NoError(t, err)

	// Corrupt the IREP section ident so Load sees only the footer, making
	// the unit structurally missing its irep tree. The header CRC is then
	// recomputed so the rejection comes from the missing section rather
	// than from a checksum mismatch.
	corrupt := append([]byte(nil), data...)
	irepIdentOffset := 22 // header is 22 bytes: ident(4)+version(4)+compiler(4)+compilerver(4)+size(4)+crc(2)
	copy(corrupt[irepIdentOffset:irepIdentOffset+4], []byte("XREP"))
	binary.LittleEndian.PutUint16(corrupt[20:22], crc16CCITT(corrupt[22:]))

	_, _, err = Load(corrupt, syms)
	assert.Error(t, err)
}

func TestLineForReturnsFalseWithNoDebugInfo(t *testing.T) {
	ir := &Irep{}
	_, _, ok := ir.LineFor(0)
	assert.False(t, ok)
}

func TestRetainReleaseTracksRefCount(t *testing.T) {
	ir := &Irep{}
	ir.Retain()
	ir.Retain()
	assert.Equal(t, int32(1), ir.Release())
	assert.Equal(t, int32(0), ir.Release())
}
