package irep

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/wudi/mrblite/opcodes"
	"github.com/wudi/mrblite/values"
)

// Section and record identifiers, §6.1.
const (
	identBig    = "RITE"
	identLittle = "RITL"
	sectIrep    = "IREP"
	sectLine    = "LINE"
	sectDebug   = "DBG\x00"
	sectLvar    = "LVAR"
	footerIdent = "END\x00"
)

// Header is the binary header preceding the section stream (§6.1).
type Header struct {
	Ident           string
	Version         string
	CompilerName    string
	CompilerVersion string
	Size            uint32
	CRC             uint16
}

// ErrMalformed wraps any structural problem in a compiled unit, so the
// loader's many small validation checks share one sentinel that callers
// can match with errors.Is while still getting a descriptive message via
// %w-wrapping (mirrors the teacher's VMError.Unwrap discipline in
// vm/errors.go).
type ErrMalformed struct{ Reason string }

func (e *ErrMalformed) Error() string { return fmt.Sprintf("irep: malformed compiled unit: %s", e.Reason) }

// byteOrderFor auto-detects big/little endian from the 4-byte ident, per
// §6.1: "The binary ident is RITE for big-endian and RITL for
// little-endian payloads; the loader auto-detects."
func byteOrderFor(ident string) (binary.ByteOrder, error) {
	switch ident {
	case identBig:
		return binary.BigEndian, nil
	case identLittle:
		return binary.LittleEndian, nil
	default:
		return nil, &ErrMalformed{Reason: fmt.Sprintf("unrecognized ident %q", ident)}
	}
}

// Load parses a compiled unit and returns its top-level Irep tree plus the
// raw header as read (callers rarely need it; Dump takes no header and
// always writes its own fixed version and compiler fields).
func Load(data []byte, syms *values.SymbolTable) (*Irep, *Header, error) {
	r := bytes.NewReader(data)
	hdr, order, err := readHeader(r)
	if err != nil {
		return nil, nil, err
	}

	body := data[len(data)-r.Len():]
	if crc16CCITT(body) != hdr.CRC {
		return nil, nil, &ErrMalformed{Reason: "CRC mismatch"}
	}

	var root *Irep
	for {
		sect, payload, err := readSection(r, order)
		if err != nil {
			return nil, nil, err
		}
		if sect == footerIdent {
			break
		}
		switch sect {
		case sectIrep:
			root, err = parseIrepTree(bytes.NewReader(payload), order, syms)
			if err != nil {
				return nil, nil, err
			}
		case sectLine, sectDebug:
			if root != nil {
				attachDebug(root, sect, payload)
			}
		case sectLvar:
			if root != nil {
				attachLvars(root, payload)
			}
		default:
			// Unknown sections are skipped per §6.1's extensible-section
			// design; a forward-compatible loader must not reject a unit
			// merely for carrying a section it doesn't understand yet.
		}
	}
	if root == nil {
		return nil, nil, &ErrMalformed{Reason: "missing IREP section"}
	}
	return root, hdr, nil
}

func readHeader(r *bytes.Reader) (*Header, binary.ByteOrder, error) {
	var raw [4]byte
	if _, err := r.Read(raw[:]); err != nil {
		return nil, nil, &ErrMalformed{Reason: "short header ident"}
	}
	ident := string(raw[:])
	order, err := byteOrderFor(ident)
	if err != nil {
		return nil, nil, err
	}
	var version, compilerName, compilerVersion [4]byte
	for _, f := range []*[4]byte{&version, &compilerName, &compilerVersion} {
		if _, err := r.Read(f[:]); err != nil {
			return nil, nil, &ErrMalformed{Reason: "short header field"}
		}
	}
	var size uint32
	if err := binary.Read(r, order, &size); err != nil {
		return nil, nil, &ErrMalformed{Reason: "short header size"}
	}
	var crc uint16
	if err := binary.Read(r, order, &crc); err != nil {
		return nil, nil, &ErrMalformed{Reason: "short header crc"}
	}
	return &Header{
		Ident: ident, Version: string(version[:]),
		CompilerName: string(compilerName[:]), CompilerVersion: string(compilerVersion[:]),
		Size: size, CRC: crc,
	}, order, nil
}

func readSection(r *bytes.Reader, order binary.ByteOrder) (ident string, payload []byte, err error) {
	var raw [4]byte
	if _, err := r.Read(raw[:]); err != nil {
		return "", nil, &ErrMalformed{Reason: "short section ident"}
	}
	ident = string(raw[:])
	var size uint32
	if err := binary.Read(r, order, &size); err != nil {
		return "", nil, &ErrMalformed{Reason: "short section size"}
	}
	if ident == footerIdent {
		return ident, nil, nil
	}
	if size < 8 {
		return "", nil, &ErrMalformed{Reason: "section size underflows header"}
	}
	payload = make([]byte, size-8)
	if _, err := r.Read(payload); err != nil {
		return "", nil, &ErrMalformed{Reason: "short section payload"}
	}
	return ident, payload, nil
}

// align4 advances past padding to the next 4-byte boundary, per §6.1
// "Alignment is 4 bytes throughout."
func align4(r *bytes.Reader, consumed int) {
	pad := (4 - consumed%4) % 4
	if pad > 0 {
		r.Seek(int64(pad), 1)
	}
}

func parseIrepTree(r *bytes.Reader, order binary.ByteOrder, syms *values.SymbolTable) (*Irep, error) {
	var recordSize uint32
	var nlocals, nregs, nreps uint16
	if err := binary.Read(r, order, &recordSize); err != nil {
		return nil, &ErrMalformed{Reason: "short irep record header"}
	}
	if err := binary.Read(r, order, &nlocals); err != nil {
		return nil, &ErrMalformed{Reason: "short irep nlocals"}
	}
	if err := binary.Read(r, order, &nregs); err != nil {
		return nil, &ErrMalformed{Reason: "short irep nregs"}
	}
	if err := binary.Read(r, order, &nreps); err != nil {
		return nil, &ErrMalformed{Reason: "short irep nreps"}
	}

	ir := &Irep{NLocals: nlocals, NRegs: nregs}

	// ISeqBlock
	var ilen uint32
	if err := binary.Read(r, order, &ilen); err != nil {
		return nil, &ErrMalformed{Reason: "short iseq length"}
	}
	align4(r, 4)
	ir.Instructions = make([]opcodes.Instruction, 0, ilen)
	for i := uint32(0); i < ilen; i++ {
		inst, err := decodeInstruction(r, order)
		if err != nil {
			return nil, err
		}
		ir.Instructions = append(ir.Instructions, inst)
	}

	// PoolBlock
	var plen uint32
	if err := binary.Read(r, order, &plen); err != nil {
		return nil, &ErrMalformed{Reason: "short pool length"}
	}
	for i := uint32(0); i < plen; i++ {
		entry, err := decodePoolEntry(r, order)
		if err != nil {
			return nil, err
		}
		ir.Pool = append(ir.Pool, entry)
	}

	// SymsBlock
	var slen uint32
	if err := binary.Read(r, order, &slen); err != nil {
		return nil, &ErrMalformed{Reason: "short syms length"}
	}
	for i := uint32(0); i < slen; i++ {
		var l uint16
		if err := binary.Read(r, order, &l); err != nil {
			return nil, &ErrMalformed{Reason: "short sym entry length"}
		}
		if l == NoSymbol {
			ir.Syms = append(ir.Syms, 0)
			continue
		}
		buf := make([]byte, l+1) // +1 for the trailing NUL
		if _, err := r.Read(buf); err != nil {
			return nil, &ErrMalformed{Reason: "short sym bytes"}
		}
		ir.Syms = append(ir.Syms, syms.Intern(string(buf[:l])))
	}

	for i := uint16(0); i < nreps; i++ {
		child, err := parseIrepTree(r, order, syms)
		if err != nil {
			return nil, err
		}
		ir.Children = append(ir.Children, child)
	}

	return ir, nil
}

// decodeInstruction reads one variable-width encoded opcode, applying the
// EXT1/EXT2/EXT3 widening rule from §4.5 before returning a uniform
// Instruction.
func decodeInstruction(r *bytes.Reader, order binary.ByteOrder) (opcodes.Instruction, error) {
	op, err := r.ReadByte()
	if err != nil {
		return opcodes.Instruction{}, &ErrMalformed{Reason: "short opcode byte"}
	}
	width := opcodes.WidthByte
	switch opcodes.Opcode(op) {
	case opcodes.OP_EXT1:
		width = opcodes.WidthShort
		op2, err := r.ReadByte()
		if err != nil {
			return opcodes.Instruction{}, &ErrMalformed{Reason: "short EXT1 opcode"}
		}
		return decodeOperands(r, order, opcodes.Opcode(op2), width)
	case opcodes.OP_EXT2:
		width = opcodes.WidthWord
		op2, err := r.ReadByte()
		if err != nil {
			return opcodes.Instruction{}, &ErrMalformed{Reason: "short EXT2 opcode"}
		}
		return decodeOperands(r, order, opcodes.Opcode(op2), width)
	case opcodes.OP_EXT3:
		op2, err := r.ReadByte()
		if err != nil {
			return opcodes.Instruction{}, &ErrMalformed{Reason: "short EXT3 opcode"}
		}
		return decodeOperandsMixed(r, order, opcodes.Opcode(op2))
	default:
		return decodeOperands(r, order, opcodes.Opcode(op), width)
	}
}

func readOperand(r *bytes.Reader, order binary.ByteOrder, width opcodes.OperandWidth) (int32, error) {
	switch width {
	case opcodes.WidthNone:
		return 0, nil
	case opcodes.WidthByte:
		b, err := r.ReadByte()
		return int32(b), err
	case opcodes.WidthShort:
		var v uint16
		err := binary.Read(r, order, &v)
		return int32(v), err
	default:
		var buf [3]byte
		if _, err := r.Read(buf[:]); err != nil {
			return 0, err
		}
		if order == binary.BigEndian {
			return int32(buf[0])<<16 | int32(buf[1])<<8 | int32(buf[2]), nil
		}
		return int32(buf[2])<<16 | int32(buf[1])<<8 | int32(buf[0]), nil
	}
}

// decodeOperands reads the fixed three-operand shape at a uniform width —
// the loader always reads A/B/C as same-width fields once widened, since
// the teacher-inspired wide in-memory form (opcodes.Instruction's doc
// comment) doesn't need per-operand width tracking after decode.
func decodeOperands(r *bytes.Reader, order binary.ByteOrder, op opcodes.Opcode, width opcodes.OperandWidth) (opcodes.Instruction, error) {
	a, err := readOperand(r, order, width)
	if err != nil {
		return opcodes.Instruction{}, &ErrMalformed{Reason: "short operand A"}
	}
	b, err := readOperand(r, order, width)
	if err != nil {
		return opcodes.Instruction{}, &ErrMalformed{Reason: "short operand B"}
	}
	c, err := readOperand(r, order, width)
	if err != nil {
		return opcodes.Instruction{}, &ErrMalformed{Reason: "short operand C"}
	}
	return opcodes.Instruction{Op: op, A: a, B: b, C: c}, nil
}

// decodeOperandsMixed implements EXT3: each operand independently widened
// one step, signaled by a leading per-operand width byte.
func decodeOperandsMixed(r *bytes.Reader, order binary.ByteOrder, op opcodes.Opcode) (opcodes.Instruction, error) {
	widthByte, err := r.ReadByte()
	if err != nil {
		return opcodes.Instruction{}, &ErrMalformed{Reason: "short EXT3 width byte"}
	}
	widths := [3]opcodes.OperandWidth{
		opcodes.OperandWidth((widthByte >> 4) & 0x3),
		opcodes.OperandWidth((widthByte >> 2) & 0x3),
		opcodes.OperandWidth(widthByte & 0x3),
	}
	var vals [3]int32
	for i, w := range widths {
		v, err := readOperand(r, order, w)
		if err != nil {
			return opcodes.Instruction{}, &ErrMalformed{Reason: "short EXT3 operand"}
		}
		vals[i] = v
	}
	return opcodes.Instruction{Op: op, A: vals[0], B: vals[1], C: vals[2]}, nil
}

func decodePoolEntry(r *bytes.Reader, order binary.ByteOrder) (PoolEntry, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return PoolEntry{}, &ErrMalformed{Reason: "short pool entry kind"}
	}
	var l uint16
	if err := binary.Read(r, order, &l); err != nil {
		return PoolEntry{}, &ErrMalformed{Reason: "short pool entry length"}
	}
	buf := make([]byte, l)
	if _, err := r.Read(buf); err != nil {
		return PoolEntry{}, &ErrMalformed{Reason: "short pool entry bytes"}
	}
	switch PoolKind(kindByte) {
	case PoolString:
		return PoolEntry{Kind: PoolString, Str: string(buf)}, nil
	case PoolFixnum:
		n, err := strconv.ParseInt(string(buf), 10, 64)
		if err != nil {
			return PoolEntry{}, &ErrMalformed{Reason: "bad fixnum literal text"}
		}
		return PoolEntry{Kind: PoolFixnum, Int: n}, nil
	case PoolFloat:
		f, err := strconv.ParseFloat(string(buf), 64)
		if err != nil {
			return PoolEntry{}, &ErrMalformed{Reason: "bad float literal text"}
		}
		return PoolEntry{Kind: PoolFloat, Float: f}, nil
	default:
		return PoolEntry{}, &ErrMalformed{Reason: fmt.Sprintf("unknown pool entry kind %d", kindByte)}
	}
}

// attachDebug stashes a LINE or DBG\0 section's payload verbatim rather
// than decoding it, per SPEC_FULL's supplemented-features note:
// round-tripping the exact chosen encoding (dense line[] array vs.
// (start_pc,line) flat map) is not required by §8.2, only the IREP
// section's byte-identity is. ir.Debug/LineFor stay empty for a loaded
// unit — this module has no parser for either encoding — but Dump can
// still re-emit the section bytes unchanged.
func attachDebug(root *Irep, sect string, payload []byte) {
	root.DebugSectionIdent = sect
	root.DebugSectionRaw = append([]byte(nil), payload...)
}

// attachLvars stashes a LVAR section's payload verbatim; see attachDebug.
func attachLvars(root *Irep, payload []byte) {
	root.LvarSectionRaw = append([]byte(nil), payload...)
}
