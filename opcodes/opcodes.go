// Package opcodes defines the register-VM instruction set from §4.5: the
// opcode families (semantics, not a fixed numeric assignment — the spec is
// explicit that "the design contract is the semantics... not the numeric
// codes") and the variable-width operand encoding with EXT1/EXT2/EXT3
// re-decoding prefixes.
//
// The enumeration style (a byte-sized Opcode with grouped const blocks and a
// trailing comment naming the pseudo-asm form) follows the teacher's
// opcodes.go; the families and semantics are this module's own, taken from
// spec.md §4.5's opcode family table.
package opcodes

import "fmt"

// Opcode identifies an instruction.
type Opcode byte

const (
	OP_NOP Opcode = iota

	// MOVE, LOAD* — register copy and literal loads.
	OP_MOVE      // MOVE dst, src
	OP_LOADL     // LOADL dst, pool_idx     (constant pool entry)
	OP_LOADI     // LOADI dst, imm          (small int literal, fits in operand width)
	OP_LOADSYM   // LOADSYM dst, sym_idx
	OP_LOADNIL   // LOADNIL dst
	OP_LOADSELF  // LOADSELF dst
	OP_LOADT     // LOADT dst              (true)
	OP_LOADF     // LOADF dst              (false)

	// Global / special / instance / class / constant accessors.
	OP_GETGV // GETGV dst, sym
	OP_SETGV // SETGV sym, src
	OP_GETSV // GETSV dst, sym            (special/thread-local variable, e.g. $~)
	OP_SETSV // SETSV sym, src
	OP_GETIV // GETIV dst, sym            (self.@sym)
	OP_SETIV // SETIV sym, src
	OP_GETCV // GETCV dst, sym            (class variable @@sym)
	OP_SETCV // SETCV sym, src
	OP_GETCONST  // GETCONST dst, sym     (top-level constant lookup, lexical scope then Object)
	OP_SETCONST  // SETCONST sym, src
	OP_GETMCNST  // GETMCNST dst, base, sym (Base::CONST)
	OP_SETMCNST  // SETMCNST base, sym, src

	// Upvalue access for closures — walk `upper` proc chain N levels.
	OP_GETUPVAR // GETUPVAR dst, idx, depth
	OP_SETUPVAR // SETUPVAR idx, depth, src

	// Branches. Offsets are relative to the start of the instruction
	// sequence, per §4.5.
	OP_JMP    // JMP target
	OP_JMPIF  // JMPIF cond, target
	OP_JMPNOT // JMPNOT cond, target
	OP_JMPNIL // JMPNIL cond, target

	// Exception control, §4.6.
	OP_ONERR  // ONERR target             (push a rescue-stack entry pointing at `target`)
	OP_POPERR // POPERR n                 (pop n rescue-stack entries)
	OP_EXCEPT // EXCEPT dst               (store the pending exception into dst, per RESCUE matching)
	OP_RESCUE // RESCUE dst, class, result (result = dst.is_a?(class); clears pending exception if so)
	OP_RAISE  // RAISE src                (raise src as the pending exception)
	OP_EPUSH  // EPUSH irep_idx           (push an ensure handler built from a child irep)
	OP_EPOP   // EPOP n                   (run and pop n ensure handlers, LIFO)

	// Calls.
	OP_SEND   // SEND recv, method_sym, argc
	OP_SENDV  // SENDV recv, method_sym    (argc given as one packed array on the stack)
	OP_SENDB  // SENDB recv, method_sym, argc (with block)
	OP_SENDVB // SENDVB recv, method_sym   (splat + block)
	OP_CALL   // CALL recv                (tail-call the Proc in `self`)
	OP_SUPER  // SUPER argc               (reuse or explicit args)
	OP_ARGARY // ARGARY dst               (build the implicit super argument array)

	// Callee-side argument unpacking, §4.4.
	OP_ENTER  // ENTER spec               (23-bit argument-spec word)
	OP_KARG   // KARG sym, dst
	OP_KEY_P  // KEY_P sym, dst           (dst = keyword-dict has? sym)
	OP_KEYEND // KEYEND

	// Frame exit.
	OP_RETURN     // RETURN src
	OP_RETURN_BLK // RETURN_BLK src        (return-from-block, unwinds to the lexically enclosing method)
	OP_BREAK      // BREAK src             (break out of the innermost block)
	OP_BLKPUSH    // BLKPUSH dst           (push the enclosing block argument, for `yield`)

	// Arithmetic / compare, with inline fast paths (§4.5).
	OP_ADD
	OP_SUB
	OP_MUL
	OP_DIV
	OP_ADDI // ADDI dst, lhs, imm        (fixnum + small immediate, skips a LOADI)
	OP_SUBI
	OP_EQ
	OP_LT
	OP_LE
	OP_GT
	OP_GE

	// Array / splat / element ops.
	OP_ARRAY  // ARRAY dst, first_reg, n  (build array literal from n consecutive registers)
	OP_ARRAY2 // ARRAY2 dst, first_reg, n, tail_reg (literal plus one trailing splat)
	OP_ARYCAT // ARYCAT dst, src          (concatenate src's elements onto dst, for *splat in a literal)
	OP_ARYPUSH // ARYPUSH dst, src
	OP_ARYDUP  // ARYDUP dst, src         (shallow copy, needed before mutating a literal in place)
	OP_AREF    // AREF dst, src, idx
	OP_ASET    // ASET dst, idx, src
	OP_APOST   // APOST pre, src, n_pre, n_post (post-rest destructuring: a, *b, c = ary)

	// Hash literal / merge.
	OP_HASH    // HASH dst, first_reg, n  (n/2 key/value pairs from consecutive registers)
	OP_HASHADD // HASHADD dst, first_reg, n
	OP_HASHCAT // HASHCAT dst, src

	// String.
	OP_STRING // STRING dst, pool_idx     (dup the pool's string literal)
	OP_STRCAT // STRCAT dst, src
	OP_INTERN // INTERN dst, src          (string -> symbol)

	// Proc construction.
	OP_LAMBDA // LAMBDA dst, irep_idx, flags
	OP_BLOCK  // BLOCK dst, irep_idx
	OP_METHOD // METHOD dst, irep_idx

	// Ranges.
	OP_RANGE_INC // RANGE_INC dst, lo, hi
	OP_RANGE_EXC // RANGE_EXC dst, lo, hi

	// Class/module definition.
	OP_OCLASS // OCLASS dst               (open/create the Object-rooted class)
	OP_CLASS  // CLASS dst, sym, super
	OP_MODULE // MODULE dst, sym
	OP_EXEC   // EXEC target, irep_idx    (invoke a class/module body with target_class set)
	OP_DEF    // DEF target, sym, irep_idx
	OP_SCLASS // SCLASS dst, src          (singleton class of src)
	OP_TCLASS // TCLASS dst               (the current target_class)
	OP_ALIAS  // ALIAS target, new_sym, old_sym
	OP_UNDEF  // UNDEF target, sym

	// Misc.
	OP_STOP  // STOP                      (halt the VM)
	OP_ERR   // ERR pool_idx              (raise a literal LocalJumpError)
	OP_DEBUG // DEBUG a, b, c             (debugger hook, no-op unless debug hooks are enabled)
)

var names = map[Opcode]string{
	OP_NOP: "NOP", OP_MOVE: "MOVE", OP_LOADL: "LOADL", OP_LOADI: "LOADI",
	OP_LOADSYM: "LOADSYM", OP_LOADNIL: "LOADNIL", OP_LOADSELF: "LOADSELF",
	OP_LOADT: "LOADT", OP_LOADF: "LOADF",
	OP_GETGV: "GETGV", OP_SETGV: "SETGV", OP_GETSV: "GETSV", OP_SETSV: "SETSV",
	OP_GETIV: "GETIV", OP_SETIV: "SETIV", OP_GETCV: "GETCV", OP_SETCV: "SETCV",
	OP_GETCONST: "GETCONST", OP_SETCONST: "SETCONST",
	OP_GETMCNST: "GETMCNST", OP_SETMCNST: "SETMCNST",
	OP_GETUPVAR: "GETUPVAR", OP_SETUPVAR: "SETUPVAR",
	OP_JMP: "JMP", OP_JMPIF: "JMPIF", OP_JMPNOT: "JMPNOT", OP_JMPNIL: "JMPNIL",
	OP_ONERR: "ONERR", OP_POPERR: "POPERR", OP_EXCEPT: "EXCEPT", OP_RESCUE: "RESCUE",
	OP_RAISE: "RAISE", OP_EPUSH: "EPUSH", OP_EPOP: "EPOP",
	OP_SEND: "SEND", OP_SENDV: "SENDV", OP_SENDB: "SENDB", OP_SENDVB: "SENDVB",
	OP_CALL: "CALL", OP_SUPER: "SUPER", OP_ARGARY: "ARGARY",
	OP_ENTER: "ENTER", OP_KARG: "KARG", OP_KEY_P: "KEY_P", OP_KEYEND: "KEYEND",
	OP_RETURN: "RETURN", OP_RETURN_BLK: "RETURN_BLK", OP_BREAK: "BREAK", OP_BLKPUSH: "BLKPUSH",
	OP_ADD: "ADD", OP_SUB: "SUB", OP_MUL: "MUL", OP_DIV: "DIV",
	OP_ADDI: "ADDI", OP_SUBI: "SUBI",
	OP_EQ: "EQ", OP_LT: "LT", OP_LE: "LE", OP_GT: "GT", OP_GE: "GE",
	OP_ARRAY: "ARRAY", OP_ARRAY2: "ARRAY2", OP_ARYCAT: "ARYCAT", OP_ARYPUSH: "ARYPUSH",
	OP_ARYDUP: "ARYDUP", OP_AREF: "AREF", OP_ASET: "ASET", OP_APOST: "APOST",
	OP_HASH: "HASH", OP_HASHADD: "HASHADD", OP_HASHCAT: "HASHCAT",
	OP_STRING: "STRING", OP_STRCAT: "STRCAT", OP_INTERN: "INTERN",
	OP_LAMBDA: "LAMBDA", OP_BLOCK: "BLOCK", OP_METHOD: "METHOD",
	OP_RANGE_INC: "RANGE_INC", OP_RANGE_EXC: "RANGE_EXC",
	OP_OCLASS: "OCLASS", OP_CLASS: "CLASS", OP_MODULE: "MODULE", OP_EXEC: "EXEC",
	OP_DEF: "DEF", OP_SCLASS: "SCLASS", OP_TCLASS: "TCLASS", OP_ALIAS: "ALIAS", OP_UNDEF: "UNDEF",
	OP_STOP: "STOP", OP_ERR: "ERR", OP_DEBUG: "DEBUG",
}

func (op Opcode) String() string {
	if n, ok := names[op]; ok {
		return n
	}
	return fmt.Sprintf("OP(%d)", op)
}

// OperandWidth is the {B,S,W,Z} operand size selector from §4.5.
type OperandWidth byte

const (
	WidthNone  OperandWidth = iota // Z: no operand
	WidthByte                      // B: uint8
	WidthShort                     // S: uint16
	WidthWord                      // W: uint24
)

// Ext is one of the three prefix opcodes that re-decode the following
// opcode's operands one size wider (B->S->W). They are ordinary Opcode
// values assigned in the misc range so the dispatch loop's switch handles
// them like anything else; irep's decodeInstruction applies the prefix
// when loading.
const (
	OP_EXT1 Opcode = 250 + iota // widen every operand one step (B->S, S->W)
	OP_EXT2                     // widen every operand two steps (B->W)
	OP_EXT3                     // each operand independently widened one step, mixed-width encoding
)

func init() {
	names[OP_EXT1] = "EXT1"
	names[OP_EXT2] = "EXT2"
	names[OP_EXT3] = "EXT3"
}

// Instruction is the in-memory decoded form of one bytecode instruction.
// The loader (package irep) decodes the variable-width wire encoding into
// this uniform wide struct once at load time rather than re-decoding
// EXT-prefixed operands on every dispatch — the "decode into a uniform
// wide form" option §9's Design Notes explicitly permits, trading a larger
// in-memory irep for a simpler, branch-free dispatch loop.
type Instruction struct {
	Op   Opcode
	A, B, C int32 // operand slots; unused operands for a given Op are left zero
}

func (i *Instruction) String() string {
	return fmt.Sprintf("%s %d,%d,%d", i.Op, i.A, i.B, i.C)
}

// WidthFor reports how many of {B,S,W} the wire encoding needed to
// represent operand value n, which the dumper (irep.Dump) uses to decide
// whether an EXT prefix is required when re-serializing.
func WidthFor(n int32) OperandWidth {
	switch {
	case n == 0:
		return WidthNone
	case n >= 0 && n <= 0xff:
		return WidthByte
	case n >= 0 && n <= 0xffff:
		return WidthShort
	default:
		return WidthWord
	}
}
