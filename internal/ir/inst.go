package ir

import "github.com/latticeforge/vbcc/internal/diag"

// VReg names a virtual register: a logical storage slot within one
// function, originating from an argument, local, upvalue, or anonymous
// temporary, and prefixed "tmp_" at the IR-text level per spec.md §3.
// The allocator owns all vregs for a function; a VReg value here is
// simply an index into that function's vreg table.
type VReg int

// NoVReg marks an absent/unused vreg operand slot.
const NoVReg VReg = -1

// Operand is the typed union of argument kinds an instruction may carry:
// a virtual register, an immediate numeric, a label name, a symbol UID,
// or a small integer descriptor (spec.md §3 "IR instruction").
type Operand struct {
	VReg    VReg
	Imm     int64   // widened to a signed 64-bit union for literal encoding (§9)
	FImm    float64
	IsFloat bool
	Label   string
	Symbol  uint32
	Small   int
	Kind    LoadKind
}

// Reg builds an Operand referring to a virtual register.
func Reg(v VReg) Operand { return Operand{VReg: v} }

// ImmOp builds an Operand carrying a signed immediate.
func ImmOp(v int64) Operand { return Operand{VReg: NoVReg, Imm: v} }

// FloatOp builds an Operand carrying a floating-point immediate.
func FloatOp(v float64) Operand { return Operand{VReg: NoVReg, FImm: v, IsFloat: true} }

// LabelOp builds an Operand naming a branch target.
func LabelOp(name string) Operand { return Operand{VReg: NoVReg, Label: name} }

// SymbolOp builds an Operand naming a symbol UID (function, class method, global).
func SymbolOp(uid uint32) Operand { return Operand{VReg: NoVReg, Symbol: uid} }

// SmallOp builds an Operand carrying a small integer descriptor (e.g. a
// comparison kind or element size).
func SmallOp(v int) Operand { return Operand{VReg: NoVReg, Small: v} }

// Instruction is one IR instruction: an opcode tag plus its argument
// list, and the width/signedness/float tags that select its encoded
// opcode family, per spec.md §3 and §4.C.
type Instruction struct {
	Op      Opcode
	Args    []Operand
	Dst     VReg // NoVReg if the instruction produces no value
	Width   int  // 0 if not width-tagged; otherwise one of {1,2,4,8}
	Signed  bool
	Float   bool
	Ptr     bool // pointer variant (carries no width byte, per §4.C)
	Loc     diag.Loc
	Comment string // optional human-readable annotation, e.g. field name
}

// Mnemonic renders the teacher-style lowercase mnemonic for the
// instruction, suffixed by its width/signedness/float tag, matching the
// naming convention of spec.md §3 ("add_i32", "s_get_field_ptr", ...).
func (in Instruction) Mnemonic() string {
	base := in.Op.String()
	if in.Ptr {
		return base + "_ptr"
	}
	if in.Width == 0 {
		return base
	}
	suffix := widthSuffix(in.Width, in.Signed, in.Float)
	return base + "_" + suffix
}

func widthSuffix(width int, signed, float bool) string {
	if float {
		if width == 4 {
			return "f32"
		}
		return "f64"
	}
	prefix := "u"
	if signed {
		prefix = "i"
	}
	switch width {
	case 1:
		return prefix + "8"
	case 2:
		return prefix + "16"
	case 4:
		return prefix + "32"
	case 8:
		return prefix + "64"
	default:
		return prefix + "?"
	}
}
