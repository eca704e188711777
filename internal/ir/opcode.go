// Package ir implements the typed three-address IR of spec.md §3/§4.C:
// instructions over virtual registers, labels, and symbolic operands,
// created by code-gen, mutated only by the register allocator (spill/
// unspill/alloc_spill insertion), and consumed by the encoder.
//
// The opcode surface mirrors the teacher's own Opcode enum in
// std/compiler/ir.go (a flat int constant block plus a name table) but
// widens it from the teacher's small stack-machine instruction set to
// the spec's register-machine, width-and-signedness-tagged opcode
// families (add_u16, div_f64, band_64, ...).
package ir

// Opcode identifies an IR instruction. Opcode naming encodes operand
// width where relevant: the Width field on Instruction carries the
// numeric width (1, 2, 4, or 8 bytes) and Signed/Float flags select the
// family, matching spec.md §4.C's naming scheme (add_u16, div_f64, ...).
type Opcode int

const (
	OpUnknown Opcode = iota

	// --- loads/stores ---
	OpTmpLoad   // tmp_<w> dst, operand (kind: Global/Reg/RegCopy/Arg/Local/Upvalue/Func)
	OpLocalSet  // local_set_<w> idx, val
	OpGlobalSet // global_set_<w> symbol, val
	OpSSetField // s_set_field_<w>
	OpCSetField // c_set_field_<w>
	OpASetIndex // a_set_index_<w>

	// --- arithmetic/logic ---
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpBAnd
	OpBOr
	OpBXor
	OpBNot
	OpShl
	OpShr
	OpAnd // boolean
	OpOr  // boolean
	OpNot // boolean

	// --- control flow ---
	OpLabel
	OpJmp        // j <label>
	OpJmpCmp     // j_cmp_<w> a, b, cmp_kind, label
	OpJmpEqNull  // j_eq_null_<w>
	OpJmpEqNullP // j_eq_null_ptr

	// --- calls ---
	OpCall         // direct call label [-> ret]
	OpCallPtr      // indirect call reg [-> ret]
	OpClosureCall  // closure_call reg
	OpCoroutineCall
	OpFnGetRetReg // fn_get_ret_reg dest, 255, width

	// --- allocations ---
	OpSAlloc
	OpSAllocT
	OpCAlloc
	OpCAllocT
	OpAAlloc
	OpClosureAlloc
	OpCoroutineAlloc
	OpCoroutineFnAlloc

	// --- casts ---
	OpCast   // same-width reinterpretation
	OpUpcast // widening
	OpDcast  // narrowing

	// --- strings ---
	OpAStorefConst // a_storef_const (element-wise store from constant pool)

	// --- source map pseudo-instructions ---
	OpSrcmapPush
	OpSrcmapPop

	// --- returns ---
	OpRet     // ret_<w> val, i
	OpRetVoid // fn_ret
	OpHalt    // halt <reg>, used only by the synthesized entry prologue

	// --- liveness pseudo-instruction ---
	OpDestroyTmp // terminates a discarded temporary's live range

	// --- register-allocator-inserted pseudo-instructions (spec.md §4.D) ---
	OpSpill      // spill(slot_id, preg)
	OpUnspill    // unspill(preg, slot_id)
	OpAllocSpill // alloc_spill(total_slots), once at function entry
)

var opcodeNames = map[Opcode]string{
	OpUnknown:          "unknown",
	OpTmpLoad:          "tmp",
	OpLocalSet:         "local_set",
	OpGlobalSet:        "global_set",
	OpSSetField:        "s_set_field",
	OpCSetField:        "c_set_field",
	OpASetIndex:        "a_set_index",
	OpAdd:              "add",
	OpSub:              "sub",
	OpMul:              "mul",
	OpDiv:              "div",
	OpMod:              "mod",
	OpNeg:              "neg",
	OpBAnd:             "band",
	OpBOr:              "bor",
	OpBXor:             "bxor",
	OpBNot:             "bnot",
	OpShl:              "shl",
	OpShr:              "shr",
	OpAnd:              "and",
	OpOr:               "or",
	OpNot:              "not",
	OpLabel:            "label",
	OpJmp:              "j",
	OpJmpCmp:           "j_cmp",
	OpJmpEqNull:        "j_eq_null",
	OpJmpEqNullP:       "j_eq_null_ptr",
	OpCall:             "call",
	OpCallPtr:          "call_ptr",
	OpClosureCall:      "closure_call",
	OpCoroutineCall:    "coroutine_call",
	OpFnGetRetReg:      "fn_get_ret_reg",
	OpSAlloc:           "s_alloc",
	OpSAllocT:          "s_alloc_t",
	OpCAlloc:           "c_alloc",
	OpCAllocT:          "c_alloc_t",
	OpAAlloc:           "a_alloc",
	OpClosureAlloc:     "closure_alloc",
	OpCoroutineAlloc:   "coroutine_alloc",
	OpCoroutineFnAlloc: "coroutine_fn_alloc",
	OpCast:             "cast",
	OpUpcast:           "upcast",
	OpDcast:            "dcast",
	OpAStorefConst:     "a_storef_const",
	OpSrcmapPush:       "srcmap_push_loc",
	OpSrcmapPop:        "srcmap_pop_loc",
	OpRet:              "ret",
	OpRetVoid:          "fn_ret",
	OpHalt:             "halt",
	OpDestroyTmp:       "destroy_tmp",
	OpSpill:            "spill",
	OpUnspill:          "unspill",
	OpAllocSpill:       "alloc_spill",
}

// String returns the teacher-style lowercase mnemonic for op, widened by
// (width, signed, float) where applicable via Instruction.Mnemonic.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "op_unknown"
}

// CmpKind enumerates the comparison kinds carried by j_cmp_<w>.
type CmpKind int

const (
	CmpEq CmpKind = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

func (c CmpKind) String() string {
	switch c {
	case CmpEq:
		return "=="
	case CmpNe:
		return "!="
	case CmpLt:
		return "<"
	case CmpLe:
		return "<="
	case CmpGt:
		return ">"
	case CmpGe:
		return ">="
	default:
		return "?"
	}
}

// LoadKind enumerates the operand kinds a tmp_<w> load can carry, per
// spec.md §4.C.
type LoadKind int

const (
	LoadGlobal LoadKind = iota
	LoadReg
	LoadRegCopy // forces a fresh live range: a width-change must not alias
	LoadArg
	LoadLocal
	LoadUpvalue
	LoadFunc // resolves to a code-segment address (pointer); narrower widths reject it
	LoadImm
	LoadConst
)
