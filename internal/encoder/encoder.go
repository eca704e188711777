// Package encoder implements Component F: turning one function's
// resolved IR (post register-allocation) into its machine-level
// encoding — a byte stream plus a map of still-unresolved label
// references for the linker to patch.
//
// Grounded on the teacher's own instruction-encoding loop in
// std/compiler/backend_vm.go (opcode byte, then a fixed operand schema
// per opcode), generalized to the spec's per-opcode operand schema
// (spec.md §6) and register-width family naming.
package encoder

import (
	"fmt"
	"math"

	"github.com/latticeforge/vbcc/internal/bytewriter"
	"github.com/latticeforge/vbcc/internal/diag"
	"github.com/latticeforge/vbcc/internal/ir"
)

// UnresolvedLabel records one forward reference to a label: the code
// offset of the patch site and its patch width.
type UnresolvedLabel struct {
	Offset int
	Width  int
}

// Result is one function's encoded body.
type Result struct {
	Code       []byte
	Labels     map[string]int // label name -> code offset, for labels defined within this function
	Unresolved map[string][]UnresolvedLabel
	ConstRefs  map[string][]UnresolvedLabel // constant text -> patch sites needing its pool offset
	Consts     []string                     // string constants referenced, in first-encounter order (for the constant pool)

	// FuncRefs/GlobalRefs are symbol-UID-keyed patch sites the linker
	// must resolve once every function has a final code offset (FuncRefs:
	// direct calls, function-pointer loads, closure/coroutine targets)
	// or once the global table is laid out (GlobalRefs: global loads/
	// stores). Struct/class field IDs are never patched this way — a
	// field ID is already a final, build-stable value baked directly
	// into the image.
	FuncRefs   map[uint32][]UnresolvedLabel
	GlobalRefs map[uint32][]UnresolvedLabel
}

func opcodeByte(op ir.Opcode) (byte, error) {
	if op <= ir.OpUnknown || op > ir.OpAllocSpill {
		return 0, fmt.Errorf("opcode %v out of encodable range", op)
	}
	return byte(op), nil
}

// EncodeFunc encodes fn's already-allocated instruction stream. Each
// real instruction emits a 1-byte opcode, a 1-byte flags byte (width
// class/signed/float/ptr, packed per spec.md §6), then its operand
// schema. tmp_<w> loads are special-cased on their LoadKind, since that
// tag (not any one Operand field) is what determines their schema;
// every other opcode's operands were built by ir.Reg/ImmOp/LabelOp/
// SymbolOp/SmallOp, whose fields are unambiguous.
func EncodeFunc(fn *ir.Func) (*Result, error) {
	w := bytewriter.New()
	res := &Result{
		Labels:     make(map[string]int),
		Unresolved: make(map[string][]UnresolvedLabel),
		ConstRefs:  make(map[string][]UnresolvedLabel),
		FuncRefs:   make(map[uint32][]UnresolvedLabel),
		GlobalRefs: make(map[uint32][]UnresolvedLabel),
	}
	seenConst := make(map[string]bool)

	emitFuncRef := func(uid uint32) {
		off := w.U32(0)
		res.FuncRefs[uid] = append(res.FuncRefs[uid], UnresolvedLabel{Offset: off, Width: 4})
	}
	emitGlobalRef := func(uid uint32) {
		off := w.U32(0)
		res.GlobalRefs[uid] = append(res.GlobalRefs[uid], UnresolvedLabel{Offset: off, Width: 4})
	}

	physReg := func(v ir.VReg) (byte, error) {
		if v == ir.NoVReg {
			return 0, nil
		}
		if int(v) < len(fn.TempToReg) {
			if c, ok := fn.Coloring[fn.TempToReg[v]]; ok {
				return byte(c), nil
			}
		}
		return 0, diag.New(diag.EncodingError, diag.Loc{Func: fn.Name}, "vreg %d has no physical register at encode time (not colored or spilled)", v)
	}

	emitPatchableLabel := func(name string) {
		off := w.U32(0)
		res.Unresolved[name] = append(res.Unresolved[name], UnresolvedLabel{Offset: off, Width: 4})
	}

	for _, inst := range fn.Code {
		switch inst.Op {
		case ir.OpLabel:
			res.Labels[inst.Args[0].Label] = w.Len()
			continue
		case ir.OpSrcmapPush, ir.OpSrcmapPop, ir.OpDestroyTmp:
			continue // pure pseudo-instructions, no machine encoding
		}

		opb, err := opcodeByte(inst.Op)
		if err != nil {
			return nil, err
		}
		w.U8(opb)
		w.U8(flagsByte(inst))

		if inst.Op == ir.OpTmpLoad {
			a := inst.Args[0]
			w.U8(byte(a.Kind))
			switch a.Kind {
			case ir.LoadGlobal:
				emitGlobalRef(a.Symbol)
			case ir.LoadReg, ir.LoadRegCopy:
				r, err := physReg(a.VReg)
				if err != nil {
					return nil, err
				}
				w.U8(r)
			case ir.LoadArg, ir.LoadLocal, ir.LoadUpvalue:
				w.U8(byte(a.Small))
			case ir.LoadFunc:
				emitFuncRef(a.Symbol)
			case ir.LoadImm:
				if inst.Float {
					w.U64(uint64(f64bits(a.FImm)))
				} else {
					writeImm(w, inst.Width, a.Imm)
				}
			case ir.LoadConst:
				if !seenConst[a.Label] {
					seenConst[a.Label] = true
					res.Consts = append(res.Consts, a.Label)
				}
				off := w.U32(0)
				res.ConstRefs[a.Label] = append(res.ConstRefs[a.Label], UnresolvedLabel{Offset: off, Width: 4})
			}
			r, err := physReg(inst.Dst)
			if err != nil {
				return nil, err
			}
			w.U8(r)
			// a field-keyed tmp load (struct/class/array field or index
			// get) carries a second operand after the load-kind schema
			if len(inst.Args) > 1 {
				if err := encodeGenericOperand(w, inst.Args[1], physReg); err != nil {
					return nil, err
				}
			}
			continue
		}

		for i, a := range inst.Args {
			if a.Label != "" {
				emitPatchableLabel(a.Label)
				continue
			}
			// Args[0] on these four opcodes names a function or global
			// symbol UID that only resolves to a concrete address once
			// the whole module is laid out — the linker's job, not the
			// encoder's.
			if i == 0 {
				switch inst.Op {
				case ir.OpCall, ir.OpClosureAlloc, ir.OpCoroutineFnAlloc:
					emitFuncRef(a.Symbol)
					continue
				case ir.OpGlobalSet:
					emitGlobalRef(a.Symbol)
					continue
				}
			}
			if err := encodeGenericOperand(w, a, physReg); err != nil {
				return nil, err
			}
		}
		if inst.Dst != ir.NoVReg {
			r, err := physReg(inst.Dst)
			if err != nil {
				return nil, err
			}
			w.U8(r)
		}
	}

	res.Code = w.Bytes()
	return res, nil
}

func encodeGenericOperand(w *bytewriter.Writer, a ir.Operand, physReg func(ir.VReg) (byte, error)) error {
	switch {
	case a.VReg != ir.NoVReg:
		r, err := physReg(a.VReg)
		if err != nil {
			return err
		}
		w.U8(r)
	case a.Symbol != 0:
		w.U32(a.Symbol)
	default:
		w.U8(byte(a.Small))
	}
	return nil
}

func writeImm(w *bytewriter.Writer, width int, v int64) {
	switch width {
	case 1:
		w.U8(byte(v))
	case 2:
		w.U16(uint16(v))
	case 4:
		w.U32(uint32(v))
	default:
		w.U64(uint64(v))
	}
}

func f64bits(f float64) uint64 {
	return math.Float64bits(f)
}

// flagsByte packs an instruction's width class, signedness, float, and
// pointer tags into one byte, per spec.md §6: bits [0:2] width class
// (0=u8,1=u16,2=u32,3=u64), bit 3 signed, bit 4 float, bit 5 ptr.
func flagsByte(inst ir.Instruction) byte {
	var wc byte
	switch inst.Width {
	case 1:
		wc = 0
	case 2:
		wc = 1
	case 4:
		wc = 2
	case 8:
		wc = 3
	}
	var b byte = wc
	if inst.Signed {
		b |= 1 << 3
	}
	if inst.Float {
		b |= 1 << 4
	}
	if inst.Ptr {
		b |= 1 << 5
	}
	return b
}
