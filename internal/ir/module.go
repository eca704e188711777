package ir

import "github.com/latticeforge/vbcc/internal/types"

// VRegOrigin records where a virtual register came from, feeding the
// register allocator's coalescing-priority rule (argument > local >
// upvalue > other temporary > fresh), spec.md §4.D phase 1.
type VRegOrigin int

const (
	OriginFresh VRegOrigin = iota
	OriginArg
	OriginLocal
	OriginUpvalue
)

// VRegInfo describes one virtual register belonging to a Func.
type VRegInfo struct {
	Origin VRegOrigin
	Index  int // argument/local/upvalue index when Origin != OriginFresh
	Type   *types.Resolved
	Name   string // for debugging/source maps
}

// Func is one function's IR: a naive per-instruction temporary stream
// as code-gen (Component D) leaves it, plus the vreg table, coloring,
// and spill bookkeeping the allocator (Component E) fills in.
//
// Code-gen mints a brand-new Temp for every value-producing
// instruction — it never tries to notice that two temporaries could
// share storage. That noticing is deliberately the allocator's job
// (spec.md §4.D phase 1): a tmp_<w> load's operand kind (arg/local/
// upvalue/reg/reg_copy) is a *coalescing hint* for the allocator, not an
// instruction for code-gen to act on directly.
type Func struct {
	Name     string
	UID      uint32
	ArgCount int // the function's first ArgCount temps are its pinned arguments
	NumTemps int // total temporaries code-gen minted; Dst/VReg operands are temp ids in [0, NumTemps)
	Code     []Instruction
	RetTypes []*types.Resolved

	// Filled in by internal/regalloc, in this order:
	VRegs     []VRegInfo   // the coalesced vreg table (phase 1)
	TempToReg []VReg       // temp id -> coalesced vreg index
	Coloring  map[VReg]int // vreg -> physical register (0-255), or absent if spilled
	SpillSlot map[VReg]int // vreg -> spill slot id, for spilled vregs
	NumSpills int
}

// NewTemp allocates a fresh temporary id and returns it as a VReg handle
// (pre-allocation; the allocator later rewrites these into coalesced
// vreg indices).
func (f *Func) NewTemp() VReg {
	t := VReg(f.NumTemps)
	f.NumTemps++
	return t
}

// Emit appends inst to the function's code and returns its position
// (index into Code). Instruction order is the sole source of truth for
// live ranges (spec.md §5); no parallel or reordered emission is permitted.
func (f *Func) Emit(inst Instruction) int {
	pos := len(f.Code)
	f.Code = append(f.Code, inst)
	return pos
}

// Global describes one declared global variable or class static: a
// fixed 8-byte slot keyed by symbol UID (spec.md §3 "Global slot").
type Global struct {
	Name string
	UID  uint32
	Type *types.Resolved
}

// Class describes one class type for template emission: attributes,
// methods sorted by UID, class ID, and implemented interfaces
// (spec.md §3 "Class").
type Class struct {
	Name       string
	ClassID    uint32
	Attrs      []types.Field
	Methods    []types.Method // sorted by UID before template emission
	Interfaces []uint32
}

// Struct describes one struct type for template emission: an ordered
// list of named fields (spec.md §3 "Struct field"). UID mirrors Class's
// ClassID: it is the template identity an s_alloc_t instruction
// references directly, for a struct literal whose types.Resolved sets
// HasTemplate/TemplateID to this value.
type Struct struct {
	Name   string
	UID    uint32
	Fields []types.Field
}

// Module is the whole type-checked program's IR: every function,
// global, struct, and class the back end must lower, encode, and link.
type Module struct {
	Funcs   []*Func
	Globals []Global
	Structs []Struct
	Classes []Class
	Main    string // name of the entry-point function, e.g. "main.main"
}

// FuncByName returns the function named name, or nil.
func (m *Module) FuncByName(name string) *Func {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}
