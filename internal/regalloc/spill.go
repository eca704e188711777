package regalloc

import "github.com/latticeforge/vbcc/internal/ir"

// contiguousRuns groups a sorted list of instruction positions into
// maximal contiguous runs (no intervening instruction between two
// members of the same run references anything else about the spilled
// vreg). Each run needs exactly one unspill before its first reference
// and one spill after its last — the "spill protocol" of spec.md §4.D.
func contiguousRuns(positions []int) [][2]int {
	if len(positions) == 0 {
		return nil
	}
	var runs [][2]int
	start := positions[0]
	prev := positions[0]
	for _, p := range positions[1:] {
		if p == prev+1 {
			prev = p
			continue
		}
		runs = append(runs, [2]int{start, prev})
		start = p
		prev = p
	}
	runs = append(runs, [2]int{start, prev})
	return runs
}

// scratchColorAt picks a physical register not occupied by any
// non-spilled vreg whose interval covers pos, for use as a spilled
// vreg's temporary home during one usage run.
func scratchColorAt(pos int, ranges []interval, color map[int]int) int {
	used := make(map[int]bool)
	for vi, c := range color {
		iv := ranges[vi]
		if iv.Start <= pos && pos <= iv.End {
			used[c] = true
		}
	}
	for c := 0; c <= MaxColor; c++ {
		if !used[c] {
			return c
		}
	}
	return MaxColor
}

// Allocate runs all four phases over f and mutates it in place: fills
// VRegs/TempToReg (already done by BuildVRegs, called here), Coloring,
// SpillSlot, NumSpills, and rewrites f.Code to splice in
// alloc_spill/spill/unspill pseudo-instructions.
func Allocate(f *ir.Func) {
	BuildVRegs(f)
	ranges := BuildLiveRanges(f)
	g := BuildInterference(ranges)
	color, spillOrder := Color(f.VRegs, g)

	f.Coloring = make(map[ir.VReg]int, len(color))
	for vi, c := range color {
		f.Coloring[ir.VReg(vi)] = c
	}

	if len(spillOrder) == 0 {
		return
	}

	f.SpillSlot = make(map[ir.VReg]int, len(spillOrder))
	slotID := 0
	for _, vi := range spillOrder {
		f.SpillSlot[ir.VReg(vi)] = slotID
		slotID++
	}
	f.NumSpills = slotID

	var patches []splicePatch

	for _, vi := range spillOrder {
		slot := f.SpillSlot[ir.VReg(vi)]
		var positions []int
		for pos, inst := range f.Code {
			for _, v := range regRefs(inst, f.TempToReg) {
				if int(v) == vi {
					positions = append(positions, pos)
					break
				}
			}
		}
		for _, run := range contiguousRuns(positions) {
			scratch := scratchColorAt(run[0], ranges, color)
			patches = append(patches, splicePatch{
				pos: run[0],
				inst: ir.Instruction{
					Op:   ir.OpUnspill,
					Args: []ir.Operand{ir.SmallOp(scratch), ir.SmallOp(slot)},
				},
			})
			patches = append(patches, splicePatch{
				pos: run[1],
				inst: ir.Instruction{
					Op:   ir.OpSpill,
					Args: []ir.Operand{ir.SmallOp(slot), ir.SmallOp(scratch)},
				},
				after: true,
			})
		}
	}

	f.Code = splice(f.Code, patches)
	f.Code = append([]ir.Instruction{{
		Op:   ir.OpAllocSpill,
		Args: []ir.Operand{ir.SmallOp(f.NumSpills)},
	}}, f.Code...)
}

type splicePatch = struct {
	pos   int
	inst  ir.Instruction
	after bool
}

// splice inserts each patch's instruction immediately before (or, if
// after is set, immediately after) the instruction originally at pos,
// without disturbing positions recorded for other patches (all offsets
// are computed against the original, pre-splice code).
func splice(code []ir.Instruction, patches []splicePatch) []ir.Instruction {
	type insertion struct {
		at   int // index into the ORIGINAL code to insert before
		inst ir.Instruction
	}
	var ins []insertion
	for _, p := range patches {
		at := p.pos
		if p.after {
			at = p.pos + 1
		}
		ins = append(ins, insertion{at: at, inst: p.inst})
	}
	// stable sort by insertion point so multiple inserts at the same
	// point preserve patch order
	for i := 1; i < len(ins); i++ {
		for j := i; j > 0 && ins[j].at < ins[j-1].at; j-- {
			ins[j], ins[j-1] = ins[j-1], ins[j]
		}
	}

	out := make([]ir.Instruction, 0, len(code)+len(ins))
	ii := 0
	for pos := 0; pos <= len(code); pos++ {
		for ii < len(ins) && ins[ii].at == pos {
			out = append(out, ins[ii].inst)
			ii++
		}
		if pos < len(code) {
			out = append(out, code[pos])
		}
	}
	for ii < len(ins) {
		out = append(out, ins[ii].inst)
		ii++
	}
	return out
}
