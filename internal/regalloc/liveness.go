package regalloc

import "github.com/latticeforge/vbcc/internal/ir"

// interval is a vreg's live range expressed as an instruction-position
// span [Start, End], inclusive. A vreg may have a single interval only:
// spec.md §4.D builds one interval per vreg by iterating to a fixpoint
// over backward jumps (loops), not a disjoint-interval set per vreg.
type interval struct {
	Start, End int
}

// labelPos maps every OpLabel's Label operand to its instruction index.
func labelPos(code []ir.Instruction) map[string]int {
	pos := make(map[string]int)
	for i, inst := range code {
		if inst.Op == ir.OpLabel && len(inst.Args) > 0 {
			pos[inst.Args[0].Label] = i
		}
	}
	return pos
}

// regRefs returns every vreg index referenced (read or written) by inst,
// given a temp->vreg map.
func regRefs(inst ir.Instruction, tempToReg []ir.VReg) []ir.VReg {
	var out []ir.VReg
	add := func(t ir.VReg) {
		if t == ir.NoVReg {
			return
		}
		out = append(out, tempToReg[int(t)])
	}
	if inst.Dst != ir.NoVReg {
		add(inst.Dst)
	}
	for _, a := range inst.Args {
		if a.VReg != ir.NoVReg {
			add(a.VReg)
		}
	}
	return out
}

// BuildLiveRanges runs phase 2: a first linear pass over f.Code records
// each vreg's [first-def-or-use, last-use] span; a fixpoint pass then
// extends any interval that crosses a backward jump (a label target at
// or before the jump site) so that a vreg live across a loop back-edge
// is treated as live for the whole loop body, per spec.md §4.D.
func BuildLiveRanges(f *ir.Func) []interval {
	nv := len(f.VRegs)
	ranges := make([]interval, nv)
	for i := range ranges {
		ranges[i] = interval{Start: -1, End: -1}
	}

	touch := func(v ir.VReg, pos int) {
		iv := &ranges[int(v)]
		if iv.Start == -1 || pos < iv.Start {
			iv.Start = pos
		}
		if pos > iv.End {
			iv.End = pos
		}
	}

	for pos, inst := range f.Code {
		for _, v := range regRefs(inst, f.TempToReg) {
			touch(v, pos)
		}
	}

	// Pinned arguments are live from function entry regardless of first
	// read (spec.md §4.D), including arguments the body never touches.
	for vi, info := range f.VRegs {
		if info.Origin == ir.OriginArg {
			if ranges[vi].Start == -1 || ranges[vi].Start > 0 {
				ranges[vi].Start = 0
			}
			if ranges[vi].End == -1 {
				ranges[vi].End = 0
			}
		}
	}

	labels := labelPos(f.Code)
	for {
		changed := false
		for pos, inst := range f.Code {
			if inst.Op != ir.OpJmp && inst.Op != ir.OpJmpCmp && inst.Op != ir.OpJmpEqNull && inst.Op != ir.OpJmpEqNullP {
				continue
			}
			var target string
			for _, a := range inst.Args {
				if a.Label != "" {
					target = a.Label
				}
			}
			lp, ok := labels[target]
			if !ok || lp > pos {
				continue // forward jump: nothing to extend yet
			}
			// Backward jump: every vreg live anywhere in [lp, pos] must
			// be considered live across the whole loop body, since a
			// later iteration may still read a value set in an earlier
			// one.
			for vi := range ranges {
				iv := &ranges[vi]
				if iv.Start == -1 {
					continue
				}
				if iv.Start <= pos && iv.End >= lp && (iv.Start > lp || iv.End < pos) {
					if iv.Start > lp {
						iv.Start = lp
						changed = true
					}
					if iv.End < pos {
						iv.End = pos
						changed = true
					}
				}
			}
		}
		if !changed {
			break
		}
	}

	return ranges
}

// BuildInterference runs phase 3: two vregs interfere iff their
// intervals overlap (share at least one instruction position).
func BuildInterference(ranges []interval) [][]bool {
	n := len(ranges)
	g := make([][]bool, n)
	for i := range g {
		g[i] = make([]bool, n)
	}
	overlap := func(a, b interval) bool {
		if a.Start == -1 || b.Start == -1 {
			return false
		}
		return a.Start <= b.End && b.Start <= a.End
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if overlap(ranges[i], ranges[j]) {
				g[i][j] = true
				g[j][i] = true
			}
		}
	}
	return g
}
