// Package regalloc implements the four-phase register allocator of
// spec.md §4.D: vreg construction (coalescing), live-range construction,
// interference-graph construction, and greedy coloring with a
// retry-until-success spill protocol. It consumes an *ir.Func as
// code-gen leaves it (a flat temp stream, no vreg table) and fills in
// Func.VRegs, TempToReg, Coloring, SpillSlot, and NumSpills.
package regalloc

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/latticeforge/vbcc/internal/ir"
)

// unionFind is a standard disjoint-set structure over temp ids, used to
// coalesce temps that the coalescing-priority rule says must share one
// vreg (spec.md §4.D phase 1).
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}

// originRank orders coalescing priority: argument > local > upvalue >
// temporary. Lower rank wins when two temps merge — the merged vreg
// takes the higher-priority temp's origin/index/name. Every temporary
// carries OriginFresh, so temporaries all share the lowest priority.
func originRank(o ir.VRegOrigin) int {
	switch o {
	case ir.OriginArg:
		return 0
	case ir.OriginLocal:
		return 1
	case ir.OriginUpvalue:
		return 2
	default:
		return 3
	}
}

// BuildVRegs runs phase 1: it scans every tmp load in f.Code, unions a
// temp with whatever prior temp it names (LoadReg: the named temp;
// LoadRegCopy never unions — it always starts a fresh vreg, per
// spec.md §4.D "reg_copy always mints a fresh vreg"), and produces the
// coalesced vreg table plus a temp->vreg index map.
func BuildVRegs(f *ir.Func) {
	n := f.NumTemps
	uf := newUnionFind(n)

	// origin[t] and originIndex[t]/originName[t] record what a temp's
	// own load instruction says about it, prior to any union.
	origin := make([]ir.VRegOrigin, n)
	originIdx := make([]int, n)
	originName := make([]string, n)

	for _, inst := range f.Code {
		if inst.Op != ir.OpTmpLoad || inst.Dst == ir.NoVReg {
			continue
		}
		t := int(inst.Dst)
		if len(inst.Args) == 0 {
			continue
		}
		a := inst.Args[0]
		switch a.Kind {
		case ir.LoadArg:
			origin[t] = ir.OriginArg
			originIdx[t] = a.Small
		case ir.LoadLocal:
			origin[t] = ir.OriginLocal
			originIdx[t] = a.Small
		case ir.LoadUpvalue:
			origin[t] = ir.OriginUpvalue
			originIdx[t] = a.Small
		case ir.LoadReg:
			uf.union(t, int(a.VReg))
		case ir.LoadRegCopy:
			// no union: a deliberately fresh live range
		}
		if inst.Comment != "" {
			originName[t] = inst.Comment
		}
	}

	// Group temps by their representative, then assign each group a
	// stable vreg index in representative-ascending order (keeps output
	// deterministic across runs, spec.md §8 "Determinism").
	groups := make(map[int][]int)
	for t := 0; t < n; t++ {
		r := uf.find(t)
		groups[r] = append(groups[r], t)
	}
	reps := maps.Keys(groups)
	slices.Sort(reps)

	tempToReg := make([]ir.VReg, n)
	vregs := make([]ir.VRegInfo, 0, len(reps))
	for vi, r := range reps {
		members := groups[r]
		slices.Sort(members)
		best := members[0]
		for _, m := range members[1:] {
			if originRank(origin[m]) < originRank(origin[best]) {
				best = m
			}
		}
		info := ir.VRegInfo{Origin: origin[best], Index: originIdx[best], Name: originName[best]}
		vregs = append(vregs, info)
		for _, m := range members {
			tempToReg[m] = ir.VReg(vi)
		}
	}

	f.VRegs = vregs
	f.TempToReg = tempToReg
}
