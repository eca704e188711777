package regalloc

import (
	"testing"

	"github.com/latticeforge/vbcc/internal/fieldintern"
	"github.com/latticeforge/vbcc/internal/inast"
	"github.com/latticeforge/vbcc/internal/ir"
	"github.com/latticeforge/vbcc/internal/types"
)

func buildAdd(t *testing.T) *ir.Func {
	t.Helper()
	i32 := &types.Resolved{Kind: types.Int32}
	fn := &inast.Func{
		Name:    "add",
		UID:     1,
		Params:  []inast.Param{{Name: "a", Type: i32}, {Name: "b", Type: i32}},
		Results: []*types.Resolved{i32},
		Body: []*inast.Stmt{{
			Kind: inast.SReturn,
			Exprs: []*inast.Expr{{
				Kind: inast.EBinary, Type: i32, Bin: inast.BAdd,
				Args: []*inast.Expr{
					{Kind: inast.ERef, Type: i32, Ref: &inast.Ref{Kind: inast.RefArg, Name: "a", Index: 0, Type: i32}},
					{Kind: inast.ERef, Type: i32, Ref: &inast.Ref{Kind: inast.RefArg, Name: "b", Index: 1, Type: i32}},
				},
			}},
		}},
	}
	f, err := ir.BuildFunc(fieldintern.New(), fn)
	if err != nil {
		t.Fatalf("BuildFunc: %v", err)
	}
	return f
}

func TestAllocate_NoSpillSimple(t *testing.T) {
	f := buildAdd(t)
	Allocate(f)
	if len(f.VRegs) == 0 {
		t.Fatalf("expected a non-empty vreg table")
	}
	if f.NumSpills != 0 {
		t.Fatalf("expected no spills for a tiny function, got %d", f.NumSpills)
	}
	// Pinned argument vregs must hold their argument-index color.
	for vi, info := range f.VRegs {
		if info.Origin == ir.OriginArg {
			if c := f.Coloring[ir.VReg(vi)]; c != info.Index {
				t.Fatalf("argument vreg %d colored %d, want pinned %d", vi, c, info.Index)
			}
		}
	}
}

// Live-range soundness: any two distinct, simultaneously colored vregs
// must have disjoint intervals.
func TestAllocate_ColoringSound(t *testing.T) {
	f := buildAdd(t)
	Allocate(f)
	BuildVRegs(f)
	ranges := BuildLiveRanges(f)
	for i := range f.VRegs {
		for j := i + 1; j < len(f.VRegs); j++ {
			ci, oki := f.Coloring[ir.VReg(i)]
			cj, okj := f.Coloring[ir.VReg(j)]
			if !oki || !okj || ci != cj {
				continue
			}
			a, b := ranges[i], ranges[j]
			if a.Start <= b.End && b.Start <= a.End {
				t.Fatalf("vregs %d and %d share color %d but overlap: %+v / %+v", i, j, ci, a, b)
			}
		}
	}
}

// A function with more simultaneously-live 32-bit temps than available
// colors must spill at least one, and the emitted code must carry
// exactly one alloc_spill at the front with a slot count matching
// NumSpills.
func TestAllocate_ForcesSpill(t *testing.T) {
	i32 := &types.Resolved{Kind: types.Int32}
	var body []*inast.Stmt
	var temps []*inast.Expr
	const n = MaxColor + 20
	for i := 0; i < n; i++ {
		temps = append(temps, &inast.Expr{Kind: inast.EInt, Type: i32, IntVal: int64(i)})
	}
	// nest the sum to the right (t0 + (t1 + (... + tn-1))): code-gen
	// evaluates each left operand before its right subtree, so all n
	// literal loads are emitted before the first add and stay live
	// simultaneously until the reduction reaches them (no temp is
	// destroyed until the last op that reads it).
	acc := temps[n-1]
	for i := n - 2; i >= 0; i-- {
		acc = &inast.Expr{Kind: inast.EBinary, Type: i32, Bin: inast.BAdd, Args: []*inast.Expr{temps[i], acc}}
	}
	body = append(body, &inast.Stmt{Kind: inast.SReturn, Exprs: []*inast.Expr{acc}})
	fn := &inast.Func{Name: "wide", UID: 9, Results: []*types.Resolved{i32}, Body: body}

	f, err := ir.BuildFunc(fieldintern.New(), fn)
	if err != nil {
		t.Fatalf("BuildFunc: %v", err)
	}
	Allocate(f)
	if f.NumSpills < 1 {
		t.Fatalf("expected at least one spill for %d simultaneously-referenced temps", n)
	}
	if f.Code[0].Op != ir.OpAllocSpill {
		t.Fatalf("expected alloc_spill as the first instruction, got %v", f.Code[0].Op)
	}
	if f.Code[0].Args[0].Small != f.NumSpills {
		t.Fatalf("alloc_spill slot count = %d, want %d", f.Code[0].Args[0].Small, f.NumSpills)
	}
	spillCount := 0
	unspillCount := 0
	for _, inst := range f.Code {
		switch inst.Op {
		case ir.OpSpill:
			spillCount++
		case ir.OpUnspill:
			unspillCount++
		}
	}
	if spillCount != unspillCount {
		t.Fatalf("spill/unspill count mismatch: %d spills, %d unspills", spillCount, unspillCount)
	}
	if spillCount == 0 {
		t.Fatalf("expected at least one spill/unspill pair")
	}
}
