package encoder

import (
	"testing"

	"github.com/latticeforge/vbcc/internal/fieldintern"
	"github.com/latticeforge/vbcc/internal/inast"
	"github.com/latticeforge/vbcc/internal/ir"
	"github.com/latticeforge/vbcc/internal/regalloc"
	"github.com/latticeforge/vbcc/internal/types"
)

func buildAndAllocate(t *testing.T) *ir.Func {
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
	regalloc.Allocate(f)
	return f
}

func TestEncodeFunc_NoUnresolvedLabels(t *testing.T) {
	f := buildAndAllocate(t)
	res, err := EncodeFunc(f)
	if err != nil {
		t.Fatalf("EncodeFunc: %v", err)
	}
	if len(res.Code) == 0 {
		t.Fatalf("expected a non-empty encoded body")
	}
	for name, sites := range res.Unresolved {
		if _, ok := res.Labels[name]; !ok {
			t.Fatalf("label %q referenced at %d sites never defined within the function", name, len(sites))
		}
	}
}

func TestEncodeFunc_StringConstant(t *testing.T) {
	fn := &inast.Func{
		Name: "greet",
		UID:  2,
		Body: []*inast.Stmt{{
			Kind:  inast.SExpr,
			Expr:  &inast.Expr{Kind: inast.EString, Type: &types.Resolved{Kind: types.Array}, StrVal: "hi"},
		}, {Kind: inast.SReturn}},
	}
	f, err := ir.BuildFunc(fieldintern.New(), fn)
	if err != nil {
		t.Fatalf("BuildFunc: %v", err)
	}
	regalloc.Allocate(f)
	res, err := EncodeFunc(f)
	if err != nil {
		t.Fatalf("EncodeFunc: %v", err)
	}
	if len(res.Consts) != 1 || res.Consts[0] != "hi" {
		t.Fatalf("expected one constant %q, got %v", "hi", res.Consts)
	}
	if len(res.ConstRefs["hi"]) != 1 {
		t.Fatalf("expected exactly one patch site for the constant")
	}
}
