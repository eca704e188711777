package linker

import (
	"testing"

	"github.com/latticeforge/vbcc/internal/fieldintern"
	"github.com/latticeforge/vbcc/internal/image"
	"github.com/latticeforge/vbcc/internal/inast"
	"github.com/latticeforge/vbcc/internal/ir"
	"github.com/latticeforge/vbcc/internal/types"
)

func buildModule(t *testing.T) (*ir.Module, *fieldintern.Interner) {
	t.Helper()
	i32 := &types.Resolved{Kind: types.Int32}
	interner := fieldintern.New()

	addFn := &inast.Func{
		Name:    "add",
		UID:     2,
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
	mainFn := &inast.Func{
		Name:    "main.main",
		UID:     1,
		Results: []*types.Resolved{i32},
		Body: []*inast.Stmt{{
			Kind: inast.SReturn,
			Exprs: []*inast.Expr{{Kind: inast.EInt, Type: i32, IntVal: 42}},
		}},
	}

	addIR, err := ir.BuildFunc(interner, addFn)
	if err != nil {
		t.Fatalf("BuildFunc(add): %v", err)
	}
	mainIR, err := ir.BuildFunc(interner, mainFn)
	if err != nil {
		t.Fatalf("BuildFunc(main): %v", err)
	}

	m := &ir.Module{
		Funcs: []*ir.Func{mainIR, addIR},
		Main:  "main.main",
	}
	return m, interner
}

func TestLink_ProducesConsistentHeader(t *testing.T) {
	m, interner := buildModule(t)
	img, err := Link(m, interner, Options{})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if len(img.Bytes) < image.HeaderSize {
		t.Fatalf("linked image shorter than the header alone: %d bytes", len(img.Bytes))
	}

	var offs [image.NumSegments]uint64
	for i := range offs {
		lo := i * image.OffsetSize
		var v uint64
		for j := 0; j < 8; j++ {
			v |= uint64(img.Bytes[lo+j]) << (8 * uint(j))
		}
		offs[i] = v
	}
	for i := 0; i < image.NumSegments; i++ {
		if offs[i] < image.HeaderSize || int(offs[i]) > len(img.Bytes) {
			t.Fatalf("segment %d offset %d out of bounds (image length %d)", i, offs[i], len(img.Bytes))
		}
		if i > 0 && offs[i] < offs[i-1] {
			t.Fatalf("segment offsets not monotonically non-decreasing: %v", offs)
		}
	}
}

func TestLink_StampBuildIDAndDigest(t *testing.T) {
	m, interner := buildModule(t)
	img, err := Link(m, interner, Options{StampBuildID: true, ComputeDigest: true})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if img.BuildID == "" {
		t.Fatalf("expected a non-empty build id when StampBuildID is set")
	}
	var zero [32]byte
	if img.Digest == zero {
		t.Fatalf("expected a non-zero digest when ComputeDigest is set")
	}

	m2, interner2 := buildModule(t)
	img2, err := Link(m2, interner2, Options{ComputeDigest: true})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if img2.Digest != img.Digest {
		t.Fatalf("expected identical images to hash identically")
	}
	if img2.BuildID != "" {
		t.Fatalf("expected no build id when StampBuildID is unset")
	}
}

func TestLink_MissingMainFails(t *testing.T) {
	m := &ir.Module{Main: "does.not.exist"}
	if _, err := Link(m, fieldintern.New(), Options{}); err == nil {
		t.Fatalf("expected an error when the entry function is missing")
	}
}

func TestLink_PruneDeadFunctions(t *testing.T) {
	m, interner := buildModule(t)
	i32 := &types.Resolved{Kind: types.Int32}
	deadFn := &inast.Func{
		Name:    "unused",
		UID:     99,
		Results: []*types.Resolved{i32},
		Body: []*inast.Stmt{{
			Kind:  inast.SReturn,
			Exprs: []*inast.Expr{{Kind: inast.EInt, Type: i32, IntVal: 7}},
		}},
	}
	deadIR, err := ir.BuildFunc(interner, deadFn)
	if err != nil {
		t.Fatalf("BuildFunc(unused): %v", err)
	}
	m.Funcs = append(m.Funcs, deadIR)

	imgPruned, err := Link(m, interner, Options{PruneDeadFunctions: true})
	if err != nil {
		t.Fatalf("Link with pruning: %v", err)
	}
	imgFull, err := Link(m, interner, Options{PruneDeadFunctions: false})
	if err != nil {
		t.Fatalf("Link without pruning: %v", err)
	}
	if len(imgPruned.Bytes) >= len(imgFull.Bytes) {
		t.Fatalf("expected pruning to shrink the image: pruned=%d full=%d", len(imgPruned.Bytes), len(imgFull.Bytes))
	}
}
