package ir

import (
	"testing"

	"github.com/latticeforge/vbcc/internal/fieldintern"
	"github.com/latticeforge/vbcc/internal/inast"
	"github.com/latticeforge/vbcc/internal/types"
)

func countOp(code []Instruction, op Opcode) int {
	n := 0
	for _, in := range code {
		if in.Op == op {
			n++
		}
	}
	return n
}

// add(a, b int32) int32 { return a + b }
func TestBuildFunc_SimpleAdd(t *testing.T) {
	i32 := &types.Resolved{Kind: types.Int32}
	fn := &inast.Func{
		Name:    "add",
		UID:     1,
		Params:  []inast.Param{{Name: "a", Type: i32}, {Name: "b", Type: i32}},
		Results: []*types.Resolved{i32},
		Body: []*inast.Stmt{
			{
				Kind: inast.SReturn,
				Exprs: []*inast.Expr{
					{
						Kind: inast.EBinary,
						Type: i32,
						Bin:  inast.BAdd,
						Args: []*inast.Expr{
							{Kind: inast.ERef, Type: i32, Ref: &inast.Ref{Kind: inast.RefArg, Name: "a", Index: 0, Type: i32}},
							{Kind: inast.ERef, Type: i32, Ref: &inast.Ref{Kind: inast.RefArg, Name: "b", Index: 1, Type: i32}},
						},
					},
				},
			},
		},
	}
	interner := fieldintern.New()
	f, err := BuildFunc(interner, fn)
	if err != nil {
		t.Fatalf("BuildFunc: %v", err)
	}
	if f.ArgCount != 2 {
		t.Fatalf("ArgCount = %d, want 2", f.ArgCount)
	}
	if countOp(f.Code, OpAdd) != 1 {
		t.Fatalf("expected exactly one add, got code: %+v", f.Code)
	}
	if countOp(f.Code, OpRet) != 1 {
		t.Fatalf("expected exactly one ret")
	}
	if countOp(f.Code, OpRetVoid) != 0 {
		t.Fatalf("unexpected fn_ret in a value-returning function")
	}
}

// Struct deconstruction with ...rest, spec.md §8 scenario: a struct with
// fields x, y, z deconstructed as {x, ...rest} must bind x directly and
// synthesize rest over {y, z}.
func TestBuildFunc_DeconstructRest(t *testing.T) {
	i32 := &types.Resolved{Kind: types.Int32}
	structTy := &types.Resolved{Kind: types.Struct, Fields: []types.Field{
		{Name: "x", Type: i32, ID: 1},
		{Name: "y", Type: i32, ID: 2},
		{Name: "z", Type: i32, ID: 3},
	}}
	fn := &inast.Func{
		Name:   "unpack",
		UID:    2,
		Params: []inast.Param{{Name: "p", Type: structTy}},
		Body: []*inast.Stmt{
			{
				Kind: inast.SDeconstruct,
				Decon: &inast.Deconstruct{
					Source:     &inast.Expr{Kind: inast.ERef, Type: structTy, Ref: &inast.Ref{Kind: inast.RefArg, Name: "p", Index: 0, Type: structTy}},
					StructType: structTy,
					Fields:     []string{"x"},
					RestName:   "rest",
				},
			},
			{Kind: inast.SReturn},
		},
	}
	interner := fieldintern.New()
	f, err := BuildFunc(interner, fn)
	if err != nil {
		t.Fatalf("BuildFunc: %v", err)
	}
	if countOp(f.Code, OpSAlloc) != 1 {
		t.Fatalf("expected exactly one s_alloc for the rest struct, got code: %+v", f.Code)
	}
	// two remaining fields (y, z) copied into rest
	setFieldCount := countOp(f.Code, OpSSetField)
	if setFieldCount != 2 {
		t.Fatalf("expected 2 s_set_field for remaining fields, got %d", setFieldCount)
	}
}

// Deconstructing every field and also asking for ...rest is a resolution
// error: rest would bind nothing.
func TestBuildFunc_DeconstructRestEmpty(t *testing.T) {
	i32 := &types.Resolved{Kind: types.Int32}
	structTy := &types.Resolved{Kind: types.Struct, Fields: []types.Field{
		{Name: "x", Type: i32, ID: 1},
	}}
	fn := &inast.Func{
		Name: "unpack_all",
		UID:  3,
		Body: []*inast.Stmt{
			{
				Kind: inast.SDeconstruct,
				Decon: &inast.Deconstruct{
					Source:     &inast.Expr{Kind: inast.ENull, Type: structTy},
					StructType: structTy,
					Fields:     []string{"x"},
					RestName:   "rest",
				},
			},
		},
	}
	interner := fieldintern.New()
	_, err := BuildFunc(interner, fn)
	if err == nil {
		t.Fatalf("expected a resolution error for an empty ...rest binding")
	}
}

// A 257-literal sum mints well over 257 temporaries: code-gen itself
// places no cap, so this exercises that NewTemp just keeps counting up.
// The sum is nested to the left, so its temporaries are not all live at
// the same time; the allocator's spill path is covered by
// internal/regalloc's TestAllocate_ForcesSpill instead.
func TestBuildFunc_ManyTemps(t *testing.T) {
	i32 := &types.Resolved{Kind: types.Int32}
	var body []*inast.Stmt
	var sum *inast.Expr
	for i := 0; i < 257; i++ {
		lit := &inast.Expr{Kind: inast.EInt, Type: i32, IntVal: int64(i)}
		if sum == nil {
			sum = lit
			continue
		}
		sum = &inast.Expr{Kind: inast.EBinary, Type: i32, Bin: inast.BAdd, Args: []*inast.Expr{sum, lit}}
	}
	body = append(body, &inast.Stmt{Kind: inast.SReturn, Exprs: []*inast.Expr{sum}})
	fn := &inast.Func{Name: "sum257", UID: 4, Results: []*types.Resolved{i32}, Body: body}

	interner := fieldintern.New()
	f, err := BuildFunc(interner, fn)
	if err != nil {
		t.Fatalf("BuildFunc: %v", err)
	}
	if f.NumTemps < 257 {
		t.Fatalf("NumTemps = %d, want >= 257", f.NumTemps)
	}
}

// if/else lowers to exactly one conditional jump plus the else/end labels.
func TestBuildFunc_IfElse(t *testing.T) {
	i32 := &types.Resolved{Kind: types.Int32}
	cond := &inast.Expr{
		Kind: inast.EBinary, Type: i32, Bin: inast.BLt,
		Args: []*inast.Expr{
			{Kind: inast.EInt, Type: i32, IntVal: 1},
			{Kind: inast.EInt, Type: i32, IntVal: 2},
		},
	}
	fn := &inast.Func{
		Name: "branch",
		UID:  5,
		Body: []*inast.Stmt{
			{
				Kind: inast.SIf,
				Cond: cond,
				Then: []*inast.Stmt{{Kind: inast.SReturn}},
				Else: []*inast.Stmt{{Kind: inast.SReturn}},
			},
		},
	}
	interner := fieldintern.New()
	f, err := BuildFunc(interner, fn)
	if err != nil {
		t.Fatalf("BuildFunc: %v", err)
	}
	if countOp(f.Code, OpJmpCmp) != 1 {
		t.Fatalf("expected exactly one j_cmp, got code: %+v", f.Code)
	}
	if countOp(f.Code, OpLabel) != 2 {
		t.Fatalf("expected else+end labels, got %d", countOp(f.Code, OpLabel))
	}
}

func TestBuildFunc_BreakOutsideLoop(t *testing.T) {
	fn := &inast.Func{
		Name: "bad_break",
		UID:  6,
		Body: []*inast.Stmt{{Kind: inast.SBreak}},
	}
	interner := fieldintern.New()
	_, err := BuildFunc(interner, fn)
	if err == nil {
		t.Fatalf("expected an error for break outside a loop")
	}
}

// invoking an already-allocated closure lowers to closure_call, not call.
func TestBuildFunc_ClosureCall(t *testing.T) {
	i32 := &types.Resolved{Kind: types.Int32}
	closureTy := &types.Resolved{Kind: types.Closure}
	fn := &inast.Func{
		Name: "invoke",
		UID:  7,
		Body: []*inast.Stmt{
			{
				Kind: inast.SExpr,
				Expr: &inast.Expr{
					Kind: inast.EClosureCall, Type: i32,
					Args: []*inast.Expr{
						{Kind: inast.ERef, Type: closureTy, Ref: &inast.Ref{Kind: inast.RefLocal, Name: "c", Index: 0, Type: closureTy}},
						{Kind: inast.EInt, Type: i32, IntVal: 1},
					},
				},
			},
			{Kind: inast.SReturn},
		},
	}
	interner := fieldintern.New()
	f, err := BuildFunc(interner, fn)
	if err != nil {
		t.Fatalf("BuildFunc: %v", err)
	}
	if countOp(f.Code, OpClosureCall) != 1 {
		t.Fatalf("expected exactly one closure_call, got code: %+v", f.Code)
	}
	if countOp(f.Code, OpCall) != 0 {
		t.Fatalf("closure invocation must not lower through call")
	}
	if countOp(f.Code, OpFnGetRetReg) != 1 {
		t.Fatalf("expected a return-value readback after the closure_call")
	}
}

// resuming an already-allocated coroutine lowers to coroutine_call.
func TestBuildFunc_CoroutineCall(t *testing.T) {
	coroTy := &types.Resolved{Kind: types.Coroutine}
	fn := &inast.Func{
		Name: "resume",
		UID:  8,
		Body: []*inast.Stmt{
			{
				Kind: inast.SExpr,
				Expr: &inast.Expr{
					Kind: inast.ECoroutineCall,
					Args: []*inast.Expr{
						{Kind: inast.ERef, Type: coroTy, Ref: &inast.Ref{Kind: inast.RefLocal, Name: "co", Index: 0, Type: coroTy}},
					},
				},
			},
			{Kind: inast.SReturn},
		},
	}
	interner := fieldintern.New()
	f, err := BuildFunc(interner, fn)
	if err != nil {
		t.Fatalf("BuildFunc: %v", err)
	}
	if countOp(f.Code, OpCoroutineCall) != 1 {
		t.Fatalf("expected exactly one coroutine_call, got code: %+v", f.Code)
	}
}

// testing a nullable reference for null lowers to j_eq_null_<w>, chosen
// by the wrapped type's width, not the Reference wrapper's own
// always-true IsPointer.
func TestBuildFunc_NullCheckNarrowScalar(t *testing.T) {
	i32 := &types.Resolved{Kind: types.Int32}
	refTy := &types.Resolved{Kind: types.Reference, Elem: i32}
	fn := &inast.Func{
		Name: "is_null",
		UID:  9,
		Body: []*inast.Stmt{
			{
				Kind: inast.SIf,
				Cond: &inast.Expr{
					Kind: inast.ENullCheck, NullIsTrue: true,
					Args: []*inast.Expr{
						{Kind: inast.ERef, Type: refTy, Ref: &inast.Ref{Kind: inast.RefLocal, Name: "n", Index: 0, Type: refTy}},
					},
				},
				Then: []*inast.Stmt{{Kind: inast.SReturn}},
			},
			{Kind: inast.SReturn},
		},
	}
	interner := fieldintern.New()
	f, err := BuildFunc(interner, fn)
	if err != nil {
		t.Fatalf("BuildFunc: %v", err)
	}
	if countOp(f.Code, OpJmpEqNullP) != 0 {
		t.Fatalf("a nullable int32 must not use the pointer-width null check")
	}
	if countOp(f.Code, OpJmpEqNull) != 1 {
		t.Fatalf("expected exactly one width-tagged j_eq_null, got code: %+v", f.Code)
	}
}

// a struct literal whose type carries a template identity allocates via
// s_alloc_t, referencing the template directly instead of an ad hoc
// field count.
func TestBuildFunc_StructLitTemplate(t *testing.T) {
	i32 := &types.Resolved{Kind: types.Int32}
	structTy := &types.Resolved{
		Kind: types.Struct, HasTemplate: true, TemplateID: 42,
		Fields: []types.Field{{Name: "x", Type: i32, ID: 1}},
	}
	fn := &inast.Func{
		Name: "make_point",
		UID:  10,
		Body: []*inast.Stmt{
			{
				Kind: inast.SReturn,
				Exprs: []*inast.Expr{
					{Kind: inast.EStructLit, Type: structTy, StructType: structTy, Args: []*inast.Expr{
						{Kind: inast.EInt, Type: i32, IntVal: 1},
					}},
				},
			},
		},
	}
	interner := fieldintern.New()
	f, err := BuildFunc(interner, fn)
	if err != nil {
		t.Fatalf("BuildFunc: %v", err)
	}
	if countOp(f.Code, OpSAllocT) != 1 {
		t.Fatalf("expected exactly one s_alloc_t for a templated struct, got code: %+v", f.Code)
	}
	if countOp(f.Code, OpSAlloc) != 0 {
		t.Fatalf("a templated struct literal must not fall back to s_alloc")
	}
}

// a struct literal with no template identity (e.g. synthesized at
// lowering time) still falls back to ad hoc s_alloc.
func TestBuildFunc_StructLitNoTemplate(t *testing.T) {
	i32 := &types.Resolved{Kind: types.Int32}
	structTy := &types.Resolved{Kind: types.Struct, Fields: []types.Field{{Name: "x", Type: i32, ID: 1}}}
	fn := &inast.Func{
		Name: "make_rest",
		UID:  11,
		Body: []*inast.Stmt{
			{
				Kind: inast.SReturn,
				Exprs: []*inast.Expr{
					{Kind: inast.EStructLit, Type: structTy, StructType: structTy, Args: []*inast.Expr{
						{Kind: inast.EInt, Type: i32, IntVal: 1},
					}},
				},
			},
		},
	}
	interner := fieldintern.New()
	f, err := BuildFunc(interner, fn)
	if err != nil {
		t.Fatalf("BuildFunc: %v", err)
	}
	if countOp(f.Code, OpSAlloc) != 1 {
		t.Fatalf("expected exactly one s_alloc for an untemplated struct, got code: %+v", f.Code)
	}
	if countOp(f.Code, OpSAllocT) != 0 {
		t.Fatalf("an untemplated struct literal must not use s_alloc_t")
	}
}
