package ir

import (
	"fmt"

	"github.com/latticeforge/vbcc/internal/diag"
	"github.com/latticeforge/vbcc/internal/fieldintern"
	"github.com/latticeforge/vbcc/internal/inast"
	"github.com/latticeforge/vbcc/internal/types"
)

// FuncBuilder lowers one already-type-checked inast.Func into IR,
// matching the non-exhaustive rule list of spec.md §4.C. It is the
// Component D of the pipeline (§2): it walks the function body once,
// emitting instructions in program order (the only thing later phases
// trust) and tracking a srcmap_push_loc/srcmap_pop_loc stack.
type FuncBuilder struct {
	fn       *Func
	interner *fieldintern.Interner

	argTemp  map[string]VReg // param name -> its canonical load's temp (first load wins; later loads re-mint but reference the same symbol index)
	localIdx map[string]int
	upvalIdx map[string]int

	locals   []inast.Param
	upvalues []inast.Param
	params   []inast.Param

	labelSeq int
	locStack []diag.Loc

	loopBreak    []string
	loopContinue []string

	errs []error
}

// BuildFunc lowers fn into an *ir.Func. It returns the first error
// encountered (spec.md §7: the back end recovers nothing internally).
func BuildFunc(interner *fieldintern.Interner, fn *inast.Func) (*Func, error) {
	b := &FuncBuilder{
		fn: &Func{
			Name:     fn.Name,
			UID:      fn.UID,
			ArgCount: len(fn.Params),
			RetTypes: fn.Results,
		},
		interner: interner,
		argTemp:  make(map[string]VReg),
		localIdx: make(map[string]int),
		upvalIdx: make(map[string]int),
		params:   fn.Params,
		upvalues: fn.Upvalues,
	}
	for i, u := range fn.Upvalues {
		b.upvalIdx[u.Name] = i
	}
	// Reserve the pinned argument temps up front: spec.md §4.D says
	// "Arguments' live ranges begin at position 0 regardless of first
	// read", which the allocator can only honor if every argument has a
	// temp to anchor on even when the body never loads it.
	for i, p := range fn.Params {
		t := b.fn.NewTemp()
		b.fn.Emit(Instruction{
			Op: OpTmpLoad, Dst: t, Width: widthOrZero(p.Type), Args: []Operand{{Kind: LoadArg, Small: i}},
			Loc: b.loc(),
		})
		b.argTemp[p.Name] = t
	}

	for _, stmt := range fn.Body {
		b.stmt(stmt)
	}
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	return b.fn, nil
}

func (b *FuncBuilder) fail(loc diag.Loc, kind diag.Kind, format string, args ...any) {
	b.errs = append(b.errs, diag.New(kind, loc, format, args...))
}

func (b *FuncBuilder) loc() diag.Loc {
	if len(b.locStack) == 0 {
		return diag.Loc{}
	}
	return b.locStack[len(b.locStack)-1]
}

func (b *FuncBuilder) pushLoc(l inast.Loc) {
	loc := diag.Loc{File: l.File, Line: l.Line, Col: l.Col, Func: b.fn.Name}
	b.locStack = append(b.locStack, loc)
	b.fn.Emit(Instruction{Op: OpSrcmapPush, Loc: loc})
}

func (b *FuncBuilder) popLoc() {
	if len(b.locStack) == 0 {
		return
	}
	b.locStack = b.locStack[:len(b.locStack)-1]
	b.fn.Emit(Instruction{Op: OpSrcmapPop, Loc: b.loc()})
}

func (b *FuncBuilder) newLabel() string {
	b.labelSeq++
	return fmt.Sprintf("L%d", b.labelSeq)
}

// widthOrZero returns SizeOf(t), or 0 (void/untyped) on error — used in
// contexts where a zero-value type is legitimate (e.g. an untyped param
// placeholder is never constructed by well-formed input, but this keeps
// the builder itself panic-free).
func widthOrZero(t *types.Resolved) int {
	w, err := types.SizeOf(t)
	if err != nil {
		return 0
	}
	return w
}

func widthTag(t *types.Resolved) (width int, signed bool, float bool, err error) {
	if t == nil {
		return 0, false, false, fmt.Errorf("widthTag: nil type")
	}
	width, err = types.SizeOf(t)
	if err != nil {
		return 0, false, false, err
	}
	switch t.Kind {
	case types.Float32, types.Float64:
		return width, false, true, nil
	case types.Int8, types.Int16, types.Int32, types.Int64:
		return width, true, false, nil
	default:
		return width, false, false, nil
	}
}

// ---- statements ----

func (b *FuncBuilder) stmt(s *inast.Stmt) {
	if s == nil {
		return
	}
	b.pushLoc(s.Loc)
	defer b.popLoc()

	switch s.Kind {
	case inast.SExpr:
		t, _ := b.expr(s.Expr)
		b.destroy(t)
	case inast.SVarDecl:
		b.varDecl(s)
	case inast.SAssign:
		b.assign(s)
	case inast.SFieldSet:
		b.fieldSet(s)
	case inast.SIndexSet:
		b.indexSet(s)
	case inast.SIf:
		b.ifStmt(s)
	case inast.SFor:
		b.forStmt(s)
	case inast.SReturn:
		b.returnStmt(s)
	case inast.SBlock:
		for _, sub := range s.Then {
			b.stmt(sub)
		}
	case inast.SDeconstruct:
		b.deconstruct(s)
	case inast.SBreak:
		if len(b.loopBreak) == 0 {
			b.fail(b.loc(), diag.ResolutionError, "break outside of a loop")
			return
		}
		b.fn.Emit(Instruction{Op: OpJmp, Args: []Operand{LabelOp(b.loopBreak[len(b.loopBreak)-1])}, Loc: b.loc()})
	case inast.SContinue:
		if len(b.loopContinue) == 0 {
			b.fail(b.loc(), diag.ResolutionError, "continue outside of a loop")
			return
		}
		b.fn.Emit(Instruction{Op: OpJmp, Args: []Operand{LabelOp(b.loopContinue[len(b.loopContinue)-1])}, Loc: b.loc()})
	default:
		b.fail(b.loc(), diag.ResolutionError, "unhandled statement kind %d", s.Kind)
	}
}

// destroy emits destroy_tmp for a transient expression temporary. Named
// storage (arguments, locals, upvalues) is never destroyed this way —
// only anonymous intermediate values.
func (b *FuncBuilder) destroy(t VReg) {
	if t == NoVReg {
		return
	}
	b.fn.Emit(Instruction{Op: OpDestroyTmp, Dst: NoVReg, Args: []Operand{Reg(t)}, Loc: b.loc()})
}

func (b *FuncBuilder) varDecl(s *inast.Stmt) {
	idx := len(b.locals)
	b.locals = append(b.locals, inast.Param{Name: s.Target.Name, Type: s.Target.Type})
	b.localIdx[s.Target.Name] = idx
	if s.Value == nil {
		return
	}
	v, _ := b.expr(s.Value)
	b.storeLocal(idx, s.Target.Type, v)
}

func (b *FuncBuilder) storeLocal(idx int, ty *types.Resolved, v VReg) {
	w, signed, float, err := widthTag(ty)
	if err != nil {
		b.fail(b.loc(), diag.TypeError, "%v", err)
		return
	}
	b.fn.Emit(Instruction{
		Op: OpLocalSet, Width: w, Signed: signed, Float: float, Ptr: types.IsPointer(ty),
		Args: []Operand{SmallOp(idx), Reg(v)}, Loc: b.loc(),
	})
}

func (b *FuncBuilder) assign(s *inast.Stmt) {
	v, _ := b.expr(s.Value)
	switch s.Target.Kind {
	case inast.RefLocal:
		idx, ok := b.localIdx[s.Target.Name]
		if !ok {
			b.fail(b.loc(), diag.ResolutionError, "assignment to undeclared local %q", s.Target.Name)
			return
		}
		b.storeLocal(idx, s.Target.Type, v)
	case inast.RefArg:
		b.argTemp[s.Target.Name] = v
	case inast.RefGlobal:
		w, signed, float, err := widthTag(s.Target.Type)
		if err != nil {
			b.fail(b.loc(), diag.TypeError, "%v", err)
			return
		}
		b.fn.Emit(Instruction{
			Op: OpGlobalSet, Width: w, Signed: signed, Float: float, Ptr: types.IsPointer(s.Target.Type),
			Args: []Operand{SymbolOp(s.Target.UID), Reg(v)}, Loc: b.loc(),
		})
	default:
		b.fail(b.loc(), diag.ResolutionError, "invalid assignment target kind %d", s.Target.Kind)
	}
}

func (b *FuncBuilder) fieldSet(s *inast.Stmt) {
	obj, _ := b.expr(s.FieldTarget)
	v, _ := b.expr(s.Value)
	fieldID := b.interner.ID(s.FieldName)
	ty := s.Value.Type
	w, signed, float, err := widthTag(ty)
	if err != nil {
		b.fail(b.loc(), diag.TypeError, "%v", err)
		return
	}
	op := OpSSetField
	if s.FieldTarget.Type != nil && s.FieldTarget.Type.Kind == types.Class {
		op = OpCSetField
	}
	b.fn.Emit(Instruction{
		Op: op, Width: w, Signed: signed, Float: float, Ptr: types.IsPointer(ty),
		Args: []Operand{Reg(obj), SymbolOp(fieldID), Reg(v)}, Comment: s.FieldName, Loc: b.loc(),
	})
	b.destroy(obj)
	b.destroy(v)
}

func (b *FuncBuilder) indexSet(s *inast.Stmt) {
	obj, _ := b.expr(s.FieldTarget)
	idx, _ := b.expr(s.IndexExpr)
	v, _ := b.expr(s.Value)
	w, signed, float, err := widthTag(s.Value.Type)
	if err != nil {
		b.fail(b.loc(), diag.TypeError, "%v", err)
		return
	}
	b.fn.Emit(Instruction{
		Op: OpASetIndex, Width: w, Signed: signed, Float: float, Ptr: types.IsPointer(s.Value.Type),
		Args: []Operand{Reg(obj), Reg(idx), Reg(v)}, Loc: b.loc(),
	})
	b.destroy(obj)
	b.destroy(idx)
	b.destroy(v)
}

func (b *FuncBuilder) ifStmt(s *inast.Stmt) {
	elseLabel := b.newLabel()
	endLabel := b.newLabel()
	b.emitCondJump(s.Cond, elseLabel, true)
	for _, sub := range s.Then {
		b.stmt(sub)
	}
	if len(s.Else) > 0 {
		b.fn.Emit(Instruction{Op: OpJmp, Args: []Operand{LabelOp(endLabel)}, Loc: b.loc()})
	}
	b.fn.Emit(Instruction{Op: OpLabel, Args: []Operand{LabelOp(elseLabel)}, Loc: b.loc()})
	for _, sub := range s.Else {
		b.stmt(sub)
	}
	if len(s.Else) > 0 {
		b.fn.Emit(Instruction{Op: OpLabel, Args: []Operand{LabelOp(endLabel)}, Loc: b.loc()})
	}
}

func (b *FuncBuilder) forStmt(s *inast.Stmt) {
	top := b.newLabel()
	cont := b.newLabel()
	end := b.newLabel()
	b.loopBreak = append(b.loopBreak, end)
	b.loopContinue = append(b.loopContinue, cont)

	b.fn.Emit(Instruction{Op: OpLabel, Args: []Operand{LabelOp(top)}, Loc: b.loc()})
	if s.Cond != nil {
		b.emitCondJump(s.Cond, end, true)
	}
	for _, sub := range s.Then {
		b.stmt(sub)
	}
	b.fn.Emit(Instruction{Op: OpLabel, Args: []Operand{LabelOp(cont)}, Loc: b.loc()})
	b.fn.Emit(Instruction{Op: OpJmp, Args: []Operand{LabelOp(top)}, Loc: b.loc()})
	b.fn.Emit(Instruction{Op: OpLabel, Args: []Operand{LabelOp(end)}, Loc: b.loc()})

	b.loopBreak = b.loopBreak[:len(b.loopBreak)-1]
	b.loopContinue = b.loopContinue[:len(b.loopContinue)-1]
}

// emitCondJump lowers cond and emits a j_cmp_<w> (or j_eq_null_<w> for a
// nil comparison) to label when the condition's truth value equals
// jumpWhenFalse's negation — i.e. jumpWhenFalse=true means "jump to label
// if cond is false" (used by if/for to skip the body).
func (b *FuncBuilder) emitCondJump(cond *inast.Expr, label string, jumpWhenFalse bool) {
	if cond.Kind == inast.ENullCheck {
		v, _ := b.expr(cond.Args[0])
		jumpWhenNull := cond.NullIsTrue
		if jumpWhenFalse {
			jumpWhenNull = !jumpWhenNull
		}
		b.emitNullJump(v, cond.Args[0].Type, label, jumpWhenNull)
		b.destroy(v)
		return
	}
	if cond.Kind == inast.EBinary && isComparison(cond.Bin) {
		lhs, _ := b.expr(cond.Args[0])
		rhs, _ := b.expr(cond.Args[1])
		w, signed, float, err := widthTag(cond.Args[0].Type)
		if err != nil {
			b.fail(b.loc(), diag.TypeError, "%v", err)
			return
		}
		cmp := cmpKindFor(cond.Bin)
		if jumpWhenFalse {
			cmp = negateCmp(cmp)
		}
		b.fn.Emit(Instruction{
			Op: OpJmpCmp, Width: w, Signed: signed, Float: float,
			Args: []Operand{Reg(lhs), Reg(rhs), SmallOp(int(cmp)), LabelOp(label)}, Loc: b.loc(),
		})
		b.destroy(lhs)
		b.destroy(rhs)
		return
	}
	v, _ := b.expr(cond)
	cmp := CmpEq
	if !jumpWhenFalse {
		cmp = CmpNe
	}
	zero := b.fn.NewTemp()
	b.fn.Emit(Instruction{Op: OpTmpLoad, Dst: zero, Width: 1, Args: []Operand{{Kind: LoadImm}}, Loc: b.loc()})
	b.fn.Emit(Instruction{
		Op: OpJmpCmp, Width: 1, Args: []Operand{Reg(v), Reg(zero), SmallOp(int(cmp)), LabelOp(label)}, Loc: b.loc(),
	})
	b.destroy(v)
	b.destroy(zero)
}

func isComparison(op inast.BinOp) bool {
	switch op {
	case inast.BEq, inast.BNe, inast.BLt, inast.BLe, inast.BGt, inast.BGe:
		return true
	default:
		return false
	}
}

func cmpKindFor(op inast.BinOp) CmpKind {
	switch op {
	case inast.BEq:
		return CmpEq
	case inast.BNe:
		return CmpNe
	case inast.BLt:
		return CmpLt
	case inast.BLe:
		return CmpLe
	case inast.BGt:
		return CmpGt
	case inast.BGe:
		return CmpGe
	default:
		return CmpEq
	}
}

func negateCmp(c CmpKind) CmpKind {
	switch c {
	case CmpEq:
		return CmpNe
	case CmpNe:
		return CmpEq
	case CmpLt:
		return CmpGe
	case CmpLe:
		return CmpGt
	case CmpGt:
		return CmpLe
	case CmpGe:
		return CmpLt
	default:
		return c
	}
}

func (b *FuncBuilder) returnStmt(s *inast.Stmt) {
	if len(s.Exprs) == 0 {
		b.fn.Emit(Instruction{Op: OpRetVoid, Loc: b.loc()})
		return
	}
	for i, e := range s.Exprs {
		v, _ := b.expr(e)
		w, signed, float, err := widthTag(e.Type)
		if err != nil {
			b.fail(b.loc(), diag.TypeError, "%v", err)
			continue
		}
		b.fn.Emit(Instruction{
			Op: OpRet, Width: w, Signed: signed, Float: float, Ptr: types.IsPointer(e.Type),
			Args: []Operand{Reg(v), SmallOp(i)}, Loc: b.loc(),
		})
		b.destroy(v)
	}
}

// deconstruct lowers `let {a, b, ...rest} = f()` per spec.md §4.C. rest
// synthesizes a new struct type over the fields not named explicitly; a
// deconstruction that names every field and also asks for ...rest is a
// fatal resolution error, since rest would carry zero fields.
func (b *FuncBuilder) deconstruct(s *inast.Stmt) {
	d := s.Decon
	src, _ := b.expr(d.Source)
	named := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		named[f] = true
	}

	var remaining []types.Field
	for _, f := range d.StructType.Fields {
		if !named[f.Name] {
			remaining = append(remaining, f)
		}
	}
	if d.RestName != "" && len(remaining) == 0 {
		b.fail(b.loc(), diag.ResolutionError, "all fields of %s have been deconstructed: ...%s would bind nothing", typeName(d.StructType), d.RestName)
		return
	}

	for _, name := range d.Fields {
		var field *types.Field
		for i := range d.StructType.Fields {
			if d.StructType.Fields[i].Name == name {
				field = &d.StructType.Fields[i]
				break
			}
		}
		if field == nil {
			b.fail(b.loc(), diag.ResolutionError, "struct %s has no field %q", typeName(d.StructType), name)
			continue
		}
		w, signed, float, err := widthTag(field.Type)
		if err != nil {
			b.fail(b.loc(), diag.TypeError, "%v", err)
			continue
		}
		dst := b.fn.NewTemp()
		fieldID := b.interner.ID(name)
		b.fn.Emit(Instruction{
			Op: OpTmpLoad, Dst: dst, Width: w, Signed: signed, Float: float, Ptr: types.IsPointer(field.Type),
			Args: []Operand{{Kind: LoadReg, VReg: src}, SymbolOp(fieldID)}, Comment: name, Loc: b.loc(),
		})
		idx := len(b.locals)
		b.locals = append(b.locals, inast.Param{Name: name, Type: field.Type})
		b.localIdx[name] = idx
		b.storeLocal(idx, field.Type, dst)
	}

	if d.RestName != "" {
		restType := &types.Resolved{Kind: types.Struct, Fields: remaining}
		idx := len(b.locals)
		b.locals = append(b.locals, inast.Param{Name: d.RestName, Type: restType})
		b.localIdx[d.RestName] = idx
		// The rest value is itself a struct: allocate one and copy the
		// remaining fields across field-by-field.
		restObj := b.fn.NewTemp()
		b.fn.Emit(Instruction{Op: OpSAlloc, Dst: restObj, Args: []Operand{SmallOp(len(remaining))}, Loc: b.loc()})
		for _, f := range remaining {
			w, signed, float, err := widthTag(f.Type)
			if err != nil {
				continue
			}
			tmp := b.fn.NewTemp()
			srcFieldID := b.interner.ID(f.Name)
			b.fn.Emit(Instruction{
				Op: OpTmpLoad, Dst: tmp, Width: w, Signed: signed, Float: float, Ptr: types.IsPointer(f.Type),
				Args: []Operand{{Kind: LoadReg, VReg: src}, SymbolOp(srcFieldID)}, Comment: f.Name, Loc: b.loc(),
			})
			b.fn.Emit(Instruction{
				Op: OpSSetField, Width: w, Signed: signed, Float: float, Ptr: types.IsPointer(f.Type),
				Args: []Operand{Reg(restObj), SymbolOp(srcFieldID), Reg(tmp)}, Comment: f.Name, Loc: b.loc(),
			})
			b.destroy(tmp)
		}
		b.storeLocal(idx, restType, restObj)
		b.destroy(restObj)
	}
	b.destroy(src)
}

func typeName(t *types.Resolved) string {
	if t == nil {
		return "<void>"
	}
	return "struct"
}

// ---- expressions ----

func (b *FuncBuilder) expr(e *inast.Expr) (VReg, error) {
	switch e.Kind {
	case inast.EInt:
		return b.loadImm(e.IntVal, e.Type), nil
	case inast.EBool:
		v := int64(0)
		if e.BoolVal {
			v = 1
		}
		return b.loadImm(v, e.Type), nil
	case inast.EFloat:
		return b.loadFloatImm(e.FloatVal, e.Type), nil
	case inast.ENull:
		return b.loadImm(0, e.Type), nil
	case inast.EString:
		return b.loadString(e.StrVal), nil
	case inast.ERef:
		return b.loadRef(e.Ref), nil
	case inast.EBinary:
		return b.binary(e)
	case inast.EUnary:
		return b.unary(e)
	case inast.ECall:
		return b.call(e)
	case inast.ECallPtr:
		return b.callPtr(e)
	case inast.EFieldGet:
		return b.fieldGet(e)
	case inast.EIndexGet:
		return b.indexGet(e)
	case inast.EStructLit:
		return b.structLit(e)
	case inast.ECast:
		return b.cast(e)
	case inast.EClosureMake:
		return b.closureMake(e)
	case inast.ECoroutineMake:
		return b.coroutineMake(e)
	case inast.EClosureCall:
		return b.closureCall(e)
	case inast.ECoroutineCall:
		return b.coroutineCall(e)
	case inast.ENullCheck:
		return b.nullCheckValue(e), nil
	default:
		b.fail(b.loc(), diag.ResolutionError, "unhandled expression kind %d", e.Kind)
		return NoVReg, fmt.Errorf("unhandled expression kind %d", e.Kind)
	}
}

func (b *FuncBuilder) loadImm(v int64, ty *types.Resolved) VReg {
	w, signed, float, err := widthTag(ty)
	if err != nil {
		w = 4
	}
	dst := b.fn.NewTemp()
	b.fn.Emit(Instruction{
		Op: OpTmpLoad, Dst: dst, Width: w, Signed: signed, Float: float,
		Args: []Operand{{Kind: LoadImm, Imm: v}}, Loc: b.loc(),
	})
	return dst
}

func (b *FuncBuilder) loadFloatImm(v float64, ty *types.Resolved) VReg {
	w, _, _, err := widthTag(ty)
	if err != nil {
		w = 8
	}
	dst := b.fn.NewTemp()
	b.fn.Emit(Instruction{
		Op: OpTmpLoad, Dst: dst, Width: w, Float: true,
		Args: []Operand{{Kind: LoadImm, FImm: v, IsFloat: true}}, Loc: b.loc(),
	})
	return dst
}

// loadString lowers a string literal: allocate a byte array of the
// right length, then store each byte element-wise from the constant
// pool (spec.md §4.C "Strings").
func (b *FuncBuilder) loadString(s string) VReg {
	arr := b.fn.NewTemp()
	b.fn.Emit(Instruction{Op: OpAAlloc, Dst: arr, Width: 1, Args: []Operand{SmallOp(len(s)), SmallOp(1)}, Loc: b.loc()})
	constOff := b.fn.NewTemp()
	b.fn.Emit(Instruction{
		Op: OpTmpLoad, Dst: constOff, Width: 1, Args: []Operand{{Kind: LoadConst, Label: s}}, Loc: b.loc(),
	})
	b.fn.Emit(Instruction{Op: OpAStorefConst, Args: []Operand{Reg(arr), SmallOp(0), SmallOp(len(s)), Reg(constOff)}, Loc: b.loc()})
	b.destroy(constOff)
	return arr
}

func (b *FuncBuilder) loadRef(r *inast.Ref) VReg {
	w, signed, float, _ := widthTag(r.Type)
	dst := b.fn.NewTemp()
	switch r.Kind {
	case inast.RefArg:
		home, ok := b.argTemp[r.Name]
		if ok {
			b.fn.Emit(Instruction{Op: OpTmpLoad, Dst: dst, Width: w, Signed: signed, Float: float,
				Args: []Operand{{Kind: LoadReg, VReg: home}}, Loc: b.loc()})
			return dst
		}
		idx := r.Index
		b.fn.Emit(Instruction{Op: OpTmpLoad, Dst: dst, Width: w, Signed: signed, Float: float,
			Args: []Operand{{Kind: LoadArg, Small: idx}}, Loc: b.loc()})
	case inast.RefLocal:
		idx, ok := b.localIdx[r.Name]
		if !ok {
			idx = r.Index
		}
		b.fn.Emit(Instruction{Op: OpTmpLoad, Dst: dst, Width: w, Signed: signed, Float: float,
			Args: []Operand{{Kind: LoadLocal, Small: idx}}, Loc: b.loc()})
	case inast.RefUpvalue:
		idx, ok := b.upvalIdx[r.Name]
		if !ok {
			idx = r.Index
		}
		b.fn.Emit(Instruction{Op: OpTmpLoad, Dst: dst, Width: w, Signed: signed, Float: float,
			Args: []Operand{{Kind: LoadUpvalue, Small: idx}}, Loc: b.loc()})
	case inast.RefGlobal:
		b.fn.Emit(Instruction{Op: OpTmpLoad, Dst: dst, Width: w, Signed: signed, Float: float,
			Args: []Operand{{Kind: LoadGlobal, Symbol: r.UID}}, Loc: b.loc()})
	case inast.RefFunc:
		if w < 8 {
			b.fail(b.loc(), diag.TypeError, "function pointer loaded into a %d-byte register", w)
		}
		b.fn.Emit(Instruction{Op: OpTmpLoad, Dst: dst, Width: 8, Ptr: true,
			Args: []Operand{{Kind: LoadFunc, Symbol: r.UID}}, Loc: b.loc()})
	}
	return dst
}

func (b *FuncBuilder) binary(e *inast.Expr) (VReg, error) {
	lhs, _ := b.expr(e.Args[0])
	rhs, _ := b.expr(e.Args[1])
	w, signed, float, err := widthTag(e.Args[0].Type)
	if err != nil {
		b.fail(b.loc(), diag.TypeError, "%v", err)
		return NoVReg, err
	}

	if e.Bin == inast.BShl || e.Bin == inast.BShr || e.Bin == inast.BAnd || e.Bin == inast.BOr || e.Bin == inast.BXor {
		if float {
			b.fail(b.loc(), diag.TypeError, "bitwise/shift operator applied to a floating-point operand")
			return NoVReg, fmt.Errorf("bitwise op on float")
		}
	}

	if isComparison(e.Bin) {
		dst := b.cmpToBool(lhs, rhs, w, signed, float, cmpKindFor(e.Bin))
		b.destroy(lhs)
		b.destroy(rhs)
		return dst, nil
	}

	var op Opcode
	switch e.Bin {
	case inast.BAdd:
		op = OpAdd
	case inast.BSub:
		op = OpSub
	case inast.BMul:
		op = OpMul
	case inast.BDiv:
		op = OpDiv
	case inast.BMod:
		op = OpMod
	case inast.BAnd:
		op = OpBAnd
	case inast.BOr:
		op = OpBOr
	case inast.BXor:
		op = OpBXor
	case inast.BShl:
		op = OpShl
	case inast.BShr:
		op = OpShr
	case inast.BLogAnd:
		op = OpAnd
	case inast.BLogOr:
		op = OpOr
	default:
		b.fail(b.loc(), diag.ResolutionError, "unhandled binary operator %d", e.Bin)
		return NoVReg, fmt.Errorf("unhandled binary operator")
	}
	dst := b.fn.NewTemp()
	b.fn.Emit(Instruction{Op: op, Dst: dst, Width: w, Signed: signed, Float: float, Args: []Operand{Reg(lhs), Reg(rhs)}, Loc: b.loc()})
	b.destroy(lhs)
	b.destroy(rhs)
	return dst, nil
}

// cmpToBool lowers a comparison used as a value (not as an if/for
// condition) into a 1-byte boolean via a short forward branch: j_cmp to
// a "true" label, fall through to false.
func (b *FuncBuilder) cmpToBool(lhs, rhs VReg, w int, signed, float bool, cmp CmpKind) VReg {
	trueLabel := b.newLabel()
	endLabel := b.newLabel()
	b.fn.Emit(Instruction{
		Op: OpJmpCmp, Width: w, Signed: signed, Float: float,
		Args: []Operand{Reg(lhs), Reg(rhs), SmallOp(int(cmp)), LabelOp(trueLabel)}, Loc: b.loc(),
	})
	dst := b.fn.NewTemp()
	merged := b.fn.NewTemp()
	b.fn.Emit(Instruction{Op: OpTmpLoad, Dst: dst, Width: 1, Args: []Operand{{Kind: LoadImm, Imm: 0}}, Loc: b.loc()})
	b.fn.Emit(Instruction{Op: OpTmpLoad, Dst: merged, Width: 1, Args: []Operand{{Kind: LoadRegCopy, VReg: dst}}, Loc: b.loc()})
	b.fn.Emit(Instruction{Op: OpJmp, Args: []Operand{LabelOp(endLabel)}, Loc: b.loc()})
	b.fn.Emit(Instruction{Op: OpLabel, Args: []Operand{LabelOp(trueLabel)}, Loc: b.loc()})
	dst2 := b.fn.NewTemp()
	b.fn.Emit(Instruction{
		Op: OpTmpLoad, Dst: dst2, Width: 1, Args: []Operand{{Kind: LoadImm, Imm: 1}}, Loc: b.loc(),
	})
	// dst (false branch) and dst2 (true branch) are each copied into
	// merged via a reg_copy load so both branches converge on one logical
	// value; this matches the "reg_copy always mints a fresh vreg" rule (a
	// width-change / branch-merge must not alias).
	b.fn.Emit(Instruction{Op: OpTmpLoad, Dst: merged, Width: 1, Args: []Operand{{Kind: LoadRegCopy, VReg: dst2}}, Loc: b.loc()})
	b.fn.Emit(Instruction{Op: OpLabel, Args: []Operand{LabelOp(endLabel)}, Loc: b.loc()})
	return merged
}

func (b *FuncBuilder) unary(e *inast.Expr) (VReg, error) {
	v, _ := b.expr(e.Args[0])
	w, signed, float, err := widthTag(e.Args[0].Type)
	if err != nil {
		b.fail(b.loc(), diag.TypeError, "%v", err)
		return NoVReg, err
	}
	var op Opcode
	switch e.Un {
	case inast.UNeg:
		op = OpNeg
	case inast.UNot:
		op = OpNot
	case inast.UBNot:
		op = OpBNot
	default:
		b.fail(b.loc(), diag.ResolutionError, "unhandled unary operator %d", e.Un)
		return NoVReg, fmt.Errorf("unhandled unary operator")
	}
	dst := b.fn.NewTemp()
	// bnot/not emit dst, src — the canonical two-operand form per
	// spec.md §9's third open question (the variant that falls through
	// without operands is not reproduced here).
	b.fn.Emit(Instruction{Op: op, Dst: dst, Width: w, Signed: signed, Float: float, Args: []Operand{Reg(dst), Reg(v)}, Loc: b.loc()})
	b.destroy(v)
	return dst, nil
}

func (b *FuncBuilder) call(e *inast.Expr) (VReg, error) {
	var args []Operand
	var argTemps []VReg
	for _, a := range e.Args {
		v, _ := b.expr(a)
		args = append(args, Reg(v))
		argTemps = append(argTemps, v)
	}
	callArgs := append([]Operand{SymbolOp(e.CalleeUID)}, args...)
	b.fn.Emit(Instruction{Op: OpCall, Args: callArgs, Comment: e.Callee, Loc: b.loc()})
	for _, t := range argTemps {
		b.destroy(t)
	}
	return b.fnGetRetReg(e.Type)
}

func (b *FuncBuilder) callPtr(e *inast.Expr) (VReg, error) {
	fnVal, _ := b.expr(e.Args[0])
	var args []Operand
	var argTemps []VReg
	for _, a := range e.Args[1:] {
		v, _ := b.expr(a)
		args = append(args, Reg(v))
		argTemps = append(argTemps, v)
	}
	callArgs := append([]Operand{Reg(fnVal)}, args...)
	b.fn.Emit(Instruction{Op: OpCallPtr, Args: callArgs, Loc: b.loc()})
	b.destroy(fnVal)
	for _, t := range argTemps {
		b.destroy(t)
	}
	return b.fnGetRetReg(e.Type)
}

// closureCall invokes an already-allocated closure value (Args[0]) with
// Args[1:] as its call arguments, via the closure_call opcode rather
// than the function-symbol form call/call_ptr use.
func (b *FuncBuilder) closureCall(e *inast.Expr) (VReg, error) {
	closureVal, _ := b.expr(e.Args[0])
	var args []Operand
	var argTemps []VReg
	for _, a := range e.Args[1:] {
		v, _ := b.expr(a)
		args = append(args, Reg(v))
		argTemps = append(argTemps, v)
	}
	callArgs := append([]Operand{Reg(closureVal)}, args...)
	b.fn.Emit(Instruction{Op: OpClosureCall, Args: callArgs, Loc: b.loc()})
	b.destroy(closureVal)
	for _, t := range argTemps {
		b.destroy(t)
	}
	return b.fnGetRetReg(e.Type)
}

// coroutineCall resumes an already-allocated coroutine value (Args[0])
// with Args[1:] as resume arguments, via the coroutine_call opcode.
func (b *FuncBuilder) coroutineCall(e *inast.Expr) (VReg, error) {
	coroVal, _ := b.expr(e.Args[0])
	var args []Operand
	var argTemps []VReg
	for _, a := range e.Args[1:] {
		v, _ := b.expr(a)
		args = append(args, Reg(v))
		argTemps = append(argTemps, v)
	}
	callArgs := append([]Operand{Reg(coroVal)}, args...)
	b.fn.Emit(Instruction{Op: OpCoroutineCall, Args: callArgs, Loc: b.loc()})
	b.destroy(coroVal)
	for _, t := range argTemps {
		b.destroy(t)
	}
	return b.fnGetRetReg(e.Type)
}

// fnGetRetReg reads back register 255's return value, shared by every
// call-like lowering (call/call_ptr/closure_call/coroutine_call) that
// produces a value.
func (b *FuncBuilder) fnGetRetReg(ty *types.Resolved) (VReg, error) {
	if ty == nil {
		return NoVReg, nil
	}
	w, signed, float, err := widthTag(ty)
	if err != nil {
		return NoVReg, err
	}
	dst := b.fn.NewTemp()
	b.fn.Emit(Instruction{
		Op: OpFnGetRetReg, Dst: dst, Width: w, Signed: signed, Float: float, Ptr: types.IsPointer(ty),
		Args: []Operand{Reg(dst), SmallOp(255), SmallOp(w)}, Loc: b.loc(),
	})
	return dst, nil
}

// emitNullJump emits a jump to label when v's nullness matches
// jumpWhenNull, using j_eq_null_ptr for a pointer-represented wrapped
// type and the width-tagged j_eq_null_<w> otherwise (spec.md §4.C).
// refType is the nullable reference's own type; the pointer/width
// choice looks at what it wraps (Elem), since Reference itself always
// reports IsPointer true regardless of its wrapped type's width. A
// direct single-instruction jump covers the jumpWhenNull=true case; the
// jumpWhenNull=false case needs an inverted two-hop trampoline since
// there is no dedicated "jump if not null" opcode.
func (b *FuncBuilder) emitNullJump(v VReg, refType *types.Resolved, label string, jumpWhenNull bool) {
	base := refType
	if refType != nil && refType.Kind == types.Reference {
		base = refType.Elem
	}
	op := OpJmpEqNull
	width := widthOrZero(base)
	if types.IsPointer(base) {
		op = OpJmpEqNullP
		width = 8
	}
	if jumpWhenNull {
		b.fn.Emit(Instruction{Op: op, Width: width, Args: []Operand{Reg(v), LabelOp(label)}, Loc: b.loc()})
		return
	}
	skip := b.newLabel()
	b.fn.Emit(Instruction{Op: op, Width: width, Args: []Operand{Reg(v), LabelOp(skip)}, Loc: b.loc()})
	b.fn.Emit(Instruction{Op: OpJmp, Args: []Operand{LabelOp(label)}, Loc: b.loc()})
	b.fn.Emit(Instruction{Op: OpLabel, Args: []Operand{LabelOp(skip)}, Loc: b.loc()})
}

// nullCheckValue materializes an ENullCheck's boolean result as a
// 1-byte value, mirroring cmpToBool's branch-and-merge shape.
func (b *FuncBuilder) nullCheckValue(e *inast.Expr) VReg {
	v, _ := b.expr(e.Args[0])
	trueLabel := b.newLabel()
	endLabel := b.newLabel()
	b.emitNullJump(v, e.Args[0].Type, trueLabel, e.NullIsTrue)
	b.destroy(v)

	dst := b.fn.NewTemp()
	merged := b.fn.NewTemp()
	b.fn.Emit(Instruction{Op: OpTmpLoad, Dst: dst, Width: 1, Args: []Operand{{Kind: LoadImm, Imm: 0}}, Loc: b.loc()})
	b.fn.Emit(Instruction{Op: OpTmpLoad, Dst: merged, Width: 1, Args: []Operand{{Kind: LoadRegCopy, VReg: dst}}, Loc: b.loc()})
	b.fn.Emit(Instruction{Op: OpJmp, Args: []Operand{LabelOp(endLabel)}, Loc: b.loc()})
	b.fn.Emit(Instruction{Op: OpLabel, Args: []Operand{LabelOp(trueLabel)}, Loc: b.loc()})
	dst2 := b.fn.NewTemp()
	b.fn.Emit(Instruction{Op: OpTmpLoad, Dst: dst2, Width: 1, Args: []Operand{{Kind: LoadImm, Imm: 1}}, Loc: b.loc()})
	b.fn.Emit(Instruction{Op: OpTmpLoad, Dst: merged, Width: 1, Args: []Operand{{Kind: LoadRegCopy, VReg: dst2}}, Loc: b.loc()})
	b.fn.Emit(Instruction{Op: OpLabel, Args: []Operand{LabelOp(endLabel)}, Loc: b.loc()})
	return merged
}

func (b *FuncBuilder) fieldGet(e *inast.Expr) (VReg, error) {
	obj, _ := b.expr(e.Args[0])
	fieldID := b.interner.ID(e.FieldName)
	w, signed, float, err := widthTag(e.Type)
	if err != nil {
		b.fail(b.loc(), diag.TypeError, "%v", err)
		return NoVReg, err
	}
	dst := b.fn.NewTemp()
	b.fn.Emit(Instruction{
		Op: OpTmpLoad, Dst: dst, Width: w, Signed: signed, Float: float, Ptr: types.IsPointer(e.Type),
		Args: []Operand{{Kind: LoadReg, VReg: obj}, SymbolOp(fieldID)}, Comment: e.FieldName, Loc: b.loc(),
	})
	b.destroy(obj)
	return dst, nil
}

func (b *FuncBuilder) indexGet(e *inast.Expr) (VReg, error) {
	obj, _ := b.expr(e.Args[0])
	idx, _ := b.expr(e.Args[1])
	w, signed, float, err := widthTag(e.Type)
	if err != nil {
		b.fail(b.loc(), diag.TypeError, "%v", err)
		return NoVReg, err
	}
	dst := b.fn.NewTemp()
	b.fn.Emit(Instruction{
		Op: OpTmpLoad, Dst: dst, Width: w, Signed: signed, Float: float, Ptr: types.IsPointer(e.Type),
		Args: []Operand{{Kind: LoadReg, VReg: obj}, Reg(idx)}, Loc: b.loc(),
	})
	b.destroy(obj)
	b.destroy(idx)
	return dst, nil
}

// structLit lowers a struct/class literal. A type with a known template
// identity (every declared class, or a struct whose Resolved carries
// HasTemplate — i.e. it was built from a real struct declaration rather
// than synthesized at lowering time, e.g. a deconstruct ...rest
// binding) allocates via the template-referencing s_alloc_t/c_alloc_t
// form instead of passing an ad hoc field count (spec.md §4.F).
func (b *FuncBuilder) structLit(e *inast.Expr) (VReg, error) {
	dst := b.fn.NewTemp()
	isClass := e.StructType != nil && e.StructType.Kind == types.Class

	var op Opcode
	var allocArg Operand
	switch {
	case isClass:
		op = OpCAllocT
		allocArg = SymbolOp(e.StructType.ClassID)
	case e.StructType != nil && e.StructType.HasTemplate:
		op = OpSAllocT
		allocArg = SymbolOp(e.StructType.TemplateID)
	default:
		op = OpSAlloc
		allocArg = SmallOp(len(e.Args))
	}
	b.fn.Emit(Instruction{Op: op, Dst: dst, Args: []Operand{allocArg}, Loc: b.loc()})

	setOp := OpSSetField
	if isClass {
		setOp = OpCSetField
	}
	fields := e.StructType.Fields
	for i, val := range e.Args {
		if i >= len(fields) {
			break
		}
		v, _ := b.expr(val)
		fieldID := b.interner.ID(fields[i].Name)
		w, signed, float, err := widthTag(fields[i].Type)
		if err != nil {
			b.fail(b.loc(), diag.TypeError, "%v", err)
			b.destroy(v)
			continue
		}
		b.fn.Emit(Instruction{
			Op: setOp, Width: w, Signed: signed, Float: float, Ptr: types.IsPointer(fields[i].Type),
			Args: []Operand{Reg(dst), SymbolOp(fieldID), Reg(v)}, Comment: fields[i].Name, Loc: b.loc(),
		})
		b.destroy(v)
	}
	return dst, nil
}

func (b *FuncBuilder) cast(e *inast.Expr) (VReg, error) {
	v, _ := b.expr(e.Args[0])
	fromW, fromSigned, fromFloat, err := widthTag(e.FromType)
	if err != nil {
		b.fail(b.loc(), diag.TypeError, "%v", err)
		return NoVReg, err
	}
	toW, toSigned, toFloat, err := widthTag(e.ToType)
	if err != nil {
		b.fail(b.loc(), diag.TypeError, "%v", err)
		return NoVReg, err
	}
	dst := b.fn.NewTemp()
	var op Opcode
	switch {
	case fromW == toW && fromFloat == toFloat:
		op = OpCast
	case toW > fromW:
		op = OpUpcast
	default:
		op = OpDcast
	}
	b.fn.Emit(Instruction{
		Op: op, Dst: dst, Width: toW, Signed: toSigned, Float: toFloat,
		Args: []Operand{Reg(v), SmallOp(fromW), SmallOp(toW), boolOp(fromSigned), boolOp(toSigned)}, Loc: b.loc(),
	})
	b.destroy(v)
	return dst, nil
}

func boolOp(v bool) Operand {
	if v {
		return SmallOp(1)
	}
	return SmallOp(0)
}

func (b *FuncBuilder) closureMake(e *inast.Expr) (VReg, error) {
	dst := b.fn.NewTemp()
	b.fn.Emit(Instruction{Op: OpClosureAlloc, Dst: dst, Args: []Operand{SymbolOp(e.CalleeUID), SmallOp(len(e.Upvalues))}, Comment: e.TargetFunc, Loc: b.loc()})
	// Upvalue capture order is preserved exactly as supplied by the
	// (externally performed) capture analysis — spec.md §9.
	for i, uv := range e.Upvalues {
		src := b.loadRef(uv)
		w, signed, float, _ := widthTag(uv.Type)
		b.fn.Emit(Instruction{
			Op: OpCSetField, Width: w, Signed: signed, Float: float, Ptr: types.IsPointer(uv.Type),
			Args: []Operand{Reg(dst), SmallOp(i), Reg(src)}, Comment: "closure_push_env", Loc: b.loc(),
		})
		b.destroy(src)
	}
	return dst, nil
}

func (b *FuncBuilder) coroutineMake(e *inast.Expr) (VReg, error) {
	fnReg := b.fn.NewTemp()
	b.fn.Emit(Instruction{Op: OpCoroutineFnAlloc, Dst: fnReg, Args: []Operand{SymbolOp(e.CalleeUID)}, Comment: e.TargetFunc, Loc: b.loc()})
	dst := b.fn.NewTemp()
	b.fn.Emit(Instruction{Op: OpCoroutineAlloc, Dst: dst, Args: []Operand{Reg(fnReg)}, Loc: b.loc()})
	b.destroy(fnReg)
	return dst, nil
}
