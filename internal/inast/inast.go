// Package inast is the typed input AST the back end lowers from. It
// stands in for the parser/type-checker collaborator spec.md §1
// declares out of scope: every node here already carries a resolved,
// canonical type, exactly as spec.md §3 requires ("every AST node has a
// resolved, canonical type by entry"). Per the REDESIGN FLAGS in
// spec.md §9 ("replace inheritance of AST nodes over a base
// Expression/DataType with a sum type per category"), Expr and Stmt are
// each a single struct with a Kind discriminator, not a hierarchy of
// node types — callers switch exhaustively on Kind rather than relying
// on dynamic dispatch.
package inast

import "github.com/latticeforge/vbcc/internal/types"

// RefKind discriminates what an identifier reference resolves to.
type RefKind int

const (
	RefArg RefKind = iota
	RefLocal
	RefUpvalue
	RefGlobal
	RefFunc
)

// Ref is an already-resolved identifier reference: which storage class
// it lives in, its index within that class, and (for globals/funcs) its
// symbol UID.
type Ref struct {
	Kind  RefKind
	Index int
	Name  string
	UID   uint32
	Type  *types.Resolved
}

// BinOp enumerates binary operators.
type BinOp int

const (
	BAdd BinOp = iota
	BSub
	BMul
	BDiv
	BMod
	BAnd
	BOr
	BXor
	BShl
	BShr
	BEq
	BNe
	BLt
	BLe
	BGt
	BGe
	BLogAnd
	BLogOr
)

// UnOp enumerates unary operators.
type UnOp int

const (
	UNeg UnOp = iota
	UNot
	UBNot
)

// ExprKind discriminates the variant of an Expr.
type ExprKind int

const (
	EInt ExprKind = iota
	EFloat
	EBool
	EString
	ENull
	ERef
	EBinary
	EUnary
	ECall    // direct call: Callee names the target function
	ECallPtr // indirect call: Args[0] is the callee-valued expression
	EFieldGet
	EIndexGet
	EStructLit
	ECast
	ECoroutineMake
	EClosureMake
	EClosureCall   // invoke an allocated closure value: Args[0] is the closure, Args[1:] are call args
	ECoroutineCall // resume an allocated coroutine value: Args[0] is the coroutine, Args[1:] are resume args
	ENullCheck     // test a nullable reference against null: Args[0] is the value tested
)

// Expr is the typed-AST expression sum type.
type Expr struct {
	Kind ExprKind
	Type *types.Resolved
	Loc  Loc

	IntVal   int64
	FloatVal float64
	BoolVal  bool
	StrVal   string

	Ref *Ref

	Bin BinOp
	Un  UnOp

	Args []*Expr // operands (Binary: 2, Unary: 1, Call: call args, StructLit: field values)

	Callee    string
	CalleeUID uint32

	FieldName  string
	StructType *types.Resolved

	// ECast: FromType/ToType make the cast explicit rather than relying
	// on Type/Args[0].Type, since a same-width reinterpretation and a
	// widening/narrowing cast both need both ends named.
	FromType *types.Resolved
	ToType   *types.Resolved

	// EClosureMake / ECoroutineMake
	TargetFunc string
	Upvalues   []*Ref // in capture order; the back end preserves this order

	// ENullCheck: the expression's truth value is (Args[0] == null) when
	// NullIsTrue is true, or (Args[0] != null) when false.
	NullIsTrue bool
}

// StmtKind discriminates the variant of a Stmt.
type StmtKind int

const (
	SExpr StmtKind = iota
	SVarDecl
	SAssign
	SFieldSet
	SIndexSet
	SIf
	SFor
	SReturn
	SBlock
	SDeconstruct
	SBreak
	SContinue
)

// Deconstruct models `let {a, b, ...rest} = f()`: a source expression
// whose struct result is destructured field-by-field, per spec.md §4.C.
type Deconstruct struct {
	Source     *Expr
	StructType *types.Resolved
	Fields     []string // named bindings, in source order
	RestName   string   // "" if there is no ...rest binding
}

// Stmt is the typed-AST statement sum type.
type Stmt struct {
	Kind StmtKind
	Loc  Loc

	Expr  *Expr   // SExpr
	Exprs []*Expr // SReturn (multi-value)

	Target *Ref // SVarDecl / SAssign

	FieldTarget *Expr // SFieldSet / SIndexSet: the object/array expression
	FieldName   string
	IndexExpr   *Expr
	Value       *Expr // SAssign / SFieldSet / SIndexSet / SVarDecl initializer

	Cond *Expr
	Then []*Stmt
	Else []*Stmt

	Decon *Deconstruct

	Label string // SFor loop label, used by SBreak/SContinue targeting
}

// Loc is the source location attached to a Stmt/Expr, consumed by the
// srcmap stack during lowering.
type Loc struct {
	File string
	Line int
	Col  int
}

// Param is a function parameter, local, or upvalue declaration.
type Param struct {
	Name string
	Type *types.Resolved
}

// Func is one type-checked function body ready for lowering.
type Func struct {
	Name     string
	UID      uint32
	Params   []Param
	Upvalues []Param // ordered per capture analysis; order is preserved by the back end
	Results  []*types.Resolved
	Body     []*Stmt
}
