// Package ast defines the tagged-variant node model the parser builds and
// the type checker annotates in place.
package ast

import (
	"exprc/internal/token"
	"exprc/internal/types"
)

// ----------------------------------------------------------------------------
// Expressions

// Expr is the shared interface implemented by every expression variant. Every
// case carries a Loc (set once by the parser, never mutated afterward) and a
// Type slot (defaulted to types.Default, overwritten exactly once by the
// checker).
type Expr interface {
	exprNode()
	Location() token.Location
	NodeType() types.Type
	SetType(t types.Type)
}

// base is embedded by every concrete Expr to provide the Location/Type
// bookkeeping without repeating it on each variant.
type base struct {
	Loc token.Location
	Typ types.Type
}

func (b *base) Location() token.Location { return b.Loc }
func (b *base) NodeType() types.Type     { return b.Typ }
func (b *base) SetType(t types.Type)     { b.Typ = t }

func newBase(loc token.Location) base { return base{Loc: loc, Typ: types.Default} }

// LiteralKind selects which payload of a Literal node is meaningful: IntVal,
// BoolVal, or neither (unit).
type LiteralKind string

const (
	IntLiteralKind  LiteralKind = "int"
	BoolLiteralKind LiteralKind = "bool"
	UnitLiteralKind LiteralKind = "unit"
)

// Literal is an int, bool or unit constant.
type Literal struct {
	base
	Kind    LiteralKind
	IntVal  int64
	BoolVal bool
}

func NewLiteralInt(loc token.Location, v int64) *Literal {
	return &Literal{base: newBase(loc), Kind: IntLiteralKind, IntVal: v}
}
func NewLiteralBool(loc token.Location, v bool) *Literal {
	return &Literal{base: newBase(loc), Kind: BoolLiteralKind, BoolVal: v}
}
func NewLiteralUnit(loc token.Location) *Literal {
	return &Literal{base: newBase(loc), Kind: UnitLiteralKind}
}

// Identifier references a bound name: a variable, parameter or function.
type Identifier struct {
	base
	Name string
}

func NewIdentifier(loc token.Location, name string) *Identifier {
	return &Identifier{base: newBase(loc), Name: name}
}

// UnaryOp is "-" or "not" applied to Operand.
type UnaryOp struct {
	base
	Op      string
	Operand Expr
}

func NewUnaryOp(loc token.Location, op string, operand Expr) *UnaryOp {
	return &UnaryOp{base: newBase(loc), Op: op, Operand: operand}
}

// BinaryOp covers arithmetic, comparison, logical and assignment ("=") ops.
type BinaryOp struct {
	base
	Left  Expr
	Op    string
	Right Expr
}

func NewBinaryOp(loc token.Location, left Expr, op string, right Expr) *BinaryOp {
	return &BinaryOp{base: newBase(loc), Left: left, Op: op, Right: right}
}

// IfExpression is "if cond then thenBranch [else elseBranch]". ElseBranch is
// nil when absent.
type IfExpression struct {
	base
	Condition  Expr
	ThenBranch Expr
	ElseBranch Expr
}

func NewIfExpression(loc token.Location, cond, then, els Expr) *IfExpression {
	return &IfExpression{base: newBase(loc), Condition: cond, ThenBranch: then, ElseBranch: els}
}

// WhileLoop is "while cond do body".
type WhileLoop struct {
	base
	Condition Expr
	Body      Expr
}

func NewWhileLoop(loc token.Location, cond, body Expr) *WhileLoop {
	return &WhileLoop{base: newBase(loc), Condition: cond, Body: body}
}

// Block is a brace-delimited sequence of statements followed by a result
// expression; a block with no explicit result has Result set to a synthetic
// unit Literal (see parser semicolon handling).
type Block struct {
	base
	Statements []Expr
	Result     Expr
}

func NewBlock(loc token.Location, statements []Expr, result Expr) *Block {
	return &Block{base: newBase(loc), Statements: statements, Result: result}
}

// VarDeclaration introduces a new binding: "var name [: declaredType] = value".
// DeclaredType is empty when the annotation was omitted.
type VarDeclaration struct {
	base
	Name         string
	DeclaredType string
	Value        Expr
}

func NewVarDeclaration(loc token.Location, name, declaredType string, value Expr) *VarDeclaration {
	return &VarDeclaration{base: newBase(loc), Name: name, DeclaredType: declaredType, Value: value}
}

// FunctionCall is "callee(args...)"; Callee is always an Identifier.
type FunctionCall struct {
	base
	Callee *Identifier
	Args   []Expr
}

func NewFunctionCall(loc token.Location, callee *Identifier, args []Expr) *FunctionCall {
	return &FunctionCall{base: newBase(loc), Callee: callee, Args: args}
}

// BreakStatement and ContinueStatement carry no payload beyond location.
type BreakStatement struct{ base }

func NewBreakStatement(loc token.Location) *BreakStatement {
	return &BreakStatement{base: newBase(loc)}
}

type ContinueStatement struct{ base }

func NewContinueStatement(loc token.Location) *ContinueStatement {
	return &ContinueStatement{base: newBase(loc)}
}

// ReturnStatement carries an optional Value (nil means "return;").
type ReturnStatement struct {
	base
	Value Expr
}

func NewReturnStatement(loc token.Location, value Expr) *ReturnStatement {
	return &ReturnStatement{base: newBase(loc), Value: value}
}

func (*Literal) exprNode()           {}
func (*Identifier) exprNode()        {}
func (*UnaryOp) exprNode()           {}
func (*BinaryOp) exprNode()          {}
func (*IfExpression) exprNode()      {}
func (*WhileLoop) exprNode()         {}
func (*Block) exprNode()             {}
func (*VarDeclaration) exprNode()    {}
func (*FunctionCall) exprNode()      {}
func (*BreakStatement) exprNode()    {}
func (*ContinueStatement) exprNode() {}
func (*ReturnStatement) exprNode()   {}

// ----------------------------------------------------------------------------
// Module-level constructs

// Param is one entry of a FunctionDefinition's parameter list.
type Param struct {
	Name      string
	ParamType string
}

// FunctionDefinition is "fun name(params): returnType { body }".
type FunctionDefinition struct {
	Name       string
	Parameters []Param
	ReturnType string
	Body       *Block
	Loc        token.Location
}

// Module is the parser's top-level output: the function definitions declared
// anywhere in the source, plus the top-level expressions (which form an
// implicit outer block evaluated by the "main" function).
type Module struct {
	FunctionDefinitions []*FunctionDefinition
	TopLevelExpressions []Expr
	Loc                 token.Location
}
