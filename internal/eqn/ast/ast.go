// Package ast defines the expression tree produced by the equation parser:
// a small infix language with subscripts, built-in calls and
// graphical-function lookups. Every node carries a source Span so later
// passes (resolver, unit checker, compiler) can attach errors to precise
// byte offsets.
package ast

import serr "github.com/bpowers/simlin/internal/errors"

// Node is implemented by every AST node.
type Node interface {
	Span() serr.Span
}

// Expr is the marker interface for expression nodes (every node in this
// package also implements Node).
type Expr interface {
	Node
	exprNode()
}

type base struct{ span serr.Span }

func (b base) Span() serr.Span { return b.span }

// Number is a numeric literal, including the NaN literal.
type Number struct {
	base
	Value float64
}

func (*Number) exprNode() {}

// NewNumber constructs a Number node.
func NewNumber(span serr.Span, v float64) *Number { return &Number{base{span}, v} }

// Ident is a bare or quoted identifier reference (variable, dimension, or
// module-output when it contains a '.').
type Ident struct {
	base
	Name string // as written, pre-canonicalization
}

// NewIdent constructs an Ident node.
func NewIdent(span serr.Span, name string) *Ident { return &Ident{base{span}, name} }

func (*Ident) exprNode() {}

// BinOp is a left-to-right binary operator application.
type BinOp struct {
	base
	Op          string // "+","-","*","/","%","^","<",">","<=",">=","=","<>","&&","||"
	Left, Right Expr
}

func (*BinOp) exprNode() {}

// NewBinOp constructs a BinOp node.
func NewBinOp(span serr.Span, op string, l, r Expr) *BinOp {
	return &BinOp{base{span}, op, l, r}
}

// UnaryOp is a prefix unary operator ("+", "-", "!").
type UnaryOp struct {
	base
	Op  string
	Arg Expr
}

func (*UnaryOp) exprNode() {}

// NewUnaryOp constructs a UnaryOp node.
func NewUnaryOp(span serr.Span, op string, arg Expr) *UnaryOp {
	return &UnaryOp{base{span}, op, arg}
}

// Transpose is the postfix "'" operator.
type Transpose struct {
	base
	Arg Expr
}

func (*Transpose) exprNode() {}

// NewTranspose constructs a Transpose node.
func NewTranspose(span serr.Span, arg Expr) *Transpose { return &Transpose{base{span}, arg} }

// If is the ternary if/then/else expression.
type If struct {
	base
	Cond, Then, Else Expr
}

func (*If) exprNode() {}

// NewIf constructs an If node.
func NewIf(span serr.Span, cond, then, els Expr) *If { return &If{base{span}, cond, then, els} }

// Call is a function/built-in application, `f(args...)`.
type Call struct {
	base
	Func string
	Args []Expr
}

func (*Call) exprNode() {}

// NewCall constructs a Call node.
func NewCall(span serr.Span, fn string, args []Expr) *Call { return &Call{base{span}, fn, args} }

// SubscriptKind tags which form a single subscript index takes.
type SubscriptKind int

// Subscript index forms.
const (
	SubExpr SubscriptKind = iota
	SubWildcard
	SubWildcardDim
	SubRange
	SubPosition
)

// Subscript is one index within a `v[idx1,...]` subscript list.
type Subscript struct {
	base
	Kind SubscriptKind
	// SubExpr
	Expr Expr
	// SubWildcardDim: restricting dimension name
	Dim string
	// SubRange: inclusive element bounds, by name
	From, To string
	// SubPosition: @N
	Position int
}

func (*Subscript) exprNode() {}

// NewSubscriptExpr wraps a plain expression index.
func NewSubscriptExpr(span serr.Span, e Expr) *Subscript {
	return &Subscript{base: base{span}, Kind: SubExpr, Expr: e}
}

// NewSubscriptWildcard constructs an unrestricted `*` index.
func NewSubscriptWildcard(span serr.Span) *Subscript {
	return &Subscript{base: base{span}, Kind: SubWildcard}
}

// NewSubscriptWildcardDim constructs a `*:Dim` restricted wildcard index.
func NewSubscriptWildcardDim(span serr.Span, dim string) *Subscript {
	return &Subscript{base: base{span}, Kind: SubWildcardDim, Dim: dim}
}

// NewSubscriptRange constructs an `a:b` range index.
func NewSubscriptRange(span serr.Span, from, to string) *Subscript {
	return &Subscript{base: base{span}, Kind: SubRange, From: from, To: to}
}

// NewSubscriptPosition constructs an `@N` dimension-position index.
func NewSubscriptPosition(span serr.Span, n int) *Subscript {
	return &Subscript{base: base{span}, Kind: SubPosition, Position: n}
}

// Index is a subscripted variable reference, `v[idx1,...]`.
type Index struct {
	base
	Name string
	Subs []*Subscript
}

func (*Index) exprNode() {}

// NewIndex constructs an Index node.
func NewIndex(span serr.Span, name string, subs []*Subscript) *Index {
	return &Index{base{span}, name, subs}
}
