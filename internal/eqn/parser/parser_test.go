package parser

import (
	"testing"

	"github.com/bpowers/simlin/internal/eqn/ast"
	serr "github.com/bpowers/simlin/internal/errors"
)

func TestParseArithmeticPrecedence(t *testing.T) {
	e, errs := Parse("1 + 2 * 3 ^ 2")
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	bin, ok := e.(*ast.BinOp)
	if !ok || bin.Op != "+" {
		t.Fatalf("expected top-level +, got %#v", e)
	}
	rhs, ok := bin.Right.(*ast.BinOp)
	if !ok || rhs.Op != "*" {
		t.Fatalf("expected * on the right of +, got %#v", bin.Right)
	}
	pow, ok := rhs.Right.(*ast.BinOp)
	if !ok || pow.Op != "^" {
		t.Fatalf("expected ^ nested under *, got %#v", rhs.Right)
	}
}

func TestParseTernary(t *testing.T) {
	e, errs := Parse("IF time > 10 THEN 1 ELSE 0")
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if _, ok := e.(*ast.If); !ok {
		t.Fatalf("expected *ast.If, got %#v", e)
	}
}

func TestParseQuotedIdent(t *testing.T) {
	e, errs := Parse("'a variable with spaces' + 1")
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	bin := e.(*ast.BinOp)
	id, ok := bin.Left.(*ast.Ident)
	if !ok || id.Name != "a variable with spaces" {
		t.Fatalf("expected unquoted ident, got %#v", bin.Left)
	}
}

func TestParseSubscriptForms(t *testing.T) {
	cases := []struct {
		expr string
		kind ast.SubscriptKind
	}{
		{"x[*]", ast.SubWildcard},
		{"x[*:regions]", ast.SubWildcardDim},
		{"x[a:b]", ast.SubRange},
		{"x[@1]", ast.SubPosition},
		{"x[y]", ast.SubExpr},
	}
	for _, c := range cases {
		e, errs := Parse(c.expr)
		if len(errs) > 0 {
			t.Fatalf("%s: unexpected errors: %v", c.expr, errs)
		}
		idx, ok := e.(*ast.Index)
		if !ok || len(idx.Subs) != 1 {
			t.Fatalf("%s: expected one subscript, got %#v", c.expr, e)
		}
		if idx.Subs[0].Kind != c.kind {
			t.Errorf("%s: got kind %v, want %v", c.expr, idx.Subs[0].Kind, c.kind)
		}
	}
}

func TestParseUnaryAndTranspose(t *testing.T) {
	e, errs := Parse("-x'")
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	u, ok := e.(*ast.UnaryOp)
	if !ok || u.Op != "-" {
		t.Fatalf("expected unary -, got %#v", e)
	}
	if _, ok := u.Arg.(*ast.Transpose); !ok {
		t.Fatalf("expected transpose nested under unary, got %#v", u.Arg)
	}
}

func TestParseCall(t *testing.T) {
	e, errs := Parse("MIN(a, b, 3)")
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	call, ok := e.(*ast.Call)
	if !ok || call.Func != "MIN" || len(call.Args) != 3 {
		t.Fatalf("expected a 3-arg MIN call, got %#v", e)
	}
}

func TestParseNaNLiteral(t *testing.T) {
	e, errs := Parse("NaN")
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	n, ok := e.(*ast.Number)
	if !ok {
		t.Fatalf("expected a Number literal, got %#v", e)
	}
	if n.Value == n.Value {
		t.Errorf("expected NaN, got %v", n.Value)
	}
}

// Non-halting: a malformed equation returns diagnostics
// rather than panicking, and doesn't block parsing of anything else.
func TestParseMalformedReturnsDetails(t *testing.T) {
	_, errs := Parse("1 +")
	if len(errs) == 0 {
		t.Fatal("expected at least one error detail for a truncated expression")
	}
}

func TestParseUnclosedCommentReported(t *testing.T) {
	_, errs := Parse("x + 1 {units: widgets")
	if len(errs) != 1 || errs[0].Code != serr.UnclosedComment {
		t.Fatalf("expected UnclosedComment, got %v", errs)
	}
}

func TestParseClosedCommentIgnored(t *testing.T) {
	e, errs := Parse("x {widgets} + 1")
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if _, ok := e.(*ast.BinOp); !ok {
		t.Fatalf("expected a BinOp, got %#v", e)
	}
}

func TestParseUnclosedQuotedIdentReported(t *testing.T) {
	_, errs := Parse("'dangling + 1")
	if len(errs) == 0 {
		t.Fatal("expected UnclosedQuotedIdent")
	}
	if errs[0].Code != serr.UnclosedQuotedIdent {
		t.Fatalf("expected UnclosedQuotedIdent, got %v", errs[0].Code)
	}
}
