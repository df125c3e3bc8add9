// Package parser implements the equation grammar: a recursive-descent /
// precedence-climbing parser producing an internal/eqn/ast tree annotated
// with source spans. Parsing never halts the caller on the first error —
// Parse returns whatever partial diagnostics it collected and a nil
// expression, so the owning variable's equation is the only thing affected.
package parser

import (
	"strconv"
	"strings"

	"github.com/bpowers/simlin/internal/eqn/ast"
	serr "github.com/bpowers/simlin/internal/errors"
)

type tok struct {
	kind      int
	span      serr.Span
	text      string
	malformed bool // true for a quoted identifier missing its closing quote
}

type parser struct {
	toks []tok
	pos  int
	errs []serr.Detail
}

// Parse parses a single equation string into an expression. On failure, expr
// is nil and details explains why (kind ExpectedNumber / UnrecognizedToken /
// UnrecognizedEOF / ExtraToken, among others).
func Parse(text string) (ast.Expr, []serr.Detail) {
	p := &parser{toks: tokenize(text)}
	if len(strings.TrimSpace(text)) == 0 {
		return nil, []serr.Detail{{Code: serr.EmptyEquation, Kind: serr.KindVariable, Message: "equation is empty"}}
	}
	if off := unclosedCommentAt(text); off >= 0 {
		return nil, []serr.Detail{{Code: serr.UnclosedComment, Kind: serr.KindVariable,
			Span: serr.NewSpan(off, len([]rune(text))), Message: "comment is missing its closing \"}\""}}
	}
	expr := p.parseExpr()
	if len(p.errs) > 0 {
		return nil, p.errs
	}
	if p.cur().kind != tEOF {
		t := p.cur()
		p.errs = append(p.errs, serr.Detail{Code: serr.ExtraToken, Kind: serr.KindVariable, Span: t.span, Message: "unexpected extra token " + strconv.Quote(t.text)})
		return nil, p.errs
	}
	return expr, nil
}

// unclosedCommentAt returns the rune offset of a "{" comment opener with no
// closing "}" anywhere after it, or -1. Quoted identifiers may legitimately
// contain braces, so openers inside quotes are skipped.
func unclosedCommentAt(text string) int {
	runes := []rune(text)
	inQuote := false
	for i, r := range runes {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case r == '{' && !inQuote:
			closed := false
			for _, rr := range runes[i+1:] {
				if rr == '}' {
					closed = true
					break
				}
			}
			if !closed {
				return i
			}
		}
	}
	return -1
}

// valueEnder reports whether a token of this kind completes a value, so a
// following "'" must mean postfix transpose rather than the start of a
// quoted identifier. The lexer has no grammar context of its own, so this
// one bit of lookbehind is how `x'` (transpose) and `'my var'` (a quoted
// identifier) are told apart from the bare character alone.
func valueEnder(kind int) bool {
	switch kind {
	case tNumber, tNaN, tIdent, tQuotedIdent, tRParen, tRBracket, tQuote:
		return true
	}
	return false
}

func tokenize(text string) []tok {
	runes := []rune(text)
	l := newLexer(text)
	var toks []tok
	expectAtom := true
	for {
		next, ok := l.Peek()
		if !ok {
			break
		}
		if next.Tag == tQuote && expectAtom {
			start := next.Span.Start()
			closeIdx := -1
			for i := start + 1; i < len(runes); i++ {
				if runes[i] == '\'' {
					closeIdx = i
					break
				}
			}
			if closeIdx == -1 {
				toks = append(toks, tok{kind: tQuotedIdent, span: serr.NewSpan(start, len(runes)), text: string(runes[start+1:]), malformed: true})
				l.SeekTo(len(runes))
			} else {
				end := closeIdx + 1
				toks = append(toks, tok{kind: tQuotedIdent, span: serr.NewSpan(start, end), text: string(runes[start:end])})
				l.SeekTo(end)
			}
			expectAtom = false
			continue
		}
		t, _ := l.Next()
		txt := string(l.Text(t.Span))
		kind := int(t.Tag)
		if kind == tIdent {
			if kw, isKw := keywords[strings.ToLower(txt)]; isKw {
				kind = kw
			}
		}
		toks = append(toks, tok{kind: kind, span: serr.NewSpan(t.Span.Start(), t.Span.End()), text: txt})
		expectAtom = !valueEnder(kind)
	}
	end := len(text)
	toks = append(toks, tok{kind: tEOF, span: serr.NewSpan(end, end), text: ""})
	return toks
}

func (p *parser) cur() tok         { return p.toks[p.pos] }
func (p *parser) save() int        { return p.pos }
func (p *parser) restore(mark int) { p.pos = mark }

func (p *parser) advance() tok {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind int, what string) (tok, bool) {
	if p.cur().kind != kind {
		t := p.cur()
		code := serr.UnrecognizedToken
		if t.kind == tEOF {
			code = serr.UnrecognizedEOF
		}
		p.errs = append(p.errs, serr.Detail{Code: code, Kind: serr.KindVariable, Span: t.span, Message: "expected " + what})
		return t, false
	}
	return p.advance(), true
}

func (p *parser) fail(code serr.Code, t tok, msg string) {
	p.errs = append(p.errs, serr.Detail{Code: code, Kind: serr.KindVariable, Span: t.span, Message: msg})
}

// ---- precedence levels, low to high ----

func (p *parser) parseExpr() ast.Expr { return p.parseTernary() }

func (p *parser) parseTernary() ast.Expr {
	if p.cur().kind == tIf {
		start := p.advance().span
		cond := p.parseTernary()
		if _, ok := p.expect(tThen, "\"then\""); !ok {
			return cond
		}
		then := p.parseTernary()
		if _, ok := p.expect(tElse, "\"else\""); !ok {
			return then
		}
		els := p.parseTernary()
		return ast.NewIf(joinSpan(start, spanOf(els)), cond, then, els)
	}
	return p.parseOr()
}

func (p *parser) parseOr() ast.Expr {
	left := p.parseAnd()
	for p.cur().kind == tOrOr {
		p.advance()
		right := p.parseAnd()
		left = ast.NewBinOp(joinSpan(spanOf(left), spanOf(right)), "||", left, right)
	}
	return left
}

func (p *parser) parseAnd() ast.Expr {
	left := p.parseEquality()
	for p.cur().kind == tAndAnd {
		p.advance()
		right := p.parseEquality()
		left = ast.NewBinOp(joinSpan(spanOf(left), spanOf(right)), "&&", left, right)
	}
	return left
}

func (p *parser) parseEquality() ast.Expr {
	left := p.parseRelational()
	for p.cur().kind == tEq || p.cur().kind == tNe {
		op := "="
		if p.cur().kind == tNe {
			op = "<>"
		}
		p.advance()
		right := p.parseRelational()
		left = ast.NewBinOp(joinSpan(spanOf(left), spanOf(right)), op, left, right)
	}
	return left
}

func (p *parser) parseRelational() ast.Expr {
	left := p.parseAdditive()
	for {
		var op string
		switch p.cur().kind {
		case tLt:
			op = "<"
		case tLe:
			op = "<="
		case tGt:
			op = ">"
		case tGe:
			op = ">="
		default:
			return left
		}
		p.advance()
		right := p.parseAdditive()
		left = ast.NewBinOp(joinSpan(spanOf(left), spanOf(right)), op, left, right)
	}
}

func (p *parser) parseAdditive() ast.Expr {
	left := p.parseMultiplicative()
	for p.cur().kind == tPlus || p.cur().kind == tMinus {
		op := "+"
		if p.cur().kind == tMinus {
			op = "-"
		}
		p.advance()
		right := p.parseMultiplicative()
		left = ast.NewBinOp(joinSpan(spanOf(left), spanOf(right)), op, left, right)
	}
	return left
}

func (p *parser) parseMultiplicative() ast.Expr {
	left := p.parseUnary()
	for {
		var op string
		switch p.cur().kind {
		case tStar:
			op = "*"
		case tSlash:
			op = "/"
		case tPercent:
			op = "%"
		default:
			return left
		}
		p.advance()
		right := p.parseUnary()
		left = ast.NewBinOp(joinSpan(spanOf(left), spanOf(right)), op, left, right)
	}
}

func (p *parser) parseUnary() ast.Expr {
	switch p.cur().kind {
	case tPlus, tMinus, tBang:
		op := map[int]string{tPlus: "+", tMinus: "-", tBang: "!"}[p.cur().kind]
		start := p.advance().span
		arg := p.parseUnary()
		return ast.NewUnaryOp(joinSpan(start, spanOf(arg)), op, arg)
	default:
		return p.parsePower()
	}
}

func (p *parser) parsePower() ast.Expr {
	left := p.parsePostfix()
	if p.cur().kind == tCaret {
		p.advance()
		right := p.parseUnary() // right-assoc; also admits a unary operand, e.g. 2^-3
		return ast.NewBinOp(joinSpan(spanOf(left), spanOf(right)), "^", left, right)
	}
	return left
}

func (p *parser) parsePostfix() ast.Expr {
	e := p.parseAtom()
	for p.cur().kind == tQuote {
		end := p.advance().span
		e = ast.NewTranspose(joinSpan(spanOf(e), end), e)
	}
	return e
}

func (p *parser) parseAtom() ast.Expr {
	t := p.cur()
	switch t.kind {
	case tNumber:
		p.advance()
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			p.fail(serr.ExpectedNumber, t, "malformed number literal "+strconv.Quote(t.text))
			return ast.NewNumber(t.span, 0)
		}
		return ast.NewNumber(t.span, v)
	case tNaN:
		p.advance()
		return ast.NewNumber(t.span, nan())
	case tLParen:
		p.advance()
		e := p.parseExpr()
		p.expect(tRParen, "\")\"")
		return e
	case tIdent, tQuotedIdent:
		p.advance()
		name := p.identText(t)
		switch p.cur().kind {
		case tLParen:
			p.advance()
			var args []ast.Expr
			if p.cur().kind != tRParen {
				args = append(args, p.parseExpr())
				for p.cur().kind == tComma {
					p.advance()
					args = append(args, p.parseExpr())
				}
			}
			end, _ := p.expect(tRParen, "\")\"")
			return ast.NewCall(joinSpan(t.span, end.span), name, args)
		case tLBracket:
			p.advance()
			var subs []*ast.Subscript
			subs = append(subs, p.parseSubscript())
			for p.cur().kind == tComma {
				p.advance()
				subs = append(subs, p.parseSubscript())
			}
			end, _ := p.expect(tRBracket, "\"]\"")
			return ast.NewIndex(joinSpan(t.span, end.span), name, subs)
		default:
			return ast.NewIdent(t.span, name)
		}
	case tEOF:
		p.fail(serr.UnrecognizedEOF, t, "unexpected end of equation")
		return ast.NewNumber(t.span, 0)
	default:
		p.advance()
		p.fail(serr.UnrecognizedToken, t, "unrecognized token "+strconv.Quote(t.text))
		return ast.NewNumber(t.span, 0)
	}
}

func (p *parser) parseSubscript() *ast.Subscript {
	t := p.cur()
	switch t.kind {
	case tStar:
		p.advance()
		if p.cur().kind == tColon {
			p.advance()
			dim, ok := p.expect(tIdent, "dimension name")
			if !ok {
				return ast.NewSubscriptWildcard(t.span)
			}
			return ast.NewSubscriptWildcardDim(joinSpan(t.span, dim.span), dim.text)
		}
		return ast.NewSubscriptWildcard(t.span)
	case tAt:
		p.advance()
		n, ok := p.expect(tNumber, "dimension position")
		if !ok {
			return ast.NewSubscriptPosition(t.span, 0)
		}
		v, _ := strconv.ParseFloat(n.text, 64)
		return ast.NewSubscriptPosition(joinSpan(t.span, n.span), int(v))
	case tIdent, tQuotedIdent:
		mark := p.save()
		name := p.identText(t)
		p.advance()
		if p.cur().kind == tColon {
			p.advance()
			to, ok := p.expect(tIdent, "range end")
			if !ok {
				p.restore(mark)
				break
			}
			return ast.NewSubscriptRange(joinSpan(t.span, to.span), name, p.identText(to))
		}
		p.restore(mark)
	}
	e := p.parseExpr()
	return ast.NewSubscriptExpr(spanOf(e), e)
}

// identText returns the display name for an identifier-shaped token,
// reporting UnclosedQuotedIdent for a quoted identifier missing its closing
// quote rather than silently keeping the stray leading quote.
func (p *parser) identText(t tok) string {
	if t.kind != tQuotedIdent {
		return t.text
	}
	if t.malformed {
		p.fail(serr.UnclosedQuotedIdent, t, "quoted identifier is missing its closing \"'\"")
		return t.text
	}
	return t.text[1 : len(t.text)-1]
}

func spanOf(n ast.Node) serr.Span { return n.Span() }

func joinSpan(a, b serr.Span) serr.Span {
	return serr.NewSpan(a.Start, b.End)
}

func nan() float64 {
	var zero float64
	return zero / zero
}
