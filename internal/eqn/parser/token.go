package parser

// Token kinds for the equation grammar.
const (
	tInvalid = iota
	tNumber
	tNaN
	tIdent
	tQuotedIdent
	tPlus
	tMinus
	tStar
	tSlash
	tPercent
	tCaret
	tQuote // postfix transpose '
	tLParen
	tRParen
	tLBracket
	tRBracket
	tComma
	tColon
	tAt
	tBang
	tEq
	tNe
	tLt
	tLe
	tGt
	tGe
	tAndAnd
	tOrOr
	tIf
	tThen
	tElse
	tEOF
)

var keywords = map[string]int{
	"if":   tIf,
	"then": tThen,
	"else": tElse,
}
