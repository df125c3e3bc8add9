package parser

import (
	"strings"

	"github.com/bpowers/simlin/internal/lex"
)

func isDigit(r rune) uint {
	if r >= '0' && r <= '9' {
		return 1
	}
	return 0
}

func digitScanner(items []rune) uint {
	if len(items) == 0 {
		return 0
	}
	return isDigit(items[0])
}

func letterScanner(items []rune) uint {
	if len(items) == 0 {
		return 0
	}
	r := items[0]
	if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r > 127 {
		return 1
	}
	return 0
}

func alnumScanner(items []rune) uint {
	if n := letterScanner(items); n > 0 {
		return n
	}
	return digitScanner(items)
}

func whitespaceOrComment(items []rune) uint {
	if len(items) == 0 {
		return 0
	}
	r := items[0]
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return 1
	}
	if r == '{' {
		for i := 1; i < len(items); i++ {
			if items[i] == '}' {
				return uint(i + 1)
			}
		}
		// Unclosed comment: consume the rest rather than looping forever;
		// Parse reports UnclosedComment from its own pre-scan.
		return uint(len(items))
	}
	return 0
}

func numberScanner(items []rune) uint {
	n := lex.Star(lex.InRange[rune]('0', '9'))(items)
	hasIntPart := n > 0
	hasFracPart := false
	idx := n
	if idx < uint(len(items)) && items[idx] == '.' {
		fn := lex.Star(lex.InRange[rune]('0', '9'))(items[idx+1:])
		if fn > 0 {
			hasFracPart = true
			idx += 1 + fn
		}
	}
	if !hasIntPart && !hasFracPart {
		return 0
	}
	if idx < uint(len(items)) && (items[idx] == 'e' || items[idx] == 'E') {
		j := idx + 1
		if j < uint(len(items)) && (items[j] == '+' || items[j] == '-') {
			j++
		}
		en := lex.Star(lex.InRange[rune]('0', '9'))(items[j:])
		if en > 0 {
			idx = j + en
		}
	}
	return idx
}

func identScanner(items []rune) uint {
	n := letterScanner(items)
	if n == 0 {
		return 0
	}
	return n + lex.Star[rune](alnumScanner)(items[n:])
}

func nanScanner(items []rune) uint {
	if len(items) >= 3 && strings.EqualFold(string(items[:3]), "nan") {
		// must not be a longer identifier, e.g. "nanette"
		if len(items) == 3 || alnumScanner(items[3:]) == 0 {
			return 3
		}
	}
	return 0
}

var rules = []lex.Rule[rune]{
	lex.NewRule[rune](nanScanner, tNaN),
	lex.NewRule[rune](numberScanner, tNumber),
	lex.NewRule[rune](identScanner, tIdent),
	lex.NewRule[rune](lex.Literal("<="), tLe),
	lex.NewRule[rune](lex.Literal(">="), tGe),
	lex.NewRule[rune](lex.Literal("<>"), tNe),
	lex.NewRule[rune](lex.Literal("&&"), tAndAnd),
	lex.NewRule[rune](lex.Literal("||"), tOrOr),
	lex.NewRule[rune](lex.Literal("+"), tPlus),
	lex.NewRule[rune](lex.Literal("-"), tMinus),
	lex.NewRule[rune](lex.Literal("*"), tStar),
	lex.NewRule[rune](lex.Literal("/"), tSlash),
	lex.NewRule[rune](lex.Literal("%"), tPercent),
	lex.NewRule[rune](lex.Literal("^"), tCaret),
	lex.NewRule[rune](lex.Literal("'"), tQuote),
	lex.NewRule[rune](lex.Literal("("), tLParen),
	lex.NewRule[rune](lex.Literal(")"), tRParen),
	lex.NewRule[rune](lex.Literal("["), tLBracket),
	lex.NewRule[rune](lex.Literal("]"), tRBracket),
	lex.NewRule[rune](lex.Literal(","), tComma),
	lex.NewRule[rune](lex.Literal(":"), tColon),
	lex.NewRule[rune](lex.Literal("@"), tAt),
	lex.NewRule[rune](lex.Literal("!"), tBang),
	lex.NewRule[rune](lex.Literal("="), tEq),
	lex.NewRule[rune](lex.Literal("<"), tLt),
	lex.NewRule[rune](lex.Literal(">"), tGt),
}

func newLexer(text string) *lex.Lexer[rune] {
	return lex.New([]rune(text), whitespaceOrComment, rules...)
}
