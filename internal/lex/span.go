// Package lex provides a small rule-table lexer generalized over an item
// type, in the spirit of a hand-rolled recursive-descent scanner: a set of
// Scanner combinators describe what a token looks like, and Lexer walks a
// rune slice applying the first rule that matches at each position.
package lex

// Span is a half-open range [Start, End) into the original item sequence.
type Span struct {
	start, end int
}

// NewSpan constructs a Span.
func NewSpan(start, end int) Span {
	return Span{start, end}
}

// Start returns the inclusive start offset.
func (s Span) Start() int { return s.start }

// End returns the exclusive end offset.
func (s Span) End() int { return s.end }

// Len returns the number of items covered.
func (s Span) Len() int { return s.end - s.start }
