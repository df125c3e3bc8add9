package lex

// Rule associates a Scanner with the token tag to emit when it matches.
// Rules are tried in order, so more specific rules (keywords, multi-char
// operators) must precede more general ones (identifiers, single-char
// operators).
type Rule[T any] struct {
	Scan Scanner[T]
	Tag  uint
}

// NewRule constructs a Rule.
func NewRule[T any](scan Scanner[T], tag uint) Rule[T] {
	return Rule[T]{scan, tag}
}

// Token is a tagged span of the input.
type Token struct {
	Tag  uint
	Span Span
}

// Lexer tokenizes an item slice according to an ordered list of Rules,
// skipping items accepted by Skip (typically whitespace) between tokens.
type Lexer[T any] struct {
	items []T
	index int
	rules []Rule[T]
	skip  Scanner[T]
}

// New constructs a Lexer over items using the given rules. skip may be nil.
func New[T any](items []T, skip Scanner[T], rules ...Rule[T]) *Lexer[T] {
	return &Lexer[T]{items: items, rules: rules, skip: skip}
}

// Offset returns the current byte/item offset.
func (l *Lexer[T]) Offset() int { return l.index }

// SeekTo repositions the lexer at a given offset, discarding any buffered
// lookahead. Used when a caller needs to reinterpret a token the rule table
// got wrong given surrounding context (e.g. a lexically ambiguous
// character whose meaning depends on what came before it).
func (l *Lexer[T]) SeekTo(offset int) { l.index = offset }

// Remaining reports how many items are left unconsumed.
func (l *Lexer[T]) Remaining() int {
	return max(0, len(l.items)-l.index)
}

func (l *Lexer[T]) skipIgnored() {
	if l.skip == nil {
		return
	}
	for l.index < len(l.items) {
		n := l.skip(l.items[l.index:])
		if n == 0 {
			return
		}
		l.index += int(n)
	}
}

// Peek returns the next token without consuming it, and whether one exists.
func (l *Lexer[T]) Peek() (Token, bool) {
	l.skipIgnored()
	if l.index >= len(l.items) {
		return Token{}, false
	}
	for _, r := range l.rules {
		if n := r.Scan(l.items[l.index:]); n > 0 {
			end := min(len(l.items), l.index+int(n))
			return Token{Tag: r.Tag, Span: NewSpan(l.index, end)}, true
		}
	}
	// Unrecognized item: emit a 1-wide token tagged 0 (caller-defined
	// "invalid" tag convention) so the parser can report it and recover.
	return Token{Tag: 0, Span: NewSpan(l.index, l.index+1)}, true
}

// Next consumes and returns the next token.
func (l *Lexer[T]) Next() (Token, bool) {
	tok, ok := l.Peek()
	if !ok {
		return tok, false
	}
	if tok.Span.End() == l.index {
		l.index++
	} else {
		l.index = tok.Span.End()
	}
	return tok, true
}

// Text returns the items covered by a Span.
func (l *Lexer[T]) Text(s Span) []T {
	return l.items[s.Start():s.End()]
}
