package lex

// Scanner reports how many items starting at items[0] it accepts, or 0 if it
// does not match at all.
type Scanner[T any] func(items []T) uint

// Seq requires every scanner to match, one after another; it reports the
// combined length or 0 if any scanner fails.
func Seq[T any](scanners ...Scanner[T]) Scanner[T] {
	return func(items []T) uint {
		var total uint
		for _, s := range scanners {
			n := s(items[total:])
			if n == 0 {
				return 0
			}
			total += n
		}
		return total
	}
}

// Any tries each scanner in order and returns the first match.
func Any[T any](scanners ...Scanner[T]) Scanner[T] {
	return func(items []T) uint {
		for _, s := range scanners {
			if n := s(items); n > 0 {
				return n
			}
		}
		return 0
	}
}

// Exactly matches a literal sequence of items.
func Exactly[T comparable](want ...T) Scanner[T] {
	return func(items []T) uint {
		if len(items) < len(want) {
			return 0
		}
		for i, w := range want {
			if items[i] != w {
				return 0
			}
		}
		return uint(len(want))
	}
}

// Literal matches a literal rune string.
func Literal(s string) Scanner[rune] {
	want := []rune(s)
	return Exactly(want...)
}

// InRange accepts exactly one item within [lo, hi].
func InRange[T int32 | byte](lo, hi T) Scanner[T] {
	return func(items []T) uint {
		if len(items) == 0 || items[0] < lo || items[0] > hi {
			return 0
		}
		return 1
	}
}

// Star matches zero or more repetitions of acceptor, greedily.
func Star[T any](acceptor Scanner[T]) Scanner[T] {
	return func(items []T) uint {
		var n uint
		for n < uint(len(items)) {
			m := acceptor(items[n:])
			if m == 0 {
				break
			}
			n += m
		}
		return n
	}
}

// Plus matches one or more repetitions of acceptor.
func Plus[T any](acceptor Scanner[T]) Scanner[T] {
	seq := Seq(acceptor, Star(acceptor))
	return func(items []T) uint {
		return seq(items)
	}
}

// Opt returns acceptor's own result. A Scanner cannot report a zero-length
// match, so when acceptor does not match Opt reports 0, which Seq and the
// Lexer read as no match.
func Opt[T any](acceptor Scanner[T]) Scanner[T] {
	return func(items []T) uint {
		return acceptor(items)
	}
}
