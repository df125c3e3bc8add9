package model

import "strings"

// Canonical normalizes an identifier for comparison/lookup purposes: surrounding
// quotes are trimmed, the result is case-folded, and runs of internal
// whitespace collapse to a single underscore. A `.` is preserved since it
// separates a module instance name from one of its outputs. Display names
// retain the caller's original string; only comparisons and map keys use
// the canonical form.
func Canonical(name string) string {
	s := strings.TrimSpace(name)
	s = strings.Trim(s, "'\"")
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			inSpace = true
			continue
		}
		if inSpace {
			b.WriteByte('_')
			inSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CanonicalModuleRef splits a "module.output" reference into its two
// canonicalized parts. ok is false if name contains no '.'.
func CanonicalModuleRef(name string) (module, output string, ok bool) {
	c := Canonical(name)
	idx := strings.IndexByte(c, '.')
	if idx < 0 {
		return "", "", false
	}
	return c[:idx], c[idx+1:], true
}
