// Package strings provides small string helpers shared across packages
package strings

import (
	std "strings"
	"unicode/utf8"
)

// IfEmpty returns def if in is empty, otherwise returns in
func IfEmpty[T any](in []T, def []T) []T {
	if len(in) == 0 {
		return def
	}
	return in
}

// Or returns s unless it is blank, in which case def
func Or(s, def string) string {
	if std.TrimSpace(s) == "" {
		return def
	}
	return s
}

// MustString returns s if it has non whitespace content otherwise panics
// name is used in the panic message so you can tell what was missing
func MustString(s string, name string) string {
	if std.TrimSpace(s) == "" {
		panic(name + " is required")
	}
	return s
}

// MustPrefix normalizes and asserts a root path like /meta or /relay
// ensures a single leading slash and no trailing slash except for the root itself
// panics if the input is empty after trimming
func MustPrefix(s string) string {
	s = std.TrimSpace(s)
	s = "/" + std.Trim(s, " /")
	if s == "/" {
		panic("root path is required")
	}
	return s
}

// HeadRunes returns the first n runes of s, never splitting a multi-byte rune
func HeadRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		// byte length bounds rune count
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Excerpt returns at most n runes of s with an ellipsis when cut, for log lines
func Excerpt(s string, n int) string {
	s = std.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return HeadRunes(s, n) + "…"
}
