// Package normalize folds SMS text into a form the OTP rules can match
// Pipeline order
// 1 Sanitize drops controls and invalid UTF-8
// 2 Unicode NFKC normalization
// 3 Remove format chars (ZWJ ZWNJ FEFF and friends)
// 4 Width fold fullwidth to ASCII
// 5 Map every Unicode decimal digit (Arabic-Indic, Devanagari, Bengali...) to ASCII
// 6 Collapse whitespace to single spaces and trim
//
// Case is preserved and combining marks are kept, since Devanagari keywords need them
package normalize

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Normalizer is concurrency safe when used with the pool below
type Normalizer struct{}

var chainPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFKC,
			runes.Remove(runes.In(unicode.Cf)),
			width.Fold,
			runes.Map(foldDigit),
		)
	},
}

var std = New()

// New constructs a Normalizer
func New() *Normalizer { return &Normalizer{} }

// Fold normalizes s with the package default Normalizer
func Fold(s string) string { return std.Normalize(s) }

// Normalize returns the folded form of s following the pipeline described above
func (n *Normalizer) Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = Sanitize(s)

	tr := chainPool.Get().(transform.Transformer)
	ns, _, err := transform.String(tr, s)
	tr.Reset()
	chainPool.Put(tr)
	if err != nil {
		// fall back to the sanitized input rather than lose the message
		ns = s
	}
	return collapseSpaces(ns)
}

// foldDigit maps a decimal digit from any script to its ASCII form
// Nd ranges are laid out as consecutive runs of ten starting at Lo
func foldDigit(r rune) rune {
	if r < 0x80 || !unicode.Is(unicode.Nd, r) {
		return r
	}
	for _, rg := range unicode.Nd.R16 {
		if lo, hi := rune(rg.Lo), rune(rg.Hi); r >= lo && r <= hi {
			return '0' + (r-lo)%10
		}
	}
	for _, rg := range unicode.Nd.R32 {
		if lo, hi := rune(rg.Lo), rune(rg.Hi); r >= lo && r <= hi {
			return '0' + (r-lo)%10
		}
	}
	return r
}

// collapseSpaces converts whitespace runs to a single ASCII space and trims the edges
// SMS bodies are matched as one line so newlines collapse too
func collapseSpaces(s string) string {
	if s == "" {
		return s
	}
	return strings.Join(strings.Fields(s), " ")
}
