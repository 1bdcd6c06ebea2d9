package normalize

import (
	"strings"
	"unicode/utf8"
)

// Sanitize removes runes that never belong in a message body
// NUL, ASCII controls except tab and line breaks, DEL, C1 controls and invalid UTF-8 bytes
// Returns s unchanged when nothing needs cleaning
func Sanitize(s string) string {
	if s == "" || clean(s) {
		return s
	}
	s = strings.ToValidUTF8(s, "")
	return strings.Map(func(r rune) rune {
		if dropped(r) {
			return -1
		}
		return r
	}, s)
}

func clean(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if dropped(r) {
			return false
		}
	}
	return true
}

func dropped(r rune) bool {
	switch {
	case r == '\n' || r == '\r' || r == '\t':
		return false
	case r < 0x20, r == 0x7F:
		return true
	case r >= 0x80 && r <= 0x9F:
		return true
	}
	return false
}
