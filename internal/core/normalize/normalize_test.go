package normalize

import (
	"testing"
)

func TestNormalize_Table(t *testing.T) {
	n := New()

	tests := []struct {
		name string
		in   string
		out  string
	}{
		{
			name: "identity ascii",
			in:   "Your code is 123456",
			out:  "Your code is 123456",
		},
		{
			name: "utf8 repair drops invalid bytes",
			in:   string([]byte{0xff, 'c', 'o', 'd', 'e', 0x80, ' ', '1', '2'}),
			out:  "code 12",
		},
		{
			name: "case kept",
			in:   "WhatsApp CODE",
			out:  "WhatsApp CODE",
		},
		{
			name: "remove zero-widths",
			in:   "12\u200B34\u200D56\uFEFF",
			out:  "123456",
		},
		{
			name: "width fold fullwidth digits",
			in:   "認証コード １２３４５６",
			out:  "認証コード 123456",
		},
		{
			name: "arabic-indic digits",
			in:   "رمز التحقق ٤٨٢٩١٣",
			out:  "رمز التحقق 482913",
		},
		{
			name: "extended arabic-indic digits",
			in:   "کد شما ۷۳۱۰۵۲",
			out:  "کد شما 731052",
		},
		{
			name: "devanagari digits and marks kept",
			in:   "आपका कोड ९८७६५४ है",
			out:  "आपका कोड 987654 है",
		},
		{
			name: "collapse whitespace and newlines",
			in:   " \tTelegram code\n\n 55555 \r\n",
			out:  "Telegram code 55555",
		},
		{
			name: "controls removed",
			in:   "otp\x00 12\x7f34",
			out:  "otp 1234",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := n.Normalize(tc.in)
			if got != tc.out {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.out)
			}
			if again := n.Normalize(got); again != got {
				t.Fatalf("Normalize not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestFoldDigit(t *testing.T) {
	cases := []struct {
		in, want rune
	}{
		{'7', '7'},
		{'a', 'a'},
		{'\u0660', '0'}, // arabic-indic zero
		{'\u0669', '9'},
		{'\u06F5', '5'}, // extended arabic-indic five
		{'\u0966', '0'}, // devanagari zero
		{'\u09E7', '1'}, // bengali one
		{'\uFF13', '3'}, // fullwidth three is Nd as well
		{'\u0E51', '1'}, // thai one
	}
	for _, c := range cases {
		if got := foldDigit(c.in); got != c.want {
			t.Fatalf("foldDigit(%U) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitize(t *testing.T) {
	if got := Sanitize("plain text\n"); got != "plain text\n" {
		t.Fatalf("clean input changed: %q", got)
	}
	if got := Sanitize("a\x01b\u0085c\xffd"); got != "abcd" {
		t.Fatalf("Sanitize = %q", got)
	}
	if got := Sanitize(""); got != "" {
		t.Fatalf("empty = %q", got)
	}
}
