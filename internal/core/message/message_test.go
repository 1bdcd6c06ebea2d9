package message

import (
	"strings"
	"testing"
	"unicode/utf8"

	"otprelay/internal/core/sms"
	kit "otprelay/internal/platform/testkit"
)

func rec() sms.Record {
	return sms.Record{
		RawTimestamp: "2025-06-01 10:00:00",
		Route:        "US-Route",
		Number:       "15551234567",
		Service:      "Telegram",
		Message:      "Telegram code 482913 <don't share> & *stay* safe",
	}
}

func TestFormatHTML(t *testing.T) {
	f := New(Options{Footer: "CYBER CORE OTP"})
	out := f.Format(rec(), "482913")

	kit.MustContain(t, out, "📩 <b>LIVE OTP RECEIVED</b>")
	kit.MustContain(t, out, "<code>+15551234567</code>")
	kit.MustContain(t, out, "🔥 <code>482913</code> 🔥")
	kit.MustContain(t, out, "🏷 <b>Service:</b> Telegram")
	kit.MustContain(t, out, "🌍 <b>Country:</b> US")
	kit.MustContain(t, out, "🕒 <b>Time:</b> 2025-06-01 10:00:00")
	kit.MustContain(t, out, "&lt;don&#39;t share&gt; &amp;")
	kit.MustContain(t, out, "⚡ <b>CYBER CORE OTP</b>")
	if f.Mode() != HTML {
		t.Fatalf("mode = %q", f.Mode())
	}
}

func TestFormatMarkdownMasked(t *testing.T) {
	f := New(Options{Mode: Markdown, Mask: true, Title: "NEW_CODE"})
	out := f.Format(rec(), "482913")

	kit.MustContain(t, out, "📩 *NEW\\_CODE*")
	kit.MustContain(t, out, "`+155****4567`")
	kit.MustContain(t, out, "\\*stay\\*")
	if strings.Contains(out, "⚡") {
		t.Fatalf("footer rendered without being configured:\n%s", out)
	}
}

func TestFormatMissingFields(t *testing.T) {
	out := New(Options{}).Format(sms.Record{RawTimestamp: "2025-06-01 10:00:00"}, "N/A")
	kit.MustContain(t, out, "<code>N/A</code>")
	kit.MustContain(t, out, "Service:</b> Unknown")
	kit.MustContain(t, out, "Country:</b> Unknown")
}

func TestFormatOversizeBody(t *testing.T) {
	cases := []struct {
		name string
		mode ParseMode
		body string
	}{
		{"html entities", HTML, "Your code is 482913 " + strings.Repeat("<&>", 2000)},
		{"markdown escapes", Markdown, "code 482913 " + strings.Repeat("_*", 3000)},
		{"astral runes", HTML, "code 482913 " + strings.Repeat("😀", 5000)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := rec()
			r.Message = tc.body
			out := New(Options{Mode: tc.mode, Footer: "CYBER CORE OTP"}).Format(r, "482913")

			if n := textLen(out); n > MaxLen {
				t.Fatalf("text length = %d, cap %d", n, MaxLen)
			}
			if !utf8.ValidString(out) {
				t.Fatalf("cut split a rune")
			}
			kit.MustContain(t, out, ellipsis)
			kit.MustContain(t, out, "482913")
			kit.MustContain(t, out, "CYBER CORE OTP")
			if tc.mode == HTML && strings.Contains(out, "&l"+ellipsis) {
				t.Fatalf("cut split an entity")
			}
		})
	}

	// bodies that fit are not touched
	out := New(Options{}).Format(rec(), "482913")
	if strings.Contains(out, ellipsis) {
		t.Fatalf("short body was cut")
	}
}

func TestMaskNumber(t *testing.T) {
	cases := map[string]string{
		"8801712345678": "880******5678",
		"+15551234567":  "+15*****4567",
		"12345678":      "123*5678",
		"1234567":       "1234567",
		"":              "",
	}
	for in, want := range cases {
		if got := MaskNumber(in); got != want {
			t.Fatalf("MaskNumber(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPlusPrefix(t *testing.T) {
	if got := PlusPrefix("880171"); got != "+880171" {
		t.Fatalf("got %q", got)
	}
	if got := PlusPrefix("+1555"); got != "+1555" {
		t.Fatalf("got %q", got)
	}
	if got := PlusPrefix("N/A"); got != "N/A" {
		t.Fatalf("got %q", got)
	}
}

func TestParseButtons(t *testing.T) {
	bs, err := ParseButtons(" Support=https://t.me/support ; Numbers=https://t.me/numbers;")
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if len(bs) != 2 || bs[0].Label != "Support" || bs[1].URL != "https://t.me/numbers" {
		t.Fatalf("buttons = %+v", bs)
	}
	if bs, err := ParseButtons(""); err != nil || len(bs) != 0 {
		t.Fatalf("empty spec = %+v, %v", bs, err)
	}
	for _, bad := range []string{"Support", "=https://x.y", "Support=not a url", "Support=/relative"} {
		if _, err := ParseButtons(bad); err == nil {
			t.Fatalf("ParseButtons(%q) expected error", bad)
		}
	}
}
