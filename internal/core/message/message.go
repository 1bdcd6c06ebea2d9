// Package message renders an SMS record as a Telegram notification
package message

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"unicode/utf16"

	"otprelay/internal/core/sms"
	pstrings "otprelay/internal/platform/strings"
)

// ParseMode is the Telegram parse mode the text is escaped for
type ParseMode string

const (
	// HTML escapes with html entities and uses <b> and <code>
	HTML ParseMode = "HTML"
	// Markdown uses legacy Telegram Markdown
	Markdown ParseMode = "Markdown"
)

// DefaultTitle heads every notification unless overridden
const DefaultTitle = "LIVE OTP RECEIVED"

// MaxLen is Telegram's cap on message text, in UTF-16 code units
const MaxLen = 4096

const ellipsis = "…"

// Button is an inline URL button under the message
type Button struct {
	Label string
	URL   string
}

// Options controls rendering
type Options struct {
	Mode    ParseMode
	Mask    bool
	Title   string
	Footer  string
	Buttons []Button
}

// Formatter renders records; the zero value renders HTML without masking
type Formatter struct {
	opts Options
}

// New builds a Formatter, defaulting the mode and title
func New(opts Options) *Formatter {
	if opts.Mode != Markdown {
		opts.Mode = HTML
	}
	opts.Title = pstrings.Or(opts.Title, DefaultTitle)
	return &Formatter{opts: opts}
}

// Mode is the parse mode the output is escaped for
func (f *Formatter) Mode() ParseMode { return f.opts.Mode }

// Buttons are the inline buttons to attach
func (f *Formatter) Buttons() []Button { return f.opts.Buttons }

// Format renders rec with its extracted otp
func (f *Formatter) Format(rec sms.Record, otp string) string {
	number := pstrings.Or(rec.Number, "N/A")
	if number != "N/A" {
		if f.opts.Mask {
			number = MaskNumber(number)
		}
		number = PlusPrefix(number)
	}

	var b strings.Builder
	bold, code, esc := f.markup()
	fmt.Fprintf(&b, "📩 %s\n\n", bold(esc(f.opts.Title)))
	fmt.Fprintf(&b, "📞 %s %s\n", bold("Number:"), code(number))
	fmt.Fprintf(&b, "🔢 %s 🔥 %s 🔥\n", bold("OTP:"), code(otp))
	fmt.Fprintf(&b, "🏷 %s %s\n", bold("Service:"), esc(pstrings.Or(rec.Service, "Unknown")))
	fmt.Fprintf(&b, "🌍 %s %s\n", bold("Country:"), esc(rec.Country()))
	fmt.Fprintf(&b, "🕒 %s %s\n\n", bold("Time:"), esc(rec.RawTimestamp))
	fmt.Fprintf(&b, "💬 %s\n", bold("SMS:"))

	var tail string
	if footer := strings.TrimSpace(f.opts.Footer); footer != "" {
		tail = "\n\n⚡ " + bold(esc(footer))
	}
	b.WriteString(fitBody(rec.Message, MaxLen-textLen(b.String())-textLen(tail), esc))
	b.WriteString(tail)
	return b.String()
}

// fitBody escapes msg and cuts it on a rune boundary so the result fits budget,
// marking a cut with an ellipsis
func fitBody(msg string, budget int, esc func(string) string) string {
	if e := esc(msg); textLen(e) <= budget {
		return e
	}
	r := []rune(msg)
	n := min(len(r), budget)
	for n > 0 {
		e := esc(string(r[:n])) + ellipsis
		over := textLen(e) - budget
		if over <= 0 {
			return e
		}
		n -= over
	}
	return ellipsis
}

// textLen counts UTF-16 code units, the unit Telegram measures text in
func textLen(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

func (f *Formatter) markup() (bold, code, esc func(string) string) {
	if f.opts.Mode == Markdown {
		return func(s string) string { return "*" + s + "*" },
			func(s string) string { return "`" + strings.ReplaceAll(s, "`", "'") + "`" },
			EscapeMarkdown
	}
	return func(s string) string { return "<b>" + s + "</b>" },
		func(s string) string { return "<code>" + html.EscapeString(s) + "</code>" },
		html.EscapeString
}

var mdEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "[", `\[`, "`", "\\`")

// EscapeMarkdown escapes the legacy Markdown entity characters
func EscapeMarkdown(s string) string { return mdEscaper.Replace(s) }

// MaskNumber keeps the first 3 and last 4 characters and stars the middle
// Numbers shorter than 8 characters are returned as is
func MaskNumber(n string) string {
	r := []rune(n)
	if len(r) < 8 {
		return n
	}
	return string(r[:3]) + strings.Repeat("*", len(r)-7) + string(r[len(r)-4:])
}

// PlusPrefix adds a leading + to numbers that start with a digit
func PlusPrefix(n string) string {
	if n != "" && n[0] >= '0' && n[0] <= '9' {
		return "+" + n
	}
	return n
}

// ParseButtons reads "Label=url;Label=url" into buttons
func ParseButtons(spec string) ([]Button, error) {
	var out []Button
	for _, part := range strings.Split(spec, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		label, link, ok := strings.Cut(part, "=")
		label, link = strings.TrimSpace(label), strings.TrimSpace(link)
		if !ok || label == "" || link == "" {
			return nil, fmt.Errorf("button %q: want Label=url", part)
		}
		u, err := url.Parse(link)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("button %q: invalid url", label)
		}
		out = append(out, Button{Label: label, URL: link})
	}
	return out, nil
}
