// Package otp extracts one-time passcodes from SMS bodies
//
// Rules run in order and the first match wins
// 1 labeled service context ("Telegram code 12345", "123456 is your Instagram code")
// 2 keyword context in several scripts followed by up to 20 non-digits
// 3 split groups like 589-837 or 589 837
// 4 the first standalone run of 4 to 8 digits
//
// Text is folded by the normalize package first, so fullwidth and Arabic-Indic digits match
package otp

import (
	"regexp"
	"strings"

	"otprelay/internal/core/normalize"
)

// NoOTP is returned when nothing in the message looks like a passcode
const NoOTP = "N/A"

// Rule names the rule that produced a match
type Rule string

const (
	// RuleLabeled matched a known service name next to a code
	RuleLabeled Rule = "labeled"
	// RuleKeyword matched a generic code/password keyword
	RuleKeyword Rule = "keyword"
	// RuleSplit matched a split digit group
	RuleSplit Rule = "split"
	// RuleFallback matched a bare digit run
	RuleFallback Rule = "fallback"
	// RuleNone means no rule matched
	RuleNone Rule = "none"
)

// Match is the outcome of one extraction
type Match struct {
	OTP  string
	Rule Rule
}

// Found reports whether a passcode was extracted
func (m Match) Found() bool { return m.Rule != RuleNone }

// Services are the labels recognized by the labeled rule
var Services = []string{
	"Telegram", "WhatsApp", "Facebook", "Instagram", "Google", "Microsoft", "TikTok",
	"Apple", "Signal", "Viber", "Discord", "Twitter", "X", "Amazon", "Uber",
}

// code captures a split group or a plain 4-8 digit run, split first so it is not half-captured
const code = `(\d{3,4}[-\s]\d{3,4}|\d{4,8})\b`

var (
	latinKeywords = []string{"verification", "passcode", "password", "code", "otp", "pin"}

	// non-Latin scripts have no ASCII word boundary, so they match as substrings
	otherKeywords = []string{
		"验证码", "代码", "密码", // zh
		"인증번호", "비밀번호", "코드", // ko
		"пароль", "код", // ru
		"पासवर्ड", "कोड", // hi
		"كلمة المرور", "رمز", "كود", // ar
	}

	keywordRe = regexp.MustCompile(`(?i)(?:\b(?:` + strings.Join(latinKeywords, "|") + `)|` +
		strings.Join(otherKeywords, "|") + `)[^\d]{0,20}?` + code)
	splitRe    = regexp.MustCompile(`\b(\d{3,4}[-\s]\d{3,4})\b`)
	fallbackRe = regexp.MustCompile(`\b(\d{4,8})\b`)

	std = NewExtractor()
)

// Extract returns the passcode in message or NoOTP
func Extract(message string) string { return std.Match(message).OTP }

// Extractor runs the rule chain with an optional extended service list
type Extractor struct {
	labeled []*regexp.Regexp
}

// NewExtractor builds an extractor that knows Services plus extra labels
func NewExtractor(extra ...string) *Extractor {
	names := make([]string, 0, len(Services)+len(extra))
	seen := map[string]bool{}
	for _, s := range append(append([]string{}, Services...), extra...) {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		names = append(names, regexp.QuoteMeta(s))
	}
	alt := strings.Join(names, "|")
	return &Extractor{labeled: []*regexp.Regexp{
		// "Telegram code: 12345", "WhatsApp verification code is 123-456", "Google OTP #1234"
		regexp.MustCompile(`(?i)\b(?:` + alt + `)\b(?:\s+(?:login|verification|security|confirmation))?\s+(?:code|otp)\s*(?:is\s*)?[:#\-]?\s*` + code),
		// "123456 is your Instagram code", "G-123456 is your Google verification code"
		regexp.MustCompile(`(?i)\b(?:G-)?(\d{4,8})\s+is\s+your\s+(?:` + alt + `)\b`),
	}}
}

// Match runs the rule chain over message
func (e *Extractor) Match(message string) Match {
	text := normalize.Fold(message)
	if text == "" {
		return Match{OTP: NoOTP, Rule: RuleNone}
	}
	for _, re := range e.labeled {
		if m := re.FindStringSubmatch(text); m != nil {
			return Match{OTP: m[1], Rule: RuleLabeled}
		}
	}
	if m := keywordRe.FindStringSubmatch(text); m != nil {
		return Match{OTP: m[1], Rule: RuleKeyword}
	}
	if m := splitRe.FindStringSubmatch(text); m != nil {
		return Match{OTP: m[1], Rule: RuleSplit}
	}
	if m := fallbackRe.FindStringSubmatch(text); m != nil {
		return Match{OTP: m[1], Rule: RuleFallback}
	}
	return Match{OTP: NoOTP, Rule: RuleNone}
}

// Extract returns the passcode in message or NoOTP
func (e *Extractor) Extract(message string) string { return e.Match(message).OTP }
