package strings

import (
	"testing"

	kit "otprelay/internal/platform/testkit"
)

func TestIfEmpty(t *testing.T) {
	t.Parallel()

	in := []int{1, 2, 3}
	got := IfEmpty(in, []int{9})
	if len(got) != 3 || got[0] != 1 {
		t.Fatalf("IfEmpty returned wrong slice: %#v", got)
	}

	var empty []string
	got2 := IfEmpty(empty, []string{"x"})
	if len(got2) != 1 || got2[0] != "x" {
		t.Fatalf("IfEmpty did not return default: %#v", got2)
	}
}

func TestOr(t *testing.T) {
	t.Parallel()
	if got := Or("  ", "Unknown"); got != "Unknown" {
		t.Fatalf("Or blank = %q", got)
	}
	if got := Or("WhatsApp", "Unknown"); got != "WhatsApp" {
		t.Fatalf("Or value = %q", got)
	}
}

func TestMustHelpers(t *testing.T) {
	if got := MustPrefix(" relay/ "); got != "/relay" {
		t.Fatalf("MustPrefix = %q", got)
	}
	kit.MustPanic(t, func() { _ = MustPrefix(" / ") })
	kit.MustPanic(t, func() { _ = MustString("", "name") })
	if got := MustString("meta", "name"); got != "meta" {
		t.Fatalf("MustString = %q", got)
	}
}

func TestHeadRunes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 3, "hel"},
		{"hello", 10, "hello"},
		{"hello", 0, ""},
		{"کد شما ۱۲۳۴", 2, "کد"},
		{"验证码123456", 3, "验证码"},
		{"abc", 3, "abc"},
	}
	for _, c := range cases {
		if got := HeadRunes(c.in, c.n); got != c.want {
			t.Fatalf("HeadRunes(%q,%d) = %q, want %q", c.in, c.n, got, c.want)
		}
	}
}

func TestExcerpt(t *testing.T) {
	t.Parallel()
	if got := Excerpt("  short  ", 10); got != "short" {
		t.Fatalf("Excerpt short = %q", got)
	}
	if got := Excerpt("abcdefghijkl", 4); got != "abcd…" {
		t.Fatalf("Excerpt long = %q", got)
	}
}
