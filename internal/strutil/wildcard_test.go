package strutil

import "testing"

func TestWildcardMatchBasics(t *testing.T) {
	cases := []struct {
		tame, wild    string
		caseSensitive bool
		want          bool
	}{
		{"", "*", true, true},
		{"anything at all", "*", true, true},
		{"exact", "exact", true, true},
		{"exact", "exact", false, true},
		{"Exact", "exact", true, false},
		{"Exact", "exact", false, true},
		{"connected to host", "*connected*", true, true},
		{"connected to host", "connect*host", true, true},
		{"connect-rejected", "*connect*failed*", true, false},
		{"connected but later failed", "*connect*failed*", true, true},
		{"abc", "a?c", true, true},
		{"abc", "a?d", true, false},
		{"a*c", "a\\*c", true, true},
		{"abc", "a\\*c", true, false},
		{"a?c", "a\\?c", true, true},
		{"abc", "a\\?c", true, false},
		{"a\\c", "a\\\\c", true, true},
		{"abc", "*c", true, true},
		{"abc", "a*", true, true},
		{"abc", "*b*", true, true},
		{"", "?", true, false},
		{"ab", "?", true, false},
		{"a", "?", true, true},
	}
	for _, c := range cases {
		got := WildcardMatchUnsafe(c.tame, c.wild, c.caseSensitive)
		if got != c.want {
			t.Errorf("WildcardMatchUnsafe(%q, %q, %v) = %v, want %v",
				c.tame, c.wild, c.caseSensitive, got, c.want)
		}
	}
}

func TestWildcardMatchSelf(t *testing.T) {
	for _, s := range []string{"plain", "with space", "10.1.2.3", "a=b"} {
		if !WildcardMatchUnsafe(s, s, true) {
			t.Errorf("%q should match itself case-sensitively", s)
		}
		if !WildcardMatchUnsafe(s, s, false) {
			t.Errorf("%q should match itself case-insensitively", s)
		}
	}
}

func TestWildcardMatchPlaceholderBytesAreLiteral(t *testing.T) {
	// Logtype bytes contain reserved placeholder bytes; the matcher must
	// treat them as ordinary characters.
	logtype := "took \x11 ms"
	if !WildcardMatchUnsafe(logtype, "took \x11 ms", true) {
		t.Error("placeholder byte should match literally")
	}
	if WildcardMatchUnsafe("took 5 ms", "took \x11 ms", true) {
		t.Error("placeholder byte must not act as a wildcard")
	}
	if !WildcardMatchUnsafe(logtype, "took * ms", true) {
		t.Error("'*' should still match a placeholder byte")
	}
}

func TestCleanUpWildcardSearchString(t *testing.T) {
	cases := []struct{ in, want string }{
		{"**", "*"},
		{"a**b", "a*b"},
		{"***", "*"},
		{"\\a", "a"},
		{"\\*", "\\*"},
		{"\\?", "\\?"},
		{"\\\\", "\\\\"},
		{"trailing\\", "trailing"},
		{"*a?*b*", "*a?*b*"},
	}
	for _, c := range cases {
		if got := CleanUpWildcardSearchString(c.in); got != c.want {
			t.Errorf("CleanUpWildcardSearchString(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCleanUpProducesSameStringForStarVariants(t *testing.T) {
	if CleanUpWildcardSearchString("*foo*") != CleanUpWildcardSearchString("**foo**") {
		t.Error("'**' and '*' should normalize identically")
	}
}

func TestIsDelim(t *testing.T) {
	for _, c := range []byte("+-._AZaz09") {
		if IsDelim(c) {
			t.Errorf("%q should not be a delimiter", c)
		}
	}
	for _, c := range []byte(" \t:,=[]()<>/\"'") {
		if !IsDelim(c) {
			t.Errorf("%q should be a delimiter", c)
		}
	}
}

func TestCouldBeMultiDigitHexValue(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"ab", true},
		{"deadBEEF", true},
		{"0f", true},
		{"a", false},
		{"xyz", false},
		{"12g", false},
	}
	for _, c := range cases {
		if got := CouldBeMultiDigitHexValue(c.in); got != c.want {
			t.Errorf("CouldBeMultiDigitHexValue(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
