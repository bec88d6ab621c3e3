package util

import "testing"

func TestNamespacedRoundTrip(t *testing.T) {
	cases := []struct{ ns, key, want string }{
		{"", "a", "a"},
		{"user", "1", "user:1"},
		{"app:prod", "x:y", "app:prod:x:y"},
	}
	for _, tc := range cases {
		got := Namespaced(tc.ns, tc.key)
		if got != tc.want {
			t.Fatalf("Namespaced(%q,%q) = %q, want %q", tc.ns, tc.key, got, tc.want)
		}
		back, ok := StripNamespace(tc.ns, got)
		if !ok || back != tc.key {
			t.Fatalf("StripNamespace(%q,%q) = %q,%v", tc.ns, got, back, ok)
		}
	}
	if _, ok := StripNamespace("user", "other:1"); ok {
		t.Fatalf("expected foreign key to be rejected")
	}
}

func TestMatchPatternEscapes(t *testing.T) {
	if got := MatchPattern(""); got != "*" {
		t.Fatalf("empty ns: got %q", got)
	}
	if got := MatchPattern("user"); got != "user:*" {
		t.Fatalf("plain ns: got %q", got)
	}
	if got := MatchPattern("a*b[1]"); got != `a\*b\[1\]:*` {
		t.Fatalf("escaped ns: got %q", got)
	}
}

func TestShortHashStable(t *testing.T) {
	a, b := ShortHash("k"), ShortHash("k")
	if a != b || len(a) != 16 {
		t.Fatalf("unexpected hash %q / %q", a, b)
	}
	if ShortHash("k2") == a {
		t.Fatalf("expected different digests")
	}
}
