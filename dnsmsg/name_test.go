package dnsmsg

import "testing"

func TestIsAncestor(t *testing.T) {
	cases := []struct {
		ancestor, name string
		want           bool
	}{
		{".", "example.com.", true},
		{"com.", "example.com.", true},
		{"example.com.", "example.com.", true},
		{"www.example.com.", "example.com.", false},
		{"org.", "example.com.", false},
		{"COM.", "example.com.", true},
	}
	for _, c := range cases {
		if got := IsAncestor(c.ancestor, c.name); got != c.want {
			t.Errorf("IsAncestor(%q, %q) = %v, want %v", c.ancestor, c.name, got, c.want)
		}
	}
}

func TestParent(t *testing.T) {
	cases := []struct{ name, want string }{
		{"www.example.com.", "example.com."},
		{"example.com.", "com."},
		{"com.", "."},
		{".", "."},
	}
	for _, c := range cases {
		if got := Parent(c.name); got != c.want {
			t.Errorf("Parent(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestEqualNamesIgnoresCaseAndTrailingDot(t *testing.T) {
	if !EqualNames("Example.COM", "example.com.") {
		t.Error("expected names to compare equal")
	}
	if EqualNames("example.com.", "example.org.") {
		t.Error("expected names to compare unequal")
	}
}
