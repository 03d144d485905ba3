package id

import (
	"testing"
)

func TestNextAtMonotonic(t *testing.T) {
	g := NewGenerator()
	a := g.NextAt(1000)
	b := g.NextAt(1000)
	c := g.NextAt(999) // clock went backwards
	if a.Compare(b) != -1 {
		t.Fatalf("expected a < b")
	}
	if b.Compare(c) != -1 {
		t.Fatalf("expected b < c even with a regressing clock")
	}
	if c.TimeMs() != 1000 {
		t.Fatalf("regressing clock should reuse last ms, got %d", c.TimeMs())
	}
}

func TestTimeMs(t *testing.T) {
	g := NewGenerator()
	got := g.NextAt(123456789)
	if got.TimeMs() != 123456789 {
		t.Fatalf("TimeMs = %d, want 123456789", got.TimeMs())
	}
}

func TestParseRoundTrip(t *testing.T) {
	g := NewGenerator()
	orig := g.NextAt(42)
	parsed, err := Parse(orig.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != orig {
		t.Fatalf("round trip mismatch: %v != %v", parsed, orig)
	}
	if _, err := Parse("zz"); err == nil {
		t.Fatalf("expected error for short input")
	}
}

func TestFromBytes(t *testing.T) {
	g := NewGenerator()
	orig := g.NextAt(7)
	back, err := FromBytes(orig.Bytes())
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	if back != orig {
		t.Fatalf("mismatch after FromBytes")
	}
	if _, err := FromBytes([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for wrong length")
	}
}
