package ident

import "testing"

func TestInternRoundTrip(t *testing.T) {
	tbl := NewTable()
	a := tbl.Intern("f")
	b := tbl.Intern("g")
	c := tbl.Intern("f")

	if a != c {
		t.Fatalf("interning the same string twice must return the same atom")
	}
	if a == b {
		t.Fatalf("interning distinct strings must return distinct atoms")
	}
	if tbl.Lookup(a) != "f" || tbl.Lookup(b) != "g" {
		t.Fatalf("Lookup did not round-trip")
	}
	if tbl.Len() != 2 {
		t.Fatalf("expected 2 distinct atoms, got %d", tbl.Len())
	}
}

func TestHashStability(t *testing.T) {
	h1 := Hash("f")
	h2 := Hash("f")
	if h1 != h2 {
		t.Fatalf("Hash must be a pure function of its input")
	}
	if Hash("f") == Hash("g") {
		t.Fatalf("distinct names should not usually collide (got equal hashes)")
	}
}

func TestMixUnorderedCommutative(t *testing.T) {
	a, b := Hash("x"), Hash("y")
	if MixUnordered(a, b) != MixUnordered(b, a) {
		t.Fatalf("MixUnordered must be commutative for AC/ACU multiset hashing")
	}
}

func TestMixOrderSensitive(t *testing.T) {
	a, b := Hash("x"), Hash("y")
	if Mix(a, b) == Mix(b, a) {
		t.Fatalf("Mix should usually be order-sensitive for free-theory children")
	}
}
