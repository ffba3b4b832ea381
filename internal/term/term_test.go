package term

import (
	"testing"

	"github.com/dagterm/rewrite/internal/ident"
	"github.com/dagterm/rewrite/internal/symbol"
)

func setup(t *testing.T) (*ident.Table, *symbol.Table) {
	t.Helper()
	return ident.NewTable(), symbol.NewTable()
}

func TestHashStableAfterNormalize(t *testing.T) {
	names, syms := setup(t)
	f, _ := syms.Declare(names, "f", 2, nil, symbol.TheoryFree, false)
	a, _ := syms.Declare(names, "a", 0, nil, symbol.TheoryFree, false)
	b, _ := syms.Declare(names, "b", 0, nil, symbol.TheoryFree, false)

	term := NewFree(f, []*Term{NewFree(a, nil), NewFree(b, nil)})
	term.Normalize()
	h1 := term.Hash()
	h2 := term.Hash()
	if h1 != h2 {
		t.Fatalf("hash must be stable after normalize")
	}
}

func TestFreeTermEquality(t *testing.T) {
	names, syms := setup(t)
	f, _ := syms.Declare(names, "f", 2, nil, symbol.TheoryFree, false)
	a, _ := syms.Declare(names, "a", 0, nil, symbol.TheoryFree, false)
	b, _ := syms.Declare(names, "b", 0, nil, symbol.TheoryFree, false)

	t1 := NewFree(f, []*Term{NewFree(a, nil), NewFree(b, nil)}).Normalize()
	t2 := NewFree(f, []*Term{NewFree(a, nil), NewFree(b, nil)}).Normalize()
	t3 := NewFree(f, []*Term{NewFree(b, nil), NewFree(a, nil)}).Normalize()

	if !Equal(t1, t2) {
		t.Fatalf("structurally identical free terms must be equal")
	}
	if Equal(t1, t3) {
		t.Fatalf("free terms are order-sensitive; f(a,b) != f(b,a)")
	}
}

func TestACUOrderIndependence(t *testing.T) {
	names, syms := setup(t)
	plus, _ := syms.Declare(names, "plus", 0, nil, symbol.TheoryAC, false)
	a, _ := syms.Declare(names, "a", 0, nil, symbol.TheoryFree, false)
	b, _ := syms.Declare(names, "b", 0, nil, symbol.TheoryFree, false)

	ta := NewFree(a, nil)
	tb := NewFree(b, nil)

	t1 := NewACU(symbol.TheoryAC, plus, []ACUChild{{ta, 1}, {tb, 1}}).Normalize()
	t2 := NewACU(symbol.TheoryAC, plus, []ACUChild{{tb, 1}, {ta, 1}}).Normalize()

	if t1.Hash() != t2.Hash() {
		t.Fatalf("AC terms with the same multiset must hash identically regardless of input order")
	}
	if !Equal(t1, t2) {
		t.Fatalf("AC terms with the same multiset must be Equal regardless of input order")
	}
}

func TestACUFlattensNestedSameSymbol(t *testing.T) {
	names, syms := setup(t)
	plus, _ := syms.Declare(names, "plus", 0, nil, symbol.TheoryAC, false)
	a, _ := syms.Declare(names, "a", 0, nil, symbol.TheoryFree, false)

	ta := NewFree(a, nil)
	inner := NewACU(symbol.TheoryAC, plus, []ACUChild{{ta, 2}}).Normalize()
	outer := NewACU(symbol.TheoryAC, plus, []ACUChild{{inner, 3}, {ta, 1}}).Normalize()

	// inner contributes multiplicity 2*3=6 more of `a`, plus the direct 1.
	total := 0
	for _, c := range outer.ACU {
		if c.Term.Sym == a {
			total += c.Multiplicity
		}
	}
	if total != 7 {
		t.Fatalf("expected flattened multiplicity 7, got %d", total)
	}
	if len(outer.ACU) != 1 {
		t.Fatalf("expected a single merged child after flatten+merge, got %d", len(outer.ACU))
	}
}

func TestGroundAndOccursBelow(t *testing.T) {
	names, syms := setup(t)
	f, _ := syms.Declare(names, "f", 1, nil, symbol.TheoryFree, false)
	a, _ := syms.Declare(names, "a", 0, nil, symbol.TheoryFree, false)

	ground := NewFree(f, []*Term{NewFree(a, nil)}).Normalize()
	if !ground.IsGround() {
		t.Fatalf("f(a) should be ground")
	}

	v := NewVariable(names.Intern("x"), 0)
	v.VarIndex = 0
	withVar := NewFree(f, []*Term{v}).Normalize()
	if withVar.IsGround() {
		t.Fatalf("f(x) should not be ground")
	}
	if !withVar.OccursBelow().Test(0) {
		t.Fatalf("expected variable index 0 in occursBelow")
	}
}
