package automaton

import (
	"testing"

	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/ident"
	"github.com/dagterm/rewrite/internal/subst"
	"github.com/dagterm/rewrite/internal/symbol"
	"github.com/dagterm/rewrite/internal/term"
)

func setup() (*ident.Table, *symbol.Table) {
	return ident.NewTable(), symbol.NewTable()
}

// TestMatchCrossesFreeIntoACUAlien builds f(X + a) against a concrete
// f(a + b + a) subject: the free skeleton f(...) defers its AC/ACU child
// to internal/acu, which in turn resolves the lone variable X against the
// leftover multiset.
func TestMatchCrossesFreeIntoACUAlien(t *testing.T) {
	names, syms := setup()
	f, _ := syms.Declare(names, "f", 1, nil, symbol.TheoryFree, false)
	plus, _ := syms.Declare(names, "plus", 2, nil, symbol.TheoryAC, false)
	a, _ := syms.Declare(names, "a", 0, nil, symbol.TheoryFree, false)
	b, _ := syms.Declare(names, "b", 0, nil, symbol.TheoryFree, false)

	x := term.NewVariable(names.Intern("x"), 0)
	x.VarIndex = 0

	sum := term.NewACU(symbol.TheoryAC, plus, []term.ACUChild{
		{Term: term.NewFree(a, nil), Multiplicity: 1},
		{Term: x, Multiplicity: 1},
	})
	pattern := term.NewFree(f, []*term.Term{sum}).Normalize()
	auto := Compile(pattern)

	cache := dagnode.NewHashConsSet()
	subjectTerm := term.NewFree(f, []*term.Term{
		term.NewACU(symbol.TheoryAC, plus, []term.ACUChild{
			{Term: term.NewFree(a, nil), Multiplicity: 2},
			{Term: term.NewFree(b, nil), Multiplicity: 1},
		}),
	}).Normalize()
	subject := dagnode.Dagify(subjectTerm, cache, nil)

	sub := subst.New(1)
	ok, err := auto.Match(subject, sub)
	if err != nil || !ok {
		t.Fatalf("expected f(a+X) to match f(a+a+b): ok=%v err=%v", ok, err)
	}
	bound := sub.Value(0)
	if bound == nil || len(bound.ACU) != 2 {
		t.Fatalf("expected x bound to the leftover a+b multiset, got %+v", bound)
	}
}

// TestMatchCrossesACUIntoFreeAlien is the reverse boundary: an AC/ACU
// pattern whose alien child is a free-theory subterm with its own
// variable, resolved through the bipartite subproblem.
func TestMatchCrossesACUIntoFreeAlien(t *testing.T) {
	names, syms := setup()
	p, _ := syms.Declare(names, "p", 2, nil, symbol.TheoryAC, false)
	f, _ := syms.Declare(names, "f", 1, nil, symbol.TheoryFree, false)
	a, _ := syms.Declare(names, "a", 0, nil, symbol.TheoryFree, false)

	y := term.NewVariable(names.Intern("y"), 0)
	y.VarIndex = 0

	pattern := term.NewACU(symbol.TheoryAC, p, []term.ACUChild{
		{Term: term.NewFree(a, nil), Multiplicity: 1},
		{Term: term.NewFree(f, []*term.Term{y}), Multiplicity: 1},
	}).Normalize()
	auto := Compile(pattern)

	cache := dagnode.NewHashConsSet()
	subjectTerm := term.NewACU(symbol.TheoryAC, p, []term.ACUChild{
		{Term: term.NewFree(a, nil), Multiplicity: 1},
		{Term: term.NewFree(f, []*term.Term{term.NewFree(a, nil)}), Multiplicity: 1},
	}).Normalize()
	subject := dagnode.Dagify(subjectTerm, cache, nil)

	sub := subst.New(1)
	ok, err := auto.Match(subject, sub)
	if err != nil || !ok {
		t.Fatalf("expected p(a, f(y)) to match p(a, f(a)): ok=%v err=%v", ok, err)
	}
	if bound := sub.Value(0); bound == nil || bound.Sym != a {
		t.Fatalf("expected y bound to a, got %+v", bound)
	}
}

func TestMatchRejectsMismatchedSubject(t *testing.T) {
	names, syms := setup()
	f, _ := syms.Declare(names, "f", 1, nil, symbol.TheoryFree, false)
	g, _ := syms.Declare(names, "g", 1, nil, symbol.TheoryFree, false)
	a, _ := syms.Declare(names, "a", 0, nil, symbol.TheoryFree, false)

	pattern := term.NewFree(f, []*term.Term{term.NewFree(a, nil)}).Normalize()
	auto := Compile(pattern)

	cache := dagnode.NewHashConsSet()
	subject := dagnode.Dagify(term.NewFree(g, []*term.Term{term.NewFree(a, nil)}).Normalize(), cache, nil)

	sub := subst.New(0)
	ok, err := auto.Match(subject, sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected g(a) not to match f(a)")
	}
}
