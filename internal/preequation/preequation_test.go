package preequation

import (
	"testing"

	"github.com/dagterm/rewrite/internal/condition"
	"github.com/dagterm/rewrite/internal/dagnode"
	"github.com/dagterm/rewrite/internal/ident"
	"github.com/dagterm/rewrite/internal/subst"
	"github.com/dagterm/rewrite/internal/symbol"
	"github.com/dagterm/rewrite/internal/term"
)

func setup() (*ident.Table, *symbol.Table) {
	return ident.NewTable(), symbol.NewTable()
}

func TestAttributesValidate(t *testing.T) {
	cases := []struct {
		name    string
		attrs   Attributes
		wantErr bool
	}{
		{"empty ok", Attributes{}, false},
		{"otherwise with compiled ok", Attributes{Otherwise: true, Compiled: true}, false},
		{"otherwise with variant ok", Attributes{Otherwise: true, Variant: true}, false},
		{"bad and nonexec clash", Attributes{Bad: true, NonExec: true}, true},
		{"compiled and bad clash", Attributes{Compiled: true, Bad: true}, true},
		{"compiled and nonexec clash", Attributes{Compiled: true, NonExec: true}, true},
	}
	for _, c := range cases {
		err := c.attrs.Validate()
		if c.wantErr && err == nil {
			t.Errorf("%s: expected error, got nil", c.name)
		}
		if !c.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", c.name, err)
		}
	}
}

// TestCompileEquationIndexesVariablesAndMatches builds f(x) -> g(x): a
// single-variable free-theory equation, compiles it, and matches it
// against a concrete f(a) subject, then builds the RHS.
func TestCompileEquationIndexesVariablesAndMatches(t *testing.T) {
	names, syms := setup()
	f, _ := syms.Declare(names, "f", 1, nil, symbol.TheoryFree, false)
	g, _ := syms.Declare(names, "g", 1, nil, symbol.TheoryFree, false)
	a, _ := syms.Declare(names, "a", 0, nil, symbol.TheoryFree, false)

	x := term.NewVariable(names.Intern("x"), 0)
	lhs := term.NewFree(f, []*term.Term{x})
	rhs := term.NewFree(g, []*term.Term{term.NewVariable(names.Intern("x"), 0)})

	eq := New(EquationKind, "f->g", lhs, rhs, nil, Attributes{})
	if err := eq.Compile(false, false); err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	if !eq.Attrs.Compiled {
		t.Fatalf("expected equation to be marked Compiled")
	}
	if eq.VarCount() != 1 {
		t.Fatalf("expected exactly one variable, got %d", eq.VarCount())
	}

	cache := dagnode.NewHashConsSet()
	subject := dagnode.Dagify(term.NewFree(f, []*term.Term{term.NewFree(a, nil)}).Normalize(), cache, nil)

	sub := subst.New(eq.VarCount())
	ok, err := eq.MatchLHS(subject, sub)
	if err != nil || !ok {
		t.Fatalf("expected f(a) to match f(x): ok=%v err=%v", ok, err)
	}

	built := eq.BuildRHS(sub, cache)
	if built == nil || built.Sym != g {
		t.Fatalf("expected built RHS to be g(a), got %+v", built)
	}
	if len(built.Children) != 1 || built.Children[0].Sym != a {
		t.Fatalf("expected g(a)'s argument to be a, got %+v", built.Children)
	}
	if eq.Stats.AttemptCount != 1 || eq.Stats.SuccessCount != 1 {
		t.Fatalf("expected one recorded attempt and success, got %+v", eq.Stats)
	}

	b, _ := syms.Declare(names, "b", 0, nil, symbol.TheoryFree, false)
	miss := dagnode.Dagify(term.NewFree(f, []*term.Term{term.NewFree(b, nil)}).Normalize(), cache, nil)
	sub2 := subst.New(eq.VarCount())
	if ok, err := eq.MatchLHS(miss, sub2); err != nil || !ok {
		t.Fatalf("expected f(b) to also match f(x): ok=%v err=%v", ok, err)
	}
	if eq.Stats.AttemptCount != 2 || eq.Stats.SuccessCount != 2 {
		t.Fatalf("expected two recorded attempts and successes, got %+v", eq.Stats)
	}
}

// TestCompileMembershipWithUnboundVariableIsBad exercises spec.md §7's
// Bad-pre-equation disposition: a membership axiom whose RHS-side
// condition mentions a variable absent from the LHS must be flagged Bad
// and rejected with an error.
func TestCompileMembershipWithUnboundVariableIsBad(t *testing.T) {
	names, syms := setup()
	a, _ := syms.Declare(names, "a", 0, nil, symbol.TheoryFree, false)

	lhs := term.NewFree(a, nil)
	y := term.NewVariable(names.Intern("y"), 0)
	cond := []condition.Fragment{condition.NewEquality(y, term.NewFree(a, nil))}

	m := New(MembershipKind, "a-has-y-condition", lhs, nil, cond, Attributes{})
	err := m.Compile(false, false)
	if err == nil {
		t.Fatalf("expected Bad-pre-equation error for unbound condition variable")
	}
	if !m.Attrs.Bad {
		t.Fatalf("expected membership axiom to be marked Bad")
	}
}

// TestCompileRuleWithUnboundRHSVariableIsNonExec mirrors the same
// scenario for a Rule, which tolerates an unbound variable by becoming
// NonExec instead of Bad (spec.md §7: "rules, which have a legitimate
// use for unbound LHS variables via external meta-apply").
func TestCompileRuleWithUnboundRHSVariableIsNonExec(t *testing.T) {
	names, syms := setup()
	f, _ := syms.Declare(names, "f", 1, nil, symbol.TheoryFree, false)
	g, _ := syms.Declare(names, "g", 1, nil, symbol.TheoryFree, false)

	x := term.NewVariable(names.Intern("x"), 0)
	lhs := term.NewFree(f, []*term.Term{x})
	z := term.NewVariable(names.Intern("z"), 0) // never appears on the LHS
	rhs := term.NewFree(g, []*term.Term{z})

	r := New(RuleKind, "f->g(unbound-z)", lhs, rhs, nil, Attributes{})
	if err := r.Compile(false, false); err != nil {
		t.Fatalf("unexpected error for a rule with unbound RHS variable: %v", err)
	}
	if !r.Attrs.NonExec {
		t.Fatalf("expected rule to be marked NonExec")
	}
	if r.Attrs.Compiled {
		t.Fatalf("NonExec rule must not also be marked Compiled")
	}
}

func TestKindString(t *testing.T) {
	cases := []struct {
		k    Kind
		want string
	}{
		{EquationKind, "Equation"},
		{RuleKind, "Rule"},
		{MembershipKind, "Membership"},
		{SortConstraintKind, "SortConstraint"},
		{Kind(99), "unknown"},
	}
	for _, c := range cases {
		if got := c.k.String(); got != c.want {
			t.Fatalf("Kind(%d).String() = %q, want %q", c.k, got, c.want)
		}
	}
}
